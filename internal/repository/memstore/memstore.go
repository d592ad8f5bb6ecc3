// Package memstore is an in-memory repository.Store used by service and handler tests.
//
// Rows touched by a write (or a Lock* read) inside Transaction stay locked until the
// transaction ends, so concurrent callers serialize the way they would on InnoDB row
// locks. Rollback replays an undo log. Readers see uncommitted writes.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"eduhub/internal/domain"
	"eduhub/internal/models"
	"eduhub/internal/repository"
)

type state struct {
	mu   sync.Mutex
	cond *sync.Cond

	ids         map[string]uint
	classes     map[uint]models.ClassOffering
	slots       map[uint]models.ScheduleSlot
	tests       map[uint]models.TestResult
	enrollments map[uint]models.Enrollment
	payments    map[uint]models.Payment
	webhooks    map[uint]models.WebhookLog
	sequences   map[string]int64

	locks    map[string]*txn
	failures map[string]error
	now      func() time.Time
}

type txn struct {
	held []string
	undo []func()
}

// Store is safe for concurrent use.
type Store struct {
	st *state
	tx *txn
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	st := &state{
		ids:         map[string]uint{},
		classes:     map[uint]models.ClassOffering{},
		slots:       map[uint]models.ScheduleSlot{},
		tests:       map[uint]models.TestResult{},
		enrollments: map[uint]models.Enrollment{},
		payments:    map[uint]models.Payment{},
		webhooks:    map[uint]models.WebhookLog{},
		sequences:   map[string]int64{},
		locks:       map[string]*txn{},
		failures:    map[string]error{},
		now:         time.Now,
	}
	st.cond = sync.NewCond(&st.mu)
	return &Store{st: st}
}

// SetNow replaces the clock used for CreatedAt/UpdatedAt defaults.
func (s *Store) SetNow(now func() time.Time) {
	s.st.mu.Lock()
	s.st.now = now
	s.st.mu.Unlock()
}

// FailNext makes the next call to op (a Store method name) return err.
func (s *Store) FailNext(op string, err error) {
	s.st.mu.Lock()
	s.st.failures[op] = err
	s.st.mu.Unlock()
}

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	if s.tx != nil {
		return fn(s)
	}
	t := &txn{}
	defer func() {
		p := recover()
		s.st.mu.Lock()
		if err != nil || p != nil {
			for i := len(t.undo) - 1; i >= 0; i-- {
				t.undo[i]()
			}
		}
		for _, key := range t.held {
			delete(s.st.locks, key)
		}
		s.st.cond.Broadcast()
		s.st.mu.Unlock()
		if p != nil {
			panic(p)
		}
	}()
	return fn(&Store{st: s.st, tx: t})
}

// caller holds st.mu
func (s *Store) lockRow(key string) {
	for {
		owner := s.st.locks[key]
		if owner == nil || owner == s.tx {
			break
		}
		s.st.cond.Wait()
	}
	if s.tx != nil && s.st.locks[key] == nil {
		s.st.locks[key] = s.tx
		s.tx.held = append(s.tx.held, key)
	}
}

// caller holds st.mu
func (s *Store) onRollback(fn func()) {
	if s.tx != nil {
		s.tx.undo = append(s.tx.undo, fn)
	}
}

// caller holds st.mu
func (s *Store) failure(op string) error {
	if err, ok := s.st.failures[op]; ok {
		delete(s.st.failures, op)
		return err
	}
	return nil
}

func (s *Store) nextID(kind string) uint {
	s.st.ids[kind]++
	return s.st.ids[kind]
}

func key(kind string, id interface{}) string {
	return fmt.Sprintf("%s:%v", kind, id)
}

// ----- seeding and inspection helpers for tests -----

func (s *Store) AddClass(c models.ClassOffering) *models.ClassOffering {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.nextID("class")
	}
	s.st.classes[c.ID] = c
	return &c
}

func (s *Store) AddSlot(sl models.ScheduleSlot) *models.ScheduleSlot {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if sl.ID == 0 {
		sl.ID = s.nextID("slot")
	}
	s.st.slots[sl.ID] = sl
	return &sl
}

func (s *Store) AddTestResult(t models.TestResult) *models.TestResult {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.nextID("test")
	}
	s.st.tests[t.ID] = t
	return &t
}

func (s *Store) Class(id uint) models.ClassOffering {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.classes[id]
}

func (s *Store) Slot(id uint) models.ScheduleSlot {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.slots[id]
}

func (s *Store) Enrollment(id uint) models.Enrollment {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.enrollments[id]
}

func (s *Store) Enrollments() []models.Enrollment {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]models.Enrollment, 0, len(s.st.enrollments))
	for _, e := range s.st.enrollments {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Payment(id uint) models.Payment {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.payments[id]
}

func (s *Store) Payments() []models.Payment {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]models.Payment, 0, len(s.st.payments))
	for _, p := range s.st.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) WebhookLogs() []models.WebhookLog {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]models.WebhookLog, 0, len(s.st.webhooks))
	for _, l := range s.st.webhooks {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ----- ClassStore -----

func (s *Store) GetClass(ctx context.Context, id uint) (*models.ClassOffering, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	c, ok := s.st.classes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s *Store) LockClass(ctx context.Context, id uint) (*models.ClassOffering, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.lockRow(key("class", id))
	c, ok := s.st.classes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s *Store) LockSlot(ctx context.Context, id uint) (*models.ScheduleSlot, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.lockRow(key("slot", id))
	sl, ok := s.st.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sl, nil
}

func (s *Store) ListSlots(ctx context.Context, classID uint) ([]models.ScheduleSlot, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var list []models.ScheduleSlot
	for _, sl := range s.st.slots {
		if sl.ClassID == classID {
			list = append(list, sl)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func (s *Store) AdjustClassCounts(ctx context.Context, id uint, enrolledDelta, confirmedDelta int) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.failure("AdjustClassCounts"); err != nil {
		return err
	}
	s.lockRow(key("class", id))
	c, ok := s.st.classes[id]
	if !ok {
		return nil
	}
	old := c
	c.EnrolledCount = clamp(c.EnrolledCount + enrolledDelta)
	c.ConfirmedCount = clamp(c.ConfirmedCount + confirmedDelta)
	s.st.classes[id] = c
	s.onRollback(func() { s.st.classes[id] = old })
	return nil
}

func (s *Store) AdjustSlotCounts(ctx context.Context, id uint, enrolledDelta, confirmedDelta int) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.failure("AdjustSlotCounts"); err != nil {
		return err
	}
	s.lockRow(key("slot", id))
	sl, ok := s.st.slots[id]
	if !ok {
		return nil
	}
	old := sl
	sl.EnrolledCount = clamp(sl.EnrolledCount + enrolledDelta)
	sl.ConfirmedCount = clamp(sl.ConfirmedCount + confirmedDelta)
	s.st.slots[id] = sl
	s.onRollback(func() { s.st.slots[id] = old })
	return nil
}

func (s *Store) MarkClassCompleted(ctx context.Context, id uint, at time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.lockRow(key("class", id))
	c, ok := s.st.classes[id]
	if !ok {
		return nil
	}
	old := c
	c.CompletedAt = &at
	s.st.classes[id] = c
	s.onRollback(func() { s.st.classes[id] = old })
	return nil
}

func (s *Store) GetTestResult(ctx context.Context, id uint) (*models.TestResult, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	t, ok := s.st.tests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

// ----- EnrollmentStore -----

func (s *Store) NextEnrollmentSequence(ctx context.Context, day string) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.lockRow(key("seq", day))
	old := s.st.sequences[day]
	s.st.sequences[day] = old + 1
	s.onRollback(func() { s.st.sequences[day] = old })
	return old + 1, nil
}

func (s *Store) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.failure("CreateEnrollment"); err != nil {
		return err
	}
	for _, other := range s.st.enrollments {
		if other.EnrollmentNumber == e.EnrollmentNumber {
			return repository.ErrDuplicate
		}
	}
	e.ID = s.nextID("enrollment")
	now := s.st.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	id := e.ID
	s.st.enrollments[id] = *e
	s.lockRow(key("enrollment", id))
	s.onRollback(func() { delete(s.st.enrollments, id) })
	return nil
}

func (s *Store) GetEnrollment(ctx context.Context, id uint) (*models.Enrollment, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	e, ok := s.st.enrollments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s *Store) LockEnrollment(ctx context.Context, id uint) (*models.Enrollment, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.lockRow(key("enrollment", id))
	e, ok := s.st.enrollments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s *Store) HasActiveEnrollment(ctx context.Context, userID, classID uint) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, e := range s.st.enrollments {
		if e.UserID == userID && e.ClassID == classID && e.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListEnrollmentsByUser(ctx context.Context, userID uint) ([]models.Enrollment, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var list []models.Enrollment
	for _, e := range s.st.enrollments {
		if e.UserID == userID {
			list = append(list, e)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (s *Store) ListEnrollmentsByClass(ctx context.Context, classID uint, status domain.EnrollmentStatus) ([]models.Enrollment, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var list []models.Enrollment
	for _, e := range s.st.enrollments {
		if e.ClassID == classID && e.Status == status {
			list = append(list, e)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *Store) TransitionEnrollment(ctx context.Context, id uint, from domain.EnrollmentStatus, patch repository.EnrollmentPatch) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.failure("TransitionEnrollment"); err != nil {
		return false, err
	}
	s.lockRow(key("enrollment", id))
	e, ok := s.st.enrollments[id]
	if !ok || e.Status != from {
		return false, nil
	}
	old := e
	e.Status = patch.Status
	if patch.ConfirmedAt != nil {
		e.ConfirmedAt = patch.ConfirmedAt
	}
	if patch.CancelledAt != nil {
		e.CancelledAt = patch.CancelledAt
	}
	if patch.CancellationReason != nil {
		e.CancellationReason = *patch.CancellationReason
	}
	if patch.CompletedAt != nil {
		e.CompletedAt = patch.CompletedAt
	}
	e.UpdatedAt = s.st.now()
	s.st.enrollments[id] = e
	s.onRollback(func() { s.st.enrollments[id] = old })
	return true, nil
}

// ----- PaymentStore -----

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.failure("CreatePayment"); err != nil {
		return err
	}
	for _, other := range s.st.payments {
		if other.EnrollmentID == p.EnrollmentID || other.InvoiceNumber == p.InvoiceNumber || other.ExternalID == p.ExternalID {
			return repository.ErrDuplicate
		}
	}
	p.ID = s.nextID("payment")
	now := s.st.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	id := p.ID
	s.st.payments[id] = *p
	s.lockRow(key("payment", id))
	s.onRollback(func() { delete(s.st.payments, id) })
	return nil
}

// InsertPayment stores p as-is (test seeding); it bypasses uniqueness checks.
func (s *Store) InsertPayment(p models.Payment) *models.Payment {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID("payment")
	}
	s.st.payments[p.ID] = p
	return &p
}

func (s *Store) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	p, ok := s.st.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) LockPayment(ctx context.Context, id uint) (*models.Payment, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.lockRow(key("payment", id))
	p, ok := s.st.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetPaymentByEnrollment(ctx context.Context, enrollmentID uint) (*models.Payment, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, p := range s.st.payments {
		if p.EnrollmentID == enrollmentID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetPaymentByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, p := range s.st.payments {
		if p.ExternalID == externalID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) SetPaymentInvoice(ctx context.Context, id uint, providerInvoiceID, invoiceURL string, expiresAt time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.lockRow(key("payment", id))
	p, ok := s.st.payments[id]
	if !ok {
		return nil
	}
	old := p
	p.ProviderInvoiceID = providerInvoiceID
	p.ProviderInvoiceURL = invoiceURL
	p.ExpiresAt = &expiresAt
	s.st.payments[id] = p
	s.onRollback(func() { s.st.payments[id] = old })
	return nil
}

func (s *Store) TransitionPayment(ctx context.Context, id uint, from domain.PaymentStatus, patch repository.PaymentPatch) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.failure("TransitionPayment"); err != nil {
		return false, err
	}
	s.lockRow(key("payment", id))
	p, ok := s.st.payments[id]
	if !ok || p.Status != from {
		return false, nil
	}
	old := p
	p.Status = patch.Status
	if patch.PaidAt != nil {
		p.PaidAt = patch.PaidAt
	}
	if patch.PaidAmount != nil {
		p.PaidAmount = *patch.PaidAmount
	}
	if patch.FailedAt != nil {
		p.FailedAt = patch.FailedAt
	}
	if patch.ExpiredAt != nil {
		p.ExpiredAt = patch.ExpiredAt
	}
	if patch.RefundedAt != nil {
		p.RefundedAt = patch.RefundedAt
	}
	if patch.RefundAmount != nil {
		p.RefundAmount = *patch.RefundAmount
	}
	if patch.RefundReason != nil {
		p.RefundReason = *patch.RefundReason
	}
	p.UpdatedAt = s.st.now()
	s.st.payments[id] = p
	s.onRollback(func() { s.st.payments[id] = old })
	return true, nil
}

func (s *Store) DeletePayment(ctx context.Context, id uint) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.lockRow(key("payment", id))
	p, ok := s.st.payments[id]
	if !ok {
		return nil
	}
	delete(s.st.payments, id)
	s.onRollback(func() { s.st.payments[id] = p })
	return nil
}

func (s *Store) ListOverduePayments(ctx context.Context, now time.Time, limit int) ([]models.Payment, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var list []models.Payment
	for _, p := range s.st.payments {
		if p.Status == domain.PaymentPending && p.ExpiresAt != nil && p.ExpiresAt.Before(now) {
			list = append(list, p)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ExpiresAt.Before(*list[j].ExpiresAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// ----- WebhookLogStore -----

func (s *Store) CreateWebhookLog(ctx context.Context, l *models.WebhookLog) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.failure("CreateWebhookLog"); err != nil {
		return err
	}
	l.ID = s.nextID("webhook")
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.st.now()
	}
	id := l.ID
	s.st.webhooks[id] = *l
	s.onRollback(func() { delete(s.st.webhooks, id) })
	return nil
}

func (s *Store) FinishWebhookLog(ctx context.Context, id uint, status domain.WebhookStatus, message string, processedAt *time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	l, ok := s.st.webhooks[id]
	if !ok {
		return repository.ErrNotFound
	}
	old := l
	l.Status = status
	l.ErrorMessage = message
	if processedAt != nil {
		l.ProcessedAt = processedAt
	}
	s.st.webhooks[id] = l
	s.onRollback(func() { s.st.webhooks[id] = old })
	return nil
}

func (s *Store) CountRecentFailures(ctx context.Context, ip string, since time.Time, excludeID uint) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var n int64
	for _, l := range s.st.webhooks {
		if l.ID == excludeID || l.IPAddress != ip || l.CreatedAt.Before(since) {
			continue
		}
		if l.Status == domain.WebhookFailed || l.Status == domain.WebhookInvalid {
			n++
		}
	}
	return n, nil
}

func (s *Store) HasRecentSuccess(ctx context.Context, externalID, source string, since time.Time, excludeID uint) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, l := range s.st.webhooks {
		if l.ID == excludeID || l.CreatedAt.Before(since) {
			continue
		}
		if l.ExternalID == externalID && l.Source == source && l.Status == domain.WebhookSuccess {
			return true, nil
		}
	}
	return false, nil
}
