package repository

import (
	"context"
	"errors"
	"time"

	"eduhub/internal/domain"
	"eduhub/internal/models"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type ClassStore interface {
	GetClass(ctx context.Context, id uint) (*models.ClassOffering, error)
	// LockClass reads the class with SELECT ... FOR UPDATE. Only meaningful inside Transaction.
	LockClass(ctx context.Context, id uint) (*models.ClassOffering, error)
	LockSlot(ctx context.Context, id uint) (*models.ScheduleSlot, error)
	ListSlots(ctx context.Context, classID uint) ([]models.ScheduleSlot, error)
	// AdjustClassCounts adds the deltas to the counters, clamping at zero.
	AdjustClassCounts(ctx context.Context, id uint, enrolledDelta, confirmedDelta int) error
	AdjustSlotCounts(ctx context.Context, id uint, enrolledDelta, confirmedDelta int) error
	MarkClassCompleted(ctx context.Context, id uint, at time.Time) error
	GetTestResult(ctx context.Context, id uint) (*models.TestResult, error)
}

// EnrollmentPatch lists the columns a status transition writes. Nil fields are left alone.
type EnrollmentPatch struct {
	Status             domain.EnrollmentStatus
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
	CompletedAt        *time.Time
}

type EnrollmentStore interface {
	// NextEnrollmentSequence returns the next per-day number, starting at 1.
	NextEnrollmentSequence(ctx context.Context, day string) (int64, error)
	CreateEnrollment(ctx context.Context, e *models.Enrollment) error
	GetEnrollment(ctx context.Context, id uint) (*models.Enrollment, error)
	LockEnrollment(ctx context.Context, id uint) (*models.Enrollment, error)
	HasActiveEnrollment(ctx context.Context, userID, classID uint) (bool, error)
	ListEnrollmentsByUser(ctx context.Context, userID uint) ([]models.Enrollment, error)
	ListEnrollmentsByClass(ctx context.Context, classID uint, status domain.EnrollmentStatus) ([]models.Enrollment, error)
	// TransitionEnrollment applies patch only if the row is still in state from.
	// It returns false when another writer changed the row first.
	TransitionEnrollment(ctx context.Context, id uint, from domain.EnrollmentStatus, patch EnrollmentPatch) (bool, error)
}

type PaymentPatch struct {
	Status       domain.PaymentStatus
	PaidAt       *time.Time
	PaidAmount   *int64
	FailedAt     *time.Time
	ExpiredAt    *time.Time
	RefundedAt   *time.Time
	RefundAmount *int64
	RefundReason *string
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id uint) (*models.Payment, error)
	LockPayment(ctx context.Context, id uint) (*models.Payment, error)
	GetPaymentByEnrollment(ctx context.Context, enrollmentID uint) (*models.Payment, error)
	GetPaymentByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	SetPaymentInvoice(ctx context.Context, id uint, providerInvoiceID, invoiceURL string, expiresAt time.Time) error
	TransitionPayment(ctx context.Context, id uint, from domain.PaymentStatus, patch PaymentPatch) (bool, error)
	DeletePayment(ctx context.Context, id uint) error
	// ListOverduePayments returns pending payments whose expiry is before now, oldest first.
	ListOverduePayments(ctx context.Context, now time.Time, limit int) ([]models.Payment, error)
}

type WebhookLogStore interface {
	CreateWebhookLog(ctx context.Context, l *models.WebhookLog) error
	FinishWebhookLog(ctx context.Context, id uint, status domain.WebhookStatus, message string, processedAt *time.Time) error
	// CountRecentFailures counts failed/invalid rows from ip created at or after since, ignoring excludeID.
	CountRecentFailures(ctx context.Context, ip string, since time.Time, excludeID uint) (int64, error)
	HasRecentSuccess(ctx context.Context, externalID, source string, since time.Time, excludeID uint) (bool, error)
}

// Store is the unit of work the services run against.
type Store interface {
	ClassStore
	EnrollmentStore
	PaymentStore
	WebhookLogStore
	// Transaction runs fn against a Store bound to one database transaction.
	// Returning an error from fn rolls everything back.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// GormStore implements Store on MySQL.
type GormStore struct {
	db *gorm.DB
	*ClassRepository
	*EnrollmentRepository
	*PaymentRepository
	*WebhookLogRepository
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:                   db,
		ClassRepository:      NewClassRepository(db),
		EnrollmentRepository: NewEnrollmentRepository(db),
		PaymentRepository:    NewPaymentRepository(db),
		WebhookLogRepository: NewWebhookLogRepository(db),
	}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}
