package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eduhub/config"
	"eduhub/internal/domain"
	"eduhub/internal/metrics"
	"eduhub/internal/models"
	"eduhub/internal/repository"
	"eduhub/pkg/payment"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	adminFeeRate     = 25 // per mille, 2.5%
	minAdminFee      = 5000
	invoiceAttempts  = 3
	defaultExpiry    = 24 * time.Hour
	statusAttempts   = 2
	defaultCurrency  = "IDR"
	sourcePoll       = "poll"
	lateRefundReason = "paid after enrollment was cancelled"
	sourceWebhookFmt = "webhook:%s"
)

// Outcome says what ApplyStatusUpdate did with an update.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnchanged Outcome = "unchanged"
)

// StatusUpdate is one provider observation of an invoice, from a webhook or a poll.
// Either PaymentID or ExternalID identifies the payment.
type StatusUpdate struct {
	PaymentID      uint
	ExternalID     string
	ProviderStatus string
	PaidAmount     int64
	PaidAt         *time.Time
	Source         string
}

type StatusResult struct {
	Payment  *models.Payment
	Previous domain.PaymentStatus
	Outcome  Outcome
}

// EnrollmentConfirmer confirms the enrollment behind a payment inside the caller's transaction.
type EnrollmentConfirmer interface {
	ConfirmEnrollment(ctx context.Context, tx repository.Store, enrollmentID uint) (*Event, error)
}

type PaymentService struct {
	store       repository.Store
	gateway     payment.Gateway
	enrollments EnrollmentConfirmer
	events      Publisher
	cfg         config.PaymentConfig
	log         *logrus.Entry
	now         func() time.Time
	newSuffix   func() string
}

func NewPaymentService(store repository.Store, gateway payment.Gateway, enrollments EnrollmentConfirmer, events Publisher, cfg config.PaymentConfig, log logrus.FieldLogger) *PaymentService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.InvoiceExpiry <= 0 {
		cfg.InvoiceExpiry = defaultExpiry
	}
	return &PaymentService{
		store:       store,
		gateway:     gateway,
		enrollments: enrollments,
		events:      events,
		cfg:         cfg,
		log:         log.WithField("component", "payment"),
		now:         time.Now,
		newSuffix:   randomSuffix,
	}
}

// CalculateFees returns the admin fee and the total charged for a class price, in
// minor units: 2.5% of the price, at least 5000.
func CalculateFees(amount int64) (fee, total int64) {
	fee = amount * adminFeeRate / 1000
	if fee < minAdminFee {
		fee = minAdminFee
	}
	return fee, amount + fee
}

func randomSuffix() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

func (s *PaymentService) invoiceNumber(at time.Time) string {
	return "INV-" + at.Format("20060102") + "-" + s.newSuffix()
}

// CreatePayment opens an invoice for a pending enrollment. An open invoice is
// returned as is; a failed or expired one is replaced. The gateway is called inside
// the transaction so a provider failure leaves no local row behind.
func (s *PaymentService) CreatePayment(ctx context.Context, actor Actor, enrollmentID uint) (*models.Payment, error) {
	e, err := s.store.GetEnrollment(ctx, enrollmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(e.UserID) {
		return nil, ErrForbidden
	}
	class, err := s.store.GetClass(ctx, e.ClassID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrClassNotFound
	}
	if err != nil {
		return nil, err
	}

	var (
		result  *models.Payment
		created bool
	)
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		created = false
		e, err := tx.LockEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		if e.Status != domain.EnrollmentPending {
			return ErrEnrollmentNotPending
		}

		existing, err := tx.GetPaymentByEnrollment(ctx, e.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return err
		case existing.Status == domain.PaymentPending:
			result = existing
			return nil
		case existing.Status.Retryable():
			if err := tx.DeletePayment(ctx, existing.ID); err != nil {
				return fmt.Errorf("replace payment: %w", err)
			}
			s.log.WithFields(logrus.Fields{"payment_id": existing.ID, "status": existing.Status}).Info("[Payment] replacing lapsed invoice")
		case existing.Status == domain.PaymentPaid:
			return ErrPaymentAlreadyPaid
		default:
			return ErrInvalidTransition.WithMessage(fmt.Sprintf("payment %s is %s", existing.InvoiceNumber, existing.Status))
		}

		now := s.now()
		fee, total := CalculateFees(class.Price)
		expires := now.Add(s.cfg.InvoiceExpiry)
		p := &models.Payment{
			EnrollmentID: e.ID,
			UserID:       e.UserID,
			Amount:       class.Price,
			AdminFee:     fee,
			TotalAmount:  total,
			Currency:     s.cfg.Currency,
			ExternalID:   "enr-" + uuid.NewString(),
			Status:       domain.PaymentPending,
			ExpiresAt:    &expires,
			CreatedAt:    now,
		}
		for attempt := 0; ; attempt++ {
			p.InvoiceNumber = s.invoiceNumber(now)
			err = tx.CreatePayment(ctx, p)
			if !errors.Is(err, repository.ErrDuplicate) || attempt+1 >= invoiceAttempts {
				break
			}
			s.log.WithField("invoice_number", p.InvoiceNumber).Warn("[Payment] invoice number collision, regenerating")
		}
		if err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		start := time.Now()
		inv, err := s.gateway.CreateInvoice(ctx, payment.InvoiceRequest{
			ExternalID:  p.ExternalID,
			Amount:      p.TotalAmount,
			Currency:    p.Currency,
			Description: fmt.Sprintf("%s - %s", class.Name, e.EnrollmentNumber),
			Duration:    s.cfg.InvoiceExpiry,
			Customer: payment.Customer{
				GivenNames:   e.StudentName,
				Email:        e.StudentEmail,
				MobileNumber: e.StudentPhone,
			},
			Items: []payment.Item{
				{Name: class.Name, Quantity: 1, Price: p.Amount},
				{Name: "Admin fee", Quantity: 1, Price: p.AdminFee},
			},
			SuccessRedirectURL: s.cfg.SuccessRedirectURL,
			FailureRedirectURL: s.cfg.FailureRedirectURL,
		})
		metrics.RecordGatewayCall("create_invoice", err == nil, time.Since(start))
		if err != nil {
			s.log.WithError(err).WithField("enrollment_id", e.ID).Error("[Payment] create invoice failed")
			return asGatewayError("create_invoice", err)
		}

		if !inv.ExpiryDate.IsZero() {
			expires = inv.ExpiryDate
		}
		if err := tx.SetPaymentInvoice(ctx, p.ID, inv.ID, inv.InvoiceURL, expires); err != nil {
			return fmt.Errorf("store invoice: %w", err)
		}
		p.ProviderInvoiceID = inv.ID
		p.ProviderInvoiceURL = inv.InvoiceURL
		p.ExpiresAt = &expires
		result = p
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.log.WithFields(logrus.Fields{
			"payment_id":     result.ID,
			"invoice_number": result.InvoiceNumber,
			"total":          result.TotalAmount,
		}).Info("[Payment] invoice created")
		publishAll(ctx, s.events, []Event{paymentEvent(domain.EventPaymentCreated, result, s.now())})
	}
	return result, nil
}

// asGatewayError makes sure provider failures reach handlers as *payment.GatewayError.
func asGatewayError(op string, err error) error {
	var ge *payment.GatewayError
	if errors.As(err, &ge) {
		return err
	}
	return &payment.GatewayError{Op: op, Retryable: true, Err: err}
}

// ApplyStatusUpdate is the only path that moves a payment between pending, paid,
// failed and expired. Concurrent callers race on a conditional update; only the
// winner confirms the enrollment and publishes events.
func (s *PaymentService) ApplyStatusUpdate(ctx context.Context, u StatusUpdate) (*StatusResult, error) {
	var (
		res    *StatusResult
		events []Event
	)
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		res, events, err = s.applyStatus(ctx, tx, u)
		return err
	})
	if err != nil {
		metrics.RecordPaymentTransition(u.Source, strings.ToLower(u.ProviderStatus), "error")
		return nil, err
	}
	metrics.RecordPaymentTransition(u.Source, string(res.Payment.Status), string(res.Outcome))
	publishAll(ctx, s.events, events)
	return res, nil
}

func (s *PaymentService) findPayment(ctx context.Context, tx repository.Store, u StatusUpdate) (*models.Payment, error) {
	var (
		p   *models.Payment
		err error
	)
	if u.PaymentID != 0 {
		p, err = tx.GetPayment(ctx, u.PaymentID)
	} else {
		p, err = tx.GetPaymentByExternalID(ctx, u.ExternalID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

func (s *PaymentService) applyStatus(ctx context.Context, tx repository.Store, u StatusUpdate) (*StatusResult, []Event, error) {
	p, err := s.findPayment(ctx, tx, u)
	if err != nil {
		return nil, nil, err
	}
	res := &StatusResult{Payment: p, Previous: p.Status}
	target, ok := domain.MapProviderStatus(u.ProviderStatus)
	if !ok {
		res.Outcome = OutcomeUnchanged
		return res, nil, nil
	}
	entry := s.log.WithFields(logrus.Fields{
		"payment_id": p.ID,
		"source":     u.Source,
		"provider":   u.ProviderStatus,
	})

	for attempt := 0; attempt < statusAttempts; attempt++ {
		res.Previous = p.Status
		res.Payment = p
		if p.Status == target {
			res.Outcome = OutcomeDuplicate
			return res, nil, nil
		}
		if p.Status.Final() {
			entry.WithField("status", p.Status).Warn("[Payment] ignoring update for settled payment")
			res.Outcome = OutcomeIgnored
			return res, nil, nil
		}

		now := s.now()
		patch := repository.PaymentPatch{Status: target}
		switch target {
		case domain.PaymentPaid:
			paidAt := now
			if u.PaidAt != nil {
				paidAt = *u.PaidAt
			}
			amount := u.PaidAmount
			patch.PaidAt = &paidAt
			patch.PaidAmount = &amount
		case domain.PaymentFailed:
			patch.FailedAt = &now
		case domain.PaymentExpired:
			patch.ExpiredAt = &now
		}

		won, err := tx.TransitionPayment(ctx, p.ID, p.Status, patch)
		if err != nil {
			return nil, nil, fmt.Errorf("transition payment: %w", err)
		}
		if !won {
			// another writer moved the row; decide again on the current state
			if p, err = tx.LockPayment(ctx, p.ID); err != nil {
				return nil, nil, err
			}
			continue
		}

		updated := *p
		updated.Status = target
		switch target {
		case domain.PaymentPaid:
			updated.PaidAt = patch.PaidAt
			updated.PaidAmount = *patch.PaidAmount
		case domain.PaymentFailed:
			updated.FailedAt = patch.FailedAt
		case domain.PaymentExpired:
			updated.ExpiredAt = patch.ExpiredAt
		}
		res.Payment = &updated
		res.Outcome = OutcomeApplied
		entry.WithFields(logrus.Fields{"from": p.Status, "to": target}).Info("[Payment] status updated")

		var events []Event
		switch target {
		case domain.PaymentPaid:
			if updated.PaidAmount != updated.TotalAmount {
				entry.WithFields(logrus.Fields{
					"paid_amount":  updated.PaidAmount,
					"total_amount": updated.TotalAmount,
				}).Warn("[Payment] paid amount differs from invoice total")
			}
			events = append(events, paymentEvent(domain.EventPaymentConfirmed, &updated, now))
			e, err := tx.LockEnrollment(ctx, updated.EnrollmentID)
			if err != nil {
				return nil, nil, err
			}
			if e.Status == domain.EnrollmentCancelled {
				// the money arrived anyway; keep the record and give it back
				entry.WithField("enrollment_id", e.ID).Warn("[Payment] paid after cancellation, refunding")
				ev, err := s.Refund(ctx, tx, &updated, lateRefundReason)
				if err != nil {
					return nil, nil, err
				}
				if res.Payment, err = tx.GetPayment(ctx, updated.ID); err != nil {
					return nil, nil, err
				}
				return res, append(events, *ev), nil
			}
			ev, err := s.enrollments.ConfirmEnrollment(ctx, tx, updated.EnrollmentID)
			if err != nil {
				return nil, nil, err
			}
			if ev != nil {
				events = append(events, *ev)
			}
		case domain.PaymentFailed:
			events = append(events, paymentEvent(domain.EventPaymentFailed, &updated, now))
		case domain.PaymentExpired:
			events = append(events, paymentEvent(domain.EventPaymentExpired, &updated, now))
		}
		return res, events, nil
	}
	return nil, nil, fmt.Errorf("payment %d changed concurrently", p.ID)
}

// CheckStatus polls the provider for the payment's invoice and applies the answer.
// Gateway failures are returned and never mark the payment failed.
func (s *PaymentService) CheckStatus(ctx context.Context, actor Actor, paymentID uint) (*models.Payment, error) {
	p, err := s.GetPayment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	if p.ProviderInvoiceID == "" {
		return p, nil
	}

	start := time.Now()
	st, err := s.gateway.FetchInvoice(ctx, p.ProviderInvoiceID)
	metrics.RecordGatewayCall("fetch_invoice", err == nil, time.Since(start))
	if err != nil {
		s.log.WithError(err).WithField("payment_id", p.ID).Warn("[Payment] status poll failed")
		return nil, asGatewayError("fetch_invoice", err)
	}

	res, err := s.ApplyStatusUpdate(ctx, StatusUpdate{
		PaymentID:      p.ID,
		ProviderStatus: strings.ToUpper(st.Status),
		PaidAmount:     st.PaidAmount,
		PaidAt:         st.PaidAt,
		Source:         sourcePoll,
	})
	if err != nil {
		return nil, err
	}
	return res.Payment, nil
}

// Refund marks a paid payment refunded inside tx and asks the gateway to return
// the money when it can. It is called from cancellation.
func (s *PaymentService) Refund(ctx context.Context, tx repository.Store, p *models.Payment, reason string) (*Event, error) {
	if p.Status != domain.PaymentPaid {
		return nil, ErrPaymentNotPaid
	}
	now := s.now()
	amount := p.PaidAmount
	if amount <= 0 {
		amount = p.TotalAmount
	}
	ok, err := tx.TransitionPayment(ctx, p.ID, domain.PaymentPaid, repository.PaymentPatch{
		Status:       domain.PaymentRefunded,
		RefundedAt:   &now,
		RefundAmount: &amount,
		RefundReason: &reason,
	})
	if err != nil {
		return nil, fmt.Errorf("refund payment: %w", err)
	}
	if !ok {
		return nil, ErrPaymentNotPaid
	}

	if r, ok := s.gateway.(payment.Refunder); ok && p.ProviderInvoiceID != "" {
		start := time.Now()
		err := r.RefundInvoice(ctx, p.ProviderInvoiceID, amount, reason)
		metrics.RecordGatewayCall("refund_invoice", err == nil || errors.Is(err, payment.ErrRefundNotSupported), time.Since(start))
		switch {
		case errors.Is(err, payment.ErrRefundNotSupported):
			s.log.WithField("payment_id", p.ID).Warn("[Payment] provider refund not supported, recorded locally only")
		case err != nil:
			return nil, asGatewayError("refund_invoice", err)
		}
	}

	refunded := *p
	refunded.Status = domain.PaymentRefunded
	refunded.RefundedAt = &now
	refunded.RefundAmount = amount
	refunded.RefundReason = reason
	s.log.WithFields(logrus.Fields{"payment_id": p.ID, "amount": amount}).Info("[Payment] refunded")
	ev := paymentEvent(domain.EventPaymentRefunded, &refunded, now)
	return &ev, nil
}

// Void expires a pending payment inside tx when its enrollment is cancelled and
// closes the remote invoice when the gateway allows it. A payment that still gets
// paid later is refunded by ApplyStatusUpdate.
func (s *PaymentService) Void(ctx context.Context, tx repository.Store, p *models.Payment, reason string) (*Event, error) {
	if p.Status != domain.PaymentPending {
		return nil, ErrInvalidTransition.WithMessage(fmt.Sprintf("payment %s is %s", p.InvoiceNumber, p.Status))
	}
	now := s.now()
	ok, err := tx.TransitionPayment(ctx, p.ID, domain.PaymentPending, repository.PaymentPatch{
		Status:    domain.PaymentExpired,
		ExpiredAt: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("void payment: %w", err)
	}
	if !ok {
		return nil, ErrInvalidTransition.WithMessage(fmt.Sprintf("payment %s changed concurrently", p.InvoiceNumber))
	}

	entry := s.log.WithFields(logrus.Fields{"payment_id": p.ID, "reason": reason})
	if x, ok := s.gateway.(payment.Expirer); ok && p.ProviderInvoiceID != "" {
		start := time.Now()
		err := x.ExpireInvoice(ctx, p.ProviderInvoiceID)
		metrics.RecordGatewayCall("expire_invoice", err == nil, time.Since(start))
		if err != nil {
			entry.WithError(err).Warn("[Payment] could not expire remote invoice")
		}
	}

	voided := *p
	voided.Status = domain.PaymentExpired
	voided.ExpiredAt = &now
	entry.Info("[Payment] open invoice voided")
	ev := paymentEvent(domain.EventPaymentExpired, &voided, now)
	return &ev, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, actor Actor, id uint) (*models.Payment, error) {
	p, err := s.store.GetPayment(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(p.UserID) {
		return nil, ErrForbidden
	}
	return p, nil
}

// ReconcileOverdue polls pending payments whose invoice should have lapsed, for
// the case where the provider's callback never arrived. It returns how many changed.
func (s *PaymentService) ReconcileOverdue(ctx context.Context, limit int) (int, error) {
	list, err := s.store.ListOverduePayments(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, p := range list {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		updated, err := s.CheckStatus(ctx, SystemActor, p.ID)
		if err != nil {
			s.log.WithError(err).WithField("payment_id", p.ID).Warn("[Payment] reconcile failed")
			continue
		}
		if updated.Status != p.Status {
			changed++
		}
	}
	if len(list) > 0 {
		s.log.WithFields(logrus.Fields{"checked": len(list), "changed": changed}).Info("[Payment] reconciled overdue invoices")
	}
	return changed, nil
}

func paymentEvent(typ string, p *models.Payment, at time.Time) Event {
	return Event{
		Type:         typ,
		UserID:       p.UserID,
		EnrollmentID: p.EnrollmentID,
		PaymentID:    p.ID,
		OccurredAt:   at,
		Data: map[string]interface{}{
			"invoice_number": p.InvoiceNumber,
			"total_amount":   p.TotalAmount,
			"currency":       p.Currency,
			"status":         string(p.Status),
			"invoice_url":    p.ProviderInvoiceURL,
		},
	}
}

// WebhookSource labels updates coming from a provider callback.
func WebhookSource(provider string) string {
	return fmt.Sprintf(sourceWebhookFmt, provider)
}
