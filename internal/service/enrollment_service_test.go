package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eduhub/internal/domain"
	"eduhub/internal/models"
	"eduhub/pkg/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEnrollment_AllocatesNumberAndSeat(t *testing.T) {
	f := newFixture(t)
	class := f.addClass(nil)

	first := f.enroll(t, 1, class.ID)
	second := f.enroll(t, 2, class.ID)

	assert.Equal(t, "ENR-20260314-000001", first.EnrollmentNumber)
	assert.Equal(t, "ENR-20260314-000002", second.EnrollmentNumber)
	assert.Equal(t, domain.EnrollmentPending, first.Status)
	assert.Equal(t, 2, f.store.Class(class.ID).EnrolledCount)
	assert.Equal(t, 0, f.store.Class(class.ID).ConfirmedCount)
	assert.Equal(t, 2, f.events.Count(domain.EventEnrollmentCreated))
}

func TestCreateEnrollment_NumberRestartsEachDay(t *testing.T) {
	f := newFixture(t)
	class := f.addClass(nil)

	f.enroll(t, 1, class.ID)
	f.Advance(24 * time.Hour)
	e := f.enroll(t, 2, class.ID)

	assert.Equal(t, "ENR-20260315-000001", e.EnrollmentNumber)
}

func TestCreateEnrollment_Rules(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture) EnrollmentInput
		want  *BusinessError
	}{
		{
			name: "inactive class",
			setup: func(t *testing.T, f *fixture) EnrollmentInput {
				c := f.addClass(func(c *models.ClassOffering) { c.IsActive = false })
				return validInput(c.ID)
			},
			want: ErrClassInactive,
		},
		{
			name: "placement test missing",
			setup: func(t *testing.T, f *fixture) EnrollmentInput {
				c := f.addClass(func(c *models.ClassOffering) { c.MinScore = 60 })
				return validInput(c.ID)
			},
			want: ErrTestResultRequired,
		},
		{
			name: "placement test of another user",
			setup: func(t *testing.T, f *fixture) EnrollmentInput {
				c := f.addClass(func(c *models.ClassOffering) { c.MinScore = 60 })
				tr := f.store.AddTestResult(models.TestResult{UserID: 77, Score: 95})
				in := validInput(c.ID)
				in.TestResultID = &tr.ID
				return in
			},
			want: ErrTestResultRequired,
		},
		{
			name: "score below minimum",
			setup: func(t *testing.T, f *fixture) EnrollmentInput {
				c := f.addClass(func(c *models.ClassOffering) { c.MinScore = 60 })
				tr := f.store.AddTestResult(models.TestResult{UserID: 1, Score: 45})
				in := validInput(c.ID)
				in.TestResultID = &tr.ID
				return in
			},
			want: ErrScoreTooLow,
		},
		{
			name: "too old",
			setup: func(t *testing.T, f *fixture) EnrollmentInput {
				c := f.addClass(func(c *models.ClassOffering) { c.MinAge = 6; c.MaxAge = 12 })
				return validInput(c.ID)
			},
			want: ErrAgeOutOfRange,
		},
		{
			name: "class full",
			setup: func(t *testing.T, f *fixture) EnrollmentInput {
				c := f.addClass(func(c *models.ClassOffering) { c.Capacity = 3; c.EnrolledCount = 3 })
				return validInput(c.ID)
			},
			want: ErrCapacityFull,
		},
		{
			name: "slot full while class has room",
			setup: func(t *testing.T, f *fixture) EnrollmentInput {
				c := f.addClass(nil)
				sl := f.store.AddSlot(models.ScheduleSlot{ClassID: c.ID, Capacity: 1, EnrolledCount: 1})
				in := validInput(c.ID)
				in.ScheduleID = &sl.ID
				return in
			},
			want: ErrCapacityFull,
		},
		{
			name: "slot of another class",
			setup: func(t *testing.T, f *fixture) EnrollmentInput {
				c := f.addClass(nil)
				other := f.addClass(nil)
				sl := f.store.AddSlot(models.ScheduleSlot{ClassID: other.ID, Capacity: 10})
				in := validInput(c.ID)
				in.ScheduleID = &sl.ID
				return in
			},
			want: ErrScheduleMismatch,
		},
		{
			name: "seat check runs before duplicate check",
			setup: func(t *testing.T, f *fixture) EnrollmentInput {
				c := f.addClass(func(c *models.ClassOffering) { c.Capacity = 1 })
				f.enroll(t, 1, c.ID)
				return validInput(c.ID)
			},
			want: ErrCapacityFull,
		},
		{
			name: "already enrolled",
			setup: func(t *testing.T, f *fixture) EnrollmentInput {
				c := f.addClass(nil)
				f.enroll(t, 1, c.ID)
				return validInput(c.ID)
			},
			want: ErrDuplicateEnrollment,
		},
		{
			name: "unknown class",
			setup: func(t *testing.T, f *fixture) EnrollmentInput {
				return validInput(4040)
			},
			want: ErrClassNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := tt.setup(t, f)
			before := len(f.store.Enrollments())

			_, err := f.enrollments.CreateEnrollment(context.Background(), student(1), in)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Len(t, f.store.Enrollments(), before)
		})
	}
}

func TestCreateEnrollment_SlotCounters(t *testing.T) {
	f := newFixture(t)
	c := f.addClass(nil)
	sl := f.store.AddSlot(models.ScheduleSlot{ClassID: c.ID, Capacity: 2})
	in := validInput(c.ID)
	in.ScheduleID = &sl.ID

	_, err := f.enrollments.CreateEnrollment(context.Background(), student(1), in)
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.Slot(sl.ID).EnrolledCount)
	assert.Equal(t, 1, f.store.Class(c.ID).EnrolledCount)
}

func TestCreateEnrollment_FormValidation(t *testing.T) {
	f := newFixture(t)
	c := f.addClass(nil)

	minor := validInput(c.ID)
	minor.StudentAge = 12
	_, err := f.enrollments.CreateEnrollment(context.Background(), student(1), minor)
	var be *BusinessError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "invalid_form", be.Code)
	assert.Contains(t, be.Fields, "parent_name")
	assert.Contains(t, be.Fields, "parent_phone")

	minor.ParentName = "Siti Rahma"
	minor.ParentPhone = "081298765432"
	_, err = f.enrollments.CreateEnrollment(context.Background(), student(1), minor)
	assert.NoError(t, err)

	bad := validInput(c.ID)
	bad.StudentPhone = "12-34"
	bad.StudentAge = 2
	_, err = f.enrollments.CreateEnrollment(context.Background(), student(2), bad)
	require.True(t, errors.As(err, &be))
	assert.Contains(t, be.Fields, "student_phone")
	assert.Contains(t, be.Fields, "student_age")
}

func TestCreateEnrollment_ConcurrentCapacity(t *testing.T) {
	const capacity, contenders = 5, 25
	f := newFixture(t)
	c := f.addClass(func(c *models.ClassOffering) { c.Capacity = capacity })

	var (
		wg              sync.WaitGroup
		mu              sync.Mutex
		created, refuse int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(user uint) {
			defer wg.Done()
			_, err := f.enrollments.CreateEnrollment(context.Background(), student(user), validInput(c.ID))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrCapacityFull):
				refuse++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uint(i + 1))
	}
	wg.Wait()

	assert.Equal(t, capacity, created)
	assert.Equal(t, contenders-capacity, refuse)
	assert.Equal(t, capacity, f.store.Class(c.ID).EnrolledCount)

	seen := map[string]bool{}
	for _, e := range f.store.Enrollments() {
		assert.False(t, seen[e.EnrollmentNumber], "duplicate number %s", e.EnrollmentNumber)
		seen[e.EnrollmentNumber] = true
	}
}

func TestCreateEnrollment_ConcurrentDuplicate(t *testing.T) {
	f := newFixture(t)
	c := f.addClass(func(c *models.ClassOffering) { c.Capacity = 0 })

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.enrollments.CreateEnrollment(context.Background(), student(1), validInput(c.ID))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok, dup := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateEnrollment):
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, dup)
}

func TestCanEnroll(t *testing.T) {
	f := newFixture(t)
	c := f.addClass(func(c *models.ClassOffering) { c.MinAge = 10; c.MaxAge = 18 })

	got, err := f.enrollments.CanEnroll(context.Background(), student(1), c.ID, nil, 25)
	require.NoError(t, err)
	assert.False(t, got.Allowed)
	assert.Equal(t, "age_out_of_range", got.Code)

	got, err = f.enrollments.CanEnroll(context.Background(), student(1), c.ID, nil, 0)
	require.NoError(t, err)
	assert.True(t, got.Allowed)

	_, err = f.enrollments.CanEnroll(context.Background(), student(1), 999, nil, 0)
	assert.ErrorIs(t, err, ErrClassNotFound)
}

func TestCancelEnrollment_TerminalStates(t *testing.T) {
	f := newFixture(t)
	c := f.addClass(nil)
	e := f.enroll(t, 1, c.ID)
	ctx := context.Background()

	_, err := f.enrollments.CancelEnrollment(ctx, student(2), e.ID, "not mine")
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.enrollments.CancelEnrollment(ctx, student(1), e.ID, "schedule clash")
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentCancelled, got.Status)
	assert.Equal(t, "schedule clash", got.CancellationReason)
	assert.NotNil(t, got.CancelledAt)
	assert.Equal(t, 0, f.store.Class(c.ID).EnrolledCount)

	_, err = f.enrollments.CancelEnrollment(ctx, student(1), e.ID, "again")
	assert.ErrorIs(t, err, ErrEnrollmentAlreadyCancelled)

	// a cancelled enrollment no longer blocks a new one
	again := f.enroll(t, 1, c.ID)
	assert.NotEqual(t, e.ID, again.ID)
}

func TestCancelEnrollment_CompletedIsRefused(t *testing.T) {
	f := newFixture(t)
	c := f.addClass(nil)
	e := f.enroll(t, 1, c.ID)
	p := f.invoice(t, e)
	_, err := f.payments.ApplyStatusUpdate(context.Background(), StatusUpdate{PaymentID: p.ID, ProviderStatus: "PAID", PaidAmount: p.TotalAmount})
	require.NoError(t, err)
	n, err := f.enrollments.CompleteClass(context.Background(), adminActor, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = f.enrollments.CancelEnrollment(context.Background(), adminActor, e.ID, "too late")

	assert.ErrorIs(t, err, ErrEnrollmentCompleted)
	assert.Equal(t, domain.EnrollmentCompleted, f.store.Enrollment(e.ID).Status)
}

func TestCancelEnrollment_RefundsPaidPayment(t *testing.T) {
	f := newFixture(t)
	c := f.addClass(nil)
	e := f.enroll(t, 1, c.ID)
	p := f.invoice(t, e)
	_, err := f.payments.ApplyStatusUpdate(context.Background(), StatusUpdate{PaymentID: p.ID, ProviderStatus: "PAID", PaidAmount: p.TotalAmount})
	require.NoError(t, err)
	require.Equal(t, 1, f.store.Class(c.ID).ConfirmedCount)
	f.events.Reset()

	_, err = f.enrollments.CancelEnrollment(context.Background(), student(1), e.ID, "moving abroad")
	require.NoError(t, err)

	refunded := f.store.Payment(p.ID)
	assert.Equal(t, domain.PaymentRefunded, refunded.Status)
	assert.Equal(t, p.TotalAmount, refunded.RefundAmount)
	assert.Equal(t, "moving abroad", refunded.RefundReason)
	assert.Equal(t, []string{p.ProviderInvoiceID}, f.gw.Refunds())
	assert.Equal(t, 0, f.store.Class(c.ID).EnrolledCount)
	assert.Equal(t, 0, f.store.Class(c.ID).ConfirmedCount)
	assert.Equal(t, []string{domain.EventPaymentRefunded, domain.EventEnrollmentCancelled}, f.events.Types())
}

func TestCancelEnrollment_VoidsOpenInvoice(t *testing.T) {
	f := newFixture(t)
	c := f.addClass(nil)
	e := f.enroll(t, 1, c.ID)
	p := f.invoice(t, e)
	f.events.Reset()

	_, err := f.enrollments.CancelEnrollment(context.Background(), student(1), e.ID, "found another course")
	require.NoError(t, err)

	voided := f.store.Payment(p.ID)
	assert.Equal(t, domain.PaymentExpired, voided.Status)
	assert.NotNil(t, voided.ExpiredAt)
	remote, err := f.gw.FetchInvoice(context.Background(), p.ProviderInvoiceID)
	require.NoError(t, err)
	assert.Equal(t, "EXPIRED", remote.Status)
	assert.Empty(t, f.gw.Refunds())
	assert.Equal(t, []string{domain.EventPaymentExpired, domain.EventEnrollmentCancelled}, f.events.Types())
}

func TestCancelEnrollment_RemoteExpiryFailureStillCancels(t *testing.T) {
	f := newFixture(t)
	e := f.enroll(t, 1, f.addClass(nil).ID)
	p := f.invoice(t, e)
	f.gw.FailNext(&payment.GatewayError{Op: "expire_invoice", StatusCode: 503, Body: "unavailable", Retryable: true})

	_, err := f.enrollments.CancelEnrollment(context.Background(), student(1), e.ID, "")

	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentCancelled, f.store.Enrollment(e.ID).Status)
	assert.Equal(t, domain.PaymentExpired, f.store.Payment(p.ID).Status)
}

func TestCancelEnrollment_RefundFailureKeepsEnrollment(t *testing.T) {
	f := newFixture(t)
	c := f.addClass(nil)
	e := f.enroll(t, 1, c.ID)
	p := f.invoice(t, e)
	_, err := f.payments.ApplyStatusUpdate(context.Background(), StatusUpdate{PaymentID: p.ID, ProviderStatus: "PAID", PaidAmount: p.TotalAmount})
	require.NoError(t, err)
	f.events.Reset()
	f.gw.FailNext(&payment.GatewayError{Op: "refund_invoice", StatusCode: 503, Body: "unavailable", Retryable: true})

	_, err = f.enrollments.CancelEnrollment(context.Background(), student(1), e.ID, "changed mind")

	require.Error(t, err)
	assert.True(t, payment.IsRetryable(err))
	assert.Equal(t, domain.EnrollmentConfirmed, f.store.Enrollment(e.ID).Status)
	assert.Equal(t, domain.PaymentPaid, f.store.Payment(p.ID).Status)
	assert.Equal(t, 1, f.store.Class(c.ID).EnrolledCount)
	assert.Empty(t, f.events.Types())
}

func TestCompleteClass(t *testing.T) {
	f := newFixture(t)
	c := f.addClass(nil)
	paid := f.enroll(t, 1, c.ID)
	pending := f.enroll(t, 2, c.ID)
	p := f.invoice(t, paid)
	_, err := f.payments.ApplyStatusUpdate(context.Background(), StatusUpdate{PaymentID: p.ID, ProviderStatus: "SETTLED", PaidAmount: p.TotalAmount})
	require.NoError(t, err)

	_, err = f.enrollments.CompleteClass(context.Background(), student(1), c.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	n, err := f.enrollments.CompleteClass(context.Background(), adminActor, c.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, domain.EnrollmentCompleted, f.store.Enrollment(paid.ID).Status)
	assert.Equal(t, domain.EnrollmentPending, f.store.Enrollment(pending.ID).Status)
	assert.NotNil(t, f.store.Class(c.ID).CompletedAt)
	assert.Equal(t, 1, f.events.Count(domain.EventEnrollmentCompleted))
}

func TestGetEnrollment_Ownership(t *testing.T) {
	f := newFixture(t)
	c := f.addClass(nil)
	e := f.enroll(t, 1, c.ID)

	_, err := f.enrollments.GetEnrollment(context.Background(), student(2), e.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.enrollments.GetEnrollment(context.Background(), adminActor, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.EnrollmentNumber, got.EnrollmentNumber)

	_, err = f.enrollments.GetEnrollment(context.Background(), student(1), 12345)
	assert.ErrorIs(t, err, ErrEnrollmentNotFound)

	mine, err := f.enrollments.ListMyEnrollments(context.Background(), student(1))
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}
