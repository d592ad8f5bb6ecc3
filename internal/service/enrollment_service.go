package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"eduhub/internal/domain"
	"eduhub/internal/metrics"
	"eduhub/internal/models"
	"eduhub/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

// EnrollmentInput is the enrollment form as submitted by the student.
type EnrollmentInput struct {
	ClassID      uint   `json:"class_id" validate:"required"`
	ScheduleID   *uint  `json:"schedule_id"`
	TestResultID *uint  `json:"test_result_id"`
	StudentName  string `json:"student_name" validate:"required,max=255"`
	StudentEmail string `json:"student_email" validate:"required,email,max=255"`
	StudentPhone string `json:"student_phone" validate:"required,phone"`
	StudentAge   int    `json:"student_age" validate:"required,min=3,max=100"`
	ParentName   string `json:"parent_name" validate:"omitempty,max=255"`
	ParentPhone  string `json:"parent_phone" validate:"omitempty,phone"`
	ParentEmail  string `json:"parent_email" validate:"omitempty,email,max=255"`
	Notes        string `json:"notes" validate:"max=2000"`
}

// Eligibility is the read-only answer to "may this student enroll?".
type Eligibility struct {
	Allowed bool   `json:"allowed"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// PaymentSettler closes the payment of a cancelled enrollment inside the caller's
// transaction: Refund for a paid one, Void for an invoice still open.
type PaymentSettler interface {
	Refund(ctx context.Context, tx repository.Store, p *models.Payment, reason string) (*Event, error)
	Void(ctx context.Context, tx repository.Store, p *models.Payment, reason string) (*Event, error)
}

type EnrollmentService struct {
	store    repository.Store
	payments PaymentSettler
	events   Publisher
	validate *validator.Validate
	log      *logrus.Entry
	now      func() time.Time
}

func NewEnrollmentService(store repository.Store, events Publisher, log logrus.FieldLogger) *EnrollmentService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EnrollmentService{
		store:    store,
		events:   events,
		validate: newEnrollmentValidator(),
		log:      log.WithField("component", "enrollment"),
		now:      time.Now,
	}
}

// SetPayments wires the payment side; the two services depend on each other.
func (s *EnrollmentService) SetPayments(p PaymentSettler) {
	s.payments = p
}

func newEnrollmentValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(EnrollmentInput)
		if in.StudentAge == 0 || in.StudentAge >= domain.MinorAgeThreshold {
			return
		}
		if in.ParentName == "" {
			sl.ReportError(in.ParentName, "parent_name", "ParentName", "required_for_minor", "")
		}
		if in.ParentPhone == "" {
			sl.ReportError(in.ParentPhone, "parent_phone", "ParentPhone", "required_for_minor", "")
		}
	}, EnrollmentInput{})
	return v
}

var fieldNames = map[string]string{
	"ClassID":      "class_id",
	"StudentName":  "student_name",
	"StudentEmail": "student_email",
	"StudentPhone": "student_phone",
	"StudentAge":   "student_age",
	"ParentName":   "parent_name",
	"ParentPhone":  "parent_phone",
	"ParentEmail":  "parent_email",
	"Notes":        "notes",
}

func (s *EnrollmentService) validateInput(in EnrollmentInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fieldNames[fe.StructField()]
		if name == "" {
			name = fe.Field()
		}
		fields[name] = fieldMessage(fe)
	}
	bad := ErrInvalidForm.WithMessage("some fields are invalid")
	bad.Fields = fields
	return bad
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_for_minor":
		return fmt.Sprintf("is required for students under %d", domain.MinorAgeThreshold)
	case "email":
		return "must be a valid email address"
	case "phone":
		return "must be 9 to 15 digits, optionally starting with +"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}

// checkEligibility runs the rules that do not need locks: class open, placement
// score and age. age 0 skips the age rule.
func (s *EnrollmentService) checkEligibility(ctx context.Context, actor Actor, class *models.ClassOffering, testResultID *uint, age int) error {
	if !class.IsActive {
		return ErrClassInactive
	}
	if class.MinScore > 0 {
		if testResultID == nil {
			return ErrTestResultRequired
		}
		tr, err := s.store.GetTestResult(ctx, *testResultID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTestResultRequired
		}
		if err != nil {
			return err
		}
		if tr.UserID != actor.UserID {
			return ErrTestResultRequired
		}
		if tr.Score < class.MinScore {
			return ErrScoreTooLow.WithMessage(fmt.Sprintf("placement test score %d is below the minimum of %d", tr.Score, class.MinScore))
		}
	}
	if age > 0 {
		if (class.MinAge > 0 && age < class.MinAge) || (class.MaxAge > 0 && age > class.MaxAge) {
			return ErrAgeOutOfRange
		}
	}
	return nil
}

func (s *EnrollmentService) loadClass(ctx context.Context, id uint) (*models.ClassOffering, error) {
	class, err := s.store.GetClass(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrClassNotFound
	}
	return class, err
}

// CanEnroll reports eligibility without taking locks or checking seats.
func (s *EnrollmentService) CanEnroll(ctx context.Context, actor Actor, classID uint, testResultID *uint, age int) (*Eligibility, error) {
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	err = s.checkEligibility(ctx, actor, class, testResultID, age)
	var be *BusinessError
	switch {
	case err == nil:
		return &Eligibility{Allowed: true}, nil
	case errors.As(err, &be):
		return &Eligibility{Allowed: false, Code: be.Code, Reason: be.Message}, nil
	}
	return nil, err
}

// CreateEnrollment validates the form, runs the eligibility rules, then inside one
// transaction locks the class (and slot), checks for a free seat and an existing
// active enrollment, allocates the number and inserts the pending enrollment.
func (s *EnrollmentService) CreateEnrollment(ctx context.Context, actor Actor, in EnrollmentInput) (*models.Enrollment, error) {
	e, err := s.createEnrollment(ctx, actor, in)
	var be *BusinessError
	switch {
	case err == nil:
		metrics.RecordEnrollment("created")
	case errors.As(err, &be):
		metrics.RecordEnrollment(be.Code)
	default:
		metrics.RecordEnrollment("error")
	}
	return e, err
}

func (s *EnrollmentService) createEnrollment(ctx context.Context, actor Actor, in EnrollmentInput) (*models.Enrollment, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	class, err := s.loadClass(ctx, in.ClassID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEligibility(ctx, actor, class, in.TestResultID, in.StudentAge); err != nil {
		return nil, err
	}

	var created *models.Enrollment
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		class, err := tx.LockClass(ctx, in.ClassID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrClassNotFound
		}
		if err != nil {
			return err
		}
		if !class.IsActive {
			return ErrClassInactive
		}

		var slot *models.ScheduleSlot
		if in.ScheduleID != nil {
			slot, err = tx.LockSlot(ctx, *in.ScheduleID)
			if errors.Is(err, repository.ErrNotFound) {
				return ErrScheduleMismatch
			}
			if err != nil {
				return err
			}
			if slot.ClassID != class.ID {
				return ErrScheduleMismatch
			}
			if !slot.HasSeat() {
				return ErrCapacityFull
			}
		} else if !class.HasSeat() {
			return ErrCapacityFull
		}

		dup, err := tx.HasActiveEnrollment(ctx, actor.UserID, class.ID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateEnrollment
		}

		now := s.now()
		day := now.Format("20060102")
		seq, err := tx.NextEnrollmentSequence(ctx, day)
		if err != nil {
			return fmt.Errorf("allocate enrollment number: %w", err)
		}
		e := &models.Enrollment{
			EnrollmentNumber: fmt.Sprintf("ENR-%s-%06d", day, seq),
			UserID:           actor.UserID,
			ClassID:          class.ID,
			ScheduleID:       in.ScheduleID,
			TestResultID:     in.TestResultID,
			StudentName:      in.StudentName,
			StudentEmail:     in.StudentEmail,
			StudentPhone:     in.StudentPhone,
			StudentAge:       in.StudentAge,
			ParentName:       in.ParentName,
			ParentPhone:      in.ParentPhone,
			ParentEmail:      in.ParentEmail,
			Notes:            in.Notes,
			Status:           domain.EnrollmentPending,
			CreatedAt:        now,
		}
		if err := tx.CreateEnrollment(ctx, e); err != nil {
			return fmt.Errorf("create enrollment: %w", err)
		}
		if err := s.adjustSeats(ctx, tx, e, 1, 0); err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"enrollment_id": created.ID,
		"number":        created.EnrollmentNumber,
		"user_id":       created.UserID,
		"class_id":      created.ClassID,
	}).Info("[Enrollment] created")
	publishAll(ctx, s.events, []Event{enrollmentEvent(domain.EventEnrollmentCreated, created, s.now())})
	return created, nil
}

// adjustSeats moves the counters of the class and, when the enrollment has one, its slot.
func (s *EnrollmentService) adjustSeats(ctx context.Context, tx repository.Store, e *models.Enrollment, enrolled, confirmed int) error {
	if err := tx.AdjustClassCounts(ctx, e.ClassID, enrolled, confirmed); err != nil {
		return fmt.Errorf("update class counters: %w", err)
	}
	if e.ScheduleID != nil {
		if err := tx.AdjustSlotCounts(ctx, *e.ScheduleID, enrolled, confirmed); err != nil {
			return fmt.Errorf("update slot counters: %w", err)
		}
	}
	return nil
}

// ConfirmEnrollment moves a pending enrollment to confirmed inside tx. It returns
// the event to publish after commit, or nil when the enrollment was already confirmed.
func (s *EnrollmentService) ConfirmEnrollment(ctx context.Context, tx repository.Store, enrollmentID uint) (*Event, error) {
	now := s.now()
	ok, err := tx.TransitionEnrollment(ctx, enrollmentID, domain.EnrollmentPending, repository.EnrollmentPatch{
		Status:      domain.EnrollmentConfirmed,
		ConfirmedAt: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("confirm enrollment: %w", err)
	}
	if !ok {
		cur, err := tx.LockEnrollment(ctx, enrollmentID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEnrollmentNotFound
		}
		if err != nil {
			return nil, err
		}
		if cur.Status == domain.EnrollmentConfirmed {
			return nil, nil
		}
		return nil, ErrInvalidTransition.WithMessage(fmt.Sprintf("enrollment %s is %s and cannot be confirmed", cur.EnrollmentNumber, cur.Status))
	}

	e, err := tx.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := s.adjustSeats(ctx, tx, e, 0, 1); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"enrollment_id": e.ID, "number": e.EnrollmentNumber}).Info("[Enrollment] confirmed")
	ev := enrollmentEvent(domain.EventEnrollmentConfirmed, e, now)
	return &ev, nil
}

// CancelEnrollment cancels an enrollment, releases its seat and, in the same
// transaction, refunds a paid payment or expires an open invoice. A refund failure
// keeps the enrollment as it was.
func (s *EnrollmentService) CancelEnrollment(ctx context.Context, actor Actor, enrollmentID uint, reason string) (*models.Enrollment, error) {
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

	var (
		cancelled *models.Enrollment
		events    []Event
	)
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		events = nil
		// payment row first, the confirm path locks in the same order
		pay, err := tx.GetPaymentByEnrollment(ctx, enrollmentID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			pay = nil
		case err != nil:
			return err
		default:
			if pay, err = tx.LockPayment(ctx, pay.ID); err != nil {
				return err
			}
		}

		cur, err := tx.LockEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}
		switch cur.Status {
		case domain.EnrollmentCompleted:
			return ErrEnrollmentCompleted
		case domain.EnrollmentCancelled:
			return ErrEnrollmentAlreadyCancelled
		}

		now := s.now()
		ok, err := tx.TransitionEnrollment(ctx, cur.ID, cur.Status, repository.EnrollmentPatch{
			Status:             domain.EnrollmentCancelled,
			CancelledAt:        &now,
			CancellationReason: &reason,
		})
		if err != nil {
			return fmt.Errorf("cancel enrollment: %w", err)
		}
		if !ok {
			return ErrInvalidTransition
		}
		if cur.Status.Active() {
			confirmed := 0
			if cur.Status == domain.EnrollmentConfirmed {
				confirmed = -1
			}
			if err := s.adjustSeats(ctx, tx, cur, -1, confirmed); err != nil {
				return err
			}
		}

		if pay != nil && (pay.Status == domain.PaymentPaid || pay.Status == domain.PaymentPending) {
			if s.payments == nil {
				return errors.New("cancel enrollment: payments are not configured")
			}
			settle := s.payments.Void
			if pay.Status == domain.PaymentPaid {
				settle = s.payments.Refund
			}
			ev, err := settle(ctx, tx, pay, reason)
			if err != nil {
				return err
			}
			if ev != nil {
				events = append(events, *ev)
			}
		}

		cancelled, err = tx.GetEnrollment(ctx, cur.ID)
		if err != nil {
			return err
		}
		events = append(events, enrollmentEvent(domain.EventEnrollmentCancelled, cancelled, now))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"enrollment_id": cancelled.ID,
		"actor":         actor.UserID,
		"reason":        reason,
	}).Info("[Enrollment] cancelled")
	publishAll(ctx, s.events, events)
	return cancelled, nil
}

// CompleteClass marks every confirmed enrollment of the class completed.
func (s *EnrollmentService) CompleteClass(ctx context.Context, actor Actor, classID uint) (int, error) {
	if !actor.IsAdmin() {
		return 0, ErrForbidden
	}
	var events []Event
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		events = nil
		if _, err := tx.LockClass(ctx, classID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrClassNotFound
			}
			return err
		}
		list, err := tx.ListEnrollmentsByClass(ctx, classID, domain.EnrollmentConfirmed)
		if err != nil {
			return err
		}
		now := s.now()
		for i := range list {
			e := &list[i]
			ok, err := tx.TransitionEnrollment(ctx, e.ID, domain.EnrollmentConfirmed, repository.EnrollmentPatch{
				Status:      domain.EnrollmentCompleted,
				CompletedAt: &now,
			})
			if err != nil {
				return fmt.Errorf("complete enrollment %d: %w", e.ID, err)
			}
			if !ok {
				continue
			}
			e.Status = domain.EnrollmentCompleted
			e.CompletedAt = &now
			events = append(events, enrollmentEvent(domain.EventEnrollmentCompleted, e, now))
		}
		return tx.MarkClassCompleted(ctx, classID, now)
	})
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{"class_id": classID, "completed": len(events)}).Info("[Enrollment] class completed")
	publishAll(ctx, s.events, events)
	return len(events), nil
}

func (s *EnrollmentService) GetEnrollment(ctx context.Context, actor Actor, id uint) (*models.Enrollment, error) {
	e, err := s.store.GetEnrollment(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(e.UserID) {
		return nil, ErrForbidden
	}
	return e, nil
}

func (s *EnrollmentService) ListMyEnrollments(ctx context.Context, actor Actor) ([]models.Enrollment, error) {
	return s.store.ListEnrollmentsByUser(ctx, actor.UserID)
}

func enrollmentEvent(typ string, e *models.Enrollment, at time.Time) Event {
	return Event{
		Type:         typ,
		UserID:       e.UserID,
		EnrollmentID: e.ID,
		OccurredAt:   at,
		Data: map[string]interface{}{
			"enrollment_number": e.EnrollmentNumber,
			"class_id":          e.ClassID,
			"status":            string(e.Status),
		},
	}
}
