package service

import "net/http"

// BusinessError is a rule violation the caller can act on. Code is stable and
// safe to branch on; Message is meant for direct display.
type BusinessError struct {
	Code    string            `json:"code"`
	Message string            `json:"error"`
	Status  int               `json:"-"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *BusinessError) Error() string { return e.Message }

// Is matches on Code so errors.Is works against the sentinels below even after
// a message has been customised with WithMessage.
func (e *BusinessError) Is(target error) bool {
	t, ok := target.(*BusinessError)
	return ok && t.Code == e.Code
}

func (e *BusinessError) WithMessage(msg string) *BusinessError {
	cp := *e
	cp.Message = msg
	return &cp
}

func newBusinessError(code string, status int, msg string) *BusinessError {
	return &BusinessError{Code: code, Message: msg, Status: status}
}

var (
	ErrClassNotFound              = newBusinessError("class_not_found", http.StatusNotFound, "class not found")
	ErrClassInactive              = newBusinessError("class_inactive", http.StatusUnprocessableEntity, "this class is not open for enrollment")
	ErrTestResultRequired         = newBusinessError("test_result_required", http.StatusUnprocessableEntity, "a placement test result is required for this class")
	ErrScoreTooLow                = newBusinessError("score_too_low", http.StatusUnprocessableEntity, "placement test score is below the minimum for this class")
	ErrAgeOutOfRange              = newBusinessError("age_out_of_range", http.StatusUnprocessableEntity, "student age is outside the range allowed for this class")
	ErrCapacityFull               = newBusinessError("capacity_full", http.StatusConflict, "no seats left in this class or schedule")
	ErrDuplicateEnrollment        = newBusinessError("duplicate_enrollment", http.StatusConflict, "you already have an active enrollment in this class")
	ErrScheduleMismatch           = newBusinessError("schedule_mismatch", http.StatusUnprocessableEntity, "the selected schedule does not belong to this class")
	ErrEnrollmentNotFound         = newBusinessError("enrollment_not_found", http.StatusNotFound, "enrollment not found")
	ErrEnrollmentCompleted        = newBusinessError("enrollment_completed", http.StatusConflict, "a completed enrollment cannot be cancelled")
	ErrEnrollmentAlreadyCancelled = newBusinessError("enrollment_already_cancelled", http.StatusConflict, "this enrollment is already cancelled")
	ErrEnrollmentNotPending       = newBusinessError("enrollment_not_pending", http.StatusConflict, "payment can only be created for a pending enrollment")
	ErrInvalidTransition          = newBusinessError("invalid_transition", http.StatusConflict, "this status change is not allowed")
	ErrForbidden                  = newBusinessError("forbidden", http.StatusForbidden, "you do not have access to this resource")
	ErrPaymentNotFound            = newBusinessError("payment_not_found", http.StatusNotFound, "payment not found")
	ErrPaymentAlreadyPaid         = newBusinessError("payment_already_paid", http.StatusConflict, "this enrollment has already been paid")
	ErrPaymentNotPaid             = newBusinessError("payment_not_paid", http.StatusConflict, "only a paid payment can be refunded")
	ErrInvalidForm                = newBusinessError("invalid_form", http.StatusUnprocessableEntity, "some fields are invalid")
)
