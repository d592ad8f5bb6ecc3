package domain

const (
	RoleStudent = "STUDENT"
	RoleAdmin   = "ADMIN"
)

// Webhook sources accepted on /webhooks/:provider.
const (
	SourceXendit = "xendit"
)

// Provider invoice status vocabulary (as received from webhooks and polling).
const (
	ProviderStatusPending = "PENDING"
	ProviderStatusPaid    = "PAID"
	ProviderStatusSettled = "SETTLED"
	ProviderStatusExpired = "EXPIRED"
	ProviderStatusFailed  = "FAILED"
)

// Notification / event types.
const (
	EventEnrollmentCreated   = "ENROLLMENT_CREATED"
	EventEnrollmentConfirmed = "ENROLLMENT_CONFIRMED"
	EventEnrollmentCancelled = "ENROLLMENT_CANCELLED"
	EventEnrollmentCompleted = "ENROLLMENT_COMPLETED"
	EventPaymentCreated      = "PAYMENT_CREATED"
	EventPaymentConfirmed    = "PAYMENT_CONFIRMED"
	EventPaymentFailed       = "PAYMENT_FAILED"
	EventPaymentExpired      = "PAYMENT_EXPIRED"
	EventPaymentRefunded     = "PAYMENT_REFUNDED"
)

// MinorAgeThreshold: students younger than this need parent contact details.
const MinorAgeThreshold = 17

const (
	MinStudentAge = 3
	MaxStudentAge = 100
)
