package domain

type EnrollmentStatus string

const (
	EnrollmentPending     EnrollmentStatus = "pending"
	EnrollmentConfirmed   EnrollmentStatus = "confirmed"
	EnrollmentCancelled   EnrollmentStatus = "cancelled"
	EnrollmentCompleted   EnrollmentStatus = "completed"
	EnrollmentWaitingList EnrollmentStatus = "waiting_list"
)

// Active enrollments hold a seat and block a second enrollment in the same class.
func (s EnrollmentStatus) Active() bool {
	return s == EnrollmentPending || s == EnrollmentConfirmed
}

func (s EnrollmentStatus) Valid() bool {
	_, ok := enrollmentDisplay[s]
	return ok
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentExpired  PaymentStatus = "expired"
	PaymentRefunded PaymentStatus = "refunded"
)

// Final reports whether no provider update may move the payment out of s.
func (s PaymentStatus) Final() bool {
	return s == PaymentPaid || s == PaymentRefunded
}

// Retryable reports whether a new invoice may replace a payment in state s.
func (s PaymentStatus) Retryable() bool {
	return s == PaymentFailed || s == PaymentExpired
}

func (s PaymentStatus) Valid() bool {
	_, ok := paymentDisplay[s]
	return ok
}

type WebhookStatus string

const (
	WebhookSuccess WebhookStatus = "success"
	WebhookFailed  WebhookStatus = "failed"
	WebhookInvalid WebhookStatus = "invalid"
)

// MapProviderStatus translates the provider vocabulary. ok is false when the
// status carries no transition (the payment stays as it is).
func MapProviderStatus(providerStatus string) (PaymentStatus, bool) {
	switch providerStatus {
	case ProviderStatusPaid, ProviderStatusSettled:
		return PaymentPaid, true
	case ProviderStatusExpired:
		return PaymentExpired, true
	case ProviderStatusFailed:
		return PaymentFailed, true
	}
	return "", false
}
