package domain

// StatusDisplay is what the back office shows for a status badge.
// Weight orders statuses in listings (lower first).
type StatusDisplay struct {
	Label  string `json:"label"`
	Color  string `json:"color"`
	Weight int    `json:"weight"`
}

var enrollmentDisplay = map[EnrollmentStatus]StatusDisplay{
	EnrollmentPending:     {Label: "Pending payment", Color: "warning", Weight: 10},
	EnrollmentConfirmed:   {Label: "Confirmed", Color: "success", Weight: 20},
	EnrollmentWaitingList: {Label: "Waiting list", Color: "info", Weight: 30},
	EnrollmentCompleted:   {Label: "Completed", Color: "primary", Weight: 40},
	EnrollmentCancelled:   {Label: "Cancelled", Color: "danger", Weight: 50},
}

var paymentDisplay = map[PaymentStatus]StatusDisplay{
	PaymentPending:  {Label: "Awaiting payment", Color: "warning", Weight: 10},
	PaymentPaid:     {Label: "Paid", Color: "success", Weight: 20},
	PaymentFailed:   {Label: "Failed", Color: "danger", Weight: 30},
	PaymentExpired:  {Label: "Expired", Color: "gray", Weight: 40},
	PaymentRefunded: {Label: "Refunded", Color: "info", Weight: 50},
}

var webhookDisplay = map[WebhookStatus]StatusDisplay{
	WebhookSuccess: {Label: "Processed", Color: "success", Weight: 10},
	WebhookFailed:  {Label: "Failed", Color: "danger", Weight: 20},
	WebhookInvalid: {Label: "Rejected", Color: "warning", Weight: 30},
}

var unknownDisplay = StatusDisplay{Label: "Unknown", Color: "gray", Weight: 99}

func EnrollmentDisplay(s EnrollmentStatus) StatusDisplay {
	if d, ok := enrollmentDisplay[s]; ok {
		return d
	}
	return unknownDisplay
}

func PaymentDisplay(s PaymentStatus) StatusDisplay {
	if d, ok := paymentDisplay[s]; ok {
		return d
	}
	return unknownDisplay
}

func WebhookDisplay(s WebhookStatus) StatusDisplay {
	if d, ok := webhookDisplay[s]; ok {
		return d
	}
	return unknownDisplay
}
