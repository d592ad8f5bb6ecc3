package handler

import (
	"time"

	"eduhub/internal/domain"
	"eduhub/internal/models"
)

type enrollmentView struct {
	models.Enrollment
	Display domain.StatusDisplay `json:"status_display"`
}

func newEnrollmentView(e *models.Enrollment) enrollmentView {
	return enrollmentView{Enrollment: *e, Display: domain.EnrollmentDisplay(e.Status)}
}

// paymentView is the student-facing part of a payment; provider ids stay internal.
type paymentView struct {
	ID            uint                 `json:"id"`
	EnrollmentID  uint                 `json:"enrollment_id"`
	InvoiceNumber string               `json:"invoice_number"`
	Amount        int64                `json:"amount"`
	AdminFee      int64                `json:"admin_fee"`
	TotalAmount   int64                `json:"total_amount"`
	Currency      string               `json:"currency"`
	Status        domain.PaymentStatus `json:"status"`
	Display       domain.StatusDisplay `json:"status_display"`
	InvoiceURL    string               `json:"invoice_url"`
	ExpiresAt     *time.Time           `json:"expires_at"`
	PaidAt        *time.Time           `json:"paid_at"`
	PaidAmount    int64                `json:"paid_amount"`
	RefundedAt    *time.Time           `json:"refunded_at,omitempty"`
	RefundAmount  int64                `json:"refund_amount,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

func newPaymentView(p *models.Payment) paymentView {
	return paymentView{
		ID:            p.ID,
		EnrollmentID:  p.EnrollmentID,
		InvoiceNumber: p.InvoiceNumber,
		Amount:        p.Amount,
		AdminFee:      p.AdminFee,
		TotalAmount:   p.TotalAmount,
		Currency:      p.Currency,
		Status:        p.Status,
		Display:       domain.PaymentDisplay(p.Status),
		InvoiceURL:    p.ProviderInvoiceURL,
		ExpiresAt:     p.ExpiresAt,
		PaidAt:        p.PaidAt,
		PaidAmount:    p.PaidAmount,
		RefundedAt:    p.RefundedAt,
		RefundAmount:  p.RefundAmount,
		CreatedAt:     p.CreatedAt,
	}
}
