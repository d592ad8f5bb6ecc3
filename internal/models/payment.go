package models

import (
	"time"

	"eduhub/internal/domain"
)

// Payment is the local record of one invoice for one enrollment. Amounts are minor units.
type Payment struct {
	ID                 uint                 `gorm:"primaryKey" json:"id"`
	EnrollmentID       uint                 `gorm:"not null;uniqueIndex" json:"enrollment_id"`
	UserID             uint                 `gorm:"not null;index" json:"user_id"`
	InvoiceNumber      string               `gorm:"size:32;uniqueIndex;not null" json:"invoice_number"`
	Amount             int64                `gorm:"not null" json:"amount"`
	AdminFee           int64                `gorm:"not null" json:"admin_fee"`
	TotalAmount        int64                `gorm:"not null" json:"total_amount"`
	Currency           string               `gorm:"size:3;not null;default:'IDR'" json:"currency"`
	ExternalID         string               `gorm:"size:64;uniqueIndex;not null" json:"external_id"`
	ProviderInvoiceID  string               `gorm:"size:255;index" json:"provider_invoice_id"`
	ProviderInvoiceURL string               `gorm:"size:1024" json:"provider_invoice_url"`
	Status             domain.PaymentStatus `gorm:"size:20;not null;index:idx_payment_status_expiry" json:"status"`
	ExpiresAt          *time.Time           `gorm:"index:idx_payment_status_expiry" json:"expires_at"`
	PaidAt             *time.Time           `json:"paid_at"`
	PaidAmount         int64                `gorm:"not null;default:0" json:"paid_amount"`
	FailedAt           *time.Time           `json:"failed_at"`
	ExpiredAt          *time.Time           `json:"expired_at"`
	RefundedAt         *time.Time           `json:"refunded_at"`
	RefundReason       string               `gorm:"size:500" json:"refund_reason"`
	RefundAmount       int64                `gorm:"not null;default:0" json:"refund_amount"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
