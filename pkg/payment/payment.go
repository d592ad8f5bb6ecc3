package payment

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Customer struct {
	GivenNames   string
	Email        string
	MobileNumber string
}

type Item struct {
	Name     string
	Quantity int
	Price    int64
}

// InvoiceRequest describes one invoice to open with the provider. Amounts are minor units.
type InvoiceRequest struct {
	ExternalID         string
	Amount             int64
	Currency           string
	Description        string
	Duration           time.Duration
	Customer           Customer
	Items              []Item
	SuccessRedirectURL string
	FailureRedirectURL string
}

type Invoice struct {
	ID         string
	ExternalID string
	InvoiceURL string
	Status     string
	ExpiryDate time.Time
}

// InvoiceStatus is the provider's current view of an invoice, as returned by polling.
type InvoiceStatus struct {
	ID         string
	ExternalID string
	Status     string
	PaidAmount int64
	PaidAt     *time.Time
}

type Gateway interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	FetchInvoice(ctx context.Context, invoiceID string) (*InvoiceStatus, error)
}

// Refunder is implemented by gateways that can return money for a paid invoice.
type Refunder interface {
	RefundInvoice(ctx context.Context, invoiceID string, amount int64, reason string) error
}

// Expirer is implemented by gateways that can close an unpaid invoice early.
type Expirer interface {
	ExpireInvoice(ctx context.Context, invoiceID string) error
}

var ErrRefundNotSupported = errors.New("payment: provider does not support refunds")

// GatewayError is any failure talking to the provider. Retryable covers timeouts,
// transport errors and 5xx/429 answers; it never means the payment itself failed.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Retryable  bool
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment gateway %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func IsRetryable(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Retryable
}
