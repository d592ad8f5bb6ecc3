package payment

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StubGateway keeps invoices in memory. Used in development (no provider keys) and tests.
type StubGateway struct {
	mu       sync.Mutex
	seq      int
	invoices map[string]*stubInvoice
	refunds  []string
	failNext error
	Now      func() time.Time
}

type stubInvoice struct {
	req    InvoiceRequest
	status InvoiceStatus
	expiry time.Time
}

func NewStubGateway() *StubGateway {
	return &StubGateway{invoices: map[string]*stubInvoice{}, Now: time.Now}
}

// FailNext makes the next gateway call return err.
func (s *StubGateway) FailNext(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *StubGateway) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *StubGateway) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	s.seq++
	id := fmt.Sprintf("stub_inv_%d", s.seq)
	d := req.Duration
	if d <= 0 {
		d = 24 * time.Hour
	}
	expiry := s.Now().Add(d)
	s.invoices[id] = &stubInvoice{
		req:    req,
		status: InvoiceStatus{ID: id, ExternalID: req.ExternalID, Status: "PENDING"},
		expiry: expiry,
	}
	return &Invoice{
		ID:         id,
		ExternalID: req.ExternalID,
		InvoiceURL: "https://checkout.stub.local/" + id,
		Status:     "PENDING",
		ExpiryDate: expiry,
	}, nil
}

func (s *StubGateway) FetchInvoice(ctx context.Context, invoiceID string) (*InvoiceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	inv, ok := s.invoices[invoiceID]
	if !ok {
		return nil, &GatewayError{Op: "fetch_invoice", StatusCode: 404, Body: `{"error_code":"INVOICE_NOT_FOUND_ERROR"}`}
	}
	st := inv.status
	return &st, nil
}

func (s *StubGateway) RefundInvoice(ctx context.Context, invoiceID string, amount int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.refunds = append(s.refunds, invoiceID)
	return nil
}

func (s *StubGateway) ExpireInvoice(ctx context.Context, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	inv, ok := s.invoices[invoiceID]
	if !ok {
		return &GatewayError{Op: "expire_invoice", StatusCode: 404, Body: `{"error_code":"INVOICE_NOT_FOUND_ERROR"}`}
	}
	inv.status.Status = "EXPIRED"
	return nil
}

// SetStatus simulates the customer paying (or the invoice lapsing) on the provider side.
func (s *StubGateway) SetStatus(invoiceID, status string, paidAmount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[invoiceID]
	if !ok {
		return
	}
	inv.status.Status = status
	inv.status.PaidAmount = paidAmount
	if status == "PAID" || status == "SETTLED" {
		t := s.Now()
		inv.status.PaidAt = &t
	}
}

// Request returns what was sent for invoiceID.
func (s *StubGateway) Request(invoiceID string) (InvoiceRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[invoiceID]
	if !ok {
		return InvoiceRequest{}, false
	}
	return inv.req, true
}

func (s *StubGateway) InvoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invoices)
}

func (s *StubGateway) Refunds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.refunds...)
}
