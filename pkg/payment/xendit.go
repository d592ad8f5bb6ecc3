package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultXenditBaseURL = "https://api.xendit.co"

// XenditGateway talks to the Xendit invoice API (/v2/invoices).
type XenditGateway struct {
	BaseURL   string
	SecretKey string
	client    *http.Client
	log       logrus.FieldLogger
}

func NewXenditGateway(baseURL, secretKey string, timeout time.Duration, log logrus.FieldLogger) *XenditGateway {
	if baseURL == "" {
		baseURL = defaultXenditBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &XenditGateway{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
		log:       log.WithField("component", "xendit"),
	}
}

type xenditCustomer struct {
	GivenNames   string `json:"given_names,omitempty"`
	Email        string `json:"email,omitempty"`
	MobileNumber string `json:"mobile_number,omitempty"`
}

type xenditItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

type xenditInvoiceReq struct {
	ExternalID         string          `json:"external_id"`
	Amount             int64           `json:"amount"`
	Currency           string          `json:"currency,omitempty"`
	Description        string          `json:"description,omitempty"`
	InvoiceDuration    int64           `json:"invoice_duration,omitempty"`
	Customer           *xenditCustomer `json:"customer,omitempty"`
	Items              []xenditItem    `json:"items,omitempty"`
	SuccessRedirectURL string          `json:"success_redirect_url,omitempty"`
	FailureRedirectURL string          `json:"failure_redirect_url,omitempty"`
}

// xenditInvoice is the shape returned by both POST and GET /v2/invoices.
type xenditInvoice struct {
	ID         string  `json:"id"`
	ExternalID string  `json:"external_id"`
	Status     string  `json:"status"`
	Amount     float64 `json:"amount"`
	PaidAmount float64 `json:"paid_amount"`
	PaidAt     string  `json:"paid_at"`
	InvoiceURL string  `json:"invoice_url"`
	ExpiryDate string  `json:"expiry_date"`
}

func (g *XenditGateway) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	payload := xenditInvoiceReq{
		ExternalID:         req.ExternalID,
		Amount:             req.Amount,
		Currency:           req.Currency,
		Description:        req.Description,
		InvoiceDuration:    int64(req.Duration / time.Second),
		SuccessRedirectURL: req.SuccessRedirectURL,
		FailureRedirectURL: req.FailureRedirectURL,
	}
	if req.Customer != (Customer{}) {
		payload.Customer = &xenditCustomer{
			GivenNames:   req.Customer.GivenNames,
			Email:        req.Customer.Email,
			MobileNumber: req.Customer.MobileNumber,
		}
	}
	for _, it := range req.Items {
		payload.Items = append(payload.Items, xenditItem{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var out xenditInvoice
	if err := g.do(ctx, "create_invoice", http.MethodPost, "/v2/invoices", body, &out); err != nil {
		return nil, err
	}
	inv := &Invoice{
		ID:         out.ID,
		ExternalID: out.ExternalID,
		InvoiceURL: out.InvoiceURL,
		Status:     out.Status,
	}
	if t, err := time.Parse(time.RFC3339, out.ExpiryDate); err == nil {
		inv.ExpiryDate = t
	}
	g.log.WithFields(logrus.Fields{
		"external_id": out.ExternalID,
		"invoice_id":  out.ID,
	}).Info("[Xendit] invoice created")
	return inv, nil
}

func (g *XenditGateway) FetchInvoice(ctx context.Context, invoiceID string) (*InvoiceStatus, error) {
	var out xenditInvoice
	if err := g.do(ctx, "fetch_invoice", http.MethodGet, "/v2/invoices/"+url.PathEscape(invoiceID), nil, &out); err != nil {
		return nil, err
	}
	st := &InvoiceStatus{
		ID:         out.ID,
		ExternalID: out.ExternalID,
		Status:     out.Status,
		PaidAmount: int64(math.Round(out.PaidAmount)),
	}
	if out.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, out.PaidAt); err == nil {
			st.PaidAt = &t
		}
	}
	return st, nil
}

// ExpireInvoice closes an unpaid invoice so the checkout page stops accepting money.
func (g *XenditGateway) ExpireInvoice(ctx context.Context, invoiceID string) error {
	var out xenditInvoice
	if err := g.do(ctx, "expire_invoice", http.MethodPost, "/invoices/"+url.PathEscape(invoiceID)+"/expire!", nil, &out); err != nil {
		return err
	}
	g.log.WithFields(logrus.Fields{
		"invoice_id": out.ID,
		"status":     out.Status,
	}).Info("[Xendit] invoice expired")
	return nil
}

// RefundInvoice: invoices cannot be refunded through this API; refunds are settled
// out of band and only recorded locally.
func (g *XenditGateway) RefundInvoice(ctx context.Context, invoiceID string, amount int64, reason string) error {
	return ErrRefundNotSupported
}

func (g *XenditGateway) do(ctx context.Context, op, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, reader)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	req.SetBasicAuth(g.SecretKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.client.Do(req)
	if err != nil {
		// timeouts and connection failures say nothing about the invoice
		return &GatewayError{Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Op: op, Retryable: true, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.log.WithFields(logrus.Fields{
			"op":     op,
			"status": resp.StatusCode,
			"body":   string(respBody),
		}).Warn("[Xendit] request rejected")
		return &GatewayError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody), Err: errors.New("malformed response")}
	}
	return nil
}
