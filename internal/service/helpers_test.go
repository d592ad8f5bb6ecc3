package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"eduhub/config"
	"eduhub/internal/domain"
	"eduhub/internal/models"
	"eduhub/internal/repository/memstore"
	"eduhub/pkg/payment"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

const callbackToken = "xnd_cb_4f1c9a7e2b"

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) Count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type fixture struct {
	store       *memstore.Store
	gw          *payment.StubGateway
	events      *recorder
	enrollments *EnrollmentService
	payments    *PaymentService
	webhooks    *WebhookIngestor

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memstore.New(),
		gw:     payment.NewStubGateway(),
		events: &recorder{},
		now:    time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	f.store.SetNow(f.Now)
	f.gw.Now = f.Now
	log, _ := logtest.NewNullLogger()

	f.enrollments = NewEnrollmentService(f.store, f.events, log)
	f.enrollments.now = f.Now
	f.payments = NewPaymentService(f.store, f.gw, f.enrollments, f.events, config.PaymentConfig{
		Currency:      "IDR",
		InvoiceExpiry: 24 * time.Hour,
	}, log)
	f.payments.now = f.Now
	f.enrollments.SetPayments(f.payments)
	f.webhooks = NewWebhookIngestor(f.store, f.payments, config.WebhookConfig{
		CallbackToken:   callbackToken,
		TokenHeader:     "X-Callback-Token",
		SignatureHeader: "X-Callback-Signature",
		MaxFailures:     10,
		FailureWindow:   5 * time.Minute,
		ReplayWindow:    24 * time.Hour,
	}, log)
	f.webhooks.now = f.Now
	return f
}

func (f *fixture) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fixture) addClass(mod func(c *models.ClassOffering)) *models.ClassOffering {
	c := models.ClassOffering{
		Name:     "Conversational English A1",
		Price:    1_000_000,
		Currency: "IDR",
		IsActive: true,
		Capacity: 20,
	}
	if mod != nil {
		mod(&c)
	}
	return f.store.AddClass(c)
}

func student(id uint) Actor { return Actor{UserID: id, Role: domain.RoleStudent} }

var adminActor = Actor{UserID: 900, Role: domain.RoleAdmin}

func validInput(classID uint) EnrollmentInput {
	return EnrollmentInput{
		ClassID:      classID,
		StudentName:  "Budi Santoso",
		StudentEmail: "budi@example.com",
		StudentPhone: "+6281234567890",
		StudentAge:   21,
	}
}

func (f *fixture) enroll(t *testing.T, userID, classID uint) *models.Enrollment {
	t.Helper()
	e, err := f.enrollments.CreateEnrollment(context.Background(), student(userID), validInput(classID))
	require.NoError(t, err)
	return e
}

func (f *fixture) invoice(t *testing.T, e *models.Enrollment) *models.Payment {
	t.Helper()
	p, err := f.payments.CreatePayment(context.Background(), student(e.UserID), e.ID)
	require.NoError(t, err)
	return p
}

func callbackBody(t *testing.T, externalID, status string, paid int64) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"id":          "inv_remote",
		"external_id": externalID,
		"status":      status,
		"paid_amount": paid,
		"paid_at":     "2026-03-14T10:00:00Z",
	})
	require.NoError(t, err)
	return b
}

func signedRequest(body []byte, ip string) WebhookRequest {
	return WebhookRequest{
		Source:    domain.SourceXendit,
		Token:     callbackToken,
		Signature: payment.Sign(callbackToken, body),
		Body:      body,
		Headers:   http.Header{"Content-Type": {"application/json"}},
		IP:        ip,
	}
}
