package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"eduhub/internal/domain"
	"eduhub/internal/models"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngest_PaidCallback(t *testing.T) {
	f := newFixture(t)
	e := f.enroll(t, 1, f.addClass(nil).ID)
	p := f.invoice(t, e)

	res := f.webhooks.Ingest(context.Background(), signedRequest(callbackBody(t, p.ExternalID, "PAID", p.TotalAmount), "203.0.113.7"))

	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.True(t, res.Success)
	assert.Equal(t, domain.WebhookSuccess, res.Status)
	assert.Equal(t, domain.PaymentPaid, f.store.Payment(p.ID).Status)
	assert.Equal(t, domain.EnrollmentConfirmed, f.store.Enrollment(e.ID).Status)

	logs := f.store.WebhookLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.WebhookSuccess, logs[0].Status)
	assert.Equal(t, p.ExternalID, logs[0].ExternalID)
	assert.Equal(t, "invoice.paid", logs[0].EventType)
	assert.Equal(t, "203.0.113.7", logs[0].IPAddress)
	assert.NotNil(t, logs[0].ProcessedAt)
}

func TestIngest_RejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	e := f.enroll(t, 1, f.addClass(nil).ID)
	p := f.invoice(t, e)
	body := callbackBody(t, p.ExternalID, "PAID", p.TotalAmount)

	tests := []struct {
		name   string
		mutate func(r *WebhookRequest)
	}{
		{"missing token", func(r *WebhookRequest) { r.Token = "" }},
		{"wrong token", func(r *WebhookRequest) { r.Token = "xnd_cb_guess" }},
		{"tampered body", func(r *WebhookRequest) {
			r.Body = callbackBody(t, p.ExternalID, "PAID", 1)
		}},
		{"bad signature", func(r *WebhookRequest) { r.Signature = "deadbeef" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := signedRequest(body, "198.51.100.20")
			tt.mutate(&req)

			res := f.webhooks.Ingest(context.Background(), req)

			assert.Equal(t, http.StatusUnauthorized, res.HTTPStatus)
			assert.False(t, res.Success)
			assert.Equal(t, domain.WebhookInvalid, res.Status)
		})
	}
	assert.Equal(t, domain.PaymentPending, f.store.Payment(p.ID).Status)
	for _, l := range f.store.WebhookLogs() {
		assert.Equal(t, domain.WebhookInvalid, l.Status)
	}
	assert.Len(t, f.store.WebhookLogs(), len(tests))
}

func TestIngest_MalformedPayload(t *testing.T) {
	f := newFixture(t)
	oversized := callbackBody(t, "enr-"+strings.Repeat("9", 80), "PAID", 1)

	for _, body := range [][]byte{[]byte("status=PAID"), []byte(`{"status":"PAID"}`), oversized} {
		res := f.webhooks.Ingest(context.Background(), signedRequest(body, "198.51.100.21"))
		assert.Equal(t, http.StatusOK, res.HTTPStatus)
		assert.False(t, res.Success)
		assert.Equal(t, domain.WebhookInvalid, res.Status)
		assert.Equal(t, "malformed payload", res.Message)
	}

	logs := f.store.WebhookLogs()
	require.Len(t, logs, 3)
	var stored string
	require.NoError(t, json.Unmarshal(logs[0].Payload, &stored))
	assert.Equal(t, "status=PAID", stored)
	assert.Len(t, logs[2].ExternalID, 64)
}

func TestIngest_ReplayIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	e := f.enroll(t, 1, f.addClass(nil).ID)
	p := f.invoice(t, e)
	body := callbackBody(t, p.ExternalID, "PAID", p.TotalAmount)

	first := f.webhooks.Ingest(context.Background(), signedRequest(body, "203.0.113.7"))
	replay := f.webhooks.Ingest(context.Background(), signedRequest(body, "203.0.113.7"))

	assert.True(t, first.Success)
	assert.Equal(t, http.StatusOK, replay.HTTPStatus)
	assert.True(t, replay.Success)
	assert.Equal(t, domain.WebhookInvalid, replay.Status)
	assert.Equal(t, "duplicate delivery", replay.Message)
	assert.Equal(t, 1, f.events.Count(domain.EventEnrollmentConfirmed))
	assert.Equal(t, 1, f.events.Count(domain.EventPaymentConfirmed))
}

func TestIngest_UnknownPaymentIsAcknowledged(t *testing.T) {
	f := newFixture(t)

	res := f.webhooks.Ingest(context.Background(), signedRequest(callbackBody(t, "enr-unknown", "PAID", 10), "203.0.113.8"))

	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.True(t, res.Success)
	assert.Equal(t, "no matching payment", res.Message)
	assert.Equal(t, domain.WebhookSuccess, f.store.WebhookLogs()[0].Status)
}

func TestIngest_BlocksNoisySource(t *testing.T) {
	f := newFixture(t)
	e := f.enroll(t, 1, f.addClass(nil).ID)
	p := f.invoice(t, e)
	body := callbackBody(t, p.ExternalID, "PAID", p.TotalAmount)

	for i := 0; i < 10; i++ {
		bad := signedRequest(body, "192.0.2.66")
		bad.Token = "guess"
		require.Equal(t, http.StatusUnauthorized, f.webhooks.Ingest(context.Background(), bad).HTTPStatus)
	}

	blocked := f.webhooks.Ingest(context.Background(), signedRequest(body, "192.0.2.66"))
	assert.Equal(t, http.StatusTooManyRequests, blocked.HTTPStatus)
	assert.Equal(t, domain.PaymentPending, f.store.Payment(p.ID).Status)

	other := f.webhooks.Ingest(context.Background(), signedRequest(body, "203.0.113.7"))
	assert.Equal(t, http.StatusOK, other.HTTPStatus)
	assert.Equal(t, domain.PaymentPaid, f.store.Payment(p.ID).Status)
}

func TestIngest_FailureWindowExpires(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		bad := signedRequest([]byte(`{}`), "192.0.2.67")
		bad.Token = ""
		f.webhooks.Ingest(context.Background(), bad)
	}
	f.Advance(6 * time.Minute)

	res := f.webhooks.Ingest(context.Background(), signedRequest(callbackBody(t, "enr-x", "PAID", 1), "192.0.2.67"))

	assert.Equal(t, http.StatusOK, res.HTTPStatus)
}

func TestIngest_DispatchErrorIsRecorded(t *testing.T) {
	f := newFixture(t)
	e := f.enroll(t, 1, f.addClass(nil).ID)
	p := f.invoice(t, e)
	f.store.FailNext("TransitionPayment", errors.New("lock wait timeout exceeded"))

	res := f.webhooks.Ingest(context.Background(), signedRequest(callbackBody(t, p.ExternalID, "PAID", p.TotalAmount), "203.0.113.7"))

	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.False(t, res.Success)
	assert.Equal(t, domain.WebhookFailed, res.Status)
	assert.Equal(t, domain.PaymentPending, f.store.Payment(p.ID).Status)
	assert.Equal(t, domain.EnrollmentPending, f.store.Enrollment(e.ID).Status)
	logs := f.store.WebhookLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.WebhookFailed, logs[0].Status)
	assert.Contains(t, logs[0].ErrorMessage, "lock wait timeout")

	// the provider redelivers and the payment goes through
	retry := f.webhooks.Ingest(context.Background(), signedRequest(callbackBody(t, p.ExternalID, "PAID", p.TotalAmount), "203.0.113.7"))
	assert.True(t, retry.Success)
	assert.Equal(t, domain.PaymentPaid, f.store.Payment(p.ID).Status)
}

func TestIngest_PaidAfterCancellationIsRefunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	class := f.addClass(nil)
	e := f.enroll(t, 1, class.ID)
	p := f.invoice(t, e)
	_, err := f.enrollments.CancelEnrollment(ctx, student(1), e.ID, "changed plans")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentExpired, f.store.Payment(p.ID).Status)

	// the student finished checkout before the invoice was closed
	f.gw.SetStatus(p.ProviderInvoiceID, domain.ProviderStatusPaid, p.TotalAmount)
	f.events.Reset()
	res := f.webhooks.Ingest(ctx, signedRequest(callbackBody(t, p.ExternalID, "PAID", p.TotalAmount), "203.0.113.7"))

	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.True(t, res.Success)
	assert.Equal(t, domain.WebhookSuccess, res.Status)
	got := f.store.Payment(p.ID)
	assert.Equal(t, domain.PaymentRefunded, got.Status)
	assert.Equal(t, p.TotalAmount, got.PaidAmount)
	assert.Equal(t, p.TotalAmount, got.RefundAmount)
	assert.Equal(t, lateRefundReason, got.RefundReason)
	assert.Equal(t, []string{p.ProviderInvoiceID}, f.gw.Refunds())
	assert.Equal(t, domain.EnrollmentCancelled, f.store.Enrollment(e.ID).Status)
	assert.Equal(t, 0, f.store.Class(class.ID).EnrolledCount)
	assert.Equal(t, 0, f.store.Class(class.ID).ConfirmedCount)
	assert.Equal(t, []string{domain.EventPaymentConfirmed, domain.EventPaymentRefunded}, f.events.Types())

	// nothing is left pending for the reconciler to retry
	f.Advance(25 * time.Hour)
	for i := 0; i < 3; i++ {
		n, err := f.payments.ReconcileOverdue(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	assert.Equal(t, domain.PaymentRefunded, f.store.Payment(p.ID).Status)
}

type sourceSpy struct{ sources []string }

func (s *sourceSpy) ApplyStatusUpdate(_ context.Context, u StatusUpdate) (*StatusResult, error) {
	s.sources = append(s.sources, u.Source)
	return &StatusResult{Payment: &models.Payment{ID: 1, Status: domain.PaymentPaid}, Outcome: OutcomeApplied}, nil
}

func TestIngest_LabelsUpdatesWithProvider(t *testing.T) {
	f := newFixture(t)
	spy := &sourceSpy{}
	log, _ := logtest.NewNullLogger()
	w := NewWebhookIngestor(f.store, spy, f.webhooks.cfg, log)
	w.now = f.Now

	res := w.Ingest(context.Background(), signedRequest(callbackBody(t, "enr-label", "PAID", 1), "203.0.113.11"))

	require.True(t, res.Success)
	assert.Equal(t, []string{"webhook:xendit"}, spy.sources)
	assert.Equal(t, domain.SourceXendit, f.store.WebhookLogs()[0].Source)
}

func TestIngest_AuditHeadersAreMasked(t *testing.T) {
	f := newFixture(t)
	req := signedRequest(callbackBody(t, "enr-y", "EXPIRED", 0), "203.0.113.9")
	req.Headers.Set("Authorization", "Basic c2VjcmV0")
	req.Headers.Set("User-Agent", "Xendit-Webhook/1.0")

	f.webhooks.Ingest(context.Background(), req)

	var headers map[string]string
	require.NoError(t, json.Unmarshal(f.store.WebhookLogs()[0].Headers, &headers))
	assert.Equal(t, "xnd_cb_4...", headers["X-Callback-Token"])
	assert.Equal(t, req.Signature[:8]+"...", headers["X-Callback-Signature"])
	assert.Equal(t, "Xendit-Webhook/1.0", headers["User-Agent"])
	assert.NotContains(t, headers, "Authorization")
}

func TestIngest_AuditWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailNext("CreateWebhookLog", errors.New("connection refused"))

	res := f.webhooks.Ingest(context.Background(), signedRequest(callbackBody(t, "enr-z", "PAID", 1), "203.0.113.10"))

	assert.Equal(t, http.StatusInternalServerError, res.HTTPStatus)
	assert.Empty(t, f.store.WebhookLogs())
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "abcdefgh...", maskSecret("abcdefghijkl"))
	assert.Equal(t, "ab...", maskSecret("abcd"))
	assert.Equal(t, "...", maskSecret(""))
}
