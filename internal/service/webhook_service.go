package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"eduhub/config"
	"eduhub/internal/domain"
	"eduhub/internal/metrics"
	"eduhub/internal/models"
	"eduhub/internal/repository"
	"eduhub/pkg/payment"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	maxStoredPayload = 64 << 10
	// payments.external_id and webhook_logs.external_id column width
	maxExternalID = 64
)

// headers kept in the audit row; anything else (cookies, auth) is dropped
var auditHeaders = []string{
	"Content-Type",
	"User-Agent",
	"Webhook-Id",
	"X-Forwarded-For",
	"X-Real-Ip",
	"X-Request-Id",
}

// WebhookRequest is one inbound provider callback as received by the handler.
type WebhookRequest struct {
	Source    string
	Token     string
	Signature string
	Body      []byte
	Headers   http.Header
	IP        string
}

// WebhookResult is what the handler answers. Success false with status 200 tells
// the provider the callback arrived but could not be applied.
type WebhookResult struct {
	HTTPStatus int
	Status     domain.WebhookStatus
	Success    bool
	Message    string
	LogID      uint
}

type StatusApplier interface {
	ApplyStatusUpdate(ctx context.Context, u StatusUpdate) (*StatusResult, error)
}

type webhookPayload struct {
	ID         string  `json:"id"`
	ExternalID string  `json:"external_id"`
	Status     string  `json:"status"`
	Event      string  `json:"event"`
	PaidAmount float64 `json:"paid_amount"`
	PaidAt     string  `json:"paid_at"`
}

// WebhookIngestor authenticates, deduplicates and dispatches provider callbacks.
// Every call leaves exactly one WebhookLog row behind.
type WebhookIngestor struct {
	logs   repository.WebhookLogStore
	ledger StatusApplier
	cfg    config.WebhookConfig
	log    *logrus.Entry
	now    func() time.Time
}

func NewWebhookIngestor(logs repository.WebhookLogStore, ledger StatusApplier, cfg config.WebhookConfig, log logrus.FieldLogger) *WebhookIngestor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WebhookIngestor{
		logs:   logs,
		ledger: ledger,
		cfg:    cfg,
		log:    log.WithField("component", "webhook"),
		now:    time.Now,
	}
}

func (w *WebhookIngestor) Ingest(ctx context.Context, req WebhookRequest) WebhookResult {
	now := w.now()
	var body webhookPayload
	parsed := json.Unmarshal(req.Body, &body) == nil

	row := &models.WebhookLog{
		Source:     req.Source,
		EventType:  eventType(body),
		ExternalID: truncate(body.ExternalID, maxExternalID),
		Payload:    storedPayload(req.Body, parsed),
		Headers:    w.auditHeaders(req),
		IPAddress:  req.IP,
		Status:     domain.WebhookFailed,
		CreatedAt:  now,
	}
	entry := w.log.WithFields(logrus.Fields{
		"source":      req.Source,
		"ip":          req.IP,
		"external_id": row.ExternalID,
	})
	if err := w.logs.CreateWebhookLog(ctx, row); err != nil {
		entry.WithError(err).Error("[Webhook] could not write audit row")
		metrics.RecordWebhook(req.Source, "error")
		return WebhookResult{HTTPStatus: http.StatusInternalServerError, Status: domain.WebhookFailed, Message: "internal error"}
	}

	finish := func(status domain.WebhookStatus, code int, success bool, msg string) WebhookResult {
		var processed *time.Time
		if status == domain.WebhookSuccess {
			t := w.now()
			processed = &t
		}
		if err := w.logs.FinishWebhookLog(ctx, row.ID, status, msg, processed); err != nil {
			entry.WithError(err).Error("[Webhook] could not update audit row")
		}
		outcome := string(status)
		if code == http.StatusTooManyRequests {
			outcome = "blocked"
		}
		metrics.RecordWebhook(req.Source, outcome)
		return WebhookResult{HTTPStatus: code, Status: status, Success: success, Message: msg, LogID: row.ID}
	}

	failures, err := w.logs.CountRecentFailures(ctx, req.IP, now.Add(-w.cfg.FailureWindow), row.ID)
	if err != nil {
		entry.WithError(err).Warn("[Webhook] failure count unavailable")
	} else if w.cfg.MaxFailures > 0 && failures >= int64(w.cfg.MaxFailures) {
		entry.WithField("failures", failures).Warn("[Webhook] source blocked after repeated failures")
		return finish(domain.WebhookInvalid, http.StatusTooManyRequests, false, "too many failed attempts")
	}

	if req.Token == "" {
		entry.Warn("[Webhook] missing callback token")
		return finish(domain.WebhookInvalid, http.StatusUnauthorized, false, "missing callback token")
	}
	if !payment.VerifySignature(w.cfg.CallbackToken, req.Token, req.Signature, req.Body) {
		entry.Warn("[Webhook] invalid callback token or signature")
		return finish(domain.WebhookInvalid, http.StatusUnauthorized, false, "invalid callback token or signature")
	}

	// acknowledged so the provider does not redeliver a body that will never parse
	if !parsed || body.ExternalID == "" || len(body.ExternalID) > maxExternalID {
		entry.Warn("[Webhook] malformed payload")
		return finish(domain.WebhookInvalid, http.StatusOK, false, "malformed payload")
	}

	dup, err := w.logs.HasRecentSuccess(ctx, body.ExternalID, req.Source, now.Add(-w.cfg.ReplayWindow), row.ID)
	if err != nil {
		entry.WithError(err).Warn("[Webhook] replay check unavailable")
	} else if dup {
		entry.Info("[Webhook] duplicate delivery ignored")
		return finish(domain.WebhookInvalid, http.StatusOK, true, "duplicate delivery")
	}

	update := StatusUpdate{
		ExternalID:     body.ExternalID,
		ProviderStatus: strings.ToUpper(body.Status),
		PaidAmount:     int64(math.Round(body.PaidAmount)),
		Source:         WebhookSource(req.Source),
	}
	if body.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, body.PaidAt); err == nil {
			update.PaidAt = &t
		}
	}
	res, err := w.ledger.ApplyStatusUpdate(ctx, update)
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		entry.Warn("[Webhook] no matching payment")
		return finish(domain.WebhookSuccess, http.StatusOK, true, "no matching payment")
	case err != nil:
		entry.WithError(err).Error("[Webhook] processing failed")
		return finish(domain.WebhookFailed, http.StatusOK, false, err.Error())
	}

	entry.WithFields(logrus.Fields{
		"payment_id": res.Payment.ID,
		"outcome":    res.Outcome,
		"status":     res.Payment.Status,
	}).Info("[Webhook] processed")
	return finish(domain.WebhookSuccess, http.StatusOK, true, "processed: "+string(res.Outcome))
}

func (w *WebhookIngestor) auditHeaders(req WebhookRequest) datatypes.JSON {
	out := map[string]string{}
	for _, name := range auditHeaders {
		if v := req.Headers.Get(name); v != "" {
			out[name] = v
		}
	}
	if req.Token != "" {
		out[w.cfg.TokenHeader] = maskSecret(req.Token)
	}
	if req.Signature != "" {
		out[w.cfg.SignatureHeader] = maskSecret(req.Signature)
	}
	b, _ := json.Marshal(out)
	return datatypes.JSON(b)
}

// maskSecret keeps enough of a credential to correlate deliveries.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return s[:len(s)/2] + "..."
	}
	return s[:8] + "..."
}

// storedPayload keeps the body as JSON; a body that is not JSON is stored as a string.
func storedPayload(body []byte, parsed bool) datatypes.JSON {
	if len(body) > maxStoredPayload {
		body = body[:maxStoredPayload]
		parsed = false
	}
	if parsed {
		return datatypes.JSON(body)
	}
	b, _ := json.Marshal(string(body))
	return datatypes.JSON(b)
}

func eventType(p webhookPayload) string {
	if p.Event != "" {
		return truncate(p.Event, 50)
	}
	if p.Status != "" {
		return truncate("invoice."+strings.ToLower(p.Status), 50)
	}
	return "unknown"
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
