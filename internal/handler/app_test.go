package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"eduhub/config"
	"eduhub/internal/auth"
	"eduhub/internal/domain"
	"eduhub/internal/middleware"
	"eduhub/internal/models"
	"eduhub/internal/repository/memstore"
	"eduhub/internal/service"
	"eduhub/pkg/kvstore"
	"eduhub/pkg/payment"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

const testCallbackToken = "xnd_cb_handler_test"

type auditSpy struct {
	mu   sync.Mutex
	rows []models.AuditLog
}

func (a *auditSpy) Create(l *models.AuditLog) error {
	a.mu.Lock()
	a.rows = append(a.rows, *l)
	a.mu.Unlock()
	return nil
}

func (a *auditSpy) ListByResource(resource, resourceID string, limit int) ([]models.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AuditLog
	for i := len(a.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if a.rows[i].Resource == resource && a.rows[i].ResourceID == resourceID {
			out = append(out, a.rows[i])
		}
	}
	return out, nil
}

func (a *auditSpy) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.rows))
	for _, r := range a.rows {
		out = append(out, r.Action)
	}
	return out
}

type testApp struct {
	router *gin.Engine
	store  *memstore.Store
	gw     *payment.StubGateway
	audits *auditSpy
	jwt    config.JWTConfig
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, _ := logtest.NewNullLogger()
	a := &testApp{
		store:  memstore.New(),
		gw:     payment.NewStubGateway(),
		audits: &auditSpy{},
		jwt:    config.JWTConfig{AccessSecret: "handler-secret", AccessExpiry: time.Hour, Issuer: "eduhub"},
	}
	cache := kvstore.NewMemoryStore()
	t.Cleanup(cache.Close)

	bus := service.NewEventBus(log)
	enrollments := service.NewEnrollmentService(a.store, bus, log)
	payments := service.NewPaymentService(a.store, a.gw, enrollments, bus, config.PaymentConfig{Currency: "IDR", InvoiceExpiry: 24 * time.Hour}, log)
	enrollments.SetPayments(payments)
	whCfg := config.WebhookConfig{
		CallbackToken:   testCallbackToken,
		TokenHeader:     "X-Callback-Token",
		SignatureHeader: "X-Callback-Signature",
		MaxFailures:     10,
		FailureWindow:   5 * time.Minute,
		ReplayWindow:    24 * time.Hour,
	}
	ingestor := service.NewWebhookIngestor(a.store, payments, whCfg, log)
	catalog := service.NewCatalogService(a.store, cache, time.Minute, log)

	classes := NewClassHandler(catalog, enrollments, log)
	enrollH := NewEnrollmentHandler(enrollments, a.audits, log)
	payH := NewPaymentHandler(payments, log)
	hooks := NewWebhookHandler(ingestor, whCfg, log)
	admin := NewAdminHandler(enrollments, catalog, a.audits, log)

	r := gin.New()
	api := r.Group("/api/v1")
	api.GET("/classes/:id", classes.Get)
	api.POST("/webhooks/:provider", hooks.Handle)
	authed := api.Group("", middleware.AuthRequired(&a.jwt))
	authed.GET("/classes/:id/eligibility", classes.Eligibility)
	authed.POST("/enrollments", enrollH.Create)
	authed.GET("/me/enrollments", enrollH.ListMine)
	authed.GET("/enrollments/:id", enrollH.Get)
	authed.POST("/enrollments/:id/cancel", enrollH.Cancel)
	authed.POST("/enrollments/:id/payment", payH.Create)
	authed.GET("/payments/:id", payH.Get)
	authed.POST("/payments/:id/check", payH.Check)
	authed.POST("/admin/classes/:id/complete", middleware.AdminRequired(), admin.CompleteClass)
	authed.GET("/admin/audit", middleware.AdminRequired(), admin.ListAudit)
	a.router = r
	return a
}

func (a *testApp) token(t *testing.T, userID uint, role string) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken(&a.jwt, userID, "user@example.com", role)
	require.NoError(t, err)
	return tok
}

func (a *testApp) student(t *testing.T, id uint) string { return a.token(t, id, domain.RoleStudent) }

func (a *testApp) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) addClass() *models.ClassOffering {
	return a.store.AddClass(models.ClassOffering{
		Name:     "Business English B2",
		Price:    1_000_000,
		Currency: "IDR",
		IsActive: true,
		Capacity: 10,
		MinAge:   12,
	})
}

func enrollBody(classID uint) map[string]interface{} {
	return map[string]interface{}{
		"class_id":      classID,
		"student_name":  "Siti Rahma",
		"student_email": "siti@example.com",
		"student_phone": "+6281298765432",
		"student_age":   24,
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func webhookCall(a *testApp, provider, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+provider, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Callback-Token", token)
		req.Header.Set("X-Callback-Signature", payment.Sign(token, body))
	}
	req.RemoteAddr = "203.0.113.7:443"
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}
