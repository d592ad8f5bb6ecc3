package handler

import (
	"io"
	"net/http"

	"eduhub/config"
	"eduhub/internal/domain"
	"eduhub/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Callbacks larger than this are not invoice notifications.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	ingestor *service.WebhookIngestor
	cfg      config.WebhookConfig
	log      logrus.FieldLogger
}

func NewWebhookHandler(ingestor *service.WebhookIngestor, cfg config.WebhookConfig, log logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor, cfg: cfg, log: log}
}

// Handle is POST /webhooks/:provider. The raw body is kept for the signature check.
func (h *WebhookHandler) Handle(c *gin.Context) {
	provider := c.Param("provider")
	if provider != domain.SourceXendit {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "unknown provider"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid body"})
		return
	}
	res := h.ingestor.Ingest(c.Request.Context(), service.WebhookRequest{
		Source:    provider,
		Token:     c.GetHeader(h.cfg.TokenHeader),
		Signature: c.GetHeader(h.cfg.SignatureHeader),
		Body:      body,
		Headers:   c.Request.Header,
		IP:        c.ClientIP(),
	})
	c.JSON(res.HTTPStatus, gin.H{
		"success": res.Success,
		"status":  res.Status,
		"message": res.Message,
	})
}
