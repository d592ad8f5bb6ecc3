package handler

import (
	"errors"
	"net/http"
	"strconv"

	"eduhub/internal/middleware"
	"eduhub/internal/models"
	"eduhub/internal/service"
	"eduhub/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuditRecorder stores back-office audit rows. Failures are logged, never surfaced.
type AuditRecorder interface {
	Create(log *models.AuditLog) error
}

// respondError maps service errors to HTTP answers.
func respondError(c *gin.Context, log logrus.FieldLogger, err error) {
	var be *service.BusinessError
	if errors.As(err, &be) {
		c.JSON(be.Status, be)
		return
	}
	var ge *payment.GatewayError
	if errors.As(err, &ge) {
		status := http.StatusBadGateway
		if ge.Retryable {
			status = http.StatusServiceUnavailable
		}
		log.WithError(err).WithField("path", c.FullPath()).Warn("[API] payment provider error")
		c.JSON(status, gin.H{"code": "gateway_error", "error": "the payment provider is not responding, please try again shortly"})
		return
	}
	log.WithError(err).WithFields(logrus.Fields{
		"path":       c.FullPath(),
		"request_id": c.GetString("request_id"),
	}).Error("[API] unhandled error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func actorFrom(c *gin.Context) service.Actor {
	return service.Actor{UserID: middleware.GetUserID(c), Role: middleware.GetRole(c)}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func audit(rec AuditRecorder, log logrus.FieldLogger, c *gin.Context, userID uint, action, resource, resourceID, metadata string) {
	if rec == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Metadata:   metadata,
	}
	if userID != 0 {
		entry.UserID = &userID
	}
	if err := rec.Create(entry); err != nil {
		log.WithError(err).WithField("action", action).Warn("[Audit] write failed")
	}
}
