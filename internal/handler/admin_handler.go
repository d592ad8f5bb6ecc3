package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"eduhub/internal/models"
	"eduhub/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// AuditTrail is the audit store as the back office sees it.
type AuditTrail interface {
	AuditRecorder
	ListByResource(resource, resourceID string, limit int) ([]models.AuditLog, error)
}

type AdminHandler struct {
	enrollments *service.EnrollmentService
	catalog     *service.CatalogService
	audit       AuditTrail
	log         logrus.FieldLogger
}

func NewAdminHandler(enrollments *service.EnrollmentService, catalog *service.CatalogService, auditRepo AuditTrail, log logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{enrollments: enrollments, catalog: catalog, audit: auditRepo, log: log}
}

// CompleteClass handles POST /admin/classes/:id/complete.
func (h *AdminHandler) CompleteClass(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor := actorFrom(c)
	n, err := h.enrollments.CompleteClass(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.catalog.Invalidate(c.Request.Context(), id)
	audit(h.audit, h.log, c, actor.UserID, "class_completed", "class", strconv.FormatUint(uint64(id), 10), fmt.Sprintf(`{"completed":%d}`, n))
	c.JSON(http.StatusOK, gin.H{"class_id": id, "completed_enrollments": n})
}

// ListAudit handles GET /admin/audit?resource=enrollment&resource_id=12, newest first.
func (h *AdminHandler) ListAudit(c *gin.Context) {
	resource, resourceID := c.Query("resource"), c.Query("resource_id")
	if resource == "" || resourceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resource and resource_id are required"})
		return
	}
	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	rows, err := h.audit.ListByResource(resource, resourceID, limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": rows, "count": len(rows)})
}
