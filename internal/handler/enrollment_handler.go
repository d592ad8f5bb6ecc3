package handler

import (
	"net/http"
	"sort"
	"strconv"

	"eduhub/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type EnrollmentHandler struct {
	svc   *service.EnrollmentService
	audit AuditRecorder
	log   logrus.FieldLogger
}

func NewEnrollmentHandler(svc *service.EnrollmentService, auditRepo AuditRecorder, log logrus.FieldLogger) *EnrollmentHandler {
	return &EnrollmentHandler{svc: svc, audit: auditRepo, log: log}
}

// Create handles POST /enrollments. Field rules are enforced by the service so
// the answer carries per-field messages.
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var in service.EnrollmentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	e, err := h.svc.CreateEnrollment(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, newEnrollmentView(e))
}

// ListMine handles GET /me/enrollments, ordered by status weight then newest first.
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	list, err := h.svc.ListMyEnrollments(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	views := make([]enrollmentView, 0, len(list))
	for i := range list {
		views = append(views, newEnrollmentView(&list[i]))
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Display.Weight != views[j].Display.Weight {
			return views[i].Display.Weight < views[j].Display.Weight
		}
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	c.JSON(http.StatusOK, gin.H{"enrollments": views})
}

func (h *EnrollmentHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	e, err := h.svc.GetEnrollment(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newEnrollmentView(e))
}

// Cancel handles POST /enrollments/:id/cancel. A paid enrollment is refunded in the same step.
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor := actorFrom(c)
	e, err := h.svc.CancelEnrollment(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	audit(h.audit, h.log, c, actor.UserID, "enrollment_cancelled", "enrollment", strconv.FormatUint(uint64(e.ID), 10), req.Reason)
	c.JSON(http.StatusOK, newEnrollmentView(e))
}
