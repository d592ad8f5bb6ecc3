package handler

import (
	"net/http"
	"strconv"

	"eduhub/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ClassHandler struct {
	catalog     *service.CatalogService
	enrollments *service.EnrollmentService
	log         logrus.FieldLogger
}

func NewClassHandler(catalog *service.CatalogService, enrollments *service.EnrollmentService, log logrus.FieldLogger) *ClassHandler {
	return &ClassHandler{catalog: catalog, enrollments: enrollments, log: log}
}

// Get handles GET /classes/:id. Public; served from the catalog cache.
func (h *ClassHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	class, err := h.catalog.GetClass(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"class":      class,
		"seats_left": seatsLeft(class.Capacity, class.EnrolledCount),
		"enrollable": class.IsActive && class.HasSeat(),
	})
}

// Eligibility handles GET /classes/:id/eligibility?test_result_id=&age=.
func (h *ClassHandler) Eligibility(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var testResultID *uint
	if v := c.Query("test_result_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid test_result_id"})
			return
		}
		tr := uint(n)
		testResultID = &tr
	}
	age, err := strconv.Atoi(c.DefaultQuery("age", "0"))
	if err != nil || age < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid age"})
		return
	}
	res, err := h.enrollments.CanEnroll(c.Request.Context(), actorFrom(c), id, testResultID, age)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// seatsLeft is -1 for classes without a seat limit.
func seatsLeft(capacity, enrolled int) int {
	if capacity <= 0 {
		return -1
	}
	if left := capacity - enrolled; left > 0 {
		return left
	}
	return 0
}
