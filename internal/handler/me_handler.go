package handler

import (
	"net/http"

	"eduhub/internal/middleware"
	"eduhub/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ProfileStore interface {
	GetByID(id uint) (*models.User, error)
	UpdateFCMToken(id uint, token string) error
}

type MeHandler struct {
	users ProfileStore
	log   logrus.FieldLogger
}

func NewMeHandler(users ProfileStore, log logrus.FieldLogger) *MeHandler {
	return &MeHandler{users: users, log: log}
}

func (h *MeHandler) GetProfile(c *gin.Context) {
	u, err := h.users.GetByID(middleware.GetUserID(c))
	if err != nil || u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, u)
}

// RegisterFCMToken saves the FCM token for push notifications.
func (h *MeHandler) RegisterFCMToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required,max=512"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}
	if err := h.users.UpdateFCMToken(middleware.GetUserID(c), req.Token); err != nil {
		h.log.WithError(err).Error("[Me] fcm token update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
