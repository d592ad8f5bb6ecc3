package service

import (
	"context"
	"encoding/json"
	"fmt"

	"eduhub/internal/domain"
	"eduhub/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

type NotificationStore interface {
	Create(n *models.Notification) error
}

type UserLookup interface {
	GetByID(id uint) (*models.User, error)
}

// Broadcaster pushes a payload to every open websocket of a user.
type Broadcaster interface {
	BroadcastToUser(userID uint, payload interface{})
}

type Pusher interface {
	SendToUser(ctx context.Context, fcmToken, notifType, title, body string, data map[string]interface{}) error
}

// NotificationService turns domain events into stored notifications, websocket
// messages and FCM pushes.
type NotificationService struct {
	repo  NotificationStore
	users UserLookup
	push  Pusher
	hub   Broadcaster
	log   *logrus.Entry
}

func NewNotificationService(repo NotificationStore, users UserLookup, push Pusher, hub Broadcaster, log logrus.FieldLogger) *NotificationService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &NotificationService{repo: repo, users: users, push: push, hub: hub, log: log.WithField("component", "notification")}
}

func (s *NotificationService) Notify(ctx context.Context, userID uint, notifType, title, body string, data map[string]interface{}) error {
	n := &models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
	}
	if data != nil {
		b, _ := json.Marshal(data)
		n.Data = datatypes.JSON(b)
	}
	if err := s.repo.Create(n); err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.BroadcastToUser(userID, map[string]interface{}{"type": "notification", "notification": n})
	}
	s.sendPush(ctx, userID, notifType, title, body, data)
	return nil
}

func (s *NotificationService) sendPush(ctx context.Context, userID uint, notifType, title, body string, data map[string]interface{}) {
	if s.push == nil || s.users == nil {
		return
	}
	u, err := s.users.GetByID(userID)
	if err != nil || u == nil || u.FCMToken == "" {
		return
	}
	if err := s.push.SendToUser(ctx, u.FCMToken, notifType, title, body, data); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("[Notify] push failed")
	}
}

// HandleEvent is subscribed to the event bus.
func (s *NotificationService) HandleEvent(ctx context.Context, e Event) {
	if e.UserID == 0 {
		return
	}
	title, body, ok := describeEvent(e)
	if !ok {
		return
	}
	if err := s.Notify(ctx, e.UserID, e.Type, title, body, e.Data); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"event": e.Type, "user_id": e.UserID}).Error("[Notify] could not store notification")
	}
}

func describeEvent(e Event) (title, body string, ok bool) {
	number, _ := e.Data["enrollment_number"].(string)
	invoice, _ := e.Data["invoice_number"].(string)
	switch e.Type {
	case domain.EventEnrollmentCreated:
		return "Enrollment received", fmt.Sprintf("Enrollment %s is waiting for payment.", number), true
	case domain.EventEnrollmentConfirmed:
		return "Enrollment confirmed", fmt.Sprintf("Your seat for enrollment %s is confirmed.", number), true
	case domain.EventEnrollmentCancelled:
		return "Enrollment cancelled", fmt.Sprintf("Enrollment %s was cancelled.", number), true
	case domain.EventEnrollmentCompleted:
		return "Class completed", fmt.Sprintf("Enrollment %s is complete. Well done!", number), true
	case domain.EventPaymentCreated:
		return "Invoice ready", fmt.Sprintf("Invoice %s is ready to pay.", invoice), true
	case domain.EventPaymentConfirmed:
		return "Payment received", fmt.Sprintf("We received your payment for invoice %s.", invoice), true
	case domain.EventPaymentFailed:
		return "Payment failed", fmt.Sprintf("Payment for invoice %s failed. You can try again.", invoice), true
	case domain.EventPaymentExpired:
		return "Invoice expired", fmt.Sprintf("Invoice %s expired. You can request a new one.", invoice), true
	case domain.EventPaymentRefunded:
		return "Payment refunded", fmt.Sprintf("Invoice %s has been refunded.", invoice), true
	}
	return "", "", false
}
