package repository

import (
	"context"
	"time"

	"eduhub/internal/domain"
	"eduhub/internal/models"

	"gorm.io/gorm"
)

type WebhookLogRepository struct {
	db *gorm.DB
}

func NewWebhookLogRepository(db *gorm.DB) *WebhookLogRepository {
	return &WebhookLogRepository{db: db}
}

func (r *WebhookLogRepository) CreateWebhookLog(ctx context.Context, l *models.WebhookLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *WebhookLogRepository) FinishWebhookLog(ctx context.Context, id uint, status domain.WebhookStatus, message string, processedAt *time.Time) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": message,
	}
	if processedAt != nil {
		updates["processed_at"] = *processedAt
	}
	return r.db.WithContext(ctx).Model(&models.WebhookLog{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *WebhookLogRepository) CountRecentFailures(ctx context.Context, ip string, since time.Time, excludeID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WebhookLog{}).
		Where("ip_address = ? AND status IN ? AND created_at >= ? AND id <> ?", ip,
			[]domain.WebhookStatus{domain.WebhookFailed, domain.WebhookInvalid}, since, excludeID).
		Count(&count).Error
	return count, err
}

func (r *WebhookLogRepository) HasRecentSuccess(ctx context.Context, externalID, source string, since time.Time, excludeID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WebhookLog{}).
		Where("external_id = ? AND source = ? AND status = ? AND created_at >= ? AND id <> ?",
			externalID, source, domain.WebhookSuccess, since, excludeID).
		Count(&count).Error
	return count > 0, err
}
