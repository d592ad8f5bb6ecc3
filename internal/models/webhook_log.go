package models

import (
	"time"

	"eduhub/internal/domain"

	"gorm.io/datatypes"
)

// WebhookLog is the append-only audit row written for every inbound provider callback.
// Only Status, ErrorMessage and ProcessedAt change after insert.
type WebhookLog struct {
	ID           uint                 `gorm:"primaryKey" json:"id"`
	Source       string               `gorm:"size:50;not null;index:idx_webhook_replay" json:"source"`
	EventType    string               `gorm:"size:50" json:"event_type"`
	ExternalID   string               `gorm:"size:64;index:idx_webhook_replay" json:"external_id"`
	Payload      datatypes.JSON       `json:"payload"`
	Headers      datatypes.JSON       `json:"headers"`
	IPAddress    string               `gorm:"size:45;index:idx_webhook_ip" json:"ip_address"`
	Status       domain.WebhookStatus `gorm:"size:20;not null;index:idx_webhook_replay;index:idx_webhook_ip" json:"status"`
	ErrorMessage string               `gorm:"type:text" json:"error_message"`
	ProcessedAt  *time.Time           `json:"processed_at"`
	CreatedAt    time.Time            `gorm:"index:idx_webhook_replay;index:idx_webhook_ip" json:"created_at"`
}

func (WebhookLog) TableName() string {
	return "webhook_logs"
}
