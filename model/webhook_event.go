package model

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent stores gateway callbacks with a unique (provider, event_id)
// pair so redelivered events are acknowledged without being applied twice.
type WebhookEvent struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:varchar(20);not null;uniqueIndex:ux_webhook_events_provider_event,priority:1" json:"provider"`
	EventID         string         `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_events_provider_event,priority:2" json:"event_id"`
	EventType       string         `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Payload         datatypes.JSON `gorm:"not null" json:"payload"`
	ProcessedAt     *time.Time     `gorm:"index" json:"processed_at,omitempty"`
	ProcessingError string         `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TableName specifies the table name for WebhookEvent
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
