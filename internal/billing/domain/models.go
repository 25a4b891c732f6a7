package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Outcome records how a webhook delivery was resolved.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNoop      Outcome = "noop"
	OutcomeMalformed Outcome = "malformed"
	OutcomeFailed    Outcome = "failed"
)

// WebhookEvent is the audit trail of processed deliveries, kept for
// operator follow-up on swallowed failures.
type WebhookEvent struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	EventID        string            `gorm:"column:event_id;type:text;not null;index"`
	EventType      string            `gorm:"column:event_type;type:text;not null"`
	Outcome        Outcome           `gorm:"type:text;not null"`
	Email          *string           `gorm:"type:text"`
	SubscriptionID *string           `gorm:"column:subscription_id;type:text"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (WebhookEvent) TableName() string { return "webhook_events" }

// Service ingests raw webhook deliveries.
type Service interface {
	IngestWebhook(ctx context.Context, payload []byte, signature string) error
}
