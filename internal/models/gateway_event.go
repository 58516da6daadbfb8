package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GatewayEvent is the audit trail of raw webhook and callback payloads.
// Replay detection lives in the reconciliation engine, not here; this
// table only records what each provider sent and when it was handled.
type GatewayEvent struct {
	ID              uuid.UUID      `gorm:"type:uuid;primary_key"`
	Provider        string         `gorm:"not null;uniqueIndex:idx_gateway_events_provider_event"`
	ProviderEventID string         `gorm:"not null;uniqueIndex:idx_gateway_events_provider_event"`
	Payload         datatypes.JSON `gorm:"not null"`
	ReceivedAt      time.Time      `gorm:"not null"`
	ProcessedAt     *time.Time
}
