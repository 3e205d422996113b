package tile

import (
	"context"
	"time"
)

// History source values.
const (
	HistorySourceBus     = "bus"
	HistorySourceCommand = "command"
)

// HistoryEntry represents a single recorded tile state change.
//
// Each entry stores the domain payload as observed, giving a local audit
// trail even though the live mirror is memory-only.
type HistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// TileName is the device name from the topic hierarchy.
	TileName string `json:"tile_name"`

	// Domain is the state domain the change belongs to.
	Domain Domain `json:"domain"`

	// Payload is the JSON snapshot of the domain state.
	Payload string `json:"payload"`

	// Source identifies how the change was recorded (bus, command).
	Source string `json:"source"`

	// CreatedAt is the timestamp of the state change (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository stores and retrieves tile state change history.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	// RecordStateChange records a tile state change.
	RecordStateChange(ctx context.Context, tileName string, domain Domain, payload string, source string) error

	// GetHistory returns recent state change history for the tile,
	// ordered newest first. The limit may be clamped by the implementation.
	GetHistory(ctx context.Context, tileName string, limit int) ([]HistoryEntry, error)
}

// NoopHistory discards every record. Used when history is disabled.
type NoopHistory struct{}

func (NoopHistory) RecordStateChange(context.Context, string, Domain, string, string) error {
	return nil
}

func (NoopHistory) GetHistory(context.Context, string, int) ([]HistoryEntry, error) {
	return []HistoryEntry{}, nil
}
