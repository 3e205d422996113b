package tile

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// historySchema creates the history table on first use. The mirror itself
// is memory-only; this table is an append-only audit trail.
const historySchema = `
CREATE TABLE IF NOT EXISTS tile_state_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tile_name TEXT NOT NULL,
	domain TEXT NOT NULL,
	payload TEXT NOT NULL,
	source TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_tile_state_history_tile
	ON tile_state_history (tile_name, created_at);
`

// SQLiteHistoryRepository implements HistoryRepository using SQLite.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates the repository and ensures the
// history table exists.
func NewSQLiteHistoryRepository(db *sql.DB) (*SQLiteHistoryRepository, error) {
	if _, err := db.Exec(historySchema); err != nil {
		return nil, fmt.Errorf("creating history table: %w", err)
	}
	return &SQLiteHistoryRepository{db: db}, nil
}

// RecordStateChange inserts a new history entry for a tile.
func (r *SQLiteHistoryRepository) RecordStateChange(ctx context.Context, tileName string, domain Domain, payload string, source string) error {
	if tileName == "" {
		return fmt.Errorf("tile name is required")
	}
	if source == "" {
		source = HistorySourceBus
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO tile_state_history (tile_name, domain, payload, source) VALUES (?, ?, ?, ?)",
		tileName,
		string(domain),
		payload,
		source,
	)
	if err != nil {
		return fmt.Errorf("inserting tile state history: %w", err)
	}

	return nil
}

// GetHistory returns recent history entries for a tile, ordered newest
// first. Limit defaults to 50 and is capped at 200.
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, tileName string, limit int) ([]HistoryEntry, error) {
	if tileName == "" {
		return nil, fmt.Errorf("tile name is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tile_name, domain, payload, source, created_at
		 FROM tile_state_history
		 WHERE tile_name = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		tileName,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tile state history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var domain string
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.TileName, &domain, &entry.Payload, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning tile state history: %w", err)
		}
		entry.Domain = Domain(domain)

		timestamp, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tile state history: %w", err)
	}

	return entries, nil
}

// PruneHistory deletes history entries older than the given duration.
// Returns the number of rows deleted.
func (r *SQLiteHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM tile_state_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting tile state history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
