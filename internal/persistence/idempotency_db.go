package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresIdempotencyChecker is the cold tier of command deduplication:
// a lookup against the event log for keys that aged out of the LRU.
type PostgresIdempotencyChecker struct {
	db *sql.DB
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{db: db}
}

// IsDuplicate checks whether a command key already produced events.
// Multi-event commands store suffixed keys ("id#1", "id#2"), so the first
// event's bare key is what identifies the command.
func (pic *PostgresIdempotencyChecker) IsDuplicate(idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var exists int
	err := pic.db.QueryRowContext(ctx, `
		SELECT 1 FROM event_log.events
		WHERE idempotency_key = $1
		LIMIT 1
	`, idempotencyKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
