package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// EventLogWriter appends engine events to Postgres. Multi-row INSERT with
// ON CONFLICT DO NOTHING keeps writes idempotent across crash-replays;
// switch to pgx CopyFrom if throughput ever demands it.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow is one row in event_log.events.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	MarketID       *string
	Payload        []byte // JSON-encoded event payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch writes a batch of events inside the given transaction.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, market_id, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*8)

	for i, e := range events {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.MarketID,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LastSequence returns the highest persisted sequence and its state hash,
// or (-1, nil, nil) on an empty log. Used to resume the hash chain on
// restart.
func (w *EventLogWriter) LastSequence(ctx context.Context) (int64, []byte, error) {
	var seq int64
	var hash []byte
	err := w.db.QueryRowContext(ctx, `
		SELECT sequence, state_hash FROM event_log.events
		ORDER BY sequence DESC LIMIT 1
	`).Scan(&seq, &hash)
	if err == sql.ErrNoRows {
		return -1, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return seq, hash, nil
}

// RecentIdempotencyKeys returns the newest command keys for LRU warming.
func (w *EventLogWriter) RecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT idempotency_key FROM event_log.events
		ORDER BY sequence DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
