// Package auditlog persists the lifecycle audit trail consumed off the
// queue by the worker.
package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Record is one audited lifecycle transition. Field names match the
// payload the engine publishes.
type Record struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Role    string    `json:"role"`
	ActorID int64     `json:"actor_id"`
	EventID int64     `json:"event_id"`
	At      time.Time `json:"at"`
}

// Store reads and writes audit records in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates a store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Decode parses a queue message body into a record.
func Decode(body []byte) (Record, error) {
	var rec Record
	err := json.Unmarshal(body, &rec)
	return rec, err
}

// Insert writes a record. Duplicate ids are ignored so queue redelivery
// stays harmless.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, kind, role, actor_id, event_id, at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.Kind, rec.Role, rec.ActorID, rec.EventID, rec.At)
	return err
}

// List returns the most recent records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, role, actor_id, event_id, at
		FROM audit_log
		ORDER BY at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Role, &rec.ActorID, &rec.EventID, &rec.At); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
