// Package postgres appends audit events to the storefront's audit_logs table.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jrsteele09/storefront-gatekeeper/audit"
	"github.com/jrsteele09/storefront-gatekeeper/internal/database"
)

// tableName is recorded with each row so security events can be told apart from data changes
const tableName = "security"

var _ audit.Sink = (*Sink)(nil)

type Sink struct {
	db *database.DB
}

func NewSink(db *database.DB) (*Sink, error) {
	if db == nil || db.Pool == nil {
		return nil, fmt.Errorf("[postgres.NewSink] database is required")
	}
	return &Sink{db: db}, nil
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	const q = `
INSERT INTO audit_logs (id, user_id, action, table_name, record_id, new_values, ip_address, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("[Sink Append] encode details: %w", err)
	}
	_, err = s.db.Pool.Exec(ctx, q,
		event.ID,
		event.AccountID,
		string(event.Action),
		tableName,
		event.AccountID,
		details,
		event.IP,
		event.UserAgent,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("[Sink Append] %w", err)
	}
	return nil
}
