package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/staticpub/internal/events"
)

// DefaultEventLogTable is used when no table is configured.
const DefaultEventLogTable = "staticpub_eventlog"

// EventLog persists event log entries, one row per written page.
type EventLog struct {
	db    DB
	table string
}

var _ events.LogRecorder = (*EventLog)(nil)

// NewEventLog wraps db. The table must already exist with columns
// (action_time timestamptz, action text, extra jsonb).
func NewEventLog(db DB, table string) (*EventLog, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table, DefaultEventLogTable)
	if err != nil {
		return nil, err
	}
	return &EventLog{db: db, table: table}, nil
}

// Close releases the underlying pool.
func (l *EventLog) Close() {
	if l == nil || l.db == nil {
		return
	}
	l.db.Close()
}

// Record inserts entries in order, stopping at the first failure.
func (l *EventLog) Record(ctx context.Context, entries []events.LogEntry) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("event log is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	action_time,
	action,
	extra
) VALUES (
	$1,$2,$3
)`, l.table)
	for _, entry := range entries {
		if _, err := l.db.Exec(ctx, query, entry.ActionTime, entry.Action, []byte(entry.Extra)); err != nil {
			return fmt.Errorf("insert event log entry: %w", err)
		}
	}
	return nil
}
