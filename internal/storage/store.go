// Package storage defines the command history persistence interface.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Driver names.
const (
	DriverSQLite = "sqlite"
)

// Command verdicts recorded in history.
const (
	VerdictAllowed     = "allowed"
	VerdictDenied      = "denied"
	VerdictRateLimited = "rate_limited"
)

// Command outcomes recorded in history. Empty for denied commands.
const (
	OutcomeComplete = "complete"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
	OutcomeCanceled = "canceled"
)

// CommandRecord is one admitted or rejected command from one connection.
type CommandRecord struct {
	ID         uuid.UUID
	ClientID   string
	Command    string
	Verdict    string // VerdictAllowed, VerdictDenied, VerdictRateLimited.
	Reason     string // Denial reason. Empty when allowed.
	Outcome    string // Terminal outcome for executed commands.
	DurationMs int64
	CreatedAt  time.Time
}

// HistoryStore persists and queries command records.
type HistoryStore interface {
	// Record appends one command record. Assigns ID and CreatedAt when unset.
	Record(ctx context.Context, rec *CommandRecord) error

	// RecentByClient returns the newest records for one client, newest first.
	RecentByClient(ctx context.Context, clientID string, limit int) ([]*CommandRecord, error)

	// PurgeBefore deletes records created before the cutoff and returns the
	// number removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// TrimToNewest deletes the oldest records beyond the max row cap and
	// returns the number removed. max <= 0 means no cap.
	TrimToNewest(ctx context.Context, max int) (int64, error)

	// Count returns the total number of stored records.
	Count(ctx context.Context) (int64, error)
}

// Store is the full persistence backend.
type Store interface {
	HistoryStore

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error

	// Driver returns the backend driver name.
	Driver() string

	Close() error
}
