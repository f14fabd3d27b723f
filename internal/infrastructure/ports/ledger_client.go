package ports

import (
	"context"
	"time"

	"github.com/andrescamacho/farmtown-go/internal/domain/production"
)

// LedgerClient defines operations against the remote production ledger,
// the authoritative store of slot state. The client never sets
// completion timestamps locally; it only reflects what these calls
// return.
// This is in infrastructure/ports because it's an external service interface.
type LedgerClient interface {
	// StartWork occupies an empty slot (plant a crop, queue a recipe,
	// pair animals). Fails with a validation error if the slot is
	// occupied, resources are insufficient, or capacity is reached.
	StartWork(ctx context.Context, key production.Key, params map[string]interface{}, idempotencyKey, token string) (*StartWorkResult, error)

	// Collect finalizes a completed slot and awards its output. Safe to
	// call more than once: a second call against an already-emptied slot
	// fails with a BenignRaceError, not a genuine error.
	Collect(ctx context.Context, key production.Key, idempotencyKey, token string) (*CollectResult, error)

	// QueryState returns the full current slot set for the session.
	// Used on startup and after reconnect.
	QueryState(ctx context.Context, token string) ([]*production.Slot, error)
}

// StartWorkResult carries the server-assigned timestamps for new work
type StartWorkResult struct {
	Slot        *production.Slot
	StartedAt   time.Time
	CompletesAt time.Time
}

// Award is one item or currency grant from a collect
type Award struct {
	Item     string
	Quantity int
}

// CollectResult carries the output of a successful collect
type CollectResult struct {
	SlotID string
	Kind   production.Kind
	Awards []Award
}
