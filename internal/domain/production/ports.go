package production

import (
	"context"
	"time"
)

// SlotCache is the client-side read-through cache of ledger slot state.
// The ledger stays authoritative; the cache only reflects the last
// snapshot so rendering works offline.
type SlotCache interface {
	ReplaceAll(ctx context.Context, slots []*Slot, syncedAt time.Time) error
	Upsert(ctx context.Context, slot *Slot, syncedAt time.Time) error
	FindAll(ctx context.Context) ([]*Slot, error)
	FindByKey(ctx context.Context, key Key) (*Slot, error)
}
