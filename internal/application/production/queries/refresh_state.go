package queries

import (
	"context"
	"fmt"

	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/domain/production"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
	"github.com/andrescamacho/farmtown-go/internal/infrastructure/ports"
)

// RefreshStateQuery fetches the full slot set from the ledger and
// replaces the local cache. Used on startup, after reconnect, and on
// realtime change notifications - all three paths are identical.
type RefreshStateQuery struct {
	Token string
}

// RefreshStateResponse carries the current slots. Stale is true when the
// ledger was unreachable and the cached snapshot was served instead.
type RefreshStateResponse struct {
	Slots []*production.Slot
	Stale bool
}

// RefreshStateHandler implements the read-through behavior: ledger first,
// cache fallback on transient failure
type RefreshStateHandler struct {
	ledger ports.LedgerClient
	cache  production.SlotCache
	clock  shared.Clock
}

// NewRefreshStateHandler creates a new refresh handler
func NewRefreshStateHandler(
	ledger ports.LedgerClient,
	cache production.SlotCache,
	clock shared.Clock,
) *RefreshStateHandler {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &RefreshStateHandler{
		ledger: ledger,
		cache:  cache,
		clock:  clock,
	}
}

// Handle executes the refresh query
func (h *RefreshStateHandler) Handle(ctx context.Context, request common.Request) (common.Response, error) {
	query, ok := request.(*RefreshStateQuery)
	if !ok {
		return nil, fmt.Errorf("invalid request type")
	}

	slots, err := h.ledger.QueryState(ctx, query.Token)
	if err != nil {
		if shared.IsTransient(err) {
			cached, cacheErr := h.cache.FindAll(ctx)
			if cacheErr != nil {
				return nil, fmt.Errorf("ledger unreachable and cache unreadable: %w", err)
			}
			return &RefreshStateResponse{Slots: cached, Stale: true}, nil
		}
		return nil, err
	}

	if err := h.cache.ReplaceAll(ctx, slots, h.clock.Now()); err != nil {
		// Serve the fresh snapshot even if caching it failed
		return &RefreshStateResponse{Slots: slots}, nil
	}

	return &RefreshStateResponse{Slots: slots}, nil
}
