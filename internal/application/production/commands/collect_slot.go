package commands

import (
	"context"
	"fmt"

	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/domain/production"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
	"github.com/andrescamacho/farmtown-go/internal/infrastructure/ports"
)

// CollectSlotCommand finalizes a completed slot, awarding its output and
// returning it to empty
type CollectSlotCommand struct {
	Key            production.Key
	IdempotencyKey string
	Token          string
}

// CollectSlotResponse reports the collect outcome. Collected is false
// for the benign already-emptied race: no awards, no error.
type CollectSlotResponse struct {
	Collected bool
	Awards    []ports.Award
}

// CollectSlotHandler executes collect against the ledger. The ledger's
// idempotence makes repeated attempts safe: a duplicate lands here as a
// BenignRaceError and resolves silently.
type CollectSlotHandler struct {
	ledger ports.LedgerClient
	cache  production.SlotCache
	clock  shared.Clock
}

// NewCollectSlotHandler creates a new collect handler
func NewCollectSlotHandler(
	ledger ports.LedgerClient,
	cache production.SlotCache,
	clock shared.Clock,
) *CollectSlotHandler {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &CollectSlotHandler{
		ledger: ledger,
		cache:  cache,
		clock:  clock,
	}
}

// Handle executes the collect command
func (h *CollectSlotHandler) Handle(ctx context.Context, request common.Request) (common.Response, error) {
	cmd, ok := request.(*CollectSlotCommand)
	if !ok {
		return nil, fmt.Errorf("invalid request type")
	}

	result, err := h.ledger.Collect(ctx, cmd.Key, cmd.IdempotencyKey, cmd.Token)
	if err != nil {
		if shared.IsBenignRace(err) {
			// Slot was already emptied by a prior call, another device, or a
			// duplicate timer fire. Reflect the empty slot and report no-op.
			h.markEmpty(ctx, cmd.Key)
			return &CollectSlotResponse{Collected: false}, nil
		}
		return nil, err
	}

	h.markEmpty(ctx, cmd.Key)

	return &CollectSlotResponse{
		Collected: true,
		Awards:    result.Awards,
	}, nil
}

func (h *CollectSlotHandler) markEmpty(ctx context.Context, key production.Key) {
	// Cache write failures are recoverable on the next refresh
	_ = h.cache.Upsert(ctx, production.NewEmptySlot(key.ID, key.Kind), h.clock.Now())
}
