package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/domain/production"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
	"github.com/andrescamacho/farmtown-go/internal/infrastructure/ports"
)

// StartWorkCommand occupies an empty slot: plant a crop, queue a factory
// or armory recipe, start zoo production or breeding
type StartWorkCommand struct {
	Key            production.Key
	Params         map[string]interface{}
	IdempotencyKey string
	Token          string
}

// StartWorkResponse carries the slot as the ledger returned it
type StartWorkResponse struct {
	Slot *production.Slot
	// AlreadyStarted is true when another actor occupied the slot first
	// (benign race; the caller resynchronizes instead of erroring)
	AlreadyStarted bool
}

// StartWorkHandler validates and executes start-work against the ledger,
// reflecting the returned timestamps into the slot cache
type StartWorkHandler struct {
	ledger   ports.LedgerClient
	cache    production.SlotCache
	messages common.MessageRecorder
	clock    shared.Clock
}

// NewStartWorkHandler creates a new start-work handler
func NewStartWorkHandler(
	ledger ports.LedgerClient,
	cache production.SlotCache,
	messages common.MessageRecorder,
	clock shared.Clock,
) *StartWorkHandler {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &StartWorkHandler{
		ledger:   ledger,
		cache:    cache,
		messages: messages,
		clock:    clock,
	}
}

// Handle executes the start-work command
func (h *StartWorkHandler) Handle(ctx context.Context, request common.Request) (common.Response, error) {
	cmd, ok := request.(*StartWorkCommand)
	if !ok {
		return nil, fmt.Errorf("invalid request type")
	}

	result, err := h.ledger.StartWork(ctx, cmd.Key, cmd.Params, cmd.IdempotencyKey, cmd.Token)
	if err != nil {
		if shared.IsBenignRace(err) {
			// Another device already planted this slot. Not an error: the
			// caller resyncs and renders whatever the ledger holds.
			return &StartWorkResponse{AlreadyStarted: true}, nil
		}

		if shared.IsValidation(err) {
			h.recordValidationDetail(ctx, cmd, err)
			return nil, err
		}

		return nil, err
	}

	if err := h.cache.Upsert(ctx, result.Slot, h.clock.Now()); err != nil {
		// Cache staleness is recoverable on the next refresh; the work is
		// already started server-side.
		return &StartWorkResponse{Slot: result.Slot}, nil
	}

	return &StartWorkResponse{Slot: result.Slot}, nil
}

// recordValidationDetail phrases a validation failure in game terms for
// the user-message log: resource name, required vs available amounts,
// slot numbers.
func (h *StartWorkHandler) recordValidationDetail(ctx context.Context, cmd *StartWorkCommand, err error) {
	var ire *shared.InsufficientResourcesError
	if errors.As(err, &ire) {
		h.messages.Record(ctx, common.MessageError, fmt.Sprintf(
			"Cannot start work on %s slot %s: need %d %s, have %d",
			cmd.Key.Kind, cmd.Key.ID, ire.Required, ire.Resource, ire.Available,
		))
		return
	}

	var ve *shared.ValidationError
	if errors.As(err, &ve) {
		h.messages.Record(ctx, common.MessageError, fmt.Sprintf(
			"Cannot start work on %s slot %s: %s",
			cmd.Key.Kind, cmd.Key.ID, ve.Message,
		))
	}
}
