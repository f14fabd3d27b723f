package offline

import (
	"context"
	"fmt"

	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/application/production/commands"
	"github.com/andrescamacho/farmtown-go/internal/domain/production"
	"github.com/andrescamacho/farmtown-go/internal/domain/queue"
)

// TokenFunc resolves the session token at execution time, so a queued
// action replayed after a reload uses the current session
type TokenFunc func(ctx context.Context) (string, error)

// MediatorExecutor maps queued action types onto mediator commands.
// Replaying an entry sends the same idempotency key, so an ambiguous
// earlier failure resolves server-side as a benign race.
type MediatorExecutor struct {
	mediator common.Mediator
	token    TokenFunc
}

// NewMediatorExecutor creates an executor dispatching through the mediator
func NewMediatorExecutor(mediator common.Mediator, token TokenFunc) *MediatorExecutor {
	return &MediatorExecutor{mediator: mediator, token: token}
}

// Execute runs one queued action
func (e *MediatorExecutor) Execute(ctx context.Context, action *queue.QueuedAction) error {
	kind, isCollect, err := production.KindForAction(action.ActionType)
	if err != nil {
		return err
	}

	slotID := action.SlotID()
	if slotID == "" {
		return fmt.Errorf("action %s is missing slot_id", action.ActionType)
	}

	token, err := e.token(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve session token: %w", err)
	}

	key := production.Key{Kind: kind, ID: slotID}

	if isCollect {
		_, err = e.mediator.Send(ctx, &commands.CollectSlotCommand{
			Key:            key,
			IdempotencyKey: action.IdempotencyKey,
			Token:          token,
		})
		return err
	}

	params := make(map[string]interface{}, len(action.Params))
	for k, v := range action.Params {
		if k == "slot_id" {
			continue
		}
		params[k] = v
	}

	_, err = e.mediator.Send(ctx, &commands.StartWorkCommand{
		Key:            key,
		Params:         params,
		IdempotencyKey: action.IdempotencyKey,
		Token:          token,
	})
	return err
}
