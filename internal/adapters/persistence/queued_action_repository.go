package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/andrescamacho/farmtown-go/internal/domain/queue"
)

// GormQueuedActionRepository implements queue.ActionStore using GORM
type GormQueuedActionRepository struct {
	db *gorm.DB
}

// NewGormQueuedActionRepository creates a new GORM queued action repository
func NewGormQueuedActionRepository(db *gorm.DB) *GormQueuedActionRepository {
	return &GormQueuedActionRepository{db: db}
}

// Append persists a new action at the tail of the queue and assigns its
// local id
func (r *GormQueuedActionRepository) Append(ctx context.Context, action *queue.QueuedAction) error {
	model, err := r.entityToModel(action)
	if err != nil {
		return fmt.Errorf("failed to convert action to model: %w", err)
	}

	result := r.db.WithContext(ctx).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to append action: %w", result.Error)
	}

	action.ID = model.ID
	return nil
}

// PeekOldest returns the head of the queue without removing it, or nil
// when the queue is empty
func (r *GormQueuedActionRepository) PeekOldest(ctx context.Context) (*queue.QueuedAction, error) {
	var model QueuedActionModel
	result := r.db.WithContext(ctx).Order("id ASC").First(&model)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to peek queue: %w", result.Error)
	}

	return r.modelToEntity(&model)
}

// Remove deletes an action by its local id
func (r *GormQueuedActionRepository) Remove(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&QueuedActionModel{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to remove action %d: %w", id, result.Error)
	}
	return nil
}

// UpdateAttempts persists the retry counter so attempts survive a restart
func (r *GormQueuedActionRepository) UpdateAttempts(ctx context.Context, id int64, attempts int) error {
	result := r.db.WithContext(ctx).
		Model(&QueuedActionModel{}).
		Where("id = ?", id).
		Update("attempts", attempts)
	if result.Error != nil {
		return fmt.Errorf("failed to update attempts for action %d: %w", id, result.Error)
	}
	return nil
}

// List returns all pending actions in enqueue order
func (r *GormQueuedActionRepository) List(ctx context.Context) ([]*queue.QueuedAction, error) {
	var models []QueuedActionModel
	result := r.db.WithContext(ctx).Order("id ASC").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list actions: %w", result.Error)
	}

	actions := make([]*queue.QueuedAction, 0, len(models))
	for _, model := range models {
		entity, err := r.modelToEntity(&model)
		if err != nil {
			return nil, fmt.Errorf("failed to convert action %d: %w", model.ID, err)
		}
		actions = append(actions, entity)
	}

	return actions, nil
}

// Count returns the number of pending actions
func (r *GormQueuedActionRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&QueuedActionModel{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count actions: %w", result.Error)
	}
	return count, nil
}

// modelToEntity converts database model to domain entity
func (r *GormQueuedActionRepository) modelToEntity(model *QueuedActionModel) (*queue.QueuedAction, error) {
	var params map[string]interface{}
	if model.ParamsJSON != "" {
		if err := json.Unmarshal([]byte(model.ParamsJSON), &params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}

	return &queue.QueuedAction{
		ID:             model.ID,
		ActionType:     model.ActionType,
		Params:         params,
		IdempotencyKey: model.IdempotencyKey,
		Attempts:       model.Attempts,
		EnqueuedAt:     model.EnqueuedAt,
	}, nil
}

// entityToModel converts domain entity to database model
func (r *GormQueuedActionRepository) entityToModel(action *queue.QueuedAction) (*QueuedActionModel, error) {
	paramsJSON, err := json.Marshal(action.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	return &QueuedActionModel{
		ID:             action.ID,
		ActionType:     action.ActionType,
		ParamsJSON:     string(paramsJSON),
		IdempotencyKey: action.IdempotencyKey,
		Attempts:       action.Attempts,
		EnqueuedAt:     action.EnqueuedAt,
	}, nil
}
