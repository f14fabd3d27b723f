package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/andrescamacho/farmtown-go/internal/domain/production"
)

// GormSlotCacheRepository holds the read-through cache of ledger slot
// state. The ledger owns this data; the cache exists so the CLI and a
// reconnecting daemon can render without a network round trip.
type GormSlotCacheRepository struct {
	db *gorm.DB
}

// NewGormSlotCacheRepository creates a new GORM slot cache repository
func NewGormSlotCacheRepository(db *gorm.DB) *GormSlotCacheRepository {
	return &GormSlotCacheRepository{db: db}
}

// ReplaceAll swaps the cached slot set for a fresh ledger snapshot
func (r *GormSlotCacheRepository) ReplaceAll(ctx context.Context, slots []*production.Slot, syncedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&SlotCacheModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear slot cache: %w", err)
		}

		for _, slot := range slots {
			model, err := r.entityToModel(slot, syncedAt)
			if err != nil {
				return err
			}
			if err := tx.Create(model).Error; err != nil {
				return fmt.Errorf("failed to cache slot %s: %w", slot.Key(), err)
			}
		}
		return nil
	})
}

// Upsert reflects a single slot mutation into the cache
func (r *GormSlotCacheRepository) Upsert(ctx context.Context, slot *production.Slot, syncedAt time.Time) error {
	model, err := r.entityToModel(slot, syncedAt)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert slot %s: %w", slot.Key(), result.Error)
	}
	return nil
}

// FindAll returns every cached slot in (kind, slot_id) order
func (r *GormSlotCacheRepository) FindAll(ctx context.Context) ([]*production.Slot, error) {
	var models []SlotCacheModel
	result := r.db.WithContext(ctx).Order("kind ASC, slot_id ASC").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to read slot cache: %w", result.Error)
	}

	slots := make([]*production.Slot, 0, len(models))
	for _, model := range models {
		slot, err := r.modelToEntity(&model)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// FindByKey returns one cached slot, or nil when the cache has no row
func (r *GormSlotCacheRepository) FindByKey(ctx context.Context, key production.Key) (*production.Slot, error) {
	var model SlotCacheModel
	result := r.db.WithContext(ctx).
		Where("kind = ? AND slot_id = ?", string(key.Kind), key.ID).
		First(&model)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find cached slot %s: %w", key, result.Error)
	}

	return r.modelToEntity(&model)
}

func (r *GormSlotCacheRepository) modelToEntity(model *SlotCacheModel) (*production.Slot, error) {
	kind, err := production.ParseKind(model.Kind)
	if err != nil {
		return nil, fmt.Errorf("corrupt slot cache row %s/%s: %w", model.Kind, model.SlotID, err)
	}

	var payload map[string]interface{}
	if model.PayloadJSON != "" {
		if err := json.Unmarshal([]byte(model.PayloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload for %s/%s: %w", model.Kind, model.SlotID, err)
		}
	}

	slot := &production.Slot{
		ID:          model.SlotID,
		Kind:        kind,
		StartedAt:   model.StartedAt,
		CompletesAt: model.CompletesAt,
		Payload:     payload,
	}
	if err := slot.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt slot cache row: %w", err)
	}
	return slot, nil
}

func (r *GormSlotCacheRepository) entityToModel(slot *production.Slot, syncedAt time.Time) (*SlotCacheModel, error) {
	payloadJSON := ""
	if slot.Payload != nil {
		data, err := json.Marshal(slot.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload for %s: %w", slot.Key(), err)
		}
		payloadJSON = string(data)
	}

	return &SlotCacheModel{
		Kind:        string(slot.Kind),
		SlotID:      slot.ID,
		StartedAt:   slot.StartedAt,
		CompletesAt: slot.CompletesAt,
		PayloadJSON: payloadJSON,
		SyncedAt:    syncedAt,
	}, nil
}
