package persistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
)

// GormMessageRepository implements the user-message log backed by GORM.
// Non-fatal errors (abandoned actions, validation failures) land here
// instead of being thrown at the user as raw transport errors.
type GormMessageRepository struct {
	db    *gorm.DB
	clock shared.Clock
}

// NewGormMessageRepository creates a new GORM message repository
func NewGormMessageRepository(db *gorm.DB, clock shared.Clock) *GormMessageRepository {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &GormMessageRepository{db: db, clock: clock}
}

// Record appends a user-visible message
func (r *GormMessageRepository) Record(ctx context.Context, level common.MessageLevel, message string) {
	model := &UserMessageModel{
		Timestamp: r.clock.Now(),
		Level:     string(level),
		Message:   message,
	}
	// A failed message write must never break the operation being
	// reported on; the log is best-effort.
	_ = r.db.WithContext(ctx).Create(model).Error
}

// Recent returns the newest messages, newest first
func (r *GormMessageRepository) Recent(ctx context.Context, limit int) ([]common.UserMessage, error) {
	var models []UserMessageModel
	result := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list messages: %w", result.Error)
	}

	messages := make([]common.UserMessage, len(models))
	for i, model := range models {
		messages[i] = common.UserMessage{
			Timestamp: model.Timestamp,
			Level:     common.MessageLevel(model.Level),
			Message:   model.Message,
		}
	}
	return messages, nil
}

// PruneOlderThan removes messages past their display usefulness
func (r *GormMessageRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) error {
	result := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&UserMessageModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to prune messages: %w", result.Error)
	}
	return nil
}
