package persistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
)

// GormSessionRepository implements session persistence using GORM
type GormSessionRepository struct {
	db    *gorm.DB
	clock shared.Clock
}

// NewGormSessionRepository creates a new GORM session repository
func NewGormSessionRepository(db *gorm.DB, clock shared.Clock) *GormSessionRepository {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &GormSessionRepository{db: db, clock: clock}
}

// Save persists a session (upsert by player name)
func (r *GormSessionRepository) Save(ctx context.Context, session *common.Session) error {
	model := &SessionModel{
		ID:         session.ID,
		PlayerName: session.PlayerName,
		Token:      session.Token,
		CreatedAt:  session.CreatedAt,
		LastActive: session.LastActive,
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = r.clock.Now()
	}

	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save session: %w", result.Error)
	}

	session.ID = model.ID
	session.CreatedAt = model.CreatedAt
	return nil
}

// FindByPlayerName retrieves a session by player name, nil if none is
// stored yet
func (r *GormSessionRepository) FindByPlayerName(ctx context.Context, playerName string) (*common.Session, error) {
	var model SessionModel
	result := r.db.WithContext(ctx).Where("player_name = ?", playerName).First(&model)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session: %w", result.Error)
	}

	return &common.Session{
		ID:         model.ID,
		PlayerName: model.PlayerName,
		Token:      model.Token,
		CreatedAt:  model.CreatedAt,
		LastActive: model.LastActive,
	}, nil
}

// Touch updates the last-active timestamp
func (r *GormSessionRepository) Touch(ctx context.Context, id int) error {
	now := r.clock.Now()
	result := r.db.WithContext(ctx).
		Model(&SessionModel{}).
		Where("id = ?", id).
		Update("last_active", now)
	if result.Error != nil {
		return fmt.Errorf("failed to touch session %d: %w", id, result.Error)
	}
	return nil
}
