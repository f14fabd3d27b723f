package persistence

import (
	"time"
)

// SessionModel represents the sessions table
// NOTE: slot state is NOT authoritative here - the ledger owns it; the
// session row only carries the auth token and identity.
type SessionModel struct {
	ID         int        `gorm:"column:id;primaryKey;autoIncrement"`
	PlayerName string     `gorm:"column:player_name;unique;not null"`
	Token      string     `gorm:"column:token;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null"`
	LastActive *time.Time `gorm:"column:last_active"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

// QueuedActionModel represents the queued_actions table - the durable
// store behind the offline queue. Ordering is by autoincrement id;
// ParamsJSON holds the key/value arguments as JSON text.
type QueuedActionModel struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ActionType     string    `gorm:"column:action_type;not null"`
	ParamsJSON     string    `gorm:"column:params;type:text"`
	IdempotencyKey string    `gorm:"column:idempotency_key;not null"`
	Attempts       int       `gorm:"column:attempts;not null;default:0"`
	EnqueuedAt     time.Time `gorm:"column:enqueued_at;not null"`
}

func (QueuedActionModel) TableName() string {
	return "queued_actions"
}

// SlotCacheModel represents the slot_cache table - a read-through cache
// of ledger slot state for offline rendering. Primary key is composite:
// (kind, slot_id).
type SlotCacheModel struct {
	Kind        string     `gorm:"column:kind;primaryKey;size:50;not null"`
	SlotID      string     `gorm:"column:slot_id;primaryKey;size:100;not null"`
	StartedAt   *time.Time `gorm:"column:started_at"`
	CompletesAt *time.Time `gorm:"column:completes_at"`
	PayloadJSON string     `gorm:"column:payload;type:text"`
	SyncedAt    time.Time  `gorm:"column:synced_at;not null"`
}

func (SlotCacheModel) TableName() string {
	return "slot_cache"
}

// UserMessageModel represents the user_messages table - the user-visible
// message log receiving validation details and abandoned-action reports
type UserMessageModel struct {
	ID        int       `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"column:timestamp;not null"`
	Level     string    `gorm:"column:level;not null;default:'INFO'"`
	Message   string    `gorm:"column:message;type:text;not null"`
}

func (UserMessageModel) TableName() string {
	return "user_messages"
}
