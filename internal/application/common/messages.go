package common

import (
	"context"
	"time"
)

// MessageLevel classifies user-visible messages
type MessageLevel string

const (
	MessageInfo    MessageLevel = "INFO"
	MessageWarning MessageLevel = "WARNING"
	MessageError   MessageLevel = "ERROR"
)

// UserMessage is one entry in the user-visible message log
type UserMessage struct {
	Timestamp time.Time
	Level     MessageLevel
	Message   string
}

// MessageRecorder receives user-visible messages: validation details,
// abandoned-action reports, reconnect notices. Raw transport errors
// never go through here; callers phrase messages in game terms.
type MessageRecorder interface {
	Record(ctx context.Context, level MessageLevel, message string)
}

// NoopMessageRecorder discards messages (fallback for tests and tools
// that run without a database)
type NoopMessageRecorder struct{}

func (NoopMessageRecorder) Record(ctx context.Context, level MessageLevel, message string) {}
