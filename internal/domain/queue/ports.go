package queue

import "context"

// ActionStore is the durable ordered store behind the offline queue.
// Append assigns a monotonically increasing local ID. PeekOldest returns
// nil when the queue is empty. Contents must be restorable after a full
// process restart.
type ActionStore interface {
	Append(ctx context.Context, action *QueuedAction) error
	PeekOldest(ctx context.Context) (*QueuedAction, error)
	Remove(ctx context.Context, id int64) error
	UpdateAttempts(ctx context.Context, id int64, attempts int) error
	List(ctx context.Context) ([]*QueuedAction, error)
	Count(ctx context.Context) (int64, error)
}
