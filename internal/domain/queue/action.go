package queue

import "time"

// QueuedAction is a pending remote mutation awaiting execution. Entries
// are the only client-authoritative state in this core: they persist
// across reloads until executed successfully, and are replayed in
// enqueue order. The idempotency key travels with every execution so an
// ambiguous retry resolves server-side as a benign race.
type QueuedAction struct {
	ID             int64
	ActionType     string
	Params         map[string]interface{}
	IdempotencyKey string
	Attempts       int
	EnqueuedAt     time.Time
}

// SlotID extracts the slot identifier from the action parameters.
// Returns empty string when the action carries none.
func (a *QueuedAction) SlotID() string {
	if a.Params == nil {
		return ""
	}
	if id, ok := a.Params["slot_id"].(string); ok {
		return id
	}
	return ""
}
