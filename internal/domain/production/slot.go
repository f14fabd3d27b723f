package production

import (
	"fmt"
	"time"
)

// Kind distinguishes the five timed-work surfaces of the game. The
// reconciler treats them identically; only the action types differ.
type Kind string

const (
	KindCrop          Kind = "crop"
	KindFactoryRecipe Kind = "factoryRecipe"
	KindArmoryRecipe  Kind = "armoryRecipe"
	KindZooProduction Kind = "zooProduction"
	KindZooBreeding   Kind = "zooBreeding"
)

// Kinds lists all valid slot kinds
func Kinds() []Kind {
	return []Kind{KindCrop, KindFactoryRecipe, KindArmoryRecipe, KindZooProduction, KindZooBreeding}
}

// ParseKind validates a kind string from the wire or CLI
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown slot kind: %s", s)
}

// State is the display state derived from wall-clock time
type State string

const (
	StateEmpty   State = "EMPTY"
	StateGrowing State = "GROWING"
	StateReady   State = "READY"
)

// Key identifies a slot across collections. In-flight guards are scoped
// by Key, never shared across slots.
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Kind, k.ID)
}

// Slot represents one unit of in-progress work: a planted crop, a queued
// recipe, a breeding pair. The ledger owns this state; the client only
// reflects it. StartedAt and CompletesAt are set together or not at all.
type Slot struct {
	ID          string
	Kind        Kind
	StartedAt   *time.Time
	CompletesAt *time.Time
	Payload     map[string]interface{}
}

// NewEmptySlot creates a slot that accepts new work
func NewEmptySlot(id string, kind Kind) *Slot {
	return &Slot{ID: id, Kind: kind}
}

// NewOccupiedSlot creates a slot with in-progress work. The ledger is the
// only source of completesAt; callers pass through what it returned.
func NewOccupiedSlot(id string, kind Kind, startedAt, completesAt time.Time, payload map[string]interface{}) (*Slot, error) {
	s := &Slot{
		ID:          id,
		Kind:        kind,
		StartedAt:   &startedAt,
		CompletesAt: &completesAt,
		Payload:     payload,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate enforces the occupancy invariant: completesAt is set if and
// only if startedAt is set
func (s *Slot) Validate() error {
	if (s.StartedAt == nil) != (s.CompletesAt == nil) {
		return fmt.Errorf("slot %s: startedAt and completesAt must be set together", s.Key())
	}
	if s.StartedAt != nil && s.CompletesAt.Before(*s.StartedAt) {
		return fmt.Errorf("slot %s: completesAt precedes startedAt", s.Key())
	}
	return nil
}

// Key returns the guard-scoping identity of this slot
func (s *Slot) Key() Key {
	return Key{Kind: s.Kind, ID: s.ID}
}

// IsEmpty reports whether the slot accepts new work
func (s *Slot) IsEmpty() bool {
	return s.CompletesAt == nil
}

// StateAt derives the display state from wall-clock time. Pure and
// monotonic in now: once READY a slot never reverts to GROWING without
// new work.
func (s *Slot) StateAt(now time.Time) State {
	if s.CompletesAt == nil {
		return StateEmpty
	}
	if !now.Before(*s.CompletesAt) {
		return StateReady
	}
	return StateGrowing
}

// Remaining returns the time until collection eligibility, clamped to zero.
// Used purely for display formatting.
func (s *Slot) Remaining(now time.Time) time.Duration {
	if s.CompletesAt == nil {
		return 0
	}
	d := s.CompletesAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Clear returns the slot to empty after a successful collect
func (s *Slot) Clear() {
	s.StartedAt = nil
	s.CompletesAt = nil
	s.Payload = nil
}
