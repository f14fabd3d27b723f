package reconciler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/application/offline"
	"github.com/andrescamacho/farmtown-go/internal/domain/production"
	"github.com/andrescamacho/farmtown-go/internal/domain/queue"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
)

const defaultTickInterval = time.Second

// RefreshFunc fetches the current slot set from the ledger (or its
// cache when offline). Realtime notifications and polling both land
// here; the reconciler treats them identically.
type RefreshFunc func(ctx context.Context) ([]*production.Slot, error)

// SlotView is a render-ready snapshot of one tracked slot
type SlotView struct {
	Key       production.Key
	State     production.State
	Remaining time.Duration
	Countdown string
	InFlight  bool
}

// trackedSlot pairs a slot with its collection guard state.
// inFlight prevents duplicate concurrent collection attempts; autoFired
// keeps an abandoned auto-collect from refiring every tick (manual
// collection stays possible).
type trackedSlot struct {
	slot      *production.Slot
	inFlight  bool
	autoFired bool
}

// Reconciler tracks production slots against their server-assigned
// completion timestamps: derives display state every tick, fires an
// idempotent auto-collect exactly once per completion, and recovers
// from races by resynchronizing from the ledger.
//
// Guards are scoped per slot key - two different slots may have
// collection calls outstanding concurrently and never block each other.
type Reconciler struct {
	mu    sync.Mutex
	slots map[production.Key]*trackedSlot

	actions  *offline.Queue
	refresh  RefreshFunc
	messages common.MessageRecorder
	clock    shared.Clock
	interval time.Duration
}

// New creates a reconciler wired to the offline queue. The reconciler
// subscribes to action outcomes so guards release when a collect
// finishes, fails, or resolves as a benign race.
func New(
	actions *offline.Queue,
	refresh RefreshFunc,
	messages common.MessageRecorder,
	clock shared.Clock,
) *Reconciler {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if messages == nil {
		messages = common.NoopMessageRecorder{}
	}

	r := &Reconciler{
		slots:    make(map[production.Key]*trackedSlot),
		actions:  actions,
		refresh:  refresh,
		messages: messages,
		clock:    clock,
		interval: defaultTickInterval,
	}

	actions.Subscribe(r.onActionResult)

	return r
}

// SetTickInterval overrides the 1s default (used by config wiring)
func (r *Reconciler) SetTickInterval(d time.Duration) {
	r.interval = d
}

// SetSlots replaces the tracked slot set with a ledger snapshot.
// Guard state carries over by key; a slot the ledger reports as empty
// or newly restarted has its guards cleared.
func (r *Reconciler) SetSlots(slots []*production.Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[production.Key]*trackedSlot, len(slots))
	for _, slot := range slots {
		key := slot.Key()
		tracked := &trackedSlot{slot: slot}

		if prev, ok := r.slots[key]; ok && !slot.IsEmpty() && sameWork(prev.slot, slot) {
			tracked.inFlight = prev.inFlight
			tracked.autoFired = prev.autoFired
		}

		next[key] = tracked
	}
	r.slots = next
}

// sameWork reports whether two snapshots describe the same occupancy,
// so guards survive a refresh mid-collection but reset on new work
func sameWork(a, b *production.Slot) bool {
	if a == nil || a.CompletesAt == nil || b.CompletesAt == nil {
		return false
	}
	return a.CompletesAt.Equal(*b.CompletesAt)
}

// Forget stops tracking a slot. A late network response for it updates
// no tracked state.
func (r *Reconciler) Forget(key production.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, key)
}

// Snapshot returns render-ready views of every tracked slot
func (r *Reconciler) Snapshot() []SlotView {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	views := make([]SlotView, 0, len(r.slots))
	for key, tracked := range r.slots {
		remaining := tracked.slot.Remaining(now)
		views = append(views, SlotView{
			Key:       key,
			State:     tracked.slot.StateAt(now),
			Remaining: remaining,
			Countdown: production.FormatRemaining(remaining),
			InFlight:  tracked.inFlight,
		})
	}
	return views
}

// Tick derives each slot's state at the current time and enqueues an
// auto-collect for every slot that is READY, not already in flight, and
// not already auto-fired. Pure derivation needs no network; only the
// READY transition has a side effect.
func (r *Reconciler) Tick(ctx context.Context) {
	now := r.clock.Now()

	r.mu.Lock()
	var due []production.Key
	for key, tracked := range r.slots {
		if tracked.slot.StateAt(now) != production.StateReady {
			continue
		}
		if tracked.inFlight || tracked.autoFired {
			continue
		}
		tracked.inFlight = true
		tracked.autoFired = true
		due = append(due, key)
	}
	r.mu.Unlock()

	for _, key := range due {
		if err := r.enqueueCollect(ctx, key); err != nil {
			log.Printf("auto-collect enqueue failed for %s: %v", key, err)
			r.release(key)
		}
	}
}

// Collect performs a user-initiated collect on a READY slot. It shares
// the in-flight guard with auto-collection, so a manual click and an
// auto-collect firing in the same tick cannot both execute.
func (r *Reconciler) Collect(ctx context.Context, key production.Key) error {
	now := r.clock.Now()

	r.mu.Lock()
	tracked, ok := r.slots[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("unknown slot %s", key)
	}
	if tracked.slot.StateAt(now) != production.StateReady {
		r.mu.Unlock()
		return fmt.Errorf("slot %s is not ready for collection", key)
	}
	if tracked.inFlight {
		// A collection is already underway; the manual request folds into it
		r.mu.Unlock()
		return nil
	}
	tracked.inFlight = true
	r.mu.Unlock()

	if err := r.enqueueCollect(ctx, key); err != nil {
		r.release(key)
		return err
	}
	return nil
}

// Resync refetches slot state and replaces the tracked set. Called on
// startup, on realtime change notifications, and on poll ticks.
func (r *Reconciler) Resync(ctx context.Context) error {
	slots, err := r.refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to resync slot state: %w", err)
	}
	r.SetSlots(slots)
	return nil
}

// Run ticks at the configured interval until the context is cancelled.
// Cancellation stops the timer; a network response arriving afterwards
// only touches the process-wide queue, never this reconciler's state.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

func (r *Reconciler) enqueueCollect(ctx context.Context, key production.Key) error {
	actionType, err := production.CollectActionType(key.Kind)
	if err != nil {
		return err
	}

	_, err = r.actions.Enqueue(ctx, actionType, map[string]interface{}{
		"slot_id": key.ID,
	})
	return err
}

// onActionResult releases the slot's guard when its collect action
// reaches a terminal outcome. Success and benign races resolve silently
// and trigger a resync so the emptied slot renders; an abandoned action
// was already reported by the queue and leaves the slot collectable
// manually.
func (r *Reconciler) onActionResult(action *queue.QueuedAction, err error) {
	kind, isCollect, parseErr := production.KindForAction(action.ActionType)
	if parseErr != nil || !isCollect {
		return
	}
	key := production.Key{Kind: kind, ID: action.SlotID()}

	r.mu.Lock()
	tracked, ok := r.slots[key]
	if ok {
		tracked.inFlight = false
		if err == nil || shared.IsBenignRace(err) {
			// The slot is empty server-side; reflect it without waiting for
			// the next resync
			tracked.slot.Clear()
			tracked.autoFired = false
		}
	}
	r.mu.Unlock()
}

func (r *Reconciler) release(key production.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tracked, ok := r.slots[key]; ok {
		tracked.inFlight = false
		tracked.autoFired = false
	}
}
