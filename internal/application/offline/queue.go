package offline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/domain/queue"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 100 * time.Millisecond
)

// Executor runs one queued action remotely. The offline queue does not
// know about transports; the executor dispatches through the mediator.
type Executor interface {
	Execute(ctx context.Context, action *queue.QueuedAction) error
}

// ResultListener observes the terminal outcome of a queued action:
// err is nil on success, a BenignRaceError when another actor already
// applied the effect, or the final classified error when the action was
// abandoned. The reconciler uses this to release in-flight guards.
type ResultListener func(action *queue.QueuedAction, err error)

// Queue is the process-wide offline action queue: a durable, ordered
// buffer of pending remote mutations. Enqueue is safe from any slot
// concurrently (append-only); only Flush dequeues, strictly oldest
// first. Entries survive restarts via the backing ActionStore.
type Queue struct {
	store    queue.ActionStore
	exec     Executor
	messages common.MessageRecorder
	clock    shared.Clock

	maxAttempts int
	backoffBase time.Duration

	mu        sync.Mutex
	online    bool
	listeners []ResultListener

	// flushMu serializes Flush so queued actions are never dispatched in
	// parallel or reordered
	flushMu sync.Mutex

	kick chan struct{}
}

// NewQueue creates an offline queue over a durable store.
// Retry policy: up to 3 attempts per entry with 100ms x attempt backoff.
func NewQueue(
	store queue.ActionStore,
	exec Executor,
	messages common.MessageRecorder,
	clock shared.Clock,
) *Queue {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if messages == nil {
		messages = common.NoopMessageRecorder{}
	}
	return &Queue{
		store:       store,
		exec:        exec,
		messages:    messages,
		clock:       clock,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		online:      true,
		kick:        make(chan struct{}, 1),
	}
}

// SetRetryPolicy overrides the per-entry retry ceiling and backoff base
// (used by config wiring)
func (q *Queue) SetRetryPolicy(maxAttempts int, backoffBase time.Duration) {
	q.maxAttempts = maxAttempts
	q.backoffBase = backoffBase
}

// Subscribe registers a listener for terminal action outcomes
func (q *Queue) Subscribe(l ResultListener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

// Online reports current connectivity as last signalled
func (q *Queue) Online() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

// SetOnline signals a connectivity change. An offline-to-online
// transition triggers a flush.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	wasOnline := q.online
	q.online = online
	q.mu.Unlock()

	if online && !wasOnline {
		q.requestFlush()
	}
}

// Enqueue appends a pending action to the durable queue and returns
// immediately without waiting for network. If currently online, a flush
// is triggered.
func (q *Queue) Enqueue(ctx context.Context, actionType string, params map[string]interface{}) (*queue.QueuedAction, error) {
	action := &queue.QueuedAction{
		ActionType:     actionType,
		Params:         params,
		IdempotencyKey: uuid.NewString(),
		EnqueuedAt:     q.clock.Now(),
	}

	if err := q.store.Append(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", actionType, err)
	}

	if q.Online() {
		q.requestFlush()
	}

	return action, nil
}

// Pending returns the queued actions in enqueue order
func (q *Queue) Pending(ctx context.Context) ([]*queue.QueuedAction, error) {
	return q.store.List(ctx)
}

// Flush drains the queue while online: pop the oldest entry, execute it,
// remove it on success. Order is preserved strictly - later actions may
// depend on earlier state (harvest before replant). A poisoned entry is
// abandoned after the retry ceiling rather than stalling the queue.
func (q *Queue) Flush(ctx context.Context) error {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !q.Online() {
			return nil
		}

		action, err := q.store.PeekOldest(ctx)
		if err != nil {
			return fmt.Errorf("failed to read queue head: %w", err)
		}
		if action == nil {
			return nil
		}

		execErr := q.executeWithRetry(ctx, action)

		if err := q.store.Remove(ctx, action.ID); err != nil {
			return fmt.Errorf("failed to remove action %d: %w", action.ID, err)
		}

		q.report(ctx, action, execErr)
		q.notify(action, execErr)
	}
}

// Run flushes on demand until the context is cancelled: once at startup
// (reload recovery), then on every enqueue-while-online and
// offline-to-online transition
func (q *Queue) Run(ctx context.Context) {
	_ = q.Flush(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.kick:
			_ = q.Flush(ctx)
		}
	}
}

// executeWithRetry applies the retry policy to one entry. Success and
// benign races terminate immediately; validation and fatal errors are
// never retried; transient failures retry with increasing delay up to
// the ceiling. Attempts persist so a restart does not reset the counter.
func (q *Queue) executeWithRetry(ctx context.Context, action *queue.QueuedAction) error {
	attempts := action.Attempts

	for {
		attempts++
		action.Attempts = attempts
		_ = q.store.UpdateAttempts(ctx, action.ID, attempts)

		err := q.exec.Execute(ctx, action)
		if err == nil || shared.IsBenignRace(err) {
			return err
		}

		if !shared.IsTransient(err) {
			// Validation and fatal errors do not benefit from retry
			return err
		}

		if attempts >= q.maxAttempts {
			return err
		}

		q.clock.Sleep(q.backoffBase * time.Duration(attempts))
	}
}

// report surfaces abandoned actions through the user-message log.
// Success and benign races are silent.
func (q *Queue) report(ctx context.Context, action *queue.QueuedAction, err error) {
	if err == nil || shared.IsBenignRace(err) {
		return
	}

	if shared.IsValidation(err) {
		q.messages.Record(ctx, common.MessageError, fmt.Sprintf(
			"Action %s for slot %s was rejected: %v", action.ActionType, action.SlotID(), err))
		return
	}

	if shared.IsTransient(err) {
		q.messages.Record(ctx, common.MessageWarning, fmt.Sprintf(
			"Action %s for slot %s failed after %d attempts and was dropped; you can retry it manually",
			action.ActionType, action.SlotID(), action.Attempts))
		return
	}

	q.messages.Record(ctx, common.MessageError, fmt.Sprintf(
		"Action %s for slot %s failed unexpectedly: %v", action.ActionType, action.SlotID(), err))
}

func (q *Queue) notify(action *queue.QueuedAction, err error) {
	q.mu.Lock()
	listeners := make([]ResultListener, len(q.listeners))
	copy(listeners, q.listeners)
	q.mu.Unlock()

	for _, l := range listeners {
		l(action, err)
	}
}

func (q *Queue) requestFlush() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}
