package offline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/farmtown-go/internal/adapters/persistence"
	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/domain/queue"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
	"github.com/andrescamacho/farmtown-go/test/helpers"
)

// fakeExecutor scripts per-action outcomes and records dispatch order
type fakeExecutor struct {
	mu    sync.Mutex
	calls []string

	// outcomes maps action type to a sequence of errors, consumed one per
	// attempt; running past the end means success
	outcomes map[string][]error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{outcomes: map[string][]error{}}
}

func (f *fakeExecutor) failWith(actionType string, errs ...error) {
	f.outcomes[actionType] = errs
}

func (f *fakeExecutor) Execute(ctx context.Context, action *queue.QueuedAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action.ActionType)

	seq := f.outcomes[action.ActionType]
	if len(seq) == 0 {
		return nil
	}
	err := seq[0]
	f.outcomes[action.ActionType] = seq[1:]
	return err
}

func (f *fakeExecutor) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type recordedMessage struct {
	level   common.MessageLevel
	message string
}

type capturingRecorder struct {
	mu       sync.Mutex
	messages []recordedMessage
}

func (c *capturingRecorder) Record(ctx context.Context, level common.MessageLevel, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, recordedMessage{level, message})
}

func (c *capturingRecorder) all() []recordedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]recordedMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func newTestQueue(t *testing.T) (*Queue, *fakeExecutor, *capturingRecorder, queue.ActionStore) {
	t.Helper()
	db := helpers.NewTestDB(t)
	store := persistence.NewGormQueuedActionRepository(db)
	exec := newFakeExecutor()
	messages := &capturingRecorder{}
	clock := shared.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewQueue(store, exec, messages, clock), exec, messages, store
}

func TestFlushPreservesEnqueueOrder(t *testing.T) {
	q, exec, _, store := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "harvest_plot", map[string]interface{}{"slot_id": "plot-1"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "plant_crop", map[string]interface{}{"slot_id": "plot-1", "crop": "wheat"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "collect_factory", map[string]interface{}{"slot_id": "bakery-1"})
	require.NoError(t, err)

	require.NoError(t, q.Flush(ctx))

	assert.Equal(t, []string{"harvest_plot", "plant_crop", "collect_factory"}, exec.callOrder())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestEnqueueAssignsIdempotencyKey(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	a, err := q.Enqueue(ctx, "harvest_plot", map[string]interface{}{"slot_id": "plot-1"})
	require.NoError(t, err)
	b, err := q.Enqueue(ctx, "harvest_plot", map[string]interface{}{"slot_id": "plot-2"})
	require.NoError(t, err)

	assert.NotEmpty(t, a.IdempotencyKey)
	assert.NotEmpty(t, b.IdempotencyKey)
	assert.NotEqual(t, a.IdempotencyKey, b.IdempotencyKey)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a.IdempotencyKey, pending[0].IdempotencyKey)
}

func TestQueueSurvivesRestart(t *testing.T) {
	db := helpers.NewTestDB(t)
	store := persistence.NewGormQueuedActionRepository(db)
	clock := shared.NewMockClock(time.Time{})
	ctx := context.Background()

	first := NewQueue(store, newFakeExecutor(), nil, clock)
	first.SetOnline(false)
	_, err := first.Enqueue(ctx, "harvest_plot", map[string]interface{}{"slot_id": "plot-1"})
	require.NoError(t, err)
	_, err = first.Enqueue(ctx, "start_factory", map[string]interface{}{"slot_id": "bakery-1", "recipe": "bread"})
	require.NoError(t, err)

	// A fresh queue over the same store stands in for a process restart
	exec := newFakeExecutor()
	second := NewQueue(store, exec, nil, clock)
	require.NoError(t, second.Flush(ctx))

	assert.Equal(t, []string{"harvest_plot", "start_factory"}, exec.callOrder())
}

func TestOfflineEnqueueDoesNotDispatch(t *testing.T) {
	q, exec, _, store := newTestQueue(t)
	ctx := context.Background()

	q.SetOnline(false)
	_, err := q.Enqueue(ctx, "harvest_plot", map[string]interface{}{"slot_id": "plot-1"})
	require.NoError(t, err)

	require.NoError(t, q.Flush(ctx))
	assert.Empty(t, exec.callOrder())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	q.SetOnline(true)
	require.NoError(t, q.Flush(ctx))
	assert.Equal(t, []string{"harvest_plot"}, exec.callOrder())
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	q, exec, messages, _ := newTestQueue(t)
	ctx := context.Background()

	exec.failWith("harvest_plot",
		shared.NewTransientError("temporary outage", assert.AnError),
		shared.NewTransientError("temporary outage", assert.AnError),
	)

	var finalAttempts int
	q.Subscribe(func(action *queue.QueuedAction, err error) {
		finalAttempts = action.Attempts
	})

	_, err := q.Enqueue(ctx, "harvest_plot", map[string]interface{}{"slot_id": "plot-1"})
	require.NoError(t, err)
	require.NoError(t, q.Flush(ctx))

	assert.Equal(t, []string{"harvest_plot", "harvest_plot", "harvest_plot"}, exec.callOrder())
	assert.Equal(t, 3, finalAttempts)
	assert.Empty(t, messages.all(), "recovered actions should not produce user messages")
}

func TestPoisonedEntryIsAbandonedAndQueueContinues(t *testing.T) {
	q, exec, messages, store := newTestQueue(t)
	ctx := context.Background()

	exec.failWith("harvest_plot",
		shared.NewTransientError("temporary outage", assert.AnError),
		shared.NewTransientError("temporary outage", assert.AnError),
		shared.NewTransientError("temporary outage", assert.AnError),
	)

	_, err := q.Enqueue(ctx, "harvest_plot", map[string]interface{}{"slot_id": "plot-1"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "plant_crop", map[string]interface{}{"slot_id": "plot-2", "crop": "corn"})
	require.NoError(t, err)

	require.NoError(t, q.Flush(ctx))

	// The poisoned entry burned its three attempts, then the next entry ran
	assert.Equal(t, []string{"harvest_plot", "harvest_plot", "harvest_plot", "plant_crop"}, exec.callOrder())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	all := messages.all()
	require.Len(t, all, 1)
	assert.Equal(t, common.MessageWarning, all[0].level)
	assert.Contains(t, all[0].message, "harvest_plot")
	assert.Contains(t, all[0].message, "plot-1")
}

func TestValidationErrorIsNotRetried(t *testing.T) {
	q, exec, messages, _ := newTestQueue(t)
	ctx := context.Background()

	exec.failWith("plant_crop", &shared.ValidationError{Field: "crop", Message: "unknown crop"})

	_, err := q.Enqueue(ctx, "plant_crop", map[string]interface{}{"slot_id": "plot-1", "crop": "moonberry"})
	require.NoError(t, err)
	require.NoError(t, q.Flush(ctx))

	assert.Equal(t, []string{"plant_crop"}, exec.callOrder())

	all := messages.all()
	require.Len(t, all, 1)
	assert.Equal(t, common.MessageError, all[0].level)
	assert.Contains(t, all[0].message, "rejected")
}

func TestBenignRaceResolvesSilently(t *testing.T) {
	q, exec, messages, store := newTestQueue(t)
	ctx := context.Background()

	exec.failWith("harvest_plot", shared.NewBenignRaceError("harvest_plot", "plot-1"))

	var notified []error
	q.Subscribe(func(action *queue.QueuedAction, err error) {
		notified = append(notified, err)
	})

	_, err := q.Enqueue(ctx, "harvest_plot", map[string]interface{}{"slot_id": "plot-1"})
	require.NoError(t, err)
	require.NoError(t, q.Flush(ctx))

	// Resolved without retry, without a user message, entry removed
	assert.Equal(t, []string{"harvest_plot"}, exec.callOrder())
	assert.Empty(t, messages.all())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.Len(t, notified, 1)
	assert.True(t, shared.IsBenignRace(notified[0]))
}

func TestAttemptCounterPersistsAcrossRestart(t *testing.T) {
	db := helpers.NewTestDB(t)
	store := persistence.NewGormQueuedActionRepository(db)
	clock := shared.NewMockClock(time.Time{})
	ctx := context.Background()

	// First process: the entry burned two attempts before the process died
	q1 := NewQueue(store, newFakeExecutor(), nil, clock)
	q1.SetOnline(false)
	_, err := q1.Enqueue(ctx, "harvest_plot", map[string]interface{}{"slot_id": "plot-1"})
	require.NoError(t, err)

	pending, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, store.UpdateAttempts(ctx, pending[0].ID, 2))

	// Second process picks up the persisted attempt count and abandons
	// after a single further failure
	exec2 := newFakeExecutor()
	exec2.failWith("harvest_plot", shared.NewTransientError("temporary outage", assert.AnError))
	messages := &capturingRecorder{}
	q2 := NewQueue(store, exec2, messages, clock)
	require.NoError(t, q2.Flush(ctx))

	assert.Equal(t, []string{"harvest_plot"}, exec2.callOrder())
	require.Len(t, messages.all(), 1)
	assert.Contains(t, messages.all()[0].message, "3 attempts")
}

func TestListenersObserveTerminalOutcomes(t *testing.T) {
	q, exec, _, _ := newTestQueue(t)
	ctx := context.Background()

	exec.failWith("plant_crop", &shared.ValidationError{Field: "crop", Message: "unknown crop"})

	type outcome struct {
		actionType string
		err        error
	}
	var outcomes []outcome
	q.Subscribe(func(action *queue.QueuedAction, err error) {
		outcomes = append(outcomes, outcome{action.ActionType, err})
	})

	_, err := q.Enqueue(ctx, "harvest_plot", map[string]interface{}{"slot_id": "plot-1"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "plant_crop", map[string]interface{}{"slot_id": "plot-1", "crop": "moonberry"})
	require.NoError(t, err)
	require.NoError(t, q.Flush(ctx))

	require.Len(t, outcomes, 2)
	assert.Equal(t, "harvest_plot", outcomes[0].actionType)
	assert.NoError(t, outcomes[0].err)
	assert.Equal(t, "plant_crop", outcomes[1].actionType)
	assert.True(t, shared.IsValidation(outcomes[1].err))
}
