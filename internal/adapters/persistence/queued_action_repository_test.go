package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/farmtown-go/internal/adapters/persistence"
	"github.com/andrescamacho/farmtown-go/internal/domain/queue"
	"github.com/andrescamacho/farmtown-go/test/helpers"
)

func newAction(actionType, slotID, key string) *queue.QueuedAction {
	return &queue.QueuedAction{
		ActionType:     actionType,
		Params:         map[string]interface{}{"slot_id": slotID},
		IdempotencyKey: key,
		EnqueuedAt:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAppendAssignsSequentialIDs(t *testing.T) {
	repo := persistence.NewGormQueuedActionRepository(helpers.NewTestDB(t))
	ctx := context.Background()

	a := newAction("harvest_plot", "plot-1", "key-a")
	b := newAction("plant_crop", "plot-1", "key-b")

	require.NoError(t, repo.Append(ctx, a))
	require.NoError(t, repo.Append(ctx, b))

	assert.Greater(t, a.ID, int64(0))
	assert.Greater(t, b.ID, a.ID)
}

func TestPeekOldestReturnsHeadOrNil(t *testing.T) {
	repo := persistence.NewGormQueuedActionRepository(helpers.NewTestDB(t))
	ctx := context.Background()

	head, err := repo.PeekOldest(ctx)
	require.NoError(t, err)
	assert.Nil(t, head, "empty queue peeks as nil")

	first := newAction("harvest_plot", "plot-1", "key-a")
	second := newAction("collect_factory", "bakery-1", "key-b")
	require.NoError(t, repo.Append(ctx, first))
	require.NoError(t, repo.Append(ctx, second))

	head, err = repo.PeekOldest(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, first.ID, head.ID)
	assert.Equal(t, "harvest_plot", head.ActionType)
	assert.Equal(t, "plot-1", head.SlotID())
	assert.Equal(t, "key-a", head.IdempotencyKey)
}

func TestParamsRoundTrip(t *testing.T) {
	repo := persistence.NewGormQueuedActionRepository(helpers.NewTestDB(t))
	ctx := context.Background()

	action := &queue.QueuedAction{
		ActionType: "start_factory",
		Params: map[string]interface{}{
			"slot_id":  "bakery-1",
			"recipe":   "bread",
			"quantity": float64(3),
		},
		IdempotencyKey: "key-a",
		EnqueuedAt:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Append(ctx, action))

	head, err := repo.PeekOldest(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, action.Params, head.Params)
}

func TestRemoveDeletesOnlyTarget(t *testing.T) {
	repo := persistence.NewGormQueuedActionRepository(helpers.NewTestDB(t))
	ctx := context.Background()

	first := newAction("harvest_plot", "plot-1", "key-a")
	second := newAction("plant_crop", "plot-1", "key-b")
	require.NoError(t, repo.Append(ctx, first))
	require.NoError(t, repo.Append(ctx, second))

	require.NoError(t, repo.Remove(ctx, first.ID))

	remaining, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, second.ID, remaining[0].ID)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUpdateAttemptsPersists(t *testing.T) {
	repo := persistence.NewGormQueuedActionRepository(helpers.NewTestDB(t))
	ctx := context.Background()

	action := newAction("harvest_plot", "plot-1", "key-a")
	require.NoError(t, repo.Append(ctx, action))

	require.NoError(t, repo.UpdateAttempts(ctx, action.ID, 2))

	head, err := repo.PeekOldest(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, 2, head.Attempts)
}

func TestListPreservesEnqueueOrder(t *testing.T) {
	repo := persistence.NewGormQueuedActionRepository(helpers.NewTestDB(t))
	ctx := context.Background()

	types := []string{"harvest_plot", "plant_crop", "start_factory", "collect_factory"}
	for i, at := range types {
		require.NoError(t, repo.Append(ctx, newAction(at, "plot-1", "key-"+string(rune('a'+i)))))
	}

	actions, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, actions, len(types))
	for i, at := range types {
		assert.Equal(t, at, actions[i].ActionType)
	}
}
