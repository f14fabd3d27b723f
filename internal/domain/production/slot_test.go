package production_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/farmtown-go/internal/domain/production"
)

func TestSlot_StateDerivation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty slot", func(t *testing.T) {
		slot := production.NewEmptySlot("3", production.KindCrop)

		assert.Equal(t, production.StateEmpty, slot.StateAt(now))
		assert.True(t, slot.IsEmpty())
		assert.Equal(t, time.Duration(0), slot.Remaining(now))
	})

	t.Run("growing before completion", func(t *testing.T) {
		slot, err := production.NewOccupiedSlot("3", production.KindCrop,
			now, now.Add(120*time.Second), map[string]interface{}{"crop_id": "carrot"})
		require.NoError(t, err)

		assert.Equal(t, production.StateGrowing, slot.StateAt(now.Add(119*time.Second)))
		assert.Equal(t, time.Second, slot.Remaining(now.Add(119*time.Second)))
	})

	t.Run("ready at exact completion time", func(t *testing.T) {
		slot, err := production.NewOccupiedSlot("3", production.KindCrop,
			now, now.Add(120*time.Second), nil)
		require.NoError(t, err)

		assert.Equal(t, production.StateReady, slot.StateAt(now.Add(120*time.Second)))
	})

	t.Run("ready after completion time", func(t *testing.T) {
		slot, err := production.NewOccupiedSlot("3", production.KindCrop,
			now, now.Add(120*time.Second), nil)
		require.NoError(t, err)

		assert.Equal(t, production.StateReady, slot.StateAt(now.Add(121*time.Second)))
		assert.Equal(t, time.Duration(0), slot.Remaining(now.Add(121*time.Second)))
	})
}

func TestSlot_StateIsMonotonicInTime(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	slot, err := production.NewOccupiedSlot("7", production.KindFactoryRecipe,
		start, start.Add(5*time.Minute), nil)
	require.NoError(t, err)

	// Once READY, advancing the clock never reverts the state
	seenReady := false
	for tick := 0; tick < 600; tick++ {
		state := slot.StateAt(start.Add(time.Duration(tick) * time.Second))
		if seenReady {
			assert.Equal(t, production.StateReady, state, "tick %d reverted from READY", tick)
		}
		if state == production.StateReady {
			seenReady = true
		}
	}
	assert.True(t, seenReady)
}

func TestSlot_OccupancyInvariant(t *testing.T) {
	now := time.Now().UTC()

	t.Run("completesAt before startedAt rejected", func(t *testing.T) {
		_, err := production.NewOccupiedSlot("1", production.KindCrop,
			now, now.Add(-time.Minute), nil)
		assert.Error(t, err)
	})

	t.Run("half-set timestamps rejected", func(t *testing.T) {
		slot := production.NewEmptySlot("1", production.KindCrop)
		slot.StartedAt = &now

		assert.Error(t, slot.Validate())
	})

	t.Run("clear returns slot to empty", func(t *testing.T) {
		slot, err := production.NewOccupiedSlot("1", production.KindZooBreeding,
			now, now.Add(time.Hour), map[string]interface{}{"animal_ids": []string{"a", "b"}})
		require.NoError(t, err)

		slot.Clear()

		assert.True(t, slot.IsEmpty())
		assert.NoError(t, slot.Validate())
		assert.Nil(t, slot.Payload)
	})
}

func TestActionTypeMapping(t *testing.T) {
	for _, kind := range production.Kinds() {
		start, err := production.StartActionType(kind)
		require.NoError(t, err)
		collect, err := production.CollectActionType(kind)
		require.NoError(t, err)
		assert.NotEqual(t, start, collect)

		k, isCollect, err := production.KindForAction(start)
		require.NoError(t, err)
		assert.Equal(t, kind, k)
		assert.False(t, isCollect)

		k, isCollect, err = production.KindForAction(collect)
		require.NoError(t, err)
		assert.Equal(t, kind, k)
		assert.True(t, isCollect)
	}

	_, _, err := production.KindForAction("launch_rocket")
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := production.ParseKind("factoryRecipe")
	require.NoError(t, err)
	assert.Equal(t, production.KindFactoryRecipe, k)

	_, err = production.ParseKind("spaceship")
	assert.Error(t, err)
}
