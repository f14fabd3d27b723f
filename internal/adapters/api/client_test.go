package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/farmtown-go/internal/adapters/api"
	"github.com/andrescamacho/farmtown-go/internal/domain/production"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
)

func newTestClient(baseURL string) *api.FarmLedgerClient {
	clock := shared.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := api.NewFarmLedgerClientWithConfig(baseURL, 3, 100*time.Millisecond, clock)
	c.SetRateLimit(1000, 1000) // no throttling in tests
	return c
}

func TestFarmLedgerClient_CollectSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/harvest_plot", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "3", body["slot_id"])
		assert.NotEmpty(t, body["idempotency_key"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"slot_id":"3","awards":[{"item":"carrot","quantity":12},{"item":"coins","quantity":5}]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	key := production.Key{Kind: production.KindCrop, ID: "3"}

	result, err := client.Collect(context.Background(), key, "idem-1", "test-token")

	require.NoError(t, err)
	assert.Equal(t, "3", result.SlotID)
	require.Len(t, result.Awards, 2)
	assert.Equal(t, "carrot", result.Awards[0].Item)
	assert.Equal(t, 12, result.Awards[0].Quantity)
}

func TestFarmLedgerClient_CollectNothingToCollectIsBenign(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"NOTHING_TO_COLLECT","message":"slot already empty"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	key := production.Key{Kind: production.KindFactoryRecipe, ID: "2"}

	_, err := client.Collect(context.Background(), key, "idem-2", "test-token")

	require.Error(t, err)
	assert.True(t, shared.IsBenignRace(err))
	assert.False(t, shared.IsTransient(err))
}

func TestFarmLedgerClient_StartWorkReturnsServerTimestamps(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	completes := started.Add(120 * time.Second)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/plant_crop", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"slot_id":      "5",
				"started_at":   started,
				"completes_at": completes,
				"payload":      map[string]interface{}{"crop_id": "carrot"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	key := production.Key{Kind: production.KindCrop, ID: "5"}

	result, err := client.StartWork(context.Background(), key,
		map[string]interface{}{"crop_id": "carrot"}, "idem-3", "test-token")

	require.NoError(t, err)
	assert.True(t, result.CompletesAt.Equal(completes))
	assert.Equal(t, production.StateGrowing, result.Slot.StateAt(started.Add(time.Minute)))
	assert.Equal(t, production.StateReady, result.Slot.StateAt(completes))
}

func TestFarmLedgerClient_StartWorkValidationNotRetried(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"code":"INSUFFICIENT_RESOURCES","message":"not enough seeds","details":{"resource":"carrot_seeds","required":3,"available":1}}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	key := production.Key{Kind: production.KindCrop, ID: "1"}

	_, err := client.StartWork(context.Background(), key,
		map[string]interface{}{"crop_id": "carrot"}, "idem-4", "test-token")

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "validation failures must not be retried")

	var ire *shared.InsufficientResourcesError
	require.ErrorAs(t, err, &ire)
	assert.Equal(t, "carrot_seeds", ire.Resource)
	assert.Equal(t, 3, ire.Required)
	assert.Equal(t, 1, ire.Available)
}

func TestFarmLedgerClient_ServerErrorRetriedThenSucceeds(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"slot_id":"4","awards":[]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	key := production.Key{Kind: production.KindArmoryRecipe, ID: "4"}

	result, err := client.Collect(context.Background(), key, "idem-5", "test-token")

	require.NoError(t, err)
	assert.Equal(t, "4", result.SlotID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestFarmLedgerClient_RetriesExhaustedSurfacesTransient(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	key := production.Key{Kind: production.KindZooProduction, ID: "9"}

	_, err := client.Collect(context.Background(), key, "idem-6", "test-token")

	require.Error(t, err)
	assert.True(t, shared.IsTransient(err))
	assert.Equal(t, int32(4), atomic.LoadInt32(&attempts), "initial attempt plus three retries")
}

func TestFarmLedgerClient_QueryStateParsesMixedSlots(t *testing.T) {
	started := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	completes := started.Add(time.Hour)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query_state", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"slot_id": "1", "kind": "crop", "started_at": started, "completes_at": completes, "payload": map[string]interface{}{"crop_id": "wheat"}},
				{"slot_id": "2", "kind": "crop"},
				{"slot_id": "1", "kind": "zooBreeding", "started_at": started, "completes_at": completes},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	slots, err := client.QueryState(context.Background(), "test-token")

	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.False(t, slots[0].IsEmpty())
	assert.True(t, slots[1].IsEmpty())
	assert.Equal(t, production.KindZooBreeding, slots[2].Kind)
	assert.Equal(t, production.Key{Kind: production.KindCrop, ID: "1"}, slots[0].Key())
}

func TestFarmLedgerClient_MalformedSlotRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// completes_at without started_at violates the occupancy invariant
		w.Write([]byte(`{"data":[{"slot_id":"1","kind":"crop","completes_at":"2026-03-01T12:00:00Z"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.QueryState(context.Background(), "test-token")

	assert.Error(t, err)
}
