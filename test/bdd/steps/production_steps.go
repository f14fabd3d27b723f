package steps

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cucumber/godog"
	"gorm.io/gorm"

	"github.com/andrescamacho/farmtown-go/internal/adapters/persistence"
	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/application/offline"
	"github.com/andrescamacho/farmtown-go/internal/application/production/commands"
	"github.com/andrescamacho/farmtown-go/internal/application/production/queries"
	"github.com/andrescamacho/farmtown-go/internal/application/reconciler"
	"github.com/andrescamacho/farmtown-go/internal/domain/production"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
	"github.com/andrescamacho/farmtown-go/internal/infrastructure/database"
	"github.com/andrescamacho/farmtown-go/internal/infrastructure/ports"
)

// ledgerRequest is one recorded call against the fake ledger
type ledgerRequest struct {
	actionType string
	slotID     string
}

// fakeLedger is an in-process stand-in for the remote production ledger:
// authoritative slot state, idempotency-key memory, and switchable
// failure modes.
type fakeLedger struct {
	mu    sync.Mutex
	clock *shared.MockClock

	online       bool
	ambiguous    bool
	rejectStarts bool

	slots    map[production.Key]*production.Slot
	seenKeys map[string]bool
	requests []ledgerRequest

	plantsApplied   map[string]int
	harvestsApplied map[string]int
}

func newFakeLedger(clock *shared.MockClock) *fakeLedger {
	return &fakeLedger{
		clock:           clock,
		online:          true,
		slots:           map[production.Key]*production.Slot{},
		seenKeys:        map[string]bool{},
		plantsApplied:   map[string]int{},
		harvestsApplied: map[string]int{},
	}
}

func (l *fakeLedger) plant(key production.Key, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	started := l.clock.Now()
	completes := started.Add(duration)
	l.slots[key] = &production.Slot{
		ID:          key.ID,
		Kind:        key.Kind,
		StartedAt:   &started,
		CompletesAt: &completes,
	}
}

func (l *fakeLedger) clearSlot(key production.Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slot, ok := l.slots[key]; ok {
		slot.Clear()
	}
}

func (l *fakeLedger) StartWork(ctx context.Context, key production.Key, params map[string]interface{}, idempotencyKey, token string) (*ports.StartWorkResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.online {
		return nil, shared.NewTransientError("ledger unreachable", fmt.Errorf("connection refused"))
	}
	l.requests = append(l.requests, ledgerRequest{"plant_crop", key.ID})

	if l.rejectStarts {
		return nil, shared.NewInsufficientResourcesError("seeds", 1, 0)
	}
	if l.seenKeys[idempotencyKey] {
		return nil, shared.NewBenignRaceError("start_work", key.ID)
	}
	if slot, ok := l.slots[key]; ok && !slot.IsEmpty() {
		return nil, shared.NewBenignRaceError("start_work", key.ID)
	}

	started := l.clock.Now()
	completes := started.Add(120 * time.Second)
	slot := &production.Slot{
		ID:          key.ID,
		Kind:        key.Kind,
		StartedAt:   &started,
		CompletesAt: &completes,
	}
	l.slots[key] = slot
	l.seenKeys[idempotencyKey] = true
	l.plantsApplied[key.ID]++

	if l.ambiguous {
		// The mutation landed but the response is lost
		return nil, shared.NewTransientError("response lost", fmt.Errorf("response timeout"))
	}

	return &ports.StartWorkResult{Slot: slot, StartedAt: started, CompletesAt: completes}, nil
}

func (l *fakeLedger) Collect(ctx context.Context, key production.Key, idempotencyKey, token string) (*ports.CollectResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.online {
		return nil, shared.NewTransientError("ledger unreachable", fmt.Errorf("connection refused"))
	}
	l.requests = append(l.requests, ledgerRequest{"harvest_plot", key.ID})

	if l.seenKeys[idempotencyKey] {
		return nil, shared.NewBenignRaceError("collect", key.ID)
	}
	slot, ok := l.slots[key]
	if !ok || slot.IsEmpty() {
		return nil, shared.NewBenignRaceError("collect", key.ID)
	}

	slot.Clear()
	l.seenKeys[idempotencyKey] = true
	l.harvestsApplied[key.ID]++

	return &ports.CollectResult{
		SlotID: key.ID,
		Kind:   key.Kind,
		Awards: []ports.Award{{Item: "harvest", Quantity: 1}},
	}, nil
}

func (l *fakeLedger) QueryState(ctx context.Context, token string) ([]*production.Slot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.online {
		return nil, shared.NewTransientError("ledger unreachable", fmt.Errorf("connection refused"))
	}

	slots := make([]*production.Slot, 0, len(l.slots))
	for _, slot := range l.slots {
		copied := *slot
		slots = append(slots, &copied)
	}
	return slots, nil
}

func (l *fakeLedger) requestCount(actionType, slotID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.requests {
		if r.actionType == actionType && r.slotID == slotID {
			n++
		}
	}
	return n
}

// productionContext holds end-to-end wiring for a scenario: fake
// ledger, durable stores, mediator, offline queue, and reconciler
type productionContext struct {
	db     *gorm.DB
	clock  *shared.MockClock
	ledger *fakeLedger

	store    *persistence.GormQueuedActionRepository
	cache    *persistence.GormSlotCacheRepository
	messages *persistence.GormMessageRepository

	queue      *offline.Queue
	reconciler *reconciler.Reconciler

	err error
}

func (pc *productionContext) reset() error {
	pc.clock = shared.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	pc.ledger = newFakeLedger(pc.clock)
	pc.err = nil

	db, err := database.NewTestConnection()
	if err != nil {
		return fmt.Errorf("failed to create test database: %w", err)
	}
	pc.db = db
	pc.store = persistence.NewGormQueuedActionRepository(db)
	pc.cache = persistence.NewGormSlotCacheRepository(db)
	pc.messages = persistence.NewGormMessageRepository(db, pc.clock)

	return pc.buildClient()
}

// buildClient wires queue and reconciler over the existing stores,
// standing in for a fresh process start
func (pc *productionContext) buildClient() error {
	med := common.NewMediator()
	if err := common.RegisterHandler[*commands.StartWorkCommand](med,
		commands.NewStartWorkHandler(pc.ledger, pc.cache, pc.messages, pc.clock)); err != nil {
		return err
	}
	if err := common.RegisterHandler[*commands.CollectSlotCommand](med,
		commands.NewCollectSlotHandler(pc.ledger, pc.cache, pc.clock)); err != nil {
		return err
	}
	if err := common.RegisterHandler[*queries.RefreshStateQuery](med,
		queries.NewRefreshStateHandler(pc.ledger, pc.cache, pc.clock)); err != nil {
		return err
	}

	executor := offline.NewMediatorExecutor(med, func(ctx context.Context) (string, error) {
		return "test-token", nil
	})
	pc.queue = offline.NewQueue(pc.store, executor, pc.messages, pc.clock)
	pc.reconciler = reconciler.New(pc.queue, func(ctx context.Context) ([]*production.Slot, error) {
		return pc.ledger.QueryState(ctx, "test-token")
	}, pc.messages, pc.clock)

	return nil
}

func cropKey(plot string) production.Key {
	return production.Key{Kind: production.KindCrop, ID: plot}
}

// ---- Given steps ----

func (pc *productionContext) aConnectedProductionClient() error {
	pc.queue.SetOnline(true)
	pc.ledger.online = true
	return nil
}

func (pc *productionContext) aDisconnectedProductionClient() error {
	pc.queue.SetOnline(false)
	pc.ledger.online = false
	return nil
}

func (pc *productionContext) aCropPlantedInPlotTakingSeconds(plot string, seconds int) error {
	pc.ledger.plant(cropKey(plot), time.Duration(seconds)*time.Second)
	return pc.reconciler.Resync(context.Background())
}

func (pc *productionContext) theCropWasAlreadyHarvestedOnAnotherDevice(plot string) error {
	// The ledger empties the slot without this client noticing
	pc.ledger.clearSlot(cropKey(plot))
	return nil
}

func (pc *productionContext) theLedgerAppliesRequestsButFailsToRespond() error {
	pc.ledger.ambiguous = true
	return nil
}

func (pc *productionContext) theLedgerRejectsPlantingForLackOfSeeds() error {
	pc.ledger.rejectStarts = true
	return nil
}

// ---- When steps ----

func (pc *productionContext) secondsPassAndTheReconcilerTicks(seconds int) error {
	pc.clock.Advance(time.Duration(seconds) * time.Second)
	pc.reconciler.Tick(context.Background())
	return nil
}

func (pc *productionContext) secondsPassAndTheReconcilerTicksTimes(seconds, ticks int) error {
	pc.clock.Advance(time.Duration(seconds) * time.Second)
	for i := 0; i < ticks; i++ {
		pc.reconciler.Tick(context.Background())
	}
	return nil
}

func (pc *productionContext) theUserCollectsPlot(plot string) error {
	err := pc.reconciler.Collect(context.Background(), cropKey(plot))
	pc.err = err
	return err
}

func (pc *productionContext) theUserPlantsInPlot(crop, plot string) error {
	_, err := pc.queue.Enqueue(context.Background(), "plant_crop", map[string]interface{}{
		"slot_id": plot,
		"crop":    crop,
	})
	return err
}

func (pc *productionContext) theQueueIsFlushed() error {
	return pc.queue.Flush(context.Background())
}

func (pc *productionContext) connectivityReturnsAndTheQueueIsFlushed() error {
	pc.ledger.online = true
	pc.queue.SetOnline(true)
	return pc.queue.Flush(context.Background())
}

func (pc *productionContext) theClientRestarts() error {
	return pc.buildClient()
}

// ---- Then steps ----

func (pc *productionContext) noCollectionHasBeenAttempted() error {
	pc.ledger.mu.Lock()
	defer pc.ledger.mu.Unlock()
	for _, r := range pc.ledger.requests {
		if r.actionType == "harvest_plot" {
			return fmt.Errorf("unexpected harvest request for %s", r.slotID)
		}
	}
	return nil
}

func (pc *productionContext) plotShowsState(plot, expected string) error {
	for _, view := range pc.reconciler.Snapshot() {
		if view.Key == cropKey(plot) {
			if string(view.State) != expected {
				return fmt.Errorf("plot %s is %s, expected %s", plot, view.State, expected)
			}
			return nil
		}
	}
	return fmt.Errorf("plot %s is not tracked", plot)
}

func (pc *productionContext) theLedgerReceivedExactlyHarvestsForPlot(count int, plot string) error {
	got := pc.ledger.requestCount("harvest_plot", plot)
	if got != count {
		return fmt.Errorf("ledger received %d harvests for %s, expected %d", got, plot, count)
	}
	return nil
}

func (pc *productionContext) theLedgerReceivedExactlyPlantsForPlot(count int, plot string) error {
	got := pc.ledger.requestCount("plant_crop", plot)
	if got != count {
		return fmt.Errorf("ledger received %d plants for %s, expected %d", got, plot, count)
	}
	return nil
}

func (pc *productionContext) theLedgerAppliedExactlyPlantsForPlot(count int, plot string) error {
	pc.ledger.mu.Lock()
	got := pc.ledger.plantsApplied[plot]
	pc.ledger.mu.Unlock()
	if got != count {
		return fmt.Errorf("ledger applied %d plants for %s, expected %d", got, plot, count)
	}
	return nil
}

func (pc *productionContext) theQueueHoldsPendingActions(count int) error {
	pending, err := pc.queue.Pending(context.Background())
	if err != nil {
		return err
	}
	if len(pending) != count {
		return fmt.Errorf("queue holds %d actions, expected %d", len(pending), count)
	}
	return nil
}

func (pc *productionContext) theQueueIsEmpty() error {
	return pc.theQueueHoldsPendingActions(0)
}

func (pc *productionContext) theLedgerReceivedNoRequests() error {
	pc.ledger.mu.Lock()
	defer pc.ledger.mu.Unlock()
	if len(pc.ledger.requests) != 0 {
		return fmt.Errorf("ledger received %d requests, expected none", len(pc.ledger.requests))
	}
	return nil
}

func (pc *productionContext) theLedgerReceivedTheActionsInOrder(table *godog.Table) error {
	pc.ledger.mu.Lock()
	defer pc.ledger.mu.Unlock()

	if len(pc.ledger.requests) != len(table.Rows) {
		return fmt.Errorf("ledger received %d requests, expected %d", len(pc.ledger.requests), len(table.Rows))
	}
	for i, row := range table.Rows {
		want := ledgerRequest{row.Cells[0].Value, row.Cells[1].Value}
		if pc.ledger.requests[i] != want {
			return fmt.Errorf("request %d was %v, expected %v", i, pc.ledger.requests[i], want)
		}
	}
	return nil
}

func (pc *productionContext) noUserMessageWasRecorded() error {
	messages, err := pc.messages.Recent(context.Background(), 10)
	if err != nil {
		return err
	}
	if len(messages) != 0 {
		return fmt.Errorf("unexpected user message: %s", messages[0].Message)
	}
	return nil
}

func (pc *productionContext) anErrorMessageWasRecorded() error {
	messages, err := pc.messages.Recent(context.Background(), 10)
	if err != nil {
		return err
	}
	for _, m := range messages {
		if m.Level == common.MessageError {
			return nil
		}
	}
	return fmt.Errorf("no error message recorded")
}

// InitializeProductionScenario registers the production reconciler and
// offline queue step definitions
func InitializeProductionScenario(sc *godog.ScenarioContext) {
	pc := &productionContext{}

	sc.Before(func(ctx context.Context, scenario *godog.Scenario) (context.Context, error) {
		return ctx, pc.reset()
	})

	// Given
	sc.Step(`^a connected production client$`, pc.aConnectedProductionClient)
	sc.Step(`^a disconnected production client$`, pc.aDisconnectedProductionClient)
	sc.Step(`^a crop planted in plot "([^"]*)" taking (\d+) seconds$`, pc.aCropPlantedInPlotTakingSeconds)
	sc.Step(`^the crop in plot "([^"]*)" was already harvested on another device$`, pc.theCropWasAlreadyHarvestedOnAnotherDevice)
	sc.Step(`^the ledger applies requests but fails to respond$`, pc.theLedgerAppliesRequestsButFailsToRespond)
	sc.Step(`^the ledger rejects planting for lack of seeds$`, pc.theLedgerRejectsPlantingForLackOfSeeds)

	// When
	sc.Step(`^(\d+) seconds pass and the reconciler ticks$`, pc.secondsPassAndTheReconcilerTicks)
	sc.Step(`^(\d+) seconds pass and the reconciler ticks (\d+) times$`, pc.secondsPassAndTheReconcilerTicksTimes)
	sc.Step(`^the user collects plot "([^"]*)"$`, pc.theUserCollectsPlot)
	sc.Step(`^the user plants "([^"]*)" in plot "([^"]*)"$`, pc.theUserPlantsInPlot)
	sc.Step(`^the queue is flushed$`, pc.theQueueIsFlushed)
	sc.Step(`^connectivity returns and the queue is flushed$`, pc.connectivityReturnsAndTheQueueIsFlushed)
	sc.Step(`^the client restarts$`, pc.theClientRestarts)

	// Then
	sc.Step(`^no collection has been attempted$`, pc.noCollectionHasBeenAttempted)
	sc.Step(`^plot "([^"]*)" shows state "([^"]*)"$`, pc.plotShowsState)
	sc.Step(`^the ledger received exactly (\d+) harvests? for plot "([^"]*)"$`, pc.theLedgerReceivedExactlyHarvestsForPlot)
	sc.Step(`^the ledger received exactly (\d+) plants? for plot "([^"]*)"$`, pc.theLedgerReceivedExactlyPlantsForPlot)
	sc.Step(`^the ledger applied exactly (\d+) plants? for plot "([^"]*)"$`, pc.theLedgerAppliedExactlyPlantsForPlot)
	sc.Step(`^the queue holds (\d+) pending actions?$`, pc.theQueueHoldsPendingActions)
	sc.Step(`^the queue is empty$`, pc.theQueueIsEmpty)
	sc.Step(`^the ledger received no requests$`, pc.theLedgerReceivedNoRequests)
	sc.Step(`^the ledger received the actions in order:$`, pc.theLedgerReceivedTheActionsInOrder)
	sc.Step(`^no user message was recorded$`, pc.noUserMessageWasRecorded)
	sc.Step(`^an error message was recorded$`, pc.anErrorMessageWasRecorded)
}
