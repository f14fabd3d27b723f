package cli

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/andrescamacho/farmtown-go/internal/adapters/api"
	"github.com/andrescamacho/farmtown-go/internal/adapters/persistence"
	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/application/offline"
	"github.com/andrescamacho/farmtown-go/internal/application/production/commands"
	"github.com/andrescamacho/farmtown-go/internal/application/production/queries"
	"github.com/andrescamacho/farmtown-go/internal/domain/production"
	domainqueue "github.com/andrescamacho/farmtown-go/internal/domain/queue"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
	"github.com/andrescamacho/farmtown-go/internal/infrastructure/config"
	"github.com/andrescamacho/farmtown-go/internal/infrastructure/database"
)

// runtime wires the pieces a CLI command needs: config, database,
// ledger client, mediator handlers, and the offline queue. Each command
// invocation builds one and tears it down when done.
type runtime struct {
	cfg      *config.Config
	db       *gorm.DB
	clock    shared.Clock
	mediator common.Mediator
	queue    *offline.Queue

	sessions *persistence.GormSessionRepository
	messages *persistence.GormMessageRepository
	cache    *persistence.GormSlotCacheRepository
	store    *persistence.GormQueuedActionRepository
}

func newRuntime() (*runtime, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	clock := shared.NewRealClock()

	client := api.NewFarmLedgerClientWithConfig(
		cfg.API.BaseURL, cfg.API.Retry.MaxAttempts, cfg.API.Retry.BackoffBase, clock)
	client.SetRateLimit(cfg.API.RateLimit.Requests, cfg.API.RateLimit.Burst)
	client.SetTimeout(cfg.API.Timeout)

	rt := &runtime{
		cfg:      cfg,
		db:       db,
		clock:    clock,
		sessions: persistence.NewGormSessionRepository(db, clock),
		messages: persistence.NewGormMessageRepository(db, clock),
		cache:    persistence.NewGormSlotCacheRepository(db),
		store:    persistence.NewGormQueuedActionRepository(db),
	}

	m := common.NewMediator()
	if err := common.RegisterHandler[*commands.StartWorkCommand](m,
		commands.NewStartWorkHandler(client, rt.cache, rt.messages, clock)); err != nil {
		return nil, err
	}
	if err := common.RegisterHandler[*commands.CollectSlotCommand](m,
		commands.NewCollectSlotHandler(client, rt.cache, clock)); err != nil {
		return nil, err
	}
	if err := common.RegisterHandler[*queries.RefreshStateQuery](m,
		queries.NewRefreshStateHandler(client, rt.cache, clock)); err != nil {
		return nil, err
	}
	rt.mediator = m

	executor := offline.NewMediatorExecutor(m, rt.sessionToken)
	rt.queue = offline.NewQueue(rt.store, executor, rt.messages, clock)
	rt.queue.SetRetryPolicy(cfg.Queue.MaxAttempts, cfg.Queue.BackoffBase)

	return rt, nil
}

func (rt *runtime) close() {
	_ = database.Close(rt.db)
}

// resolveSession finds the stored session for --player (or FT_PLAYER)
func (rt *runtime) resolveSession(ctx context.Context) (*common.Session, error) {
	name := playerName
	if name == "" {
		name = os.Getenv("FT_PLAYER")
	}
	if name == "" {
		return nil, fmt.Errorf("no player specified: use --player, set FT_PLAYER, or store a session with 'farmtown config set-player'")
	}

	session, err := rt.sessions.FindByPlayerName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("no session stored for player %q: run 'farmtown config set-player --player %s --token <token>'", name, name)
	}
	return session, nil
}

func (rt *runtime) sessionToken(ctx context.Context) (string, error) {
	session, err := rt.resolveSession(ctx)
	if err != nil {
		return "", err
	}
	return session.Token, nil
}

// enqueueAndFlush stores the mutation durably, then attempts delivery.
// A delivery failure is not a command failure: the entry either waits in
// the queue or is abandoned with a recorded user message.
func enqueueAndFlush(ctx context.Context, rt *runtime, actionType string, params map[string]interface{}) error {
	// Fail fast on a missing session rather than queueing an action that
	// can never execute
	if _, err := rt.resolveSession(ctx); err != nil {
		return err
	}

	var terminal error
	rt.queue.Subscribe(func(action *domainqueue.QueuedAction, err error) {
		terminal = err
	})

	action, err := rt.queue.Enqueue(ctx, actionType, params)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Printf("Queued %s (idempotency key %s)\n", action.ActionType, action.IdempotencyKey)
	}

	if err := rt.queue.Flush(ctx); err != nil {
		return err
	}

	pending, err := rt.store.Count(ctx)
	if err == nil && pending > 0 {
		fmt.Printf("Ledger unreachable; %d action(s) pending. Run 'farmtown queue flush' to retry.\n", pending)
		return nil
	}

	switch {
	case terminal == nil:
		fmt.Printf("%s applied\n", actionType)
	case shared.IsBenignRace(terminal):
		fmt.Printf("%s already applied elsewhere\n", actionType)
	default:
		return fmt.Errorf("%s failed: %w", actionType, terminal)
	}
	return nil
}

// startParams builds the parameter map for a start action
func startParams(slotID string, extra map[string]interface{}) map[string]interface{} {
	params := map[string]interface{}{"slot_id": slotID}
	for k, v := range extra {
		params[k] = v
	}
	return params
}

func collectParams(slotID string) map[string]interface{} {
	return map[string]interface{}{"slot_id": slotID}
}

func mustActionType(kind production.Kind, collect bool) string {
	var (
		actionType string
		err        error
	)
	if collect {
		actionType, err = production.CollectActionType(kind)
	} else {
		actionType, err = production.StartActionType(kind)
	}
	if err != nil {
		panic(err)
	}
	return actionType
}
