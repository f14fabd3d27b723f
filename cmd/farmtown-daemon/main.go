package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrescamacho/farmtown-go/internal/adapters/api"
	"github.com/andrescamacho/farmtown-go/internal/adapters/persistence"
	"github.com/andrescamacho/farmtown-go/internal/adapters/realtime"
	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/application/offline"
	"github.com/andrescamacho/farmtown-go/internal/application/production/commands"
	"github.com/andrescamacho/farmtown-go/internal/application/production/queries"
	"github.com/andrescamacho/farmtown-go/internal/application/reconciler"
	"github.com/andrescamacho/farmtown-go/internal/domain/production"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
	"github.com/andrescamacho/farmtown-go/internal/infrastructure/config"
	"github.com/andrescamacho/farmtown-go/internal/infrastructure/database"
	"github.com/andrescamacho/farmtown-go/internal/infrastructure/pidfile"
)

func main() {
	forceFlag := flag.Bool("force", false, "Kill any existing daemon and start a new one")
	configFlag := flag.String("config", "", "Path to config file")
	playerFlag := flag.String("player", os.Getenv("FT_PLAYER"), "Player whose session drives the daemon")
	flag.Parse()

	fmt.Println("FarmTown Daemon v0.1.0")
	fmt.Println("======================")

	if *playerFlag == "" {
		log.Fatal("no player specified: use --player or set FT_PLAYER")
	}

	fmt.Println("Loading configuration...")
	cfg := config.MustLoadConfig(*configFlag)

	fmt.Printf("Acquiring PID file lock: %s\n", cfg.Daemon.PIDFile)
	pf := pidfile.New(cfg.Daemon.PIDFile)

	if err := pf.Acquire(); err != nil {
		if !*forceFlag {
			log.Fatalf("Failed to acquire PID file lock: %v\nUse --force to kill the existing daemon", err)
		}
		fmt.Println("Force mode enabled - attempting to kill existing daemon...")
		if killErr := pf.KillExisting(); killErr != nil {
			log.Fatalf("Failed to kill existing daemon: %v", killErr)
		}
		if err := pf.Acquire(); err != nil {
			log.Fatalf("Failed to acquire PID file lock after killing existing daemon: %v", err)
		}
	}

	defer func() {
		if err := pf.Release(); err != nil {
			log.Printf("Warning: failed to release PID file: %v", err)
		}
	}()
	fmt.Println("PID file lock acquired")

	if err := run(cfg, *playerFlag); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(cfg *config.Config, player string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Database
	fmt.Printf("Connecting to %s database...\n", cfg.Database.Type)
	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	fmt.Println("Database connected")

	clock := shared.NewRealClock()

	// 2. Repositories
	sessionRepo := persistence.NewGormSessionRepository(db, clock)
	messageRepo := persistence.NewGormMessageRepository(db, clock)
	slotCache := persistence.NewGormSlotCacheRepository(db)
	actionStore := persistence.NewGormQueuedActionRepository(db)

	if err := messageRepo.PruneOlderThan(ctx, clock.Now().AddDate(0, 0, -7)); err != nil {
		log.Printf("Warning: failed to prune old messages: %v", err)
	}

	// 3. Session
	session, err := sessionRepo.FindByPlayerName(ctx, player)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("no session stored for player %q: run 'farmtown config set-player' first", player)
	}
	if err := sessionRepo.Touch(ctx, session.ID); err != nil {
		log.Printf("Warning: failed to touch session: %v", err)
	}
	fmt.Printf("Session loaded for player %s\n", player)

	// 4. Ledger client
	ledgerClient := api.NewFarmLedgerClientWithConfig(
		cfg.API.BaseURL, cfg.API.Retry.MaxAttempts, cfg.API.Retry.BackoffBase, clock)
	ledgerClient.SetRateLimit(cfg.API.RateLimit.Requests, cfg.API.RateLimit.Burst)
	ledgerClient.SetTimeout(cfg.API.Timeout)
	fmt.Println("Ledger client initialized")

	// 5. Mediator and handlers
	med := common.NewMediator()

	if err := common.RegisterHandler[*commands.StartWorkCommand](med,
		commands.NewStartWorkHandler(ledgerClient, slotCache, messageRepo, clock)); err != nil {
		return fmt.Errorf("failed to register StartWork handler: %w", err)
	}
	if err := common.RegisterHandler[*commands.CollectSlotCommand](med,
		commands.NewCollectSlotHandler(ledgerClient, slotCache, clock)); err != nil {
		return fmt.Errorf("failed to register CollectSlot handler: %w", err)
	}
	if err := common.RegisterHandler[*queries.RefreshStateQuery](med,
		queries.NewRefreshStateHandler(ledgerClient, slotCache, clock)); err != nil {
		return fmt.Errorf("failed to register RefreshState handler: %w", err)
	}

	// 6. Offline queue
	tokenFunc := func(ctx context.Context) (string, error) {
		s, err := sessionRepo.FindByPlayerName(ctx, player)
		if err != nil {
			return "", err
		}
		if s == nil {
			return "", fmt.Errorf("session for player %q disappeared", player)
		}
		return s.Token, nil
	}
	executor := offline.NewMediatorExecutor(med, tokenFunc)

	actionQueue := offline.NewQueue(actionStore, executor, messageRepo, clock)
	actionQueue.SetRetryPolicy(cfg.Queue.MaxAttempts, cfg.Queue.BackoffBase)
	fmt.Println("Offline queue initialized")

	// 7. Reconciler. The refresh path doubles as connectivity detection:
	// a stale (cache-served) response flips the queue offline, a fresh
	// ledger response flips it back online and triggers a flush.
	refresh := func(ctx context.Context) ([]*production.Slot, error) {
		result, err := med.Send(ctx, &queries.RefreshStateQuery{Token: session.Token})
		if err != nil {
			return nil, err
		}
		response := result.(*queries.RefreshStateResponse)
		actionQueue.SetOnline(!response.Stale)
		return response.Slots, nil
	}

	rec := reconciler.New(actionQueue, refresh, messageRepo, clock)
	rec.SetTickInterval(cfg.Reconciler.TickInterval)

	if err := rec.Resync(ctx); err != nil {
		// Start with whatever the cache holds; the poll loop recovers
		log.Printf("Initial resync failed: %v", err)
		cached, cacheErr := slotCache.FindAll(ctx)
		if cacheErr == nil {
			rec.SetSlots(cached)
		}
	}
	fmt.Println("Reconciler initialized")

	// 8. Background loops
	go actionQueue.Run(ctx)
	go rec.Run(ctx)

	// 9. Change feed, with polling fallback
	if cfg.Realtime.Enabled && cfg.Realtime.URL != "" {
		fmt.Printf("Subscribing to change feed: %s\n", cfg.Realtime.URL)
		sub := realtime.NewSubscriber(realtime.Config{URL: cfg.Realtime.URL, Token: session.Token})
		sub.Start()
		defer sub.Close()

		go func() {
			for range sub.Events() {
				if err := rec.Resync(ctx); err != nil {
					log.Printf("Resync after change notification failed: %v", err)
				}
			}
		}()
	}

	go pollLoop(ctx, cfg, rec)

	fmt.Println("\nDaemon is running")
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()

	// Final delivery attempt within the shutdown window
	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Daemon.ShutdownTimeout)
	defer cancel()
	if err := actionQueue.Flush(shutdownCtx); err != nil {
		log.Printf("Final queue flush incomplete: %v", err)
	}

	fmt.Println("Daemon stopped")
	return nil
}

// pollLoop resynchronizes on an interval. It runs even when the change
// feed is active: the feed can drop events while reconnecting.
func pollLoop(ctx context.Context, cfg *config.Config, rec *reconciler.Reconciler) {
	ticker := time.NewTicker(cfg.Realtime.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rec.Resync(ctx); err != nil {
				log.Printf("Poll resync failed: %v", err)
			}
		}
	}
}
