// Package app assembles the components shared by the API server and the
// admin CLI.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"budgetsync/internal/domain/budgetsync"
	"budgetsync/internal/domain/linkedaccount"
	"budgetsync/internal/domain/syncedtxn"
	"budgetsync/internal/domain/syncrecord"
	"budgetsync/internal/infrastructure/firebase"
	"budgetsync/internal/infrastructure/memory"
	"budgetsync/internal/infrastructure/postgres"
	"budgetsync/internal/infrastructure/splitwise"
	"budgetsync/internal/infrastructure/ynab"
	"budgetsync/internal/shared/config"
	"budgetsync/internal/shared/retry"
)

// Core holds the stores, clients and sync engine.
type Core struct {
	// DB is nil when running on the memory store.
	DB *postgres.DB

	Accounts *linkedaccount.Service
	Records  *syncrecord.Service
	Synced   *syncedtxn.Service

	Splitwise *splitwise.Client
	YNAB      *ynab.Client

	Engine *budgetsync.Engine
	Runner *budgetsync.Runner

	// SyncOptions are the configured defaults for a run.
	SyncOptions budgetsync.Options
}

// RetryPolicy converts the retry configuration.
func RetryPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		InitialDelay: cfg.InitialDelay,
		Factor:       cfg.Factor,
		Jitter:       cfg.Jitter,
		MaxRetries:   uint64(cfg.MaxRetries),
	}
}

// SyncOptions converts the sync configuration.
func SyncOptions(cfg config.SyncConfig) (budgetsync.Options, error) {
	policy, err := budgetsync.ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		return budgetsync.Options{}, err
	}
	return budgetsync.Options{
		FailurePolicy:  policy,
		MaxConcurrency: cfg.MaxConcurrency,
	}, nil
}

// NewCore connects the store selected by cfg and builds the engine.
func NewCore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Core, error) {
	policy := RetryPolicy(cfg.Retry)
	opts, err := SyncOptions(cfg.Sync)
	if err != nil {
		return nil, err
	}

	core := &Core{SyncOptions: opts}

	var (
		accountRepo linkedaccount.Repository
		recordRepo  syncrecord.Repository
		syncedRepo  syncedtxn.Repository
	)

	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		log.Warn().Msg("Using the in-memory store; state is lost on exit")
		accountRepo = memory.NewLinkedAccountRepository()
		recordRepo = memory.NewSyncRecordRepository()
		syncedRepo = memory.NewSyncedTransactionRepository()
	default:
		db, err := postgres.New(cfg.Database.ConnectionString())
		if err != nil {
			return nil, err
		}
		log.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("Connected to database")

		if cfg.Store.AutoMigrate {
			if err := postgres.Migrate(db); err != nil {
				db.Close()
				return nil, err
			}
			log.Info().Msg("Database migrations applied")
		}

		core.DB = db
		accountRepo = postgres.NewLinkedAccountRepository(db)
		recordRepo = postgres.NewSyncRecordRepository(db)
		syncedRepo = postgres.NewSyncedTransactionRepository(db)
	}

	core.Accounts = linkedaccount.NewService(accountRepo, linkedaccount.WithRetryPolicy(policy))
	core.Records = syncrecord.NewService(recordRepo, syncrecord.WithRetryPolicy(policy))
	core.Synced = syncedtxn.NewService(syncedRepo,
		syncedtxn.WithRetryPolicy(policy),
		syncedtxn.WithLogger(log),
	)

	core.Splitwise = splitwise.NewClient(cfg.Splitwise.APIKey,
		splitwise.WithBaseURL(cfg.Splitwise.BaseURL),
		splitwise.WithTimeout(cfg.Sync.HTTPClientTimeout),
		splitwise.WithRetryPolicy(policy),
	)
	core.YNAB = ynab.NewClient(cfg.YNAB.APIKey,
		ynab.WithBaseURL(cfg.YNAB.BaseURL),
		ynab.WithTimeout(cfg.Sync.HTTPClientTimeout),
		ynab.WithRetryPolicy(policy),
	)

	engineOpts := []budgetsync.EngineOption{budgetsync.WithLogger(log)}
	if cfg.Firebase.Enabled() {
		notifier, err := firebase.NewNotifier(ctx, firebase.Config{
			CredentialsFile: cfg.Firebase.CredentialsFile,
			Topic:           cfg.Firebase.Topic,
			DeviceTokens:    cfg.Firebase.DeviceTokens,
			MessagesFile:    cfg.Firebase.MessagesFile,
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("Failure notifications disabled")
		} else {
			engineOpts = append(engineOpts, budgetsync.WithNotifier(notifier))
			log.Info().Str("topic", cfg.Firebase.Topic).Msg("Failure notifications enabled")
		}
	}

	core.Engine = budgetsync.NewEngine(core.Accounts, core.Records, core.Synced, core.Splitwise, core.YNAB, engineOpts...)
	core.Runner = budgetsync.NewRunner(core.Accounts, core.Engine, cfg.Sync.AccountConcurrency, log)

	return core, nil
}

// Close releases the database connection.
func (c *Core) Close() error {
	if c.DB == nil {
		return nil
	}
	if err := c.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
