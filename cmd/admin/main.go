package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"budgetsync/internal/app"
	"budgetsync/internal/shared/config"
	"budgetsync/internal/shared/logger"
)

const usage = `BudgetSync Admin CLI - Management commands for the Splitwise to YNAB sync

Usage:
  admin <command> [options]

Commands:
  register-account   Link a Splitwise group/user to a YNAB budget/account
  list-accounts      List linked accounts
  sync               Sync a single linked account
  sync-all           Sync every linked account
  list-runs          Show the most recent sync runs of an account
  reset-run          Mark sync runs stuck in progress after a crash as error
  whoami             Show the Splitwise user that owns the API key
  migrate            Apply or roll back database migrations (up, down, version)
  hash-secret        Print a bcrypt hash for TRIGGER_SECRET_HASH

Examples:
  # Link an account
  admin register-account --email=me@example.com --group=123 --user=456 \
    --budget=<budget-id> --account=<account-id> --category=<category-id>

  # Sync one account from a fixed point in time
  admin sync --account-id=<id> --since=2024-01-01T00:00:00Z

  # Sync all accounts, stopping each on its first failure
  admin sync-all --failure-policy=fail-fast --timeout=30m

  # Show the last 5 runs
  admin list-runs --account-id=<id> --limit=5

  # Unblock an account whose last run was killed mid-sync
  admin reset-run --account-id=<id>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "register-account":
		err = withCore(func(ctx context.Context, core *app.Core, log zerolog.Logger) error {
			return runRegisterAccount(ctx, core, args, os.Stdout)
		})
	case "list-accounts":
		err = withCore(func(ctx context.Context, core *app.Core, log zerolog.Logger) error {
			return runListAccounts(ctx, core, os.Stdout)
		})
	case "sync":
		err = withCore(func(ctx context.Context, core *app.Core, log zerolog.Logger) error {
			return runSync(ctx, core, args, os.Stdout, log)
		})
	case "sync-all":
		err = withCore(func(ctx context.Context, core *app.Core, log zerolog.Logger) error {
			return runSyncAll(ctx, core, args, os.Stdout, log)
		})
	case "list-runs":
		err = withCore(func(ctx context.Context, core *app.Core, log zerolog.Logger) error {
			return runListRuns(ctx, core, args, os.Stdout)
		})
	case "reset-run":
		err = withCore(func(ctx context.Context, core *app.Core, log zerolog.Logger) error {
			return runResetRun(ctx, core, args, os.Stdout)
		})
	case "whoami":
		err = withCore(func(ctx context.Context, core *app.Core, log zerolog.Logger) error {
			return runWhoAmI(ctx, core, os.Stdout)
		})
	case "migrate":
		err = runMigrate(args, os.Stdout)
	case "hash-secret":
		err = runHashSecret(args, os.Stdout)
	case "help", "-h", "--help":
		fmt.Print(usage + "\n")
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withCore loads the configuration, builds the core and runs fn until it
// returns or the process is interrupted.
func withCore(fn func(ctx context.Context, core *app.Core, log zerolog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: true})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.NewCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	return fn(ctx, core, log)
}
