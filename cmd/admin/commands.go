package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"budgetsync/internal/app"
	"budgetsync/internal/domain/budgetsync"
	"budgetsync/internal/domain/linkedaccount"
	"budgetsync/internal/domain/syncrecord"
	"budgetsync/internal/infrastructure/postgres"
	"budgetsync/internal/shared/auth"
	"budgetsync/internal/shared/config"
)

func runRegisterAccount(ctx context.Context, core *app.Core, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("register-account", flag.ContinueOnError)

	email := fs.String("email", "", "Email of the account owner")
	groupID := fs.Int64("group", 0, "Splitwise group ID")
	userID := fs.Int64("user", 0, "Splitwise user ID")
	budgetID := fs.String("budget", "", "YNAB budget ID")
	accountID := fs.String("account", "", "YNAB account ID")
	categoryID := fs.String("category", "", "YNAB uncategorized category ID")

	if err := fs.Parse(args); err != nil {
		return err
	}

	acc, err := core.Accounts.Register(ctx, linkedaccount.RegisterParams{
		Email:                       *email,
		SplitwiseGroupID:            *groupID,
		SplitwiseUserID:             *userID,
		YnabBudgetID:                *budgetID,
		YnabAccountID:               *accountID,
		YnabUncategorizedCategoryID: *categoryID,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Registered account %s\n", acc.ID)
	return nil
}

func runListAccounts(ctx context.Context, core *app.Core, out io.Writer) error {
	accounts, err := core.Accounts.ListAll(ctx)
	if err != nil {
		return err
	}
	printAccounts(out, accounts)
	return nil
}

func printAccounts(out io.Writer, accounts []*linkedaccount.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(out, "No linked accounts")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tGROUP\tUSER\tBUDGET\tACCOUNT")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			a.ID, a.Email, a.SplitwiseGroupID, a.SplitwiseUserID, a.YnabBudgetID, a.YnabAccountID)
	}
	w.Flush()
}

// syncFlags registers the options shared by sync and sync-all.
type syncFlags struct {
	since          *string
	limit          *int
	failurePolicy  *string
	maxConcurrency *int
	timeout        *time.Duration
}

func newSyncFlags(fs *flag.FlagSet) syncFlags {
	return syncFlags{
		since:          fs.String("since", "", "Fetch expenses changed after this RFC3339 time instead of the last completed run"),
		limit:          fs.Int("limit", 0, "Maximum number of expenses to fetch (0 fetches all)"),
		failurePolicy:  fs.String("failure-policy", "", "partition or fail-fast (defaults to SYNC_FAILURE_POLICY)"),
		maxConcurrency: fs.Int("max-concurrency", 0, "Expenses processed in parallel (defaults to SYNC_MAX_CONCURRENCY)"),
		timeout:        fs.Duration("timeout", 10*time.Minute, "Timeout for the operation (e.g., 5m, 1h)"),
	}
}

// options overlays the flags on the configured defaults.
func (f syncFlags) options(defaults budgetsync.Options) (budgetsync.Options, error) {
	opts := defaults
	if *f.since != "" {
		since, err := time.Parse(time.RFC3339, *f.since)
		if err != nil {
			return opts, fmt.Errorf("invalid --since %q: %w", *f.since, err)
		}
		since = since.UTC()
		opts.Since = &since
	}
	if *f.limit < 0 {
		return opts, errors.New("--limit must not be negative")
	}
	opts.Limit = *f.limit
	if *f.failurePolicy != "" {
		policy, err := budgetsync.ParseFailurePolicy(*f.failurePolicy)
		if err != nil {
			return opts, err
		}
		opts.FailurePolicy = policy
	}
	if *f.maxConcurrency > 0 {
		opts.MaxConcurrency = *f.maxConcurrency
	}
	return opts, nil
}

func runSync(ctx context.Context, core *app.Core, args []string, out io.Writer, log zerolog.Logger) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	accountID := fs.String("account-id", "", "Linked account ID")
	sf := newSyncFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *accountID == "" {
		fs.Usage()
		return errors.New("must specify --account-id")
	}

	opts, err := sf.options(core.SyncOptions)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *sf.timeout)
	defer cancel()

	log.Info().Str("account_id", *accountID).Msg("Starting sync")
	start := time.Now()

	result, err := core.Engine.Sync(ctx, *accountID, opts)
	if result != nil {
		printRun(out, result)
	}
	if err != nil {
		return err
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("Sync completed")
	return nil
}

func runSyncAll(ctx context.Context, core *app.Core, args []string, out io.Writer, log zerolog.Logger) error {
	fs := flag.NewFlagSet("sync-all", flag.ContinueOnError)
	sf := newSyncFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}

	opts, err := sf.options(core.SyncOptions)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *sf.timeout)
	defer cancel()

	start := time.Now()
	outcomes, err := core.Runner.SyncAll(ctx, opts)
	if err != nil {
		return err
	}

	for _, o := range outcomes {
		if o.Result != nil {
			printRun(out, o.Result)
		}
		if o.Err != nil {
			fmt.Fprintf(out, "  Error: %v\n", o.Err)
		}
	}

	failed := budgetsync.Failed(outcomes)
	log.Info().
		Int("accounts", len(outcomes)).
		Int("failed", len(failed)).
		Dur("elapsed", time.Since(start)).
		Msg("Sync of all accounts completed")

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d accounts failed", len(failed), len(outcomes))
	}
	return nil
}

func printRun(out io.Writer, r *budgetsync.RunResult) {
	counts := make(map[budgetsync.ResultKind]int)
	for _, res := range r.Results {
		counts[res.Kind]++
	}

	fmt.Fprintf(out, "\n=== Account %s ===\n", r.AccountID)
	fmt.Fprintf(out, "  Sync record:  %s\n", r.SyncRecordID)
	fmt.Fprintf(out, "  Status:       %s\n", r.Status)
	if r.Since != nil {
		fmt.Fprintf(out, "  Since:        %s\n", r.Since.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "  Fetched:      %d\n", r.Fetched)
	fmt.Fprintf(out, "  Created:      %d\n", counts[budgetsync.ResultCreated])
	fmt.Fprintf(out, "  Updated:      %d\n", counts[budgetsync.ResultUpdated])
	fmt.Fprintf(out, "  Deleted:      %d\n", counts[budgetsync.ResultDeleted])
	fmt.Fprintf(out, "  Skipped:      %d\n", counts[budgetsync.ResultSkipDeleted])
}

func runListRuns(ctx context.Context, core *app.Core, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list-runs", flag.ContinueOnError)
	accountID := fs.String("account-id", "", "Linked account ID")
	limit := fs.Int("limit", 20, "Number of runs to show")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *accountID == "" {
		fs.Usage()
		return errors.New("must specify --account-id")
	}

	records, err := core.Records.ListRecent(ctx, *accountID, *limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No sync runs")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tCOMPLETED")
	for _, r := range records {
		completed := "-"
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Status, r.CreatedAt.Format(time.RFC3339), completed)
	}
	return w.Flush()
}

// runResetRun moves in-progress records left behind by a crashed run to
// error, which lets the account sync again.
func runResetRun(ctx context.Context, core *app.Core, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reset-run", flag.ContinueOnError)
	accountID := fs.String("account-id", "", "Linked account ID")
	recordID := fs.String("record-id", "", "Sync record ID (defaults to every in-progress record of the account)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *accountID == "" {
		fs.Usage()
		return errors.New("must specify --account-id")
	}

	ids := []string{*recordID}
	if *recordID == "" {
		records, err := core.Records.GetInProgress(ctx, *accountID)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, r := range records {
			ids = append(ids, r.ID)
		}
	}

	if len(ids) == 0 {
		fmt.Fprintln(out, "No in-progress sync runs")
		return nil
	}

	for _, id := range ids {
		if _, err := core.Records.UpdateStatus(ctx, id, *accountID, syncrecord.StatusError); err != nil {
			return fmt.Errorf("failed to reset sync run %s: %w", id, err)
		}
		fmt.Fprintf(out, "Reset sync run %s to %s\n", id, syncrecord.StatusError)
	}
	return nil
}

func runWhoAmI(ctx context.Context, core *app.Core, out io.Writer) error {
	user, err := core.Splitwise.GetCurrentUser(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Splitwise user %d: %s", user.ID, user.FullName())
	if user.Email != "" {
		fmt.Fprintf(out, " <%s>", user.Email)
	}
	fmt.Fprintln(out)
	return nil
}

func runMigrate(args []string, out io.Writer) error {
	direction := "up"
	if len(args) > 0 {
		direction = strings.ToLower(args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Store.Driver == config.StoreDriverMemory {
		return errors.New("migrations require STORE_DRIVER=postgres")
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()

	switch direction {
	case "up":
		if err := postgres.Migrate(db); err != nil {
			return err
		}
	case "down":
		if err := postgres.MigrateDown(db); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate direction %q (want up, down or version)", direction)
	}

	version, dirty, err := postgres.MigrationVersion(db)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Schema version %d", version)
	if dirty {
		fmt.Fprint(out, " (dirty)")
	}
	fmt.Fprintln(out)
	return nil
}

func runHashSecret(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("hash-secret", flag.ContinueOnError)
	secret := fs.String("secret", "", "Secret to hash")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		fs.Usage()
		return errors.New("must specify --secret")
	}

	hash, err := auth.HashSecret(*secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}
