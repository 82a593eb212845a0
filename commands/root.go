package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flight-scraper/config"
	"flight-scraper/coverage"
	"flight-scraper/storage"
	"flight-scraper/utils"
)

var (
	cfg    *config.Config
	logger *utils.Logger
)

var (
	airportsFlag    string
	startDateFlag   string
	daysFlag        int
	concurrencyFlag int
	driverFlag      string
	reverseFlag     bool
	logLevelFlag    string
)

var rootCmd = &cobra.Command{
	Use:           "flight-scraper",
	Short:         "flight-scraper backfills daily flight observations for every airport pair.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if err := applyFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		l, err := utils.NewLoggerFor(cfg.Environment, cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		logger = l
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&airportsFlag, "airports", "", "Comma separated airport codes (overrides AIRPORTS).")
	pf.StringVar(&startDateFlag, "start-date", "", "First departure date, YYYY-MM-DD (overrides START_DATE).")
	pf.IntVar(&daysFlag, "days", 0, "Window size in days (overrides NUM_DAYS).")
	pf.IntVar(&concurrencyFlag, "concurrency", 0, "Routes scraped at once (overrides MAX_CONCURRENCY).")
	pf.StringVar(&driverFlag, "driver", "", "Record store driver: postgres, pgx, sqlite or memory (overrides DB_DRIVER).")
	pf.BoolVar(&reverseFlag, "reverse-pairs", true, "Dispatch each route right after its reverse (overrides INCLUDE_REVERSE_PAIRS).")
	pf.StringVar(&logLevelFlag, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL).")
}

// applyFlags overrides configuration with the flags set on the command line.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("airports") {
		c.Airports = config.SplitList(airportsFlag)
	}
	if flags.Changed("start-date") {
		t, err := config.ParseDate(startDateFlag)
		if err != nil {
			return fmt.Errorf("--start-date: %w", err)
		}
		c.StartDate = t
	}
	if flags.Changed("days") {
		c.NumDays = daysFlag
	}
	if flags.Changed("concurrency") {
		c.MaxConcurrency = concurrencyFlag
	}
	if flags.Changed("driver") {
		c.DBDriver = driverFlag
	}
	if flags.Changed("reverse-pairs") {
		c.IncludeReversePairs = reverseFlag
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevelFlag
	}
	return nil
}

func openStore(ctx context.Context) (storage.RecordStore, error) {
	store, err := storage.Open(ctx, cfg.DBDriver, cfg.DSN(), storeOptions(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	return store, nil
}

func newResolver(store coverage.Store) *coverage.Resolver {
	return coverage.NewResolver(store, cfg.Airports, cfg.StartDate, cfg.NumDays, policy(cfg), logger)
}

func storeOptions(c *config.Config) storage.Options {
	return storage.Options{
		EnforceUnique:   c.EnforceUnique,
		RecordEmptyDays: c.RecordEmptyDays,
		BatchSize:       c.DBBatchSize,
	}
}

func policy(c *config.Config) coverage.Policy {
	return coverage.Policy{
		IncludeReversePairs: c.IncludeReversePairs,
		RescanFromZero:      c.ResumePolicy == config.RescanFromZero,
		CompleteAtLeast:     c.CompletionRule == config.CompletionAtLeast,
	}
}

// Execute runs the CLI until it finishes or the process is interrupted and
// returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
