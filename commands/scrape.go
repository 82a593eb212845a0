package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"flight-scraper/metrics"
	"flight-scraper/models"
	"flight-scraper/scheduler"
	"flight-scraper/scraper/flights"
	"flight-scraper/services"
	"flight-scraper/storage"
	"flight-scraper/utils"
)

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrapes every route whose window is not fully stored yet.",
	RunE:  runScrape,
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	defer logger.Sync()

	logger.Info("=== Flight scraper starting ===")
	logger.Info("Config: airports: %d | window: %d days from %s | trip: %s | concurrency: %d | rate: %dms | store: %s",
		len(cfg.Airports), cfg.NumDays, cfg.StartDate.Format("2006-01-02"), cfg.TripType,
		cfg.MaxConcurrency, cfg.RateLimitMs, cfg.DBDriver)

	store, err := openStore(ctx)
	if err != nil {
		logger.Error("Failed to open record store: %v", err)
		return err
	}
	defer store.Close()

	var raw storage.RawFlightWriter
	if cfg.CSVOutputPath != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			return fmt.Errorf("create CSV writer: %w", err)
		}
		defer csvWriter.Close()
		raw = csvWriter
		logger.Info("Raw flights will be appended to %s", cfg.CSVOutputPath)
	}

	m := metrics.NewMetrics("flight_scraper")
	if cfg.MetricsAddr != "" {
		serveCtx, stopServe := context.WithCancel(ctx)
		defer stopServe()
		go func() {
			if err := m.Serve(serveCtx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("[metrics] Server failed: %v", err)
			}
		}()
	}

	browser := flights.NewBrowser(cfg, logger)
	defer browser.Close()

	sched := scheduler.New(
		utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs),
		store,
		browser,
		services.NewCleaner(cfg.StartDate, cfg.TripType, logger),
		raw,
		m,
		scheduler.Options{
			WindowSize:      cfg.NumDays,
			MaxRouteRetries: cfg.MaxRouteRetries,
			RetryBaseDelay:  cfg.RetryBaseDelay,
		},
		logger,
	)

	summary, runErr := sched.Run(ctx, newResolver(store).Candidates(ctx))

	insights := services.NewInsightService(logger)
	out := cmd.OutOrStdout()
	report := insights.Generate(summary)
	insights.Print(out, report)
	insights.PrintExhausted(out, summary)
	if report.EmptyDays > 0 && !cfg.RecordEmptyDays {
		logger.Warn("%d days listed no flights and were not recorded; their routes will be rescheduled every run (set RECORD_EMPTY_DAYS=true)",
			report.EmptyDays)
	}

	switch {
	case errors.Is(runErr, context.Canceled):
		logger.Warn("Run interrupted; %d routes stopped mid-window and will resume next run",
			summary.Count(models.OutcomeCancelled))
		return fmt.Errorf("run interrupted: %w", runErr)
	case runErr != nil:
		logger.Error("Run aborted: %v", runErr)
		return fmt.Errorf("run aborted: %w", runErr)
	case len(summary.Exhausted()) > 0:
		return fmt.Errorf("%d of %d routes exhausted their retries", len(summary.Exhausted()), len(summary.Routes))
	}

	fmt.Fprintf(out, "  Done. %d routes scraped, %d records stored.\n\n", len(summary.Routes), summary.Inserted)
	return nil
}
