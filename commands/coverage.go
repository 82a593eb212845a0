package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"flight-scraper/services"
)

var (
	coverageVerbose bool
	routesLimit     int
)

func init() {
	coverageCmd.Flags().BoolVarP(&coverageVerbose, "verbose", "v", false, "List every route with its stored day count.")
	routesCmd.Flags().IntVar(&routesLimit, "limit", 0, "Stop after this many routes (0 lists all).")
	rootCmd.AddCommand(coverageCmd, routesCmd)
}

var coverageCmd = &cobra.Command{
	Use:   "coverage [--verbose]",
	Short: "Prints how much of the route universe is already stored.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := newResolver(store).Report(ctx)
		if err != nil {
			return err
		}
		services.NewInsightService(logger).PrintCoverage(cmd.OutOrStdout(), report, coverageVerbose)
		return nil
	},
}

var routesCmd = &cobra.Command{
	Use:   "routes [--limit <n>]",
	Short: "Lists the routes the next scrape would schedule, in order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Route", "State", "Stored days", "Starts at day"})

		n := 0
		for plan, err := range newResolver(store).Candidates(ctx) {
			if err != nil {
				return err
			}
			t.AppendRow(table.Row{plan.Route, plan.State, plan.StoredDays, plan.ResumeOffset})
			n++
			if routesLimit > 0 && n >= routesLimit {
				break
			}
		}

		t.AppendFooter(table.Row{"", "", "Routes", n})
		t.SetStyle(table.StyleRounded)
		t.Render()
		fmt.Fprintf(cmd.OutOrStdout(), "%d-day window starting %s\n", cfg.NumDays, cfg.StartDate.Format("2006-01-02"))
		return nil
	},
}
