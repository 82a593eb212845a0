package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"flight-scraper/models"
	"flight-scraper/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(summary *models.RunSummary) *models.RunInsights {
	r := &models.RunInsights{
		InsertedByOrigin: make(map[string]int),
	}
	if summary == nil {
		return r
	}

	r.TotalRoutes = len(summary.Routes)
	r.Inserted = summary.Inserted
	r.Dropped = summary.Dropped
	if !summary.FinishedAt.IsZero() {
		r.Elapsed = summary.FinishedAt.Sub(summary.StartedAt)
	}
	if seen := r.Inserted + r.Dropped; seen > 0 {
		r.DropRate = round2(float64(r.Dropped) * 100 / float64(seen))
	}

	var total time.Duration
	var retried []models.RouteResult
	for i := range summary.Routes {
		res := summary.Routes[i]
		switch res.Outcome {
		case models.OutcomeCompleted:
			r.Completed++
		case models.OutcomeExhausted:
			r.Exhausted++
		case models.OutcomeCancelled:
			r.Cancelled++
		case models.OutcomeAborted:
			r.Aborted++
		}

		r.DaysExtracted += res.Days
		r.EmptyDays += res.EmptyDays
		if res.Inserted > 0 {
			r.InsertedByOrigin[res.Route.Origin] += res.Inserted
		}

		total += res.Duration
		if r.Slowest == nil || res.Duration > r.Slowest.Duration {
			r.Slowest = &summary.Routes[i]
		}
		if res.Attempts > 1 {
			retried = append(retried, res)
		}
	}
	if r.TotalRoutes > 0 {
		r.AverageRoute = total / time.Duration(r.TotalRoutes)
	}

	// Top 5 by attempts
	sort.SliceStable(retried, func(i, j int) bool {
		return retried[i].Attempts > retried[j].Attempts
	})
	if len(retried) > 5 {
		retried = retried[:5]
	}
	r.MostRetried = retried

	return r
}

func (s *InsightService) Print(w io.Writer, r *models.RunInsights) {
	fmt.Fprintf(w, "\n%s\n\n", text.Colors{text.Bold, text.FgMagenta}.Sprint("  FLIGHT SCRAPE INSIGHTS"))

	overview := newTable(w, "Overview")
	overview.AppendRows([]table.Row{
		{"Routes scheduled", r.TotalRoutes},
		{"Completed", text.FgGreen.Sprint(r.Completed)},
		{"Exhausted", colorIf(r.Exhausted > 0, text.FgRed, r.Exhausted)},
		{"Cancelled", colorIf(r.Cancelled > 0, text.FgYellow, r.Cancelled)},
		{"Aborted", colorIf(r.Aborted > 0, text.FgRed, r.Aborted)},
		{"Days extracted", r.DaysExtracted},
		{"Days without flights", r.EmptyDays},
		{"Records stored", r.Inserted},
		{"Records dropped", fmt.Sprintf("%d (%.2f%%)", r.Dropped, r.DropRate)},
		{"Elapsed", r.Elapsed.Round(time.Second)},
		{"Average per route", r.AverageRoute.Round(time.Millisecond)},
	})
	if r.Slowest != nil {
		overview.AppendRow(table.Row{"Slowest route", fmt.Sprintf("%s (%s)", r.Slowest.Route, r.Slowest.Duration.Round(time.Millisecond))})
	}
	overview.Render()

	if len(r.MostRetried) > 0 {
		t := newTable(w, "Most retried routes")
		t.AppendHeader(table.Row{"Route", "Attempts", "Outcome", "Days"})
		for _, res := range r.MostRetried {
			t.AppendRow(table.Row{res.Route, res.Attempts, res.Outcome, res.Days})
		}
		t.Render()
	}

	if len(r.InsertedByOrigin) > 0 {
		// Sort origins by count descending
		type originCount struct {
			origin string
			count  int
		}
		var origins []originCount
		for o, n := range r.InsertedByOrigin {
			origins = append(origins, originCount{o, n})
		}
		sort.Slice(origins, func(i, j int) bool {
			if origins[i].count != origins[j].count {
				return origins[i].count > origins[j].count
			}
			return origins[i].origin < origins[j].origin
		})

		t := newTable(w, "Records by origin")
		t.AppendHeader(table.Row{"Origin", "Records"})
		for _, oc := range origins {
			t.AppendRow(table.Row{oc.origin, oc.count})
		}
		t.Render()
	}
}

// PrintExhausted lists routes whose retry budget ran out, with the last error.
func (s *InsightService) PrintExhausted(w io.Writer, summary *models.RunSummary) {
	exhausted := summary.Exhausted()
	if len(exhausted) == 0 {
		return
	}
	t := newTable(w, "Exhausted routes")
	t.AppendHeader(table.Row{"Route", "Attempts", "Days", "Error"})
	for _, res := range exhausted {
		t.AppendRow(table.Row{res.Route, res.Attempts, res.Days, truncate(fmt.Sprint(res.Err), 80)})
	}
	t.Render()
}

// PrintCoverage renders the coverage report of the route universe.
func (s *InsightService) PrintCoverage(w io.Writer, report *models.CoverageReport, verbose bool) {
	t := newTable(w, fmt.Sprintf("Coverage (%d-day window)", report.WindowSize))
	t.AppendHeader(table.Row{"State", "Routes"})
	t.AppendRows([]table.Row{
		{models.Complete, text.FgGreen.Sprint(report.Complete)},
		{models.Partial, text.FgYellow.Sprint(report.Partial)},
		{models.Unseen, report.Unseen},
	})
	t.AppendFooter(table.Row{"Total", report.TotalRoutes})
	t.Render()

	if !verbose {
		return
	}
	routes := newTable(w, "")
	routes.AppendHeader(table.Row{"Route", "State", "Stored days"})
	for _, rc := range report.Routes {
		routes.AppendRow(table.Row{rc.Route, rc.State, fmt.Sprintf("%d/%d", rc.StoredDays, report.WindowSize)})
	}
	routes.Render()
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func colorIf(cond bool, c text.Color, v any) string {
	if cond {
		return c.Sprint(v)
	}
	return fmt.Sprint(v)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
