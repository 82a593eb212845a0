package services

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"flight-scraper/models"
	"flight-scraper/utils"
)

func init() {
	text.DisableColors()
}

func sampleSummary() *models.RunSummary {
	started := time.Date(2022, 1, 11, 9, 0, 0, 0, time.UTC)
	return &models.RunSummary{
		StartedAt:  started,
		FinishedAt: started.Add(10 * time.Minute),
		Inserted:   90,
		Dropped:    10,
		Routes: []models.RouteResult{
			{Route: models.Route{Origin: "ATL", Destination: "LAX"}, Outcome: models.OutcomeCompleted, Attempts: 1, Days: 7, Inserted: 50, Dropped: 10, Duration: 2 * time.Minute},
			{Route: models.Route{Origin: "ATL", Destination: "ORD"}, Outcome: models.OutcomeCompleted, Attempts: 2, Days: 7, EmptyDays: 2, Inserted: 40, Duration: 4 * time.Minute},
			{Route: models.Route{Origin: "LAX", Destination: "ORD"}, Outcome: models.OutcomeExhausted, Attempts: 3, Days: 2, Err: errors.New("results page not ready"), Duration: 3 * time.Minute},
			{Route: models.Route{Origin: "ORD", Destination: "DFW"}, Outcome: models.OutcomeCancelled, Attempts: 1, Duration: 3 * time.Minute},
		},
	}
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(sampleSummary())
	if r.TotalRoutes != 4 {
		t.Errorf("TotalRoutes: got %d, want 4", r.TotalRoutes)
	}
	if r.Completed != 2 || r.Exhausted != 1 || r.Cancelled != 1 || r.Aborted != 0 {
		t.Errorf("outcomes: got %d/%d/%d/%d, want 2/1/1/0", r.Completed, r.Exhausted, r.Cancelled, r.Aborted)
	}
	if r.DaysExtracted != 16 {
		t.Errorf("DaysExtracted: got %d, want 16", r.DaysExtracted)
	}
	if r.EmptyDays != 2 {
		t.Errorf("EmptyDays: got %d, want 2", r.EmptyDays)
	}
}

func TestInsightRates(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(sampleSummary())
	if r.DropRate != 10 {
		t.Errorf("DropRate: got %.2f, want 10", r.DropRate)
	}
	if r.Elapsed != 10*time.Minute {
		t.Errorf("Elapsed: got %s, want 10m", r.Elapsed)
	}
	if r.AverageRoute != 3*time.Minute {
		t.Errorf("AverageRoute: got %s, want 3m", r.AverageRoute)
	}
}

func TestInsightSlowestAndRetried(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(sampleSummary())
	if r.Slowest == nil || r.Slowest.Route.String() != "ATL->ORD" {
		t.Fatalf("Slowest: got %+v, want ATL->ORD", r.Slowest)
	}
	if len(r.MostRetried) != 2 {
		t.Fatalf("MostRetried: got %d, want 2", len(r.MostRetried))
	}
	if r.MostRetried[0].Attempts != 3 {
		t.Errorf("MostRetried[0]: got %d attempts, want 3", r.MostRetried[0].Attempts)
	}
	if r.InsertedByOrigin["ATL"] != 90 {
		t.Errorf("InsertedByOrigin[ATL]: got %d, want 90", r.InsertedByOrigin["ATL"])
	}
}

func TestInsightEmpty(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(&models.RunSummary{})
	if r.TotalRoutes != 0 || r.Slowest != nil || r.AverageRoute != 0 {
		t.Errorf("expected zero insights, got %+v", r)
	}
}

func TestInsightPrint(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	summary := sampleSummary()

	var buf bytes.Buffer
	svc.Print(&buf, svc.Generate(summary))
	svc.PrintExhausted(&buf, summary)
	out := buf.String()

	for _, want := range []string{"FLIGHT SCRAPE INSIGHTS", "Routes scheduled", "LAX->ORD", "results page not ready", "10.00%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintCoverage(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	report := &models.CoverageReport{
		WindowSize:  7,
		TotalRoutes: 2,
		Complete:    1,
		Unseen:      1,
		Routes: []models.RouteCoverage{
			{Route: models.Route{Origin: "ATL", Destination: "LAX"}, State: models.Complete, StoredDays: 7},
			{Route: models.Route{Origin: "LAX", Destination: "ATL"}, State: models.Unseen},
		},
	}

	var buf bytes.Buffer
	svc.PrintCoverage(&buf, report, true)
	out := buf.String()

	for _, want := range []string{"complete", "ATL->LAX", "7/7", "0/7"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
