package models

import "time"

// CoverageState is derived from the stored distinct-date count of a route.
type CoverageState string

const (
	Unseen   CoverageState = "unseen"
	Partial  CoverageState = "partial"
	Complete CoverageState = "complete"
)

// RoutePlan is one unit of scheduled work produced by the coverage resolver.
type RoutePlan struct {
	Route        Route
	State        CoverageState
	StoredDays   int
	ResumeOffset int
}

// RouteCoverage is one line of the coverage report.
type RouteCoverage struct {
	Route      Route
	State      CoverageState
	StoredDays int
}

// CoverageReport summarises how much of the route universe is stored.
type CoverageReport struct {
	WindowSize  int
	TotalRoutes int
	Complete    int
	Partial     int
	Unseen      int
	Routes      []RouteCoverage
}

// RouteOutcome is the terminal state of one scheduled route.
type RouteOutcome string

const (
	OutcomeCompleted RouteOutcome = "completed"
	OutcomeExhausted RouteOutcome = "exhausted"
	OutcomeCancelled RouteOutcome = "cancelled"
	OutcomeAborted   RouteOutcome = "aborted"
)

// RouteResult records what happened to one route during a run.
type RouteResult struct {
	Route     Route
	Outcome   RouteOutcome
	Attempts  int
	Days      int
	EmptyDays int // days that listed no usable flights
	Inserted  int
	Dropped   int
	Err       error
	Duration  time.Duration
}

// RunSummary is the outcome of a whole scheduler run.
type RunSummary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Routes     []RouteResult
	Inserted   int
	Dropped    int
}

// Count returns the number of routes that ended with the given outcome.
func (s *RunSummary) Count(outcome RouteOutcome) int {
	n := 0
	for _, r := range s.Routes {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// Exhausted returns the routes whose retry budget was spent.
func (s *RunSummary) Exhausted() []RouteResult {
	var out []RouteResult
	for _, r := range s.Routes {
		if r.Outcome == OutcomeExhausted {
			out = append(out, r)
		}
	}
	return out
}
