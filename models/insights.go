package models

import "time"

// RunInsights holds the computed analytics over a finished run.
type RunInsights struct {
	TotalRoutes int
	Completed   int
	Exhausted   int
	Cancelled   int
	Aborted     int

	DaysExtracted int
	EmptyDays     int
	Inserted      int
	Dropped       int
	DropRate      float64

	Elapsed      time.Duration
	AverageRoute time.Duration
	Slowest      *RouteResult
	MostRetried  []RouteResult

	InsertedByOrigin map[string]int
}
