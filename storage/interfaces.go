package storage

import (
	"context"
	"errors"

	"flight-scraper/models"
)

// ErrStoreUnavailable marks a store failure the run cannot recover from.
var ErrStoreUnavailable = errors.New("record store unavailable")

// UniqueConstraintName names the optional uniqueness policy over
// (depart_time, arrival_time, price, depart_date, airlines).
const UniqueConstraintName = "uq_flights_observation"

// InsertResult reports how many rows of a batch were stored or dropped.
type InsertResult struct {
	Inserted int
	Dropped  int
}

// Add accumulates another result.
func (r *InsertResult) Add(o InsertResult) {
	r.Inserted += o.Inserted
	r.Dropped += o.Dropped
}

// RecordStore is the durable flights table consumed by the coverage resolver
// and the scheduler.
type RecordStore interface {
	// InsertMany stores records. Rows violating a uniqueness constraint are
	// dropped and counted, never returned as an error.
	InsertMany(ctx context.Context, records []*models.FlightRecord) (InsertResult, error)
	// DistinctRoutes lists every stored route with a non-empty origin.
	DistinctRoutes(ctx context.Context) ([]models.Route, error)
	// DistinctDateCount counts the distinct depart dates stored for route.
	DistinctDateCount(ctx context.Context, route models.Route) (int, error)
	// DistinctDates lists the distinct depart dates stored for route.
	DistinctDates(ctx context.Context, route models.Route) ([]string, error)
	// MarkEmptyDay records that route was scraped for departDate and the
	// page listed no usable flights. With RecordEmptyDays set, such dates
	// count toward the route's coverage; otherwise the call is a no-op.
	MarkEmptyDay(ctx context.Context, route models.Route, departDate string) error
	Close() error
}

// RawFlightWriter persists unprocessed scraped data.
type RawFlightWriter interface {
	WriteRaw(flights []*models.RawFlight) error
	Close() error
}

// Options control store behaviour shared by all backends.
type Options struct {
	// EnforceUnique enables the uq_flights_observation policy. When false the
	// index is dropped, so repeated observations are stored as separate rows.
	EnforceUnique bool
	// RecordEmptyDays keeps an empty_days ledger and counts its dates in
	// DistinctRoutes, DistinctDateCount and DistinctDates.
	RecordEmptyDays bool
	// BatchSize caps the rows per INSERT statement.
	BatchSize int
}

// DefaultBatchSize is used when Options.BatchSize is not positive.
const DefaultBatchSize = 50

func (o Options) batchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return DefaultBatchSize
}
