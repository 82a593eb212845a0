package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/sony/gobreaker"
	_ "modernc.org/sqlite"

	"flight-scraper/models"
	"flight-scraper/utils"
)

// SQLStore persists flight records through database/sql. It serves
// postgres (lib/pq or pgx) and sqlite (modernc) with the same queries.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	opts    Options
	logger  *utils.Logger
	retry   *utils.RetryConfig
	cb      *gobreaker.CircuitBreaker
}

// OpenSQLStore opens a connection, waits for the database to answer, runs
// schema migrations and applies the uniqueness policy.
func OpenSQLStore(ctx context.Context, driver, dsn string, opts Options, logger *utils.Logger) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driver, err)
	}

	ping := &utils.RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, Logger: logger}
	if err := ping.Do(ctx, driver+"-ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s, err := NewSQLStore(ctx, db, driver, opts, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an already opened database and migrates it.
func NewSQLStore(ctx context.Context, db *sql.DB, driver string, opts Options, logger *utils.Logger) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if d.name == "sqlite" {
		// One connection keeps :memory: databases shared and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{
		db:      db,
		dialect: d,
		opts:    opts,
		logger:  logger,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "RecordStore",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || isConstraintViolation(err) || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("[store] circuit %s: %s -> %s", name, from, to)
			},
		}),
	}
	s.retry = &utils.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		Logger:      logger,
		Retryable: func(err error) bool {
			return !errors.Is(err, gobreaker.ErrOpenState) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		},
	}

	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("%s: migrate: %w", d.name, err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	stmts := append(s.dialect.schema(), s.dialect.uniquePolicy(s.opts.EnforceUnique))
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if s.opts.EnforceUnique && isConstraintViolation(err) {
				return fmt.Errorf("cannot enable %s, table already holds duplicate observations: %w",
					UniqueConstraintName, err)
			}
			return err
		}
	}
	s.logger.Info("[store] %s schema ready (%s enforced: %t)",
		s.dialect.name, UniqueConstraintName, s.opts.EnforceUnique)
	return nil
}

// guard runs fn behind the circuit breaker with bounded retries. Failures
// that survive both are reported as ErrStoreUnavailable.
func (s *SQLStore) guard(ctx context.Context, op string, fn func() error) error {
	err := s.retry.Do(ctx, "store-"+op, func() error {
		_, err := s.cb.Execute(func() (interface{}, error) {
			return nil, fn()
		})
		return err
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// InsertMany batch-inserts records. With the uniqueness policy enabled,
// conflicting rows are skipped and the rest of the batch is still stored.
func (s *SQLStore) InsertMany(ctx context.Context, records []*models.FlightRecord) (InsertResult, error) {
	var total InsertResult
	size := s.opts.batchSize()

	for i := 0; i < len(records); i += size {
		end := i + size
		if end > len(records) {
			end = len(records)
		}
		res, err := s.insertBatch(ctx, records[i:end])
		if err != nil {
			return total, err
		}
		total.Add(res)
	}

	if total.Dropped > 0 {
		s.logger.Warn("[store] dropped %d of %d rows on uniqueness conflict", total.Dropped, len(records))
	}
	return total, nil
}

func (s *SQLStore) insertBatch(ctx context.Context, batch []*models.FlightRecord) (InsertResult, error) {
	var res InsertResult
	err := s.guard(ctx, "insert", func() error {
		n, err := s.exec(ctx, batch)
		if err == nil {
			res = InsertResult{Inserted: n, Dropped: len(batch) - n}
			return nil
		}
		if !isConstraintViolation(err) {
			return err
		}
		// Some other constraint rejected the statement; salvage row by row.
		res = InsertResult{}
		for _, rec := range batch {
			n, err := s.exec(ctx, []*models.FlightRecord{rec})
			switch {
			case err == nil:
				res.Inserted += n
				res.Dropped += 1 - n
			case isConstraintViolation(err):
				s.logger.Debug("[store] row rejected: %v", err)
				res.Dropped++
			default:
				return err
			}
		}
		return nil
	})
	return res, err
}

func (s *SQLStore) exec(ctx context.Context, batch []*models.FlightRecord) (int, error) {
	args := make([]interface{}, 0, len(batch)*len(flightColumns))
	for _, r := range batch {
		var roundTrip sql.NullBool
		if r.IsRoundTrip != nil {
			roundTrip = sql.NullBool{Bool: *r.IsRoundTrip, Valid: true}
		}
		args = append(args,
			r.Price, r.DepartTime, r.ArrivalTime, r.DepartDate,
			r.ArrivalAirport, r.DepartureAirport, r.Airlines, r.NumStops, roundTrip)
	}

	result, err := s.db.ExecContext(ctx, s.dialect.insertStatement(len(batch)), args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return len(batch), nil
	}
	return int(n), nil
}

// DistinctRoutes lists every stored (departure, arrival) pair with a non-empty origin.
func (s *SQLStore) DistinctRoutes(ctx context.Context) ([]models.Route, error) {
	var routes []models.Route
	err := s.guard(ctx, "distinct-routes", func() error {
		routes = routes[:0]
		rows, err := s.db.QueryContext(ctx, s.dialect.routesQuery(s.opts.RecordEmptyDays))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var origin string
			var dest sql.NullString
			if err := rows.Scan(&origin, &dest); err != nil {
				return fmt.Errorf("scan route: %w", err)
			}
			routes = append(routes, models.Route{Origin: origin, Destination: dest.String})
		}
		return rows.Err()
	})
	return routes, err
}

// DistinctDateCount counts the distinct depart dates stored for route.
func (s *SQLStore) DistinctDateCount(ctx context.Context, route models.Route) (int, error) {
	var n int
	err := s.guard(ctx, "date-count", func() error {
		return s.db.QueryRowContext(ctx, s.dialect.dateCountQuery(s.opts.RecordEmptyDays),
			routeArgs(route, s.opts.RecordEmptyDays)...).Scan(&n)
	})
	return n, err
}

// DistinctDates lists the distinct depart dates stored for route.
func (s *SQLStore) DistinctDates(ctx context.Context, route models.Route) ([]string, error) {
	var dates []string
	err := s.guard(ctx, "dates", func() error {
		dates = dates[:0]
		rows, err := s.db.QueryContext(ctx, s.dialect.sortedDatesQuery(s.opts.RecordEmptyDays),
			routeArgs(route, s.opts.RecordEmptyDays)...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var d sql.NullString
			if err := rows.Scan(&d); err != nil {
				return fmt.Errorf("scan date: %w", err)
			}
			if d.Valid {
				dates = append(dates, d.String)
			}
		}
		return rows.Err()
	})
	return dates, err
}

// MarkEmptyDay adds departDate to the empty_days ledger of route.
func (s *SQLStore) MarkEmptyDay(ctx context.Context, route models.Route, departDate string) error {
	if !s.opts.RecordEmptyDays {
		return nil
	}
	return s.guard(ctx, "mark-empty-day", func() error {
		_, err := s.db.ExecContext(ctx, s.dialect.markEmptyDay(), route.Origin, route.Destination, departDate)
		return err
	})
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
