package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"flight-scraper/models"
	"flight-scraper/utils"
)

func newTestSQLStore(t *testing.T, enforce bool) *SQLStore {
	t.Helper()
	return openTestSQLStore(t, Options{EnforceUnique: enforce, BatchSize: 2})
}

func openTestSQLStore(t *testing.T, opts Options) *SQLStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	s, err := NewSQLStore(context.Background(), db, "sqlite", opts, utils.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func flight(origin, dest, date, price string) *models.FlightRecord {
	return &models.FlightRecord{
		Price:            price,
		DepartTime:       "8:00 AM",
		ArrivalTime:      "11:15 AM",
		DepartDate:       date,
		DepartureAirport: origin,
		ArrivalAirport:   dest,
		Airlines:         "Delta",
		NumStops:         0,
	}
}

func TestSQLStoreInsertAndCoverageQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t, false)

	res, err := s.InsertMany(ctx, []*models.FlightRecord{
		flight("ATL", "LAX", "01/11/2022", "120"),
		flight("ATL", "LAX", "01/11/2022", "140"),
		flight("ATL", "LAX", "01/12/2022", "99"),
		flight("LAX", "ATL", "01/11/2022", "200"),
		flight("", "ATL", "01/11/2022", "1"),
	})
	require.NoError(t, err)
	require.Equal(t, InsertResult{Inserted: 5}, res)

	routes, err := s.DistinctRoutes(ctx)
	require.NoError(t, err)
	require.Equal(t, []models.Route{{"ATL", "LAX"}, {"LAX", "ATL"}}, routes)

	n, err := s.DistinctDateCount(ctx, models.Route{Origin: "ATL", Destination: "LAX"})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = s.DistinctDateCount(ctx, models.Route{Origin: "LAX", Destination: "ATL"})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.DistinctDateCount(ctx, models.Route{Origin: "ORD", Destination: "ATL"})
	require.NoError(t, err)
	require.Equal(t, 0, n)

	dates, err := s.DistinctDates(ctx, models.Route{Origin: "ATL", Destination: "LAX"})
	require.NoError(t, err)
	require.Equal(t, []string{"01/11/2022", "01/12/2022"}, dates)
}

func TestSQLStoreUniquenessEnabledKeepsValidRows(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t, true)

	_, err := s.InsertMany(ctx, []*models.FlightRecord{flight("ATL", "LAX", "01/11/2022", "120")})
	require.NoError(t, err)

	res, err := s.InsertMany(ctx, []*models.FlightRecord{
		flight("ATL", "LAX", "01/12/2022", "120"),
		flight("ATL", "LAX", "01/11/2022", "120"), // duplicate observation
		flight("ATL", "LAX", "01/13/2022", "120"),
	})
	require.NoError(t, err)
	require.Equal(t, InsertResult{Inserted: 2, Dropped: 1}, res)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM flights`).Scan(&count))
	require.Equal(t, 3, count)
}

func TestSQLStoreUniquenessDisabledKeepsAllRows(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t, false)

	res, err := s.InsertMany(ctx, []*models.FlightRecord{
		flight("ATL", "LAX", "01/11/2022", "120"),
		flight("ATL", "LAX", "01/11/2022", "120"),
		flight("ATL", "LAX", "01/12/2022", "120"),
	})
	require.NoError(t, err)
	require.Equal(t, InsertResult{Inserted: 3}, res)
}

func TestSQLStoreRoundTripColumnIsNullable(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t, false)

	yes := true
	rt := flight("ATL", "LAX", "01/11/2022", "300")
	rt.IsRoundTrip = &yes
	_, err := s.InsertMany(ctx, []*models.FlightRecord{rt, flight("ATL", "LAX", "01/11/2022", "120")})
	require.NoError(t, err)

	var nulls, trues int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM flights WHERE is_round_trip IS NULL`).Scan(&nulls))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM flights WHERE is_round_trip = 1`).Scan(&trues))
	require.Equal(t, 1, nulls)
	require.Equal(t, 1, trues)
}

func TestSQLStoreEnableUniquenessOverDuplicatesFails(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	s, err := NewSQLStore(ctx, db, "sqlite", Options{}, utils.NewNopLogger())
	require.NoError(t, err)
	_, err = s.InsertMany(ctx, []*models.FlightRecord{
		flight("ATL", "LAX", "01/11/2022", "120"),
		flight("ATL", "LAX", "01/11/2022", "120"),
	})
	require.NoError(t, err)

	_, err = NewSQLStore(ctx, db, "sqlite", Options{EnforceUnique: true}, utils.NewNopLogger())
	require.Error(t, err)
	require.Contains(t, err.Error(), UniqueConstraintName)
}

func TestSQLStoreClosedDatabaseIsUnavailable(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLStore(t, false)
	s.retry.BaseDelay = 0
	require.NoError(t, s.db.Close())

	_, err := s.InsertMany(ctx, []*models.FlightRecord{flight("ATL", "LAX", "01/11/2022", "120")})
	require.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = s.DistinctRoutes(ctx)
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestSQLStoreEmptyDaysCountTowardCoverage(t *testing.T) {
	ctx := context.Background()
	atl := models.Route{Origin: "ATL", Destination: "LAX"}
	ord := models.Route{Origin: "ORD", Destination: "DFW"}

	for _, record := range []bool{true, false} {
		s := openTestSQLStore(t, Options{RecordEmptyDays: record})
		_, err := s.InsertMany(ctx, []*models.FlightRecord{flight("ATL", "LAX", "01/11/2022", "120")})
		require.NoError(t, err)

		require.NoError(t, s.MarkEmptyDay(ctx, atl, "01/12/2022"))
		require.NoError(t, s.MarkEmptyDay(ctx, atl, "01/12/2022"))
		require.NoError(t, s.MarkEmptyDay(ctx, atl, "01/11/2022"))
		require.NoError(t, s.MarkEmptyDay(ctx, ord, "01/11/2022"))

		routes, err := s.DistinctRoutes(ctx)
		require.NoError(t, err)
		dates, err := s.DistinctDates(ctx, atl)
		require.NoError(t, err)
		atlDays, err := s.DistinctDateCount(ctx, atl)
		require.NoError(t, err)
		ordDays, err := s.DistinctDateCount(ctx, ord)
		require.NoError(t, err)

		if record {
			require.Equal(t, []models.Route{atl, ord}, routes)
			require.Equal(t, []string{"01/11/2022", "01/12/2022"}, dates)
			require.Equal(t, 2, atlDays)
			require.Equal(t, 1, ordDays)
		} else {
			require.Equal(t, []models.Route{atl}, routes)
			require.Equal(t, []string{"01/11/2022"}, dates)
			require.Equal(t, 1, atlDays)
			require.Equal(t, 0, ordDays)
		}
	}
}

func TestSQLStoreBatchSizeSplitsInserts(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLStore(t, Options{BatchSize: 1})

	res, err := s.InsertMany(ctx, []*models.FlightRecord{
		flight("ATL", "LAX", "01/11/2022", "120"),
		flight("ATL", "LAX", "01/12/2022", "130"),
		flight("ATL", "LAX", "01/13/2022", "140"),
	})
	require.NoError(t, err)
	require.Equal(t, InsertResult{Inserted: 3}, res)
	require.Equal(t, 1, s.opts.batchSize())
	require.Equal(t, DefaultBatchSize, Options{}.batchSize())
}

func TestRebind(t *testing.T) {
	tests := []struct {
		d    dialect
		in   string
		want string
	}{
		{postgresDialect, "a = ? AND b = ?", "a = $1 AND b = $2"},
		{sqliteDialect, "a = ? AND b = ?", "a = ? AND b = ?"},
	}

	for _, tt := range tests {
		if got := tt.d.rebind(tt.in); got != tt.want {
			t.Errorf("%s rebind(%q) = %q; want %q", tt.d.name, tt.in, got, tt.want)
		}
	}
}

func TestInsertStatementShape(t *testing.T) {
	pg := postgresDialect.insertStatement(2)
	require.Contains(t, pg, "INSERT INTO flights")
	require.Contains(t, pg, "$18")
	require.NotContains(t, pg, "$19")
	require.Contains(t, pg, "ON CONFLICT DO NOTHING")

	lite := sqliteDialect.insertStatement(1)
	require.Contains(t, lite, "INSERT OR IGNORE INTO flights")
}

func TestCoverageQueriesBindRouteOncePerTable(t *testing.T) {
	require.Contains(t, postgresDialect.dateCountQuery(true), "$4")
	require.NotContains(t, postgresDialect.dateCountQuery(false), "$3")
	require.NotContains(t, postgresDialect.routesQuery(false), "empty_days")
	require.Len(t, routeArgs(models.Route{Origin: "ATL", Destination: "LAX"}, true), 4)
	require.Contains(t, postgresDialect.markEmptyDay(), "ON CONFLICT DO NOTHING")
	require.Contains(t, sqliteDialect.markEmptyDay(), "INSERT OR IGNORE INTO empty_days")
}
