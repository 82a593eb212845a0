//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"flight-scraper/models"
	"flight-scraper/utils"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "scraper",
				"POSTGRES_PASSWORD": "scraper123",
				"POSTGRES_DB":       "airline_db",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("host=%s port=%s user=scraper password=scraper123 dbname=airline_db sslmode=disable",
		host, port.Port())
}

func TestPostgresStoreDrivers(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	for _, driver := range []string{"postgres", "pgx"} {
		t.Run(driver, func(t *testing.T) {
			s, err := OpenSQLStore(ctx, driver, dsn, Options{EnforceUnique: true}, utils.NewNopLogger())
			require.NoError(t, err)
			defer s.Close()

			_, err = s.db.ExecContext(ctx, `TRUNCATE flights`)
			require.NoError(t, err)

			res, err := s.InsertMany(ctx, []*models.FlightRecord{
				flight("ATL", "LAX", "01/11/2022", "120"),
				flight("ATL", "LAX", "01/11/2022", "120"),
				flight("ATL", "LAX", "01/12/2022", "120"),
			})
			require.NoError(t, err)
			require.Equal(t, InsertResult{Inserted: 2, Dropped: 1}, res)

			n, err := s.DistinctDateCount(ctx, models.Route{Origin: "ATL", Destination: "LAX"})
			require.NoError(t, err)
			require.Equal(t, 2, n)

			routes, err := s.DistinctRoutes(ctx)
			require.NoError(t, err)
			require.Equal(t, []models.Route{{Origin: "ATL", Destination: "LAX"}}, routes)
		})
	}
}
