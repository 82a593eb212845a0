package storage

import (
	"context"
	"fmt"

	"flight-scraper/utils"
)

// DriverMemory selects the in-process MemoryStore.
const DriverMemory = "memory"

// Open creates the RecordStore for driver: "postgres" (lib/pq), "pgx",
// "sqlite" (modernc) or "memory".
func Open(ctx context.Context, driver, dsn string, opts Options, logger *utils.Logger) (RecordStore, error) {
	logger.Info("[store] opening %s record store", driver)

	switch driver {
	case DriverMemory:
		logger.Warn("[store] using in-memory store, nothing will be persisted")
		return NewMemoryStore(opts), nil
	case "postgres", "pgx", "sqlite":
		return OpenSQLStore(ctx, driver, dsn, opts, logger)
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}
}
