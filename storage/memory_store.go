package storage

import (
	"context"
	"sort"
	"sync"

	"flight-scraper/models"
)

// MemoryStore is a RecordStore kept in process memory. It backs dry runs and
// tests, and applies the same uniqueness policy as the SQL store.
type MemoryStore struct {
	mu     sync.RWMutex
	opts   Options
	rows   []models.FlightRecord
	keys   map[models.ObservationKey]struct{}
	empty  map[models.Route]map[string]struct{}
	nextID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:   opts,
		keys:   make(map[models.ObservationKey]struct{}),
		empty:  make(map[models.Route]map[string]struct{}),
		nextID: 1,
	}
}

func (m *MemoryStore) InsertMany(ctx context.Context, records []*models.FlightRecord) (InsertResult, error) {
	if err := ctx.Err(); err != nil {
		return InsertResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var res InsertResult
	for _, r := range records {
		if m.opts.EnforceUnique {
			k := r.Key()
			if _, dup := m.keys[k]; dup {
				res.Dropped++
				continue
			}
			m.keys[k] = struct{}{}
		}
		row := *r
		row.ID = m.nextID
		m.nextID++
		m.rows = append(m.rows, row)
		res.Inserted++
	}
	return res, nil
}

func (m *MemoryStore) DistinctRoutes(ctx context.Context) ([]models.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[models.Route]struct{})
	var routes []models.Route
	for _, r := range m.rows {
		route := r.Route()
		if route.Origin == "" {
			continue
		}
		if _, ok := seen[route]; ok {
			continue
		}
		seen[route] = struct{}{}
		routes = append(routes, route)
	}
	if m.opts.RecordEmptyDays {
		for route := range m.empty {
			if _, ok := seen[route]; !ok {
				seen[route] = struct{}{}
				routes = append(routes, route)
			}
		}
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Origin != routes[j].Origin {
			return routes[i].Origin < routes[j].Origin
		}
		return routes[i].Destination < routes[j].Destination
	})
	return routes, nil
}

func (m *MemoryStore) DistinctDateCount(ctx context.Context, route models.Route) (int, error) {
	dates, err := m.DistinctDates(ctx, route)
	return len(dates), err
}

func (m *MemoryStore) DistinctDates(ctx context.Context, route models.Route) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var dates []string
	for _, r := range m.rows {
		if r.Route() != route {
			continue
		}
		if _, ok := seen[r.DepartDate]; ok {
			continue
		}
		seen[r.DepartDate] = struct{}{}
		dates = append(dates, r.DepartDate)
	}
	if m.opts.RecordEmptyDays {
		for d := range m.empty[route] {
			if _, ok := seen[d]; !ok {
				seen[d] = struct{}{}
				dates = append(dates, d)
			}
		}
	}
	sort.Strings(dates)
	return dates, nil
}

func (m *MemoryStore) MarkEmptyDay(ctx context.Context, route models.Route, departDate string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.opts.RecordEmptyDays {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.empty[route] == nil {
		m.empty[route] = make(map[string]struct{})
	}
	m.empty[route][departDate] = struct{}{}
	return nil
}

// Len returns the number of stored rows.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func (m *MemoryStore) Close() error {
	return nil
}
