// Package coverage decides which routes still need scraping by comparing the
// route universe against what the record store already holds.
package coverage

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"

	"flight-scraper/models"
	"flight-scraper/utils"
)

// Store is the read side of the record store the resolver needs.
type Store interface {
	DistinctRoutes(ctx context.Context) ([]models.Route, error)
	DistinctDateCount(ctx context.Context, route models.Route) (int, error)
	DistinctDates(ctx context.Context, route models.Route) ([]string, error)
}

// Policy holds the knobs that change which routes are yielded and where
// their scraping starts.
type Policy struct {
	// IncludeReversePairs dispatches the reverse of each candidate right
	// after it, so both directions of an airport pair are scraped together.
	// When false candidates follow plain origin/destination order. The
	// candidate set is every ordered pair either way.
	IncludeReversePairs bool
	// RescanFromZero restarts partial routes at offset 0 instead of at the
	// first date missing from the store.
	RescanFromZero bool
	// CompleteAtLeast treats a stored day count >= window as complete.
	// The default only treats count == window as complete.
	CompleteAtLeast bool
}

// Resolver computes the routes that still need scraping.
type Resolver struct {
	store     Store
	airports  []string
	startDate time.Time
	window    int
	policy    Policy
	logger    *utils.Logger
}

// NewResolver creates a Resolver over the given airport codes and window.
func NewResolver(store Store, airports []string, startDate time.Time, window int, policy Policy, logger *utils.Logger) *Resolver {
	return &Resolver{
		store:     store,
		airports:  normaliseCodes(airports),
		startDate: startDate,
		window:    window,
		policy:    policy,
		logger:    logger,
	}
}

// Universe returns every ordered pair of distinct airports, sorted by
// origin then destination.
func (r *Resolver) Universe() []models.Route {
	var routes []models.Route
	for _, a := range r.airports {
		for _, b := range r.airports {
			route := models.Route{Origin: a, Destination: b}
			if !route.Eligible() {
				continue
			}
			routes = append(routes, route)
		}
	}
	sortRoutes(routes)
	return routes
}

// dispatchOrder is the order Candidates evaluates the universe in. With
// IncludeReversePairs each route is followed by its reverse; every route
// appears once.
func (r *Resolver) dispatchOrder() []models.Route {
	universe := r.Universe()
	if !r.policy.IncludeReversePairs {
		return universe
	}

	seen := utils.NewSet[models.Route]()
	order := make([]models.Route, 0, len(universe))
	for _, route := range universe {
		for _, next := range []models.Route{route, route.Reverse()} {
			if !next.Eligible() || !seen.Add(next) {
				continue
			}
			order = append(order, next)
		}
	}
	return order
}

// Classify maps a stored distinct-date count to a coverage state.
func (r *Resolver) Classify(storedDays int) models.CoverageState {
	switch {
	case storedDays == 0:
		return models.Unseen
	case storedDays == r.window:
		return models.Complete
	case r.policy.CompleteAtLeast && storedDays > r.window:
		return models.Complete
	default:
		return models.Partial
	}
}

// Candidates lazily yields a plan for every route that is not complete.
// The store's route set is snapshotted once when iteration starts; the
// per-route day count is queried only for routes present in that snapshot.
// A store error is yielded once and ends the sequence.
func (r *Resolver) Candidates(ctx context.Context) iter.Seq2[models.RoutePlan, error] {
	return func(yield func(models.RoutePlan, error) bool) {
		existing, err := r.existing(ctx)
		if err != nil {
			yield(models.RoutePlan{}, err)
			return
		}

		for _, route := range r.dispatchOrder() {
			if _, stored := existing[route]; !stored {
				if !yield(models.RoutePlan{Route: route, State: models.Unseen}, nil) {
					return
				}
				continue
			}

			plan, ok, err := r.plan(ctx, route)
			if err != nil {
				yield(models.RoutePlan{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(plan, nil) {
				return
			}
		}
	}
}

// Resolve drains Candidates into a slice.
func (r *Resolver) Resolve(ctx context.Context) ([]models.RoutePlan, error) {
	var plans []models.RoutePlan
	for plan, err := range r.Candidates(ctx) {
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// Report classifies every route of the universe.
func (r *Resolver) Report(ctx context.Context) (*models.CoverageReport, error) {
	existing, err := r.existing(ctx)
	if err != nil {
		return nil, err
	}

	report := &models.CoverageReport{WindowSize: r.window}
	for _, route := range r.Universe() {
		days := 0
		if _, stored := existing[route]; stored {
			days, err = r.store.DistinctDateCount(ctx, route)
			if err != nil {
				return nil, fmt.Errorf("coverage: count days for %s: %w", route, err)
			}
		}

		state := r.Classify(days)
		switch state {
		case models.Complete:
			report.Complete++
		case models.Partial:
			report.Partial++
		default:
			report.Unseen++
		}
		report.Routes = append(report.Routes, models.RouteCoverage{Route: route, State: state, StoredDays: days})
	}
	report.TotalRoutes = len(report.Routes)
	return report, nil
}

func (r *Resolver) existing(ctx context.Context) (map[models.Route]struct{}, error) {
	routes, err := r.store.DistinctRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("coverage: list stored routes: %w", err)
	}
	set := make(map[models.Route]struct{}, len(routes))
	for _, route := range routes {
		set[route] = struct{}{}
	}
	return set, nil
}

// plan builds the plan for a route that already has stored rows. ok is
// false when the route needs no work.
func (r *Resolver) plan(ctx context.Context, route models.Route) (models.RoutePlan, bool, error) {
	days, err := r.store.DistinctDateCount(ctx, route)
	if err != nil {
		return models.RoutePlan{}, false, fmt.Errorf("coverage: count days for %s: %w", route, err)
	}

	plan := models.RoutePlan{Route: route, State: r.Classify(days), StoredDays: days}
	if plan.State == models.Complete {
		r.logger.Debug("[coverage] %s complete with %d days, skipping", route, days)
		return plan, false, nil
	}
	if r.policy.RescanFromZero {
		return plan, true, nil
	}

	offset, err := r.resumeOffset(ctx, route)
	if err != nil {
		return models.RoutePlan{}, false, err
	}
	if offset >= r.window {
		r.logger.Debug("[coverage] %s already holds every date of the window, skipping", route)
		return plan, false, nil
	}
	plan.ResumeOffset = offset
	return plan, true, nil
}

// resumeOffset returns the first window offset whose date is not stored.
func (r *Resolver) resumeOffset(ctx context.Context, route models.Route) (int, error) {
	dates, err := r.store.DistinctDates(ctx, route)
	if err != nil {
		return 0, fmt.Errorf("coverage: list dates for %s: %w", route, err)
	}
	stored := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		stored[d] = struct{}{}
	}
	for offset := 0; offset < r.window; offset++ {
		if _, ok := stored[models.DepartDateFor(r.startDate, offset)]; !ok {
			return offset, nil
		}
	}
	return r.window, nil
}

func normaliseCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func sortRoutes(routes []models.Route) {
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Origin != routes[j].Origin {
			return routes[i].Origin < routes[j].Origin
		}
		return routes[i].Destination < routes[j].Destination
	})
}
