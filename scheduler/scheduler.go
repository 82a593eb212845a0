// Package scheduler drives the extraction of candidate routes on a bounded
// worker pool and persists what each day page yields.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"flight-scraper/extractor"
	"flight-scraper/metrics"
	"flight-scraper/models"
	"flight-scraper/services"
	"flight-scraper/storage"
	"flight-scraper/utils"
)

var (
	// ErrRouteExhausted marks a route whose retry budget ran out.
	ErrRouteExhausted = errors.New("route retry budget exhausted")

	errStopped  = errors.New("route stopped")
	errPanicked = errors.New("extractor panicked")
)

// RouteError reports a route that failed every attempt.
type RouteError struct {
	Route    models.Route
	Attempts int
	Err      error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("route %s exhausted after %d attempts: %v", e.Route, e.Attempts, e.Err)
}

func (e *RouteError) Unwrap() []error {
	return []error{ErrRouteExhausted, e.Err}
}

// Options tune a Scheduler.
type Options struct {
	// WindowSize is the number of consecutive days scraped per route.
	WindowSize int
	// MaxRouteRetries bounds the attempts made for one route.
	MaxRouteRetries int
	// RetryBaseDelay is the first back-off between route attempts.
	RetryBaseDelay time.Duration
}

// Scheduler extracts routes concurrently. Extraction runs in parallel while
// every store write goes through a single mutex.
type Scheduler struct {
	pool     *utils.WorkerPool
	store    storage.RecordStore
	sessions extractor.Factory
	cleaner  *services.Cleaner
	raw      storage.RawFlightWriter
	metrics  *metrics.Metrics
	logger   *utils.Logger
	opts     Options

	writeMu sync.Mutex
}

// New creates a Scheduler. raw and m may be nil.
func New(
	pool *utils.WorkerPool,
	store storage.RecordStore,
	sessions extractor.Factory,
	cleaner *services.Cleaner,
	raw storage.RawFlightWriter,
	m *metrics.Metrics,
	opts Options,
	logger *utils.Logger,
) *Scheduler {
	if opts.MaxRouteRetries < 1 {
		opts.MaxRouteRetries = 1
	}
	return &Scheduler{
		pool:     pool,
		store:    store,
		sessions: sessions,
		cleaner:  cleaner,
		raw:      raw,
		metrics:  m,
		logger:   logger,
		opts:     opts,
	}
}

// run is the state of one Run call.
type run struct {
	ctx   context.Context
	abort context.CancelCauseFunc

	mu      sync.Mutex
	summary *models.RunSummary
}

func (r *run) record(res models.RouteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Routes = append(r.summary.Routes, res)
	r.summary.Inserted += res.Inserted
	r.summary.Dropped += res.Dropped
}

// Run schedules every plan yielded by plans and blocks until all dispatched
// routes have finished. A route that exhausts its retries is reported in the
// summary without failing the run. Run returns an error when the store
// becomes unavailable, when plans yields an error, or when ctx is cancelled.
// Cancellation stops new routes from starting; routes in flight finish the
// day they are on and then stop.
func (s *Scheduler) Run(ctx context.Context, plans iter.Seq2[models.RoutePlan, error]) (*models.RunSummary, error) {
	runCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	r := &run{
		ctx:     runCtx,
		abort:   abort,
		summary: &models.RunSummary{StartedAt: time.Now()},
	}

	dispatched := utils.NewSet[models.Route]()
	var planErr error

	for plan, err := range plans {
		if err != nil {
			planErr = err
			break
		}
		if !plan.Route.Eligible() {
			s.logger.Warn("[scheduler] Ignoring ineligible route %s", plan.Route)
			continue
		}
		if !dispatched.Add(plan.Route) {
			s.logger.Debug("[scheduler] %s already dispatched in this run", plan.Route)
			continue
		}

		p := plan
		if err := s.pool.Submit(runCtx, func() { r.record(s.runRoute(r, p)) }); err != nil {
			s.logger.Info("[scheduler] Not starting %s: %v", p.Route, context.Cause(runCtx))
			break
		}
	}

	s.pool.Wait()

	summary := r.summary
	summary.FinishedAt = time.Now()
	sort.Slice(summary.Routes, func(i, j int) bool {
		return summary.Routes[i].Route.String() < summary.Routes[j].Route.String()
	})

	s.logger.Info("[scheduler] Run finished: %d routes, %d completed, %d exhausted, %d records stored, %d dropped",
		len(summary.Routes), summary.Count(models.OutcomeCompleted), summary.Count(models.OutcomeExhausted),
		summary.Inserted, summary.Dropped)

	if cause := context.Cause(runCtx); errors.Is(cause, storage.ErrStoreUnavailable) {
		return summary, cause
	}
	if planErr != nil {
		return summary, fmt.Errorf("scheduler: resolve candidates: %w", planErr)
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// runRoute drives one route through at most MaxRouteRetries attempts. Each
// attempt opens a fresh session and resumes at the first day not yet
// persisted by an earlier attempt.
func (s *Scheduler) runRoute(r *run, plan models.RoutePlan) models.RouteResult {
	log := s.logger.With("route", plan.Route.String())
	started := time.Now()
	res := models.RouteResult{Route: plan.Route}
	offset := plan.ResumeOffset

	s.metrics.RouteStarted()
	log.Info("[scheduler] Starting %s (%s) at day %d/%d", plan.Route, plan.State, offset, s.opts.WindowSize)

	retry := &utils.RetryConfig{
		MaxAttempts: s.opts.MaxRouteRetries,
		BaseDelay:   s.opts.RetryBaseDelay,
		Logger:      log,
		Retryable: func(err error) bool {
			return !errors.Is(err, errStopped) && !errors.Is(err, storage.ErrStoreUnavailable)
		},
	}

	err := retry.Do(r.ctx, "scrape "+plan.Route.String(), func() error {
		res.Attempts++
		if res.Attempts > 1 {
			s.metrics.RouteRetried()
		}
		next, err := s.attempt(r, plan.Route, offset, &res, log)
		if next > offset {
			offset = next
		}
		if err != nil {
			s.metrics.Error("route_attempt")
		}
		return err
	})

	res.Duration = time.Since(started)
	switch {
	case err == nil:
		res.Outcome = models.OutcomeCompleted
		log.Info("[scheduler] %s complete: %d days, %d stored, %d dropped in %s",
			plan.Route, res.Days, res.Inserted, res.Dropped, res.Duration.Round(time.Millisecond))
	case errors.Is(err, storage.ErrStoreUnavailable) || errors.Is(context.Cause(r.ctx), storage.ErrStoreUnavailable):
		res.Outcome = models.OutcomeAborted
		res.Err = err
		log.Error("[scheduler] %s aborted: %v", plan.Route, err)
	case errors.Is(err, errStopped) || r.ctx.Err() != nil:
		res.Outcome = models.OutcomeCancelled
		log.Warn("[scheduler] %s stopped at day %d/%d", plan.Route, offset, s.opts.WindowSize)
	default:
		res.Outcome = models.OutcomeExhausted
		res.Err = &RouteError{Route: plan.Route, Attempts: res.Attempts, Err: err}
		log.Error("[scheduler] %v", res.Err)
	}

	s.metrics.RouteFinished(res)
	return res
}

// attempt runs one session over the days [offset, window). It returns the
// first day offset that has not been persisted.
func (s *Scheduler) attempt(r *run, route models.Route, offset int, res *models.RouteResult, log *utils.Logger) (next int, err error) {
	next = offset
	if r.ctx.Err() != nil {
		return next, errStopped
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w at day %d: %v", errPanicked, next, p)
		}
	}()

	// Browser and store calls finish the current day even after the run is
	// cancelled; the day loop checks r.ctx between days.
	bctx := context.WithoutCancel(r.ctx)

	session, err := s.sessions.NewSession(bctx)
	if err != nil {
		return next, fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Debug("[scheduler] Closing session: %v", cerr)
		}
	}()

	if err := session.Search(bctx, route); err != nil {
		return next, fmt.Errorf("search: %w", err)
	}
	if next > 0 {
		if err := session.AdvanceDate(bctx, next); err != nil {
			return next, fmt.Errorf("advance to day %d: %w", next, err)
		}
	}

	for day := next; day < s.opts.WindowSize; day++ {
		raw, err := session.ExtractDay(bctx, route, day)
		if err != nil {
			return next, fmt.Errorf("extract day %d: %w", day, err)
		}
		if err := s.persist(r, bctx, route, day, raw, res); err != nil {
			return next, err
		}
		next = day + 1
		res.Days++

		if next >= s.opts.WindowSize {
			break
		}
		if r.ctx.Err() != nil {
			return next, errStopped
		}
		if err := session.AdvanceDate(bctx, 1); err != nil {
			return next, fmt.Errorf("advance to day %d: %w", next, err)
		}
	}
	return next, nil
}

// persist cleans and stores one day page under the write lock. A day with
// no usable flights is marked empty so the store can still count its date.
func (s *Scheduler) persist(r *run, ctx context.Context, route models.Route, day int, raw []*models.RawFlight, res *models.RouteResult) error {
	records := s.cleaner.Clean(raw)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.raw != nil && len(raw) > 0 {
		if err := s.raw.WriteRaw(raw); err != nil {
			s.logger.Warn("[scheduler] Raw CSV write failed for %s day %d: %v", route, day, err)
			s.metrics.Error("raw_write")
		}
	}

	if len(records) == 0 {
		s.logger.Debug("[scheduler] %s day %d returned no usable flights", route, day)
		if err := s.store.MarkEmptyDay(ctx, route, s.cleaner.DepartDate(day)); err != nil {
			return s.storeFailed(r, "store_empty_day", day, err)
		}
		res.EmptyDays++
		s.metrics.DayStored(0, 0)
		return nil
	}

	out, err := s.store.InsertMany(ctx, records)
	if err != nil {
		return s.storeFailed(r, "store_insert", day, err)
	}

	res.Inserted += out.Inserted
	res.Dropped += out.Dropped
	s.metrics.DayStored(out.Inserted, out.Dropped)
	s.logger.Debug("[scheduler] %s day %d: %d stored, %d dropped", route, day, out.Inserted, out.Dropped)
	return nil
}

func (s *Scheduler) storeFailed(r *run, op string, day int, err error) error {
	if errors.Is(err, storage.ErrStoreUnavailable) {
		r.abort(err)
	}
	s.metrics.Error(op)
	return fmt.Errorf("store day %d: %w", day, err)
}
