// Package flights drives the flight search portal in a headless browser.
package flights

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"flight-scraper/config"
	"flight-scraper/extractor"
	"flight-scraper/models"
	"flight-scraper/utils"
)

// Search-form selectors, matched with chromedp.BySearch.
const (
	selTripTypeMenu   = `//span[text()="Round trip"]`
	selTripTypeOption = `//li[@role="option" and text()="%s"]`
	selWhereFrom      = `//div[@aria-placeholder="Where from?"]`
	selWhereTo        = `//div[@aria-placeholder="Where to?"]`
	selDepartureDate  = `//input[@placeholder="Departure date"]`
	selReturnDate     = `(//input[@placeholder="Return date"])[2]`
	selNextDate       = `//input[@type="text" and @value and @placeholder="Departure date"]/../div[3]`
	selMoreFlights    = `//span[contains(text(), "more flights")]`

	// The airport field turns into an expanded combobox whose newest listbox
	// holds the suggestions for the typed code.
	selAirportInput = `//input[@role="combobox" and @aria-expanded="true"]`
	selSuggestion   = `(//ul[@role="listbox"])[last()]/li[@role="option"][1]`
	selDatePicker   = `(//div[@role="dialog"])[last()]`

	searchDateLayout = "Jan 02"

	// The form needs several Enter presses to close the date picker and
	// submit; each press waits up to submitWait for the page to navigate.
	submitPresses = 5
	submitWait    = 2 * time.Second
)

// readyJS reports true once the results list or the empty-results notice
// has rendered.
const readyJS = `(function() {
	var rows = document.querySelectorAll('ul[role="list"] > li span[aria-label*="Leaves"]');
	if (rows.length > 0) return true;
	var main = document.querySelector('div[role="main"]');
	return !!main && main.innerText.indexOf('No results') !== -1;
})()`

// Browser owns the Chrome process shared by all sessions of a run.
type Browser struct {
	cfg         *config.Config
	logger      *utils.Logger
	retry       *utils.RetryConfig
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
}

// NewBrowser prepares the Chrome allocator. Chrome itself starts with the
// first session.
func NewBrowser(cfg *config.Config, logger *utils.Logger) *Browser {
	chromeBin := findChromeBinary(cfg.ChromeBin)
	logger.Info("[flights] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.WindowSize(1366, 900),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Browser{
		cfg:    cfg,
		logger: logger,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   cfg.RetryBaseDelay,
			Logger:      logger,
		},
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
	}
}

// NewSession opens a new browser tab.
func (b *Browser) NewSession(ctx context.Context) (extractor.Session, error) {
	// Suppress chromedp log noise
	tab, cancel := chromedp.NewContext(b.allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	s := &Session{browser: b, tab: tab, cancel: cancel}
	if err := s.run(ctx, b.cfg.PageTimeout); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return s, nil
}

// Close shuts down Chrome.
func (b *Browser) Close() {
	b.cancelAlloc()
}

// Session is one browser tab working through a single route.
type Session struct {
	browser *Browser
	tab     context.Context
	cancel  context.CancelFunc
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(opCtx, actions...)
}

// Search fills the search form for route and submits it. The portal
// sometimes falls back to its explore map; that counts as a failed attempt.
func (s *Session) Search(ctx context.Context, route models.Route) error {
	cfg := s.browser.cfg
	return s.browser.retry.Do(ctx, "search "+route.String(), func() error {
		var formURL string
		actions := []chromedp.Action{
			chromedp.Navigate(cfg.SearchURL),
			chromedp.Location(&formURL),
			chromedp.Click(selTripTypeMenu, chromedp.BySearch),
			chromedp.Click(fmt.Sprintf(selTripTypeOption, cfg.TripType.Label()), chromedp.BySearch),
		}
		actions = append(actions, enterAirport(selWhereFrom, route.Origin)...)
		actions = append(actions, enterAirport(selWhereTo, route.Destination)...)
		actions = append(actions,
			chromedp.Click(selDepartureDate, chromedp.BySearch),
			chromedp.WaitVisible(selDatePicker, chromedp.BySearch),
			chromedp.KeyEvent(cfg.StartDate.Format(searchDateLayout)),
		)

		if cfg.TripType == models.RoundTrip {
			returnDate := cfg.StartDate.AddDate(0, 0, cfg.NumDays)
			actions = append(actions,
				chromedp.Click(selReturnDate, chromedp.BySearch),
				chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
				chromedp.KeyEvent(returnDate.Format(searchDateLayout)),
			)
		}

		if err := s.run(ctx, cfg.PageTimeout, actions...); err != nil {
			return fmt.Errorf("chromedp search: %w", err)
		}

		location, err := s.submit(ctx, formURL)
		if err != nil {
			return err
		}
		if !isResultsURL(location) {
			return fmt.Errorf("%w: landed on %s", extractor.ErrUnexpectedPage, location)
		}
		return nil
	})
}

// enterAirport types code into the airport field and picks the first
// suggestion once the list has rendered.
func enterAirport(field, code string) []chromedp.Action {
	return []chromedp.Action{
		chromedp.Click(field, chromedp.BySearch),
		chromedp.WaitVisible(selAirportInput, chromedp.BySearch),
		chromedp.KeyEvent(code),
		chromedp.WaitVisible(selSuggestion, chromedp.BySearch),
		chromedp.KeyEvent(kb.Enter),
		chromedp.WaitNotVisible(selSuggestion, chromedp.BySearch),
	}
}

// submit presses Enter until the page leaves formURL and returns the new
// location. A page that never navigates is reported through its URL.
func (s *Session) submit(ctx context.Context, formURL string) (string, error) {
	navigated := fmt.Sprintf(`location.href !== %q`, formURL)
	for i := 0; i < submitPresses; i++ {
		var left bool
		err := s.run(ctx, submitWait,
			chromedp.KeyEvent(kb.Enter),
			chromedp.Poll(navigated, &left, chromedp.WithPollingInterval(100*time.Millisecond)),
		)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	var location string
	if err := s.run(ctx, s.browser.cfg.PageTimeout, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("chromedp read location: %w", err)
	}
	return location, nil
}

// ExtractDay waits for the results of the current date and parses them.
func (s *Session) ExtractDay(ctx context.Context, route models.Route, dayOffset int) ([]*models.RawFlight, error) {
	cfg := s.browser.cfg

	// Best effort: the button is missing when every flight already shows.
	if err := s.run(ctx, 3*time.Second, chromedp.Click(selMoreFlights, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		s.browser.logger.Debug("[flights] %s day %d: no \"more flights\" control", route, dayOffset)
	}

	var ready bool
	err := s.run(ctx, cfg.ReadyTimeout,
		chromedp.Poll(readyJS, &ready, chromedp.WithPollingInterval(250*time.Millisecond)),
	)
	if err != nil || !ready {
		return nil, fmt.Errorf("%w: %s day %d: %v", extractor.ErrPageNotReady, route, dayOffset, err)
	}

	var html string
	if err := s.run(ctx, cfg.PageTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("chromedp read results: %w", err)
	}

	flights, err := ParseResults(html, route, dayOffset, time.Now())
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	s.browser.logger.Debug("[flights] %s day %d: found %d rows", route, dayOffset, len(flights))
	return flights, nil
}

// AdvanceDate clicks the next-day arrow n times. A failed click reloads the
// page and is retried up to the configured attempt budget.
func (s *Session) AdvanceDate(ctx context.Context, n int) error {
	cfg := s.browser.cfg
	for i := 0; i < n; i++ {
		attempt := 0
		err := s.browser.retry.Do(ctx, "advance date", func() error {
			attempt++
			if attempt > 1 {
				if err := s.run(ctx, cfg.PageTimeout, chromedp.Reload()); err != nil {
					return fmt.Errorf("chromedp reload: %w", err)
				}
			}

			var before, after string
			err := s.run(ctx, cfg.PageTimeout,
				chromedp.Value(selDepartureDate, &before, chromedp.BySearch),
				chromedp.Click(selNextDate, chromedp.BySearch, chromedp.NodeVisible),
			)
			if err != nil {
				return fmt.Errorf("chromedp next date: %w", err)
			}

			changed := fmt.Sprintf(`document.querySelector('input[placeholder="Departure date"]').value !== %q`, before)
			var ok bool
			if err := s.run(ctx, cfg.ReadyTimeout, chromedp.Poll(changed, &ok), chromedp.Value(selDepartureDate, &after, chromedp.BySearch)); err != nil {
				return fmt.Errorf("%w: date did not move past %q: %v", extractor.ErrPageNotReady, before, err)
			}
			s.browser.logger.Debug("[flights] Date moved %q → %q", before, after)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Close closes the tab.
func (s *Session) Close() error {
	s.cancel()
	return nil
}

// isResultsURL rejects the explore map and any non-search landing page.
func isResultsURL(u string) bool {
	return strings.Contains(u, "search") && !strings.Contains(u, "explore")
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

var _ extractor.Factory = (*Browser)(nil)
