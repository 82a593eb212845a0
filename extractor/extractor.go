// Package extractor defines the contract between the scheduler and whatever
// drives the flight search portal.
package extractor

import (
	"context"
	"errors"

	"flight-scraper/models"
)

var (
	// ErrPageNotReady means the results page did not render in time.
	ErrPageNotReady = errors.New("results page not ready")
	// ErrUnexpectedPage means the portal landed somewhere other than a
	// search results page, e.g. the explore map.
	ErrUnexpectedPage = errors.New("unexpected page")
)

// Session is one browsing session bound to a single route at a time.
// The date cursor starts at day offset 0 after Search and only moves
// forward via AdvanceDate.
type Session interface {
	// Search submits the search form for route at the window start date.
	Search(ctx context.Context, route models.Route) error
	// ExtractDay reads every flight row for the current date. dayOffset is
	// stamped on the returned rows and must match the cursor position.
	ExtractDay(ctx context.Context, route models.Route, dayOffset int) ([]*models.RawFlight, error)
	// AdvanceDate moves the date cursor forward by n days.
	AdvanceDate(ctx context.Context, n int) error
	Close() error
}

// Factory opens sessions. One session is opened per route attempt.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func(ctx context.Context) (Session, error)

func (f FactoryFunc) NewSession(ctx context.Context) (Session, error) { return f(ctx) }
