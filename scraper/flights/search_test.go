package flights

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/require"

	"flight-scraper/config"
	"flight-scraper/models"
	"flight-scraper/utils"
)

// TestSearchFillsFormAndSubmits drives a local copy of the search form in
// headless Chrome. Every step waits on the page instead of a fixed delay,
// so the form needs a second Enter before it navigates.
func TestSearchFillsFormAndSubmits(t *testing.T) {
	if testing.Short() || findChromeBinary("") == "" {
		t.Skip("headless Chrome not available")
	}

	page, err := os.ReadFile("testdata/form.html")
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(page)
	}))
	defer srv.Close()

	cfg := &config.Config{
		SearchURL:      srv.URL + "/",
		TripType:       models.OneWay,
		StartDate:      time.Date(2022, 1, 11, 0, 0, 0, 0, time.UTC),
		NumDays:        3,
		Headless:       true,
		PageTimeout:    20 * time.Second,
		ReadyTimeout:   5 * time.Second,
		MaxRetries:     1,
		RetryBaseDelay: 10 * time.Millisecond,
	}
	browser := NewBrowser(cfg, utils.NewNopLogger())
	defer browser.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sess, err := browser.NewSession(ctx)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Search(ctx, models.Route{Origin: "ATL", Destination: "LAX"}))

	var location string
	require.NoError(t, chromedp.Run(sess.(*Session).tab, chromedp.Location(&location)))
	u, err := url.Parse(location)
	require.NoError(t, err)
	require.Equal(t, "/search", u.Path)
	require.Equal(t, "One way", u.Query().Get("trip"))
	require.Equal(t, "ATL", u.Query().Get("from"))
	require.Equal(t, "LAX", u.Query().Get("to"))
	require.Equal(t, "Jan 11", u.Query().Get("date"))
}

func TestSearchGivesUpWhenFormIsMissing(t *testing.T) {
	if testing.Short() || findChromeBinary("") == "" {
		t.Skip("headless Chrome not available")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>Explore destinations</p></body></html>`))
	}))
	defer srv.Close()

	cfg := &config.Config{
		SearchURL:      srv.URL + "/explore",
		TripType:       models.OneWay,
		StartDate:      time.Date(2022, 1, 11, 0, 0, 0, 0, time.UTC),
		Headless:       true,
		PageTimeout:    3 * time.Second,
		MaxRetries:     1,
		RetryBaseDelay: 10 * time.Millisecond,
	}
	browser := NewBrowser(cfg, utils.NewNopLogger())
	defer browser.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sess, err := browser.NewSession(ctx)
	require.NoError(t, err)
	defer sess.Close()

	require.Error(t, sess.Search(ctx, models.Route{Origin: "ATL", Destination: "LAX"}))
}
