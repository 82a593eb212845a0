package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"flight-scraper/models"
	"flight-scraper/utils"
)

var (
	// priceRegexp captures the numeric part of a displayed fare
	priceRegexp = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	// dayShiftRegexp matches "+1" / "-1" day markers after a clock time
	dayShiftRegexp = regexp.MustCompile(`\s*[+-]\d+\s*$`)
	// clockRegexp keeps everything up to the AM/PM marker, dropping
	// timezone annotations that follow it
	clockRegexp = regexp.MustCompile(`(?i)^.*?[ap]\.?m\.?`)
	// stopsRegexp captures the leading stop count in "2 stops"
	stopsRegexp = regexp.MustCompile(`\d+`)
)

// Cleaner transforms RawFlights into FlightRecords ready for the store.
type Cleaner struct {
	logger    *utils.Logger
	startDate time.Time
	tripType  models.TripType
}

// NewCleaner creates a Cleaner that dates records relative to startDate.
func NewCleaner(startDate time.Time, tripType models.TripType, logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger, startDate: startDate, tripType: tripType}
}

// DepartDate returns the depart date Clean assigns to records of dayOffset.
func (c *Cleaner) DepartDate(dayOffset int) string {
	return models.DepartDateFor(c.startDate, dayOffset)
}

// Clean processes raw flights and returns cleaned records. Rows without a
// price or a readable stop count are dropped, as are repeats of the same
// observation within the batch.
func (c *Cleaner) Clean(raw []*models.RawFlight) []*models.FlightRecord {
	seen := make(map[models.ObservationKey]struct{})
	result := make([]*models.FlightRecord, 0, len(raw))

	for _, r := range raw {
		price := c.parsePrice(r.Price)
		if price == "" {
			c.logger.Debug("[cleaner] Dropping %s flight without price (%q)", r.Route, r.Price)
			continue
		}

		stops, ok := parseStops(r.Stops)
		if !ok {
			c.logger.Warn("[cleaner] Dropping %s flight with unreadable stops %q", r.Route, r.Stops)
			continue
		}

		rec := &models.FlightRecord{
			Price:            price,
			DepartTime:       normaliseClock(r.DepartTime),
			ArrivalTime:      normaliseClock(r.ArrivalTime),
			DepartDate:       models.DepartDateFor(c.startDate, r.DayOffset),
			DepartureAirport: r.Route.Origin,
			ArrivalAirport:   r.Route.Destination,
			Airlines:         strings.Join(filterAirlines(r.Airlines), ","),
			NumStops:         stops,
			IsRoundTrip:      c.roundTrip(r.TripLabel),
		}

		key := rec.Key()
		if _, dup := seen[key]; dup {
			c.logger.Debug("[cleaner] Duplicate observation skipped: %+v", key)
			continue
		}
		seen[key] = struct{}{}

		result = append(result, rec)
	}

	if dropped := len(raw) - len(result); dropped > 0 {
		c.logger.Info("[cleaner] Cleaned %d → %d flights (dropped %d)", len(raw), len(result), dropped)
	}
	return result
}

// parsePrice strips currency symbols and thousands separators.
// Examples:
//
//	"$1,204" → "1204"
//	"From $89.50" → "89.50"
func (c *Cleaner) parsePrice(raw string) string {
	match := priceRegexp.FindString(raw)
	return strings.ReplaceAll(match, ",", "")
}

func (c *Cleaner) roundTrip(label string) *bool {
	if c.tripType != models.RoundTrip {
		return nil
	}
	v := strings.Contains(strings.ToLower(label), "round trip")
	return &v
}

// normaliseClock removes day-shift markers and anything after AM/PM.
func normaliseClock(s string) string {
	s = normaliseText(s)
	s = dayShiftRegexp.ReplaceAllString(s, "")
	if m := clockRegexp.FindString(s); m != "" {
		return m
	}
	return s
}

func parseStops(raw string) (int, bool) {
	raw = strings.ToLower(normaliseText(raw))
	if raw == "nonstop" {
		return 0, true
	}
	m := stopsRegexp.FindString(raw)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// filterAirlines keeps plausible carrier names, dropping layout junk such as
// "Separate tickets booked together" and "Operated by" notes.
func filterAirlines(spans []string) []string {
	var out []string
	for _, s := range spans {
		s = normaliseText(s)
		n := utf8.RuneCountInString(s)
		if n <= 5 || n >= 50 {
			continue
		}
		if strings.Contains(s, "Separate") || strings.Contains(s, "Operated") {
			continue
		}
		out = append(out, s)
	}
	return out
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
