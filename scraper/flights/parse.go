package flights

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"flight-scraper/models"
)

// Result-page selectors. The portal renders one list item per itinerary;
// the "Leaves ..." label only appears on real flight rows.
const (
	selResultRow    = `ul[role="list"] > li`
	selRowMarker    = `span[aria-label*="Leaves"]`
	selDepartTime   = `span[aria-label*="Departure time"]`
	selArrivalTime  = `span[aria-label*="Arrival time"]`
	selAirlineSpans = `div.sSHqwe span`
)

// ParseResults reads every flight row from the results page HTML. Rows
// without a displayed price carry no flight information and are skipped.
func ParseResults(html string, route models.Route, dayOffset int, scrapedAt time.Time) ([]*models.RawFlight, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var flights []*models.RawFlight
	doc.Find(selResultRow).Has(selRowMarker).Each(func(_ int, row *goquery.Selection) {
		price := leafContaining(row, "$")
		if price == "" {
			return
		}

		var airlines []string
		row.Find(selAirlineSpans).Each(func(_ int, s *goquery.Selection) {
			if s.Children().Length() == 0 {
				airlines = append(airlines, s.Text())
			}
		})

		flights = append(flights, &models.RawFlight{
			Route:       route,
			DayOffset:   dayOffset,
			Price:       price,
			DepartTime:  strings.TrimSpace(row.Find(selDepartTime).First().Text()),
			ArrivalTime: strings.TrimSpace(row.Find(selArrivalTime).First().Text()),
			Airlines:    airlines,
			Stops:       leafContaining(row, "stop"),
			TripLabel:   leafContaining(row, "trip"),
			ScrapedAt:   scrapedAt,
		})
	})

	return flights, nil
}

// leafContaining returns the text of the first span without child elements
// whose text contains substr, case-insensitively.
func leafContaining(row *goquery.Selection, substr string) string {
	substr = strings.ToLower(substr)
	var found string
	row.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		text := strings.TrimSpace(s.Text())
		if strings.Contains(strings.ToLower(text), substr) {
			found = text
			return false
		}
		return true
	})
	return found
}
