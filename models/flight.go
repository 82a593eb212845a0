package models

import (
	"fmt"
	"time"
)

// DepartDateLayout is the stored format of FlightRecord.DepartDate.
const DepartDateLayout = "01/02/2006"

// TripType selects the search mode on the flight portal.
type TripType string

const (
	OneWay    TripType = "one-way"
	RoundTrip TripType = "round-trip"
)

// Valid reports whether t is a known trip type.
func (t TripType) Valid() bool {
	return t == OneWay || t == RoundTrip
}

// Label is the option text the portal shows in its trip-type dropdown.
func (t TripType) Label() string {
	if t == RoundTrip {
		return "Round trip"
	}
	return "One way"
}

// Route is a directional (origin, destination) airport pair.
type Route struct {
	Origin      string
	Destination string
}

// Eligible reports whether the route may be scheduled at all.
func (r Route) Eligible() bool {
	return r.Origin != "" && r.Destination != "" && r.Origin != r.Destination
}

// Reverse returns the route flown the other way.
func (r Route) Reverse() Route {
	return Route{Origin: r.Destination, Destination: r.Origin}
}

func (r Route) String() string {
	return fmt.Sprintf("%s->%s", r.Origin, r.Destination)
}

// RawFlight holds unprocessed strings read off the results page.
// This is written to CSV before any cleaning or transformation.
type RawFlight struct {
	Route       Route
	DayOffset   int
	Price       string
	DepartTime  string
	ArrivalTime string
	Airlines    []string
	Stops       string
	TripLabel   string
	ScrapedAt   time.Time
}

// FlightRecord is the cleaned row stored in the flights table.
type FlightRecord struct {
	ID               int64
	Price            string
	DepartTime       string
	ArrivalTime      string
	DepartDate       string
	DepartureAirport string
	ArrivalAirport   string
	Airlines         string
	NumStops         int
	IsRoundTrip      *bool
}

// Route returns the record's (departure, arrival) pair.
func (f *FlightRecord) Route() Route {
	return Route{Origin: f.DepartureAirport, Destination: f.ArrivalAirport}
}

// ObservationKey is the tuple covered by the optional uniqueness policy.
type ObservationKey struct {
	DepartTime  string
	ArrivalTime string
	Price       string
	DepartDate  string
	Airlines    string
}

// Key returns the record's observation key.
func (f *FlightRecord) Key() ObservationKey {
	return ObservationKey{
		DepartTime:  f.DepartTime,
		ArrivalTime: f.ArrivalTime,
		Price:       f.Price,
		DepartDate:  f.DepartDate,
		Airlines:    f.Airlines,
	}
}

// DepartDateFor returns the stored date string for a day offset in the window.
func DepartDateFor(start time.Time, offset int) string {
	return start.AddDate(0, 0, offset).Format(DepartDateLayout)
}
