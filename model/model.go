package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Holds all external facing types and constants.

type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway               = 1
	RouteTypeRail                 = 2
	RouteTypeBus                  = 3
	RouteTypeFerry                = 4
	RouteTypeCable                = 5
	RouteTypeAerial               = 6
	RouteTypeFunicular            = 7
	RouteTypeTrolleybus           = 11
	RouteTypeMonorail             = 12
)

// A station record. Platforms of a physical station carry the parent
// station's ID in ParentID; the parent itself has ParentID == "".
type Station struct {
	ID         string
	Name       string
	Lat        float64
	Lon        float64
	ParentID   string
	Wheelchair int8 // 0=unknown, 1=accessible, 2=not accessible
}

type Route struct {
	ID        string
	ShortName string
	Type      RouteType
}

type Trip struct {
	ID       string
	RouteID  string
	Headsign string
	// ShortName holds the train number ("690" for ICE 690).
	ShortName string
}

// One scheduled stop of a trip. Arrival and Departure are HH:MM:SS
// timetable times; hours may exceed 23 to express post-midnight
// service without changing the service day.
type StopTime struct {
	TripID    string
	StationID string
	Sequence  uint32
	Arrival   string
	Departure string
}

// A platform enrichment record (NeTEx style).
type Platform struct {
	ID              string
	Name            string
	Height          int
	Length          int
	ParentStationID string
}

// An intermediate stop along a leg.
type PathStop struct {
	Station   Station
	Arrival   string
	Departure string
	Platform  string
}

// One uninterrupted ride on a single trip between two of its stops.
type Leg struct {
	Origin            Station
	Destination       Station
	TrainLabel        string
	TrainNumber       string
	Headsign          string
	Departure         string
	Arrival           string
	DeparturePlatform string
	ArrivalPlatform   string
	DelayMinutes      int
	Path              []PathStop
	WagonLoads        []int
}

// One or more legs, in order, connecting an origin to a destination.
type Journey struct {
	ID           string
	StartStation Station
	EndStation   Station
	Legs         []Leg
	Transfers    int
	TotalMinutes int
	Description  string
	Insight      string
}

// ParseClock parses an HH:MM:SS (or HH:MM) timetable time into minutes
// since the service day's midnight. Hours of 24 and beyond are valid
// and indicate the following calendar day.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("invalid second in %q", s)
		}
	}

	return h*60 + m, nil
}

// FormatClock renders minutes since service-day midnight as HH:MM:SS.
// Values of 24h and beyond keep their overflowed hour.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d:00", minutes/60, minutes%60)
}

// ClockDiff returns the minutes elapsed from dep to arr. An arrival
// clock earlier than the departure clock is taken to fall on the
// following day, so 23:50 -> 00:40 yields 50.
func ClockDiff(dep, arr int) int {
	d := arr - dep
	if d < 0 {
		d += 24 * 60
	}
	return d
}

// TrainNumber extracts the numeric train number from a label like
// "ICE 690", dropping the category and any leading zeros. Only the
// first digit run counts, so "ICE 690-2" stays 690.
func TrainNumber(label string) string {
	digits := strings.Builder{}
	for _, r := range label {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		} else if digits.Len() > 0 {
			break
		}
	}
	if digits.Len() == 0 {
		return label
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return digits.String()
	}
	return strconv.Itoa(n)
}
