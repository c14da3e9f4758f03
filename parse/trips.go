package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"schiene.dev/railplan/model"
	"schiene.dev/railplan/storage"
)

type TripCSV struct {
	ID        string `csv:"trip_id"`
	RouteID   string `csv:"route_id"`
	Headsign  string `csv:"trip_headsign"`
	ShortName string `csv:"trip_short_name"`
}

func ParseTrips(
	writer storage.TimetableWriter,
	data io.Reader,
	routes map[string]bool,
) (map[string]bool, error) {
	tripCsv := []*TripCSV{}
	if err := gocsv.Unmarshal(data, &tripCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling trips: %w", err)
	}

	trips := map[string]bool{}
	for _, t := range tripCsv {
		if t.ID == "" {
			return nil, fmt.Errorf("empty trip_id")
		}
		if trips[t.ID] {
			return nil, fmt.Errorf("repeated trip_id '%s'", t.ID)
		}
		trips[t.ID] = true

		if !routes[t.RouteID] {
			return nil, fmt.Errorf("trip '%s' references unknown route_id '%s'", t.ID, t.RouteID)
		}

		err := writer.WriteTrip(&model.Trip{
			ID:        t.ID,
			RouteID:   t.RouteID,
			Headsign:  t.Headsign,
			ShortName: t.ShortName,
		})
		if err != nil {
			return nil, fmt.Errorf("writing trip '%s': %w", t.ID, err)
		}
	}

	return trips, nil
}
