package parse

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"

	"schiene.dev/railplan/model"
	"schiene.dev/railplan/storage"
)

type RouteCSV struct {
	ID        string `csv:"route_id"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
	Type      string `csv:"route_type"`
}

func legalRouteType(t model.RouteType) bool {
	if t >= 0 && t <= 7 {
		return true
	}
	if t == 11 || t == 12 {
		return true
	}
	return false
}

func ParseRoutes(writer storage.TimetableWriter, data io.Reader) (map[string]bool, error) {
	routeCsv := []*RouteCSV{}
	if err := gocsv.Unmarshal(data, &routeCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling routes: %v", err)
	}

	routes := map[string]bool{}

	for _, r := range routeCsv {
		if r.ID == "" {
			return nil, fmt.Errorf("empty route_id")
		}
		if routes[r.ID] {
			return nil, fmt.Errorf("repeated route_id: '%s'", r.ID)
		}
		routes[r.ID] = true

		shortName := r.ShortName
		if shortName == "" {
			shortName = r.LongName
		}
		if shortName == "" {
			return nil, fmt.Errorf("route '%s' has no name", r.ID)
		}

		routeTypeInt, err := strconv.Atoi(r.Type)
		if err != nil {
			return nil, fmt.Errorf("route '%s' has invalid route_type '%s'", r.ID, r.Type)
		}
		routeType := model.RouteType(routeTypeInt)
		if !legalRouteType(routeType) {
			return nil, fmt.Errorf("route '%s' has invalid route_type '%s'", r.ID, r.Type)
		}

		err = writer.WriteRoute(&model.Route{
			ID:        r.ID,
			ShortName: shortName,
			Type:      routeType,
		})
		if err != nil {
			return nil, fmt.Errorf("writing route '%s': %w", r.ID, err)
		}
	}

	return routes, nil
}
