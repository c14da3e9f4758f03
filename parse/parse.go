package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"schiene.dev/railplan/storage"
)

// ParseTimetable loads a zipped CSV timetable dump into the given
// writer. stations.txt, routes.txt, trips.txt and stop_times.txt are
// required; platforms.txt and delay_patterns.txt are optional
// enrichment.
func ParseTimetable(writer storage.TimetableWriter, buf []byte) error {
	file := map[string]io.ReadCloser{
		"stations.txt":       nil,
		"routes.txt":         nil,
		"trips.txt":          nil,
		"stop_times.txt":     nil,
		"platforms.txt":      nil,
		"delay_patterns.txt": nil,
	}

	defer func() {
		for _, rc := range file {
			if rc != nil {
				rc.Close()
			}
		}
	}()

	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return fmt.Errorf("unzipping: %w", err)
	}

	for _, f := range r.File {
		// There should not be any subdirectories. But, some
		// dumps don't care.
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		fName := path[len(path)-1]

		if _, found := file[fName]; !found {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening %s: %w", f.Name, err)
		}

		file[fName] = rc
	}

	for _, required := range []string{"stations.txt", "routes.txt", "trips.txt", "stop_times.txt"} {
		if file[required] == nil {
			return fmt.Errorf("missing %s", required)
		}
	}

	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	stations, err := ParseStations(writer, file["stations.txt"])
	if err != nil {
		return fmt.Errorf("parsing stations: %w", err)
	}

	routes, err := ParseRoutes(writer, file["routes.txt"])
	if err != nil {
		return fmt.Errorf("parsing routes: %w", err)
	}

	trips, err := ParseTrips(writer, file["trips.txt"], routes)
	if err != nil {
		return fmt.Errorf("parsing trips: %w", err)
	}

	err = ParseStopTimes(writer, file["stop_times.txt"], trips, stations)
	if err != nil {
		return fmt.Errorf("parsing stop times: %w", err)
	}

	if file["platforms.txt"] != nil {
		if err := ParsePlatforms(writer, file["platforms.txt"]); err != nil {
			return fmt.Errorf("parsing platforms: %w", err)
		}
	}

	if file["delay_patterns.txt"] != nil {
		if err := ParseDelayPatterns(writer, file["delay_patterns.txt"]); err != nil {
			return fmt.Errorf("parsing delay patterns: %w", err)
		}
	}

	return nil
}
