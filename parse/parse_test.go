package parse

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schiene.dev/railplan/storage"
)

func buildZip(t *testing.T, files map[string][]string) []byte {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for filename, content := range files {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(content, "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

// A minimal dump with all required files
func fixtureSimple() map[string][]string {
	return map[string][]string{
		"stations.txt": []string{
			"stop_id,stop_name,stop_lat,stop_lon,parent_station",
			"hbf,Frankfurt Hbf,50.1,8.66,",
			"hbf_1,Frankfurt Hbf Gleis 7,50.1,8.66,hbf",
			"mhf,Mannheim Hbf,49.48,8.47,",
		},
		"routes.txt": []string{
			"route_id,route_short_name,route_type",
			"r1,ICE,2",
		},
		"trips.txt": []string{
			"route_id,trip_id,trip_headsign,trip_short_name",
			"r1,t1,Stuttgart Hbf,690",
		},
		"stop_times.txt": []string{
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"t1,12:00:00,12:02:00,hbf_1,1",
			"t1,12:38:00,12:40:00,mhf,2",
		},
	}
}

func TestParseValidTimetable(t *testing.T) {
	s := storage.NewMemoryStorage()
	writer, err := s.Writer()
	require.NoError(t, err)

	require.NoError(t, ParseTimetable(writer, buildZip(t, fixtureSimple())))

	reader, err := s.Reader()
	require.NoError(t, err)

	stations, err := reader.FindStationsByName(context.Background(), "frankfurt")
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, "Frankfurt Hbf", stations[0].Name)
	assert.Equal(t, "hbf", stations[1].ParentID)

	segments, err := reader.Segments(context.Background(), storage.SegmentFilter{
		OriginIDs:      []string{"hbf", "hbf_1"},
		DestinationIDs: []string{"mhf"},
	})
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "690", segments[0].TrainNumber)
	assert.Equal(t, "ICE", segments[0].RouteShortName)
	assert.Equal(t, "12:02:00", segments[0].Departure)
	assert.Equal(t, "12:38:00", segments[0].Arrival)
}

func TestParseTimetableWithEnrichment(t *testing.T) {
	files := fixtureSimple()
	files["platforms.txt"] = []string{
		"platform_id,platform_name,height_cm,length_m,parent_station",
		"p7,7,76,420,hbf_1",
	}
	files["delay_patterns.txt"] = []string{
		"train_number,station_name,hour_of_day,avg_delay",
		"690,Frankfurt Hbf,12,4.5",
	}

	s := storage.NewMemoryStorage()
	writer, err := s.Writer()
	require.NoError(t, err)
	require.NoError(t, ParseTimetable(writer, buildZip(t, files)))

	reader, err := s.Reader()
	require.NoError(t, err)

	segments, err := reader.Segments(context.Background(), storage.SegmentFilter{
		OriginIDs:      []string{"hbf_1"},
		DestinationIDs: []string{"mhf"},
	})
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, "7", segments[0].OriginPlatform)

	avg, found, err := reader.AverageDelay(context.Background(), "690", "Frankfurt Hbf", 12)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 4.5, avg)
}

func TestParseMissingRequiredFile(t *testing.T) {
	files := fixtureSimple()
	delete(files, "stop_times.txt")

	s := storage.NewMemoryStorage()
	writer, err := s.Writer()
	require.NoError(t, err)

	err = ParseTimetable(writer, buildZip(t, files))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop_times.txt")
}

func TestParseRejectsBrokenReferences(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mangle func(map[string][]string)
	}{
		{
			"unknown_parent_station",
			func(f map[string][]string) {
				f["stations.txt"] = append(f["stations.txt"], "xtra,Extra,1.0,2.0,nope")
			},
		},
		{
			"unknown_route",
			func(f map[string][]string) {
				f["trips.txt"] = append(f["trips.txt"], "nope,t2,Nowhere,123")
			},
		},
		{
			"unknown_trip",
			func(f map[string][]string) {
				f["stop_times.txt"] = append(f["stop_times.txt"], "nope,13:00:00,13:00:00,hbf,1")
			},
		},
		{
			"unknown_station",
			func(f map[string][]string) {
				f["stop_times.txt"] = append(f["stop_times.txt"], "t1,13:00:00,13:00:00,nope,3")
			},
		},
		{
			"duplicate_sequence",
			func(f map[string][]string) {
				f["stop_times.txt"] = append(f["stop_times.txt"], "t1,13:00:00,13:00:00,hbf,1")
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			files := fixtureSimple()
			tc.mangle(files)

			s := storage.NewMemoryStorage()
			writer, err := s.Writer()
			require.NoError(t, err)
			assert.Error(t, ParseTimetable(writer, buildZip(t, files)))
		})
	}
}

func TestParseStopTimeTime(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected string
		err      bool
	}{
		{"12:00:00", "12:00:00", false},
		{"7:05:00", "07:05:00", false},
		{"25:10:00", "25:10:00", false},
		{"12:00", "", true},
		{"12:61:00", "", true},
		{"ab:00:00", "", true},
	} {
		got, err := parseStopTimeTime(tc.in)
		if tc.err {
			assert.Error(t, err, tc.in)
		} else {
			require.NoError(t, err, tc.in)
			assert.Equal(t, tc.expected, got)
		}
	}
}
