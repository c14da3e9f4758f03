package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"schiene.dev/railplan/model"
	"schiene.dev/railplan/storage"
)

type StationCSV struct {
	ID            string  `csv:"stop_id"`
	Name          string  `csv:"stop_name"`
	Lat           float64 `csv:"stop_lat"`
	Lon           float64 `csv:"stop_lon"`
	ParentStation string  `csv:"parent_station"`
	Wheelchair    int8    `csv:"wheelchair_boarding"`
}

func ParseStations(writer storage.TimetableWriter, data io.Reader) (map[string]bool, error) {
	stationCsv := []*StationCSV{}
	if err := gocsv.Unmarshal(data, &stationCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling stations csv: %w", err)
	}

	stationIDs := map[string]bool{}
	parentRef := map[string]string{}
	for _, st := range stationCsv {
		if st.ID == "" {
			return nil, fmt.Errorf("empty stop_id")
		}
		if stationIDs[st.ID] {
			return nil, fmt.Errorf("repeated stop_id '%s'", st.ID)
		}
		stationIDs[st.ID] = true

		if st.Name == "" {
			return nil, fmt.Errorf("empty stop_name for stop_id '%s'", st.ID)
		}

		if st.ParentStation != "" {
			parentRef[st.ID] = st.ParentStation
		}

		err := writer.WriteStation(&model.Station{
			ID:         st.ID,
			Name:       st.Name,
			Lat:        st.Lat,
			Lon:        st.Lon,
			ParentID:   st.ParentStation,
			Wheelchair: st.Wheelchair,
		})
		if err != nil {
			return nil, fmt.Errorf("writing station '%s': %w", st.ID, err)
		}
	}

	// verify stations referenced by parent_station exist
	for stationID, parentID := range parentRef {
		if !stationIDs[parentID] {
			return nil, fmt.Errorf("station '%s' references unknown parent_station '%s'", stationID, parentID)
		}
	}

	return stationIDs, nil
}
