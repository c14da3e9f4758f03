package delay

import (
	"fmt"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	proto "google.golang.org/protobuf/proto"

	"schiene.dev/railplan/model"
)

// DelaysFromTripUpdates extracts per-train delays from a GTFS Realtime
// TripUpdates feed. The trip ID is reduced to a train number, and the
// largest departure delay seen for that train wins. Pass the result to
// (*Simulated).SetDelays.
func DelaysFromTripUpdates(buf []byte) (map[string]int, error) {
	feed := &gtfsproto.FeedMessage{}
	if err := proto.Unmarshal(buf, feed); err != nil {
		return nil, fmt.Errorf("unmarshaling protobuf: %w", err)
	}

	version := feed.GetHeader().GetGtfsRealtimeVersion()
	if version != "2.0" && version != "1.0" {
		return nil, fmt.Errorf("version %s not supported", version)
	}

	delays := map[string]int{}
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}

		trip := tu.GetTrip()
		if trip.GetTripId() == "" {
			continue
		}
		train := model.TrainNumber(trip.GetTripId())

		for _, update := range tu.GetStopTimeUpdate() {
			if update.GetScheduleRelationship() != gtfsproto.TripUpdate_StopTimeUpdate_SCHEDULED {
				continue
			}

			seconds := update.GetDeparture().GetDelay()
			if seconds == 0 {
				seconds = update.GetArrival().GetDelay()
			}
			if seconds <= 0 {
				continue
			}

			minutes := int(seconds) / 60
			if minutes > delays[train] {
				delays[train] = minutes
			}
		}
	}

	return delays, nil
}
