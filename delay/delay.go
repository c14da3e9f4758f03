// Package delay supplies the planning engine's delay signals. Missing
// data is never an error here: no signal means zero delay and no
// historical commentary.
package delay

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/sirupsen/logrus"

	"schiene.dev/railplan/storage"
)

// Estimator answers delay questions for a train. Implementations must
// support concurrent use.
type Estimator interface {
	// Current delay in minutes. Zero when no signal is available.
	CurrentDelay(ctx context.Context, trainNumber string) int

	// Historical average delay for a train at a station and hour of
	// day. The bool is false when no data exists.
	HistoricalAverage(ctx context.Context, trainNumber, stationName string, hourOfDay int) (float64, bool)
}

// Simulated derives current delays from a hash of the train number,
// unless a live feed has provided an override. Historical averages come
// from the delay pattern table when a reader is set.
type Simulated struct {
	reader storage.TimetableReader

	mu        sync.RWMutex
	overrides map[string]int
}

var _ Estimator = (*Simulated)(nil)

// NewSimulated creates an estimator. The reader may be nil, in which
// case historical averages are never available.
func NewSimulated(reader storage.TimetableReader) *Simulated {
	return &Simulated{
		reader:    reader,
		overrides: map[string]int{},
	}
}

// SetDelays replaces all live-feed overrides at once. Typically fed by
// DelaysFromTripUpdates.
func (s *Simulated) SetDelays(delays map[string]int) {
	copied := make(map[string]int, len(delays))
	for train, minutes := range delays {
		copied[train] = minutes
	}

	s.mu.Lock()
	s.overrides = copied
	s.mu.Unlock()
}

func (s *Simulated) CurrentDelay(ctx context.Context, trainNumber string) int {
	s.mu.RLock()
	minutes, found := s.overrides[trainNumber]
	s.mu.RUnlock()
	if found {
		return minutes
	}

	// Deterministic pseudo-delay: roughly one train in ten runs
	// late, between 1 and 15 minutes.
	h := fnv.New32a()
	h.Write([]byte(trainNumber))
	sum := h.Sum32()
	if sum%10 == 0 {
		return int(sum%15) + 1
	}
	return 0
}

func (s *Simulated) HistoricalAverage(ctx context.Context, trainNumber, stationName string, hourOfDay int) (float64, bool) {
	if s.reader == nil {
		return 0, false
	}

	avg, found, err := s.reader.AverageDelay(ctx, trainNumber, stationName, hourOfDay)
	if err != nil {
		logrus.WithError(err).WithField("train", trainNumber).
			Warn("historical delay lookup failed")
		return 0, false
	}

	return avg, found
}

// Fixed returns the same delay for every train. Only useful in tests.
type Fixed struct {
	Minutes int
}

var _ Estimator = (*Fixed)(nil)

func (f *Fixed) CurrentDelay(ctx context.Context, trainNumber string) int {
	return f.Minutes
}

func (f *Fixed) HistoricalAverage(ctx context.Context, trainNumber, stationName string, hourOfDay int) (float64, bool) {
	return 0, false
}
