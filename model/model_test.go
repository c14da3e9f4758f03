package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	for _, tc := range []struct {
		in      string
		minutes int
	}{
		{"00:00:00", 0},
		{"08:30:00", 510},
		{"23:59:59", 1439},
		{"24:10:00", 1450},
		{"27:05:00", 1625},
		{"08:30", 510},
	} {
		m, err := ParseClock(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.minutes, m, tc.in)
	}

	for _, bad := range []string{"", "8", "ab:00:00", "08:61:00", "08:00:99", "-1:00:00"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "08:30:00", FormatClock(510))
	assert.Equal(t, "24:10:00", FormatClock(1450))
	assert.Equal(t, "00:00:00", FormatClock(0))
}

func TestClockDiffRollsOverMidnight(t *testing.T) {
	dep, err := ParseClock("23:50:00")
	require.NoError(t, err)
	arr, err := ParseClock("00:40:00")
	require.NoError(t, err)

	assert.Equal(t, 50, ClockDiff(dep, arr))
	assert.Equal(t, 30, ClockDiff(510, 540))
}

func TestTrainNumber(t *testing.T) {
	assert.Equal(t, "690", TrainNumber("ICE 690"))
	assert.Equal(t, "82", TrainNumber("RB 082"))
	assert.Equal(t, "4711", TrainNumber("4711"))
	assert.Equal(t, "8", TrainNumber("S8"))
	assert.Equal(t, "XYZ", TrainNumber("XYZ"))

	// Only the first digit run counts
	assert.Equal(t, "690", TrainNumber("ICE 690-2"))
	assert.Equal(t, "3", TrainNumber("RE 3 (4711)"))
}
