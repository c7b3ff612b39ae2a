package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeakPickFindsLocalMaximaAboveThreshold(t *testing.T) {
	probs := []float64{0, 0.1, 0.9, 0.2, 0, 0.1, 0.8, 0.3, 0}
	peaks := peakPick(probs, 0.5, 2)
	assert.Equal(t, []int{2, 6}, peaks)
}

func TestPeakPickMergesPeaksCloserThanMinDistance(t *testing.T) {
	probs := []float64{0, 0.6, 0.2, 0.9, 0.1, 0}
	peaks := peakPick(probs, 0.5, 4)
	assert.Equal(t, []int{3}, peaks, "the stronger of two close peaks should win")
}

func TestChooseBarLengthPrefers4WithoutEnoughDownbeats(t *testing.T) {
	assert.Equal(t, 4, chooseBarLength(nil))
	assert.Equal(t, 4, chooseBarLength([]float64{1.0}))
}

func TestChooseBarLengthDetects3FromShortSpacing(t *testing.T) {
	// Downbeats every 0.9s, under the 1.2s spacing below which 3/4 is chosen.
	got := chooseBarLength([]float64{0, 0.9, 1.8, 2.7})
	assert.Equal(t, 3, got)
}

func TestDecodeDownbeatsCyclesBarPositions(t *testing.T) {
	beatActivation := make([]float64, 40)
	downbeatActivation := make([]float64, 40)
	for i := 4; i < 40; i += 4 {
		beatActivation[i] = 1
		downbeatActivation[i] = 1
	}
	for i := 2; i < 40; i += 2 {
		if beatActivation[i] == 0 {
			beatActivation[i] = 0.8
		}
	}

	downbeats := decodeDownbeats(beatActivation, downbeatActivation, 0.1)
	require := assert.New(t)
	require.NotEmpty(downbeats)
	for _, d := range downbeats {
		require.GreaterOrEqual(d.BarPos, 1)
		require.LessOrEqual(d.BarPos, 4)
	}
}

func TestNearestIndexPicksClosestFrame(t *testing.T) {
	frames := []int{0, 10, 20, 30}
	assert.Equal(t, 2, nearestIndex(frames, 22))
	assert.Equal(t, 0, nearestIndex(frames, -5))
}
