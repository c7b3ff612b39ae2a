package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedianOddAndEvenLength(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{1, 2, 3, 4}))
}

func TestSyncMedianAggregatesBetweenBoundaries(t *testing.T) {
	frames := [][]float64{
		{1}, {2}, {3}, // beat 0: frames 0-2
		{10}, {20}, // beat 1: frames 3-4
		{100}, // beat 2: frame 5
	}
	btz := []int{0, 3, 5}

	got := syncMedian(frames, btz)
	require.Len(t, got, 3)
	assert.Equal(t, 2.0, got[0][0])
	assert.Equal(t, 15.0, got[1][0])
	assert.Equal(t, 100.0, got[2][0])
}

func TestSyncMedian1D(t *testing.T) {
	frames := []float64{1, 2, 3, 10, 20, 100}
	btz := []int{0, 3, 5}

	got := syncMedian1D(frames, btz)
	require.Len(t, got, 3)
	assert.Equal(t, 2.0, got[0])
	assert.Equal(t, 15.0, got[1])
	assert.Equal(t, 100.0, got[2])
}

func TestBeatsToFramesScalesByHopSize(t *testing.T) {
	downbeats := []Downbeat{{TimeSec: 0}, {TimeSec: 0.1}, {TimeSec: 0.2}}
	btz := beatsToFrames(downbeats, 44100, 441)
	assert.Equal(t, []int{0, 10, 20}, btz)
}

func TestMelFilterbankShapeAndNonNegative(t *testing.T) {
	fb := melFilterbank(44100, 2048, 40)
	require.Len(t, fb, 40)
	for _, row := range fb {
		require.Len(t, row, 2048/2+1)
		for _, w := range row {
			assert.GreaterOrEqual(t, w, 0.0)
		}
	}
}

func TestDctIIFirstCoefficientIsScaledSum(t *testing.T) {
	x := []float64{1, 1, 1, 1}
	out := dctII(x, 2)
	require.Len(t, out, 2)
	assert.InDelta(t, 4.0, out[0], 1e-9)
}

func TestEstimateTempoFrom120BPMClick(t *testing.T) {
	downbeats := make([]Downbeat, 60)
	for i := range downbeats {
		downbeats[i] = Downbeat{TimeSec: float64(i) * 0.5}
	}
	bpm := estimateTempo(downbeats)
	assert.InDelta(t, 120.0, bpm, 1.0)
}
