package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleBeatsMonotonicStartsAndInBoundsStopIndex(t *testing.T) {
	n := 20
	beatTimes := make([]float64, n)
	labels := make([]int, n)
	amplitude := make([]float64, n)
	for i := 0; i < n; i++ {
		beatTimes[i] = float64(i) * 0.5
		labels[i] = i % 4
		amplitude[i] = 1.0
	}
	durationTotal := beatTimes[n-1] + 0.5
	bytesPerSecond := 44100.0 * 4

	beats := AssembleBeats(beatTimes, labels, amplitude, durationTotal, bytesPerSecond, 1)
	require.NotEmpty(t, beats)

	rawAudioLen := int(durationTotal * bytesPerSecond)
	for i := 0; i < len(beats)-1; i++ {
		assert.Less(t, beats[i].Start, beats[i+1].Start)
	}
	for _, b := range beats {
		assert.LessOrEqual(t, b.StopIndex, rawAudioLen+4)
	}
}

func TestAssembleBeatsTruncatesFadedTail(t *testing.T) {
	beatTimes := []float64{0, 1, 2, 3, 4, 5}
	labels := []int{0, 0, 1, 1, 2, 2}
	// Last two beats fall far below 0.75x the mean amplitude and should be
	// trimmed as the fade-out tail.
	amplitude := []float64{1, 1, 1, 1, 0.01, 0.01}

	beats := AssembleBeats(beatTimes, labels, amplitude, 6, 44100*4, 0)
	assert.Less(t, len(beats), len(beatTimes))
}

func TestAssembleBeatsReindexesIDsFromZero(t *testing.T) {
	beatTimes := []float64{0, 1, 2, 3}
	labels := []int{0, 0, 1, 1}
	amplitude := []float64{1, 1, 1, 1}

	beats := AssembleBeats(beatTimes, labels, amplitude, 4, 44100*4, 1)
	require.NotEmpty(t, beats)
	assert.Equal(t, 0, beats[0].ID)
	for i, b := range beats {
		assert.Equal(t, i, b.ID)
	}
}

func TestByteOffsetsStopAlwaysCeil(t *testing.T) {
	_, stop := byteOffsets(0.001, 0.5, 44100*4)
	assert.GreaterOrEqual(t, stop, int(0.501*44100*4))
}
