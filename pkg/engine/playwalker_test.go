package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// walkableBeats builds a beat list dense enough in jump candidates that
// Walk can actually exercise its jump branches rather than always falling
// through to Next.
func walkableBeats(n int) []Beat {
	beats := fourClusterBeats(n)
	BuildJumpGraph(beats, 0)
	for i := range beats {
		beats[i].Quartile = i * 4 / n
	}
	return beats
}

func TestWalkProducesTwoToTwentyEntries(t *testing.T) {
	beats := walkableBeats(64)
	pv := Walk(beats, 8, 120, 0, 1)
	assert.Len(t, pv, playVectorLength)
}

func TestWalkFirstEntryMatchesInitialState(t *testing.T) {
	beats := walkableBeats(64)
	pv := Walk(beats, 8, 120, 0, 42)
	require.NotEmpty(t, pv)
	assert.Equal(t, 0, pv[0].Beat)
	assert.Equal(t, 0, pv[0].SeqPos)
	assert.GreaterOrEqual(t, pv[0].SeqLen, 0)
}

func TestWalkEveryEntryReferencesAValidBeat(t *testing.T) {
	beats := walkableBeats(32)
	pv := Walk(beats, 4, 120, 0, 7)

	validIDs := make(map[int]bool, len(beats))
	for _, b := range beats {
		validIDs[b.ID] = true
	}
	for i, e := range pv {
		assert.True(t, validIDs[e.Beat], "play_vector[%d] references unknown beat id %d", i, e.Beat)
	}
}

func TestWalkIsDeterministicForAFixedSeed(t *testing.T) {
	beats1 := walkableBeats(48)
	beats2 := walkableBeats(48)

	pv1 := Walk(beats1, 6, 128, 0, 99)
	pv2 := Walk(beats2, 6, 128, 0, 99)

	assert.Equal(t, pv1[:256], pv2[:256])
}

func TestRandRangeStepStaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	for i := 0; i < 1000; i++ {
		v := randRangeStep(rng, 16, 48, 4)
		assert.GreaterOrEqual(t, v, 16)
		assert.Less(t, v, 48)
		assert.Zero(t, (v-16)%4)
	}
}
