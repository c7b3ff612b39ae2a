package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fourClusterBeats builds a small beat list with a repeating 4-beat
// cluster pattern so JumpGraphBuilder has real candidates to find.
func fourClusterBeats(n int) []Beat {
	beats := make([]Beat, n)
	for i := 0; i < n; i++ {
		beats[i] = Beat{
			ID:      i,
			Cluster: i % 4,
			Segment: i / 8,
			IS:      i % 8,
		}
	}
	return beats
}

func TestBuildJumpGraphNoBeatIsItsOwnCandidate(t *testing.T) {
	beats := fourClusterBeats(64)
	BuildJumpGraph(beats, 1)

	for _, b := range beats {
		for _, c := range b.JumpCandidates {
			assert.NotEqual(t, b.ID, c, "beat %d listed itself as a jump candidate", b.ID)
		}
	}
}

func TestBuildJumpGraphNextAdvancesByOneExceptAtLastChance(t *testing.T) {
	beats := fourClusterBeats(64)
	outroStart := BuildJumpGraph(beats, 1)

	for i := 0; i < outroStart-1; i++ {
		assert.Equal(t, i+1, beats[i].Next)
	}
}

func TestBuildJumpGraphLastChanceNextIsAJumpCandidate(t *testing.T) {
	beats := fourClusterBeats(64)
	outroStart := BuildJumpGraph(beats, 1)
	lastChance := outroStart - 1

	if len(beats[lastChance].JumpCandidates) == 0 {
		t.Skip("no jump candidates available at last_chance for this synthetic beat list")
	}
	assert.Contains(t, beats[lastChance].JumpCandidates, beats[lastChance].Next)
}
