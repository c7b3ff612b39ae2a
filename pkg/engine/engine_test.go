package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDrawsASeedWhenNoneConfigured(t *testing.T) {
	e := New(Config{})
	assert.NotZero(t, e.cfg.Seed)
	assert.Equal(t, 1, e.cfg.StartBeat)
}

func TestNewHonorsExplicitSeedAndStartBeat(t *testing.T) {
	e := New(Config{Seed: 123, StartBeat: 4})
	assert.Equal(t, int64(123), e.cfg.Seed)
	assert.Equal(t, 4, e.cfg.StartBeat)
}

func TestDiagnosticsAccumulateDuringProgress(t *testing.T) {
	e := New(Config{Seed: 1})
	e.progress(0.5, "halfway")
	diag := e.Diagnostics()
	require.NotEmpty(t, diag)
	assert.Contains(t, diag[len(diag)-1], "halfway")
}

func TestProgressCallbackInvoked(t *testing.T) {
	var got []string
	e := New(Config{Seed: 1, ProgressCallback: func(fraction float64, message string) {
		got = append(got, message)
	}})
	e.progress(1.0, "done")
	assert.Equal(t, []string{"done"}, got)
}

// TestPipelineInvariantsOnSyntheticTrack exercises the RecurrenceGraph
// onward stages directly on synthetic beat-synchronous features (bypassing
// LoadFile/BeatTracker, which need real audio and an ONNX model, and the
// feature extraction itself) and checks the universal invariants from
// spec.md §8.
func TestPipelineInvariantsOnSyntheticTrack(t *testing.T) {
	const n = 40
	downbeats := make([]Downbeat, n)
	for i := range downbeats {
		downbeats[i] = Downbeat{TimeSec: float64(i) * 0.5, BarPos: i%4 + 1}
	}

	chroma := make([][]float64, n)
	mfcc := make([][]float64, n)
	amplitude := make([]float64, n)
	for i := range chroma {
		row := make([]float64, 12)
		row[i%12] = 1
		chroma[i] = row
		mfcc[i] = []float64{float64(i % 5), float64((i * 3) % 7)}
		amplitude[i] = 1.0
	}

	rSym, err := Symmetrize(RecurrenceMatrix(chroma))
	require.NoError(t, err)
	rPath := PathSimilarity(mfcc)
	affinity := CombineAffinity(rSym, rPath)

	embedding, err := Embed(affinity)
	require.NoError(t, err)

	evecs := denseRows(embedding.Evecs)
	clusters, err := SelectClusters(evecs, embedding.Cnorm, 4, false)
	require.NoError(t, err)

	beatTimes := make([]float64, n)
	for i, d := range downbeats {
		beatTimes[i] = d.TimeSec
	}
	beats := AssembleBeats(beatTimes, clusters.Labels, amplitude, beatTimes[n-1]+0.5, 44100*4, 0)
	require.NotEmpty(t, beats)

	// Invariant 3: starts strictly increase, stop_index stays in bounds.
	rawAudioLen := int((beatTimes[n-1] + 0.5) * 44100 * 4)
	for i := 0; i < len(beats)-1; i++ {
		assert.Less(t, beats[i].Start, beats[i+1].Start)
	}
	for _, b := range beats {
		assert.LessOrEqual(t, b.StopIndex, rawAudioLen+4)
	}

	outroStart := BuildJumpGraph(beats, 0)

	// Invariant 4: a beat never lists itself as a jump candidate.
	for _, b := range beats {
		assert.NotContains(t, b.JumpCandidates, b.ID)
	}

	// Invariant 7: segments == max(segment)+1.
	maxSegment := 0
	for _, b := range beats {
		if b.Segment > maxSegment {
			maxSegment = b.Segment
		}
	}
	segments := maxSegment + 1
	assert.Equal(t, segments, beats[len(beats)-1].Segment+1)

	// Invariant 8: last_chance's next is one of its own candidates.
	lastChance := outroStart - 1
	if len(beats[lastChance].JumpCandidates) > 0 {
		assert.Contains(t, beats[lastChance].JumpCandidates, beats[lastChance].Next)
	}

	tempo := estimateTempo(downbeats)
	pv := Walk(beats, segments, tempo, 0, 7)

	// Invariant 5: play vector has exactly 2^20 entries, all referencing
	// valid beat ids.
	assert.Len(t, pv, playVectorLength)
	validIDs := make(map[int]bool, len(beats))
	for _, b := range beats {
		validIDs[b.ID] = true
	}
	for _, e := range pv {
		assert.True(t, validIDs[e.Beat])
	}

	// Invariant 6: the walk starts at beat 0, sequence position 0.
	assert.Equal(t, PlayVectorEntry{Beat: 0, SeqLen: pv[0].SeqLen, SeqPos: 0}, pv[0])
}
