package engine

import (
	"math"
	"math/rand/v2"
)

// playVectorLength is 2^20 per spec.md §4.9 and §8's testable property 5.
const playVectorLength = 1 << 20

// Walk implements spec.md §4.9: a stochastic walk over beats with
// recency-aware jump selection, quartile and failure-count fallbacks, and
// a guaranteed escape hatch once the walk has failed to find a fresh jump
// too many times in a row.
func Walk(beats []Beat, segments int, tempo float64, startBeat int, seed int64) []PlayVectorEntry {
	n := len(beats)
	if n == 0 {
		return nil
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed>>32)|1))

	maxSeqLen := int(math.Round((tempo/120)*48)) / 4 * 4
	if maxSeqLen < 20 {
		maxSeqLen = 20
	}
	maxBeatsBetweenJumps := int(math.Round(0.1 * float64(n)))
	if maxBeatsBetweenJumps < 1 {
		maxBeatsBetweenJumps = 1
	}
	recentCap := int(math.Round(0.25 * float64(segments)))
	if recentCap < 1 {
		recentCap = 1
	}

	minSequence := max(randRangeStep(rng, 16, maxSeqLen, 4), startBeat)
	currentSequence := 0
	beatsSinceJump := 0
	failedJumps := 0
	cur := 0

	var recent []int // FIFO of recently visited segments, most recent last

	out := make([]PlayVectorEntry, playVectorLength)

	for t := 0; t < playVectorLength; t++ {
		out[t] = PlayVectorEntry{Beat: beats[cur].ID, SeqLen: minSequence, SeqPos: currentSequence}

		recent = recordSegment(recent, beats[cur].Segment, recentCap)
		currentSequence++

		willJump := currentSequence == minSequence || beatsSinceJump >= maxBeatsBetweenJumps

		if !willJump {
			cur = indexOfBeatID(beats, beats[cur].Next)
			beatsSinceJump++
			continue
		}

		jumped := false
		candidates := beats[cur].JumpCandidates

		var nonRecent []int
		for _, c := range candidates {
			if !containsInt(recent, beats[indexOfBeatID(beats, c)].Segment) {
				nonRecent = append(nonRecent, c)
			}
		}

		switch {
		case len(nonRecent) > 0:
			cur = indexOfBeatID(beats, nonRecent[rng.IntN(len(nonRecent))])
			jumped = true
		default:
			beatsSinceJump++
			failedJumps++

			if float64(failedJumps) >= 0.1*float64(n) {
				var nonQuartile []int
				for _, c := range candidates {
					if beats[indexOfBeatID(beats, c)].Quartile != beats[cur].Quartile {
						nonQuartile = append(nonQuartile, c)
					}
				}
				if len(nonQuartile) > 0 {
					best := nonQuartile[0]
					bestDist := absInt(beats[cur].ID - best)
					for _, c := range nonQuartile[1:] {
						d := absInt(beats[cur].ID - c)
						if d > bestDist {
							bestDist = d
							best = c
						}
					}
					cur = indexOfBeatID(beats, best)
					jumped = true
				} else if float64(failedJumps) >= 0.2*float64(n) {
					cur = indexOfBeatID(beats, beats[startBeat].ID)
					jumped = true
				} else {
					cur = indexOfBeatID(beats, beats[cur].Next)
				}
			} else {
				cur = indexOfBeatID(beats, beats[cur].Next)
			}
		}

		// The reference walker re-seeds current_sequence/min_sequence on
		// every will_jump pass, whether or not a jump candidate actually
		// resolved, not only when jumped is true.
		currentSequence = 0
		minSequence = randRangeStep(rng, 16, maxSeqLen, 4)
		if jumped {
			beatsSinceJump = 0
			failedJumps = 0
		}
	}

	return out
}

// recordSegment appends seg to recent if not already present, evicting the
// oldest entry once recentCap is exceeded (a FIFO dedup set).
func recordSegment(recent []int, seg, recentCap int) []int {
	if containsInt(recent, seg) {
		return recent
	}
	recent = append(recent, seg)
	if len(recent) > recentCap {
		recent = recent[len(recent)-recentCap:]
	}
	return recent
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// indexOfBeatID resolves a beat id to its slice index; beats are ordered
// by id so id == index after assembly, but this indirection keeps the
// walker correct if that invariant is ever relaxed upstream.
func indexOfBeatID(beats []Beat, id int) int {
	if id >= 0 && id < len(beats) && beats[id].ID == id {
		return id
	}
	for i, b := range beats {
		if b.ID == id {
			return i
		}
	}
	return 0
}

// randRangeStep draws a uniform multiple of step in [lo, hi).
func randRangeStep(rng *rand.Rand, lo, hi, step int) int {
	if hi <= lo {
		return lo
	}
	count := (hi - lo + step - 1) / step
	if count < 1 {
		count = 1
	}
	return lo + step*rng.IntN(count)
}
