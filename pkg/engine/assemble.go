package engine

import "math"

// AssembleBeats implements spec.md §4.7: builds the prefix beat list from
// beat times, cluster labels and per-beat amplitude, then truncates to
// [startBeat, fadeBeat] where fadeBeat is the last beat whose amplitude is
// at least 0.75 times the mean amplitude across all beats (spec.md §9's
// correction: this is a mean, not a max, despite the reference's
// "max_amplitude" variable name).
func AssembleBeats(beatTimes []float64, labels []int, amplitude []float64, durationTotal float64, bytesPerSecond float64, startBeat int) []Beat {
	n := len(beatTimes)
	prefix := make([]Beat, n)

	segment := 0
	prevCluster := -1
	is := 0

	for i := 0; i < n; i++ {
		start := beatTimes[i]
		var duration float64
		if i+1 < n {
			duration = beatTimes[i+1] - start
		} else {
			duration = durationTotal - start
		}

		cluster := labels[i]
		if i > 0 && cluster != prevCluster {
			segment++
			is = 0
		} else if i > 0 {
			is++
		}
		prevCluster = cluster

		startIndex, stopIndex := byteOffsets(start, duration, bytesPerSecond)

		prefix[i] = Beat{
			ID:         i,
			Start:      start,
			Duration:   duration,
			StartIndex: startIndex,
			StopIndex:  stopIndex,
			Cluster:    cluster,
			Segment:    segment,
			IS:         is,
			Amplitude:  amplitude[i],
		}
	}

	meanAmplitude := meanOf(amplitude)
	fade := n - 1
	for fade >= 0 && prefix[fade].Amplitude < 0.75*meanAmplitude {
		fade--
	}
	if fade < 0 {
		fade = n - 1
	}

	if startBeat < 0 {
		startBeat = 0
	}
	if startBeat > fade {
		startBeat = 0
	}

	truncated := make([]Beat, 0, fade-startBeat+1)
	for i := startBeat; i <= fade; i++ {
		truncated = append(truncated, prefix[i])
	}

	nOut := len(truncated)
	for i := range truncated {
		truncated[i].ID = i
		if nOut > 0 {
			truncated[i].Quartile = int(float64(i) / (float64(nOut) / 4.0))
		}
	}

	return truncated
}

// byteOffsets computes start_index/stop_index per spec.md §3's parity
// rule: start_index truncates start*bytesPerSecond, except that it takes the
// ceil when that byte position, taken mod 2, exceeds 1.5; stop_index is
// always ceil.
func byteOffsets(start, duration, bytesPerSecond float64) (int, int) {
	startBytes := start * bytesPerSecond
	stopBytes := (start + duration) * bytesPerSecond

	frac := math.Mod(startBytes, 2)
	var startIndex int
	if frac > 1.5 {
		startIndex = int(math.Ceil(startBytes))
	} else {
		startIndex = int(startBytes)
	}
	stopIndex := int(math.Ceil(stopBytes))

	return startIndex, stopIndex
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
