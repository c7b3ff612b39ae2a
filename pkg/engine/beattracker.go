package engine

import (
	"errors"
	"io/fs"
	"math"
	"sort"
)

// beatsPerBarOptions are the only bar lengths this engine's DBN-style
// decoder will assign, per spec.md §4.2 and §9's open question ("whether
// 6/8 meters should be added is unresolved" — left as future work).
var beatsPerBarOptions = []int{3, 4}

// downbeatBackend produces raw per-frame beat and downbeat activation
// curves at a fixed hop size. Two implementations exist: an ONNX backend
// (default, primary) and an optional TensorFlow backend (build tag
// "tensorflow"). Both hand off to decodeDownbeats for the shared
// RNN-activations-to-bar-position decode step.
type downbeatBackend interface {
	// activations returns beat and downbeat activation probabilities (in
	// [0,1], one value per hop) and the hop duration in seconds.
	activations(mono []float32, sampleRate int) (beatActivation, downbeatActivation []float64, hopSec float64, err error)
	close() error
}

// BeatTracker implements spec.md §4.2: seeded mode replays a supplied
// downbeat array verbatim; computed mode runs a DNN backend and decodes its
// activations into (t_sec, bar_pos) pairs, consulting and refreshing an
// on-disk cache.
type BeatTracker struct {
	cfg Config
}

// NewBeatTracker constructs a tracker bound to cfg's seeding/backend
// preferences.
func NewBeatTracker(cfg Config) *BeatTracker {
	return &BeatTracker{cfg: cfg}
}

// Track returns the downbeat sequence for buf. warn is non-nil only for a
// recoverable CacheIOError; err is fatal.
func (t *BeatTracker) Track(buf *SampleBuffer, inputPath string) (downbeats []Downbeat, warn error, err error) {
	if len(t.cfg.StartingBeatCache) > 0 {
		return t.cfg.StartingBeatCache, nil, nil
	}

	cachePath := cachePathFor(inputPath, t.cfg.CachePath)
	cached, cerr := readDownbeatCache(cachePath)
	if cerr == nil && len(cached) > 0 {
		return cached, nil, nil
	}
	if cerr != nil && !errors.Is(cerr, fs.ErrNotExist) {
		warn = &CacheIOError{Path: cachePath, Err: cerr}
	}

	downbeats, err = t.compute(buf)
	if err != nil {
		return nil, nil, err
	}
	if len(downbeats) == 0 {
		return nil, nil, &EmptyBeatsError{Path: inputPath}
	}

	if werr := writeDownbeatCache(cachePath, downbeats); werr != nil {
		warn = &CacheIOError{Path: cachePath, Err: werr}
	}

	return downbeats, warn, nil
}

// newPreferredBackend tries the TensorFlow backend first when a model path
// is configured (only meaningful in "tensorflow"-tagged builds; the stub
// backend always errors), falling back to the always-available ONNX
// backend — the same "try each, keep whichever initializes" shape as the
// teacher's multi-analyzer comparison in pkg/analysis/analysis.go.
func newPreferredBackend(cfg Config) (downbeatBackend, error) {
	if cfg.TFModelPath != "" {
		if b, err := newTFBackend(cfg); err == nil {
			return b, nil
		}
	}
	return newONNXBackend(cfg)
}

// compute runs the configured backend(s) and decodes their activations.
// ONNX is tried first (always compiled in); the TensorFlow backend (build
// tag "tensorflow") is preferred instead when Config.TFModelPath is set, in
// the spirit of the teacher's multi-analyzer "try each, keep whichever
// initializes" pattern.
func (t *BeatTracker) compute(buf *SampleBuffer) ([]Downbeat, error) {
	backend, err := newPreferredBackend(t.cfg)
	if err != nil {
		return nil, err
	}
	defer backend.close()

	beatAct, downbeatAct, hopSec, err := backend.activations(buf.Mono, buf.SampleRate)
	if err != nil {
		return nil, err
	}

	return decodeDownbeats(beatAct, downbeatAct, hopSec), nil
}

// decodeDownbeats is the shared decode stage: it peak-picks beat and
// downbeat activations, picks a bar length with chooseBarLength, and emits
// bar positions cycling from 1 to that bar length, anchored at the beat
// nearest the first detected downbeat. It is a peak-picking heuristic, not a
// dynamic-programming (DBN/Viterbi) decoder such as madmom's
// DBNDownBeatTrackingProcessor: bar positions are counted from the anchor
// rather than inferred jointly with tempo, and later downbeat peaks do not
// re-anchor them.
func decodeDownbeats(beatActivation, downbeatActivation []float64, hopSec float64) []Downbeat {
	beatFrames := peakPick(beatActivation, 0.5, int(math.Round(0.4/hopSec)))
	if len(beatFrames) == 0 {
		return nil
	}

	var downbeatFrames []int
	if len(downbeatActivation) > 0 {
		downbeatFrames = peakPick(downbeatActivation, 0.5, int(math.Round(1.2/hopSec)))
	}

	downbeatTimesSec := make([]float64, len(downbeatFrames))
	for i, f := range downbeatFrames {
		downbeatTimesSec[i] = float64(f) * hopSec
	}
	barLen := chooseBarLength(downbeatTimesSec)

	// anchor: index of the first beat nearest the first detected downbeat,
	// or 0 if no downbeat activation was available (e.g. TF backend).
	anchor := 0
	if len(downbeatFrames) > 0 {
		anchor = nearestIndex(beatFrames, downbeatFrames[0])
	}

	out := make([]Downbeat, len(beatFrames))
	for i, f := range beatFrames {
		offset := ((i - anchor) % barLen + barLen) % barLen
		out[i] = Downbeat{TimeSec: float64(f) * hopSec, BarPos: offset + 1}
	}
	return out
}

// chooseBarLength returns 3 when the median spacing between consecutive
// downbeats is under 1.2s and 4 otherwise; it defaults to 4/4 when fewer
// than two downbeats are available.
func chooseBarLength(downbeatTimes []float64) int {
	if len(downbeatTimes) < 2 {
		return 4
	}
	var intervals []float64
	for i := 1; i < len(downbeatTimes); i++ {
		intervals = append(intervals, downbeatTimes[i]-downbeatTimes[i-1])
	}
	sort.Float64s(intervals)
	medianInterval := intervals[len(intervals)/2]

	// Rough beat period from the overall downbeat span; without a beat
	// activation reference here we simply prefer 4 unless the spacing is
	// unusually short relative to typical beat periods, which suggests 3.
	if medianInterval > 0 && medianInterval < 1.2 {
		return 3
	}
	return 4
}

// peakPick finds local maxima above threshold with a minimum frame
// separation, keeping the higher of two peaks that are too close — the
// same approach as the teacher's findPeaksBeatThis.
func peakPick(probs []float64, threshold float64, minDistance int) []int {
	if minDistance < 1 {
		minDistance = 1
	}
	var peaks []int
	for i := 1; i < len(probs)-1; i++ {
		if probs[i] <= probs[i-1] || probs[i] <= probs[i+1] || probs[i] < threshold {
			continue
		}
		if len(peaks) > 0 && i-peaks[len(peaks)-1] < minDistance {
			if probs[i] > probs[peaks[len(peaks)-1]] {
				peaks[len(peaks)-1] = i
			}
			continue
		}
		peaks = append(peaks, i)
	}
	return peaks
}

// nearestIndex returns the index into beats (frame indices) nearest target
// (also a frame index).
func nearestIndex(beats []int, target int) int {
	best, bestDist := 0, math.MaxInt64
	for i, b := range beats {
		d := b - target
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}
