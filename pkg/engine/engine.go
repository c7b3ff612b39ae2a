package engine

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
)

// Engine orchestrates the full remix pipeline described in spec.md §5:
// AudioLoader, BeatTracker, FeatureExtractor, RecurrenceGraph,
// SpectralEmbedder, ClusterSelector, BeatAssembler, JumpGraphBuilder and
// PlayWalker, run either synchronously or on a worker goroutine.
type Engine struct {
	cfg Config

	mu          sync.Mutex
	diagnostics []string

	readyOnce sync.Once
	ready     chan struct{}
	out       *Output
	err       error
}

// New constructs an Engine bound to cfg. A zero Config.Seed draws a fresh
// seed from crypto/rand so repeated runs are reproducible only when the
// caller explicitly pins one (spec.md §6).
func New(cfg Config) *Engine {
	if cfg.Seed == 0 {
		var b [8]byte
		if _, err := rand.Read(b[:]); err == nil {
			cfg.Seed = int64(binary.LittleEndian.Uint64(b[:]))
		} else {
			cfg.Seed = 1
		}
	}
	if cfg.StartBeat == 0 {
		cfg.StartBeat = 1
	}
	return &Engine{cfg: cfg, ready: make(chan struct{})}
}

// Diagnostics returns this run's accumulated log lines, mirroring the
// reference engine's per-instance `_extra_diag` log.
func (e *Engine) Diagnostics() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.diagnostics...)
}

func (e *Engine) log(format string, args ...any) {
	e.mu.Lock()
	e.diagnostics = append(e.diagnostics, fmt.Sprintf(format, args...))
	e.mu.Unlock()
}

func (e *Engine) progress(fraction float64, message string) {
	e.log("%.0f%%: %s", fraction*100, message)
	if e.cfg.ProgressCallback != nil {
		e.cfg.ProgressCallback(fraction, message)
	}
}

// Run executes the pipeline synchronously against path.
func (e *Engine) Run(path string) (*Output, error) {
	return e.run(path)
}

// RunAsync starts the pipeline on a worker goroutine. Ready() reports
// completion exactly once; Result() does not block and is valid only after
// Ready() fires.
func (e *Engine) RunAsync(path string) {
	go func() {
		out, err := e.run(path)
		e.out, e.err = out, err
		e.readyOnce.Do(func() { close(e.ready) })
	}()
}

// Ready returns a channel closed exactly once, when a RunAsync run
// completes.
func (e *Engine) Ready() <-chan struct{} { return e.ready }

// Result returns the outcome of a RunAsync run; callers must wait on
// Ready() first.
func (e *Engine) Result() (*Output, error) { return e.out, e.err }

func (e *Engine) run(path string) (*Output, error) {
	e.progress(0.0, "loading audio")
	buf, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	e.progress(0.1, "tracking beats")
	tracker := NewBeatTracker(e.cfg)
	downbeats, warn, err := tracker.Track(buf, path)
	if err != nil {
		return nil, err
	}
	if warn != nil {
		e.log("warning: %v", warn)
	}

	e.progress(0.3, "extracting features")
	features, err := ExtractFeatures(buf, downbeats)
	if err != nil {
		return nil, err
	}

	e.progress(0.45, "building recurrence graph")
	rRaw := RecurrenceMatrix(features.Chroma)
	rSym, err := Symmetrize(rRaw)
	if err != nil {
		return nil, err
	}
	rPath := PathSimilarity(features.MFCC)
	affinity := CombineAffinity(rSym, rPath)

	e.progress(0.55, "computing spectral embedding")
	embedding, err := Embed(affinity)
	if err != nil {
		return nil, err
	}

	e.progress(0.65, "selecting clusters")
	evecs := denseRows(embedding.Evecs)
	clusters, err := SelectClusters(evecs, embedding.Cnorm, e.cfg.Clusters, e.cfg.UseV1Clustering)
	if err != nil {
		return nil, err
	}
	e.log("selected k=%d", clusters.K)

	e.progress(0.8, "assembling beats")
	beatTimes := make([]float64, len(downbeats))
	for i, d := range downbeats {
		beatTimes[i] = d.TimeSec
	}
	beats := AssembleBeats(beatTimes, clusters.Labels, features.Amplitude, buf.DurationSec, buf.BytesPerSecond(), e.cfg.StartBeat)
	if len(beats) == 0 {
		return nil, &EmptyBeatsError{Path: path}
	}

	e.progress(0.9, "building jump graph")
	outroStart := BuildJumpGraph(beats, e.cfg.StartBeat)

	segments := beats[len(beats)-1].Segment + 1

	e.progress(0.95, "walking play vector")
	playVector := Walk(beats, segments, features.Tempo, e.cfg.StartBeat, e.cfg.Seed)

	e.progress(1.0, "done")

	var outro []Beat
	if outroStart < len(beats) {
		outro = beats[outroStart:]
	}

	return &Output{
		Duration:   buf.DurationSec,
		SampleRate: buf.SampleRate,
		Tempo:      features.Tempo,
		RawAudio:   buf.StereoPCM16,
		Clusters:   clusters.K,
		Segments:   segments,
		Beats:      beats,
		Outro:      outro,
		PlayVector: playVector,
		SeedUsed:   e.cfg.Seed,
	}, nil
}

// denseRows converts a gonum *mat.Dense into [][]float64 row views, the
// shape ClusterSelector and SpectralEmbedder's consumers expect.
func denseRows(m interface {
	Dims() (int, int)
	At(int, int) float64
}) [][]float64 {
	rows, cols := m.Dims()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
