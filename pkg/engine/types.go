package engine

// SampleBuffer is the decoded, silence-trimmed audio owned exclusively by
// the Engine for the lifetime of a run. Beat records never copy samples;
// they carry only index pairs into StereoPCM16.
type SampleBuffer struct {
	Stereo     [][2]float32 // interleaved-by-pair stereo samples in [-1, 1]
	Mono       []float32    // channel mean of Stereo
	StereoPCM16 []byte      // little-endian int16 stereo, 4 bytes per frame
	SampleRate int
	DurationSec float64
}

// BytesPerSecond is the int16 stereo byte rate: 2 channels * 2 bytes/sample.
func (s *SampleBuffer) BytesPerSecond() float64 {
	return float64(s.SampleRate) * 4.0
}

// Downbeat is one (t_sec, bar_pos) pair produced by the BeatTracker.
type Downbeat struct {
	TimeSec float64
	BarPos  int // 1..BeatsPerBar
}

// Beat is a single record in the assembled beat list, per spec.md §3.
type Beat struct {
	ID         int
	Start      float64
	Duration   float64
	StartIndex int
	StopIndex  int
	Cluster    int
	Segment    int
	IS         int // in-segment index
	Amplitude  float64
	Next       int
	JumpCandidates []int
	Quartile   int
}

// PlayVectorEntry is one step of the precomputed play vector.
type PlayVectorEntry struct {
	Beat   int
	SeqLen int
	SeqPos int
}

// Config enumerates the engine's external configuration, per spec.md §6.
type Config struct {
	// StartBeat is the index of the first usable beat (default 1).
	StartBeat int
	// Clusters: 0 means auto-select via ClusterSelector; positive fixes k.
	Clusters int
	// ProgressCallback, if non-nil, is invoked with a monotonic fraction in
	// [0,1] and a human-readable stage message. Must be safe to call from a
	// worker goroutine when Engine.RunAsync is used.
	ProgressCallback func(fraction float64, message string)
	// AsyncMode is carried in the configuration but not read by the engine:
	// Engine.Run always runs synchronously. Engine.RunAsync runs the
	// pipeline on a worker goroutine, and Engine.Ready() then reports
	// completion exactly once.
	AsyncMode bool
	// UseV1Clustering selects the deprecated ascending-even-k selector.
	UseV1Clustering bool
	// StartingBeatCache seeds the BeatTracker directly, skipping detection.
	StartingBeatCache []Downbeat
	// Seed drives the PlayWalker's PRNG. Zero draws a seed from
	// crypto/rand at construction and records it for reproducibility.
	Seed int64
	// CachePath overrides the on-disk downbeat cache location; empty uses
	// "<input>.downbeats".
	CachePath string
	// TFModelPath, if set, prefers the optional TensorFlow backend (build
	// tag "tensorflow") with this SavedModel directory over ONNX.
	TFModelPath string
}

// Output is the read-only result object exposed after a completed run.
type Output struct {
	Duration    float64
	SampleRate  int
	Tempo       float64
	RawAudio    []byte // int16 stereo buffer
	Clusters    int
	Segments    int
	Beats       []Beat
	Outro       []Beat
	PlayVector  []PlayVectorEntry
	SeedUsed    int64
}
