package engine

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxBackend runs the CPJKU/beat_this-style dual mel-spectrogram + beat
// tracker ONNX model pair. Grounded on pkg/analysis/beatthis_analyzer.go in
// the teacher repo; generalized here to hand raw activation curves back to
// the shared decodeDownbeats decoder instead of peak-picking internally.
type onnxBackend struct {
	melSession   *ort.DynamicAdvancedSession
	modelSession *ort.DynamicAdvancedSession
	sampleRate   int
	hopLength    int
}

const (
	onnxSampleRate = 22050
	onnxHopLength  = 441
	onnxChunkSize  = 1500
	onnxOverlap    = 150
)

var ortInitOnce sync.Once
var ortInitErr error

func newONNXBackend(cfg Config) (downbeatBackend, error) {
	modelsDir, err := findBeatModels()
	if err != nil {
		return nil, err
	}

	melPath := filepath.Join(modelsDir, "mel.onnx")
	modelPath := filepath.Join(modelsDir, "model_small.onnx")

	if _, err := os.Stat(melPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("mel spectrogram model not found at %s", melPath)
	}
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("beat tracker model not found at %s", modelPath)
	}

	ortInitOnce.Do(func() {
		ort.SetSharedLibraryPath(onnxLibPath())
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", ortInitErr)
	}

	_, modelOutputInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model: %w", err)
	}
	if len(modelOutputInfo) < 2 {
		return nil, fmt.Errorf("model should have 2 outputs, got %d", len(modelOutputInfo))
	}
	outputNames := make([]string, len(modelOutputInfo))
	for i, info := range modelOutputInfo {
		outputNames[i] = info.Name
	}

	melSession, err := ort.NewDynamicAdvancedSession(melPath, []string{"audio"}, []string{"mel_spectrogram"}, nil)
	if err != nil {
		return nil, fmt.Errorf("create mel session: %w", err)
	}

	modelSession, err := ort.NewDynamicAdvancedSession(modelPath, []string{"mel_spectrogram"}, outputNames, nil)
	if err != nil {
		melSession.Destroy()
		return nil, fmt.Errorf("create model session: %w", err)
	}

	return &onnxBackend{
		melSession:   melSession,
		modelSession: modelSession,
		sampleRate:   onnxSampleRate,
		hopLength:    onnxHopLength,
	}, nil
}

func findBeatModels() (string, error) {
	candidates := []string{"models/beat_this", "../models/beat_this", "../../models/beat_this"}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		candidates = append(candidates, filepath.Join(exeDir, "models/beat_this"), filepath.Join(exeDir, "../models/beat_this"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("beat_this onnx models not found")
}

func onnxLibPath() string {
	if p := os.Getenv("ONNXRUNTIME_LIB_PATH"); p != "" {
		return p
	}
	candidates := []string{
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"C:\\Program Files\\onnxruntime\\onnxruntime.dll",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "onnxruntime"
}

func (b *onnxBackend) close() error {
	if b.melSession != nil {
		b.melSession.Destroy()
	}
	if b.modelSession != nil {
		b.modelSession.Destroy()
	}
	return nil
}

func (b *onnxBackend) activations(mono []float32, sampleRate int) ([]float64, []float64, float64, error) {
	if sampleRate != b.sampleRate {
		mono = resampleMono(mono, sampleRate, b.sampleRate)
	}

	mel, err := b.computeMel(mono)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("mel spectrogram: %w", err)
	}

	beatLogits, downbeatLogits, err := b.runChunked(mel)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("beat tracking: %w", err)
	}

	beatAct := make([]float64, len(beatLogits))
	downbeatAct := make([]float64, len(downbeatLogits))
	for i, v := range beatLogits {
		beatAct[i] = sigmoid64(float64(v))
	}
	for i, v := range downbeatLogits {
		downbeatAct[i] = sigmoid64(float64(v))
	}

	hopSec := float64(b.hopLength) / float64(b.sampleRate)
	return beatAct, downbeatAct, hopSec, nil
}

func sigmoid64(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

func (b *onnxBackend) computeMel(audio []float32) ([][]float32, error) {
	inputShape := ort.NewShape(1, int64(len(audio)))
	inputTensor, err := ort.NewTensor(inputShape, audio)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := b.melSession.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("mel inference: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("mel output was nil")
	}
	defer outputs[0].Destroy()

	outputShape := outputs[0].GetShape()
	if len(outputShape) != 3 {
		return nil, fmt.Errorf("unexpected mel output shape: %v", outputShape)
	}
	timeFrames := int(outputShape[1])
	numMels := int(outputShape[2])

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	data := outputTensor.GetData()

	mel := make([][]float32, timeFrames)
	for t := 0; t < timeFrames; t++ {
		mel[t] = make([]float32, numMels)
		copy(mel[t], data[t*numMels:(t+1)*numMels])
	}
	return mel, nil
}

func (b *onnxBackend) runChunked(mel [][]float32) ([]float32, []float32, error) {
	numFrames := len(mel)
	if numFrames <= onnxChunkSize {
		return b.runChunk(mel)
	}

	var allBeat, allDownbeat []float32
	chunkStart := 0
	for chunkStart < numFrames {
		chunkEnd := min(chunkStart+onnxChunkSize, numFrames)
		beatLogits, downbeatLogits, err := b.runChunk(mel[chunkStart:chunkEnd])
		if err != nil {
			return nil, nil, err
		}
		if chunkStart == 0 {
			allBeat = append(allBeat, beatLogits...)
			allDownbeat = append(allDownbeat, downbeatLogits...)
		} else {
			skip := min(onnxOverlap/2, len(beatLogits))
			allBeat = append(allBeat, beatLogits[skip:]...)
			allDownbeat = append(allDownbeat, downbeatLogits[skip:]...)
		}
		chunkStart += onnxChunkSize - onnxOverlap
	}
	return allBeat, allDownbeat, nil
}

func (b *onnxBackend) runChunk(mel [][]float32) ([]float32, []float32, error) {
	numFrames := len(mel)
	if numFrames == 0 {
		return nil, nil, fmt.Errorf("empty mel spectrogram")
	}
	numMels := len(mel[0])

	flat := make([]float32, numFrames*numMels)
	for t, row := range mel {
		copy(flat[t*numMels:], row)
	}

	inputShape := ort.NewShape(1, int64(numFrames), int64(numMels))
	inputTensor, err := ort.NewTensor(inputShape, flat)
	if err != nil {
		return nil, nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := b.modelSession.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, nil, fmt.Errorf("model inference: %w", err)
	}
	for i, o := range outputs {
		if o == nil {
			return nil, nil, fmt.Errorf("model output %d was nil", i)
		}
		defer o.Destroy()
	}

	beatTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("unexpected beat output tensor type")
	}
	downbeatTensor, ok := outputs[1].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("unexpected downbeat output tensor type")
	}

	beatLogits := append([]float32(nil), beatTensor.GetData()...)
	downbeatLogits := append([]float32(nil), downbeatTensor.GetData()...)
	return beatLogits, downbeatLogits, nil
}

// resampleMono resamples mono float32 audio by linear interpolation.
func resampleMono(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(srcRate) / float64(dstRate)
	newLen := int(float64(len(samples)) / ratio)
	out := make([]float32, newLen)
	for i := range out {
		srcIdx := float64(i) * ratio
		idx := int(srcIdx)
		frac := float32(srcIdx - float64(idx))
		if idx+1 < len(samples) {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		} else {
			out[i] = samples[idx]
		}
	}
	return out
}
