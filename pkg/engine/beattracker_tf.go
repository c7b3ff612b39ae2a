//go:build tensorflow

package engine

import (
	"fmt"

	tf "github.com/wamuir/graft/tensorflow"
)

// tfBackend runs a configurable TensorFlow SavedModel that emits a single
// beat-activation curve (no downbeat head). Grounded on
// pkg/analysis/ml_analyzer_tf.go in the teacher repo, generalized away from
// its hardcoded rekordbox application-bundle path to Config.TFModelPath.
// Because this SavedModel only exposes beat activation, decodeDownbeats
// falls back to a fixed 4/4 bar assignment anchored at the first beat for
// this backend (see chooseBarLength).
type tfBackend struct {
	model      *tf.SavedModel
	inputOp    string
	outputOp   string
	sampleRate int
	hopLength  int
}

const (
	tfSampleRate = 44100
	tfHopLength  = 441
)

func newTFBackend(cfg Config) (downbeatBackend, error) {
	if cfg.TFModelPath == "" {
		return nil, fmt.Errorf("no TFModelPath configured")
	}

	model, err := tf.LoadSavedModel(cfg.TFModelPath, []string{"serve"}, nil)
	if err != nil {
		return nil, fmt.Errorf("load saved model: %w", err)
	}

	return &tfBackend{
		model:      model,
		inputOp:    "serving_default_fltp",
		outputOp:   "StatefulPartitionedCall",
		sampleRate: tfSampleRate,
		hopLength:  tfHopLength,
	}, nil
}

func (b *tfBackend) close() error {
	if b.model != nil && b.model.Session != nil {
		return b.model.Session.Close()
	}
	return nil
}

func (b *tfBackend) activations(mono []float32, sampleRate int) ([]float64, []float64, float64, error) {
	if sampleRate != b.sampleRate {
		mono = resampleMono(mono, sampleRate, b.sampleRate)
	}

	inputData := [][]float32{mono}
	inputTensor, err := tf.NewTensor(inputData)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("create input tensor: %w", err)
	}

	inputOp := b.model.Graph.Operation(b.inputOp)
	if inputOp == nil {
		return nil, nil, 0, fmt.Errorf("input operation %q not found", b.inputOp)
	}
	outputOp := b.model.Graph.Operation(b.outputOp)
	if outputOp == nil {
		return nil, nil, 0, fmt.Errorf("output operation %q not found", b.outputOp)
	}

	outputs, err := b.model.Session.Run(
		map[tf.Output]*tf.Tensor{inputOp.Output(0): inputTensor},
		[]tf.Output{outputOp.Output(1)},
		nil,
	)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("inference: %w", err)
	}

	var beatRaw []float32
	switch v := outputs[0].Value().(type) {
	case [][][]float32:
		frames := v[0]
		beatRaw = make([]float32, len(frames))
		for i, frame := range frames {
			beatRaw[i] = frame[0]
		}
	case [][]float32:
		beatRaw = make([]float32, len(v))
		for i, frame := range v {
			beatRaw[i] = frame[0]
		}
	default:
		return nil, nil, 0, fmt.Errorf("unexpected output type: %T", outputs[0].Value())
	}

	beatAct := make([]float64, len(beatRaw))
	for i, v := range beatRaw {
		beatAct[i] = sigmoid64(float64(v))
	}

	hopSec := float64(b.hopLength) / float64(b.sampleRate)
	return beatAct, nil, hopSec, nil
}
