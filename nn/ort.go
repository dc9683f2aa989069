package nn

import (
	"fmt"
	"math"
	"os"

	"tengen/game"

	"github.com/OneOfOne/xxhash"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

// The graph the backend accepts: one input "features" of shape
// [batch, planes, size, size], outputs "policy" [batch, size*size+1]
// holding logits and "value" [batch, 1] already squashed to [-1, 1].
const (
	inputName        = "features"
	policyOutputName = "policy"
	valueOutputName  = "value"
)

// ORTBackend runs inference through onnxruntime with persistent
// tensors sized for one maximal batch. It is not safe for concurrent
// Forward calls; the Batcher serializes them.
type ORTBackend struct {
	session  *ort.AdvancedSession
	size     int
	batch    int
	features []float32
	policy   []float32
	value    []float32
	tensors  []ort.Value
}

// NewORTBackend loads a .onnx weight file for the given board size,
// verifying the graph schema before building a session. A mismatched
// schema returns ErrBadModel.
func NewORTBackend(modelPath, libraryPath string, size, batch int) (*ORTBackend, error) {
	blob, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	log.Info().
		Str("model", modelPath).
		Str("checksum", fmt.Sprintf("%016x", xxhash.Checksum64(blob))).
		Int("bytes", len(blob)).
		Msg("loading weights")

	if !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initializing onnxruntime: %w", err)
		}
	}

	if err := checkSchema(modelPath, size); err != nil {
		return nil, err
	}

	slots := size*size + 1
	b := &ORTBackend{
		size:     size,
		batch:    batch,
		features: make([]float32, batch*game.NumPlanes*size*size),
		policy:   make([]float32, batch*slots),
		value:    make([]float32, batch),
	}

	input, err := ort.NewTensor(
		ort.NewShape(int64(batch), game.NumPlanes, int64(size), int64(size)),
		b.features)
	if err != nil {
		return nil, fmt.Errorf("creating input tensor: %w", err)
	}
	policy, err := ort.NewTensor(ort.NewShape(int64(batch), int64(slots)), b.policy)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("creating policy tensor: %w", err)
	}
	value, err := ort.NewTensor(ort.NewShape(int64(batch), 1), b.value)
	if err != nil {
		input.Destroy()
		policy.Destroy()
		return nil, fmt.Errorf("creating value tensor: %w", err)
	}
	b.tensors = []ort.Value{input, policy, value}

	options, err := ort.NewSessionOptions()
	if err != nil {
		b.destroyTensors()
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{inputName},
		[]string{policyOutputName, valueOutputName},
		[]ort.Value{input},
		[]ort.Value{policy, value},
		options)
	if err != nil {
		b.destroyTensors()
		return nil, fmt.Errorf("creating session: %w", err)
	}
	b.session = session
	return b, nil
}

// checkSchema fails fast when the graph is not the policy/value
// network this engine expects.
func checkSchema(modelPath string, size int) error {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadModel, err)
	}

	if len(inputs) != 1 || inputs[0].Name != inputName {
		return fmt.Errorf("%w: expected a single %q input", ErrBadModel, inputName)
	}
	if !shapeMatches(inputs[0].Dimensions, game.NumPlanes, int64(size), int64(size)) {
		return fmt.Errorf("%w: input shape %v does not fit %d planes of a %dx%d board",
			ErrBadModel, inputs[0].Dimensions, game.NumPlanes, size, size)
	}

	slots := int64(size*size + 1)
	found := map[string]bool{}
	for _, out := range outputs {
		switch out.Name {
		case policyOutputName:
			if !shapeMatches(out.Dimensions, slots) {
				return fmt.Errorf("%w: policy shape %v, want %d slots", ErrBadModel, out.Dimensions, slots)
			}
		case valueOutputName:
			if !shapeMatches(out.Dimensions, 1) {
				return fmt.Errorf("%w: value shape %v, want a scalar per position", ErrBadModel, out.Dimensions)
			}
		default:
			continue
		}
		found[out.Name] = true
	}
	if !found[policyOutputName] || !found[valueOutputName] {
		return fmt.Errorf("%w: missing %q or %q output", ErrBadModel, policyOutputName, valueOutputName)
	}
	return nil
}

// shapeMatches checks the trailing dimensions, ignoring the leading
// batch dimension which may be dynamic.
func shapeMatches(shape ort.Shape, want ...int64) bool {
	if len(shape) != len(want)+1 {
		return false
	}
	for i, w := range want {
		if shape[i+1] != w {
			return false
		}
	}
	return true
}

func (b *ORTBackend) BatchSize() int { return b.batch }

func (b *ORTBackend) Close() {
	if b.session != nil {
		b.session.Destroy()
	}
	b.destroyTensors()
}

func (b *ORTBackend) destroyTensors() {
	for _, t := range b.tensors {
		t.Destroy()
	}
	b.tensors = nil
}

// Forward copies the packed features into the session's input tensor,
// runs the graph and decodes one Output per position. The policy head
// is softmaxed here; the value head comes out of the net in [-1, 1].
func (b *ORTBackend) Forward(features []float32, n int) ([]Output, error) {
	if n > b.batch {
		return nil, fmt.Errorf("batch of %d exceeds capacity %d", n, b.batch)
	}

	copy(b.features, features)
	for i := len(features); i < len(b.features); i++ {
		b.features[i] = 0
	}

	if err := b.session.Run(); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	slots := b.size*b.size + 1
	outputs := make([]Output, n)
	for i := range outputs {
		outputs[i] = Output{
			Policy: softmax(b.policy[i*slots : (i+1)*slots]),
			Value:  b.value[i],
		}
	}
	return outputs, nil
}

func softmax(logits []float32) []float32 {
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, l := range logits {
		e := math.Exp(float64(l - max))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
