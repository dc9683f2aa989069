package nn

import "tengen/game"

// Uniform is an Evaluator that spreads the policy evenly over the
// legal moves and estimates every position as even. It stands in for
// the network in tests and when no weights are available.
type Uniform struct{}

func (Uniform) Evaluate(pos *game.Position) (*Output, error) {
	size := pos.Size()
	legal := pos.LegalMoves()
	policy := make([]float32, size*size+1)
	p := 1 / float32(len(legal))
	for _, mv := range legal {
		policy[PolicyIndex(mv, size)] = p
	}
	return &Output{Policy: policy, Value: 0}, nil
}

// UniformBackend is the Backend equivalent of Uniform: a flat raw
// policy and a neutral value for every batch slot. It lets the Batcher
// run without inference.
type UniformBackend struct {
	size  int
	batch int
}

func NewUniformBackend(size, batch int) *UniformBackend {
	return &UniformBackend{size: size, batch: batch}
}

func (u *UniformBackend) BatchSize() int { return u.batch }

func (u *UniformBackend) Close() {}

func (u *UniformBackend) Forward(features []float32, n int) ([]Output, error) {
	outputs := make([]Output, n)
	slots := u.size*u.size + 1
	for i := range outputs {
		policy := make([]float32, slots)
		for j := range policy {
			policy[j] = 1 / float32(slots)
		}
		outputs[i] = Output{Policy: policy, Value: 0}
	}
	return outputs, nil
}
