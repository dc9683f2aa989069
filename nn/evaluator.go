// Package nn evaluates positions with a policy/value network. Search
// goroutines call Evaluate concurrently; a Batcher groups their
// requests into fixed-size batches for the backend.
package nn

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"tengen/game"

	"github.com/rs/zerolog/log"
)

var (
	// ErrEvaluatorFailed is returned by every Evaluate call once the
	// backend has failed. The condition is fatal: the evaluator never
	// retries and the search must abort.
	ErrEvaluatorFailed = errors.New("evaluator failed")

	// ErrBadModel is returned when the weight file does not describe
	// a network with the expected inputs and outputs.
	ErrBadModel = errors.New("unusable model")
)

// Output is one network evaluation from the perspective of the side to
// move: a probability for every vertex plus pass, and a value in
// [-1, 1] where +1 means the mover wins.
type Output struct {
	Policy []float32 // length size*size+1, pass last
	Value  float32
}

// PolicyIndex maps a move to its slot in Output.Policy.
func PolicyIndex(v game.Vertex, size int) int {
	if v == game.Pass {
		return size * size
	}
	return int(v)
}

// Evaluator is what the search tree sees.
type Evaluator interface {
	Evaluate(pos *game.Position) (*Output, error)
}

// Backend runs raw network inference on a packed batch of feature
// tensors. Forward returns one Output per position, softmax already
// applied to the policy head, without any legality masking.
type Backend interface {
	Forward(features []float32, n int) ([]Output, error)
	BatchSize() int
	Close()
}

// batchTimeout bounds how long a partially filled batch waits for more
// requests before running anyway.
const batchTimeout = 1 * time.Millisecond

type request struct {
	pos      *game.Position
	features []float32
	result   chan response
}

type response struct {
	out *Output
	err error
}

// Batcher is an Evaluator that collects concurrent Evaluate calls into
// batches for a Backend. Each request occupies its own batch slot, so
// results are independent of whatever else happens to share the batch.
//
// The first backend error latches the Batcher into a failed state:
// every pending and future request gets ErrEvaluatorFailed.
type Batcher struct {
	backend Backend
	size    int
	cache   *Cache
	queue   chan request
	done    chan struct{}
	failure atomic.Value // error
	closed  atomic.Bool

	evaluations atomic.Int64
	batches     atomic.Int64
}

// NewBatcher starts the batch loop for positions of the given board
// size. A nil cache disables caching.
func NewBatcher(backend Backend, size int, cache *Cache) *Batcher {
	b := &Batcher{
		backend: backend,
		size:    size,
		cache:   cache,
		queue:   make(chan request, backend.BatchSize()*4),
		done:    make(chan struct{}),
	}
	go b.batchLoop()
	return b
}

// Close stops the batch loop and releases the backend. No Evaluate
// call may be in flight or follow.
func (b *Batcher) Close() {
	if b.closed.Swap(true) {
		return
	}
	close(b.queue)
	<-b.done
	b.backend.Close()
}

// Evaluations returns how many positions reached the backend.
func (b *Batcher) Evaluations() int64 { return b.evaluations.Load() }

func (b *Batcher) err() error {
	if v := b.failure.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (b *Batcher) fail(cause error) {
	b.failure.CompareAndSwap(nil, errors.Join(ErrEvaluatorFailed, cause))
	log.Error().Err(cause).Msg("evaluator backend failed")
}

// Evaluate encodes the position, waits for its batch to run and
// returns the masked policy and value. Blocks only the calling
// goroutine.
func (b *Batcher) Evaluate(pos *game.Position) (*Output, error) {
	if err := b.err(); err != nil {
		return nil, err
	}
	if pos.Size() != b.size {
		return nil, fmt.Errorf("%w: position is %dx%d but the network wants %dx%d",
			ErrEvaluatorFailed, pos.Size(), pos.Size(), b.size, b.size)
	}
	if b.cache != nil {
		if out, ok := b.cache.Get(pos); ok {
			return out, nil
		}
	}

	result := make(chan response, 1)
	b.queue <- request{pos: pos, features: pos.Features(), result: result}
	r := <-result
	if r.err != nil {
		return nil, r.err
	}

	if b.cache != nil {
		b.cache.Put(pos, r.out)
	}
	return r.out, nil
}

func (b *Batcher) batchLoop() {
	defer close(b.done)

	max := b.backend.BatchSize()
	requests := make([]request, 0, max)
	for {
		requests = requests[:0]
		req, ok := <-b.queue
		if !ok {
			return
		}
		requests = append(requests, req)

		timeout := time.After(batchTimeout)
	collect:
		for len(requests) < max {
			select {
			case r, ok := <-b.queue:
				if !ok {
					break collect
				}
				requests = append(requests, r)
			case <-timeout:
				break collect
			}
		}
		b.processBatch(requests)
	}
}

func (b *Batcher) processBatch(requests []request) {
	if err := b.err(); err != nil {
		for _, req := range requests {
			req.result <- response{err: err}
		}
		return
	}

	perPos := game.NumPlanes * b.size * b.size
	features := make([]float32, len(requests)*perPos)
	for i, req := range requests {
		copy(features[i*perPos:], req.features)
	}

	outputs, err := b.backend.Forward(features, len(requests))
	if err != nil {
		b.fail(err)
		failed := b.err()
		for _, req := range requests {
			req.result <- response{err: failed}
		}
		return
	}

	b.batches.Add(1)
	b.evaluations.Add(int64(len(requests)))

	for i, req := range requests {
		out := maskPolicy(&outputs[i], req.pos)
		req.result <- response{out: out}
	}
}

// maskPolicy zeroes the probability of every illegal move and
// renormalizes over the rest. A net that puts no mass on any legal
// move falls back to a uniform distribution.
func maskPolicy(raw *Output, pos *game.Position) *Output {
	size := pos.Size()
	legal := pos.LegalMoves()
	policy := make([]float32, size*size+1)

	var total float32
	for _, mv := range legal {
		i := PolicyIndex(mv, size)
		policy[i] = raw.Policy[i]
		total += raw.Policy[i]
	}

	if total > 0 {
		for _, mv := range legal {
			policy[PolicyIndex(mv, size)] /= total
		}
	} else {
		uniform := 1 / float32(len(legal))
		for _, mv := range legal {
			policy[PolicyIndex(mv, size)] = uniform
		}
	}

	return &Output{Policy: policy, Value: raw.Value}
}
