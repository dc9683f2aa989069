package searcher

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"tengen/game"
	"tengen/nn"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
)

type Option func(m *MCTS)

// MCTS searches Go positions with prior-guided tree search sharing one
// tree across goroutines. Virtual losses spread concurrent playouts
// over different lines; all-moves-as-first statistics sharpen early
// estimates until real visits take over.
type MCTS struct {
	goroutines      int
	playouts        int
	duration        time.Duration
	cpuct           float64
	raveEquiv       float64
	resignThreshold float64
	noiseWeight     float64
	noiseAlpha      float64
	rng             *rand.Rand
	evaluator       nn.Evaluator
	metrics         MetricsCollector
	tree            *tree
}

func WithGoroutines(goroutines int) Option {
	return func(m *MCTS) {
		if goroutines > 0 {
			m.goroutines = goroutines
		}
	}
}

func WithPlayouts(playouts int) Option {
	return func(m *MCTS) {
		if playouts > 0 {
			m.playouts = playouts
		}
	}
}

func WithDuration(duration time.Duration) Option {
	return func(m *MCTS) {
		if duration > 0 {
			m.duration = duration
		}
	}
}

func WithCpuct(cpuct float64) Option {
	return func(m *MCTS) {
		if cpuct > 0 {
			m.cpuct = cpuct
		}
	}
}

func WithRaveEquiv(equiv float64) Option {
	return func(m *MCTS) {
		if equiv > 0 {
			m.raveEquiv = equiv
		}
	}
}

// WithResignThreshold enables resignation when both the root and the
// chosen move estimate the game below threshold (a negative value in
// (-1, 0)).
func WithResignThreshold(threshold float64) Option {
	return func(m *MCTS) {
		if threshold < 0 {
			m.resignThreshold = threshold
		}
	}
}

// WithRootNoise mixes Dirichlet(alpha) noise into the root priors with
// the given weight. Self-play turns this on; match play leaves it off.
func WithRootNoise(weight, alpha float64) Option {
	return func(m *MCTS) {
		if weight > 0 && alpha > 0 {
			m.noiseWeight = weight
			m.noiseAlpha = alpha
		}
	}
}

func WithSeed(seed uint64) Option {
	return func(m *MCTS) {
		m.rng = rand.New(rand.NewSource(seed))
	}
}

func WithMetrics() Option {
	return func(m *MCTS) {
		m.metrics = NewMetricsCollector()
	}
}

func NewMCTS(evaluator nn.Evaluator, options ...Option) *MCTS {
	m := &MCTS{ // Default values
		goroutines: 1,
		cpuct:      DefaultCpuct,
		raveEquiv:  DefaultRaveEquiv,
		rng:        rand.New(rand.NewSource(1)),
		evaluator:  evaluator,
		metrics:    NewNoMetricsCollector(),
	}
	for _, option := range options {
		option(m)
	}
	if m.playouts <= 0 && m.duration <= 0 {
		panic("Must specify search playouts or duration")
	}
	return m
}

// Result is the outcome of one search budget.
type Result struct {
	Move    game.Vertex
	Value   float64 // root estimate from the side to move, in [-1, 1]
	Resign  bool
	Metrics SearchMetrics
}

// Search runs the configured budget from pos and returns the most
// visited root move. The tree is kept for the next call; Advance tells
// the searcher which moves were actually played in between.
func (m *MCTS) Search(pos *game.Position) (Result, error) {
	if pos.Finished() {
		return Result{Move: game.Pass}, nil
	}

	m.metrics.Start()
	if err := m.ensureRoot(pos); err != nil {
		return Result{}, err
	}
	root := m.tree.arena.at(m.tree.root)

	// With pass as the only legal move there is nothing to search.
	if len(root.moves) == 1 {
		return Result{Move: root.moves[0], Metrics: m.metrics.Complete()}, nil
	}

	if m.noiseWeight > 0 {
		m.applyNoise(root)
	}

	var err error
	if m.playouts > 0 {
		err = m.iterate(pos)
	} else {
		err = m.countdown(pos)
	}
	if err != nil {
		return Result{}, err
	}

	best := m.bestChild(root)
	result := Result{
		Move:    root.moves[best],
		Value:   root.q(),
		Metrics: m.metrics.Complete(),
	}
	if m.resignThreshold < 0 && result.Value < m.resignThreshold {
		if child := root.children[best]; child >= 0 {
			if q := -m.tree.arena.at(child).q(); q < m.resignThreshold {
				result.Resign = true
			}
		}
	}

	log.Debug().
		Stringer("side", pos.ToMove()).
		Str("move", result.Move.Format(pos.Size())).
		Float64("value", result.Value).
		Int64("playouts", result.Metrics.Playouts).
		Int32("nodes", m.tree.arena.size()).
		Dur("elapsed", result.Metrics.Duration).
		Msg("search complete")
	return result, nil
}

// ensureRoot reuses the existing tree when it is rooted at pos,
// otherwise evaluates pos and starts fresh.
func (m *MCTS) ensureRoot(pos *game.Position) error {
	if m.tree != nil &&
		m.tree.pos.Hash() == pos.Hash() &&
		m.tree.pos.ToMove() == pos.ToMove() &&
		m.tree.pos.MoveNumber() == pos.MoveNumber() {
		m.tree.pos = pos
		m.metrics.ReusedTree()
		return nil
	}

	out, err := m.evaluator.Evaluate(pos)
	if err != nil {
		return err
	}
	m.tree = newTree(pos, out)
	return nil
}

// Advance re-roots the tree onto the child reached by mv, which keeps
// that subtree's statistics for the next search. A move the tree never
// explored drops the whole tree, as does a board that disagrees with
// the tree's idea of the position after mv: the protocol layer accepts
// out-of-turn stones, and the subtree under mv holds statistics for mv
// played by the tree's side to move, not the other color's.
func (m *MCTS) Advance(mv game.Vertex, pos *game.Position) {
	if m.tree == nil {
		return
	}
	root := m.tree.arena.at(m.tree.root)
	if root.terminal {
		m.tree = nil
		return
	}

	reached, err := m.tree.pos.Apply(mv)
	if err != nil ||
		reached.Hash() != pos.Hash() ||
		reached.ToMove() != pos.ToMove() ||
		reached.MoveNumber() != pos.MoveNumber() {
		m.tree = nil
		return
	}

	idx := root.moveIndex(mv)
	if idx < 0 {
		m.tree = nil
		return
	}
	root.mu.Lock()
	child := root.children[idx]
	root.mu.Unlock()
	if child < 0 {
		m.tree = nil
		return
	}
	m.tree.root = child
	m.tree.pos = pos
}

// Reset drops the tree so the next search starts from scratch.
func (m *MCTS) Reset() {
	m.tree = nil
}

func (m *MCTS) applyNoise(root *node) {
	noise := dirichlet(m.rng, len(root.moves), m.noiseAlpha)
	root.mu.Lock()
	defer root.mu.Unlock()
	for i := range root.prior {
		root.prior[i] = float32((1-m.noiseWeight)*float64(root.prior[i]) + m.noiseWeight*noise[i])
	}
}

func (m *MCTS) iterate(pos *game.Position) error {
	task := make(chan struct{}, m.playouts)
	for i := 0; i < m.playouts; i++ {
		task <- struct{}{}
	}
	close(task)

	var wg sync.WaitGroup
	var once sync.Once
	var failure error
	stop := make(chan struct{})

	for i := 0; i < m.goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range task {
				select {
				case <-stop:
					return
				default:
				}
				if err := m.playout(pos); err != nil {
					once.Do(func() {
						failure = err
						close(stop)
					})
					return
				}
				m.metrics.AddPlayout()
			}
		}()
	}

	wg.Wait()
	return failure
}

func (m *MCTS) countdown(pos *game.Position) error {
	var wg sync.WaitGroup
	var once sync.Once
	var failure error
	stop := make(chan struct{})
	timer := time.AfterFunc(m.duration, func() {
		once.Do(func() { close(stop) })
	})
	defer timer.Stop()

	for i := 0; i < m.goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if err := m.playout(pos); err != nil {
					once.Do(func() {
						failure = err
						close(stop)
					})
					return
				}
				m.metrics.AddPlayout()
			}
		}()
	}

	wg.Wait()
	return failure
}

// step records one edge of a playout's descent: the node it passed
// through and the move index it took.
type step struct {
	id  nodeID
	idx int
}

// playout runs one simulation. A collision with another worker
// expanding the same edge reverts cleanly and retries after yielding.
func (m *MCTS) playout(rootPos *game.Position) error {
	for {
		ok, err := m.tryPlayout(rootPos)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		m.metrics.AddConflict()
		runtime.Gosched()
	}
}

func (m *MCTS) tryPlayout(rootPos *game.Position) (bool, error) {
	ar := m.tree.arena
	id := m.tree.root
	pos := rootPos
	var path []step

	for {
		n := ar.at(id)
		if n.terminal {
			m.backup(path, n, n.value)
			return true, nil
		}

		n.mu.Lock()
		idx := m.selectChild(n)
		switch child := n.children[idx]; child {
		case inFlightChild:
			n.mu.Unlock()
			m.unwind(path, id)
			return false, nil

		case nilChild:
			n.children[idx] = inFlightChild
			n.mu.Unlock()

			leaf, value, err := m.expand(pos, n.moves[idx])
			n.mu.Lock()
			if err != nil {
				n.children[idx] = nilChild
				n.mu.Unlock()
				m.unwind(path, id)
				return false, err
			}
			n.children[idx] = leaf
			n.mu.Unlock()

			path = append(path, step{id, idx})
			m.backup(path, ar.at(leaf), value)
			return true, nil

		default:
			next := ar.at(child)
			next.vloss.Add(1)
			n.mu.Unlock()

			applied, err := pos.Apply(n.moves[idx])
			if err != nil {
				panic(fmt.Sprintf("tree move %s rejected: %v", n.moves[idx].Format(pos.Size()), err))
			}
			pos = applied
			path = append(path, step{id, idx})
			id = child
		}
	}
}

// expand evaluates the position after mv and allocates its node. The
// node starts with one virtual loss, reverted when its evaluation is
// backed up, so siblings see it as in flight the moment it publishes.
func (m *MCTS) expand(pos *game.Position, mv game.Vertex) (nodeID, float64, error) {
	next, err := pos.Apply(mv)
	if err != nil {
		panic(fmt.Sprintf("tree move %s rejected: %v", mv.Format(pos.Size()), err))
	}

	var out *nn.Output
	if !next.Finished() {
		out, err = m.evaluator.Evaluate(next)
		if err != nil {
			return 0, 0, err
		}
	}

	id, n := m.tree.arena.alloc()
	n.init(mv, next, out)
	n.vloss.Store(1)
	return id, n.leafValue(out), nil
}

// leafValue is the value backed up from a fresh leaf, from the leaf's
// side to move.
func (n *node) leafValue(out *nn.Output) float64 {
	if n.terminal {
		return n.value
	}
	return float64(out.Value)
}

// selectChild scores every move of n and returns the best index. Ties
// go to the earlier move in enumeration order. Called with n.mu held.
func (m *MCTS) selectChild(n *node) int {
	ar := m.tree.arena
	sqrtParent := math.Sqrt(float64(n.visits.Load()))

	best, bestScore := 0, math.Inf(-1)
	for i := range n.moves {
		var visits, vloss int64
		var q float64
		switch child := n.children[i]; {
		case child == inFlightChild:
			vloss, q = 1, Loss
		case child >= 0:
			c := ar.at(child)
			visits = c.visits.Load()
			vloss = c.vloss.Load()
			if total := visits + vloss; total > 0 {
				// The child's value is from its own side to move;
				// negate for this node and count virtual losses as
				// losses.
				q = (-c.valueSum.Load() - float64(vloss)) / float64(total)
			}
		}

		var raveQ, beta float64
		if n.raveVisits != nil && n.raveVisits[i] > 0 {
			raveQ = n.raveSum[i] / float64(n.raveVisits[i])
			beta = raveBeta(float64(visits), float64(n.raveVisits[i]), m.raveEquiv)
		}

		score := blend(q, raveQ, beta) +
			exploration(m.cpuct, float64(n.prior[i]), sqrtParent, float64(visits+vloss))
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// backup applies a finished playout along its path. value is from the
// leaf's side to move and flips sign each ply up. Every ancestor also
// folds the playout's later moves by its own side into its RAVE
// tables.
func (m *MCTS) backup(path []step, leaf *node, value float64) {
	ar := m.tree.arena

	leaf.visits.Add(1)
	leaf.valueSum.Add(value)
	leaf.vloss.Add(-1)

	v := value
	for i := len(path) - 1; i >= 0; i-- {
		v = -v
		n := ar.at(path[i].id)
		n.visits.Add(1)
		n.valueSum.Add(v)
		if i > 0 {
			n.vloss.Add(-1)
		}

		n.mu.Lock()
		n.ensureRave()
		// Moves at the same parity below i were made by n's side.
		for j := i; j < len(path); j += 2 {
			mv := ar.at(path[j].id).moves[path[j].idx]
			if k := n.moveIndex(mv); k >= 0 {
				n.raveVisits[k]++
				n.raveSum[k] += v
			}
		}
		n.mu.Unlock()
	}
}

// unwind reverts the virtual losses of an abandoned playout: every
// node it entered below the root, including the one it stopped at.
func (m *MCTS) unwind(path []step, id nodeID) {
	ar := m.tree.arena
	for i := 1; i < len(path); i++ {
		ar.at(path[i].id).vloss.Add(-1)
	}
	if id != m.tree.root {
		ar.at(id).vloss.Add(-1)
	}
}

// bestChild returns the root move index with the most visits,
// breaking ties toward the earlier move.
func (m *MCTS) bestChild(root *node) int {
	ar := m.tree.arena
	root.mu.Lock()
	defer root.mu.Unlock()

	best, bestVisits := 0, int64(-1)
	for i, child := range root.children {
		if child < 0 {
			continue
		}
		if v := ar.at(child).visits.Load(); v > bestVisits {
			best, bestVisits = i, v
		}
	}
	return best
}
