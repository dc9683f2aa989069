package searcher

import (
	"math"
	"sync"
	"sync/atomic"

	"tengen/game"
	"tengen/nn"
)

// Nodes are referenced by index into their tree's arena, never by
// pointer, so a parent's child table stays 4 bytes per edge.
type nodeID = int32

const (
	// nilChild marks an edge whose node has not been created.
	nilChild nodeID = -1
	// inFlightChild marks an edge another worker is expanding right now.
	inFlightChild nodeID = -2
)

// node is one position in the search tree. The move list and priors
// are fixed at creation; children, once published under mu, never
// change. Statistics use atomics so selection can read a child without
// taking its lock.
type node struct {
	move   game.Vertex // edge from the parent, NoVertex at the root
	toMove game.Color

	terminal bool
	value    float64 // terminal result from toMove's perspective

	moves []game.Vertex // legal moves in enumeration order
	prior []float32     // policy mass per move, renormalized over moves

	visits   atomic.Int64
	vloss    atomic.Int64 // playouts currently passing through
	valueSum atomicFloat64

	mu         sync.Mutex
	children   []nodeID
	raveVisits []int64 // all-moves-as-first statistics per move
	raveSum    []float64
}

// init fills a freshly allocated node for the position reached by mv.
// out may be nil only for finished positions, which become terminal
// nodes valued by the area score.
func (n *node) init(mv game.Vertex, pos *game.Position, out *nn.Output) {
	n.move = mv
	n.toMove = pos.ToMove()

	if pos.Finished() {
		n.terminal = true
		n.value = terminalValue(pos)
		return
	}

	n.moves = pos.LegalMoves()
	n.prior = priorsFor(n.moves, out, pos.Size())
	n.children = make([]nodeID, len(n.moves))
	for i := range n.children {
		n.children[i] = nilChild
	}
}

// ensureRave allocates the RAVE tables on first use. Called with mu
// held.
func (n *node) ensureRave() {
	if n.raveVisits == nil {
		n.raveVisits = make([]int64, len(n.moves))
		n.raveSum = make([]float64, len(n.moves))
	}
}

// q is the mean backed-up value from this node's side to move.
func (n *node) q() float64 {
	v := n.visits.Load()
	if v == 0 {
		return 0
	}
	return n.valueSum.Load() / float64(v)
}

func (n *node) moveIndex(mv game.Vertex) int {
	for i, m := range n.moves {
		if m == mv {
			return i
		}
	}
	return -1
}

// terminalValue scores a finished game from the side to move: the sign
// of the area margin, zero on a draw.
func terminalValue(pos *game.Position) float64 {
	score := pos.Score()
	var v float64
	switch {
	case score > 0:
		v = Win // black wins
	case score < 0:
		v = Loss
	}
	if pos.ToMove() == game.White {
		v = -v
	}
	return v
}

// priorsFor projects the network policy onto the move list and
// renormalizes, falling back to uniform when no mass lands on it.
func priorsFor(moves []game.Vertex, out *nn.Output, size int) []float32 {
	prior := make([]float32, len(moves))
	var total float32
	for i, mv := range moves {
		prior[i] = out.Policy[nn.PolicyIndex(mv, size)]
		total += prior[i]
	}
	if total > 0 {
		for i := range prior {
			prior[i] /= total
		}
	} else {
		for i := range prior {
			prior[i] = 1 / float32(len(moves))
		}
	}
	return prior
}

// atomicFloat64 accumulates a float64 with compare-and-swap on its
// bits.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (f *atomicFloat64) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat64) Add(delta float64) {
	for {
		old := f.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if f.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

const (
	blockShift = 10
	blockSize  = 1 << blockShift
)

// arena owns every node of one tree. Nodes live in fixed-size blocks
// published through an atomic.Value, so a *node stays valid while
// other workers allocate.
type arena struct {
	mu     sync.Mutex
	blocks atomic.Value // [][]node
	count  atomic.Int32
}

func newArena() *arena {
	a := &arena{}
	a.blocks.Store([][]node{})
	return a
}

func (a *arena) at(id nodeID) *node {
	blocks := a.blocks.Load().([][]node)
	return &blocks[id>>blockShift][id&(blockSize-1)]
}

// alloc reserves the next node slot. The caller must init the node
// before publishing its id to any other worker.
func (a *arena) alloc() (nodeID, *node) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.count.Load()
	blocks := a.blocks.Load().([][]node)
	if int(id)>>blockShift == len(blocks) {
		grown := make([][]node, len(blocks)+1)
		copy(grown, blocks)
		grown[len(blocks)] = make([]node, blockSize)
		a.blocks.Store(grown)
		blocks = grown
	}
	a.count.Add(1)
	return id, &blocks[id>>blockShift][id&(blockSize-1)]
}

func (a *arena) size() int32 { return a.count.Load() }

// tree ties an arena to the position its root represents. Kept across
// moves so Advance can reuse subtree statistics.
type tree struct {
	arena *arena
	root  nodeID
	pos   *game.Position
}

func newTree(pos *game.Position, out *nn.Output) *tree {
	a := newArena()
	id, root := a.alloc()
	root.init(game.NoVertex, pos, out)
	return &tree{arena: a, root: id, pos: pos}
}
