package game

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIllegalMove is wrapped by every move rejection so callers can test
// for the whole class with errors.Is.
var ErrIllegalMove = errors.New("illegal move")

func illegal(reason string) error {
	return fmt.Errorf("%w: %s", ErrIllegalMove, reason)
}

// Position is a snapshot of the game at one move. It is immutable by
// convention: Apply returns a new Position and never touches the
// receiver, so positions can be shared freely between search
// goroutines.
type Position struct {
	size     int
	stones   []Color
	toMove   Color
	moveNum  int
	captures [2]int // stones captured by Black, by White
	ko       Vertex // vertex forbidden by simple ko, or NoVertex
	passes   int    // consecutive passes ending at this position
	komi     float64
	hash     uint64
	history  []uint64 // hashes of this and all prior stone arrangements
	recent   []Vertex // most recent moves, newest last, capped
}

// recentDepth is how many previous moves the position remembers for the
// history feature planes.
const recentDepth = 6

// NewPosition returns an empty board of the given size.
func NewPosition(size int, komi float64) *Position {
	if size < MinSize || size > MaxSize {
		panic(fmt.Sprintf("board size %d out of range", size))
	}
	p := &Position{
		size:   size,
		stones: make([]Color, size*size),
		toMove: Black,
		ko:     NoVertex,
		komi:   komi,
	}
	p.history = []uint64{p.hash}
	return p
}

func (p *Position) Size() int        { return p.size }
func (p *Position) ToMove() Color    { return p.toMove }
func (p *Position) MoveNumber() int  { return p.moveNum }
func (p *Position) Komi() float64    { return p.komi }
func (p *Position) Hash() uint64     { return p.hash }
func (p *Position) KoVertex() Vertex { return p.ko }

// Stone returns the color occupying v.
func (p *Position) Stone(v Vertex) Color { return p.stones[v] }

// Captures returns the number of stones captured by c so far.
func (p *Position) Captures(c Color) int {
	if c == Black {
		return p.captures[0]
	}
	return p.captures[1]
}

// Finished reports whether both players have passed consecutively.
func (p *Position) Finished() bool { return p.passes >= 2 }

// LastMove returns the most recent move, or NoVertex on an untouched
// board.
func (p *Position) LastMove() Vertex {
	if len(p.recent) == 0 {
		return NoVertex
	}
	return p.recent[len(p.recent)-1]
}

// RecentMoves returns the moves the position remembers for its
// recent-move planes, oldest first. Callers must not modify it.
func (p *Position) RecentMoves() []Vertex { return p.recent }

// WithToMove returns a copy whose side to move is c. Needed by the
// protocol layer, which must accept out-of-turn stones.
func (p *Position) WithToMove(c Color) *Position {
	if c == p.toMove {
		return p
	}
	q := p.clone()
	q.toMove = c
	return q
}

// WithKomi returns a copy with the given komi.
func (p *Position) WithKomi(komi float64) *Position {
	q := p.clone()
	q.komi = komi
	return q
}

func (p *Position) clone() *Position {
	q := *p
	q.stones = append([]Color(nil), p.stones...)
	q.history = append([]uint64(nil), p.history...)
	q.recent = append([]Vertex(nil), p.recent...)
	return &q
}

// neighborsInto appends the up-to-four neighbors of v to buf.
func (p *Position) neighborsInto(v Vertex, buf []Vertex) []Vertex {
	x, y := v.XY(p.size)
	if x > 0 {
		buf = append(buf, v-1)
	}
	if x < p.size-1 {
		buf = append(buf, v+1)
	}
	if y > 0 {
		buf = append(buf, v-Vertex(p.size))
	}
	if y < p.size-1 {
		buf = append(buf, v+Vertex(p.size))
	}
	return buf
}

// group flood-fills the group containing v on the given stone slice,
// returning its member vertices and liberty count.
func (p *Position) group(stones []Color, v Vertex) (members []Vertex, liberties int) {
	color := stones[v]
	seen := make([]bool, len(stones))
	libSeen := make([]bool, len(stones))
	stack := []Vertex{v}
	seen[v] = true
	var nbuf [4]Vertex

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		members = append(members, cur)

		for _, n := range p.neighborsInto(cur, nbuf[:0]) {
			switch stones[n] {
			case Empty:
				if !libSeen[n] {
					libSeen[n] = true
					liberties++
				}
			case color:
				if !seen[n] {
					seen[n] = true
					stack = append(stack, n)
				}
			}
		}
	}
	return members, liberties
}

// Apply plays the side to move at v (or passes) and returns the
// resulting position. The receiver is never modified. Rejections wrap
// ErrIllegalMove: occupied vertex, suicide, simple ko, positional
// superko, or a finished game.
func (p *Position) Apply(v Vertex) (*Position, error) {
	if p.Finished() {
		return nil, illegal("game is over")
	}

	if v == Pass {
		q := p.clone()
		q.toMove = p.toMove.Opposite()
		q.moveNum++
		q.passes++
		q.ko = NoVertex
		q.pushRecent(Pass)
		return q, nil
	}

	if int(v) < 0 || int(v) >= len(p.stones) {
		return nil, illegal("vertex off board")
	}
	if p.stones[v] != Empty {
		return nil, illegal("vertex occupied")
	}
	if v == p.ko {
		return nil, illegal("ko")
	}

	mover := p.toMove
	enemy := mover.Opposite()

	stones := append([]Color(nil), p.stones...)
	stones[v] = mover
	hash := p.hash ^ stoneKey(mover, v)

	// Capture adjacent enemy groups left without liberties.
	captured := 0
	var lastCaptured Vertex = NoVertex
	var nbuf [4]Vertex
	for _, n := range p.neighborsInto(v, nbuf[:0]) {
		if stones[n] != enemy {
			continue
		}
		members, libs := p.group(stones, n)
		if libs > 0 {
			continue
		}
		for _, m := range members {
			hash ^= stoneKey(enemy, m)
			stones[m] = Empty
			captured++
			lastCaptured = m
		}
	}

	// A move that leaves its own group without liberties is suicide
	// unless it captured first.
	ownMembers, ownLibs := p.group(stones, v)
	if ownLibs == 0 {
		return nil, illegal("suicide")
	}

	// Positional superko: the stone arrangement must not repeat any
	// earlier arrangement in this game.
	for _, h := range p.history {
		if h == hash {
			return nil, illegal("superko")
		}
	}

	q := &Position{
		size:     p.size,
		stones:   stones,
		toMove:   enemy,
		moveNum:  p.moveNum + 1,
		captures: p.captures,
		ko:       NoVertex,
		passes:   0,
		komi:     p.komi,
		hash:     hash,
	}
	if mover == Black {
		q.captures[0] += captured
	} else {
		q.captures[1] += captured
	}
	if captured == 1 && len(ownMembers) == 1 && ownLibs == 1 {
		q.ko = lastCaptured
	}

	q.history = make([]uint64, len(p.history)+1)
	copy(q.history, p.history)
	q.history[len(p.history)] = hash

	q.recent = append([]Vertex(nil), p.recent...)
	q.pushRecent(v)
	return q, nil
}

func (p *Position) pushRecent(v Vertex) {
	p.recent = append(p.recent, v)
	if len(p.recent) > recentDepth {
		p.recent = p.recent[len(p.recent)-recentDepth:]
	}
}

// Legal reports whether Apply would accept v. The check shares Apply's
// code path, so the two can never disagree.
func (p *Position) Legal(v Vertex) bool {
	_, err := p.Apply(v)
	return err == nil
}

// LegalMoves returns every legal move in a fixed enumeration order:
// board vertices ascending, then Pass. Search relies on this order for
// deterministic tie-breaking.
func (p *Position) LegalMoves() []Vertex {
	if p.Finished() {
		return nil
	}
	moves := make([]Vertex, 0, len(p.stones)+1)
	for v := Vertex(0); int(v) < len(p.stones); v++ {
		if p.stones[v] != Empty {
			continue
		}
		if p.Legal(v) {
			moves = append(moves, v)
		}
	}
	moves = append(moves, Pass)
	return moves
}

// String renders the board for debugging and the showboard command.
func (p *Position) String() string {
	var b strings.Builder
	for y := p.size - 1; y >= 0; y-- {
		fmt.Fprintf(&b, "%2d ", y+1)
		for x := 0; x < p.size; x++ {
			switch p.stones[VertexAt(x, y, p.size)] {
			case Black:
				b.WriteString("X ")
			case White:
				b.WriteString("O ")
			default:
				b.WriteString(". ")
			}
		}
		b.WriteByte('\n')
	}
	b.WriteString("   ")
	for x := 0; x < p.size; x++ {
		b.WriteByte(gtpColumns[x])
		b.WriteByte(' ')
	}
	return b.String()
}
