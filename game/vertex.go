package game

import "fmt"

// Vertex is a point on the board, encoded as y*size+x. The pseudo-move
// Pass is represented by the sentinel below so a move and a vertex share
// one type.
type Vertex int

const (
	// Pass is the pass move.
	Pass Vertex = -1
	// NoVertex marks the absence of a vertex (no ko point, no last move).
	NoVertex Vertex = -2
)

// Board size limits accepted by the engine.
const (
	MinSize = 2
	MaxSize = 19
)

// gtpColumns are the column letters used in board coordinates. The
// letter I is skipped by convention.
const gtpColumns = "ABCDEFGHJKLMNOPQRST"

// VertexAt returns the vertex at column x and row y (both zero based,
// row 0 at the bottom).
func VertexAt(x, y, size int) Vertex {
	return Vertex(y*size + x)
}

// XY splits a vertex into its column and row.
func (v Vertex) XY(size int) (x, y int) {
	return int(v) % size, int(v) / size
}

// Format renders the vertex in board coordinates, e.g. "D4", or "pass".
func (v Vertex) Format(size int) string {
	if v == Pass {
		return "pass"
	}
	x, y := v.XY(size)
	return fmt.Sprintf("%c%d", gtpColumns[x], y+1)
}

// ParseVertex parses board coordinates such as "D4" or "pass". The
// letter I is not a valid column.
func ParseVertex(s string, size int) (Vertex, error) {
	if eqFold(s, "pass") {
		return Pass, nil
	}
	if len(s) < 2 {
		return NoVertex, fmt.Errorf("invalid vertex %q", s)
	}

	col := upper(s[0])
	x := -1
	for i := 0; i < len(gtpColumns); i++ {
		if gtpColumns[i] == col {
			x = i
			break
		}
	}
	if x < 0 || x >= size {
		return NoVertex, fmt.Errorf("invalid vertex %q", s)
	}

	y := 0
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return NoVertex, fmt.Errorf("invalid vertex %q", s)
		}
		y = y*10 + int(s[i]-'0')
	}
	if y < 1 || y > size {
		return NoVertex, fmt.Errorf("invalid vertex %q", s)
	}
	return VertexAt(x, y-1, size), nil
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

func eqFold(s, t string) bool {
	if len(s) != len(t) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if upper(s[i]) != upper(t[i]) {
			return false
		}
	}
	return true
}
