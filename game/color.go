package game

// Color identifies the state of a board vertex or the side to move.
type Color int8

const (
	Empty Color = iota
	Black
	White
)

// Opposite returns the other player's color. Empty maps to Empty.
func (c Color) Opposite() Color {
	switch c {
	case Black:
		return White
	case White:
		return Black
	}
	return Empty
}

func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	}
	return "empty"
}
