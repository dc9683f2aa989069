package game

import "strconv"

// Score computes the area score of the position under Tromp-Taylor
// counting: every stone and every empty region touching only one color
// counts for that color. The returned margin is positive when Black
// leads, with komi subtracted from Black's total. Regions touching both
// colors (or nothing) count for neither side.
func (p *Position) Score() float64 {
	black, white := 0, 0
	seen := make([]bool, len(p.stones))
	var nbuf [4]Vertex

	for v := Vertex(0); int(v) < len(p.stones); v++ {
		switch p.stones[v] {
		case Black:
			black++
			continue
		case White:
			white++
			continue
		}
		if seen[v] {
			continue
		}

		// Flood fill the empty region and note which colors it touches.
		region := 0
		touchBlack, touchWhite := false, false
		stack := []Vertex{v}
		seen[v] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			region++
			for _, n := range p.neighborsInto(cur, nbuf[:0]) {
				switch p.stones[n] {
				case Black:
					touchBlack = true
				case White:
					touchWhite = true
				default:
					if !seen[n] {
						seen[n] = true
						stack = append(stack, n)
					}
				}
			}
		}

		if touchBlack && !touchWhite {
			black += region
		} else if touchWhite && !touchBlack {
			white += region
		}
	}

	return float64(black) - float64(white) - p.komi
}

// Result formats the score the way GTP reports it: "B+7.5", "W+0.5" or
// "0" for a drawn game.
func (p *Position) Result() string {
	return formatMargin(p.Score())
}

func formatMargin(margin float64) string {
	switch {
	case margin > 0:
		return "B+" + strconv.FormatFloat(margin, 'f', -1, 64)
	case margin < 0:
		return "W+" + strconv.FormatFloat(-margin, 'f', -1, 64)
	}
	return "0"
}
