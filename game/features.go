package game

// Input planes fed to the evaluator. The encoding is a fixed function
// of the position: same position, same tensor, regardless of what else
// is being evaluated.
//
//	 0     all ones (board mask)
//	 1     stones of the side to move
//	 2     stones of the opponent
//	 3..8  one-hot location of the most recent 6 moves, newest first
//	 9..11 side-to-move groups with >=1, >=2, >=3 liberties
//	12..14 opponent groups with >=1, >=2, >=3 liberties
//	15     vertices forbidden to the side to move (ko, superko, suicide)
//	16     all ones when Black is to move
const NumPlanes = 17

// Features encodes the position as a NumPlanes*size*size tensor in CHW
// order, from the perspective of the side to move.
func (p *Position) Features() []float32 {
	area := p.size * p.size
	out := make([]float32, NumPlanes*area)

	plane := func(i int) []float32 { return out[i*area : (i+1)*area] }

	for i := range plane(0) {
		plane(0)[i] = 1
	}

	own := p.toMove
	for v := Vertex(0); int(v) < area; v++ {
		switch p.stones[v] {
		case own:
			plane(1)[v] = 1
		case own.Opposite():
			plane(2)[v] = 1
		}
	}

	// Most recent moves, newest first. Passes leave their plane empty.
	for i := 0; i < recentDepth && i < len(p.recent); i++ {
		mv := p.recent[len(p.recent)-1-i]
		if mv >= 0 {
			plane(3 + i)[mv] = 1
		}
	}

	// Liberty planes: each stone lights the planes up to its group's
	// liberty count, capped at three.
	counted := make([]bool, area)
	for v := Vertex(0); int(v) < area; v++ {
		if p.stones[v] == Empty || counted[v] {
			continue
		}
		members, libs := p.group(p.stones, v)
		if libs > 3 {
			libs = 3
		}
		base := 9
		if p.stones[v] != own {
			base = 12
		}
		for _, m := range members {
			counted[m] = true
			for l := 0; l < libs; l++ {
				plane(base + l)[m] = 1
			}
		}
	}

	for v := Vertex(0); int(v) < area; v++ {
		if p.stones[v] == Empty && !p.Legal(v) {
			plane(15)[v] = 1
		}
	}

	if own == Black {
		for i := range plane(16) {
			plane(16)[i] = 1
		}
	}

	return out
}
