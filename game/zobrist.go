package game

import (
	"sync"

	"github.com/bszcz/mt19937_64"
)

// The Zobrist table covers the largest supported board so every board
// size shares one table. Hashes cover stone placement only, which makes
// the superko comparison positional: two positions with the same stones
// but a different side to move hash identically.
const zobristSeed = 0x0DDFACED5EED

var (
	zobristOnce sync.Once
	zobristKeys [2][MaxSize * MaxSize]uint64
)

func initZobrist() {
	zobristOnce.Do(func() {
		mt := mt19937_64.New()
		mt.SeedByUint(zobristSeed)
		for c := 0; c < 2; c++ {
			for v := 0; v < MaxSize*MaxSize; v++ {
				zobristKeys[c][v] = mt.Uint64()
			}
		}
	})
}

// stoneKey returns the hash contribution of a stone of color c at v.
func stoneKey(c Color, v Vertex) uint64 {
	initZobrist()
	if c == Black {
		return zobristKeys[0][v]
	}
	return zobristKeys[1][v]
}
