package nn

import (
	"encoding/binary"
	"sync"

	"tengen/game"

	"github.com/OneOfOne/xxhash"
)

// Cache remembers recent evaluations keyed by everything the feature
// planes encode: the stone arrangement, the side to move, the ko
// vertex and the recent-move history. Entries are evicted first-in
// first-out once the cache is full.
type Cache struct {
	mu      sync.Mutex
	limit   int
	entries map[uint64]*Output
	order   []uint64
	next    int
	hits    int64
	misses  int64
}

// NewCache returns a cache holding at most limit evaluations.
func NewCache(limit int) *Cache {
	if limit <= 0 {
		panic("cache limit must be positive")
	}
	return &Cache{
		limit:   limit,
		entries: make(map[uint64]*Output, limit),
		order:   make([]uint64, 0, limit),
	}
}

func cacheKey(pos *game.Position) uint64 {
	h := xxhash.New64()
	buf := make([]byte, 0, pos.Size()*pos.Size()+32)
	for v := game.Vertex(0); int(v) < pos.Size()*pos.Size(); v++ {
		buf = append(buf, byte(pos.Stone(v)))
	}
	buf = append(buf, byte(pos.ToMove()))
	buf = binary.AppendVarint(buf, int64(pos.KoVertex()))
	for _, mv := range pos.RecentMoves() {
		buf = binary.AppendVarint(buf, int64(mv))
	}
	h.Write(buf)
	return h.Sum64()
}

// Get returns a copy of the cached evaluation, if any.
func (c *Cache) Get(pos *game.Position) (*Output, bool) {
	key := cacheKey(pos)

	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	policy := append([]float32(nil), out.Policy...)
	return &Output{Policy: policy, Value: out.Value}, true
}

// Put stores an evaluation, evicting the oldest entry when full. The
// cache keeps its own copy of the policy.
func (c *Cache) Put(pos *game.Position, out *Output) {
	key := cacheKey(pos)
	stored := &Output{
		Policy: append([]float32(nil), out.Policy...),
		Value:  out.Value,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = stored
		return
	}
	if len(c.order) < c.limit {
		c.order = append(c.order, key)
	} else {
		delete(c.entries, c.order[c.next])
		c.order[c.next] = key
		c.next = (c.next + 1) % c.limit
	}
	c.entries[key] = stored
}

// Hits reports how many lookups were served from the cache.
func (c *Cache) Hits() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}
