// cache.go — S3-FIFO compile cache.
//
// Masks are few (tens to low hundreds) and already held compiled in the
// active maskset; this cache exists for a narrower case — an operator
// iterating on mask wording via repeated TESTMASK/COMPILEMASK calls against
// the same literal text, where Compile is pure and deterministic over its
// input string. Same S3-FIFO eviction shape as the teacher's persistent
// value cache (probationary S queue, protected M queue, bounded ghost set),
// adapted to keep *Compiled in memory only — there is no backing store to
// spill to, since a cache miss just means "compile it again".
package mask

import (
	"container/list"
	"sync"
)

type cacheEntry struct {
	compiled *Compiled
	freq     uint8 // saturating counter in [0, 3]
	elem     *list.Element
	inM      bool
}

// CompileCache bounds recompilation of repeated mask literal strings.
// Safe for concurrent use.
type CompileCache struct {
	mu sync.Mutex

	capacity int
	sTarget  int
	ghostCap int

	entries map[string]*cacheEntry
	sQueue  *list.List
	mQueue  *list.List

	ghostBuf   []string
	ghostSet   map[string]struct{}
	ghostHead  int
	ghostCount int
}

// NewCompileCache returns a cache holding at most capacity compiled masks.
// capacity < 2 is clamped to 2.
func NewCompileCache(capacity int) *CompileCache {
	if capacity < 2 {
		capacity = 2
	}
	sTarget := capacity / 10
	if sTarget < 1 {
		sTarget = 1
	}
	ghostCap := 2 * sTarget
	if ghostCap < 4 {
		ghostCap = 4
	}
	return &CompileCache{
		capacity: capacity,
		sTarget:  sTarget,
		ghostCap: ghostCap,
		entries:  make(map[string]*cacheEntry, capacity),
		sQueue:   list.New(),
		mQueue:   list.New(),
		ghostBuf: make([]string, ghostCap),
		ghostSet: make(map[string]struct{}, ghostCap),
	}
}

// Compile returns the compiled form of raw, compiling and caching it on a
// miss. A compile error is never cached — callers should retry freely once
// the operator fixes the mask text.
func (c *CompileCache) Compile(raw string) (*Compiled, error) {
	c.mu.Lock()
	if e, ok := c.entries[raw]; ok {
		if e.freq < 3 {
			e.freq++
		}
		compiled := e.compiled
		c.mu.Unlock()
		return compiled, nil
	}
	c.mu.Unlock()

	compiled, err := Compile(raw)
	if err != nil {
		return nil, err
	}
	c.insert(raw, compiled)
	return compiled, nil
}

// Len reports the number of entries currently resident (S + M).
func (c *CompileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *CompileCache) insert(key string, value *Compiled) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.compiled = value
		return
	}

	inM := c.ghostContains(key)
	var elem *list.Element
	if inM {
		elem = c.mQueue.PushBack(key)
	} else {
		elem = c.sQueue.PushBack(key)
	}
	c.entries[key] = &cacheEntry{compiled: value, freq: 0, elem: elem, inM: inM}

	for c.sQueue.Len()+c.mQueue.Len() > c.capacity {
		c.evictOne()
	}
}

func (c *CompileCache) evictOne() {
	if c.sQueue.Len() > 0 {
		c.evictFromS()
		return
	}
	c.evictFromM()
}

func (c *CompileCache) evictFromS() {
	front := c.sQueue.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.sQueue.Remove(front)

	e, ok := c.entries[key]
	if !ok {
		return
	}

	if e.freq > 0 {
		e.freq = 0
		e.inM = true
		e.elem = c.mQueue.PushBack(key)
		mTarget := c.capacity - c.sTarget
		if c.mQueue.Len() > mTarget {
			c.evictFromM()
		}
	} else {
		delete(c.entries, key)
		c.ghostAdd(key)
	}
}

func (c *CompileCache) evictFromM() {
	front := c.mQueue.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.mQueue.Remove(front)
	delete(c.entries, key)
}

func (c *CompileCache) ghostContains(key string) bool {
	_, ok := c.ghostSet[key]
	return ok
}

func (c *CompileCache) ghostAdd(key string) {
	if _, exists := c.ghostSet[key]; exists {
		return
	}
	if c.ghostCount == c.ghostCap {
		oldest := c.ghostBuf[c.ghostHead]
		delete(c.ghostSet, oldest)
		c.ghostHead = (c.ghostHead + 1) % c.ghostCap
		c.ghostCount--
	}
	writeIdx := (c.ghostHead + c.ghostCount) % c.ghostCap
	c.ghostBuf[writeIdx] = key
	c.ghostSet[key] = struct{}{}
	c.ghostCount++
}
