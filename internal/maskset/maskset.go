// Package maskset holds the active mask set: the ordered in-memory view of
// the durable catalog's enabled rows, each paired with its compiled
// predicate. It exists so the matcher never has to touch the durable store
// or recompile a mask source string on the hot path.
package maskset

import (
	"sort"

	"maskwatch/internal/mask"
	"maskwatch/internal/store"
)

// Entry is one active mask: its catalog row plus the compiled predicate
// derived from Row.Raw.
type Entry struct {
	Row     store.Mask
	Compile *mask.Compiled
}

// Compiler compiles a raw mask source string, matching mask.Compile's
// signature. Exists so maskset can be tested against a stub compiler
// independent of the real regex engine.
type Compiler func(raw string) (*mask.Compiled, error)

// Set is an ordered id -> Entry map, always kept sorted ascending by id.
// Not safe for concurrent use; the owning goroutine (the single-actor
// engine loop) serializes all access.
type Set struct {
	compile Compiler
	entries map[uint64]Entry
	order   []uint64 // kept sorted ascending
}

// New returns an empty Set using compile to turn catalog rows into
// predicates.
func New(compile Compiler) *Set {
	return &Set{
		compile: compile,
		entries: make(map[uint64]Entry),
	}
}

// Rebuild discards the current set and recompiles every row in rows. Rows
// whose source fails to compile are skipped; the caller is expected to log
// them (they were accepted into the catalog at add-time, so a compile
// failure here would indicate a corrupt row or a regex engine change).
func (s *Set) Rebuild(rows []store.Mask) []error {
	s.entries = make(map[uint64]Entry, len(rows))
	s.order = s.order[:0]

	var errs []error
	for _, row := range rows {
		c, err := s.compile(row.Raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.entries[row.ID] = Entry{Row: row, Compile: c}
		s.order = append(s.order, row.ID)
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	return errs
}

// Insert compiles row.Raw and adds it to the set in sorted position. Used
// when a mask is added while already enabled, or toggled enabled.
func (s *Set) Insert(row store.Mask) error {
	c, err := s.compile(row.Raw)
	if err != nil {
		return err
	}
	if _, exists := s.entries[row.ID]; !exists {
		i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= row.ID })
		s.order = append(s.order, 0)
		copy(s.order[i+1:], s.order[i:])
		s.order[i] = row.ID
	}
	s.entries[row.ID] = Entry{Row: row, Compile: c}
	return nil
}

// Remove drops id from the set (toggle->disabled or expire->disabled). A
// no-op if id is not present.
func (s *Set) Remove(id uint64) {
	if _, ok := s.entries[id]; !ok {
		return
	}
	delete(s.entries, id)
	i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= id })
	if i < len(s.order) && s.order[i] == id {
		s.order = append(s.order[:i], s.order[i+1:]...)
	}
}

// Get returns the Entry for id and whether it is active.
func (s *Set) Get(id uint64) (Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Len returns the number of active masks.
func (s *Set) Len() int { return len(s.order) }

// Each calls fn for every active entry in ascending id order. Iteration
// stops early if fn returns false.
func (s *Set) Each(fn func(Entry) bool) {
	for _, id := range s.order {
		if !fn(s.entries[id]) {
			return
		}
	}
}
