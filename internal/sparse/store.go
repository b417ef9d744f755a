// Package sparse provides an ID-keyed store for per-object data.
//
// Object IDs are composite and far apart, so values live in a dense slice
// indexed through a map rather than in an array sized by the largest ID.
package sparse

import (
	"errors"
	"fmt"

	"github.com/Faultbox/dfworld/pkg/objid"
)

// ErrNotFound is returned when an ID has no entry.
var ErrNotFound = errors.New("object not found")

// Store holds one value per object ID in insertion order.
//
// Erase leaves a tombstone in the dense slice; tombstones are compacted away
// once they outnumber live entries and no iteration is running. Pointers
// returned by Insert, Find and Get stay valid until the next Insert or Erase
// on the same store.
type Store[V any] struct {
	index     map[objid.ID]int
	ids       []objid.ID
	values    []V
	live      []bool
	dead      int
	iterating int
}

// New returns an empty store.
func New[V any]() *Store[V] {
	return &Store[V]{index: make(map[objid.ID]int)}
}

// Insert stores v under id and returns a pointer to the stored value.
// An existing entry is replaced in place and keeps its position.
func (s *Store[V]) Insert(id objid.ID, v V) *V {
	if i, ok := s.index[id]; ok {
		s.values[i] = v
		return &s.values[i]
	}
	s.index[id] = len(s.ids)
	s.ids = append(s.ids, id)
	s.values = append(s.values, v)
	s.live = append(s.live, true)
	return &s.values[len(s.values)-1]
}

// Find returns the value stored for id.
func (s *Store[V]) Find(id objid.ID) (*V, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.values[i], true
}

// Get is Find for callers that treat absence as an error.
func (s *Store[V]) Get(id objid.ID) (*V, error) {
	v, ok := s.Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, id)
	}
	return v, nil
}

// Has reports whether id has an entry.
func (s *Store[V]) Has(id objid.ID) bool {
	_, ok := s.index[id]
	return ok
}

// Erase removes id's entry. It fails with ErrNotFound when there is none.
func (s *Store[V]) Erase(id objid.ID) error {
	if !s.Remove(id) {
		return fmt.Errorf("%w: %v", ErrNotFound, id)
	}
	return nil
}

// Remove deletes id's entry if present and reports whether it did.
func (s *Store[V]) Remove(id objid.ID) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	delete(s.index, id)

	var zero V
	s.values[i] = zero
	s.live[i] = false
	s.dead++
	s.maybeCompact()
	return true
}

// Take removes id's entry and returns its value.
func (s *Store[V]) Take(id objid.ID) (V, bool) {
	var v V
	p, ok := s.Find(id)
	if !ok {
		return v, false
	}
	v = *p
	s.Remove(id)
	return v, true
}

// Len returns the number of live entries.
func (s *Store[V]) Len() int {
	return len(s.index)
}

// IDs returns the live IDs in storage order.
func (s *Store[V]) IDs() []objid.ID {
	ids := make([]objid.ID, 0, len(s.index))
	for i, id := range s.ids {
		if s.live[i] {
			ids = append(ids, id)
		}
	}
	return ids
}

// Each calls fn for every live entry in insertion order until fn returns false.
//
// fn may erase the entry it was called with (or any other entry); the walk
// continues with the next live entry. Entries inserted during the walk are
// not visited.
func (s *Store[V]) Each(fn func(id objid.ID, v *V) bool) {
	s.iterating++
	defer func() {
		s.iterating--
		s.maybeCompact()
	}()

	n := len(s.ids)
	for i := 0; i < n; i++ {
		if !s.live[i] {
			continue
		}
		if !fn(s.ids[i], &s.values[i]) {
			return
		}
	}
}

// Clear drops every entry.
func (s *Store[V]) Clear() {
	clear(s.index)
	if s.iterating > 0 {
		var zero V
		for i := range s.live {
			if s.live[i] {
				s.live[i] = false
				s.values[i] = zero
				s.dead++
			}
		}
		return
	}
	s.ids = s.ids[:0]
	s.values = s.values[:0]
	s.live = s.live[:0]
	s.dead = 0
}

func (s *Store[V]) maybeCompact() {
	if s.iterating > 0 || s.dead == 0 || s.dead*2 < len(s.ids) {
		return
	}

	j := 0
	for i := range s.ids {
		if !s.live[i] {
			continue
		}
		s.ids[j] = s.ids[i]
		s.values[j] = s.values[i]
		s.live[j] = true
		s.index[s.ids[j]] = j
		j++
	}

	var zero V
	for i := j; i < len(s.values); i++ {
		s.values[i] = zero
	}
	s.ids = s.ids[:j]
	s.values = s.values[:j]
	s.live = s.live[:j]
	s.dead = 0
}
