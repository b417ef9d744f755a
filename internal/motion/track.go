package motion

import (
	"github.com/Faultbox/dfworld/internal/sparse"
	"github.com/Faultbox/dfworld/pkg/objid"
)

// running is a mover record plus the time it has been animating.
type running[T any] struct {
	data    T
	elapsed float32
}

// track holds the four state buckets of one animation kind. An allocated
// object is in exactly one of them.
type track[T any] struct {
	start   *sparse.Store[T]
	forward *sparse.Store[running[T]]
	end     *sparse.Store[T]
	reverse *sparse.Store[running[T]]
}

func newTrack[T any]() *track[T] {
	return &track[T]{
		start:   sparse.New[T](),
		forward: sparse.New[running[T]](),
		end:     sparse.New[T](),
		reverse: sparse.New[running[T]](),
	}
}

func (t *track[T]) allocate(id objid.ID, d T) {
	t.release(id)
	t.start.Insert(id, d)
}

func (t *track[T]) release(id objid.ID) bool {
	a := t.start.Remove(id)
	b := t.forward.Remove(id)
	c := t.end.Remove(id)
	d := t.reverse.Remove(id)
	return a || b || c || d
}

// activate flips a resting record into its active bucket. Records that are
// already moving, or were never allocated, are left alone.
func (t *track[T]) activate(id objid.ID) (Phase, bool) {
	if d, ok := t.start.Take(id); ok {
		t.forward.Insert(id, running[T]{data: d})
		return ActiveForward, true
	}
	if d, ok := t.end.Take(id); ok {
		t.reverse.Insert(id, running[T]{data: d})
		return ActiveReverse, true
	}
	return 0, false
}

func (t *track[T]) phase(id objid.ID) (Phase, bool) {
	switch {
	case t.start.Has(id):
		return AtStart, true
	case t.forward.Has(id):
		return ActiveForward, true
	case t.end.Has(id):
		return AtEnd, true
	case t.reverse.Has(id):
		return ActiveReverse, true
	}
	return 0, false
}

// buckets returns how many of the four buckets hold id.
func (t *track[T]) buckets(id objid.ID) int {
	n := 0
	for _, ok := range []bool{t.start.Has(id), t.forward.Has(id), t.end.Has(id), t.reverse.Has(id)} {
		if ok {
			n++
		}
	}
	return n
}

func (t *track[T]) active() int {
	return t.forward.Len() + t.reverse.Len()
}

func (t *track[T]) progress(id objid.ID, duration func(T) float32) (float32, bool) {
	if t.start.Has(id) {
		return 0, true
	}
	if t.end.Has(id) {
		return 1, true
	}
	if r, ok := t.forward.Find(id); ok {
		return fraction(r.elapsed, duration(r.data)), true
	}
	if r, ok := t.reverse.Find(id); ok {
		return 1 - fraction(r.elapsed, duration(r.data)), true
	}
	return 0, false
}

// tick advances every active record by dt, hands the new progress to apply,
// and moves finished records to the resting bucket on the far side before
// calling done.
func (t *track[T]) tick(dt float32, duration func(T) float32, apply func(objid.ID, T, float32), done func(objid.ID)) {
	t.forward.Each(func(id objid.ID, r *running[T]) bool {
		frac, finished := advance(&r.elapsed, dt, duration(r.data))
		d := r.data
		apply(id, d, frac)
		if finished {
			t.forward.Remove(id)
			t.end.Insert(id, d)
			done(id)
		}
		return true
	})
	t.reverse.Each(func(id objid.ID, r *running[T]) bool {
		frac, finished := advance(&r.elapsed, dt, duration(r.data))
		d := r.data
		apply(id, d, 1-frac)
		if finished {
			t.reverse.Remove(id)
			t.start.Insert(id, d)
			done(id)
		}
		return true
	})
}

// advance adds dt to elapsed, clamped to duration, and returns the completed
// fraction. A non-positive duration completes at once.
func advance(elapsed *float32, dt, duration float32) (float32, bool) {
	if !(dt > 0) {
		dt = 0
	}
	if !(duration > 0) {
		*elapsed = 0
		return 1, true
	}
	*elapsed = min(*elapsed+dt, duration)
	return *elapsed / duration, *elapsed >= duration
}

func fraction(elapsed, duration float32) float32 {
	if !(duration > 0) {
		return 1
	}
	return elapsed / duration
}
