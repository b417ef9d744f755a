// Package activation maps objects to the behavior they run when activated
// and propagates activation along chain targets.
package activation

import (
	"go.uber.org/zap"

	"github.com/Faultbox/dfworld/internal/metrics"
	"github.com/Faultbox/dfworld/internal/sparse"
	"github.com/Faultbox/dfworld/pkg/objid"
)

// Flags are the action flag bits of a record.
type Flags uint32

const (
	// FlagChained marks doors, exits and flats.
	FlagChained Flags = 0x02
	// FlagNoChain stops activation from following the chain target.
	// Block files never set it.
	FlagNoChain Flags = 0x8000_0000
)

// Mover is the motion engine as seen by the registry.
type Mover interface {
	ActivateTranslate(id objid.ID) bool
	ActivateRotate(id objid.ID) bool
	ReleaseTranslate(id objid.ID)
	ReleaseRotate(id objid.ID)
}

// ExitHandler is called when an exit door is activated.
type ExitHandler interface {
	Exit(region, location int)
}

// ExitFunc adapts a function to ExitHandler.
type ExitFunc func(region, location int)

// Exit calls f.
func (f ExitFunc) Exit(region, location int) { f(region, location) }

// Entry is the registration of one object.
type Entry struct {
	ID       objid.ID
	Flags    Flags
	Target   objid.ID
	Behavior Behavior
	// Active is set while a mover started by this entry is running.
	Active bool
}

// Chains reports whether activating the entry also activates its target.
func (e Entry) Chains() bool {
	return e.Target.Valid() && e.Flags&FlagNoChain == 0
}

// Registry holds the activation entries of every loaded object.
type Registry struct {
	entries *sparse.Store[Entry]
	mover   Mover
	exits   ExitHandler

	queue       []objid.ID
	visited     map[objid.ID]struct{}
	dispatching bool

	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithExitHandler sets the handler for exit doors.
func WithExitHandler(h ExitHandler) Option {
	return func(r *Registry) { r.exits = h }
}

// WithLogger sets the registry logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMetrics records activations and chain cycles.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates a registry that drives mover.
func New(mover Mover, opts ...Option) *Registry {
	r := &Registry{
		entries: sparse.New[Entry](),
		mover:   mover,
		visited: make(map[objid.ID]struct{}),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allocate registers b for id. An existing registration is released first.
func (r *Registry) Allocate(id objid.ID, flags Flags, target objid.ID, b Behavior) {
	if old, ok := r.entries.Find(id); ok {
		r.release(id, old.Behavior)
	}
	r.entries.Insert(id, Entry{ID: id, Flags: flags, Target: target, Behavior: b})
	r.metrics.SetRegistryEntries(r.entries.Len())
}

// Deallocate releases and removes the entries of ids. Unknown ids are ignored.
func (r *Registry) Deallocate(ids ...objid.ID) {
	for _, id := range ids {
		e, ok := r.entries.Take(id)
		if !ok {
			continue
		}
		r.release(id, e.Behavior)
	}
	r.metrics.SetRegistryEntries(r.entries.Len())
}

func (r *Registry) release(id objid.ID, b Behavior) {
	switch b.(type) {
	case Translate:
		r.mover.ReleaseTranslate(id)
	case Rotate, Door:
		r.mover.ReleaseRotate(id)
	}
}

// Activate runs the behavior of id and then of every object reached through
// chain targets. Each object runs at most once per cascade; a repeat is a
// cycle in the block data and is logged. Calls made while a cascade is
// running join that cascade.
func (r *Registry) Activate(id objid.ID) {
	r.queue = append(r.queue, id)
	if r.dispatching {
		return
	}
	r.dispatching = true
	defer func() {
		r.dispatching = false
		r.queue = r.queue[:0]
		clear(r.visited)
	}()

	for i := 0; i < len(r.queue); i++ {
		cur := r.queue[i]
		e, ok := r.entries.Find(cur)
		if !ok {
			continue
		}
		if _, seen := r.visited[cur]; seen {
			r.log.Warn("activation cycle", zap.Stringer("id", cur), zap.Stringer("origin", id))
			r.metrics.ChainCycle()
			continue
		}
		r.visited[cur] = struct{}{}

		entry := *e
		started := r.dispatch(entry)
		r.metrics.Activation()
		if started {
			if e, ok := r.entries.Find(cur); ok {
				e.Active = true
			}
		}
		if entry.Chains() {
			r.queue = append(r.queue, entry.Target)
		}
	}
}

func (r *Registry) dispatch(e Entry) bool {
	switch b := e.Behavior.(type) {
	case Translate:
		return r.mover.ActivateTranslate(e.ID)
	case Rotate, Door:
		return r.mover.ActivateRotate(e.ID)
	case Link:
	case ExitDoor:
		if r.exits == nil {
			r.log.Info("exit activated without handler",
				zap.Stringer("id", e.ID), zap.Int("region", b.Region), zap.Int("location", b.Location))
			return false
		}
		r.exits.Exit(b.Region, b.Location)
	case Unknown:
		r.log.Debug("inert action activated", zap.Stringer("id", e.ID), zap.Uint8("type", b.Type))
	}
	return false
}

// Deactivate is the completion signal for the mover of id.
func (r *Registry) Deactivate(id objid.ID) {
	e, ok := r.entries.Find(id)
	if !ok {
		return
	}
	e.Active = false
	r.log.Debug("activation finished", zap.Stringer("id", id), zap.Stringer("behavior", e.Behavior))
}

// Has reports whether id is registered.
func (r *Registry) Has(id objid.ID) bool {
	return r.entries.Has(id)
}

// Entry returns a copy of the registration of id.
func (r *Registry) Entry(id objid.ID) (Entry, bool) {
	e, ok := r.entries.Find(id)
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// IsActive reports whether id has a running mover it started.
func (r *Registry) IsActive(id objid.ID) bool {
	e, ok := r.entries.Find(id)
	return ok && e.Active
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []objid.ID {
	return r.entries.IDs()
}

// Len returns the number of registered objects.
func (r *Registry) Len() int {
	return r.entries.Len()
}
