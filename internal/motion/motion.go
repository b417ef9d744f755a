// Package motion drives translate and rotate movers through their
// start, forward, end and reverse phases.
package motion

import (
	"go.uber.org/zap"

	"github.com/Faultbox/dfworld/internal/metrics"
	"github.com/Faultbox/dfworld/internal/placement"
	"github.com/Faultbox/dfworld/internal/sparse"
	"github.com/Faultbox/dfworld/pkg/math"
	"github.com/Faultbox/dfworld/pkg/objid"
)

// Kind selects the translate or rotate track.
type Kind uint8

const (
	KindTranslate Kind = iota
	KindRotate
)

func (k Kind) String() string {
	switch k {
	case KindTranslate:
		return "translate"
	case KindRotate:
		return "rotate"
	}
	return "unknown"
}

// Phase is the state of a mover within its track.
type Phase uint8

const (
	AtStart Phase = iota
	ActiveForward
	AtEnd
	ActiveReverse
)

func (p Phase) String() string {
	switch p {
	case AtStart:
		return "start"
	case ActiveForward:
		return "forward"
	case AtEnd:
		return "end"
	case ActiveReverse:
		return "reverse"
	}
	return "unknown"
}

// PoseSink receives every pose the engine writes. The renderer implements it.
type PoseSink interface {
	SetPose(id objid.ID, pose placement.Pose)
}

type translation struct {
	origin   math.Vec3
	amount   math.Vec3
	duration float32
}

type rotation struct {
	origin   math.Quat
	amount   math.Vec3
	duration float32
}

func (t translation) length() float32 { return t.duration }
func (r rotation) length() float32    { return r.duration }

// Engine owns the translate and rotate tracks and writes the animated pose
// into a placement store.
type Engine struct {
	places     *placement.Store
	sink       PoseSink
	translates *track[translation]
	rotates    *track[rotation]
	sounds     *sparse.Store[uint8]
	onComplete func(objid.ID)

	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithPoseSink mirrors pose writes to sink.
func WithPoseSink(sink PoseSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics records completed traversals and the active mover count.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine writing into places.
func New(places *placement.Store, opts ...Option) *Engine {
	e := &Engine{
		places:     places,
		translates: newTrack[translation](),
		rotates:    newTrack[rotation](),
		sounds:     sparse.New[uint8](),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnComplete sets the callback fired once each time a mover reaches either end.
func (e *Engine) OnComplete(fn func(objid.ID)) {
	e.onComplete = fn
}

// AllocateTranslate registers a translate mover at rest at origin.
// Reallocating an id replaces its previous translate record.
func (e *Engine) AllocateTranslate(id objid.ID, sound uint8, origin, amount math.Vec3, duration float32) {
	e.translates.allocate(id, translation{origin: origin, amount: amount, duration: duration})
	e.sounds.Insert(id, sound)
}

// AllocateRotate registers a rotate mover at rest. originRot is the file
// rotation triple the object was placed with.
func (e *Engine) AllocateRotate(id objid.ID, sound uint8, originRot, amount math.Vec3, duration float32) {
	e.rotates.allocate(id, rotation{origin: math.BuildRotation(originRot), amount: amount, duration: duration})
	e.sounds.Insert(id, sound)
}

// ReleaseTranslate drops the translate mover of id from every phase.
func (e *Engine) ReleaseTranslate(id objid.ID) {
	if e.translates.release(id) {
		e.dropSound(id)
	}
}

// ReleaseRotate drops the rotate mover of id from every phase.
func (e *Engine) ReleaseRotate(id objid.ID) {
	if e.rotates.release(id) {
		e.dropSound(id)
	}
}

func (e *Engine) dropSound(id objid.ID) {
	if e.translates.buckets(id) == 0 && e.rotates.buckets(id) == 0 {
		e.sounds.Remove(id)
	}
}

// ActivateTranslate starts a resting translate mover toward its other end.
// It reports false when the mover is already moving or does not exist.
func (e *Engine) ActivateTranslate(id objid.ID) bool {
	return e.activate(KindTranslate, id)
}

// ActivateRotate starts a resting rotate mover toward its other end.
func (e *Engine) ActivateRotate(id objid.ID) bool {
	return e.activate(KindRotate, id)
}

func (e *Engine) activate(kind Kind, id objid.ID) bool {
	var (
		phase Phase
		ok    bool
	)
	if kind == KindTranslate {
		phase, ok = e.translates.activate(id)
	} else {
		phase, ok = e.rotates.activate(id)
	}
	if !ok {
		return false
	}
	e.log.Debug("mover started",
		zap.Stringer("id", id),
		zap.Stringer("kind", kind),
		zap.Stringer("phase", phase))
	e.metrics.SetActiveMovers(e.ActiveCount())
	return true
}

// Tick advances every active mover by dt seconds.
func (e *Engine) Tick(dt float32) {
	e.translates.tick(dt, translation.length, e.applyTranslate, e.completer(KindTranslate))
	e.rotates.tick(dt, rotation.length, e.applyRotate, e.completer(KindRotate))
	e.metrics.SetActiveMovers(e.ActiveCount())
}

func (e *Engine) applyTranslate(id objid.ID, t translation, progress float32) {
	pt := t.origin
	if progress > 0 {
		pt = t.origin.Add(t.amount.Scale(min(progress, 1)))
	}
	e.places.SetPoint(id, pt)
	e.publish(id)
}

func (e *Engine) applyRotate(id objid.ID, r rotation, progress float32) {
	ori := r.origin
	if progress > 0 {
		ori = math.BuildRotationScaled(r.amount, min(progress, 1)).Mul(r.origin)
	}
	e.places.SetRotate(id, ori)
	e.publish(id)
}

func (e *Engine) publish(id objid.ID) {
	if e.sink == nil {
		return
	}
	if pose, err := e.places.Get(id); err == nil {
		e.sink.SetPose(id, pose)
	}
}

func (e *Engine) completer(kind Kind) func(objid.ID) {
	return func(id objid.ID) {
		e.log.Debug("mover finished", zap.Stringer("id", id), zap.Stringer("kind", kind))
		e.metrics.TraversalCompleted(kind.String())
		if e.onComplete != nil {
			e.onComplete(id)
		}
	}
}

// State returns the phase of the given mover.
func (e *Engine) State(kind Kind, id objid.ID) (Phase, bool) {
	if kind == KindTranslate {
		return e.translates.phase(id)
	}
	return e.rotates.phase(id)
}

// Progress returns how far the mover is from its start, 0 to 1.
func (e *Engine) Progress(kind Kind, id objid.ID) (float32, bool) {
	if kind == KindTranslate {
		return e.translates.progress(id, translation.length)
	}
	return e.rotates.progress(id, rotation.length)
}

// SoundID returns the sound attached to the mover of id.
func (e *Engine) SoundID(id objid.ID) (uint8, bool) {
	s, ok := e.sounds.Find(id)
	if !ok {
		return 0, false
	}
	return *s, true
}

// ActiveCount returns how many movers of either kind are animating.
func (e *Engine) ActiveCount() int {
	return e.translates.active() + e.rotates.active()
}
