// Package engine ties placement, activation and motion together behind one
// owned instance. A renderer and a mesh provider are reached only through the
// interfaces defined here.
package engine

import (
	"go.uber.org/zap"

	"github.com/Faultbox/dfworld/internal/activation"
	"github.com/Faultbox/dfworld/internal/config"
	"github.com/Faultbox/dfworld/internal/metrics"
	"github.com/Faultbox/dfworld/internal/motion"
	"github.com/Faultbox/dfworld/internal/placement"
	"github.com/Faultbox/dfworld/pkg/math"
	"github.com/Faultbox/dfworld/pkg/objid"
)

// NodeKind tells the renderer what sort of node is being attached.
type NodeKind uint8

const (
	NodeModel NodeKind = iota
	NodeFlat
)

func (k NodeKind) String() string {
	if k == NodeFlat {
		return "flat"
	}
	return "model"
}

// Renderer is the scene graph the engine pushes object state into.
type Renderer interface {
	Attach(id objid.ID, node any, kind NodeKind)
	Remove(ids ...objid.ID)
	SetPose(id objid.ID, pose placement.Pose)
	SetFrame(id objid.ID, frame int)
}

// Meshes resolves model and flat resources into renderer nodes.
type Meshes interface {
	Model(index int) (any, error)
	// Flat returns the node for a flat texture and its animation frame count.
	Flat(texture uint16) (node any, frames int, err error)
}

type nopRenderer struct{}

func (nopRenderer) Attach(objid.ID, any, NodeKind)   {}
func (nopRenderer) Remove(...objid.ID)               {}
func (nopRenderer) SetPose(objid.ID, placement.Pose) {}
func (nopRenderer) SetFrame(objid.ID, int)           {}

type nopMeshes struct{}

func (nopMeshes) Model(int) (any, error)        { return nil, nil }
func (nopMeshes) Flat(uint16) (any, int, error) { return nil, 1, nil }

// Options holds the collaborators of an Engine. Every field is optional.
type Options struct {
	Renderer Renderer
	Meshes   Meshes
	Exits    activation.ExitHandler
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Engine owns one set of world state stores.
type Engine struct {
	cfg      config.EngineConfig
	renderer Renderer
	meshes   Meshes
	log      *zap.Logger
	metrics  *metrics.Metrics

	places   *placement.Store
	registry *activation.Registry
	motion   *motion.Engine
	frames   *motion.Frames

	scopes uint32
}

// New creates an engine. Missing collaborators fall back to no-ops.
func New(cfg config.EngineConfig, opts Options) *Engine {
	e := &Engine{
		cfg:      cfg,
		renderer: opts.Renderer,
		meshes:   opts.Meshes,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
	if e.renderer == nil {
		e.renderer = nopRenderer{}
	}
	if e.meshes == nil {
		e.meshes = nopMeshes{}
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}

	e.places = placement.New()
	e.motion = motion.New(e.places,
		motion.WithPoseSink(e.renderer),
		motion.WithLogger(e.log.Named("motion")),
		motion.WithMetrics(e.metrics))
	regOpts := []activation.Option{
		activation.WithLogger(e.log.Named("registry")),
		activation.WithMetrics(e.metrics),
	}
	if opts.Exits != nil {
		regOpts = append(regOpts, activation.WithExitHandler(opts.Exits))
	}
	e.registry = activation.New(e.motion, regOpts...)
	e.motion.OnComplete(e.registry.Deactivate)
	e.frames = motion.NewFrames(e.renderer)
	return e
}

// Config returns the engine settings.
func (e *Engine) Config() config.EngineConfig { return e.cfg }

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger { return e.log }

// Metrics returns the engine metrics, possibly nil.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// Meshes returns the mesh provider.
func (e *Engine) Meshes() Meshes { return e.meshes }

// Places returns the placement store.
func (e *Engine) Places() *placement.Store { return e.places }

// Registry returns the activation registry.
func (e *Engine) Registry() *activation.Registry { return e.registry }

// Motion returns the mover state machines.
func (e *Engine) Motion() *motion.Engine { return e.motion }

// Frames returns the flat animation table.
func (e *Engine) Frames() *motion.Frames { return e.frames }

// NextScope hands out the scope bits for a newly loaded block.
func (e *Engine) NextScope() objid.ID {
	e.scopes++
	return objid.Scope(e.scopes)
}

// Attach places id and hands its node to the renderer.
func (e *Engine) Attach(id objid.ID, node any, kind NodeKind, pose placement.Pose) {
	e.places.SetPos(id, pose.Point, pose.Orientation)
	e.renderer.Attach(id, node, kind)
	e.renderer.SetPose(id, pose)
}

// AnimateFlat cycles the frames of a flat. Single frame flats are ignored.
func (e *Engine) AnimateFlat(id objid.ID, frames int) {
	e.frames.Allocate(id, frames, e.cfg.FlatFrameTime)
}

// AllocateTranslate registers a sliding mover that rests at origin.
func (e *Engine) AllocateTranslate(id objid.ID, flags activation.Flags, target objid.ID, sound uint8, origin, amount math.Vec3, duration float32) {
	e.registry.Allocate(id, flags, target, activation.Translate{})
	e.motion.AllocateTranslate(id, sound, origin, amount, duration)
}

// AllocateRotate registers a turning mover placed with the file rotation originRot.
func (e *Engine) AllocateRotate(id objid.ID, flags activation.Flags, target objid.ID, sound uint8, originRot, amount math.Vec3, duration float32) {
	e.registry.Allocate(id, flags, target, activation.Rotate{})
	e.motion.AllocateRotate(id, sound, originRot, amount, duration)
}

// AllocateLink registers an object that only forwards activation to target.
func (e *Engine) AllocateLink(id objid.ID, flags activation.Flags, target objid.ID) {
	e.registry.Allocate(id, flags, target, activation.Link{})
}

// AllocateDoor registers a door that swings open about Y by the configured angle.
func (e *Engine) AllocateDoor(id objid.ID, flags activation.Flags, sound uint8, originRot math.Vec3) {
	e.registry.Allocate(id, flags, objid.None, activation.Door{})
	e.motion.AllocateRotate(id, sound, originRot, math.Vec3{Y: e.cfg.DoorSwing}, e.cfg.DoorDuration)
}

// AllocateExit registers a door leading out to the given location.
func (e *Engine) AllocateExit(id objid.ID, flags activation.Flags, region, location int) {
	e.registry.Allocate(id, flags, objid.None, activation.ExitDoor{Region: region, Location: location})
}

// AllocateUnknown registers an action the engine cannot run.
func (e *Engine) AllocateUnknown(id objid.ID, flags activation.Flags, target objid.ID, typ byte, raw [5]byte) {
	e.registry.Allocate(id, flags, target, activation.Unknown{Type: typ, Raw: raw})
}

// Deallocate forgets ids everywhere: activation entries and their movers,
// flat animations, placement and renderer nodes.
func (e *Engine) Deallocate(ids ...objid.ID) {
	if len(ids) == 0 {
		return
	}
	e.registry.Deallocate(ids...)
	e.frames.Release(ids...)
	e.places.Deallocate(ids...)
	e.renderer.Remove(ids...)
}

// Activate triggers id and whatever it is chained to.
func (e *Engine) Activate(id objid.ID) {
	e.registry.Activate(id)
}

// Tick advances movers and flat animations by dt seconds.
func (e *Engine) Tick(dt float32) {
	e.motion.Tick(dt)
	e.frames.Tick(dt)
}

// Pose returns the current pose of id.
func (e *Engine) Pose(id objid.ID) (placement.Pose, error) {
	return e.places.Get(id)
}
