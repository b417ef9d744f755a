// Package world instantiates decoded dungeon blocks into an engine.
package world

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/Faultbox/dfworld/internal/activation"
	"github.com/Faultbox/dfworld/internal/engine"
	"github.com/Faultbox/dfworld/internal/placement"
	"github.com/Faultbox/dfworld/pkg/formats"
	"github.com/Faultbox/dfworld/pkg/math"
	"github.com/Faultbox/dfworld/pkg/objid"
)

// BlockRef names a block file and where it sits in its dungeon.
type BlockRef struct {
	Name     string  // e.g. "N0000012.RDB"
	X, Z     float32 // Block origin in world units
	Region   int     // Passed to exit doors
	Location int
}

// Block is a loaded dungeon block.
type Block struct {
	ref   BlockRef
	eng   *engine.Engine
	log   *zap.Logger
	scope objid.ID
	rdb   *formats.RDB

	ids     []objid.ID
	objects map[objid.ID]*formats.RDBObject
	unknown map[formats.RDBActionType]bool
}

// LoadBlock decodes data and registers every object of the block with eng.
// A block either loads completely or leaves nothing behind.
func LoadBlock(eng *engine.Engine, data []byte, ref BlockRef) (*Block, error) {
	log := eng.Logger().Named("world").With(zap.String("block", ref.Name))

	rdb, err := formats.ParseRDB(data)
	if err != nil {
		eng.Metrics().BlockFailed()
		return nil, fmt.Errorf("decoding block %s: %w", ref.Name, err)
	}

	b := &Block{
		ref:     ref,
		eng:     eng,
		log:     log,
		scope:   eng.NextScope(),
		rdb:     rdb,
		objects: make(map[objid.ID]*formats.RDBObject),
		unknown: make(map[formats.RDBActionType]bool),
	}

	base := math.Vec3{X: ref.X, Z: ref.Z}
	for i := range rdb.Objects {
		obj := &rdb.Objects[i]
		if err := b.load(obj, base); err != nil {
			b.Unload()
			eng.Metrics().BlockFailed()
			return nil, fmt.Errorf("loading block %s: %w", ref.Name, err)
		}
	}

	eng.Metrics().BlockLoaded()
	log.Debug("block loaded",
		zap.Stringer("scope", b.scope),
		zap.Int("objects", len(b.ids)))
	return b, nil
}

func (b *Block) load(obj *formats.RDBObject, base math.Vec3) error {
	id := objid.Make(b.scope, obj.Offset)
	pos := base.Add(obj.Position())

	switch obj.Type {
	case formats.RDBObjectModel:
		b.track(id, obj)
		return b.loadModel(id, obj.Model, pos)
	case formats.RDBObjectFlat:
		b.track(id, obj)
		return b.loadFlat(id, obj.Flat, pos)
	}
	return nil
}

func (b *Block) track(id objid.ID, obj *formats.RDBObject) {
	b.ids = append(b.ids, id)
	b.objects[id] = obj
}

func (b *Block) loadModel(id objid.ID, m *formats.RDBModel, pos math.Vec3) error {
	flags := activation.Flags(m.ActionFlags)
	rot := m.Rotation()
	if m.Action != nil {
		b.loadAction(id, m.Action, flags, m.SoundID, pos, rot)
	}

	pose := placement.Pose{Orientation: math.BuildRotation(rot), Point: pos}
	if !m.Descriptor.Valid() {
		// Nothing to draw, but movers still need a pose to write to.
		b.eng.Places().SetPos(id, pose.Point, pose.Orientation)
		return nil
	}

	index := m.Descriptor.MeshIndex()
	node, err := b.eng.Meshes().Model(index)
	if err != nil {
		return fmt.Errorf("model %d for object %v: %w", index, id, err)
	}

	switch {
	case m.ActionOffset <= 0 && m.Descriptor.IsDoor():
		b.eng.AllocateDoor(id, flags|activation.FlagChained, m.SoundID, rot)
	case m.Descriptor.IsExit():
		if m.Action != nil {
			b.log.Debug("exit replaces action", zap.Stringer("id", id), zap.Stringer("type", m.Action.Type))
		}
		b.eng.AllocateExit(id, flags|activation.FlagChained, b.ref.Region, b.ref.Location)
	}
	b.eng.Attach(id, node, engine.NodeModel, pose)
	return nil
}

func (b *Block) loadFlat(id objid.ID, f *formats.RDBFlat, pos math.Vec3) error {
	if f.Action != nil {
		b.loadAction(id, f.Action, activation.FlagChained, 0, pos, math.Vec3{})
	}

	node, frames, err := b.eng.Meshes().Flat(f.Texture)
	if err != nil {
		return fmt.Errorf("flat 0x%04x for object %v: %w", f.Texture, id, err)
	}
	b.eng.Attach(id, node, engine.NodeFlat, placement.Pose{Orientation: math.QuatIdentity(), Point: pos})
	b.eng.AnimateFlat(id, frames)
	return nil
}

func (b *Block) loadAction(id objid.ID, a *formats.RDBAction, flags activation.Flags, sound uint8, pos, rot math.Vec3) {
	target := id.Sibling(a.Target)
	switch a.Type {
	case formats.RDBActionTranslate:
		b.eng.AllocateTranslate(id, flags, target, sound, pos, a.Amount(), a.Duration())
	case formats.RDBActionRotate:
		b.eng.AllocateRotate(id, flags, target, sound, rot, a.Amount(), a.Duration())
	case formats.RDBActionLink:
		b.eng.AllocateLink(id, flags, target)
	default:
		b.eng.AllocateUnknown(id, flags, target, byte(a.Type), a.Data)
		b.eng.Metrics().UnknownAction(fmt.Sprintf("0x%02x", uint8(a.Type)))
		if !b.unknown[a.Type] {
			b.unknown[a.Type] = true
			b.log.Warn("unhandled action type",
				zap.String("type", fmt.Sprintf("0x%02x", uint8(a.Type))),
				zap.Stringer("id", id))
		}
	}
}

// Unload removes every object of the block from the engine. It is safe to
// call more than once.
func (b *Block) Unload() {
	if len(b.ids) == 0 {
		return
	}
	b.eng.Deallocate(b.ids...)
	b.log.Debug("block unloaded", zap.Int("objects", len(b.ids)))
	b.ids = nil
	b.objects = make(map[objid.ID]*formats.RDBObject)
}

// Name returns the block file name.
func (b *Block) Name() string { return b.ref.Name }

// Ref returns the reference the block was loaded from.
func (b *Block) Ref() BlockRef { return b.ref }

// Scope returns the scope bits shared by the block's object ids.
func (b *Block) Scope() objid.ID { return b.scope }

// RDB returns the decoded block.
func (b *Block) RDB() *formats.RDB { return b.rdb }

// IDs returns the ids of the block's models and flats in traversal order.
func (b *Block) IDs() []objid.ID {
	out := make([]objid.ID, len(b.ids))
	copy(out, b.ids)
	return out
}

// Object returns the record behind id.
func (b *Block) Object(id objid.ID) (*formats.RDBObject, bool) {
	obj, ok := b.objects[id]
	if !ok {
		b.log.Debug("object not in block", zap.Stringer("id", id))
		return nil, false
	}
	return obj, true
}

// ObjectByTexture returns the first flat using texture, or objid.None.
func (b *Block) ObjectByTexture(texture uint16) objid.ID {
	for _, id := range b.ids {
		if obj := b.objects[id]; obj.Flat != nil && obj.Flat.Texture == texture {
			return id
		}
	}
	b.log.Error("failed to find flat with texture", zap.String("texture", fmt.Sprintf("0x%04x", texture)))
	return objid.None
}

// Dump writes the block listing.
func (b *Block) Dump(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Block: %s scope=%v origin=(%g, %g)\n", b.ref.Name, b.scope, b.ref.X, b.ref.Z); err != nil {
		return err
	}
	return b.rdb.Dump(w)
}
