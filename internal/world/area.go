package world

import (
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/dfworld/internal/engine"
	"github.com/Faultbox/dfworld/internal/vfs"
	"github.com/Faultbox/dfworld/pkg/encoding"
	"github.com/Faultbox/dfworld/pkg/formats"
	"github.com/Faultbox/dfworld/pkg/objid"
)

// Area is the set of blocks the player is currently in.
type Area struct {
	eng    *engine.Engine
	src    vfs.Source
	log    *zap.Logger
	blocks []*Block
}

// NewArea returns an empty area reading block files from src.
func NewArea(eng *engine.Engine, src vfs.Source) *Area {
	return &Area{eng: eng, src: src, log: eng.Logger().Named("world")}
}

// Enter loads refs and replaces the current blocks with them. Every failing
// block is reported; on failure nothing new stays loaded and the current
// blocks are kept.
func (a *Area) Enter(refs []BlockRef) error {
	var (
		loaded []*Block
		err    error
	)
	for _, ref := range refs {
		b, loadErr := a.load(ref)
		if loadErr != nil {
			err = multierr.Append(err, loadErr)
			continue
		}
		loaded = append(loaded, b)
	}
	if err != nil {
		for _, b := range loaded {
			b.Unload()
		}
		a.log.Error("entering area failed", zap.Int("blocks", len(refs)), zap.Error(err))
		return err
	}

	a.Unload()
	a.blocks = loaded
	a.log.Info("entered area", zap.Int("blocks", len(loaded)))
	return nil
}

func (a *Area) load(ref BlockRef) (*Block, error) {
	data, err := a.src.Open(ref.Name)
	if err != nil {
		return nil, fmt.Errorf("opening block %s: %w", ref.Name, err)
	}
	return LoadBlock(a.eng, data, ref)
}

// Unload releases every block.
func (a *Area) Unload() {
	for _, b := range a.blocks {
		b.Unload()
	}
	a.blocks = nil
}

// Blocks returns the loaded blocks in load order.
func (a *Area) Blocks() []*Block {
	out := make([]*Block, len(a.blocks))
	copy(out, a.blocks)
	return out
}

// Block returns the loaded block with the given file name.
func (a *Area) Block(name string) (*Block, bool) {
	key := encoding.NormalizePath(name)
	for _, b := range a.blocks {
		if encoding.NormalizePath(b.Name()) == key {
			return b, true
		}
	}
	return nil, false
}

// Object finds the block owning id and the record behind it.
func (a *Area) Object(id objid.ID) (*Block, *formats.RDBObject, bool) {
	for _, b := range a.blocks {
		if b.Scope() != id.Scope() {
			continue
		}
		if obj, ok := b.Object(id); ok {
			return b, obj, true
		}
		break
	}
	a.log.Debug("object not loaded", zap.Stringer("id", id))
	return nil, nil, false
}

// Dump writes the listing of every loaded block.
func (a *Area) Dump(w io.Writer) error {
	if len(a.blocks) == 0 {
		_, err := fmt.Fprintln(w, "No area loaded")
		return err
	}
	for _, b := range a.blocks {
		if err := b.Dump(w); err != nil {
			return err
		}
	}
	return nil
}
