// Package rdbtest builds synthetic dungeon blocks for tests.
package rdbtest

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Faultbox/dfworld/pkg/formats"
)

// Action describes an action sub-record.
type Action struct {
	Type      formats.RDBActionType
	Axis      byte
	Duration  float32 // Seconds, stored in 1/16 s steps
	Magnitude uint16
	Target    int32 // Record offset; use Builder.Link to point at a later record
	Raw       *[5]byte
}

// Model describes a model payload.
type Model struct {
	XRot, YRot, ZRot int32
	Index            uint16
	Flags            uint32
	Sound            uint8
	Action           *Action
}

// Flat describes a flat payload.
type Flat struct {
	Texture uint16
	Gender  uint16
	Faction uint16
	Unknown uint8
	Action  *Action
}

type objectRecord struct {
	Next, Prev int32
	X, Y, Z    int32
	Type       uint8
	Payload    uint32
}

type modelRecord struct {
	XRot, YRot, ZRot int32
	ModelIndex       uint16
	ActionFlags      uint32
	SoundID          uint8
	ActionOffset     int32
}

type flatRecord struct {
	Texture      uint16
	Gender       uint16
	FactionID    uint16
	ActionOffset int32
	Unknown      uint8
}

type actionRecord struct {
	Data   [5]byte
	Target int32
	Type   uint8
}

const (
	nextField   = 0
	targetField = 5
)

// Builder lays out a block: header, root grid, then records in the order
// they are added.
type Builder struct {
	Header  formats.RDBHeader
	buf     []byte
	cells   [][]int32
	actions map[int32]int32 // object offset -> action offset
}

// New returns a builder for a width x height root grid with every model
// slot unused.
func New(width, height int) *Builder {
	b := &Builder{
		buf:     make([]byte, formats.RDBHeaderSize+width*height*4),
		cells:   make([][]int32, width*height),
		actions: make(map[int32]int32),
	}
	b.Header.Width = uint32(width)
	b.Header.Height = uint32(height)
	b.Header.ObjectRootOffset = formats.RDBHeaderSize
	for i := range b.Header.ModelData {
		b.Header.ModelData[i][0] = 0xFF
	}
	return b
}

// SetDescriptor fills a model slot, e.g. SetDescriptor(3, "00012DOR").
func (b *Builder) SetDescriptor(slot int, desc string) {
	var d formats.ModelDescriptor
	copy(d[:], desc)
	b.Header.ModelData[slot] = d
}

// AddModel appends a model record to the list of cell and returns its offset.
func (b *Builder) AddModel(cell int, x, y, z int32, m Model) int32 {
	off := b.object(cell, x, y, z, formats.RDBObjectModel)
	payload := b.append(modelRecord{
		XRot: m.XRot, YRot: m.YRot, ZRot: m.ZRot,
		ModelIndex:  m.Index,
		ActionFlags: m.Flags,
		SoundID:     m.Sound,
	})
	b.putPayload(off, payload)
	if m.Action != nil {
		b.attach(off, payload+12+2+4+1, m.Action)
	}
	return off
}

// AddFlat appends a flat record to the list of cell and returns its offset.
func (b *Builder) AddFlat(cell int, x, y, z int32, f Flat) int32 {
	off := b.object(cell, x, y, z, formats.RDBObjectFlat)
	payload := b.append(flatRecord{
		Texture:   f.Texture,
		Gender:    f.Gender,
		FactionID: f.Faction,
		Unknown:   f.Unknown,
	})
	b.putPayload(off, payload)
	if f.Action != nil {
		b.attach(off, payload+6, f.Action)
	}
	return off
}

// AddLight appends a light record, which carries no payload the decoder reads.
func (b *Builder) AddLight(cell int, x, y, z int32) int32 {
	off := b.object(cell, x, y, z, formats.RDBObjectLight)
	b.putPayload(off, b.append([4]byte{}))
	return off
}

// Link points the action of from at the record to.
func (b *Builder) Link(from, to int32) {
	act, ok := b.actions[from]
	if !ok {
		panic(fmt.Sprintf("rdbtest: object 0x%x has no action", from))
	}
	b.put32(act+targetField, uint32(to))
}

// SetNext overwrites the next pointer of a record, for building broken lists.
func (b *Builder) SetNext(offset, next int32) {
	b.put32(offset+nextField, uint32(next))
}

// AddUnknownList appends an n node unknown-offset chain and returns the
// values the decoder is expected to read from it.
func (b *Builder) AddUnknownList(n int) []int32 {
	if n == 0 {
		return nil
	}
	first := int32(len(b.buf))
	var want []int32
	for i := 0; i < n; i++ {
		next := int32(0)
		if i < n-1 {
			next = first + int32(i+1)*4
		}
		b.append(next)
		want = append(want, next)
	}
	b.Header.UnknownOffset = uint32(first)
	return want
}

// Trace returns the traversal the decoder should produce.
func (b *Builder) Trace() []formats.RDBTraceStep {
	var steps []formats.RDBTraceStep
	for cell, offs := range b.cells {
		for _, off := range offs {
			steps = append(steps, formats.RDBTraceStep{Root: cell, Offset: off})
		}
	}
	return steps
}

// Bytes returns the encoded block.
func (b *Builder) Bytes() []byte {
	var hdr bytes.Buffer
	if err := binary.Write(&hdr, binary.LittleEndian, &b.Header); err != nil {
		panic(err)
	}
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	copy(out, hdr.Bytes())
	return out
}

func (b *Builder) object(cell int, x, y, z int32, t formats.RDBObjectType) int32 {
	prev := int32(0)
	if n := len(b.cells[cell]); n > 0 {
		prev = b.cells[cell][n-1]
	}
	off := b.append(objectRecord{Prev: prev, X: x, Y: y, Z: z, Type: uint8(t)})
	if prev == 0 {
		b.put32(int32(formats.RDBHeaderSize+cell*4), uint32(off))
	} else {
		b.put32(prev+nextField, uint32(off))
	}
	b.cells[cell] = append(b.cells[cell], off)
	return off
}

func (b *Builder) putPayload(obj, payload int32) {
	b.put32(obj+21, uint32(payload))
}

// attach writes the action record and stores its offset at field.
func (b *Builder) attach(obj, field int32, a *Action) {
	rec := actionRecord{Target: a.Target, Type: uint8(a.Type)}
	if a.Raw != nil {
		rec.Data = *a.Raw
	} else {
		ticks := uint16(a.Duration * 16)
		rec.Data = [5]byte{a.Axis, byte(ticks), byte(ticks >> 8), byte(a.Magnitude), byte(a.Magnitude >> 8)}
	}
	off := b.append(rec)
	b.put32(field, uint32(off))
	b.actions[obj] = off
}

func (b *Builder) append(v any) int32 {
	off := int32(len(b.buf))
	var rec bytes.Buffer
	if err := binary.Write(&rec, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	b.buf = append(b.buf, rec.Bytes()...)
	return off
}

func (b *Builder) put32(at int32, v uint32) {
	binary.LittleEndian.PutUint32(b.buf[at:], v)
}
