package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Faultbox/dfworld/pkg/encoding"
	"github.com/Faultbox/dfworld/pkg/math"
	"github.com/Faultbox/dfworld/pkg/objid"
)

// RDB format errors.
var (
	ErrTruncatedRDBData = errors.New("truncated RDB data")
	ErrRDBCycle         = errors.New("RDB object list revisits a record")
	ErrRDBModelIndex    = errors.New("RDB model index out of range")
	ErrRDBTooLarge      = errors.New("RDB data too large for object ids")
)

// RDBModelSlots is the size of the model descriptor table of a dungeon block.
const RDBModelSlots = 750

// RDBHeaderSize is the encoded size of RDBHeader.
const RDBHeaderSize = 5*4 + RDBModelSlots*8 + RDBModelSlots*4 + 4*4

// RDBObjectType represents the kind of an object record.
type RDBObjectType uint8

const (
	RDBObjectModel RDBObjectType = 0x01 // 3D model
	RDBObjectLight RDBObjectType = 0x02 // Light source
	RDBObjectFlat  RDBObjectType = 0x03 // Billboard sprite
)

// String returns a human-readable object type name.
func (t RDBObjectType) String() string {
	switch t {
	case RDBObjectModel:
		return "Model"
	case RDBObjectLight:
		return "Light"
	case RDBObjectFlat:
		return "Flat"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
	}
}

// RDBActionType is the type tag of an action sub-record.
type RDBActionType uint8

const (
	RDBActionTranslate RDBActionType = 0x01
	RDBActionRotate    RDBActionType = 0x08
	RDBActionLink      RDBActionType = 0x1E
)

// String returns a human-readable action type name.
func (t RDBActionType) String() string {
	switch t {
	case RDBActionTranslate:
		return "Translate"
	case RDBActionRotate:
		return "Rotate"
	case RDBActionLink:
		return "Link"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
	}
}

// Known reports whether t is one of the recognised action types.
func (t RDBActionType) Known() bool {
	return t == RDBActionTranslate || t == RDBActionRotate || t == RDBActionLink
}

// Axis tables: index is the axis byte of the action data.
var (
	translateAxes = [7]math.Vec3{
		1: {X: 1}, 2: {X: -1},
		3: {Y: 1}, 4: {Y: -1},
		5: {Z: 1}, 6: {Z: -1},
	}
	rotateAxes = [7]math.Vec3{
		1: {X: 1}, 2: {X: -1},
		3: {Y: -1}, 4: {Y: 1},
		5: {Z: -1}, 6: {Z: 1},
	}
)

// RDBAction is an action sub-record: what happens when the object is activated.
type RDBAction struct {
	Offset int32   // Record offset inside the block
	Data   [5]byte // Axis, duration (2 bytes), magnitude (2 bytes)
	Target int32   // Linked record offset, non-positive for none
	Type   RDBActionType
}

// Magnitude returns the movement distance or angle in file units.
func (a RDBAction) Magnitude() float32 {
	return float32(uint16(a.Data[3]) | uint16(a.Data[4])<<8)
}

// Duration returns the animation time in seconds.
func (a RDBAction) Duration() float32 {
	return float32(uint16(a.Data[1])|uint16(a.Data[2])<<8) / 16
}

// Amount returns the signed movement vector. The axis table depends on the
// action type; link and unknown actions have no amount.
func (a RDBAction) Amount() math.Vec3 {
	var table *[7]math.Vec3
	switch a.Type {
	case RDBActionTranslate:
		table = &translateAxes
	case RDBActionRotate:
		table = &rotateAxes
	default:
		return math.Vec3{}
	}
	axis := a.Data[0]
	if int(axis) >= len(table) {
		return math.Vec3{}
	}
	return table[axis].Scale(a.Magnitude())
}

// ModelDescriptor is an 8-byte model table entry: a five digit mesh number
// followed by a three letter tag.
type ModelDescriptor [8]byte

// Valid reports whether the slot is used.
func (d ModelDescriptor) Valid() bool {
	return d[0] != 0xFF
}

// MeshIndex returns the decimal mesh number in the first five bytes.
// Parsing stops at the first non-digit, so "00012" and "12\x00" both give 12.
func (d ModelDescriptor) MeshIndex() int {
	digits := d[:5]
	i := 0
	for i < len(digits) && digits[i] == ' ' {
		i++
	}
	neg := false
	if i < len(digits) && (digits[i] == '-' || digits[i] == '+') {
		neg = digits[i] == '-'
		i++
	}
	n := 0
	for ; i < len(digits) && digits[i] >= '0' && digits[i] <= '9'; i++ {
		n = n*10 + int(digits[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}

// Tag returns the three tag bytes, "DOR" for doors and "EXT" for exits.
func (d ModelDescriptor) Tag() string {
	return string(d[5:8])
}

// IsDoor reports whether the descriptor is tagged as a door.
func (d ModelDescriptor) IsDoor() bool { return d.Tag() == "DOR" }

// IsExit reports whether the descriptor is tagged as an exit.
func (d ModelDescriptor) IsExit() bool { return d.Tag() == "EXT" }

// String decodes the descriptor for display.
func (d ModelDescriptor) String() string {
	return encoding.FixedStringToUTF8(d[:])
}

// RDBHeader is the fixed block header. The unidentified fields are kept as
// read so a block can be written back unchanged.
type RDBHeader struct {
	Unknown1         uint32
	Width            uint32
	Height           uint32
	ObjectRootOffset uint32
	Unknown2         uint32
	ModelData        [RDBModelSlots]ModelDescriptor
	ModelInfo        [RDBModelSlots]uint32 // One value per model slot, meaning unknown
	UnknownOffset    uint32                // Head of the unknown offset list
	Unknown4         uint32
	Unknown5         uint32
	Unknown6         uint32
}

// RDBModel is the payload of a model object.
type RDBModel struct {
	XRot, YRot, ZRot int32 // Rotation in file angle units
	ModelIndex       uint16
	ActionFlags      uint32
	SoundID          uint8
	ActionOffset     int32
	Descriptor       ModelDescriptor
	Action           *RDBAction // Set when ActionOffset > 0
}

// Rotation returns the rotation triple as a vector.
func (m *RDBModel) Rotation() math.Vec3 {
	return math.Vec3FromInts(m.XRot, m.YRot, m.ZRot)
}

// RDBFlat is the payload of a flat (sprite) object.
type RDBFlat struct {
	Texture      uint16 // Archive index in the high bits, record in the low 7
	Gender       uint16
	FactionID    uint16
	ActionOffset int32
	Unknown      uint8
	Action       *RDBAction // Set when ActionOffset > 0
}

// RDBObject is one record of an object list.
type RDBObject struct {
	Offset        int32 // Record offset, also the object's ID inside the block
	Root          int   // Index of the root grid cell whose list holds the record
	Next          int32
	Prev          int32
	X, Y, Z       int32
	Type          RDBObjectType
	PayloadOffset uint32
	Model         *RDBModel // Set if Type == RDBObjectModel
	Flat          *RDBFlat  // Set if Type == RDBObjectFlat
}

// Position returns the record position relative to the block origin.
func (o *RDBObject) Position() math.Vec3 {
	return math.Vec3FromInts(o.X, o.Y, o.Z)
}

// Action returns the action sub-record of a model or flat, if any.
func (o *RDBObject) Action() *RDBAction {
	switch {
	case o.Model != nil:
		return o.Model.Action
	case o.Flat != nil:
		return o.Flat.Action
	}
	return nil
}

// RDBTraceStep is one visited record in traversal order.
type RDBTraceStep struct {
	Root   int
	Offset int32
}

// RDB represents a parsed dungeon block.
type RDB struct {
	Header      RDBHeader
	UnknownList []int32 // Values read while chasing UnknownOffset, terminator included
	Roots       []int32 // Width*Height root offsets, row-major
	Objects     []RDBObject
}

// CountByType returns the count of objects for each type.
func (r *RDB) CountByType() map[RDBObjectType]int {
	counts := make(map[RDBObjectType]int)
	for _, obj := range r.Objects {
		counts[obj.Type]++
	}
	return counts
}

// Trace returns the (root, offset) sequence of the traversal.
func (r *RDB) Trace() []RDBTraceStep {
	steps := make([]RDBTraceStep, len(r.Objects))
	for i, obj := range r.Objects {
		steps[i] = RDBTraceStep{Root: obj.Root, Offset: obj.Offset}
	}
	return steps
}

// GetModels returns all model objects.
func (r *RDB) GetModels() []*RDBObject {
	return r.filter(RDBObjectModel)
}

// GetFlats returns all flat objects.
func (r *RDB) GetFlats() []*RDBObject {
	return r.filter(RDBObjectFlat)
}

func (r *RDB) filter(t RDBObjectType) []*RDBObject {
	var out []*RDBObject
	for i := range r.Objects {
		if r.Objects[i].Type == t {
			out = append(out, &r.Objects[i])
		}
	}
	return out
}

// ParseRDB parses a dungeon block from raw bytes. Any malformed read fails
// the whole block.
func ParseRDB(data []byte) (*RDB, error) {
	if len(data) < RDBHeaderSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncatedRDBData, RDBHeaderSize, len(data))
	}
	// Record offsets become the low bits of object ids.
	if uint64(len(data)) > uint64(objid.OffsetMask)+1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrRDBTooLarge, len(data))
	}

	r := bytes.NewReader(data)
	rdb := &RDB{}
	if err := binary.Read(r, binary.LittleEndian, &rdb.Header); err != nil {
		return nil, fmt.Errorf("%w: reading header", ErrTruncatedRDBData)
	}

	rdb.UnknownList = readUnknownList(r, int32(rdb.Header.UnknownOffset))

	size := uint64(len(data))
	cells := uint64(rdb.Header.Width) * uint64(rdb.Header.Height)
	if cells > size/4 || uint64(rdb.Header.ObjectRootOffset) > size-cells*4 {
		return nil, fmt.Errorf("%w: root grid %dx%d at 0x%x", ErrTruncatedRDBData,
			rdb.Header.Width, rdb.Header.Height, rdb.Header.ObjectRootOffset)
	}
	rdb.Roots = make([]int32, cells)
	if err := readAt(r, int64(rdb.Header.ObjectRootOffset), rdb.Roots); err != nil {
		return nil, fmt.Errorf("%w: reading root grid", err)
	}

	seen := make(map[int32]bool)
	for cell, offset := range rdb.Roots {
		for offset > 0 {
			if seen[offset] {
				return nil, fmt.Errorf("%w: 0x%x in root %d", ErrRDBCycle, offset, cell)
			}
			seen[offset] = true

			obj, err := parseRDBObject(r, &rdb.Header, offset)
			if err != nil {
				return nil, fmt.Errorf("parsing object 0x%x: %w", offset, err)
			}
			obj.Root = cell
			rdb.Objects = append(rdb.Objects, obj)
			offset = obj.Next
		}
	}

	return rdb, nil
}

// readUnknownList chases the unknown offset chain. A short read or a revisit
// ends the chain without failing the block.
func readUnknownList(r *bytes.Reader, offset int32) []int32 {
	var list []int32
	seen := make(map[int32]bool)
	for offset > 0 && !seen[offset] {
		seen[offset] = true
		var next int32
		if err := readAt(r, int64(offset), &next); err != nil {
			break
		}
		list = append(list, next)
		offset = next
	}
	return list
}

// rdbObjectRecord is the on-disk object list node.
type rdbObjectRecord struct {
	Next, Prev int32
	X, Y, Z    int32
	Type       uint8
	Payload    uint32
}

type rdbModelRecord struct {
	XRot, YRot, ZRot int32
	ModelIndex       uint16
	ActionFlags      uint32
	SoundID          uint8
	ActionOffset     int32
}

type rdbFlatRecord struct {
	Texture      uint16
	Gender       uint16
	FactionID    uint16
	ActionOffset int32
	Unknown      uint8
}

type rdbActionRecord struct {
	Data   [5]byte
	Target int32
	Type   uint8
}

func parseRDBObject(r *bytes.Reader, hdr *RDBHeader, offset int32) (RDBObject, error) {
	var rec rdbObjectRecord
	if err := readAt(r, int64(offset), &rec); err != nil {
		return RDBObject{}, fmt.Errorf("%w: reading object record", err)
	}

	obj := RDBObject{
		Offset:        offset,
		Next:          rec.Next,
		Prev:          rec.Prev,
		X:             rec.X,
		Y:             rec.Y,
		Z:             rec.Z,
		Type:          RDBObjectType(rec.Type),
		PayloadOffset: rec.Payload,
	}

	switch obj.Type {
	case RDBObjectModel:
		var m rdbModelRecord
		if err := readAt(r, int64(rec.Payload), &m); err != nil {
			return RDBObject{}, fmt.Errorf("%w: reading model payload", err)
		}
		if int(m.ModelIndex) >= RDBModelSlots {
			return RDBObject{}, fmt.Errorf("%w: %d", ErrRDBModelIndex, m.ModelIndex)
		}
		obj.Model = &RDBModel{
			XRot:         m.XRot,
			YRot:         m.YRot,
			ZRot:         m.ZRot,
			ModelIndex:   m.ModelIndex,
			ActionFlags:  m.ActionFlags,
			SoundID:      m.SoundID,
			ActionOffset: m.ActionOffset,
			Descriptor:   hdr.ModelData[m.ModelIndex],
		}
		if m.ActionOffset > 0 {
			action, err := parseRDBAction(r, m.ActionOffset)
			if err != nil {
				return RDBObject{}, err
			}
			obj.Model.Action = action
		}

	case RDBObjectFlat:
		var f rdbFlatRecord
		if err := readAt(r, int64(rec.Payload), &f); err != nil {
			return RDBObject{}, fmt.Errorf("%w: reading flat payload", err)
		}
		obj.Flat = &RDBFlat{
			Texture:      f.Texture,
			Gender:       f.Gender,
			FactionID:    f.FactionID,
			ActionOffset: f.ActionOffset,
			Unknown:      f.Unknown,
		}
		if f.ActionOffset > 0 {
			action, err := parseRDBAction(r, f.ActionOffset)
			if err != nil {
				return RDBObject{}, err
			}
			obj.Flat.Action = action
		}
	}

	return obj, nil
}

func parseRDBAction(r *bytes.Reader, offset int32) (*RDBAction, error) {
	var a rdbActionRecord
	if err := readAt(r, int64(offset), &a); err != nil {
		return nil, fmt.Errorf("%w: reading action at 0x%x", err, offset)
	}
	return &RDBAction{Offset: offset, Data: a.Data, Target: a.Target, Type: RDBActionType(a.Type)}, nil
}

func readAt(r *bytes.Reader, offset int64, v any) error {
	if offset < 0 || offset >= r.Size() {
		return ErrTruncatedRDBData
	}
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return ErrTruncatedRDBData
	}
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		return ErrTruncatedRDBData
	}
	return nil
}

// ParseRDBFile parses a dungeon block from disk.
func ParseRDBFile(path string) (*RDB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading RDB file: %w", err)
	}
	return ParseRDB(data)
}

// Dump writes a human-readable listing of the block.
func (r *RDB) Dump(w io.Writer) error {
	h := &r.Header
	bw := &errWriter{w: w}
	bw.printf("Unknown: 0x%08x\n", h.Unknown1)
	bw.printf("Width: %d\n", h.Width)
	bw.printf("Height: %d\n", h.Height)
	bw.printf("ObjectRootOffset: 0x%08x\n", h.ObjectRootOffset)
	bw.printf("Unknown: 0x%08x\n", h.Unknown2)
	bw.printf("ModelData:\n")
	for i, d := range h.ModelData {
		if d.Valid() {
			bw.printf(" %d: %s 0x%08x\n", i, d, h.ModelInfo[i])
		}
	}
	bw.printf("UnknownOffset: 0x%08x\n", h.UnknownOffset)
	bw.printf("Unknown: 0x%08x\n", h.Unknown4)
	bw.printf("Unknown: 0x%08x\n", h.Unknown5)
	bw.printf("Unknown: 0x%08x\n", h.Unknown6)
	bw.printf("UnknownList: %v\n", r.UnknownList)

	for i := range r.Objects {
		obj := &r.Objects[i]
		bw.printf("**** Object 0x%08x ****\n", obj.Offset)
		bw.printf("Type: %s\n", obj.Type)
		bw.printf("Root: %d\n", obj.Root)
		bw.printf("Pos: %d %d %d\n", obj.X, obj.Y, obj.Z)
		switch {
		case obj.Model != nil:
			m := obj.Model
			bw.printf("Rotation: %d %d %d\n", m.XRot, m.YRot, m.ZRot)
			bw.printf("ModelIdx: %d (%s)\n", m.ModelIndex, m.Descriptor)
			bw.printf("ActionFlags: 0x%08x\n", m.ActionFlags)
			bw.printf("SoundId: %d\n", m.SoundID)
		case obj.Flat != nil:
			f := obj.Flat
			bw.printf("Texture: 0x%04x\n", f.Texture)
			bw.printf("Gender: 0x%04x\n", f.Gender)
			bw.printf("FactionId: %d\n", f.FactionID)
			bw.printf("Unknown: 0x%02x\n", f.Unknown)
		}
		if a := obj.Action(); a != nil {
			bw.printf("Action: %s target=0x%x data=% x amount=%v duration=%gs\n",
				a.Type, a.Target, a.Data, a.Amount(), a.Duration())
		}
	}
	return bw.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
