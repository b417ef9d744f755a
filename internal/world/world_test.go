package world

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/dfworld/internal/activation"
	"github.com/Faultbox/dfworld/internal/config"
	"github.com/Faultbox/dfworld/internal/engine"
	"github.com/Faultbox/dfworld/internal/metrics"
	"github.com/Faultbox/dfworld/internal/motion"
	"github.com/Faultbox/dfworld/internal/placement"
	"github.com/Faultbox/dfworld/internal/vfs"
	"github.com/Faultbox/dfworld/pkg/formats"
	"github.com/Faultbox/dfworld/pkg/formats/rdbtest"
	"github.com/Faultbox/dfworld/pkg/math"
	"github.com/Faultbox/dfworld/pkg/objid"
)

var errMissingMesh = errors.New("mesh missing")

type fakeRenderer struct {
	attached map[objid.ID]engine.NodeKind
	removed  []objid.ID
}

func (f *fakeRenderer) Attach(id objid.ID, _ any, kind engine.NodeKind) {
	if f.attached == nil {
		f.attached = make(map[objid.ID]engine.NodeKind)
	}
	f.attached[id] = kind
}
func (f *fakeRenderer) Remove(ids ...objid.ID) {
	f.removed = append(f.removed, ids...)
	for _, id := range ids {
		delete(f.attached, id)
	}
}
func (f *fakeRenderer) SetPose(objid.ID, placement.Pose) {}
func (f *fakeRenderer) SetFrame(objid.ID, int)           {}

type fakeMeshes struct {
	models  []int
	broken  map[int]bool
	frames  map[uint16]int
	texture []uint16
}

func (f *fakeMeshes) Model(index int) (any, error) {
	f.models = append(f.models, index)
	if f.broken[index] {
		return nil, errMissingMesh
	}
	return index, nil
}

func (f *fakeMeshes) Flat(texture uint16) (any, int, error) {
	f.texture = append(f.texture, texture)
	n := f.frames[texture]
	if n == 0 {
		n = 1
	}
	return texture, n, nil
}

type memSource map[string][]byte

func (m memSource) Name() string { return "mem" }
func (m memSource) Close() error { return nil }
func (m memSource) Open(name string) ([]byte, error) {
	if data, ok := m[name]; ok {
		return data, nil
	}
	return nil, vfs.ErrNotFound
}

type fixture struct {
	eng      *engine.Engine
	renderer *fakeRenderer
	meshes   *fakeMeshes
	logs     *observer.ObservedLogs
	reg      *prometheus.Registry
	exits    [][2]int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	f := &fixture{
		renderer: &fakeRenderer{},
		meshes:   &fakeMeshes{broken: map[int]bool{}, frames: map[uint16]int{}},
		logs:     logs,
		reg:      prometheus.NewRegistry(),
	}
	m, err := metrics.New(f.reg)
	if err != nil {
		t.Fatal(err)
	}
	f.eng = engine.New(config.Default().Engine, engine.Options{
		Renderer: f.renderer,
		Meshes:   f.meshes,
		Exits: activation.ExitFunc(func(region, location int) {
			f.exits = append(f.exits, [2]int{region, location})
		}),
		Logger:  zap.New(core),
		Metrics: m,
	})
	return f
}

// sampleBlock lays out a door opened by a lever, a lift chained to a wheel,
// a light and an exit.
func sampleBlock() (*rdbtest.Builder, map[string]int32) {
	b := rdbtest.New(2, 2)
	b.SetDescriptor(0, "00012DOR")
	b.SetDescriptor(1, "00345   ")
	b.SetDescriptor(2, "00077EXT")

	offs := map[string]int32{}
	offs["door"] = b.AddModel(0, 10, 20, 30, rdbtest.Model{Index: 0, YRot: 512, Sound: 3})
	offs["lift"] = b.AddModel(0, 0, 0, 0, rdbtest.Model{
		Index: 1,
		Sound: 4,
		Action: &rdbtest.Action{
			Type: formats.RDBActionTranslate, Axis: 4, Duration: 2, Magnitude: 100,
		},
	})
	b.AddLight(0, 1, 1, 1)
	offs["lever"] = b.AddFlat(2, 5, 6, 7, rdbtest.Flat{
		Texture: 0x1234,
		Action:  &rdbtest.Action{Type: formats.RDBActionLink},
	})
	offs["exit"] = b.AddModel(3, 0, 0, 0, rdbtest.Model{Index: 2})
	offs["wheel"] = b.AddModel(3, 0, 0, 0, rdbtest.Model{
		Index:  1,
		Action: &rdbtest.Action{Type: formats.RDBActionRotate, Axis: 3, Duration: 0.5, Magnitude: 256},
	})
	b.Link(offs["lever"], offs["door"])
	b.Link(offs["lift"], offs["wheel"])
	return b, offs
}

var sampleRef = BlockRef{Name: "N0000012.RDB", X: 100, Z: 200, Region: 17, Location: 42}

func TestLoadBlock(t *testing.T) {
	f := newFixture(t)
	b, offs := sampleBlock()

	blk, err := LoadBlock(f.eng, b.Bytes(), sampleRef)
	if err != nil {
		t.Fatalf("LoadBlock() error: %v", err)
	}
	id := func(name string) objid.ID { return objid.Make(blk.Scope(), offs[name]) }

	wantIDs := []objid.ID{id("door"), id("lift"), id("lever"), id("exit"), id("wheel")}
	if got := blk.IDs(); !reflect.DeepEqual(got, wantIDs) {
		t.Errorf("IDs() = %v, want %v", got, wantIDs)
	}
	if want := []int{12, 345, 77, 345}; !reflect.DeepEqual(f.meshes.models, want) {
		t.Errorf("models requested = %v, want %v", f.meshes.models, want)
	}
	if f.renderer.attached[id("lever")] != engine.NodeFlat || f.renderer.attached[id("door")] != engine.NodeModel {
		t.Errorf("attached = %v", f.renderer.attached)
	}

	reg := f.eng.Registry()
	tests := []struct {
		name     string
		behavior activation.Behavior
		target   objid.ID
		flags    activation.Flags
	}{
		{"door", activation.Door{}, objid.None, activation.FlagChained},
		{"lift", activation.Translate{}, id("wheel"), 0},
		{"lever", activation.Link{}, id("door"), activation.FlagChained},
		{"exit", activation.ExitDoor{Region: 17, Location: 42}, objid.None, activation.FlagChained},
		{"wheel", activation.Rotate{}, objid.None, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := reg.Entry(id(tt.name))
			if !ok {
				t.Fatal("not registered")
			}
			if e.Behavior != tt.behavior || e.Target != tt.target || e.Flags != tt.flags {
				t.Errorf("entry = %+v", e)
			}
		})
	}

	pose, err := f.eng.Pose(id("door"))
	if err != nil {
		t.Fatal(err)
	}
	if pose.Point != (math.Vec3{X: 110, Y: 20, Z: 230}) {
		t.Errorf("door point = %v", pose.Point)
	}
	if !pose.Orientation.SameRotation(math.BuildRotation(math.Vec3{Y: 512}), 1e-6) {
		t.Errorf("door orientation = %v", pose.Orientation)
	}
	if s, _ := f.eng.Motion().SoundID(id("door")); s != 3 {
		t.Errorf("door sound = %d", s)
	}
}

func TestLoadBlockChains(t *testing.T) {
	f := newFixture(t)
	b, offs := sampleBlock()
	blk, err := LoadBlock(f.eng, b.Bytes(), sampleRef)
	if err != nil {
		t.Fatalf("LoadBlock() error: %v", err)
	}
	id := func(name string) objid.ID { return objid.Make(blk.Scope(), offs[name]) }
	m := f.eng.Motion()

	f.eng.Activate(id("lever"))
	if phase, _ := m.State(motion.KindRotate, id("door")); phase != motion.ActiveForward {
		t.Errorf("door phase = %v after lever", phase)
	}

	f.eng.Activate(id("lift"))
	if phase, _ := m.State(motion.KindTranslate, id("lift")); phase != motion.ActiveForward {
		t.Errorf("lift phase = %v", phase)
	}
	if phase, _ := m.State(motion.KindRotate, id("wheel")); phase != motion.ActiveForward {
		t.Errorf("wheel phase = %v after lift", phase)
	}

	f.eng.Tick(2)
	pose, _ := f.eng.Pose(id("lift"))
	if pose.Point != (math.Vec3{X: 100, Y: -100, Z: 200}) {
		t.Errorf("lift point = %v", pose.Point)
	}

	f.eng.Activate(id("exit"))
	if !reflect.DeepEqual(f.exits, [][2]int{{17, 42}}) {
		t.Errorf("exits = %v", f.exits)
	}
}

func TestUnknownActionKeepsPlacement(t *testing.T) {
	f := newFixture(t)
	b := rdbtest.New(1, 1)
	b.SetDescriptor(0, "00100   ")
	raw := [5]byte{9, 8, 7, 6, 5}
	odd := b.AddModel(0, 1, 2, 3, rdbtest.Model{
		Index:  0,
		YRot:   256,
		Action: &rdbtest.Action{Type: 0x7F, Raw: &raw},
	})
	b.AddModel(0, 4, 5, 6, rdbtest.Model{
		Index:  0,
		Action: &rdbtest.Action{Type: 0x7F, Raw: &raw},
	})

	blk, err := LoadBlock(f.eng, b.Bytes(), BlockRef{Name: "ODD.RDB"})
	if err != nil {
		t.Fatalf("LoadBlock() error: %v", err)
	}
	id := objid.Make(blk.Scope(), odd)

	pose, err := f.eng.Pose(id)
	if err != nil {
		t.Fatal(err)
	}
	if pose.Point != (math.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("point = %v", pose.Point)
	}
	if !pose.Orientation.SameRotation(math.BuildRotation(math.Vec3{Y: 256}), 1e-6) {
		t.Errorf("orientation = %v", pose.Orientation)
	}
	e, _ := f.eng.Registry().Entry(id)
	if e.Behavior != (activation.Unknown{Type: 0x7F, Raw: raw}) {
		t.Errorf("behavior = %v", e.Behavior)
	}

	f.eng.Activate(id)
	if f.eng.Motion().ActiveCount() != 0 {
		t.Error("unknown action started a mover")
	}

	warned := f.logs.FilterMessage("unhandled action type")
	if warned.Len() != 1 {
		t.Errorf("logged %d warnings, want 1", warned.Len())
	}
	if fields := warned.All()[0].ContextMap(); fields["block"] != "ODD.RDB" || fields["type"] != "0x7f" {
		t.Errorf("warning fields = %v", fields)
	}

	expected := `
# HELP dfworld_unknown_actions_total Action records with an unrecognised type byte.
# TYPE dfworld_unknown_actions_total counter
dfworld_unknown_actions_total{type="0x7f"} 2
`
	if err := testutil.GatherAndCompare(f.reg, strings.NewReader(expected), "dfworld_unknown_actions_total"); err != nil {
		t.Error(err)
	}
}

func TestLoadBlockRollsBackOnMeshError(t *testing.T) {
	f := newFixture(t)
	f.meshes.broken[77] = true
	b, _ := sampleBlock()

	blk, err := LoadBlock(f.eng, b.Bytes(), sampleRef)
	if !errors.Is(err, errMissingMesh) {
		t.Fatalf("LoadBlock() error = %v, want errMissingMesh", err)
	}
	if blk != nil {
		t.Error("failed load returned a block")
	}
	if n := f.eng.Registry().Len(); n != 0 {
		t.Errorf("registry holds %d entries after rollback", n)
	}
	if n := f.eng.Places().Len(); n != 0 {
		t.Errorf("placement holds %d poses after rollback", n)
	}
	if len(f.renderer.attached) != 0 {
		t.Errorf("renderer still holds %v", f.renderer.attached)
	}

	expected := `
# HELP dfworld_block_load_failures_total Blocks that failed to decode or instantiate.
# TYPE dfworld_block_load_failures_total counter
dfworld_block_load_failures_total 1
`
	if err := testutil.GatherAndCompare(f.reg, strings.NewReader(expected), "dfworld_block_load_failures_total"); err != nil {
		t.Error(err)
	}
}

func TestLoadBlockMalformed(t *testing.T) {
	f := newFixture(t)
	b, _ := sampleBlock()
	data := b.Bytes()

	_, err := LoadBlock(f.eng, data[:len(data)-3], sampleRef)
	if !errors.Is(err, formats.ErrTruncatedRDBData) {
		t.Fatalf("LoadBlock() error = %v, want ErrTruncatedRDBData", err)
	}
	if f.eng.Registry().Len() != 0 || f.eng.Places().Len() != 0 {
		t.Error("malformed block left objects behind")
	}
}

func TestUnload(t *testing.T) {
	f := newFixture(t)
	f.meshes.frames[0x1234] = 4
	b, _ := sampleBlock()
	blk, err := LoadBlock(f.eng, b.Bytes(), sampleRef)
	if err != nil {
		t.Fatalf("LoadBlock() error: %v", err)
	}
	if f.eng.Frames().Len() != 1 {
		t.Errorf("animated flats = %d, want 1", f.eng.Frames().Len())
	}
	ids := blk.IDs()

	blk.Unload()
	blk.Unload()

	if f.eng.Registry().Len() != 0 || f.eng.Places().Len() != 0 || f.eng.Frames().Len() != 0 {
		t.Error("unload left state behind")
	}
	if !reflect.DeepEqual(f.renderer.removed, ids) {
		t.Errorf("removed = %v, want %v", f.renderer.removed, ids)
	}
	if len(blk.IDs()) != 0 {
		t.Errorf("IDs() after unload = %v", blk.IDs())
	}
}

func TestBlockLookups(t *testing.T) {
	f := newFixture(t)
	b, offs := sampleBlock()
	blk, err := LoadBlock(f.eng, b.Bytes(), sampleRef)
	if err != nil {
		t.Fatalf("LoadBlock() error: %v", err)
	}
	lever := objid.Make(blk.Scope(), offs["lever"])

	if obj, ok := blk.Object(lever); !ok || obj.Flat == nil || obj.Flat.Texture != 0x1234 {
		t.Errorf("Object(lever) = %+v, %v", obj, ok)
	}
	if obj, ok := blk.Object(objid.Make(blk.Scope(), 0x10)); ok || obj != nil {
		t.Error("Object() found a record that does not exist")
	}
	if got := blk.ObjectByTexture(0x1234); got != lever {
		t.Errorf("ObjectByTexture() = %v, want %v", got, lever)
	}
	if got := blk.ObjectByTexture(0x9999); got != objid.None {
		t.Errorf("ObjectByTexture(missing) = %v", got)
	}
	if f.logs.FilterMessage("failed to find flat with texture").Len() != 1 {
		t.Error("missing texture was not logged")
	}

	var out bytes.Buffer
	if err := blk.Dump(&out); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "Block: N0000012.RDB") || !strings.Contains(out.String(), "**** Object") {
		t.Errorf("Dump() = %q", out.String())
	}
}

func TestAreaEnter(t *testing.T) {
	f := newFixture(t)
	b, offs := sampleBlock()
	other := rdbtest.New(1, 1)
	other.SetDescriptor(0, "00005DOR")
	otherDoor := other.AddModel(0, 0, 0, 0, rdbtest.Model{Index: 0})
	src := memSource{
		"N0000012.RDB": b.Bytes(),
		"W0000003.RDB": other.Bytes(),
		"BROKEN.RDB":   []byte{1, 2, 3},
	}
	area := NewArea(f.eng, src)

	first := []BlockRef{sampleRef, {Name: "W0000003.RDB", X: 2048}}
	if err := area.Enter(first); err != nil {
		t.Fatalf("Enter() error: %v", err)
	}
	if len(area.Blocks()) != 2 {
		t.Fatalf("Blocks() = %d", len(area.Blocks()))
	}
	entries := f.eng.Registry().Len()

	blk, ok := area.Block("w0000003.rdb")
	if !ok {
		t.Fatal("Block() lookup failed")
	}
	id := objid.Make(blk.Scope(), otherDoor)
	if got, obj, ok := area.Object(id); !ok || got != blk || obj.Offset != otherDoor {
		t.Errorf("Object() = %v, %v, %v", got, obj, ok)
	}
	if _, _, ok := area.Object(objid.Make(objid.Scope(99), offs["door"])); ok {
		t.Error("Object() found an id from an unknown scope")
	}

	err := area.Enter([]BlockRef{{Name: "BROKEN.RDB"}, {Name: "MISSING.RDB"}, sampleRef})
	if err == nil {
		t.Fatal("Enter() with broken blocks should fail")
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("Enter() reported %d errors, want 2: %v", n, err)
	}
	if !errors.Is(err, vfs.ErrNotFound) {
		t.Errorf("Enter() error = %v, want ErrNotFound among them", err)
	}
	if len(area.Blocks()) != 2 || f.eng.Registry().Len() != entries {
		t.Error("failed Enter() disturbed the current area")
	}

	var out bytes.Buffer
	if err := area.Dump(&out); err != nil {
		t.Fatal(err)
	}
	if strings.Count(out.String(), "Block: ") != 2 {
		t.Errorf("Dump() listed %d blocks", strings.Count(out.String(), "Block: "))
	}

	area.Unload()
	if f.eng.Registry().Len() != 0 || f.eng.Places().Len() != 0 {
		t.Error("Unload() left objects behind")
	}
	out.Reset()
	if err := area.Dump(&out); err != nil || out.String() != "No area loaded\n" {
		t.Errorf("Dump() = %q, %v", out.String(), err)
	}
}

func TestAreaEnterReplaces(t *testing.T) {
	f := newFixture(t)
	b, _ := sampleBlock()
	area := NewArea(f.eng, memSource{"N0000012.RDB": b.Bytes()})

	if err := area.Enter([]BlockRef{sampleRef}); err != nil {
		t.Fatal(err)
	}
	old := area.Blocks()[0]
	if err := area.Enter([]BlockRef{sampleRef}); err != nil {
		t.Fatal(err)
	}
	if area.Blocks()[0] == old || area.Blocks()[0].Scope() == old.Scope() {
		t.Error("Enter() kept the old block")
	}
	if f.eng.Registry().Len() != 5 {
		t.Errorf("registry holds %d entries, want 5", f.eng.Registry().Len())
	}
}
