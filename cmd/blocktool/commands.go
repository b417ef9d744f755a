package main

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/dfworld/internal/activation"
	"github.com/Faultbox/dfworld/internal/config"
	"github.com/Faultbox/dfworld/internal/engine"
	"github.com/Faultbox/dfworld/internal/metrics"
	"github.com/Faultbox/dfworld/internal/motion"
	"github.com/Faultbox/dfworld/internal/vfs"
	"github.com/Faultbox/dfworld/internal/world"
	"github.com/Faultbox/dfworld/pkg/encoding"
	"github.com/Faultbox/dfworld/pkg/formats"
	"github.com/Faultbox/dfworld/pkg/objid"
)

type tool struct {
	cfg     *config.Config
	out     io.Writer
	log     *zap.Logger
	metrics *metrics.Metrics
}

// open builds a file manager over src, or over the configured data paths
// when src is "-".
func (t *tool) open(src string) (*vfs.Manager, error) {
	paths := []string{src}
	if src == "-" {
		paths = t.cfg.Data.Paths
	}
	m := vfs.NewManager(t.log)
	for _, p := range paths {
		if err := m.AddPath(p); err != nil {
			m.Close()
			return nil, err
		}
	}
	return m, nil
}

func (t *tool) newEngine() *engine.Engine {
	return engine.New(t.cfg.Engine, engine.Options{
		Logger:  t.log,
		Metrics: t.metrics,
		Exits: activation.ExitFunc(func(region, location int) {
			fmt.Fprintf(t.out, "exit to region %d location %d\n", region, location)
		}),
	})
}

func (t *tool) cmdList(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: list <src> [pattern]", errUsage)
	}
	m, err := t.open(args[0])
	if err != nil {
		return err
	}
	defer m.Close()

	pattern := ""
	if len(args) > 1 {
		pattern = encoding.NormalizePath(args[1])
	}

	names := m.List()
	sort.Strings(names)
	count := 0
	for _, name := range names {
		if pattern != "" {
			matched, err := filepath.Match(pattern, encoding.NormalizePath(name))
			if err != nil {
				return fmt.Errorf("bad pattern %q: %w", args[1], err)
			}
			if !matched {
				continue
			}
		}
		fmt.Fprintln(t.out, name)
		count++
	}
	t.log.Debug("listed files", zap.Int("count", count))
	return nil
}

func (t *tool) cmdDump(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: dump <src> <block>", errUsage)
	}
	m, err := t.open(args[0])
	if err != nil {
		return err
	}
	defer m.Close()

	area := world.NewArea(t.newEngine(), m)
	if err := area.Enter([]world.BlockRef{{Name: args[1]}}); err != nil {
		return err
	}
	defer area.Unload()
	return area.Dump(t.out)
}

func (t *tool) cmdTrace(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: trace <src> <block>", errUsage)
	}
	m, err := t.open(args[0])
	if err != nil {
		return err
	}
	defer m.Close()

	data, err := m.Load(args[1])
	if err != nil {
		return err
	}
	rdb, err := formats.ParseRDB(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", args[1], err)
	}

	fmt.Fprintf(t.out, "%-5s %-10s %-6s %s\n", "Root", "Offset", "Type", "Action")
	for i := range rdb.Objects {
		obj := &rdb.Objects[i]
		action := "-"
		if a := obj.Action(); a != nil {
			action = a.Type.String()
			if a.Target > 0 {
				action += fmt.Sprintf(" -> 0x%08x", a.Target)
			}
		}
		fmt.Fprintf(t.out, "%-5d 0x%08x %-6s %s\n", obj.Root, obj.Offset, obj.Type, action)
	}
	return nil
}

func (t *tool) cmdSimulate(args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dt := fs.Float64("dt", 0.1, "Seconds per step")
	steps := fs.Int("steps", 40, "Steps to run after each activation")
	twice := fs.Bool("twice", false, "Activate again after the first run")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() < 3 {
		return fmt.Errorf("%w: simulate [-dt s] [-steps n] [-twice] <src> <block> <id>", errUsage)
	}

	m, err := t.open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer m.Close()

	eng := t.newEngine()
	area := world.NewArea(eng, m)
	if err := area.Enter([]world.BlockRef{{Name: fs.Arg(1)}}); err != nil {
		return err
	}
	defer area.Unload()
	blk := area.Blocks()[0]

	id, err := objid.Parse(fs.Arg(2))
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if id.Scope() == 0 {
		id = objid.Make(blk.Scope(), id.Offset())
	}
	entry, ok := eng.Registry().Entry(id)
	if !ok {
		return fmt.Errorf("object %v has no action", id)
	}

	rounds := 1
	if *twice {
		rounds = 2
	}
	elapsed := float32(0)
	for round := 0; round < rounds; round++ {
		fmt.Fprintf(t.out, "activate %v (%s)\n", id, entry.Behavior)
		eng.Activate(id)
		for i := 0; i < *steps; i++ {
			eng.Tick(float32(*dt))
			elapsed += float32(*dt)
			t.printState(eng, id, elapsed)
		}
	}
	return nil
}

func (t *tool) printState(eng *engine.Engine, id objid.ID, elapsed float32) {
	phase := func(kind motion.Kind) string {
		if p, ok := eng.Motion().State(kind, id); ok {
			return p.String()
		}
		return "-"
	}
	pose, err := eng.Pose(id)
	if err != nil {
		fmt.Fprintf(t.out, "%7.3fs %-14s %-14s unplaced\n", elapsed, phase(motion.KindTranslate), phase(motion.KindRotate))
		return
	}
	fmt.Fprintf(t.out, "%7.3fs %-14s %-14s point=%v orient=%v\n",
		elapsed, phase(motion.KindTranslate), phase(motion.KindRotate), pose.Point, pose.Orientation)
}

// cmdConfig prints or writes the configuration after file and flag overrides.
func (t *tool) cmdConfig(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: config show|save [path]", errUsage)
	}

	switch args[0] {
	case "show":
		data, err := t.cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = t.out.Write(data)
		return err
	case "save":
		var (
			path string
			err  error
		)
		if len(args) > 1 {
			path = args[1]
			err = t.cfg.SaveTo(path)
		} else {
			path, err = t.cfg.Save()
		}
		if err != nil {
			return err
		}
		t.log.Info("config saved", zap.String("path", path))
		fmt.Fprintf(t.out, "config written to %s\n", path)
		return nil
	}
	return fmt.Errorf("%w: unknown config command %q", errUsage, args[0])
}
