// blocktool inspects Daggerfall dungeon blocks and runs their actions
// without a renderer.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/Faultbox/dfworld/internal/config"
	"github.com/Faultbox/dfworld/internal/logger"
	"github.com/Faultbox/dfworld/internal/metrics"
)

// errUsage marks errors caused by bad arguments; main prints usage for them.
var errUsage = errors.New("usage")

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, flag.Args(), os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n\n", err)
			printUsage(os.Stderr)
			os.Exit(2)
		}
		logger.Error("command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes one command. Global flags have already been consumed.
func run(cfg *config.Config, args []string, out io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	var (
		reg *prometheus.Registry
		m   *metrics.Metrics
	)
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		var err error
		if m, err = metrics.New(reg); err != nil {
			return fmt.Errorf("creating metrics: %w", err)
		}
	}
	t := &tool{cfg: cfg, out: out, log: logger.Named("blocktool"), metrics: m}

	command, rest := args[0], args[1:]
	var err error
	switch command {
	case "list", "ls":
		err = t.cmdList(rest)
	case "dump":
		err = t.cmdDump(rest)
	case "trace":
		err = t.cmdTrace(rest)
	case "simulate", "sim":
		err = t.cmdSimulate(rest)
	case "config":
		err = t.cmdConfig(rest)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
	if err != nil {
		return err
	}

	if reg != nil {
		return writeMetrics(out, reg)
	}
	return nil
}

func writeMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	if _, err := fmt.Fprintln(w, "\n# metrics"); err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `blocktool - Daggerfall dungeon block utility

Usage:
  blocktool [global flags] <command> [options]

Commands:
  list <src> [pattern]                          List block files
  dump <src> <block>                            Print the decoded block
  trace <src> <block>                           Print the record traversal order
  simulate [-dt s] [-steps n] [-twice] <src> <block> <id>
                                                Activate an object and step time
  config show                                   Print the resolved configuration
  config save [path]                            Write the resolved configuration

<src> is a BSA archive or a directory of loose files. Use "-" for the
data paths from the config file or -data.

Global flags:
  -config, -data, -debug, -log-file, -door-swing, -door-duration,
  -tick-rate, -metrics

Examples:
  blocktool list arena2/BLOCKS.BSA "N*"
  blocktool trace arena2/BLOCKS.BSA N0000012.RDB
  blocktool -door-swing 384 config save
  blocktool simulate -dt 0.25 -steps 8 arena2/BLOCKS.BSA N0000012.RDB 0x2410`)
}
