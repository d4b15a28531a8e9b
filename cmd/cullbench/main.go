// Command cullbench runs the visibility pipeline over a synthetic field of cubes and reports
// per-camera culling statistics. With -out it also writes the main camera's Hi-Z levels and
// visibility strip as PNG.
//
// Usage:
//
//	cullbench -side 64 -frames 240 -granularity triangle -out /tmp/cull
//	cullbench -backend gpu -granularity object -validate
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull/batch"
)

// benchConfig is the parsed command line.
type benchConfig struct {
	backend     string
	frames      int
	side        int
	spacing     float64
	granularity batch.Granularity
	occlusion   bool
	temporal    bool
	shadows     bool
	width       uint
	height      uint
	workers     int
	orbit       float64
	out         string
	validate    bool
	verbose     bool
}

func parseGranularity(s string) (batch.Granularity, error) {
	switch s {
	case "triangle", "tri":
		return batch.GranularityTriangle, nil
	case "object", "obj":
		return batch.GranularityObject, nil
	}
	return 0, fmt.Errorf("unknown granularity %q (want triangle or object)", s)
}

func parseFlags(args []string) (benchConfig, error) {
	var cfg benchConfig
	var granularity string
	fs := flag.NewFlagSet("cullbench", flag.ContinueOnError)
	fs.StringVar(&cfg.backend, "backend", "cpu", "culling backend: cpu or gpu")
	fs.IntVar(&cfg.frames, "frames", 120, "number of frames to run")
	fs.IntVar(&cfg.side, "side", 32, "cubes per side of the field")
	fs.Float64Var(&cfg.spacing, "spacing", 3, "distance between cube centers")
	fs.StringVar(&granularity, "granularity", "triangle", "culling granularity: triangle or object")
	fs.BoolVar(&cfg.occlusion, "occlusion", true, "test against last frame's depth pyramid")
	fs.BoolVar(&cfg.temporal, "temporal", true, "split draws into predicted and residual sections")
	fs.BoolVar(&cfg.shadows, "shadows", false, "add a shadow-casting sun")
	fs.UintVar(&cfg.width, "width", 320, "main camera width in pixels")
	fs.UintVar(&cfg.height, "height", 180, "main camera height in pixels")
	fs.IntVar(&cfg.workers, "workers", 0, "compute workers (0 = one per CPU)")
	fs.Float64Var(&cfg.orbit, "orbit", 0.01, "camera orbit per frame in radians")
	fs.StringVar(&cfg.out, "out", "", "directory for debug PNGs (empty disables)")
	fs.BoolVar(&cfg.validate, "validate", false, "check every WGSL kernel with naga before culling")
	fs.BoolVar(&cfg.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	g, err := parseGranularity(granularity)
	if err != nil {
		return cfg, err
	}
	cfg.granularity = g
	switch {
	case cfg.backend != "cpu" && cfg.backend != "gpu":
		return cfg, fmt.Errorf("unknown backend %q (want cpu or gpu)", cfg.backend)
	case cfg.frames < 1:
		return cfg, errors.New("-frames must be positive")
	case cfg.side < 1:
		return cfg, errors.New("-side must be positive")
	case cfg.width == 0 || cfg.height == 0:
		return cfg, errors.New("-width and -height must be positive")
	}
	return cfg, nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("[Bench] %v", err)
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	common.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bench, err := newBench(cfg)
	if err != nil {
		log.Fatalf("[Bench] scene: %v", err)
	}
	defer bench.close()

	log.Printf("[Bench] %s backend, %s granularity, %d objects, %dx%d, occlusion=%v temporal=%v shadows=%v",
		cfg.backend, cfg.granularity, bench.objectCount(), cfg.width, cfg.height, cfg.occlusion, cfg.temporal, cfg.shadows)

	var last frameResult
	start := time.Now()
	switch cfg.backend {
	case "gpu":
		last, err = bench.runGPU(ctx)
	default:
		last, err = bench.runCPU(ctx)
	}
	if err != nil {
		log.Fatalf("[Bench] %v", err)
	}
	elapsed := time.Since(start)
	log.Printf("[Bench] %d frames in %v (%.2f ms/frame)", cfg.frames, elapsed.Round(time.Millisecond),
		float64(elapsed.Microseconds())/1000/float64(cfg.frames))
	report(last)

	if cfg.out != "" {
		if err := bench.writeDebug(ctx, cfg.out, last); err != nil {
			log.Fatalf("[Bench] debug images: %v", err)
		}
		log.Printf("[Bench] debug images written to %s", cfg.out)
	}
}
