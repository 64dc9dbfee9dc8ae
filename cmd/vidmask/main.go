// Command vidmask compresses batches of tracking videos into ROI-masked
// containers.
//
// It parses flags, validates configuration and paths, and either runs
// system diagnostics (--check) or the batch pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/backmassage/vidmask/internal/check"
	"github.com/backmassage/vidmask/internal/config"
	"github.com/backmassage/vidmask/internal/display"
	"github.com/backmassage/vidmask/internal/logging"
	"github.com/backmassage/vidmask/internal/naming"
	"github.com/backmassage/vidmask/internal/pipeline"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "1.0.0"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Phase 1: Bootstrap. The logger doesn't exist yet, so errors go
	// directly to stderr.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg, version); err != nil {
		fmt.Fprintf(os.Stderr, "vidmask: %v\n", err)
		return 1
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "vidmask: %v\n", err)
		return 1
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vidmask: %v\n", err)
		return 1
	}
	defer log.Close()

	// Phase 2: Logger available.
	display.PrintBanner(os.Stdout)

	if cfg.CheckOnly {
		if !check.RunCheck(log) {
			return 1
		}
		return 0
	}

	// Resolve paths: the video dir must exist and the mask root must not be
	// the video dir itself.
	videoAbs, err := absPath(cfg.VideoDir)
	if err != nil {
		log.Error("Video directory not found: %s", cfg.VideoDir)
		return 1
	}
	maskRoot, err := naming.NormalizeRoot(cfg.MaskDir)
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	if err := os.MkdirAll(maskRoot, 0o755); err != nil {
		log.Error("Cannot create mask directory: %s", maskRoot)
		return 1
	}
	maskAbs, err := absPath(maskRoot)
	if err != nil {
		log.Error("Cannot resolve mask path: %s", maskRoot)
		return 1
	}
	if err := cfg.ValidatePaths(videoAbs, maskAbs); err != nil {
		log.Error("%v", err)
		return 1
	}
	cfg.VideoDir, cfg.MaskDir = videoAbs, maskAbs

	log.Info("=== vidmask v%s (%s) ===", version, commit)
	log.Info("Videos: %s", cfg.VideoDir)
	log.Info("Masks:  %s", cfg.MaskDir)
	if cfg.TmpDir != "" {
		log.Info("Stage:  %s", cfg.TmpDir)
	}
	if cfg.DryRun {
		log.Warn("DRY RUN: nothing will be compressed")
	}

	if err := check.CheckDeps(); err != nil {
		log.Error("%v", err)
		return 1
	}

	// Phase 3: SIGINT/SIGTERM cancel the context; running jobs stop at the
	// next frame and leave their outputs unfinished for the next run.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Phase 4: discover → classify → recover → plan → compress.
	stats, err := pipeline.Run(ctx, &cfg, log)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Interrupted")
		} else {
			log.Error("%v", err)
		}
		return 1
	}
	if ctx.Err() != nil {
		log.Warn("Interrupted; rerun to finish the remaining videos")
		return 1
	}
	if stats.Failed > 0 {
		return 1
	}
	return 0
}

// absPath returns the absolute, symlink-resolved path for safe comparison
// of the video and mask directories.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
