package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/backmassage/vidmask/internal/compress"
	"github.com/backmassage/vidmask/internal/config"
	"github.com/backmassage/vidmask/internal/display"
	"github.com/backmassage/vidmask/internal/logging"
	"github.com/backmassage/vidmask/internal/naming"
	"github.com/backmassage/vidmask/internal/planner"
	"github.com/backmassage/vidmask/internal/progress"
)

// Runner holds the collaborators of one batch. Nil Probe and Open use
// framesource.Probe and framesource.Open.
type Runner struct {
	Config *config.Config
	Log    *logging.Logger
	Probe  ProbeFunc
	Open   compress.OpenFunc
}

// Run is the top-level batch entry point with production collaborators.
func Run(ctx context.Context, cfg *config.Config, log *logging.Logger) (*RunStats, error) {
	r := &Runner{Config: cfg, Log: log}
	return r.Run(ctx)
}

// Run discovers, classifies, recovers, plans and compresses. The returned
// error covers setup failures only; per-video failures are counted in the
// stats and logged.
func (r *Runner) Run(ctx context.Context) (*RunStats, error) {
	cfg, log := r.Config, r.Log
	start := time.Now()
	stats := &RunStats{}

	dest, err := naming.NewMapper(cfg.VideoDir, cfg.MaskDir)
	if err != nil {
		return stats, err
	}
	var staging *naming.Mapper
	if cfg.TmpDir != "" {
		if staging, err = naming.NewMapper(cfg.VideoDir, cfg.TmpDir); err != nil {
			return stats, err
		}
	}

	if err := os.MkdirAll(dest.DestRoot, 0o755); err != nil {
		return stats, fmt.Errorf("create mask directory: %w", err)
	}
	lock, err := AcquireRunLock(dest.DestRoot)
	if err != nil {
		return stats, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("%v", err)
		}
	}()

	events, err := r.openEvents()
	if err != nil {
		return stats, err
	}
	defer events.Close()

	// --- Discover ---
	sources, err := Discover(dest.SourceRoot, cfg.PatternInclude, cfg.PatternExclude)
	if err != nil {
		return stats, fmt.Errorf("discover: %w", err)
	}
	stats.Discovered = len(sources)
	log.Info("Found %d videos in %s", len(sources), dest.SourceRoot)
	log.Info("Masks: %s", dest.DestRoot)

	// --- Classify and recover ---
	console := progress.NewConsole(log, "files")
	classifier := &Classifier{
		Mapper:       dest,
		SingleObject: cfg.SingleObject,
		Probe:        r.Probe,
		Progress:     progress.Multi{console, events},
	}
	buckets := classifier.ClassifyAll(ctx, sources)
	console.Done("classify")
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}

	stats.Recovered = len(buckets.FinishedBad)
	for _, rec := range buckets.FinishedBad {
		log.Warn("Recovering %s: %v", filepath.Base(rec.Output), rec.Err)
	}
	buckets, errs := Recover(ctx, classifier, buckets)
	for _, e := range errs {
		log.Error("%v", e)
	}

	stats.SourceBad = len(buckets.SourceBad)
	stats.Finished = len(buckets.FinishedGood)
	for _, rec := range buckets.SourceBad {
		log.Debug(cfg.Verbose, "Unreadable: %s: %v", rec.Source, rec.Err)
	}
	events.BatchStarted(buckets.Counts())
	logBuckets(log, buckets)

	// --- Plan ---
	jobs, err := planner.Plan(dest, staging, Sources(buckets.SourceGood), planner.OptionsFromConfig(cfg), nil)
	if err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			log.Error("%s", line)
		}
	}
	stats.Planned = len(jobs)

	if cfg.DryRun {
		for _, j := range jobs {
			log.Success("[DRY] vidmask %s", strings.Join(j.Args(), " "))
		}
		stats.Elapsed = time.Since(start)
		return stats, nil
	}

	// --- Run jobs ---
	frames := progress.NewConsole(log, "frames")
	comp := &compress.Compressor{
		Open:     r.Open,
		Progress: progress.Multi{frames, events},
		Log:      log,
		Verbose:  cfg.Verbose,
	}

	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for i, j := range jobs {
		if ctx.Err() != nil {
			log.Warn("Interrupted, %d jobs not started", len(jobs)-i)
			break
		}
		g.Go(func() error {
			r.runJob(ctx, comp, events, stats, j, i+1, len(jobs))
			frames.Done(j.Source)
			return nil
		})
	}
	_ = g.Wait()

	stats.Elapsed = time.Since(start)
	logSummary(log, stats)
	return stats, nil
}

// runJob compresses one planned job and records its outcome.
func (r *Runner) runJob(ctx context.Context, comp *compress.Compressor, events *progress.EventLog,
	stats *RunStats, j planner.Job, n, total int) {
	log := r.Log
	id := j.ID.String()
	log.Info("[%d/%d] %s", n, total, filepath.Base(j.Source))
	events.JobStarted(id, j.Source, j.Output)

	task, err := j.Task()
	if err == nil {
		var res compress.Result
		res, err = comp.Run(ctx, task)
		if err == nil {
			stats.recordDone(res.Frames, res.InputBytes, res.OutputBytes)
			events.JobFinished(id, j.Source, res.Frames, res.Elapsed, nil)
			log.Success("%s: %d frames, %d snapshots in %s (%s, %s, %s)",
				filepath.Base(j.Output), res.Frames, res.Snapshots,
				res.Elapsed.Round(time.Second), display.FormatFPS(res.Frames, res.Elapsed),
				display.FormatBytes(res.OutputBytes), display.FormatRatio(res.InputBytes, res.OutputBytes))
			return
		}
	}

	stats.recordFailed()
	events.JobFinished(id, j.Source, 0, 0, err)
	log.Error("%s: %v", filepath.Base(j.Source), err)
}

// openEvents opens the JSON event log, or one that discards everything when
// no file was requested.
func (r *Runner) openEvents() (*progress.EventLog, error) {
	if r.Config.EventsFile == "" {
		return progress.NewEventLog(io.Discard), nil
	}
	return progress.OpenEventLog(r.Config.EventsFile)
}

// --- Logging helpers ---

func logBuckets(log *logging.Logger, b Buckets) {
	log.Info("To process: %d | unreadable: %d | already done: %d",
		len(b.SourceGood), len(b.SourceBad), len(b.FinishedGood))
}

func logSummary(log *logging.Logger, stats *RunStats) {
	log.Info("==============================")
	log.Info("Done: %d compressed, %d failed, %d already finished, %d unreadable",
		stats.Done, stats.Failed, stats.Finished, stats.SourceBad)
	log.Info("  Frames written: %d in %s", stats.Frames, stats.Elapsed.Round(time.Second))

	saved := stats.SpaceSaved()
	if saved >= 0 {
		log.Success("  Total space saved: %s (input %s -> output %s)",
			display.FormatBytes(saved),
			display.FormatBytes(stats.TotalInputBytes),
			display.FormatBytes(stats.TotalOutputBytes))
	} else {
		log.Warn("  Total space saved: -%s (overall output is larger)",
			display.FormatBytes(-saved))
	}
}
