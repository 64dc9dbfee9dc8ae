package planner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/backmassage/vidmask/internal/compress"
	"github.com/backmassage/vidmask/internal/config"
	"github.com/backmassage/vidmask/internal/naming"
)

// ErrDuplicateTarget is returned for a source whose output path is already
// claimed by another source in the same run.
var ErrDuplicateTarget = errors.New("output already claimed by another source")

// Options holds the optional job parameters that were explicitly supplied.
// Zero values mean "not supplied".
type Options struct {
	ParamsFile   string
	SingleObject bool
	CopyVideo    bool
	Overrides    compress.Overrides
}

// OptionsFromConfig copies the job-level options out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ParamsFile:   cfg.ParamsFile,
		SingleObject: cfg.SingleObject,
		CopyVideo:    cfg.CopyVideo,
		Overrides:    cfg.Overrides,
	}
}

// Job is one planned compression.
type Job struct {
	ID         uuid.UUID
	Source     string
	DestDir    string
	StagingDir string
	Output     string
	Options    Options
}

// Settings resolves the compressor settings for j: defaults, then the
// parameter file, then the explicit overrides.
func (j Job) Settings() (compress.Settings, error) {
	s := compress.DefaultSettings()
	if j.Options.ParamsFile != "" {
		ov, err := config.LoadParamsFile(j.Options.ParamsFile)
		if err != nil {
			return s, err
		}
		ov.Apply(&s)
	}
	j.Options.Overrides.Apply(&s)
	return s, s.Validate()
}

// Task returns the compressor task for j.
func (j Job) Task() (compress.Task, error) {
	s, err := j.Settings()
	if err != nil {
		return compress.Task{}, err
	}
	return compress.Task{
		Source:     j.Source,
		Output:     j.Output,
		StagingDir: j.StagingDir,
		CopyVideo:  j.Options.CopyVideo,
		Settings:   s,
	}, nil
}

// Args renders j as the equivalent single-video command line, used for
// dry runs and logs. Only explicit options appear.
func (j Job) Args() []string {
	args := []string{j.Source, j.DestDir}
	if j.StagingDir != "" && j.StagingDir != j.DestDir {
		args = append(args, "--tmp-dir", j.StagingDir)
	}
	if j.Options.ParamsFile != "" {
		args = append(args, "--params", j.Options.ParamsFile)
	}
	if j.Options.SingleObject {
		args = append(args, "--single-object")
	}
	if j.Options.CopyVideo {
		args = append(args, "--copy-video")
	}
	return args
}

// Plan creates the destination and staging directories for every source and
// returns one Job per source, in input order. Sources whose directories
// cannot be created, or whose output is already claimed, are left out; their
// errors are joined into the returned error.
func Plan(dest, staging *naming.Mapper, sources []string, opts Options, claims *naming.Claims) ([]Job, error) {
	if claims == nil {
		claims = naming.NewClaims()
	}
	jobs := make([]Job, 0, len(sources))
	var errs []error

	for _, src := range sources {
		output := dest.OutputPath(src)
		if owner, ok := claims.Claim(src, output); !ok {
			errs = append(errs, fmt.Errorf("%s -> %s (owned by %s): %w",
				src, output, filepath.Base(owner), ErrDuplicateTarget))
			continue
		}

		destDir := dest.DestDir(src)
		stageDir := destDir
		if staging != nil {
			stageDir = staging.DestDir(src)
		}
		if err := mkdirs(destDir, stageDir); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src, err))
			continue
		}

		jobs = append(jobs, Job{
			ID:         uuid.New(),
			Source:     src,
			DestDir:    destDir,
			StagingDir: stageDir,
			Output:     output,
			Options:    opts,
		})
	}
	return jobs, errors.Join(errs...)
}

func mkdirs(dirs ...string) error {
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
