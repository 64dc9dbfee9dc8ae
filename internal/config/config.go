// Package config holds runtime configuration: defaults, CLI flag parsing,
// the compression parameter file, and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/backmassage/vidmask/internal/compress"
	"github.com/backmassage/vidmask/internal/framesource"
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Config holds all runtime settings. It is populated by [DefaultConfig] and
// then mutated by [ParseFlags] before being passed (by pointer) to packages
// that need it.
type Config struct {
	// Paths (set from positional args).
	VideoDir string // Source root.
	MaskDir  string // Destination root; normalized to hold one MaskedVideos segment.
	TmpDir   string // Staging root. Empty means MaskDir.

	// Discovery.
	PatternInclude []string // Default: one glob per supported video extension.
	PatternExclude []string

	// Batch behavior.
	Workers      int  // Default: runtime.NumCPU().
	SingleObject bool // Require .info.xml/.log.csv sidecars next to each video.
	CopyVideo    bool // Copy each source into the staging dir before reading it.
	DryRun       bool

	// Compression. ParamsFile is handed to every job as-is; Overrides only
	// carries the per-parameter flags that were given on the command line.
	ParamsFile string
	Overrides  compress.Overrides

	// Display and logging.
	Verbose    bool
	ColorMode  ColorMode // Default: "auto".
	LogFile    string    // Optional log file path.
	EventsFile string    // Optional JSON-lines event log.
	CheckOnly  bool      // Run --check diagnostics and exit.
}

// DefaultConfig returns a Config with defaults applied. Used as the base
// before [ParseFlags] applies CLI overrides.
func DefaultConfig() Config {
	return Config{
		PatternInclude: DefaultIncludePatterns(),
		Workers:        runtime.NumCPU(),
		ColorMode:      ColorAuto,
	}
}

// DefaultIncludePatterns returns one "*.ext" glob per extension that
// framesource can open.
func DefaultIncludePatterns() []string {
	exts := framesource.Extensions()
	out := make([]string, len(exts))
	for i, ext := range exts {
		out[i] = "*" + ext
	}
	return out
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// Validate checks enum fields, worker count, glob syntax, the parameter file
// and, when not in CheckOnly mode, that both directory paths are set. Every
// error returned here is fatal at startup.
func (c *Config) Validate() error {
	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1 (got %d)", c.Workers)
	}
	if len(c.PatternInclude) == 0 {
		return errors.New("at least one include pattern is required")
	}
	for _, p := range append(append([]string{}, c.PatternInclude...), c.PatternExclude...) {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}

	// Resolve the settings a job would see so bad values fail here instead
	// of once per video.
	s := compress.DefaultSettings()
	if c.ParamsFile != "" {
		if _, err := os.Stat(c.ParamsFile); err != nil {
			return fmt.Errorf("parameter file not found: %s", c.ParamsFile)
		}
		ov, err := LoadParamsFile(c.ParamsFile)
		if err != nil {
			return err
		}
		ov.Apply(&s)
	}
	c.Overrides.Apply(&s)
	if err := s.Validate(); err != nil {
		return err
	}

	if c.CheckOnly {
		return nil
	}
	if c.VideoDir == "" || c.MaskDir == "" {
		return errors.New("need exactly video_dir and mask_dir")
	}
	return nil
}

// ValidatePaths ensures the resolved destination root is not the resolved
// source root, which would place outputs next to the videos they came from.
// Both arguments must be absolute, symlink-resolved paths.
func (c *Config) ValidatePaths(videoAbs, maskAbs string) error {
	if filepath.Clean(videoAbs) == filepath.Clean(maskAbs) {
		return errors.New("mask directory must not be the video directory")
	}
	return nil
}
