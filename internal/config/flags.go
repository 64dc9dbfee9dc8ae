package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into paths, batch behavior, compression parameters, display, and utility.
// Compression parameter flags only become overrides when they appear on the
// command line, so a job inherits the compressor defaults (or the parameter
// file) for everything the user did not spell out.

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// ParseFlags parses os.Args into cfg. On --help or --version it prints and exits.
// On error it returns non-nil (e.g. unknown flag, missing positional args).
func ParseFlags(cfg *Config, version string) error {
	showHelp, showVersion, err := ParseArgs(cfg, os.Args[1:])
	if err != nil {
		return err
	}
	if showHelp {
		printUsage(version)
		os.Exit(0)
	}
	if showVersion {
		fmt.Fprintln(os.Stdout, "vidmask v"+version)
		os.Exit(0)
	}
	return nil
}

// ParseArgs parses args into cfg without touching the process. It reports
// whether help or version output was requested; in that case positional
// arguments are not required.
func ParseArgs(cfg *Config, args []string) (showHelp, showVersion bool, err error) {
	fs := flag.NewFlagSet("vidmask", flag.ContinueOnError)
	fs.Usage = func() {}

	var u utilityFlags
	var p paramFlags

	defineBatchFlags(fs, cfg)
	defineParamFlags(fs, &p)
	defineDisplayFlags(fs, cfg, &u)
	defineUtilityFlags(fs, &u)

	if err := fs.Parse(args); err != nil {
		return false, false, err
	}

	applyUtilityFlags(cfg, &u)
	fs.Visit(func(f *flag.Flag) { p.apply(cfg, f.Name) })

	if u.showHelp || u.showVersion {
		return u.showHelp, u.showVersion, nil
	}
	return false, false, parsePositionalArgs(fs, cfg)
}

// utilityFlags holds flags that are applied after Parse or trigger exit.
type utilityFlags struct {
	forceColor  bool
	noColor     bool
	showVersion bool
	showHelp    bool
}

// paramFlags receives the raw compression parameter values. Only the ones
// reported by fs.Visit are copied into cfg.Overrides.
type paramFlags struct {
	bufferSize       int
	saveFullInterval int
	maxFrames        int
	expectedFrames   int
	minArea          int
	maxArea          int
	hasTimestamp     bool
	threshBlockSize  int
	threshC          int
	dilationSize     int
}

// defineBatchFlags registers paths, discovery patterns, workers and job options.
func defineBatchFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.TmpDir, "tmp-dir", "", "Staging root for in-progress outputs (default: mask dir)")
	fs.Var(&patternListValue{&cfg.PatternInclude, true}, "pattern-include", "Comma-separated globs of videos to process")
	fs.Var(&patternListValue{&cfg.PatternExclude, true}, "pattern-exclude", "Comma-separated globs of videos to skip")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Videos compressed in parallel")
	fs.IntVar(&cfg.Workers, "j", cfg.Workers, "Same as --workers")
	fs.BoolVar(&cfg.SingleObject, "single-object", false, "Require .info.xml and .log.csv next to each video")
	fs.BoolVar(&cfg.CopyVideo, "copy-video", false, "Copy each video into the staging dir before reading it")
	fs.StringVar(&cfg.ParamsFile, "params", "", "YAML/JSON compression parameter file")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Classify and plan only; do not compress")
	fs.BoolVar(&cfg.DryRun, "d", false, "Same as --dry-run")
}

// defineParamFlags registers one flag per compression parameter.
func defineParamFlags(fs *flag.FlagSet, p *paramFlags) {
	fs.IntVar(&p.bufferSize, "buffer-size", 0, "Frames per ROI window")
	fs.IntVar(&p.saveFullInterval, "save-full-interval", 0, "Store an unmasked frame every N frames")
	fs.IntVar(&p.maxFrames, "max-frames", 0, "Stop after N frames (0 = whole video)")
	fs.IntVar(&p.expectedFrames, "expected-frames", 0, "Initial row capacity of the output")
	fs.IntVar(&p.minArea, "min-area", 0, "Smallest object area kept (pixels)")
	fs.IntVar(&p.maxArea, "max-area", 0, "Largest object area kept (pixels)")
	fs.BoolVar(&p.hasTimestamp, "has-timestamp", true, "Keep the burned-in timestamp box")
	fs.IntVar(&p.threshBlockSize, "thresh-block-size", 0, "Adaptive threshold block size (forced odd)")
	fs.IntVar(&p.threshC, "thresh-c", 0, "Adaptive threshold offset")
	fs.IntVar(&p.dilationSize, "dilation-size", 0, "Elliptical dilation kernel size")
}

func (p *paramFlags) apply(cfg *Config, name string) {
	ov := &cfg.Overrides
	switch name {
	case "buffer-size":
		ov.BufferSize = intPtr(p.bufferSize)
	case "save-full-interval":
		ov.SaveFullInterval = intPtr(p.saveFullInterval)
	case "max-frames":
		ov.MaxFrames = intPtr(p.maxFrames)
	case "expected-frames":
		ov.ExpectedFrames = intPtr(p.expectedFrames)
	case "min-area":
		ov.Mask.MinArea = intPtr(p.minArea)
	case "max-area":
		ov.Mask.MaxArea = intPtr(p.maxArea)
	case "has-timestamp":
		v := p.hasTimestamp
		ov.Mask.HasTimestamp = &v
	case "thresh-block-size":
		ov.Mask.ThreshBlockSize = intPtr(p.threshBlockSize)
	case "thresh-c":
		ov.Mask.ThreshC = intPtr(p.threshC)
	case "dilation-size":
		ov.Mask.DilationSize = intPtr(p.dilationSize)
	}
}

func intPtr(v int) *int { return &v }

// defineDisplayFlags registers --color, --no-color, verbose, --check, --log, --events.
func defineDisplayFlags(fs *flag.FlagSet, cfg *Config, u *utilityFlags) {
	fs.BoolVar(&u.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&u.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&cfg.Verbose, "v", false, "Same as --verbose")
	fs.BoolVar(&cfg.CheckOnly, "check", false, "Run system diagnostics and exit")
	fs.BoolVar(&cfg.CheckOnly, "c", false, "Same as --check")
	fs.StringVar(&cfg.LogFile, "log", "", "Append logs to file")
	fs.StringVar(&cfg.LogFile, "l", "", "Same as --log")
	fs.StringVar(&cfg.EventsFile, "events", "", "Append JSON progress events to file")
}

// defineUtilityFlags registers --version and --help.
func defineUtilityFlags(fs *flag.FlagSet, u *utilityFlags) {
	fs.BoolVar(&u.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&u.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&u.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&u.showHelp, "h", false, "Same as --help")
}

func applyUtilityFlags(cfg *Config, u *utilityFlags) {
	if u.noColor {
		cfg.ColorMode = ColorNever
	} else if u.forceColor {
		cfg.ColorMode = ColorAlways
	}
}

// parsePositionalArgs sets VideoDir and MaskDir from the two positional args when not in CheckOnly mode.
func parsePositionalArgs(fs *flag.FlagSet, cfg *Config) error {
	args := fs.Args()
	if cfg.CheckOnly {
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("need exactly video_dir and mask_dir")
	}
	cfg.VideoDir = NormalizeDirArg(args[0])
	cfg.MaskDir = NormalizeDirArg(args[1])
	cfg.TmpDir = NormalizeDirArg(cfg.TmpDir)
	return nil
}

// printUsage writes the help text to stderr. Column-aligned for readability.
func printUsage(version string) {
	const col1 = 30
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "vidmask v" + version + " - ROI-masked video compression"},
		{"", ""},
		{"  vidmask [OPTIONS] <video_dir> <mask_dir>", ""},
		{"", ""},
		{"Batch", ""},
		{"  --tmp-dir <dir>", "Staging root (default: mask dir)"},
		{"  --pattern-include <globs>", "Videos to process (default: all supported)"},
		{"  --pattern-exclude <globs>", "Videos to skip"},
		{"  -j, --workers <n>", "Parallel jobs (default: CPU count)"},
		{"  --single-object", "Require .info.xml/.log.csv sidecars"},
		{"  --copy-video", "Read from a staged copy of each video"},
		{"  -d, --dry-run", "Classify and plan only"},
		{"", ""},
		{"Compression", ""},
		{"  --params <file>", "YAML/JSON parameter file"},
		{"  --buffer-size <n>", "Frames per ROI window (default: 25)"},
		{"  --save-full-interval <n>", "Unmasked frame every N (default: 5000)"},
		{"  --max-frames <n>", "Frame cap (default: none)"},
		{"  --expected-frames <n>", "Initial row capacity (default: 15000)"},
		{"  --min-area <px>", "Smallest object (default: 100)"},
		{"  --max-area <px>", "Largest object (default: 5000)"},
		{"  --has-timestamp=<bool>", "Keep timestamp box (default: true)"},
		{"  --thresh-block-size <n>", "Threshold block (default: 61)"},
		{"  --thresh-c <n>", "Threshold offset (default: 15)"},
		{"  --dilation-size <n>", "Dilation kernel (default: 9)"},
		{"", ""},
		{"Display", ""},
		{"  --color", "Force colored logs"},
		{"  --no-color", "Disable colored logs"},
		{"  -v, --verbose", "Verbose output"},
		{"", ""},
		{"Utility", ""},
		{"  -l, --log <path>", "Append logs to file"},
		{"  --events <path>", "Append JSON progress events to file"},
		{"  -c, --check", "System diagnostics (ffmpeg, ffprobe)"},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(os.Stderr)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(os.Stderr, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(os.Stderr, l.desc)
			continue
		}
		padding := col1 - len(l.flags)
		if padding < 1 {
			padding = 1
		}
		fmt.Fprintf(os.Stderr, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}

// patternListValue adapts a comma-separated glob list to flag.Var. The first
// Set replaces the defaults; later ones append, so the flag may repeat.
type patternListValue struct {
	p     *[]string
	fresh bool
}

func (v *patternListValue) String() string {
	if v.p == nil {
		return ""
	}
	return strings.Join(*v.p, ",")
}

func (v *patternListValue) Set(s string) error {
	if v.fresh {
		*v.p = nil
		v.fresh = false
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		*v.p = append(*v.p, part)
	}
	return nil
}
