package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/backmassage/vidmask/internal/config"
	"github.com/backmassage/vidmask/internal/container"
	"github.com/backmassage/vidmask/internal/framesource"
	"github.com/backmassage/vidmask/internal/logging"
	"github.com/backmassage/vidmask/internal/naming"
)

// --- Helpers ---

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func basenames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func sliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// writeContainer writes a container with rows keep-frames at path, finished
// or not.
func writeContainer(t *testing.T, path string, rows int, finish bool) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	w, err := container.Create(path, container.Options{Width: 8, Height: 6, ExpectedFrames: 4, SaveInterval: 5})
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewGray(image.Rect(0, 0, 8, 6))
	for i := 0; i < rows; i++ {
		if err := w.AppendMask(img); err != nil {
			t.Fatal(err)
		}
		w.AppendPosition(int64(i), float64(i)*40)
	}
	if !finish {
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		return
	}
	if err := w.Finalize(rows, 0); err != nil {
		t.Fatal(err)
	}
}

// probeByName treats sources whose name starts with "bad" as unreadable.
func probeByName(_ context.Context, path string) error {
	if strings.HasPrefix(filepath.Base(path), "bad") {
		return fmt.Errorf("%w: cannot decode", framesource.ErrUnreadable)
	}
	return nil
}

// gradientSource serves frames frames of a fixed 16x12 gradient.
type gradientSource struct {
	frames, n int
}

func (s *gradientSource) Kind() framesource.Kind { return framesource.KindVideo }
func (s *gradientSource) Dimensions() (int, int) { return 16, 12 }
func (s *gradientSource) Close() error { return nil }
func (s *gradientSource) Next(dst *image.Gray) (framesource.FrameInfo, error) {
	if s.n >= s.frames {
		return framesource.FrameInfo{}, io.EOF
	}
	for i := range dst.Pix {
		dst.Pix[i] = uint8(i)
	}
	s.n++
	return framesource.FrameInfo{Index: int64(s.n - 1), HasIndex: true, TimestampMS: float64(s.n-1) * 40}, nil
}

func openGradient(context.Context, string) (framesource.Source, error) {
	return &gradientSource{frames: 7}, nil
}

func testConfig(t *testing.T, videoDir, maskDir string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.VideoDir, cfg.MaskDir = videoDir, maskDir
	cfg.ColorMode = config.ColorNever
	cfg.Workers = 2
	cfg.LogFile = filepath.Join(t.TempDir(), "run.log")
	return &cfg
}

func testRunner(t *testing.T, cfg *config.Config) *Runner {
	t.Helper()
	log, err := logging.NewLogger(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { log.Close() })
	return &Runner{Config: cfg, Log: log, Probe: probeByName, Open: openGradient}
}

func classifier(t *testing.T, videoDir, maskDir string) *Classifier {
	t.Helper()
	m, err := naming.NewMapper(videoDir, maskDir)
	if err != nil {
		t.Fatal(err)
	}
	return &Classifier{Mapper: m, Probe: probeByName}
}

// --- Discover tests ---

func TestDiscover_DefaultPatterns(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.avi")
	touch(t, dir, "b.mjpg")
	touch(t, dir, "rig1/c.mp4")
	touch(t, dir, "notes.txt")
	touch(t, dir, "clip.info.xml")

	files, err := Discover(dir, config.DefaultIncludePatterns(), nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	want := []string{"a.avi", "b.mjpg", "c.mp4"}
	if got := basenames(files); !sliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDiscover_IncludeExclude(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "day1_cam1.avi")
	touch(t, dir, "day1_cam2.avi")
	touch(t, dir, "day2_cam1.avi")
	touch(t, dir, "day1_cam1.txt")

	files, err := Discover(dir, []string{"day1_*"}, []string{"*cam2*"})
	if err != nil {
		t.Fatal(err)
	}
	if got := basenames(files); !sliceEqual(got, []string{"day1_cam1.avi"}) {
		t.Errorf("got %v", got)
	}
}

func TestDiscover_PrunesMaskedVideos(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.avi")
	touch(t, dir, "MaskedVideos/a.mvc")
	touch(t, dir, "rig/MaskedVideos/b.avi")

	files, err := Discover(dir, config.DefaultIncludePatterns(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := basenames(files); !sliceEqual(got, []string{"a.avi"}) {
		t.Errorf("got %v, want only a.avi", got)
	}
}

func TestDiscover_ReservedNameIsCaseSensitive(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "maskedvideos/a.avi")
	touch(t, dir, "MaskedVideos/b.avi")

	files, err := Discover(dir, config.DefaultIncludePatterns(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := basenames(files); !sliceEqual(got, []string{"a.avi"}) {
		t.Errorf("got %v, want only a.avi", got)
	}
	// The same name is not reserved for the mask root either.
	root, err := naming.NormalizeRoot(filepath.Join(dir, "maskedvideos"))
	if err != nil || filepath.Base(root) != naming.ReservedSegment {
		t.Errorf("NormalizeRoot = %q, %v", root, err)
	}
}

func TestDiscover_RootNamedMaskedVideos(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "MaskedVideos")
	touch(t, dir, "old.mvc")

	files, err := Discover(dir, config.DefaultIncludePatterns(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("got %v, want the stack file under the root", files)
	}
}

// --- Classify tests ---

func TestClassify_States(t *testing.T) {
	root := t.TempDir()
	videos, masks := filepath.Join(root, "videos"), filepath.Join(root, "masks")
	c := classifier(t, videos, masks)

	newSrc := touch(t, videos, "new.avi")
	badSrc := touch(t, videos, "bad.avi")
	doneSrc := touch(t, videos, "done.avi")
	partialSrc := touch(t, videos, "partial.avi")
	emptySrc := touch(t, videos, "empty.avi")
	junkSrc := touch(t, videos, "junk.avi")

	writeContainer(t, c.Mapper.OutputPath(doneSrc), 3, true)
	writeContainer(t, c.Mapper.OutputPath(partialSrc), 3, false)
	writeContainer(t, c.Mapper.OutputPath(emptySrc), 0, true)
	touch(t, c.Mapper.DestRoot, "junk.mvc")

	tests := []struct {
		src     string
		want    State
		wantErr error
	}{
		{newSrc, SourceGood, nil},
		{badSrc, SourceBad, framesource.ErrUnreadable},
		{doneSrc, FinishedGood, nil},
		{partialSrc, FinishedBad, container.ErrNotFinished},
		{emptySrc, FinishedBad, container.ErrCorrupt},
		{junkSrc, FinishedBad, container.ErrCorrupt},
	}
	for _, tt := range tests {
		r := c.Classify(context.Background(), tt.src)
		if r.State != tt.want {
			t.Errorf("%s: state %s, want %s (err %v)", filepath.Base(tt.src), r.State, tt.want, r.Err)
		}
		if tt.wantErr != nil && !errors.Is(r.Err, tt.wantErr) {
			t.Errorf("%s: err %v, want %v", filepath.Base(tt.src), r.Err, tt.wantErr)
		}
	}
}

func TestClassify_SingleObjectNeedsSidecars(t *testing.T) {
	root := t.TempDir()
	videos := filepath.Join(root, "videos")
	c := classifier(t, videos, filepath.Join(root, "masks"))
	c.SingleObject = true

	src := touch(t, videos, "worm.avi")
	if r := c.Classify(context.Background(), src); r.State != SourceBad || !errors.Is(r.Err, framesource.ErrMissingSidecar) {
		t.Fatalf("without sidecars: %s, %v", r.State, r.Err)
	}

	touch(t, videos, "worm.info.xml")
	touch(t, videos, "worm.log.csv")
	if r := c.Classify(context.Background(), src); r.State != SourceGood {
		t.Errorf("with sidecars: %s, %v", r.State, r.Err)
	}
}

func TestClassifyAll_PartitionsAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	videos := filepath.Join(root, "videos")
	c := classifier(t, videos, filepath.Join(root, "masks"))

	var sources []string
	for i := 0; i < 25; i++ {
		name := fmt.Sprintf("v%02d.avi", i)
		if i%4 == 0 {
			name = "bad" + name
		}
		src := touch(t, videos, name)
		switch i % 4 {
		case 1:
			writeContainer(t, c.Mapper.OutputPath(src), 2, true)
		case 2:
			writeContainer(t, c.Mapper.OutputPath(src), 2, false)
		}
		sources = append(sources, src)
	}

	rep := &countReporter{}
	c.Progress = rep
	first := c.ClassifyAll(context.Background(), sources)
	second := c.ClassifyAll(context.Background(), sources)

	if first.Len() != len(sources) {
		t.Fatalf("partition holds %d records, want %d", first.Len(), len(sources))
	}
	seen := map[string]bool{}
	for _, bucket := range [][]Record{first.SourceGood, first.SourceBad, first.FinishedGood, first.FinishedBad} {
		for _, r := range bucket {
			if seen[r.Source] {
				t.Errorf("%s in two buckets", r.Source)
			}
			seen[r.Source] = true
		}
	}
	if fmt.Sprint(first.Counts()) != fmt.Sprint(second.Counts()) {
		t.Errorf("second pass %v, first %v", second.Counts(), first.Counts())
	}
	if got := rep.dones; !intsEqual(got, []int{10, 20, 25, 10, 20, 25}) {
		t.Errorf("progress updates %v", got)
	}
}

type countReporter struct{ dones []int }

func (r *countReporter) Update(_ string, done, _ int) { r.dones = append(r.dones, done) }

func intsEqual(a, b []int) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// --- Recover tests ---

func TestRecover_EmptiesFinishedBad(t *testing.T) {
	root := t.TempDir()
	videos := filepath.Join(root, "videos")
	c := classifier(t, videos, filepath.Join(root, "masks"))

	partial := touch(t, videos, "partial.avi")
	badPartial := touch(t, videos, "bad_partial.avi")
	readOnly := touch(t, videos, "ro.avi")
	done := touch(t, videos, "done.avi")
	writeContainer(t, c.Mapper.OutputPath(partial), 2, false)
	writeContainer(t, c.Mapper.OutputPath(badPartial), 2, false)
	writeContainer(t, c.Mapper.OutputPath(readOnly), 2, false)
	writeContainer(t, c.Mapper.OutputPath(done), 2, true)
	if err := os.Chmod(c.Mapper.OutputPath(readOnly), 0o444); err != nil {
		t.Fatal(err)
	}

	b := c.ClassifyAll(context.Background(), []string{badPartial, done, partial, readOnly})
	if len(b.FinishedBad) != 3 {
		t.Fatalf("FinishedBad = %d, want 3", len(b.FinishedBad))
	}

	got, errs := Recover(context.Background(), c, b)
	if len(errs) != 0 {
		t.Fatalf("Recover errors: %v", errs)
	}
	if len(got.FinishedBad) != 0 {
		t.Errorf("FinishedBad not empty: %v", got.FinishedBad)
	}
	if got.Len() != 4 {
		t.Errorf("partition holds %d records, want 4", got.Len())
	}
	if names := basenames(Sources(got.SourceGood)); !sliceEqual(names, []string{"partial.avi", "ro.avi"}) {
		t.Errorf("SourceGood = %v", names)
	}
	if names := basenames(Sources(got.SourceBad)); !sliceEqual(names, []string{"bad_partial.avi"}) {
		t.Errorf("SourceBad = %v", names)
	}
	for _, src := range []string{partial, badPartial, readOnly} {
		if _, err := os.Stat(c.Mapper.OutputPath(src)); !os.IsNotExist(err) {
			t.Errorf("%s output still present", filepath.Base(src))
		}
	}
	if _, err := os.Stat(c.Mapper.OutputPath(done)); err != nil {
		t.Errorf("finished output removed: %v", err)
	}
}

// --- Lock tests ---

func TestRunLock(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireRunLock(dir)
	if err != nil {
		t.Fatal(err)
	}
	_, err = AcquireRunLock(dir)
	if !errors.Is(err, ErrLocked) || !strings.Contains(err.Error(), fmt.Sprintf("pid=%d", os.Getpid())) {
		t.Errorf("second acquire err = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
	again, err := AcquireRunLock(dir)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again.Release()
	if err := (RunLock{}).Release(); err != nil {
		t.Errorf("zero lock release: %v", err)
	}
}

// --- Run tests ---

// A batch with an unreadable video, a finished output and a new video
// compresses only the new one; a second run does nothing.
func TestRun_BadDoneNew(t *testing.T) {
	root := t.TempDir()
	videos, masks := filepath.Join(root, "videos"), filepath.Join(root, "masks")
	touch(t, videos, "bad.avi")
	done := touch(t, videos, "done.avi")
	touch(t, videos, "sub/new.avi")
	doneOut := filepath.Join(masks, "MaskedVideos", "done.mvc")
	writeContainer(t, doneOut, 3, true)
	before, _ := os.Stat(doneOut)

	cfg := testConfig(t, videos, masks)
	stats, err := testRunner(t, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Discovered != 3 || stats.SourceBad != 1 || stats.Finished != 1 || stats.Done != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}

	newOut := filepath.Join(masks, "MaskedVideos", "sub", "new.mvc")
	info, err := container.Probe(newOut)
	if err != nil || !info.Finished || info.MaskRows != 7 {
		t.Errorf("new output: %+v, %v", info, err)
	}
	if _, err := os.Stat(filepath.Join(masks, "MaskedVideos", "bad.mvc")); !os.IsNotExist(err) {
		t.Error("output written for unreadable source")
	}
	after, _ := os.Stat(doneOut)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Errorf("finished output for %s rewritten", filepath.Base(done))
	}
	if _, err := os.Stat(filepath.Join(masks, "MaskedVideos", runLockDirName)); !os.IsNotExist(err) {
		t.Error("run lock not released")
	}

	again, err := testRunner(t, cfg).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again.Done != 0 || again.Finished != 2 || again.Planned != 0 {
		t.Errorf("second run stats = %+v", again)
	}
}

func TestRun_RecoversUnfinishedOutput(t *testing.T) {
	root := t.TempDir()
	videos, masks := filepath.Join(root, "videos"), filepath.Join(root, "masks")
	touch(t, videos, "clip.avi")
	out := filepath.Join(masks, "MaskedVideos", "clip.mvc")
	writeContainer(t, out, 2, false)

	cfg := testConfig(t, videos, masks)
	stats, err := testRunner(t, cfg).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Recovered != 1 || stats.Done != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if info, err := container.Probe(out); err != nil || !info.Finished || info.MaskRows != 7 {
		t.Errorf("recovered output: %+v, %v", info, err)
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	videos, masks := filepath.Join(root, "videos"), filepath.Join(root, "masks")
	touch(t, videos, "a.avi")
	touch(t, videos, "b.avi")

	cfg := testConfig(t, videos, masks)
	cfg.DryRun = true
	stats, err := testRunner(t, cfg).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Planned != 2 || stats.Done != 0 {
		t.Errorf("stats = %+v", stats)
	}
	matches, _ := filepath.Glob(filepath.Join(masks, "MaskedVideos", "*.mvc"))
	if len(matches) != 0 {
		t.Errorf("dry run wrote %v", matches)
	}
	log, _ := os.ReadFile(cfg.LogFile)
	if !strings.Contains(string(log), "[DRY] vidmask "+filepath.Join(videos, "a.avi")) {
		t.Errorf("dry-run log missing job line:\n%s", log)
	}
}

func TestRun_StagingDirAndEvents(t *testing.T) {
	root := t.TempDir()
	videos, masks, tmp := filepath.Join(root, "videos"), filepath.Join(root, "masks"), filepath.Join(root, "tmp")
	touch(t, videos, "a.avi")

	cfg := testConfig(t, videos, masks)
	cfg.TmpDir = tmp
	cfg.EventsFile = filepath.Join(root, "events.jsonl")
	if _, err := testRunner(t, cfg).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(masks, "MaskedVideos", "a.mvc")); err != nil {
		t.Errorf("output not moved out of staging: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, "MaskedVideos", "a.mvc")); !os.IsNotExist(err) {
		t.Error("staged copy left behind")
	}

	data, err := os.ReadFile(cfg.EventsFile)
	if err != nil {
		t.Fatal(err)
	}
	var events []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		for _, ev := range []string{"batch.started", "job.started", "job.finished"} {
			if strings.Contains(line, `"event":"`+ev+`"`) {
				events = append(events, ev)
			}
		}
	}
	sort.Strings(events)
	if !sliceEqual(events, []string{"batch.started", "job.finished", "job.started"}) {
		t.Errorf("events = %v", events)
	}
}

func TestRun_LockedDestination(t *testing.T) {
	root := t.TempDir()
	videos, masks := filepath.Join(root, "videos"), filepath.Join(root, "masks")
	touch(t, videos, "a.avi")
	lock, err := AcquireRunLock(mustMkdir(t, filepath.Join(masks, "MaskedVideos")))
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	_, err = testRunner(t, testConfig(t, videos, masks)).Run(context.Background())
	if !errors.Is(err, ErrLocked) {
		t.Errorf("err = %v, want ErrLocked", err)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	root := t.TempDir()
	videos, masks := filepath.Join(root, "videos"), filepath.Join(root, "masks")
	touch(t, videos, "a.avi")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := testRunner(t, testConfig(t, videos, masks)).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if stats.Done != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func mustMkdir(t *testing.T, dir string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}
