package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/backmassage/vidmask/internal/container"
)

// ReservedSegment is the directory name every destination root must contain
// exactly once.
const ReservedSegment = "MaskedVideos"

// IsReservedSegment reports whether a single path element is the reserved
// directory name. The match is exact.
func IsReservedSegment(name string) bool { return name == ReservedSegment }

// ErrReservedSegment is returned when a root contains ReservedSegment more
// than once.
var ErrReservedSegment = errors.New(`only one directory may be named "` + ReservedSegment + `"`)

// Mapper maps paths under SourceRoot to the mirrored location under
// DestRoot. Both roots are absolute and clean.
type Mapper struct {
	SourceRoot string
	DestRoot   string
}

// NewMapper returns a Mapper with destRoot normalized by NormalizeRoot.
func NewMapper(sourceRoot, destRoot string) (*Mapper, error) {
	src, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, err
	}
	dst, err := NormalizeRoot(destRoot)
	if err != nil {
		return nil, err
	}
	return &Mapper{SourceRoot: src, DestRoot: dst}, nil
}

// NormalizeRoot returns root as an absolute path holding exactly one
// MaskedVideos segment, appending it when absent.
func NormalizeRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	n := 0
	for _, part := range strings.Split(abs, string(filepath.Separator)) {
		if IsReservedSegment(part) {
			n++
		}
	}
	switch n {
	case 0:
		return filepath.Join(abs, ReservedSegment), nil
	case 1:
		return abs, nil
	default:
		return "", fmt.Errorf("%s: %w", abs, ErrReservedSegment)
	}
}

// DestDir returns the destination directory for sourcePath: its parent
// directory with the source-root prefix replaced by the destination root.
// A source outside SourceRoot maps directly into DestRoot.
func (m *Mapper) DestDir(sourcePath string) string {
	dir := filepath.Dir(sourcePath)
	rel, err := filepath.Rel(m.SourceRoot, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return m.DestRoot
	}
	return filepath.Join(m.DestRoot, rel)
}

// OutputPath returns DestDir(sourcePath)/<stem>.mvc.
func (m *Mapper) OutputPath(sourcePath string) string {
	return filepath.Join(m.DestDir(sourcePath), OutputName(sourcePath))
}

// OutputName returns the container file name for sourcePath.
func OutputName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + container.Extension
}
