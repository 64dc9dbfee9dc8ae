package pipeline

import (
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/backmassage/vidmask/internal/framesource"
	"github.com/backmassage/vidmask/internal/naming"
)

// Discover walks root and returns every file whose base name matches one of
// include and none of exclude, and whose extension framesource can open.
// Directories named MaskedVideos below root are pruned so a batch never
// picks up its own outputs. Paths are sorted lexicographically.
func Discover(root string, include, exclude []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && naming.IsReservedSegment(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !matchAny(include, name) || matchAny(exclude, name) {
			return nil
		}
		if _, ok := framesource.KindOf(path); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// matchAny reports whether name matches any pattern. Patterns were checked
// by config.Validate, so match errors are treated as no match.
func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
