package pipeline

import (
	"context"
	"fmt"
	"os"
)

// Recover deletes the output of every FinishedBad record and reclassifies its
// source. The returned buckets have no FinishedBad records: a source whose
// output cannot be deleted is moved to SourceBad and its error returned.
func Recover(ctx context.Context, c *Classifier, b Buckets) (Buckets, []error) {
	out := Buckets{
		SourceGood:   append([]Record(nil), b.SourceGood...),
		SourceBad:    append([]Record(nil), b.SourceBad...),
		FinishedGood: append([]Record(nil), b.FinishedGood...),
	}
	var errs []error

	for _, r := range b.FinishedBad {
		if err := removeOutput(r.Output); err != nil {
			err = fmt.Errorf("remove %s: %w", r.Output, err)
			errs = append(errs, err)
			out.add(Record{Source: r.Source, Output: r.Output, State: SourceBad, Err: err})
			continue
		}
		nr := c.Classify(ctx, r.Source)
		if nr.State == FinishedBad {
			// Only possible if something recreated the output meanwhile.
			nr.State = SourceBad
		}
		out.add(nr)
	}
	return out, errs
}

// removeOutput makes path writable and deletes it.
func removeOutput(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := clearImmutable(path); err != nil {
		return err
	}
	if fi.Mode().IsRegular() && fi.Mode().Perm()&0o200 == 0 {
		if err := os.Chmod(path, fi.Mode().Perm()|0o200); err != nil {
			return err
		}
	}
	return os.Remove(path)
}
