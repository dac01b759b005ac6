package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/uranc/slmea/errs"
	"github.com/uranc/slmea/fsutil"
)

const batchExt = ".ckpt"

// FileSink writes each batch to <Dir>/<Prefix>_<first>-<last>.ckpt.
type FileSink struct {
	fs     fsutil.FileSystem
	dir    string
	prefix string
}

// NewFileSink creates dir if needed and returns a sink writing into it. A
// directory that already exists, including one created concurrently, is not
// an error.
func NewFileSink(fsys fsutil.FileSystem, dir, prefix string) (*FileSink, error) {
	if err := ensureDir(fsys, dir); err != nil {
		return nil, err
	}
	return &FileSink{fs: fsys, dir: dir, prefix: prefix}, nil
}

func ensureDir(fsys fsutil.FileSystem, dir string) error {
	if err := fsys.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: create %s: %w", errs.ErrPersistence, dir, err)
	}
	return nil
}

// BatchName returns the file name of a batch. Batches of a run are named
// prefix_run_first-last so repeated runs under one prefix never collide.
func BatchName(prefix, runID string, first, last int) string {
	if runID == "" {
		return fmt.Sprintf("%s_%d-%d%s", prefix, first, last, batchExt)
	}
	return fmt.Sprintf("%s_%s_%d-%d%s", prefix, runID, first, last, batchExt)
}

// WriteBatch implements Sink.
func (s *FileSink) WriteBatch(b Batch) error {
	if err := ensureDir(s.fs, s.dir); err != nil {
		return err
	}
	blob, err := encode(b)
	if err != nil {
		return fmt.Errorf("%w: encode batch: %w", errs.ErrPersistence, err)
	}
	name := filepath.Join(s.dir, BatchName(s.prefix, b.RunID, b.First(), b.Last()))
	if err := s.fs.WriteFile(name, blob, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", errs.ErrPersistence, name, err)
	}
	return nil
}

// LoadBatches reads every batch written under dir with prefix, ordered by run
// and then by first iteration.
func LoadBatches(fsys fsutil.FileSystem, dir, prefix string) ([]Batch, error) {
	names, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var res []Batch
	for _, name := range names {
		if !strings.HasPrefix(name, prefix+"_") || !strings.HasSuffix(name, batchExt) {
			continue
		}
		blob, err := fsys.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var b Batch
		if err := decode(blob, &b); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		res = append(res, b)
	}
	sortBatches(res)
	return res, nil
}

// sortBatches orders batches by run, then by first iteration. Run ids are
// time-ordered, so runs come out oldest first.
func sortBatches(bs []Batch) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].RunID != bs[j].RunID {
			return bs[i].RunID < bs[j].RunID
		}
		return bs[i].First() < bs[j].First()
	})
}

// SelectRun returns the batches of runID, or of the most recent run when
// runID is empty.
func SelectRun(batches []Batch, runID string) []Batch {
	if runID == "" && len(batches) > 0 {
		runID = batches[0].RunID
		for _, b := range batches[1:] {
			runID = max(runID, b.RunID)
		}
	}
	var res []Batch
	for _, b := range batches {
		if b.RunID == runID {
			res = append(res, b)
		}
	}
	return res
}

// Runs returns the distinct run ids in batches, in order of appearance.
func Runs(batches []Batch) []string {
	var res []string
	for _, b := range batches {
		if len(res) == 0 || res[len(res)-1] != b.RunID {
			res = append(res, b.RunID)
		}
	}
	return res
}

// Iterates flattens batches into one ordered sequence.
func Iterates(batches []Batch) []Iterate {
	var res []Iterate
	for _, b := range batches {
		res = append(res, b.Iterates...)
	}
	return res
}
