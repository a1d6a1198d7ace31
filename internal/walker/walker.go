package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"dupmover/internal/filter"
	"dupmover/internal/hash"
	"dupmover/internal/metrics"
	"dupmover/internal/mover"
	"dupmover/internal/record"
)

// SkipReason classifies why a file was not considered for duplicate detection.
type SkipReason string

const (
	SkipExcludedDirectory SkipReason = SkipReason(filter.ExcludedDirectory)
	SkipHidden            SkipReason = SkipReason(filter.Hidden)
	SkipExcludedExtension SkipReason = SkipReason(filter.ExcludedExtension)
	SkipUnreadable        SkipReason = "unreadable"
	SkipDigestFailure     SkipReason = "digest-failure"
	SkipNotRegular        SkipReason = "not-regular"
	SkipDuplicateFolder   SkipReason = "duplicate-folder"
	SkipWalkError         SkipReason = "walk-error"
)

// Candidate is a file found during traversal.
type Candidate struct {
	Path string // absolute
	Name string // lowercase base name
	Dir  string // containing directory
}

// Skip records one file (or directory) left out of the run.
type Skip struct {
	Path   string
	Reason SkipReason
	Err    error
}

// Progress receives per-file updates during a run.
type Progress interface {
	SetDirectory(dir string)
	Increment(duplicate bool)
}

type Options struct {
	Root     string
	Mover    *mover.Mover
	Filter   *filter.Policy
	Hasher   *hash.Hasher
	Logger   zerolog.Logger
	Metrics  *metrics.Collector
	Progress Progress
}

type Result struct {
	Root       string
	Duplicates []record.Duplicate
	Skipped    []Skip
	Processed  int
	Unique     int
	// Errors holds relocation failures; each also has a record in Duplicates.
	Errors []error
}

// SkipCount returns how many skips carry reason.
func (r *Result) SkipCount(reason SkipReason) int {
	n := 0
	for _, s := range r.Skipped {
		if s.Reason == reason {
			n++
		}
	}
	return n
}

// Moved returns how many duplicates were relocated successfully.
func (r *Result) Moved() int {
	n := 0
	for _, d := range r.Duplicates {
		if d.Moved {
			n++
		}
	}
	return n
}

type run struct {
	opts   Options
	root   string
	folder fs.FileInfo
	seen   map[string]string // digest -> first path
	result *Result
}

// Run walks Root, moving every file whose digest was already seen into the
// mover's folder. Within a directory files are handled before
// subdirectories, both in name order; the first file seen with a digest
// stays in place. Per-file failures are recorded and never stop the walk.
// Cancelling ctx stops between files and returns the partial result.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Mover == nil || opts.Hasher == nil {
		return nil, errors.New("walker: mover and hasher are required")
	}
	if opts.Filter == nil {
		opts.Filter = filter.New(nil, nil, nil)
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	if err := opts.Mover.EnsureFolder(); err != nil {
		return nil, err
	}
	// Paths may differ through symlinks; compare the directories themselves.
	folder, err := os.Stat(opts.Mover.Folder())
	if err != nil {
		return nil, fmt.Errorf("failed to stat duplicate folder: %w", err)
	}
	if os.SameFile(folder, info) {
		return nil, fmt.Errorf("duplicate folder must differ from the scanned directory: %s", root)
	}

	r := &run{
		opts:   opts,
		root:   root,
		folder: folder,
		seen:   make(map[string]string),
		result: &Result{Root: root},
	}

	if err := r.walkDir(ctx, root); err != nil {
		return r.result, err
	}
	r.result.Unique = len(r.seen)
	return r.result, nil
}

func (r *run) walkDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if dir == r.root {
			return fmt.Errorf("failed to walk directory: %w", err)
		}
		// ReadDir may return a partial listing; use what we got.
		r.skip(dir, SkipWalkError, err)
	}

	if r.opts.Progress != nil {
		r.opts.Progress.SetDirectory(dir)
	}

	var subdirs []fs.DirEntry
	for _, entry := range entries {
		if entry.IsDir() {
			subdirs = append(subdirs, entry)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r.processFile(filepath.Join(dir, entry.Name()), entry)
	}

	for _, entry := range subdirs {
		sub := filepath.Join(dir, entry.Name())
		if r.isFolder(entry) {
			r.skip(sub, SkipDuplicateFolder, nil)
			continue
		}
		if err := r.walkDir(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}

// isFolder reports whether entry is the duplicate folder.
func (r *run) isFolder(entry fs.DirEntry) bool {
	info, err := entry.Info()
	if err != nil {
		return false
	}
	return os.SameFile(info, r.folder)
}

func (r *run) processFile(path string, entry fs.DirEntry) {
	if !entry.Type().IsRegular() {
		r.skip(path, SkipNotRegular, nil)
		return
	}

	cand := Candidate{
		Path: path,
		Name: strings.ToLower(entry.Name()),
		Dir:  filepath.Dir(path),
	}

	relPath, err := filepath.Rel(r.root, cand.Path)
	if err != nil {
		r.skip(path, SkipWalkError, err)
		return
	}
	if reason := r.opts.Filter.Check(cand.Dir, relPath, cand.Name); reason != filter.Included {
		r.skip(path, SkipReason(reason), nil)
		return
	}

	// Make sure we can read the file before hashing it.
	f, err := os.Open(cand.Path)
	if err != nil {
		r.skip(path, SkipUnreadable, err)
		return
	}
	f.Close()

	digest, err := r.opts.Hasher.HashFile(cand.Path)
	if err != nil {
		r.skip(path, SkipDigestFailure, err)
		return
	}

	r.result.Processed++
	if r.opts.Metrics != nil {
		r.opts.Metrics.Processed()
	}
	r.opts.Logger.Info().Str("digest", digest).Str("path", path).Msg("File processed")

	original, ok := r.seen[digest]
	if !ok {
		r.seen[digest] = cand.Path
		r.progress(false)
		return
	}

	rec, err := r.opts.Mover.Relocate(original, cand.Path, digest)
	r.result.Duplicates = append(r.result.Duplicates, rec)
	if r.opts.Metrics != nil {
		r.opts.Metrics.Duplicate(rec.Moved, rec.Size)
	}
	r.progress(true)

	var event *zerolog.Event
	if err != nil {
		r.result.Errors = append(r.result.Errors, err)
		event = r.opts.Logger.Warn().Err(err)
	} else {
		event = r.opts.Logger.Info()
	}
	event.
		Str("original", original).
		Str("duplicate", cand.Path).
		Str("destination", rec.MovedTo).
		Bool("moved", rec.Moved).
		Msg("Duplicate found")
}

func (r *run) skip(path string, reason SkipReason, err error) {
	r.result.Skipped = append(r.result.Skipped, Skip{Path: path, Reason: reason, Err: err})
	if r.opts.Metrics != nil {
		r.opts.Metrics.Skipped(string(reason))
	}

	event := r.opts.Logger.Info()
	if err != nil {
		event = event.Err(err)
	}
	event.Str("reason", string(reason)).Str("path", path).Msg("File skipped")
}

func (r *run) progress(duplicate bool) {
	if r.opts.Progress != nil {
		r.opts.Progress.Increment(duplicate)
	}
}
