package mover

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dupmover/internal/record"
)

// MaxSuffix bounds the disambiguation loop.
const MaxSuffix = 100000

// link is replaced in tests to exercise the copy fallback.
var link = os.Link

var (
	// ErrRelocate wraps every failed relocation.
	ErrRelocate = errors.New("relocation failed")
	// ErrNameExhausted means no free destination name was found.
	ErrNameExhausted = errors.New("no free destination name")
)

// Mover relocates duplicates into a single holding folder. It is the only
// writer of that folder and never replaces an existing entry.
type Mover struct {
	folder string
	logger zerolog.Logger
}

func New(folder string, logger zerolog.Logger) *Mover {
	return &Mover{folder: folder, logger: logger}
}

// Folder returns the holding folder path.
func (m *Mover) Folder() string {
	return m.folder
}

// EnsureFolder creates the holding folder if it does not exist.
func (m *Mover) EnsureFolder() error {
	if err := os.MkdirAll(m.folder, 0755); err != nil {
		return fmt.Errorf("failed to create duplicate folder: %w", err)
	}
	return nil
}

// Candidate returns the n-th destination name for base inside folder:
// name.ext, name_1.ext, name_2.ext, ...
func Candidate(folder, base string, n int) string {
	if n == 0 {
		return filepath.Join(folder, base)
	}
	stem, ext := splitExt(base)
	return filepath.Join(folder, fmt.Sprintf("%s_%d%s", stem, n, ext))
}

// Ext returns the extension of name. A leading dot does not start an
// extension, so ".bashrc" has none and ".env.local" has ".local".
func Ext(name string) string {
	_, ext := splitExt(name)
	return ext
}

func splitExt(name string) (stem, ext string) {
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return name, ""
	}
	return name[:i], name[i:]
}

// Relocate moves duplicate into the holding folder under its own name,
// adding a numeric suffix when that name is taken. The returned record is
// populated whether or not the move succeeded; on failure MovedTo holds
// the last destination attempted and the error wraps ErrRelocate.
func (m *Mover) Relocate(original, duplicate, digest string) (record.Duplicate, error) {
	rec := record.Duplicate{
		Original:  original,
		Duplicate: duplicate,
		Extension: Ext(filepath.Base(duplicate)),
		Folder:    filepath.Base(filepath.Dir(duplicate)),
		Digest:    digest,
	}

	// Metadata must be read before the source path disappears.
	info, err := os.Lstat(duplicate)
	if err != nil {
		rec.MovedTo = Candidate(m.folder, filepath.Base(duplicate), 0)
		return m.fail(rec, fmt.Errorf("stat duplicate: %w", err))
	}
	rec.Size = info.Size()
	rec.Modified = info.ModTime()
	rec.Created = changeTime(info)

	base := filepath.Base(duplicate)
	for n := 0; n <= MaxSuffix; n++ {
		dest := Candidate(m.folder, base, n)
		rec.MovedTo = dest

		if _, err := os.Lstat(dest); err == nil {
			m.logger.Debug().Str("destination", dest).Msg("Destination name taken")
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return m.fail(rec, fmt.Errorf("checking destination: %w", err))
		}

		err := place(duplicate, dest, info.Mode().Perm(), info.ModTime())
		if errors.Is(err, fs.ErrExist) {
			// Created between the check and the write; try the next name.
			continue
		}
		if err != nil {
			return m.fail(rec, err)
		}

		if err := os.Remove(duplicate); err != nil {
			// Keep exactly one copy: undo the placement.
			if rmErr := os.Remove(dest); rmErr != nil {
				m.logger.Error().Err(rmErr).Str("destination", dest).Msg("Failed to undo placement")
			}
			return m.fail(rec, fmt.Errorf("removing source: %w", err))
		}

		rec.Moved = true
		return rec, nil
	}

	return m.fail(rec, ErrNameExhausted)
}

func (m *Mover) fail(rec record.Duplicate, err error) (record.Duplicate, error) {
	err = fmt.Errorf("%w: %w", ErrRelocate, err)
	rec.Moved = false
	rec.Error = err.Error()
	return rec, err
}

// place puts src's bytes at dst without replacing an existing dst. A hard
// link is tried first; filesystems without link support or a cross-device
// destination fall back to an exclusive-create copy.
func place(src, dst string, perm fs.FileMode, mtime time.Time) error {
	err := link(src, dst)
	if err == nil || errors.Is(err, fs.ErrExist) {
		return err
	}
	return copyExclusive(src, dst, perm, mtime)
}

func copyExclusive(src, dst string, perm fs.FileMode, mtime time.Time) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close destination: %w", err)
	}

	if err := os.Chtimes(dst, mtime, mtime); err != nil {
		os.Remove(dst)
		return fmt.Errorf("preserve mtime: %w", err)
	}
	return nil
}
