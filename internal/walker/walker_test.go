package walker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"dupmover/internal/filter"
	"dupmover/internal/hash"
	"dupmover/internal/metrics"
	"dupmover/internal/mover"
)

func createFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for f, content := range files {
		fullPath := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
}

func newOptions(t *testing.T, root, folder string, policy *filter.Policy) Options {
	t.Helper()
	hasher, err := hash.New(hash.XXHash, 1024)
	if err != nil {
		t.Fatalf("hash.New failed: %v", err)
	}
	return Options{
		Root:   root,
		Mover:  mover.New(folder, zerolog.Nop()),
		Filter: policy,
		Hasher: hasher,
		Logger: zerolog.Nop(),
	}
}

func defaultPolicy() *filter.Policy {
	return filter.New(
		[]string{"program files", "program files (x86)"},
		[]string{".", "~", "_"},
		[]string{".ini", ".exe", ".tmp"},
	)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func TestRun_MovesLaterDuplicate(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(t.TempDir(), "dups")
	createFiles(t, root, map[string]string{
		"x.txt":     "AAA",
		"sub/y.txt": "AAA",
	})

	result, err := Run(context.Background(), newOptions(t, root, folder, defaultPolicy()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !exists(filepath.Join(root, "x.txt")) {
		t.Error("x.txt should remain as the original")
	}
	if exists(filepath.Join(root, "sub", "y.txt")) {
		t.Error("sub/y.txt should have been moved")
	}
	if got := readFile(t, filepath.Join(folder, "y.txt")); got != "AAA" {
		t.Errorf("Moved content mismatch: %q", got)
	}

	if len(result.Duplicates) != 1 {
		t.Fatalf("Expected 1 duplicate record, got %d", len(result.Duplicates))
	}
	rec := result.Duplicates[0]
	if rec.Original != filepath.Join(root, "x.txt") {
		t.Errorf("Original: expected %s, got %s", filepath.Join(root, "x.txt"), rec.Original)
	}
	if rec.Duplicate != filepath.Join(root, "sub", "y.txt") {
		t.Errorf("Duplicate: expected %s, got %s", filepath.Join(root, "sub", "y.txt"), rec.Duplicate)
	}
	if rec.MovedTo != filepath.Join(folder, "y.txt") {
		t.Errorf("MovedTo: expected %s, got %s", filepath.Join(folder, "y.txt"), rec.MovedTo)
	}
	if !rec.Moved {
		t.Error("Record should report a successful move")
	}
	if rec.Folder != "sub" || rec.Extension != ".txt" {
		t.Errorf("Unexpected metadata: folder=%q ext=%q", rec.Folder, rec.Extension)
	}
	if result.Processed != 2 || result.Unique != 1 {
		t.Errorf("Expected 2 processed and 1 unique, got %d and %d", result.Processed, result.Unique)
	}
}

func TestRun_FilteredFilesAreNotDuplicates(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(t.TempDir(), "dups")
	createFiles(t, root, map[string]string{
		"keep.bin":              "BIN",
		".hidden":               "BIN",
		"Program Files/app.exe": "BIN",
		"Program Files/app.dat": "BIN",
	})

	result, err := Run(context.Background(), newOptions(t, root, folder, defaultPolicy()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Duplicates) != 0 {
		t.Errorf("Expected no duplicates, got %d", len(result.Duplicates))
	}
	for _, f := range []string{"keep.bin", ".hidden", "Program Files/app.exe", "Program Files/app.dat"} {
		if !exists(filepath.Join(root, f)) {
			t.Errorf("%s should not have been moved", f)
		}
	}
	if n := result.SkipCount(SkipHidden); n != 1 {
		t.Errorf("Expected 1 hidden skip, got %d", n)
	}
	if n := result.SkipCount(SkipExcludedDirectory); n != 2 {
		t.Errorf("Expected 2 excluded-directory skips, got %d", n)
	}
}

func TestRun_ExcludedDirectoryCoversSubtree(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(t.TempDir(), "dups")
	createFiles(t, root, map[string]string{
		"a.txt":                       "same",
		"Program Files/b.txt":         "same",
		"Program Files/x/y/z/c.txt":   "same",
		"Program Files (x86)/d/e.txt": "same",
	})

	result, err := Run(context.Background(), newOptions(t, root, folder, defaultPolicy()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Duplicates) != 0 {
		t.Errorf("Expected no duplicates, got %d", len(result.Duplicates))
	}
	if n := result.SkipCount(SkipExcludedDirectory); n != 3 {
		t.Errorf("Expected 3 excluded-directory skips, got %d", n)
	}
}

func TestRun_NoDuplicates(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(t.TempDir(), "dups")
	files := map[string]string{
		"a.txt":         "one",
		"b.txt":         "two",
		"nested/c.txt":  "three",
		"nested/d/e.md": "four",
	}
	createFiles(t, root, files)

	result, err := Run(context.Background(), newOptions(t, root, folder, defaultPolicy()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Duplicates) != 0 {
		t.Errorf("Expected 0 duplicates, got %d", len(result.Duplicates))
	}
	for f := range files {
		if !exists(filepath.Join(root, f)) {
			t.Errorf("%s should be untouched", f)
		}
	}
	entries, err := os.ReadDir(folder)
	if err != nil {
		t.Fatalf("Duplicate folder should exist: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Duplicate folder should be empty, has %d entries", len(entries))
	}
}

func TestRun_FirstSeenWinsAcrossManyCopies(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(t.TempDir(), "dups")
	createFiles(t, root, map[string]string{
		"a/photo.jpg":   "PIXELS",
		"b/photo.jpg":   "PIXELS",
		"c/photo.jpg":   "PIXELS",
		"c/d/other.jpg": "PIXELS",
		"unique.jpg":    "OTHER",
	})

	result, err := Run(context.Background(), newOptions(t, root, folder, defaultPolicy()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Root files come before subdirectories, then a/ b/ c/ in name order.
	if !exists(filepath.Join(root, "a", "photo.jpg")) {
		t.Error("a/photo.jpg should remain as the original")
	}
	for _, f := range []string{"b/photo.jpg", "c/photo.jpg", "c/d/other.jpg"} {
		if exists(filepath.Join(root, f)) {
			t.Errorf("%s should have been moved", f)
		}
	}

	if len(result.Duplicates) != 3 {
		t.Fatalf("Expected 3 duplicates, got %d", len(result.Duplicates))
	}
	want := []string{"photo.jpg", "photo_1.jpg", "other.jpg"}
	for i, rec := range result.Duplicates {
		if rec.Original != filepath.Join(root, "a", "photo.jpg") {
			t.Errorf("Record %d: original should be a/photo.jpg, got %s", i, rec.Original)
		}
		if rec.MovedTo != filepath.Join(folder, want[i]) {
			t.Errorf("Record %d: expected %s, got %s", i, want[i], rec.MovedTo)
		}
		if got := readFile(t, rec.MovedTo); got != "PIXELS" {
			t.Errorf("Record %d: moved content mismatch %q", i, got)
		}
	}
}

func TestRun_DisambiguatesAgainstExistingFolderContent(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(t.TempDir(), "dups")
	createFiles(t, folder, map[string]string{
		"a.txt":   "older run 1",
		"a_1.txt": "older run 2",
	})
	createFiles(t, root, map[string]string{
		"a.txt":     "fresh",
		"sub/a.txt": "fresh",
	})

	result, err := Run(context.Background(), newOptions(t, root, folder, defaultPolicy()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Duplicates) != 1 {
		t.Fatalf("Expected 1 duplicate, got %d", len(result.Duplicates))
	}
	if got := result.Duplicates[0].MovedTo; got != filepath.Join(folder, "a_2.txt") {
		t.Errorf("Expected a_2.txt, got %s", got)
	}
	if readFile(t, filepath.Join(folder, "a.txt")) != "older run 1" ||
		readFile(t, filepath.Join(folder, "a_1.txt")) != "older run 2" {
		t.Error("Existing files in the duplicate folder must not be overwritten")
	}
}

func TestRun_SkipsDuplicateFolderInsideRoot(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(root, "duplicates")
	createFiles(t, root, map[string]string{
		"a.txt":          "same",
		"b.txt":          "same",
		"duplicates/old": "same",
		"zzz/c.txt":      "same",
	})

	result, err := Run(context.Background(), newOptions(t, root, folder, defaultPolicy()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Duplicates) != 2 {
		t.Fatalf("Expected 2 duplicates, got %d", len(result.Duplicates))
	}
	if n := result.SkipCount(SkipDuplicateFolder); n != 1 {
		t.Errorf("Expected duplicate folder to be skipped once, got %d", n)
	}
	if readFile(t, filepath.Join(folder, "old")) != "same" {
		t.Error("Pre-existing duplicate folder content must be untouched")
	}
	if !exists(filepath.Join(folder, "b.txt")) || !exists(filepath.Join(folder, "c.txt")) {
		t.Error("b.txt and c.txt should have been moved into the duplicate folder")
	}
}

func TestRun_SkipsDuplicateFolderThroughSymlinkedRoot(t *testing.T) {
	target := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	folder := filepath.Join(target, "duplicates")
	createFiles(t, target, map[string]string{
		"a.txt": "same",
		"b.txt": "same",
	})

	result, err := Run(context.Background(), newOptions(t, link, folder, defaultPolicy()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Duplicates) != 1 {
		t.Fatalf("Expected 1 duplicate, got %d: %+v", len(result.Duplicates), result.Duplicates)
	}
	if n := result.SkipCount(SkipDuplicateFolder); n != 1 {
		t.Errorf("Expected duplicate folder to be skipped once, got %d", n)
	}
	rec := result.Duplicates[0]
	if rec.MovedTo != filepath.Join(folder, "b.txt") {
		t.Errorf("Expected b.txt moved to %s, got %s", filepath.Join(folder, "b.txt"), rec.MovedTo)
	}
	if !exists(rec.MovedTo) {
		t.Errorf("Recorded destination %s does not exist", rec.MovedTo)
	}
	if exists(filepath.Join(folder, "b_1.txt")) {
		t.Error("Relocated file was scanned and moved a second time")
	}
}

func TestRun_EmptyFilesShareADigest(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(t.TempDir(), "dups")
	createFiles(t, root, map[string]string{
		"empty1": "",
		"empty2": "",
	})

	result, err := Run(context.Background(), newOptions(t, root, folder, defaultPolicy()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Duplicates) != 1 {
		t.Fatalf("Expected 1 duplicate, got %d", len(result.Duplicates))
	}
	if !exists(filepath.Join(root, "empty1")) || !exists(filepath.Join(folder, "empty2")) {
		t.Error("empty2 should be moved, empty1 kept")
	}
}

func TestRun_SymlinksAreSkipped(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(t.TempDir(), "dups")
	createFiles(t, root, map[string]string{"a.txt": "data"})
	if err := os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	result, err := Run(context.Background(), newOptions(t, root, folder, defaultPolicy()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Duplicates) != 0 {
		t.Errorf("Expected no duplicates, got %d", len(result.Duplicates))
	}
	if n := result.SkipCount(SkipNotRegular); n != 1 {
		t.Errorf("Expected 1 not-regular skip, got %d", n)
	}
}

func TestRun_UnreadableFileIsSkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	root := t.TempDir()
	folder := filepath.Join(t.TempDir(), "dups")
	createFiles(t, root, map[string]string{
		"a.txt": "same",
		"b.txt": "same",
		"c.txt": "same",
	})
	locked := filepath.Join(root, "b.txt")
	if err := os.Chmod(locked, 0000); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0644) })

	result, err := Run(context.Background(), newOptions(t, root, folder, defaultPolicy()))
	if err != nil {
		t.Fatalf("Run should not fail on an unreadable file: %v", err)
	}

	if n := result.SkipCount(SkipUnreadable); n != 1 {
		t.Errorf("Expected 1 unreadable skip, got %d", n)
	}
	if len(result.Duplicates) != 1 || result.Duplicates[0].Duplicate != filepath.Join(root, "c.txt") {
		t.Errorf("Expected c.txt as the only duplicate, got %+v", result.Duplicates)
	}
	if !exists(locked) {
		t.Error("Unreadable file should be left in place")
	}
}

func TestRun_RepeatedRunsAreIndependent(t *testing.T) {
	for i := 0; i < 2; i++ {
		root := t.TempDir()
		folder := filepath.Join(t.TempDir(), "dups")
		createFiles(t, root, map[string]string{"a.txt": "X", "b.txt": "X"})

		result, err := Run(context.Background(), newOptions(t, root, folder, defaultPolicy()))
		if err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}
		if len(result.Duplicates) != 1 {
			t.Errorf("Run %d: expected 1 duplicate, got %d", i, len(result.Duplicates))
		}
	}
}

func TestRun_Metrics(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(t.TempDir(), "dups")
	createFiles(t, root, map[string]string{
		"a.txt":   "12345",
		"b.txt":   "12345",
		"c.tmp":   "12345",
		".hidden": "12345",
	})

	opts := newOptions(t, root, folder, defaultPolicy())
	opts.Metrics = metrics.New()

	if _, err := Run(context.Background(), opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := testutil.ToFloat64(opts.Metrics.FilesProcessed); got != 2 {
		t.Errorf("Expected 2 processed, got %v", got)
	}
	if got := testutil.ToFloat64(opts.Metrics.FilesSkipped.WithLabelValues("excluded-extension")); got != 1 {
		t.Errorf("Expected 1 extension skip, got %v", got)
	}
	if got := testutil.ToFloat64(opts.Metrics.BytesRelocated); got != 5 {
		t.Errorf("Expected 5 bytes relocated, got %v", got)
	}
}

type recordingProgress struct {
	dirs       []string
	files      int
	duplicates int
}

func (p *recordingProgress) SetDirectory(dir string) { p.dirs = append(p.dirs, dir) }

func (p *recordingProgress) Increment(dup bool) {
	p.files++
	if dup {
		p.duplicates++
	}
}

func TestRun_ReportsProgress(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(t.TempDir(), "dups")
	createFiles(t, root, map[string]string{"a.txt": "X", "sub/b.txt": "X"})

	progress := &recordingProgress{}
	opts := newOptions(t, root, folder, defaultPolicy())
	opts.Progress = progress

	if _, err := Run(context.Background(), opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if progress.files != 2 || progress.duplicates != 1 {
		t.Errorf("Expected 2 files and 1 duplicate, got %d and %d", progress.files, progress.duplicates)
	}
	if len(progress.dirs) != 2 {
		t.Errorf("Expected 2 directories, got %v", progress.dirs)
	}
}

func TestRun_NonExistentDirectory(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "dups")
	_, err := Run(context.Background(), newOptions(t, "/nonexistent/directory", folder, defaultPolicy()))
	if err == nil {
		t.Error("Run should return error for nonexistent directory")
	}
}

func TestRun_FolderEqualToRoot(t *testing.T) {
	root := t.TempDir()
	_, err := Run(context.Background(), newOptions(t, root, root, defaultPolicy()))
	if err == nil {
		t.Error("Run should refuse a duplicate folder equal to the root")
	}
}

func TestRun_FolderEqualToRootThroughSymlink(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(root, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	_, err := Run(context.Background(), newOptions(t, link, root, defaultPolicy()))
	if err == nil {
		t.Error("Run should refuse a duplicate folder that is the root under another path")
	}
}

func TestRun_RelocationFailureIsRecordedAndWalkContinues(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	root := t.TempDir()
	folder := filepath.Join(t.TempDir(), "dups")
	createFiles(t, root, map[string]string{
		"a.txt":     "same",
		"b.txt":     "same",
		"sub/c.txt": "other",
	})
	if err := os.MkdirAll(folder, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(folder, 0555); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}
	t.Cleanup(func() { os.Chmod(folder, 0755) })

	result, err := Run(context.Background(), newOptions(t, root, folder, defaultPolicy()))
	if err != nil {
		t.Fatalf("Run should not fail when a move fails: %v", err)
	}

	if len(result.Duplicates) != 1 {
		t.Fatalf("Expected 1 duplicate record, got %d", len(result.Duplicates))
	}
	rec := result.Duplicates[0]
	if rec.Moved {
		t.Error("Record should say moved=false")
	}
	if rec.Error == "" {
		t.Error("Record should carry the relocation error")
	}
	if len(result.Errors) != 1 || !errors.Is(result.Errors[0], mover.ErrRelocate) {
		t.Errorf("Expected one relocation error, got %v", result.Errors)
	}
	if result.Moved() != 0 {
		t.Errorf("Expected 0 moved, got %d", result.Moved())
	}
	if result.Processed != 3 {
		t.Errorf("Expected traversal to continue to all 3 files, got %d", result.Processed)
	}
	if readFile(t, filepath.Join(root, "b.txt")) != "same" {
		t.Error("Duplicate should stay in place when it cannot be moved")
	}
}

func TestRun_CancelledContext(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(t.TempDir(), "dups")
	createFiles(t, root, map[string]string{"a.txt": "X", "b.txt": "X"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Run(ctx, newOptions(t, root, folder, defaultPolicy()))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if result == nil || len(result.Duplicates) != 0 {
		t.Error("Cancelled run should return an empty partial result")
	}
	if !exists(filepath.Join(root, "b.txt")) {
		t.Error("No file should be moved after cancellation")
	}
}
