package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"

	"dupmover/internal/manifest"
	"dupmover/internal/record"
)

// Artifact file names written by Generate.
const (
	DuplicatesFile     = "duplicates.csv"
	ManifestFile       = "manifest.json"
	ByExtensionFile    = "by_extension.csv"
	ByFolderFile       = "by_folder.csv"
	ByCreatedDateFile  = "by_created_date.csv"
	ByModifiedDateFile = "by_modified_date.csv"
)

// Generate writes the run's report artifacts into dir and prints summary
// tables to w. With no records nothing is written to disk.
func Generate(dir string, m *manifest.Manifest, w io.Writer) ([]string, error) {
	if len(m.Records) == 0 {
		fmt.Fprintln(w, "No duplicates found, no reports to generate.")
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	summary := Summarize(m.Records)

	rows := make([][]string, 0, len(m.Records))
	for _, rec := range m.Records {
		rows = append(rows, rec.CSVRow())
	}

	artifacts := []string{
		filepath.Join(dir, DuplicatesFile),
		filepath.Join(dir, ManifestFile),
		filepath.Join(dir, ByExtensionFile),
		filepath.Join(dir, ByFolderFile),
		filepath.Join(dir, ByCreatedDateFile),
		filepath.Join(dir, ByModifiedDateFile),
	}

	var g errgroup.Group
	g.Go(func() error { return writeCSV(artifacts[0], record.CSVHeader, rows) })
	g.Go(func() error { return manifest.Save(m, artifacts[1]) })
	g.Go(func() error { return writeCounts(artifacts[2], "file_extension", summary.ByExtension) })
	g.Go(func() error { return writeCounts(artifacts[3], "folder_name", summary.ByFolder) })
	g.Go(func() error { return writeCounts(artifacts[4], "created_date", summary.ByCreatedDate) })
	g.Go(func() error { return writeCounts(artifacts[5], "modified_date", summary.ByModifiedDate) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := Render(w, summary); err != nil {
		return artifacts, err
	}
	return artifacts, nil
}

// Render prints the summary as terminal tables.
func Render(w io.Writer, s Summary) error {
	fmt.Fprintf(w, "Duplicates: %d (%d moved, %d failed, %d bytes relocated)\n\n",
		s.Total, s.Moved, s.Failed, s.Bytes)

	tables := []struct {
		title  string
		column string
		counts []Count
	}{
		{"Number of Duplicates by File Extension", "Extension", s.ByExtension},
		{"Number of Duplicates by Folder", "Folder", s.ByFolder},
	}

	for _, tbl := range tables {
		data := pterm.TableData{{tbl.column, "Duplicates"}}
		for _, c := range tbl.counts {
			data = append(data, []string{c.Key, strconv.Itoa(c.Count)})
		}

		out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
		if err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}
		fmt.Fprintln(w, tbl.title)
		fmt.Fprintln(w, out)
		fmt.Fprintln(w)
	}
	return nil
}

func writeCounts(path, keyColumn string, counts []Count) error {
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.Key, strconv.Itoa(c.Count)})
	}
	return writeCSV(path, []string{keyColumn, "count"}, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
