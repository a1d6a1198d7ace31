package verify

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"dupmover/internal/hash"
	"dupmover/internal/manifest"
	"dupmover/internal/record"
)

type Problem string

const (
	Missing         Problem = "MISSING"
	Modified        Problem = "MODIFIED"
	OriginalMissing Problem = "ORIGINAL-MISSING"
)

type Finding struct {
	Problem Problem
	Record  record.Duplicate
	Detail  string
}

type Result struct {
	Missing         []Finding
	Modified        []Finding
	OriginalMissing []Finding
	Checked         int
	Unmoved         int
	Intact          bool
}

func (r *Result) HasProblems() bool {
	return !r.Intact || len(r.Missing) > 0 || len(r.Modified) > 0 || len(r.OriginalMissing) > 0
}

type checkResult struct {
	findings []Finding
}

// Verify re-hashes every moved file in m with numWorkers goroutines and
// checks that each kept original is still present.
func Verify(m *manifest.Manifest, chunkSize, numWorkers int) (*Result, error) {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	hasher, err := hash.New(m.Digest, chunkSize)
	if err != nil {
		return nil, fmt.Errorf("manifest digest: %w", err)
	}

	intact, err := m.Intact()
	if err != nil {
		return nil, fmt.Errorf("failed to check merkle root: %w", err)
	}

	result := &Result{
		Missing:         make([]Finding, 0),
		Modified:        make([]Finding, 0),
		OriginalMissing: make([]Finding, 0),
		Intact:          intact,
	}

	var toCheck []record.Duplicate
	for _, rec := range m.Records {
		if rec.Moved {
			toCheck = append(toCheck, rec)
		} else {
			result.Unmoved++
		}
	}
	result.Checked = len(toCheck)

	// Create channels
	jobs := make(chan record.Duplicate, len(toCheck))
	results := make(chan checkResult, len(toCheck))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				results <- checkResult{findings: check(hasher, rec)}
			}
		}()
	}

	// Send jobs
	go func() {
		for _, rec := range toCheck {
			jobs <- rec
		}
		close(jobs)
	}()

	// Wait for workers to finish and close results
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		for _, f := range res.findings {
			switch f.Problem {
			case Missing:
				result.Missing = append(result.Missing, f)
			case Modified:
				result.Modified = append(result.Modified, f)
			case OriginalMissing:
				result.OriginalMissing = append(result.OriginalMissing, f)
			}
		}
	}

	// Sort for deterministic output
	for _, list := range [][]Finding{result.Missing, result.Modified, result.OriginalMissing} {
		sort.Slice(list, func(i, j int) bool {
			return list[i].Record.MovedTo < list[j].Record.MovedTo
		})
	}

	return result, nil
}

func check(hasher *hash.Hasher, rec record.Duplicate) []Finding {
	var findings []Finding

	digest, err := hasher.HashFile(rec.MovedTo)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		findings = append(findings, Finding{Problem: Missing, Record: rec})
	case err != nil:
		findings = append(findings, Finding{Problem: Missing, Record: rec, Detail: err.Error()})
	case digest != rec.Digest:
		findings = append(findings, Finding{Problem: Modified, Record: rec, Detail: "digest " + digest})
	}

	if _, err := os.Stat(rec.Original); err != nil {
		findings = append(findings, Finding{Problem: OriginalMissing, Record: rec, Detail: err.Error()})
	}

	return findings
}

func FormatReport(result *Result) string {
	var b strings.Builder

	if !result.HasProblems() {
		fmt.Fprintf(&b, "All %d moved duplicates verified.\n", result.Checked)
		return b.String()
	}

	b.WriteString("Problems detected:\n\n")

	if !result.Intact {
		b.WriteString("MANIFEST: merkle root does not match its records\n\n")
	}

	if len(result.Missing) > 0 {
		fmt.Fprintf(&b, "MISSING (%d files):\n", len(result.Missing))
		for _, f := range result.Missing {
			fmt.Fprintf(&b, "  - %s (from %s)\n", f.Record.MovedTo, f.Record.Duplicate)
		}
		b.WriteString("\n")
	}

	if len(result.Modified) > 0 {
		fmt.Fprintf(&b, "MODIFIED (%d files):\n", len(result.Modified))
		for _, f := range result.Modified {
			fmt.Fprintf(&b, "  ~ %s\n", f.Record.MovedTo)
			fmt.Fprintf(&b, "    Expected: %s\n", f.Record.Digest)
			fmt.Fprintf(&b, "    Found:    %s\n", strings.TrimPrefix(f.Detail, "digest "))
		}
		b.WriteString("\n")
	}

	if len(result.OriginalMissing) > 0 {
		fmt.Fprintf(&b, "ORIGINAL MISSING (%d files):\n", len(result.OriginalMissing))
		for _, f := range result.OriginalMissing {
			fmt.Fprintf(&b, "  ! %s (copy kept at %s)\n", f.Record.Original, f.Record.MovedTo)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Summary: %d checked, %d missing, %d modified, %d originals missing\n",
		result.Checked, len(result.Missing), len(result.Modified), len(result.OriginalMissing))

	return b.String()
}
