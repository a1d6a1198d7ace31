package filter

import (
	"path/filepath"
	"strings"
)

// Reason explains why a file was excluded. The zero value means included.
type Reason string

const (
	Included          Reason = ""
	ExcludedDirectory Reason = "excluded-directory"
	Hidden            Reason = "hidden"
	ExcludedExtension Reason = "excluded-extension"
)

// Policy holds the three independent exclusion tables.
// Matching is case-insensitive; entries are lowercased by New.
type Policy struct {
	excludedDirs   []string
	hiddenPrefixes []string
	extensions     []string
}

// New builds a Policy from raw table entries. Blank entries are dropped.
func New(excludedDirs, hiddenPrefixes, extensions []string) *Policy {
	return &Policy{
		excludedDirs:   normalize(excludedDirs),
		hiddenPrefixes: normalize(hiddenPrefixes),
		extensions:     normalize(extensions),
	}
}

func normalize(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e) == "" {
			continue
		}
		out = append(out, strings.ToLower(e))
	}
	return out
}

// Check decides whether the file name inside dir is excluded. relPath is
// the file's path relative to the scan root and is used for the hidden rule.
// Rules are evaluated in directory, hidden, extension order and the first
// hit is returned.
func (p *Policy) Check(dir, relPath, name string) Reason {
	if p.ExcludesDir(dir) {
		return ExcludedDirectory
	}
	if p.IsHidden(relPath) {
		return Hidden
	}
	if p.ExcludesExtension(name) {
		return ExcludedExtension
	}
	return Included
}

// ExcludesDir reports whether the lowercased directory path contains any
// excluded folder substring. Deeper subdirectories match as well.
func (p *Policy) ExcludesDir(dir string) bool {
	lower := strings.ToLower(dir)
	for _, sub := range p.excludedDirs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// IsHidden reports whether any segment of relPath starts with a hidden prefix.
func (p *Policy) IsHidden(relPath string) bool {
	if len(p.hiddenPrefixes) == 0 {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		lower := strings.ToLower(part)
		for _, prefix := range p.hiddenPrefixes {
			if strings.HasPrefix(lower, prefix) {
				return true
			}
		}
	}
	return false
}

// ExcludesExtension reports whether the lowercase name ends with an
// excluded extension.
func (p *Policy) ExcludesExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range p.extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
