package report

import (
	"sort"

	"dupmover/internal/record"
)

const (
	dateLayout  = "2006-01-02"
	noExtension = "(none)"
)

// Count is one group in a summary.
type Count struct {
	Key   string
	Count int
}

// Summary aggregates duplicate records the way the report presents them.
type Summary struct {
	Total          int
	Moved          int
	Failed         int
	Bytes          int64
	ByExtension    []Count
	ByFolder       []Count
	ByCreatedDate  []Count
	ByModifiedDate []Count
}

// Summarize groups records by extension and folder (largest first) and by
// created and modified day (oldest first).
func Summarize(records []record.Duplicate) Summary {
	s := Summary{Total: len(records)}

	ext := make(map[string]int)
	folder := make(map[string]int)
	created := make(map[string]int)
	modified := make(map[string]int)

	for _, rec := range records {
		if rec.Moved {
			s.Moved++
			s.Bytes += rec.Size
		} else {
			s.Failed++
		}

		e := rec.Extension
		if e == "" {
			e = noExtension
		}
		ext[e]++
		folder[rec.Folder]++
		created[rec.Created.Format(dateLayout)]++
		modified[rec.Modified.Format(dateLayout)]++
	}

	s.ByExtension = byCount(ext)
	s.ByFolder = byCount(folder)
	s.ByCreatedDate = byKey(created)
	s.ByModifiedDate = byKey(modified)
	return s
}

func toCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	return out
}

func byCount(m map[string]int) []Count {
	out := toCounts(m)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func byKey(m map[string]int) []Count {
	out := toCounts(m)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out
}
