package record

import (
	"strconv"
	"time"
)

// Duplicate describes one file found to be a byte-identical copy of an
// earlier file in the same run. MovedTo is the intended destination when
// Moved is false.
type Duplicate struct {
	Original  string    `json:"original_path"`
	Duplicate string    `json:"duplicate_path"`
	MovedTo   string    `json:"moved_to"`
	Extension string    `json:"file_extension"`
	Folder    string    `json:"folder_name"`
	Created   time.Time `json:"created_date"`
	Modified  time.Time `json:"modified_date"`
	Digest    string    `json:"digest"`
	Size      int64     `json:"size"`
	Moved     bool      `json:"moved"`
	Error     string    `json:"error,omitempty"`
}

// CSVHeader is the column order used by CSVRow.
var CSVHeader = []string{
	"original_path",
	"duplicate_path",
	"moved_to",
	"file_extension",
	"folder_name",
	"created_date",
	"modified_date",
	"digest",
	"size",
	"moved",
	"error",
}

// CSVRow renders d in CSVHeader order.
func (d Duplicate) CSVRow() []string {
	return []string{
		d.Original,
		d.Duplicate,
		d.MovedTo,
		d.Extension,
		d.Folder,
		d.Created.Format(time.RFC3339),
		d.Modified.Format(time.RFC3339),
		d.Digest,
		strconv.FormatInt(d.Size, 10),
		strconv.FormatBool(d.Moved),
		d.Error,
	}
}
