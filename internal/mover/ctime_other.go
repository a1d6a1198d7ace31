//go:build !linux

package mover

import (
	"io/fs"
	"time"
)

func changeTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}
