// Package recording holds the directory record shared by the inventory,
// the retention engine and the scheduler.
package recording

import (
	"os"
	"sort"
	"time"
)

// Directory is one immediate child directory of a monitored path.
type Directory struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FromFileInfo constructs a Directory from its path, stat info and walked size.
func FromFileInfo(path string, info os.FileInfo, size int64) Directory {
	return Directory{
		Path:    path,
		Size:    size,
		ModTime: info.ModTime(),
	}
}

// SortOldestFirst orders dirs by ModTime ascending, ties broken by path.
func SortOldestFirst(dirs []Directory) {
	sort.SliceStable(dirs, func(i, j int) bool {
		if !dirs[i].ModTime.Equal(dirs[j].ModTime) {
			return dirs[i].ModTime.Before(dirs[j].ModTime)
		}
		return dirs[i].Path < dirs[j].Path
	})
}

// TotalSize sums the sizes of dirs.
func TotalSize(dirs []Directory) int64 {
	var total int64
	for _, d := range dirs {
		total += d.Size
	}
	return total
}
