// Package retention decides which recording directories to delete to bring a
// volume back above its free-space target, oldest first.
package retention

import (
	"math"

	"github.com/raoulx24/rec-pruner/internal/recording"
)

// Threshold is the configured free-space floor plus its safety buffer.
type Threshold struct {
	MinFreeBytes  uint64
	BufferPercent float64
}

// TargetFree is the floor scaled by the buffer.
func (t Threshold) TargetFree() int64 {
	return int64(math.Round(float64(t.MinFreeBytes) * (1 + t.BufferPercent/100)))
}

// Deficit is how many bytes must be freed to reach TargetFree. Zero or
// negative means nothing needs to go.
func (t Threshold) Deficit(currentFree uint64) int64 {
	return t.TargetFree() - int64(currentFree)
}

// Selection is the outcome of one greedy pass.
type Selection struct {
	Directories []recording.Directory
	Deficit     int64
	// Shortfall is the part of Deficit the candidates could not cover.
	Shortfall int64
}

func (s Selection) Empty() bool { return len(s.Directories) == 0 }

func (s Selection) Bytes() int64 { return recording.TotalSize(s.Directories) }

// Select walks inventory (oldest first) and keeps the shortest prefix whose
// cumulative size covers the deficit. If the whole inventory is not enough it
// is returned entirely and the remainder is reported as Shortfall.
func Select(inventory []recording.Directory, currentFree, minFree uint64, bufferPercent float64) Selection {
	th := Threshold{MinFreeBytes: minFree, BufferPercent: bufferPercent}
	return selectFor(inventory, th.Deficit(currentFree))
}

func selectFor(sorted []recording.Directory, deficit int64) Selection {
	sel := Selection{Deficit: deficit}
	if deficit <= 0 {
		return sel
	}

	var freed int64
	for _, d := range sorted {
		if freed >= deficit {
			break
		}
		sel.Directories = append(sel.Directories, d)
		freed += d.Size
	}

	if freed < deficit {
		sel.Shortfall = deficit - freed
	}
	return sel
}
