package retention

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/raoulx24/rec-pruner/internal/recording"
	"github.com/raoulx24/rec-pruner/internal/space"
)

// PathEvaluation is what one monitored path proposed during a cycle.
type PathEvaluation struct {
	Path      string
	Volume    space.VolumeKey
	Selection Selection
}

// Plan is the consolidated deletion list for one volume.
type Plan struct {
	Volume      space.VolumeKey
	Paths       []string
	Space       space.Info
	Directories []recording.Directory
	SpaceToFree int64
	Shortfall   int64
}

func (p Plan) Bytes() int64 { return recording.TotalSize(p.Directories) }

// Consolidate merges the per-path proposals of every volume into one plan per
// volume, re-running the greedy pass against the volume's own deficit so paths
// sharing a disk do not each free the whole deficit. Volumes without a space
// reading or with nothing to delete are left out.
func Consolidate(evals []PathEvaluation, spaces map[space.VolumeKey]space.Info, th Threshold) []Plan {
	type pool struct {
		paths []string
		dirs  []recording.Directory
		seen  map[string]struct{}
	}
	pools := map[space.VolumeKey]*pool{}

	for _, ev := range evals {
		p, ok := pools[ev.Volume]
		if !ok {
			p = &pool{seen: map[string]struct{}{}}
			pools[ev.Volume] = p
		}
		p.paths = append(p.paths, ev.Path)

		for _, d := range ev.Selection.Directories {
			if _, dup := p.seen[d.Path]; dup {
				continue
			}
			p.seen[d.Path] = struct{}{}
			p.dirs = append(p.dirs, d)
		}
	}

	var plans []Plan
	for vol, p := range pools {
		info, ok := spaces[vol]
		if !ok {
			continue
		}

		p.dirs = dropContaining(p.dirs)
		recording.SortOldestFirst(p.dirs)
		sel := selectFor(p.dirs, th.Deficit(info.Free))
		if sel.Empty() {
			continue
		}

		plans = append(plans, Plan{
			Volume:      vol,
			Paths:       p.paths,
			Space:       info,
			Directories: sel.Directories,
			SpaceToFree: sel.Deficit,
			Shortfall:   sel.Shortfall,
		})
	}

	sort.Slice(plans, func(i, j int) bool { return plans[i].Volume < plans[j].Volume })
	return plans
}

// Contains reports whether parent is dir itself or one of its ancestors.
func Contains(parent, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(dir))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// dropContaining removes candidates that enclose another candidate, keeping
// the finer-grained entries so no byte is counted twice.
func dropContaining(dirs []recording.Directory) []recording.Directory {
	out := dirs[:0:0]
	for i, d := range dirs {
		enclosing := false
		for j, o := range dirs {
			if i != j && d.Path != o.Path && Contains(d.Path, o.Path) {
				enclosing = true
				break
			}
		}
		if !enclosing {
			out = append(out, d)
		}
	}
	return out
}
