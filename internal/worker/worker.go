// Package worker runs evaluation cycles: probe volumes, scan monitored paths,
// consolidate per volume and hand non-empty plans to the scheduler.
package worker

import (
	"context"
	"errors"
	iofs "io/fs"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/raoulx24/rec-pruner/internal/config"
	"github.com/raoulx24/rec-pruner/internal/inventory"
	"github.com/raoulx24/rec-pruner/internal/logging"
	"github.com/raoulx24/rec-pruner/internal/mailbox"
	"github.com/raoulx24/rec-pruner/internal/notify"
	"github.com/raoulx24/rec-pruner/internal/recording"
	"github.com/raoulx24/rec-pruner/internal/retention"
	"github.com/raoulx24/rec-pruner/internal/scheduler"
	"github.com/raoulx24/rec-pruner/internal/space"
)

// Worker consumes cycle jobs from the mailbox, one at a time.
type Worker struct {
	mu      sync.RWMutex
	monitor config.MonitorConfig

	prober   space.Prober
	scanner  Scanner
	waves    Waves
	notifier notify.Notifier
	log      logging.Logger
	mb       *mailbox.Mailbox[Job]
}

// Cycle describes what one evaluation did.
type Cycle struct {
	Skipped  bool
	Plans    []retention.Plan
	Failures []notify.VolumeFailure
	Wave     *scheduler.Wave
}

func New(monitor config.MonitorConfig, log logging.Logger, prober space.Prober, scanner Scanner, waves Waves, n notify.Notifier, mb *mailbox.Mailbox[Job]) *Worker {
	return &Worker{
		monitor:  monitor,
		prober:   prober,
		scanner:  scanner,
		waves:    waves,
		notifier: n,
		log:      log,
		mb:       mb,
	}
}

// Start runs cycles until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("starting worker")
	for {
		job, ok := w.mb.Take(ctx)
		if !ok {
			return
		}
		w.run(ctx, job)
	}
}

func (w *Worker) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("evaluation cycle panicked", "panic", r)
		}
	}()
	w.Handle(ctx, job)
}

// UpdateConfig hot-reloads monitored paths and thresholds.
func (w *Worker) UpdateConfig(monitor config.MonitorConfig) {
	w.mu.Lock()
	w.monitor = monitor
	w.mu.Unlock()
}

type target struct {
	path string
	vol  space.VolumeKey
}

// Handle runs one evaluation cycle.
func (w *Worker) Handle(ctx context.Context, job Job) Cycle {
	w.mu.RLock()
	monitor := w.monitor
	w.mu.RUnlock()

	if w.waves.Busy() {
		w.log.Info("deletion wave outstanding, skipping cycle", "reason", job.Reason)
		return Cycle{Skipped: true}
	}
	w.log.Debug("evaluation cycle started", "reason", job.Reason, "paths", len(monitor.Paths))

	limit := monitor.ScanConcurrency
	if limit <= 0 {
		limit = 1
	}
	th := retention.Threshold{MinFreeBytes: monitor.MinFreeBytes(), BufferPercent: monitor.BufferPercent}

	var (
		mu       sync.Mutex
		failures = map[space.VolumeKey]*notify.VolumeFailure{}
		fail     = func(vol space.VolumeKey, path string, err error) {
			mu.Lock()
			defer mu.Unlock()
			f, ok := failures[vol]
			if !ok {
				f = &notify.VolumeFailure{Volume: vol, Err: err.Error()}
				failures[vol] = f
			}
			f.Paths = append(f.Paths, path)
		}
	)

	// Resolve each monitored path to its volume.
	paths := dedupe(monitor.Paths)
	targets := make([]*target, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			vol, err := w.prober.Volume(p)
			if err != nil {
				if errors.Is(err, iofs.ErrNotExist) {
					w.log.Debug("monitored path missing, nothing to scan", "path", p)
					return nil
				}
				w.log.Warn("cannot resolve volume", "path", p, "error", err)
				fail(space.VolumeKey(p), p, err)
				return nil
			}
			targets[i] = &target{path: p, vol: vol}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Cycle{}
	}

	byVolume := map[space.VolumeKey][]string{}
	for _, t := range targets {
		if t != nil {
			byVolume[t.vol] = append(byVolume[t.vol], t.path)
		}
	}

	// One live probe per volume; this map is the cycle's only space cache.
	spaces := map[space.VolumeKey]space.Info{}
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for vol, volPaths := range byVolume {
		vol, volPaths := vol, volPaths
		g.Go(func() error {
			info, err := w.prober.Probe(string(vol))
			if err != nil {
				w.log.Warn("volume probe failed, skipping its paths", "volume", vol, "error", err)
				for _, p := range volPaths {
					fail(vol, p, err)
				}
				return nil
			}
			mu.Lock()
			spaces[vol] = info
			mu.Unlock()
			w.log.Debug("volume probed", "volume", vol, "free", info.Free, "total", info.Total)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Cycle{}
	}

	// Scan and select per path, only on volumes below target.
	var evals []retention.PathEvaluation
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, t := range targets {
		t := t
		if t == nil {
			continue
		}
		info, ok := spaces[t.vol]
		if !ok || th.Deficit(info.Free) <= 0 {
			continue
		}
		g.Go(func() error {
			inv, err := w.scanner.Scan(gctx, t.path)
			if err != nil {
				var se *inventory.ScanError
				if !errors.As(err, &se) {
					return err
				}
				w.log.Warn("scan failed, treating as empty", "path", t.path, "error", err)
			}
			inv = withoutMonitored(inv, paths)
			sel := retention.Select(inv, info.Free, th.MinFreeBytes, th.BufferPercent)

			mu.Lock()
			evals = append(evals, retention.PathEvaluation{Path: t.path, Volume: t.vol, Selection: sel})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.log.Warn("evaluation cycle aborted", "error", err)
		return Cycle{}
	}

	cycle := Cycle{Failures: sortedFailures(failures)}
	if len(cycle.Failures) > 0 {
		w.alert(ctx, cycle.Failures)
	}

	sort.Slice(evals, func(i, j int) bool { return evals[i].Path < evals[j].Path })
	cycle.Plans = retention.Consolidate(evals, spaces, th)

	planned := map[space.VolumeKey]bool{}
	for _, p := range cycle.Plans {
		planned[p.Volume] = true
	}
	short := 0
	for vol, info := range spaces {
		deficit := th.Deficit(info.Free)
		if deficit <= 0 {
			continue
		}
		short++
		if !planned[vol] {
			w.log.Warn("insufficient reclaimable space", "volume", vol, "shortfall", deficit, "free", info.Free)
		}
	}
	if short == 0 {
		w.log.Info("free space above target on every volume", "volumes", len(spaces))
	}
	if len(cycle.Plans) == 0 {
		return cycle
	}

	for _, p := range cycle.Plans {
		w.log.Info("deletion planned", "volume", p.Volume, "directories", len(p.Directories), "bytes", p.Bytes(), "space_to_free", p.SpaceToFree)
		if p.Shortfall > 0 {
			w.log.Warn("insufficient reclaimable space", "volume", p.Volume, "shortfall", p.Shortfall)
		}
	}

	wave, ok := w.waves.Arm(ctx, cycle.Plans)
	if ok {
		cycle.Wave = wave
	}
	return cycle
}

func (w *Worker) alert(ctx context.Context, failures []notify.VolumeFailure) {
	msg, err := notify.VolumeAlert(failures)
	if err != nil {
		w.log.Error("rendering volume alert failed", "error", err)
		return
	}
	if _, err := w.notifier.Send(ctx, msg); err != nil {
		w.log.Error("volume alert delivery failed", "error", err)
	}
}

// dedupe drops repeated paths, comparing cleaned forms.
func dedupe(paths []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range paths {
		c := filepath.Clean(p)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// withoutMonitored drops candidates that are a monitored path or contain one.
func withoutMonitored(inv []recording.Directory, roots []string) []recording.Directory {
	out := inv[:0:0]
	for _, d := range inv {
		keep := true
		for _, r := range roots {
			if retention.Contains(d.Path, r) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, d)
		}
	}
	return out
}

func sortedFailures(m map[space.VolumeKey]*notify.VolumeFailure) []notify.VolumeFailure {
	out := make([]notify.VolumeFailure, 0, len(m))
	for _, f := range m {
		sort.Strings(f.Paths)
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Volume < out[j].Volume })
	return out
}
