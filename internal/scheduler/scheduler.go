// Package scheduler runs deletion waves: warn, wait, delete, re-probe, report.
// At most one wave is outstanding per process.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/raoulx24/rec-pruner/internal/logging"
	"github.com/raoulx24/rec-pruner/internal/notify"
	"github.com/raoulx24/rec-pruner/internal/retention"
	"github.com/raoulx24/rec-pruner/internal/space"
)

// Executor removes one directory tree.
type Executor interface {
	RemoveAll(ctx context.Context, path string) error
}

// Recorder persists completed waves.
type Recorder interface {
	Record(ctx context.Context, c notify.Completion) error
}

// DeleteError is a failed removal of one directory.
type DeleteError struct {
	Path string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("deleting %s: %v", e.Path, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// Wave is one armed deletion.
type Wave struct {
	ID      string
	ArmedAt time.Time
	DueAt   time.Time
	Plans   []retention.Plan

	timer *clock.Timer
}

type Scheduler struct {
	mu      sync.Mutex
	running bool
	wave    *Wave
	last    *notify.Completion
	delay   time.Duration

	clock    clock.Clock
	exec     Executor
	prober   space.Prober
	notifier notify.Notifier
	history  Recorder
	log      logging.Logger
}

// New creates an idle scheduler. A nil clock means wall time.
func New(delay time.Duration, log logging.Logger, exec Executor, prober space.Prober, n notify.Notifier, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		delay:    delay,
		clock:    clk,
		exec:     exec,
		prober:   prober,
		notifier: n,
		log:      log,
	}
}

// WithHistory attaches a store that receives every completed wave.
func (s *Scheduler) WithHistory(r Recorder) *Scheduler {
	s.history = r
	return s
}

// UpdateDelay applies to waves armed from now on.
func (s *Scheduler) UpdateDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// Busy reports whether a wave is armed or executing.
func (s *Scheduler) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pending returns the armed wave, or nil once it has started executing.
func (s *Scheduler) Pending() *Wave {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wave == nil {
		return nil
	}
	w := *s.wave
	w.timer = nil
	return &w
}

// Last returns the outcome of the most recent completed wave.
func (s *Scheduler) Last() *notify.Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Arm sends the warning and schedules plans for deletion after the delay.
// It returns false without side effects when plans is empty or a wave is
// already outstanding.
func (s *Scheduler) Arm(ctx context.Context, plans []retention.Plan) (*Wave, bool) {
	if len(plans) == 0 {
		return nil, false
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Info("deletion wave already outstanding, not arming another")
		return nil, false
	}
	s.running = true
	now := s.clock.Now()
	w := &Wave{
		ID:      uuid.NewString(),
		ArmedAt: now,
		DueAt:   now.Add(s.delay),
		Plans:   plans,
	}
	delay := s.delay
	// visible to Pending and Cancel while the warning is in flight
	s.wave = w
	s.mu.Unlock()

	s.send(ctx, "warning", func() (notify.Message, error) {
		return notify.Warning(w.ID, w.DueAt, plans)
	})

	s.mu.Lock()
	if s.wave != w {
		s.mu.Unlock()
		s.log.Info("deletion wave cancelled before arming", "wave", w.ID)
		return nil, false
	}
	w.timer = s.clock.AfterFunc(delay, func() { s.execute(ctx, w) })
	s.mu.Unlock()

	s.log.Info("deletion wave armed", "wave", w.ID, "due", w.DueAt, "volumes", len(plans))
	return w, true
}

// Cancel disarms a wave that has not started yet and clears the guard.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wave == nil {
		return false
	}
	// a nil timer means Arm is still sending the warning and will back off
	if s.wave.timer != nil && !s.wave.timer.Stop() {
		return false
	}
	s.log.Info("deletion wave cancelled", "wave", s.wave.ID)
	s.wave = nil
	s.running = false
	return true
}

func (s *Scheduler) execute(ctx context.Context, w *Wave) {
	s.mu.Lock()
	if s.wave != w {
		// cancelled between the timer firing and this goroutine running
		s.mu.Unlock()
		return
	}
	s.wave = nil
	s.mu.Unlock()

	var c notify.Completion
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("deletion wave panicked", "wave", w.ID, "panic", r)
		}
		s.mu.Lock()
		s.running = false
		s.last = &c
		s.mu.Unlock()
	}()

	c = notify.Completion{
		WaveID:     w.ID,
		ArmedAt:    w.ArmedAt,
		ExecutedAt: s.clock.Now(),
	}
	s.log.Info("executing deletion wave", "wave", w.ID)

	for _, p := range w.Plans {
		for _, d := range p.Directories {
			if err := s.exec.RemoveAll(ctx, d.Path); err != nil {
				derr := &DeleteError{Path: d.Path, Err: err}
				s.log.Warn("directory not removed", "wave", w.ID, "path", d.Path, "error", derr)
				c.Retained = append(c.Retained, notify.Retained{Directory: d, Reason: err.Error()})
				continue
			}
			s.log.Info("directory removed", "wave", w.ID, "path", d.Path, "bytes", d.Size)
			c.Removed = append(c.Removed, d)
		}
	}

	for _, p := range w.Plans {
		vr := notify.VolumeResult{Volume: p.Volume, Before: p.Space}
		after, err := s.prober.Probe(string(p.Volume))
		if err != nil {
			s.log.Warn("post-deletion probe failed", "volume", p.Volume, "error", err)
			vr.ProbeErr = err.Error()
		} else {
			vr.After = after
		}
		c.Volumes = append(c.Volumes, vr)
	}

	s.send(ctx, "completion", func() (notify.Message, error) {
		return notify.CompletionReport(c)
	})

	if s.history != nil {
		if err := s.history.Record(ctx, c); err != nil {
			s.log.Error("recording wave history failed", "wave", w.ID, "error", err)
		}
	}

	s.log.Info("deletion wave completed", "wave", w.ID, "removed", len(c.Removed), "retained", len(c.Retained), "freed", c.RemovedBytes())
}

// send renders and delivers a report. Failures are logged only.
func (s *Scheduler) send(ctx context.Context, what string, build func() (notify.Message, error)) {
	msg, err := build()
	if err != nil {
		s.log.Error("rendering notification failed", "notification", what, "error", err)
		return
	}
	receipts, err := s.notifier.Send(ctx, msg)
	if err != nil {
		s.log.Error("notification delivery failed", "notification", what, "error", err)
	}
	for _, r := range receipts {
		s.log.Debug("notification delivered", "notification", what, "sink", r.Sink, "id", r.ID)
	}
}
