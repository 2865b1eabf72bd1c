// Package trigger turns a cron expression into evaluation jobs.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/raoulx24/rec-pruner/internal/logging"
	"github.com/raoulx24/rec-pruner/internal/mailbox"
	"github.com/raoulx24/rec-pruner/internal/worker"
)

// Trigger posts a job at start and on every schedule tick. Posting never
// blocks: the mailbox keeps only the latest pending job.
type Trigger struct {
	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
	spec  string

	log logging.Logger
	mb  *mailbox.Mailbox[worker.Job]
	now func() time.Time
}

func New(spec string, log logging.Logger, mb *mailbox.Mailbox[worker.Job]) (*Trigger, error) {
	t := &Trigger{
		cron: cron.New(cron.WithLogger(cronLogger{log}), cron.WithChain(cron.Recover(cronLogger{log}))),
		log:  log,
		mb:   mb,
		now:  time.Now,
	}
	if err := t.UpdateSchedule(spec); err != nil {
		return nil, err
	}
	return t, nil
}

// Start posts the startup job, runs the schedule until ctx is done.
func (t *Trigger) Start(ctx context.Context) {
	t.Fire("startup")
	t.cron.Start()
	t.log.Info("schedule started", "schedule", t.Spec(), "next", t.Next())

	<-ctx.Done()
	<-t.cron.Stop().Done()
}

// Fire posts a job right away.
func (t *Trigger) Fire(reason string) {
	if t.mb.HasJob() {
		t.log.Debug("cycle still queued, replacing it", "reason", reason)
	}
	t.mb.Put(worker.Job{Reason: reason, At: t.now()})
}

// UpdateSchedule swaps the cron expression in place.
func (t *Trigger) UpdateSchedule(spec string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if spec == t.spec && t.entry != 0 {
		return nil
	}

	id, err := t.cron.AddFunc(spec, func() { t.Fire("schedule") })
	if err != nil {
		return fmt.Errorf("parsing schedule %q: %w", spec, err)
	}
	if t.entry != 0 {
		t.cron.Remove(t.entry)
	}
	t.entry = id
	t.spec = spec
	return nil
}

func (t *Trigger) Spec() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spec
}

// Next is the next scheduled tick, zero before Start.
func (t *Trigger) Next() time.Time {
	t.mu.Lock()
	id := t.entry
	t.mu.Unlock()
	return t.cron.Entry(id).Next
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	log logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
