package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/raoulx24/rec-pruner/internal/config"
	"github.com/raoulx24/rec-pruner/internal/fs"
	"github.com/raoulx24/rec-pruner/internal/history"
	"github.com/raoulx24/rec-pruner/internal/inventory"
	"github.com/raoulx24/rec-pruner/internal/logging"
	"github.com/raoulx24/rec-pruner/internal/mailbox"
	"github.com/raoulx24/rec-pruner/internal/notify"
	"github.com/raoulx24/rec-pruner/internal/scheduler"
	"github.com/raoulx24/rec-pruner/internal/space"
	"github.com/raoulx24/rec-pruner/internal/trigger"
	"github.com/raoulx24/rec-pruner/internal/watcher"
	"github.com/raoulx24/rec-pruner/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("shutting down...")
		cancel()
	}()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Logger
	logg := logging.New(cfg.Logging)

	// Notification sinks, swapped in place on reload
	sw := notify.NewSwitch(buildNotifier(cfg.Notify, logg))
	defer sw.Close()

	prober := space.New()

	// Deletion scheduler (warn, wait, delete, report)
	sched := scheduler.New(cfg.Monitor.DeletionDelay, logg, fs.New(), prober, sw, nil)

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			logg.Error("history disabled", "path", cfg.History.Path, "error", err)
		} else {
			defer store.Close()
			sched.WithHistory(store)

			if last, retained, err := store.Latest(ctx); err != nil {
				logg.Warn("reading wave history failed", "error", err)
			} else if last != nil {
				logg.Info("previous deletion wave",
					"wave", last.ID,
					"executed", last.ExecutedAt,
					"removed", last.RemovedCount,
					"bytes", last.RemovedBytes,
					"retained", retained,
				)
			}
		}
	}

	// Mailbox for evaluation cycles
	mb := mailbox.New[worker.Job]()

	// Worker (probe, scan, consolidate, arm)
	w := worker.New(cfg.Monitor, logg, prober, inventory.New(logg), sched, sw, mb)

	// Trigger (cron plus startup run)
	trig, err := trigger.New(cfg.Monitor.Schedule, logg, mb)
	if err != nil {
		log.Fatalf("invalid schedule: %v", err)
	}

	var reloadMu sync.Mutex
	var watch *watcher.Watcher

	reload := func(source string) {
		reloadMu.Lock()
		defer reloadMu.Unlock()

		newCfg, err := config.Load(*configPath)
		if err != nil {
			logg.Error("config reload failed", "source", source, "error", err)
			return
		}

		// Apply updates; an armed wave keeps its plans and due time.
		w.UpdateConfig(newCfg.Monitor)
		sched.UpdateDelay(newCfg.Monitor.DeletionDelay)
		if err := trig.UpdateSchedule(newCfg.Monitor.Schedule); err != nil {
			logg.Error("schedule not updated", "error", err)
		}
		sw.Replace(buildNotifier(newCfg.Notify, logg))
		if watch != nil {
			watch.UpdateConfig(newCfg.ConfigReload)
		}

		logg.Info("config reloaded", "source", source, "paths", len(newCfg.Monitor.Paths))
		trig.Fire("reload")
	}

	// Start worker loop
	go w.Start(ctx)

	// Start trigger loop
	go trig.Start(ctx)

	// Config file watcher
	if cfg.ConfigReload.Enabled {
		watch = watcher.New(*configPath, cfg.ConfigReload, logg, func() { reload("watcher") })
		go func() {
			if err := watch.Start(ctx); err != nil {
				logg.Error("config watcher stopped", "error", err)
			}
		}()
	}

	// Hot reload on SIGHUP
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGHUP)

		for range sigCh {
			reload("sighup")
		}
	}()

	<-ctx.Done()

	if last := sched.Last(); last != nil {
		logg.Info("last deletion wave this run", "wave", last.WaveID, "removed", len(last.Removed), "retained", len(last.Retained))
	}
	if wave := sched.Pending(); wave != nil {
		logg.Warn("dropping armed deletion wave",
			"wave", wave.ID,
			"due", wave.DueAt,
			"volumes", len(wave.Plans),
		)
		sched.Cancel()
	}
	log.Println("exit complete")
}

// buildNotifier falls back to email only when the MQTT broker is unreachable.
func buildNotifier(cfg config.NotifyConfig, logg logging.Logger) (notify.Notifier, func()) {
	m, closeFn, err := notify.FromConfig(cfg)
	if err == nil {
		logg.Info("notification sinks ready", "sinks", m.Len())
		return m, closeFn
	}
	logg.Error("mqtt sink disabled", "broker", cfg.MQTT.Broker, "error", err)

	cfg.MQTT.Enabled = false
	m, closeFn, err = notify.FromConfig(cfg)
	if err != nil {
		logg.Error("notifications disabled", "error", err)
		return notify.NewMulti(), func() {}
	}
	logg.Info("notification sinks ready", "sinks", m.Len())
	return m, closeFn
}
