package worker

import (
	"bytes"
	"context"
	"errors"
	iofs "io/fs"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

const gb = 1 << 30

var t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

type fakeProber struct {
	mu         sync.Mutex
	volumes    map[string]space.VolumeKey
	volumeErrs map[string]error
	infos      map[space.VolumeKey]space.Info
	probeErrs  map[space.VolumeKey]error
	probes     map[string]int
	lookups    int
}

func newProber() *fakeProber {
	return &fakeProber{
		volumes:    map[string]space.VolumeKey{},
		volumeErrs: map[string]error{},
		infos:      map[space.VolumeKey]space.Info{},
		probeErrs:  map[space.VolumeKey]error{},
		probes:     map[string]int{},
	}
}

func (p *fakeProber) Probe(path string) (space.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes[path]++
	if err := p.probeErrs[space.VolumeKey(path)]; err != nil {
		return space.Info{}, err
	}
	return p.infos[space.VolumeKey(path)], nil
}

func (p *fakeProber) Volume(path string) (space.VolumeKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups++
	if err := p.volumeErrs[path]; err != nil {
		return "", err
	}
	return p.volumes[path], nil
}

func (p *fakeProber) totalProbes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.probes {
		n += c
	}
	return n
}

type fakeScanner struct {
	mu    sync.Mutex
	dirs  map[string][]recording.Directory
	errs  map[string]error
	scans []string
}

func (s *fakeScanner) Scan(_ context.Context, root string) ([]recording.Directory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans = append(s.scans, root)
	if err := s.errs[root]; err != nil {
		return nil, err
	}
	return s.dirs[root], nil
}

type fakeWaves struct {
	mu    sync.Mutex
	busy  bool
	armed [][]retention.Plan
}

func (f *fakeWaves) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

func (f *fakeWaves) Arm(_ context.Context, plans []retention.Plan) (*scheduler.Wave, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy || len(plans) == 0 {
		return nil, false
	}
	f.busy = true
	f.armed = append(f.armed, plans)
	return &scheduler.Wave{ID: "w", Plans: plans}, true
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *fakeNotifier) Send(_ context.Context, msg notify.Message) ([]notify.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil, nil
}

type env struct {
	prober   *fakeProber
	scanner  *fakeScanner
	waves    *fakeWaves
	notifier *fakeNotifier
	w        *Worker
}

func newEnv(paths ...string) *env {
	e := &env{
		prober:   newProber(),
		scanner:  &fakeScanner{dirs: map[string][]recording.Directory{}, errs: map[string]error{}},
		waves:    &fakeWaves{},
		notifier: &fakeNotifier{},
	}
	monitor := config.MonitorConfig{
		Paths:           paths,
		MinFreeGB:       50,
		BufferPercent:   10,
		ScanConcurrency: 2,
	}
	e.w = New(monitor, logging.Nop(), e.prober, e.scanner, e.waves, e.notifier, mailbox.New[Job]())
	return e
}

func rec(path string, sizeGB int64, hour int) recording.Directory {
	return recording.Directory{Path: path, Size: sizeGB * gb, ModTime: t0.Add(time.Duration(hour) * time.Hour)}
}

func planPaths(p retention.Plan) []string {
	var out []string
	for _, d := range p.Directories {
		out = append(out, d.Path)
	}
	return out
}

func TestCycleSelectsOldestUntilDeficitCovered(t *testing.T) {
	e := newEnv("/srv/cam1")
	e.prober.volumes["/srv/cam1"] = "/srv"
	e.prober.infos["/srv"] = space.Info{Total: 500 * gb, Free: 40 * gb}
	e.scanner.dirs["/srv/cam1"] = []recording.Directory{rec("A", 10, 1), rec("B", 8, 2), rec("C", 20, 3)}

	c := e.w.Handle(context.Background(), Job{Reason: "schedule"})

	require.Len(t, c.Plans, 1)
	assert.Equal(t, []string{"A", "B"}, planPaths(c.Plans[0]))
	assert.Equal(t, int64(15*gb), c.Plans[0].SpaceToFree)
	require.NotNil(t, c.Wave)
	assert.Len(t, e.waves.armed, 1)
}

func TestCycleNoDeletionWhenAboveTarget(t *testing.T) {
	e := newEnv("/srv/cam1")
	e.prober.volumes["/srv/cam1"] = "/srv"
	e.prober.infos["/srv"] = space.Info{Total: 500 * gb, Free: 60 * gb}
	e.scanner.dirs["/srv/cam1"] = []recording.Directory{rec("A", 10, 1)}

	c := e.w.Handle(context.Background(), Job{})

	assert.Empty(t, c.Plans)
	assert.Nil(t, c.Wave)
	assert.Empty(t, e.waves.armed)
	assert.Empty(t, e.notifier.msgs)
	assert.Empty(t, e.scanner.scans, "healthy volumes are not scanned")
}

func TestCycleSkippedWhileWaveOutstanding(t *testing.T) {
	e := newEnv("/srv/cam1", "/mnt/usb/cam2")
	e.waves.busy = true

	c := e.w.Handle(context.Background(), Job{})

	assert.True(t, c.Skipped)
	assert.Zero(t, e.prober.lookups)
	assert.Zero(t, e.prober.totalProbes())
	assert.Empty(t, e.scanner.scans)
}

func TestCycleSharedVolumeProbedOnceAndConsolidated(t *testing.T) {
	e := newEnv("/srv/cam1", "/srv/cam2")
	e.prober.volumes["/srv/cam1"] = "/srv"
	e.prober.volumes["/srv/cam2"] = "/srv"
	e.prober.infos["/srv"] = space.Info{Total: 500 * gb, Free: 40 * gb}
	e.scanner.dirs["/srv/cam1"] = []recording.Directory{rec("/srv/cam1/A", 10, 1)}
	e.scanner.dirs["/srv/cam2"] = []recording.Directory{rec("/srv/cam2/B", 10, 2)}

	c := e.w.Handle(context.Background(), Job{})

	assert.Equal(t, 1, e.prober.totalProbes())
	require.Len(t, c.Plans, 1)
	assert.Equal(t, []string{"/srv/cam1", "/srv/cam2"}, c.Plans[0].Paths)
	assert.Equal(t, []string{"/srv/cam1/A", "/srv/cam2/B"}, planPaths(c.Plans[0]))
}

func TestCycleProbeFailureAlertsAndContinues(t *testing.T) {
	e := newEnv("/srv/cam1", "/mnt/usb/cam2")
	e.prober.volumes["/srv/cam1"] = "/srv"
	e.prober.volumes["/mnt/usb/cam2"] = "/mnt/usb"
	e.prober.infos["/srv"] = space.Info{Total: 500 * gb, Free: 40 * gb}
	e.prober.probeErrs["/mnt/usb"] = &space.ProbeError{Path: "/mnt/usb", Op: "statfs", Err: errors.New("input/output error")}
	e.scanner.dirs["/srv/cam1"] = []recording.Directory{rec("A", 20, 1)}
	e.scanner.dirs["/mnt/usb/cam2"] = []recording.Directory{rec("X", 20, 1)}

	c := e.w.Handle(context.Background(), Job{})

	require.Len(t, c.Failures, 1)
	assert.Equal(t, space.VolumeKey("/mnt/usb"), c.Failures[0].Volume)
	assert.Equal(t, []string{"/mnt/usb/cam2"}, c.Failures[0].Paths)
	assert.NotContains(t, e.scanner.scans, "/mnt/usb/cam2")

	require.Len(t, e.notifier.msgs, 1)
	assert.Equal(t, notify.KindVolumeAlert, e.notifier.msgs[0].Kind)

	require.Len(t, c.Plans, 1)
	assert.Equal(t, space.VolumeKey("/srv"), c.Plans[0].Volume)
}

func TestCycleMissingPathIsSkippedQuietly(t *testing.T) {
	e := newEnv("/srv/not-yet")
	e.prober.volumeErrs["/srv/not-yet"] = &space.ProbeError{Path: "/srv/not-yet", Op: "volume", Err: iofs.ErrNotExist}

	c := e.w.Handle(context.Background(), Job{})

	assert.Empty(t, c.Failures)
	assert.Empty(t, c.Plans)
	assert.Empty(t, e.notifier.msgs)
}

func TestCycleScanErrorTreatedAsEmpty(t *testing.T) {
	e := newEnv("/srv/cam1", "/srv/cam2")
	e.prober.volumes["/srv/cam1"] = "/srv"
	e.prober.volumes["/srv/cam2"] = "/srv"
	e.prober.infos["/srv"] = space.Info{Total: 500 * gb, Free: 40 * gb}
	e.scanner.errs["/srv/cam1"] = &inventory.ScanError{Path: "/srv/cam1", Err: iofs.ErrPermission}
	e.scanner.dirs["/srv/cam2"] = []recording.Directory{rec("/srv/cam2/B", 20, 2)}

	c := e.w.Handle(context.Background(), Job{})

	require.Len(t, c.Plans, 1)
	assert.Equal(t, []string{"/srv/cam2/B"}, planPaths(c.Plans[0]))
}

func TestCycleDuplicatePathsScannedOnce(t *testing.T) {
	e := newEnv("/srv/cam1", "/srv/cam1/")
	e.prober.volumes["/srv/cam1"] = "/srv"
	e.prober.infos["/srv"] = space.Info{Total: 500 * gb, Free: 40 * gb}
	e.scanner.dirs["/srv/cam1"] = []recording.Directory{rec("A", 20, 1)}

	e.w.Handle(context.Background(), Job{})

	assert.Equal(t, []string{"/srv/cam1"}, e.scanner.scans)
}

func TestStartDrainsMailbox(t *testing.T) {
	e := newEnv("/srv/cam1")
	e.prober.volumes["/srv/cam1"] = "/srv"
	e.prober.infos["/srv"] = space.Info{Total: 500 * gb, Free: 400 * gb}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.w.Start(ctx)
		close(done)
	}()

	e.w.mb.Put(Job{Reason: "startup"})
	require.Eventually(t, func() bool { return e.prober.totalProbes() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestUpdateConfig(t *testing.T) {
	e := newEnv("/srv/cam1")
	e.prober.volumes["/srv/cam9"] = "/srv"
	e.prober.infos["/srv"] = space.Info{Total: 500 * gb, Free: 400 * gb}

	e.w.UpdateConfig(config.MonitorConfig{Paths: []string{"/srv/cam9"}, MinFreeGB: 1})
	e.w.Handle(context.Background(), Job{})

	assert.Equal(t, 1, e.prober.probes["/srv"])
}

func TestCycleNestedMonitoredPaths(t *testing.T) {
	e := newEnv("/srv/nvr", "/srv/nvr/cam1")
	e.prober.volumes["/srv/nvr"] = "/srv"
	e.prober.volumes["/srv/nvr/cam1"] = "/srv"
	e.prober.infos["/srv"] = space.Info{Total: 500 * gb, Free: 30 * gb}
	e.scanner.dirs["/srv/nvr"] = []recording.Directory{rec("/srv/nvr/cam1", 20, 0)}
	e.scanner.dirs["/srv/nvr/cam1"] = []recording.Directory{rec("/srv/nvr/cam1/d1", 10, 1), rec("/srv/nvr/cam1/d2", 10, 2)}

	c := e.w.Handle(context.Background(), Job{})

	require.Len(t, c.Plans, 1)
	assert.Equal(t, []string{"/srv/nvr/cam1/d1", "/srv/nvr/cam1/d2"}, planPaths(c.Plans[0]))
	assert.Equal(t, int64(20*gb), c.Plans[0].Bytes())
	assert.Equal(t, int64(5*gb), c.Plans[0].Shortfall)
	assert.NotContains(t, planPaths(c.Plans[0]), "/srv/nvr/cam1")
}

func TestCycleBelowTargetWithNothingToDelete(t *testing.T) {
	e := newEnv("/srv/cam1")
	var buf bytes.Buffer
	e.w.log = logging.NewWithWriter(config.LoggingConfig{Level: "info"}, &buf)
	e.prober.volumes["/srv/cam1"] = "/srv"
	e.prober.infos["/srv"] = space.Info{Total: 500 * gb, Free: 10 * gb}

	c := e.w.Handle(context.Background(), Job{})

	assert.Empty(t, c.Plans)
	assert.Empty(t, e.waves.armed)
	out := buf.String()
	assert.Contains(t, out, `msg="insufficient reclaimable space"`)
	assert.Contains(t, out, "volume=/srv")
	assert.Contains(t, out, "shortfall=48318382080") // 55GB target - 10GB free
	assert.NotContains(t, out, "free space above target")
}

func TestCycleAboveTargetLogsHealthy(t *testing.T) {
	e := newEnv("/srv/cam1")
	var buf bytes.Buffer
	e.w.log = logging.NewWithWriter(config.LoggingConfig{Level: "info"}, &buf)
	e.prober.volumes["/srv/cam1"] = "/srv"
	e.prober.infos["/srv"] = space.Info{Total: 500 * gb, Free: 60 * gb}

	e.w.Handle(context.Background(), Job{})

	assert.Contains(t, buf.String(), "free space above target on every volume")
	assert.NotContains(t, buf.String(), "insufficient reclaimable space")
}
