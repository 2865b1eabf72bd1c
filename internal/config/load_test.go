package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
monitor:
  paths: [/srv/nvr/cam1, /srv/nvr/cam2]
  schedule: "0 * * * *"
  minFreeGB: 50
  bufferPercent: 10
  deletionDelay: 6h
notify:
  smtp:
    enabled: true
    host: smtp.example.com
    username: $(REC_PRUNER_TEST_USER)
    from: nvr@example.com
    to: [ops@example.com]
logging:
  level: debug
  format: json
`

func TestLoad(t *testing.T) {
	t.Setenv("REC_PRUNER_TEST_USER", "camera-ops")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"/srv/nvr/cam1", "/srv/nvr/cam2"}, cfg.Monitor.Paths)
	assert.Equal(t, "0 * * * *", cfg.Monitor.Schedule)
	assert.Equal(t, 6*time.Hour, cfg.Monitor.DeletionDelay)
	assert.Equal(t, uint64(50)<<30, cfg.Monitor.MinFreeBytes())
	assert.Equal(t, "camera-ops", cfg.Notify.SMTP.Username)
	assert.Equal(t, "json", cfg.Logging.Format)

	// defaults
	assert.Equal(t, 587, cfg.Notify.SMTP.Port)
	assert.Equal(t, "opportunistic", cfg.Notify.SMTP.TLS)
	assert.Equal(t, 4, cfg.Monitor.ScanConcurrency)
	assert.Equal(t, "auto", cfg.ConfigReload.Method)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "reading config file")
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no paths",
			yaml: "monitor: {minFreeGB: 1}",
			want: "at least one path",
		},
		{
			name: "bad schedule",
			yaml: "monitor: {paths: [/a], schedule: 'every hour'}",
			want: "monitor.schedule",
		},
		{
			name: "negative buffer",
			yaml: "monitor: {paths: [/a], bufferPercent: -5}",
			want: "bufferPercent",
		},
		{
			name: "smtp without recipients",
			yaml: "monitor: {paths: [/a]}\nnotify: {smtp: {enabled: true, host: h, from: f}}",
			want: "notify.smtp.to",
		},
		{
			name: "unknown reload method",
			yaml: "monitor: {paths: [/a]}\nconfigReload: {method: inotify}",
			want: "configReload.method",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
