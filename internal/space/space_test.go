package space

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoDerived(t *testing.T) {
	i := Info{Total: 200, Free: 50}
	assert.Equal(t, uint64(150), i.Used())
	assert.InDelta(t, 75.0, i.UsedPercent(), 0.0001)

	assert.Equal(t, 0.0, Info{}.UsedPercent())
}

func TestProbeLive(t *testing.T) {
	info, err := New().Probe(t.TempDir())
	require.NoError(t, err)
	assert.NotZero(t, info.Total)
	assert.LessOrEqual(t, info.Free, info.Total)
}

func TestProbeMissingPath(t *testing.T) {
	_, err := New().Probe(filepath.Join(t.TempDir(), "gone", "away"))
	require.Error(t, err)

	var pe *ProbeError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "statfs", pe.Op)
}

func TestVolumeSharedBySiblings(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "cam1")
	b := filepath.Join(root, "cam2", "nested")
	require.NoError(t, os.MkdirAll(a, 0o755))
	require.NoError(t, os.MkdirAll(b, 0o755))

	p := New()
	ka, err := p.Volume(a)
	require.NoError(t, err)
	kb, err := p.Volume(b)
	require.NoError(t, err)

	assert.Equal(t, ka, kb)
	assert.NotEmpty(t, ka)
}

func TestVolumeMissingPath(t *testing.T) {
	_, err := New().Volume(filepath.Join(t.TempDir(), "missing"))

	var pe *ProbeError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "volume", pe.Op)
}
