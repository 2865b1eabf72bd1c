// Package space reports free and total bytes for the volume underlying a path,
// and resolves which physical volume a path lives on.
package space

import (
	"fmt"
	"path/filepath"
)

// VolumeKey identifies a physical volume: its mount root on Unix, its drive root on Windows.
type VolumeKey string

// Info is a point-in-time reading for one volume.
type Info struct {
	Total uint64
	Free  uint64
}

func (i Info) Used() uint64 {
	if i.Free > i.Total {
		return 0
	}
	return i.Total - i.Free
}

func (i Info) UsedPercent() float64 {
	if i.Total == 0 {
		return 0
	}
	return float64(i.Used()) / float64(i.Total) * 100
}

// ProbeError means the filesystem under Path could not be statted.
type ProbeError struct {
	Path string
	Op   string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("space: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Prober is what the evaluation cycle and the scheduler need from this package.
type Prober interface {
	Probe(path string) (Info, error)
	Volume(path string) (VolumeKey, error)
}

// OSProber queries the live filesystem. It keeps no state between calls.
type OSProber struct{}

func New() *OSProber {
	return &OSProber{}
}

func (OSProber) Probe(path string) (Info, error) {
	info, err := statVolume(path)
	if err != nil {
		return Info{}, &ProbeError{Path: path, Op: "statfs", Err: err}
	}
	return info, nil
}

func (OSProber) Volume(path string) (VolumeKey, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &ProbeError{Path: path, Op: "abs", Err: err}
	}
	key, err := volumeRoot(abs)
	if err != nil {
		return "", &ProbeError{Path: path, Op: "volume", Err: err}
	}
	return key, nil
}
