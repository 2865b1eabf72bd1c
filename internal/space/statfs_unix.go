//go:build unix

package space

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

func statVolume(path string) (Info, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Info{}, err
	}

	bsize := uint64(st.Bsize)
	return Info{
		Total: st.Blocks * bsize,
		Free:  st.Bavail * bsize,
	}, nil
}

// volumeRoot walks up from abs while the parent is on the same device;
// the topmost such directory is the mount root.
func volumeRoot(abs string) (VolumeKey, error) {
	var st unix.Stat_t
	if err := unix.Stat(abs, &st); err != nil {
		return "", err
	}
	dev := st.Dev

	dir := abs
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return VolumeKey(dir), nil
		}

		var pst unix.Stat_t
		if err := unix.Stat(parent, &pst); err != nil || pst.Dev != dev {
			return VolumeKey(dir), nil
		}
		dir = parent
	}
}
