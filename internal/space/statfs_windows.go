//go:build windows

package space

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

func statVolume(path string) (Info, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Info{}, err
	}

	var freeAvail, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeAvail, &total, &totalFree); err != nil {
		return Info{}, err
	}
	return Info{Total: total, Free: freeAvail}, nil
}

// volumeRoot returns the drive root, e.g. `D:\`.
func volumeRoot(abs string) (VolumeKey, error) {
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	vol := filepath.VolumeName(abs)
	return VolumeKey(strings.ToUpper(vol) + `\`), nil
}
