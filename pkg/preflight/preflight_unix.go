//go:build !windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// mountPrefixes are the conventional parents of removable and network mounts.
var mountPrefixes = []string{"/mnt", "/media", "/run/media", "/Volumes"}

func checkVolumeExists(string) error {
	return nil
}

func isUnsafeRoot(path string) bool {
	return path == "." || path == "/" || path == ""
}

// validateMountPoint treats a path below a conventional mount prefix that
// resides on the root filesystem as a ghost directory of an unmounted drive.
func validateMountPoint(path string) error {
	if !underMountPrefix(path) {
		return nil
	}

	rootDev, err := deviceID("/")
	if err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}
	pathDev, err := deviceID(path)
	if err != nil {
		return fmt.Errorf("failed to stat base path: %w", err)
	}

	if pathDev == rootDev {
		return fmt.Errorf("path '%s' is on the root filesystem (system disk). "+
			"Ensure your external drive is mounted", path)
	}
	return nil
}

func underMountPrefix(path string) bool {
	clean := filepath.Clean(path)
	for _, prefix := range mountPrefixes {
		if clean == prefix {
			// The prefix itself is not a mount target.
			return false
		}
		if strings.HasPrefix(clean, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func deviceID(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	return uint64(st.Dev), nil
}
