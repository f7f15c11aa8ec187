//go:build !linux && !darwin && !freebsd && !windows

package diskstat

func freeBytes(path string) (uint64, error) {
	return 0, ErrUnsupported
}

func freeInodesPercent(path string) (float64, error) {
	return 0, ErrUnsupported
}
