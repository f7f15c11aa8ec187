//go:build linux || darwin || freebsd

package diskstat

import "golang.org/x/sys/unix"

func statfs(path string) (*unix.Statfs_t, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func freeBytes(path string) (uint64, error) {
	st, err := statfs(path)
	if err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}

func freeInodesPercent(path string) (float64, error) {
	st, err := statfs(path)
	if err != nil {
		return 0, err
	}
	return inodePercent(uint64(st.Ffree), uint64(st.Files)), nil
}
