// Package diskstat measures free space and free inodes of the filesystem that
// holds the snapshot repository.
package diskstat

import (
	"context"
	"fmt"

	"github.com/paulschiretz/pgl-retention/pkg/hints"
)

// ErrUnsupported is returned when the platform cannot answer a capacity query.
var ErrUnsupported = hints.New("capacity query not supported on this platform")

// Probe reports the capacity of the filesystem containing path.
type Probe struct {
	path string
}

// New returns a probe bound to path.
func New(path string) *Probe {
	return &Probe{path: path}
}

// FreeBytes returns the bytes available to an unprivileged user.
func (p *Probe) FreeBytes(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	free, err := freeBytes(p.path)
	if err != nil {
		return 0, fmt.Errorf("free space of %s: %w", p.path, err)
	}
	return free, nil
}

// FreeInodesPercent returns the share of free inodes in percent.
func (p *Probe) FreeInodesPercent(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	pct, err := freeInodesPercent(p.path)
	if err != nil {
		return 0, fmt.Errorf("free inodes of %s: %w", p.path, err)
	}
	return pct, nil
}

// inodePercent converts raw counters. Filesystems without inode accounting
// report zero total inodes and are treated as never running out.
func inodePercent(free, total uint64) float64 {
	if total == 0 {
		return 100
	}
	return 100 * float64(free) / float64(total)
}
