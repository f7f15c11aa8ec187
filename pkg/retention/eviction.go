package retention

import (
	"context"
	"fmt"

	"github.com/paulschiretz/pgl-retention/pkg/snapshot"
)

// CapacityProbe measures the snapshot destination.
type CapacityProbe interface {
	FreeBytes(ctx context.Context) (uint64, error)
	FreeInodesPercent(ctx context.Context) (float64, error)
}

type evictionPhase int

const (
	phaseFreeSpace evictionPhase = iota
	phaseFreeInodes
	phaseDone
)

// Eviction yields the snapshots to remove, oldest first, while the destination
// is below the free space threshold and then below the free inode threshold.
// It is a single pass and cannot be restarted.
type Eviction struct {
	policy     Policy
	probe      CapacityProbe
	candidates []snapshot.SID
	phase      evictionPhase
}

// NewEviction prepares capacity eviction over the snapshots that survived
// Evaluate. The newest SID, the root sentinel and, with KeepNamed, named SIDs
// are never offered.
func NewEviction(remaining []snapshot.SID, p Policy, probe CapacityProbe) *Eviction {
	newest, hasNewest := snapshot.Newest(remaining)

	var candidates []snapshot.SID
	for _, sid := range remaining {
		if sid.IsRoot || (hasNewest && sid.ID() == newest.ID()) || (p.KeepNamed && sid.Named()) {
			continue
		}
		candidates = append(candidates, sid)
	}
	snapshot.SortOldestFirst(candidates)

	return &Eviction{
		policy:     p,
		probe:      probe,
		candidates: candidates,
	}
}

// Next measures the destination and returns the next snapshot to evict. ok is
// false once both thresholds are satisfied or nothing eligible remains. The
// caller is expected to delete the returned snapshot before calling Next again.
// A probe failure ends the sequence and is returned.
func (e *Eviction) Next(ctx context.Context) (d Decision, ok bool, err error) {
	for e.phase != phaseDone {
		if err := ctx.Err(); err != nil {
			e.phase = phaseDone
			return Decision{}, false, err
		}
		if len(e.candidates) == 0 {
			e.phase = phaseDone
			break
		}

		var below bool
		var rule Rule
		switch e.phase {
		case phaseFreeSpace:
			rule = RuleFreeSpace
			below, err = e.belowFreeSpace(ctx)
		case phaseFreeInodes:
			rule = RuleFreeInodes
			below, err = e.belowFreeInodes(ctx)
		}
		if err != nil {
			e.phase = phaseDone
			return Decision{}, false, err
		}
		if !below {
			e.phase++
			continue
		}

		victim := e.candidates[0]
		e.candidates = e.candidates[1:]
		return Decision{SID: victim, Action: ActionEvict, Rule: rule}, true, nil
	}
	return Decision{}, false, nil
}

func (e *Eviction) belowFreeSpace(ctx context.Context) (bool, error) {
	if !e.policy.MinFreeSpace.Enabled {
		return false, nil
	}
	free, err := e.probe.FreeBytes(ctx)
	if err != nil {
		return false, fmt.Errorf("could not measure free space: %w", err)
	}
	return free < e.policy.MinFreeSpace.Bytes(), nil
}

func (e *Eviction) belowFreeInodes(ctx context.Context) (bool, error) {
	if !e.policy.MinFreeInodes.Enabled {
		return false, nil
	}
	pct, err := e.probe.FreeInodesPercent(ctx)
	if err != nil {
		return false, fmt.Errorf("could not measure free inodes: %w", err)
	}
	return pct < float64(e.policy.MinFreeInodes.Percent), nil
}
