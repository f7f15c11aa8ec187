package pathretention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulschiretz/pgl-retention/pkg/hints"
	"github.com/paulschiretz/pgl-retention/pkg/pathretentionmetrics"
	"github.com/paulschiretz/pgl-retention/pkg/plog"
	"github.com/paulschiretz/pgl-retention/pkg/retention"
	"github.com/paulschiretz/pgl-retention/pkg/snapshot"
	"github.com/paulschiretz/pgl-retention/pkg/util"
)

// task holds the mutable state for a single prune so that PathRetainer stays stateless.
type task struct {
	*PathRetainer

	ctx         context.Context
	absBasePath string
	sids        []snapshot.SID
	policy      retention.Policy
	now         time.Time

	metrics  pathretentionmetrics.Metrics
	dryRun   bool
	failFast bool

	// records holds deletions first, then kept snapshots. Evicted snapshots
	// are rewritten in place.
	records []Record

	deleteTasksChan chan int
	deleteWg        sync.WaitGroup
	errMu           sync.Mutex
	firstErr        error
}

func (t *task) execute() error {
	res := retention.Evaluate(t.sids, t.now, t.policy)
	logRuleSummary(res)

	t.records = make([]Record, 0, len(res.Delete)+len(res.Keep))
	for _, d := range res.Delete {
		t.records = append(t.records, Record{Decision: d})
	}
	keepOffset := len(t.records)
	for _, d := range res.Keep {
		t.records = append(t.records, Record{Decision: d})
	}

	t.metrics.StartProgress("Prune progress", 10*time.Second)
	defer func() {
		t.metrics.StopProgress()
		t.metrics.LogSummary("Prune finished")
	}()

	if err := t.deleteRejected(keepOffset); err != nil {
		return err
	}

	if t.policy.CapacityEnabled() {
		if err := t.evict(keepOffset); err != nil {
			return err
		}
	}

	for _, rec := range t.records[keepOffset:] {
		if rec.Action == retention.ActionKeep {
			plog.Notice("KEEP", "snapshot", rec.SID.String(), "rule", rec.Rule)
			t.metrics.AddSnapshotsKept(1)
		}
	}
	return nil
}

// deleteRejected removes records[:n] with the worker pool.
func (t *task) deleteRejected(n int) error {
	if n == 0 {
		if t.dryRun {
			plog.Debug("[DRY RUN] No snapshots need deletion")
		} else {
			plog.Debug("No snapshots need deletion")
		}
		return nil
	}

	plog.Info("Deleting outdated snapshots", "count", n)

	ctx, cancel := context.WithCancel(t.ctx)
	defer cancel()

	t.deleteTasksChan = make(chan int, t.numWorkers*2)
	for range t.numWorkers {
		t.deleteWg.Add(1)
		go t.deleteWorker(ctx, cancel)
	}

	go t.deleteTaskProducer(ctx, n)

	t.deleteWg.Wait()

	if t.firstErr != nil {
		return t.firstErr
	}
	return t.ctx.Err()
}

func (t *task) deleteTaskProducer(ctx context.Context, n int) {
	defer close(t.deleteTasksChan)
	for i := range n {
		select {
		case <-ctx.Done():
			plog.Debug("Cancellation received, stopping delete job feeding.")
			return
		case t.deleteTasksChan <- i:
		}
	}
}

func (t *task) deleteWorker(ctx context.Context, cancel context.CancelFunc) {
	defer t.deleteWg.Done()
	for i := range t.deleteTasksChan {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rec := &t.records[i]
		if err := t.remove(rec.SID, rec.Rule); err != nil {
			rec.Error = err.Error()
			t.metrics.AddSnapshotsFailed(1)
			plog.Warn("Failed to delete snapshot", "snapshot", rec.SID.ID(), "error", err)
			if t.failFast {
				t.errMu.Lock()
				if t.firstErr == nil {
					t.firstErr = fmt.Errorf("failed to delete snapshot %s: %w", rec.SID.ID(), err)
				}
				t.errMu.Unlock()
				cancel()
			}
			continue
		}
		t.metrics.AddSnapshotsDeleted(1)
	}
}

// evict removes the oldest kept snapshots while the destination is below a
// capacity threshold. Kept records start at keepOffset.
func (t *task) evict(keepOffset int) error {
	index := make(map[string]int, len(t.records)-keepOffset)
	remaining := make([]snapshot.SID, 0, len(t.records)-keepOffset)
	for i := keepOffset; i < len(t.records); i++ {
		index[t.records[i].SID.ID()] = i
		remaining = append(remaining, t.records[i].SID)
	}

	ev := retention.NewEviction(remaining, t.policy, t.newProbe(t.absBasePath))
	for {
		d, ok, err := ev.Next(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil {
				return t.ctx.Err()
			}
			if hints.IsHint(err) {
				plog.Debug("Capacity rule not supported on this platform, skipping", "reason", err)
				return nil
			}
			if t.failFast {
				return fmt.Errorf("capacity check failed: %w", err)
			}
			plog.Warn("Capacity check failed, skipping free space rules", "error", err)
			return nil
		}
		if !ok {
			return nil
		}

		rec := &t.records[index[d.SID.ID()]]
		rec.Decision = d

		if err := t.remove(d.SID, d.Rule); err != nil {
			rec.Error = err.Error()
			t.metrics.AddSnapshotsFailed(1)
			if t.failFast {
				return fmt.Errorf("failed to evict snapshot %s: %w", d.SID.ID(), err)
			}
			plog.Warn("Failed to evict snapshot", "snapshot", d.SID.ID(), "error", err)
			continue
		}
		t.metrics.AddSnapshotsEvicted(1)

		// Later candidates depend on the space freed by this one.
		if t.dryRun {
			plog.Debug("[DRY RUN] Stopping eviction after the first candidate")
			return nil
		}
	}
}

// remove deletes one snapshot directory. In dry run it only logs.
func (t *task) remove(sid snapshot.SID, rule retention.Rule) error {
	if sid.RelPathKey == "" || sid.IsRoot {
		return fmt.Errorf("refusing to delete snapshot without a path: %s", sid.ID())
	}
	if t.dryRun {
		plog.Notice("[DRY RUN] DELETE", "snapshot", sid.String(), "rule", rule)
		return nil
	}
	plog.Notice("DELETE", "snapshot", sid.String(), "rule", rule)
	absPath := util.DenormalizePath(filepath.Join(t.absBasePath, sid.RelPathKey))
	return os.RemoveAll(absPath)
}
