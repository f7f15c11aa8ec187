// Package engine wires preflight, locking, hooks, retention and the journal
// into the prune, list and history operations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/paulschiretz/pgl-retention/pkg/hints"
	"github.com/paulschiretz/pgl-retention/pkg/hook"
	"github.com/paulschiretz/pgl-retention/pkg/journal"
	"github.com/paulschiretz/pgl-retention/pkg/lockfile"
	"github.com/paulschiretz/pgl-retention/pkg/pathretention"
	"github.com/paulschiretz/pgl-retention/pkg/planner"
	"github.com/paulschiretz/pgl-retention/pkg/plog"
	"github.com/paulschiretz/pgl-retention/pkg/preflight"
	"github.com/paulschiretz/pgl-retention/pkg/retention"
	"github.com/paulschiretz/pgl-retention/pkg/snapshot"
	"github.com/paulschiretz/pgl-retention/pkg/util"
)

type Validator interface {
	Run(ctx context.Context, absBasePath string, p *preflight.Plan) error
}

type Retainer interface {
	Prune(ctx context.Context, absBasePath string, sids []snapshot.SID, p *pathretention.Plan, now time.Time) (pathretention.Outcome, error)
}

type HookRunner interface {
	RunPreHook(ctx context.Context, p *hook.Plan, info hook.RunInfo) error
	RunPostHook(ctx context.Context, p *hook.Plan, info hook.RunInfo) error
}

// Runner executes the operations of one repository.
type Runner struct {
	validator Validator
	retainer  Retainer
	hooks     HookRunner

	// now is swapped in tests.
	now func() time.Time
}

func NewRunner(v Validator, r Retainer, h HookRunner) *Runner {
	return &Runner{
		validator: v,
		retainer:  r,
		hooks:     h,
		now:       time.Now,
	}
}

// ExecutePrune scans the snapshots below absBasePath and applies the retention plan to them.
// A repository locked by another process is skipped without error.
func (r *Runner) ExecutePrune(ctx context.Context, absBasePath string, p *planner.PrunePlan) error {
	// Check for cancellation at the very beginning.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	started := r.now()

	if err := r.validator.Run(ctx, absBasePath, p.Preflight); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}

	releaseLock, err := r.acquireBaseLock(ctx, absBasePath)
	if err != nil {
		return err
	}
	if releaseLock == nil {
		return nil
	}
	defer releaseLock()

	if p.DryRun {
		plog.Info("Starting prune (DRY RUN)", "base", absBasePath)
	} else {
		plog.Info("Starting prune", "base", absBasePath)
	}

	info := hook.RunInfo{AbsBasePath: absBasePath, DryRun: p.DryRun}
	if err := r.hooks.RunPreHook(ctx, p.Hooks, info); err != nil {
		switch {
		case hints.IsHint(err):
			plog.Debug("Skipping pre-prune hooks", "reason", err)
		case errors.Is(err, context.Canceled):
			return fmt.Errorf("pre-prune hook canceled: %w", err)
		default:
			return fmt.Errorf("pre-prune hook failed: %w", err)
		}
	}

	var outcome pathretention.Outcome
	// Post hooks run on every exit past this point so they can report failures too.
	defer func() {
		info.Deleted = int64(outcome.Count(retention.ActionDelete) + outcome.Count(retention.ActionEvict) - outcome.Failed())
		info.Failed = int64(outcome.Failed())
		if err := r.hooks.RunPostHook(ctx, p.Hooks, info); err != nil && !hints.IsHint(err) {
			plog.Warn("Post-prune hook reported an error", "error", err)
		}
	}()

	store := snapshot.NewStore(absBasePath, p.Paths.RelSnapshotPathKey, p.ScanWorkers)
	sids, err := store.Scan(ctx)
	if err != nil {
		return fmt.Errorf("fatal error during snapshot scan: %w", err)
	}

	outcome, pruneErr := r.retainer.Prune(ctx, absBasePath, sids, p.Retention, started)
	if errors.Is(pruneErr, pathretention.ErrNothingToPrune) {
		plog.Info("No snapshots found, nothing to prune", "directory", store.Dir())
		pruneErr = nil
	}

	if len(outcome.Records) > 0 {
		r.writeJournal(absBasePath, p, started, outcome)
	}
	if p.MetricsTextfile != "" && outcome.Metrics != nil {
		if err := outcome.Metrics.WriteTextfile(p.MetricsTextfile, r.now()); err != nil {
			plog.Warn("Failed to write metrics textfile", "path", p.MetricsTextfile, "error", err)
		}
	}

	if pruneErr != nil {
		return fmt.Errorf("fatal error during prune: %w", pruneErr)
	}
	plog.Info("Prune completed", "duration", r.now().Sub(started).Round(time.Millisecond))
	return nil
}

// writeJournal records the outcome and trims old journals. Journal failures
// never fail a prune whose deletions already happened.
func (r *Runner) writeJournal(absBasePath string, p *planner.PrunePlan, started time.Time, outcome pathretention.Outcome) {
	jp := p.Journal
	if jp == nil || !jp.Enabled {
		plog.Debug("Skipping journal", "reason", journal.ErrDisabled)
		return
	}
	if jp.DryRun {
		plog.Info("[DRY RUN] Skipping journal write")
		return
	}

	runID := journal.NewRunID()
	entries := make([]journal.Entry, 0, len(outcome.Records))
	for _, rec := range outcome.Records {
		entries = append(entries, journal.Entry{
			RunID:    runID,
			Time:     started,
			Snapshot: rec.SID.ID(),
			Name:     rec.SID.Name,
			Action:   rec.Action,
			Rule:     rec.Rule,
			Error:    rec.Error,
		})
	}

	absJournalDir := util.DenormalizePath(filepath.Join(absBasePath, p.Paths.RelJournalPathKey))
	path, err := journal.Write(absJournalDir, started, runID, entries, jp.Format)
	if err != nil {
		plog.Warn("Failed to write journal", "error", err)
		return
	}
	plog.Info("Journal written", "path", path, "entries", len(entries))

	if jp.Keep > 0 {
		removed, err := journal.Prune(absJournalDir, jp.Keep)
		if err != nil {
			plog.Warn("Failed to prune old journals", "error", err)
			return
		}
		if removed > 0 {
			plog.Debug("Removed old journals", "count", removed)
		}
	}
}

// ExecuteList evaluates the retention plan against the current snapshots and logs
// the decision for each of them. Nothing is deleted and no capacity is measured.
func (r *Runner) ExecuteList(ctx context.Context, absBasePath string, p *planner.ListPlan) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	sids, err := r.ListSnapshots(ctx, absBasePath, p)
	if err != nil {
		return err
	}
	if len(sids) == 0 {
		plog.Info("No snapshots found", "base", absBasePath)
		return nil
	}

	// Evaluation always runs newest first, independent of the display order.
	ordered := slices.Clone(sids)
	snapshot.SortNewestFirst(ordered)
	res := pathretention.Preview(ordered, p.Retention, r.now())
	byKey := make(map[string]retention.Decision, len(sids))
	for _, d := range res.Keep {
		byKey[d.SID.RelPathKey] = d
	}
	for _, d := range res.Delete {
		byKey[d.SID.RelPathKey] = d
	}

	for _, sid := range sids {
		d := byKey[sid.RelPathKey]
		args := []any{"id", sid.ID(), "action", d.Action, "rule", d.Rule}
		if sid.Name != "" {
			args = append(args, "name", sid.Name)
		}
		if !sid.Healthy {
			args = append(args, "healthy", false)
		}
		plog.Info("Snapshot", args...)
	}
	return nil
}

// ListSnapshots scans the snapshot directory and returns the snapshots in the plan's sort order.
func (r *Runner) ListSnapshots(ctx context.Context, absBasePath string, p *planner.ListPlan) ([]snapshot.SID, error) {
	store := snapshot.NewStore(absBasePath, p.Paths.RelSnapshotPathKey, p.ScanWorkers)
	sids, err := store.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshots: %w", err)
	}
	if p.Sort == planner.Asc {
		snapshot.SortOldestFirst(sids)
	}
	return sids, nil
}

// ExecuteHistory logs the entries of the most recent journals, newest first.
func (r *Runner) ExecuteHistory(ctx context.Context, absBasePath string, p *planner.HistoryPlan) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	absJournalDir := util.DenormalizePath(filepath.Join(absBasePath, p.Paths.RelJournalPathKey))
	infos, err := journal.List(absJournalDir)
	if err != nil {
		return fmt.Errorf("failed to list journals: %w", err)
	}
	if len(infos) == 0 {
		plog.Info("No prune history found", "directory", absJournalDir)
		return nil
	}
	if p.Limit > 0 && len(infos) > p.Limit {
		infos = infos[:p.Limit]
	}

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := journal.Read(info.Path)
		if err != nil {
			plog.Warn("Skipping unreadable journal", "path", info.Path, "error", err)
			continue
		}
		plog.Info("Prune run", "started", info.Started.Local().Format(time.DateTime), "runId", info.RunID, "entries", len(entries))
		for _, e := range entries {
			if e.Action == retention.ActionKeep {
				continue
			}
			args := []any{"snapshot", e.Snapshot, "action", e.Action, "rule", e.Rule}
			if e.Error != "" {
				args = append(args, "error", e.Error)
			}
			plog.Info("Decision", args...)
		}
	}
	return nil
}

// acquireBaseLock acquires a file lock within the repository base.
// It returns a nil release function if another process holds the lock.
func (r *Runner) acquireBaseLock(ctx context.Context, absBasePath string) (func(), error) {
	appID := fmt.Sprintf("pgl-retention:%s", absBasePath)

	plog.Debug("Attempting to acquire lock", "path", absBasePath)
	lock, err := lockfile.Acquire(ctx, absBasePath, appID)
	if err != nil {
		var lockErr *lockfile.ErrLockActive
		if errors.As(err, &lockErr) {
			plog.Warn("Operation is already running for this repository, skipping run.", "details", lockErr.Error())
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	plog.Debug("Lock acquired successfully.")

	return lock.Release, nil
}
