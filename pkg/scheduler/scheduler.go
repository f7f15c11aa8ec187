// Package scheduler repeats prune runs on a cron schedule and, optionally,
// whenever a new snapshot appears.
//
// Runs never overlap. A trigger that arrives while a run is active is dropped;
// the next trigger will pick up whatever was missed.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/paulschiretz/pgl-retention/pkg/planner"
	"github.com/paulschiretz/pgl-retention/pkg/plog"
	"github.com/paulschiretz/pgl-retention/pkg/snapshot"
	"github.com/paulschiretz/pgl-retention/pkg/util"
)

// RunFunc performs one prune run.
type RunFunc func(ctx context.Context) error

const (
	triggerStart = "start"
	triggerCron  = "cron"
	triggerWatch = "watch"
)

type Scheduler struct {
	run RunFunc

	schedule   cron.Schedule
	cronSpec   string
	runOnStart bool

	watch          bool
	debounce       time.Duration
	absBasePath    string
	absSnapshotDir string

	triggers chan string
}

// New creates a Scheduler for the repository at absBasePath.
func New(p *planner.ServePlan, absBasePath string, run RunFunc) *Scheduler {
	return &Scheduler{
		run:            run,
		schedule:       p.Schedule,
		cronSpec:       p.Cron,
		runOnStart:     p.RunOnStart,
		watch:          p.Watch,
		debounce:       p.Debounce,
		absBasePath:    absBasePath,
		absSnapshotDir: util.DenormalizePath(filepath.Join(absBasePath, p.Prune.Paths.RelSnapshotPathKey)),
		triggers:       make(chan string),
	}
}

// Serve blocks until ctx is cancelled. It only returns an error if the
// triggers could not be set up.
func (s *Scheduler) Serve(ctx context.Context) error {
	var watcher *fsnotify.Watcher
	if s.watch {
		var err error
		watcher, err = s.newWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.runLoop(ctx)
	}()

	if s.schedule != nil {
		c := cron.New()
		c.Schedule(s.schedule, cron.FuncJob(func() { s.offer(triggerCron) }))
		c.Start()
		defer func() { <-c.Stop().Done() }()
		plog.Info("Prune scheduled", "cron", s.cronSpec, "next", s.schedule.Next(time.Now()).Format(time.DateTime))
	}

	if watcher != nil {
		plog.Info("Watching for new snapshots", "directory", s.absSnapshotDir, "debounce", s.debounce)
		s.watchLoop(ctx, watcher)
	} else {
		<-ctx.Done()
	}

	<-done
	plog.Info("Scheduler stopped")
	return nil
}

// runLoop executes runs one at a time until ctx is cancelled.
func (s *Scheduler) runLoop(ctx context.Context) {
	if s.runOnStart {
		s.runOnce(ctx, triggerStart)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-s.triggers:
			s.runOnce(ctx, reason)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	plog.Info("Starting scheduled prune", "trigger", reason)
	if err := s.run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		plog.Error("Scheduled prune failed", "trigger", reason, "error", err)
		return
	}
	if s.schedule != nil {
		plog.Info("Next scheduled prune", "at", s.schedule.Next(time.Now()).Format(time.DateTime))
	}
}

// offer hands a trigger to the run loop. It reports false if a run is active.
func (s *Scheduler) offer(reason string) bool {
	select {
	case s.triggers <- reason:
		return true
	default:
		plog.Info("Prune already running, dropping trigger", "trigger", reason)
		return false
	}
}

// newWatcher watches the snapshot directory. If it does not exist yet, the base
// directory is watched until it is created.
func (s *Scheduler) newWatcher() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	target := s.absSnapshotDir
	if _, err := os.Stat(target); os.IsNotExist(err) {
		plog.Debug("Snapshot directory does not exist yet, watching base", "path", s.absBasePath)
		target = s.absBasePath
	}
	if err := w.Add(target); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", target, err)
	}
	return w, nil
}

func (s *Scheduler) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	errs := w.Errors
	var debounceC <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				plog.Warn("Snapshot watcher closed")
				<-ctx.Done()
				return
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if event.Name == s.absSnapshotDir {
				if err := w.Add(s.absSnapshotDir); err != nil {
					plog.Warn("Failed to watch snapshot directory", "path", s.absSnapshotDir, "error", err)
				}
				continue
			}
			if !s.isSnapshotEvent(event.Name) {
				continue
			}
			plog.Debug("New snapshot detected", "path", event.Name)
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			debounceC = timer.C

		case <-debounceC:
			debounceC = nil
			s.offer(triggerWatch)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			plog.Warn("Snapshot watcher error", "error", err)
		}
	}
}

// isSnapshotEvent reports whether path is a snapshot directory directly below the snapshot dir.
func (s *Scheduler) isSnapshotEvent(path string) bool {
	if filepath.Dir(path) != s.absSnapshotDir {
		return false
	}
	if _, err := snapshot.ParseID(filepath.Base(path)); err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
