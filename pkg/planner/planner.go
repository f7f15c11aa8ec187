package planner

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/paulschiretz/pgl-retention/pkg/config"
	"github.com/paulschiretz/pgl-retention/pkg/hook"
	"github.com/paulschiretz/pgl-retention/pkg/journal"
	"github.com/paulschiretz/pgl-retention/pkg/pathretention"
	"github.com/paulschiretz/pgl-retention/pkg/preflight"
	"github.com/paulschiretz/pgl-retention/pkg/retention"
)

type PathKeys struct {
	RelSnapshotPathKey string
	RelJournalPathKey  string
}

type PrunePlan struct {
	DryRun   bool
	FailFast bool
	Metrics  bool

	// MetricsTextfile is the Prometheus textfile written after the run. Empty disables it.
	MetricsTextfile string
	ScanWorkers     int

	Paths PathKeys

	Preflight *preflight.Plan
	Retention *pathretention.Plan
	Hooks     *hook.Plan
	Journal   *journal.Plan
}

type ListPlan struct {
	Sort        SortOrder
	ScanWorkers int

	Paths PathKeys

	// Retention is only evaluated, never executed.
	Retention *pathretention.Plan
}

type HistoryPlan struct {
	Limit int
	Paths PathKeys
}

type ServePlan struct {
	Prune *PrunePlan

	Schedule   cron.Schedule
	Cron       string
	Watch      bool
	Debounce   time.Duration
	RunOnStart bool
}

// GeneratePolicy parses the retention section of cfg.
func GeneratePolicy(cfg config.Config) (retention.Policy, error) {
	r := cfg.Retention

	ageUnit, err := retention.ParseUnit(r.RemoveOlderThan.Unit)
	if err != nil {
		return retention.Policy{}, err
	}
	sizeUnit, err := retention.ParseSizeUnit(r.MinFreeSpace.Unit)
	if err != nil {
		return retention.Policy{}, err
	}

	p := retention.Policy{
		KeepNamed: r.KeepNamed,
		RemoveOlderThan: retention.RemoveOlderThan{
			Enabled: r.RemoveOlderThan.Enabled,
			Value:   r.RemoveOlderThan.Value,
			Unit:    ageUnit,
		},
		SmartRemove: retention.SmartRemove{
			Enabled:               r.SmartRemove.Enabled,
			KeepAllDays:           r.SmartRemove.KeepAllDays,
			KeepOnePerDayDays:     r.SmartRemove.KeepOnePerDayDays,
			KeepOnePerWeekWeeks:   r.SmartRemove.KeepOnePerWeekWeeks,
			KeepOnePerMonthMonths: r.SmartRemove.KeepOnePerMonthMonths,
			KeepOnePerYear:        r.SmartRemove.KeepOnePerYear,
		},
		MinFreeSpace: retention.MinFreeSpace{
			Enabled: r.MinFreeSpace.Enabled,
			Value:   r.MinFreeSpace.Value,
			Unit:    sizeUnit,
		},
		MinFreeInodes: retention.MinFreeInodes{
			Enabled: r.MinFreeInodes.Enabled,
			Percent: r.MinFreeInodes.Percent,
		},
	}
	if err := p.Validate(); err != nil {
		return retention.Policy{}, fmt.Errorf("invalid retention policy: %w", err)
	}
	return p, nil
}

func generatePaths(cfg config.Config) PathKeys {
	return PathKeys{
		RelSnapshotPathKey: cfg.Paths.Snapshots,
		RelJournalPathKey:  cfg.Paths.Journal,
	}
}

func GeneratePrunePlan(cfg config.Config) (*PrunePlan, error) {
	// Global Flags
	dryRun := cfg.Runtime.DryRun
	failFast := cfg.Engine.FailFast
	metrics := cfg.Engine.Metrics

	policy, err := GeneratePolicy(cfg)
	if err != nil {
		return nil, err
	}

	journalFormat, err := journal.ParseFormat(cfg.Journal.Format)
	if err != nil {
		return nil, err
	}

	return &PrunePlan{
		DryRun:   dryRun,
		FailFast: failFast,
		Metrics:  metrics,

		MetricsTextfile: cfg.Engine.MetricsTextfile,
		ScanWorkers:     cfg.Engine.Performance.ScanWorkers,

		Paths: generatePaths(cfg),

		Preflight: &preflight.Plan{
			BaseAccessible:        true,
			BaseWritable:          true,
			SnapshotDirAccessible: true,
			SnapshotSubDir:        cfg.Paths.Snapshots,

			// Global Flags
			DryRun:   dryRun,
			FailFast: failFast,
		},
		Retention: &pathretention.Plan{
			Policy: policy,

			// Global Flags
			DryRun:   dryRun,
			FailFast: failFast,
			Metrics:  metrics,
		},
		Hooks: &hook.Plan{
			Enabled:           len(cfg.Hooks.PrePrune) > 0 || len(cfg.Hooks.PostPrune) > 0,
			PrePruneCommands:  cfg.Hooks.PrePrune,
			PostPruneCommands: cfg.Hooks.PostPrune,

			// Global Flags
			DryRun:   dryRun,
			FailFast: failFast,
		},
		Journal: &journal.Plan{
			Enabled: cfg.Journal.Enabled,
			Format:  journalFormat,
			Keep:    cfg.Journal.Keep,

			// Global Flags
			DryRun: dryRun,
		},
	}, nil
}

func GenerateListPlan(cfg config.Config, sort string) (*ListPlan, error) {
	policy, err := GeneratePolicy(cfg)
	if err != nil {
		return nil, err
	}

	sortOrder, err := ParseSortOrder(sort)
	if err != nil {
		return nil, err
	}

	return &ListPlan{
		Sort:        sortOrder,
		ScanWorkers: cfg.Engine.Performance.ScanWorkers,
		Paths:       generatePaths(cfg),
		Retention: &pathretention.Plan{
			Policy: policy,
			DryRun: true,
		},
	}, nil
}

func GenerateHistoryPlan(cfg config.Config, limit int) (*HistoryPlan, error) {
	if limit < 1 {
		return nil, fmt.Errorf("history limit must be at least 1, got %d", limit)
	}
	return &HistoryPlan{
		Limit: limit,
		Paths: generatePaths(cfg),
	}, nil
}

func GenerateServePlan(cfg config.Config) (*ServePlan, error) {
	prunePlan, err := GeneratePrunePlan(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Schedule.Cron == "" && !cfg.Schedule.Watch {
		return nil, fmt.Errorf("serve needs schedule.cron or schedule.watch")
	}

	var schedule cron.Schedule
	if cfg.Schedule.Cron != "" {
		schedule, err = cron.ParseStandard(cfg.Schedule.Cron)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule.cron %q: %w", cfg.Schedule.Cron, err)
		}
	}

	return &ServePlan{
		Prune:      prunePlan,
		Schedule:   schedule,
		Cron:       cfg.Schedule.Cron,
		Watch:      cfg.Schedule.Watch,
		Debounce:   time.Duration(cfg.Schedule.DebounceSeconds) * time.Second,
		RunOnStart: cfg.Schedule.RunOnStart,
	}, nil
}
