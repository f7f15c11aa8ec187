package cmd

import (
	"context"

	"github.com/paulschiretz/pgl-retention/pkg/buildinfo"
	"github.com/paulschiretz/pgl-retention/pkg/flagparse"
	"github.com/paulschiretz/pgl-retention/pkg/planner"
	"github.com/paulschiretz/pgl-retention/pkg/plog"
	"github.com/paulschiretz/pgl-retention/pkg/scheduler"
)

// RunServe handles the logic for the serve command. It blocks until ctx is cancelled.
func RunServe(ctx context.Context, flagMap map[string]any) error {
	runConfig, absBasePath, err := loadRunConfig(flagparse.Serve, flagMap)
	if err != nil {
		return err
	}

	servePlan, err := planner.GenerateServePlan(runConfig)
	if err != nil {
		return err
	}

	runner := newRunner(runConfig)
	s := scheduler.New(servePlan, absBasePath, func(ctx context.Context) error {
		return runner.ExecutePrune(ctx, absBasePath, servePlan.Prune)
	})

	plog.Info(buildinfo.Name+" serving", "base", absBasePath, "cron", servePlan.Cron, "watch", servePlan.Watch)
	return s.Serve(ctx)
}
