package cmd

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/paulschiretz/pgl-retention/pkg/buildinfo"
	"github.com/paulschiretz/pgl-retention/pkg/config"
	"github.com/paulschiretz/pgl-retention/pkg/engine"
	"github.com/paulschiretz/pgl-retention/pkg/flagparse"
	"github.com/paulschiretz/pgl-retention/pkg/hook"
	"github.com/paulschiretz/pgl-retention/pkg/pathretention"
	"github.com/paulschiretz/pgl-retention/pkg/planner"
	"github.com/paulschiretz/pgl-retention/pkg/plog"
	"github.com/paulschiretz/pgl-retention/pkg/preflight"
)

// RunPrune handles the logic for the prune command.
func RunPrune(ctx context.Context, flagMap map[string]any) error {
	runConfig, absBasePath, err := loadRunConfig(flagparse.Prune, flagMap)
	if err != nil {
		return err
	}

	// Get the Plan
	prunePlan, err := planner.GeneratePrunePlan(runConfig)
	if err != nil {
		return err
	}

	if !runConfig.Runtime.DryRun && !boolFlag(flagMap, "force") {
		fmt.Printf("This operation will permanently delete snapshots based on the configured retention policy:\n")
		printPolicy(runConfig)
		if !PromptForConfirmation("Are you sure you want to continue?", false) {
			plog.Info(buildinfo.Name + " prune operation canceled.")
			return nil
		}
	}

	runner := newRunner(runConfig)

	// Execute the plan
	startTime := time.Now()
	err = runner.ExecutePrune(ctx, absBasePath, prunePlan)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err
	}
	plog.Info(buildinfo.Name+" prune finished successfully.", "duration", duration)
	return nil
}

// newRunner creates the runner and feeds it with our leaf workers.
func newRunner(runConfig config.Config) *engine.Runner {
	return engine.NewRunner(
		preflight.NewValidator(),
		pathretention.NewPathRetainer(
			runConfig.Engine.Performance.DeleteWorkers,
		),
		hook.NewHookExecutor(exec.CommandContext),
	)
}

func printPolicy(c config.Config) {
	r := c.Retention
	fmt.Printf("  Keep named:        %t\n", r.KeepNamed)
	if r.RemoveOlderThan.Enabled {
		fmt.Printf("  Remove older than: %d %s\n", r.RemoveOlderThan.Value, r.RemoveOlderThan.Unit)
	}
	if r.SmartRemove.Enabled {
		s := r.SmartRemove
		fmt.Printf("  Smart remove:      all %dd, daily %dd, weekly %dw, monthly %dm, yearly %t\n",
			s.KeepAllDays, s.KeepOnePerDayDays, s.KeepOnePerWeekWeeks, s.KeepOnePerMonthMonths, s.KeepOnePerYear)
	}
	if r.MinFreeSpace.Enabled {
		fmt.Printf("  Min free space:    %d %s\n", r.MinFreeSpace.Value, r.MinFreeSpace.Unit)
	}
	if r.MinFreeInodes.Enabled {
		fmt.Printf("  Min free inodes:   %d%%\n", r.MinFreeInodes.Percent)
	}
}
