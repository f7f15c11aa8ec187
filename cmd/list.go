package cmd

import (
	"context"
	"time"

	"github.com/paulschiretz/pgl-retention/pkg/buildinfo"
	"github.com/paulschiretz/pgl-retention/pkg/flagparse"
	"github.com/paulschiretz/pgl-retention/pkg/planner"
	"github.com/paulschiretz/pgl-retention/pkg/plog"
)

// RunList handles the logic for the list command.
func RunList(ctx context.Context, flagMap map[string]any) error {
	runConfig, absBasePath, err := loadRunConfig(flagparse.List, flagMap)
	if err != nil {
		return err
	}

	sort, _ := flagMap["sort"].(string)
	if sort == "" {
		sort = planner.Desc.String()
	}

	// Get the Plan
	listPlan, err := planner.GenerateListPlan(runConfig, sort)
	if err != nil {
		return err
	}

	// Execute the plan
	startTime := time.Now()
	err = newRunner(runConfig).ExecuteList(ctx, absBasePath, listPlan)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err
	}
	plog.Info(buildinfo.Name+" list finished successfully.", "duration", duration)
	return nil
}
