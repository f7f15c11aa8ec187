package cmd

import (
	"context"

	"github.com/paulschiretz/pgl-retention/pkg/flagparse"
	"github.com/paulschiretz/pgl-retention/pkg/planner"
)

// RunHistory handles the logic for the history command.
func RunHistory(ctx context.Context, flagMap map[string]any) error {
	runConfig, absBasePath, err := loadRunConfig(flagparse.History, flagMap)
	if err != nil {
		return err
	}

	limit := 1
	if v, ok := flagMap["limit"].(int); ok {
		limit = v
	}

	historyPlan, err := planner.GenerateHistoryPlan(runConfig, limit)
	if err != nil {
		return err
	}
	return newRunner(runConfig).ExecuteHistory(ctx, absBasePath, historyPlan)
}
