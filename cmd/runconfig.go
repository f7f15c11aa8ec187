package cmd

import (
	"fmt"
	"os"

	"github.com/paulschiretz/pgl-retention/pkg/config"
	"github.com/paulschiretz/pgl-retention/pkg/flagparse"
	"github.com/paulschiretz/pgl-retention/pkg/plog"
	"github.com/paulschiretz/pgl-retention/pkg/util"
)

// loadRunConfig resolves the -base flag, loads the repository config, merges the
// flags over it, validates the result and applies the log settings.
func loadRunConfig(command flagparse.Command, flagMap map[string]any) (config.Config, string, error) {
	base, ok := flagMap["base"].(string)
	if !ok || base == "" {
		return config.Config{}, "", fmt.Errorf("the -base flag is required to run %s", command)
	}

	absBasePath, err := util.ExpandedDenormalizedAbsPath(base)
	if err != nil {
		return config.Config{}, "", fmt.Errorf("base path invalid: %w", err)
	}

	// NOTE: Base needs to exist, snapshots are never created by this tool.
	if _, err := os.Stat(absBasePath); os.IsNotExist(err) {
		return config.Config{}, "", fmt.Errorf("base path '%s' does not exist", absBasePath)
	}

	loadedConfig, err := config.Load(absBasePath)
	if err != nil {
		return config.Config{}, "", fmt.Errorf("failed to load configuration from base: %w", err)
	}

	runConfig := config.MergeConfigWithFlags(command, loadedConfig, flagMap)
	runConfig.Base = absBasePath

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(); err != nil {
		return config.Config{}, "", err
	}

	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))
	plog.SetQuiet(runConfig.Runtime.Quiet)
	runConfig.LogSummary()
	return runConfig, absBasePath, nil
}

func boolFlag(flagMap map[string]any, name string) bool {
	v, ok := flagMap[name].(bool)
	return ok && v
}
