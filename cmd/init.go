package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-retention/pkg/buildinfo"
	"github.com/paulschiretz/pgl-retention/pkg/config"
	"github.com/paulschiretz/pgl-retention/pkg/flagparse"
	"github.com/paulschiretz/pgl-retention/pkg/lockfile"
	"github.com/paulschiretz/pgl-retention/pkg/planner"
	"github.com/paulschiretz/pgl-retention/pkg/plog"
	"github.com/paulschiretz/pgl-retention/pkg/preflight"
	"github.com/paulschiretz/pgl-retention/pkg/util"
)

// RunInit handles the logic for the 'init' command.
func RunInit(ctx context.Context, flagMap map[string]any) error {
	// For init, the base flag is mandatory to know where to look/write.
	base, ok := flagMap["base"].(string)
	if !ok || base == "" {
		return fmt.Errorf("the -base flag is required for the init operation")
	}

	absBasePath, err := util.ExpandedDenormalizedAbsPath(base)
	if err != nil {
		return fmt.Errorf("base path invalid: %w", err)
	}

	asYAML := boolFlag(flagMap, "yaml")

	var baseConfig config.Config
	if boolFlag(flagMap, "default") {
		if !boolFlag(flagMap, "force") {
			for _, name := range []string{config.ConfigFileName, config.YAMLConfigFileName} {
				absConfigFilePath := util.DenormalizePath(filepath.Join(absBasePath, name))
				if _, err := os.Stat(absConfigFilePath); err != nil {
					continue
				}
				fmt.Printf("WARNING: Configuration file already exists at %s.\n", absConfigFilePath)
				fmt.Printf("Using -default will overwrite it with default values. All custom settings will be lost.\n")
				if !PromptForConfirmation("Are you sure you want to continue?", false) {
					plog.Info(buildinfo.Name + " init -default operation canceled.")
					return nil
				}
				break
			}
		}
		baseConfig = config.NewDefault()
	} else {
		// Try to load existing config to preserve settings.
		// Note: config.Load returns NewDefault() if the file simply doesn't exist.
		baseConfig, err = config.Load(absBasePath)
		if err != nil {
			plog.Warn("Could not load existing configuration, starting with defaults.", "reason", err)
			baseConfig = config.NewDefault()
		}
	}

	runConfig := config.MergeConfigWithFlags(flagparse.Init, baseConfig, flagMap)
	runConfig.Base = absBasePath

	// CRITICAL: Validate the config before it is written
	if err := runConfig.Validate(); err != nil {
		return err
	}
	// The planner parses every enum, so a config it rejects is never written.
	if _, err := planner.GeneratePrunePlan(runConfig); err != nil {
		return err
	}
	if runConfig.Schedule.Cron != "" || runConfig.Schedule.Watch {
		if _, err := planner.GenerateServePlan(runConfig); err != nil {
			return err
		}
	}

	startTime := time.Now()

	validator := preflight.NewValidator()
	pfPlan := &preflight.Plan{
		BaseAccessible: true,
		BaseWritable:   true,
		DryRun:         runConfig.Runtime.DryRun,
	}
	if err := validator.Run(ctx, absBasePath, pfPlan); err != nil {
		return fmt.Errorf("initialization preflight failed: %w", err)
	}

	if runConfig.Runtime.DryRun {
		plog.Info("[DRY RUN] Initialization complete. No changes made.")
		return nil
	}

	// Ensure exclusive access to the repository.
	appID := fmt.Sprintf("pgl-retention-init:%s", absBasePath)
	lock, err := lockfile.Acquire(ctx, absBasePath, appID)
	if err != nil {
		return fmt.Errorf("failed to acquire lock on base directory: %w", err)
	}
	defer lock.Release()

	if err := config.Generate(runConfig, asYAML); err != nil {
		return fmt.Errorf("failed to generate config file: %w", err)
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	plog.Info(buildinfo.Name+" repository successfully initialized.", "duration", duration)
	return nil
}

// PromptForConfirmation prompts the user for a yes/no response.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
