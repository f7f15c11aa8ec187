package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/paulschiretz/pgl-retention/pkg/buildinfo"
	"github.com/paulschiretz/pgl-retention/pkg/flagparse"
	"github.com/paulschiretz/pgl-retention/pkg/plog"
	"github.com/paulschiretz/pgl-retention/pkg/util"
)

// ConfigFileName is the name of the JSON configuration file.
const ConfigFileName = "pgl-retention.config.json"

// YAMLConfigFileName is the name of the YAML configuration file. The JSON file wins if both exist.
const YAMLConfigFileName = "pgl-retention.config.yaml"

type RepositoryPathsConfig struct {
	Snapshots string `json:"snapshots" yaml:"snapshots"`
	Journal   string `json:"journal" yaml:"journal"`
}

type PruneHooksConfig struct {
	// Note: omitempty is intentionally not used so that the hook fields
	// appear in the generated config file for better discoverability.
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PrePrune  []string `json:"prePrune" yaml:"prePrune"`
	PostPrune []string `json:"postPrune" yaml:"postPrune"`
}

type EnginePerformanceConfig struct {
	DeleteWorkers int `json:"deleteWorkers" yaml:"deleteWorkers"`
	ScanWorkers   int `json:"scanWorkers" yaml:"scanWorkers"`
}

type EngineConfig struct {
	Metrics         bool                    `json:"metrics" yaml:"metrics"`
	MetricsTextfile string                  `json:"metricsTextfile" yaml:"metricsTextfile"`
	FailFast        bool                    `json:"failFast" yaml:"failFast"`
	Performance     EnginePerformanceConfig `json:"performance" yaml:"performance"`
}

type RemoveOlderThanConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Value   int    `json:"value" yaml:"value"`
	Unit    string `json:"unit" yaml:"unit"`
}

type SmartRemoveConfig struct {
	Enabled               bool `json:"enabled" yaml:"enabled"`
	KeepAllDays           int  `json:"keepAllDays" yaml:"keepAllDays"`
	KeepOnePerDayDays     int  `json:"keepOnePerDayDays" yaml:"keepOnePerDayDays"`
	KeepOnePerWeekWeeks   int  `json:"keepOnePerWeekWeeks" yaml:"keepOnePerWeekWeeks"`
	KeepOnePerMonthMonths int  `json:"keepOnePerMonthMonths" yaml:"keepOnePerMonthMonths"`
	KeepOnePerYear        bool `json:"keepOnePerYear" yaml:"keepOnePerYear"`
}

type MinFreeSpaceConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Value   int    `json:"value" yaml:"value"`
	Unit    string `json:"unit" yaml:"unit"`
}

type MinFreeInodesConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Percent int  `json:"percent" yaml:"percent"`
}

type RetentionConfig struct {
	KeepNamed       bool                  `json:"keepNamed" yaml:"keepNamed"`
	RemoveOlderThan RemoveOlderThanConfig `json:"removeOlderThan" yaml:"removeOlderThan"`
	SmartRemove     SmartRemoveConfig     `json:"smartRemove" yaml:"smartRemove"`
	MinFreeSpace    MinFreeSpaceConfig    `json:"minFreeSpace" yaml:"minFreeSpace"`
	MinFreeInodes   MinFreeInodesConfig   `json:"minFreeInodes" yaml:"minFreeInodes"`
}

type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Format  string `json:"format" yaml:"format"`
	Keep    int    `json:"keep" yaml:"keep"`
}

type ScheduleConfig struct {
	Cron            string `json:"cron" yaml:"cron"`
	Watch           bool   `json:"watch" yaml:"watch"`
	DebounceSeconds int    `json:"debounceSeconds" yaml:"debounceSeconds"`
	RunOnStart      bool   `json:"runOnStart" yaml:"runOnStart"`
}

type RuntimeConfig struct {
	DryRun bool
	Quiet  bool
}

type Config struct {
	Version   string                `json:"version" yaml:"version"`
	Base      string                `json:"-" yaml:"-"` // Never added to config file
	Runtime   RuntimeConfig         `json:"-" yaml:"-"` // Never added to config file
	LogLevel  string                `json:"logLevel" yaml:"logLevel"`
	Paths     RepositoryPathsConfig `json:"paths" yaml:"paths"`
	Engine    EngineConfig          `json:"engine" yaml:"engine"`
	Retention RetentionConfig       `json:"retention" yaml:"retention"`
	Journal   JournalConfig         `json:"journal" yaml:"journal"`
	Schedule  ScheduleConfig        `json:"schedule" yaml:"schedule"`
	Hooks     PruneHooksConfig      `json:"hooks" yaml:"hooks"`
}

// NewDefault creates and returns a Config struct with sensible default values.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		Base:     "",     // Intentionally empty to force user configuration.
		LogLevel: "info", // Default log level.
		Paths: RepositoryPathsConfig{
			Snapshots: "snapshots",
			Journal:   ".pgl-retention.journal",
		},
		Engine: EngineConfig{
			FailFast: false,
			Metrics:  true,
			Performance: EnginePerformanceConfig{
				DeleteWorkers: 4, // Deleting whole snapshot trees is I/O bound; more workers thrash HDDs.
				ScanWorkers:   8,
			},
		},
		Retention: RetentionConfig{
			KeepNamed: true,
			RemoveOlderThan: RemoveOlderThanConfig{
				Enabled: true,
				Value:   10,
				Unit:    "year",
			},
			SmartRemove: SmartRemoveConfig{
				Enabled:               false, // Opt-in, thinning is irreversible.
				KeepAllDays:           2,
				KeepOnePerDayDays:     7,
				KeepOnePerWeekWeeks:   4,
				KeepOnePerMonthMonths: 24,
				KeepOnePerYear:        true,
			},
			MinFreeSpace: MinFreeSpaceConfig{
				Enabled: true,
				Value:   1,
				Unit:    "GiB",
			},
			MinFreeInodes: MinFreeInodesConfig{
				Enabled: true,
				Percent: 2,
			},
		},
		Journal: JournalConfig{
			Enabled: true,
			Format:  "zst",
			Keep:    30,
		},
		Schedule: ScheduleConfig{
			Cron:            "@daily",
			Watch:           false,
			DebounceSeconds: 30,
		},
		Hooks: PruneHooksConfig{
			PrePrune:  []string{},
			PostPrune: []string{},
		},
	}
}

// Load reads the configuration from the base directory, JSON first, then YAML.
// If neither file exists it returns the default config without an error.
func Load(base string) (Config, error) {
	absBasePath, err := filepath.Abs(base)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for load directory %s: %w", base, err)
	}

	configPath, data, err := readConfigFile(absBasePath)
	if err != nil {
		return Config{}, err
	}

	// Start with default values, then overwrite with the file's content so
	// missing fields keep their defaults.
	config := NewDefault()
	if data != nil {
		plog.Info("Loading configuration", "path", configPath)
		if err := decode(configPath, data, &config); err != nil {
			return Config{}, fmt.Errorf("error parsing config file %s: %w", configPath, err)
		}
	}

	config.Base = absBasePath
	// NOTE: if config.Version differs from the app version a migration step goes here.
	config.Version = buildinfo.Version
	return config, nil
}

// readConfigFile returns nil data when no config file exists.
func readConfigFile(absBasePath string) (string, []byte, error) {
	for _, name := range []string{ConfigFileName, YAMLConfigFileName} {
		configPath := filepath.Join(absBasePath, name)
		data, err := os.ReadFile(configPath)
		if err == nil {
			return configPath, data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("error opening config file %s: %w", configPath, err)
		}
	}
	return "", nil, nil
}

func decode(configPath string, data []byte, config *Config) error {
	if filepath.Ext(configPath) == ".yaml" {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(config)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(config)
}

// Generate creates or overwrites the config file in the base directory.
// asYAML selects pgl-retention.config.yaml over the JSON file.
func Generate(configToGenerate Config, asYAML bool) error {
	var data []byte
	var err error
	var configPath string
	if asYAML {
		configPath = filepath.Join(configToGenerate.Base, YAMLConfigFileName)
		data, err = yaml.Marshal(configToGenerate)
	} else {
		configPath = filepath.Join(configToGenerate.Base, ConfigFileName)
		data, err = json.MarshalIndent(configToGenerate, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", configPath)
	return nil
}

// Validate checks the configuration for logical errors and inconsistencies.
// Enum values (units, formats) are parsed by the planner.
func (c *Config) Validate() error {
	if c.Base == "" {
		return fmt.Errorf("base path cannot be empty")
	}

	var err error
	c.Base, err = util.ExpandPath(c.Base)
	if err != nil {
		return fmt.Errorf("could not expand base path: %w", err)
	}
	c.Base = filepath.Clean(c.Base)

	if c.Paths.Snapshots == "" {
		return fmt.Errorf("paths.snapshots cannot be empty")
	}
	if c.Paths.Journal == "" {
		return fmt.Errorf("paths.journal cannot be empty")
	}
	if c.Paths.Snapshots == c.Paths.Journal {
		return fmt.Errorf("paths.snapshots and paths.journal cannot be the same")
	}
	// Subdirectories must be direct children of the base.
	if strings.ContainsAny(c.Paths.Snapshots, `\/`) {
		return fmt.Errorf("paths.snapshots cannot contain path separators ('/' or '\\')")
	}
	if strings.ContainsAny(c.Paths.Journal, `\/`) {
		return fmt.Errorf("paths.journal cannot contain path separators ('/' or '\\')")
	}

	if c.Engine.Performance.DeleteWorkers < 1 {
		return fmt.Errorf("engine.performance.deleteWorkers must be at least 1")
	}
	if c.Engine.Performance.ScanWorkers < 1 {
		return fmt.Errorf("engine.performance.scanWorkers must be at least 1")
	}

	if c.Journal.Keep < 0 {
		return fmt.Errorf("journal.keep cannot be negative")
	}
	if c.Schedule.DebounceSeconds < 0 {
		return fmt.Errorf("schedule.debounceSeconds cannot be negative")
	}
	return nil
}

// LogSummary prints a user-friendly summary of the configuration.
func (c *Config) LogSummary() {
	logArgs := []interface{}{
		"log_level", c.LogLevel,
		"base", c.Base,
		"snapshots_subdir", c.Paths.Snapshots,
		"dry_run", c.Runtime.DryRun,
		"fail_fast", c.Engine.FailFast,
		"metrics", c.Engine.Metrics,
		"delete_workers", c.Engine.Performance.DeleteWorkers,
		"scan_workers", c.Engine.Performance.ScanWorkers,
		"keep_named", c.Retention.KeepNamed,
	}

	r := c.Retention
	if r.RemoveOlderThan.Enabled {
		logArgs = append(logArgs, "remove_older_than", fmt.Sprintf("%d %s", r.RemoveOlderThan.Value, r.RemoveOlderThan.Unit))
	}
	if r.SmartRemove.Enabled {
		smartSummary := fmt.Sprintf("enabled (all:%dd d:%d w:%d m:%d y:%t)",
			r.SmartRemove.KeepAllDays, r.SmartRemove.KeepOnePerDayDays, r.SmartRemove.KeepOnePerWeekWeeks,
			r.SmartRemove.KeepOnePerMonthMonths, r.SmartRemove.KeepOnePerYear)
		logArgs = append(logArgs, "smart_remove", smartSummary)
	}
	if r.MinFreeSpace.Enabled {
		logArgs = append(logArgs, "min_free_space", fmt.Sprintf("%d %s", r.MinFreeSpace.Value, r.MinFreeSpace.Unit))
	}
	if r.MinFreeInodes.Enabled {
		logArgs = append(logArgs, "min_free_inodes", fmt.Sprintf("%d%%", r.MinFreeInodes.Percent))
	}
	if c.Journal.Enabled {
		logArgs = append(logArgs, "journal", fmt.Sprintf("enabled (f:%s k:%d)", c.Journal.Format, c.Journal.Keep))
	}
	if c.Engine.MetricsTextfile != "" {
		logArgs = append(logArgs, "metrics_textfile", c.Engine.MetricsTextfile)
	}
	if len(c.Hooks.PrePrune) > 0 {
		logArgs = append(logArgs, "pre_prune_hooks", strings.Join(c.Hooks.PrePrune, "; "))
	}
	if len(c.Hooks.PostPrune) > 0 {
		logArgs = append(logArgs, "post_prune_hooks", strings.Join(c.Hooks.PostPrune, "; "))
	}
	plog.Info("Configuration loaded", logArgs...)
}

// MergeConfigWithFlags overlays the configuration values from flags on top of a base
// configuration. It iterates over the setFlags map, which contains only the flags
// explicitly provided by the user on the command line.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "base":
			merged.Base = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "dry-run":
			merged.Runtime.DryRun = value.(bool)
		case "quiet":
			merged.Runtime.Quiet = value.(bool)
		case "fail-fast":
			merged.Engine.FailFast = value.(bool)
		case "metrics":
			merged.Engine.Metrics = value.(bool)
		case "metrics-textfile":
			merged.Engine.MetricsTextfile = value.(string)
		case "delete-workers":
			merged.Engine.Performance.DeleteWorkers = value.(int)
		case "scan-workers":
			merged.Engine.Performance.ScanWorkers = value.(int)
		case "keep-named":
			merged.Retention.KeepNamed = value.(bool)
		case "remove-older-than":
			merged.Retention.RemoveOlderThan.Enabled = value.(bool)
		case "remove-older-than-value":
			merged.Retention.RemoveOlderThan.Value = value.(int)
		case "remove-older-than-unit":
			merged.Retention.RemoveOlderThan.Unit = value.(string)
		case "smart-remove":
			merged.Retention.SmartRemove.Enabled = value.(bool)
		case "smart-keep-all-days":
			merged.Retention.SmartRemove.KeepAllDays = value.(int)
		case "smart-keep-one-per-day":
			merged.Retention.SmartRemove.KeepOnePerDayDays = value.(int)
		case "smart-keep-one-per-week":
			merged.Retention.SmartRemove.KeepOnePerWeekWeeks = value.(int)
		case "smart-keep-one-per-month":
			merged.Retention.SmartRemove.KeepOnePerMonthMonths = value.(int)
		case "smart-keep-one-per-year":
			merged.Retention.SmartRemove.KeepOnePerYear = value.(bool)
		case "min-free-space":
			merged.Retention.MinFreeSpace.Enabled = value.(bool)
		case "min-free-space-value":
			merged.Retention.MinFreeSpace.Value = value.(int)
		case "min-free-space-unit":
			merged.Retention.MinFreeSpace.Unit = value.(string)
		case "min-free-inodes":
			merged.Retention.MinFreeInodes.Enabled = value.(bool)
		case "min-free-inodes-percent":
			merged.Retention.MinFreeInodes.Percent = value.(int)
		case "journal":
			merged.Journal.Enabled = value.(bool)
		case "journal-format":
			merged.Journal.Format = value.(string)
		case "journal-keep":
			merged.Journal.Keep = value.(int)
		case "pre-prune-hooks":
			merged.Hooks.PrePrune = value.([]string)
		case "post-prune-hooks":
			merged.Hooks.PostPrune = value.([]string)
		case "schedule-cron":
			merged.Schedule.Cron = value.(string)
		case "watch":
			merged.Schedule.Watch = value.(bool)
		case "debounce-seconds":
			merged.Schedule.DebounceSeconds = value.(int)
		case "run-on-start":
			merged.Schedule.RunOnStart = value.(bool)
		case "sort", "limit", "force", "default", "yaml":
			// Command options, not persisted in the config.
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name, "command", command)
		}
	}
	return merged
}
