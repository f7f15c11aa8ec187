package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-retention/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	LogLevel *string
	DryRun   *bool
	Metrics  *bool
	Quiet    *bool

	Base          *string
	FailFast      *bool
	DeleteWorkers *int
	ScanWorkers   *int

	KeepNamed *bool

	RemoveOlderThan      *bool
	RemoveOlderThanValue *int
	RemoveOlderThanUnit  *string

	SmartRemove           *bool
	SmartKeepAllDays      *int
	SmartKeepPerDayDays   *int
	SmartKeepPerWeekWeeks *int
	SmartKeepPerMonth     *int
	SmartKeepPerYear      *bool

	MinFreeSpace      *bool
	MinFreeSpaceValue *int
	MinFreeSpaceUnit  *string

	MinFreeInodes        *bool
	MinFreeInodesPercent *int

	PrePruneHooks  *string
	PostPruneHooks *string

	Journal       *bool
	JournalFormat *string
	JournalKeep   *int

	MetricsTextfile *string

	// List specific
	Sort *string

	// History specific
	Limit *int

	// Serve specific
	ScheduleCron    *string
	Watch           *bool
	DebounceSeconds *int
	RunOnStart      *bool

	// Init specific
	Force   *bool
	Default *bool
	YAML    *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	f.DryRun = fs.Bool("dry-run", false, "Show what would be done without making any changes.")
	f.Metrics = fs.Bool("metrics", false, "Enable retention metrics and the Prometheus textfile export.")
	f.Quiet = fs.Bool("quiet", false, "Only log warnings and errors.")
}

func registerBaseFlag(fs *flag.FlagSet, f *cliFlags) {
	f.Base = fs.String("base", "", "Base directory of the snapshot repository (containing config). (Required)")
}

// registerPolicyFlags registers the retention rules shared by every command that evaluates them.
func registerPolicyFlags(fs *flag.FlagSet, f *cliFlags) {
	f.KeepNamed = fs.Bool("keep-named", true, "Never remove snapshots that carry a name.")

	f.RemoveOlderThan = fs.Bool("remove-older-than", true, "Remove snapshots older than the configured age.")
	f.RemoveOlderThanValue = fs.Int("remove-older-than-value", 0, "Age value for -remove-older-than.")
	f.RemoveOlderThanUnit = fs.String("remove-older-than-unit", "", "Age unit for -remove-older-than: 'day', 'week' or 'year'.")

	f.SmartRemove = fs.Bool("smart-remove", false, "Thin out snapshots with the smart remove rules.")
	f.SmartKeepAllDays = fs.Int("smart-keep-all-days", 0, "Keep all snapshots of the last N days.")
	f.SmartKeepPerDayDays = fs.Int("smart-keep-one-per-day", 0, "Keep one snapshot per day for the last N days.")
	f.SmartKeepPerWeekWeeks = fs.Int("smart-keep-one-per-week", 0, "Keep one snapshot per week for the last N weeks.")
	f.SmartKeepPerMonth = fs.Int("smart-keep-one-per-month", 0, "Keep one snapshot per month for the last N months.")
	f.SmartKeepPerYear = fs.Bool("smart-keep-one-per-year", true, "Keep one snapshot per year for all years.")

	f.MinFreeSpace = fs.Bool("min-free-space", true, "Remove the oldest snapshots while free space is below the threshold.")
	f.MinFreeSpaceValue = fs.Int("min-free-space-value", 0, "Free space threshold value.")
	f.MinFreeSpaceUnit = fs.String("min-free-space-unit", "", "Free space threshold unit: 'MiB' or 'GiB'.")

	f.MinFreeInodes = fs.Bool("min-free-inodes", true, "Remove the oldest snapshots while free inodes are below the threshold.")
	f.MinFreeInodesPercent = fs.Int("min-free-inodes-percent", 0, "Free inodes threshold in percent (0-15).")
}

func registerPruneFlags(fs *flag.FlagSet, f *cliFlags) {
	registerBaseFlag(fs, f)
	f.FailFast = fs.Bool("fail-fast", false, "Stop the prune immediately on the first error.")
	f.DeleteWorkers = fs.Int("delete-workers", 0, "Number of worker goroutines for deleting outdated snapshots.")
	f.ScanWorkers = fs.Int("scan-workers", 0, "Number of concurrent metafile reads while scanning snapshots.")
	f.PrePruneHooks = fs.String("pre-prune-hooks", "", "Comma-separated list of commands to run before the prune.")
	f.PostPruneHooks = fs.String("post-prune-hooks", "", "Comma-separated list of commands to run after the prune.")
	f.Journal = fs.Bool("journal", true, "Write a compressed journal of every decision.")
	f.JournalFormat = fs.String("journal-format", "", "Journal compression format: 'zst' or 'gz'.")
	f.JournalKeep = fs.Int("journal-keep", 0, "Number of journals to keep.")
	f.MetricsTextfile = fs.String("metrics-textfile", "", "Path of the Prometheus textfile to write after each prune.")
	f.Force = fs.Bool("force", false, "Bypass confirmation prompts.")
	registerPolicyFlags(fs, f)
}

func registerListFlags(fs *flag.FlagSet, f *cliFlags) {
	registerBaseFlag(fs, f)
	f.ScanWorkers = fs.Int("scan-workers", 0, "Number of concurrent metafile reads while scanning snapshots.")
	f.Sort = fs.String("sort", "desc", "Sort order: 'desc' (newest first) or 'asc' (oldest first).")
	registerPolicyFlags(fs, f)
}

func registerInitFlags(fs *flag.FlagSet, f *cliFlags) {
	// Init supports all prune flags (to generate config) plus 'default' and 'yaml'.
	registerPruneFlags(fs, f)
	f.ScheduleCron = fs.String("schedule-cron", "", "Cron expression for serve mode (e.g. '@daily').")
	f.Default = fs.Bool("default", false, "Overwrite existing configuration with defaults.")
	f.YAML = fs.Bool("yaml", false, "Write the configuration as YAML instead of JSON.")
}

func registerServeFlags(fs *flag.FlagSet, f *cliFlags) {
	registerPruneFlags(fs, f)
	f.ScheduleCron = fs.String("schedule-cron", "", "Cron expression that triggers a prune (e.g. '@daily').")
	f.Watch = fs.Bool("watch", false, "Also prune whenever a new snapshot appears.")
	f.DebounceSeconds = fs.Int("debounce-seconds", 0, "Seconds to wait for further snapshot changes before pruning.")
	f.RunOnStart = fs.Bool("run-on-start", false, "Run one prune immediately after starting.")
}

func registerHistoryFlags(fs *flag.FlagSet, f *cliFlags) {
	registerBaseFlag(fs, f)
	f.Limit = fs.Int("limit", 1, "Number of journals to print, newest first.")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the command and flag map.
func Parse(args []string) (Command, map[string]interface{}, error) {
	// If no arguments provided, print help and exit.
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])

	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}

	if command == Version {
		return command, nil, nil
	}

	var register func(*flag.FlagSet, *cliFlags)
	var desc string
	switch command {
	case Prune:
		register, desc = registerPruneFlags, "Apply the retention policy and delete outdated snapshots."
	case List:
		register, desc = registerListFlags, "List snapshots with the action the retention policy would take."
	case Init:
		register, desc = registerInitFlags, "Initialize a configuration in a snapshot repository."
	case Serve:
		register, desc = registerServeFlags, "Prune repeatedly on a schedule and on new snapshots."
	case History:
		register, desc = registerHistoryFlags, "Print the decisions of previous prune runs."
	default:
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}

	f := &cliFlags{}
	fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
	registerGlobalFlags(fs, f)
	register(fs, f)

	fs.Usage = func() {
		printSubcommandUsage(command, desc, fs)
	}

	if err := fs.Parse(args[1:]); err != nil {
		return command, nil, err
	}
	flagMap, err := flagsToMap(fs, f)
	return command, flagMap, err
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) (map[string]interface{}, error) {
	// Only flags explicitly set by the user are returned so they can
	// selectively override the base configuration.
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)
	addIfUsed(flagMap, usedFlags, "metrics", f.Metrics)
	addIfUsed(flagMap, usedFlags, "quiet", f.Quiet)

	addIfUsed(flagMap, usedFlags, "base", f.Base)
	addIfUsed(flagMap, usedFlags, "fail-fast", f.FailFast)
	addIfUsed(flagMap, usedFlags, "delete-workers", f.DeleteWorkers)
	addIfUsed(flagMap, usedFlags, "scan-workers", f.ScanWorkers)

	addIfUsed(flagMap, usedFlags, "keep-named", f.KeepNamed)
	addIfUsed(flagMap, usedFlags, "remove-older-than", f.RemoveOlderThan)
	addIfUsed(flagMap, usedFlags, "remove-older-than-value", f.RemoveOlderThanValue)
	addIfUsed(flagMap, usedFlags, "remove-older-than-unit", f.RemoveOlderThanUnit)
	addIfUsed(flagMap, usedFlags, "smart-remove", f.SmartRemove)
	addIfUsed(flagMap, usedFlags, "smart-keep-all-days", f.SmartKeepAllDays)
	addIfUsed(flagMap, usedFlags, "smart-keep-one-per-day", f.SmartKeepPerDayDays)
	addIfUsed(flagMap, usedFlags, "smart-keep-one-per-week", f.SmartKeepPerWeekWeeks)
	addIfUsed(flagMap, usedFlags, "smart-keep-one-per-month", f.SmartKeepPerMonth)
	addIfUsed(flagMap, usedFlags, "smart-keep-one-per-year", f.SmartKeepPerYear)
	addIfUsed(flagMap, usedFlags, "min-free-space", f.MinFreeSpace)
	addIfUsed(flagMap, usedFlags, "min-free-space-value", f.MinFreeSpaceValue)
	addIfUsed(flagMap, usedFlags, "min-free-space-unit", f.MinFreeSpaceUnit)
	addIfUsed(flagMap, usedFlags, "min-free-inodes", f.MinFreeInodes)
	addIfUsed(flagMap, usedFlags, "min-free-inodes-percent", f.MinFreeInodesPercent)

	addIfUsed(flagMap, usedFlags, "journal", f.Journal)
	addIfUsed(flagMap, usedFlags, "journal-format", f.JournalFormat)
	addIfUsed(flagMap, usedFlags, "journal-keep", f.JournalKeep)
	addIfUsed(flagMap, usedFlags, "metrics-textfile", f.MetricsTextfile)

	addIfUsed(flagMap, usedFlags, "sort", f.Sort)
	addIfUsed(flagMap, usedFlags, "limit", f.Limit)

	addIfUsed(flagMap, usedFlags, "schedule-cron", f.ScheduleCron)
	addIfUsed(flagMap, usedFlags, "watch", f.Watch)
	addIfUsed(flagMap, usedFlags, "debounce-seconds", f.DebounceSeconds)
	addIfUsed(flagMap, usedFlags, "run-on-start", f.RunOnStart)

	addIfUsed(flagMap, usedFlags, "force", f.Force)
	addIfUsed(flagMap, usedFlags, "default", f.Default)
	addIfUsed(flagMap, usedFlags, "yaml", f.YAML)

	addParsedIfUsed(flagMap, usedFlags, "pre-prune-hooks", f.PrePruneHooks, ParseCmdList)
	addParsedIfUsed(flagMap, usedFlags, "post-prune-hooks", f.PostPruneHooks, ParseCmdList)

	return flagMap, nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Snapshot retention for timestamped backup repositories.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  prune       Apply the retention policy and delete outdated snapshots\n")
	fmt.Fprintf(fs.Output(), "  list        List snapshots and what the policy would do with them\n")
	fmt.Fprintf(fs.Output(), "  init        Initialize a new configuration\n")
	fmt.Fprintf(fs.Output(), "  serve       Prune on a schedule and on new snapshots\n")
	fmt.Fprintf(fs.Output(), "  history     Print the decisions of previous prune runs\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Snapshot retention for timestamped backup repositories.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}

// ParseCmdList parses a comma-separated list of shell-like commands.
// It preserves quotes and handles backslash escapes so they can be interpreted by the shell.
func ParseCmdList(s string) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune

	appendItem := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	var isEscaped bool
	for _, r := range s {
		if isEscaped {
			current.WriteRune(r)
			isEscaped = false
			continue
		}

		switch {
		case r == '\\':
			isEscaped = true
			// The backslash stays for the shell to interpret.
			current.WriteRune(r)
		case r == '\'' || r == '"':
			if quoteChar == 0 {
				quoteChar = r
			} else if quoteChar == r {
				quoteChar = 0
			}
			current.WriteRune(r)
		case r == ',' && quoteChar == 0:
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem()
	return list
}
