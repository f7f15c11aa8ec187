package hook

type Plan struct {
	Enabled bool

	PrePruneCommands  []string
	PostPruneCommands []string

	// Global Flags
	DryRun   bool
	FailFast bool
}
