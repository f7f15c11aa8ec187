package journal

type Plan struct {
	Enabled bool
	Format  Format
	// Keep is the number of journals retained after a write. Zero keeps all.
	Keep int

	// Global Flags
	DryRun bool
}
