package preflight

type Plan struct {
	BaseAccessible        bool
	BaseWritable          bool
	SnapshotDirAccessible bool

	// SnapshotSubDir is relative to the base directory.
	SnapshotSubDir string

	// Global Flags
	DryRun   bool
	FailFast bool
}
