package pathretention

import "github.com/paulschiretz/pgl-retention/pkg/retention"

type Plan struct {
	Policy retention.Policy

	// Global Flags
	DryRun   bool
	FailFast bool
	Metrics  bool
}
