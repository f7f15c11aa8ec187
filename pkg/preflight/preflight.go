// Package preflight provides validation that runs before a prune begins. The
// checks are stateless and idempotent and do not change the repository, with
// the exception of the short-lived write probe.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulschiretz/pgl-retention/pkg/plog"
)

const writeProbeName = ".pgl-retention-writetest.tmp"

// Validator runs the checks enabled in a Plan.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Run validates the repository at absBasePath.
func (v *Validator) Run(ctx context.Context, absBasePath string, p *Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.BaseAccessible {
		if err := checkBaseAccessible(absBasePath); err != nil {
			return err
		}
	}

	if p.BaseWritable {
		if p.DryRun {
			plog.Debug("[DRY RUN] Skipping base writable check", "path", absBasePath)
		} else if err := checkBaseWritable(absBasePath); err != nil {
			return err
		}
	}

	if p.SnapshotDirAccessible {
		if err := checkSnapshotDirAccessible(filepath.Join(absBasePath, p.SnapshotSubDir)); err != nil {
			return err
		}
	}
	return nil
}

// checkBaseAccessible ensures the base is an existing directory on a present
// volume and not a ghost directory left behind by an unmounted drive.
func checkBaseAccessible(absBasePath string) error {
	if isUnsafeRoot(absBasePath) {
		return fmt.Errorf("base path cannot be the current directory or a filesystem root: %s", absBasePath)
	}

	if err := checkVolumeExists(absBasePath); err != nil {
		return err
	}

	info, err := os.Stat(absBasePath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("base directory does not exist: %s", absBasePath)
	} else if err != nil {
		return fmt.Errorf("cannot access base directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("base path exists but is not a directory: %s", absBasePath)
	}

	return validateMountPoint(absBasePath)
}

// checkBaseWritable creates and removes a probe file in the base directory.
func checkBaseWritable(absBasePath string) error {
	tempFile := filepath.Join(absBasePath, writeProbeName)
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("base directory %s is not writable: %w", absBasePath, err)
	}
	f.Close()
	_ = os.Remove(tempFile)
	return nil
}

// checkSnapshotDirAccessible accepts a missing snapshot directory, an empty
// repository has nothing to prune.
func checkSnapshotDirAccessible(absSnapshotDir string) error {
	info, err := os.Stat(absSnapshotDir)
	if errors.Is(err, os.ErrNotExist) {
		plog.Debug("Snapshot directory does not exist yet", "path", absSnapshotDir)
		return nil
	} else if err != nil {
		return fmt.Errorf("cannot access snapshot directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot path exists but is not a directory: %s", absSnapshotDir)
	}
	if _, err := os.ReadDir(absSnapshotDir); err != nil {
		return fmt.Errorf("cannot read snapshot directory %s: %w", absSnapshotDir, err)
	}
	return nil
}
