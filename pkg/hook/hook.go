// Package hook runs user supplied shell commands before and after a prune run.
package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/paulschiretz/pgl-retention/pkg/hints"
	"github.com/paulschiretz/pgl-retention/pkg/plog"
)

var ErrNothingToExecute = hints.New("nothing to execute")
var ErrDisabled = hints.New("hook execution is disabled")

// Environment variables exported to hook commands.
const (
	EnvBase    = "PGL_RETENTION_BASE"
	EnvDryRun  = "PGL_RETENTION_DRY_RUN"
	EnvDeleted = "PGL_RETENTION_DELETED"
	EnvFailed  = "PGL_RETENTION_FAILED"
)

// RunInfo describes the run a hook belongs to.
type RunInfo struct {
	AbsBasePath string
	DryRun      bool
	// Deleted and Failed are only meaningful for post-prune hooks.
	Deleted int64
	Failed  int64
}

func (r RunInfo) environ(post bool) []string {
	vars := []string{
		EnvBase + "=" + r.AbsBasePath,
		EnvDryRun + "=" + strconv.FormatBool(r.DryRun),
	}
	if post {
		vars = append(vars,
			EnvDeleted+"="+strconv.FormatInt(r.Deleted, 10),
			EnvFailed+"="+strconv.FormatInt(r.Failed, 10),
		)
	}
	return vars
}

type HookExecutor struct {
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewHookExecutor creates a HookExecutor. Pass exec.CommandContext outside of tests.
func NewHookExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *HookExecutor {
	return &HookExecutor{
		commandContext: commandContext,
	}
}

// RunPreHook runs the pre-prune commands. A failing command aborts the run
// with FailFast and is only warned about otherwise.
func (e *HookExecutor) RunPreHook(ctx context.Context, p *Plan, info RunInfo) error {
	if !p.Enabled {
		return ErrDisabled
	}
	if len(p.PrePruneCommands) == 0 {
		return ErrNothingToExecute
	}
	plog.Info("Running pre-prune hook commands")
	return e.run(ctx, p.PrePruneCommands, p, info.environ(false), p.FailFast)
}

// RunPostHook runs the post-prune commands. Failing commands are only warned about.
func (e *HookExecutor) RunPostHook(ctx context.Context, p *Plan, info RunInfo) error {
	if !p.Enabled {
		return ErrDisabled
	}
	if len(p.PostPruneCommands) == 0 {
		return ErrNothingToExecute
	}
	plog.Info("Running post-prune hook commands")
	return e.run(ctx, p.PostPruneCommands, p, info.environ(true), false)
}

func (e *HookExecutor) run(ctx context.Context, commands []string, p *Plan, env []string, failFast bool) error {
	for _, hookCommand := range commands {
		if err := ctx.Err(); err != nil {
			return err
		}

		if p.DryRun {
			plog.Info("[DRY RUN] Executing command", "command", hookCommand)
			continue
		}
		plog.Info("Executing command", "command", hookCommand)

		cmd := e.createCommand(ctx, hookCommand)
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		cmd.Env = append(cmd.Env, env...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			// A killed process reports a generic exit error; prefer the cancellation.
			if errors.Is(ctx.Err(), context.Canceled) {
				return context.Canceled
			}
			if failFast {
				return fmt.Errorf("command '%s' failed: %w", hookCommand, err)
			}
			plog.Warn("Hook command failed", "command", hookCommand, "error", err)
		}
	}
	return nil
}
