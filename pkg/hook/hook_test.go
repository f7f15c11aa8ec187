package hook_test

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-retention/pkg/hook"
)

// TestHelperProcess is a helper for testing exec.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		os.Exit(0)
	}
	switch {
	case strings.Contains(args[0], "fail"):
		os.Exit(1)
	case strings.Contains(args[0], "check-post-env"):
		if os.Getenv(hook.EnvBase) != "/repo" || os.Getenv(hook.EnvDeleted) != "3" || os.Getenv(hook.EnvFailed) != "1" {
			os.Exit(2)
		}
	case strings.Contains(args[0], "check-pre-env"):
		if os.Getenv(hook.EnvBase) != "/repo" || os.Getenv(hook.EnvDryRun) != "false" || os.Getenv(hook.EnvDeleted) != "" {
			os.Exit(2)
		}
	}
	os.Exit(0)
}

func mockExecutor(ctx context.Context, name string, arg ...string) *exec.Cmd {
	// Unwrap "/bin/sh -c" and "cmd /C" to get the hook command line.
	var cmdLine string
	if len(arg) > 1 && (arg[0] == "/C" || arg[0] == "-c") {
		cmdLine = strings.Join(arg[1:], " ")
	} else {
		cmdLine = name + " " + strings.Join(arg, " ")
	}

	cs := []string{"-test.run=TestHelperProcess", "--", cmdLine}
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	return cmd
}

func TestHookExecutor(t *testing.T) {
	info := hook.RunInfo{AbsBasePath: "/repo", Deleted: 3, Failed: 1}

	tests := []struct {
		name          string
		plan          *hook.Plan
		hookType      string // "pre" or "post"
		expectError   bool
		errorContains string
	}{
		{
			name:     "Pre-hook success",
			plan:     &hook.Plan{Enabled: true, PrePruneCommands: []string{"echo pre-hook-works"}},
			hookType: "pre",
		},
		{
			name:     "Post-hook success",
			plan:     &hook.Plan{Enabled: true, PostPruneCommands: []string{"echo post-hook-works"}},
			hookType: "post",
		},
		{
			name:          "Pre-hook failure with FailFast",
			plan:          &hook.Plan{Enabled: true, PrePruneCommands: []string{"fail this"}, FailFast: true},
			hookType:      "pre",
			expectError:   true,
			errorContains: "command 'fail this' failed",
		},
		{
			name:     "Pre-hook failure without FailFast",
			plan:     &hook.Plan{Enabled: true, PrePruneCommands: []string{"fail this"}},
			hookType: "pre",
		},
		{
			name:     "Post-hook failure is only a warning even with FailFast",
			plan:     &hook.Plan{Enabled: true, PostPruneCommands: []string{"fail this"}, FailFast: true},
			hookType: "post",
		},
		{
			name:     "Dry run",
			plan:     &hook.Plan{Enabled: true, PrePruneCommands: []string{"fail should-not-run"}, DryRun: true, FailFast: true},
			hookType: "pre",
		},
		{
			name:     "Pre-hook receives run environment",
			plan:     &hook.Plan{Enabled: true, PrePruneCommands: []string{"check-pre-env"}, FailFast: true},
			hookType: "pre",
		},
		{
			name:     "Post-hook receives run counters",
			plan:     &hook.Plan{Enabled: true, PostPruneCommands: []string{"check-post-env"}},
			hookType: "post",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			executor := hook.NewHookExecutor(mockExecutor)
			var err error
			if tc.hookType == "pre" {
				err = executor.RunPreHook(context.Background(), tc.plan, info)
			} else {
				err = executor.RunPostHook(context.Background(), tc.plan, info)
			}

			if tc.expectError {
				if err == nil {
					t.Fatal("expected error, but got nil")
				}
				if tc.errorContains != "" && !strings.Contains(err.Error(), tc.errorContains) {
					t.Errorf("expected error to contain %q, but got: %v", tc.errorContains, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestHookExecutorEnvFailFast(t *testing.T) {
	// The env check exits non-zero when the variables are missing, so FailFast surfaces it.
	executor := hook.NewHookExecutor(mockExecutor)
	plan := &hook.Plan{Enabled: true, PrePruneCommands: []string{"check-pre-env"}, FailFast: true}
	if err := executor.RunPreHook(context.Background(), plan, hook.RunInfo{AbsBasePath: "/elsewhere"}); err == nil {
		t.Fatal("expected env check to fail for a different base path")
	}
}

func TestHookExecutorSoftErrors(t *testing.T) {
	executor := hook.NewHookExecutor(mockExecutor)

	if err := executor.RunPreHook(context.Background(), &hook.Plan{}, hook.RunInfo{}); err != hook.ErrDisabled {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
	if err := executor.RunPostHook(context.Background(), &hook.Plan{Enabled: true}, hook.RunInfo{}); err != hook.ErrNothingToExecute {
		t.Errorf("expected ErrNothingToExecute, got %v", err)
	}
}

func TestHookExecutorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	executor := hook.NewHookExecutor(mockExecutor)
	plan := &hook.Plan{Enabled: true, PrePruneCommands: []string{"echo never"}}
	if err := executor.RunPreHook(ctx, plan, hook.RunInfo{}); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
