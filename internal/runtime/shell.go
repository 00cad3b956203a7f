package runtime

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/kb-labs/kb-plugin-host/internal/harden"
	"github.com/kb-labs/kb-plugin-host/internal/manifest"
	"github.com/kb-labs/kb-plugin-host/internal/policy"
)

// parentEnv returns the current process environment; a var indirection so
// tests can override it deterministically.
var parentEnv = os.Environ

// Shell is the shell.exec facade (spec §4.2). Shell is the one facade where
// a compat-mode Guard pass-through actually runs the command despite the
// denial (spec §4.3: "the one facade where a replacement emulation...
// is meaningful in Go").
type Shell struct {
	policy manifest.Policy
	guard  *harden.Guard
}

func newShell(p manifest.Policy, guard *harden.Guard) *Shell {
	return &Shell{policy: p, guard: guard}
}

// ExecOptions controls Exec behavior.
type ExecOptions struct {
	Cwd          string
	Env          []string
	Timeout      time.Duration
	ThrowOnError bool
}

// ExecResult is the outcome of a shell invocation.
type ExecResult struct {
	Code   int
	Stdout string
	Stderr string
	OK     bool
}

// DefaultExecTimeout is applied when ExecOptions.Timeout is zero (spec §4.2).
const DefaultExecTimeout = 30 * time.Second

// Exec runs command with argv after a Policy check. On timeout the process
// is force-terminated and an error is returned (not a normal ExecResult).
func (s *Shell) Exec(cmd string, argv []string, opts ExecOptions) (ExecResult, error) {
	if d := policy.CheckShell(cmd, argv, s.policy.Shell); !d.Allow {
		if !(s.guard != nil && s.guard.Evaluate("shell", cmd, d)) {
			return ExecResult{}, &PermissionError{Reason: d.Reason, Details: d.Details}
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c := exec.CommandContext(ctx, cmd, argv...)
	if opts.Cwd != "" {
		c.Dir = opts.Cwd
	}
	if len(opts.Env) > 0 {
		c.Env = mergeEnv(opts.Env)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return ExecResult{}, &timeoutError{cmd: cmd, timeout: timeout}
	}

	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	} else if err != nil {
		return ExecResult{}, err
	}

	result := ExecResult{Code: code, Stdout: stdout.String(), Stderr: stderr.String(), OK: code == 0}
	if !result.OK && opts.ThrowOnError {
		return result, &nonZeroExitError{result: result}
	}
	return result, nil
}

// mergeEnv merges the parent process environment with supplied entries,
// supplied entries winning on key collision (spec §4.2). os/exec does not
// merge automatically when Env is set explicitly, so this reproduces that
// behavior.
func mergeEnv(supplied []string) []string {
	base := parentEnv()
	merged := make(map[string]string, len(base)+len(supplied))
	for _, kv := range base {
		if k, v, ok := splitEnv(kv); ok {
			merged[k] = v
		}
	}
	for _, kv := range supplied {
		if k, v, ok := splitEnv(kv); ok {
			merged[k] = v
		}
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

func splitEnv(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

type timeoutError struct {
	cmd     string
	timeout time.Duration
}

func (e *timeoutError) Error() string {
	return "shell command " + e.cmd + " timed out after " + e.timeout.String()
}

type nonZeroExitError struct {
	result ExecResult
}

func (e *nonZeroExitError) Error() string {
	return "shell command exited non-zero"
}
