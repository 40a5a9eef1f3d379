package shell

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/netwrench/netwrench/internal/errors"
	"github.com/netwrench/netwrench/internal/log"
)

// Result carries the outcome of one command execution. A non-zero exit code
// is data, not an error: the caller decides what a failure means.
type Result struct {
	Argv     []string `json:"argv"`
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// Ok reports whether the command exited zero.
func (r *Result) Ok() bool {
	return r != nil && r.ExitCode == 0
}

// Output returns stderr when present, stdout otherwise; the most useful
// single string for a report note.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner executes one argv under a timeout. The production implementation is
// Executor; tests substitute fakes and spies.
type Runner interface {
	Run(ctx context.Context, argv []string, timeout time.Duration) (*Result, error)
}

// SpawnFunc starts the process for an already-authorized argv. Injectable so
// tests can verify that rejected commands never reach a spawn.
type SpawnFunc func(ctx context.Context, argv []string) (*Result, error)

// Executor is the production Runner: allowlist check, vector-only arguments,
// hard timeout.
type Executor struct {
	allowlist      *Allowlist
	spawn          SpawnFunc
	defaultTimeout time.Duration
}

// NewExecutor builds an executor over the given allowlist. defaultTimeout
// applies when Run is called with a zero timeout.
func NewExecutor(allowlist *Allowlist, defaultTimeout time.Duration) *Executor {
	if defaultTimeout == 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Executor{
		allowlist:      allowlist,
		spawn:          osSpawn,
		defaultTimeout: defaultTimeout,
	}
}

// WithSpawn returns a copy of the executor using fn to start processes.
func (e *Executor) WithSpawn(fn SpawnFunc) *Executor {
	copied := *e
	copied.spawn = fn
	return &copied
}

// Run executes argv. The allowlist is checked before any process is spawned;
// a violation is COMMAND_NOT_ALLOWED, distinct from execution failures. A
// command that outlives the timeout is killed and reported as TIMEOUT with
// whatever output it produced.
func (e *Executor) Run(ctx context.Context, argv []string, timeout time.Duration) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.New(errors.ErrCodeCommandNotAllowed, "empty argument vector")
	}
	if !e.allowlist.Permits(argv[0]) {
		return nil, errors.NewCommandNotAllowedError(argv[0])
	}
	if timeout == 0 {
		timeout = e.defaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Debugf("exec: %s (timeout %s)", strings.Join(argv, " "), timeout)
	result, err := e.spawn(runCtx, argv)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return result, errors.NewTimeoutError("command timed out: "+strings.Join(argv, " "), err)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to spawn "+argv[0], err)
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return result, errors.NewTimeoutError("command timed out: "+strings.Join(argv, " "), nil)
	}
	return result, nil
}

// osSpawn runs argv via os/exec. Arguments pass through as a vector; no
// shell is ever involved.
func osSpawn(ctx context.Context, argv []string) (*Result, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Argv:   argv,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}
	return result, nil
}
