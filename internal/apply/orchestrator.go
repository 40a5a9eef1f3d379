// Package apply sequences checkpoint creation, command execution and
// rollback-on-failure into one operation that is atomic from the caller's
// point of view: either every step lands, or prior state is restored.
package apply

import (
	"context"
	"fmt"
	"time"

	"github.com/netwrench/netwrench/internal/audit"
	"github.com/netwrench/netwrench/internal/checkpoint"
	"github.com/netwrench/netwrench/internal/errors"
	"github.com/netwrench/netwrench/internal/log"
	"github.com/netwrench/netwrench/internal/render"
	"github.com/netwrench/netwrench/internal/shell"
)

// State is the orchestrator's position in its lifecycle. Terminal states are
// Succeeded, RolledBack and RollbackFailed.
type State string

const (
	StateIdle              State = "idle"
	StateCheckpointCreated State = "checkpoint-created"
	StateExecuting         State = "executing"
	StateSucceeded         State = "succeeded"
	StateRollingBack       State = "rolling-back"
	StateRolledBack        State = "rolled-back"
	StateRollbackFailed    State = "rollback-failed"
)

// StepNote records one attempted step of an apply.
type StepNote struct {
	Description string `json:"description"`
	Command     string `json:"command"`
	OK          bool   `json:"ok"`
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ChangeReport is the caller-facing outcome of an apply. It always names
// which step failed, what was attempted to restore prior state, and whether
// that restoration succeeded.
type ChangeReport struct {
	Applied           bool       `json:"applied"`
	DryRun            bool       `json:"dry_run"`
	State             State      `json:"state"`
	Notes             []StepNote `json:"notes"`
	Errors            []string   `json:"errors,omitempty"`
	CheckpointID      string     `json:"checkpoint_id,omitempty"`
	RollbackPerformed bool       `json:"rollback_performed"`
}

// Store is the checkpoint surface the orchestrator needs.
type Store interface {
	Snapshot(ctx context.Context, scope checkpoint.Scope, label string) (*checkpoint.Checkpoint, error)
	Restore(ctx context.Context, id string) (*checkpoint.RestoreOutcome, error)
}

// Options modify one apply call.
type Options struct {
	// Label annotates the checkpoint taken before execution.
	Label string
	// DryRun previews the command set without touching the checkpoint store
	// or the executor.
	DryRun bool
}

// Orchestrator drives the apply state machine.
type Orchestrator struct {
	store Store
	exec  shell.Runner
	locks *LockManager
	trail *audit.Trail

	cmdTimeout     time.Duration
	rulesetTimeout time.Duration
}

// NewOrchestrator wires an orchestrator. trail may be nil to disable
// auditing.
func NewOrchestrator(store Store, exec shell.Runner, locks *LockManager, trail *audit.Trail) *Orchestrator {
	return &Orchestrator{
		store:          store,
		exec:           exec,
		locks:          locks,
		trail:          trail,
		cmdTimeout:     30 * time.Second,
		rulesetTimeout: 5 * time.Second,
	}
}

// SetTimeouts overrides the per-command and ruleset-load timeouts.
func (o *Orchestrator) SetTimeouts(command, ruleset time.Duration) {
	if command > 0 {
		o.cmdTimeout = command
	}
	if ruleset > 0 {
		o.rulesetTimeout = ruleset
	}
}

// Apply executes a rendered command set. The per-interface lock is held from
// before the snapshot until a terminal state, because the checkpoint is only
// meaningful as "state immediately before this operation". Apply never
// returns a Go error: every outcome, including rollback failure, is a
// ChangeReport.
func (o *Orchestrator) Apply(ctx context.Context, cs *render.CommandSet, opts Options) *ChangeReport {
	report := &ChangeReport{State: StateIdle, DryRun: opts.DryRun}

	if cs == nil || len(cs.Steps) == 0 {
		report.Errors = append(report.Errors, "command set is empty")
		return report
	}

	if opts.DryRun {
		for _, step := range cs.Steps {
			report.Notes = append(report.Notes, StepNote{
				Description: step.Description,
				Command:     step.Command(),
				OK:          true,
			})
		}
		o.trail.Record(audit.Entry{Op: "dry-run", Interface: cs.Interface, OK: true,
			Detail: fmt.Sprintf("%d step(s) previewed", len(cs.Steps))})
		return report
	}

	release, err := o.locks.Acquire(cs.Interface)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}
	defer release()

	// Idle -> CheckpointCreated. A snapshot failure aborts before anything
	// was touched; no rollback is needed.
	cp, err := o.store.Snapshot(ctx, checkpoint.ScopeOf(cs), opts.Label)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		o.trail.Record(audit.Entry{Op: "snapshot", Interface: cs.Interface, OK: false, Detail: err.Error()})
		return report
	}
	report.State = StateCheckpointCreated
	report.CheckpointID = cp.ID
	o.trail.Record(audit.Entry{Op: "snapshot", Interface: cs.Interface, CheckpointID: cp.ID, OK: true})

	// CheckpointCreated -> Executing: strictly in order, stop at the first
	// hard failure.
	report.State = StateExecuting
	failed := false
	for _, step := range cs.Steps {
		note := o.runStep(ctx, cs.Interface, step)
		report.Notes = append(report.Notes, note)
		if !note.OK {
			failed = true
			report.Errors = append(report.Errors, fmt.Sprintf("step %q failed: %s", step.Description, note.Error))
			break
		}
	}

	if !failed {
		// The checkpoint is retained so the caller may still revert later.
		report.State = StateSucceeded
		report.Applied = true
		o.trail.Record(audit.Entry{Op: "apply", Interface: cs.Interface, CheckpointID: cp.ID, OK: true,
			Detail: fmt.Sprintf("%d step(s) applied", len(report.Notes))})
		return report
	}

	// Executing -> RollingBack.
	report.State = StateRollingBack
	log.Warnf("apply failed on %s, rolling back to checkpoint %s", cs.Interface, cp.ID)
	outcome, restoreErr := o.store.Restore(ctx, cp.ID)
	if outcome != nil {
		for _, n := range outcome.Notes {
			o.trail.Record(audit.Entry{Op: "rollback", Interface: cs.Interface, CheckpointID: cp.ID,
				Step: n.Command, OK: n.OK, Detail: n.Detail})
		}
	}
	if restoreErr != nil {
		report.State = StateRollbackFailed
		report.Errors = append(report.Errors, restoreErr.Error())
		o.trail.Record(audit.Entry{Op: "rollback", Interface: cs.Interface, CheckpointID: cp.ID, OK: false,
			Detail: restoreErr.Error()})
		log.Errorf("rollback of checkpoint %s failed: %v -- system may be in an inconsistent state, manual intervention required", cp.ID, restoreErr)
		return report
	}

	report.State = StateRolledBack
	report.RollbackPerformed = true
	o.trail.Record(audit.Entry{Op: "rollback", Interface: cs.Interface, CheckpointID: cp.ID, OK: true})
	return report
}

// runStep executes one step and converts the outcome into a note.
// BestEffort steps never count as failures.
func (o *Orchestrator) runStep(ctx context.Context, iface string, step render.Step) StepNote {
	note := StepNote{Description: step.Description, Command: step.Command()}

	var result *shell.Result
	var err error
	if step.Ruleset != "" {
		result, err = shell.ApplyRuleset(ctx, o.exec, step.Ruleset, o.rulesetTimeout)
	} else {
		result, err = o.exec.Run(ctx, step.Argv, o.cmdTimeout)
	}

	switch {
	case err != nil:
		note.Error = err.Error()
		if result != nil {
			note.Output = result.Output()
		}
	case !result.Ok():
		note.Error = fmt.Sprintf("exit code %d (%s)", result.ExitCode, errors.ErrCodeNonZeroExit)
		note.Output = result.Output()
	default:
		note.OK = true
		note.Output = result.Output()
	}

	if !note.OK && step.BestEffort {
		note.OK = true
		note.Error = ""
	}

	o.trail.Record(audit.Entry{Op: "exec", Interface: iface, Step: note.Command, OK: note.OK,
		Detail: firstNonEmpty(note.Error, note.Output)})
	return note
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
