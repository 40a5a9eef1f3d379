package apply

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/netwrench/netwrench/internal/catalog"
	"github.com/netwrench/netwrench/internal/checkpoint"
	gerrors "github.com/netwrench/netwrench/internal/errors"
	"github.com/netwrench/netwrench/internal/render"
	"github.com/netwrench/netwrench/internal/shell"
)

// fakeStore scripts the snapshot/restore surface.
type fakeStore struct {
	snapshotErr  error
	restoreErr   error
	snapshots    int
	restores     int
	lastScope    checkpoint.Scope
	lastRestored string
}

func (s *fakeStore) Snapshot(ctx context.Context, scope checkpoint.Scope, label string) (*checkpoint.Checkpoint, error) {
	if s.snapshotErr != nil {
		return nil, s.snapshotErr
	}
	s.snapshots++
	s.lastScope = scope
	return &checkpoint.Checkpoint{ID: "cp-1", Interface: scope.Interface, Label: label}, nil
}

func (s *fakeStore) Restore(ctx context.Context, id string) (*checkpoint.RestoreOutcome, error) {
	s.restores++
	s.lastRestored = id
	if s.restoreErr != nil {
		return &checkpoint.RestoreOutcome{CheckpointID: id, OK: false}, s.restoreErr
	}
	return &checkpoint.RestoreOutcome{CheckpointID: id, OK: true}, nil
}

// spyRunner records commands; failOn scripts hard failures.
type spyRunner struct {
	calls  [][]string
	failOn func(argv []string) bool
}

func (r *spyRunner) Run(ctx context.Context, argv []string, timeout time.Duration) (*shell.Result, error) {
	r.calls = append(r.calls, argv)
	if r.failOn != nil && r.failOn(argv) {
		return &shell.Result{Argv: argv, ExitCode: 2, Stderr: "scripted failure"}, nil
	}
	return &shell.Result{Argv: argv}, nil
}

func testCommandSet() *render.CommandSet {
	return &render.CommandSet{
		Interface: "eth0",
		Steps: []render.Step{
			render.SysctlStep("net.ipv4.tcp_congestion_control", "bbr"),
			render.QdiscDelStep("eth0"),
			render.QdiscAddStep("eth0", "fq", "fq"),
		},
		Touched:    []catalog.Category{catalog.CategoryKernelParameter, catalog.CategoryQueueing},
		SysctlKeys: []string{"net.ipv4.tcp_congestion_control"},
	}
}

func newTestOrchestrator(store Store, exec shell.Runner) *Orchestrator {
	return NewOrchestrator(store, exec, NewLockManager(""), nil)
}

func TestApplyDryRunTouchesNothing(t *testing.T) {
	store := &fakeStore{}
	runner := &spyRunner{}
	o := newTestOrchestrator(store, runner)

	report := o.Apply(context.Background(), testCommandSet(), Options{DryRun: true})

	if !report.DryRun || report.Applied {
		t.Errorf("report = %+v", report)
	}
	if len(report.Notes) != 3 {
		t.Errorf("notes = %d, want 3", len(report.Notes))
	}
	if store.snapshots != 0 || len(runner.calls) != 0 {
		t.Error("dry run must not snapshot or execute")
	}
}

func TestApplySuccess(t *testing.T) {
	store := &fakeStore{}
	runner := &spyRunner{}
	o := newTestOrchestrator(store, runner)

	report := o.Apply(context.Background(), testCommandSet(), Options{Label: "tuning"})

	if !report.Applied || report.State != StateSucceeded {
		t.Fatalf("report = %+v", report)
	}
	if report.CheckpointID != "cp-1" {
		t.Errorf("checkpoint id = %q", report.CheckpointID)
	}
	if store.snapshots != 1 || store.restores != 0 {
		t.Errorf("snapshots = %d, restores = %d", store.snapshots, store.restores)
	}
	if len(runner.calls) != 3 {
		t.Errorf("executed %d step(s), want 3", len(runner.calls))
	}
	// Scope derives from the command set.
	if store.lastScope.Interface != "eth0" || len(store.lastScope.Subsystems) != 2 {
		t.Errorf("scope = %+v", store.lastScope)
	}
}

func TestApplyFailureRollsBack(t *testing.T) {
	store := &fakeStore{}
	runner := &spyRunner{failOn: func(argv []string) bool {
		return argv[0] == "tc" && argv[2] == "add"
	}}
	o := newTestOrchestrator(store, runner)

	report := o.Apply(context.Background(), testCommandSet(), Options{})

	if report.Applied {
		t.Error("failed apply must not report Applied")
	}
	if report.State != StateRolledBack || !report.RollbackPerformed {
		t.Fatalf("report = %+v", report)
	}
	if store.restores != 1 || store.lastRestored != "cp-1" {
		t.Errorf("restores = %d, id = %q", store.restores, store.lastRestored)
	}

	// The failing step carries the non-zero exit in its note.
	failed := report.Notes[len(report.Notes)-1]
	if failed.OK || !strings.Contains(failed.Error, string(gerrors.ErrCodeNonZeroExit)) {
		t.Errorf("failing note = %+v", failed)
	}
}

func TestApplyStopsAtFirstHardFailure(t *testing.T) {
	store := &fakeStore{}
	runner := &spyRunner{failOn: func(argv []string) bool {
		return argv[0] == "sysctl"
	}}
	o := newTestOrchestrator(store, runner)

	report := o.Apply(context.Background(), testCommandSet(), Options{})

	if len(report.Notes) != 1 {
		t.Fatalf("notes = %d, execution must stop at the first failure", len(report.Notes))
	}
	if len(runner.calls) != 1 {
		t.Errorf("executed %d step(s) after a failure", len(runner.calls))
	}
	if report.State != StateRolledBack {
		t.Errorf("state = %s", report.State)
	}
}

func TestApplyBestEffortStepFailureIsTolerated(t *testing.T) {
	store := &fakeStore{}
	runner := &spyRunner{failOn: func(argv []string) bool {
		// Removing a nonexistent root qdisc exits non-zero.
		return argv[0] == "tc" && argv[2] == "del"
	}}
	o := newTestOrchestrator(store, runner)

	report := o.Apply(context.Background(), testCommandSet(), Options{})

	if !report.Applied || report.State != StateSucceeded {
		t.Fatalf("best-effort failure must not fail the apply: %+v", report)
	}
	if len(runner.calls) != 3 {
		t.Errorf("executed %d step(s), want all 3", len(runner.calls))
	}
}

func TestApplySnapshotFailureAborts(t *testing.T) {
	store := &fakeStore{snapshotErr: gerrors.New(gerrors.ErrCodeSnapshotFailed, "proc unreadable")}
	runner := &spyRunner{}
	o := newTestOrchestrator(store, runner)

	report := o.Apply(context.Background(), testCommandSet(), Options{})

	if report.State != StateIdle || report.Applied {
		t.Fatalf("report = %+v", report)
	}
	if len(runner.calls) != 0 {
		t.Error("no step may run without a checkpoint")
	}
	if len(report.Errors) == 0 {
		t.Error("snapshot failure must surface in the report")
	}
}

func TestApplyRollbackFailureIsTerminal(t *testing.T) {
	store := &fakeStore{restoreErr: gerrors.New(gerrors.ErrCodeRollbackFailed, "restore step failed")}
	runner := &spyRunner{failOn: func(argv []string) bool {
		return argv[0] == "tc" && argv[2] == "add"
	}}
	o := newTestOrchestrator(store, runner)

	report := o.Apply(context.Background(), testCommandSet(), Options{})

	if report.State != StateRollbackFailed {
		t.Fatalf("state = %s, want rollback-failed", report.State)
	}
	if report.RollbackPerformed {
		t.Error("a failed rollback must not be reported as performed")
	}
}

func TestApplyEmptyCommandSet(t *testing.T) {
	o := newTestOrchestrator(&fakeStore{}, &spyRunner{})

	report := o.Apply(context.Background(), &render.CommandSet{Interface: "eth0"}, Options{})
	if report.State != StateIdle || len(report.Errors) == 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestApplyHeldLockFailsFast(t *testing.T) {
	locks := NewLockManager("")
	release, err := locks.Acquire("eth0")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer release()

	store := &fakeStore{}
	o := NewOrchestrator(store, &spyRunner{}, locks, nil)

	report := o.Apply(context.Background(), testCommandSet(), Options{})
	if report.State != StateIdle || store.snapshots != 0 {
		t.Fatalf("a held lock must abort before the snapshot: %+v", report)
	}
	if len(report.Errors) == 0 || !strings.Contains(report.Errors[0], "eth0") {
		t.Errorf("errors = %v", report.Errors)
	}
}
