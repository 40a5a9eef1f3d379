package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/netwrench/netwrench/internal/catalog"
	"github.com/netwrench/netwrench/internal/errors"
	"github.com/netwrench/netwrench/internal/log"
	"github.com/netwrench/netwrench/internal/render"
	"github.com/netwrench/netwrench/internal/shell"
)

// Restore re-applies the saved prior state of checkpoint id through the same
// step constructors the forward renderer uses. Subsystems restore in reverse
// apply order. Restore is attempted once; a failure is reported as
// ROLLBACK_FAILED because the system may then be in neither the old nor the
// new state.
func (s *Store) Restore(ctx context.Context, id string) (*RestoreOutcome, error) {
	cp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	steps := restoreSteps(cp)
	outcome := &RestoreOutcome{CheckpointID: id, OK: true}

	log.Infof("restoring checkpoint %s for %s (%d step(s))", id, cp.Interface, len(steps))
	for _, step := range steps {
		note := RestoreNote{Subsystem: step.Subsystem, Command: step.Command()}

		var result *shell.Result
		var runErr error
		if step.Ruleset != "" {
			result, runErr = shell.ApplyRuleset(ctx, s.exec, step.Ruleset, s.rulesetTimeout)
		} else {
			result, runErr = s.exec.Run(ctx, step.Argv, s.cmdTimeout)
		}

		switch {
		case runErr != nil:
			note.Detail = runErr.Error()
		case !result.Ok():
			note.Detail = fmt.Sprintf("exit %d: %s", result.ExitCode, result.Output())
		default:
			note.OK = true
		}

		if !note.OK && step.BestEffort {
			note.OK = true
			note.Detail = "tolerated: " + note.Detail
		}

		outcome.Notes = append(outcome.Notes, note)
		if !note.OK {
			outcome.OK = false
			return outcome, errors.NewRollbackError(
				fmt.Sprintf("restore of checkpoint %s failed at %q: %s", id, step.Description, note.Detail), nil)
		}
	}

	return outcome, nil
}

// restoreSteps compiles a checkpoint's snapshots into executable steps, in
// reverse apply order: link, nic, firewall, queueing, kernel parameters.
func restoreSteps(cp *Checkpoint) []render.Step {
	var steps []render.Step
	snap := &cp.Snapshots
	iface := cp.Interface

	if snap.MTU != nil {
		steps = append(steps, render.MTUStep(iface, *snap.MTU))
	}

	if snap.Offloads != nil {
		for _, flag := range []string{"gro", "gso", "tso", "lro"} {
			on, ok := snap.Offloads[flag]
			if !ok {
				continue
			}
			steps = append(steps, render.OffloadStep(iface, flag, on))
		}
	}

	if snap.Firewall != nil {
		if snap.Firewall.Exists {
			steps = append(steps, render.RulesetStep(restoreRulesetDoc(snap.Firewall.Ruleset),
				"reload saved mangle ruleset"))
		} else {
			// The table did not exist before the apply; remove whatever the
			// apply created.
			steps = append(steps, render.DeleteTableStep())
		}
	}

	if snap.Queueing != nil {
		steps = append(steps, render.QdiscDelStep(iface))
		if snap.Queueing.Explicit && snap.Queueing.RootKind != "" {
			tail := append([]string{snap.Queueing.RootKind}, snap.Queueing.RootParams...)
			steps = append(steps, render.QdiscAddStep(iface, snap.Queueing.RootKind, tail...))
		}
		// No explicit root saved: deleting leaves the kernel default, which
		// is the state the snapshot observed.
	}

	if len(snap.Sysctl) > 0 {
		keys := make([]string, 0, len(snap.Sysctl))
		for k := range snap.Sysctl {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			steps = append(steps, render.SysctlStep(key, snap.Sysctl[key]))
		}
	}

	return steps
}

// restoreRulesetDoc wraps a saved `nft list table` dump into an atomically
// loadable document: declare the table (no-op when present), flush it, then
// redefine it from the saved text.
func restoreRulesetDoc(saved string) string {
	var sb strings.Builder
	sb.WriteString("table ip mangle {}\n")
	sb.WriteString("flush table ip mangle\n")
	sb.WriteString(saved)
	if !strings.HasSuffix(saved, "\n") {
		sb.WriteString("\n")
	}
	return sb.String()
}

// RestoredSubsystems lists the subsystems a checkpoint would touch on
// restore, for display.
func RestoredSubsystems(cp *Checkpoint) []catalog.Category {
	var out []catalog.Category
	if len(cp.Snapshots.Sysctl) > 0 {
		out = append(out, catalog.CategoryKernelParameter)
	}
	if cp.Snapshots.Queueing != nil {
		out = append(out, catalog.CategoryQueueing)
	}
	if cp.Snapshots.Firewall != nil {
		out = append(out, catalog.CategoryFirewall)
	}
	if cp.Snapshots.Offloads != nil {
		out = append(out, catalog.CategoryNIC)
	}
	if cp.Snapshots.MTU != nil {
		out = append(out, catalog.CategoryLink)
	}
	return out
}
