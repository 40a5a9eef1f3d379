package render

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/netwrench/netwrench/internal/catalog"
	"github.com/netwrench/netwrench/internal/errors"
	"github.com/netwrench/netwrench/internal/plan"
)

// Render compiles a normalized plan into a command set. It never touches the
// system. A plan that did not come out of the validator, or that is
// structurally incomplete, indicates a validator bug and fails with
// PLAN_INVARIANT.
func Render(p *plan.NormalizedPlan) (*CommandSet, error) {
	if !p.Validated() {
		return nil, errors.New(errors.ErrCodePlanInvariant, "plan was not produced by the validator")
	}
	if p.Interface == "" {
		return nil, errors.New(errors.ErrCodePlanInvariant, "plan has no target interface")
	}
	changes := &p.Changes
	if changes.Empty() {
		return nil, errors.New(errors.ErrCodePlanInvariant, "plan has an empty change set")
	}

	cs := &CommandSet{Interface: p.Interface}

	// Subsystems render in a fixed global order: kernel parameters first so
	// prerequisite state (e.g. ip_forward) exists before dependent rules,
	// link last so a discipline swap cannot clobber the final adapter state.

	if len(changes.Sysctl) > 0 {
		keys := make([]string, 0, len(changes.Sysctl))
		for k := range changes.Sysctl {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			cs.Steps = append(cs.Steps, SysctlStep(key, changes.Sysctl[key]))
		}
		cs.Touched = append(cs.Touched, catalog.CategoryKernelParameter)
		cs.SysctlKeys = keys
	}

	if changes.Qdisc != nil {
		steps, err := renderQueueing(p.Interface, changes.Qdisc, changes.Shaper)
		if err != nil {
			return nil, err
		}
		cs.Steps = append(cs.Steps, steps...)
		cs.Touched = append(cs.Touched, catalog.CategoryQueueing)
	}

	if len(changes.DSCP) > 0 {
		doc := renderRuleset(p.Interface, changes.DSCP)
		cs.Steps = append(cs.Steps, RulesetStep(doc,
			fmt.Sprintf("load DSCP marking ruleset for %s (%d rule(s))", p.Interface, len(changes.DSCP))))
		cs.Touched = append(cs.Touched, catalog.CategoryFirewall)
	}

	if changes.Offloads != nil {
		steps := renderOffloads(p.Interface, changes.Offloads)
		if len(steps) > 0 {
			cs.Steps = append(cs.Steps, steps...)
			cs.Touched = append(cs.Touched, catalog.CategoryNIC)
		}
	}

	if changes.MTU != 0 {
		cs.Steps = append(cs.Steps, MTUStep(p.Interface, changes.MTU))
		cs.Touched = append(cs.Touched, catalog.CategoryLink)
	}

	if len(cs.Steps) == 0 {
		return nil, errors.New(errors.ErrCodePlanInvariant, "plan rendered no steps")
	}
	return cs, nil
}

// renderQueueing emits the remove-then-add script for the requested root
// discipline. The unconditional removal makes re-application idempotent.
func renderQueueing(iface string, q *plan.QdiscSpec, shaper *plan.ShaperSpec) ([]Step, error) {
	steps := []Step{QdiscDelStep(iface)}

	var egress, ceil int
	if shaper != nil {
		if shaper.EgressMbit != nil {
			egress = *shaper.EgressMbit
		}
		if shaper.CeilMbit != nil {
			ceil = *shaper.CeilMbit
		}
	}
	if ceil == 0 {
		ceil = egress
	}

	switch q.Type {
	case "cake":
		args := []string{"cake"}
		if egress > 0 {
			args = append(args, "bandwidth", mbit(egress))
		}
		if q.RTTUs != nil {
			args = append(args, "rtt", strconv.Itoa(*q.RTTUs)+"us")
		}
		if q.Diffserv != "" {
			args = append(args, q.Diffserv)
		}
		steps = append(steps, QdiscAddStep(iface, "cake", args...))

	case "fq_codel":
		args := []string{"fq_codel"}
		if q.Limit != nil {
			args = append(args, "limit", strconv.Itoa(*q.Limit))
		}
		if q.TargetUs != nil {
			args = append(args, "target", strconv.Itoa(*q.TargetUs)+"us")
		}
		if q.IntervalUs != nil {
			args = append(args, "interval", strconv.Itoa(*q.IntervalUs)+"us")
		}
		steps = append(steps, QdiscAddStep(iface, "fq_codel", args...))

	case "fq":
		args := []string{"fq"}
		if egress > 0 {
			args = append(args, "maxrate", mbit(egress))
		}
		steps = append(steps, QdiscAddStep(iface, "fq", args...))

	case "htb":
		steps = append(steps, QdiscAddStep(iface, "htb", "handle", "1:", "htb", "default", "30"))
		rate, classCeil := "1gbit", "1gbit"
		if egress > 0 {
			rate, classCeil = mbit(egress), mbit(ceil)
		}
		steps = append(steps,
			ClassAddStep(iface, "1:", "1:1", "htb", "rate", rate, "ceil", classCeil),
			ClassAddStep(iface, "1:1", "1:30", "htb", "rate", rate, "ceil", classCeil),
			LeafQdiscStep(iface, "1:30", "fq_codel"),
		)

	default:
		// The validator admits only the closed qdisc set; anything else is
		// a bug upstream.
		return nil, errors.Newf(errors.ErrCodePlanInvariant, "unhandled qdisc type %q", q.Type)
	}

	return steps, nil
}

// renderOffloads emits one ethtool command per requested flag, in the fixed
// order gro, gso, tso, lro.
func renderOffloads(iface string, o *plan.OffloadSpec) []Step {
	var steps []Step
	for _, flag := range []struct {
		name  string
		value *bool
	}{
		{"gro", o.GRO},
		{"gso", o.GSO},
		{"tso", o.TSO},
		{"lro", o.LRO},
	} {
		if flag.value != nil {
			steps = append(steps, OffloadStep(iface, flag.name, *flag.value))
		}
	}
	return steps
}

func mbit(n int) string {
	return strconv.Itoa(n) + "mbit"
}
