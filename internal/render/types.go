// Package render compiles a normalized plan into the ordered command set the
// orchestrator executes. Rendering is pure and deterministic: identical plans
// yield byte-identical command sets.
package render

import (
	"strings"

	"github.com/netwrench/netwrench/internal/catalog"
)

// Step is one executable unit of a command set. Exactly one of Argv or
// Ruleset is populated: Argv steps run through the safe executor as a single
// process, Ruleset steps carry a complete nftables document applied as one
// atomic load.
type Step struct {
	Subsystem catalog.Category `json:"subsystem"`
	Argv      []string         `json:"argv,omitempty"`
	Ruleset   string           `json:"ruleset,omitempty"`
	// Description is a short human-readable summary for logs and reports.
	Description string `json:"description"`
	// BestEffort marks steps whose failure is tolerated, such as removing a
	// queueing discipline that may not exist.
	BestEffort bool `json:"best_effort,omitempty"`
}

// Command returns a display form of the step. Ruleset steps show a marker
// instead of the full document.
func (s Step) Command() string {
	if s.Ruleset != "" {
		return "nft -f <ruleset>"
	}
	return strings.Join(s.Argv, " ")
}

// CommandSet is an ordered list of steps for one interface, together with the
// snapshot scope the checkpoint store needs: which subsystems the steps touch
// and which sysctl keys they modify.
type CommandSet struct {
	Interface  string             `json:"iface"`
	Steps      []Step             `json:"steps"`
	Touched    []catalog.Category `json:"touched"`
	SysctlKeys []string           `json:"sysctl_keys,omitempty"`
}

// Touches reports whether the command set modifies the given subsystem.
func (cs *CommandSet) Touches(cat catalog.Category) bool {
	for _, c := range cs.Touched {
		if c == cat {
			return true
		}
	}
	return false
}

// Script renders the whole command set as readable text for dry-run output
// and auditing.
func (cs *CommandSet) Script() string {
	var sb strings.Builder
	var last catalog.Category
	for _, step := range cs.Steps {
		if step.Subsystem != last {
			sb.WriteString("# ")
			sb.WriteString(string(step.Subsystem))
			sb.WriteString("\n")
			last = step.Subsystem
		}
		if step.Ruleset != "" {
			sb.WriteString(step.Ruleset)
			if !strings.HasSuffix(step.Ruleset, "\n") {
				sb.WriteString("\n")
			}
			continue
		}
		sb.WriteString(strings.Join(step.Argv, " "))
		sb.WriteString("\n")
	}
	return sb.String()
}
