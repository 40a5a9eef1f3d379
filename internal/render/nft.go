package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/netwrench/netwrench/internal/plan"
)

// The managed table is replaced as one document: declare (a no-op when it
// already exists), flush, then redefine. Either the whole ruleset becomes
// active or none of it does.
const rulesetSkeleton = `table {{family}} {{table}} {}
flush table {{family}} {{table}}
table {{family}} {{table}} {
	chain {{chain}} {
		type filter hook {{chain}} priority {{priority}}; policy accept;
{{rules}}	}
}
`

const (
	rulesetFamily   = "ip"
	rulesetTable    = "mangle"
	rulesetChain    = "postrouting"
	rulesetPriority = "-150"
)

var rulesetTemplate = fasttemplate.New(rulesetSkeleton, "{{", "}}")

// dscpNames maps DSCP classes to the lowercase symbolic names nft accepts.
// The numeric codepoints are EF=46 CS6=48 CS5=40 CS4=32 AF41=34 AF42=36
// AF43=38.
var dscpNames = map[string]string{
	"EF":   "ef",
	"CS6":  "cs6",
	"CS5":  "cs5",
	"CS4":  "cs4",
	"AF41": "af41",
	"AF42": "af42",
	"AF43": "af43",
}

// renderRuleset compiles DSCP marking rules into one complete nftables
// document for the managed mangle table.
func renderRuleset(iface string, rules []plan.DSCPRule) string {
	var sb strings.Builder
	for _, rule := range rules {
		sb.WriteString("\t\t")
		sb.WriteString(renderDSCPRule(iface, rule))
		sb.WriteString("\n")
	}
	return rulesetTemplate.ExecuteString(map[string]interface{}{
		"family":   rulesetFamily,
		"table":    rulesetTable,
		"chain":    rulesetChain,
		"priority": rulesetPriority,
		"rules":    sb.String(),
	})
}

func renderDSCPRule(iface string, rule plan.DSCPRule) string {
	match := rule.Match
	parts := []string{fmt.Sprintf("oifname %q", iface)}

	if match.Proto != "" {
		parts = append(parts, "meta l4proto "+match.Proto)
	}
	if match.Src != "" {
		parts = append(parts, "ip saddr "+match.Src)
	}
	if match.Dst != "" {
		parts = append(parts, "ip daddr "+match.Dst)
	}
	if len(match.SPorts) > 0 {
		parts = append(parts, match.Proto+" sport "+portSet(match.SPorts))
	}
	if len(match.DPorts) > 0 {
		parts = append(parts, match.Proto+" dport "+portSet(match.DPorts))
	}

	parts = append(parts, "ip dscp set "+dscpNames[rule.DSCP], "counter")
	return strings.Join(parts, " ")
}

func portSet(ports []int) string {
	if len(ports) == 1 {
		return strconv.Itoa(ports[0])
	}
	strs := make([]string, len(ports))
	for i, p := range ports {
		strs[i] = strconv.Itoa(p)
	}
	return "{ " + strings.Join(strs, ", ") + " }"
}
