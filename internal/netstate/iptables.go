package netstate

import (
	"strings"

	"github.com/coreos/go-iptables/iptables"
)

// LegacyMangleRules returns iptables mangle-table rules that set DSCP marks.
// netwrench manages marking through nftables; DSCP rules left behind by
// legacy iptables tooling shadow the managed ruleset and are flagged by
// self-check. Returns nil when iptables is unavailable, since a system
// without it cannot have stale rules.
func LegacyMangleRules() ([]string, error) {
	ipt, err := iptables.New()
	if err != nil {
		return nil, nil
	}

	chains, err := ipt.ListChains("mangle")
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, chain := range chains {
		rules, err := ipt.List("mangle", chain)
		if err != nil {
			return nil, err
		}
		for _, rule := range rules {
			if strings.Contains(rule, "--set-dscp") {
				stale = append(stale, rule)
			}
		}
	}
	return stale, nil
}
