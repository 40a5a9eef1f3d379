package render

import (
	"fmt"
	"strconv"

	"github.com/netwrench/netwrench/internal/catalog"
)

// Step constructors shared by forward rendering and checkpoint restore, so
// both paths produce the same command text for the same state.

// SysctlStep sets one kernel parameter.
func SysctlStep(key, value string) Step {
	return Step{
		Subsystem:   catalog.CategoryKernelParameter,
		Argv:        []string{"sysctl", "-w", key + "=" + value},
		Description: fmt.Sprintf("set kernel parameter %s=%s", key, value),
	}
}

// QdiscDelStep removes the root queueing discipline. Removal of a
// nonexistent discipline is success, so the step is best-effort; this is what
// makes re-applying the same plan idempotent.
func QdiscDelStep(iface string) Step {
	return Step{
		Subsystem:   catalog.CategoryQueueing,
		Argv:        []string{"tc", "qdisc", "del", "dev", iface, "root"},
		Description: fmt.Sprintf("remove existing root qdisc on %s", iface),
		BestEffort:  true,
	}
}

// QdiscAddStep installs a root discipline. tail is everything after "root"
// on the tc command line; kind is used for the description only (HTB puts its
// handle before the kind, so the kind is not always tail[0]).
func QdiscAddStep(iface, kind string, tail ...string) Step {
	argv := append([]string{"tc", "qdisc", "add", "dev", iface, "root"}, tail...)
	return Step{
		Subsystem:   catalog.CategoryQueueing,
		Argv:        argv,
		Description: fmt.Sprintf("install %s qdisc on %s", kind, iface),
	}
}

// ClassAddStep adds an HTB class under parent.
func ClassAddStep(iface, parent, classid string, args ...string) Step {
	argv := append([]string{"tc", "class", "add", "dev", iface, "parent", parent, "classid", classid}, args...)
	return Step{
		Subsystem:   catalog.CategoryQueueing,
		Argv:        argv,
		Description: fmt.Sprintf("add class %s on %s", classid, iface),
	}
}

// LeafQdiscStep attaches a leaf discipline under an HTB class.
func LeafQdiscStep(iface, parent, kind string) Step {
	return Step{
		Subsystem:   catalog.CategoryQueueing,
		Argv:        []string{"tc", "qdisc", "add", "dev", iface, "parent", parent, kind},
		Description: fmt.Sprintf("attach %s leaf under %s on %s", kind, parent, iface),
	}
}

// RulesetStep carries a complete nftables document applied as a single
// atomic load.
func RulesetStep(doc, description string) Step {
	return Step{
		Subsystem:   catalog.CategoryFirewall,
		Ruleset:     doc,
		Description: description,
	}
}

// DeleteTableStep removes the managed mangle table; used by restore when the
// table did not exist before the apply.
func DeleteTableStep() Step {
	return Step{
		Subsystem:   catalog.CategoryFirewall,
		Argv:        []string{"nft", "delete", "table", "ip", "mangle"},
		Description: "delete managed mangle table",
		BestEffort:  true,
	}
}

// OffloadStep toggles one NIC offload flag.
func OffloadStep(iface, flag string, on bool) Step {
	state := "off"
	if on {
		state = "on"
	}
	return Step{
		Subsystem:   catalog.CategoryNIC,
		Argv:        []string{"ethtool", "-K", iface, flag, state},
		Description: fmt.Sprintf("set %s %s on %s", flag, state, iface),
	}
}

// MTUStep sets the interface MTU.
func MTUStep(iface string, mtu int) Step {
	return Step{
		Subsystem:   catalog.CategoryLink,
		Argv:        []string{"ip", "link", "set", "dev", iface, "mtu", strconv.Itoa(mtu)},
		Description: fmt.Sprintf("set MTU %d on %s", mtu, iface),
	}
}
