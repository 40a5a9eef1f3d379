// Package netstate reads the live system state the checkpoint store snapshots
// before an apply: kernel parameter values, the queueing configuration of an
// interface, the managed firewall ruleset, NIC offload flags and the link MTU.
// All reads go through the safe executor or /proc; nothing here mutates state.
package netstate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/netwrench/netwrench/internal/errors"
	"github.com/netwrench/netwrench/internal/shell"
)

// QdiscState captures the queueing configuration of one interface: the raw
// dump for the record, plus the parsed root discipline restore re-installs.
type QdiscState struct {
	// Dump is the verbatim `tc qdisc show` output.
	Dump string `json:"dump"`
	// RootKind is the root discipline kind, empty when none is installed.
	RootKind string `json:"root_kind,omitempty"`
	// RootParams are the parameter tokens after the kind on the root line.
	RootParams []string `json:"root_params,omitempty"`
	// Explicit is true when the root was configured rather than a kernel
	// default (tc shows defaults with handle 0:).
	Explicit bool `json:"explicit"`
}

// FirewallState captures the managed mangle table. Exists distinguishes "no
// table" from "empty table" so restore knows whether to delete or reload.
type FirewallState struct {
	Exists  bool   `json:"exists"`
	Ruleset string `json:"ruleset,omitempty"`
}

// LiveState reads current system state. It holds the safe executor for the
// tools it shells out to and uses netlink for link attributes.
type LiveState struct {
	exec    shell.Runner
	timeout time.Duration
	// procRoot is /proc in production; tests point it at a fixture tree.
	procRoot string
}

func NewLiveState(exec shell.Runner, timeout time.Duration) *LiveState {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &LiveState{exec: exec, timeout: timeout, procRoot: "/proc"}
}

// WithProcRoot returns a copy reading sysctl values under root instead of
// /proc. Test hook.
func (s *LiveState) WithProcRoot(root string) *LiveState {
	copied := *s
	copied.procRoot = root
	return &copied
}

// SysctlValues reads the current value of each named kernel parameter from
// /proc/sys. Every requested key must be readable; a missing key fails the
// whole read because a partial snapshot cannot support a full rollback.
func (s *LiveState) SysctlValues(ctx context.Context, keys []string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		path := filepath.Join(s.procRoot, "sys", strings.ReplaceAll(key, ".", "/"))
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSnapshotFailed, fmt.Sprintf("failed to read kernel parameter %s", key), err)
		}
		// /proc/sys values are single lines; triplets are tab-separated.
		value := strings.Join(strings.Fields(string(content)), " ")
		values[key] = value
	}
	return values, nil
}

// QdiscState dumps and parses the queueing configuration of iface.
func (s *LiveState) QdiscState(ctx context.Context, iface string) (*QdiscState, error) {
	result, err := s.exec.Run(ctx, []string{"tc", "qdisc", "show", "dev", iface}, s.timeout)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSnapshotFailed, fmt.Sprintf("failed to dump qdisc state for %s", iface), err)
	}
	if !result.Ok() {
		return nil, errors.Newf(errors.ErrCodeSnapshotFailed, "tc qdisc show dev %s exited %d: %s", iface, result.ExitCode, result.Output())
	}
	return parseQdiscDump(result.Stdout), nil
}

// parseQdiscDump extracts the root discipline from `tc qdisc show` output.
// A root line looks like:
//
//	qdisc cake 8001: root refcnt 2 bandwidth 100Mbit diffserv4 ...
//
// Kernel-default roots carry handle 0: and are not re-installed on restore.
func parseQdiscDump(dump string) *QdiscState {
	state := &QdiscState{Dump: dump}
	for _, line := range strings.Split(dump, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[0] != "qdisc" {
			continue
		}
		isRoot := false
		for _, f := range fields[3:] {
			if f == "root" {
				isRoot = true
				break
			}
		}
		if !isRoot {
			continue
		}
		state.RootKind = fields[1]
		state.Explicit = fields[2] != "0:"
		// Parameters follow "root refcnt N"; keep everything after the
		// refcnt value.
		for i := 3; i < len(fields); i++ {
			if fields[i] == "refcnt" && i+1 < len(fields) {
				state.RootParams = fields[i+2:]
				break
			}
		}
		break
	}
	return state
}

// RulesetState dumps the managed mangle table. A non-zero exit from nft
// means the table does not exist, which is valid prior state, not an error.
func (s *LiveState) RulesetState(ctx context.Context) (*FirewallState, error) {
	result, err := s.exec.Run(ctx, []string{"nft", "list", "table", "ip", "mangle"}, s.timeout)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSnapshotFailed, "failed to dump firewall ruleset", err)
	}
	if !result.Ok() {
		return &FirewallState{Exists: false}, nil
	}
	return &FirewallState{Exists: true, Ruleset: result.Stdout}, nil
}

// offloadNames maps the short flag names the renderer uses to the long names
// `ethtool -k` prints.
var offloadNames = map[string]string{
	"generic-receive-offload":      "gro",
	"generic-segmentation-offload": "gso",
	"tcp-segmentation-offload":     "tso",
	"large-receive-offload":        "lro",
}

// OffloadFlags reads the current gro/gso/tso/lro states of iface.
func (s *LiveState) OffloadFlags(ctx context.Context, iface string) (map[string]bool, error) {
	result, err := s.exec.Run(ctx, []string{"ethtool", "-k", iface}, s.timeout)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSnapshotFailed, fmt.Sprintf("failed to read offload flags for %s", iface), err)
	}
	if !result.Ok() {
		return nil, errors.Newf(errors.ErrCodeSnapshotFailed, "ethtool -k %s exited %d: %s", iface, result.ExitCode, result.Output())
	}

	flags := make(map[string]bool)
	for _, line := range strings.Split(result.Stdout, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		long := strings.TrimSpace(parts[0])
		short, known := offloadNames[long]
		if !known {
			continue
		}
		value := strings.TrimSpace(parts[1])
		flags[short] = strings.HasPrefix(value, "on")
	}
	if len(flags) == 0 {
		return nil, errors.Newf(errors.ErrCodeSnapshotFailed, "ethtool -k %s output carried no recognized offload flags", iface)
	}
	return flags, nil
}

// LinkMTU reads the current MTU of iface via netlink.
func (s *LiveState) LinkMTU(iface string) (int, error) {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeSnapshotFailed, fmt.Sprintf("failed to read MTU of %s", iface), err)
	}
	return link.Attrs().MTU, nil
}
