package checkpoint

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/netwrench/netwrench/internal/catalog"
	gerrors "github.com/netwrench/netwrench/internal/errors"
	"github.com/netwrench/netwrench/internal/netstate"
	"github.com/netwrench/netwrench/internal/shell"
)

// fakeCollector serves canned subsystem state.
type fakeCollector struct {
	sysctl   map[string]string
	queueing *netstate.QdiscState
	firewall *netstate.FirewallState
	offloads map[string]bool
	mtu      int
	fail     error
}

func (c *fakeCollector) SysctlValues(ctx context.Context, keys []string) (map[string]string, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = c.sysctl[k]
	}
	return out, nil
}

func (c *fakeCollector) QdiscState(ctx context.Context, iface string) (*netstate.QdiscState, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	return c.queueing, nil
}

func (c *fakeCollector) RulesetState(ctx context.Context) (*netstate.FirewallState, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	return c.firewall, nil
}

func (c *fakeCollector) OffloadFlags(ctx context.Context, iface string) (map[string]bool, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	return c.offloads, nil
}

func (c *fakeCollector) LinkMTU(iface string) (int, error) {
	if c.fail != nil {
		return 0, c.fail
	}
	return c.mtu, nil
}

// recordingRunner logs every command; failOn makes matching argvs exit 1.
type recordingRunner struct {
	calls  [][]string
	failOn func(argv []string) bool
}

func (r *recordingRunner) Run(ctx context.Context, argv []string, timeout time.Duration) (*shell.Result, error) {
	r.calls = append(r.calls, argv)
	if r.failOn != nil && r.failOn(argv) {
		return &shell.Result{Argv: argv, ExitCode: 1, Stderr: "scripted failure"}, nil
	}
	return &shell.Result{Argv: argv}, nil
}

func defaultCollector() *fakeCollector {
	return &fakeCollector{
		sysctl: map[string]string{
			"net.ipv4.tcp_congestion_control": "cubic",
			"net.core.rmem_max":               "212992",
		},
		queueing: &netstate.QdiscState{
			Dump:       "qdisc fq 8001: root refcnt 2 limit 10000p\n",
			RootKind:   "fq",
			RootParams: []string{"limit", "10000p"},
			Explicit:   true,
		},
		firewall: &netstate.FirewallState{Exists: false},
		offloads: map[string]bool{"gro": true, "gso": true, "tso": true, "lro": false},
		mtu:      1500,
	}
}

func newTestStore(t *testing.T, state Collector, exec shell.Runner) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "checkpoints.db"), state, exec)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func fullTestScope() Scope {
	return FullScope("eth0", []string{"net.ipv4.tcp_congestion_control", "net.core.rmem_max"})
}

func TestSnapshotAndGet(t *testing.T) {
	store := newTestStore(t, defaultCollector(), &recordingRunner{})
	ctx := context.Background()

	cp, err := store.Snapshot(ctx, fullTestScope(), "before tuning")
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if cp.ID == "" || cp.Interface != "eth0" || cp.Label != "before tuning" {
		t.Errorf("checkpoint = %+v", cp)
	}

	got, err := store.Get(ctx, cp.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Snapshots.Sysctl["net.ipv4.tcp_congestion_control"] != "cubic" {
		t.Errorf("sysctl snapshot = %v", got.Snapshots.Sysctl)
	}
	if got.Snapshots.Queueing == nil || got.Snapshots.Queueing.RootKind != "fq" {
		t.Errorf("queueing snapshot = %+v", got.Snapshots.Queueing)
	}
	if got.Snapshots.MTU == nil || *got.Snapshots.MTU != 1500 {
		t.Errorf("mtu snapshot = %v", got.Snapshots.MTU)
	}
	if got.Snapshots.Firewall == nil || got.Snapshots.Firewall.Exists {
		t.Errorf("firewall snapshot = %+v", got.Snapshots.Firewall)
	}
}

func TestGetUnknownIDIsNotFound(t *testing.T) {
	store := newTestStore(t, defaultCollector(), &recordingRunner{})
	_, err := store.Get(context.Background(), "no-such-id")
	if gerrors.CodeOf(err) != gerrors.ErrCodeNotFound {
		t.Fatalf("error code = %v, want NOT_FOUND", gerrors.CodeOf(err))
	}
}

func TestSnapshotScopedToCommandSet(t *testing.T) {
	store := newTestStore(t, defaultCollector(), &recordingRunner{})

	scope := Scope{
		Interface:  "eth0",
		Subsystems: []catalog.Category{catalog.CategoryKernelParameter},
		SysctlKeys: []string{"net.core.rmem_max"},
	}
	cp, err := store.Snapshot(context.Background(), scope, "")
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	if cp.Snapshots.Queueing != nil || cp.Snapshots.Firewall != nil ||
		cp.Snapshots.Offloads != nil || cp.Snapshots.MTU != nil {
		t.Errorf("out-of-scope subsystems captured: %+v", cp.Snapshots)
	}
	if !reflect.DeepEqual(cp.Snapshots.Sysctl, map[string]string{"net.core.rmem_max": "212992"}) {
		t.Errorf("sysctl snapshot = %v", cp.Snapshots.Sysctl)
	}
}

func TestSnapshotFailureWritesNothing(t *testing.T) {
	state := defaultCollector()
	state.fail = gerrors.New(gerrors.ErrCodeSnapshotFailed, "proc unreadable")
	store := newTestStore(t, state, &recordingRunner{})
	ctx := context.Background()

	if _, err := store.Snapshot(ctx, fullTestScope(), ""); gerrors.CodeOf(err) != gerrors.ErrCodeSnapshotFailed {
		t.Fatalf("error code = %v, want SNAPSHOT_FAILED", gerrors.CodeOf(err))
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d after failed snapshot, want 0", count)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t, defaultCollector(), &recordingRunner{})
	ctx := context.Background()

	first, _ := store.Snapshot(ctx, fullTestScope(), "first")
	time.Sleep(5 * time.Millisecond)
	second, _ := store.Snapshot(ctx, fullTestScope(), "second")

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("order = [%s %s], want newest first", list[0].Label, list[1].Label)
	}
	for _, cp := range list {
		if len(cp.Snapshots.Sysctl) == 0 {
			t.Errorf("listed checkpoint %s has no decoded snapshots", cp.ID)
		}
	}
}

func TestDeleteAndNotFound(t *testing.T) {
	store := newTestStore(t, defaultCollector(), &recordingRunner{})
	ctx := context.Background()

	cp, _ := store.Snapshot(ctx, fullTestScope(), "")
	if err := store.Delete(ctx, cp.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := store.Delete(ctx, cp.ID); gerrors.CodeOf(err) != gerrors.ErrCodeNotFound {
		t.Fatalf("second delete code = %v, want NOT_FOUND", gerrors.CodeOf(err))
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	store := newTestStore(t, defaultCollector(), &recordingRunner{})
	ctx := context.Background()

	var last *Checkpoint
	for i := 0; i < 5; i++ {
		last, _ = store.Snapshot(ctx, fullTestScope(), "")
		time.Sleep(2 * time.Millisecond)
	}

	removed, err := store.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}

	list, _ := store.List(ctx)
	if len(list) != 2 || list[0].ID != last.ID {
		t.Errorf("prune kept the wrong records")
	}
}

func TestRestoreReplaysPriorState(t *testing.T) {
	runner := &recordingRunner{}
	store := newTestStore(t, defaultCollector(), runner)
	ctx := context.Background()

	cp, err := store.Snapshot(ctx, fullTestScope(), "")
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	outcome, err := store.Restore(ctx, cp.ID)
	if err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}
	if !outcome.OK {
		t.Fatalf("outcome = %+v", outcome)
	}

	var commands []string
	for _, argv := range runner.calls {
		commands = append(commands, strings.Join(argv, " "))
	}

	// Reverse apply order: link, nic, firewall, queueing, kernel parameters.
	want := []string{
		"ip link set dev eth0 mtu 1500",
		"ethtool -K eth0 gro on",
		"ethtool -K eth0 gso on",
		"ethtool -K eth0 tso on",
		"ethtool -K eth0 lro off",
		"nft delete table ip mangle",
		"tc qdisc del dev eth0 root",
		"tc qdisc add dev eth0 root fq limit 10000p",
		"sysctl -w net.core.rmem_max=212992",
		"sysctl -w net.ipv4.tcp_congestion_control=cubic",
	}
	if !reflect.DeepEqual(commands, want) {
		t.Errorf("restore commands:\n%s\nwant:\n%s",
			strings.Join(commands, "\n"), strings.Join(want, "\n"))
	}
}

func TestRestoreImplicitRootIsNotReinstalled(t *testing.T) {
	state := defaultCollector()
	state.queueing = &netstate.QdiscState{
		Dump:     "qdisc fq_codel 0: root refcnt 2 limit 10240p\n",
		RootKind: "fq_codel",
		Explicit: false,
	}
	runner := &recordingRunner{}
	store := newTestStore(t, state, runner)
	ctx := context.Background()

	cp, _ := store.Snapshot(ctx, Scope{
		Interface:  "eth0",
		Subsystems: []catalog.Category{catalog.CategoryQueueing},
	}, "")

	if _, err := store.Restore(ctx, cp.ID); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}

	for _, argv := range runner.calls {
		if strings.Contains(strings.Join(argv, " "), "qdisc add") {
			t.Errorf("kernel-default root must not be re-installed, got %v", argv)
		}
	}
}

func TestRestoreSavedRulesetReloadsAtomically(t *testing.T) {
	saved := "table ip mangle {\n\tchain postrouting {\n\t\ttype filter hook postrouting priority -150; policy accept;\n\t}\n}\n"
	state := defaultCollector()
	state.firewall = &netstate.FirewallState{Exists: true, Ruleset: saved}
	runner := &recordingRunner{}
	store := newTestStore(t, state, runner)
	ctx := context.Background()

	cp, _ := store.Snapshot(ctx, Scope{
		Interface:  "eth0",
		Subsystems: []catalog.Category{catalog.CategoryFirewall},
	}, "")

	outcome, err := store.Restore(ctx, cp.ID)
	if err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}
	if !outcome.OK {
		t.Fatalf("outcome = %+v", outcome)
	}

	// The saved dump loads through the check-then-load nft sequence.
	if len(runner.calls) != 2 || runner.calls[0][1] != "-c" || runner.calls[1][1] != "-f" {
		t.Fatalf("calls = %v, want nft -c -f then nft -f", runner.calls)
	}
}

func TestRestoreFailureIsRollbackFailed(t *testing.T) {
	runner := &recordingRunner{failOn: func(argv []string) bool {
		return argv[0] == "ethtool"
	}}
	store := newTestStore(t, defaultCollector(), runner)
	ctx := context.Background()

	cp, _ := store.Snapshot(ctx, fullTestScope(), "")

	outcome, err := store.Restore(ctx, cp.ID)
	if gerrors.CodeOf(err) != gerrors.ErrCodeRollbackFailed {
		t.Fatalf("error code = %v, want ROLLBACK_FAILED", gerrors.CodeOf(err))
	}
	if outcome == nil || outcome.OK {
		t.Fatalf("outcome = %+v", outcome)
	}
	failed := outcome.Notes[len(outcome.Notes)-1]
	if failed.OK || !strings.Contains(failed.Detail, "scripted failure") {
		t.Errorf("failing note = %+v", failed)
	}
}

func TestRestoreToleratesBestEffortFailures(t *testing.T) {
	runner := &recordingRunner{failOn: func(argv []string) bool {
		// Both the table delete and the qdisc del are best-effort.
		return argv[0] == "nft" || (argv[0] == "tc" && argv[2] == "del")
	}}
	store := newTestStore(t, defaultCollector(), runner)
	ctx := context.Background()

	cp, _ := store.Snapshot(ctx, fullTestScope(), "")

	outcome, err := store.Restore(ctx, cp.ID)
	if err != nil {
		t.Fatalf("best-effort failures must not fail restore: %v", err)
	}
	tolerated := 0
	for _, note := range outcome.Notes {
		if strings.HasPrefix(note.Detail, "tolerated:") {
			tolerated++
		}
	}
	if tolerated != 2 {
		t.Errorf("tolerated = %d, want 2 (table delete, qdisc del)", tolerated)
	}
}
