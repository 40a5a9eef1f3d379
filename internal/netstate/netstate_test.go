package netstate

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	gerrors "github.com/netwrench/netwrench/internal/errors"
	"github.com/netwrench/netwrench/internal/shell"
)

// scriptedRunner returns a fixed result per leading command word.
type scriptedRunner struct {
	results map[string]*shell.Result
}

func (r *scriptedRunner) Run(ctx context.Context, argv []string, timeout time.Duration) (*shell.Result, error) {
	if res, ok := r.results[argv[0]]; ok {
		return res, nil
	}
	return &shell.Result{Argv: argv}, nil
}

func TestParseQdiscDump(t *testing.T) {
	tests := []struct {
		name       string
		dump       string
		wantKind   string
		wantParams []string
		explicit   bool
	}{
		{
			name:       "explicit cake root",
			dump:       "qdisc cake 8001: root refcnt 2 bandwidth 100Mbit diffserv4 triple-isolate nonat\n",
			wantKind:   "cake",
			wantParams: []string{"bandwidth", "100Mbit", "diffserv4", "triple-isolate", "nonat"},
			explicit:   true,
		},
		{
			name:     "kernel default root",
			dump:     "qdisc fq_codel 0: root refcnt 2 limit 10240p flows 1024\n",
			wantKind: "fq_codel",
			explicit: false,
		},
		{
			name: "htb root with leaves",
			dump: "qdisc htb 1: root refcnt 2 r2q 10 default 0x30 direct_packets_stat 0\n" +
				"qdisc fq_codel 8002: parent 1:30 limit 10240p\n",
			wantKind:   "htb",
			wantParams: []string{"r2q", "10", "default", "0x30", "direct_packets_stat", "0"},
			explicit:   true,
		},
		{
			name:     "no root line",
			dump:     "qdisc clsact ffff: parent ffff:fff1\n",
			wantKind: "",
		},
		{
			name:     "empty dump",
			dump:     "",
			wantKind: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := parseQdiscDump(tt.dump)
			if state.RootKind != tt.wantKind {
				t.Errorf("RootKind = %q, want %q", state.RootKind, tt.wantKind)
			}
			if state.Explicit != tt.explicit {
				t.Errorf("Explicit = %v, want %v", state.Explicit, tt.explicit)
			}
			if tt.wantParams != nil && !reflect.DeepEqual(state.RootParams, tt.wantParams) {
				t.Errorf("RootParams = %v, want %v", state.RootParams, tt.wantParams)
			}
			if state.Dump != tt.dump {
				t.Error("Dump must carry the verbatim output")
			}
		})
	}
}

func TestSysctlValues(t *testing.T) {
	root := t.TempDir()
	write := func(key, content string) {
		path := filepath.Join(root, "sys", filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("net/ipv4/tcp_congestion_control", "bbr\n")
	write("net/ipv4/tcp_rmem", "4096\t87380\t6291456\n")

	s := NewLiveState(nil, 0).WithProcRoot(root)

	values, err := s.SysctlValues(context.Background(),
		[]string{"net.ipv4.tcp_congestion_control", "net.ipv4.tcp_rmem"})
	if err != nil {
		t.Fatalf("SysctlValues() failed: %v", err)
	}
	want := map[string]string{
		"net.ipv4.tcp_congestion_control": "bbr",
		"net.ipv4.tcp_rmem":               "4096 87380 6291456",
	}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("values = %v, want %v", values, want)
	}
}

func TestSysctlValuesMissingKeyFailsWhole(t *testing.T) {
	s := NewLiveState(nil, 0).WithProcRoot(t.TempDir())

	_, err := s.SysctlValues(context.Background(), []string{"net.ipv4.tcp_fastopen"})
	if gerrors.CodeOf(err) != gerrors.ErrCodeSnapshotFailed {
		t.Fatalf("error code = %v, want SNAPSHOT_FAILED", gerrors.CodeOf(err))
	}
}

func TestQdiscState(t *testing.T) {
	runner := &scriptedRunner{results: map[string]*shell.Result{
		"tc": {Stdout: "qdisc cake 8001: root refcnt 2 bandwidth 100Mbit diffserv4\n"},
	}}
	s := NewLiveState(runner, 0)

	state, err := s.QdiscState(context.Background(), "eth0")
	if err != nil {
		t.Fatalf("QdiscState() failed: %v", err)
	}
	if state.RootKind != "cake" || !state.Explicit {
		t.Errorf("state = %+v", state)
	}
}

func TestRulesetStateAbsentTable(t *testing.T) {
	runner := &scriptedRunner{results: map[string]*shell.Result{
		"nft": {ExitCode: 1, Stderr: "Error: No such file or directory"},
	}}
	s := NewLiveState(runner, 0)

	state, err := s.RulesetState(context.Background())
	if err != nil {
		t.Fatalf("a missing table is valid prior state, got error: %v", err)
	}
	if state.Exists {
		t.Error("Exists = true for a missing table")
	}
}

func TestRulesetStatePresentTable(t *testing.T) {
	dump := "table ip mangle {\n\tchain postrouting {\n\t}\n}\n"
	runner := &scriptedRunner{results: map[string]*shell.Result{
		"nft": {Stdout: dump},
	}}
	s := NewLiveState(runner, 0)

	state, err := s.RulesetState(context.Background())
	if err != nil {
		t.Fatalf("RulesetState() failed: %v", err)
	}
	if !state.Exists || state.Ruleset != dump {
		t.Errorf("state = %+v", state)
	}
}

func TestOffloadFlags(t *testing.T) {
	out := `Features for eth0:
rx-checksumming: on
generic-receive-offload: on
generic-segmentation-offload: on
tcp-segmentation-offload: off
large-receive-offload: off [fixed]
rx-vlan-offload: on
`
	runner := &scriptedRunner{results: map[string]*shell.Result{
		"ethtool": {Stdout: out},
	}}
	s := NewLiveState(runner, 0)

	flags, err := s.OffloadFlags(context.Background(), "eth0")
	if err != nil {
		t.Fatalf("OffloadFlags() failed: %v", err)
	}
	want := map[string]bool{"gro": true, "gso": true, "tso": false, "lro": false}
	if !reflect.DeepEqual(flags, want) {
		t.Errorf("flags = %v, want %v", flags, want)
	}
}

func TestOffloadFlagsUnrecognizedOutput(t *testing.T) {
	runner := &scriptedRunner{results: map[string]*shell.Result{
		"ethtool": {Stdout: "no flags here\n"},
	}}
	s := NewLiveState(runner, 0)

	_, err := s.OffloadFlags(context.Background(), "eth0")
	if gerrors.CodeOf(err) != gerrors.ErrCodeSnapshotFailed {
		t.Fatalf("error code = %v, want SNAPSHOT_FAILED", gerrors.CodeOf(err))
	}
}
