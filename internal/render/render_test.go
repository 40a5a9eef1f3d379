package render

import (
	"reflect"
	"strings"
	"testing"

	"github.com/netwrench/netwrench/internal/catalog"
	gerrors "github.com/netwrench/netwrench/internal/errors"
	"github.com/netwrench/netwrench/internal/plan"
)

// validPlan runs a change request through the real validator so the plan
// carries the validated marker. nil prober skips interface probing.
func validPlan(t *testing.T, req *plan.ChangeRequest) *plan.NormalizedPlan {
	t.Helper()
	cat, err := catalog.LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded() failed: %v", err)
	}
	result := plan.NewValidator(cat, nil).Validate(req)
	if !result.OK {
		t.Fatalf("fixture request failed validation: %v", result.Issues)
	}
	return result.Plan
}

func intp(n int) *int { return &n }

func boolp(b bool) *bool { return &b }

func argvs(cs *CommandSet) [][]string {
	var out [][]string
	for _, step := range cs.Steps {
		if step.Argv != nil {
			out = append(out, step.Argv)
		}
	}
	return out
}

func TestRenderRejectsUnvalidatedPlan(t *testing.T) {
	_, err := Render(&plan.NormalizedPlan{Interface: "eth0"})
	if gerrors.CodeOf(err) != gerrors.ErrCodePlanInvariant {
		t.Fatalf("error code = %v, want PLAN_INVARIANT", gerrors.CodeOf(err))
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	req := &plan.ChangeRequest{
		Interface: "eth0",
		Changes: plan.Changes{
			Sysctl: map[string]string{
				"net.ipv4.tcp_congestion_control": "bbr",
				"net.core.rmem_max":               "16777216",
				"net.core.wmem_max":               "16777216",
			},
			Qdisc: &plan.QdiscSpec{Type: "fq"},
			MTU:   1500,
		},
	}

	first, err := Render(validPlan(t, req))
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	second, err := Render(validPlan(t, req))
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if first.Script() != second.Script() {
		t.Errorf("renders differ:\n%s\n--\n%s", first.Script(), second.Script())
	}
}

func TestRenderCongestionAndQdisc(t *testing.T) {
	p := validPlan(t, &plan.ChangeRequest{
		Interface: "wan0",
		Changes: plan.Changes{
			Sysctl: map[string]string{"net.ipv4.tcp_congestion_control": "bbr"},
			Qdisc:  &plan.QdiscSpec{Type: "fq"},
		},
	})

	cs, err := Render(p)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	want := [][]string{
		{"sysctl", "-w", "net.ipv4.tcp_congestion_control=bbr"},
		{"tc", "qdisc", "del", "dev", "wan0", "root"},
		{"tc", "qdisc", "add", "dev", "wan0", "root", "fq"},
	}
	if got := argvs(cs); !reflect.DeepEqual(got, want) {
		t.Errorf("argvs = %v, want %v", got, want)
	}
	if !cs.Steps[1].BestEffort {
		t.Error("qdisc removal must be best-effort")
	}
	if !cs.Touches(catalog.CategoryKernelParameter) || !cs.Touches(catalog.CategoryQueueing) {
		t.Errorf("touched = %v", cs.Touched)
	}
	if !reflect.DeepEqual(cs.SysctlKeys, []string{"net.ipv4.tcp_congestion_control"}) {
		t.Errorf("sysctl keys = %v", cs.SysctlKeys)
	}
}

func TestRenderSysctlKeysSorted(t *testing.T) {
	p := validPlan(t, &plan.ChangeRequest{
		Interface: "eth0",
		Changes: plan.Changes{
			Sysctl: map[string]string{
				"net.ipv4.tcp_mtu_probing": "1",
				"net.core.rmem_max":        "8388608",
				"net.ipv4.tcp_fastopen":    "3",
			},
		},
	})

	cs, err := Render(p)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	want := []string{"net.core.rmem_max", "net.ipv4.tcp_fastopen", "net.ipv4.tcp_mtu_probing"}
	if !reflect.DeepEqual(cs.SysctlKeys, want) {
		t.Errorf("sysctl keys = %v, want %v", cs.SysctlKeys, want)
	}
}

func TestRenderCakeWithShaper(t *testing.T) {
	p := validPlan(t, &plan.ChangeRequest{
		Interface: "eth0",
		Changes: plan.Changes{
			Qdisc:  &plan.QdiscSpec{Type: "cake", RTTUs: intp(20000), Diffserv: "diffserv4"},
			Shaper: &plan.ShaperSpec{EgressMbit: intp(100)},
		},
	})

	cs, err := Render(p)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	want := []string{"tc", "qdisc", "add", "dev", "eth0", "root", "cake",
		"bandwidth", "100mbit", "rtt", "20000us", "diffserv4"}
	if got := cs.Steps[1].Argv; !reflect.DeepEqual(got, want) {
		t.Errorf("cake argv = %v, want %v", got, want)
	}
}

func TestRenderFqCodelParams(t *testing.T) {
	p := validPlan(t, &plan.ChangeRequest{
		Interface: "eth0",
		Changes: plan.Changes{
			Qdisc: &plan.QdiscSpec{Type: "fq_codel", Limit: intp(10240), TargetUs: intp(4000), IntervalUs: intp(80000)},
		},
	})

	cs, err := Render(p)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	want := []string{"tc", "qdisc", "add", "dev", "eth0", "root", "fq_codel",
		"limit", "10240", "target", "4000us", "interval", "80000us"}
	if got := cs.Steps[1].Argv; !reflect.DeepEqual(got, want) {
		t.Errorf("fq_codel argv = %v, want %v", got, want)
	}
}

func TestRenderHTBTree(t *testing.T) {
	p := validPlan(t, &plan.ChangeRequest{
		Interface: "eth0",
		Changes: plan.Changes{
			Qdisc:  &plan.QdiscSpec{Type: "htb"},
			Shaper: &plan.ShaperSpec{EgressMbit: intp(80), CeilMbit: intp(100)},
		},
	})

	cs, err := Render(p)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	want := [][]string{
		{"tc", "qdisc", "del", "dev", "eth0", "root"},
		{"tc", "qdisc", "add", "dev", "eth0", "root", "handle", "1:", "htb", "default", "30"},
		{"tc", "class", "add", "dev", "eth0", "parent", "1:", "classid", "1:1", "htb", "rate", "80mbit", "ceil", "100mbit"},
		{"tc", "class", "add", "dev", "eth0", "parent", "1:1", "classid", "1:30", "htb", "rate", "80mbit", "ceil", "100mbit"},
		{"tc", "qdisc", "add", "dev", "eth0", "parent", "1:30", "fq_codel"},
	}
	if got := argvs(cs); !reflect.DeepEqual(got, want) {
		t.Errorf("htb argvs = %v, want %v", got, want)
	}
}

func TestRenderDSCPRuleset(t *testing.T) {
	p := validPlan(t, &plan.ChangeRequest{
		Interface: "eth0",
		Changes: plan.Changes{
			DSCP: []plan.DSCPRule{
				{DSCP: "EF", Match: plan.DSCPMatch{Proto: "udp", DPorts: []int{5060, 5061}}},
				{DSCP: "CS6", Match: plan.DSCPMatch{Proto: "tcp", Dst: "192.0.2.0/24", DPorts: []int{22}}},
			},
		},
	})

	cs, err := Render(p)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if len(cs.Steps) != 1 || cs.Steps[0].Ruleset == "" {
		t.Fatalf("expected a single ruleset step, got %+v", cs.Steps)
	}

	doc := cs.Steps[0].Ruleset
	for _, fragment := range []string{
		"table ip mangle {}",
		"flush table ip mangle",
		"type filter hook postrouting priority -150; policy accept;",
		`oifname "eth0" meta l4proto udp udp dport { 5060, 5061 } ip dscp set ef counter`,
		`oifname "eth0" meta l4proto tcp ip daddr 192.0.2.0/24 tcp dport 22 ip dscp set cs6 counter`,
	} {
		if !strings.Contains(doc, fragment) {
			t.Errorf("ruleset missing %q:\n%s", fragment, doc)
		}
	}
	if cs.Steps[0].Command() != "nft -f <ruleset>" {
		t.Errorf("ruleset display = %q", cs.Steps[0].Command())
	}
}

func TestRenderOffloadsFixedOrder(t *testing.T) {
	p := validPlan(t, &plan.ChangeRequest{
		Interface: "eth0",
		Changes: plan.Changes{
			Offloads: &plan.OffloadSpec{LRO: boolp(false), GRO: boolp(true), TSO: boolp(true)},
		},
	})

	cs, err := Render(p)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	want := [][]string{
		{"ethtool", "-K", "eth0", "gro", "on"},
		{"ethtool", "-K", "eth0", "tso", "on"},
		{"ethtool", "-K", "eth0", "lro", "off"},
	}
	if got := argvs(cs); !reflect.DeepEqual(got, want) {
		t.Errorf("offload argvs = %v, want %v", got, want)
	}
}

func TestRenderMTULast(t *testing.T) {
	p := validPlan(t, &plan.ChangeRequest{
		Interface: "eth0",
		Changes: plan.Changes{
			Sysctl:   map[string]string{"net.ipv4.ip_forward": "1"},
			Qdisc:    &plan.QdiscSpec{Type: "fq"},
			Offloads: &plan.OffloadSpec{GRO: boolp(true)},
			MTU:      9000,
		},
	})

	cs, err := Render(p)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	last := cs.Steps[len(cs.Steps)-1]
	want := []string{"ip", "link", "set", "dev", "eth0", "mtu", "9000"}
	if !reflect.DeepEqual(last.Argv, want) {
		t.Errorf("last step = %v, want %v", last.Argv, want)
	}
}
