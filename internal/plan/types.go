// Package plan defines the change-request model and the validator that turns
// a raw request into a normalized, fully-typed plan ready for rendering.
package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// QdiscSpec requests a root queueing discipline. Parameter fields apply only
// to the matching discipline type; the validator rejects mismatches.
type QdiscSpec struct {
	// Type is one of cake, fq_codel, htb, fq.
	Type string `json:"type" validate:"required"`
	// RTTUs is the CAKE round-trip estimate in microseconds.
	RTTUs *int `json:"rtt_us,omitempty"`
	// Diffserv is the CAKE priority-tier mode.
	Diffserv string `json:"diffserv,omitempty"`
	// Limit is the FQ-CoDel hard queue limit in packets.
	Limit *int `json:"limit,omitempty"`
	// TargetUs is the FQ-CoDel target delay in microseconds.
	TargetUs *int `json:"target_us,omitempty"`
	// IntervalUs is the FQ-CoDel measurement window in microseconds.
	IntervalUs *int `json:"interval_us,omitempty"`
}

// ShaperSpec requests bandwidth shaping in mbit/s.
type ShaperSpec struct {
	EgressMbit  *int `json:"egress_mbit,omitempty"`
	IngressMbit *int `json:"ingress_mbit,omitempty"`
	CeilMbit    *int `json:"ceil_mbit,omitempty"`
}

// OffloadSpec requests NIC offload flag changes. Nil fields are untouched.
type OffloadSpec struct {
	GRO *bool `json:"gro,omitempty"`
	GSO *bool `json:"gso,omitempty"`
	TSO *bool `json:"tso,omitempty"`
	LRO *bool `json:"lro,omitempty"`
}

// DSCPMatch selects traffic for a DSCP marking rule.
type DSCPMatch struct {
	Proto  string `json:"proto,omitempty"`
	Src    string `json:"src,omitempty" validate:"omitempty,cidr"`
	Dst    string `json:"dst,omitempty" validate:"omitempty,cidr"`
	SPorts []int  `json:"sports,omitempty" validate:"dive,min=1,max=65535"`
	DPorts []int  `json:"dports,omitempty" validate:"dive,min=1,max=65535"`
}

// DSCPRule marks matching traffic with a DSCP class.
type DSCPRule struct {
	Match DSCPMatch `json:"match"`
	DSCP  string    `json:"dscp" validate:"required"`
}

// Changes carries one typed field per parameter category. The set of
// categories is closed; adding one is a compile-time exercise.
type Changes struct {
	// Sysctl maps kernel parameter keys to requested values.
	Sysctl map[string]string `json:"sysctl,omitempty"`
	// Qdisc and Shaper cover the queueing category.
	Qdisc  *QdiscSpec  `json:"qdisc,omitempty"`
	Shaper *ShaperSpec `json:"shaper,omitempty"`
	// DSCP covers the firewall category.
	DSCP []DSCPRule `json:"dscp,omitempty" validate:"dive"`
	// Offloads covers the nic category.
	Offloads *OffloadSpec `json:"offloads,omitempty"`
	// MTU covers the link category. Zero means unchanged.
	MTU int `json:"mtu,omitempty"`
}

// Empty reports whether the change set requests nothing.
func (c *Changes) Empty() bool {
	return len(c.Sysctl) == 0 && c.Qdisc == nil && c.Shaper == nil &&
		len(c.DSCP) == 0 && c.Offloads == nil && c.MTU == 0
}

// ChangeRequest is the caller's raw intent: a target interface, an optional
// profile supplying defaults, and the requested changes.
type ChangeRequest struct {
	Interface string   `json:"iface" validate:"required,iface_name"`
	Profile   string   `json:"profile,omitempty"`
	Changes   Changes  `json:"changes"`
	Rationale []string `json:"rationale,omitempty"`
}

// DecodeRequest parses a JSON change request, rejecting unknown fields so a
// mistyped key surfaces as an error instead of being silently dropped.
func DecodeRequest(r io.Reader) (*ChangeRequest, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var req ChangeRequest
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to decode change request: %w", err)
	}
	return &req, nil
}

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue describes one problem found in a change request.
type ValidationIssue struct {
	// Path is the dotted location within the request, e.g. "changes.mtu".
	Path     string   `json:"path"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	// Code is the machine-readable issue kind, e.g. OUT_OF_POLICY.
	Code string `json:"code"`
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Path, i.Message)
}

// ValidationResult is the outcome of validating a change request. Plan is
// set only when no error-severity issues were found.
type ValidationResult struct {
	OK     bool              `json:"ok"`
	Issues []ValidationIssue `json:"issues"`
	Plan   *NormalizedPlan   `json:"normalized_plan,omitempty"`
}

// Errors returns only the error-severity issues.
func (r *ValidationResult) Errors() []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}

// Summary renders the issues as one line per issue for CLI output.
func (r *ValidationResult) Summary() string {
	var sb strings.Builder
	for _, issue := range r.Issues {
		sb.WriteString(issue.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// NormalizedPlan is a change request with every value coerced to its declared
// type and profile defaults merged in. Only the validator can produce one;
// it is immutable by convention afterward.
type NormalizedPlan struct {
	Interface string   `json:"iface"`
	Profile   string   `json:"profile,omitempty"`
	Changes   Changes  `json:"changes"`
	Rationale []string `json:"rationale,omitempty"`

	validated bool
}

// Validated reports whether the plan was produced by the validator. The
// renderer refuses plans without the marker.
func (p *NormalizedPlan) Validated() bool {
	return p != nil && p.validated
}
