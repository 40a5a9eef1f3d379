package plan

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/netwrench/netwrench/internal/catalog"
	"github.com/netwrench/netwrench/internal/discovery"
	"github.com/netwrench/netwrench/internal/errors"
)

var (
	validate  *validator.Validate
	ifaceName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]{0,14}$`)
)

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("iface_name", func(fl validator.FieldLevel) bool {
		return ifaceName.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	// Issue paths use the JSON field names the caller wrote.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validator checks change requests against the policy catalog and produces
// normalized plans. It is stateless and safe for concurrent use.
type Validator struct {
	catalog *catalog.Catalog
	prober  discovery.Prober
}

// NewValidator builds a validator over the given catalog. prober supplies
// interface-existence checks; a nil prober skips them (tests, render-only
// paths where the interface is known to exist).
func NewValidator(cat *catalog.Catalog, prober discovery.Prober) *Validator {
	return &Validator{catalog: cat, prober: prober}
}

type issueList struct {
	issues []ValidationIssue
}

func (l *issueList) errorf(path, code, format string, args ...interface{}) {
	l.issues = append(l.issues, ValidationIssue{
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityError,
		Code:     code,
	})
}

func (l *issueList) warnf(path, code, format string, args ...interface{}) {
	l.issues = append(l.issues, ValidationIssue{
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityWarning,
		Code:     code,
	})
}

func (l *issueList) catalogIssue(path string, err error) {
	l.errorf(path, string(errors.CodeOf(err)), "%s", issueMessage(err))
}

func (l *issueList) hasErrors() bool {
	for _, issue := range l.issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// issueMessage strips the [CODE] prefix a domain error carries; the code is
// reported separately on the issue.
func issueMessage(err error) string {
	if e, ok := err.(*errors.Error); ok {
		return e.Message
	}
	return err.Error()
}

// Validate checks req and, when no error-severity issues are found, returns
// a normalized plan with profile defaults merged and values coerced to their
// declared types. It never mutates req and has no side effects.
func (v *Validator) Validate(req *ChangeRequest) *ValidationResult {
	issues := &issueList{}

	if req == nil {
		issues.errorf("", string(errors.ErrCodeTypeMismatch), "request is empty")
		return &ValidationResult{OK: false, Issues: issues.issues}
	}

	v.checkStructure(req, issues)
	if issues.hasErrors() {
		return &ValidationResult{OK: false, Issues: issues.issues}
	}

	// Work on a merged copy so profile defaults are validated the same way
	// as caller-supplied values.
	merged := *req
	merged.Changes = req.Changes
	if req.Profile != "" {
		profile := v.catalog.Profile(req.Profile)
		if profile == nil {
			issues.errorf("profile", string(errors.ErrCodeOutOfPolicy), "unknown profile %q", req.Profile)
			return &ValidationResult{OK: false, Issues: issues.issues}
		}
		v.mergeProfile(&merged, profile)
	}

	if merged.Changes.Empty() {
		issues.errorf("changes", string(errors.ErrCodeOutOfPolicy), "change set is empty: nothing to apply")
		return &ValidationResult{OK: false, Issues: issues.issues}
	}

	if v.prober != nil {
		exists, err := v.prober.Exists(merged.Interface)
		if err != nil {
			issues.errorf("iface", string(errors.ErrCodeUnknownInterface), "failed to probe interface %s: %v", merged.Interface, err)
		} else if !exists {
			issues.errorf("iface", string(errors.ErrCodeUnknownInterface), "interface %s does not exist", merged.Interface)
		}
	}

	normalized := v.normalizeChanges(&merged, issues)

	// Normalization can fold no-op sub-objects away; what is left must still
	// request something, or the renderer would have nothing to emit.
	if !issues.hasErrors() && normalized.Empty() {
		issues.errorf("changes", string(errors.ErrCodeOutOfPolicy), "change set requests no applicable change")
	}

	// Cross-field predicates run only once per-field checks pass.
	if !issues.hasErrors() {
		v.runPredicates(normalized, issues)
	}

	if issues.hasErrors() {
		return &ValidationResult{OK: false, Issues: issues.issues}
	}

	plan := &NormalizedPlan{
		Interface: merged.Interface,
		Profile:   merged.Profile,
		Changes:   *normalized,
		Rationale: append([]string(nil), merged.Rationale...),
		validated: true,
	}
	return &ValidationResult{OK: true, Issues: issues.issues, Plan: plan}
}

// checkStructure runs the validator/v10 tag checks and converts field errors
// into issues.
func (v *Validator) checkStructure(req *ChangeRequest, issues *issueList) {
	err := validate.Struct(req)
	if err == nil {
		return
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		issues.errorf("", string(errors.ErrCodeTypeMismatch), "invalid request: %v", err)
		return
	}
	for _, fe := range fieldErrs {
		// Namespace starts with the struct type name; drop it.
		path := fe.Namespace()
		if idx := strings.Index(path, "."); idx >= 0 {
			path = path[idx+1:]
		}
		switch fe.Tag() {
		case "required":
			issues.errorf(path, string(errors.ErrCodeTypeMismatch), "field is required")
		case "iface_name":
			issues.errorf(path, string(errors.ErrCodeUnknownInterface), "%q is not a valid interface name", fe.Value())
		case "cidr":
			issues.errorf(path, string(errors.ErrCodeTypeMismatch), "%q is not a valid CIDR", fe.Value())
		case "min", "max":
			issues.errorf(path, string(errors.ErrCodeOutOfPolicy), "value %v violates %s=%s", fe.Value(), fe.Tag(), fe.Param())
		default:
			issues.errorf(path, string(errors.ErrCodeTypeMismatch), "validation failed: %s", fe.Tag())
		}
	}
}

// mergeProfile fills change fields the request leaves unset from the
// profile's defaults. Caller-supplied values always win.
func (v *Validator) mergeProfile(req *ChangeRequest, profile *catalog.Profile) {
	changes := &req.Changes
	for _, d := range profile.Defaults {
		def := v.catalog.Lookup(d.Key)
		if def == nil {
			continue // rejected at catalog load; unreachable
		}
		switch def.Category {
		case catalog.CategoryKernelParameter:
			if _, ok := changes.Sysctl[d.Key]; ok {
				continue
			}
			// Copy on write so the caller's map is untouched.
			copied := make(map[string]string, len(changes.Sysctl)+1)
			for k, val := range changes.Sysctl {
				copied[k] = val
			}
			copied[d.Key] = d.Value
			changes.Sysctl = copied
		case catalog.CategoryQueueing:
			v.mergeQueueingDefault(changes, d.Key, d.Value)
		case catalog.CategoryLink:
			if d.Key == "link.mtu" && changes.MTU == 0 {
				if n, err := strconv.Atoi(d.Value); err == nil {
					changes.MTU = n
				}
			}
		case catalog.CategoryNIC:
			v.mergeOffloadDefault(changes, d.Key, d.Value)
		case catalog.CategoryFirewall:
			// Profiles do not contribute firewall rules; a marking rule
			// needs a traffic match only the caller can supply.
		}
	}
}

func (v *Validator) mergeQueueingDefault(changes *Changes, key, value string) {
	switch key {
	case "qdisc.type":
		if changes.Qdisc == nil {
			changes.Qdisc = &QdiscSpec{Type: value}
		}
	case "qdisc.cake.rtt_us":
		if changes.Qdisc != nil && changes.Qdisc.Type == "cake" && changes.Qdisc.RTTUs == nil {
			if n, err := strconv.Atoi(value); err == nil {
				q := *changes.Qdisc
				q.RTTUs = &n
				changes.Qdisc = &q
			}
		}
	case "qdisc.cake.diffserv":
		if changes.Qdisc != nil && changes.Qdisc.Type == "cake" && changes.Qdisc.Diffserv == "" {
			q := *changes.Qdisc
			q.Diffserv = value
			changes.Qdisc = &q
		}
	case "qdisc.fq_codel.limit":
		if changes.Qdisc != nil && changes.Qdisc.Type == "fq_codel" && changes.Qdisc.Limit == nil {
			if n, err := strconv.Atoi(value); err == nil {
				q := *changes.Qdisc
				q.Limit = &n
				changes.Qdisc = &q
			}
		}
	case "qdisc.fq_codel.target_us":
		if changes.Qdisc != nil && changes.Qdisc.Type == "fq_codel" && changes.Qdisc.TargetUs == nil {
			if n, err := strconv.Atoi(value); err == nil {
				q := *changes.Qdisc
				q.TargetUs = &n
				changes.Qdisc = &q
			}
		}
	case "qdisc.fq_codel.interval_us":
		if changes.Qdisc != nil && changes.Qdisc.Type == "fq_codel" && changes.Qdisc.IntervalUs == nil {
			if n, err := strconv.Atoi(value); err == nil {
				q := *changes.Qdisc
				q.IntervalUs = &n
				changes.Qdisc = &q
			}
		}
	case "shaper.egress_mbit", "shaper.ceil_mbit", "shaper.ingress_mbit":
		if changes.Shaper == nil {
			return // shaping defaults apply only when the caller asked to shape
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		s := *changes.Shaper
		switch key {
		case "shaper.egress_mbit":
			if s.EgressMbit == nil {
				s.EgressMbit = &n
			}
		case "shaper.ceil_mbit":
			if s.CeilMbit == nil {
				s.CeilMbit = &n
			}
		case "shaper.ingress_mbit":
			if s.IngressMbit == nil {
				s.IngressMbit = &n
			}
		}
		changes.Shaper = &s
	}
}

func (v *Validator) mergeOffloadDefault(changes *Changes, key, value string) {
	on := value == "true" || value == "on" || value == "1"
	if changes.Offloads == nil {
		changes.Offloads = &OffloadSpec{}
	}
	o := *changes.Offloads
	switch key {
	case "offload.gro":
		if o.GRO == nil {
			o.GRO = &on
		}
	case "offload.gso":
		if o.GSO == nil {
			o.GSO = &on
		}
	case "offload.tso":
		if o.TSO == nil {
			o.TSO = &on
		}
	case "offload.lro":
		if o.LRO == nil {
			o.LRO = &on
		}
	}
	changes.Offloads = &o
}

// normalizeChanges coerces every requested value through the catalog,
// returning a normalized copy. Issues are accumulated, not short-circuited,
// so the caller sees every problem in one pass.
func (v *Validator) normalizeChanges(req *ChangeRequest, issues *issueList) *Changes {
	out := Changes{MTU: req.Changes.MTU}

	if len(req.Changes.Sysctl) > 0 {
		out.Sysctl = make(map[string]string, len(req.Changes.Sysctl))
		for key, raw := range req.Changes.Sysctl {
			path := "changes.sysctl." + key
			def := v.catalog.Lookup(key)
			if def == nil {
				issues.errorf(path, string(errors.ErrCodeUnknownParameter), "unknown parameter %s not present in the policy catalog", key)
				continue
			}
			if def.Category != catalog.CategoryKernelParameter {
				issues.errorf(path, string(errors.ErrCodeOutOfPolicy), "%s is not a kernel parameter", key)
				continue
			}
			value, err := v.catalog.NormalizeValue(key, raw)
			if err != nil {
				issues.catalogIssue(path, err)
				continue
			}
			out.Sysctl[key] = value
		}
	}

	if q := req.Changes.Qdisc; q != nil {
		out.Qdisc = v.normalizeQdisc(q, issues)
	}
	// A shaper or offload object with every field nil requests nothing and is
	// treated as absent, so it cannot masquerade as a change.
	if s := req.Changes.Shaper; s != nil && (s.EgressMbit != nil || s.IngressMbit != nil || s.CeilMbit != nil) {
		out.Shaper = v.normalizeShaper(s, issues)
	}
	if len(req.Changes.DSCP) > 0 {
		out.DSCP = v.normalizeDSCP(req.Changes.DSCP, issues)
	}
	if o := req.Changes.Offloads; o != nil && (o.GRO != nil || o.GSO != nil || o.TSO != nil || o.LRO != nil) {
		copied := *o
		out.Offloads = &copied
	}
	if req.Changes.MTU != 0 {
		if _, err := v.catalog.NormalizeValue("link.mtu", strconv.Itoa(req.Changes.MTU)); err != nil {
			issues.catalogIssue("changes.mtu", err)
		}
	}

	return &out
}

func (v *Validator) normalizeQdisc(q *QdiscSpec, issues *issueList) *QdiscSpec {
	out := *q
	if _, err := v.catalog.NormalizeValue("qdisc.type", q.Type); err != nil {
		issues.catalogIssue("changes.qdisc.type", err)
		return &out
	}

	checkInt := func(path, key string, val *int) {
		if val == nil {
			return
		}
		if _, err := v.catalog.NormalizeValue(key, strconv.Itoa(*val)); err != nil {
			issues.catalogIssue(path, err)
		}
	}

	switch q.Type {
	case "cake":
		checkInt("changes.qdisc.rtt_us", "qdisc.cake.rtt_us", q.RTTUs)
		if q.Diffserv != "" {
			if _, err := v.catalog.NormalizeValue("qdisc.cake.diffserv", q.Diffserv); err != nil {
				issues.catalogIssue("changes.qdisc.diffserv", err)
			}
		}
		if q.Limit != nil || q.TargetUs != nil || q.IntervalUs != nil {
			issues.errorf("changes.qdisc", string(errors.ErrCodeOutOfPolicy), "limit/target_us/interval_us apply only to fq_codel, not %s", q.Type)
		}
	case "fq_codel":
		checkInt("changes.qdisc.limit", "qdisc.fq_codel.limit", q.Limit)
		checkInt("changes.qdisc.target_us", "qdisc.fq_codel.target_us", q.TargetUs)
		checkInt("changes.qdisc.interval_us", "qdisc.fq_codel.interval_us", q.IntervalUs)
		if q.RTTUs != nil || q.Diffserv != "" {
			issues.errorf("changes.qdisc", string(errors.ErrCodeOutOfPolicy), "rtt_us/diffserv apply only to cake, not %s", q.Type)
		}
	default: // htb, fq: no per-qdisc parameters
		if q.RTTUs != nil || q.Diffserv != "" || q.Limit != nil || q.TargetUs != nil || q.IntervalUs != nil {
			issues.errorf("changes.qdisc", string(errors.ErrCodeOutOfPolicy), "%s takes no qdisc parameters", q.Type)
		}
	}
	return &out
}

func (v *Validator) normalizeShaper(s *ShaperSpec, issues *issueList) *ShaperSpec {
	out := *s
	check := func(path, key string, val *int) {
		if val == nil {
			return
		}
		if _, err := v.catalog.NormalizeValue(key, strconv.Itoa(*val)); err != nil {
			issues.catalogIssue(path, err)
		}
	}
	check("changes.shaper.egress_mbit", "shaper.egress_mbit", s.EgressMbit)
	check("changes.shaper.ceil_mbit", "shaper.ceil_mbit", s.CeilMbit)
	check("changes.shaper.ingress_mbit", "shaper.ingress_mbit", s.IngressMbit)
	return &out
}

func (v *Validator) normalizeDSCP(rules []DSCPRule, issues *issueList) []DSCPRule {
	out := make([]DSCPRule, len(rules))
	for i, rule := range rules {
		out[i] = rule
		prefix := fmt.Sprintf("changes.dscp[%d]", i)
		if _, err := v.catalog.NormalizeValue("dscp.class", rule.DSCP); err != nil {
			issues.catalogIssue(prefix+".dscp", err)
		}
		if rule.Match.Proto != "" {
			if _, err := v.catalog.NormalizeValue("dscp.proto", rule.Match.Proto); err != nil {
				issues.catalogIssue(prefix+".match.proto", err)
			}
		}
		if (len(rule.Match.SPorts) > 0 || len(rule.Match.DPorts) > 0) && rule.Match.Proto == "" {
			issues.errorf(prefix+".match", string(errors.ErrCodeOutOfPolicy), "port matches require a proto")
		}
		if rule.Match.Proto == "" && rule.Match.Src == "" && rule.Match.Dst == "" &&
			len(rule.Match.SPorts) == 0 && len(rule.Match.DPorts) == 0 {
			issues.errorf(prefix+".match", string(errors.ErrCodeOutOfPolicy), "marking rule has no match criteria")
		}
	}
	return out
}

// runPredicates evaluates the named cross-field policy rules over the whole
// normalized change set.
func (v *Validator) runPredicates(changes *Changes, issues *issueList) {
	// shaper-ceil-floor: a shaping ceiling below the guaranteed rate is
	// self-contradictory.
	if s := changes.Shaper; s != nil && s.EgressMbit != nil && s.CeilMbit != nil {
		if *s.CeilMbit < *s.EgressMbit {
			issues.errorf("changes.shaper.ceil_mbit", string(errors.ErrCodeOutOfPolicy),
				"ceil_mbit %d must be >= egress_mbit %d", *s.CeilMbit, *s.EgressMbit)
		}
	}

	// shaper-requires-shaping-qdisc: rate limits need a discipline that can
	// enforce them.
	if s := changes.Shaper; s != nil && (s.EgressMbit != nil || s.CeilMbit != nil) {
		if changes.Qdisc == nil {
			issues.errorf("changes.shaper", string(errors.ErrCodeOutOfPolicy),
				"shaping rates require a qdisc (cake, htb or fq)")
		} else {
			switch changes.Qdisc.Type {
			case "cake", "htb", "fq":
			default:
				issues.errorf("changes.shaper", string(errors.ErrCodeOutOfPolicy),
					"qdisc %s cannot enforce shaping rates; use cake, htb or fq", changes.Qdisc.Type)
			}
		}
	}

	// buffer-triplet-order: min <= default <= max for tcp_rmem/tcp_wmem.
	for _, key := range []string{"net.ipv4.tcp_rmem", "net.ipv4.tcp_wmem"} {
		raw, ok := changes.Sysctl[key]
		if !ok {
			continue
		}
		fields := strings.Fields(raw)
		if len(fields) != 3 {
			continue // caught by per-field checks
		}
		minV, _ := strconv.ParseInt(fields[0], 10, 64)
		defV, _ := strconv.ParseInt(fields[1], 10, 64)
		maxV, _ := strconv.ParseInt(fields[2], 10, 64)
		if !(minV <= defV && defV <= maxV) {
			issues.errorf("changes.sysctl."+key, string(errors.ErrCodeOutOfPolicy),
				"%s must satisfy min <= default <= max, got %s", key, raw)
		}
	}

	// mtu-vs-jumbo-offloads: LRO with jumbo frames is a known throughput
	// trap on virtio and some Intel NICs; warn, do not block.
	if changes.MTU > 1500 && changes.Offloads != nil && changes.Offloads.LRO != nil && *changes.Offloads.LRO {
		issues.warnf("changes.offloads.lro", string(errors.ErrCodeOutOfPolicy),
			"enabling LRO with MTU %d (> 1500) can stall forwarding on some adapters", changes.MTU)
	}

	// ingress shaping needs an IFB redirect which is not rendered: alone it
	// would produce no commands at all, so it is rejected; alongside an
	// egress rate it is recorded with a warning.
	if s := changes.Shaper; s != nil && s.IngressMbit != nil {
		if s.EgressMbit == nil && s.CeilMbit == nil {
			issues.errorf("changes.shaper.ingress_mbit", string(errors.ErrCodeOutOfPolicy),
				"ingress-only shaping is not applicable; supply egress_mbit or remove the shaper")
		} else {
			issues.warnf("changes.shaper.ingress_mbit", string(errors.ErrCodeOutOfPolicy),
				"ingress shaping requires an IFB redirect which is not rendered; value recorded but not applied")
		}
	}
}
