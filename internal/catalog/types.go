package catalog

// Category classifies a parameter by the subsystem its rendered commands touch.
// The set is closed; rendering and snapshot logic switch over it exhaustively.
type Category string

const (
	CategoryKernelParameter Category = "kernel-parameter"
	CategoryQueueing        Category = "queueing"
	CategoryFirewall        Category = "firewall"
	CategoryNIC             Category = "nic"
	CategoryLink            Category = "link"
)

// Categories lists all known categories in their fixed apply order:
// kernel parameters first so prerequisite state exists before dependent
// rules, link last so the discipline in place is the final one.
func Categories() []Category {
	return []Category{
		CategoryKernelParameter,
		CategoryQueueing,
		CategoryFirewall,
		CategoryNIC,
		CategoryLink,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryKernelParameter, CategoryQueueing, CategoryFirewall, CategoryNIC, CategoryLink:
		return true
	}
	return false
}

// ValueType is the declared type of a parameter value.
type ValueType string

const (
	TypeString ValueType = "string"
	TypeInt    ValueType = "int"
	TypeBool   ValueType = "bool"
	TypeEnum   ValueType = "enum"
	// TypeIntTriplet is three integers separated by whitespace, as used by
	// net.ipv4.tcp_rmem and friends ("min default max").
	TypeIntTriplet ValueType = "int-triplet"
)

// ParameterDefinition describes one tunable parameter. Immutable after load.
type ParameterDefinition struct {
	// Key is the unique parameter key. Kernel parameters use the literal
	// sysctl key; other categories use namespaced keys like "qdisc.type"
	// or "link.mtu".
	Key string `yaml:"key" json:"key"`
	// Category selects the rendering subsystem.
	Category Category `yaml:"category" json:"category"`
	// Type is the declared value type.
	Type ValueType `yaml:"type" json:"type"`
	// Min and Max bound integer values (inclusive). For int-triplet they
	// bound each element.
	Min *int64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *int64 `yaml:"max,omitempty" json:"max,omitempty"`
	// Enum lists the allowed values for enum-typed parameters.
	Enum []string `yaml:"enum,omitempty" json:"enum,omitempty"`
	// Pattern is an optional regular expression a string value must match.
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	// Description is a short human-readable explanation.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// ProfileDefault is one key/value pair contributed by a profile.
type ProfileDefault struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// Profile is a named bundle of parameter defaults. Order matters only for
// display; merge semantics are by key. Immutable after load.
type Profile struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Defaults    []ProfileDefault `yaml:"defaults" json:"defaults"`
}

// cardFile is the YAML document shape for catalog files. A file may carry
// parameters, profiles, or both.
type cardFile struct {
	Parameters []ParameterDefinition `yaml:"parameters"`
	Profiles   []Profile             `yaml:"profiles"`
}
