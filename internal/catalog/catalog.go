package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/netwrench/netwrench/internal/errors"
)

// Catalog is the in-memory policy table consulted by the validator and the
// renderer. It is constructed once at startup and read-only afterward; there
// is no package-level instance so tests can build isolated catalogs.
type Catalog struct {
	definitions map[string]*ParameterDefinition
	profiles    map[string]*Profile
	patterns    map[string]*regexp.Regexp
}

// New builds a catalog from parameter definitions and profiles. Definitions
// are checked for internal consistency; duplicate keys and profile defaults
// referencing unknown keys are load errors.
func New(definitions []ParameterDefinition, profiles []Profile) (*Catalog, error) {
	c := &Catalog{
		definitions: make(map[string]*ParameterDefinition, len(definitions)),
		profiles:    make(map[string]*Profile, len(profiles)),
		patterns:    make(map[string]*regexp.Regexp),
	}

	for i := range definitions {
		def := definitions[i]
		if def.Key == "" {
			return nil, errors.New(errors.ErrCodeCatalog, "parameter definition with empty key")
		}
		if !def.Category.Valid() {
			return nil, errors.Newf(errors.ErrCodeCatalog, "parameter %s: unknown category %q", def.Key, def.Category)
		}
		if _, dup := c.definitions[def.Key]; dup {
			return nil, errors.Newf(errors.ErrCodeCatalog, "duplicate parameter key: %s", def.Key)
		}
		switch def.Type {
		case TypeString, TypeInt, TypeBool, TypeIntTriplet:
		case TypeEnum:
			if len(def.Enum) == 0 {
				return nil, errors.Newf(errors.ErrCodeCatalog, "parameter %s: enum type without allowed values", def.Key)
			}
		default:
			return nil, errors.Newf(errors.ErrCodeCatalog, "parameter %s: unknown type %q", def.Key, def.Type)
		}
		if def.Pattern != "" {
			re, err := regexp.Compile(def.Pattern)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeCatalog, fmt.Sprintf("parameter %s: invalid pattern", def.Key), err)
			}
			c.patterns[def.Key] = re
		}
		c.definitions[def.Key] = &def
	}

	for i := range profiles {
		p := profiles[i]
		if p.Name == "" {
			return nil, errors.New(errors.ErrCodeCatalog, "profile with empty name")
		}
		if _, dup := c.profiles[p.Name]; dup {
			return nil, errors.Newf(errors.ErrCodeCatalog, "duplicate profile name: %s", p.Name)
		}
		for _, d := range p.Defaults {
			if _, ok := c.definitions[d.Key]; !ok {
				return nil, errors.Newf(errors.ErrCodeCatalog, "profile %s: default for unknown parameter %s", p.Name, d.Key)
			}
		}
		c.profiles[p.Name] = &p
	}

	return c, nil
}

// Lookup returns the definition for key, or nil when the key is unknown.
func (c *Catalog) Lookup(key string) *ParameterDefinition {
	return c.definitions[key]
}

// Keys returns all parameter keys in sorted order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.definitions))
	for k := range c.definitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Definitions returns all parameter definitions sorted by key.
func (c *Catalog) Definitions() []*ParameterDefinition {
	defs := make([]*ParameterDefinition, 0, len(c.definitions))
	for _, key := range c.Keys() {
		defs = append(defs, c.definitions[key])
	}
	return defs
}

// Profile returns the named profile, or nil when absent.
func (c *Catalog) Profile(name string) *Profile {
	return c.profiles[name]
}

// Profiles returns all profiles sorted by name.
func (c *Catalog) Profiles() []*Profile {
	names := make([]string, 0, len(c.profiles))
	for n := range c.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	profiles := make([]*Profile, 0, len(names))
	for _, n := range names {
		profiles = append(profiles, c.profiles[n])
	}
	return profiles
}

// CheckValue validates raw against the declared type and bounds of key.
// Unknown keys report UNKNOWN_PARAMETER; type coercion failures report
// TYPE_MISMATCH; bound and enum violations report OUT_OF_POLICY.
func (c *Catalog) CheckValue(key, raw string) error {
	_, err := c.NormalizeValue(key, raw)
	return err
}

// NormalizeValue validates raw against key's definition and returns the
// canonical string form (trimmed, triplet whitespace collapsed).
func (c *Catalog) NormalizeValue(key, raw string) (string, error) {
	def := c.definitions[key]
	if def == nil {
		return "", errors.Newf(errors.ErrCodeUnknownParameter, "unknown parameter %s not present in the policy catalog", key)
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return "", errors.Newf(errors.ErrCodeTypeMismatch, "%s: empty value", key)
	}

	switch def.Type {
	case TypeString:
		if re := c.patterns[key]; re != nil && !re.MatchString(value) {
			return "", errors.Newf(errors.ErrCodeOutOfPolicy, "%s: value %q does not match required format", key, value)
		}
		return value, nil

	case TypeBool:
		// Canonical form is 0/1: bool kernel parameters end up on a
		// `sysctl -w` command line, which does not accept words.
		switch strings.ToLower(value) {
		case "true", "on", "1":
			return "1", nil
		case "false", "off", "0":
			return "0", nil
		}
		return "", errors.Newf(errors.ErrCodeTypeMismatch, "%s: %q is not a boolean", key, value)

	case TypeInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "", errors.Newf(errors.ErrCodeTypeMismatch, "%s: %q is not an integer", key, value)
		}
		if err := def.checkBounds(key, n); err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil

	case TypeIntTriplet:
		fields := strings.Fields(value)
		if len(fields) != 3 {
			return "", errors.Newf(errors.ErrCodeTypeMismatch, "%s: expected three integers, got %d value(s)", key, len(fields))
		}
		normalized := make([]string, 3)
		for i, f := range fields {
			n, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return "", errors.Newf(errors.ErrCodeTypeMismatch, "%s: %q is not an integer", key, f)
			}
			if err := def.checkBounds(key, n); err != nil {
				return "", err
			}
			normalized[i] = strconv.FormatInt(n, 10)
		}
		return strings.Join(normalized, " "), nil

	case TypeEnum:
		for _, allowed := range def.Enum {
			if value == allowed {
				return value, nil
			}
		}
		return "", errors.Newf(errors.ErrCodeOutOfPolicy, "%s: %q must be one of: %s", key, value, strings.Join(def.Enum, ", "))
	}

	return "", errors.Newf(errors.ErrCodeCatalog, "%s: unhandled value type %q", key, def.Type)
}

func (d *ParameterDefinition) checkBounds(key string, n int64) error {
	if d.Min != nil && n < *d.Min {
		return errors.Newf(errors.ErrCodeOutOfPolicy, "%s: %d below min %d", key, n, *d.Min)
	}
	if d.Max != nil && n > *d.Max {
		return errors.Newf(errors.ErrCodeOutOfPolicy, "%s: %d above max %d", key, n, *d.Max)
	}
	return nil
}
