// Package shell is the safe command execution layer: every external process
// the pipeline spawns goes through an allowlist check, receives its arguments
// as a vector (never a shell string), and runs under a hard timeout.
package shell

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/netwrench/netwrench/internal/errors"
)

//go:embed data/allowlist.yml
var embeddedAllowlist []byte

// Allowlist is the fixed set of executables the executor may spawn. Entries
// are bare binary names or absolute paths.
type Allowlist struct {
	names map[string]bool
	paths map[string]bool
}

type allowlistFile struct {
	Binaries []string `yaml:"binaries"`
}

// LoadAllowlist reads an allowlist document from path, or the embedded
// default set when path is empty.
func LoadAllowlist(path string) (*Allowlist, error) {
	content := embeddedAllowlist
	if path != "" {
		var err error
		content, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfig, fmt.Sprintf("failed to read allowlist %s", path), err)
		}
	}

	var doc allowlistFile
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, "failed to parse allowlist document", err)
	}
	if len(doc.Binaries) == 0 {
		return nil, errors.New(errors.ErrCodeConfig, "allowlist document lists no binaries")
	}

	return NewAllowlist(doc.Binaries), nil
}

// NewAllowlist builds an allowlist from binary names and/or absolute paths.
func NewAllowlist(binaries []string) *Allowlist {
	a := &Allowlist{
		names: make(map[string]bool),
		paths: make(map[string]bool),
	}
	for _, b := range binaries {
		if filepath.IsAbs(b) {
			a.paths[b] = true
			a.names[filepath.Base(b)] = true
		} else {
			a.names[b] = true
		}
	}
	return a
}

// Permits reports whether the given argv[0] may be spawned. A bare name must
// be listed by name; a path must be listed by full path or resolve to a
// listed name.
func (a *Allowlist) Permits(executable string) bool {
	if executable == "" {
		return false
	}
	if filepath.IsAbs(executable) || filepath.Base(executable) != executable {
		return a.paths[executable] || a.names[filepath.Base(executable)]
	}
	return a.names[executable]
}

// Binaries returns the listed bare names, for self-check output.
func (a *Allowlist) Binaries() []string {
	var out []string
	for name := range a.names {
		out = append(out, name)
	}
	return out
}
