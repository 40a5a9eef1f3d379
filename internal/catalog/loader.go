package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/netwrench/netwrench/internal/errors"
	"github.com/netwrench/netwrench/internal/log"
)

//go:embed data/*.yml
var embeddedCards embed.FS

// LoadEmbedded builds the catalog from the parameter cards and profiles
// compiled into the binary.
func LoadEmbedded() (*Catalog, error) {
	return loadFS(embeddedCards, "data")
}

// LoadDir builds the catalog from *.yml/*.yaml documents in dir.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCatalog, fmt.Sprintf("failed to read catalog directory %s", dir), err)
	}

	var definitions []ParameterDefinition
	var profiles []Profile
	for _, entry := range entries {
		if entry.IsDir() || !isCardFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCatalog, fmt.Sprintf("failed to read catalog file %s", path), err)
		}
		if err := appendCard(content, path, &definitions, &profiles); err != nil {
			return nil, err
		}
	}

	if len(definitions) == 0 {
		return nil, errors.Newf(errors.ErrCodeCatalog, "no parameter definitions found in %s", dir)
	}

	log.Debugf("Loaded %d parameter definition(s) and %d profile(s) from %s", len(definitions), len(profiles), dir)
	return New(definitions, profiles)
}

// Load returns the catalog from dir, or the embedded catalog when dir is empty.
func Load(dir string) (*Catalog, error) {
	if dir == "" {
		return LoadEmbedded()
	}
	return LoadDir(dir)
}

func loadFS(fsys embed.FS, root string) (*Catalog, error) {
	var definitions []ParameterDefinition
	var profiles []Profile

	var paths []string
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isCardFile(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCatalog, "failed to walk embedded catalog", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		content, err := fsys.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCatalog, fmt.Sprintf("failed to read embedded card %s", path), err)
		}
		if err := appendCard(content, path, &definitions, &profiles); err != nil {
			return nil, err
		}
	}

	return New(definitions, profiles)
}

func appendCard(content []byte, path string, definitions *[]ParameterDefinition, profiles *[]Profile) error {
	var card cardFile
	if err := yaml.Unmarshal(content, &card); err != nil {
		return errors.Wrap(errors.ErrCodeCatalog, fmt.Sprintf("failed to parse catalog file %s", path), err)
	}
	*definitions = append(*definitions, card.Parameters...)
	*profiles = append(*profiles, card.Profiles...)
	return nil
}

func isCardFile(name string) bool {
	return strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml")
}
