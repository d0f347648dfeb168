// Package definition loads YAML screen definitions, validates them, and
// provides a fast-lookup registry with atomic pointer swap.
package definition

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/opsdesk/model"
)

// Loader scans directories for YAML definition files, parses them, and
// computes SHA-256 checksums.
type Loader struct{}

// NewLoader creates a new definition Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll recursively scans directories for *.yaml and *.yml files and parses
// each into a DomainDefinition. Files without a domain key, such as static
// seed files kept next to their definitions, are skipped.
func (l *Loader) LoadAll(directories []string) ([]model.DomainDefinition, error) {
	var defs []model.DomainDefinition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			def, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			if def.Domain == "" && len(def.Screens) == 0 {
				return nil
			}
			defs = append(defs, def)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// LoadFile loads and parses a single YAML definition file. It computes the
// SHA-256 checksum, records the source file path, and resolves relative seed
// files against the definition's directory.
func (l *Loader) LoadFile(path string) (model.DomainDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.DomainDefinition{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var def model.DomainDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.DomainDefinition{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	def.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	def.SourceFile = path

	base := filepath.Dir(path)
	for i := range def.Screens {
		def.Screens[i].Domain = def.Domain
		seed := def.Screens[i].DataSource.SeedFile
		if seed != "" && !filepath.IsAbs(seed) {
			def.Screens[i].DataSource.SeedFile = filepath.Join(base, seed)
		}
	}

	return def, nil
}
