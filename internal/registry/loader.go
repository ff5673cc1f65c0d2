// Package registry loads library-system definitions from YAML and
// constructs the adapters that serve them. Definitions live in a
// directory of YAML files; each file holds one or more systems as
// separate documents.
package registry

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arguspanoptes/argus-server/internal/domain"
	"github.com/arguspanoptes/argus-server/internal/validation"
)

// systemDoc is the YAML shape of one library system. Credential fields
// carry environment variable names, never values.
type systemDoc struct {
	ID         string       `yaml:"id" validate:"required"`
	Name       string       `yaml:"name" validate:"required"`
	Vendor     string       `yaml:"vendor"`
	Region     string       `yaml:"region"`
	CatalogURL string       `yaml:"catalogUrl" validate:"omitempty,url"`
	Enabled    *bool        `yaml:"enabled"`
	Branches   []branchDoc  `yaml:"branches" validate:"dive"`
	Adapters   []adapterDoc `yaml:"adapters" validate:"required,min=1,dive"`
}

type branchDoc struct {
	ID   string `yaml:"id" validate:"required"`
	Code string `yaml:"code" validate:"required"`
	Name string `yaml:"name" validate:"required"`
	City string `yaml:"city"`
}

type adapterDoc struct {
	Protocol           string            `yaml:"protocol" validate:"required"`
	BaseURL            string            `yaml:"baseUrl" validate:"required,url"`
	TimeoutMS          int               `yaml:"timeoutMs" validate:"gte=0,lte=60000"`
	MaxConcurrency     int               `yaml:"maxConcurrency" validate:"gte=0,lte=32"`
	ClientKeyEnvVar    string            `yaml:"clientKeyEnvVar"`
	ClientSecretEnvVar string            `yaml:"clientSecretEnvVar"`
	Extra              map[string]string `yaml:"extra"`
}

// Loader reads and validates library-system definitions.
type Loader struct {
	validate *validation.Validator
}

// NewLoader builds a loader.
func NewLoader() *Loader {
	return &Loader{validate: validation.New()}
}

// LoadDir loads every .yaml/.yml file under dir, in lexical order so
// the resulting system order is stable across runs. Duplicate system
// ids across files are an error.
func (l *Loader) LoadDir(dir string) ([]*domain.LibrarySystem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading libraries dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	var systems []*domain.LibrarySystem
	seen := make(map[string]string)
	for _, file := range files {
		loaded, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(file), err)
		}
		for _, sys := range loaded {
			if prev, dup := seen[sys.ID]; dup {
				return nil, fmt.Errorf("%s: system %q already defined in %s",
					filepath.Base(file), sys.ID, prev)
			}
			seen[sys.ID] = filepath.Base(file)
			systems = append(systems, sys)
		}
	}
	return systems, nil
}

// loadFile decodes every YAML document in one file.
func (l *Loader) loadFile(path string) ([]*domain.LibrarySystem, error) {
	f, err := os.Open(path) //#nosec G304 -- registry files come from the configured dir
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var systems []*domain.LibrarySystem
	for docNum := 1; ; docNum++ {
		var doc systemDoc
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return systems, nil
			}
			return nil, fmt.Errorf("document %d: %w", docNum, err)
		}
		sys, err := l.buildSystem(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", docNum, err)
		}
		systems = append(systems, sys)
	}
}

// buildSystem validates one document and converts it to the domain
// type. Beyond field validation it enforces the structural invariants:
// every protocol tag must be known, and branch ids must be namespaced
// under the owning system.
func (l *Loader) buildSystem(doc systemDoc) (*domain.LibrarySystem, error) {
	if err := l.validate.Validate(doc); err != nil {
		return nil, err
	}

	for i, a := range doc.Adapters {
		if !domain.Protocol(a.Protocol).Valid() {
			return nil, fmt.Errorf("adapter %d: unknown protocol %q", i+1, a.Protocol)
		}
	}
	prefix := doc.ID + ":"
	for _, b := range doc.Branches {
		if !strings.HasPrefix(b.ID, prefix) {
			return nil, fmt.Errorf("branch %q: id must start with %q", b.ID, prefix)
		}
	}

	enabled := true
	if doc.Enabled != nil {
		enabled = *doc.Enabled
	}

	sys := &domain.LibrarySystem{
		ID:         doc.ID,
		Name:       doc.Name,
		Vendor:     doc.Vendor,
		Region:     doc.Region,
		CatalogURL: doc.CatalogURL,
		Enabled:    enabled,
	}
	for _, b := range doc.Branches {
		sys.Branches = append(sys.Branches, domain.Branch{
			ID: b.ID, Code: b.Code, Name: b.Name, City: b.City,
		})
	}
	for _, a := range doc.Adapters {
		sys.Adapters = append(sys.Adapters, domain.AdapterConfig{
			Protocol:           domain.Protocol(a.Protocol),
			BaseURL:            a.BaseURL,
			TimeoutMS:          a.TimeoutMS,
			MaxConcurrency:     a.MaxConcurrency,
			ClientKeyEnvVar:    a.ClientKeyEnvVar,
			ClientSecretEnvVar: a.ClientSecretEnvVar,
			Extra:              a.Extra,
		})
	}
	return sys, nil
}
