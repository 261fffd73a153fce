// Package resolver turns a declarative catalog of artifact specifications
// into resolved entity caches by walking the inter-artifact dependency graph,
// expanding parameter combinations, and invoking the capability surface.
package resolver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParamSource derives one call parameter's value set from a previously
// resolved entity cache column. RequiredField, when set, names a companion
// column that must be non-empty for a row to qualify; a row whose primary
// field is populated but whose required field is blank is excluded.
type ParamSource struct {
	Name          string `yaml:"name"`
	Module        string `yaml:"module"`
	Field         string `yaml:"field"`
	RequiredField string `yaml:"required_field,omitempty"`
}

// ArtifactSpec identifies one retrievable dataset: the operation to call,
// fixed parameters, and how to derive the rest from prior results.
type ArtifactSpec struct {
	Module       string         `yaml:"module"`
	MethodPath   string         `yaml:"method"`
	StaticArgs   map[string]any `yaml:"static_args,omitempty"`
	ParamSources []ParamSource  `yaml:"param_sources,omitempty"`
}

// Catalog is the ordered artifact spec list. It is constructed once at
// startup and passed by reference into the resolver; module names are unique
// and the source graph is a DAG.
type Catalog struct {
	specs []ArtifactSpec
	index map[string]int
}

// NewCatalog validates and wraps an ordered spec list. Seeded names the
// entity cache modules that exist before resolution starts; sources may
// reference them without a corresponding artifact spec.
func NewCatalog(specs []ArtifactSpec, seeded ...string) (*Catalog, error) {
	index := make(map[string]int, len(specs))
	for i, spec := range specs {
		if spec.Module == "" {
			return nil, fmt.Errorf("artifact %d: module name required", i)
		}
		if spec.MethodPath == "" {
			return nil, fmt.Errorf("artifact %s: method path required", spec.Module)
		}
		if _, dup := index[spec.Module]; dup {
			return nil, fmt.Errorf("artifact %s: duplicate module name", spec.Module)
		}
		index[spec.Module] = i
	}

	seededSet := make(map[string]struct{}, len(seeded))
	for _, name := range seeded {
		seededSet[name] = struct{}{}
	}
	for _, spec := range specs {
		for _, src := range spec.ParamSources {
			if src.Name == "" || src.Field == "" {
				return nil, fmt.Errorf("artifact %s: param source needs name and field", spec.Module)
			}
			if _, isArtifact := index[src.Module]; isArtifact {
				continue
			}
			if _, isSeeded := seededSet[src.Module]; isSeeded {
				continue
			}
			return nil, fmt.Errorf("artifact %s: source module %s is neither an artifact nor seeded", spec.Module, src.Module)
		}
	}

	c := &Catalog{specs: specs, index: index}
	if err := c.checkAcyclic(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCatalog reads a YAML artifact manifest from disk.
func LoadCatalog(path string, seeded ...string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var doc struct {
		Artifacts []ArtifactSpec `yaml:"artifacts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return NewCatalog(doc.Artifacts, seeded...)
}

// Specs returns the specs in declaration order.
func (c *Catalog) Specs() []ArtifactSpec {
	out := make([]ArtifactSpec, len(c.specs))
	copy(out, c.specs)
	return out
}

// Ordered returns the specs sorted so every artifact appears after all of its
// source modules. Ties keep declaration order: artifacts with no unresolved
// dependencies emit in catalog order on each pass.
func (c *Catalog) Ordered() []ArtifactSpec {
	resolved := make(map[string]struct{}, len(c.specs))
	emitted := make([]bool, len(c.specs))
	out := make([]ArtifactSpec, 0, len(c.specs))
	for len(out) < len(c.specs) {
		progressed := false
		for i, spec := range c.specs {
			if emitted[i] {
				continue
			}
			ready := true
			for _, src := range spec.ParamSources {
				if _, isArtifact := c.index[src.Module]; !isArtifact {
					continue // seeded module, always available
				}
				if _, ok := resolved[src.Module]; !ok {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			emitted[i] = true
			resolved[spec.Module] = struct{}{}
			out = append(out, spec)
			progressed = true
		}
		if !progressed {
			// NewCatalog guarantees acyclicity, so this is unreachable.
			break
		}
	}
	return out
}

func (c *Catalog) checkAcyclic() error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(c.specs))
	var visit func(module string, trail []string) error
	visit = func(module string, trail []string) error {
		switch color[module] {
		case grey:
			return fmt.Errorf("artifact dependency cycle: %v -> %s", trail, module)
		case black:
			return nil
		}
		color[module] = grey
		i, ok := c.index[module]
		if ok {
			for _, src := range c.specs[i].ParamSources {
				if _, isArtifact := c.index[src.Module]; !isArtifact {
					continue
				}
				if err := visit(src.Module, append(trail, module)); err != nil {
					return err
				}
			}
		}
		color[module] = black
		return nil
	}
	for _, spec := range c.specs {
		if err := visit(spec.Module, nil); err != nil {
			return err
		}
	}
	return nil
}
