// Package patternset loads named pattern sets from YAML.
package patternset

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/praetorian-inc/tmscan/pkg/types"
	"gopkg.in/yaml.v3"
)

// Loader handles loading pattern sets from YAML files.
type Loader struct {
	fs fs.FS // embedded filesystem for built-in sets
}

// NewLoader creates a loader with built-in sets from the embedded filesystem.
func NewLoader() *Loader {
	return &Loader{
		fs: builtinFS,
	}
}

// NewLoaderWithFS creates a loader with a custom filesystem.
// Built-in sets are read from its patternsets directory.
func NewLoaderWithFS(fsys fs.FS) *Loader {
	return &Loader{
		fs: fsys,
	}
}

// LoadPatternSets loads every pattern set in YAML bytes.
func (l *Loader) LoadPatternSets(data []byte) ([]*types.PatternSet, error) {
	var yamlFile yamlPatternSetsFile
	if err := yaml.Unmarshal(data, &yamlFile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(yamlFile.PatternSets) == 0 {
		return nil, fmt.Errorf("no pattern sets found in YAML")
	}

	sets := make([]*types.PatternSet, 0, len(yamlFile.PatternSets))
	for _, ys := range yamlFile.PatternSets {
		sets = append(sets, convertYAMLPatternSet(ys))
	}
	return sets, nil
}

// LoadPatternSet loads a single pattern set from YAML bytes.
// Returns error if YAML is invalid or multiple sets are present.
func (l *Loader) LoadPatternSet(data []byte) (*types.PatternSet, error) {
	sets, err := l.LoadPatternSets(data)
	if err != nil {
		return nil, err
	}
	if len(sets) > 1 {
		return nil, fmt.Errorf("expected single pattern set, found %d", len(sets))
	}
	return sets[0], nil
}

// LoadPatternSetFile loads a single pattern set from a YAML file path.
func (l *Loader) LoadPatternSetFile(path string) (*types.PatternSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return l.LoadPatternSet(data)
}

// LoadBuiltinPatternSets loads all built-in pattern sets.
func (l *Loader) LoadBuiltinPatternSets() ([]*types.PatternSet, error) {
	var sets []*types.PatternSet

	err := fs.WalkDir(l.fs, "patternsets", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".yml" {
			return nil
		}

		data, err := fs.ReadFile(l.fs, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		var yamlFile yamlPatternSetsFile
		if err := yaml.Unmarshal(data, &yamlFile); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		for _, ys := range yamlFile.PatternSets {
			sets = append(sets, convertYAMLPatternSet(ys))
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return sets, nil
}

// Builtin returns the built-in pattern set with the given ID.
func (l *Loader) Builtin(id string) (*types.PatternSet, error) {
	sets, err := l.LoadBuiltinPatternSets()
	if err != nil {
		return nil, err
	}
	for _, ps := range sets {
		if ps.ID == id {
			return ps, nil
		}
	}
	return nil, fmt.Errorf("unknown pattern set %q", id)
}

// convertYAMLPatternSet converts yamlPatternSet to types.PatternSet.
// A pattern without a tag is tagged with the set ID.
func convertYAMLPatternSet(ys yamlPatternSet) *types.PatternSet {
	ps := &types.PatternSet{
		ID:          ys.ID,
		Name:        ys.Name,
		Description: ys.Description,
		Patterns:    make([]types.PatternDef, len(ys.Patterns)),
	}
	for i, yp := range ys.Patterns {
		tag := yp.Tag
		if tag == "" {
			tag = ys.ID
		}
		ps.Patterns[i] = types.PatternDef{
			Source:   yp.Pattern,
			Tag:      tag,
			Keywords: yp.Keywords,
		}
	}
	return ps
}
