package types

import "strings"

// PatternDef is a single pattern definition: a regex with the tag reported
// for its matches.
type PatternDef struct {
	Source   string   `json:"pattern" yaml:"pattern"`                       // regex source
	Tag      string   `json:"tag,omitempty" yaml:"tag,omitempty"`           // e.g. "keyword.control"
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"` // literals required in every match, for prefiltering
}

// PatternsFromSources builds definitions from bare regex sources.
// Each definition is tagged with its own source.
func PatternsFromSources(sources []string) []PatternDef {
	defs := make([]PatternDef, len(sources))
	for i, src := range sources {
		defs[i] = PatternDef{Source: src, Tag: src}
	}
	return defs
}

// String returns a short human-readable form of the definition.
func (p PatternDef) String() string {
	if p.Tag == "" || p.Tag == p.Source {
		return p.Source
	}
	var b strings.Builder
	b.WriteString(p.Tag)
	b.WriteString("=")
	b.WriteString(p.Source)
	return b.String()
}
