package types

// PatternSet is a named, ordered list of pattern definitions.
type PatternSet struct {
	ID          string
	Name        string
	Description string
	Patterns    []PatternDef
}

