package patternset

// yamlPattern is one entry of a pattern set's patterns list.
type yamlPattern struct {
	Pattern  string   `yaml:"pattern"`
	Tag      string   `yaml:"tag,omitempty"`
	Keywords []string `yaml:"keywords,omitempty"`
}

// yamlPatternSet is the intermediate struct for parsing a pattern set.
type yamlPatternSet struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Patterns    []yamlPattern `yaml:"patterns"`
}

// yamlPatternSetsFile represents the top-level structure of a pattern set file.
type yamlPatternSetsFile struct {
	PatternSets []yamlPatternSet `yaml:"patternsets"`
}
