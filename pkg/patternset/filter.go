package patternset

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/praetorian-inc/tmscan/pkg/types"
)

// FilterConfig specifies include and exclude patterns for set filtering.
type FilterConfig struct {
	Include []string // Regex patterns - only matching set IDs included
	Exclude []string // Regex patterns - matching set IDs excluded
}

// ParsePatterns splits a comma-separated string into trimmed, non-empty parts.
func ParsePatterns(patterns string) []string {
	if patterns == "" {
		return []string{}
	}

	parts := strings.Split(patterns, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Filter applies include then exclude patterns to set IDs.
// Empty include means "include all".
func Filter(sets []*types.PatternSet, config FilterConfig) ([]*types.PatternSet, error) {
	if len(sets) == 0 {
		return sets, nil
	}

	include, err := compileAll(config.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compileAll(config.Exclude)
	if err != nil {
		return nil, err
	}

	result := make([]*types.PatternSet, 0, len(sets))
	for _, ps := range sets {
		if len(include) > 0 && !matchesAny(ps.ID, include) {
			continue
		}
		if matchesAny(ps.ID, exclude) {
			continue
		}
		result = append(result, ps)
	}
	return result, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	regexes := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
		}
		regexes = append(regexes, re)
	}
	return regexes, nil
}

func matchesAny(id string, regexes []*regexp.Regexp) bool {
	for _, re := range regexes {
		if re.MatchString(id) {
			return true
		}
	}
	return false
}
