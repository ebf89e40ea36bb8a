package patternset

import (
	"fmt"

	"github.com/praetorian-inc/tmscan/pkg/matcher"
	"github.com/praetorian-inc/tmscan/pkg/types"
)

// ValidatePatternSet checks required fields and that every pattern compiles.
func ValidatePatternSet(ps *types.PatternSet) error {
	if ps == nil {
		return fmt.Errorf("pattern set is nil")
	}

	if ps.ID == "" {
		return fmt.Errorf("pattern set ID is required")
	}
	if ps.Name == "" {
		return fmt.Errorf("pattern set name is required")
	}
	if len(ps.Patterns) == 0 {
		return fmt.Errorf("pattern set %s must contain at least one pattern", ps.ID)
	}

	if _, err := matcher.Compile(ps.Patterns, matcher.WithRegexCache(nil)); err != nil {
		return fmt.Errorf("pattern set %s: %w", ps.ID, err)
	}

	return nil
}

// ValidatePatternSets validates each set and rejects duplicate IDs.
func ValidatePatternSets(sets []*types.PatternSet) error {
	seen := make(map[string]bool)
	for _, ps := range sets {
		if err := ValidatePatternSet(ps); err != nil {
			return err
		}
		if seen[ps.ID] {
			return fmt.Errorf("duplicate pattern set ID: %s", ps.ID)
		}
		seen[ps.ID] = true
	}
	return nil
}
