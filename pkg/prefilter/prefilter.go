package prefilter

import (
	"github.com/cloudflare/ahocorasick"
	"github.com/praetorian-inc/tmscan/pkg/types"
)

// Prefilter uses Aho-Corasick to rule out patterns whose keywords are absent
// from the text. It is safe for concurrent use.
type Prefilter struct {
	matcher         *ahocorasick.Matcher
	keywords        []string         // keyword at each dictionary index
	keywordPatterns map[string][]int // keyword -> indices of patterns needing it
	always          []bool           // patterns without keywords (always checked)
	size            int
}

// New creates a prefilter over an ordered pattern set.
func New(defs []types.PatternDef) *Prefilter {
	pf := &Prefilter{
		keywordPatterns: make(map[string][]int),
		always:          make([]bool, len(defs)),
		size:            len(defs),
	}

	keywordSet := make(map[string]bool)
	for i, def := range defs {
		if len(def.Keywords) == 0 {
			pf.always[i] = true
			continue
		}
		for _, keyword := range def.Keywords {
			if !keywordSet[keyword] {
				keywordSet[keyword] = true
				pf.keywords = append(pf.keywords, keyword)
			}
			pf.keywordPatterns[keyword] = append(pf.keywordPatterns[keyword], i)
		}
	}

	if len(pf.keywords) > 0 {
		pf.matcher = ahocorasick.NewStringMatcher(pf.keywords)
	}

	return pf
}

// Active reports whether any pattern in the set declares keywords.
func (pf *Prefilter) Active() bool {
	return pf.matcher != nil
}

// Filter returns a mask over the pattern set: true means the pattern might
// match content (one of its keywords occurs, or it has none).
func (pf *Prefilter) Filter(content []byte) []bool {
	mask := make([]bool, pf.size)
	copy(mask, pf.always)

	if pf.matcher == nil {
		return mask
	}

	for _, hit := range pf.matcher.MatchThreadSafe(content) {
		for _, idx := range pf.keywordPatterns[pf.keywords[hit]] {
			mask[idx] = true
		}
	}

	return mask
}
