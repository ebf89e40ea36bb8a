package patternset

import "embed"

// builtinFS embeds the built-in pattern sets.
//
//go:embed patternsets/*.yml
var builtinFS embed.FS
