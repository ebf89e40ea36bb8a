//go:build wasm

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"syscall/js"

	"github.com/praetorian-inc/tmscan"
	"github.com/praetorian-inc/tmscan/pkg/encode"
	"github.com/praetorian-inc/tmscan/pkg/types"
)

// errorResult builds the error object returned to JavaScript.
func errorResult(msg string, err error) map[string]interface{} {
	result := map[string]interface{}{"error": msg}
	if err != nil {
		result["error"] = msg + ": " + err.Error()
		result["code"] = types.ErrorCode(err)
	}
	return result
}

// decodePatterns accepts a JSON array of regex sources, a JSON array of
// pattern definitions, or the ID of a built-in pattern set.
func decodePatterns(input string) ([]tmscan.PatternDef, error) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "[") {
		sets, err := tmscan.LoadBuiltinPatternSets()
		if err != nil {
			return nil, err
		}
		for _, ps := range sets {
			if ps.ID == trimmed {
				return ps.Patterns, nil
			}
		}
		return nil, fmt.Errorf("unknown pattern set %q: %w", trimmed, types.ErrInvalidPattern)
	}

	var sources []string
	if err := json.Unmarshal([]byte(trimmed), &sources); err == nil {
		return tmscan.PatternsFromSources(sources), nil
	}

	var defs []tmscan.PatternDef
	if err := json.Unmarshal([]byte(trimmed), &defs); err != nil {
		return nil, fmt.Errorf("parsing patterns JSON: %w", err)
	}
	return defs, nil
}

// createScanner compiles patterns and registers a scanner.
// JS: TmscanCreateScanner(patternsJSON, maxCacheSize) -> {id} or {error, code}
func createScanner(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("patternsJSON and maxCacheSize arguments required", nil)
	}

	defs, err := decodePatterns(args[0].String())
	if err != nil {
		return errorResult("invalid patterns", err)
	}

	id, err := tmscan.CreateScanner(defs, args[1].Int())
	if err != nil {
		return errorResult("failed to create scanner", err)
	}

	return map[string]interface{}{"id": int(id)}
}

// findNextMatch finds the earliest match at or after a character offset.
// JS: TmscanFindNextMatch(id, text, start) -> JSON match, "null", or {error, code}
func findNextMatch(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("id, text and start arguments required", nil)
	}

	id := uint64(args[0].Int())
	text := args[1].String()
	start := args[2].Int()

	result, err := tmscan.FindNextMatchSync(id, text, start)
	if err != nil {
		return errorResult("match failed", err)
	}

	jsonBytes, err := encode.JSON(result)
	if err != nil {
		return errorResult("failed to marshal match", err)
	}

	return string(jsonBytes)
}

// destroyScanner releases a scanner.
// JS: TmscanDestroyScanner(id) -> null or {error, code}
func destroyScanner(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("id argument required", nil)
	}

	if err := tmscan.DestroyScanner(uint64(args[0].Int())); err != nil {
		return errorResult("failed to destroy scanner", err)
	}

	return nil
}

// getPatternSets returns the built-in pattern sets as JSON.
// JS: TmscanGetPatternSets() -> JSON array
func getPatternSets(this js.Value, args []js.Value) interface{} {
	sets, err := tmscan.LoadBuiltinPatternSets()
	if err != nil {
		return errorResult("failed to load builtin pattern sets", err)
	}

	jsonBytes, err := json.Marshal(sets)
	if err != nil {
		return errorResult("failed to marshal pattern sets", err)
	}

	return string(jsonBytes)
}
