//go:build wasm

package main

import (
	"encoding/json"
	"syscall/js"
	"testing"

	"github.com/praetorian-inc/tmscan/pkg/encode"
	"github.com/praetorian-inc/tmscan/pkg/types"
)

// mustCreate creates a scanner and fails the test on error
func mustCreate(t *testing.T, patternsJSON string, maxCacheSize int) int {
	t.Helper()

	result := createScanner(js.Value{}, []js.Value{js.ValueOf(patternsJSON), js.ValueOf(maxCacheSize)})
	resultMap, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected map result, got %T", result)
	}
	if errMsg, hasError := resultMap["error"]; hasError {
		t.Fatalf("Failed to create scanner: %v", errMsg)
	}
	id, ok := resultMap["id"].(int)
	if !ok {
		t.Fatalf("Expected int id, got %T", resultMap["id"])
	}
	return id
}

func findMatch(t *testing.T, id int, text string, start int) *encode.WireMatch {
	t.Helper()

	result := findNextMatch(js.Value{}, []js.Value{js.ValueOf(id), js.ValueOf(text), js.ValueOf(start)})
	jsonStr, ok := result.(string)
	if !ok {
		t.Fatalf("Expected string result, got %T: %v", result, result)
	}
	var m *encode.WireMatch
	if err := json.Unmarshal([]byte(jsonStr), &m); err != nil {
		t.Fatalf("Failed to parse match: %v", err)
	}
	return m
}

// TestCreateScannerSources tests creating a scanner from bare regex sources
func TestCreateScannerSources(t *testing.T) {
	id := mustCreate(t, `["a", "b"]`, 4)
	defer destroyScanner(js.Value{}, []js.Value{js.ValueOf(id)})

	m := findMatch(t, id, "xxbxa", 0)
	if m == nil {
		t.Fatal("Expected a match")
	}
	if m.Index != 1 {
		t.Errorf("Expected pattern index 1, got %d", m.Index)
	}
	if m.CaptureIndices[0].Start != 2 || m.CaptureIndices[0].End != 3 {
		t.Errorf("Unexpected span %+v", m.CaptureIndices[0])
	}
}

// TestCreateScannerDefinitions tests creating a scanner from tagged definitions
func TestCreateScannerDefinitions(t *testing.T) {
	id := mustCreate(t, `[{"pattern": "(\\d+)", "tag": "num"}]`, 4)
	defer destroyScanner(js.Value{}, []js.Value{js.ValueOf(id)})

	m := findMatch(t, id, "ab 42", 0)
	if m == nil {
		t.Fatal("Expected a match")
	}
	if m.Tag != "num" {
		t.Errorf("Expected tag num, got %q", m.Tag)
	}
	if len(m.CaptureIndices) != 2 {
		t.Fatalf("Expected 2 capture indices, got %d", len(m.CaptureIndices))
	}
	if m.CaptureIndices[1].Length != 2 {
		t.Errorf("Expected group length 2, got %d", m.CaptureIndices[1].Length)
	}
}

// TestCreateScannerBuiltin tests creating a scanner from a built-in set ID
func TestCreateScannerBuiltin(t *testing.T) {
	id := mustCreate(t, "json", 4)
	defer destroyScanner(js.Value{}, []js.Value{js.ValueOf(id)})

	m := findMatch(t, id, "[1]", 1)
	if m == nil || m.Tag != "constant.numeric.json" {
		t.Errorf("Expected numeric token, got %+v", m)
	}
}

// TestFindNextMatchNoMatch tests that an unmatched search returns null
func TestFindNextMatchNoMatch(t *testing.T) {
	id := mustCreate(t, `["z"]`, 4)
	defer destroyScanner(js.Value{}, []js.Value{js.ValueOf(id)})

	if m := findMatch(t, id, "abc", 0); m != nil {
		t.Errorf("Expected null match, got %+v", m)
	}
}

// TestCreateScannerErrors tests error codes for invalid input
func TestCreateScannerErrors(t *testing.T) {
	tests := []struct {
		name     string
		patterns string
		max      int
		code     string
	}{
		{"invalid regex", `["a", "("]`, 4, types.CodeInvalidPattern},
		{"unknown set", "cobol", 4, types.CodeInvalidPattern},
		{"zero cache size", `["a"]`, 0, types.CodeInvalidCacheSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := createScanner(js.Value{}, []js.Value{js.ValueOf(tt.patterns), js.ValueOf(tt.max)})
			resultMap, ok := result.(map[string]interface{})
			if !ok {
				t.Fatalf("Expected map result, got %T", result)
			}
			if resultMap["code"] != tt.code {
				t.Errorf("Expected code %s, got %v (%v)", tt.code, resultMap["code"], resultMap["error"])
			}
		})
	}
}

// TestDestroyScanner tests that a destroyed scanner can no longer be used
func TestDestroyScanner(t *testing.T) {
	id := mustCreate(t, `["a"]`, 4)

	if result := destroyScanner(js.Value{}, []js.Value{js.ValueOf(id)}); result != nil {
		t.Fatalf("Expected nil result, got %v", result)
	}

	result := findNextMatch(js.Value{}, []js.Value{js.ValueOf(id), js.ValueOf("a"), js.ValueOf(0)})
	resultMap, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected error map, got %T", result)
	}
	if resultMap["code"] != types.CodeNotFound {
		t.Errorf("Expected NOT_FOUND, got %v", resultMap["code"])
	}

	result = destroyScanner(js.Value{}, []js.Value{js.ValueOf(id)})
	if resultMap, ok := result.(map[string]interface{}); !ok || resultMap["code"] != types.CodeNotFound {
		t.Errorf("Expected NOT_FOUND on second destroy, got %v", result)
	}
}

// TestGetPatternSets tests listing built-in pattern sets
func TestGetPatternSets(t *testing.T) {
	result := getPatternSets(js.Value{}, nil)
	jsonStr, ok := result.(string)
	if !ok {
		t.Fatalf("Expected string result, got %T", result)
	}

	var sets []*types.PatternSet
	if err := json.Unmarshal([]byte(jsonStr), &sets); err != nil {
		t.Fatalf("Failed to parse pattern sets: %v", err)
	}
	if len(sets) == 0 {
		t.Error("Expected at least one built-in pattern set")
	}
}
