// Package encode converts match results into the wire shape returned to hosts.
package encode

import (
	"encoding/json"

	"github.com/praetorian-inc/tmscan/pkg/types"
)

// CaptureIndex is one capture span on the wire.
type CaptureIndex struct {
	Start  int `json:"start"`
	End    int `json:"end"`
	Length int `json:"length"`
}

// WireMatch is the host-facing form of a successful match.
// CaptureIndices[0] is the whole match; CaptureIndices[i] is group i.
type WireMatch struct {
	Index          int            `json:"index"`
	Tag            string         `json:"tag,omitempty"`
	CaptureIndices []CaptureIndex `json:"captureIndices"`
}

// Match encodes r, returning nil when nothing matched.
// Groups that did not participate are encoded as {-1, -1, 0}.
func Match(r types.MatchResult) *WireMatch {
	if !r.Matched {
		return nil
	}

	indices := make([]CaptureIndex, 0, len(r.Captures)+1)
	indices = append(indices, CaptureIndex{
		Start:  r.Start,
		End:    r.End,
		Length: r.Len(),
	})
	for _, c := range r.Captures {
		indices = append(indices, CaptureIndex{
			Start:  c.Start,
			End:    c.End,
			Length: c.Len(),
		})
	}

	return &WireMatch{
		Index:          r.PatternIndex,
		Tag:            r.Tag,
		CaptureIndices: indices,
	}
}

// JSON encodes r as JSON. An unmatched result encodes as null.
func JSON(r types.MatchResult) ([]byte, error) {
	return json.Marshal(Match(r))
}

// Decode converts a wire match back into a MatchResult. A nil match decodes
// to types.NoMatch().
func Decode(w *WireMatch) types.MatchResult {
	if w == nil || len(w.CaptureIndices) == 0 {
		return types.NoMatch()
	}

	r := types.MatchResult{
		Matched:      true,
		Start:        w.CaptureIndices[0].Start,
		End:          w.CaptureIndices[0].End,
		PatternIndex: w.Index,
		Tag:          w.Tag,
	}
	if len(w.CaptureIndices) > 1 {
		r.Captures = make([]types.CaptureRange, len(w.CaptureIndices)-1)
		for i, c := range w.CaptureIndices[1:] {
			r.Captures[i] = types.CaptureRange{Start: c.Start, End: c.End}
		}
	}
	return r
}
