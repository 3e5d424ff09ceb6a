package core

import (
	"encoding/json"
	"sort"
)

// ToolCallDelta is one streamed fragment of a tool call. The model may split
// a single call across many deltas sharing the same Index; ID and Type arrive
// once while Name and Arguments arrive as string pieces to be concatenated.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Type      string `json:"type,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolCallFragment accumulates deltas for a single index. Name and Arguments
// grow by concatenation and are never overwritten; ID and Type keep the first
// non-empty value seen.
type ToolCallFragment struct {
	Index     int
	ID        string
	Type      string
	Name      string
	Arguments string
}

// Complete reports whether the accumulated arguments parse as a JSON value.
// An empty argument string counts as complete (tools without parameters).
func (f *ToolCallFragment) Complete() bool {
	if f.Arguments == "" {
		return true
	}
	return json.Valid([]byte(f.Arguments))
}

// ToolCall converts the fragment into a materialized call.
func (f *ToolCallFragment) ToolCall() ToolCall {
	return ToolCall{
		ID:   f.ID,
		Type: f.Type,
		Function: FunctionCall{
			Name:      f.Name,
			Arguments: f.Arguments,
		},
	}
}

// FragmentAssembler rebuilds tool calls from streamed deltas. It is scoped to
// one streaming round and is not safe for concurrent use; the dispatch loop
// owns exactly one per round.
type FragmentAssembler struct {
	fragments map[int]*ToolCallFragment
}

// NewFragmentAssembler creates an empty assembler.
func NewFragmentAssembler() *FragmentAssembler {
	return &FragmentAssembler{fragments: map[int]*ToolCallFragment{}}
}

// ApplyDelta folds one streamed delta into the fragment for its index.
func (a *FragmentAssembler) ApplyDelta(d ToolCallDelta) {
	frag, ok := a.fragments[d.Index]
	if !ok {
		frag = &ToolCallFragment{Index: d.Index}
		a.fragments[d.Index] = frag
	}
	if d.ID != "" && frag.ID == "" {
		frag.ID = d.ID
	}
	if d.Type != "" && frag.Type == "" {
		frag.Type = d.Type
	}
	frag.Name += d.Name
	frag.Arguments += d.Arguments
}

// Len returns the number of distinct fragments accumulated so far.
func (a *FragmentAssembler) Len() int { return len(a.fragments) }

// Materialize returns the completed tool calls in index order together with
// the fragments whose arguments never became valid JSON. Incomplete fragments
// are returned rather than dropped so the caller can surface them as tool
// errors the model can react to.
func (a *FragmentAssembler) Materialize() ([]ToolCall, []*ToolCallFragment) {
	indexes := make([]int, 0, len(a.fragments))
	for idx := range a.fragments {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var calls []ToolCall
	var incomplete []*ToolCallFragment
	for _, idx := range indexes {
		frag := a.fragments[idx]
		if !frag.Complete() {
			incomplete = append(incomplete, frag)
			continue
		}
		calls = append(calls, frag.ToolCall())
	}
	return calls, incomplete
}
