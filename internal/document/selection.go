package document

import (
	"errors"
	"fmt"
)

// ErrStaleSelection matches any *StaleSelectionError via errors.Is.
var ErrStaleSelection = errors.New("stale selection")

// StaleSelectionError reports a selection that no longer resolves against a
// document: its block is gone or its offset is past the end of the block.
type StaleSelectionError struct {
	Block  BlockID
	Offset int
	Reason string
}

func (e *StaleSelectionError) Error() string {
	return fmt.Sprintf("stale selection at %s:%d: %s", e.Block, e.Offset, e.Reason)
}

func (e *StaleSelectionError) Is(target error) bool {
	return target == ErrStaleSelection
}

// Anchor is a position inside a block.
type Anchor struct {
	Block  BlockID `json:"block"`
	Offset int     `json:"offset"`
}

// Selection is a directional range: Anchor is where the selection started,
// Focus is where it ends. Either may come first in document order.
type Selection struct {
	Anchor Anchor `json:"anchor"`
	Focus  Anchor `json:"focus"`
}

// Collapsed returns an empty selection (a caret) at a.
func Collapsed(a Anchor) Selection {
	return Selection{Anchor: a, Focus: a}
}

// Span selects runes [start, end) of a single block.
func Span(block BlockID, start, end int) Selection {
	return Selection{
		Anchor: Anchor{Block: block, Offset: start},
		Focus:  Anchor{Block: block, Offset: end},
	}
}

// IsCollapsed reports whether nothing is selected.
func (s Selection) IsCollapsed() bool {
	return s.Anchor == s.Focus
}

// Range is a selection resolved against a specific document, with Start
// before End in document order.
type Range struct {
	Start      Anchor
	End        Anchor
	StartIndex int
	EndIndex   int
}

// BlockCount returns how many blocks the range touches.
func (r Range) BlockCount() int {
	return r.EndIndex - r.StartIndex + 1
}

// Resolve normalizes sel against d. It fails with *StaleSelectionError when
// either anchor references a missing block or an offset outside its block.
func Resolve(d Document, sel Selection) (Range, error) {
	ai, err := locate(d, sel.Anchor)
	if err != nil {
		return Range{}, err
	}
	fi, err := locate(d, sel.Focus)
	if err != nil {
		return Range{}, err
	}

	start, end := sel.Anchor, sel.Focus
	si, ei := ai, fi
	if fi < ai || (fi == ai && sel.Focus.Offset < sel.Anchor.Offset) {
		start, end = end, start
		si, ei = ei, si
	}
	return Range{Start: start, End: end, StartIndex: si, EndIndex: ei}, nil
}

func locate(d Document, a Anchor) (int, error) {
	i := d.Index(a.Block)
	if i < 0 {
		return -1, &StaleSelectionError{Block: a.Block, Offset: a.Offset, Reason: "block not found"}
	}
	if a.Offset < 0 || a.Offset > d.Blocks[i].Len() {
		return -1, &StaleSelectionError{
			Block:  a.Block,
			Offset: a.Offset,
			Reason: fmt.Sprintf("offset outside block of length %d", d.Blocks[i].Len()),
		}
	}
	return i, nil
}
