package document

import "sort"

// Splice replaces the text covered by sel with newText and returns the new
// snapshot. The start block keeps its ID and absorbs the tail of the end
// block; blocks strictly inside the selection and the end block itself are
// removed. newText is inserted as one run even if it contains newlines.
//
// The returned document selects exactly the inserted text and carries
// Version d.Version+1. d is left untouched.
func Splice(d Document, sel Selection, newText string) (Document, error) {
	r, err := Resolve(d, sel)
	if err != nil {
		return d, err
	}

	first := d.Blocks[r.StartIndex]
	last := d.Blocks[r.EndIndex]
	insertLen := runeLen(newText)
	startOff, endOff := r.Start.Offset, r.End.Offset

	merged := Block{
		ID:   first.ID,
		Text: sliceRunes(first.Text, 0, startOff) + newText + sliceRunes(last.Text, endOff, last.Len()),
	}

	var styles []StyleRange
	for _, sr := range first.Styles {
		if c, ok := clip(sr, 0, startOff); ok {
			styles = append(styles, c)
		}
	}
	shift := startOff + insertLen - endOff
	for _, sr := range last.Styles {
		if c, ok := clip(sr, endOff, last.Len()); ok {
			c.Offset += shift
			styles = append(styles, c)
		}
	}
	merged.Styles = normalizeStyles(styles)

	blocks := make([]Block, 0, len(d.Blocks)-(r.EndIndex-r.StartIndex))
	blocks = append(blocks, d.Blocks[:r.StartIndex]...)
	blocks = append(blocks, merged)
	blocks = append(blocks, d.Blocks[r.EndIndex+1:]...)

	return Document{
		Blocks:    blocks,
		Selection: Span(first.ID, startOff, startOff+insertLen),
		Version:   d.Version + 1,
	}, nil
}

// clip intersects sr with [lo, hi).
func clip(sr StyleRange, lo, hi int) (StyleRange, bool) {
	start := max(sr.Offset, lo)
	end := min(sr.End(), hi)
	if end <= start {
		return StyleRange{}, false
	}
	return StyleRange{Style: sr.Style, Offset: start, Length: end - start}, true
}

// normalizeStyles orders ranges and merges touching ranges of one style.
func normalizeStyles(in []StyleRange) []StyleRange {
	if len(in) == 0 {
		return nil
	}
	out := append([]StyleRange(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Style != out[j].Style {
			return out[i].Style < out[j].Style
		}
		return out[i].Offset < out[j].Offset
	})
	merged := out[:1]
	for _, sr := range out[1:] {
		prev := &merged[len(merged)-1]
		if sr.Style == prev.Style && sr.Offset <= prev.End() {
			if sr.End() > prev.End() {
				prev.Length = sr.End() - prev.Offset
			}
			continue
		}
		merged = append(merged, sr)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Offset < merged[j].Offset
	})
	return merged
}
