package document

import "strings"

// Extract returns the text covered by sel. Block boundaries inside the
// selection become a single newline each. It reports false for a collapsed
// selection and for one that does not resolve against d.
func Extract(d Document, sel Selection) (string, bool) {
	if sel.IsCollapsed() {
		return "", false
	}
	r, err := Resolve(d, sel)
	if err != nil {
		return "", false
	}
	return ExtractRange(d, r), true
}

// ExtractRange returns the text of an already resolved range.
func ExtractRange(d Document, r Range) string {
	first := d.Blocks[r.StartIndex]
	if r.StartIndex == r.EndIndex {
		return sliceRunes(first.Text, r.Start.Offset, r.End.Offset)
	}

	var b strings.Builder
	b.WriteString(sliceRunes(first.Text, r.Start.Offset, first.Len()))
	for i := r.StartIndex + 1; i < r.EndIndex; i++ {
		b.WriteByte('\n')
		b.WriteString(d.Blocks[i].Text)
	}
	last := d.Blocks[r.EndIndex]
	b.WriteByte('\n')
	b.WriteString(sliceRunes(last.Text, 0, r.End.Offset))
	return b.String()
}
