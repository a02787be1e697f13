package document

import (
	"encoding/json"
	"fmt"
	"unicode/utf16"
)

// Raw content is the storage form of a document. It follows the shape of the
// rich-text editor's raw content export so notes written by the browser
// client load unchanged. Style offsets in raw content count UTF-16 code
// units, as the browser does; they are converted to runes on the way in and
// back on the way out. The selection is not part of raw content.

type rawContent struct {
	Blocks    []rawBlock     `json:"blocks"`
	EntityMap map[string]any `json:"entityMap"`
}

type rawBlock struct {
	Key               string          `json:"key"`
	Text              string          `json:"text"`
	Type              string          `json:"type"`
	Depth             int             `json:"depth"`
	InlineStyleRanges []rawStyleRange `json:"inlineStyleRanges"`
	EntityRanges      []any           `json:"entityRanges"`
	Data              map[string]any  `json:"data"`
}

type rawStyleRange struct {
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	Style  string `json:"style"`
}

// MarshalRaw encodes the blocks of d as raw content JSON.
func MarshalRaw(d Document) ([]byte, error) {
	raw := rawContent{
		Blocks:    make([]rawBlock, len(d.Blocks)),
		EntityMap: map[string]any{},
	}
	for i, b := range d.Blocks {
		rb := rawBlock{
			Key:               string(b.ID),
			Text:              b.Text,
			Type:              "unstyled",
			InlineStyleRanges: make([]rawStyleRange, 0, len(b.Styles)),
			EntityRanges:      []any{},
			Data:              map[string]any{},
		}
		for _, sr := range b.Styles {
			start := utf16Offset(b.Text, sr.Offset)
			rb.InlineStyleRanges = append(rb.InlineStyleRanges, rawStyleRange{
				Offset: start,
				Length: utf16Offset(b.Text, sr.End()) - start,
				Style:  string(sr.Style),
			})
		}
		raw.Blocks[i] = rb
	}
	return json.Marshal(raw)
}

// UnmarshalRaw decodes raw content JSON. Styles this package does not model
// are dropped. Empty content yields a document with one empty block.
func UnmarshalRaw(data []byte) (Document, error) {
	var raw rawContent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("decode raw content: %w", err)
	}
	if len(raw.Blocks) == 0 {
		return New(), nil
	}

	blocks := make([]Block, len(raw.Blocks))
	for i, rb := range raw.Blocks {
		b := Block{ID: BlockID(rb.Key), Text: rb.Text}
		if b.ID == "" {
			b.ID = NewBlockID()
		}
		n := b.Len()
		for _, sr := range rb.InlineStyleRanges {
			style := Style(sr.Style)
			if !style.Valid() {
				continue
			}
			start := runeOffset(b.Text, sr.Offset)
			end := runeOffset(b.Text, sr.Offset+sr.Length)
			if c, ok := clip(StyleRange{Style: style, Offset: start, Length: end - start}, 0, n); ok {
				b.Styles = append(b.Styles, c)
			}
		}
		b.Styles = normalizeStyles(b.Styles)
		blocks[i] = b
	}

	d := Document{
		Blocks:    blocks,
		Selection: Collapsed(Anchor{Block: blocks[0].ID}),
	}
	if err := d.Validate(); err != nil {
		return Document{}, err
	}
	return d, nil
}

// utf16Offset converts a rune offset in s to UTF-16 code units. Offsets past
// the end count one unit per missing rune.
func utf16Offset(s string, runes int) int {
	units, n := 0, 0
	for _, r := range s {
		if n == runes {
			return units
		}
		units += utf16.RuneLen(r)
		n++
	}
	return units + runes - n
}

// runeOffset converts a UTF-16 offset in s to runes. An offset inside a
// surrogate pair rounds up to the end of that rune.
func runeOffset(s string, units int) int {
	acc, n := 0, 0
	for _, r := range s {
		if acc >= units {
			return n
		}
		acc += utf16.RuneLen(r)
		n++
	}
	if units > acc {
		return n + units - acc
	}
	return n
}
