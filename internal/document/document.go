// Package document models an editor document as immutable snapshots of
// ordered text blocks, and implements selection extraction and splicing.
//
// Offsets everywhere in this package count runes, not bytes.
package document

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// UntitledTitle is the title of a document whose first block is empty.
const UntitledTitle = "Untitled"

// BlockID identifies a block. It stays stable across edits to other blocks.
type BlockID string

// NewBlockID returns a fresh random block identifier.
func NewBlockID() BlockID {
	return BlockID(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Style is an inline character style.
type Style string

const (
	StyleBold      Style = "BOLD"
	StyleItalic    Style = "ITALIC"
	StyleUnderline Style = "UNDERLINE"
)

// Valid reports whether s is one of the supported inline styles.
func (s Style) Valid() bool {
	switch s {
	case StyleBold, StyleItalic, StyleUnderline:
		return true
	}
	return false
}

// StyleRange applies a style to Length runes starting at Offset.
type StyleRange struct {
	Style  Style `json:"style"`
	Offset int   `json:"offset"`
	Length int   `json:"length"`
}

// End returns the exclusive end offset of the range.
func (r StyleRange) End() int {
	return r.Offset + r.Length
}

// Block is one paragraph of text.
type Block struct {
	ID     BlockID      `json:"id"`
	Text   string       `json:"text"`
	Styles []StyleRange `json:"styles,omitempty"`
}

// Len returns the block length in runes.
func (b Block) Len() int {
	return utf8.RuneCountInString(b.Text)
}

// Document is an immutable snapshot. Functions in this package never modify
// a Document in place; edits return a new value with a bumped Version.
type Document struct {
	Blocks    []Block   `json:"blocks"`
	Selection Selection `json:"selection"`
	Version   uint64    `json:"version"`
}

// New builds a document with one block per text. With no texts it returns a
// document holding a single empty block. The selection is collapsed at the
// start of the first block.
func New(texts ...string) Document {
	if len(texts) == 0 {
		texts = []string{""}
	}
	blocks := make([]Block, len(texts))
	for i, t := range texts {
		blocks[i] = Block{ID: NewBlockID(), Text: t}
	}
	return Document{
		Blocks:    blocks,
		Selection: Collapsed(Anchor{Block: blocks[0].ID}),
	}
}

// FromText splits text on newlines into blocks.
func FromText(text string) Document {
	return New(strings.Split(text, "\n")...)
}

// Index returns the position of the block with the given ID, or -1.
func (d Document) Index(id BlockID) int {
	for i, b := range d.Blocks {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// Block returns the block with the given ID.
func (d Document) Block(id BlockID) (Block, bool) {
	if i := d.Index(id); i >= 0 {
		return d.Blocks[i], true
	}
	return Block{}, false
}

// Title derives the note title from the first block.
func (d Document) Title() string {
	if len(d.Blocks) == 0 {
		return UntitledTitle
	}
	if t := strings.TrimSpace(d.Blocks[0].Text); t != "" {
		return t
	}
	return UntitledTitle
}

// PlainText joins all blocks with newlines.
func (d Document) PlainText() string {
	parts := make([]string, len(d.Blocks))
	for i, b := range d.Blocks {
		parts[i] = b.Text
	}
	return strings.Join(parts, "\n")
}

// WithSelection returns a copy of d with sel as its selection. The version is
// unchanged: moving the selection is not a content edit.
func (d Document) WithSelection(sel Selection) Document {
	d.Selection = sel
	return d
}

// Validate checks structural invariants: at least one block, unique
// non-empty IDs and style ranges inside their block.
func (d Document) Validate() error {
	if len(d.Blocks) == 0 {
		return fmt.Errorf("document has no blocks")
	}
	seen := make(map[BlockID]struct{}, len(d.Blocks))
	for i, b := range d.Blocks {
		if b.ID == "" {
			return fmt.Errorf("block %d has an empty id", i)
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("duplicate block id %q", b.ID)
		}
		seen[b.ID] = struct{}{}
		n := b.Len()
		for _, r := range b.Styles {
			if !r.Style.Valid() {
				return fmt.Errorf("block %q: unsupported style %q", b.ID, r.Style)
			}
			if r.Offset < 0 || r.Length < 0 || r.End() > n {
				return fmt.Errorf("block %q: style range %d+%d outside text of length %d", b.ID, r.Offset, r.Length, n)
			}
		}
	}
	return nil
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// sliceRunes returns s[from:to] measured in runes. Callers guarantee
// 0 <= from <= to <= runeLen(s).
func sliceRunes(s string, from, to int) string {
	if from == to {
		return ""
	}
	start, end := -1, len(s)
	i := 0
	for pos := range s {
		if i == from {
			start = pos
		}
		if i == to {
			end = pos
			break
		}
		i++
	}
	if start < 0 {
		return ""
	}
	return s[start:end]
}
