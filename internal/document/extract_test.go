package document

import (
	"errors"
	"strings"
	"testing"
)

func testDoc(texts ...string) Document {
	blocks := make([]Block, len(texts))
	for i, t := range texts {
		blocks[i] = Block{ID: BlockID(string(rune('a' + i))), Text: t}
	}
	return Document{Blocks: blocks, Selection: Collapsed(Anchor{Block: "a"})}
}

func TestExtract(t *testing.T) {
	doc := testDoc("Hello world", "middle", "", "end here")

	tests := []struct {
		name string
		sel  Selection
		want string
	}{
		{
			name: "single block",
			sel:  Span("a", 6, 11),
			want: "world",
		},
		{
			name: "single block backwards",
			sel:  Span("a", 11, 6),
			want: "world",
		},
		{
			name: "two blocks",
			sel:  Selection{Anchor: Anchor{"a", 6}, Focus: Anchor{"b", 3}},
			want: "world\nmid",
		},
		{
			name: "across an empty block",
			sel:  Selection{Anchor: Anchor{"a", 6}, Focus: Anchor{"d", 3}},
			want: "world\nmiddle\n\nend",
		},
		{
			name: "backwards across blocks",
			sel:  Selection{Anchor: Anchor{"d", 3}, Focus: Anchor{"b", 0}},
			want: "middle\n\nend",
		},
		{
			name: "only the boundary",
			sel:  Selection{Anchor: Anchor{"a", 11}, Focus: Anchor{"b", 0}},
			want: "\n",
		},
		{
			name: "whole document",
			sel:  Selection{Anchor: Anchor{"a", 0}, Focus: Anchor{"d", 8}},
			want: "Hello world\nmiddle\n\nend here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(doc, tt.sel)
			if !ok {
				t.Fatalf("Extract() ok = false, want true")
			}
			if got != tt.want {
				t.Fatalf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJoinsOneNewlinePerBoundary(t *testing.T) {
	doc := testDoc("one", "two", "three", "four", "five")
	for n := 1; n <= len(doc.Blocks); n++ {
		last := doc.Blocks[n-1]
		sel := Selection{Anchor: Anchor{"a", 0}, Focus: Anchor{last.ID, last.Len()}}
		got, ok := Extract(doc, sel)
		if !ok {
			t.Fatalf("n=%d: Extract() ok = false", n)
		}
		if c := strings.Count(got, "\n"); c != n-1 {
			t.Fatalf("n=%d: got %d newlines in %q, want %d", n, c, got, n-1)
		}
	}
}

func TestExtractCollapsed(t *testing.T) {
	doc := testDoc("Hello")
	if got, ok := Extract(doc, Collapsed(Anchor{"a", 2})); ok || got != "" {
		t.Fatalf("Extract(collapsed) = (%q, %v), want (\"\", false)", got, ok)
	}
}

func TestExtractStale(t *testing.T) {
	doc := testDoc("Hello")
	if _, ok := Extract(doc, Span("zz", 0, 2)); ok {
		t.Fatal("Extract() on missing block should report false")
	}
	if _, ok := Extract(doc, Span("a", 0, 20)); ok {
		t.Fatal("Extract() with offset past end should report false")
	}
}

func TestExtractCountsRunes(t *testing.T) {
	doc := testDoc("héllo wörld 👋")
	got, ok := Extract(doc, Span("a", 6, 13))
	if !ok || got != "wörld 👋" {
		t.Fatalf("Extract() = (%q, %v), want (%q, true)", got, ok, "wörld 👋")
	}
}

func TestResolveStaleError(t *testing.T) {
	doc := testDoc("Hello")
	_, err := Resolve(doc, Span("gone", 0, 1))
	if !errors.Is(err, ErrStaleSelection) {
		t.Fatalf("Resolve() err = %v, want ErrStaleSelection", err)
	}
	var stale *StaleSelectionError
	if !errors.As(err, &stale) || stale.Block != "gone" {
		t.Fatalf("Resolve() err = %#v, want StaleSelectionError for block gone", err)
	}
}
