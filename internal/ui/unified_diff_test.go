package ui

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/samsaffron/tonenotes/internal/document"
)

func TestUnifiedDiffLineNumbers(t *testing.T) {
	tests := []struct {
		name       string
		oldContent string
		newContent string
		wantLines  []string // Expected line number prefixes in order
	}{
		{
			name:       "replacement with fewer lines",
			oldContent: "line1\nold2\nold3\nold4\nline5\n",
			newContent: "line1\nnew2\nline5\n",
			// Context line1 (1), delete old2-old4 (virtual 2,3,4), add new2 (2), context line5 (3)
			wantLines: []string{"1 ", "2-", "3-", "4-", "2+", "3 "},
		},
		{
			name:       "replacement with more lines",
			oldContent: "line1\nold2\nline3\n",
			newContent: "line1\nnew2\nnew3\nnew4\nline3\n",
			// Context line1 (1), delete old2 (2), add new2-new4 (2-4), context line3 (5)
			wantLines: []string{"1 ", "2-", "2+", "3+", "4+", "5 "},
		},
		{
			name:       "pure deletion",
			oldContent: "line1\ndelete_me\nline3\n",
			newContent: "line1\nline3\n",
			// Context line1 (1), delete delete_me (2), context line3 (2)
			wantLines: []string{"1 ", "2-", "2 "},
		},
		{
			name:       "pure addition",
			oldContent: "line1\nline2\n",
			newContent: "line1\nnew_line\nline2\n",
			// Context line1 (1), add new_line (2), context line2 (3)
			wantLines: []string{"1 ", "2+", "3 "},
		},
	}

	// Matches patterns like "  1  " (context), "  2- " (deletion), "  3+ " (addition)
	lineNumRe := regexp.MustCompile(`(\d+)([-+ ]) `)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			PrintUnifiedDiff(&buf, "test.txt", tt.oldContent, tt.newContent)
			output := buf.String()

			// Extract all line number prefixes
			matches := lineNumRe.FindAllStringSubmatch(output, -1)

			var gotLines []string
			for _, m := range matches {
				gotLines = append(gotLines, m[1]+m[2])
			}

			// Compare
			if len(gotLines) != len(tt.wantLines) {
				t.Errorf("got %d line prefixes, want %d\ngot:  %v\nwant: %v",
					len(gotLines), len(tt.wantLines), gotLines, tt.wantLines)
				return
			}

			for i := range tt.wantLines {
				if gotLines[i] != tt.wantLines[i] {
					t.Errorf("line %d: got %q, want %q\nfull got:  %v\nfull want: %v",
						i, gotLines[i], tt.wantLines[i], gotLines, tt.wantLines)
				}
			}
		})
	}
}

func TestUnifiedDiffOfRewrittenNote(t *testing.T) {
	var buf bytes.Buffer
	PrintUnifiedDiff(&buf, "groceries", "Groceries\nThe quick brown fox", "Groceries\nThe kinda fast brown fox")
	out := buf.String()

	for _, want := range []string{
		"Rewrite: groceries",
		"  1  Groceries",
		"  2- The quick brown fox",
		"  2+ The kinda fast brown fox",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("diff missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("non-terminal output contains ANSI escapes: %q", out)
	}
}

func TestUnifiedDiffNoChange(t *testing.T) {
	var buf bytes.Buffer
	PrintUnifiedDiff(&buf, "same", "a\nb", "a\nb")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestRenderNotePlainWhenNotTerminal(t *testing.T) {
	doc := document.New("Groceries", "milk and eggs")
	doc.Blocks[1].Styles = []document.StyleRange{{Style: document.StyleBold, Offset: 0, Length: 4}}

	var buf bytes.Buffer
	if err := RenderNote(&buf, doc); err != nil {
		t.Fatalf("RenderNote() error = %v", err)
	}
	want := "# Groceries\n\n**milk** and eggs\n"
	if buf.String() != want {
		t.Fatalf("RenderNote() = %q, want %q", buf.String(), want)
	}
}

func TestRenderMarkdownStylesText(t *testing.T) {
	out := RenderMarkdown("# Title\n\nsome **bold** text", 40)
	if !strings.Contains(out, "Title") || !strings.Contains(out, "bold") {
		t.Fatalf("RenderMarkdown() lost content: %q", out)
	}
	if RenderMarkdown("", 40) != "" {
		t.Fatal("empty input should render empty")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"a longer title", 8, "a lon..."},
		{"héllo wörld", 6, "hél..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
