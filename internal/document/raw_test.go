package document

import (
	"strings"
	"testing"
)

func TestRawRoundTrip(t *testing.T) {
	doc := testDoc("Title", "Some *styled* text")
	doc.Blocks[1].Styles = []StyleRange{{Style: StyleBold, Offset: 5, Length: 8}}

	data, err := MarshalRaw(doc)
	if err != nil {
		t.Fatalf("MarshalRaw() error = %v", err)
	}
	if !strings.Contains(string(data), `"inlineStyleRanges":[{"offset":5,"length":8,"style":"BOLD"}]`) {
		t.Fatalf("unexpected raw content: %s", data)
	}

	got, err := UnmarshalRaw(data)
	if err != nil {
		t.Fatalf("UnmarshalRaw() error = %v", err)
	}
	if len(got.Blocks) != 2 || got.Blocks[1].Text != doc.Blocks[1].Text || got.Blocks[1].ID != "b" {
		t.Fatalf("blocks = %+v", got.Blocks)
	}
	if len(got.Blocks[1].Styles) != 1 || got.Blocks[1].Styles[0] != doc.Blocks[1].Styles[0] {
		t.Fatalf("styles = %+v", got.Blocks[1].Styles)
	}
	if got.Selection != Collapsed(Anchor{Block: "a"}) {
		t.Fatalf("selection = %+v, want caret at start", got.Selection)
	}
}

func TestUnmarshalRawBrowserContent(t *testing.T) {
	raw := `{"blocks":[{"key":"3n1ok","text":"Shopping","type":"unstyled","depth":0,"inlineStyleRanges":[],"entityRanges":[],"data":{}},` +
		`{"key":"9ud2f","text":"milk eggs","type":"unstyled","depth":0,"inlineStyleRanges":[{"offset":0,"length":4,"style":"ITALIC"},{"offset":0,"length":99,"style":"CODE"}],"entityRanges":[],"data":{}}],"entityMap":{}}`

	doc, err := UnmarshalRaw([]byte(raw))
	if err != nil {
		t.Fatalf("UnmarshalRaw() error = %v", err)
	}
	if doc.Title() != "Shopping" {
		t.Fatalf("Title() = %q", doc.Title())
	}
	styles := doc.Blocks[1].Styles
	if len(styles) != 1 || styles[0].Style != StyleItalic {
		t.Fatalf("styles = %+v, want only ITALIC", styles)
	}
}

func TestRawStyleOffsetsCountUTF16Units(t *testing.T) {
	// The emoji is one rune but two UTF-16 units, so "bold" starts at unit 6
	// and rune 5.
	raw := `{"blocks":[{"key":"k1","text":"ok \ud83d\ude00 bold","type":"unstyled","depth":0,` +
		`"inlineStyleRanges":[{"offset":6,"length":4,"style":"BOLD"}],"entityRanges":[],"data":{}}],"entityMap":{}}`

	doc, err := UnmarshalRaw([]byte(raw))
	if err != nil {
		t.Fatalf("UnmarshalRaw() error = %v", err)
	}
	want := StyleRange{Style: StyleBold, Offset: 5, Length: 4}
	if styles := doc.Blocks[0].Styles; len(styles) != 1 || styles[0] != want {
		t.Fatalf("styles = %+v, want %+v", styles, want)
	}

	data, err := MarshalRaw(doc)
	if err != nil {
		t.Fatalf("MarshalRaw() error = %v", err)
	}
	if !strings.Contains(string(data), `"inlineStyleRanges":[{"offset":6,"length":4,"style":"BOLD"}]`) {
		t.Fatalf("offsets not written back as UTF-16 units: %s", data)
	}
}

func TestUnmarshalRawEmpty(t *testing.T) {
	doc, err := UnmarshalRaw([]byte(`{"blocks":[],"entityMap":{}}`))
	if err != nil {
		t.Fatalf("UnmarshalRaw() error = %v", err)
	}
	if len(doc.Blocks) != 1 || doc.Blocks[0].Text != "" {
		t.Fatalf("blocks = %+v, want one empty block", doc.Blocks)
	}
	if doc.Title() != UntitledTitle {
		t.Fatalf("Title() = %q, want %q", doc.Title(), UntitledTitle)
	}
}

func TestUnmarshalRawInvalid(t *testing.T) {
	if _, err := UnmarshalRaw([]byte(`{"blocks":`)); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
	dup := `{"blocks":[{"key":"x","text":"a"},{"key":"x","text":"b"}]}`
	if _, err := UnmarshalRaw([]byte(dup)); err == nil {
		t.Fatal("expected error for duplicate block keys")
	}
}

func TestMarkdown(t *testing.T) {
	doc := testDoc("My note", "plain", "a bold and italic word")
	doc.Blocks[2].Styles = []StyleRange{
		{Style: StyleBold, Offset: 2, Length: 4},
		{Style: StyleItalic, Offset: 11, Length: 6},
	}
	want := "# My note\n\nplain\n\na **bold** and _italic_ word\n"
	if got := Markdown(doc); got != want {
		t.Fatalf("Markdown() = %q, want %q", got, want)
	}
}

func TestFromTextAndTitle(t *testing.T) {
	doc := FromText("  \nbody")
	if len(doc.Blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(doc.Blocks))
	}
	if doc.Title() != UntitledTitle {
		t.Fatalf("Title() = %q, want %q", doc.Title(), UntitledTitle)
	}
	if doc.Blocks[0].ID == doc.Blocks[1].ID {
		t.Fatal("block ids should be unique")
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}
