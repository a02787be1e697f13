package editor

import (
	"errors"
	"testing"

	"github.com/samsaffron/tonenotes/internal/document"
)

func newTestSession(t *testing.T, texts ...string) *Session {
	t.Helper()
	s, err := NewSession(document.New(texts...))
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

func spliceFn(sel document.Selection, text string) func(document.Document) (document.Document, error) {
	return func(d document.Document) (document.Document, error) {
		return document.Splice(d, sel, text)
	}
}

func TestUpdateIsOneUndoStep(t *testing.T) {
	s := newTestSession(t, "The quick brown fox")
	id := s.Snapshot().Blocks[0].ID
	original := s.Snapshot()

	ch, err := s.Update(SourceRewrite, "rewrite", spliceFn(document.Span(id, 4, 9), "kinda fast"))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if ch.VersionBefore != 0 || ch.VersionAfter != 1 {
		t.Fatalf("versions = %d -> %d, want 0 -> 1", ch.VersionBefore, ch.VersionAfter)
	}
	if got := s.Snapshot().Blocks[0].Text; got != "The kinda fast brown fox" {
		t.Fatalf("text = %q", got)
	}

	if _, err := s.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	got := s.Snapshot()
	if got.Blocks[0].Text != original.Blocks[0].Text {
		t.Fatalf("after undo text = %q, want %q", got.Blocks[0].Text, original.Blocks[0].Text)
	}
	if got.Version != 2 {
		t.Fatalf("after undo version = %d, want 2", got.Version)
	}
	if _, err := s.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("second Undo() err = %v, want ErrNothingToUndo", err)
	}

	if _, err := s.Redo(); err != nil {
		t.Fatalf("Redo() error = %v", err)
	}
	if got := s.Snapshot(); got.Blocks[0].Text != "The kinda fast brown fox" || got.Version != 3 {
		t.Fatalf("after redo = %q v%d", got.Blocks[0].Text, got.Version)
	}
}

func TestUpdateFailureLeavesDocument(t *testing.T) {
	s := newTestSession(t, "hello")
	before := s.Snapshot()

	_, err := s.Update(SourceRewrite, "rewrite", spliceFn(document.Span("missing", 0, 1), "x"))
	if !errors.Is(err, document.ErrStaleSelection) {
		t.Fatalf("Update() err = %v, want stale selection", err)
	}
	if after := s.Snapshot(); after.Version != before.Version || after.Blocks[0].Text != "hello" {
		t.Fatalf("document changed: %+v", after)
	}
	if undo, _ := s.CanUndo(); undo != 0 {
		t.Fatalf("undo steps = %d, want 0", undo)
	}
}

func TestNewEditClearsRedo(t *testing.T) {
	s := newTestSession(t, "abc")
	id := s.Snapshot().Blocks[0].ID

	if _, err := s.Update(SourceUser, "type", spliceFn(document.Span(id, 3, 3), "d")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Undo(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Update(SourceUser, "type", spliceFn(document.Span(id, 0, 0), "z")); err != nil {
		t.Fatal(err)
	}
	if _, redo := s.CanUndo(); redo != 0 {
		t.Fatalf("redo steps = %d, want 0", redo)
	}
	if _, err := s.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Fatalf("Redo() err = %v, want ErrNothingToRedo", err)
	}
}

func TestMaxHistory(t *testing.T) {
	s, err := NewSession(document.New("a"), WithMaxHistory(2))
	if err != nil {
		t.Fatal(err)
	}
	id := s.Snapshot().Blocks[0].ID
	for i := 0; i < 5; i++ {
		if _, err := s.Update(SourceUser, "type", spliceFn(document.Span(id, 0, 0), "x")); err != nil {
			t.Fatal(err)
		}
	}
	if undo, _ := s.CanUndo(); undo != 2 {
		t.Fatalf("undo steps = %d, want 2", undo)
	}
}

func TestSelect(t *testing.T) {
	s := newTestSession(t, "hello", "world")
	doc := s.Snapshot()
	sel := document.Selection{
		Anchor: document.Anchor{Block: doc.Blocks[0].ID, Offset: 1},
		Focus:  document.Anchor{Block: doc.Blocks[1].ID, Offset: 2},
	}
	if err := s.Select(sel); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got := s.Snapshot(); got.Selection != sel || got.Version != doc.Version {
		t.Fatalf("selection = %+v v%d", got.Selection, got.Version)
	}
	if err := s.Select(document.Span("nope", 0, 1)); !errors.Is(err, document.ErrStaleSelection) {
		t.Fatalf("Select(stale) err = %v", err)
	}
}

func TestListenersSeeCommittedChanges(t *testing.T) {
	s := newTestSession(t, "hello")
	var got []Change
	s.OnChange(func(c Change) {
		// Listeners run outside the lock and may read the session.
		if s.Version() != c.VersionAfter {
			t.Errorf("listener saw version %d, change says %d", s.Version(), c.VersionAfter)
		}
		got = append(got, c)
	})

	next := document.New("replaced")
	if _, err := s.Replace(next); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Undo(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Source != SourceUser || got[1].Source != SourceUndo {
		t.Fatalf("changes = %+v", got)
	}
	if got[0].Document.Blocks[0].Text != "replaced" {
		t.Fatalf("change document = %+v", got[0].Document)
	}
}

func TestReplaceRepairsUnresolvableSelection(t *testing.T) {
	s := newTestSession(t, "hello")
	next := document.New("new text")
	next.Selection = document.Span("elsewhere", 0, 3)

	if _, err := s.Replace(next); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	got := s.Snapshot()
	if !got.Selection.IsCollapsed() || got.Selection.Anchor.Block != got.Blocks[0].ID {
		t.Fatalf("selection = %+v, want caret in first block", got.Selection)
	}
}
