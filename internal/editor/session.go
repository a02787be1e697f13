// Package editor owns the live document of one editing session. All
// mutations go through a Session, which versions every edit, records it as a
// single undo step and notifies listeners.
package editor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samsaffron/tonenotes/internal/document"
)

// DefaultMaxHistory bounds the undo stack.
const DefaultMaxHistory = 200

// ErrNothingToUndo and ErrNothingToRedo are returned when history is empty.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Source names who produced a change.
type Source string

const (
	SourceUser    Source = "user"
	SourceRewrite Source = "rewrite"
	SourceUndo    Source = "undo"
	SourceRedo    Source = "redo"
)

// Change describes one committed edit.
type Change struct {
	Source          Source
	Label           string
	VersionBefore   uint64
	VersionAfter    uint64
	SelectionBefore document.Selection
	SelectionAfter  document.Selection
	Document        document.Document
}

// Listener is called after a change is committed, outside the session lock.
type Listener func(Change)

type historyEntry struct {
	label string
	doc   document.Document
}

// Session holds the current document snapshot and its history.
type Session struct {
	mu         sync.Mutex
	doc        document.Document
	undo       []historyEntry
	redo       []historyEntry
	maxHistory int

	listenerMu sync.Mutex
	listeners  []Listener
}

// Option configures a Session.
type Option func(*Session)

// WithMaxHistory limits the number of undo steps kept. n <= 0 keeps the default.
func WithMaxHistory(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// NewSession starts a session on doc. doc must be structurally valid.
func NewSession(doc document.Document, opts ...Option) (*Session, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	s := &Session{doc: doc, maxHistory: DefaultMaxHistory}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Snapshot returns the current document. Snapshots are immutable values.
func (s *Session) Snapshot() document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Version returns the current document version.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Version
}

// OnChange registers a listener for committed changes.
func (s *Session) OnChange(l Listener) {
	s.listenerMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenerMu.Unlock()
}

// Select moves the selection. Both anchors must resolve; a collapsed
// selection (a caret) is allowed. Selection moves are not undo steps and do
// not bump the version.
func (s *Session) Select(sel document.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := document.Resolve(s.doc, sel); err != nil {
		return err
	}
	s.doc = s.doc.WithSelection(sel)
	return nil
}

// Replace swaps in new content from the user, for example a whole document
// posted by a client. It is recorded as one undo step.
func (s *Session) Replace(doc document.Document) (Change, error) {
	return s.Update(SourceUser, "edit", func(document.Document) (document.Document, error) {
		return doc, nil
	})
}

// Update runs fn on the current snapshot under the session lock and commits
// its result as a single undo step. If fn fails nothing changes. The
// committed document always carries the previous version + 1, whatever
// version fn returned.
func (s *Session) Update(source Source, label string, fn func(document.Document) (document.Document, error)) (Change, error) {
	s.mu.Lock()
	before := s.doc
	next, err := fn(before)
	if err != nil {
		s.mu.Unlock()
		return Change{}, err
	}
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return Change{}, fmt.Errorf("%s produced an invalid document: %w", label, err)
	}
	if _, err := document.Resolve(next, next.Selection); err != nil {
		next.Selection = document.Collapsed(document.Anchor{Block: next.Blocks[0].ID})
	}
	next.Version = before.Version + 1

	s.pushUndo(historyEntry{label: label, doc: before})
	s.redo = nil
	s.doc = next
	ch := changeOf(source, label, before, next)
	s.mu.Unlock()

	s.notify(ch)
	return ch, nil
}

// Undo restores the document as it was before the last change. The restored
// content gets a fresh version so stale-result checks keep working.
func (s *Session) Undo() (Change, error) {
	s.mu.Lock()
	if len(s.undo) == 0 {
		s.mu.Unlock()
		return Change{}, ErrNothingToUndo
	}
	entry := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]

	before := s.doc
	s.redo = append(s.redo, historyEntry{label: entry.label, doc: before})
	next := entry.doc
	next.Version = before.Version + 1
	s.doc = next
	ch := changeOf(SourceUndo, entry.label, before, next)
	s.mu.Unlock()

	s.notify(ch)
	return ch, nil
}

// Redo re-applies the last undone change.
func (s *Session) Redo() (Change, error) {
	s.mu.Lock()
	if len(s.redo) == 0 {
		s.mu.Unlock()
		return Change{}, ErrNothingToRedo
	}
	entry := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]

	before := s.doc
	s.pushUndo(historyEntry{label: entry.label, doc: before})
	next := entry.doc
	next.Version = before.Version + 1
	s.doc = next
	ch := changeOf(SourceRedo, entry.label, before, next)
	s.mu.Unlock()

	s.notify(ch)
	return ch, nil
}

// CanUndo reports the number of undo and redo steps available.
func (s *Session) CanUndo() (undo, redo int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo), len(s.redo)
}

func (s *Session) pushUndo(e historyEntry) {
	s.undo = append(s.undo, e)
	if over := len(s.undo) - s.maxHistory; over > 0 {
		s.undo = append([]historyEntry(nil), s.undo[over:]...)
	}
}

func (s *Session) notify(ch Change) {
	s.listenerMu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.listenerMu.Unlock()
	for _, l := range listeners {
		l(ch)
	}
}

func changeOf(source Source, label string, before, after document.Document) Change {
	return Change{
		Source:          source,
		Label:           label,
		VersionBefore:   before.Version,
		VersionAfter:    after.Version,
		SelectionBefore: before.Selection,
		SelectionAfter:  after.Selection,
		Document:        after,
	}
}
