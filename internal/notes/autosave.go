package notes

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samsaffron/tonenotes/internal/clock"
	"github.com/samsaffron/tonenotes/internal/debounce"
	"github.com/samsaffron/tonenotes/internal/editor"
)

// DefaultAutosave is the quiet period before a changed note is written.
const DefaultAutosave = time.Second

// Autosaver writes a live session back to its note after edits settle.
type Autosaver struct {
	store     Store
	session   *editor.Session
	clock     clock.Clock
	log       *slog.Logger
	debouncer *debounce.Debouncer[struct{}]

	mu      sync.Mutex
	note    Note
	saved   uint64 // version last written
	dirty   bool
	stopped bool
	lastErr error
}

// NewAutosaver watches session and saves it as note. A nil clock uses the
// wall clock; delay <= 0 uses DefaultAutosave.
func NewAutosaver(store Store, note *Note, session *editor.Session, c clock.Clock, delay time.Duration, log *slog.Logger) *Autosaver {
	if c == nil {
		c = clock.Real()
	}
	if delay <= 0 {
		delay = DefaultAutosave
	}
	if log == nil {
		log = slog.Default()
	}
	a := &Autosaver{
		store:   store,
		session: session,
		clock:   c,
		log:     log.With("note", note.ID),
		note:    copyNote(note),
		saved:   session.Version(),
	}
	a.debouncer = debounce.New(c, delay, func(struct{}) { a.save() })
	session.OnChange(a.changed)
	return a
}

func (a *Autosaver) changed(editor.Change) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.dirty = true
	a.mu.Unlock()
	a.debouncer.Trigger(struct{}{})
}

// Flush writes pending changes now.
func (a *Autosaver) Flush() error {
	a.debouncer.Cancel()
	return a.save()
}

// Stop flushes pending changes and detaches from the session.
func (a *Autosaver) Stop() error {
	err := a.Flush()
	a.detach()
	return err
}

// Discard detaches from the session without writing pending changes. It is
// used when the note itself is deleted.
func (a *Autosaver) Discard() {
	a.detach()
	a.debouncer.Cancel()
}

func (a *Autosaver) detach() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
}

// Err returns the error of the last save attempt, if it failed.
func (a *Autosaver) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Note returns the note as last saved.
func (a *Autosaver) Note() Note {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyNote(&a.note)
}

func (a *Autosaver) save() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil
	}

	doc := a.session.Snapshot()
	if !a.dirty && doc.Version == a.saved {
		return nil
	}
	note := copyNote(&a.note)
	if err := note.SetDocument(doc, a.clock.Now()); err != nil {
		a.lastErr = err
		return err
	}
	if err := a.store.Save(context.Background(), &note); err != nil {
		a.lastErr = err
		a.log.Warn("autosave failed", "error", err)
		return err
	}
	a.note = note
	a.saved = doc.Version
	a.dirty = false
	a.lastErr = nil
	a.log.Debug("note saved", "version", doc.Version)
	return nil
}
