// Package notes persists notes and per-dial tone descriptors.
package notes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samsaffron/tonenotes/internal/document"
	"github.com/samsaffron/tonenotes/internal/tone"
)

// ErrNotFound is returned by Delete for unknown notes.
var ErrNotFound = errors.New("note not found")

// Note is a stored document. Contents holds the raw content JSON of the
// document; the selection and version are not persisted.
type Note struct {
	ID       string    `json:"id"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	Title    string    `json:"title"`
	Contents []byte    `json:"-"`
}

// Summary is the listing form of a note.
type Summary struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// ListOptions limits List results. Zero Limit means no limit.
type ListOptions struct {
	Limit  int
	Offset int
}

// Store is the interface for note persistence. Get returns (nil, nil) for a
// missing note. Writes are visible to the next read.
type Store interface {
	Create(ctx context.Context, n *Note) error
	Get(ctx context.Context, id string) (*Note, error)
	Save(ctx context.Context, n *Note) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]Summary, error)

	// Dial descriptor sets. GetTones reports false when the dial has none.
	GetTones(ctx context.Context, dialID string) (tone.Set, bool, error)
	SetTones(ctx context.Context, dialID string, set tone.Set) error
	ResetTones(ctx context.Context, dialID string) error

	Close() error
}

// NewID returns a fresh note identifier.
func NewID() string {
	return uuid.NewString()
}

// NewNote wraps doc in a note with a fresh ID.
func NewNote(doc document.Document) (*Note, error) {
	n := &Note{ID: NewID()}
	if err := n.SetDocument(doc, time.Now()); err != nil {
		return nil, err
	}
	n.Created = n.Updated
	return n, nil
}

// Document decodes the note contents.
func (n *Note) Document() (document.Document, error) {
	if len(n.Contents) == 0 {
		return document.New(), nil
	}
	return document.UnmarshalRaw(n.Contents)
}

// SetDocument replaces the contents and title with those of doc.
func (n *Note) SetDocument(doc document.Document, now time.Time) error {
	contents, err := document.MarshalRaw(doc)
	if err != nil {
		return err
	}
	n.Contents = contents
	n.Title = doc.Title()
	n.Updated = now
	return nil
}

// Summary returns the listing form of n.
func (n *Note) Summary() Summary {
	return Summary{ID: n.ID, Title: n.Title, Created: n.Created, Updated: n.Updated}
}

// Tones returns the descriptor set stored for dialID. Unset directions, or
// a dial with nothing stored, use fallback. A zero fallback means the
// built-in defaults.
func Tones(ctx context.Context, s Store, dialID string, fallback tone.Set) (tone.Set, error) {
	fallback = fallback.Merge(tone.Defaults())
	set, ok, err := s.GetTones(ctx, dialID)
	if err != nil {
		return tone.Set{}, err
	}
	if !ok {
		return fallback, nil
	}
	return set.Merge(fallback), nil
}

// NewStore opens the SQLite store at path, or an in-memory store when
// persistence is disabled.
func NewStore(enabled bool, path string) (Store, error) {
	if !enabled {
		return NewMemoryStore(), nil
	}
	return NewSQLiteStore(path)
}
