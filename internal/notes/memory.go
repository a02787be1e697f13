package notes

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samsaffron/tonenotes/internal/tone"
)

// MemoryStore keeps notes in process memory. It is used when persistence is
// disabled and in tests.
type MemoryStore struct {
	mu    sync.Mutex
	notes map[string]Note
	tones map[string]tone.Set
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notes: make(map[string]Note),
		tones: make(map[string]tone.Set),
	}
}

func (m *MemoryStore) Create(ctx context.Context, n *Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fillNote(n)
	if _, ok := m.notes[n.ID]; ok {
		return fmt.Errorf("insert note: %s already exists", n.ID)
	}
	m.notes[n.ID] = copyNote(n)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return nil, nil
	}
	out := copyNote(&n)
	return &out, nil
}

func (m *MemoryStore) Save(ctx context.Context, n *Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fillNote(n)
	if prev, ok := m.notes[n.ID]; ok {
		n.Created = prev.Created
	}
	m.notes[n.ID] = copyNote(n)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[id]; !ok {
		return fmt.Errorf("delete note %s: %w", id, ErrNotFound)
	}
	delete(m.notes, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	m.mu.Lock()
	out := make([]Summary, 0, len(m.notes))
	for _, n := range m.notes {
		out = append(out, n.Summary())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.After(out[j].Created)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts), nil
}

func (m *MemoryStore) GetTones(ctx context.Context, dialID string) (tone.Set, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.tones[dialID]
	return set, ok, nil
}

func (m *MemoryStore) SetTones(ctx context.Context, dialID string, set tone.Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tones[dialID] = set
	return nil
}

func (m *MemoryStore) ResetTones(ctx context.Context, dialID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tones, dialID)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// fillNote assigns an ID and timestamps where missing.
func fillNote(n *Note) {
	if n.ID == "" {
		n.ID = NewID()
	}
	if n.Created.IsZero() {
		n.Created = time.Now()
	}
	if n.Updated.IsZero() {
		n.Updated = n.Created
	}
}

func copyNote(n *Note) Note {
	out := *n
	out.Contents = append([]byte(nil), n.Contents...)
	return out
}

func page(in []Summary, opts ListOptions) []Summary {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return []Summary{}
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(in) {
		in = in[:opts.Limit]
	}
	return in
}
