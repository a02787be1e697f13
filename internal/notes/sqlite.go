package notes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samsaffron/tonenotes/internal/tone"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Schema for the notes database.
const schema = `
CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    contents TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at DESC);

-- Descriptor sets edited per dial
CREATE TABLE IF NOT EXISTS dial_tones (
    dial_id TEXT PRIMARY KEY,
    tones TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// NewSQLiteStore opens (creating if needed) the notes database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// schemaVersion is the current schema version. Fresh databases get the full
// schema and start here; older ones run migrations up to it.
const schemaVersion = 2

type migration struct {
	version     int
	description string
	up          func(db *sql.DB) error
}

// migrations upgrade databases created before a schema change. The schema
// const always holds the full current schema.
var migrations = []migration{
	{
		// Early databases derived titles on read
		version:     1,
		description: "add notes title column",
		up: func(db *sql.DB) error {
			if _, err := db.Exec("ALTER TABLE notes ADD COLUMN title TEXT NOT NULL DEFAULT ''"); err != nil {
				if !isDuplicateColumnError(err) {
					return err
				}
			}
			return nil
		},
	},
	{
		version:     2,
		description: "add dial_tones table",
		up: func(db *sql.DB) error {
			_, err := db.Exec(`
				CREATE TABLE IF NOT EXISTS dial_tones (
					dial_id TEXT PRIMARY KEY,
					tones TEXT NOT NULL,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`)
			return err
		},
	},
}

// initSchema creates or migrates the schema. The common case is a single
// SELECT.
func initSchema(db *sql.DB) error {
	var currentVersion int
	err := db.QueryRow("SELECT version FROM schema_version").Scan(&currentVersion)
	if err == nil && currentVersion >= schemaVersion {
		return nil
	}
	return initSchemaFull(db, err, currentVersion)
}

func initSchemaFull(db *sql.DB, versionErr error, currentVersion int) error {
	// Detect a pre-versioning database before the base schema creates tables.
	var tableCount int
	if err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='notes'
	`).Scan(&tableCount); err != nil {
		return fmt.Errorf("check notes table: %w", err)
	}

	if tableCount > 0 && versionErr != nil {
		// Old tables must be migrated before the base schema's indexes apply.
		if err := runMigrations(db, 0); err != nil {
			return err
		}
	}

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create base schema: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	if versionErr != nil && (versionErr == sql.ErrNoRows || strings.Contains(versionErr.Error(), "no such table")) {
		// Either fresh or just migrated from an unversioned database.
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("insert initial version: %w", err)
		}
		return nil
	} else if versionErr != nil {
		return fmt.Errorf("get current version: %w", versionErr)
	}

	if err := runMigrations(db, currentVersion); err != nil {
		return err
	}
	if _, err := db.Exec("UPDATE schema_version SET version = ?", schemaVersion); err != nil {
		return fmt.Errorf("update version to %d: %w", schemaVersion, err)
	}
	return nil
}

func runMigrations(db *sql.DB, from int) error {
	for _, m := range migrations {
		if m.version > from {
			if err := m.up(db); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
			}
		}
	}
	return nil
}

// isDuplicateColumnError checks if an error is due to a column already existing.
func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate column") ||
		strings.Contains(errStr, "already exists")
}

// Create inserts a new note.
func (s *SQLiteStore) Create(ctx context.Context, n *Note) error {
	fillNote(n)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, title, contents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.Title, string(n.Contents), n.Created.UTC(), n.Updated.UTC())
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// Get retrieves a note by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, contents, created_at, updated_at
		FROM notes WHERE id = ?`, id)

	var n Note
	var contents string
	err := row.Scan(&n.ID, &n.Title, &contents, &n.Created, &n.Updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan note: %w", err)
	}
	n.Contents = []byte(contents)
	return &n, nil
}

// Save writes a note, inserting it if it does not exist yet. The creation
// time of an existing note is kept.
func (s *SQLiteStore) Save(ctx context.Context, n *Note) error {
	fillNote(n)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, title, contents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    title = excluded.title,
		    contents = excluded.contents,
		    updated_at = excluded.updated_at`,
		n.ID, n.Title, string(n.Contents), n.Created.UTC(), n.Updated.UTC())
	if err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return nil
}

// Delete removes a note.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("delete note %s: %w", id, ErrNotFound)
	}
	return nil
}

// List returns note summaries, newest first.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	query := `
		SELECT id, title, created_at, updated_at
		FROM notes
		ORDER BY created_at DESC, id ASC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else if opts.Offset > 0 {
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	results := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Created, &sum.Updated); err != nil {
			return nil, fmt.Errorf("scan note summary: %w", err)
		}
		results = append(results, sum)
	}
	return results, rows.Err()
}

// GetTones loads the descriptor set of a dial.
func (s *SQLiteStore) GetTones(ctx context.Context, dialID string) (tone.Set, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT tones FROM dial_tones WHERE dial_id = ?", dialID).Scan(&data)
	if err == sql.ErrNoRows {
		return tone.Set{}, false, nil
	}
	if err != nil {
		return tone.Set{}, false, fmt.Errorf("scan dial tones: %w", err)
	}
	var set tone.Set
	if err := json.Unmarshal([]byte(data), &set); err != nil {
		return tone.Set{}, false, fmt.Errorf("decode dial tones: %w", err)
	}
	return set, true, nil
}

// SetTones stores the descriptor set of a dial.
func (s *SQLiteStore) SetTones(ctx context.Context, dialID string, set tone.Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode dial tones: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO dial_tones (dial_id, tones, updated_at)
		VALUES (?, ?, ?)`, dialID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save dial tones: %w", err)
	}
	return nil
}

// ResetTones forgets a dial's descriptors so the defaults apply again.
func (s *SQLiteStore) ResetTones(ctx context.Context, dialID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM dial_tones WHERE dial_id = ?", dialID)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
