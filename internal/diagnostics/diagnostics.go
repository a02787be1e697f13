package diagnostics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/samsaffron/tonenotes/internal/tone"
)

// LogName is the append-only JSONL log of every recorded failure.
const LogName = "rewrite-failures.jsonl"

// RewriteFailure contains diagnostic data for a tone rewrite that failed.
type RewriteFailure struct {
	Timestamp  time.Time       `json:"timestamp"`
	NoteID     string          `json:"note_id,omitempty"`
	Generation uint64          `json:"generation"`
	Service    string          `json:"service,omitempty"`
	Coordinate tone.Coordinate `json:"coordinate"`
	Tones      tone.Set        `json:"tones"`
	Reason     string          `json:"reason"`
	Status     int             `json:"status,omitempty"`
	Timeout    bool            `json:"timeout,omitempty"`

	// Full context
	Text string `json:"text"`
}

// Recorder writes failures under a directory. A nil *Recorder discards
// everything, so callers need not check whether diagnostics are enabled.
type Recorder struct {
	dir string
	mu  sync.Mutex
}

// NewRecorder returns a recorder writing to dir.
func NewRecorder(dir string) *Recorder {
	return &Recorder{dir: dir}
}

// Dir returns the output directory.
func (r *Recorder) Dir() string {
	if r == nil {
		return ""
	}
	return r.dir
}

// RecordRewriteFailure appends the failure to the JSONL log and writes a
// human-readable markdown file next to it.
func (r *Recorder) RecordRewriteFailure(f *RewriteFailure) error {
	if r == nil || f == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("failed to create diagnostics directory: %w", err)
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}

	if err := appendJSONL(filepath.Join(r.dir, LogName), f); err != nil {
		return err
	}

	ts := f.Timestamp.Format("2006-01-02T15-04-05")
	mdPath := filepath.Join(r.dir, fmt.Sprintf("rewrite-failure-%s-%d.md", ts, f.Generation))
	return writeMarkdown(mdPath, f)
}

// ReadRewriteFailures loads every failure recorded under dir, oldest first.
// A missing log yields no entries.
func ReadRewriteFailures(dir string) ([]RewriteFailure, error) {
	data, err := os.ReadFile(filepath.Join(dir, LogName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read diagnostics log: %w", err)
	}

	var out []RewriteFailure
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var f RewriteFailure
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			return out, fmt.Errorf("diagnostics log line %d: %w", i+1, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func appendJSONL(path string, f *RewriteFailure) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open diagnostics log: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write diagnostics log: %w", err)
	}
	return nil
}

func writeMarkdown(path string, f *RewriteFailure) error {
	var b strings.Builder

	b.WriteString("# Rewrite Failure\n\n")
	b.WriteString(fmt.Sprintf("**Timestamp:** %s\n", f.Timestamp.Format(time.RFC3339)))
	if f.NoteID != "" {
		b.WriteString(fmt.Sprintf("**Note:** %s\n", f.NoteID))
	}
	b.WriteString(fmt.Sprintf("**Generation:** %d\n", f.Generation))
	if f.Service != "" {
		b.WriteString(fmt.Sprintf("**Service:** %s\n", f.Service))
	}
	b.WriteString(fmt.Sprintf("**Coordinate:** %s\n", f.Coordinate))
	if f.Status != 0 {
		b.WriteString(fmt.Sprintf("**Status:** %d\n", f.Status))
	}
	if f.Timeout {
		b.WriteString("**Timed out:** yes\n")
	}
	b.WriteString(fmt.Sprintf("**Reason:** %s\n", f.Reason))
	b.WriteString("\n---\n\n")

	b.WriteString("## Tones\n\n")
	for _, d := range tone.Directions() {
		b.WriteString(fmt.Sprintf("- %s: %s\n", d, f.Tones.Get(d)))
	}
	b.WriteString("\n---\n\n")

	b.WriteString("## Selected Text\n\n")
	b.WriteString("```\n")
	b.WriteString(f.Text)
	if !strings.HasSuffix(f.Text, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write diagnostics markdown: %w", err)
	}
	return nil
}
