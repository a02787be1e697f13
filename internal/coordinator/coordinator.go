// Package coordinator turns tone dial movements into rewrites of the current
// selection. Dial events are debounced; each settled event issues at most one
// rewrite, and only the most recently issued rewrite may change the document.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samsaffron/tonenotes/internal/clock"
	"github.com/samsaffron/tonenotes/internal/debounce"
	"github.com/samsaffron/tonenotes/internal/diagnostics"
	"github.com/samsaffron/tonenotes/internal/document"
	"github.com/samsaffron/tonenotes/internal/editor"
	"github.com/samsaffron/tonenotes/internal/rewrite"
	"github.com/samsaffron/tonenotes/internal/tone"
)

const (
	DefaultDebounce = time.Second
	DefaultTimeout  = 30 * time.Second
)

// ErrClosed is returned for events delivered after Close.
var ErrClosed = errors.New("coordinator closed")

// OutcomeKind classifies how a settled dial event ended.
type OutcomeKind string

const (
	OutcomeApplied    OutcomeKind = "applied"
	OutcomeNoop       OutcomeKind = "noop"
	OutcomeSuperseded OutcomeKind = "superseded"
	OutcomeStale      OutcomeKind = "stale"
	OutcomeFailed     OutcomeKind = "failed"
)

// Outcome reports the end of one settled dial event.
type Outcome struct {
	Kind       OutcomeKind     `json:"kind"`
	Generation uint64          `json:"generation,omitempty"`
	Coordinate tone.Coordinate `json:"coordinate"`
	Text       string          `json:"text,omitempty"`
	Result     string          `json:"result,omitempty"`
	Version    uint64          `json:"version"`
	Err        error           `json:"-"`
	Error      string          `json:"error,omitempty"`
	At         time.Time       `json:"at"`
}

// FailureRecorder receives failed rewrites. *diagnostics.Recorder satisfies it.
type FailureRecorder interface {
	RecordRewriteFailure(*diagnostics.RewriteFailure) error
}

// Options configures a Coordinator. Zero values pick the defaults.
type Options struct {
	Debounce time.Duration
	Timeout  time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
	// NoteID labels log lines and diagnostics.
	NoteID      string
	Diagnostics FailureRecorder
	// OnOutcome is called once per settled event, without any lock held.
	OnOutcome func(Outcome)
}

type dialEvent struct {
	coord tone.Coordinate
	tones tone.Set
}

// issued is what a rewrite captured when it was stamped.
type issued struct {
	gen   uint64
	sel   document.Selection
	text  string
	coord tone.Coordinate
	tones tone.Set
}

// Coordinator serves one editor session.
type Coordinator struct {
	session   *editor.Session
	client    rewrite.Client
	opts      Options
	log       *slog.Logger
	debouncer *debounce.Debouncer[dialEvent]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu serializes issuing and applying. Lock order: mu, then the
	// session's own lock.
	mu         sync.Mutex
	generation uint64
	closed     bool
	last       *Outcome
}

// New creates a coordinator for session. Rewrites go through client,
// bounded by opts.Timeout.
func New(session *editor.Session, client rewrite.Client, opts Options) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.NoteID != "" {
		log = log.With("note", opts.NoteID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		session: session,
		client:  rewrite.WithTimeout(client, opts.Timeout),
		opts:    opts,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	c.debouncer = debounce.New(opts.Clock, opts.Debounce, c.settle)
	return c
}

// OnToneCoordinateChange records a dial movement. The document is read when
// the debounce window settles, not now.
func (c *Coordinator) OnToneCoordinateChange(coord tone.Coordinate, tones tone.Set) error {
	if err := coord.Validate(); err != nil {
		return err
	}
	if err := tones.Validate(); err != nil {
		return fmt.Errorf("invalid tones: %w", err)
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	c.debouncer.Trigger(dialEvent{coord: coord, tones: tones})
	return nil
}

// State returns the debounce phase.
func (c *Coordinator) State() debounce.State {
	return c.debouncer.State()
}

// Generation returns the generation of the most recently issued rewrite.
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// LastOutcome returns the most recent outcome, if any.
func (c *Coordinator) LastOutcome() (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Outcome{}, false
	}
	return *c.last, true
}

// Flush settles a pending dial event now instead of waiting for the window.
func (c *Coordinator) Flush() bool {
	return c.debouncer.Flush()
}

// Wait blocks until every issued rewrite has resolved.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close drops any pending event, cancels in-flight rewrites and waits for
// them to return. Results arriving after Close are discarded.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.debouncer.Cancel()
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) settle(ev dialEvent) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	doc := c.session.Snapshot()
	text, ok := document.Extract(doc, doc.Selection)
	// Whitespace has no tone to change.
	if !ok || strings.TrimSpace(text) == "" {
		out := c.record(Outcome{Kind: OutcomeNoop, Coordinate: ev.coord, Version: doc.Version})
		c.mu.Unlock()
		c.log.Debug("tone change with no selected text", "coordinate", ev.coord.String())
		c.emit(out)
		return
	}

	c.generation++
	req := issued{
		gen:   c.generation,
		sel:   doc.Selection,
		text:  text,
		coord: ev.coord,
		tones: ev.tones,
	}
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Debug("rewrite issued", "generation", req.gen, "coordinate", ev.coord.String(), "chars", len([]rune(text)))
	go c.run(req)
}

func (c *Coordinator) run(req issued) {
	defer c.wg.Done()

	result, err := c.client.Rewrite(c.ctx, rewrite.Request{
		Text:        req.text,
		Coordinate:  req.coord,
		Descriptors: req.tones,
	})

	out, ok := c.resolve(req, result, err)
	if ok {
		c.emit(out)
	}
}

// resolve decides what a finished rewrite does to the document. It reports
// false when the coordinator was closed and the result is dropped.
func (c *Coordinator) resolve(req issued, result string, err error) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Outcome{}, false
	}

	out := Outcome{
		Generation: req.gen,
		Coordinate: req.coord,
		Text:       req.text,
		Result:     result,
	}

	if req.gen != c.generation {
		out.Kind = OutcomeSuperseded
		out.Version = c.session.Version()
		c.log.Debug("rewrite superseded", "generation", req.gen, "latest", c.generation)
		return c.record(out), true
	}

	if err != nil {
		out.Kind = OutcomeFailed
		out.Err = err
		out.Version = c.session.Version()
		c.log.Warn("rewrite failed", "generation", req.gen, "error", err)
		c.recordFailure(req, err)
		return c.record(out), true
	}

	ch, err := c.session.Update(editor.SourceRewrite, "tone rewrite", func(d document.Document) (document.Document, error) {
		r, err := document.Resolve(d, req.sel)
		if err != nil {
			return d, err
		}
		if document.ExtractRange(d, r) != req.text {
			return d, &document.StaleSelectionError{
				Block:  r.Start.Block,
				Offset: r.Start.Offset,
				Reason: "selected text changed",
			}
		}
		return document.Splice(d, req.sel, result)
	})
	switch {
	case errors.Is(err, document.ErrStaleSelection):
		out.Kind = OutcomeStale
		out.Err = err
		out.Version = c.session.Version()
		c.log.Debug("rewrite discarded", "generation", req.gen, "error", err)
	case err != nil:
		out.Kind = OutcomeFailed
		out.Err = err
		out.Version = c.session.Version()
		c.log.Warn("rewrite could not be applied", "generation", req.gen, "error", err)
		c.recordFailure(req, err)
	default:
		out.Kind = OutcomeApplied
		out.Version = ch.VersionAfter
		c.log.Debug("rewrite applied", "generation", req.gen, "version", ch.VersionAfter)
	}
	return c.record(out), true
}

// record stamps and remembers out. Callers hold mu.
func (c *Coordinator) record(out Outcome) Outcome {
	out.At = c.opts.Clock.Now()
	if out.Err != nil {
		out.Error = out.Err.Error()
	}
	c.last = &out
	return out
}

func (c *Coordinator) recordFailure(req issued, err error) {
	if c.opts.Diagnostics == nil {
		return
	}
	f := &diagnostics.RewriteFailure{
		Timestamp:  c.opts.Clock.Now(),
		NoteID:     c.opts.NoteID,
		Generation: req.gen,
		Coordinate: req.coord,
		Tones:      req.tones,
		Reason:     err.Error(),
		Text:       req.text,
	}
	var se *rewrite.ServiceError
	if errors.As(err, &se) {
		f.Service = se.Op
		f.Status = se.Status
		f.Timeout = se.Timeout()
	}
	if derr := c.opts.Diagnostics.RecordRewriteFailure(f); derr != nil {
		c.log.Warn("failed to record diagnostics", "error", derr)
	}
}

func (c *Coordinator) emit(out Outcome) {
	if c.opts.OnOutcome != nil {
		c.opts.OnOutcome(out)
	}
}
