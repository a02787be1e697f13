package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/samsaffron/tonenotes/internal/coordinator"
	"github.com/samsaffron/tonenotes/internal/document"
	"github.com/samsaffron/tonenotes/internal/editor"
	"github.com/samsaffron/tonenotes/internal/notes"
	"github.com/samsaffron/tonenotes/internal/tone"
)

// noteView is the JSON form of a live note.
type noteView struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Created  time.Time         `json:"created"`
	Updated  time.Time         `json:"updated"`
	Document document.Document `json:"document"`
	Undo     int               `json:"undo"`
	Redo     int               `json:"redo"`
}

func (rt *serveRuntime) view() noteView {
	doc := rt.session.Snapshot()
	saved := rt.autosaver.Note()
	undo, redo := rt.session.CanUndo()
	return noteView{
		ID:       rt.noteID,
		Title:    doc.Title(),
		Created:  saved.Created,
		Updated:  saved.Updated,
		Document: doc,
		Undo:     undo,
		Redo:     redo,
	}
}

// runtime returns the live session of the note named in the path. Sessions
// outlive a single request, so they are not tied to its context.
func (s *serveServer) runtime(w http.ResponseWriter, r *http.Request) (*serveRuntime, bool) {
	id := r.PathValue("id")
	rt, err := s.sessionMgr.GetOrCreate(context.Background(), id)
	if err != nil {
		writeServeError(w, err)
		return nil, false
	}
	return rt, true
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *serveServer) handleNotes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listNotes(w, r)
	case http.MethodPost:
		s.createNote(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *serveServer) listNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := notes.ListOptions{}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, v))
				return
			}
			*dst = n
		}
	}
	query := q.Get("q")
	if query != "" {
		// Search covers every note; paging applies to the matches.
		opts = notes.ListOptions{}
	}

	list, err := s.store.List(r.Context(), opts)
	if err != nil {
		writeServeError(w, err)
		return
	}
	if query != "" {
		list = notes.Find(list, query)
		if off, _ := strconv.Atoi(q.Get("offset")); off > 0 {
			list = list[min(off, len(list)):]
		}
		if lim, _ := strconv.Atoi(q.Get("limit")); lim > 0 && lim < len(list) {
			list = list[:lim]
		}
	}
	if list == nil {
		list = []notes.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": list})
}

type createNoteRequest struct {
	Text string `json:"text"`
}

func (s *serveServer) createNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if r.ContentLength != 0 {
		if err := requireJSONContentType(r); err != nil {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		if err := decodeJSONBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	doc := document.New()
	if req.Text != "" {
		doc = document.FromText(req.Text)
	}
	note, err := notes.NewNote(doc)
	if err != nil {
		writeServeError(w, err)
		return
	}
	if err := s.store.Create(r.Context(), note); err != nil {
		writeServeError(w, err)
		return
	}
	rt, err := s.sessionMgr.GetOrCreate(context.Background(), note.ID)
	if err != nil {
		writeServeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt.view())
}

func (s *serveServer) handleNote(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rt, ok := s.runtime(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, rt.view())
	case http.MethodDelete:
		id := r.PathValue("id")
		s.sessionMgr.Remove(id)
		if err := s.store.Delete(r.Context(), id); err != nil {
			writeServeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, "GET, DELETE")
	}
}

// documentRequest is a user edit: new content and selection. A non-zero
// BaseVersion must match the live version.
type documentRequest struct {
	Blocks      []document.Block   `json:"blocks"`
	Selection   document.Selection `json:"selection"`
	BaseVersion uint64             `json:"base_version,omitempty"`
}

var errVersionConflict = errors.New("document changed since base_version")

func (s *serveServer) handleNoteDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, "PUT")
		return
	}
	if err := requireJSONContentType(r); err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	var req documentRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Blocks) == 0 {
		writeError(w, http.StatusBadRequest, "document needs at least one block")
		return
	}
	rt, ok := s.runtime(w, r)
	if !ok {
		return
	}

	_, err := rt.session.Update(editor.SourceUser, "edit", func(cur document.Document) (document.Document, error) {
		if req.BaseVersion != 0 && req.BaseVersion != cur.Version {
			return cur, errVersionConflict
		}
		next := cur
		next.Blocks = req.Blocks
		next.Selection = req.Selection
		if err := next.Validate(); err != nil {
			return cur, invalidInput(err)
		}
		if _, err := document.Resolve(next, next.Selection); err != nil {
			return cur, invalidInput(err)
		}
		return next, nil
	})
	if errors.Is(err, errVersionConflict) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeServeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.view())
}

func (s *serveServer) handleNoteSelection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, "PUT")
		return
	}
	if err := requireJSONContentType(r); err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	var sel document.Selection
	if err := decodeJSONBody(r, &sel); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rt, ok := s.runtime(w, r)
	if !ok {
		return
	}
	if err := rt.session.Select(sel); err != nil {
		writeServeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.view())
}

// toneEventRequest is one dial movement. Either X/Y in [-1, 1] or
// DialX/DialY in the dial's 0..100 space must be set.
type toneEventRequest struct {
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	DialX  *float64 `json:"dial_x,omitempty"`
	DialY  *float64 `json:"dial_y,omitempty"`
	DialID string   `json:"dial_id,omitempty"`
}

func (req toneEventRequest) coordinate() (tone.Coordinate, error) {
	switch {
	case req.X != nil && req.Y != nil:
		if req.DialX != nil || req.DialY != nil {
			return tone.Coordinate{}, errors.New("send either x/y or dial_x/dial_y")
		}
		c := tone.Coordinate{X: *req.X, Y: *req.Y}
		return c, c.Validate()
	case req.DialX != nil && req.DialY != nil:
		return tone.FromDial(*req.DialX, *req.DialY), nil
	}
	return tone.Coordinate{}, errors.New("tone event needs x and y, or dial_x and dial_y")
}

type rewriteStatus struct {
	State      string               `json:"state"`
	Generation uint64               `json:"generation"`
	Outcome    *coordinator.Outcome `json:"outcome"`
}

func statusOf(rt *serveRuntime) rewriteStatus {
	st := rewriteStatus{
		State:      rt.coord.State().String(),
		Generation: rt.coord.Generation(),
	}
	if o, ok := rt.coord.LastOutcome(); ok {
		st.Outcome = &o
	}
	return st
}

func (s *serveServer) handleNoteTone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	if err := requireJSONContentType(r); err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	var req toneEventRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	coord, err := req.coordinate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dialID := req.DialID
	if dialID == "" {
		dialID = tone.MainDialID
	}
	tones, err := notes.Tones(r.Context(), s.store, dialID, s.fallbackTones())
	if err != nil {
		writeServeError(w, err)
		return
	}

	rt, ok := s.runtime(w, r)
	if !ok {
		return
	}
	if err := rt.coord.OnToneCoordinateChange(coord, tones); err != nil {
		writeServeError(w, invalidInput(err))
		return
	}
	writeJSON(w, http.StatusAccepted, statusOf(rt))
}

func (s *serveServer) fallbackTones() tone.Set {
	if s.appCfg == nil {
		return tone.Defaults()
	}
	return s.appCfg.Tones.Merge(tone.Defaults())
}

func (s *serveServer) handleNoteRewrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	rt, ok := s.runtime(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusOf(rt))
}

func (s *serveServer) handleNoteHistory(undo bool) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, "POST")
			return
		}
		rt, ok := s.runtime(w, r)
		if !ok {
			return
		}
		var err error
		if undo {
			_, err = rt.session.Undo()
		} else {
			_, err = rt.session.Redo()
		}
		if err != nil {
			writeServeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rt.view())
	}
}

type dialTonesView struct {
	DialID string     `json:"dial_id"`
	Custom bool       `json:"custom"`
	Tones  tone.Set   `json:"tones"`
	Wire   tone.Tones `json:"wire"`
}

func (s *serveServer) handleDialTones(w http.ResponseWriter, r *http.Request) {
	dialID := r.PathValue("id")
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		if err := requireJSONContentType(r); err != nil {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		var set tone.Set
		if err := decodeJSONBody(r, &set); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		current, err := notes.Tones(ctx, s.store, dialID, s.fallbackTones())
		if err != nil {
			writeServeError(w, err)
			return
		}
		if err := s.store.SetTones(ctx, dialID, set.Merge(current)); err != nil {
			writeServeError(w, invalidInput(err))
			return
		}
	case http.MethodDelete:
		if err := s.store.ResetTones(ctx, dialID); err != nil {
			writeServeError(w, err)
			return
		}
	default:
		methodNotAllowed(w, "GET, PUT, DELETE")
		return
	}

	_, custom, err := s.store.GetTones(ctx, dialID)
	if err != nil {
		writeServeError(w, err)
		return
	}
	set, err := notes.Tones(ctx, s.store, dialID, s.fallbackTones())
	if err != nil {
		writeServeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dialTonesView{DialID: dialID, Custom: custom, Tones: set, Wire: set.Tones()})
}
