package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samsaffron/tonenotes/internal/document"
	"github.com/samsaffron/tonenotes/internal/llm"
	"github.com/samsaffron/tonenotes/internal/notes"
	"github.com/samsaffron/tonenotes/internal/rewrite"
	"github.com/samsaffron/tonenotes/internal/testutil"
	"github.com/samsaffron/tonenotes/internal/tone"
)

func TestServeAuthMiddleware(t *testing.T) {
	srv := &serveServer{cfg: serveServerConfig{requireAuth: true, token: "secret"}}
	h := srv.auth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/tone", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/tone", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/tone", nil)
	rr = httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rr.Code)
	}
}

func TestServeSessionManager_GetOrCreateSingleFactoryCall(t *testing.T) {
	var calls int32
	manager := newServeSessionManager(time.Minute, 10, func(ctx context.Context, id string) (*serveRuntime, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(25 * time.Millisecond)
		rt := &serveRuntime{noteID: id}
		rt.Touch()
		return rt, nil
	})
	defer manager.Close()

	const workers = 12
	results := make(chan *serveRuntime, workers)
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			rt, err := manager.GetOrCreate(context.Background(), "same-id")
			if err != nil {
				errs <- err
				return
			}
			results <- rt
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("GetOrCreate error: %v", err)
		}
	}

	var first *serveRuntime
	for rt := range results {
		if first == nil {
			first = rt
			continue
		}
		if rt != first {
			t.Fatalf("expected all calls to return same runtime pointer")
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("factory calls = %d, want 1", got)
	}
}

func TestServeSessionManager_FactoryErrorNotCached(t *testing.T) {
	var calls int32
	manager := newServeSessionManager(time.Minute, 10, func(ctx context.Context, id string) (*serveRuntime, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, notes.ErrNotFound
		}
		return &serveRuntime{noteID: id}, nil
	})
	defer manager.Close()

	if _, err := manager.GetOrCreate(context.Background(), "n1"); !errors.Is(err, notes.ErrNotFound) {
		t.Fatalf("first GetOrCreate err = %v, want ErrNotFound", err)
	}
	if _, err := manager.GetOrCreate(context.Background(), "n1"); err != nil {
		t.Fatalf("second GetOrCreate err = %v", err)
	}
	if manager.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", manager.Len())
	}

	manager.Close()
	if _, err := manager.GetOrCreate(context.Background(), "n2"); !errors.Is(err, errSessionManagerClosed) {
		t.Fatalf("GetOrCreate after Close err = %v", err)
	}
}

func TestRequireJSONContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/tone", strings.NewReader(`{}`))
	if err := requireJSONContentType(req); err == nil {
		t.Fatalf("expected error for missing Content-Type")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/tone", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	if err := requireJSONContentType(req); err == nil {
		t.Fatalf("expected error for non-json Content-Type")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/tone", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if err := requireJSONContentType(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWriteServeErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"service", &rewrite.ServiceError{Op: "llm", Err: errors.New("boom")}, http.StatusBadGateway},
		{"not found", notes.ErrNotFound, http.StatusNotFound},
		{"stale", &document.StaleSelectionError{Block: "gone"}, http.StatusBadRequest},
		{"invalid", invalidInput(errors.New("bad")), http.StatusBadRequest},
		{"closed", errSessionManagerClosed, http.StatusServiceUnavailable},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServeError(rr, tt.err)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			var resp rewrite.WireResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp.Error == "" {
				t.Fatalf("body = %s", rr.Body.String())
			}
		})
	}
}

type serveHarness struct {
	t        *testing.T
	srv      *serveServer
	http     *httptest.Server
	store    *notes.MemoryStore
	clk      *testutil.FakeClock
	provider *llm.MockProvider
}

func newServeHarness(t *testing.T, turns ...llm.MockTurn) *serveHarness {
	t.Helper()
	h := &serveHarness{
		t:        t,
		store:    notes.NewMemoryStore(),
		clk:      testutil.NewFakeClock(),
		provider: llm.NewMockProvider(turns...),
	}
	h.srv = newServeServer(serveServerConfig{
		host:        "127.0.0.1",
		corsOrigins: []string{"http://localhost:5173"},
		sessionTTL:  time.Hour,
		sessionMax:  10,
	}, nil, h.store, rewrite.NewLLMClient(h.provider), h.clk)
	h.http = httptest.NewServer(h.srv.routes())
	t.Cleanup(func() {
		h.http.Close()
		h.srv.sessionMgr.Close()
	})
	return h
}

func (h *serveHarness) do(method, path string, body any) (int, []byte) {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.http.URL+path, r)
	if err != nil {
		h.t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.http.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func (h *serveHarness) decode(data []byte, dst any) {
	h.t.Helper()
	if err := json.Unmarshal(data, dst); err != nil {
		h.t.Fatalf("decode %s: %v", data, err)
	}
}

func (h *serveHarness) createNote(text string) noteView {
	h.t.Helper()
	status, data := h.do(http.MethodPost, "/api/notes", createNoteRequest{Text: text})
	if status != http.StatusCreated {
		h.t.Fatalf("create status = %d, body = %s", status, data)
	}
	var v noteView
	h.decode(data, &v)
	return v
}

func TestServeToneEndpoint(t *testing.T) {
	h := newServeHarness(t, llm.MockTurn{Text: "kinda fast"})

	tests := []struct {
		name string
		body string
	}{
		{"structured", `{"text":"quick","coordinates":{"x":1,"y":-1},"tones":{"top":"Millennial","right":"Gen Z","bottom":"Boomer","left":"Gen X"}}`},
		{"legacy", `{"text":"quick","x":1,"y":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(h.http.URL+"/api/tone", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			var out rewrite.WireResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out.Text != "kinda fast" {
				t.Fatalf("text = %q", out.Text)
			}
		})
	}

	if n := len(h.provider.Requests()); n != 2 {
		t.Fatalf("provider saw %d requests, want 2", n)
	}
}

func TestServeToneEndpointErrors(t *testing.T) {
	h := newServeHarness(t, llm.MockTurn{Err: errors.New("upstream down")})

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		want        int
	}{
		{"wrong method", http.MethodGet, "", "", http.StatusMethodNotAllowed},
		{"not json", http.MethodPost, "text/plain", `{"text":"a","x":0,"y":0}`, http.StatusUnsupportedMediaType},
		{"unknown field", http.MethodPost, "application/json", `{"text":"a","x":0,"y":0,"mood":"sad"}`, http.StatusBadRequest},
		{"out of range", http.MethodPost, "application/json", `{"text":"a","x":2,"y":0}`, http.StatusBadRequest},
		{"service failure", http.MethodPost, "application/json", `{"text":"a","x":0,"y":0}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, h.http.URL+"/api/tone", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestServeNotesCRUD(t *testing.T) {
	h := newServeHarness(t)

	first := h.createNote("Groceries\nmilk")
	h.clk.Advance(time.Minute)
	second := h.createNote("Meeting notes")
	if first.Title != "Groceries" || len(first.Document.Blocks) != 2 {
		t.Fatalf("first = %+v", first)
	}

	status, data := h.do(http.MethodGet, "/api/notes", nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var list struct {
		Notes []notes.Summary `json:"notes"`
	}
	h.decode(data, &list)
	if len(list.Notes) != 2 {
		t.Fatalf("listed %d notes, want 2", len(list.Notes))
	}

	status, data = h.do(http.MethodGet, "/api/notes?q=meet", nil)
	if status != http.StatusOK {
		t.Fatalf("search status = %d", status)
	}
	h.decode(data, &list)
	if len(list.Notes) != 1 || list.Notes[0].ID != second.ID {
		t.Fatalf("search = %+v", list.Notes)
	}

	if status, _ := h.do(http.MethodGet, "/api/notes?limit=x", nil); status != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", status)
	}

	status, data = h.do(http.MethodGet, "/api/notes/"+first.ID, nil)
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	var got noteView
	h.decode(data, &got)
	if got.Document.PlainText() != "Groceries\nmilk" {
		t.Fatalf("text = %q", got.Document.PlainText())
	}

	if status, _ := h.do(http.MethodDelete, "/api/notes/"+first.ID, nil); status != http.StatusNoContent {
		t.Fatalf("delete status = %d", status)
	}
	if status, _ := h.do(http.MethodGet, "/api/notes/"+first.ID, nil); status != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", status)
	}
	if status, _ := h.do(http.MethodDelete, "/api/notes/"+first.ID, nil); status != http.StatusNotFound {
		t.Fatalf("second delete status = %d", status)
	}
}

func TestServeDeleteDropsPendingAutosave(t *testing.T) {
	h := newServeHarness(t)
	n := h.createNote("draft")
	blockID := n.Document.Blocks[0].ID

	status, data := h.do(http.MethodPut, "/api/notes/"+n.ID+"/document", documentRequest{
		Blocks:    []document.Block{{ID: blockID, Text: "draft two"}},
		Selection: document.Collapsed(document.Anchor{Block: blockID}),
	})
	if status != http.StatusOK {
		t.Fatalf("edit status = %d, body = %s", status, data)
	}
	if status, _ := h.do(http.MethodDelete, "/api/notes/"+n.ID, nil); status != http.StatusNoContent {
		t.Fatalf("delete status = %d", status)
	}

	h.clk.Advance(time.Minute)
	if note, _ := h.store.Get(context.Background(), n.ID); note != nil {
		t.Fatalf("autosave recreated deleted note: %+v", note)
	}
	if h.srv.sessionMgr.Len() != 0 {
		t.Fatalf("sessions = %d, want 0", h.srv.sessionMgr.Len())
	}
}

func TestServeDocumentEdit(t *testing.T) {
	h := newServeHarness(t)
	n := h.createNote("hello")
	blockID := n.Document.Blocks[0].ID

	status, data := h.do(http.MethodPut, "/api/notes/"+n.ID+"/document", documentRequest{
		Blocks:      []document.Block{{ID: blockID, Text: "hello world"}},
		Selection:   document.Span(blockID, 6, 11),
		BaseVersion: n.Document.Version + 5,
	})
	if status != http.StatusConflict {
		t.Fatalf("stale base_version status = %d, body = %s", status, data)
	}

	status, data = h.do(http.MethodPut, "/api/notes/"+n.ID+"/document", documentRequest{
		Blocks:    []document.Block{{ID: blockID, Text: "hello world"}},
		Selection: document.Span("missing", 0, 1),
	})
	if status != http.StatusBadRequest {
		t.Fatalf("bad selection status = %d, body = %s", status, data)
	}

	status, data = h.do(http.MethodPut, "/api/notes/"+n.ID+"/document", documentRequest{
		Blocks:    []document.Block{{ID: blockID, Text: "hello world"}},
		Selection: document.Span(blockID, 6, 11),
	})
	if status != http.StatusOK {
		t.Fatalf("edit status = %d, body = %s", status, data)
	}
	var v noteView
	h.decode(data, &v)
	if v.Document.Version != n.Document.Version+1 || v.Undo != 1 {
		t.Fatalf("after edit version = %d undo = %d", v.Document.Version, v.Undo)
	}

	h.clk.Advance(time.Minute)
	saved, err := h.store.Get(context.Background(), n.ID)
	if err != nil || saved == nil {
		t.Fatalf("Get() = %v, %v", saved, err)
	}
	doc, err := saved.Document()
	if err != nil {
		t.Fatalf("Document() error = %v", err)
	}
	if doc.PlainText() != "hello world" {
		t.Fatalf("autosaved text = %q", doc.PlainText())
	}
}

func TestServeToneRewriteEndToEnd(t *testing.T) {
	h := newServeHarness(t, llm.MockTurn{Text: `"kinda fast"`})
	n := h.createNote("The quick brown fox")
	blockID := n.Document.Blocks[0].ID

	if status, data := h.do(http.MethodPut, "/api/notes/"+n.ID+"/selection", document.Span(blockID, 4, 9)); status != http.StatusOK {
		t.Fatalf("select status = %d, body = %s", status, data)
	}

	x, y := 1.0, -1.0
	status, data := h.do(http.MethodPost, "/api/notes/"+n.ID+"/tone", toneEventRequest{X: &x, Y: &y})
	if status != http.StatusAccepted {
		t.Fatalf("tone status = %d, body = %s", status, data)
	}
	var st rewriteStatus
	h.decode(data, &st)
	if st.State != "pending" {
		t.Fatalf("state = %q, want pending", st.State)
	}
	if n := len(h.provider.Requests()); n != 0 {
		t.Fatalf("provider called before the debounce window settled (%d requests)", n)
	}

	h.clk.Advance(time.Second)
	rt, err := h.srv.sessionMgr.GetOrCreate(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	rt.coord.Wait()

	status, data = h.do(http.MethodGet, "/api/notes/"+n.ID+"/rewrite", nil)
	if status != http.StatusOK {
		t.Fatalf("rewrite status = %d", status)
	}
	h.decode(data, &st)
	if st.Generation != 1 || st.Outcome == nil || st.Outcome.Result != "kinda fast" {
		t.Fatalf("status = %+v", st)
	}

	status, data = h.do(http.MethodGet, "/api/notes/"+n.ID, nil)
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	var v noteView
	h.decode(data, &v)
	if got := v.Document.PlainText(); got != "The kinda fast brown fox" {
		t.Fatalf("text = %q", got)
	}
	if v.Document.Selection != document.Span(blockID, 4, 14) {
		t.Fatalf("selection = %+v", v.Document.Selection)
	}

	if status, data := h.do(http.MethodPost, "/api/notes/"+n.ID+"/undo", nil); status != http.StatusOK {
		t.Fatalf("undo status = %d, body = %s", status, data)
	} else {
		h.decode(data, &v)
	}
	if got := v.Document.PlainText(); got != "The quick brown fox" {
		t.Fatalf("after undo text = %q", got)
	}
	if status, _ := h.do(http.MethodPost, "/api/notes/"+n.ID+"/redo", nil); status != http.StatusOK {
		t.Fatalf("redo status = %d", status)
	}
	if status, _ := h.do(http.MethodPost, "/api/notes/"+n.ID+"/redo", nil); status != http.StatusConflict {
		t.Fatalf("redo with empty stack status = %d", status)
	}
}

func TestServeToneEventValidation(t *testing.T) {
	h := newServeHarness(t)
	n := h.createNote("text")

	x, big := 0.5, 50.0
	tests := []struct {
		name string
		req  toneEventRequest
	}{
		{"missing y", toneEventRequest{X: &x}},
		{"out of range", toneEventRequest{X: &big, Y: &x}},
		{"both forms", toneEventRequest{X: &x, Y: &x, DialX: &big, DialY: &big}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, data := h.do(http.MethodPost, "/api/notes/"+n.ID+"/tone", tt.req); status != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", status, data)
			}
		})
	}

	if status, _ := h.do(http.MethodPost, "/api/notes/missing/tone", toneEventRequest{X: &x, Y: &x}); status != http.StatusNotFound {
		t.Fatalf("unknown note status = %d", status)
	}
}

func TestToneEventCoordinateFromDial(t *testing.T) {
	dx, dy := 100.0, 0.0
	c, err := toneEventRequest{DialX: &dx, DialY: &dy}.coordinate()
	if err != nil {
		t.Fatalf("coordinate() error = %v", err)
	}
	if c != (tone.Coordinate{X: 1, Y: -1}) {
		t.Fatalf("coordinate = %+v", c)
	}
}

func TestServeDialTones(t *testing.T) {
	h := newServeHarness(t)
	path := "/api/dials/" + tone.MainDialID + "/tones"

	status, data := h.do(http.MethodGet, path, nil)
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	var v dialTonesView
	h.decode(data, &v)
	if v.Custom || v.Tones != tone.Defaults() {
		t.Fatalf("fresh dial = %+v", v)
	}

	status, data = h.do(http.MethodPut, path, tone.Set{Top: tone.Descriptor{Title: "Pirate", Description: "arr"}})
	if status != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", status, data)
	}
	h.decode(data, &v)
	if !v.Custom || v.Tones.Top.Title != "Pirate" || v.Tones.Left != tone.Defaults().Left {
		t.Fatalf("after put = %+v", v)
	}
	if v.Wire.Top != "Pirate (arr)" {
		t.Fatalf("wire top = %q", v.Wire.Top)
	}

	status, data = h.do(http.MethodDelete, path, nil)
	if status != http.StatusOK {
		t.Fatalf("delete status = %d", status)
	}
	h.decode(data, &v)
	if v.Custom || v.Tones != tone.Defaults() {
		t.Fatalf("after reset = %+v", v)
	}
}

func TestServeCORS(t *testing.T) {
	h := newServeHarness(t)

	req, _ := http.NewRequest(http.MethodOptions, h.http.URL+"/api/notes", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}

	req, _ = http.NewRequest(http.MethodGet, h.http.URL+"/api/notes", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
