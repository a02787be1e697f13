package cmd

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samsaffron/tonenotes/internal/clock"
	"github.com/samsaffron/tonenotes/internal/config"
	"github.com/samsaffron/tonenotes/internal/coordinator"
	"github.com/samsaffron/tonenotes/internal/document"
	"github.com/samsaffron/tonenotes/internal/editor"
	"github.com/samsaffron/tonenotes/internal/notes"
	"github.com/samsaffron/tonenotes/internal/rewrite"
	"github.com/samsaffron/tonenotes/internal/signal"
	"github.com/spf13/cobra"
)

var (
	serveHost        string
	servePort        int
	serveToken       string
	serveAllowNoAuth bool
	serveCORSOrigins []string
	serveSessionTTL  time.Duration
	serveSessionMax  int
	serveProvider    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tonenotes HTTP service",
	Long: `Run an HTTP service holding live note sessions and the rewrite endpoint.

Endpoints:
  GET    /healthz
  POST   /api/tone
  GET    /api/notes              POST /api/notes
  GET    /api/notes/{id}         DELETE /api/notes/{id}
  PUT    /api/notes/{id}/document
  PUT    /api/notes/{id}/selection
  POST   /api/notes/{id}/tone
  GET    /api/notes/{id}/rewrite
  POST   /api/notes/{id}/undo    POST /api/notes/{id}/redo
  GET    /api/dials/{id}/tones   PUT /api/dials/{id}/tones

Host, port, CORS origins and session limits default to the serve section of
the config file.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Bind host")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Bind port")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Bearer token for API auth (auto-generated if omitted)")
	serveCmd.Flags().BoolVar(&serveAllowNoAuth, "allow-no-auth", false, "Disable auth (only allowed on loopback host)")
	serveCmd.Flags().StringArrayVar(&serveCORSOrigins, "cors-origin", nil, "Allowed CORS origin (repeatable, or '*' for all)")
	serveCmd.Flags().DurationVar(&serveSessionTTL, "session-ttl", 30*time.Minute, "Idle time before a live note session is saved and dropped")
	serveCmd.Flags().IntVar(&serveSessionMax, "session-max", 100, "Max live note sessions in memory")

	AddProviderFlag(serveCmd, &serveProvider)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyProviderOverrides(cfg, serveProvider); err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("host") && cfg.Serve.Host != "" {
		serveHost = cfg.Serve.Host
	}
	if !flags.Changed("port") && cfg.Serve.Port != 0 {
		servePort = cfg.Serve.Port
	}
	if !flags.Changed("cors-origin") {
		serveCORSOrigins = cfg.Serve.CORSOrigins
	}
	if !flags.Changed("session-ttl") && cfg.Serve.SessionTTL > 0 {
		serveSessionTTL = cfg.Serve.SessionTTL
	}
	if !flags.Changed("session-max") && cfg.Serve.MaxSessions > 0 {
		serveSessionMax = cfg.Serve.MaxSessions
	}

	if servePort <= 0 || servePort > 65535 {
		return fmt.Errorf("invalid --port %d (must be 1-65535)", servePort)
	}
	if serveSessionTTL <= 0 {
		return fmt.Errorf("invalid --session-ttl %s (must be > 0)", serveSessionTTL)
	}
	if serveSessionMax <= 0 {
		return fmt.Errorf("invalid --session-max %d (must be > 0)", serveSessionMax)
	}

	requireAuth := !serveAllowNoAuth
	if !requireAuth && !isLoopbackHost(serveHost) {
		return fmt.Errorf("--allow-no-auth is only allowed on loopback hosts (got %q)", serveHost)
	}

	token := strings.TrimSpace(serveToken)
	if requireAuth && token == "" {
		generated, err := generateServeToken()
		if err != nil {
			return fmt.Errorf("generate auth token: %w", err)
		}
		token = generated
	}

	ctx, stop := signal.NotifyContext()
	defer stop()

	client, err := newRewriteClient(cfg, rewriteClientOptions{Debug: debugLogs})
	if err != nil {
		return err
	}
	store, err := openNoteStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	s := newServeServer(serveServerConfig{
		host:        serveHost,
		port:        servePort,
		requireAuth: requireAuth,
		token:       token,
		corsOrigins: append([]string(nil), serveCORSOrigins...),
		sessionTTL:  serveSessionTTL,
		sessionMax:  serveSessionMax,
	}, cfg, store, client, clock.Real())
	if rec := newDiagnostics(cfg); rec != nil {
		s.diagnostics = rec
	}
	defer s.sessionMgr.Close()

	if err := s.Start(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "tonenotes serve listening on http://%s:%d\n", serveHost, servePort)
	fmt.Fprintf(cmd.ErrOrStderr(), "auth: %s\n", authSummary(requireAuth))
	if requireAuth {
		fmt.Fprintf(cmd.ErrOrStderr(), "token: %s\n", token)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "model: %s (%s)\n", cfg.ActiveModel(), cfg.Provider)
	if cfg.Notes.Enabled {
		fmt.Fprintf(cmd.ErrOrStderr(), "notes: %s\n", cfg.GetNotesPath())
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "notes: in memory\n")
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Stop(shutdownCtx)
}

func authSummary(required bool) string {
	if required {
		return "bearer required"
	}
	return "disabled"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	return h == "127.0.0.1" || h == "localhost" || h == "::1"
}

func generateServeToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

type serveServerConfig struct {
	host        string
	port        int
	requireAuth bool
	token       string
	corsOrigins []string
	sessionTTL  time.Duration
	sessionMax  int
}

type serveServer struct {
	cfg         serveServerConfig
	appCfg      *config.Config
	store       notes.Store
	client      rewrite.Client
	clock       clock.Clock
	diagnostics coordinator.FailureRecorder
	sessionMgr  *serveSessionManager
	server      *http.Server
}

func newServeServer(cfg serveServerConfig, appCfg *config.Config, store notes.Store, client rewrite.Client, clk clock.Clock) *serveServer {
	s := &serveServer{
		cfg:    cfg,
		appCfg: appCfg,
		store:  store,
		client: client,
		clock:  clk,
	}
	s.sessionMgr = newServeSessionManager(cfg.sessionTTL, cfg.sessionMax, s.newRuntime)
	return s
}

func (s *serveServer) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/tone", s.auth(s.cors(s.handleTone)))
	mux.HandleFunc("/api/notes", s.auth(s.cors(s.handleNotes)))
	mux.HandleFunc("/api/notes/{id}", s.auth(s.cors(s.handleNote)))
	mux.HandleFunc("/api/notes/{id}/document", s.auth(s.cors(s.handleNoteDocument)))
	mux.HandleFunc("/api/notes/{id}/selection", s.auth(s.cors(s.handleNoteSelection)))
	mux.HandleFunc("/api/notes/{id}/tone", s.auth(s.cors(s.handleNoteTone)))
	mux.HandleFunc("/api/notes/{id}/rewrite", s.auth(s.cors(s.handleNoteRewrite)))
	mux.HandleFunc("/api/notes/{id}/undo", s.auth(s.cors(s.handleNoteHistory(true))))
	mux.HandleFunc("/api/notes/{id}/redo", s.auth(s.cors(s.handleNoteHistory(false))))
	mux.HandleFunc("/api/dials/{id}/tones", s.auth(s.cors(s.handleDialTones)))
	return mux
}

func (s *serveServer) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.host, s.cfg.port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

// Stop shuts the listener down, then saves and drops every live session.
func (s *serveServer) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.sessionMgr.Close()
	return err
}

func (s *serveServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *serveServer) auth(next http.HandlerFunc) http.HandlerFunc {
	if !s.cfg.requireAuth {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}
		const prefix = "Bearer "
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, prefix) {
			writeError(w, http.StatusUnauthorized, "invalid authentication credentials")
			return
		}
		gotToken := strings.TrimSpace(strings.TrimPrefix(auth, prefix))
		if subtle.ConstantTimeCompare([]byte(gotToken), []byte(s.cfg.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid authentication credentials")
			return
		}
		next(w, r)
	}
}

func (s *serveServer) cors(next http.HandlerFunc) http.HandlerFunc {
	allowed := make(map[string]struct{}, len(s.cfg.corsOrigins))
	allowAll := false
	for _, origin := range s.cfg.corsOrigins {
		o := strings.TrimSpace(origin)
		if o == "" {
			continue
		}
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[o] = struct{}{}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// handleTone is the stateless rewrite endpoint. It accepts both the
// structured and the legacy request shapes.
func (s *serveServer) handleTone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	if err := requireJSONContentType(r); err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	data, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, shape, err := rewrite.DecodeRequest(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Debug("tone request", "shape", shape, "coordinate", req.Coordinate.String(), "chars", len([]rune(req.Text)))

	text, err := rewrite.WithTimeout(s.client, s.rewriteTimeout()).Rewrite(r.Context(), req)
	if err != nil {
		slog.Warn("tone request failed", "shape", shape, "error", err)
		writeServeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rewrite.WireResponse{Text: text})
}

func (s *serveServer) rewriteTimeout() time.Duration {
	if s.appCfg != nil && s.appCfg.Rewrite.Timeout > 0 {
		return s.appCfg.Rewrite.Timeout
	}
	return coordinator.DefaultTimeout
}

type serveSessionManager struct {
	ttl     time.Duration
	max     int
	factory func(ctx context.Context, id string) (*serveRuntime, error)

	mu       sync.Mutex
	sessions map[string]*serveRuntime
	creating map[string]*sessionCreateInFlight
	closed   bool
	stopCh   chan struct{}
}

type sessionCreateInFlight struct {
	done chan struct{}
	rt   *serveRuntime
	err  error
}

var errSessionManagerClosed = errors.New("session manager closed")

func newServeSessionManager(ttl time.Duration, max int, factory func(context.Context, string) (*serveRuntime, error)) *serveSessionManager {
	m := &serveSessionManager{
		ttl:      ttl,
		max:      max,
		factory:  factory,
		sessions: make(map[string]*serveRuntime),
		creating: make(map[string]*sessionCreateInFlight),
		stopCh:   make(chan struct{}),
	}
	go m.janitor()
	return m
}

func (m *serveSessionManager) janitor() {
	ticker := time.NewTicker(max(30*time.Second, m.ttl/2))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.evictExpired()
		case <-m.stopCh:
			return
		}
	}
}

func (m *serveSessionManager) evictExpired() {
	now := time.Now()
	var stale []*serveRuntime

	m.mu.Lock()
	for id, rt := range m.sessions {
		if now.Sub(rt.LastUsed()) > m.ttl {
			delete(m.sessions, id)
			stale = append(stale, rt)
		}
	}
	m.mu.Unlock()

	for _, rt := range stale {
		rt.Close()
	}
}

// GetOrCreate returns the live session of note id, loading it on first use.
// Concurrent callers for the same id share one factory call.
func (m *serveSessionManager) GetOrCreate(ctx context.Context, id string) (*serveRuntime, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errSessionManagerClosed
	}
	if rt, ok := m.sessions[id]; ok {
		rt.Touch()
		m.mu.Unlock()
		return rt, nil
	}
	if inflight, ok := m.creating[id]; ok {
		m.mu.Unlock()
		<-inflight.done
		if inflight.err != nil {
			return nil, inflight.err
		}
		inflight.rt.Touch()
		return inflight.rt, nil
	}
	inflight := &sessionCreateInFlight{done: make(chan struct{})}
	m.creating[id] = inflight
	m.mu.Unlock()

	rt, err := m.factory(ctx, id)
	m.mu.Lock()
	delete(m.creating, id)

	var evicted *serveRuntime
	switch {
	case err != nil:
		inflight.err = err
	case m.closed:
		inflight.err = errSessionManagerClosed
	default:
		rt.Touch()
		if len(m.sessions) >= m.max {
			oldestID := ""
			var oldestTime time.Time
			for sid, srt := range m.sessions {
				t := srt.LastUsed()
				if oldestID == "" || t.Before(oldestTime) {
					oldestID = sid
					oldestTime = t
				}
			}
			if oldestID != "" {
				evicted = m.sessions[oldestID]
				delete(m.sessions, oldestID)
			}
		}
		m.sessions[id] = rt
		inflight.rt = rt
	}
	close(inflight.done)
	m.mu.Unlock()

	if evicted != nil {
		evicted.Close()
	}
	if inflight.err != nil {
		if rt != nil {
			rt.Close()
		}
		return nil, inflight.err
	}
	return inflight.rt, nil
}

// Remove drops the live session of id without saving it.
func (m *serveSessionManager) Remove(id string) {
	m.mu.Lock()
	rt, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		rt.Discard()
	}
}

// Len returns the number of live sessions.
func (m *serveSessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *serveSessionManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.stopCh)
	sessions := make([]*serveRuntime, 0, len(m.sessions))
	for _, rt := range m.sessions {
		sessions = append(sessions, rt)
	}
	m.sessions = map[string]*serveRuntime{}
	m.mu.Unlock()

	for _, rt := range sessions {
		rt.Close()
	}
}

// serveRuntime is the live state of one open note.
type serveRuntime struct {
	noteID           string
	session          *editor.Session
	coord            *coordinator.Coordinator
	autosaver        *notes.Autosaver
	log              *slog.Logger
	closeOnce        sync.Once
	lastUsedUnixNano atomic.Int64
}

func (s *serveServer) newRuntime(ctx context.Context, id string) (*serveRuntime, error) {
	note, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, fmt.Errorf("note %s: %w", id, notes.ErrNotFound)
	}
	doc, err := note.Document()
	if err != nil {
		return nil, fmt.Errorf("load note %s: %w", id, err)
	}
	session, err := editor.NewSession(doc)
	if err != nil {
		return nil, fmt.Errorf("load note %s: %w", id, err)
	}

	log := slog.Default().With("note", id)
	var autosave, debounce, timeout time.Duration
	if s.appCfg != nil {
		autosave = s.appCfg.Notes.Autosave
		debounce = s.appCfg.Rewrite.Debounce
		timeout = s.appCfg.Rewrite.Timeout
	}

	rt := &serveRuntime{noteID: id, session: session, log: log}
	rt.autosaver = notes.NewAutosaver(s.store, note, session, s.clock, autosave, slog.Default())
	rt.coord = coordinator.New(session, s.client, coordinator.Options{
		Debounce:    debounce,
		Timeout:     timeout,
		Clock:       s.clock,
		Logger:      slog.Default(),
		NoteID:      id,
		Diagnostics: s.diagnostics,
		OnOutcome: func(o coordinator.Outcome) {
			log.Debug("rewrite settled", "kind", o.Kind, "generation", o.Generation, "version", o.Version)
		},
	})
	log.Debug("note session opened", "version", doc.Version)
	return rt, nil
}

func (rt *serveRuntime) Touch() {
	rt.lastUsedUnixNano.Store(time.Now().UnixNano())
}

func (rt *serveRuntime) LastUsed() time.Time {
	unixNano := rt.lastUsedUnixNano.Load()
	if unixNano == 0 {
		return time.Time{}
	}
	return time.Unix(0, unixNano)
}

// Close cancels pending rewrites and saves the note.
func (rt *serveRuntime) Close() {
	rt.closeOnce.Do(func() {
		if rt.coord != nil {
			rt.coord.Close()
		}
		if rt.autosaver != nil {
			if err := rt.autosaver.Stop(); err != nil {
				rt.log.Warn("failed to save note on close", "error", err)
			}
		}
		if rt.log != nil {
			rt.log.Debug("note session closed")
		}
	})
}

// Discard is Close without the final save.
func (rt *serveRuntime) Discard() {
	rt.closeOnce.Do(func() {
		if rt.coord != nil {
			rt.coord.Close()
		}
		if rt.autosaver != nil {
			rt.autosaver.Discard()
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, rewrite.WireResponse{Error: message})
}

// writeServeError maps err to a status code.
func writeServeError(w http.ResponseWriter, err error) {
	switch {
	case rewrite.IsServiceError(err):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, notes.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, editor.ErrNothingToUndo), errors.Is(err, editor.ErrNothingToRedo):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, coordinator.ErrClosed), errors.Is(err, errSessionManagerClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, document.ErrStaleSelection), errors.Is(err, errInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// errInvalidInput marks request errors that are the client's fault.
var errInvalidInput = errors.New("invalid input")

func invalidInput(err error) error {
	return fmt.Errorf("%w: %w", errInvalidInput, err)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

func decodeJSONBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 10<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func requireJSONContentType(r *http.Request) error {
	contentType := r.Header.Get("Content-Type")
	if strings.TrimSpace(contentType) == "" {
		return fmt.Errorf("Content-Type must be application/json")
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("invalid Content-Type header")
	}
	if mediaType != "application/json" {
		return fmt.Errorf("Content-Type must be application/json")
	}
	return nil
}
