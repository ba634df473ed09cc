// Package http serves a flow definition as a session-oriented REST API.
// Sessions are persisted through a session.Manager; hydrated engines are
// kept in a registry so failure history and live context survive across
// requests to the same replica.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/sherpa/internal/logging"
	"github.com/aretw0/sherpa/internal/presentation/graph"
	"github.com/aretw0/sherpa/internal/runtime"
	"github.com/aretw0/sherpa/pkg/flow"
	"github.com/aretw0/sherpa/pkg/metrics"
	"github.com/aretw0/sherpa/pkg/registry"
	"github.com/aretw0/sherpa/pkg/session"
)

// Server exposes navigation over one flow definition.
type Server struct {
	steps    []flow.Step
	sessions *session.Manager
	live     *registry.Registry[*runtime.Engine]
	logger   *slog.Logger
	recorder *metrics.Recorder

	engineOpts []runtime.EngineOption
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches the recorder to every hydrated engine and mounts
// its handler at /metrics.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Server) {
		s.recorder = rec
	}
}

// WithEngineOptions forwards extra options to every engine the server
// builds, e.g. a traversal depth bound.
func WithEngineOptions(opts ...runtime.EngineOption) Option {
	return func(s *Server) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// NewServer creates a server over the flow definition and session manager.
func NewServer(steps []flow.Step, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		steps:    steps,
		sessions: sessions,
		live:     registry.New[*runtime.Engine](),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/graph", s.handleGraph)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleState)
			r.Delete("/", s.handleDelete)
			r.Post("/next", s.handleNext)
			r.Post("/previous", s.handlePrevious)
			r.Post("/skip", s.handleSkip)
			r.Post("/goto", s.handleGoTo)
			r.Put("/checklist/{itemID}", s.handleChecklistItem)
			r.Get("/errors", s.handleErrors)
			r.Delete("/errors", s.handleClearError)
			r.Get("/graph", s.handleSessionGraph)
		})
	})

	if s.recorder != nil {
		r.Method(http.MethodGet, "/metrics", s.recorder.Handler())
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// newEngine builds an engine persisting into the session store under the
// given ID. The recorder, when configured, observes it.
func (s *Server) newEngine(sessionID string, extra ...runtime.EngineOption) *runtime.Engine {
	opts := []runtime.EngineOption{
		runtime.WithLogger(s.logger),
		runtime.WithPersistence(func(ctx context.Context, fc *flow.Context, stepID string) error {
			return s.sessions.Store().Save(ctx, sessionID, flow.NewSnapshot(fc, stepID))
		}),
	}
	opts = append(opts, s.engineOpts...)
	opts = append(opts, extra...)
	eng := runtime.NewEngine(s.steps, opts...)
	if s.recorder != nil {
		if _, err := s.recorder.Attach(eng); err != nil {
			s.logger.Warn("failed to attach metrics recorder", "err", err)
		}
	}
	return eng
}

// withSession runs fn with the session's engine while holding its lock,
// hydrating from the store on first touch.
func (s *Server) withSession(ctx context.Context, sessionID string, fn func(context.Context, *runtime.Engine) error) error {
	return s.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		eng, ok := s.live.Get(sessionID)
		if !ok {
			snap, err := s.sessions.Store().Load(ctx, sessionID)
			if err != nil {
				return err
			}
			eng = s.newEngine(sessionID)
			if _, err := eng.Hydrate(ctx, snap); err != nil {
				return err
			}
			s.live.Put(sessionID, eng)
		}
		return fn(ctx, eng)
	})
}

// -- Request/response shapes --

type createRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

type navigateRequest struct {
	Data map[string]any `json:"data,omitempty"`
}

type gotoRequest struct {
	StepID string         `json:"step_id"`
	Data   map[string]any `json:"data,omitempty"`
}

type checklistItemRequest struct {
	Completed bool `json:"completed"`
}

// SessionResponse is the canonical reply to every session operation.
type SessionResponse struct {
	SessionID   string           `json:"session_id"`
	State       flow.EngineState `json:"state"`
	CurrentStep *StepView        `json:"current_step,omitempty"`
}

// StepView is the serializable projection of the current step.
type StepView struct {
	ID        string         `json:"id"`
	Type      flow.StepType  `json:"type,omitempty"`
	Title     string         `json:"title,omitempty"`
	Content   string         `json:"content,omitempty"`
	Skippable bool           `json:"skippable,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Checklist *ChecklistView `json:"checklist,omitempty"`
}

// ChecklistView pairs the eligible items with the aggregate progress.
type ChecklistView struct {
	Items    []ChecklistItemView    `json:"items"`
	Progress flow.ChecklistProgress `json:"progress"`
}

// ChecklistItemView is one eligible checklist entry with its live state.
type ChecklistItemView struct {
	ID        string `json:"id"`
	Label     string `json:"label,omitempty"`
	Mandatory bool   `json:"mandatory"`
	Completed bool   `json:"completed"`
}

func (s *Server) sessionResponse(sessionID string, eng *runtime.Engine) SessionResponse {
	resp := SessionResponse{
		SessionID: sessionID,
		State:     eng.State(),
	}
	cur := eng.Current()
	if cur == nil {
		return resp
	}
	view := &StepView{
		ID:        cur.ID,
		Type:      cur.Type,
		Title:     cur.Title(),
		Content:   cur.Content(),
		Skippable: cur.Skippable,
		Payload:   cur.Payload,
	}
	if cur.Type == flow.TypeChecklist && cur.Checklist != nil {
		view.Checklist = checklistView(eng, cur)
	}
	resp.CurrentStep = view
	return resp
}

func checklistView(eng *runtime.Engine, step *flow.Step) *ChecklistView {
	done := make(map[string]bool)
	if v, ok := eng.Context().Value(step.Checklist.DataKey); ok {
		if states, ok := flow.DecodeItemStates(v); ok {
			for _, st := range states {
				done[st.ID] = st.Completed
			}
		}
	}
	cv := &ChecklistView{
		Items:    []ChecklistItemView{},
		Progress: eng.ChecklistProgress(step),
	}
	for _, item := range step.Checklist.Items {
		if !item.Eligible(eng.Context()) {
			continue
		}
		cv.Items = append(cv.Items, ChecklistItemView{
			ID:        item.ID,
			Label:     item.Label,
			Mandatory: item.IsMandatory(),
			Completed: done[item.ID],
		})
	}
	return cv
}

// -- Handlers --

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(graph.GenerateMermaid(s.steps, nil)))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			s.logger.Warn("create: invalid request body", "err", err)
			return
		}
	}

	sessionID := body.SessionID
	if sessionID == "" {
		sessionID = session.NewID()
	}

	var resp SessionResponse
	err := s.sessions.WithLock(r.Context(), sessionID, func(ctx context.Context) error {
		if _, err := s.sessions.Store().Load(ctx, sessionID); err == nil {
			return errSessionExists
		} else if !errors.Is(err, flow.ErrSessionNotFound) {
			return err
		}

		eng := s.newEngine(sessionID,
			runtime.WithContext(flow.NewContextWithData(body.Context)))
		if _, err := eng.Start(ctx); err != nil {
			return err
		}
		// The initial transition is not covered by the persistence hook;
		// save now so the ID is reserved in the store.
		if err := s.saveSession(ctx, sessionID, eng); err != nil {
			return err
		}
		s.live.Put(sessionID, eng)
		resp = s.sessionResponse(sessionID, eng)
		return nil
	})
	if err != nil {
		s.writeError(w, "create", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		s.writeError(w, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.respondSession(w, r, "state", func(ctx context.Context, eng *runtime.Engine) error {
		return nil
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.sessions.Delete(r.Context(), sessionID); err != nil {
		s.writeError(w, "delete", err)
		return
	}
	s.live.Remove(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeNavigate(w, r, s.logger)
	if !ok {
		return
	}
	s.respondSession(w, r, "next", func(ctx context.Context, eng *runtime.Engine) error {
		_, err := eng.Next(ctx, body.Data)
		return err
	})
}

// The engine's persistence hook only covers forward and terminal
// transitions, so backward and lateral moves are saved here explicitly.

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s.respondSession(w, r, "previous", func(ctx context.Context, eng *runtime.Engine) error {
		if _, err := eng.Previous(ctx); err != nil {
			return err
		}
		return s.saveSession(ctx, sessionID, eng)
	})
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s.respondSession(w, r, "skip", func(ctx context.Context, eng *runtime.Engine) error {
		if _, err := eng.Skip(ctx); err != nil {
			return err
		}
		return s.saveSession(ctx, sessionID, eng)
	})
}

func (s *Server) handleGoTo(w http.ResponseWriter, r *http.Request) {
	var body gotoRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		s.logger.Warn("goto: invalid request body", "err", err)
		return
	}
	if body.StepID == "" {
		http.Error(w, "step_id is required", http.StatusBadRequest)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	s.respondSession(w, r, "goto", func(ctx context.Context, eng *runtime.Engine) error {
		if _, err := eng.GoTo(ctx, body.StepID, body.Data); err != nil {
			return err
		}
		return s.saveSession(ctx, sessionID, eng)
	})
}

func (s *Server) handleChecklistItem(w http.ResponseWriter, r *http.Request) {
	var body checklistItemRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		s.logger.Warn("checklist: invalid request body", "err", err)
		return
	}
	itemID := chi.URLParam(r, "itemID")
	s.respondSession(w, r, "checklist", func(ctx context.Context, eng *runtime.Engine) error {
		return eng.UpdateChecklistItem(ctx, itemID, body.Completed)
	})
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var records []flow.ErrorRecord
	err := s.withSession(r.Context(), sessionID, func(ctx context.Context, eng *runtime.Engine) error {
		if limit > 0 {
			records = eng.RecentErrors(limit)
		} else {
			records = eng.Errors()
		}
		return nil
	})
	if err != nil {
		s.writeError(w, "errors", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": records})
}

func (s *Server) handleClearError(w http.ResponseWriter, r *http.Request) {
	s.respondSession(w, r, "clear_error", func(ctx context.Context, eng *runtime.Engine) error {
		eng.ClearError(ctx)
		return nil
	})
}

func (s *Server) handleSessionGraph(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var out string
	err := s.withSession(r.Context(), sessionID, func(ctx context.Context, eng *runtime.Engine) error {
		st := eng.State()
		out = graph.GenerateMermaid(s.steps, &graph.Overlay{
			VisitedSteps: eng.History(),
			CurrentStep:  st.CurrentStepID,
			Completed:    eng.CompletedSteps(),
		})
		return nil
	})
	if err != nil {
		s.writeError(w, "graph", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(out))
}

// respondSession runs op against the session engine and replies with the
// refreshed session view. Failed navigations still return the view: the
// client needs the frozen state to render the error.
func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, *runtime.Engine) error) {
	sessionID := chi.URLParam(r, "sessionID")

	var resp SessionResponse
	var opErr error
	err := s.withSession(r.Context(), sessionID, func(ctx context.Context, eng *runtime.Engine) error {
		opErr = fn(ctx, eng)
		resp = s.sessionResponse(sessionID, eng)
		return nil
	})
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	if opErr != nil {
		s.logger.Warn("session operation failed",
			"operation", op, "session_id", sessionID, "err", opErr)
		writeJSON(w, statusFor(opErr), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) saveSession(ctx context.Context, sessionID string, eng *runtime.Engine) error {
	cur := ""
	if step := eng.Current(); step != nil {
		cur = step.ID
	}
	return s.sessions.Store().Save(ctx, sessionID, flow.NewSnapshot(eng.Context(), cur))
}

func decodeNavigate(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (navigateRequest, bool) {
	var body navigateRequest
	if r.Body == nil || r.ContentLength == 0 {
		return body, true
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		logger.Warn("navigate: invalid request body", "err", err)
		return body, false
	}
	return body, true
}

var errSessionExists = errors.New("session already exists")

func statusFor(err error) int {
	switch {
	case errors.Is(err, flow.ErrSessionNotFound), errors.Is(err, flow.ErrStepNotFound):
		return http.StatusNotFound
	case errors.Is(err, errSessionExists),
		errors.Is(err, flow.ErrChecklistIncomplete):
		return http.StatusConflict
	case errors.Is(err, flow.ErrMissingStep),
		errors.Is(err, flow.ErrNotChecklistStep),
		errors.Is(err, flow.ErrInvalidChecklist),
		errors.Is(err, flow.ErrUnknownChecklistItem):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "operation", op, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}
