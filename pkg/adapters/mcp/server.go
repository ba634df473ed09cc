// Package mcp exposes a flow definition to AI agents over the Model
// Context Protocol: tools for starting sessions, navigating, toggling
// checklist items and inspecting the graph, plus the graph as a
// readable resource.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/sherpa"
	"github.com/aretw0/sherpa/internal/logging"
	"github.com/aretw0/sherpa/internal/presentation/graph"
	"github.com/aretw0/sherpa/internal/runtime"
	"github.com/aretw0/sherpa/pkg/flow"
	"github.com/aretw0/sherpa/pkg/registry"
	"github.com/aretw0/sherpa/pkg/session"
)

// SessionResult is the unified tool output: the session ID, the derived
// state projection and a summary of the current step.
type SessionResult struct {
	SessionID   string           `json:"session_id" jsonschema_description:"The session identifier"`
	State       flow.EngineState `json:"state" jsonschema_description:"The derived navigation state"`
	CurrentStep *StepSummary     `json:"current_step,omitempty" jsonschema_description:"The current step, absent once the flow completed"`
}

// StepSummary is the serializable shape of the current step.
type StepSummary struct {
	ID        string                  `json:"id"`
	Type      flow.StepType           `json:"type,omitempty"`
	Title     string                  `json:"title,omitempty"`
	Content   string                  `json:"content,omitempty"`
	Skippable bool                    `json:"skippable,omitempty"`
	Checklist *flow.ChecklistProgress `json:"checklist,omitempty"`
}

// Server wraps a flow definition and session manager as an MCP server.
type Server struct {
	steps     []flow.Step
	sessions  *session.Manager
	live      *registry.Registry[*runtime.Engine]
	logger    *slog.Logger
	mcpServer *server.MCPServer
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

// NewServer creates an MCP server over the flow definition.
func NewServer(steps []flow.Step, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		steps:     steps,
		sessions:  sessions,
		live:      registry.New[*runtime.Engine](),
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("sherpa-mcp", strings.TrimSpace(sherpa.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and shuts down
// gracefully when the context is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	startTool := mcp.NewTool("start_session",
		mcp.WithDescription("Start a new navigation session over the flow. Returns the session ID and the initial step."),
		mcp.WithString("session_id", mcp.Description("Session ID to claim (optional, generated when omitted)")),
		mcp.WithString("context", mcp.Description("JSON object seeding the session context (optional)")),
		mcp.WithOutputSchema[SessionResult](),
	)
	s.mcpServer.AddTool(startTool, mcp.NewStructuredToolHandler(s.handleStartSession))

	stateTool := mcp.NewTool("get_state",
		mcp.WithDescription("Get the current navigation state of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithOutputSchema[SessionResult](),
	)
	s.mcpServer.AddTool(stateTool, mcp.NewStructuredToolHandler(s.handleGetState))

	navigateTool := mcp.NewTool("navigate",
		mcp.WithDescription("Navigate a session: action is one of next, previous, skip."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("action", mcp.Required(), mcp.Description("One of: next, previous, skip")),
		mcp.WithString("data", mcp.Description("JSON object merged into the session context on next (optional)")),
		mcp.WithOutputSchema[SessionResult](),
	)
	s.mcpServer.AddTool(navigateTool, mcp.NewStructuredToolHandler(s.handleNavigate))

	gotoTool := mcp.NewTool("goto_step",
		mcp.WithDescription("Jump a session to an arbitrary step."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("step_id", mcp.Required(), mcp.Description("Target step ID")),
		mcp.WithString("data", mcp.Description("JSON object merged into the session context (optional)")),
		mcp.WithOutputSchema[SessionResult](),
	)
	s.mcpServer.AddTool(gotoTool, mcp.NewStructuredToolHandler(s.handleGoTo))

	checklistTool := mcp.NewTool("set_checklist_item",
		mcp.WithDescription("Toggle a checklist item on the session's current step."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Checklist item ID")),
		mcp.WithBoolean("completed", mcp.Required(), mcp.Description("New completion state")),
		mcp.WithOutputSchema[SessionResult](),
	)
	s.mcpServer.AddTool(checklistTool, mcp.NewStructuredToolHandler(s.handleChecklistItem))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the flow graph as a Mermaid flowchart for introspection."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(graph.GenerateMermaid(s.steps, nil)), nil
	})
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("sherpa://graph", "Flow Graph",
		mcp.WithMIMEType("text/vnd.mermaid"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "sherpa://graph",
				MIMEType: "text/vnd.mermaid",
				Text:     graph.GenerateMermaid(s.steps, nil),
			},
		}, nil
	})
}

// newEngine builds an engine persisting into the session store.
func (s *Server) newEngine(sessionID string, opts ...runtime.EngineOption) *runtime.Engine {
	all := []runtime.EngineOption{
		runtime.WithLogger(s.logger),
		runtime.WithPersistence(func(ctx context.Context, fc *flow.Context, stepID string) error {
			return s.sessions.Store().Save(ctx, sessionID, flow.NewSnapshot(fc, stepID))
		}),
	}
	all = append(all, opts...)
	return runtime.NewEngine(s.steps, all...)
}

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

func (s *Server) saveSession(ctx context.Context, sessionID string, eng *runtime.Engine) error {
	cur := ""
	if step := eng.Current(); step != nil {
		cur = step.ID
	}
	return s.sessions.Store().Save(ctx, sessionID, flow.NewSnapshot(eng.Context(), cur))
}

func (s *Server) result(sessionID string, eng *runtime.Engine) SessionResult {
	res := SessionResult{
		SessionID: sessionID,
		State:     eng.State(),
	}
	cur := eng.Current()
	if cur == nil {
		return res
	}
	sum := &StepSummary{
		ID:        cur.ID,
		Type:      cur.Type,
		Title:     cur.Title(),
		Content:   cur.Content(),
		Skippable: cur.Skippable,
	}
	if cur.Type == flow.TypeChecklist && cur.Checklist != nil {
		progress := eng.ChecklistProgress(cur)
		sum.Checklist = &progress
	}
	res.CurrentStep = sum
	return res
}

// decodeJSONArg parses an optional JSON-object string argument.
func decodeJSONArg(args map[string]any, key string) (map[string]any, error) {
	raw, ok := args[key].(string)
	if !ok || raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("invalid %s: expected a JSON object: %w", key, err)
	}
	return out, nil
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (SessionResult, error) {
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		sessionID = session.NewID()
	}
	seed, err := decodeJSONArg(args, "context")
	if err != nil {
		return SessionResult{}, err
	}

	var res SessionResult
	err = s.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if _, err := s.sessions.Store().Load(ctx, sessionID); err == nil {
			return fmt.Errorf("session already exists: %s", sessionID)
		} else if !errors.Is(err, flow.ErrSessionNotFound) {
			return err
		}

		eng := s.newEngine(sessionID,
			runtime.WithContext(flow.NewContextWithData(seed)))
		if _, err := eng.Start(ctx); err != nil {
			return fmt.Errorf("start failed: %w", err)
		}
		if err := s.saveSession(ctx, sessionID, eng); err != nil {
			return err
		}
		s.live.Put(sessionID, eng)
		res = s.result(sessionID, eng)
		return nil
	})
	return res, err
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (SessionResult, error) {
	sessionID, _ := args["session_id"].(string)
	var res SessionResult
	err := s.withSession(ctx, sessionID, func(ctx context.Context, eng *runtime.Engine) error {
		res = s.result(sessionID, eng)
		return nil
	})
	return res, err
}

func (s *Server) handleNavigate(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (SessionResult, error) {
	sessionID, _ := args["session_id"].(string)
	action, _ := args["action"].(string)
	data, err := decodeJSONArg(args, "data")
	if err != nil {
		return SessionResult{}, err
	}

	var res SessionResult
	err = s.withSession(ctx, sessionID, func(ctx context.Context, eng *runtime.Engine) error {
		var navErr error
		switch action {
		case "next":
			_, navErr = eng.Next(ctx, data)
		case "previous":
			_, navErr = eng.Previous(ctx)
		case "skip":
			_, navErr = eng.Skip(ctx)
		default:
			return fmt.Errorf("unknown action %q: expected next, previous or skip", action)
		}
		if navErr != nil {
			return fmt.Errorf("%s failed: %w", action, navErr)
		}
		if err := s.saveSession(ctx, sessionID, eng); err != nil {
			return err
		}
		res = s.result(sessionID, eng)
		return nil
	})
	return res, err
}

func (s *Server) handleGoTo(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (SessionResult, error) {
	sessionID, _ := args["session_id"].(string)
	stepID, _ := args["step_id"].(string)
	if stepID == "" {
		return SessionResult{}, errors.New("step_id is required")
	}
	data, err := decodeJSONArg(args, "data")
	if err != nil {
		return SessionResult{}, err
	}

	var res SessionResult
	err = s.withSession(ctx, sessionID, func(ctx context.Context, eng *runtime.Engine) error {
		if _, err := eng.GoTo(ctx, stepID, data); err != nil {
			return fmt.Errorf("goto failed: %w", err)
		}
		if err := s.saveSession(ctx, sessionID, eng); err != nil {
			return err
		}
		res = s.result(sessionID, eng)
		return nil
	})
	return res, err
}

func (s *Server) handleChecklistItem(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (SessionResult, error) {
	sessionID, _ := args["session_id"].(string)
	itemID, _ := args["item_id"].(string)
	completed, _ := args["completed"].(bool)

	var res SessionResult
	err := s.withSession(ctx, sessionID, func(ctx context.Context, eng *runtime.Engine) error {
		if err := eng.UpdateChecklistItem(ctx, itemID, completed); err != nil {
			return fmt.Errorf("checklist update failed: %w", err)
		}
		res = s.result(sessionID, eng)
		return nil
	})
	return res, err
}
