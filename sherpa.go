package sherpa

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/sherpa/internal/presentation/graph"
	"github.com/aretw0/sherpa/internal/runtime"
	"github.com/aretw0/sherpa/internal/validator"
	"github.com/aretw0/sherpa/pkg/flow"
	"github.com/aretw0/sherpa/pkg/flowfile"
	"github.com/aretw0/sherpa/pkg/ports"
)

// Version is the library version, reported by the CLI and the MCP server.
var Version = "0.9.0"

// Engine is the high-level entry point for the Sherpa library. It wraps
// the internal navigation runtime and provides a simplified API for a
// single session over one flow definition.
type Engine struct {
	rt    *runtime.Engine
	steps []flow.Step

	Name string

	logger      *slog.Logger
	store       ports.StateStore
	sessionID   string
	initialData map[string]any
	runtimeOpts []runtime.EngineOption
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithName labels the engine, enriching its log records.
func WithName(name string) Option {
	return func(e *Engine) {
		e.Name = name
	}
}

// WithInitialStep overrides the entry step (default: the first step).
func WithInitialStep(stepID string) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithInitialStep(stepID))
	}
}

// WithInitialData seeds the session context.
func WithInitialData(data map[string]any) Option {
	return func(e *Engine) {
		e.initialData = data
	}
}

// WithStore wires a state store as the persistence collaborator for the
// given session ID. Resume then loads from the same store.
func WithStore(store ports.StateStore, sessionID string) Option {
	return func(e *Engine) {
		e.store = store
		e.sessionID = sessionID
	}
}

// WithMaxTraversalDepth bounds the conditional-skip loop (default 100).
func WithMaxTraversalDepth(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxTraversalDepth(n))
	}
}

// WithErrorCapacity bounds the failure history (default 50).
func WithErrorCapacity(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithErrorCapacity(n))
	}
}

// WithFlowCompleteHook registers a hook invoked once the flow completes
// through user navigation.
func WithFlowCompleteHook(fn flow.Hook) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithFlowCompleteHook(fn))
	}
}

// WithStepChangeCallback registers a callback invoked after every
// navigation resolves. Failures are isolated.
func WithStepChangeCallback(fn func(ctx context.Context, from, to *flow.Step, fc *flow.Context)) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithStepChangeCallback(fn))
	}
}

// New initializes an Engine over the given step definitions. The
// definition is validated structurally before the session starts.
func New(steps []flow.Step, opts ...Option) (*Engine, error) {
	if err := validator.ValidateSteps(steps); err != nil {
		return nil, err
	}

	eng := &Engine{steps: steps}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("flow", eng.Name)
	}

	rtOpts := []runtime.EngineOption{
		runtime.WithLogger(eng.logger),
		runtime.WithContext(flow.NewContextWithData(eng.initialData)),
	}
	if eng.store != nil {
		sessionID := eng.sessionID
		store := eng.store
		rtOpts = append(rtOpts, runtime.WithPersistence(func(ctx context.Context, fc *flow.Context, stepID string) error {
			return store.Save(ctx, sessionID, flow.NewSnapshot(fc, stepID))
		}))
	}
	rtOpts = append(rtOpts, eng.runtimeOpts...)

	eng.rt = runtime.NewEngine(steps, rtOpts...)
	return eng, nil
}

// Load reads a flow definition file (YAML or JSON) and initializes an
// Engine over it. The file's name field labels the engine.
func Load(path string, opts ...Option) (*Engine, error) {
	f, steps, err := flowfile.Load(path)
	if err != nil {
		return nil, err
	}

	name := f.Name
	if name == "" {
		name = filepath.Base(path)
	}
	all := []Option{WithName(name)}
	if f.InitialStep != "" {
		all = append(all, WithInitialStep(f.InitialStep))
	}
	all = append(all, opts...)
	return New(steps, all...)
}

// Start navigates to the entry step, applying conditional skipping if it
// is currently ineligible.
func (e *Engine) Start(ctx context.Context) (*flow.Step, error) {
	return e.rt.Start(ctx)
}

// Resume loads the persisted snapshot from the configured store and
// hydrates the session from it. Without a store, or when the session was
// never persisted, it behaves like Start.
func (e *Engine) Resume(ctx context.Context) (*flow.Step, error) {
	if e.store == nil {
		return e.rt.Start(ctx)
	}
	snap, err := e.store.Load(ctx, e.sessionID)
	if err != nil {
		if errors.Is(err, flow.ErrSessionNotFound) {
			return e.rt.Start(ctx)
		}
		return nil, err
	}
	return e.rt.Hydrate(ctx, snap)
}

// Hydrate applies a snapshot directly, bypassing the store.
func (e *Engine) Hydrate(ctx context.Context, snap *flow.Snapshot) (*flow.Step, error) {
	return e.rt.Hydrate(ctx, snap)
}

// Next completes the current step and advances along the forward rule,
// merging stepData into the session context first.
func (e *Engine) Next(ctx context.Context, stepData map[string]any) (*flow.Step, error) {
	return e.rt.Next(ctx, stepData)
}

// Previous navigates backward without completing anything.
func (e *Engine) Previous(ctx context.Context) (*flow.Step, error) {
	return e.rt.Previous(ctx)
}

// Skip advances past the current step without completing it. A no-op on
// steps that are not skippable.
func (e *Engine) Skip(ctx context.Context) (*flow.Step, error) {
	return e.rt.Skip(ctx)
}

// GoTo jumps to an arbitrary step.
func (e *Engine) GoTo(ctx context.Context, stepID string, stepData map[string]any) (*flow.Step, error) {
	return e.rt.GoTo(ctx, stepID, stepData)
}

// UpdateChecklistItem toggles a checklist item on the current step.
func (e *Engine) UpdateChecklistItem(ctx context.Context, itemID string, completed bool) error {
	return e.rt.UpdateChecklistItem(ctx, itemID, completed)
}

// ChecklistProgress summarizes checklist completion for the given step.
func (e *Engine) ChecklistProgress(step *flow.Step) flow.ChecklistProgress {
	return e.rt.ChecklistProgress(step)
}

// State returns the derived navigation state projection.
func (e *Engine) State() flow.EngineState {
	return e.rt.State()
}

// Current returns the active step, or nil before Start / after completion.
func (e *Engine) Current() *flow.Step {
	return e.rt.Current()
}

// History returns a copy of the visited-step trail.
func (e *Engine) History() []string {
	return e.rt.History()
}

// Context returns the live session context.
func (e *Engine) Context() *flow.Context {
	return e.rt.Context()
}

// Steps returns the step definitions.
func (e *Engine) Steps() []flow.Step {
	return e.steps
}

// Subscribe registers an event listener for the given event type and
// returns an unsubscribe function.
func (e *Engine) Subscribe(t flow.EventType, fn func(ctx context.Context, ev flow.Event) error) (func(), error) {
	return e.rt.Subscribe(t, fn)
}

// Errors returns the full failure history.
func (e *Engine) Errors() []flow.ErrorRecord {
	return e.rt.Errors()
}

// RecentErrors returns the n most recent failures.
func (e *Engine) RecentErrors(n int) []flow.ErrorRecord {
	return e.rt.RecentErrors(n)
}

// ErrorsByOperation filters the failure history by operation substring.
func (e *Engine) ErrorsByOperation(substr string) []flow.ErrorRecord {
	return e.rt.ErrorsByOperation(substr)
}

// ErrorsByStep filters the failure history by exact step ID.
func (e *Engine) ErrorsByStep(stepID string) []flow.ErrorRecord {
	return e.rt.ErrorsByStep(stepID)
}

// CurrentError returns the active error freezing navigation, or nil.
func (e *Engine) CurrentError() error {
	return e.rt.CurrentError()
}

// ClearError resets the active error; the history is retained.
func (e *Engine) ClearError(ctx context.Context) {
	e.rt.ClearError(ctx)
}

// Runtime exposes the wrapped runtime engine for adapters that need the
// full surface, e.g. the metrics recorder.
func (e *Engine) Runtime() *runtime.Engine {
	return e.rt
}

// Graph renders the flow as a Mermaid flowchart, overlaying the current
// session's progress.
func (e *Engine) Graph() string {
	st := e.rt.State()
	return graph.GenerateMermaid(e.steps, &graph.Overlay{
		VisitedSteps: e.rt.History(),
		CurrentStep:  st.CurrentStepID,
		Completed:    e.rt.CompletedSteps(),
	})
}
