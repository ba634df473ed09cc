// Package runtime implements the flow navigation engine: target
// resolution over the step graph, the derived state projection, the
// checklist gate and the orchestration of lifecycle notifications.
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/sherpa/internal/events"
	"github.com/aretw0/sherpa/internal/faults"
	"github.com/aretw0/sherpa/internal/logging"
	"github.com/aretw0/sherpa/pkg/flow"
)

// DefaultMaxTraversalDepth bounds the conditional-skip loop. A flow that
// exceeds it almost certainly has a condition cycle.
const DefaultMaxTraversalDepth = 100

// PersistFunc is the persistence collaborator. It receives the live
// context and the new current step ID ("" once the flow completes).
type PersistFunc func(ctx context.Context, fc *flow.Context, currentStepID string) error

// StepChangeFunc is an optional caller callback invoked after every
// navigation resolves. Failures are isolated.
type StepChangeFunc func(ctx context.Context, from, to *flow.Step, fc *flow.Context)

// Engine drives a single navigation session over an immutable step
// sequence. Navigation calls must be serialized by the caller; the
// loading flag is an advisory re-entrancy guard, not a mutex.
type Engine struct {
	steps     []flow.Step
	index     map[string]int
	initialID string

	fc *flow.Context

	mu        sync.Mutex
	currentID string
	history   []string
	loading   bool
	hydrating bool
	completed bool

	bus    *events.Bus
	faults *faults.Service
	logger *slog.Logger

	persist        PersistFunc
	onFlowComplete flow.Hook
	onStepChange   StepChangeFunc
	maxDepth       int
	errorCapacity  int
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithContext seeds the session context. The context is adopted and
// mutated in place for the lifetime of the session.
func WithContext(fc *flow.Context) EngineOption {
	return func(e *Engine) {
		if fc != nil {
			e.fc = fc
		}
	}
}

// WithInitialStep overrides the designated initial step (default: the
// first step in the sequence).
func WithInitialStep(id string) EngineOption {
	return func(e *Engine) {
		if id != "" {
			e.initialID = id
		}
	}
}

// WithPersistence wires the persistence collaborator.
func WithPersistence(fn PersistFunc) EngineOption {
	return func(e *Engine) {
		e.persist = fn
	}
}

// WithFlowCompleteHook registers a hook invoked once the flow completes.
func WithFlowCompleteHook(fn flow.Hook) EngineOption {
	return func(e *Engine) {
		e.onFlowComplete = fn
	}
}

// WithStepChangeCallback registers the caller's step-change callback.
func WithStepChangeCallback(fn StepChangeFunc) EngineOption {
	return func(e *Engine) {
		e.onStepChange = fn
	}
}

// WithMaxTraversalDepth bounds the conditional-skip loop.
func WithMaxTraversalDepth(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithErrorCapacity bounds the failure history.
func WithErrorCapacity(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.errorCapacity = n
		}
	}
}

// NewEngine creates an engine over the given step sequence. The sequence
// is treated as read-only; changing the flow definition requires a new
// engine.
func NewEngine(steps []flow.Step, opts ...EngineOption) *Engine {
	e := &Engine{
		steps:    steps,
		index:    make(map[string]int, len(steps)),
		logger:   logging.NewNop(),
		maxDepth: DefaultMaxTraversalDepth,
	}
	for i := range steps {
		e.index[steps[i].ID] = i
	}
	if len(steps) > 0 {
		e.initialID = steps[0].ID
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fc == nil {
		e.fc = flow.NewContext()
	}

	e.bus = events.NewBus(e.logger)
	var faultOpts []faults.Option
	if e.errorCapacity > 0 {
		faultOpts = append(faultOpts, faults.WithCapacity(e.errorCapacity))
	}
	faultOpts = append(faultOpts, faults.WithNotifier(func(ctx context.Context, rec flow.ErrorRecord) {
		e.bus.Publish(ctx, flow.EventError, flow.ErrorEvent{Record: rec})
	}))
	e.faults = faults.NewService(e.logger, faultOpts...)
	return e
}

// Steps returns the step definitions, for introspection and rendering.
func (e *Engine) Steps() []flow.Step {
	return e.steps
}

// InitialStepID returns the designated initial step.
func (e *Engine) InitialStepID() string {
	return e.initialID
}

// Context returns the live session context.
func (e *Engine) Context() *flow.Context {
	return e.fc
}

// Current returns the active step, or nil before Start / after completion.
func (e *Engine) Current() *flow.Step {
	e.mu.Lock()
	id := e.currentID
	e.mu.Unlock()
	return e.step(id)
}

// History returns a copy of the visited-step trail.
func (e *Engine) History() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.history))
	copy(out, e.history)
	return out
}

// Subscribe registers an event listener; see events.Bus.Subscribe.
func (e *Engine) Subscribe(t flow.EventType, fn events.Listener) (func(), error) {
	return e.bus.Subscribe(t, fn)
}

// Errors returns the full failure history (defensive copy).
func (e *Engine) Errors() []flow.ErrorRecord {
	return e.faults.History()
}

// RecentErrors returns the n most recent failures.
func (e *Engine) RecentErrors(n int) []flow.ErrorRecord {
	return e.faults.Recent(n)
}

// ErrorsByOperation filters the failure history by operation substring.
func (e *Engine) ErrorsByOperation(substr string) []flow.ErrorRecord {
	return e.faults.ByOperation(substr)
}

// ErrorsByStep filters the failure history by exact step ID.
func (e *Engine) ErrorsByStep(stepID string) []flow.ErrorRecord {
	return e.faults.ByStep(stepID)
}

// CurrentError returns the active error freezing navigation, or nil.
func (e *Engine) CurrentError() error {
	return e.faults.Current()
}

// ClearError resets the active error, unfreezing navigation affordances.
// The failure history is retained.
func (e *Engine) ClearError(ctx context.Context) {
	e.faults.Clear()
	e.publishState(ctx)
}

// Start navigates to the initial step, applying the conditional-skip
// loop if the initial step is currently ineligible.
func (e *Engine) Start(ctx context.Context) (*flow.Step, error) {
	if !e.beginNavigation() {
		return e.Current(), nil
	}
	defer e.endNavigation()
	return e.navigateToStep(ctx, e.initialID, flow.DirectionInitial)
}

// Hydrate applies a persisted snapshot and resumes at its current step.
// Persistence is suppressed for the duration so that loading saved state
// does not re-trigger a save.
func (e *Engine) Hydrate(ctx context.Context, snap *flow.Snapshot) (*flow.Step, error) {
	if snap == nil {
		return e.Start(ctx)
	}
	if !e.beginNavigation() {
		return e.Current(), nil
	}
	defer e.endNavigation()

	e.mu.Lock()
	e.hydrating = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.hydrating = false
		e.mu.Unlock()
	}()

	if snap.FlowData != nil {
		e.fc = snap.FlowData
	}
	targetID := snap.StepID()
	if targetID == "" {
		// Persisted null step: the flow had completed.
		e.mu.Lock()
		e.currentID = ""
		e.completed = true
		e.mu.Unlock()
		e.publishState(ctx)
		return nil, nil
	}
	return e.navigateToStep(ctx, targetID, flow.DirectionInitial)
}

// step resolves an ID to the step definition, nil when unknown or empty.
func (e *Engine) step(id string) *flow.Step {
	if id == "" {
		return nil
	}
	i, ok := e.index[id]
	if !ok {
		return nil
	}
	return &e.steps[i]
}

// beginNavigation is the advisory re-entrancy guard: it rejects (rather
// than queues) a navigation while another is in flight.
func (e *Engine) beginNavigation() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loading {
		return false
	}
	e.loading = true
	return true
}

func (e *Engine) endNavigation() {
	e.mu.Lock()
	e.loading = false
	e.mu.Unlock()
}

func (e *Engine) isHydrating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hydrating
}

func (e *Engine) persistSnapshot(ctx context.Context, currentStepID string) {
	if e.persist == nil || e.isHydrating() {
		return
	}
	e.faults.SafeExecute(ctx, "persist", currentStepID, e.fc.DataSnapshot(), func() error {
		return e.persist(ctx, e.fc, currentStepID)
	})
}

func (e *Engine) publishState(ctx context.Context) {
	e.bus.Publish(ctx, flow.EventStateChange, flow.StateChangeEvent{State: e.State()})
}
