// Package faults captures engine failures into a bounded history, keeps
// the shared "current error" that freezes navigation affordances, and
// forwards every record to the error notification channel.
package faults

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/sherpa/pkg/flow"
)

// DefaultCapacity bounds the rolling failure history.
const DefaultCapacity = 50

// Notifier forwards a freshly appended record, typically onto the event
// bus as an EventError.
type Notifier func(ctx context.Context, rec flow.ErrorRecord)

// Service is the engine's error sink. Safe for concurrent use.
type Service struct {
	mu       sync.Mutex
	records  []flow.ErrorRecord
	capacity int
	current  error

	notify Notifier
	logger *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithCapacity bounds the history; values < 1 keep the default.
func WithCapacity(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithNotifier sets the record forwarding callback.
func WithNotifier(fn Notifier) Option {
	return func(s *Service) {
		s.notify = fn
	}
}

// NewService creates an error service.
func NewService(logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		capacity: DefaultCapacity,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Normalize coerces any recovered value into an error.
func Normalize(v any) error {
	switch e := v.(type) {
	case nil:
		return nil
	case error:
		return e
	case string:
		return fmt.Errorf("%s", e)
	default:
		return fmt.Errorf("%v", e)
	}
}

// Handle normalizes the failure, appends a history entry (evicting the
// oldest beyond capacity), sets the shared current error and forwards the
// record. It returns the normalized error so callers can reuse it.
func (s *Service) Handle(ctx context.Context, v any, operation, stepID string, snapshot map[string]any) error {
	err := Normalize(v)
	if err == nil {
		return nil
	}

	rec := flow.ErrorRecord{
		Err:       err,
		Message:   err.Error(),
		Operation: operation,
		StepID:    stepID,
		Timestamp: time.Now().UTC(),
		Stack:     string(debug.Stack()),
		Context:   snapshot,
	}

	s.mu.Lock()
	s.records = append(s.records, rec)
	if over := len(s.records) - s.capacity; over > 0 {
		s.records = s.records[over:]
	}
	s.current = err
	notify := s.notify
	s.mu.Unlock()

	s.logger.ErrorContext(ctx, "operation failed",
		"operation", operation, "step", stepID, "err", err)

	if notify != nil {
		notify(ctx, rec)
	}
	return err
}

// Current returns the active error, or nil.
func (s *Service) Current() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Clear resets the active error. The history is retained.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// History returns a defensive copy of the full failure history, oldest
// first.
func (s *Service) History() []flow.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]flow.ErrorRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Recent returns the n most recent records in chronological order.
// n <= 0 yields an empty slice.
func (s *Service) Recent(n int) []flow.ErrorRecord {
	if n <= 0 {
		return []flow.ErrorRecord{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.records) {
		n = len(s.records)
	}
	out := make([]flow.ErrorRecord, n)
	copy(out, s.records[len(s.records)-n:])
	return out
}

// ByOperation returns records whose operation name contains the substring.
func (s *Service) ByOperation(substr string) []flow.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []flow.ErrorRecord
	for _, rec := range s.records {
		if strings.Contains(rec.Operation, substr) {
			out = append(out, rec)
		}
	}
	return out
}

// ByStep returns records tagged with the exact step ID.
func (s *Service) ByStep(stepID string) []flow.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []flow.ErrorRecord
	for _, rec := range s.records {
		if rec.StepID == stepID {
			out = append(out, rec)
		}
	}
	return out
}

// SafeExecute runs fn, routing any failure (returned or panicked) through
// Handle. It reports whether fn succeeded, so optional hooks cannot
// destabilize the surrounding navigation.
func (s *Service) SafeExecute(ctx context.Context, operation, stepID string, snapshot map[string]any, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.Handle(ctx, r, operation, stepID, snapshot)
			ok = false
		}
	}()
	if err := fn(); err != nil {
		s.Handle(ctx, err, operation, stepID, snapshot)
		return false
	}
	return true
}
