// Package metrics exposes engine activity as Prometheus collectors. A
// Recorder subscribes to the engine's event bus and counts step visits,
// navigations, completions, errors and checklist toggles, plus a
// per-step dwell time histogram.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/sherpa/internal/events"
	"github.com/aretw0/sherpa/pkg/flow"
)

// Subscriber is the slice of the engine the recorder attaches to.
type Subscriber interface {
	Subscribe(t flow.EventType, fn events.Listener) (func(), error)
}

// Recorder holds the collectors. Construct it with New and wire it to an
// engine with Attach.
type Recorder struct {
	reg prometheus.Registerer

	stepVisits       *prometheus.CounterVec
	navigations      *prometheus.CounterVec
	flowCompletions  prometheus.Counter
	errorsTotal      *prometheus.CounterVec
	checklistToggles *prometheus.CounterVec
	stepDwellSeconds *prometheus.HistogramVec

	mu       sync.Mutex
	activeAt map[string]time.Time
}

// New creates a Recorder and registers its collectors. A nil registerer
// uses the process-wide default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		reg: reg,
		stepVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sherpa_step_visits_total",
			Help: "Number of times each step became the current step.",
		}, []string{"step_id"}),
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sherpa_navigations_total",
			Help: "Resolved navigations by direction.",
		}, []string{"direction"}),
		flowCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sherpa_flow_completions_total",
			Help: "Number of flows navigated to completion.",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sherpa_errors_total",
			Help: "Failures recorded by the engine, by operation.",
		}, []string{"operation"}),
		checklistToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sherpa_checklist_toggles_total",
			Help: "Checklist item toggles by step.",
		}, []string{"step_id"}),
		stepDwellSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sherpa_step_dwell_seconds",
			Help:    "Time between a step becoming active and being completed.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"step_id"}),
		activeAt: make(map[string]time.Time),
	}
	reg.MustRegister(
		r.stepVisits,
		r.navigations,
		r.flowCompletions,
		r.errorsTotal,
		r.checklistToggles,
		r.stepDwellSeconds,
	)
	return r
}

// Attach subscribes the recorder to the engine's events and returns a
// single function detaching all subscriptions.
func (r *Recorder) Attach(sub Subscriber) (func(), error) {
	var unsubs []func()
	detach := func() {
		for _, fn := range unsubs {
			fn()
		}
	}

	for t, fn := range map[flow.EventType]events.Listener{
		flow.EventStepActive:    r.onStepActive,
		flow.EventStepComplete:  r.onStepComplete,
		flow.EventStepChange:    r.onStepChange,
		flow.EventFlowComplete:  r.onFlowComplete,
		flow.EventError:         r.onError,
		flow.EventChecklistItem: r.onChecklistItem,
	} {
		unsub, err := sub.Subscribe(t, fn)
		if err != nil {
			detach()
			return nil, err
		}
		unsubs = append(unsubs, unsub)
	}
	return detach, nil
}

// Handler serves the registered metrics. When the recorder was built on
// a Registry it serves exactly that registry, otherwise the global one.
func (r *Recorder) Handler() http.Handler {
	if g, ok := r.reg.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

func (r *Recorder) onStepActive(ctx context.Context, ev flow.Event) error {
	p, ok := ev.Payload.(flow.StepChangeEvent)
	if !ok || p.To == nil {
		return nil
	}
	r.stepVisits.WithLabelValues(p.To.ID).Inc()
	r.mu.Lock()
	r.activeAt[p.To.ID] = ev.Timestamp
	r.mu.Unlock()
	return nil
}

func (r *Recorder) onStepComplete(ctx context.Context, ev flow.Event) error {
	p, ok := ev.Payload.(flow.StepCompleteEvent)
	if !ok || p.Step == nil {
		return nil
	}
	r.mu.Lock()
	since, tracked := r.activeAt[p.Step.ID]
	delete(r.activeAt, p.Step.ID)
	r.mu.Unlock()
	if tracked {
		r.stepDwellSeconds.WithLabelValues(p.Step.ID).Observe(ev.Timestamp.Sub(since).Seconds())
	}
	return nil
}

func (r *Recorder) onStepChange(ctx context.Context, ev flow.Event) error {
	p, ok := ev.Payload.(flow.StepChangeEvent)
	if !ok {
		return nil
	}
	r.navigations.WithLabelValues(string(p.Direction)).Inc()
	return nil
}

func (r *Recorder) onFlowComplete(ctx context.Context, ev flow.Event) error {
	r.flowCompletions.Inc()
	return nil
}

func (r *Recorder) onError(ctx context.Context, ev flow.Event) error {
	p, ok := ev.Payload.(flow.ErrorEvent)
	if !ok {
		return nil
	}
	r.errorsTotal.WithLabelValues(p.Record.Operation).Inc()
	return nil
}

func (r *Recorder) onChecklistItem(ctx context.Context, ev flow.Event) error {
	p, ok := ev.Payload.(flow.ChecklistItemEvent)
	if !ok || p.Step == nil {
		return nil
	}
	r.checklistToggles.WithLabelValues(p.Step.ID).Inc()
	return nil
}
