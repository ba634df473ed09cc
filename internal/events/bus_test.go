package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sherpa/internal/logging"
	"github.com/aretw0/sherpa/pkg/flow"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(logging.NewNop())

	var got []flow.Event
	unsub, err := bus.Subscribe(flow.EventStepChange, func(ctx context.Context, ev flow.Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)

	bus.Publish(ctx, flow.EventStepChange, flow.StepChangeEvent{Direction: flow.DirectionNext})
	require.Len(t, got, 1)
	assert.Equal(t, flow.EventStepChange, got[0].Type)
	assert.False(t, got[0].Timestamp.IsZero())
	p, ok := got[0].Payload.(flow.StepChangeEvent)
	require.True(t, ok)
	assert.Equal(t, flow.DirectionNext, p.Direction)

	unsub()
	bus.Publish(ctx, flow.EventStepChange, flow.StepChangeEvent{})
	assert.Len(t, got, 1, "unsubscribed listener must not fire")
	unsub() // idempotent
}

func TestBus_UnknownEventType(t *testing.T) {
	bus := NewBus(logging.NewNop())
	_, err := bus.Subscribe(flow.EventType("bogus"), func(ctx context.Context, ev flow.Event) error {
		return nil
	})
	assert.ErrorIs(t, err, flow.ErrUnknownEventType)
}

func TestBus_NilListener(t *testing.T) {
	bus := NewBus(logging.NewNop())
	_, err := bus.Subscribe(flow.EventStepChange, nil)
	assert.Error(t, err)
}

func TestBus_CoalescesDuplicateListener(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(logging.NewNop())

	calls := 0
	listener := func(ctx context.Context, ev flow.Event) error {
		calls++
		return nil
	}
	_, err := bus.Subscribe(flow.EventStepActive, listener)
	require.NoError(t, err)
	unsub2, err := bus.Subscribe(flow.EventStepActive, listener)
	require.NoError(t, err)

	bus.Publish(ctx, flow.EventStepActive, nil)
	assert.Equal(t, 1, calls, "the same function registers once per event type")

	// Either handle tears the single registration down.
	unsub2()
	bus.Publish(ctx, flow.EventStepActive, nil)
	assert.Equal(t, 1, calls)
}

func TestBus_DistinctClosuresAreDistinctListeners(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(logging.NewNop())

	// Two closures from the same literal share code but not state; each
	// must register and fire on its own.
	counts := make([]int, 2)
	for i := range counts {
		i := i
		_, err := bus.Subscribe(flow.EventStepActive, func(ctx context.Context, ev flow.Event) error {
			counts[i]++
			return nil
		})
		require.NoError(t, err)
	}

	bus.Publish(ctx, flow.EventStepActive, nil)
	assert.Equal(t, []int{1, 1}, counts)
}

func TestBus_FanOutIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(logging.NewNop())

	var reached []string
	_, err := bus.Subscribe(flow.EventError, func(ctx context.Context, ev flow.Event) error {
		reached = append(reached, "failing")
		return assert.AnError
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(flow.EventError, func(ctx context.Context, ev flow.Event) error {
		reached = append(reached, "panicking")
		panic("boom")
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(flow.EventError, func(ctx context.Context, ev flow.Event) error {
		reached = append(reached, "healthy")
		return nil
	})
	require.NoError(t, err)

	bus.Publish(ctx, flow.EventError, nil)
	assert.Equal(t, []string{"failing", "panicking", "healthy"}, reached)
}

func TestBus_SequentialStopsOnFailure(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(logging.NewNop())

	var reached []string
	_, err := bus.Subscribe(flow.EventBeforeStepChange, func(ctx context.Context, ev flow.Event) error {
		reached = append(reached, "first")
		return assert.AnError
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(flow.EventBeforeStepChange, func(ctx context.Context, ev flow.Event) error {
		reached = append(reached, "second")
		return nil
	})
	require.NoError(t, err)

	err = bus.PublishSequential(ctx, flow.EventBeforeStepChange, &flow.BeforeStepChangeEvent{})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"first"}, reached)
}

func TestBus_HasListeners(t *testing.T) {
	bus := NewBus(logging.NewNop())
	assert.False(t, bus.HasListeners(flow.EventStepChange))

	unsub, err := bus.Subscribe(flow.EventStepChange, func(ctx context.Context, ev flow.Event) error {
		return nil
	})
	require.NoError(t, err)
	assert.True(t, bus.HasListeners(flow.EventStepChange))

	unsub()
	assert.False(t, bus.HasListeners(flow.EventStepChange))
}
