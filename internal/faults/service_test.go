package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sherpa/internal/logging"
	"github.com/aretw0/sherpa/pkg/flow"
)

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	err := errors.New("boom")
	assert.Equal(t, err, Normalize(err))

	assert.EqualError(t, Normalize("string failure"), "string failure")
	assert.EqualError(t, Normalize(42), "42")
}

func TestService_Handle(t *testing.T) {
	ctx := context.Background()
	s := NewService(logging.NewNop())

	err := s.Handle(ctx, "boom", "navigate", "step-1", map[string]any{"k": "v"})
	require.Error(t, err)
	assert.Equal(t, err, s.Current())

	recs := s.History()
	require.Len(t, recs, 1)
	assert.Equal(t, "boom", recs[0].Message)
	assert.Equal(t, "navigate", recs[0].Operation)
	assert.Equal(t, "step-1", recs[0].StepID)
	assert.NotEmpty(t, recs[0].Stack)
	assert.Equal(t, "v", recs[0].Context["k"])
	assert.False(t, recs[0].Timestamp.IsZero())

	assert.NoError(t, s.Handle(ctx, nil, "noop", "", nil))
	assert.Len(t, s.History(), 1)
}

func TestService_CapacityEviction(t *testing.T) {
	ctx := context.Background()
	s := NewService(logging.NewNop(), WithCapacity(3))

	for i := 0; i < 5; i++ {
		_ = s.Handle(ctx, fmt.Sprintf("err-%d", i), "op", "", nil)
	}

	recs := s.History()
	require.Len(t, recs, 3)
	assert.Equal(t, "err-2", recs[0].Message)
	assert.Equal(t, "err-4", recs[2].Message)
}

func TestService_ClearKeepsHistory(t *testing.T) {
	ctx := context.Background()
	s := NewService(logging.NewNop())

	_ = s.Handle(ctx, "boom", "op", "", nil)
	require.Error(t, s.Current())

	s.Clear()
	assert.NoError(t, s.Current())
	assert.Len(t, s.History(), 1)
}

func TestService_Queries(t *testing.T) {
	ctx := context.Background()
	s := NewService(logging.NewNop())

	_ = s.Handle(ctx, "a", "navigate.next", "s1", nil)
	_ = s.Handle(ctx, "b", "navigate.previous", "s2", nil)
	_ = s.Handle(ctx, "c", "persist", "s1", nil)

	assert.Len(t, s.ByOperation("navigate"), 2)
	assert.Len(t, s.ByOperation("persist"), 1)
	assert.Empty(t, s.ByOperation("checklist"))

	assert.Len(t, s.ByStep("s1"), 2)
	assert.Len(t, s.ByStep("s2"), 1)

	recent := s.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Message)
	assert.Equal(t, "c", recent[1].Message)

	assert.Empty(t, s.Recent(0))
	assert.Len(t, s.Recent(10), 3)
}

func TestService_Notifier(t *testing.T) {
	ctx := context.Background()

	var notified []flow.ErrorRecord
	s := NewService(logging.NewNop(), WithNotifier(func(ctx context.Context, rec flow.ErrorRecord) {
		notified = append(notified, rec)
	}))

	_ = s.Handle(ctx, "boom", "op", "s", nil)
	require.Len(t, notified, 1)
	assert.Equal(t, "boom", notified[0].Message)
}

func TestService_SafeExecute(t *testing.T) {
	ctx := context.Background()
	s := NewService(logging.NewNop())

	ok := s.SafeExecute(ctx, "hook", "s", nil, func() error { return nil })
	assert.True(t, ok)
	assert.Empty(t, s.History())

	ok = s.SafeExecute(ctx, "hook", "s", nil, func() error { return errors.New("fail") })
	assert.False(t, ok)
	assert.Len(t, s.History(), 1)

	ok = s.SafeExecute(ctx, "hook", "s", nil, func() error { panic("kaboom") })
	assert.False(t, ok)
	require.Len(t, s.History(), 2)
	assert.Contains(t, s.History()[1].Message, "kaboom")
}
