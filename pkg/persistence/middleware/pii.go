package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/sherpa/pkg/flow"
	"github.com/aretw0/sherpa/pkg/ports"
)

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the values of data
// keys matching any of the patterns before they are persisted. The live
// in-memory context is untouched.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, snap *flow.Snapshot) error {
	cloned, err := cloneSnapshot(snap)
	if err != nil {
		return fmt.Errorf("failed to clone snapshot for masking: %w", err)
	}
	if cloned.FlowData != nil {
		maskMap(cloned.FlowData.Data(), m.patterns)
	}
	return m.next.Save(ctx, sessionID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*flow.Snapshot, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// cloneSnapshot deep-copies through the JSON wire shape, so masking
// cannot reach the engine's live context.
func cloneSnapshot(snap *flow.Snapshot) (*flow.Snapshot, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	var out flow.Snapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = "***"
				break
			}
		}
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
