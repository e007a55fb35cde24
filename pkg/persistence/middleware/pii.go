package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/ports"
)

// Mask replaces the values of sensitive keys.
const Mask = "***"

type piiMiddleware struct {
	next     ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks gathered-info values whose
// keys match any of the patterns, at any depth. Masking is one-way: a masked
// checkpoint restores with the mask in place of the value.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, cp domain.Checkpoint) error {
	masked, err := m.mask(cp.GatheredInfo)
	if err != nil {
		return err
	}
	cp.GatheredInfo = masked
	return m.next.Save(ctx, cp)
}

// mask works on a JSON copy so the caller's state is never touched and
// nested typed values (pharmacies, bookings) are reachable as maps.
func (m *piiMiddleware) mask(info domain.GatheredInfo) (domain.GatheredInfo, error) {
	raw, err := json.Marshal(info)
	if err != nil {
		return domain.GatheredInfo{}, fmt.Errorf("pii: marshal gathered info: %w", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return domain.GatheredInfo{}, fmt.Errorf("pii: unmarshal gathered info: %w", err)
	}

	maskMap(flat, m.patterns)
	// A numeric field cannot hold the mask.
	if flat["travelers"] == Mask {
		delete(flat, "travelers")
	}
	return domain.InfoFromMap(flat)
}

func (m *piiMiddleware) Load(ctx context.Context, taskID string) (domain.Checkpoint, error) {
	return m.next.Load(ctx, taskID)
}

func (m *piiMiddleware) Delete(ctx context.Context, taskID string) error {
	return m.next.Delete(ctx, taskID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		if matchAny(k, patterns) {
			m[k] = Mask
			continue
		}
		maskValue(v, patterns)
	}
}

func maskValue(v any, patterns []*regexp.Regexp) {
	switch t := v.(type) {
	case map[string]any:
		maskMap(t, patterns)
	case []any:
		for _, item := range t {
			maskValue(item, patterns)
		}
	}
}

func matchAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
