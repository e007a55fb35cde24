package steps

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/errand/pkg/domain"
)

// ErrUnresolved is returned when a placeholder path does not exist.
var ErrUnresolved = errors.New("unresolved placeholder")

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][\w]*(?:\.\w+)*)\s*\}\}`)

// TemplateData exposes the state values step arguments may reference, e.g.
// {{pharmacies.0.phone}} or {{info.medicineName}}.
func TemplateData(s *domain.AgentState) (map[string]any, error) {
	raw, err := json.Marshal(map[string]any{
		"info":        s.GatheredInfo,
		"pharmacies":  s.Pharmacies,
		"callResults": s.CallResults,
		"bookings":    s.Bookings,
		"itinerary":   s.Itinerary,
	})
	if err != nil {
		return nil, fmt.Errorf("template data: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("template data: %w", err)
	}
	return out, nil
}

// HasPlaceholders reports whether any string in args references data.
func HasPlaceholders(args map[string]any) bool {
	found := false
	walk(args, func(s string) {
		if placeholderRe.MatchString(s) {
			found = true
		}
	})
	return found
}

// Expand returns a copy of args with placeholders resolved against data.
// A string that is exactly one placeholder takes the referenced value with
// its type; otherwise values are formatted into the string.
func Expand(args map[string]any, data map[string]any) (map[string]any, error) {
	out, err := expandValue(args, data)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

func expandValue(v any, data map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		return expandString(t, data)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			x, err := expandValue(item, data)
			if err != nil {
				return nil, err
			}
			out[k] = x
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			x, err := expandValue(item, data)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	}
	return v, nil
}

func expandString(s string, data map[string]any) (any, error) {
	if m := placeholderRe.FindStringSubmatch(s); m != nil && m[0] == strings.TrimSpace(s) {
		return lookup(data, m[1])
	}

	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		path := placeholderRe.FindStringSubmatch(match)[1]
		v, err := lookup(data, path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return fmt.Sprint(v)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func lookup(data map[string]any, path string) (any, error) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnresolved, path)
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("%w: %s", ErrUnresolved, path)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnresolved, path)
		}
	}
	if cur == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnresolved, path)
	}
	return cur, nil
}

func walk(v any, visit func(string)) {
	switch t := v.(type) {
	case string:
		visit(t)
	case map[string]any:
		for _, item := range t {
			walk(item, visit)
		}
	case []any:
		for _, item := range t {
			walk(item, visit)
		}
	}
}
