// Package parse recovers JSON from free-form model output.
//
// Models wrap JSON in prose, put it in markdown fences, or stop mid-object
// when they hit a token limit. JSON tries progressively more lenient tiers
// and reports which one succeeded; callers that cannot proceed without a
// value use Or to fall back to a structured default. Leniency stops here:
// whatever a tier yields is decoded with encoding/json into a concrete type.
package parse

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Tier names the strategy that produced a value.
type Tier int

const (
	TierNone Tier = iota
	TierDirect
	TierFence
	TierBalanced
	TierRepaired
	TierDefault
)

func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierFence:
		return "fence"
	case TierBalanced:
		return "balanced"
	case TierRepaired:
		return "repaired"
	case TierDefault:
		return "default"
	}
	return "none"
}

// ErrNoJSON is returned when no tier could decode the text.
var ErrNoJSON = errors.New("no decodable JSON in model output")

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*[ \\t]*\\r?\\n?(.*?)```")

// maxRepairCuts bounds how many trailing elements repair may drop.
const maxRepairCuts = 8

// JSON decodes the first JSON value in text that fits out.
func JSON(text string, out any) (Tier, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return TierNone, ErrNoJSON
	}

	if json.Unmarshal([]byte(trimmed), out) == nil {
		return TierDirect, nil
	}

	for _, m := range fenceRe.FindAllStringSubmatch(trimmed, -1) {
		if json.Unmarshal([]byte(strings.TrimSpace(m[1])), out) == nil {
			return TierFence, nil
		}
	}

	// A truncated outer value would otherwise surface one of its complete
	// inner fragments as a balanced candidate.
	body := unfence(trimmed)
	truncated := false
	if i := strings.IndexAny(body, "{["); i >= 0 {
		truncated = matchClose(body, i) < 0
	}
	if truncated && tryRepair(body, out) {
		return TierRepaired, nil
	}

	for _, candidate := range Balanced(trimmed) {
		if json.Unmarshal([]byte(candidate), out) == nil {
			return TierBalanced, nil
		}
	}

	if !truncated && tryRepair(body, out) {
		return TierRepaired, nil
	}
	return TierNone, ErrNoJSON
}

func tryRepair(s string, out any) bool {
	repaired, ok := Repair(s)
	return ok && json.Unmarshal([]byte(repaired), out) == nil
}

// Or decodes text into a T, returning fallback and TierDefault when every
// tier fails.
func Or[T any](text string, fallback T) (T, Tier) {
	var out T
	tier, err := JSON(text, &out)
	if err != nil {
		return fallback, TierDefault
	}
	return out, tier
}

// unfence strips an opening fence whose closing fence was cut off.
func unfence(s string) string {
	idx := strings.Index(s, "```")
	if idx < 0 {
		return s
	}
	rest := s[idx+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(rest), "```")
}

// Balanced returns every top-level bracket-balanced {...} or [...] span in s,
// in order of appearance. Brackets inside JSON strings are ignored.
func Balanced(s string) []string {
	var out []string
	for start := 0; start < len(s); {
		i := strings.IndexAny(s[start:], "{[")
		if i < 0 {
			break
		}
		i += start
		end := matchClose(s, i)
		if end < 0 {
			start = i + 1
			continue
		}
		out = append(out, s[i:end+1])
		start = end + 1
	}
	return out
}

func matchClose(s string, open int) int {
	var stack []byte
	inStr, esc := false, false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// Repair closes a JSON value that was cut off mid-stream. It closes an open
// string, drops a dangling separator, and appends the missing closers. When
// the result still does not parse, the last partial element is dropped and
// the process repeats.
func Repair(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	s = s[start:]

	for range maxRepairCuts {
		closed, commas := closeOpen(s)
		if json.Valid([]byte(closed)) {
			return closed, true
		}
		if len(commas) == 0 {
			return "", false
		}
		s = s[:commas[len(commas)-1]]
	}
	return "", false
}

// closeOpen returns s with its open strings and brackets closed, and the
// offsets of every comma outside a string.
func closeOpen(s string) (string, []int) {
	var (
		stack  []byte
		commas []int
	)
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case ',':
			commas = append(commas, i)
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inStr {
		if esc {
			// Drop the dangling escape so the closing quote is not escaped.
			str := b.String()
			b.Reset()
			b.WriteString(str[:len(str)-1])
		}
		b.WriteByte('"')
	}
	out := strings.TrimRight(b.String(), " \t\r\n")
	out = strings.TrimSuffix(out, ",")
	if strings.HasSuffix(out, ":") {
		out += "null"
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out, commas
}
