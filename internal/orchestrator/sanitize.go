package orchestrator

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/errand/pkg/domain"
)

// DefaultMaxInputSize is 4KB.
const DefaultMaxInputSize = 4096

var (
	ErrInputTooLarge = fmt.Errorf("%w: input exceeds maximum allowed size", domain.ErrInvalidInput)
	ErrInvalidUTF8   = fmt.Errorf("%w: input contains invalid UTF-8 sequences", domain.ErrInvalidInput)
)

// SanitizeInput enforces the size limit, validates UTF-8, strips control
// characters other than newline, tab and carriage return, and trims
// surrounding space. Oversized input is rejected, never truncated.
func SanitizeInput(input string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxInputSize
	}
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	if strings.IndexFunc(input, unsafeControl) < 0 {
		return strings.TrimSpace(input), nil
	}
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unsafeControl(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}
