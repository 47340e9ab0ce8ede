package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/stride/pkg/domain"
)

var (
	// DefaultMaxTextSize bounds a single free-text field (4KB).
	DefaultMaxTextSize = 4096
	// EnvMaxTextSize overrides DefaultMaxTextSize.
	EnvMaxTextSize = "STRIDE_MAX_TEXT_SIZE"
)

var (
	ErrTextTooLarge = errors.New("text exceeds maximum allowed size")
	ErrInvalidUTF8  = errors.New("text contains invalid UTF-8 sequences")
)

// SanitizeText enforces the size limit, validates UTF-8 and strips control
// characters other than newline, tab and carriage return. Oversized input is
// rejected rather than truncated.
func SanitizeText(input string) (string, error) {
	limit := maxTextSize()
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrTextTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}

func maxTextSize() int {
	if val := os.Getenv(EnvMaxTextSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxTextSize
}

// textFields sanitizes named free-text fields in place and collects the
// names of those that were rejected.
type textFields []string

func (tf *textFields) clean(name string, s *string) {
	if *s == "" {
		return
	}
	out, err := SanitizeText(*s)
	if err != nil {
		*tf = append(*tf, name)
		return
	}
	*s = out
}

func (tf textFields) err() error {
	if len(tf) == 0 {
		return nil
	}
	return &domain.ValidationError{Fields: tf}
}
