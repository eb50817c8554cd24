package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	apperrors "github.com/imsportal/filingstack/internal/errors"
)

const maxControlNumberDigits = 9

// DefaultPatterns apply when an instance has none of its own, in priority order.
var DefaultPatterns = []string{
	`\bID:\s*(\d+)`,
	`(?m)^(?:RE:\s*)?ID:\s*(\d+)`,
	`^(?:RE:\s*)?(\d{1,9})\b`,
}

// ControlNumberExtractor pulls the IMS control number out of a subject line.
type ControlNumberExtractor struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
	// patterns that failed to compile, so they are skipped without recompiling
	invalid map[string]struct{}
}

func NewControlNumberExtractor() *ControlNumberExtractor {
	return &ControlNumberExtractor{
		cache:   make(map[string]*regexp.Regexp),
		invalid: make(map[string]struct{}),
	}
}

// Extract tries patterns in order and returns the first 1-9 digit control
// number found. Empty patterns means DefaultPatterns. Invalid patterns are
// skipped.
func (e *ControlNumberExtractor) Extract(subject string, patterns []string) (string, bool) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	for _, pattern := range patterns {
		re := e.compile(pattern)
		if re == nil {
			continue
		}

		match := re.FindStringSubmatch(subject)
		if match == nil {
			continue
		}

		candidate := match[0]
		if len(match) > 1 {
			candidate = match[1]
		}
		if digits := onlyDigits(candidate); len(digits) >= 1 && len(digits) <= maxControlNumberDigits {
			return digits, true
		}
	}

	return "", false
}

func (e *ControlNumberExtractor) compile(pattern string) *regexp.Regexp {
	e.mu.RLock()
	re, ok := e.cache[pattern]
	_, bad := e.invalid[pattern]
	e.mu.RUnlock()
	if ok {
		return re
	}
	if bad {
		return nil
	}

	re, err := compileCaseInsensitive(pattern)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.invalid[pattern] = struct{}{}
		return nil
	}
	e.cache[pattern] = re
	return re
}

func compileCaseInsensitive(pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	return regexp.Compile("(?i)" + pattern)
}

// ValidatePatterns reports every pattern that does not compile.
func ValidatePatterns(patterns []string) error {
	var problems []string
	for i, pattern := range patterns {
		if _, err := compileCaseInsensitive(pattern); err != nil {
			problems = append(problems, fmt.Sprintf("pattern %d %q: %v", i+1, pattern, err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: invalid control number patterns: %s", apperrors.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
