package chunker

import (
	"regexp"
	"strings"
)

// BoilerplatePolicy decides whether a line of document text is boilerplate
// (navigation, headers, footers) and should be dropped before chunking.
type BoilerplatePolicy interface {
	IsBoilerplate(line string) bool
}

// PolicyFunc adapts a plain function to a BoilerplatePolicy.
type PolicyFunc func(line string) bool

func (f PolicyFunc) IsBoilerplate(line string) bool {
	return f(line)
}

var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(copyright|©|\(c\))\s`),
	regexp.MustCompile(`(?i)all rights reserved`),
	regexp.MustCompile(`(?i)^\s*(privacy policy|terms of (use|service)|cookie (policy|settings))\s*$`),
	regexp.MustCompile(`(?i)^\s*(skip to (main )?content|back to top|toggle navigation)\s*$`),
	regexp.MustCompile(`^\s*page \d+( of \d+)?\s*$`),
}

// DefaultPolicy drops common header/footer/navigation lines. Content lines
// always pass; the patterns only match whole-line chrome.
func DefaultPolicy() BoilerplatePolicy {
	return PolicyFunc(func(line string) bool {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return false // blank lines are structure, not boilerplate
		}
		for _, pattern := range boilerplatePatterns {
			if pattern.MatchString(trimmed) {
				return true
			}
		}
		return false
	})
}

// KeepAllPolicy never drops a line. Useful for pre-cleaned corpora and tests.
func KeepAllPolicy() BoilerplatePolicy {
	return PolicyFunc(func(string) bool { return false })
}
