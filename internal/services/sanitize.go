package services

import (
	"html"
	"regexp"
	"strings"
)

// Patterns rejected outright rather than escaped. Escaping would neutralize
// them for HTML contexts, but a prompt carrying script tags or SQL fragments
// is almost always an attack probe and gets a hard 400.
var (
	dangerousPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script[^>]*>`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)on\w+\s*=`),
		regexp.MustCompile(`(?i)<iframe[^>]*>`),
		regexp.MustCompile(`(?i)<object[^>]*>`),
		regexp.MustCompile(`(?i)<embed[^>]*>`),
	}
	sqlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(union\s+select|drop\s+table|insert\s+into|delete\s+from)\b`),
		regexp.MustCompile(`(?i);\s*(drop|delete|truncate|update)\s`),
	}
)

// sanitizeInput validates and normalizes user-provided text. It rejects
// dangerous markup and SQL fragments with ErrUnsafeInput, HTML-escapes the
// remainder, strips NUL bytes, and trims surrounding whitespace.
func sanitizeInput(text string) (string, error) {
	for _, p := range dangerousPatterns {
		if p.MatchString(text) {
			return "", ErrUnsafeInput
		}
	}
	for _, p := range sqlPatterns {
		if p.MatchString(text) {
			return "", ErrUnsafeInput
		}
	}

	s := html.EscapeString(text)
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s), nil
}
