// Package textx provides small text utilities used across the project.
package textx

import (
	"regexp"
	"strings"
)

var (
	inlineSpace = regexp.MustCompile(`[ \t\f\v]+`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// NormalizeWhitespace collapses inline whitespace and runs of blank lines while
// keeping paragraph and table structure.
func NormalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(l, " "))
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// Clean is SanitizeText followed by NormalizeWhitespace.
func Clean(s string) string { return NormalizeWhitespace(SanitizeText(s)) }

// Section is one named block of a combined record.
type Section struct {
	Title string
	Body  string
}

// JoinSections concatenates sections under "=== title ===" separators,
// skipping empty bodies.
func JoinSections(sections []Section) string {
	var b strings.Builder
	for _, s := range sections {
		body := strings.TrimSpace(s.Body)
		if body == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("=== ")
		b.WriteString(s.Title)
		b.WriteString(" ===\n")
		b.WriteString(body)
	}
	return b.String()
}
