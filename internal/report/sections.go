package report

import (
	"regexp"
	"strings"
)

var (
	// boldLabel matches a line that is only a bold label: "**Concerns:**" or "**CRITICAL**:".
	boldLabel   = regexp.MustCompile(`^\*\*[^*\n]+\*\*:?$`)
	doubleBlank = regexp.MustCompile(`\n[ \t]*\n[ \t]*\n`)
)

// headingLevel returns the number of leading '#' of a markdown heading, or 0.
func headingLevel(line string) int {
	t := strings.TrimLeft(line, " \t")
	n := 0
	for n < len(t) && t[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return 0
	}
	if n < len(t) && t[n] != ' ' && t[n] != '\t' {
		return 0
	}
	return n
}

// isHeading reports whether line starts a new section: a markdown heading or
// a bold-only label line.
func isHeading(line string) bool {
	if headingLevel(line) > 0 {
		return true
	}
	return boldLabel.MatchString(strings.TrimSpace(line))
}

// lineBounds returns the [start, end) offsets of the line containing pos,
// end excluding the newline.
func lineBounds(text string, pos int) (int, int) {
	start := strings.LastIndexByte(text[:pos], '\n') + 1
	end := strings.IndexByte(text[pos:], '\n')
	if end < 0 {
		return start, len(text)
	}
	return start, pos + end
}

// blockAfter captures the body following the line that contains pos, up to
// the next heading or a double blank line.
func blockAfter(text string, pos int) string {
	_, lineEnd := lineBounds(text, pos)
	if lineEnd >= len(text) {
		return ""
	}
	body := text[lineEnd+1:]
	if loc := doubleBlank.FindStringIndex("\n" + body); loc != nil {
		body = body[:max(loc[0]-1, 0)]
	}
	var b strings.Builder
	for _, line := range strings.Split(body, "\n") {
		if isHeading(line) {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// findHeadingLine returns the offset of the first non-bullet line accepted by
// match, or -1.
func findHeadingLine(text string, match func(line string) bool) int {
	if all := headingLines(text, match); len(all) > 0 {
		return all[0]
	}
	return -1
}

// headingLines returns the offsets of every non-bullet, non-table line
// accepted by match, in text order.
func headingLines(text string, match func(line string) bool) []int {
	var out []int
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		if !isBullet(line) && !isTableRow(line) && match(line) {
			out = append(out, offset)
		}
		offset += len(line) + 1
	}
	return out
}

func isTableRow(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "|")
}
