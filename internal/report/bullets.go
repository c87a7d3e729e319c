package report

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// minBulletRunes drops list noise such as "- ok" or "- n/a".
const minBulletRunes = 6

var bulletLine = regexp.MustCompile(`^[ \t]*(?:[-*•]|\d+\.)[ \t]+(.*)$`)

// ExtractBullets returns the trimmed content of every bullet line in block.
// Lines start with "-", "*", "•" or a numeral followed by "."; items shorter
// than six characters are discarded. The result is never nil.
func ExtractBullets(block string) []string {
	out := []string{}
	for _, line := range strings.Split(block, "\n") {
		m := bulletLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.TrimSpace(m[1])
		if utf8.RuneCountInString(item) < minBulletRunes {
			continue
		}
		out = append(out, item)
	}
	return out
}

func isBullet(line string) bool { return bulletLine.MatchString(line) }
