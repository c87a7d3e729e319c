package report

import (
	"regexp"
	"strings"
)

// Heading keywords in priority order for each labeled list.
var (
	WeaknessKeywords    = []string{"RED FLAGS", "CONCERNS", "WEAKNESSES", "MY CONCERNS"}
	StrengthKeywords    = []string{"STRENGTHS", "STRONG", "ACKNOWLEDGE"}
	CriticalKeywords    = []string{"CRITICAL", "MUST DO", "REQUIRED"}
	HighKeywords        = []string{"HIGH PRIORITY", "SHOULD DO", "IMPORTANT"}
	RecommendedKeywords = []string{"RECOMMENDED", "WOULD HELP", "SUGGESTED"}
)

// keywordMatcher accepts a markdown heading containing the keyword in any case,
// or any other line containing it in upper case.
func keywordMatcher(keyword string) func(string) bool {
	words := strings.Fields(keyword)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	pattern := `\b` + strings.Join(words, `\s+`) + `\b`
	exact := regexp.MustCompile(pattern)
	folded := regexp.MustCompile(`(?i)` + pattern)
	return func(line string) bool {
		if headingLevel(line) > 0 {
			return folded.MatchString(line)
		}
		return exact.MatchString(line)
	}
}

// ExtractList tries each keyword in order and returns the bullets under the
// first heading that yields any. Headings inside criterion sections are
// ignored, so a criterion named "Critical Employment" or a per-criterion
// concerns heading never feeds these lists. The result is never nil.
func ExtractList(text string, keywords []string) []string {
	spans := criterionSpans(text)
	for _, kw := range keywords {
		for _, pos := range headingLines(text, keywordMatcher(kw)) {
			if insideCriterion(spans, pos) {
				continue
			}
			if items := ExtractBullets(blockAfter(text, pos)); len(items) > 0 {
				return items
			}
		}
	}
	return []string{}
}
