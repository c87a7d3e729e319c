package report

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

var (
	// Prediction headings are tried before the looser topic/risk wording, which
	// also appears on rating lines such as "**Overall Rating: RFE Likely**".
	rfeHeadingRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bRFE\b.*\bpredict\w*|\bpredicted\s+RFE|\bpredictions?\b.*\bRFE\b`),
		regexp.MustCompile(`(?i)\bRFE\b.*\b(?:likely|topics?|risks?)\b`),
	}
	rfeRowRe  = regexp.MustCompile(`^[ \t]*\|[ \t]*([^|\n]+?)[ \t]*\|[ \t]*\**(\d{1,3})[ \t]*%?\**[ \t]*\|[ \t]*([^|\n]*?)[ \t]*\|?[ \t]*$`)
	dashRunRe = regexp.MustCompile(`-{3,}`)
)

// ExtractRFEPredictions reads the topic/probability/perspective table under
// the RFE predictions heading, in report order. Candidate headings are tried
// until one has rows; headings inside criterion sections are skipped. The
// result is never nil.
func ExtractRFEPredictions(text string) []domain.RFEPrediction {
	spans := criterionSpans(text)
	for _, re := range rfeHeadingRes {
		positions := headingLines(text, func(line string) bool {
			return isHeading(line) && re.MatchString(line)
		})
		for _, pos := range positions {
			if insideCriterion(spans, pos) {
				continue
			}
			if rows := rfeRows(text, pos); len(rows) > 0 {
				return rows
			}
		}
	}
	return []domain.RFEPrediction{}
}

// rfeRows parses table rows after the heading at pos, up to the next heading
// of any kind.
func rfeRows(text string, pos int) []domain.RFEPrediction {
	var out []domain.RFEPrediction
	_, headEnd := lineBounds(text, pos)
	if headEnd >= len(text) {
		return nil
	}
	for _, line := range strings.Split(text[headEnd+1:], "\n") {
		if isHeading(line) {
			break
		}
		if strings.Contains(line, "Topic") || dashRunRe.MatchString(line) {
			continue
		}
		m := rfeRowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		p, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		out = append(out, domain.RFEPrediction{
			Topic:              strings.Trim(m[1], "* "),
			Probability:        clamp(p),
			OfficerPerspective: strings.TrimSpace(m[3]),
		})
	}
	return out
}
