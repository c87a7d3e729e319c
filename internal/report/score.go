package report

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

// ScoreSource names the step of the fallback chain that produced a score.
type ScoreSource string

const (
	SourceTotalRow      ScoreSource = "total_row"
	SourceOverallPhrase ScoreSource = "overall_phrase"
	SourceBoldFraction  ScoreSource = "bold_fraction"
	SourceKeyword       ScoreSource = "keyword"
	SourceDefault       ScoreSource = "default"
)

// Keyword fallback scores.
const (
	approveFallbackScore = 75
	rfeFallbackScore     = 60
	denialFallbackScore  = 40
	neutralScore         = 55
)

var (
	totalRowRe      = regexp.MustCompile(`(?i)\*\*[ \t]*TOTAL[^*\n]*\*\*[^\n]*?(\d{1,3})[ \t]*/[ \t]*100`)
	overallPhraseRe = regexp.MustCompile(`(?i)overall[ \t]+score[ \t]*\**[ \t]*[:：]?[ \t]*\**[ \t]*(\d{1,3})`)
	boldFractionRe  = regexp.MustCompile(`\*\*[ \t]*(\d{1,3})[ \t]*/[ \t]*100[ \t]*\*\*`)

	approveRe = regexp.MustCompile(`(?i)\bapprov(?:e|ed|able)\b`)
	rfeRe     = regexp.MustCompile(`(?i)\b(?:RFE|request\s+for\s+evidence)\b`)
	denialRe  = regexp.MustCompile(`(?i)\b(?:deny|denied|denial|revise|revision|revisions)\b`)
)

// ExtractOverallScore resolves the officer's bottom-line score. It never fails:
// when no number is found it falls back to keyword heuristics and finally to
// the neutral score.
func ExtractOverallScore(text string) (int, ScoreSource) {
	for _, step := range []struct {
		re  *regexp.Regexp
		src ScoreSource
	}{
		{totalRowRe, SourceTotalRow},
		{overallPhraseRe, SourceOverallPhrase},
		{boldFractionRe, SourceBoldFraction},
	} {
		if n, ok := firstInt(step.re, text); ok {
			return clamp(n), step.src
		}
	}
	switch {
	case affirmsApproval(text):
		return approveFallbackScore, SourceKeyword
	case rfeRe.MatchString(text):
		return rfeFallbackScore, SourceKeyword
	case denialRe.MatchString(text):
		return denialFallbackScore, SourceKeyword
	}
	return neutralScore, SourceDefault
}

// affirmsApproval ignores negated forms such as "not approvable".
func affirmsApproval(text string) bool {
	for _, loc := range approveRe.FindAllStringIndex(text, -1) {
		prefix := strings.ToLower(text[max(0, loc[0]-12):loc[0]])
		if strings.Contains(prefix, "not ") || strings.Contains(prefix, "n't ") || strings.Contains(prefix, "cannot ") {
			continue
		}
		return true
	}
	return false
}

// RatingForScore maps a score onto the overall rating.
func RatingForScore(score int) string {
	switch {
	case score >= 70:
		return domain.RatingApprove
	case score >= 50:
		return domain.RatingRFELikely
	default:
		return domain.RatingDenialRisk
	}
}

func firstInt(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
