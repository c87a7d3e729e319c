package report

import (
	"fmt"
	"regexp"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

var (
	tierRes         [4]*regexp.Regexp
	evidenceConcern = regexp.MustCompile(`(?i)evidence[^\n]*\bconcerns?\b`)
)

func init() {
	for i := range tierRes {
		tierRes[i] = regexp.MustCompile(fmt.Sprintf(`(?i)tier[ \t]*%d\b[^|\n]*\|[ \t]*\**[ \t]*(\d+)`, i+1))
	}
}

// AnalyzeEvidence counts cited evidence per prestige tier and labels the mix.
func AnalyzeEvidence(text string) domain.EvidenceQuality {
	var counts [4]int
	for i, re := range tierRes {
		if n, ok := firstInt(re, text); ok {
			counts[i] = n
		}
	}
	concerns := []string{}
	if pos := findHeadingLine(text, evidenceConcern.MatchString); pos >= 0 {
		concerns = ExtractBullets(blockAfter(text, pos))
	}
	return domain.EvidenceQuality{
		Tier1Count:        counts[0],
		Tier2Count:        counts[1],
		Tier3Count:        counts[2],
		Tier4Count:        counts[3],
		OverallAssessment: AssessEvidence(counts[0], counts[1]),
		Concerns:          concerns,
	}
}

// AssessEvidence labels the evidence mix from tier-1 and tier-2 counts.
func AssessEvidence(tier1, tier2 int) string {
	switch {
	case tier1 >= 5:
		return domain.EvidenceStrong
	case tier1 >= 3 || tier2 >= 5:
		return domain.EvidenceModerate
	case tier1 >= 1 || tier2 >= 3:
		return domain.EvidenceWeak
	default:
		return domain.EvidenceInsufficient
	}
}
