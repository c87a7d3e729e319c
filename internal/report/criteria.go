package report

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

var (
	criterionHeadingRe = regexp.MustCompile(`(?im)^[ \t]*(?:#{1,6}[ \t]*)?(?:\*\*)?[ \t]*criterion[ \t]*#?[ \t]*(\d{1,2})\b`)
	ratingLineRe       = regexp.MustCompile(`(?i)rating[ \t]*\**[ \t]*[:：][ \t]*\**[ \t]*([^\n]*)`)
	evidenceScoreRe    = regexp.MustCompile(`(?i)evidence[ \t]+score[ \t]*\**[ \t]*[:：]?[ \t]*\**[ \t]*(\d{1,3})`)
	concernsLabelRe    = regexp.MustCompile(`(?i)\bconcerns?\b`)
)

// ratingOrder is the containment check order; "Not Claimed" is the default.
var ratingOrder = []string{
	domain.CriterionStrong,
	domain.CriterionAdequate,
	domain.CriterionWeak,
	domain.CriterionInsufficient,
}

var ratingScores = map[string]int{
	domain.CriterionStrong:       85,
	domain.CriterionAdequate:     70,
	domain.CriterionWeak:         50,
	domain.CriterionInsufficient: 30,
	domain.CriterionNotClaimed:   0,
}

// ScoreCriteria returns exactly one record per definition, in ordinal order.
func ScoreCriteria(text string, criteria []domain.CriterionDefinition) []domain.CriterionScore {
	sections := criterionSections(text)
	ordered := make([]domain.CriterionDefinition, len(criteria))
	copy(ordered, criteria)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	out := make([]domain.CriterionScore, 0, len(ordered))
	for _, def := range ordered {
		out = append(out, scoreCriterion(def, sections[def.Number]))
	}
	return out
}

func scoreCriterion(def domain.CriterionDefinition, section string) domain.CriterionScore {
	rating := domain.CriterionNotClaimed
	if m := ratingLineRe.FindStringSubmatch(section); m != nil {
		rating = ClassifyRating(m[1])
	}
	score := ratingScores[rating]
	if n, ok := firstInt(evidenceScoreRe, section); ok {
		score = clamp(n)
	}
	concerns := []string{}
	if pos := findHeadingLine(section, concernsLabelRe.MatchString); pos >= 0 {
		concerns = ExtractBullets(blockAfter(section, pos))
	}
	return domain.CriterionScore{
		CriterionID:     def.Number,
		CriterionName:   def.Name,
		Rating:          rating,
		Score:           score,
		EvidenceQuality: QualityForScore(score),
		OfficerConcerns: concerns,
	}
}

// ClassifyRating maps free text onto a categorical rating by substring containment.
func ClassifyRating(s string) string {
	lower := strings.ToLower(s)
	for _, r := range ratingOrder {
		if strings.Contains(lower, strings.ToLower(r)) {
			return r
		}
	}
	return domain.CriterionNotClaimed
}

// QualityForScore maps a criterion score onto its evidence-quality tier.
func QualityForScore(score int) string {
	switch {
	case score >= 80:
		return domain.QualityExcellent
	case score >= 65:
		return domain.QualityGood
	case score >= 45:
		return domain.QualityFair
	default:
		return domain.QualityPoor
	}
}

// criterionSpan is the [start, end) range of one criterion section.
type criterionSpan struct {
	number     int
	start, end int
}

// criterionSpans returns every criterion section in report order. A section
// runs to the next criterion heading, or to the next markdown heading at the
// same or a higher level.
func criterionSpans(text string) []criterionSpan {
	locs := criterionHeadingRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]criterionSpan, 0, len(locs))
	for i, loc := range locs {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		start := loc[0]
		_, headEnd := lineBounds(text, start)
		level := headingLevel(text[start:headEnd])
		if cut := nextOuterHeading(text[headEnd:end], level); cut >= 0 {
			end = headEnd + cut
		}
		out = append(out, criterionSpan{number: n, start: start, end: end})
	}
	return out
}

// insideCriterion reports whether offset pos falls within any span.
func insideCriterion(spans []criterionSpan, pos int) bool {
	for _, sp := range spans {
		if pos >= sp.start && pos < sp.end {
			return true
		}
	}
	return false
}

// criterionSections maps a criterion ordinal to the text of its first section.
func criterionSections(text string) map[int]string {
	spans := criterionSpans(text)
	out := make(map[int]string, len(spans))
	for _, sp := range spans {
		if _, seen := out[sp.number]; seen {
			continue
		}
		out[sp.number] = text[sp.start:sp.end]
	}
	return out
}

// nextOuterHeading returns the offset in body of the first markdown heading
// whose level is at most level, or any heading when level is 0.
func nextOuterHeading(body string, level int) int {
	offset := 0
	for _, line := range strings.Split(body, "\n") {
		if l := headingLevel(line); l > 0 && (level == 0 || l <= level) {
			return offset
		}
		offset += len(line) + 1
	}
	return -1
}
