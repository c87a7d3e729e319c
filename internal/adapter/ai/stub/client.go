// Package stub provides a deterministic officer-report generator for local
// runs without provider credentials, and for end-to-end tests.
package stub

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

var (
	criterionLineRe = regexp.MustCompile(`(?m)^- Criterion (\d+): (.+)$`)
	visaCodeRe      = regexp.MustCompile(`(?m)^# OFFICER ADJUDICATION REPORT: (\S+)`)
)

var ratingCycle = []struct {
	rating string
	score  int
}{
	{domain.CriterionStrong, 88},
	{domain.CriterionAdequate, 72},
	{domain.CriterionWeak, 48},
	{domain.CriterionNotClaimed, 0},
}

// Client renders a fixed-shape report from the criteria listed in the prompt.
type Client struct{}

func New() *Client { return &Client{} }

func (c *Client) Name() string { return "stub" }

// Generate ignores the record and cycles ratings across the prompt's criteria.
func (c *Client) Generate(_ domain.Context, prompt, _ string, _ int, _ float64) (string, error) {
	code := "PETITION"
	if m := visaCodeRe.FindStringSubmatch(prompt); m != nil {
		code = m[1]
	}
	crits := criterionLineRe.FindAllStringSubmatch(prompt, -1)

	var b strings.Builder
	fmt.Fprintf(&b, "# OFFICER ADJUDICATION REPORT: %s\n\n## SCORING MATRIX\n\n", code)
	b.WriteString("| Criterion | Rating | Score |\n|-----------|--------|-------|\n")
	total, claimed := 0, 0
	for i, m := range crits {
		r := ratingCycle[i%len(ratingCycle)]
		fmt.Fprintf(&b, "| %s. %s | %s | %d |\n", m[1], m[2], r.rating, r.score)
		if r.score > 0 {
			total += r.score
			claimed++
		}
	}
	overall := 50
	if claimed > 0 {
		overall = total / claimed
	}
	fmt.Fprintf(&b, "| **TOTAL** | | **%d/100** |\n\n", overall)
	fmt.Fprintf(&b, "**Overall Score:** %d/100\n\n## CRITERION-BY-CRITERION ANALYSIS\n\n", overall)
	for i, m := range crits {
		r := ratingCycle[i%len(ratingCycle)]
		fmt.Fprintf(&b, "### Criterion %s: %s\n**My Rating:** %s\n", m[1], m[2], r.rating)
		if r.score > 0 {
			b.WriteString("**Evidence Score:** " + strconv.Itoa(r.score) + "/100\n")
		}
		if r.rating == domain.CriterionWeak {
			b.WriteString("**Officer Concerns:**\n- Evidence for this criterion is largely self-reported\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(`## EVIDENCE QUALITY ANALYSIS

| Tier | Count |
|------|-------|
| Tier 1 (Major Media) | 1 |
| Tier 2 (Trade Publications) | 3 |
| Tier 3 (Online Sources) | 2 |
| Tier 4 (Weak or Self-Published) | 1 |

### Evidence Concerns
- Several exhibits lack publication dates

## RFE PREDICTIONS

| Topic | Probability | Officer Perspective |
|-------|-------------|---------------------|
| Independent corroboration | 55% | Expert letters come from collaborators |

## RED FLAGS
- Expert letters are not from independent sources

## STRENGTHS I ACKNOWLEDGE
- Consistent record of peer-reviewed publications

## RECOMMENDATIONS
### CRITICAL (Must Do Before Filing)
- Obtain letters from independent experts
### HIGH PRIORITY (Should Do)
- Add circulation data for cited media
### RECOMMENDED (Would Help)
- Include a summary exhibit index
`)
	return b.String(), nil
}
