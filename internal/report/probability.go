package report

import "regexp"

// Probabilities holds the three outcome percentages of a report.
type Probabilities struct {
	Approval int
	RFE      int
	Denial   int
}

var (
	approvalPctRe = regexp.MustCompile(`(?i)approval[ \t]+(?:probability|likelihood|chance)[^\d\n]{0,30}?(\d{1,3})(?:[ \t]*[-–][ \t]*\d{1,3})?[ \t]*%`)
	rfePctRe      = regexp.MustCompile(`(?i)\bRFE[ \t]+(?:probability|likelihood|chance|risk)[^\d\n]{0,30}?(\d{1,3})(?:[ \t]*[-–][ \t]*\d{1,3})?[ \t]*%`)
	denialPctRe   = regexp.MustCompile(`(?i)denial[ \t]+(?:probability|likelihood|chance|risk)[^\d\n]{0,30}?(\d{1,3})(?:[ \t]*[-–][ \t]*\d{1,3})?[ \t]*%`)
)

// probabilityBand maps a minimum overall score to derived percentages.
type probabilityBand struct {
	minScore int
	approval int
	rfe      int
}

// Bands are ordered from the highest threshold down.
var probabilityBands = []probabilityBand{
	{minScore: 85, approval: 85, rfe: 12},
	{minScore: 70, approval: 70, rfe: 22},
	{minScore: 55, approval: 50, rfe: 35},
	{minScore: 40, approval: 30, rfe: 40},
	{minScore: 0, approval: 15, rfe: 35},
}

func bandFor(score int) probabilityBand {
	for _, b := range probabilityBands {
		if score >= b.minScore {
			return b
		}
	}
	return probabilityBands[len(probabilityBands)-1]
}

// ExtractProbabilities reads labeled percentages from text and derives any
// missing one from overallScore. Extracted values are not cross-checked.
func ExtractProbabilities(text string, overallScore int) Probabilities {
	band := bandFor(overallScore)
	p := Probabilities{Approval: band.approval, RFE: band.rfe}
	if n, ok := firstInt(approvalPctRe, text); ok {
		p.Approval = clamp(n)
	}
	if n, ok := firstInt(rfePctRe, text); ok {
		p.RFE = clamp(n)
	}
	if n, ok := firstInt(denialPctRe, text); ok {
		p.Denial = clamp(n)
	} else {
		p.Denial = clamp(100 - p.Approval - p.RFE)
	}
	return p
}
