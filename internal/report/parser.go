// Package report turns an officer report written in markdown prose into a
// structured, bounded domain.ParsedReport.
//
// Every extractor degrades to a default instead of failing, so Parse always
// returns a fully populated record. Parse is pure and safe for concurrent use.
package report

import (
	"strings"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

// Parse extracts the structured report from text for the given criteria.
func Parse(text string, criteria []domain.CriterionDefinition) domain.ParsedReport {
	r, _ := ParseWithSource(text, criteria)
	return r
}

// ParseWithSource is Parse that also reports which fallback step produced the
// overall score.
func ParseWithSource(text string, criteria []domain.CriterionDefinition) (domain.ParsedReport, ScoreSource) {
	norm := strings.ReplaceAll(text, "\r\n", "\n")

	score, src := ExtractOverallScore(norm)
	probs := ExtractProbabilities(norm, score)

	return domain.ParsedReport{
		FullReport:          text,
		OverallScore:        score,
		OverallRating:       RatingForScore(score),
		ApprovalProbability: probs.Approval,
		RFEProbability:      probs.RFE,
		DenialRisk:          probs.Denial,
		CriteriaScores:      ScoreCriteria(norm, criteria),
		EvidenceQuality:     AnalyzeEvidence(norm),
		RFEPredictions:      ExtractRFEPredictions(norm),
		Weaknesses:          ExtractList(norm, WeaknessKeywords),
		Strengths:           ExtractList(norm, StrengthKeywords),
		Recommendations: domain.Recommendations{
			Critical:    ExtractList(norm, CriticalKeywords),
			High:        ExtractList(norm, HighKeywords),
			Recommended: ExtractList(norm, RecommendedKeywords),
		},
	}, src
}
