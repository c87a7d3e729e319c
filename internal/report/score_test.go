package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

func TestRatingForScore(t *testing.T) {
	t.Parallel()
	for s := -5; s <= 105; s++ {
		got := RatingForScore(s)
		switch {
		case s >= 70:
			assert.Equal(t, domain.RatingApprove, got, s)
		case s >= 50:
			assert.Equal(t, domain.RatingRFELikely, got, s)
		default:
			assert.Equal(t, domain.RatingDenialRisk, got, s)
		}
	}
}

func TestExtractOverallScore_FallbackChain(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		text  string
		score int
		src   ScoreSource
	}{
		{"total row wins over phrase", "Overall score: 40\n| **TOTAL** | 10 criteria | **81/100** |", 81, SourceTotalRow},
		{"total row with spaced fraction", "| **Total Score** | **64 / 100** |", 64, SourceTotalRow},
		{"overall phrase", "**Overall Score:** 58/100", 58, SourceOverallPhrase},
		{"overall phrase bold number", "Overall score: **66**", 66, SourceOverallPhrase},
		{"bold fraction", "My assessment lands at **47/100** given the gaps.", 47, SourceBoldFraction},
		{"clamped above range", "Overall Score: 140", 100, SourceOverallPhrase},
		{"approve keyword", "I would approve.", 75, SourceKeyword},
		{"approvable keyword", "The petition is approvable as filed.", 75, SourceKeyword},
		{"negated approvable falls through to rfe", "Not approvable without an RFE response.", 60, SourceKeyword},
		{"rfe keyword", "Expect a Request for Evidence on criterion 4.", 60, SourceKeyword},
		{"denial keyword", "This filing needs revision before submission.", 40, SourceKeyword},
		{"neutral default", "The record is long.", 55, SourceDefault},
		{"unbolded fraction ignored", "criterion 2 scored 30/100", 55, SourceDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, src := ExtractOverallScore(tt.text)
			assert.Equal(t, tt.score, score)
			assert.Equal(t, tt.src, src)
		})
	}
}

func TestExtractOverallScore_ApproveBeatsDenial(t *testing.T) {
	t.Parallel()
	score, _ := ExtractOverallScore("Some reviewers might deny it, but I approve.")
	assert.Equal(t, 75, score)
}
