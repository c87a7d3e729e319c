// Package export renders evaluation results for download.
package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

const (
	SummarySheet  = "Summary"
	CriteriaSheet = "Criteria"
)

// ScorecardContentType is the MIME type of Scorecard output.
const ScorecardContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Scorecard renders res as a workbook with a Summary sheet and a Criteria sheet.
func Scorecard(res domain.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("op=export.Scorecard: %w", err)
	}
	if _, err := f.NewSheet(CriteriaSheet); err != nil {
		return nil, fmt.Errorf("op=export.Scorecard: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("op=export.Scorecard: %w", err)
	}

	if err := writeSummary(f, res, bold); err != nil {
		return nil, fmt.Errorf("op=export.Scorecard: %w", err)
	}
	if err := writeCriteria(f, res.Report.CriteriaScores, bold); err != nil {
		return nil, fmt.Errorf("op=export.Scorecard: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("op=export.Scorecard: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, res domain.Result, bold int) error {
	r := res.Report
	rows := [][]any{
		{"Job", res.JobID},
		{"Visa type", res.VisaType},
		{"Overall score", r.OverallScore},
		{"Overall rating", r.OverallRating},
		{"Approval probability (%)", r.ApprovalProbability},
		{"RFE probability (%)", r.RFEProbability},
		{"Denial risk (%)", r.DenialRisk},
		{"Tier 1 evidence", r.EvidenceQuality.Tier1Count},
		{"Tier 2 evidence", r.EvidenceQuality.Tier2Count},
		{"Tier 3 evidence", r.EvidenceQuality.Tier3Count},
		{"Tier 4 evidence", r.EvidenceQuality.Tier4Count},
		{"Evidence assessment", r.EvidenceQuality.OverallAssessment},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", len(rows)), bold); err != nil {
		return err
	}
	return f.SetColWidth(SummarySheet, "A", "A", 28)
}

func writeCriteria(f *excelize.File, crits []domain.CriterionScore, bold int) error {
	header := []any{"#", "Criterion", "Rating", "Score", "Evidence quality", "Officer concerns"}
	if err := f.SetSheetRow(CriteriaSheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(CriteriaSheet, "A1", "F1", bold); err != nil {
		return err
	}
	for i, c := range crits {
		row := []any{c.CriterionID, c.CriterionName, c.Rating, c.Score, c.EvidenceQuality, strings.Join(c.OfficerConcerns, "\n")}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(CriteriaSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(CriteriaSheet, "B", "B", 40); err != nil {
		return err
	}
	return f.SetColWidth(CriteriaSheet, "F", "F", 60)
}
