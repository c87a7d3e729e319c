package domain

// Overall ratings derived from the overall score.
const (
	RatingApprove    = "Approve"
	RatingRFELikely  = "RFE Likely"
	RatingDenialRisk = "Denial Risk"
)

// Criterion ratings as written by the officer.
const (
	CriterionStrong       = "Strong"
	CriterionAdequate     = "Adequate"
	CriterionWeak         = "Weak"
	CriterionInsufficient = "Insufficient"
	CriterionNotClaimed   = "Not Claimed"
)

// Evidence quality tiers for a single criterion.
const (
	QualityExcellent = "Excellent"
	QualityGood      = "Good"
	QualityFair      = "Fair"
	QualityPoor      = "Poor"
)

// Overall assessments of the cited evidence.
const (
	EvidenceStrong       = "Strong"
	EvidenceModerate     = "Moderate"
	EvidenceWeak         = "Weak"
	EvidenceInsufficient = "Insufficient"
)

// ParsedReport is the structured form of an officer report. JSON names are
// consumed by the UI and the result store and must not change.
type ParsedReport struct {
	FullReport          string           `json:"fullReport"`
	OverallScore        int              `json:"overallScore"`
	OverallRating       string           `json:"overallRating"`
	ApprovalProbability int              `json:"approvalProbability"`
	RFEProbability      int              `json:"rfeProbability"`
	DenialRisk          int              `json:"denialRisk"`
	CriteriaScores      []CriterionScore `json:"criteriaScores"`
	EvidenceQuality     EvidenceQuality  `json:"evidenceQuality"`
	RFEPredictions      []RFEPrediction  `json:"rfePredictions"`
	Weaknesses          []string         `json:"weaknesses"`
	Strengths           []string         `json:"strengths"`
	Recommendations     Recommendations  `json:"recommendations"`
}

type CriterionScore struct {
	CriterionID     int      `json:"criterionId"`
	CriterionName   string   `json:"criterionName"`
	Rating          string   `json:"rating"`
	Score           int      `json:"score"`
	EvidenceQuality string   `json:"evidenceQuality"`
	OfficerConcerns []string `json:"officerConcerns"`
}

type EvidenceQuality struct {
	Tier1Count        int      `json:"tier1Count"`
	Tier2Count        int      `json:"tier2Count"`
	Tier3Count        int      `json:"tier3Count"`
	Tier4Count        int      `json:"tier4Count"`
	OverallAssessment string   `json:"overallAssessment"`
	Concerns          []string `json:"concerns"`
}

type RFEPrediction struct {
	Topic              string `json:"topic"`
	Probability        int    `json:"probability"`
	OfficerPerspective string `json:"officerPerspective"`
}

type Recommendations struct {
	Critical    []string `json:"critical"`
	High        []string `json:"high"`
	Recommended []string `json:"recommended"`
}
