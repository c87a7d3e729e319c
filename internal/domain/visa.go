package domain

// CriterionDefinition is one qualifying condition of a visa category.
type CriterionDefinition struct {
	Number int    `json:"number" yaml:"number"`
	Name   string `json:"name" yaml:"name"`
}

// VisaType is immutable reference data for a visa category.
type VisaType struct {
	Code        string                `json:"code" yaml:"code"`
	Title       string                `json:"title" yaml:"title"`
	Regulation  string                `json:"regulation" yaml:"regulation"`
	MinRequired int                   `json:"minRequired" yaml:"min_required"`
	Criteria    []CriterionDefinition `json:"criteria" yaml:"criteria"`
}

// VisaCatalog (port) resolves visa categories by code.
type VisaCatalog interface {
	Get(code string) (VisaType, error)
	List() []VisaType
}
