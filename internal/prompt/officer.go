// Package prompt renders the adjudications-officer prompts sent to the generative backend.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Officer is the rendered prompt pair for one evaluation.
type Officer struct {
	System string
	User   string
}

type officerData struct {
	Visa      domain.VisaType
	Record    string
	Truncated bool
}

// BuildOfficer renders the system and user prompts for a petition record.
// record is expected to be already truncated to the input budget.
func BuildOfficer(visa domain.VisaType, record string, truncated bool) (Officer, error) {
	if len(visa.Criteria) == 0 {
		return Officer{}, fmt.Errorf("op=prompt.BuildOfficer: visa %q has no criteria: %w", visa.Code, domain.ErrInvalidArgument)
	}
	data := officerData{Visa: visa, Record: record, Truncated: truncated}
	sys, err := render("system.tmpl", data)
	if err != nil {
		return Officer{}, err
	}
	user, err := render("user.tmpl", data)
	if err != nil {
		return Officer{}, err
	}
	return Officer{System: sys, User: user}, nil
}

func render(name string, data officerData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("op=prompt.render %s: %w", name, err)
	}
	return buf.String(), nil
}
