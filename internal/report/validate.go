package report

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// Validate checks the serialized shape of r against the embedded schema,
// including nil lists that would serialize as null.
func Validate(r domain.ParsedReport) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("op=report.Validate: %w", err)
	}
	res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("op=report.Validate: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		field := e.Field()
		if field == "" {
			field = "(root)"
		}
		msgs = append(msgs, field+": "+e.Description())
	}
	return fmt.Errorf("op=report.Validate: %s: %w", strings.Join(msgs, "; "), domain.ErrSchemaInvalid)
}
