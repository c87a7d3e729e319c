// Package visa loads the immutable visa category catalog.
package visa

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

//go:embed visas.yaml
var catalogYAML []byte

type catalogFile struct {
	Visas []domain.VisaType `yaml:"visas"`
}

// Catalog is a read-only index of visa categories keyed by normalized code.
type Catalog struct {
	byKey map[string]domain.VisaType
	order []string
}

// Default returns the catalog embedded in the binary. It panics on a malformed
// embedded file since that can only be a build defect.
func Default() *Catalog {
	c, err := Parse(catalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded visa catalog: %v", err))
	}
	return c
}

// Parse builds a catalog from YAML and checks that every visa lists its
// criteria as ordinals 1..N.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("op=visa.Parse: %w", err)
	}
	c := &Catalog{byKey: make(map[string]domain.VisaType, len(f.Visas))}
	for _, v := range f.Visas {
		if err := validate(v); err != nil {
			return nil, fmt.Errorf("op=visa.Parse: %w", err)
		}
		key := normalize(v.Code)
		if _, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("op=visa.Parse: duplicate visa code %q: %w", v.Code, domain.ErrInvalidArgument)
		}
		sort.SliceStable(v.Criteria, func(i, j int) bool { return v.Criteria[i].Number < v.Criteria[j].Number })
		c.byKey[key] = v
		c.order = append(c.order, key)
	}
	return c, nil
}

func validate(v domain.VisaType) error {
	if strings.TrimSpace(v.Code) == "" {
		return fmt.Errorf("visa without code: %w", domain.ErrInvalidArgument)
	}
	if len(v.Criteria) == 0 {
		return fmt.Errorf("visa %s has no criteria: %w", v.Code, domain.ErrInvalidArgument)
	}
	if v.MinRequired < 1 || v.MinRequired > len(v.Criteria) {
		return fmt.Errorf("visa %s min_required %d out of range: %w", v.Code, v.MinRequired, domain.ErrInvalidArgument)
	}
	seen := make(map[int]bool, len(v.Criteria))
	for _, cr := range v.Criteria {
		if cr.Number < 1 || cr.Number > len(v.Criteria) || seen[cr.Number] {
			return fmt.Errorf("visa %s criterion number %d invalid: %w", v.Code, cr.Number, domain.ErrInvalidArgument)
		}
		seen[cr.Number] = true
	}
	return nil
}

// normalize folds "eb-1a", "EB1A" and "EB 1A" onto one key.
func normalize(code string) string {
	r := strings.NewReplacer("-", "", " ", "", "_", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(code)))
}

// Get returns the visa category for code, or domain.ErrNotFound.
func (c *Catalog) Get(code string) (domain.VisaType, error) {
	key := normalize(code)
	if key == "NIW" {
		key = "EB2NIW"
	}
	v, ok := c.byKey[key]
	if !ok {
		return domain.VisaType{}, fmt.Errorf("op=visa.Get: unknown visa type %q: %w", code, domain.ErrNotFound)
	}
	return v, nil
}

// List returns all categories in catalog order.
func (c *Catalog) List() []domain.VisaType {
	out := make([]domain.VisaType, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byKey[k])
	}
	return out
}

// Codes returns the canonical codes in catalog order.
func (c *Catalog) Codes() []string {
	out := make([]string, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byKey[k].Code)
	}
	return out
}
