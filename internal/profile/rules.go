package profile

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// FieldOp is one search condition: a gateway field and a filter operator.
type FieldOp struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op"`
}

// PaymentKeyword maps a substring found in free text to a payment label.
// Order matters: the first match wins.
type PaymentKeyword struct {
	Contains string `yaml:"contains"`
	Label    string `yaml:"label"`
}

// Rules drives the lookup behavior: which gateway fields are searched in
// which order, which record owners mark maintenance / task / cashier
// entries, and how payment methods are labelled.
type Rules struct {
	NextServiceLeadDays int `yaml:"nextServiceLeadDays"`

	Owners struct {
		Maintenance string `yaml:"maintenance"`
		Task        string `yaml:"task"`
		Cashier     string `yaml:"cashier"`
	} `yaml:"owners"`

	Search struct {
		PhonePrimary   FieldOp   `yaml:"phonePrimary"`
		CodePrimary    FieldOp   `yaml:"codePrimary"`
		NamePrimary    FieldOp   `yaml:"namePrimary"`
		PhoneFallbacks []FieldOp `yaml:"phoneFallbacks"`
		NameFallbacks  []FieldOp `yaml:"nameFallbacks"`
	} `yaml:"search"`

	Payment struct {
		CodeLabels map[int]string   `yaml:"codeLabels"`
		Keywords   []PaymentKeyword `yaml:"keywords"`
	} `yaml:"payment"`

	PlanDetailOrder []string `yaml:"planDetailOrder"`
}

// DefaultRules returns the built-in rules.
func DefaultRules() *Rules {
	rules, err := parseRules(defaultRulesYAML)
	if err != nil {
		// The embedded document is validated by tests; reaching this means
		// the binary itself is broken.
		panic("built-in lookup rules are invalid: " + err.Error())
	}
	return rules
}

// LoadRules returns the built-in rules, or the document at path when one is
// configured.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lookup rules: %w", err)
	}
	rules, err := parseRules(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing lookup rules %s: %w", path, err)
	}
	return rules, nil
}

func parseRules(raw []byte) (*Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, err
	}
	if err := rules.validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

func (r *Rules) validate() error {
	if r.NextServiceLeadDays < 0 {
		return errors.New("nextServiceLeadDays must not be negative")
	}
	for name, primary := range map[string]FieldOp{
		"search.phonePrimary": r.Search.PhonePrimary,
		"search.codePrimary":  r.Search.CodePrimary,
		"search.namePrimary":  r.Search.NamePrimary,
	} {
		if primary.Field == "" || primary.Op == "" {
			return fmt.Errorf("%s must name a field and an operator", name)
		}
	}
	for i, fo := range append(append([]FieldOp{}, r.Search.PhoneFallbacks...), r.Search.NameFallbacks...) {
		if fo.Field == "" || fo.Op == "" {
			return fmt.Errorf("fallback entry %d must name a field and an operator", i)
		}
	}
	for i, kw := range r.Payment.Keywords {
		if kw.Contains == "" || kw.Label == "" {
			return fmt.Errorf("payment keyword %d must set contains and label", i)
		}
	}
	return nil
}
