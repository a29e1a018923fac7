package alias

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrDetection    = errors.New("entity detection failed")
	ErrInvalidAlias = errors.New("invalid alias")
)

// Span is one detected named-entity occurrence as reported by the detector.
type Span struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// Alias binds a literal entity text to its substitution token.
// AliasType is the category prefix of the token ("PER_0" -> "PER").
type Alias struct {
	Text      string `json:"text"`
	Alias     string `json:"alias"`
	AliasType string `json:"alias_type"`
}

// Descriptions lists the categories this service substitutes and what they
// mean. Served read-only on the aliases endpoint.
var Descriptions = map[string]string{
	"LOC": "Location, place, town, country, ...",
	"PER": "Person",
	"ORG": "Organization, Company, ...",
}

// DefaultCategories returns the categories aliased by default.
func DefaultCategories() []string {
	return []string{"LOC", "PER", "ORG"}
}

// Assign converts detected spans into an ordered alias mapping.
//
// Duplicate texts keep their first-seen position but take the category of
// the last span that mentions them. Counters are zero-based per category,
// assigned in first-seen order. Texts whose final category is not in
// aliasable receive no alias at all. Texts are compared verbatim: no case
// folding, no whitespace normalization.
func Assign(spans []Span, aliasable []string) []Alias {
	allowed := make(map[string]struct{}, len(aliasable))
	for _, c := range aliasable {
		allowed[c] = struct{}{}
	}

	category := make(map[string]string, len(spans))
	var order []string
	for _, s := range spans {
		if _, seen := category[s.Text]; !seen {
			order = append(order, s.Text)
		}
		category[s.Text] = s.Category
	}

	counters := make(map[string]int)
	var out []Alias
	for _, text := range order {
		cat := category[text]
		if _, ok := allowed[cat]; !ok {
			continue
		}
		n := counters[cat]
		counters[cat] = n + 1
		out = append(out, Alias{
			Text:      text,
			Alias:     fmt.Sprintf("%s_%d", cat, n),
			AliasType: cat,
		})
	}
	return out
}

// Substitute replaces every occurrence of each mapped text with its alias
// token, one literal whole-text pass per entry, in mapping order.
//
// Replacement is deliberately sequential: a key that is a substring of a
// later key, or an emitted token that collides with a later key, affects
// subsequent passes. Callers that need overlap safety must supply
// non-overlapping mappings.
func Substitute(raw string, aliases []Alias) string {
	out := raw
	for _, a := range aliases {
		out = strings.ReplaceAll(out, a.Text, a.Alias)
	}
	return out
}

// Validate checks a caller-supplied alias list before it is persisted.
// Each token must be of the form TYPE_N with AliasType equal to the prefix.
func Validate(aliases []Alias) error {
	for i, a := range aliases {
		if strings.TrimSpace(a.Text) == "" {
			return fmt.Errorf("%w: entry %d has empty text", ErrInvalidAlias, i)
		}
		idx := strings.LastIndex(a.Alias, "_")
		if idx <= 0 || idx == len(a.Alias)-1 {
			return fmt.Errorf("%w: token %q is not TYPE_N", ErrInvalidAlias, a.Alias)
		}
		if _, err := strconv.Atoi(a.Alias[idx+1:]); err != nil {
			return fmt.Errorf("%w: token %q has non-numeric counter", ErrInvalidAlias, a.Alias)
		}
		if got := a.Alias[:idx]; a.AliasType != got {
			return fmt.Errorf("%w: alias_type %q does not match token %q", ErrInvalidAlias, a.AliasType, a.Alias)
		}
	}
	return nil
}
