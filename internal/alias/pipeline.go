package alias

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Detector tags named entities in one sentence-like unit of text.
// Implementations are external NER engines; this package only consumes
// their spans.
type Detector interface {
	Detect(ctx context.Context, unit string) ([]Span, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, unit string) ([]Span, error)

func (f DetectorFunc) Detect(ctx context.Context, unit string) ([]Span, error) {
	return f(ctx, unit)
}

// Result is the outcome of one anonymization run.
type Result struct {
	RawText        string  `json:"raw_text"`
	AnonymizedText string  `json:"anonymized_text"`
	Aliases        []Alias `json:"aliases"`
}

// Pipeline composes sentence splitting, entity detection, alias assignment
// and text substitution into one anonymize operation.
type Pipeline struct {
	detector   Detector
	categories []string
}

// NewPipeline builds a pipeline around the given detector. When categories
// is empty the default aliasable set is used.
func NewPipeline(detector Detector, categories []string) (*Pipeline, error) {
	if detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if len(categories) == 0 {
		categories = DefaultCategories()
	}
	return &Pipeline{detector: detector, categories: categories}, nil
}

// Detect runs the detector over every sentence unit of raw and returns the
// merged spans in unit order, then within-unit detection order.
func (p *Pipeline) Detect(ctx context.Context, raw string) ([]Span, error) {
	var all []Span
	for _, unit := range SplitSentences(raw) {
		spans, err := p.detector.Detect(ctx, unit)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDetection, err)
		}
		all = append(all, spans...)
	}
	return all, nil
}

// Anonymize detects entities in raw, assigns aliases and substitutes them.
func (p *Pipeline) Anonymize(ctx context.Context, raw string) (Result, error) {
	spans, err := p.Detect(ctx, raw)
	if err != nil {
		return Result{}, err
	}
	aliases := Assign(spans, p.categories)
	return Result{
		RawText:        raw,
		AnonymizedText: Substitute(raw, aliases),
		Aliases:        aliases,
	}, nil
}

// Aliases runs detection and assignment without substituting the text.
func (p *Pipeline) Aliases(ctx context.Context, raw string) ([]Alias, error) {
	spans, err := p.Detect(ctx, raw)
	if err != nil {
		return nil, err
	}
	return Assign(spans, p.categories), nil
}

// SplitSentences cuts text into sentence-like units on terminal punctuation
// followed by whitespace. The detector is invoked once per unit.
func SplitSentences(text string) []string {
	var units []string
	var current strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if unit := strings.TrimSpace(current.String()); unit != "" {
			units = append(units, unit)
		}
		current.Reset()
	}
	if unit := strings.TrimSpace(current.String()); unit != "" {
		units = append(units, unit)
	}
	return units
}
