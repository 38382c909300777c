// Package extract turns free-form conversation text into the structured
// field map the intake flow accumulates. Extraction delegates interpretation
// to the LLM router; everything the model returns is treated as untrusted
// and merged defensively, so a failed or garbled extraction degrades to
// "nothing new learned" instead of failing the conversation.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-insurance-intake/internal/domain"
	"github.com/tbourn/go-insurance-intake/internal/llm"
	"github.com/tbourn/go-insurance-intake/internal/prompts"
)

// Router is the generation dependency of the extractor.
type Router interface {
	Route(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Extractor builds extraction prompts, parses model output, and merges the
// result into prior fields.
type Extractor struct {
	router    Router
	templates *prompts.Library
}

// New constructs an Extractor.
func New(router Router, templates *prompts.Library) *Extractor {
	return &Extractor{router: router, templates: templates}
}

// Extract runs one extraction pass over conversation and merges whatever was
// learned into prior. It never returns an error: on any failure (routing,
// malformed JSON) the prior map is returned unchanged.
//
// Merge semantics: a non-empty extracted value overwrites the same-named
// prior field; absent or empty values never erase prior data.
func (e *Extractor) Extract(ctx context.Context, conversation string, prior domain.FieldMap) domain.FieldMap {
	existing, _ := json.Marshal(prior)
	prompt := e.templates.Render(prompts.DataExtraction, map[string]string{
		"conversation":  conversation,
		"existing_data": string(existing),
	})

	resp, err := e.router.Route(ctx, llm.Request{
		Prompt:  prompt,
		Context: "You extract insurance data and return only valid JSON.",
	})
	if err != nil {
		log.Warn().Err(err).Msg("extraction request failed, keeping prior fields")
		return prior.Clone()
	}

	parsed, err := ParseFields(resp.Content)
	if err != nil {
		log.Warn().Err(err).Msg("extraction returned unparseable output, keeping prior fields")
		return prior.Clone()
	}

	return Merge(prior, parsed)
}

// ParseFields decodes a model reply into raw field values. Markdown code
// fences are tolerated; anything that is not a JSON object is an error.
func ParseFields(content string) (domain.FieldMap, error) {
	content = stripFences(content)

	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("extract: invalid JSON: %w", err)
	}

	out := make(domain.FieldMap, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = strings.TrimSpace(t)
		case float64:
			// JSON numbers arrive as float64; years are the only numeric field.
			out[k] = strconv.Itoa(int(t))
		}
	}
	return out, nil
}

// Merge overlays extracted onto prior with field-specific normalization:
// plates upper-cased and stripped, manufacturer and car type title-cased,
// years parsed as integers with a regex rescue for noisy text ("around
// 2019 I think" → "2019"). Unknown or empty extracted fields are dropped.
func Merge(prior, extracted domain.FieldMap) domain.FieldMap {
	out := prior.Clone()
	for k, v := range extracted {
		if v == "" || isPlaceholder(v) {
			continue
		}
		switch k {
		case domain.FieldLicensePlate:
			out[k] = domain.NormalizePlate(v)
		case domain.FieldManufacturer, domain.FieldCarType:
			out[k] = domain.TitleCase(v)
		case domain.FieldYear:
			if y, ok := parseYear(v); ok {
				out[k] = y
			}
		case domain.FieldCustomerName, domain.FieldBirthDate:
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

// yearRE rescues a 4-digit 19xx/20xx token out of noisy year text.
var yearRE = regexp.MustCompile(`\b(19|20)\d{2}\b`)

func parseYear(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if _, err := strconv.Atoi(s); err == nil {
		return s, true
	}
	if m := yearRE.FindString(s); m != "" {
		return m, true
	}
	return "", false
}

// Placeholder strings models return instead of omitting a field.
var placeholders = map[string]struct{}{
	"empty": {}, "none": {}, "null": {}, "not mentioned": {}, "unknown": {}, "n/a": {},
}

func isPlaceholder(v string) bool {
	_, ok := placeholders[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// fenceRE matches a fenced code block with an optional language tag.
var fenceRE = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// stripFences unwraps ```json fences and, failing that, slices from the
// first '{' to the last '}' so a chatty preamble does not break decoding.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRE.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			return s[i : j+1]
		}
	}
	return s
}
