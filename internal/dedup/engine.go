// Package dedup decides whether a new registration duplicates an existing
// one. Matching is layered: an exact normalized-plate hit is definitive, a
// weighted fuzzy score over name, birth date, and plate covers the rest, and
// an optional model-assisted comparison can override the fuzzy score for
// ambiguous pairs. Candidates leaving this package carry only masked PII.
package dedup

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-insurance-intake/internal/dedup/match"
	"github.com/tbourn/go-insurance-intake/internal/domain"
	"github.com/tbourn/go-insurance-intake/internal/llm"
	"github.com/tbourn/go-insurance-intake/internal/prompts"
)

// Candidate is one potential duplicate, safe for user-facing output: the
// customer name and birth date are masked before the candidate leaves the
// engine, and the raw values are never attached.
type Candidate struct {
	RegistrationID  string    `json:"registration_id"`
	SimilarityScore float64   `json:"similarity_score"`
	MaskedName      string    `json:"masked_name"`
	MaskedBirthDate string    `json:"masked_birth_date"`
	VehicleInfo     string    `json:"vehicle_info"`
	CreatedAt       time.Time `json:"created_at"`
}

// Weights configures the per-field contribution to the fuzzy score.
type Weights struct {
	Name         float64
	BirthDate    float64
	LicensePlate float64
}

// DefaultWeights mirror the historical tuning of the matcher.
var DefaultWeights = Weights{Name: 0.30, BirthDate: 0.30, LicensePlate: 0.40}

// Store is the registration source the engine scans.
type Store interface {
	FindAll(ctx context.Context) ([]domain.Registration, error)
}

// Router is the optional model-comparison dependency.
type Router interface {
	Route(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Config tunes an Engine.
type Config struct {
	// Threshold is the minimum score for a candidate. Zero is coerced
	// to 0.85.
	Threshold float64
	// Weights for the fuzzy score; the zero value is coerced to
	// DefaultWeights.
	Weights Weights
	// UseModel enables the model-assisted comparison for records that
	// miss the exact-plate shortcut.
	UseModel bool
}

// Engine scans existing registrations for likely duplicates of a new
// (customer, vehicle) pair.
type Engine struct {
	store     Store
	router    Router
	templates *prompts.Library
	cfg       Config
}

// New constructs an Engine. router may be nil when Config.UseModel is false.
func New(store Store, router Router, templates *prompts.Library, cfg Config) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.85
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights
	}
	return &Engine{store: store, router: router, templates: templates, cfg: cfg}
}

// Threshold exposes the configured similarity threshold.
func (e *Engine) Threshold() float64 { return e.cfg.Threshold }

// FindDuplicates scans every existing registration and returns candidates
// meeting the threshold, sorted by score descending (stable: ties keep scan
// order). An identical normalized plate short-circuits to score 1.0 without
// consulting the model.
//
// The engine fails open: when the store is unreachable it returns an empty
// list so an outage in the registration corpus never blocks intake.
func (e *Engine) FindDuplicates(ctx context.Context, customer domain.Customer, vehicle domain.Vehicle) []Candidate {
	tr := otel.Tracer("dedup/Engine")
	ctx, span := tr.Start(ctx, "FindDuplicates")
	defer span.End()

	existing, err := e.store.FindAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("duplicate scan failed, assuming no duplicates")
		return []Candidate{}
	}

	plate := domain.NormalizePlate(vehicle.LicensePlate)
	candidates := make([]Candidate, 0, 4)

	for i := range existing {
		if ctx.Err() != nil {
			// Scan is cancellable; a partial result is still fail-open.
			break
		}
		reg := &existing[i]

		var score float64
		if domain.NormalizePlate(reg.Vehicle.LicensePlate) == plate {
			// Same plate is definitionally the same car.
			score = 1.0
		} else {
			score = e.fuzzyScore(customer, vehicle, reg)
			if e.cfg.UseModel && e.router != nil {
				if s, ok := e.modelScore(ctx, customer, vehicle, reg); ok {
					score = s
				}
			}
		}

		if score >= e.cfg.Threshold {
			candidates = append(candidates, Candidate{
				RegistrationID:  reg.ID,
				SimilarityScore: score,
				MaskedName:      MaskName(reg.Customer.Name),
				MaskedBirthDate: MaskBirthDate(reg.Customer.BirthDate),
				VehicleInfo:     reg.Vehicle.Description(),
				CreatedAt:       reg.CreatedAt,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SimilarityScore > candidates[j].SimilarityScore
	})
	span.SetAttributes(attribute.Int("dedup.candidates", len(candidates)))
	return candidates
}

// IsLikelyDuplicate reports whether the ranked candidates warrant stopping
// the registration flow: non-empty and top score at or above the threshold.
func (e *Engine) IsLikelyDuplicate(candidates []Candidate) bool {
	return len(candidates) > 0 && candidates[0].SimilarityScore >= e.cfg.Threshold
}

// fuzzyScore combines per-field similarity ratios into a weighted average.
// Name and plate use the normalized edit-distance ratio, birth date is
// exact-match binary. A field missing on the existing record drops out of
// both numerator and denominator.
func (e *Engine) fuzzyScore(customer domain.Customer, vehicle domain.Vehicle, existing *domain.Registration) float64 {
	var total, weight float64

	if existing.Customer.Name != "" {
		r := match.Ratio(strings.ToLower(customer.Name), strings.ToLower(existing.Customer.Name))
		total += r * e.cfg.Weights.Name
		weight += e.cfg.Weights.Name
	}

	if existing.Customer.BirthDate != "" {
		var r float64
		if existing.Customer.BirthDate == customer.BirthDate {
			r = 1.0
		}
		total += r * e.cfg.Weights.BirthDate
		weight += e.cfg.Weights.BirthDate
	}

	if existing.Vehicle.LicensePlate != "" {
		r := match.Ratio(domain.NormalizePlate(vehicle.LicensePlate), domain.NormalizePlate(existing.Vehicle.LicensePlate))
		total += r * e.cfg.Weights.LicensePlate
		weight += e.cfg.Weights.LicensePlate
	}

	if weight == 0 {
		return 0
	}
	return total / weight
}

// modelScore asks a backend to rate the similarity of the two registrations.
// The raw values go into the prompt only; they never reach candidate output.
// Any failure (routing, no parseable number) reports ok=false and the caller
// keeps the fuzzy score; the model path never raises.
func (e *Engine) modelScore(ctx context.Context, customer domain.Customer, vehicle domain.Vehicle, existing *domain.Registration) (float64, bool) {
	newJSON, _ := json.Marshal(map[string]string{
		"name":          customer.Name,
		"birth_date":    customer.BirthDate,
		"license_plate": vehicle.LicensePlate,
		"car":           vehicle.Description(),
	})
	oldJSON, _ := json.Marshal(map[string]string{
		"name":          existing.Customer.Name,
		"birth_date":    existing.Customer.BirthDate,
		"license_plate": existing.Vehicle.LicensePlate,
		"car":           existing.Vehicle.Description(),
	})

	prompt := e.templates.Render(prompts.DuplicateComparison, map[string]string{
		"new_registration":      string(newJSON),
		"existing_registration": string(oldJSON),
	})

	resp, err := e.router.Route(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		log.Debug().Err(err).Msg("model comparison failed, using fuzzy score")
		return 0, false
	}
	return ParseScore(resp.Content)
}

// scoreRE grabs the first numeric token, int or decimal, out of free text.
var scoreRE = regexp.MustCompile(`-?\d+\.?\d*`)

// ParseScore extracts a similarity score from free-form model output and
// clamps it into [0,1] ("150" → 1.0, "-3" → 0.0). ok is false when the text
// contains no numeric token at all.
func ParseScore(content string) (score float64, ok bool) {
	m := scoreRE.FindString(content)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return f, true
}

// MaskName reduces a name to the first letter of each token plus a fixed
// mask: "Jane Doe" → "J*** D***". Empty input stays empty.
func MaskName(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return ""
	}
	masked := make([]string, 0, len(parts))
	for _, p := range parts {
		r := []rune(p)
		masked = append(masked, string(r[0])+"***")
	}
	return strings.Join(masked, " ")
}

// MaskBirthDate keeps only the year of a YYYY-MM-DD date: "1990-04-02" →
// "1990-**-**". Unparseable input masks fully.
func MaskBirthDate(birthDate string) string {
	if i := strings.Index(birthDate, "-"); i == 4 {
		return birthDate[:4] + "-**-**"
	}
	return "****-**-**"
}
