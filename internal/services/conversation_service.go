// Package services – ConversationService
//
// This file implements ConversationService, the application-level component
// that drives the registration conversation. Each call receives the full
// conversation history plus the newest user message and recomputes the state
// of the intake from scratch: the service keeps no session state, so any
// replica can serve any turn.
//
// A turn runs through a fixed pipeline: informational shortcut, completion
// reset, duplicate-resolution handling, extraction, validation, and either a
// follow-up question, a duplicate prompt, or final persistence. Every
// internal failure is absorbed at the boundary into an ERROR outcome with a
// safe message; the conversation itself never returns a transport error for
// a backend problem.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the resulting status and field counts, never raw customer data.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-insurance-intake/internal/dedup"
	"github.com/tbourn/go-insurance-intake/internal/domain"
	"github.com/tbourn/go-insurance-intake/internal/extract"
	"github.com/tbourn/go-insurance-intake/internal/llm"
	"github.com/tbourn/go-insurance-intake/internal/prompts"
	"github.com/tbourn/go-insurance-intake/internal/repo"
)

// Status is the conversation outcome reported to the caller after a turn.
type Status string

const (
	StatusCollecting      Status = "COLLECTING_DATA"
	StatusValidationError Status = "VALIDATION_ERROR"
	StatusDuplicateFound  Status = "DUPLICATE_FOUND"
	StatusDuplicateReview Status = "DUPLICATE_REVIEW_REQUESTED"
	StatusClarification   Status = "CLARIFICATION_NEEDED"
	StatusCompleted       Status = "COMPLETED"
	StatusError           Status = "ERROR"
	StatusInformational   Status = "INFORMATIONAL"
)

// Intent is the classified meaning of a user reply to a duplicate prompt.
type Intent string

const (
	IntentUpdate  Intent = "UPDATE"
	IntentCreate  Intent = "CREATE"
	IntentUnclear Intent = "UNCLEAR"
)

// Result is the full outcome of one conversation turn.
type Result struct {
	Status         Status            `json:"status"`
	Response       string            `json:"response"`
	ExtractedData  domain.FieldMap   `json:"extracted_data"`
	MissingFields  []string          `json:"missing_fields"`
	Errors         []string          `json:"errors,omitempty"`
	Duplicates     []dedup.Candidate `json:"duplicates,omitempty"`
	RegistrationID string            `json:"registration_id,omitempty"`
}

// Router is the generation dependency of the service.
type Router interface {
	Route(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// ConversationService coordinates extraction, validation, duplicate
// resolution, and persistence over a stateless conversation.
type ConversationService struct {
	DB        *gorm.DB
	Router    Router
	Extractor *extract.Extractor
	Dedup     *dedup.Engine
	Templates *prompts.Library

	// MaxMessageRunes guards against oversized inputs when > 0.
	MaxMessageRunes int

	// Keyword lists, lower-cased substrings. Empty lists fall back to the
	// built-in defaults.
	InformationalKeywords    []string
	DuplicateContextKeywords []string
	CompletionKeywords       []string
	ReviewKeywords           []string
}

// Built-in keyword defaults, matched as lower-cased substrings.
var (
	defaultInformational = []string{
		"what can you do", "how does this work", "what do you need",
		"what information", "help me understand", "who are you",
	}
	defaultDuplicateContext = []string{
		"similar registration", "existing registration", "update the existing",
	}
	defaultCompletion = []string{
		"registration is complete", "reference:",
	}
	defaultReview = []string{
		"review", "let me check", "not sure",
	}
)

// HandleTurn processes one conversation turn and always produces a Result.
// Input guards (empty or oversized message) are the only error returns; any
// internal failure past those degrades to a Result with StatusError and a
// safe user-facing message.
func (s *ConversationService) HandleTurn(ctx context.Context, history []domain.Turn, message string) (res *Result, err error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "HandleTurn")
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(message) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}

	// Everything past input validation degrades instead of failing.
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("conversation turn panicked")
			res, err = s.errorResult(), nil
		}
		if res != nil {
			span.SetAttributes(
				attribute.String("conversation.status", string(res.Status)),
				attribute.Int("conversation.missing_fields", len(res.MissingFields)),
			)
		}
	}()

	if s.isInformational(message) {
		return &Result{
			Status:        StatusInformational,
			Response:      s.Templates.Get(prompts.InformationalResponse),
			ExtractedData: domain.FieldMap{},
			MissingFields: domain.FieldMap{}.Missing(),
		}, nil
	}

	// A completed registration in the tail of the history means this message
	// starts a fresh intake.
	if s.lastAssistantMatches(history, s.keywords(s.CompletionKeywords, defaultCompletion)) {
		history = nil
	}

	// A duplicate prompt in the tail means this message answers it.
	if s.lastAssistantMatches(history, s.keywords(s.DuplicateContextKeywords, defaultDuplicateContext)) {
		return s.resolveDuplicate(ctx, history, message), nil
	}

	fields := s.Extractor.Extract(ctx, transcript(history, message), domain.FieldMap{})
	customer, vehicle, verrs := domain.Validate(fields, nowUTC())

	if len(verrs) > 0 {
		return s.validationResult(ctx, fields, verrs), nil
	}

	if missing := fields.Missing(); len(missing) > 0 {
		return s.collectingResult(ctx, fields, missing), nil
	}

	// Complete and valid: resolve duplicates, then persist.
	candidates := s.Dedup.FindDuplicates(ctx, *customer, *vehicle)
	if s.Dedup.IsLikelyDuplicate(candidates) {
		return &Result{
			Status: StatusDuplicateFound,
			Response: s.Templates.Render(prompts.DuplicateFound, map[string]string{
				"similarity": percent(candidates[0].SimilarityScore),
			}),
			ExtractedData: fields,
			MissingFields: []string{},
			Duplicates:    candidates,
		}, nil
	}

	return s.persist(ctx, fields, *customer, *vehicle, nil, false), nil
}

// resolveDuplicate handles the turn after a duplicate prompt. The pending
// registration is recomputed from the prior history (the newest message is
// the answer, not data), the reply is classified, and the chosen action runs.
func (s *ConversationService) resolveDuplicate(ctx context.Context, history []domain.Turn, message string) *Result {
	fields := s.Extractor.Extract(ctx, transcript(history, ""), domain.FieldMap{})
	customer, vehicle, verrs := domain.Validate(fields, nowUTC())
	if customer == nil || vehicle == nil || len(verrs) > 0 {
		// The pending data can no longer be reconstructed; start over.
		return s.collectingResult(ctx, fields, fields.Missing())
	}

	if matchesAny(message, s.keywords(s.ReviewKeywords, defaultReview)) {
		return &Result{
			Status:        StatusDuplicateReview,
			Response:      s.Templates.Get(prompts.DuplicateReview),
			ExtractedData: fields,
			MissingFields: []string{},
		}
	}

	candidates := s.Dedup.FindDuplicates(ctx, *customer, *vehicle)

	switch s.classifyIntent(ctx, message) {
	case IntentUpdate:
		if len(candidates) == 0 {
			// The match disappeared between turns; treat as a plain create.
			return s.persist(ctx, fields, *customer, *vehicle, nil, false)
		}
		id := candidates[0].RegistrationID
		if err := repo.UpdateRegistration(ctx, s.DB, id, *customer, *vehicle); err != nil {
			log.Error().Err(err).Str("registration_id", id).Msg("duplicate update failed")
			return s.errorResult()
		}
		return &Result{
			Status:         StatusCompleted,
			Response:       s.summary(id, *customer, *vehicle),
			ExtractedData:  fields,
			MissingFields:  []string{},
			RegistrationID: id,
		}

	case IntentCreate:
		ids := make([]string, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, c.RegistrationID)
		}
		return s.persist(ctx, fields, *customer, *vehicle, ids, len(ids) > 0)

	default:
		// Re-display the candidates so the user can answer without
		// scrolling back to the original duplicate prompt.
		return &Result{
			Status:        StatusClarification,
			Response:      s.Templates.Get(prompts.ClarificationNeeded),
			ExtractedData: fields,
			MissingFields: []string{},
			Duplicates:    candidates,
		}
	}
}

// classifyIntent asks a backend to label the reply. A failed or unexpected
// classification is UNCLEAR, which routes the user to a clarification prompt
// instead of guessing.
func (s *ConversationService) classifyIntent(ctx context.Context, message string) Intent {
	prompt := s.Templates.Render(prompts.IntentClassification, map[string]string{
		"message": message,
	})
	resp, err := s.Router.Route(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		log.Warn().Err(err).Msg("intent classification failed")
		return IntentUnclear
	}
	switch v := strings.ToUpper(strings.TrimSpace(resp.Content)); {
	case strings.Contains(v, string(IntentUpdate)):
		return IntentUpdate
	case strings.Contains(v, string(IntentCreate)):
		return IntentCreate
	default:
		return IntentUnclear
	}
}

// persist saves a new registration and renders the completion summary.
func (s *ConversationService) persist(ctx context.Context, fields domain.FieldMap, customer domain.Customer, vehicle domain.Vehicle, duplicateIDs []string, isDuplicate bool) *Result {
	reg, err := repo.CreateRegistration(ctx, s.DB, customer, vehicle, duplicateIDs, isDuplicate)
	if err != nil {
		log.Error().Err(err).Msg("registration insert failed")
		return s.errorResult()
	}
	return &Result{
		Status:         StatusCompleted,
		Response:       s.summary(reg.ID, customer, vehicle),
		ExtractedData:  fields,
		MissingFields:  []string{},
		RegistrationID: reg.ID,
	}
}

// collectingResult asks for exactly one missing field, the first in required
// order. The question is model-generated with a deterministic fallback so a
// backend outage never stalls the conversation.
func (s *ConversationService) collectingResult(ctx context.Context, fields domain.FieldMap, missing []string) *Result {
	if len(missing) == 0 {
		missing = domain.RequiredFields
	}
	field := missing[0]

	question := s.askFollowUp(ctx, fields, field)
	if question == "" {
		greeting := ""
		if name := fields[domain.FieldCustomerName]; name != "" {
			greeting = " " + strings.Fields(name)[0]
		}
		question = s.Templates.Render(prompts.MissingDataFallback, map[string]string{
			"name_greeting": greeting,
			"field_name":    fieldLabel(field),
		})
	}

	return &Result{
		Status:        StatusCollecting,
		Response:      question,
		ExtractedData: fields,
		MissingFields: missing,
	}
}

// askFollowUp generates the follow-up question for one field, or "" on
// failure.
func (s *ConversationService) askFollowUp(ctx context.Context, fields domain.FieldMap, field string) string {
	known := make([]string, 0, len(fields))
	for k, v := range fields {
		if v != "" {
			known = append(known, k)
		}
	}
	prompt := s.Templates.Render(prompts.FollowUpQuestion, map[string]string{
		"context_summary": strings.Join(known, ", "),
		"field_name":      fieldLabel(field),
	})
	resp, err := s.Router.Route(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		log.Warn().Err(err).Str("field", field).Msg("follow-up generation failed")
		return ""
	}
	return strings.TrimSpace(resp.Content)
}

// validationResult renders a correction request for the collected validation
// errors, model-phrased with a template fallback.
func (s *ConversationService) validationResult(ctx context.Context, fields domain.FieldMap, verrs []string) *Result {
	joined := strings.Join(verrs, "; ")

	msg := ""
	prompt := s.Templates.Render(prompts.ValidationError, map[string]string{"errors": joined})
	if resp, err := s.Router.Route(ctx, llm.Request{Prompt: prompt}); err == nil {
		msg = strings.TrimSpace(resp.Content)
	}
	if msg == "" {
		msg = s.Templates.Render(prompts.ValidationFallback, map[string]string{"errors": joined})
	}

	return &Result{
		Status:        StatusValidationError,
		Response:      msg,
		ExtractedData: fields,
		MissingFields: fields.Missing(),
		Errors:        verrs,
	}
}

// summary renders the completion message for a saved registration.
func (s *ConversationService) summary(id string, customer domain.Customer, vehicle domain.Vehicle) string {
	return s.Templates.Render(prompts.RegistrationSummary, map[string]string{
		"registration_id":     id,
		"customer_name":       customer.Name,
		"birth_date":          customer.BirthDate,
		"vehicle_description": vehicle.Description(),
		"license_plate":       vehicle.LicensePlate,
	})
}

// errorResult is the safe outcome for any internal failure.
func (s *ConversationService) errorResult() *Result {
	return &Result{
		Status:        StatusError,
		Response:      s.Templates.Get(prompts.ErrorFallback),
		ExtractedData: domain.FieldMap{},
		MissingFields: []string{},
	}
}

// isInformational reports whether the message is a capability question
// rather than registration data.
func (s *ConversationService) isInformational(message string) bool {
	return matchesAny(message, s.keywords(s.InformationalKeywords, defaultInformational))
}

// lastAssistantMatches checks the most recent assistant turn against a
// keyword list.
func (s *ConversationService) lastAssistantMatches(history []domain.Turn, keywords []string) bool {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleAssistant {
			return matchesAny(history[i].Content, keywords)
		}
	}
	return false
}

func (s *ConversationService) keywords(configured, fallback []string) []string {
	if len(configured) > 0 {
		return configured
	}
	return fallback
}

// transcript renders the history plus the newest message in the "Role: text"
// form extraction prompts expect. message may be empty.
func transcript(history []domain.Turn, message string) string {
	var b strings.Builder
	for _, t := range history {
		switch t.Role {
		case domain.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(t.Content)
		b.WriteByte('\n')
	}
	if message != "" {
		b.WriteString("User: ")
		b.WriteString(message)
	}
	return b.String()
}

// matchesAny reports whether any keyword occurs in s, case-insensitively.
func matchesAny(s string, keywords []string) bool {
	s = strings.ToLower(s)
	for _, k := range keywords {
		if k != "" && strings.Contains(s, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// fieldLabel renders a field name for user-facing text ("birth_date" →
// "birth date").
func fieldLabel(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

// percent renders a [0,1] score as "97%".
func percent(score float64) string {
	return fmt.Sprintf("%.0f%%", score*100)
}

// nowUTC is the validation clock.
func nowUTC() time.Time {
	return time.Now().UTC()
}
