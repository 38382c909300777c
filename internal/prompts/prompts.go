// Package prompts holds the named prompt and response templates the agent
// sends to LLM backends or falls back to when a backend call fails. The
// built-in set can be selectively overridden through configuration so that
// wording changes never require a rebuild.
//
// Templates use {placeholder} substitution. Unknown placeholders are left
// intact, which makes a missing value visible in output rather than silent.
package prompts

import "strings"

// Prompt template names.
const (
	DataExtraction       = "data_extraction"
	FollowUpQuestion     = "follow_up_question"
	ValidationError      = "validation_error"
	DuplicateComparison  = "duplicate_comparison"
	IntentClassification = "intent_classification"
)

// Response template names.
const (
	RegistrationSummary   = "registration_summary"
	DuplicateFound        = "duplicate_found"
	DuplicateReview       = "duplicate_review_response"
	ClarificationNeeded   = "clarification_needed"
	MissingDataFallback   = "missing_data_fallback"
	ValidationFallback    = "validation_error_fallback"
	ErrorFallback         = "error_fallback"
	InformationalResponse = "informational_response"
)

// defaults is the built-in template set.
var defaults = map[string]string{
	DataExtraction: `Extract car insurance registration data from the conversation below.
Return ONLY a JSON object, no prose. Use exactly these keys, with a string
value when the conversation mentions the field and omit the key otherwise:
car_type, manufacturer, year, license_plate, customer_name, birth_date.
birth_date must be formatted YYYY-MM-DD.

Known data so far: {existing_data}

Conversation:
{conversation}`,

	FollowUpQuestion: `You are a friendly car insurance assistant.
Collected so far: {context_summary}.
Ask one short, natural question requesting ONLY the customer's {field_name}.
Do not ask about anything else and do not repeat data back.`,

	ValidationError: `You are a friendly car insurance assistant. The submitted data has these
problems: {errors}. Write one short, polite message asking the customer to
correct them. Do not invent additional problems.`,

	DuplicateComparison: `Rate the similarity of these two car insurance registrations on a scale
from 0.0 (unrelated) to 1.0 (same customer and car). Respond with the number only.

New registration:
{new_registration}

Existing registration:
{existing_registration}`,

	IntentClassification: `A customer was told a similar registration already exists and was asked
whether to update the existing one or create a new one. Their reply was:
"{message}"

Classify the reply as exactly one word:
UPDATE - they want the existing registration updated
CREATE - they want a new registration created anyway
UNCLEAR - anything else`,

	RegistrationSummary: `Your registration is complete. Reference: {registration_id}.
Registered: {customer_name} ({birth_date}), {vehicle_description}, plate {license_plate}.
Thank you for choosing us.`,

	DuplicateFound: `I found an existing registration that looks very similar to yours
({similarity} match). Would you like me to update the existing registration,
create a new one anyway, or review the details first?`,

	DuplicateReview: `Understood, I will not register anything yet. Please contact our support
team to review the existing registration, or tell me to proceed when ready.`,

	ClarificationNeeded: `Sorry, I did not catch that. A similar registration already exists -
should I update the existing one, or create a new registration anyway?`,

	MissingDataFallback: `Thanks{name_greeting}! Could you tell me the {field_name}?`,

	ValidationFallback: `Some of the information does not look right: {errors}. Could you check
and send it again?`,

	ErrorFallback: `Sorry, something went wrong on our side while processing your request.
Please try again in a moment.`,

	InformationalResponse: `I can help you register your car insurance. Just tell me about
yourself and your car - for example your name, birth date, and the car's
manufacturer, type, year, and license plate.`,
}

// Library resolves template names to text, preferring overrides.
type Library struct {
	overrides map[string]string
}

// NewLibrary returns a Library with the given overrides on top of the
// built-in defaults. A nil map is fine.
func NewLibrary(overrides map[string]string) *Library {
	return &Library{overrides: overrides}
}

// Get returns the template for name, or "" when the name is unknown.
func (l *Library) Get(name string) string {
	if l != nil && l.overrides != nil {
		if t, ok := l.overrides[name]; ok && t != "" {
			return t
		}
	}
	return defaults[name]
}

// Render substitutes {key} placeholders in the named template.
func (l *Library) Render(name string, vars map[string]string) string {
	t := l.Get(name)
	if t == "" || len(vars) == 0 {
		return t
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(t)
}
