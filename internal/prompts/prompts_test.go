package prompts

import (
	"strings"
	"testing"
)

func TestGet_DefaultsAndUnknown(t *testing.T) {
	l := NewLibrary(nil)
	if l.Get(DataExtraction) == "" {
		t.Fatalf("built-in template missing")
	}
	if l.Get("no_such_template") != "" {
		t.Fatalf("unknown template should be empty")
	}
}

func TestGet_OverridesWin(t *testing.T) {
	l := NewLibrary(map[string]string{ErrorFallback: "custom apology"})
	if got := l.Get(ErrorFallback); got != "custom apology" {
		t.Fatalf("override ignored: %q", got)
	}
	// Other templates keep their defaults.
	if l.Get(DuplicateFound) == "" {
		t.Fatalf("unrelated template lost")
	}
}

func TestGet_EmptyOverrideFallsThrough(t *testing.T) {
	l := NewLibrary(map[string]string{ErrorFallback: ""})
	if l.Get(ErrorFallback) == "" {
		t.Fatalf("empty override should fall back to default")
	}
}

func TestRender_Substitution(t *testing.T) {
	l := NewLibrary(nil)
	got := l.Render(DuplicateFound, map[string]string{"similarity": "97%"})
	if !strings.Contains(got, "97% match") {
		t.Fatalf("placeholder not substituted: %q", got)
	}
	if strings.Contains(got, "{similarity}") {
		t.Fatalf("placeholder left behind: %q", got)
	}
}

func TestRender_UnknownPlaceholderStaysVisible(t *testing.T) {
	l := NewLibrary(map[string]string{"greeting": "Hello {who}, {unset}!"})
	got := l.Render("greeting", map[string]string{"who": "Jane"})
	if got != "Hello Jane, {unset}!" {
		t.Fatalf("got %q", got)
	}
}

func TestRender_NoVars(t *testing.T) {
	l := NewLibrary(nil)
	if got := l.Render(ErrorFallback, nil); got != l.Get(ErrorFallback) {
		t.Fatalf("render without vars must equal the raw template")
	}
}

func TestDefaults_CarryRequiredPlaceholders(t *testing.T) {
	l := NewLibrary(nil)
	needs := map[string][]string{
		DataExtraction:       {"{conversation}", "{existing_data}"},
		FollowUpQuestion:     {"{context_summary}", "{field_name}"},
		ValidationError:      {"{errors}"},
		DuplicateComparison:  {"{new_registration}", "{existing_registration}"},
		IntentClassification: {"{message}"},
		RegistrationSummary:  {"{registration_id}", "{customer_name}", "{birth_date}", "{vehicle_description}", "{license_plate}"},
		DuplicateFound:       {"{similarity}"},
		MissingDataFallback:  {"{name_greeting}", "{field_name}"},
		ValidationFallback:   {"{errors}"},
	}
	for name, placeholders := range needs {
		tpl := l.Get(name)
		for _, p := range placeholders {
			if !strings.Contains(tpl, p) {
				t.Fatalf("template %s missing %s", name, p)
			}
		}
	}
}
