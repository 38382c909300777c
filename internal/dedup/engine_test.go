package dedup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-insurance-intake/internal/domain"
	"github.com/tbourn/go-insurance-intake/internal/llm"
	"github.com/tbourn/go-insurance-intake/internal/prompts"
)

type fakeStore struct {
	regs []domain.Registration
	err  error
}

func (f fakeStore) FindAll(ctx context.Context) ([]domain.Registration, error) {
	return f.regs, f.err
}

type fakeRouter struct {
	content string
	err     error
	calls   int
	lastReq llm.Request
}

func (f *fakeRouter) Route(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content, Provider: "fake"}, nil
}

func reg(id, name, birth, plate string) domain.Registration {
	return domain.Registration{
		ID:       id,
		Customer: domain.Customer{Name: name, BirthDate: birth},
		Vehicle:  domain.Vehicle{CarType: "Sedan", Manufacturer: "Ford", Year: 2019, LicensePlate: plate},
	}
}

var (
	testCustomer = domain.Customer{Name: "Jane Doe", BirthDate: "1990-04-02"}
	testVehicle  = domain.Vehicle{CarType: "Sedan", Manufacturer: "Ford", Year: 2019, LicensePlate: "AB123"}
)

func TestNew_CoercesDefaults(t *testing.T) {
	e := New(fakeStore{}, nil, prompts.NewLibrary(nil), Config{})
	if e.Threshold() != 0.85 {
		t.Fatalf("threshold = %v, want 0.85", e.Threshold())
	}
	if e.cfg.Weights != DefaultWeights {
		t.Fatalf("weights = %+v, want defaults", e.cfg.Weights)
	}
}

func TestFindDuplicates_ExactPlateIsDefinitive(t *testing.T) {
	store := fakeStore{regs: []domain.Registration{
		reg("r1", "Completely Different", "1955-01-01", "ab-12 3"),
	}}
	e := New(store, nil, prompts.NewLibrary(nil), Config{})

	got := e.FindDuplicates(context.Background(), testCustomer, testVehicle)
	if len(got) != 1 {
		t.Fatalf("candidates = %v", got)
	}
	if got[0].SimilarityScore != 1.0 {
		t.Fatalf("exact plate score = %v, want 1.0", got[0].SimilarityScore)
	}
	if got[0].RegistrationID != "r1" {
		t.Fatalf("candidate id = %q", got[0].RegistrationID)
	}
}

func TestFindDuplicates_FailsOpenOnStoreError(t *testing.T) {
	e := New(fakeStore{err: errors.New("db down")}, nil, prompts.NewLibrary(nil), Config{})
	got := e.FindDuplicates(context.Background(), testCustomer, testVehicle)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", got)
	}
}

func TestFindDuplicates_ThresholdFiltersAndSorts(t *testing.T) {
	store := fakeStore{regs: []domain.Registration{
		reg("low", "Nobody Known", "1955-01-01", "ZZ999"),
		reg("near", "Jane Does", "1990-04-02", "AB124"),
		reg("exact", "Jane Doe", "1990-04-02", "AB123X"), // different plate, identical otherwise
	}}
	e := New(store, nil, prompts.NewLibrary(nil), Config{Threshold: 0.80})

	got := e.FindDuplicates(context.Background(), testCustomer, testVehicle)
	if len(got) != 2 {
		t.Fatalf("candidates = %v", got)
	}
	if got[0].SimilarityScore < got[1].SimilarityScore {
		t.Fatalf("not sorted descending: %v", got)
	}
	for _, c := range got {
		if c.RegistrationID == "low" {
			t.Fatalf("below-threshold candidate leaked: %v", got)
		}
	}
}

func TestFindDuplicates_CandidatesCarryOnlyMaskedPII(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := reg("r1", "Jane Doe", "1990-04-02", "AB123")
	r.CreatedAt = created
	e := New(fakeStore{regs: []domain.Registration{r}}, nil, prompts.NewLibrary(nil), Config{})

	got := e.FindDuplicates(context.Background(), testCustomer, testVehicle)
	if len(got) != 1 {
		t.Fatalf("candidates = %v", got)
	}
	c := got[0]
	if c.MaskedName != "J*** D***" {
		t.Fatalf("masked name = %q", c.MaskedName)
	}
	if c.MaskedBirthDate != "1990-**-**" {
		t.Fatalf("masked birth date = %q", c.MaskedBirthDate)
	}
	if c.VehicleInfo != "2019 Ford Sedan" {
		t.Fatalf("vehicle info = %q", c.VehicleInfo)
	}
	if !c.CreatedAt.Equal(created) {
		t.Fatalf("created at = %v", c.CreatedAt)
	}
}

func TestFindDuplicates_CanceledContextFailsOpen(t *testing.T) {
	store := fakeStore{regs: []domain.Registration{
		reg("r1", "Jane Doe", "1990-04-02", "AB123"),
	}}
	e := New(store, nil, prompts.NewLibrary(nil), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := e.FindDuplicates(ctx, testCustomer, testVehicle)
	if len(got) != 0 {
		t.Fatalf("canceled scan should return nothing, got %v", got)
	}
}

func TestFindDuplicates_ModelOverridesFuzzyScore(t *testing.T) {
	// Identical record except the plate, so the exact-plate shortcut is
	// skipped and the model path runs.
	store := fakeStore{regs: []domain.Registration{
		reg("r1", "Jane Doe", "1990-04-02", "XY999"),
	}}
	router := &fakeRouter{content: "0.95"}
	e := New(store, router, prompts.NewLibrary(nil), Config{Threshold: 0.9, UseModel: true})

	got := e.FindDuplicates(context.Background(), testCustomer, testVehicle)
	if router.calls != 1 {
		t.Fatalf("router calls = %d", router.calls)
	}
	if len(got) != 1 || got[0].SimilarityScore != 0.95 {
		t.Fatalf("candidates = %v", got)
	}
	// Raw values go into the prompt, not the candidate.
	if !strings.Contains(router.lastReq.Prompt, "Jane Doe") {
		t.Fatalf("prompt missing record data: %q", router.lastReq.Prompt)
	}
}

func TestFindDuplicates_ModelFailureKeepsFuzzyScore(t *testing.T) {
	// Same name and birth date, distant plate: fuzzy score is high enough
	// on its own.
	store := fakeStore{regs: []domain.Registration{
		reg("r1", "Jane Doe", "1990-04-02", "XY999"),
	}}
	router := &fakeRouter{err: errors.New("backend down")}
	e := New(store, router, prompts.NewLibrary(nil), Config{Threshold: 0.5, UseModel: true})

	got := e.FindDuplicates(context.Background(), testCustomer, testVehicle)
	if len(got) != 1 {
		t.Fatalf("expected fuzzy candidate despite model failure, got %v", got)
	}
}

func TestFuzzyScore_MissingFieldsDropFromWeight(t *testing.T) {
	e := New(fakeStore{}, nil, prompts.NewLibrary(nil), Config{})

	// Only the birth date exists on the record and it matches exactly, so
	// the score must be 1.0 regardless of the other weights.
	r := domain.Registration{Customer: domain.Customer{BirthDate: "1990-04-02"}}
	if got := e.fuzzyScore(testCustomer, testVehicle, &r); got != 1.0 {
		t.Fatalf("score = %v, want 1.0", got)
	}

	// Nothing to compare at all scores zero.
	empty := domain.Registration{}
	if got := e.fuzzyScore(testCustomer, testVehicle, &empty); got != 0 {
		t.Fatalf("score for empty record = %v, want 0", got)
	}
}

func TestFuzzyScore_NameIsCaseInsensitive(t *testing.T) {
	e := New(fakeStore{}, nil, prompts.NewLibrary(nil), Config{})
	r := domain.Registration{Customer: domain.Customer{Name: "JANE DOE", BirthDate: "1990-04-02"}}
	r.Vehicle.LicensePlate = "AB123"
	if got := e.fuzzyScore(testCustomer, testVehicle, &r); got != 1.0 {
		t.Fatalf("score = %v, want 1.0", got)
	}
}

func TestIsLikelyDuplicate(t *testing.T) {
	e := New(fakeStore{}, nil, prompts.NewLibrary(nil), Config{})
	if e.IsLikelyDuplicate(nil) {
		t.Fatalf("empty candidates reported duplicate")
	}
	if !e.IsLikelyDuplicate([]Candidate{{SimilarityScore: 0.9}}) {
		t.Fatalf("above-threshold candidate not reported")
	}
	if e.IsLikelyDuplicate([]Candidate{{SimilarityScore: 0.5}}) {
		t.Fatalf("below-threshold candidate reported")
	}
}

func TestParseScore(t *testing.T) {
	cases := []struct {
		in    string
		want  float64
		valid bool
	}{
		{"0.92", 0.92, true},
		{"The similarity is 0.7 overall.", 0.7, true},
		{"150", 1.0, true},
		{"-3", 0.0, true},
		{"1", 1.0, true},
		{"no number here", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseScore(tc.in)
		if ok != tc.valid {
			t.Fatalf("ParseScore(%q) ok = %v, want %v", tc.in, ok, tc.valid)
		}
		if ok && got != tc.want {
			t.Fatalf("ParseScore(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMaskName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Jane Doe", "J*** D***"},
		{"Jane", "J***"},
		{"jane marie doe", "j*** m*** d***"},
		{"  ", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := MaskName(tc.in); got != tc.want {
			t.Fatalf("MaskName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskBirthDate(t *testing.T) {
	cases := []struct{ in, want string }{
		{"1990-04-02", "1990-**-**"},
		{"2001-12-31", "2001-**-**"},
		{"04/02/1990", "****-**-**"},
		{"", "****-**-**"},
	}
	for _, tc := range cases {
		if got := MaskBirthDate(tc.in); got != tc.want {
			t.Fatalf("MaskBirthDate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
