package planner

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
)

func validCase(id string) domain.TestCase {
	return domain.TestCase{
		TestID:            id,
		Name:              "test " + id,
		Category:          domain.CategoryFunctional,
		Priority:          2,
		TargetPageID:      "abc123def456",
		CoverageSignature: "sig_" + id,
		Steps: []domain.Action{
			{ActionType: domain.ActionNavigate, Value: "https://example.com"},
		},
	}
}

func TestValidateTestCase_Valid(t *testing.T) {
	tc := validCase("t1")
	if errs := ValidateTestCase(&tc); len(errs) != 0 {
		t.Errorf("unexpected violations: %v", errs)
	}
}

func TestValidateTestCase_Violations(t *testing.T) {
	tc := domain.TestCase{
		TestID:   "bad",
		Name:     "bad test",
		Category: "chaos",
		Priority: 9,
		Steps: []domain.Action{
			{ActionType: domain.ActionClick}, // missing selector
			{ActionType: domain.ActionFill, Selector: "#x"}, // missing value
		},
	}
	errs := ValidateTestCase(&tc)
	if len(errs) != 4 {
		t.Errorf("got %d violations %v, want 4", len(errs), errs)
	}
}

func TestValidatePlan_FiltersAndDeduplicates(t *testing.T) {
	logger := zap.NewNop()

	bad := validCase("bad")
	bad.Steps = nil

	cases := []domain.TestCase{validCase("a"), validCase("a"), bad, validCase("b")}
	valid, dropped := ValidatePlan(cases, logger)

	if len(valid) != 2 {
		t.Errorf("kept %d cases, want 2", len(valid))
	}
	if len(dropped) != 2 {
		t.Errorf("dropped %d cases, want 2", len(dropped))
	}
}

func TestInjectCredentials_Substitution(t *testing.T) {
	auth := &domain.AuthConfig{
		Mode:     domain.AuthModeCredentials,
		LoginURL: "https://example.com/login",
		Username: "alice",
		Password: "s3cret",
	}

	tc := validCase("login")
	tc.Steps = []domain.Action{
		{ActionType: domain.ActionNavigate, Value: domain.PlaceholderAuthLoginURL},
		{ActionType: domain.ActionFill, Selector: "#user", Value: domain.PlaceholderAuthUsername},
		{ActionType: domain.ActionFill, Selector: "#pass", Value: domain.PlaceholderAuthPassword},
	}
	tc.Assertions = []domain.Assertion{
		{AssertionType: domain.AssertTextContains, ExpectedValue: domain.PlaceholderAuthUsername},
	}

	out := InjectCredentials([]domain.TestCase{tc}, auth, zap.NewNop())
	if len(out) != 1 {
		t.Fatalf("kept %d cases, want 1", len(out))
	}
	if out[0].Steps[0].Value != "https://example.com/login" {
		t.Errorf("login URL = %q", out[0].Steps[0].Value)
	}
	if out[0].Steps[1].Value != "alice" || out[0].Steps[2].Value != "s3cret" {
		t.Errorf("credentials not substituted: %+v", out[0].Steps)
	}
	if out[0].Assertions[0].ExpectedValue != "alice" {
		t.Errorf("assertion value = %q", out[0].Assertions[0].ExpectedValue)
	}

	for _, step := range out[0].Steps {
		if strings.Contains(step.Value, "{{auth_") {
			t.Errorf("unsubstituted placeholder remains: %q", step.Value)
		}
	}
}

func TestInjectCredentials_SafetyNetRemovesPlaceholderTests(t *testing.T) {
	withPlaceholder := validCase("needs-auth")
	withPlaceholder.Steps = []domain.Action{
		{ActionType: domain.ActionFill, Selector: "#pass", Value: domain.PlaceholderAuthPassword},
	}
	plain := validCase("plain")

	out := InjectCredentials([]domain.TestCase{withPlaceholder, plain}, nil, zap.NewNop())
	if len(out) != 1 {
		t.Fatalf("kept %d cases, want 1", len(out))
	}
	if out[0].TestID != "plain" {
		t.Errorf("kept %q, want the placeholder-free test", out[0].TestID)
	}
}

func TestFallbackPlan(t *testing.T) {
	site := &domain.SiteModel{
		BaseURL: "https://example.com",
		Pages: []*domain.PageModel{
			{
				PageID:       "page1page1pa",
				URL:          "https://example.com",
				Title:        "Home",
				AuthRequired: domain.TriFalse,
			},
			{
				PageID:       "page2page2pa",
				URL:          "https://example.com/contact",
				Title:        "Contact",
				AuthRequired: domain.TriFalse,
				Forms: []domain.FormModel{
					{
						FormID: "form1",
						Action: "/contact",
						Fields: []domain.FormField{
							{Name: "email", FieldType: "email", Selector: `input[name="email"]`},
							{Name: "message", FieldType: "textarea", Selector: "textarea"},
						},
						SubmitSelector: `button[type="submit"]`,
					},
				},
			},
		},
	}

	cfg := Config{
		Categories:          []string{"functional", "visual"},
		MaxTests:            20,
		VisualDiffTolerance: 0.05,
	}
	cases := FallbackPlan(site, cfg)

	// 2 smoke + 2 visual + 1 form submit
	if len(cases) != 5 {
		t.Fatalf("got %d cases, want 5", len(cases))
	}

	valid, dropped := ValidatePlan(cases, zap.NewNop())
	if len(dropped) != 0 {
		t.Errorf("fallback plan produced invalid cases: %v", dropped)
	}
	if len(valid) != len(cases) {
		t.Errorf("valid = %d, want %d", len(valid), len(cases))
	}

	var formCase *domain.TestCase
	for i := range cases {
		if strings.HasPrefix(cases[i].TestID, "form-") {
			formCase = &cases[i]
		}
	}
	if formCase == nil {
		t.Fatal("expected a form-submit case")
	}
	var emailValue string
	for _, step := range formCase.Steps {
		if step.Selector == `input[name="email"]` {
			emailValue = step.Value
		}
	}
	if emailValue != "test@example.com" {
		t.Errorf("email fill value = %q", emailValue)
	}
}

func TestValueForField(t *testing.T) {
	cases := []struct {
		field domain.FormField
		want  string
	}{
		{domain.FormField{Name: "email", FieldType: "email"}, "test@example.com"},
		{domain.FormField{Name: "password", FieldType: "password"}, "TestP@ssw0rd123"},
		{domain.FormField{Name: "full_name", FieldType: "text"}, "Test User"},
		{domain.FormField{Name: "country", FieldType: "select", Options: []string{"US", "DE"}}, "US"},
		{domain.FormField{Name: "q", FieldType: "text"}, "test"},
	}
	for _, tc := range cases {
		if got := valueForField(tc.field); got != tc.want {
			t.Errorf("valueForField(%s/%s) = %q, want %q", tc.field.Name, tc.field.FieldType, got, tc.want)
		}
	}
}
