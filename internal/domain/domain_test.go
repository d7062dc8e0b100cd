package domain

import (
	"errors"
	"testing"
	"time"
)

func TestElementID(t *testing.T) {
	a := ElementID("button#submit", 0)
	b := ElementID("button#submit", 0)
	if a != b {
		t.Error("ElementID should be deterministic")
	}
	if len(a) != 12 {
		t.Errorf("ElementID length = %d, want 12", len(a))
	}
	if ElementID("button#submit", 1) == a {
		t.Error("index should change the element id")
	}
}

func TestActionType_RequiresSelector(t *testing.T) {
	requires := []ActionType{ActionClick, ActionFill, ActionSelect, ActionHover}
	for _, at := range requires {
		if !at.RequiresSelector() {
			t.Errorf("%s should require a selector", at)
		}
	}
	free := []ActionType{ActionNavigate, ActionScroll, ActionWait, ActionScreenshot, ActionKeyboard}
	for _, at := range free {
		if at.RequiresSelector() {
			t.Errorf("%s should not require a selector", at)
		}
	}
}

func TestTestCase_Signature(t *testing.T) {
	tc := TestCase{Name: "login smoke", CoverageSignature: "login_form_submit_valid"}
	if tc.Signature() != "login_form_submit_valid" {
		t.Errorf("Signature() = %v", tc.Signature())
	}

	tc.CoverageSignature = ""
	if tc.Signature() != "login smoke" {
		t.Errorf("Signature() fallback = %v, want test name", tc.Signature())
	}
}

func TestRunResult_ComputeTotals(t *testing.T) {
	run := RunResult{
		TestResults: []TestResult{
			{Result: ResultPass},
			{Result: ResultPass},
			{Result: ResultFail},
			{Result: ResultSkip},
			{Result: ResultError},
		},
	}
	run.ComputeTotals()

	if run.Totals.Total != 5 {
		t.Errorf("Total = %d, want 5", run.Totals.Total)
	}
	if run.Totals.Passed != 2 || run.Totals.Failed != 1 || run.Totals.Skipped != 1 || run.Totals.Errors != 1 {
		t.Errorf("Totals = %+v", run.Totals)
	}
}

func TestSignatureRecord_IsRegression(t *testing.T) {
	now := time.Now()
	rec := SignatureRecord{
		History: []TestResultSummary{
			{Result: ResultPass, Timestamp: now.Add(-time.Hour)},
			{Result: ResultFail, Timestamp: now},
		},
	}
	if !rec.IsRegression() {
		t.Error("pass->fail should be a regression")
	}

	rec.History = []TestResultSummary{{Result: ResultFail}}
	if rec.IsRegression() {
		t.Error("single entry is never a regression")
	}

	rec.History = []TestResultSummary{
		{Result: ResultFail}, {Result: ResultFail},
	}
	if rec.IsRegression() {
		t.Error("fail->fail is not a regression")
	}
}

func TestCoverageRegistry_PageAndCategory(t *testing.T) {
	reg := NewCoverageRegistry("https://example.com")

	pc := reg.Page("abc123def456")
	if pc == nil || pc.PageID != "abc123def456" {
		t.Fatal("Page() should create an entry")
	}
	if reg.Page("abc123def456") != pc {
		t.Error("Page() should return the same entry on second call")
	}

	cc := pc.Category(CategoryFunctional)
	if cc.Category != CategoryFunctional {
		t.Errorf("Category = %v", cc.Category)
	}
	if pc.Category(CategoryFunctional) != cc {
		t.Error("Category() should return the same entry on second call")
	}
}

func TestAuthConfig_HasCredentials(t *testing.T) {
	var nilCfg *AuthConfig
	if nilCfg.Enabled() {
		t.Error("nil config should not be enabled")
	}

	cfg := &AuthConfig{
		Mode:     AuthModeCredentials,
		LoginURL: "https://example.com/login",
		Username: "u",
		Password: "p",
	}
	if !cfg.HasCredentials() {
		t.Error("fully configured credentials should report true")
	}

	cfg.Password = ""
	if cfg.HasCredentials() {
		t.Error("missing password should report false")
	}
}

func TestDomainError_Is(t *testing.T) {
	err := ErrCrawlFailed("browser died", errors.New("boom"))
	if !IsCode(err, ErrCodeCrawlFailed) {
		t.Error("IsCode should match the crawl failure code")
	}

	wrapped := WrapError(ErrLLMUnavailable, ErrCodePlanFailed, "planning failed")
	if !errors.Is(wrapped, ErrLLMUnavailable) {
		t.Error("errors.Is should find the wrapped sentinel")
	}
}
