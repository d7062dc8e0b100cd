package coverage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
)

func result(testID, pageID, signature string, status domain.ResultStatus) domain.TestResult {
	return domain.TestResult{
		TestID:            testID,
		Name:              testID,
		Category:          domain.CategoryFunctional,
		TargetPageID:      pageID,
		CoverageSignature: signature,
		Result:            status,
	}
}

func mergeOne(t *testing.T, registry *domain.CoverageRegistry, results ...domain.TestResult) {
	t.Helper()
	m := NewMerger(0, zap.NewNop())
	m.Merge(registry, &domain.RunResult{RunID: "run-1", TestResults: results}, nil)
}

func TestMerge_SignatureHistoryAppends(t *testing.T) {
	registry := domain.NewCoverageRegistry("https://example.com")
	m := NewMerger(0, zap.NewNop())

	for i, status := range []domain.ResultStatus{domain.ResultPass, domain.ResultPass, domain.ResultFail} {
		run := &domain.RunResult{
			RunID:       "run-" + string(rune('a'+i)),
			TestResults: []domain.TestResult{result("t1", "page-1", "login_form_submit_valid", status)},
		}
		m.Merge(registry, run, nil)
	}

	record := registry.Page("page-1").Category(domain.CategoryFunctional).Record("login_form_submit_valid")
	if record == nil {
		t.Fatal("signature record missing")
	}
	if record.TestCount != 3 || len(record.History) != 3 {
		t.Errorf("test_count=%d history=%d, want 3/3", record.TestCount, len(record.History))
	}
	if record.LastResult != domain.ResultFail {
		t.Errorf("last_result = %s", record.LastResult)
	}
	if !record.IsRegression() {
		t.Error("pass->fail tail must register as a regression")
	}
	if registry.GlobalStats.RegressionCount != 1 {
		t.Errorf("regression_count = %d, want 1", registry.GlobalStats.RegressionCount)
	}
}

func TestMerge_HistoryRetentionCap(t *testing.T) {
	registry := domain.NewCoverageRegistry("https://example.com")
	m := NewMerger(3, zap.NewNop())

	for i := 0; i < 10; i++ {
		run := &domain.RunResult{
			RunID:       "run",
			TestResults: []domain.TestResult{result("t1", "p", "sig", domain.ResultPass)},
		}
		m.Merge(registry, run, nil)
	}

	record := registry.Page("p").Category(domain.CategoryFunctional).Record("sig")
	if len(record.History) != 3 {
		t.Errorf("history length = %d, want retention cap 3", len(record.History))
	}
	if record.TestCount != 10 {
		t.Errorf("test_count = %d, truncation must not lose the total", record.TestCount)
	}
}

func TestMerge_PageAttributionFallbacks(t *testing.T) {
	registry := domain.NewCoverageRegistry("https://example.com")

	actual := result("t1", "target-page", "sig-a", domain.ResultPass)
	actual.ActualPageID = "actual-page"
	noTarget := result("t2", "", "sig-b", domain.ResultPass)

	mergeOne(t, registry, actual, noTarget)

	if _, ok := registry.Pages["actual-page"]; !ok {
		t.Error("actual page id must win over target page id")
	}
	if _, ok := registry.Pages["target-page"]; ok {
		t.Error("target page id must not be used when actual is known")
	}
	if _, ok := registry.Pages["t2"]; !ok {
		t.Error("test id is the attribution of last resort")
	}
}

func TestMerge_BackfillsPageFromSiteModel(t *testing.T) {
	registry := domain.NewCoverageRegistry("https://example.com")
	model := &domain.SiteModel{Pages: []*domain.PageModel{
		{PageID: "known", URL: "https://example.com/checkout", PageType: domain.PageTypeForm},
	}}

	known := result("t1", "known", "sig-a", domain.ResultPass)
	unknown := result("t2", "unknown", "sig-b", domain.ResultPass)
	unknown.ActualURL = "https://example.com/somewhere?step=2"

	m := NewMerger(0, zap.NewNop())
	m.Merge(registry, &domain.RunResult{RunID: "run-1", TestResults: []domain.TestResult{known, unknown}}, model)

	page := registry.Page("known")
	if page.URL != "https://example.com/checkout" {
		t.Errorf("URL = %q, want the site model's", page.URL)
	}
	if page.PageType != domain.PageTypeForm {
		t.Errorf("PageType = %q, want form", page.PageType)
	}

	// pages the model does not know fall back to where the test ended up
	if got := registry.Page("unknown").URL; got != "https://example.com/somewhere?step=2" {
		t.Errorf("fallback URL = %q", got)
	}
}

func TestMerge_MissingSignatureFallsBackToName(t *testing.T) {
	registry := domain.NewCoverageRegistry("https://example.com")
	tr := result("t1", "p", "", domain.ResultPass)
	tr.Name = "homepage smoke"

	mergeOne(t, registry, tr)

	if registry.Page("p").Category(domain.CategoryFunctional).Record("homepage smoke") == nil {
		t.Error("name must key the record when the signature is absent")
	}
}

func TestMerge_SkipsNeverTouchHistory(t *testing.T) {
	registry := domain.NewCoverageRegistry("https://example.com")
	mergeOne(t, registry, result("t1", "p", "sig", domain.ResultSkip))

	if len(registry.Pages) != 0 {
		t.Error("a skipped test must not create coverage state")
	}
}

func TestMerge_ScoreMonotonicity(t *testing.T) {
	registry := domain.NewCoverageRegistry("https://example.com")
	mergeOne(t, registry,
		result("t1", "p", "sig-1", domain.ResultPass),
		result("t2", "p", "sig-2", domain.ResultFail),
	)
	half := registry.GlobalStats.OverallScore
	if half != 0.5 {
		t.Fatalf("overall score = %f, want 0.5", half)
	}

	mergeOne(t, registry, result("t2", "p", "sig-2", domain.ResultPass))
	if registry.GlobalStats.OverallScore != 1.0 {
		t.Errorf("overall score after fix = %f, want 1.0", registry.GlobalStats.OverallScore)
	}
}

func TestGlobalStats_MeanAcrossCategories(t *testing.T) {
	registry := domain.NewCoverageRegistry("https://example.com")
	visual := result("t3", "p", "visual-sig", domain.ResultFail)
	visual.Category = domain.CategoryVisual

	mergeOne(t, registry,
		result("t1", "p", "sig-1", domain.ResultPass),
		visual,
	)

	stats := registry.GlobalStats
	if stats.CategoryScores[domain.CategoryFunctional] != 1.0 {
		t.Errorf("functional score = %f", stats.CategoryScores[domain.CategoryFunctional])
	}
	if stats.CategoryScores[domain.CategoryVisual] != 0.0 {
		t.Errorf("visual score = %f", stats.CategoryScores[domain.CategoryVisual])
	}
	if stats.OverallScore != 0.5 {
		t.Errorf("overall = %f, want mean of category means 0.5", stats.OverallScore)
	}
}

func TestStore_RoundTripAndReset(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, zap.NewNop())

	registry := domain.NewCoverageRegistry("https://example.com")
	mergeOne(t, registry, result("t1", "p", "sig", domain.ResultPass))

	if err := store.Save(registry); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load("https://example.com")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Page("p").Category(domain.CategoryFunctional).Record("sig") == nil {
		t.Error("round trip lost the signature record")
	}

	// no stray temp files after an atomic save
	entries, _ := os.ReadDir(filepath.Join(dir, "coverage"))
	for _, e := range entries {
		if e.Name() != "registry.json" {
			t.Errorf("unexpected file %s", e.Name())
		}
	}

	if err := store.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	fresh, err := store.Load("https://example.com")
	if err != nil {
		t.Fatalf("Load after reset: %v", err)
	}
	if len(fresh.Pages) != 0 {
		t.Error("reset must yield an empty registry")
	}
}

func TestStore_LoadMissingReturnsFresh(t *testing.T) {
	store := NewStore(t.TempDir(), zap.NewNop())
	registry, err := store.Load("https://example.com")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if registry.TargetURL != "https://example.com" || len(registry.Pages) != 0 {
		t.Errorf("fresh registry = %+v", registry)
	}
}

func TestGapAnalyzer(t *testing.T) {
	model := &domain.SiteModel{Pages: []*domain.PageModel{
		{PageID: "untested", URL: "https://example.com/new"},
		{PageID: "stale", URL: "https://example.com/old"},
		{PageID: "weak", URL: "https://example.com/weak"},
	}}

	registry := domain.NewCoverageRegistry("https://example.com")

	stalePage := registry.Page("stale")
	stalePage.LastTested = time.Now().AddDate(0, 0, -30)
	staleCat := stalePage.Category(domain.CategoryFunctional)
	staleCat.SignaturesTested = []*domain.SignatureRecord{
		{Signature: "ok", LastResult: domain.ResultPass},
	}
	staleCat.CoverageScore = 1.0

	weakPage := registry.Page("weak")
	weakPage.LastTested = time.Now()
	weakCat := weakPage.Category(domain.CategoryFunctional)
	weakCat.SignaturesTested = []*domain.SignatureRecord{
		{Signature: "broken", LastResult: domain.ResultFail},
		{Signature: "fine", LastResult: domain.ResultPass},
		{Signature: "also-broken", LastResult: domain.ResultError},
	}
	weakCat.CoverageScore = 1.0 / 3.0

	report := NewGapAnalyzer(7).Analyze(model, registry)

	kinds := map[domain.GapKind]int{}
	for _, g := range report.Gaps {
		kinds[g.Kind]++
	}
	if kinds[domain.GapUntested] != 1 {
		t.Errorf("untested gaps = %d", kinds[domain.GapUntested])
	}
	if kinds[domain.GapStale] != 1 {
		t.Errorf("stale gaps = %d", kinds[domain.GapStale])
	}
	if kinds[domain.GapLowCoverage] != 1 {
		t.Errorf("low-coverage gaps = %d", kinds[domain.GapLowCoverage])
	}
	if kinds[domain.GapRecentFailure] != 2 {
		t.Errorf("recent-failure gaps = %d", kinds[domain.GapRecentFailure])
	}
}
