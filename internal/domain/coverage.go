package domain

import "time"

// DefaultHistoryRetention bounds how many run summaries a signature keeps.
const DefaultHistoryRetention = 10

// TestResultSummary is one row of a signature's history.
type TestResultSummary struct {
	RunID         string        `json:"run_id"`
	Timestamp     time.Time     `json:"timestamp"`
	Result        ResultStatus  `json:"result"`
	Duration      time.Duration `json:"duration"`
	FailureReason string        `json:"failure_reason,omitempty"`
}

// SignatureRecord accumulates all runs of one coverage signature within a
// (page, category). At most one record exists per signature.
type SignatureRecord struct {
	Signature  string              `json:"signature"`
	LastTested time.Time           `json:"last_tested"`
	LastResult ResultStatus        `json:"last_result"`
	TestCount  int                 `json:"test_count"`
	History    []TestResultSummary `json:"history"`
}

// IsRegression reports whether the last two history entries transitioned
// pass -> fail.
func (r *SignatureRecord) IsRegression() bool {
	n := len(r.History)
	if n < 2 {
		return false
	}
	return r.History[n-2].Result == ResultPass && r.History[n-1].Result == ResultFail
}

// CategoryCoverage holds the signature records for one category of one page.
type CategoryCoverage struct {
	Category         TestCategory       `json:"category"`
	SignaturesTested []*SignatureRecord `json:"signatures_tested"`
	CoverageScore    float64            `json:"coverage_score"`
	LastTested       time.Time          `json:"last_tested"`
}

// Record returns the signature record with the given signature, or nil.
func (c *CategoryCoverage) Record(signature string) *SignatureRecord {
	for _, r := range c.SignaturesTested {
		if r.Signature == signature {
			return r
		}
	}
	return nil
}

// PageCoverage holds per-category coverage for one page.
type PageCoverage struct {
	PageID     string                             `json:"page_id"`
	URL        string                             `json:"url,omitempty"`
	PageType   PageType                           `json:"page_type,omitempty"`
	Categories map[TestCategory]*CategoryCoverage `json:"categories"`
	LastTested time.Time                          `json:"last_tested"`
	TestCount  int                                `json:"test_count"`
}

// GlobalStats summarize the registry across all pages.
type GlobalStats struct {
	TotalPages      int                      `json:"total_pages"`
	PagesTested     int                      `json:"pages_tested"`
	OverallScore    float64                  `json:"overall_score"`
	CategoryScores  map[TestCategory]float64 `json:"category_scores"`
	LastFullRun     time.Time                `json:"last_full_run"`
	RegressionCount int                      `json:"regression_count"`
}

// CoverageRegistry is the engine's only long-lived state: signature-keyed
// test history per (page, category), persisted between runs.
type CoverageRegistry struct {
	TargetURL   string                   `json:"target_url"`
	LastUpdated time.Time                `json:"last_updated"`
	Pages       map[string]*PageCoverage `json:"pages"`
	GlobalStats GlobalStats              `json:"global_stats"`
}

// NewCoverageRegistry creates an empty registry for a target.
func NewCoverageRegistry(targetURL string) *CoverageRegistry {
	return &CoverageRegistry{
		TargetURL: targetURL,
		Pages:     make(map[string]*PageCoverage),
	}
}

// Page returns the page coverage entry, creating it if absent.
func (r *CoverageRegistry) Page(pageID string) *PageCoverage {
	if r.Pages == nil {
		r.Pages = make(map[string]*PageCoverage)
	}
	pc, ok := r.Pages[pageID]
	if !ok {
		pc = &PageCoverage{
			PageID:     pageID,
			Categories: make(map[TestCategory]*CategoryCoverage),
		}
		r.Pages[pageID] = pc
	}
	return pc
}

// Category returns the category coverage for a page, creating it if absent.
func (p *PageCoverage) Category(cat TestCategory) *CategoryCoverage {
	if p.Categories == nil {
		p.Categories = make(map[TestCategory]*CategoryCoverage)
	}
	cc, ok := p.Categories[cat]
	if !ok {
		cc = &CategoryCoverage{Category: cat}
		p.Categories[cat] = cc
	}
	return cc
}

// GapKind classifies why a region of the site needs planner attention.
type GapKind string

const (
	GapUntested      GapKind = "untested"
	GapStale         GapKind = "stale"
	GapLowCoverage   GapKind = "low_coverage"
	GapRecentFailure GapKind = "recent_failure"
)

// CoverageGap is one region the planner should concentrate on.
type CoverageGap struct {
	Kind      GapKind      `json:"kind"`
	PageID    string       `json:"page_id"`
	URL       string       `json:"url,omitempty"`
	Category  TestCategory `json:"category,omitempty"`
	Signature string       `json:"signature,omitempty"`
	Detail    string       `json:"detail,omitempty"`
}

// GapReport is the gap analyzer's output, consumed by the planner.
type GapReport struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Gaps        []CoverageGap `json:"gaps"`
}
