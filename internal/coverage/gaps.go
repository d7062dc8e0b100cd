package coverage

import (
	"fmt"
	"sort"
	"time"

	"github.com/webprobe/webprobe/internal/domain"
)

const lowCoverageThreshold = 0.5

// GapAnalyzer finds the regions of the site the next plan should concentrate
// on.
type GapAnalyzer struct {
	stalenessDays int
}

func NewGapAnalyzer(stalenessDays int) *GapAnalyzer {
	if stalenessDays <= 0 {
		stalenessDays = 7
	}
	return &GapAnalyzer{stalenessDays: stalenessDays}
}

// Analyze compares the site model against the registry. Pages absent from
// the registry are untested; tested pages can be stale, low-coverage per
// category, or carry recently failing signatures.
func (ga *GapAnalyzer) Analyze(model *domain.SiteModel, registry *domain.CoverageRegistry) *domain.GapReport {
	report := &domain.GapReport{GeneratedAt: time.Now()}
	staleBefore := time.Now().AddDate(0, 0, -ga.stalenessDays)

	for _, page := range model.Pages {
		pc, tested := registry.Pages[page.PageID]
		if !tested {
			report.Gaps = append(report.Gaps, domain.CoverageGap{
				Kind:   domain.GapUntested,
				PageID: page.PageID,
				URL:    page.URL,
				Detail: fmt.Sprintf("%s page has never been tested", page.PageType),
			})
			continue
		}

		if pc.LastTested.Before(staleBefore) {
			report.Gaps = append(report.Gaps, domain.CoverageGap{
				Kind:   domain.GapStale,
				PageID: page.PageID,
				URL:    page.URL,
				Detail: fmt.Sprintf("last tested %s", pc.LastTested.Format("2006-01-02")),
			})
		}

		for _, cat := range sortedCategories(pc.Categories) {
			cc := pc.Categories[cat]
			if len(cc.SignaturesTested) > 0 && cc.CoverageScore < lowCoverageThreshold {
				report.Gaps = append(report.Gaps, domain.CoverageGap{
					Kind:     domain.GapLowCoverage,
					PageID:   page.PageID,
					URL:      page.URL,
					Category: cat,
					Detail:   fmt.Sprintf("coverage score %.2f", cc.CoverageScore),
				})
			}
			for _, record := range cc.SignaturesTested {
				if record.LastResult == domain.ResultFail || record.LastResult == domain.ResultError {
					report.Gaps = append(report.Gaps, domain.CoverageGap{
						Kind:      domain.GapRecentFailure,
						PageID:    page.PageID,
						URL:       page.URL,
						Category:  cat,
						Signature: record.Signature,
						Detail:    "last run did not pass",
					})
				}
			}
		}
	}

	return report
}

// sortedCategories gives map iteration a stable order so gap reports are
// reproducible.
func sortedCategories(m map[domain.TestCategory]*domain.CategoryCoverage) []domain.TestCategory {
	out := make([]domain.TestCategory, 0, len(m))
	for cat := range m {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
