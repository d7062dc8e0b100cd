package coverage

import (
	"time"

	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
)

// Merger folds run results into the coverage registry. It runs
// single-threaded after all executor workers have finished.
type Merger struct {
	retention int
	logger    *zap.Logger
}

// NewMerger creates a merger. retention bounds each signature's history
// length; zero means the default.
func NewMerger(retention int, logger *zap.Logger) *Merger {
	if retention <= 0 {
		retention = domain.DefaultHistoryRetention
	}
	return &Merger{retention: retention, logger: logger}
}

// Merge records every test result of the run into the registry and recomputes
// global statistics. Skipped tests never touch signature history; a skip says
// nothing about the feature.
func (m *Merger) Merge(registry *domain.CoverageRegistry, run *domain.RunResult, model *domain.SiteModel) {
	now := time.Now()

	for i := range run.TestResults {
		tr := &run.TestResults[i]
		if tr.Result == domain.ResultSkip {
			continue
		}
		m.mergeResult(registry, run.RunID, tr, model, now)
	}

	registry.LastUpdated = now
	m.recomputeStats(registry, model, now)
}

// mergeResult attributes one result to a page, category, and signature.
func (m *Merger) mergeResult(registry *domain.CoverageRegistry, runID string, tr *domain.TestResult, model *domain.SiteModel, now time.Time) {
	pageID := tr.ActualPageID
	if pageID == "" {
		pageID = tr.TargetPageID
	}
	if pageID == "" {
		pageID = tr.TestID
	}

	signature := tr.CoverageSignature
	if signature == "" {
		signature = tr.Name
		m.logger.Warn("test has no coverage signature, falling back to name",
			zap.String("test_id", tr.TestID), zap.String("name", tr.Name))
	}

	page := registry.Page(pageID)
	page.LastTested = now
	page.TestCount++
	if model != nil {
		if pm := model.PageByID(pageID); pm != nil {
			page.URL = pm.URL
			page.PageType = pm.PageType
		}
	}
	if page.URL == "" && tr.ActualURL != "" {
		page.URL = tr.ActualURL
	}

	category := page.Category(tr.Category)
	category.LastTested = now

	record := category.Record(signature)
	if record == nil {
		record = &domain.SignatureRecord{Signature: signature}
		category.SignaturesTested = append(category.SignaturesTested, record)
	}

	record.LastTested = now
	record.LastResult = tr.Result
	record.TestCount++
	record.History = append(record.History, domain.TestResultSummary{
		RunID:         runID,
		Timestamp:     now,
		Result:        tr.Result,
		Duration:      tr.Duration,
		FailureReason: tr.FailureReason,
	})
	if len(record.History) > m.retention {
		record.History = record.History[len(record.History)-m.retention:]
	}
}

// recomputeStats rebuilds global statistics from scratch.
// category_score = passed signatures / total signatures within a page;
// overall_score = mean across categories of the mean across pages.
func (m *Merger) recomputeStats(registry *domain.CoverageRegistry, model *domain.SiteModel, now time.Time) {
	stats := domain.GlobalStats{
		CategoryScores: make(map[domain.TestCategory]float64),
		LastFullRun:    now,
	}

	if model != nil {
		stats.TotalPages = len(model.Pages)
	} else {
		stats.TotalPages = len(registry.Pages)
	}
	stats.PagesTested = len(registry.Pages)

	categoryPageScores := make(map[domain.TestCategory][]float64)

	for _, page := range registry.Pages {
		for cat, cc := range page.Categories {
			total := len(cc.SignaturesTested)
			if total == 0 {
				continue
			}
			passed := 0
			for _, record := range cc.SignaturesTested {
				if record.LastResult == domain.ResultPass {
					passed++
				}
				if record.IsRegression() {
					stats.RegressionCount++
				}
			}
			cc.CoverageScore = float64(passed) / float64(total)
			categoryPageScores[cat] = append(categoryPageScores[cat], cc.CoverageScore)
		}
	}

	var sum float64
	for cat, scores := range categoryPageScores {
		var catSum float64
		for _, s := range scores {
			catSum += s
		}
		mean := catSum / float64(len(scores))
		stats.CategoryScores[cat] = mean
		sum += mean
	}
	if len(categoryPageScores) > 0 {
		stats.OverallScore = sum / float64(len(categoryPageScores))
	}

	registry.GlobalStats = stats
}
