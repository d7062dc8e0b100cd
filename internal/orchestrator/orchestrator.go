// Package orchestrator threads the pipeline: crawl, plan, execute, merge the
// coverage registry, and emit reports. Each stage is also exposed separately
// so the CLI can run them one at a time against persisted intermediates.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/browser"
	"github.com/webprobe/webprobe/internal/config"
	"github.com/webprobe/webprobe/internal/coverage"
	"github.com/webprobe/webprobe/internal/discovery"
	"github.com/webprobe/webprobe/internal/domain"
	"github.com/webprobe/webprobe/internal/executor"
	"github.com/webprobe/webprobe/internal/llm"
	"github.com/webprobe/webprobe/internal/observability"
	"github.com/webprobe/webprobe/internal/planner"
	"github.com/webprobe/webprobe/internal/regression"
	"github.com/webprobe/webprobe/internal/reporting"
	"github.com/webprobe/webprobe/internal/repository/postgres"
	"github.com/webprobe/webprobe/internal/storage"
)

// Orchestrator owns the pipeline stages and their shared state on disk.
// completer, metrics, runs, and artifacts are all optional.
type Orchestrator struct {
	cfg       *config.Config
	llm       llm.Completer
	metrics   *observability.Metrics
	runs      *postgres.RunRepository
	artifacts *storage.ArtifactStore
	logger    *zap.Logger

	store *coverage.Store

	onCrawlProgress func(done, total int)
}

func New(cfg *config.Config, completer llm.Completer, metrics *observability.Metrics, runs *postgres.RunRepository, artifacts *storage.ArtifactStore, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		llm:       completer,
		metrics:   metrics,
		runs:      runs,
		artifacts: artifacts,
		logger:    logger,
		store:     coverage.NewStore(cfg.StateDir, logger),
	}
}

// SetCrawlProgress registers a progress callback for the crawl stage.
func (o *Orchestrator) SetCrawlProgress(fn func(done, total int)) {
	o.onCrawlProgress = fn
}

// Run executes the full pipeline end to end.
func (o *Orchestrator) Run(ctx context.Context) (*domain.RunResult, error) {
	site, err := o.Crawl(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := o.Plan(ctx, site)
	if err != nil {
		return nil, err
	}

	run, err := o.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}

	if err := o.MergeAndReport(ctx, site, run); err != nil {
		return run, err
	}
	return run, nil
}

// Crawl discovers the site surface, resolving authentication first when it is
// configured, and persists the site model.
func (o *Orchestrator) Crawl(ctx context.Context) (*domain.SiteModel, error) {
	started := time.Now()

	runtime, err := browser.NewRuntime(o.cfg.Crawl.Headless, o.logger)
	if err != nil {
		return nil, err
	}
	defer runtime.Close()

	var storageState []byte
	authCfg := o.cfg.AuthDomain()
	var authFlow *domain.AuthFlow
	if authCfg.Enabled() {
		resolver := discovery.NewAuthResolver(runtime, o.llm, o.logger)
		result := resolver.Resolve(ctx, authCfg)
		if result.Success {
			storageState = result.StorageState
			authFlow = result.AuthFlow
			o.saveAuthState(storageState)
		} else {
			// Unresolved auth degrades, it does not abort: public pages are
			// still worth crawling, and the probe pass will mark the rest.
			o.logger.Warn("authentication unresolved, crawling unauthenticated",
				zap.String("error", result.Error))
		}
	}

	crawler := discovery.NewCrawler(runtime, discovery.CrawlConfig{
		MaxPages:        o.cfg.Crawl.MaxPages,
		MaxDepth:        o.cfg.Crawl.MaxDepth,
		Timeout:         o.cfg.Crawl.Timeout,
		IncludePatterns: o.cfg.Crawl.IncludePatterns,
		ExcludePatterns: o.cfg.Crawl.ExcludePatterns,
		LoginPath:       o.cfg.Crawl.LoginPath,
		ProbeTimeout:    o.cfg.Crawl.ProbeTimeout,
		StateDir:        o.cfg.StateDir,
		Auth:            authCfg,
	}, o.logger)

	if o.onCrawlProgress != nil {
		crawler.SetProgressCallback(o.onCrawlProgress)
	}

	site, err := crawler.Crawl(ctx, o.cfg.TargetURL, storageState)
	if err != nil {
		return nil, err
	}
	site.AuthFlow = authFlow

	if err := o.SaveSiteModel(site); err != nil {
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.RecordCrawl(len(site.Pages), time.Since(started))
	}
	o.logger.Info("crawl complete",
		zap.Int("pages", len(site.Pages)),
		zap.Duration("took", time.Since(started)))
	return site, nil
}

// Plan loads the coverage registry, derives gaps, and generates a test plan.
func (o *Orchestrator) Plan(ctx context.Context, site *domain.SiteModel) (*domain.TestPlan, error) {
	registry, err := o.store.Load(o.cfg.TargetURL)
	if err != nil {
		return nil, err
	}

	gaps := coverage.NewGapAnalyzer(o.cfg.Planner.StalenessDays).Analyze(site, registry)

	p := planner.New(o.llm, planner.Config{
		Categories:          o.cfg.Planner.Categories,
		MaxTests:            o.cfg.Planner.MaxTests,
		VisualDiffTolerance: o.cfg.Planner.VisualDiffTolerance,
		Viewports:           o.cfg.Planner.Viewports,
		Hints:               o.cfg.Planner.Hints,
		DebugDir:            filepath.Join(o.cfg.StateDir, "debug"),
	}, o.logger)

	plan, err := p.Plan(ctx, site, gaps, o.cfg.AuthDomain())
	if err != nil {
		return nil, err
	}

	if err := o.SavePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Execute runs the plan. Authentication state is resolved lazily, only when
// the first test requiring it starts.
func (o *Orchestrator) Execute(ctx context.Context, plan *domain.TestPlan) (*domain.RunResult, error) {
	runtime, err := browser.NewRuntime(o.cfg.Crawl.Headless, o.logger)
	if err != nil {
		return nil, err
	}
	defer runtime.Close()

	runID := uuid.NewString()
	runDir := filepath.Join(o.cfg.RunsDir, runID)

	authProvider := o.authProvider(runtime)

	exec := executor.New(runtime, executor.Config{
		RunID:                 runID,
		MaxParallelContexts:   o.cfg.Executor.MaxParallelContexts,
		MaxExecutionTime:      o.cfg.Executor.MaxExecutionTime,
		MaxFallbackCalls:      o.cfg.Executor.MaxFallbackCalls,
		FlakeDetection:        o.cfg.Executor.FlakeDetection,
		SmartResolve:          o.cfg.Executor.SmartResolve,
		DefaultTimeoutSeconds: o.cfg.Executor.DefaultTimeoutSeconds,
		RunDir:                runDir,
		BaselineDir:           filepath.Join(o.cfg.StateDir, "site_model", "baselines"),
		Auth:                  o.cfg.AuthDomain(),
	}, o.llm, authProvider, o.logger)

	run := exec.Execute(ctx, plan)

	if o.metrics != nil {
		for _, tr := range run.TestResults {
			o.metrics.RecordTestExecution(string(tr.Result), string(tr.Category), 1)
		}
	}
	o.logger.Info("execution complete",
		zap.String("run_id", run.RunID),
		zap.Int("total", run.Totals.Total),
		zap.Int("passed", run.Totals.Passed),
		zap.Int("failed", run.Totals.Failed))
	return run, nil
}

// authProvider returns the lazy storage-state source for the executor.
// Previously captured state is reused; otherwise a fresh login is performed.
func (o *Orchestrator) authProvider(runtime *browser.Runtime) executor.StorageStateProvider {
	authCfg := o.cfg.AuthDomain()
	if !authCfg.Enabled() {
		return nil
	}
	return func(ctx context.Context) ([]byte, error) {
		if state := o.loadAuthState(); state != nil {
			return state, nil
		}
		resolver := discovery.NewAuthResolver(runtime, o.llm, o.logger)
		result := resolver.Resolve(ctx, authCfg)
		if !result.Success {
			return nil, fmt.Errorf("authentication failed: %s", result.Error)
		}
		o.saveAuthState(result.StorageState)
		return result.StorageState, nil
	}
}

// MergeAndReport folds the run into the coverage registry, detects
// regressions against the previous run, persists everything, and writes
// reports.
func (o *Orchestrator) MergeAndReport(ctx context.Context, site *domain.SiteModel, run *domain.RunResult) error {
	registry, err := o.store.Load(o.cfg.TargetURL)
	if err != nil {
		return err
	}

	merger := coverage.NewMerger(o.cfg.Planner.HistoryRetention, o.logger)
	merger.Merge(registry, run, site)
	if err := o.store.Save(registry); err != nil {
		return err
	}

	var transitions []regression.Transition
	if o.runs != nil {
		previous, err := o.runs.Previous(ctx, run.TargetURL, run.RunID)
		if err == nil {
			transitions = regression.Detect(previous, run)
		} else if err != postgres.ErrRunNotFound {
			o.logger.Warn("previous run lookup failed", zap.Error(err))
		}
	}

	if o.llm != nil {
		run.AISummary = o.summarizeRun(ctx, run, transitions)
	}

	if o.metrics != nil {
		o.metrics.RecordRun(runStatus(run))
		o.metrics.RecordRegressions(len(transitions))
		scores := make(map[string]float64, len(registry.GlobalStats.CategoryScores))
		for cat, score := range registry.GlobalStats.CategoryScores {
			scores[string(cat)] = score
		}
		o.metrics.RecordCoverage(scores)
	}

	reporter, err := reporting.New(o.cfg.Report.Formats, o.cfg.Report.OutputDir, o.logger)
	if err != nil {
		return err
	}
	if _, err := reporter.Write(run, registry, transitions); err != nil {
		return err
	}

	if o.runs != nil {
		if err := o.runs.Save(ctx, run); err != nil {
			o.logger.Warn("run history save failed", zap.Error(err))
		}
	}

	if o.artifacts != nil {
		runDir := filepath.Join(o.cfg.RunsDir, run.RunID)
		if uploaded, err := o.artifacts.MirrorRun(ctx, run.RunID, runDir); err != nil {
			o.logger.Warn("artifact mirror failed", zap.Error(err))
		} else {
			o.logger.Info("artifacts mirrored", zap.Int("objects", uploaded))
		}
	}

	return nil
}

const runSummarySystemPrompt = `You write a short QA run summary for engineers. Given run statistics and failures, respond with 3-5 plain sentences: overall health, what broke, and what to look at first. No markdown, no preamble.`

// summarizeRun asks the LLM for a human-oriented digest. Failures here never
// fail the pipeline.
func (o *Orchestrator) summarizeRun(ctx context.Context, run *domain.RunResult, transitions []regression.Transition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s\nTotal %d, passed %d, failed %d, errors %d, skipped %d\n",
		run.TargetURL, run.Totals.Total, run.Totals.Passed, run.Totals.Failed,
		run.Totals.Errors, run.Totals.Skipped)

	for _, tr := range run.TestResults {
		if tr.Result == domain.ResultFail || tr.Result == domain.ResultError {
			fmt.Fprintf(&b, "- %s [%s]: %s\n", tr.Name, tr.Result, tr.FailureReason)
		}
	}
	for _, t := range transitions {
		fmt.Fprintf(&b, "REGRESSION: %s went %s -> %s\n", t.TestName, t.Previous, t.Current)
	}

	summary, err := o.llm.Complete(ctx, runSummarySystemPrompt, b.String())
	if err != nil {
		o.logger.Warn("run summary generation failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(summary)
}

func runStatus(run *domain.RunResult) string {
	if run.Totals.Failed > 0 || run.Totals.Errors > 0 {
		return "failed"
	}
	return "passed"
}

// SaveSiteModel persists the crawler output.
func (o *Orchestrator) SaveSiteModel(site *domain.SiteModel) error {
	dir := filepath.Join(o.cfg.StateDir, "site_model")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating site model dir: %w", err)
	}
	data, err := json.MarshalIndent(site, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding site model: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "model.json"), data, 0o644)
}

// LoadSiteModel reads the persisted site model.
func (o *Orchestrator) LoadSiteModel() (*domain.SiteModel, error) {
	data, err := os.ReadFile(filepath.Join(o.cfg.StateDir, "site_model", "model.json"))
	if err != nil {
		return nil, fmt.Errorf("reading site model (run crawl first): %w", err)
	}
	var site domain.SiteModel
	if err := json.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("parsing site model: %w", err)
	}
	return &site, nil
}

// SavePlan persists the latest test plan.
func (o *Orchestrator) SavePlan(plan *domain.TestPlan) error {
	if err := os.MkdirAll(o.cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	return os.WriteFile(filepath.Join(o.cfg.StateDir, "latest_plan.json"), data, 0o644)
}

// LoadPlan reads a plan from the given path, or the latest persisted plan
// when path is empty.
func (o *Orchestrator) LoadPlan(path string) (*domain.TestPlan, error) {
	if path == "" {
		path = filepath.Join(o.cfg.StateDir, "latest_plan.json")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan (run plan first): %w", err)
	}
	var plan domain.TestPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	return &plan, nil
}

// Registry exposes the persisted coverage registry for the CLI.
func (o *Orchestrator) Registry() (*domain.CoverageRegistry, error) {
	return o.store.Load(o.cfg.TargetURL)
}

// ResetCoverage wipes the coverage registry.
func (o *Orchestrator) ResetCoverage() error {
	return o.store.Reset()
}

// Gaps computes the gap report from persisted state.
func (o *Orchestrator) Gaps() (*domain.GapReport, error) {
	site, err := o.LoadSiteModel()
	if err != nil {
		return nil, err
	}
	registry, err := o.store.Load(o.cfg.TargetURL)
	if err != nil {
		return nil, err
	}
	return coverage.NewGapAnalyzer(o.cfg.Planner.StalenessDays).Analyze(site, registry), nil
}

func (o *Orchestrator) authStatePath() string {
	return filepath.Join(o.cfg.StateDir, "auth", "state.json")
}

func (o *Orchestrator) saveAuthState(state []byte) {
	if len(state) == 0 {
		return
	}
	dir := filepath.Dir(o.authStatePath())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		o.logger.Warn("auth state dir creation failed", zap.Error(err))
		return
	}
	// storage state holds session cookies, keep it private
	if err := os.WriteFile(o.authStatePath(), state, 0o600); err != nil {
		o.logger.Warn("auth state save failed", zap.Error(err))
	}
}

func (o *Orchestrator) loadAuthState() []byte {
	data, err := os.ReadFile(o.authStatePath())
	if err != nil {
		return nil
	}
	return data
}
