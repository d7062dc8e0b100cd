package executor

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/browser"
	"github.com/webprobe/webprobe/internal/domain"
	"github.com/webprobe/webprobe/internal/llm"
	"github.com/webprobe/webprobe/internal/urlnorm"
)

// Config holds executor settings for one run.
type Config struct {
	// RunID identifies the run; empty means a fresh UUID.
	RunID                 string
	MaxParallelContexts   int
	MaxExecutionTime      time.Duration
	MaxFallbackCalls      int
	FlakeDetection        bool
	SmartResolve          bool
	DefaultTimeoutSeconds int
	// RunDir is runs/<run_id>; evidence goes under it.
	RunDir string
	// BaselineDir holds screenshot baselines keyed by page_id.
	BaselineDir string
	// Auth carries the modes whose state rides in session options (header,
	// basic) rather than in captured storage state.
	Auth *domain.AuthConfig
}

func (c *Config) timeoutMs() float64 {
	secs := c.DefaultTimeoutSeconds
	if secs <= 0 {
		secs = 30
	}
	return float64(secs) * 1000
}

// StorageStateProvider produces an authenticated storage-state blob. It is
// invoked at most once, when the first test requiring auth starts.
type StorageStateProvider func(ctx context.Context) ([]byte, error)

// Executor runs a test plan against the target, each test in an isolated
// browser context.
type Executor struct {
	runtime  *browser.Runtime
	cfg      Config
	actions  *ActionRunner
	checker  *AssertionChecker
	fallback *FallbackAgent
	evidence *EvidenceCollector
	logger   *zap.Logger

	authProvider StorageStateProvider
	authOnce     sync.Once
	authState    []byte
}

// New creates an executor. completer may be nil; AI fallback then always
// skips and ai_evaluate assertions fail. authProvider may be nil when no
// test requires auth.
func New(runtime *browser.Runtime, cfg Config, completer llm.Completer, authProvider StorageStateProvider, logger *zap.Logger) *Executor {
	resolver := NewResolver(cfg.SmartResolve, logger)
	return &Executor{
		runtime:      runtime,
		cfg:          cfg,
		actions:      NewActionRunner(resolver, logger),
		checker:      NewAssertionChecker(completer, cfg.BaselineDir, logger),
		fallback:     NewFallbackAgent(completer, logger),
		evidence:     NewEvidenceCollector(cfg.RunDir, logger),
		logger:       logger,
		authProvider: authProvider,
	}
}

// Execute runs the plan and returns the run result. Tests are ordered by
// priority, grouped by target page, and distributed over a bounded worker
// pool. Tests not started before the global time budget expires are skipped.
func (e *Executor) Execute(ctx context.Context, plan *domain.TestPlan) *domain.RunResult {
	runID := e.cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	result := &domain.RunResult{
		RunID:     runID,
		PlanID:    plan.PlanID,
		TargetURL: plan.TargetURL,
		StartedAt: time.Now(),
	}

	budget := e.cfg.MaxExecutionTime
	if budget <= 0 {
		budget = 15 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	groups := groupByTargetPage(plan.TestCases)

	workers := e.cfg.MaxParallelContexts
	if workers < 1 {
		workers = 1
	}

	groupCh := make(chan []domain.TestCase)
	resultCh := make(chan domain.TestResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range groupCh {
				for _, tc := range group {
					resultCh <- e.runTest(runCtx, tc)
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for tr := range resultCh {
			result.TestResults = append(result.TestResults, tr)
		}
		close(done)
	}()

	for _, group := range groups {
		groupCh <- group
	}
	close(groupCh)
	wg.Wait()
	close(resultCh)
	<-done

	result.CompletedAt = time.Now()
	result.ComputeTotals()
	return result
}

// groupByTargetPage sorts by priority (1 is highest) and then gathers tests
// sharing a target page into one group so a worker visits related pages
// back to back.
func groupByTargetPage(cases []domain.TestCase) [][]domain.TestCase {
	sorted := make([]domain.TestCase, len(cases))
	copy(sorted, cases)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	index := map[string]int{}
	var groups [][]domain.TestCase
	for _, tc := range sorted {
		key := tc.TargetPageID
		if key == "" {
			key = tc.TestID
		}
		if i, ok := index[key]; ok {
			groups[i] = append(groups[i], tc)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, []domain.TestCase{tc})
	}
	return groups
}

func (e *Executor) runTest(ctx context.Context, tc domain.TestCase) domain.TestResult {
	if ctx.Err() != nil {
		return domain.TestResult{
			TestID:            tc.TestID,
			Name:              tc.Name,
			Category:          tc.Category,
			Priority:          tc.Priority,
			TargetPageID:      tc.TargetPageID,
			CoverageSignature: tc.CoverageSignature,
			Result:            domain.ResultSkip,
			FailureReason:     "Time limit reached",
		}
	}

	tr := e.runAttempt(ctx, tc, "")

	// A failing test gets one evidence re-run with video. The original
	// verdict stands; a passing re-run only flags flakiness.
	if e.cfg.FlakeDetection && tr.Result == domain.ResultFail && ctx.Err() == nil {
		rerun := e.runAttempt(ctx, tc, tr.Evidence.Dir)
		if rerun.Result == domain.ResultPass {
			tr.PotentiallyFlaky = true
		}
		if rerun.Evidence.VideoPath != "" {
			tr.Evidence.VideoPath = rerun.Evidence.VideoPath
		}
	}

	return tr
}

func (e *Executor) runAttempt(ctx context.Context, tc domain.TestCase, videoDir string) domain.TestResult {
	started := time.Now()
	tr := domain.TestResult{
		TestID:            tc.TestID,
		Name:              tc.Name,
		Category:          tc.Category,
		Priority:          tc.Priority,
		TargetPageID:      tc.TargetPageID,
		CoverageSignature: tc.CoverageSignature,
	}

	substituteTimestamp(&tc)
	for _, token := range unknownPlaceholders(&tc) {
		e.logger.Warn("unrecognized placeholder left in place",
			zap.String("test_id", tc.TestID), zap.String("token", token))
	}

	opts := browser.SessionOptions{RecordVideoDir: videoDir}
	if tc.RequiresAuth {
		// An unresolved auth leaves the state empty; the test still runs and
		// fails on its own assertions when it observes login redirects.
		opts.StorageState = e.authStorageState(ctx)
		opts.ApplyAuth(e.cfg.Auth)
	}

	session, err := e.runtime.NewSession(opts)
	if err != nil {
		tr.Result = domain.ResultError
		tr.FailureReason = "browser session: " + err.Error()
		tr.Duration = time.Since(started)
		return tr
	}
	defer session.Close()

	monitor := NewSessionMonitor(session.Page)
	timeoutMs := e.cfg.timeoutMs()
	if tc.TimeoutSeconds > 0 {
		timeoutMs = float64(tc.TimeoutSeconds) * 1000
	}

	rerun := videoDir != ""

	// Preconditions are best-effort setup; their failures are recorded but
	// never fail the test.
	for i, action := range tc.Preconditions {
		e.evidence.Screenshot(session.Page, tc.TestID, preLabel(i, rerun)+"_before")
		sr, _ := e.runStep(ctx, session.Page, &tc, i, action, monitor, timeoutMs, nil, &tr)
		sr.ScreenshotPath = e.evidence.Screenshot(session.Page, tc.TestID, preLabel(i, rerun)+"_after")
		tr.PreconditionRes = append(tr.PreconditionRes, sr)
		if sr.Status == domain.StepFail {
			e.logger.Debug("precondition failed",
				zap.String("test_id", tc.TestID), zap.Int("index", i), zap.String("error", sr.Error))
		}
	}

	budget := e.cfg.MaxFallbackCalls
	if budget <= 0 {
		budget = DefaultFallbackBudget
	}
	aborted := false
	stepFailed := false

	// Only an explicit abort decision stops the test. A step that fails with
	// the budget exhausted is recorded and execution moves on.
	for i, action := range tc.Steps {
		e.evidence.Screenshot(session.Page, tc.TestID, stepLabel(i, rerun)+"_before")
		sr, abort := e.runStep(ctx, session.Page, &tc, i, action, monitor, timeoutMs, &budget, &tr)
		sr.ScreenshotPath = e.evidence.Screenshot(session.Page, tc.TestID, stepLabel(i, rerun)+"_after")
		tr.StepResults = append(tr.StepResults, sr)
		if sr.Status == domain.StepFail {
			stepFailed = true
		}
		if abort {
			aborted = true
			tr.StepResults = append(tr.StepResults, skippedTail(tc.Steps, i+1)...)
			break
		}
	}

	tr.AssertionsTotal = len(tc.Assertions)
	for i, assertion := range tc.Assertions {
		ar := domain.AssertionResult{Index: i, Assertion: assertion}
		if err := e.checker.Check(ctx, session.Page, assertion, monitor, tc.TargetPageID); err != nil {
			ar.Status = domain.StepFail
			ar.Error = err.Error()
			ar.ScreenshotPath = e.evidence.Screenshot(session.Page, tc.TestID, assertLabel(i, rerun))
			tr.AssertionsFailed++
		} else {
			ar.Status = domain.StepPass
			tr.AssertionsPassed++
		}
		tr.AssertionResults = append(tr.AssertionResults, ar)
	}

	tr.ActualURL = session.Page.URL()
	if tr.ActualURL != "" {
		tr.ActualPageID = urlnorm.PageID(tr.ActualURL)
	}

	tr.Result = deriveResult(aborted, stepFailed, tr.AssertionsFailed)
	if tr.Result != domain.ResultPass {
		if tr.FailureReason = firstStepError(tr.StepResults); tr.FailureReason == "" {
			tr.FailureReason = firstAssertionError(tr.AssertionResults)
		}
	}

	e.evidence.Finalize(session.Page, tc.TestID, monitor, &tr.Evidence)
	if videoDir != "" {
		if videoPath, err := session.VideoPath(); err == nil {
			tr.Evidence.VideoPath = videoPath
		}
	}

	tr.Duration = time.Since(started)
	return tr
}

// runStep executes one action, invoking the AI fallback on failure when a
// budget is supplied. Preconditions pass budget=nil and fail without recovery.
// The returned bool reports whether the fallback decided to abort the test.
func (e *Executor) runStep(ctx context.Context, page playwright.Page, tc *domain.TestCase, index int, action domain.Action, monitor *SessionMonitor, timeoutMs float64, budget *int, tr *domain.TestResult) (domain.StepResult, bool) {
	sr := domain.StepResult{Index: index, Action: action}
	started := time.Now()
	defer func() { sr.DurationMs = time.Since(started).Milliseconds() }()

	for {
		strategy, err := e.actions.Run(page, action, timeoutMs)
		if err == nil {
			sr.Status = domain.StepPass
			if strategy != "" && strategy != "original" {
				sr.StrategyUsed = strategy
			}
			if n := len(tr.FallbackRecords); n > 0 && tr.FallbackRecords[n-1].StepIndex == index {
				tr.FallbackRecords[n-1].Succeeded = true
			}
			return sr, false
		}

		if budget == nil || *budget <= 0 || ctx.Err() != nil {
			sr.Status = domain.StepFail
			sr.Error = err.Error()
			return sr, false
		}
		*budget--

		record := e.fallback.Consult(ctx, page, tc, index, action, err, monitor)
		tr.FallbackRecords = append(tr.FallbackRecords, record)
		e.logger.Info("fallback decision",
			zap.String("test_id", tc.TestID),
			zap.Int("step", index),
			zap.String("decision", string(record.Decision)),
			zap.String("reasoning", record.Reasoning))

		switch record.Decision {
		case domain.FallbackRetry:
			// same action, another attempt

		case domain.FallbackAdapt:
			sr.Adapted = true
			if record.NewAction != nil {
				action = *record.NewAction
			} else if record.NewSelector != "" {
				action.Selector = record.NewSelector
			}
			sr.Action = action

		case domain.FallbackSkip:
			sr.Status = domain.StepSkip
			sr.Error = err.Error()
			return sr, false

		default: // abort
			sr.Status = domain.StepFail
			sr.Error = err.Error()
			return sr, true
		}
	}
}

// deriveResult maps the attempt's outcomes onto the final status. An abort
// with no failing assertions is an error (the test never reached a verdict);
// any other failure is a plain fail.
func deriveResult(aborted, stepFailed bool, assertionsFailed int) domain.ResultStatus {
	switch {
	case aborted && assertionsFailed == 0:
		return domain.ResultError
	case aborted || stepFailed || assertionsFailed > 0:
		return domain.ResultFail
	default:
		return domain.ResultPass
	}
}

// substituteTimestamp replaces the {{$timestamp}} token in all action values
// with one snapshot taken at test start, so every occurrence within a test
// agrees.
func substituteTimestamp(tc *domain.TestCase) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	replace := func(actions []domain.Action) {
		for i := range actions {
			actions[i].Value = strings.ReplaceAll(actions[i].Value, domain.PlaceholderTimestamp, now)
		}
	}
	tc.Preconditions = append([]domain.Action(nil), tc.Preconditions...)
	tc.Steps = append([]domain.Action(nil), tc.Steps...)
	replace(tc.Preconditions)
	replace(tc.Steps)
}

var placeholderPattern = regexp.MustCompile(`\{\{\$\w+\}\}`)

// unknownPlaceholders lists dynamic tokens still present after substitution.
// They stay in place; the executor only warns about them.
func unknownPlaceholders(tc *domain.TestCase) []string {
	seen := map[string]bool{}
	var tokens []string
	scan := func(value string) {
		for _, token := range placeholderPattern.FindAllString(value, -1) {
			if !seen[token] {
				seen[token] = true
				tokens = append(tokens, token)
			}
		}
	}
	for _, a := range tc.Preconditions {
		scan(a.Value)
	}
	for _, a := range tc.Steps {
		scan(a.Value)
	}
	for _, assertion := range tc.Assertions {
		scan(assertion.ExpectedValue)
	}
	return tokens
}

func (e *Executor) authStorageState(ctx context.Context) []byte {
	e.authOnce.Do(func() {
		if e.authProvider == nil {
			return
		}
		state, err := e.authProvider(ctx)
		if err != nil {
			e.logger.Warn("authentication unavailable, auth tests run with empty storage state",
				zap.Error(err))
			return
		}
		e.authState = state
	})
	return e.authState
}

// skippedTail marks the steps an abort never reached.
func skippedTail(steps []domain.Action, from int) []domain.StepResult {
	var tail []domain.StepResult
	for j := from; j < len(steps); j++ {
		tail = append(tail, domain.StepResult{
			Index:  j,
			Action: steps[j],
			Status: domain.StepSkip,
			Error:  "aborted",
		})
	}
	return tail
}

func stepLabel(i int, rerun bool) string {
	label := "step_" + pad2(i)
	if rerun {
		label = "rerun_" + label
	}
	return label
}

func preLabel(i int, rerun bool) string {
	label := "pre_" + pad2(i)
	if rerun {
		label = "rerun_" + label
	}
	return label
}

func assertLabel(i int, rerun bool) string {
	label := "assert_" + pad2(i)
	if rerun {
		label = "rerun_" + label
	}
	return label
}

func pad2(i int) string {
	if i < 10 {
		return "0" + strconv.Itoa(i)
	}
	return strconv.Itoa(i)
}

func firstStepError(steps []domain.StepResult) string {
	for _, sr := range steps {
		if sr.Status == domain.StepFail && sr.Error != "" {
			return sr.Error
		}
	}
	return ""
}

func firstAssertionError(assertions []domain.AssertionResult) string {
	for _, ar := range assertions {
		if ar.Status == domain.StepFail && ar.Error != "" {
			return ar.Error
		}
	}
	return ""
}
