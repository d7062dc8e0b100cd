package domain

import "time"

// StepStatus is the outcome of a single action or assertion.
type StepStatus string

const (
	StepPass StepStatus = "pass"
	StepFail StepStatus = "fail"
	StepSkip StepStatus = "skip"
)

// ResultStatus is the overall outcome of one test case.
type ResultStatus string

const (
	ResultPass  ResultStatus = "pass"
	ResultFail  ResultStatus = "fail"
	ResultSkip  ResultStatus = "skip"
	ResultError ResultStatus = "error"
)

// StepResult records the outcome of one executed action.
type StepResult struct {
	Index          int        `json:"index"`
	Action         Action     `json:"action"`
	Status         StepStatus `json:"status"`
	Error          string     `json:"error,omitempty"`
	ScreenshotPath string     `json:"screenshot_path,omitempty"`
	DurationMs     int64      `json:"duration_ms"`
	// StrategyUsed names the selector-resolution strategy that succeeded,
	// when it was not the original selector.
	StrategyUsed string `json:"strategy_used,omitempty"`
	Adapted      bool   `json:"adapted,omitempty"`
}

// AssertionResult records the outcome of one evaluated assertion.
type AssertionResult struct {
	Index          int        `json:"index"`
	Assertion      Assertion  `json:"assertion"`
	Status         StepStatus `json:"status"`
	Error          string     `json:"error,omitempty"`
	ScreenshotPath string     `json:"screenshot_path,omitempty"`
}

// FallbackDecision is the recovery choice returned by the step-failure LLM.
type FallbackDecision string

const (
	FallbackRetry FallbackDecision = "retry"
	FallbackAdapt FallbackDecision = "adapt"
	FallbackSkip  FallbackDecision = "skip"
	FallbackAbort FallbackDecision = "abort"
)

// FallbackRecord documents one AI-assisted recovery attempt during a test.
type FallbackRecord struct {
	StepIndex   int              `json:"step_index"`
	Decision    FallbackDecision `json:"decision"`
	NewSelector string           `json:"new_selector,omitempty"`
	NewAction   *Action          `json:"new_action,omitempty"`
	Reasoning   string           `json:"reasoning,omitempty"`
	Succeeded   bool             `json:"succeeded"`
}

// Evidence collects the artifact paths captured for one test.
type Evidence struct {
	Dir         string   `json:"dir,omitempty"`
	Screenshots []string `json:"screenshots,omitempty"`
	ConsoleLog  string   `json:"console_log,omitempty"`
	NetworkLog  string   `json:"network_log,omitempty"`
	DOMSnapshot string   `json:"dom_snapshot,omitempty"`
	VideoPath   string   `json:"video_path,omitempty"`
}

// TestResult is the full record of one executed test case.
type TestResult struct {
	TestID            string            `json:"test_id"`
	Name              string            `json:"name"`
	Category          TestCategory      `json:"category"`
	Priority          int               `json:"priority"`
	TargetPageID      string            `json:"target_page_id"`
	ActualPageID      string            `json:"actual_page_id,omitempty"`
	ActualURL         string            `json:"actual_url,omitempty"`
	CoverageSignature string            `json:"coverage_signature,omitempty"`
	Result            ResultStatus      `json:"result"`
	Duration          time.Duration     `json:"duration"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	Evidence          Evidence          `json:"evidence"`
	FallbackRecords   []FallbackRecord  `json:"fallback_records,omitempty"`
	PreconditionRes   []StepResult      `json:"precondition_results,omitempty"`
	StepResults       []StepResult      `json:"step_results"`
	AssertionResults  []AssertionResult `json:"assertion_results,omitempty"`
	AssertionsPassed  int               `json:"assertions_passed"`
	AssertionsFailed  int               `json:"assertions_failed"`
	AssertionsTotal   int               `json:"assertions_total"`
	PotentiallyFlaky  bool              `json:"potentially_flaky,omitempty"`
}

// RunTotals aggregates per-status counts for a run.
type RunTotals struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// RunResult is the executor's output for one run of a plan.
type RunResult struct {
	RunID       string       `json:"run_id"`
	PlanID      string       `json:"plan_id"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
	TargetURL   string       `json:"target_url"`
	Totals      RunTotals    `json:"totals"`
	TestResults []TestResult `json:"test_results"`
	AISummary   string       `json:"ai_summary,omitempty"`
}

// ComputeTotals recounts Totals from the individual test results.
func (r *RunResult) ComputeTotals() {
	totals := RunTotals{Total: len(r.TestResults)}
	for _, tr := range r.TestResults {
		switch tr.Result {
		case ResultPass:
			totals.Passed++
		case ResultFail:
			totals.Failed++
		case ResultSkip:
			totals.Skipped++
		case ResultError:
			totals.Errors++
		}
	}
	r.Totals = totals
}
