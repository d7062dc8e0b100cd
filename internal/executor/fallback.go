package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
	"github.com/webprobe/webprobe/internal/llm"
)

const (
	fallbackDOMLimit     = 3 * 1024
	fallbackConsoleTail  = 5
	// DefaultFallbackBudget caps AI recovery invocations per test.
	DefaultFallbackBudget = 3
)

const fallbackSystemPrompt = `You are a test-repair agent for browser automation. A test step failed against a live page. Decide how to recover.

Respond with ONLY a JSON object:
{
  "decision": "retry" | "adapt" | "skip" | "abort",
  "new_selector": "css selector, only when decision is adapt",
  "new_action": {"action_type": "...", "selector": "...", "value": "..."},
  "reasoning": "one sentence"
}

Decisions:
- retry: the failure looks transient (slow load, animation); run the same step again
- adapt: the selector or value is wrong but the intent is achievable; supply new_selector or new_action
- skip: the step is optional and the test can still be meaningful without it
- abort: the page is broken or the test's premise no longer holds; stop this test

Choose abort when the DOM shows an error page or the target feature is absent. new_action is optional for adapt; when present it replaces the failed step entirely.`

// FallbackAgent consults the LLM when a test step fails. Each call, whatever
// the decision, consumes one unit of the test's fallback budget.
type FallbackAgent struct {
	llm    llm.Completer
	logger *zap.Logger
}

// NewFallbackAgent creates a recovery agent. completer may be nil, in which
// case every consultation decides skip.
func NewFallbackAgent(completer llm.Completer, logger *zap.Logger) *FallbackAgent {
	return &FallbackAgent{llm: completer, logger: logger}
}

type fallbackResponse struct {
	Decision    string         `json:"decision"`
	NewSelector string         `json:"new_selector"`
	NewAction   *domain.Action `json:"new_action"`
	Reasoning   string         `json:"reasoning"`
}

// Consult gathers page context and asks for a recovery decision for the
// failed step. monitor may be nil.
func (fa *FallbackAgent) Consult(ctx context.Context, page playwright.Page, testCase *domain.TestCase, stepIndex int, action domain.Action, stepErr error, monitor *SessionMonitor) domain.FallbackRecord {
	record := domain.FallbackRecord{StepIndex: stepIndex}

	if fa.llm == nil {
		record.Decision = domain.FallbackSkip
		record.Reasoning = "no LLM configured"
		return record
	}

	userPrompt := fa.buildPrompt(page, testCase, stepIndex, action, stepErr, monitor)

	var raw string
	var err error
	if shot, shotErr := page.Screenshot(); shotErr == nil {
		raw, err = fa.llm.CompleteWithImage(ctx, fallbackSystemPrompt, userPrompt, shot)
	} else {
		raw, err = fa.llm.Complete(ctx, fallbackSystemPrompt, userPrompt)
	}
	if err != nil {
		fa.logger.Warn("fallback consultation failed", zap.Error(err))
		record.Decision = domain.FallbackSkip
		record.Reasoning = "LLM unavailable: " + err.Error()
		return record
	}

	var resp fallbackResponse
	if err := llm.ParseJSON(raw, &resp, "", fa.logger); err != nil {
		fa.logger.Warn("fallback response unparseable", zap.Error(err))
		record.Decision = domain.FallbackSkip
		record.Reasoning = "unparseable LLM response"
		return record
	}

	record.Reasoning = resp.Reasoning
	record.NewSelector = resp.NewSelector
	record.NewAction = resp.NewAction

	switch domain.FallbackDecision(resp.Decision) {
	case domain.FallbackRetry, domain.FallbackAdapt, domain.FallbackSkip, domain.FallbackAbort:
		record.Decision = domain.FallbackDecision(resp.Decision)
	default:
		fa.logger.Warn("fallback returned unknown decision", zap.String("decision", resp.Decision))
		record.Decision = domain.FallbackSkip
	}

	// adapt without anything to adapt with degrades to retry
	if record.Decision == domain.FallbackAdapt && record.NewSelector == "" && record.NewAction == nil {
		record.Decision = domain.FallbackRetry
	}

	return record
}

func (fa *FallbackAgent) buildPrompt(page playwright.Page, testCase *domain.TestCase, stepIndex int, action domain.Action, stepErr error, monitor *SessionMonitor) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Test: %s\n", testCase.Name)
	fmt.Fprintf(&b, "Failed step %d: %s", stepIndex+1, action.ActionType)
	if action.Selector != "" {
		fmt.Fprintf(&b, " selector=%q", action.Selector)
	}
	if action.Value != "" {
		fmt.Fprintf(&b, " value=%q", action.Value)
	}
	fmt.Fprintf(&b, "\nError: %v\n", stepErr)
	fmt.Fprintf(&b, "Current URL: %s\n", page.URL())

	if monitor != nil {
		if errs := monitor.LastConsoleErrors(fallbackConsoleTail); len(errs) > 0 {
			b.WriteString("\nRecent console errors:\n")
			for _, e := range errs {
				fmt.Fprintf(&b, "- %s\n", e)
			}
		}
	}

	if dom, err := page.Content(); err == nil {
		if len(dom) > fallbackDOMLimit {
			dom = dom[:fallbackDOMLimit]
		}
		b.WriteString("\nDOM (truncated):\n")
		b.WriteString(dom)
	}

	return b.String()
}
