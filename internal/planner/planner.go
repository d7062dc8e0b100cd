// Package planner turns a crawled site model and coverage gaps into an
// executable test plan, via the planning LLM when available and a
// deterministic fallback otherwise.
package planner

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
	"github.com/webprobe/webprobe/internal/llm"
)

// Config holds planning settings.
type Config struct {
	Categories          []string
	MaxTests            int
	VisualDiffTolerance float64
	Viewports           []string
	Hints               []string

	// DebugDir receives LLM parse-failure bundles.
	DebugDir string
}

// Planner generates test plans.
type Planner struct {
	llm    llm.Completer
	config Config
	logger *zap.Logger
}

// New creates a planner. completer may be nil; planning then always uses the
// deterministic fallback.
func New(completer llm.Completer, config Config, logger *zap.Logger) *Planner {
	return &Planner{llm: completer, config: config, logger: logger}
}

type llmPlanResponse struct {
	TestCases []domain.TestCase `json:"test_cases"`
}

// Plan produces a validated, credential-injected test plan for the site.
func (p *Planner) Plan(ctx context.Context, site *domain.SiteModel, gaps *domain.GapReport, auth *domain.AuthConfig) (*domain.TestPlan, error) {
	plan := &domain.TestPlan{
		PlanID:      uuid.New().String(),
		TargetURL:   site.BaseURL,
		GeneratedAt: time.Now().UTC(),
	}

	cases, source := p.generate(ctx, site, gaps)
	plan.Source = source

	valid, dropped := ValidatePlan(cases, p.logger)
	if len(dropped) > 0 {
		p.logger.Info("plan validation dropped test cases",
			zap.Int("dropped", len(dropped)), zap.Int("kept", len(valid)))
	}

	plan.TestCases = InjectCredentials(valid, auth, p.logger)

	p.logger.Info("test plan generated",
		zap.String("plan_id", plan.PlanID),
		zap.String("source", plan.Source),
		zap.Int("test_cases", len(plan.TestCases)))

	return plan, nil
}

// generate asks the LLM for a plan, falling back deterministically when the
// client is missing, errors, or returns an unusable response.
func (p *Planner) generate(ctx context.Context, site *domain.SiteModel, gaps *domain.GapReport) ([]domain.TestCase, string) {
	if p.llm == nil {
		p.logger.Info("LLM unavailable, using fallback plan")
		return FallbackPlan(site, p.config), "fallback"
	}

	siteJSON, err := SummarizeSite(site)
	if err != nil {
		p.logger.Error("site summary failed, using fallback plan", zap.Error(err))
		return FallbackPlan(site, p.config), "fallback"
	}
	gapsJSON, err := SummarizeGaps(gaps)
	if err != nil {
		gapsJSON = []byte(`{"gaps": []}`)
	}

	raw, err := p.llm.Complete(ctx, systemPrompt, buildUserPrompt(siteJSON, gapsJSON, p.config))
	if err != nil {
		p.logger.Warn("planning LLM call failed, using fallback plan", zap.Error(err))
		return FallbackPlan(site, p.config), "fallback"
	}

	var resp llmPlanResponse
	if err := llm.ParseJSON(raw, &resp, p.config.DebugDir, p.logger); err != nil {
		p.logger.Warn("planning response unusable, using fallback plan", zap.Error(err))
		return FallbackPlan(site, p.config), "fallback"
	}
	if len(resp.TestCases) == 0 {
		p.logger.Warn("planning response contained no test cases, using fallback plan")
		return FallbackPlan(site, p.config), "fallback"
	}

	if p.config.MaxTests > 0 && len(resp.TestCases) > p.config.MaxTests {
		resp.TestCases = resp.TestCases[:p.config.MaxTests]
	}
	return resp.TestCases, "llm"
}

// InjectCredentials substitutes the auth placeholder tokens into action
// values and assertion expected values. When auth is not configured, any test
// case still carrying a placeholder is removed entirely.
func InjectCredentials(cases []domain.TestCase, auth *domain.AuthConfig, logger *zap.Logger) []domain.TestCase {
	if auth.HasCredentials() {
		replacer := strings.NewReplacer(
			domain.PlaceholderAuthUsername, auth.Username,
			domain.PlaceholderAuthPassword, auth.Password,
			domain.PlaceholderAuthLoginURL, auth.LoginURL,
		)
		for i := range cases {
			substituteActions(cases[i].Preconditions, replacer)
			substituteActions(cases[i].Steps, replacer)
			for j := range cases[i].Assertions {
				cases[i].Assertions[j].ExpectedValue = replacer.Replace(cases[i].Assertions[j].ExpectedValue)
			}
		}
		return cases
	}

	// Safety net: no credentials means no test may run with an unresolved
	// placeholder.
	var kept []domain.TestCase
	for i := range cases {
		if testUsesAuthPlaceholder(&cases[i]) {
			logger.Warn("removing test with auth placeholder, auth not configured",
				zap.String("test_id", cases[i].TestID))
			continue
		}
		kept = append(kept, cases[i])
	}
	return kept
}

func substituteActions(actions []domain.Action, replacer *strings.Replacer) {
	for i := range actions {
		actions[i].Value = replacer.Replace(actions[i].Value)
	}
}

func testUsesAuthPlaceholder(tc *domain.TestCase) bool {
	for _, action := range append(append([]domain.Action{}, tc.Preconditions...), tc.Steps...) {
		for _, ph := range domain.AuthPlaceholders {
			if strings.Contains(action.Value, ph) {
				return true
			}
		}
	}
	for _, assertion := range tc.Assertions {
		for _, ph := range domain.AuthPlaceholders {
			if strings.Contains(assertion.ExpectedValue, ph) {
				return true
			}
		}
	}
	return false
}
