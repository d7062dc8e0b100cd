package domain

import "time"

// TestCategory partitions tests for coverage accounting.
type TestCategory string

const (
	CategoryFunctional TestCategory = "functional"
	CategoryVisual     TestCategory = "visual"
	CategorySecurity   TestCategory = "security"
)

// IsValid reports whether the category is one the engine understands.
func (c TestCategory) IsValid() bool {
	switch c {
	case CategoryFunctional, CategoryVisual, CategorySecurity:
		return true
	}
	return false
}

// ActionType enumerates the executable step kinds.
type ActionType string

const (
	ActionNavigate   ActionType = "navigate"
	ActionClick      ActionType = "click"
	ActionFill       ActionType = "fill"
	ActionSelect     ActionType = "select"
	ActionHover      ActionType = "hover"
	ActionScroll     ActionType = "scroll"
	ActionWait       ActionType = "wait"
	ActionScreenshot ActionType = "screenshot"
	ActionKeyboard   ActionType = "keyboard"
)

// RequiresSelector reports whether the action kind must carry a selector.
func (a ActionType) RequiresSelector() bool {
	switch a {
	case ActionClick, ActionFill, ActionSelect, ActionHover:
		return true
	}
	return false
}

// Action is one executable step of a test case. Values may contain the
// placeholder tokens substituted by the planner and executor.
type Action struct {
	ActionType  ActionType `json:"action_type"`
	Selector    string     `json:"selector,omitempty"`
	Value       string     `json:"value,omitempty"`
	Description string     `json:"description,omitempty"`
}

// AssertionType enumerates the verification kinds the checker evaluates.
type AssertionType string

const (
	AssertElementVisible     AssertionType = "element_visible"
	AssertElementHidden      AssertionType = "element_hidden"
	AssertTextContains       AssertionType = "text_contains"
	AssertTextEquals         AssertionType = "text_equals"
	AssertTextMatches        AssertionType = "text_matches"
	AssertURLMatches         AssertionType = "url_matches"
	AssertScreenshotDiff     AssertionType = "screenshot_diff"
	AssertElementCount       AssertionType = "element_count"
	AssertNetworkRequestMade AssertionType = "network_request_made"
	AssertNoConsoleErrors    AssertionType = "no_console_errors"
	AssertResponseStatus     AssertionType = "response_status"
	AssertAIEvaluate         AssertionType = "ai_evaluate"
)

// Assertion is one verification against current page state.
type Assertion struct {
	AssertionType AssertionType `json:"assertion_type"`
	Selector      string        `json:"selector,omitempty"`
	ExpectedValue string        `json:"expected_value,omitempty"`
	Tolerance     float64       `json:"tolerance,omitempty"`
	Description   string        `json:"description,omitempty"`
}

// Placeholder tokens substituted into Action.Value and Assertion.ExpectedValue.
const (
	PlaceholderAuthUsername = "{{auth_username}}"
	PlaceholderAuthPassword = "{{auth_password}}"
	PlaceholderAuthLoginURL = "{{auth_login_url}}"
	PlaceholderTimestamp    = "{{$timestamp}}"
)

// AuthPlaceholders lists the credential tokens the planner substitutes.
var AuthPlaceholders = []string{
	PlaceholderAuthUsername,
	PlaceholderAuthPassword,
	PlaceholderAuthLoginURL,
}

// TestCase is one concrete test proposed by the planner.
type TestCase struct {
	TestID            string       `json:"test_id"`
	Name              string       `json:"name"`
	Category          TestCategory `json:"category"`
	Priority          int          `json:"priority"`
	TargetPageID      string       `json:"target_page_id"`
	CoverageSignature string       `json:"coverage_signature,omitempty"`
	RequiresAuth      bool         `json:"requires_auth"`
	Preconditions     []Action     `json:"preconditions,omitempty"`
	Steps             []Action     `json:"steps"`
	Assertions        []Assertion  `json:"assertions,omitempty"`
	TimeoutSeconds    int          `json:"timeout_seconds,omitempty"`
}

// Signature returns the coverage signature, falling back to the test name
// when the planner did not supply one. Callers should log the fallback since
// it undermines history continuity.
func (t *TestCase) Signature() string {
	if t.CoverageSignature != "" {
		return t.CoverageSignature
	}
	return t.Name
}

// TestPlan is the planner's output for one run.
type TestPlan struct {
	PlanID      string     `json:"plan_id"`
	TargetURL   string     `json:"target_url"`
	GeneratedAt time.Time  `json:"generated_at"`
	Source      string     `json:"source,omitempty"` // "llm" or "fallback"
	TestCases   []TestCase `json:"test_cases"`
}
