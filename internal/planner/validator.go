package planner

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
)

// ValidateTestCase checks one test case against the plan schema. It returns
// every violation found, not just the first.
func ValidateTestCase(tc *domain.TestCase) []error {
	var errs []error

	if tc.TestID == "" {
		errs = append(errs, fmt.Errorf("missing test_id"))
	}
	if tc.Name == "" {
		errs = append(errs, fmt.Errorf("missing name"))
	}
	if !tc.Category.IsValid() {
		errs = append(errs, fmt.Errorf("invalid category %q", tc.Category))
	}
	if tc.Priority < 1 || tc.Priority > 5 {
		errs = append(errs, fmt.Errorf("priority %d outside 1..5", tc.Priority))
	}
	if len(tc.Steps) == 0 {
		errs = append(errs, fmt.Errorf("no steps"))
	}

	for i, action := range append(append([]domain.Action{}, tc.Preconditions...), tc.Steps...) {
		if action.ActionType.RequiresSelector() && action.Selector == "" {
			errs = append(errs, fmt.Errorf("action %d (%s) requires a selector", i, action.ActionType))
		}
		if action.ActionType == domain.ActionFill && action.Value == "" {
			errs = append(errs, fmt.Errorf("action %d (fill) requires a value", i))
		}
	}

	return errs
}

// ValidatePlan filters out invalid test cases and enforces test_id uniqueness.
// It returns the surviving cases plus a description of everything dropped.
func ValidatePlan(cases []domain.TestCase, logger *zap.Logger) ([]domain.TestCase, []string) {
	var valid []domain.TestCase
	var dropped []string
	seen := make(map[string]bool)

	for i := range cases {
		tc := &cases[i]

		if errs := ValidateTestCase(tc); len(errs) > 0 {
			reason := fmt.Sprintf("test %q: %v", tc.TestID, errs)
			dropped = append(dropped, reason)
			logger.Warn("dropping invalid test case",
				zap.String("test_id", tc.TestID), zap.Errors("violations", errs))
			continue
		}

		if seen[tc.TestID] {
			dropped = append(dropped, fmt.Sprintf("test %q: duplicate test_id", tc.TestID))
			logger.Warn("dropping duplicate test_id", zap.String("test_id", tc.TestID))
			continue
		}
		seen[tc.TestID] = true

		if tc.CoverageSignature == "" {
			// History will key on the test name; continuity across runs then
			// depends on the LLM reproducing the exact name.
			logger.Warn("test case has no coverage_signature, falling back to name",
				zap.String("test_id", tc.TestID), zap.String("name", tc.Name))
		}

		valid = append(valid, *tc)
	}

	return valid, dropped
}
