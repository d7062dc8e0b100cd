// Package regression diffs two run results for tests that went from passing
// to failing. The coverage merger counts regressions independently through
// signature history; this detector works on run pairs so a report can show
// what broke since the previous run.
package regression

import (
	"sort"

	"github.com/webprobe/webprobe/internal/domain"
)

// Transition is one test that regressed between two runs.
type Transition struct {
	TestName      string              `json:"test_name"`
	TestID        string              `json:"test_id"`
	Previous      domain.ResultStatus `json:"previous"`
	Current       domain.ResultStatus `json:"current"`
	FailureReason string              `json:"failure_reason,omitempty"`
}

// Detect compares runs by test name and returns every pass -> {fail, error}
// transition, sorted by name. Tests present in only one run are ignored.
func Detect(previous, current *domain.RunResult) []Transition {
	if previous == nil || current == nil {
		return nil
	}

	prevByName := make(map[string]*domain.TestResult, len(previous.TestResults))
	for i := range previous.TestResults {
		tr := &previous.TestResults[i]
		prevByName[tr.Name] = tr
	}

	var transitions []Transition
	for i := range current.TestResults {
		cur := &current.TestResults[i]
		prev, ok := prevByName[cur.Name]
		if !ok {
			continue
		}
		if prev.Result != domain.ResultPass {
			continue
		}
		if cur.Result != domain.ResultFail && cur.Result != domain.ResultError {
			continue
		}
		transitions = append(transitions, Transition{
			TestName:      cur.Name,
			TestID:        cur.TestID,
			Previous:      prev.Result,
			Current:       cur.Result,
			FailureReason: cur.FailureReason,
		})
	}

	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].TestName < transitions[j].TestName
	})
	return transitions
}
