package regression

import (
	"testing"

	"github.com/webprobe/webprobe/internal/domain"
)

func run(results ...domain.TestResult) *domain.RunResult {
	return &domain.RunResult{TestResults: results}
}

func tr(name string, status domain.ResultStatus) domain.TestResult {
	return domain.TestResult{TestID: "id-" + name, Name: name, Result: status}
}

func TestDetect_PassToFailAndError(t *testing.T) {
	previous := run(
		tr("checkout", domain.ResultPass),
		tr("login", domain.ResultPass),
		tr("search", domain.ResultPass),
	)
	current := run(
		tr("checkout", domain.ResultError),
		tr("login", domain.ResultFail),
		tr("search", domain.ResultPass),
	)

	got := Detect(previous, current)
	if len(got) != 2 {
		t.Fatalf("transitions = %d, want 2", len(got))
	}
	// sorted by name
	if got[0].TestName != "checkout" || got[0].Current != domain.ResultError {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].TestName != "login" || got[1].Current != domain.ResultFail {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestDetect_IgnoresNonRegressions(t *testing.T) {
	previous := run(
		tr("was-failing", domain.ResultFail),
		tr("was-skipped", domain.ResultSkip),
		tr("removed", domain.ResultPass),
	)
	current := run(
		tr("was-failing", domain.ResultFail),
		tr("was-skipped", domain.ResultFail),
		tr("brand-new", domain.ResultFail),
	)

	if got := Detect(previous, current); len(got) != 0 {
		t.Errorf("transitions = %+v, want none", got)
	}
}

func TestDetect_SkipInCurrentIsNotRegression(t *testing.T) {
	previous := run(tr("slow", domain.ResultPass))
	current := run(tr("slow", domain.ResultSkip))

	if got := Detect(previous, current); len(got) != 0 {
		t.Errorf("pass->skip must not count as a regression, got %+v", got)
	}
}

func TestDetect_NilRuns(t *testing.T) {
	if got := Detect(nil, run(tr("a", domain.ResultFail))); got != nil {
		t.Errorf("nil previous must yield nil, got %+v", got)
	}
}
