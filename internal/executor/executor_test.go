package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
)

func TestGroupByTargetPage_PriorityThenGrouping(t *testing.T) {
	cases := []domain.TestCase{
		{TestID: "t1", TargetPageID: "page-a", Priority: 3},
		{TestID: "t2", TargetPageID: "page-b", Priority: 1},
		{TestID: "t3", TargetPageID: "page-a", Priority: 1},
		{TestID: "t4", TargetPageID: "page-b", Priority: 2},
	}

	groups := groupByTargetPage(cases)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	// t2 has the highest priority, so page-b's group comes first.
	if groups[0][0].TestID != "t2" {
		t.Errorf("first group leader = %s, want t2", groups[0][0].TestID)
	}
	if len(groups[0]) != 2 || groups[0][1].TestID != "t4" {
		t.Errorf("page-b group = %v", testIDs(groups[0]))
	}
	if len(groups[1]) != 2 || groups[1][0].TestID != "t3" || groups[1][1].TestID != "t1" {
		t.Errorf("page-a group = %v, want [t3 t1]", testIDs(groups[1]))
	}
}

func TestGroupByTargetPage_EmptyPageIDStaysSeparate(t *testing.T) {
	cases := []domain.TestCase{
		{TestID: "t1", Priority: 1},
		{TestID: "t2", Priority: 1},
	}
	groups := groupByTargetPage(cases)
	if len(groups) != 2 {
		t.Fatalf("tests without a target page must not share a group, got %d groups", len(groups))
	}
}

func TestGroupByTargetPage_StableWithinPriority(t *testing.T) {
	cases := []domain.TestCase{
		{TestID: "a", TargetPageID: "p1", Priority: 2},
		{TestID: "b", TargetPageID: "p2", Priority: 2},
		{TestID: "c", TargetPageID: "p3", Priority: 2},
	}
	groups := groupByTargetPage(cases)
	got := []string{groups[0][0].TestID, groups[1][0].TestID, groups[2][0].TestID}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("equal priorities must keep plan order, got %v", got)
	}
}

func TestSubstituteTimestamp_SingleSnapshot(t *testing.T) {
	tc := domain.TestCase{
		Preconditions: []domain.Action{
			{ActionType: domain.ActionFill, Selector: "#user", Value: "user-{{$timestamp}}"},
		},
		Steps: []domain.Action{
			{ActionType: domain.ActionFill, Selector: "#email", Value: "qa+{{$timestamp}}@example.com"},
			{ActionType: domain.ActionFill, Selector: "#confirm", Value: "qa+{{$timestamp}}@example.com"},
		},
	}

	substituteTimestamp(&tc)

	for _, a := range append(tc.Preconditions, tc.Steps...) {
		if strings.Contains(a.Value, "{{$timestamp}}") {
			t.Fatalf("unsubstituted token in %q", a.Value)
		}
	}

	pre := strings.TrimPrefix(tc.Preconditions[0].Value, "user-")
	s1 := tc.Steps[0].Value
	s2 := tc.Steps[1].Value
	if s1 != s2 {
		t.Errorf("steps got different timestamps: %q vs %q", s1, s2)
	}
	if !strings.Contains(s1, pre) {
		t.Errorf("precondition timestamp %q differs from step value %q", pre, s1)
	}
}

func TestSubstituteTimestamp_DoesNotMutateOriginalSlices(t *testing.T) {
	steps := []domain.Action{{ActionType: domain.ActionFill, Value: "{{$timestamp}}"}}
	tc := domain.TestCase{Steps: steps}

	substituteTimestamp(&tc)

	if steps[0].Value != "{{$timestamp}}" {
		t.Error("substitution leaked into the shared plan slice")
	}
}

func TestDeriveResult(t *testing.T) {
	tests := []struct {
		name             string
		aborted          bool
		stepFailed       bool
		assertionsFailed int
		want             domain.ResultStatus
	}{
		{"clean pass", false, false, 0, domain.ResultPass},
		{"assertion failure", false, false, 2, domain.ResultFail},
		{"step failed without abort", false, true, 0, domain.ResultFail},
		{"aborted, no failing assertions", true, true, 0, domain.ResultError},
		{"aborted with failing assertions", true, true, 1, domain.ResultFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveResult(tt.aborted, tt.stepFailed, tt.assertionsFailed); got != tt.want {
				t.Errorf("deriveResult(%v, %v, %d) = %s, want %s",
					tt.aborted, tt.stepFailed, tt.assertionsFailed, got, tt.want)
			}
		})
	}
}

func TestSkippedTail_MarksUnreachedSteps(t *testing.T) {
	steps := []domain.Action{
		{ActionType: domain.ActionClick, Selector: "#a"},
		{ActionType: domain.ActionClick, Selector: "#b"},
		{ActionType: domain.ActionFill, Selector: "#c", Value: "x"},
		{ActionType: domain.ActionClick, Selector: "#d"},
	}

	tail := skippedTail(steps, 2)
	if len(tail) != 2 {
		t.Fatalf("tail length = %d, want 2", len(tail))
	}
	for k, sr := range tail {
		if sr.Index != 2+k {
			t.Errorf("tail[%d].Index = %d, want %d", k, sr.Index, 2+k)
		}
		if sr.Status != domain.StepSkip {
			t.Errorf("tail[%d].Status = %s, want skip", k, sr.Status)
		}
		if sr.Error != "aborted" {
			t.Errorf("tail[%d].Error = %q, want aborted", k, sr.Error)
		}
	}
	if tail[0].Action.Selector != "#c" || tail[1].Action.Selector != "#d" {
		t.Errorf("tail actions = %q, %q", tail[0].Action.Selector, tail[1].Action.Selector)
	}

	if got := skippedTail(steps, len(steps)); got != nil {
		t.Errorf("abort on the last step must leave no tail, got %v", got)
	}
}

func TestUnknownPlaceholders(t *testing.T) {
	tc := domain.TestCase{
		Preconditions: []domain.Action{
			{ActionType: domain.ActionFill, Selector: "#ref", Value: "ref-{{$order_id}}"},
		},
		Steps: []domain.Action{
			{ActionType: domain.ActionFill, Selector: "#email", Value: "qa+{{$timestamp}}@example.com"},
			{ActionType: domain.ActionFill, Selector: "#note", Value: "{{$order_id}} and {{$coupon}}"},
		},
		Assertions: []domain.Assertion{
			{ExpectedValue: "total {{$cart_total}}"},
		},
	}

	substituteTimestamp(&tc)
	tokens := unknownPlaceholders(&tc)

	want := []string{"{{$order_id}}", "{{$coupon}}", "{{$cart_total}}"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	for i, tok := range want {
		if tokens[i] != tok {
			t.Errorf("tokens[%d] = %q, want %q", i, tokens[i], tok)
		}
	}
}

func TestUnknownPlaceholders_NoneAfterSubstitution(t *testing.T) {
	tc := domain.TestCase{
		Steps: []domain.Action{
			{ActionType: domain.ActionFill, Value: "user-{{$timestamp}}"},
		},
	}
	substituteTimestamp(&tc)
	if tokens := unknownPlaceholders(&tc); tokens != nil {
		t.Errorf("substituted timestamp must not report as unknown, got %v", tokens)
	}
}

func TestAuthStorageState_ProviderFailureDegrades(t *testing.T) {
	calls := 0
	provider := func(ctx context.Context) ([]byte, error) {
		calls++
		return nil, errors.New("login form not found")
	}
	e := New(nil, Config{}, nil, provider, zap.NewNop())

	if state := e.authStorageState(context.Background()); state != nil {
		t.Errorf("failed provider must yield empty state, got %q", state)
	}
	// second call must not re-trigger the provider
	e.authStorageState(context.Background())
	if calls != 1 {
		t.Errorf("provider calls = %d, want 1", calls)
	}
}

func TestAuthStorageState_CachesProviderResult(t *testing.T) {
	provider := func(ctx context.Context) ([]byte, error) {
		return []byte(`{"cookies":[]}`), nil
	}
	e := New(nil, Config{}, nil, provider, zap.NewNop())

	state := e.authStorageState(context.Background())
	if string(state) != `{"cookies":[]}` {
		t.Errorf("state = %q", state)
	}
}

func TestEvidenceLabels(t *testing.T) {
	if got := preLabel(0, false); got != "pre_00" {
		t.Errorf("preLabel = %q", got)
	}
	if got := stepLabel(12, false); got != "step_12" {
		t.Errorf("stepLabel = %q", got)
	}
	if got := stepLabel(3, true); got != "rerun_step_03" {
		t.Errorf("rerun stepLabel = %q", got)
	}
	if got := assertLabel(1, true); got != "rerun_assert_01" {
		t.Errorf("rerun assertLabel = %q", got)
	}
}

func TestFirstStepError(t *testing.T) {
	steps := []domain.StepResult{
		{Status: domain.StepPass},
		{Status: domain.StepSkip, Error: "skipped"},
		{Status: domain.StepFail, Error: "element not found"},
	}
	if got := firstStepError(steps); got != "element not found" {
		t.Errorf("firstStepError = %q", got)
	}
	if got := firstStepError(nil); got != "" {
		t.Errorf("firstStepError(nil) = %q", got)
	}
}

func TestSanitizeID(t *testing.T) {
	if got := sanitizeID("smoke test: home/page?x=1"); got != "smoke_test__home_page_x_1" {
		t.Errorf("sanitizeID = %q", got)
	}
	if got := sanitizeID("plain-id_1.2"); got != "plain-id_1.2" {
		t.Errorf("safe id changed: %q", got)
	}
}

func testIDs(cases []domain.TestCase) []string {
	out := make([]string, len(cases))
	for i, tc := range cases {
		out[i] = tc.TestID
	}
	return out
}
