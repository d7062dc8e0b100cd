package discovery

import (
	"testing"
)

func newTestScope(t *testing.T, maxDepth int) *Scope {
	t.Helper()
	scope, err := CompileScope("https://example.com", maxDepth, nil, nil)
	if err != nil {
		t.Fatalf("compiling scope: %v", err)
	}
	return scope
}

func TestFrontier_PriorityOrdering(t *testing.T) {
	f := NewFrontier(newTestScope(t, 3))

	f.Enqueue("https://example.com/stale-1", 1, PrioritySitemap)
	f.Enqueue("https://example.com/stale-2", 1, PrioritySitemap)
	f.Enqueue("https://example.com/real-page", 1, PriorityOrganic)
	f.Enqueue("https://example.com", 0, PriorityStart)

	want := []string{
		"https://example.com",
		"https://example.com/real-page",
		"https://example.com/stale-1",
		"https://example.com/stale-2",
	}
	for i, expected := range want {
		task := f.Pop()
		if task == nil {
			t.Fatalf("pop %d: frontier empty", i)
		}
		if task.URL != expected {
			t.Errorf("pop %d = %s, want %s", i, task.URL, expected)
		}
	}
}

func TestFrontier_FIFOWithinTier(t *testing.T) {
	f := NewFrontier(newTestScope(t, 3))

	urls := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}
	for _, u := range urls {
		f.Enqueue(u, 1, PriorityOrganic)
	}
	for i, expected := range urls {
		if got := f.Pop().URL; got != expected {
			t.Errorf("pop %d = %s, want %s", i, got, expected)
		}
	}
}

func TestFrontier_Dedupe(t *testing.T) {
	f := NewFrontier(newTestScope(t, 3))

	if !f.Enqueue("https://example.com/page", 1, PriorityOrganic) {
		t.Fatal("first enqueue should succeed")
	}
	if f.Enqueue("https://example.com/page/", 1, PriorityOrganic) {
		t.Error("trailing-slash variant should be rejected as duplicate")
	}
	if f.Enqueue("https://EXAMPLE.com/page", 1, PrioritySitemap) {
		t.Error("host-case variant should be rejected as duplicate")
	}

	f.Pop()
	if f.Enqueue("https://example.com/page", 2, PriorityOrganic) {
		t.Error("visited URL should never be re-enqueued")
	}
}

func TestFrontier_DepthBound(t *testing.T) {
	f := NewFrontier(newTestScope(t, 2))

	if f.Enqueue("https://example.com/deep", 3, PriorityOrganic) {
		t.Error("enqueue past max depth should be rejected")
	}
	if !f.Enqueue("https://example.com/ok", 2, PriorityOrganic) {
		t.Error("enqueue at max depth should succeed")
	}
}

func TestFrontier_SameOrigin(t *testing.T) {
	f := NewFrontier(newTestScope(t, 3))

	if f.Enqueue("https://other.com/page", 1, PriorityOrganic) {
		t.Error("cross-origin URL should be rejected")
	}
	if f.Enqueue("http://example.com/page", 1, PriorityOrganic) {
		t.Error("scheme change should be rejected")
	}
}

func TestScope_IncludeExclude(t *testing.T) {
	scope, err := CompileScope("https://example.com", 3,
		[]string{`/app/`},
		[]string{`/app/admin`})
	if err != nil {
		t.Fatalf("compiling scope: %v", err)
	}

	cases := []struct {
		url  string
		want bool
	}{
		{"https://example.com/app/home", true},
		{"https://example.com/app/admin/users", false},
		{"https://example.com/marketing", false},
	}
	for _, tc := range cases {
		if got := scope.Allows(tc.url, 1); got != tc.want {
			t.Errorf("Allows(%s) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestScope_BadPattern(t *testing.T) {
	if _, err := CompileScope("https://example.com", 3, []string{"["}, nil); err == nil {
		t.Error("invalid regex should be an error")
	}
}
