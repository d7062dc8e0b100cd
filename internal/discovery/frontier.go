package discovery

import (
	"container/heap"
	"regexp"

	"github.com/webprobe/webprobe/internal/urlnorm"
)

// Frontier priority tiers. Lower pops first. Sitemap URLs are backfill, not a
// crawl plan; organic links always win.
const (
	PriorityStart   = 0
	PriorityOrganic = 10
	PrioritySitemap = 50
)

// CrawlTask is one frontier entry.
type CrawlTask struct {
	URL      string
	Depth    int
	Priority int

	seq int
}

type taskHeap []*CrawlTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*CrawlTask)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return task
}

// Scope gates which URLs may enter the frontier.
type Scope struct {
	BaseURL         string
	MaxDepth        int
	IncludePatterns []*regexp.Regexp
	ExcludePatterns []*regexp.Regexp
}

// CompileScope builds a Scope from raw regex strings. Invalid patterns are an
// error; a silently dropped pattern would widen the crawl.
func CompileScope(baseURL string, maxDepth int, include, exclude []string) (*Scope, error) {
	s := &Scope{BaseURL: baseURL, MaxDepth: maxDepth}
	for _, p := range include {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		s.IncludePatterns = append(s.IncludePatterns, re)
	}
	for _, p := range exclude {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		s.ExcludePatterns = append(s.ExcludePatterns, re)
	}
	return s, nil
}

// Allows reports whether a normalized URL at the given depth is in scope.
func (s *Scope) Allows(normalizedURL string, depth int) bool {
	if depth > s.MaxDepth {
		return false
	}
	if !urlnorm.SameOrigin(s.BaseURL, normalizedURL) {
		return false
	}
	for _, re := range s.ExcludePatterns {
		if re.MatchString(normalizedURL) {
			return false
		}
	}
	if len(s.IncludePatterns) == 0 {
		return true
	}
	for _, re := range s.IncludePatterns {
		if re.MatchString(normalizedURL) {
			return true
		}
	}
	return false
}

// Frontier is the prioritized crawl queue. Each normalized URL is enqueued at
// most once and popped at most once. Not safe for concurrent use; the crawler
// drives it from a single goroutine.
type Frontier struct {
	heap    taskHeap
	queued  map[string]bool
	visited map[string]bool
	scope   *Scope
	nextSeq int
}

// NewFrontier creates an empty frontier gated by scope.
func NewFrontier(scope *Scope) *Frontier {
	f := &Frontier{
		queued:  make(map[string]bool),
		visited: make(map[string]bool),
		scope:   scope,
	}
	heap.Init(&f.heap)
	return f
}

// Enqueue normalizes the URL and adds it at the given priority. Returns false
// if the URL is out of scope, over depth, or already queued/visited.
func (f *Frontier) Enqueue(rawURL string, depth, priority int) bool {
	normalized := urlnorm.Normalize(rawURL)
	if normalized == "" {
		return false
	}
	if f.queued[normalized] || f.visited[normalized] {
		return false
	}
	if !f.scope.Allows(normalized, depth) {
		return false
	}

	f.queued[normalized] = true
	heap.Push(&f.heap, &CrawlTask{
		URL:      normalized,
		Depth:    depth,
		Priority: priority,
		seq:      f.nextSeq,
	})
	f.nextSeq++
	return true
}

// Pop removes and returns the lowest-priority task, marking it visited.
// Returns nil when the frontier is empty.
func (f *Frontier) Pop() *CrawlTask {
	if f.heap.Len() == 0 {
		return nil
	}
	task := heap.Pop(&f.heap).(*CrawlTask)
	delete(f.queued, task.URL)
	f.visited[task.URL] = true
	return task
}

// Len returns the number of queued tasks.
func (f *Frontier) Len() int {
	return f.heap.Len()
}

// Visited reports whether a URL has already been popped.
func (f *Frontier) Visited(rawURL string) bool {
	return f.visited[urlnorm.Normalize(rawURL)]
}

// VisitedCount returns the number of popped URLs.
func (f *Frontier) VisitedCount() int {
	return len(f.visited)
}
