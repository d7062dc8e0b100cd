package discovery

import (
	"regexp"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/urlnorm"
)

// Link discovery runs four strategies against a rendered page and unions the
// results. Nothing here may fail the crawl; every error degrades to an empty
// set.

const maxToggleClicks = 8

var (
	spaMarkers = []string{"#root", "#__next", "#app", "[ng-app]", "[data-reactroot]", "#___gatsby"}

	toggleSelectors = []string{
		"nav button",
		`[aria-haspopup="true"]`,
		`[data-toggle="dropdown"]`,
		`[class*="menu-toggle"]`,
		`[class*="dropdown-toggle"]`,
		`[class*="hamburger"]`,
		"details > summary",
	}

	onclickURLRe = regexp.MustCompile(`(?:location(?:\.href)?\s*=\s*|navigate\(|router\.push\(|window\.open\()['"]([^'"]+)['"]`)

	metaRefreshRe = regexp.MustCompile(`(?i)url\s*=\s*(\S+)`)

	skipExtensions = []string{
		".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
		".woff", ".woff2", ".ttf", ".eot", ".otf",
		".zip", ".tar", ".gz", ".rar", ".7z",
		".mp3", ".mp4", ".webm", ".avi", ".mov", ".wav",
		".css", ".js", ".map",
		".xml", ".json", ".pdf", ".rss", ".atom",
	}
)

// LinkCollector runs the discovery strategies against one page.
type LinkCollector struct {
	baseURL string
	logger  *zap.Logger
}

// NewLinkCollector creates a collector resolving against baseURL.
func NewLinkCollector(baseURL string, logger *zap.Logger) *LinkCollector {
	return &LinkCollector{baseURL: baseURL, logger: logger}
}

// Collect unions all four strategies and returns resolved, filtered,
// deduplicated absolute URLs.
func (lc *LinkCollector) Collect(page playwright.Page) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(raw string) {
		resolved := urlnorm.Resolve(lc.baseURL, raw)
		if resolved == "" {
			return
		}
		if !isValidPageURL(resolved) {
			return
		}
		if seen[resolved] {
			return
		}
		seen[resolved] = true
		out = append(out, resolved)
	}

	for _, href := range lc.staticLinks(page) {
		add(href)
	}
	for _, href := range lc.spaLinks(page) {
		add(href)
	}
	for _, href := range lc.dynamicLinks(page) {
		add(href)
	}
	for _, href := range lc.interactiveReveal(page) {
		add(href)
	}

	return out
}

// staticLinks reads hrefs from anchors, areas, and frames.
func (lc *LinkCollector) staticLinks(page playwright.Page) []string {
	var links []string
	for _, query := range []struct{ selector, attr string }{
		{"a[href]", "href"},
		{"area[href]", "href"},
		{"frame[src], iframe[src]", "src"},
	} {
		values, err := attributeValues(page, query.selector, query.attr)
		if err != nil {
			lc.logger.Debug("static link extraction failed",
				zap.String("selector", query.selector), zap.Error(err))
			continue
		}
		links = append(links, values...)
	}
	return links
}

// spaLinks collects route-style anchors when a framework root marker exists.
func (lc *LinkCollector) spaLinks(page playwright.Page) []string {
	hasMarker := false
	for _, marker := range spaMarkers {
		if count, err := page.Locator(marker).Count(); err == nil && count > 0 {
			hasMarker = true
			break
		}
	}
	if !hasMarker {
		return nil
	}

	values, err := attributeValues(page, "a[href]", "href")
	if err != nil {
		return nil
	}
	var links []string
	for _, href := range values {
		if strings.HasPrefix(href, "/") || strings.HasPrefix(href, "#/") {
			// hash routes resolve as paths against the origin
			links = append(links, strings.TrimPrefix(href, "#"))
		}
	}
	return links
}

// dynamicLinks regex-extracts URLs from onclick handlers, data attributes,
// formaction, meta refresh, and form actions.
func (lc *LinkCollector) dynamicLinks(page playwright.Page) []string {
	var links []string

	if values, err := attributeValues(page, "[onclick]", "onclick"); err == nil {
		for _, onclick := range values {
			if m := onclickURLRe.FindStringSubmatch(onclick); m != nil {
				links = append(links, m[1])
			}
		}
	}

	for _, attr := range []string{"data-href", "data-url", "data-link", "data-to", "data-route"} {
		if values, err := attributeValues(page, "["+attr+"]", attr); err == nil {
			links = append(links, values...)
		}
	}

	if values, err := attributeValues(page, "[formaction]", "formaction"); err == nil {
		links = append(links, values...)
	}

	if values, err := attributeValues(page, `meta[http-equiv="refresh" i]`, "content"); err == nil {
		for _, content := range values {
			if m := metaRefreshRe.FindStringSubmatch(content); m != nil {
				links = append(links, strings.Trim(m[1], `'"`))
			}
		}
	}

	if values, err := attributeValues(page, "form[action]", "action"); err == nil {
		links = append(links, values...)
	}

	return links
}

// interactiveReveal clicks menu and dropdown toggles to expose anchors that
// are not initially visible, then restores the page.
func (lc *LinkCollector) interactiveReveal(page playwright.Page) []string {
	before, err := visibleHrefs(page)
	if err != nil {
		return nil
	}
	originalURL := page.URL()

	revealed := make(map[string]bool)
	clicked := 0

	for _, selector := range toggleSelectors {
		if clicked >= maxToggleClicks {
			break
		}
		toggles := page.Locator(selector)
		count, err := toggles.Count()
		if err != nil {
			continue
		}
		for i := 0; i < count && clicked < maxToggleClicks; i++ {
			toggle := toggles.Nth(i)
			if visible, err := toggle.IsVisible(); err != nil || !visible {
				continue
			}
			if err := toggle.Click(playwright.LocatorClickOptions{
				Timeout: playwright.Float(2000),
			}); err != nil {
				continue
			}
			clicked++
			page.WaitForTimeout(300)

			after, err := visibleHrefs(page)
			if err == nil {
				for href := range after {
					if !before[href] {
						revealed[href] = true
					}
				}
			}

			page.Keyboard().Press("Escape")
		}
	}

	// A toggle may have been a real navigation; put the crawler back.
	if clicked > 0 && page.URL() != originalURL {
		page.Goto(originalURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(10000),
		})
	}

	links := make([]string, 0, len(revealed))
	for href := range revealed {
		links = append(links, href)
	}
	return links
}

func attributeValues(page playwright.Page, selector, attr string) ([]string, error) {
	raw, err := page.Locator(selector).EvaluateAll(
		"(els, attr) => els.map(el => el.getAttribute(attr)).filter(v => v)", attr)
	if err != nil {
		return nil, err
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, nil
	}
	var values []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			values = append(values, s)
		}
	}
	return values, nil
}

func visibleHrefs(page playwright.Page) (map[string]bool, error) {
	raw, err := page.Locator("a[href]").EvaluateAll(
		"els => els.filter(el => el.offsetParent !== null).map(el => el.getAttribute('href'))")
	if err != nil {
		return nil, err
	}
	hrefs := make(map[string]bool)
	if items, ok := raw.([]any); ok {
		for _, item := range items {
			if s, ok := item.(string); ok && s != "" {
				hrefs[s] = true
			}
		}
	}
	return hrefs, nil
}

// isValidPageURL rejects asset and feed URLs by extension.
func isValidPageURL(absURL string) bool {
	lower := strings.ToLower(absURL)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range skipExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}
