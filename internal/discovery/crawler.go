// Package discovery crawls the target site with a real browser and produces
// the SiteModel consumed by the planner.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/browser"
	"github.com/webprobe/webprobe/internal/domain"
	"github.com/webprobe/webprobe/internal/urlnorm"
)

// CrawlConfig holds the crawler's runtime settings.
type CrawlConfig struct {
	MaxPages        int
	MaxDepth        int
	Timeout         time.Duration
	IncludePatterns []string
	ExcludePatterns []string
	LoginPath       string
	ProbeTimeout    time.Duration
	StateDir        string

	// Auth supplies header and basic credentials for the crawl session; these
	// modes do not ride in captured storage state.
	Auth *domain.AuthConfig
}

// Crawler drives one browser session sequentially across the frontier. Link
// extraction depends on the rendered DOM of the previous page, so pages are
// not crawled in parallel.
type Crawler struct {
	runtime   *browser.Runtime
	config    CrawlConfig
	extractor *Extractor
	logger    *zap.Logger

	baseURL string

	networkMu sync.Mutex
	network   []domain.NetworkRequest
	endpoints map[string]*domain.APIEndpoint

	onProgress func(done, total int)
}

// NewCrawler creates a crawler using an already-launched browser runtime.
func NewCrawler(runtime *browser.Runtime, config CrawlConfig, logger *zap.Logger) *Crawler {
	return &Crawler{
		runtime:   runtime,
		config:    config,
		extractor: NewExtractor(),
		logger:    logger,
		endpoints: make(map[string]*domain.APIEndpoint),
	}
}

// SetProgressCallback sets a callback for progress updates
func (c *Crawler) SetProgressCallback(fn func(done, total int)) {
	c.onProgress = fn
}

// Crawl discovers the site's reachable surface starting from startURL.
// An optional authenticated storage state lets the crawl see behind login.
func (c *Crawler) Crawl(ctx context.Context, startURL string, storageState []byte) (*domain.SiteModel, error) {
	normalizedStart := urlnorm.Normalize(startURL)
	c.baseURL = normalizedStart

	scope, err := CompileScope(normalizedStart, c.config.MaxDepth,
		c.config.IncludePatterns, c.config.ExcludePatterns)
	if err != nil {
		return nil, domain.ErrCrawlFailed("compiling scope patterns", err)
	}

	opts := browser.SessionOptions{StorageState: storageState}
	opts.ApplyAuth(c.config.Auth)
	session, err := c.runtime.NewSession(opts)
	if err != nil {
		return nil, domain.ErrCrawlFailed("opening crawl session", err)
	}
	defer session.Close()

	c.attachNetworkListener(session.Page)

	frontier := NewFrontier(scope)
	frontier.Enqueue(normalizedStart, 0, PriorityStart)

	collector := NewLinkCollector(normalizedStart, c.logger)

	site := &domain.SiteModel{
		BaseURL:         normalizedStart,
		NavigationGraph: make(map[string][]string),
		CrawledAt:       time.Now().UTC(),
	}

	sitemapLoaded := false

	for len(site.Pages) < c.config.MaxPages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		task := frontier.Pop()
		if task == nil {
			break
		}

		page := c.crawlPage(ctx, session.Page, task)
		if page == nil {
			continue
		}
		site.Pages = append(site.Pages, page)

		c.logger.Info("crawled page",
			zap.String("url", task.URL),
			zap.String("page_id", page.PageID),
			zap.String("type", string(page.PageType)),
			zap.Int("depth", task.Depth))
		if c.onProgress != nil {
			c.onProgress(len(site.Pages), c.config.MaxPages)
		}

		links := collector.Collect(session.Page)
		for _, link := range links {
			if frontier.Enqueue(link, task.Depth+1, PriorityOrganic) {
				targetID := urlnorm.PageID(link)
				site.NavigationGraph[page.PageID] = append(site.NavigationGraph[page.PageID], targetID)
			}
		}

		// Sitemap entries are backfill; load them only once the first real
		// page has shown which links the live UI actually exposes.
		if !sitemapLoaded {
			sitemapLoaded = true
			for _, u := range FetchSitemap(ctx, normalizedStart) {
				frontier.Enqueue(u, 1, PrioritySitemap)
			}
		}
	}

	c.networkMu.Lock()
	for _, ep := range c.endpoints {
		site.APIEndpoints = append(site.APIEndpoints, *ep)
	}
	c.networkMu.Unlock()

	if err := c.probeAuthRequired(site); err != nil {
		c.logger.Warn("auth probe failed, auth_required left unknown", zap.Error(err))
	}

	return site, nil
}

// attachNetworkListener accumulates network requests and promotes XHR/fetch
// traffic into the api_endpoints map keyed by METHOD:path.
func (c *Crawler) attachNetworkListener(page playwright.Page) {
	page.OnResponse(func(resp playwright.Response) {
		req := resp.Request()
		entry := domain.NetworkRequest{
			Method:       req.Method(),
			URL:          req.URL(),
			ResourceType: req.ResourceType(),
			Status:       resp.Status(),
		}

		c.networkMu.Lock()
		defer c.networkMu.Unlock()
		c.network = append(c.network, entry)

		if entry.ResourceType == "xhr" || entry.ResourceType == "fetch" {
			parsed, err := url.Parse(entry.URL)
			if err != nil {
				return
			}
			key := entry.Method + ":" + parsed.Path
			if ep, ok := c.endpoints[key]; ok {
				ep.Count++
			} else {
				c.endpoints[key] = &domain.APIEndpoint{
					Method: entry.Method,
					Path:   parsed.Path,
					Count:  1,
				}
			}
		}
	})
}

// crawlPage navigates to the task URL (one retry) and builds its PageModel.
// Returns nil if the page could not be loaded; that never fails the crawl.
func (c *Crawler) crawlPage(ctx context.Context, page playwright.Page, task *CrawlTask) *domain.PageModel {
	c.networkMu.Lock()
	networkStart := len(c.network)
	c.networkMu.Unlock()

	var resp playwright.Response
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err = page.Goto(task.URL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(c.config.Timeout.Milliseconds())),
		})
		if err == nil {
			break
		}
		c.logger.Warn("navigation failed",
			zap.String("url", task.URL), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	if err != nil {
		return nil
	}

	// Let SPA frameworks settle; a timeout here is not an error.
	page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(10000),
	})

	title, _ := page.Title()

	elements, err := c.extractor.ExtractElements(page)
	if err != nil {
		c.logger.Debug("element extraction degraded", zap.String("url", task.URL), zap.Error(err))
	}
	forms, err := c.extractor.ExtractForms(page)
	if err != nil {
		c.logger.Debug("form extraction degraded", zap.String("url", task.URL), zap.Error(err))
	}

	pageType := c.extractor.ClassifyPage(page, title, forms)
	if resp != nil && resp.Status() >= 400 {
		pageType = domain.PageTypeError
	}

	model := &domain.PageModel{
		PageID:       urlnorm.PageID(task.URL),
		URL:          task.URL,
		PageType:     pageType,
		Title:        title,
		Elements:     elements,
		Forms:        forms,
		AuthRequired: domain.TriUnknown,
		Depth:        task.Depth,
		CrawledAt:    time.Now().UTC(),
	}

	c.networkMu.Lock()
	if len(c.network) > networkStart {
		model.NetworkRequests = append(model.NetworkRequests, c.network[networkStart:]...)
	}
	c.networkMu.Unlock()

	model.ScreenshotPath = c.saveScreenshot(page, model.PageID)
	model.DOMPath = c.saveDOM(page, model.PageID)

	return model
}

// saveScreenshot takes a full-page baseline screenshot. Errors degrade to an
// empty path.
func (c *Crawler) saveScreenshot(page playwright.Page, pageID string) string {
	dir := filepath.Join(c.config.StateDir, "site_model", "baselines")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	path := filepath.Join(dir, pageID+".png")
	_, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Path:     playwright.String(path),
	})
	if err != nil {
		c.logger.Debug("screenshot failed", zap.String("page_id", pageID), zap.Error(err))
		return ""
	}
	return path
}

func (c *Crawler) saveDOM(page playwright.Page, pageID string) string {
	content, err := page.Content()
	if err != nil {
		return ""
	}
	dir := filepath.Join(c.config.StateDir, "site_model", "dom")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	path := filepath.Join(dir, pageID+".html")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return ""
	}
	return path
}

var loginTitleKeywords = []string{"login", "sign in", "log in", "authenticate"}

// probeAuthRequired re-visits every crawled page in a fresh unauthenticated
// session and marks which pages gate on login.
func (c *Crawler) probeAuthRequired(site *domain.SiteModel) error {
	session, err := c.runtime.NewSession(browser.SessionOptions{})
	if err != nil {
		return err
	}
	defer session.Close()

	timeout := float64(c.config.ProbeTimeout.Milliseconds())

	for _, page := range site.Pages {
		resp, err := session.Page.Goto(page.URL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(timeout),
		})
		if err != nil {
			page.AuthRequired = domain.TriUnknown
			continue
		}

		page.AuthRequired = domain.TriFalse

		if resp != nil && (resp.Status() == 401 || resp.Status() == 403) {
			page.AuthRequired = domain.TriTrue
			continue
		}

		finalURL, err := url.Parse(session.Page.URL())
		if err == nil && c.config.LoginPath != "" &&
			strings.Contains(finalURL.Path, c.config.LoginPath) &&
			!strings.Contains(page.URL, c.config.LoginPath) {
			page.AuthRequired = domain.TriTrue
			continue
		}

		title, _ := session.Page.Title()
		titleLower := strings.ToLower(title)
		for _, kw := range loginTitleKeywords {
			if strings.Contains(titleLower, kw) {
				page.AuthRequired = domain.TriTrue
				break
			}
		}
	}

	return nil
}

// Summary returns a short human-readable crawl summary for CLI output.
func Summary(site *domain.SiteModel) string {
	byType := make(map[domain.PageType]int)
	for _, p := range site.Pages {
		byType[p.PageType]++
	}
	return fmt.Sprintf("%d pages (%d forms, %d api endpoints) types=%v",
		len(site.Pages), countForms(site), len(site.APIEndpoints), byType)
}

func countForms(site *domain.SiteModel) int {
	n := 0
	for _, p := range site.Pages {
		n += len(p.Forms)
	}
	return n
}
