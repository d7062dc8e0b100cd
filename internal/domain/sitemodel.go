package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// PageType classifies a crawled page by its dominant DOM characteristics.
type PageType string

const (
	PageTypeStatic    PageType = "static"
	PageTypeForm      PageType = "form"
	PageTypeListing   PageType = "listing"
	PageTypeDetail    PageType = "detail"
	PageTypeDashboard PageType = "dashboard"
	PageTypeError     PageType = "error"
)

// TriState is a three-valued boolean for facts the crawler may not be able to
// establish, such as whether a page requires authentication.
type TriState string

const (
	TriTrue    TriState = "true"
	TriFalse   TriState = "false"
	TriUnknown TriState = "unknown"
)

// ElementModel describes one interactive element catalogued on a page.
type ElementModel struct {
	ElementID   string            `json:"element_id"`
	Tag         string            `json:"tag"`
	Selector    string            `json:"selector"`
	Role        string            `json:"role,omitempty"`
	Text        string            `json:"text,omitempty"`
	Interactive bool              `json:"interactive"`
	ElementType string            `json:"element_type,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// ElementID derives the stable element identifier from a selector and the
// element's index within its page.
func ElementID(selector string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", selector, index)))
	return hex.EncodeToString(sum[:])[:12]
}

// FormField describes one visible, fillable field of a form. Hidden, submit,
// button, reset, and image inputs are never included.
type FormField struct {
	Name              string   `json:"name"`
	FieldType         string   `json:"field_type"`
	Required          bool     `json:"required"`
	ValidationPattern string   `json:"validation_pattern,omitempty"`
	Options           []string `json:"options,omitempty"`
	Selector          string   `json:"selector"`
}

// FormModel describes a form and its submit path.
type FormModel struct {
	FormID         string      `json:"form_id"`
	Action         string      `json:"action"`
	Method         string      `json:"method"`
	Fields         []FormField `json:"fields"`
	SubmitSelector string      `json:"submit_selector,omitempty"`
}

// NetworkRequest is one request observed while a page was loading or being
// interacted with.
type NetworkRequest struct {
	Method       string `json:"method"`
	URL          string `json:"url"`
	ResourceType string `json:"resource_type"`
	Status       int    `json:"status"`
}

// PageModel is the crawl-time snapshot of one page. It is created once per
// successfully loaded URL and never mutated after the crawl completes.
type PageModel struct {
	PageID          string           `json:"page_id"`
	URL             string           `json:"url"`
	PageType        PageType         `json:"page_type"`
	Title           string           `json:"title"`
	Elements        []ElementModel   `json:"elements"`
	Forms           []FormModel      `json:"forms"`
	NetworkRequests []NetworkRequest `json:"network_requests,omitempty"`
	AuthRequired    TriState         `json:"auth_required"`
	ScreenshotPath  string           `json:"screenshot_path,omitempty"`
	DOMPath         string           `json:"dom_path,omitempty"`
	Depth           int              `json:"depth"`
	CrawledAt       time.Time        `json:"crawled_at"`
}

// InteractiveElements returns the subset of catalogued elements that accept
// user interaction.
func (p *PageModel) InteractiveElements() []ElementModel {
	var out []ElementModel
	for _, el := range p.Elements {
		if el.Interactive {
			out = append(out, el)
		}
	}
	return out
}

// APIEndpoint is an XHR/fetch request promoted out of the network log,
// keyed by "METHOD:path".
type APIEndpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Count  int    `json:"count"`
}

// SiteModel is the crawler's output: everything the engine knows about the
// target's reachable surface. The navigation graph is directional; an edge
// from A to B means B was discovered from A.
type SiteModel struct {
	BaseURL         string                 `json:"base_url"`
	Pages           []*PageModel           `json:"pages"`
	NavigationGraph map[string][]string    `json:"navigation_graph"`
	APIEndpoints    []APIEndpoint          `json:"api_endpoints,omitempty"`
	AuthFlow        *AuthFlow              `json:"auth_flow,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CrawledAt       time.Time              `json:"crawled_at"`
}

// PageByID returns the page with the given page id, or nil.
func (s *SiteModel) PageByID(pageID string) *PageModel {
	for _, p := range s.Pages {
		if p.PageID == pageID {
			return p
		}
	}
	return nil
}
