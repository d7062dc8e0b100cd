package planner

import (
	"encoding/json"

	"github.com/webprobe/webprobe/internal/domain"
)

// Site summaries are capped so the prompt stays inside the model's useful
// context: at most 30 pages, at most 20 key elements per page.
const (
	maxSummaryPages    = 30
	maxSummaryElements = 20
)

type pageSummary struct {
	PageID       string             `json:"page_id"`
	URL          string             `json:"url"`
	Type         domain.PageType    `json:"type"`
	Title        string             `json:"title"`
	AuthRequired domain.TriState    `json:"auth_required"`
	ElementCount int                `json:"interactive_element_count"`
	Forms        []formSummary      `json:"forms,omitempty"`
	KeyElements  []elementSummary   `json:"key_elements,omitempty"`
}

type formSummary struct {
	FormID         string   `json:"form_id"`
	Action         string   `json:"action"`
	Method         string   `json:"method"`
	Fields         []string `json:"fields"`
	SubmitSelector string   `json:"submit_selector,omitempty"`
}

type elementSummary struct {
	Selector string `json:"selector"`
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
}

type siteSummary struct {
	BaseURL      string        `json:"base_url"`
	PageCount    int           `json:"page_count"`
	Pages        []pageSummary `json:"pages"`
	APIEndpoints []string      `json:"api_endpoints,omitempty"`
}

// SummarizeSite condenses a site model into the JSON document sent to the
// planning LLM.
func SummarizeSite(site *domain.SiteModel) ([]byte, error) {
	summary := siteSummary{
		BaseURL:   site.BaseURL,
		PageCount: len(site.Pages),
	}

	for _, ep := range site.APIEndpoints {
		summary.APIEndpoints = append(summary.APIEndpoints, ep.Method+":"+ep.Path)
	}

	pages := site.Pages
	if len(pages) > maxSummaryPages {
		pages = pages[:maxSummaryPages]
	}

	for _, p := range pages {
		interactive := p.InteractiveElements()

		ps := pageSummary{
			PageID:       p.PageID,
			URL:          p.URL,
			Type:         p.PageType,
			Title:        p.Title,
			AuthRequired: p.AuthRequired,
			ElementCount: len(interactive),
		}

		for _, f := range p.Forms {
			fs := formSummary{
				FormID:         f.FormID,
				Action:         f.Action,
				Method:         f.Method,
				SubmitSelector: f.SubmitSelector,
			}
			for _, field := range f.Fields {
				fs.Fields = append(fs.Fields, field.Name+":"+field.FieldType)
			}
			ps.Forms = append(ps.Forms, fs)
		}

		n := len(interactive)
		if n > maxSummaryElements {
			n = maxSummaryElements
		}
		for _, el := range interactive[:n] {
			ps.KeyElements = append(ps.KeyElements, elementSummary{
				Selector: el.Selector,
				Type:     el.ElementType,
				Text:     el.Text,
			})
		}

		summary.Pages = append(summary.Pages, ps)
	}

	return json.MarshalIndent(summary, "", "  ")
}

// SummarizeGaps condenses a gap report for the prompt. A nil report yields an
// empty document (first run).
func SummarizeGaps(report *domain.GapReport) ([]byte, error) {
	if report == nil || len(report.Gaps) == 0 {
		return []byte(`{"gaps": []}`), nil
	}
	return json.MarshalIndent(report, "", "  ")
}
