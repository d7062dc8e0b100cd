package planner

import (
	"fmt"
	"strings"

	"github.com/webprobe/webprobe/internal/domain"
)

// FallbackPlan builds the deterministic plan used when the LLM is unavailable
// or its response is unusable: a navigate-and-smoke test per page, a
// screenshot-diff test per page when visual is enabled, and a form-submit
// test per form with type-derived values.
func FallbackPlan(site *domain.SiteModel, cfg Config) []domain.TestCase {
	visual := false
	for _, c := range cfg.Categories {
		if c == string(domain.CategoryVisual) {
			visual = true
		}
	}

	var cases []domain.TestCase

	for _, page := range site.Pages {
		requiresAuth := page.AuthRequired == domain.TriTrue

		cases = append(cases, domain.TestCase{
			TestID:            fmt.Sprintf("smoke-%s", page.PageID),
			Name:              fmt.Sprintf("Smoke: %s loads", displayName(page)),
			Category:          domain.CategoryFunctional,
			Priority:          2,
			TargetPageID:      page.PageID,
			CoverageSignature: fmt.Sprintf("page_load_%s", page.PageID),
			RequiresAuth:      requiresAuth,
			Steps: []domain.Action{
				{ActionType: domain.ActionNavigate, Value: page.URL, Description: "open the page"},
			},
			Assertions: []domain.Assertion{
				{AssertionType: domain.AssertElementVisible, Selector: "body", Description: "page rendered"},
				{AssertionType: domain.AssertNoConsoleErrors, Description: "no console errors"},
			},
			TimeoutSeconds: 30,
		})

		if visual {
			cases = append(cases, domain.TestCase{
				TestID:            fmt.Sprintf("visual-%s", page.PageID),
				Name:              fmt.Sprintf("Visual: %s unchanged", displayName(page)),
				Category:          domain.CategoryVisual,
				Priority:          3,
				TargetPageID:      page.PageID,
				CoverageSignature: fmt.Sprintf("visual_baseline_%s", page.PageID),
				RequiresAuth:      requiresAuth,
				Steps: []domain.Action{
					{ActionType: domain.ActionNavigate, Value: page.URL, Description: "open the page"},
				},
				Assertions: []domain.Assertion{
					{
						AssertionType: domain.AssertScreenshotDiff,
						Tolerance:     cfg.VisualDiffTolerance,
						Description:   "page matches baseline",
					},
				},
				TimeoutSeconds: 30,
			})
		}

		for fi, form := range page.Forms {
			tc := formSubmitTest(page, form, fi, requiresAuth)
			if tc != nil {
				cases = append(cases, *tc)
			}
		}
	}

	if cfg.MaxTests > 0 && len(cases) > cfg.MaxTests {
		cases = cases[:cfg.MaxTests]
	}
	return cases
}

// formSubmitTest fills each field with a type-derived value and submits.
func formSubmitTest(page *domain.PageModel, form domain.FormModel, index int, requiresAuth bool) *domain.TestCase {
	if len(form.Fields) == 0 || form.SubmitSelector == "" {
		return nil
	}

	steps := []domain.Action{
		{ActionType: domain.ActionNavigate, Value: page.URL, Description: "open the page"},
	}
	for _, field := range form.Fields {
		value := valueForField(field)
		if value == "" {
			continue
		}
		actionType := domain.ActionFill
		if field.FieldType == "select" {
			actionType = domain.ActionSelect
		}
		steps = append(steps, domain.Action{
			ActionType:  actionType,
			Selector:    field.Selector,
			Value:       value,
			Description: fmt.Sprintf("fill %s", field.Name),
		})
	}
	steps = append(steps, domain.Action{
		ActionType:  domain.ActionClick,
		Selector:    form.SubmitSelector,
		Description: "submit the form",
	})

	return &domain.TestCase{
		TestID:            fmt.Sprintf("form-%s-%d", page.PageID, index),
		Name:              fmt.Sprintf("Form submit: %s on %s", formName(form), displayName(page)),
		Category:          domain.CategoryFunctional,
		Priority:          3,
		TargetPageID:      page.PageID,
		CoverageSignature: fmt.Sprintf("form_submit_%s", form.FormID),
		RequiresAuth:      requiresAuth,
		Steps:             steps,
		Assertions: []domain.Assertion{
			{AssertionType: domain.AssertNoConsoleErrors, Description: "no console errors after submit"},
		},
		TimeoutSeconds: 45,
	}
}

// valueForField derives a plausible fill value from the field's type and name.
func valueForField(field domain.FormField) string {
	nameLower := strings.ToLower(field.Name)

	switch field.FieldType {
	case "email":
		return "test@example.com"
	case "password":
		return "TestP@ssw0rd123"
	case "tel":
		return "+15555550123"
	case "number":
		return "42"
	case "url":
		return "https://example.com"
	case "date":
		return "2024-01-15"
	case "checkbox", "radio":
		return "true"
	case "select":
		if len(field.Options) > 0 {
			return field.Options[0]
		}
		return ""
	case "textarea":
		return "This is a test message submitted by an automated check."
	}

	switch {
	case strings.Contains(nameLower, "email"):
		return "test@example.com"
	case strings.Contains(nameLower, "phone") || strings.Contains(nameLower, "tel"):
		return "+15555550123"
	case strings.Contains(nameLower, "name"):
		return "Test User"
	case strings.Contains(nameLower, "zip") || strings.Contains(nameLower, "postal"):
		return "94105"
	case strings.Contains(nameLower, "search") || nameLower == "q":
		return "test"
	}

	return "test value"
}

func displayName(page *domain.PageModel) string {
	if page.Title != "" {
		return page.Title
	}
	return page.URL
}

func formName(form domain.FormModel) string {
	if form.Action != "" {
		return form.Action
	}
	return form.FormID
}
