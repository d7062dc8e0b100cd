package discovery

import (
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/webprobe/webprobe/internal/domain"
)

// Extractor catalogues interactive elements and form structure from a loaded
// page.
type Extractor struct{}

// NewExtractor creates a new element extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// interactive element query, including ARIA buttons and links
const interactiveQuery = `a[href], button, input:not([type="hidden"]), select, textarea, [role="button"], [role="link"], [onclick]`

// ExtractElements catalogues the page's interactive elements.
func (e *Extractor) ExtractElements(page playwright.Page) ([]domain.ElementModel, error) {
	var elements []domain.ElementModel

	locators := page.Locator(interactiveQuery)
	count, err := locators.Count()
	if err != nil {
		return elements, err
	}

	for i := 0; i < count; i++ {
		el := locators.Nth(i)

		tag := ""
		if tagName, err := el.Evaluate("el => el.tagName.toLowerCase()", nil); err == nil {
			tag, _ = tagName.(string)
		}
		if tag == "" {
			continue
		}

		selector := e.synthesizeSelector(el, tag)

		model := domain.ElementModel{
			ElementID:   domain.ElementID(selector, i),
			Tag:         tag,
			Selector:    selector,
			Interactive: true,
			ElementType: e.classifyElement(el, tag),
			Attributes:  map[string]string{},
		}

		if role, err := el.GetAttribute("role"); err == nil && role != "" {
			model.Role = role
		}
		if text, err := el.TextContent(); err == nil {
			text = strings.TrimSpace(text)
			if len(text) > 0 && len(text) < 80 {
				model.Text = text
			}
		}
		for _, attr := range []string{"type", "name", "href", "placeholder", "aria-label"} {
			if v, err := el.GetAttribute(attr); err == nil && v != "" {
				model.Attributes[attr] = v
			}
		}

		elements = append(elements, model)
	}

	return elements, nil
}

// synthesizeSelector builds the best available selector for an element.
// Preference order: data-testid, id, tag[name], aria-label, tag.class.
func (e *Extractor) synthesizeSelector(el playwright.Locator, tag string) string {
	if testID, err := el.GetAttribute("data-testid"); err == nil && testID != "" {
		return fmt.Sprintf(`[data-testid="%s"]`, testID)
	}
	if id, err := el.GetAttribute("id"); err == nil && id != "" {
		return "#" + id
	}
	if name, err := el.GetAttribute("name"); err == nil && name != "" {
		return fmt.Sprintf(`%s[name="%s"]`, tag, name)
	}
	if ariaLabel, err := el.GetAttribute("aria-label"); err == nil && ariaLabel != "" {
		return fmt.Sprintf(`[aria-label="%s"]`, ariaLabel)
	}
	if class, err := el.GetAttribute("class"); err == nil && class != "" {
		classes := strings.Fields(class)
		n := len(classes)
		if n > 3 {
			n = 3
		}
		return tag + "." + strings.Join(classes[:n], ".")
	}
	return tag
}

func (e *Extractor) classifyElement(el playwright.Locator, tag string) string {
	switch tag {
	case "a":
		return "link"
	case "button":
		return "button"
	case "select":
		return "select"
	case "textarea":
		return "input"
	case "input":
		if t, err := el.GetAttribute("type"); err == nil {
			switch t {
			case "submit", "button", "reset", "image":
				return "button"
			case "checkbox":
				return "checkbox"
			case "radio":
				return "radio"
			}
		}
		return "input"
	}
	if role, err := el.GetAttribute("role"); err == nil {
		switch role {
		case "button":
			return "button"
		case "link":
			return "link"
		}
	}
	return "other"
}

// excluded input types never become form fields
var excludedFieldTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
}

// ExtractForms extracts all forms and their fields from the page.
func (e *Extractor) ExtractForms(page playwright.Page) ([]domain.FormModel, error) {
	var forms []domain.FormModel

	formLocators := page.Locator("form")
	count, err := formLocators.Count()
	if err != nil {
		return forms, err
	}

	for i := 0; i < count; i++ {
		form := formLocators.Nth(i)

		model := domain.FormModel{Method: "GET"}

		formSelector := e.synthesizeSelector(form, "form")
		model.FormID = domain.ElementID(formSelector, i)

		if action, err := form.GetAttribute("action"); err == nil {
			model.Action = action
		}
		if method, err := form.GetAttribute("method"); err == nil && method != "" {
			model.Method = strings.ToUpper(method)
		}

		fields, _ := e.extractFormFields(form)
		model.Fields = fields

		submitBtn := form.Locator(`button[type="submit"], input[type="submit"], button:not([type])`).First()
		if submitCount, _ := submitBtn.Count(); submitCount > 0 {
			model.SubmitSelector = e.synthesizeSelector(submitBtn, "button")
		}

		forms = append(forms, model)
	}

	return forms, nil
}

// extractFormFields extracts fields from a form
func (e *Extractor) extractFormFields(form playwright.Locator) ([]domain.FormField, error) {
	var fields []domain.FormField

	inputLocators := form.Locator("input, textarea, select")
	count, err := inputLocators.Count()
	if err != nil {
		return fields, err
	}

	for i := 0; i < count; i++ {
		input := inputLocators.Nth(i)

		tag := "input"
		if tagName, err := input.Evaluate("el => el.tagName.toLowerCase()", nil); err == nil {
			if t, ok := tagName.(string); ok {
				tag = t
			}
		}

		fieldType := "text"
		switch tag {
		case "textarea":
			fieldType = "textarea"
		case "select":
			fieldType = "select"
		default:
			if t, err := input.GetAttribute("type"); err == nil && t != "" {
				fieldType = t
			}
		}
		if excludedFieldTypes[fieldType] {
			continue
		}

		field := domain.FormField{
			FieldType: fieldType,
			Selector:  e.synthesizeSelector(input, tag),
		}

		if name, err := input.GetAttribute("name"); err == nil {
			field.Name = name
		}
		if req, err := input.GetAttribute("required"); err == nil && req != "" {
			field.Required = true
		}
		if pattern, err := input.GetAttribute("pattern"); err == nil && pattern != "" {
			field.ValidationPattern = pattern
		}

		if tag == "select" {
			if raw, err := input.Evaluate(
				"el => Array.from(el.options).map(o => o.value)", nil); err == nil {
				if values, ok := raw.([]any); ok {
					for _, v := range values {
						if s, ok := v.(string); ok && s != "" {
							field.Options = append(field.Options, s)
						}
					}
				}
			}
		}

		fields = append(fields, field)
	}

	return fields, nil
}

// ClassifyPage classifies the page type from DOM heuristics. Precedence:
// error > form > dashboard > listing > detail > static.
func (e *Extractor) ClassifyPage(page playwright.Page, title string, forms []domain.FormModel) domain.PageType {
	titleLower := strings.ToLower(title)
	if strings.Contains(titleLower, "error") || strings.Contains(titleLower, "404") ||
		strings.Contains(titleLower, "not found") {
		return domain.PageTypeError
	}

	if len(forms) > 0 {
		return domain.PageTypeForm
	}

	dashboardMarkers := page.Locator(`[class*="dashboard"], [id*="dashboard"], [class*="widget"], aside + main`)
	if count, _ := dashboardMarkers.Count(); count > 0 {
		return domain.PageTypeDashboard
	}

	// Repeated card/row structures indicate a listing.
	listMarkers := page.Locator(`ul > li:nth-child(5), table tbody tr:nth-child(5), [class*="card"]:nth-child(3), [class*="list-item"]:nth-child(3)`)
	if count, _ := listMarkers.Count(); count > 0 {
		return domain.PageTypeListing
	}

	detailMarkers := page.Locator(`article, [class*="detail"], [itemtype]`)
	if count, _ := detailMarkers.Count(); count > 0 {
		return domain.PageTypeDetail
	}

	return domain.PageTypeStatic
}
