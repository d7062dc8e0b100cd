package planner

import (
	"fmt"
	"strings"
)

// systemPrompt frames the planning LLM as a QA engineer emitting the strict
// TestPlan JSON schema.
const systemPrompt = `You are an expert QA engineer who designs black-box test plans for web applications.

You receive a JSON summary of a crawled site and a JSON summary of coverage gaps from previous runs. You respond with ONLY a JSON object, no markdown, no prose, matching this schema exactly:

{
  "test_cases": [
    {
      "test_id": "unique-id",
      "name": "human readable name",
      "category": "functional" | "visual" | "security",
      "priority": 1-5,
      "target_page_id": "page id from the site summary",
      "coverage_signature": "stable behavior label, e.g. login_form_submit_valid",
      "requires_auth": true | false,
      "preconditions": [Action, ...],
      "steps": [Action, ...],
      "assertions": [Assertion, ...],
      "timeout_seconds": 30
    }
  ]
}

Action: {"action_type": "navigate"|"click"|"fill"|"select"|"hover"|"scroll"|"wait"|"screenshot"|"keyboard", "selector": "...", "value": "...", "description": "..."}
Assertion: {"assertion_type": "element_visible"|"element_hidden"|"text_contains"|"text_equals"|"text_matches"|"url_matches"|"screenshot_diff"|"element_count"|"network_request_made"|"no_console_errors"|"response_status"|"ai_evaluate", "selector": "...", "expected_value": "...", "tolerance": 0.05, "description": "..."}

Rules:
- click/fill/select/hover require a selector; fill requires a value.
- Every test needs at least one step and one assertion.
- Use selectors exactly as given in the site summary.
- Prefer testing untested and stale pages from the gaps document.
- For login steps use the literal placeholders {{auth_username}}, {{auth_password}}, {{auth_login_url}}.
- coverage_signature must describe the behavior tested, never the selector used.`

// buildUserPrompt assembles the planning request from the condensed site
// model, the gaps document, and the run configuration.
func buildUserPrompt(siteJSON, gapsJSON []byte, cfg Config) string {
	var sb strings.Builder

	sb.WriteString("## Site summary\n\n")
	sb.Write(siteJSON)

	sb.WriteString("\n\n## Coverage gaps\n\n")
	sb.Write(gapsJSON)

	sb.WriteString("\n\n## Configuration\n\n")
	fmt.Fprintf(&sb, "- categories: %s\n", strings.Join(cfg.Categories, ", "))
	fmt.Fprintf(&sb, "- max tests: %d\n", cfg.MaxTests)
	fmt.Fprintf(&sb, "- visual diff tolerance: %.2f\n", cfg.VisualDiffTolerance)
	if len(cfg.Viewports) > 0 {
		fmt.Fprintf(&sb, "- viewports: %s\n", strings.Join(cfg.Viewports, ", "))
	}

	if len(cfg.Hints) > 0 {
		sb.WriteString("\n## User guidance\n\n")
		for _, hint := range cfg.Hints {
			fmt.Fprintf(&sb, "- %s\n", hint)
		}
	}

	fmt.Fprintf(&sb, "\nGenerate up to %d test cases covering the configured categories. Respond with ONLY the JSON object.", cfg.MaxTests)

	return sb.String()
}
