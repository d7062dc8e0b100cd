package executor

import (
	"regexp"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
)

// Selector resolution: when a test's original selector misses, derived
// alternatives are tried with short timeouts, then the original is retried
// after the DOM settles. The first strategy to find a visible element wins.

// SelectorAlternative is one derived selector candidate.
type SelectorAlternative struct {
	Strategy string
	Selector string
}

var (
	idRe          = regexp.MustCompile(`#[A-Za-z][\w-]*`)
	attrRe        = regexp.MustCompile(`\[(name|placeholder|aria-label)\s*=\s*["']([^"']+)["']\]`)
	textSelRe     = regexp.MustCompile(`text[=~]\s*["']?([^"'\]]+)["']?`)
	hasTextRe     = regexp.MustCompile(`:has-text\(["']([^"']+)["']\)`)
	pseudoDropRe  = regexp.MustCompile(`:nth-child\([^)]*\)|:first-child|:last-child|:not\([^)]*\)|:has-text\([^)]*\)`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// DeriveAlternatives generates fallback selectors from the original, in the
// order they should be attempted. has-text lifting applies only to click and
// hover, where matching by text is safe.
func DeriveAlternatives(original string, actionType domain.ActionType) []SelectorAlternative {
	var alts []SelectorAlternative
	seen := map[string]bool{original: true}

	add := func(strategy, selector string) {
		selector = strings.TrimSpace(selector)
		if selector == "" || seen[selector] {
			return
		}
		seen[selector] = true
		alts = append(alts, SelectorAlternative{Strategy: strategy, Selector: selector})
	}

	if m := idRe.FindString(original); m != "" && m != original {
		add("id_only", m)
	}

	for _, m := range attrRe.FindAllStringSubmatch(original, -1) {
		attr, value := m[1], m[2]
		var strategy string
		switch attr {
		case "name":
			strategy = "name"
		case "placeholder":
			strategy = "placeholder"
		case "aria-label":
			strategy = "aria_label"
		}
		add(strategy, "["+attr+`="`+value+`"]`)
	}

	if m := textSelRe.FindStringSubmatch(original); m != nil {
		add("text", "text="+strings.TrimSpace(m[1]))
	}

	if actionType == domain.ActionClick || actionType == domain.ActionHover {
		if m := hasTextRe.FindStringSubmatch(original); m != nil {
			add("has_text_lifted", "text="+m[1])
		}
	}

	if relaxed := relaxCSS(original); relaxed != "" && relaxed != original {
		add("relaxed_css", relaxed)
	}

	return alts
}

// relaxCSS drops brittle pseudo-selectors and trims deep descendant chains to
// their last two segments.
func relaxCSS(selector string) string {
	relaxed := pseudoDropRe.ReplaceAllString(selector, "")
	relaxed = whitespaceRe.ReplaceAllString(strings.TrimSpace(relaxed), " ")

	if strings.Contains(relaxed, ">") {
		return relaxed
	}

	segments := strings.Split(relaxed, " ")
	if len(segments) > 3 {
		relaxed = strings.Join(segments[len(segments)-2:], " ")
	}
	return relaxed
}

// Resolver resolves selectors against a live page.
type Resolver struct {
	enabled bool
	logger  *zap.Logger
}

// NewResolver creates a resolver. When disabled it only ever tries the
// original selector.
func NewResolver(enabled bool, logger *zap.Logger) *Resolver {
	return &Resolver{enabled: enabled, logger: logger}
}

// Resolution is the outcome of resolving one selector.
type Resolution struct {
	Selector string
	Strategy string
}

// Resolve attempts the original selector, then derived alternatives with
// short timeouts, then a DOM-stability retry of the original. If everything
// misses it returns the original so the caller observes the real not-found
// error from the action itself.
func (r *Resolver) Resolve(page playwright.Page, original string, actionType domain.ActionType, fullTimeoutMs float64) Resolution {
	if r.waitVisible(page, original, fullTimeoutMs) {
		return Resolution{Selector: original, Strategy: "original"}
	}
	if !r.enabled {
		return Resolution{Selector: original, Strategy: "original"}
	}

	altTimeout := fullTimeoutMs / 3
	if altTimeout > 2000 {
		altTimeout = 2000
	}
	for _, alt := range DeriveAlternatives(original, actionType) {
		if r.waitVisible(page, alt.Selector, altTimeout) {
			r.logger.Info("selector resolved via alternative",
				zap.String("original", original),
				zap.String("strategy", alt.Strategy),
				zap.String("selector", alt.Selector))
			return Resolution{Selector: alt.Selector, Strategy: alt.Strategy}
		}
	}

	idleTimeout := fullTimeoutMs / 4
	if idleTimeout > 2000 {
		idleTimeout = 2000
	}
	page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(idleTimeout),
	})
	if r.waitVisible(page, original, altTimeout) {
		return Resolution{Selector: original, Strategy: "dom_stability_retry"}
	}

	return Resolution{Selector: original, Strategy: "original"}
}

func (r *Resolver) waitVisible(page playwright.Page, selector string, timeoutMs float64) bool {
	_, err := page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(timeoutMs),
	})
	return err == nil
}
