package executor

import (
	"fmt"
	"strconv"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
)

// ActionRunner executes one test action against a page.
type ActionRunner struct {
	resolver *Resolver
	logger   *zap.Logger
}

// NewActionRunner creates an action runner sharing one selector resolver.
func NewActionRunner(resolver *Resolver, logger *zap.Logger) *ActionRunner {
	return &ActionRunner{resolver: resolver, logger: logger}
}

// Run dispatches the action. It returns the selector-resolution strategy used
// (empty for actions without selectors) and the action error, if any.
func (ar *ActionRunner) Run(page playwright.Page, action domain.Action, timeoutMs float64) (string, error) {
	switch action.ActionType {
	case domain.ActionNavigate:
		return "", ar.navigate(page, action, timeoutMs)

	case domain.ActionClick:
		res := ar.resolver.Resolve(page, action.Selector, action.ActionType, timeoutMs)
		err := page.Locator(res.Selector).Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(timeoutMs),
		})
		return res.Strategy, err

	case domain.ActionFill:
		res := ar.resolver.Resolve(page, action.Selector, action.ActionType, timeoutMs)
		err := page.Locator(res.Selector).Fill(action.Value, playwright.LocatorFillOptions{
			Timeout: playwright.Float(timeoutMs),
		})
		return res.Strategy, err

	case domain.ActionSelect:
		res := ar.resolver.Resolve(page, action.Selector, action.ActionType, timeoutMs)
		_, err := page.Locator(res.Selector).SelectOption(playwright.SelectOptionValues{
			Values: &[]string{action.Value},
		}, playwright.LocatorSelectOptionOptions{
			Timeout: playwright.Float(timeoutMs),
		})
		return res.Strategy, err

	case domain.ActionHover:
		res := ar.resolver.Resolve(page, action.Selector, action.ActionType, timeoutMs)
		err := page.Locator(res.Selector).Hover(playwright.LocatorHoverOptions{
			Timeout: playwright.Float(timeoutMs),
		})
		return res.Strategy, err

	case domain.ActionScroll:
		return "", ar.scroll(page, action)

	case domain.ActionWait:
		return ar.wait(page, action, timeoutMs)

	case domain.ActionKeyboard:
		key := action.Value
		if key == "" {
			key = "Enter"
		}
		return "", page.Keyboard().Press(key)

	case domain.ActionScreenshot:
		// Captured by the evidence collector around each step.
		return "", nil

	default:
		return "", fmt.Errorf("unknown action type %q", action.ActionType)
	}
}

// navigate goes to the value URL, waiting for domcontentloaded, then attempts
// a networkidle wait whose timeout is tolerated.
func (ar *ActionRunner) navigate(page playwright.Page, action domain.Action, timeoutMs float64) error {
	if action.Value == "" {
		return fmt.Errorf("navigate requires a value")
	}
	if _, err := page.Goto(action.Value, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(timeoutMs),
	}); err != nil {
		return err
	}
	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(10000),
	}); err != nil {
		ar.logger.Debug("networkidle after navigate timed out", zap.String("url", action.Value))
	}
	return nil
}

// scroll targets a numeric offset, a selector, or the page bottom.
func (ar *ActionRunner) scroll(page playwright.Page, action domain.Action) error {
	if action.Value != "" {
		if y, err := strconv.Atoi(action.Value); err == nil {
			_, evalErr := page.Evaluate(fmt.Sprintf("window.scrollTo(0, %d)", y))
			return evalErr
		}
	}
	if action.Selector != "" {
		return page.Locator(action.Selector).ScrollIntoViewIfNeeded()
	}
	_, err := page.Evaluate("window.scrollTo(0, document.body.scrollHeight)")
	return err
}

// wait blocks on a selector if present, else for value milliseconds, else 1s.
func (ar *ActionRunner) wait(page playwright.Page, action domain.Action, timeoutMs float64) (string, error) {
	if action.Selector != "" {
		res := ar.resolver.Resolve(page, action.Selector, action.ActionType, timeoutMs)
		_, err := page.WaitForSelector(res.Selector, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(timeoutMs),
		})
		return res.Strategy, err
	}

	ms := 1000.0
	if action.Value != "" {
		if parsed, err := strconv.ParseFloat(action.Value, 64); err == nil && parsed > 0 {
			ms = parsed
		}
	}
	page.WaitForTimeout(ms)
	return "", nil
}
