package executor

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/orisano/pixelmatch"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
	"github.com/webprobe/webprobe/internal/llm"
)

const (
	assertionVisibleTimeout = 5000.0
	// per-channel color threshold for pixel comparison, on pixelmatch's 0..1
	// scale (40 out of 255)
	pixelChannelThreshold = 40.0 / 255.0
	defaultDiffTolerance  = 0.05
	aiEvalConfidenceMin   = 0.7
)

// AssertionChecker evaluates assertions against current page state.
type AssertionChecker struct {
	llm         llm.Completer
	baselineDir string
	logger      *zap.Logger
}

// NewAssertionChecker creates a checker. completer may be nil; ai_evaluate
// then fails with low confidence. baselineDir holds screenshot baselines.
func NewAssertionChecker(completer llm.Completer, baselineDir string, logger *zap.Logger) *AssertionChecker {
	return &AssertionChecker{llm: completer, baselineDir: baselineDir, logger: logger}
}

// Check evaluates one assertion. monitor supplies console/network captures;
// pageID keys the screenshot baseline.
func (ac *AssertionChecker) Check(ctx context.Context, page playwright.Page, assertion domain.Assertion, monitor *SessionMonitor, pageID string) error {
	switch assertion.AssertionType {
	case domain.AssertElementVisible:
		_, err := page.WaitForSelector(assertion.Selector, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(assertionVisibleTimeout),
		})
		if err != nil {
			return fmt.Errorf("element %q not visible: %w", assertion.Selector, err)
		}
		return nil

	case domain.AssertElementHidden:
		locator := page.Locator(assertion.Selector)
		count, err := locator.Count()
		if err != nil || count == 0 {
			return nil
		}
		visible, err := locator.First().IsVisible()
		if err == nil && !visible {
			return nil
		}
		return fmt.Errorf("element %q is visible", assertion.Selector)

	case domain.AssertTextContains:
		text, err := ac.targetText(page, assertion.Selector)
		if err != nil {
			return err
		}
		if !strings.Contains(text, assertion.ExpectedValue) {
			return fmt.Errorf("text does not contain %q", assertion.ExpectedValue)
		}
		return nil

	case domain.AssertTextEquals:
		text, err := ac.targetText(page, assertion.Selector)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) != assertion.ExpectedValue {
			return fmt.Errorf("text %q != %q", strings.TrimSpace(text), assertion.ExpectedValue)
		}
		return nil

	case domain.AssertTextMatches:
		re, err := regexp.Compile(assertion.ExpectedValue)
		if err != nil {
			return fmt.Errorf("invalid regex %q: %w", assertion.ExpectedValue, err)
		}
		text, err := ac.targetText(page, assertion.Selector)
		if err != nil {
			return err
		}
		if !re.MatchString(text) {
			return fmt.Errorf("text does not match %q", assertion.ExpectedValue)
		}
		return nil

	case domain.AssertURLMatches:
		current := page.URL()
		if strings.Contains(current, assertion.ExpectedValue) {
			return nil
		}
		if re, err := regexp.Compile(assertion.ExpectedValue); err == nil && re.MatchString(current) {
			return nil
		}
		return fmt.Errorf("url %q does not match %q", current, assertion.ExpectedValue)

	case domain.AssertScreenshotDiff:
		return ac.screenshotDiff(page, assertion, pageID)

	case domain.AssertElementCount:
		want, err := strconv.Atoi(assertion.ExpectedValue)
		if err != nil {
			return fmt.Errorf("element_count expected_value %q is not an integer", assertion.ExpectedValue)
		}
		count, err := page.Locator(assertion.Selector).Count()
		if err != nil {
			return fmt.Errorf("counting %q: %w", assertion.Selector, err)
		}
		if count != want {
			return fmt.Errorf("element count %d != %d", count, want)
		}
		return nil

	case domain.AssertNetworkRequestMade:
		for _, req := range monitor.Network() {
			if strings.Contains(req.URL, assertion.ExpectedValue) {
				return nil
			}
		}
		return fmt.Errorf("no request matching %q was made", assertion.ExpectedValue)

	case domain.AssertNoConsoleErrors:
		errors := monitor.ConsoleErrors()
		if len(errors) > 0 {
			return fmt.Errorf("%d console errors, first: %s", len(errors), errors[0])
		}
		return nil

	case domain.AssertResponseStatus:
		want, err := strconv.Atoi(assertion.ExpectedValue)
		if err != nil {
			return fmt.Errorf("response_status expected_value %q is not an integer", assertion.ExpectedValue)
		}
		for _, req := range monitor.Network() {
			if req.Status == want {
				return nil
			}
		}
		return fmt.Errorf("no response with status %d observed", want)

	case domain.AssertAIEvaluate:
		return ac.aiEvaluate(ctx, page, assertion)

	default:
		return fmt.Errorf("unknown assertion type %q", assertion.AssertionType)
	}
}

func (ac *AssertionChecker) targetText(page playwright.Page, selector string) (string, error) {
	if selector == "" {
		selector = "body"
	}
	text, err := page.Locator(selector).First().TextContent(playwright.LocatorTextContentOptions{
		Timeout: playwright.Float(assertionVisibleTimeout),
	})
	if err != nil {
		return "", fmt.Errorf("reading text of %q: %w", selector, err)
	}
	return text, nil
}

// screenshotDiff compares the current page against the stored baseline.
// No baseline means this is the first run: the screenshot becomes the
// baseline and the assertion passes.
func (ac *AssertionChecker) screenshotDiff(page playwright.Page, assertion domain.Assertion, pageID string) error {
	// Let late renders, fonts, and animations settle first.
	page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(3000),
	})
	page.WaitForTimeout(500)

	fullPage := assertion.ExpectedValue == "full_page"
	shot, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
	})
	if err != nil {
		return fmt.Errorf("screenshotting for diff: %w", err)
	}

	baselinePath := filepath.Join(ac.baselineDir, pageID+".png")
	baselineData, err := os.ReadFile(baselinePath)
	if err != nil {
		if mkErr := os.MkdirAll(ac.baselineDir, 0o755); mkErr != nil {
			return fmt.Errorf("creating baseline dir: %w", mkErr)
		}
		if writeErr := os.WriteFile(baselinePath, shot, 0o644); writeErr != nil {
			return fmt.Errorf("writing first baseline: %w", writeErr)
		}
		ac.logger.Info("screenshot baseline created", zap.String("page_id", pageID))
		return nil
	}

	baseline, err := png.Decode(strings.NewReader(string(baselineData)))
	if err != nil {
		return fmt.Errorf("decoding baseline: %w", err)
	}
	current, err := png.Decode(strings.NewReader(string(shot)))
	if err != nil {
		return fmt.Errorf("decoding screenshot: %w", err)
	}

	ratio, err := diffRatio(baseline, current)
	if err != nil {
		return err
	}

	tolerance := assertion.Tolerance
	if tolerance == 0 {
		tolerance = defaultDiffTolerance
	}
	if ratio > tolerance {
		return fmt.Errorf("screenshot diff ratio %.4f exceeds tolerance %.4f", ratio, tolerance)
	}
	return nil
}

// diffRatio returns mismatched pixels over total pixels.
func diffRatio(baseline, current image.Image) (float64, error) {
	bb := baseline.Bounds()
	cb := current.Bounds()
	if bb.Dx() != cb.Dx() || bb.Dy() != cb.Dy() {
		return 1, fmt.Errorf("screenshot size %dx%d differs from baseline %dx%d",
			cb.Dx(), cb.Dy(), bb.Dx(), bb.Dy())
	}

	mismatched, err := pixelmatch.MatchPixel(baseline, current,
		pixelmatch.Threshold(pixelChannelThreshold))
	if err != nil {
		return 1, fmt.Errorf("comparing screenshots: %w", err)
	}

	total := bb.Dx() * bb.Dy()
	if total == 0 {
		return 0, nil
	}
	return float64(mismatched) / float64(total), nil
}

const aiEvaluateSystemPrompt = `You judge whether a web page satisfies a natural-language expectation. Given the page URL, its visible text, a screenshot, and the expectation, respond with ONLY a JSON object:
{"passed": true|false, "confidence": 0.0-1.0, "reasoning": "..."}`

type aiEvaluateResponse struct {
	Passed     bool    `json:"passed"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// aiEvaluate asks the LLM to judge the page against the expected value.
// Without an LLM the assertion fails with low confidence.
func (ac *AssertionChecker) aiEvaluate(ctx context.Context, page playwright.Page, assertion domain.Assertion) error {
	if ac.llm == nil {
		return fmt.Errorf("ai_evaluate unavailable: no LLM configured")
	}

	visibleText, err := page.Locator("body").InnerText()
	if err != nil {
		visibleText = ""
	}
	if len(visibleText) > 4000 {
		visibleText = visibleText[:4000]
	}

	shot, err := page.Screenshot()
	if err != nil {
		return fmt.Errorf("screenshotting for ai_evaluate: %w", err)
	}

	userPrompt := fmt.Sprintf("URL: %s\n\nVisible text:\n%s\n\nExpectation: %s",
		page.URL(), visibleText, assertion.ExpectedValue)

	raw, err := ac.llm.CompleteWithImage(ctx, aiEvaluateSystemPrompt, userPrompt, shot)
	if err != nil {
		return fmt.Errorf("ai_evaluate call failed: %w", err)
	}

	var resp aiEvaluateResponse
	if err := llm.ParseJSON(raw, &resp, "", ac.logger); err != nil {
		return fmt.Errorf("ai_evaluate response unusable: %w", err)
	}

	if !resp.Passed || resp.Confidence < aiEvalConfidenceMin {
		return fmt.Errorf("ai_evaluate judged false (confidence %.2f): %s", resp.Confidence, resp.Reasoning)
	}
	return nil
}
