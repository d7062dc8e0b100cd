package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/browser"
	"github.com/webprobe/webprobe/internal/domain"
	"github.com/webprobe/webprobe/internal/llm"
)

const (
	urlChangeWait        = 5 * time.Second
	postSubmitIdleWait   = 5 * time.Second
	successIndicatorWait = 10 * time.Second
)

// AuthResolver resolves login selectors through three tiers (explicit config,
// heuristic form scoring, vision LLM), performs the login, verifies it, and
// captures the session's storage state.
type AuthResolver struct {
	runtime   *browser.Runtime
	llm       llm.Completer
	extractor *Extractor
	logger    *zap.Logger
}

// NewAuthResolver creates a resolver. completer may be nil; tier 3 is then
// unavailable.
func NewAuthResolver(runtime *browser.Runtime, completer llm.Completer, logger *zap.Logger) *AuthResolver {
	return &AuthResolver{
		runtime:   runtime,
		llm:       completer,
		extractor: NewExtractor(),
		logger:    logger,
	}
}

// Resolve performs the configured authentication in a fresh session and
// returns the result. Credentials mode runs the tiered login flow; cookie,
// header, and basic modes inject state directly and capture it.
func (r *AuthResolver) Resolve(ctx context.Context, cfg *domain.AuthConfig) *domain.AuthResult {
	if !cfg.Enabled() {
		return &domain.AuthResult{Success: false, Error: "auth not configured"}
	}

	switch cfg.Mode {
	case domain.AuthModeCredentials:
		return r.resolveCredentials(ctx, cfg)
	case domain.AuthModeCookie:
		return r.injectAndCapture(cfg, func(s *browser.Session) error {
			return injectCookies(s.Context, cfg.Cookies)
		})
	case domain.AuthModeHeader:
		headers := make(map[string]string, len(cfg.Headers))
		for _, h := range cfg.Headers {
			headers[h.Name] = h.Value
		}
		return r.sessionOptionResult(browser.SessionOptions{ExtraHeaders: headers})
	case domain.AuthModeBasic:
		return r.sessionOptionResult(browser.SessionOptions{
			BasicAuthUsername: cfg.Username,
			BasicAuthPassword: cfg.Password,
		})
	default:
		return &domain.AuthResult{Success: false, Error: fmt.Sprintf("unsupported auth mode: %s", cfg.Mode)}
	}
}

// resolveCredentials runs the three-tier selector resolution and login flow.
func (r *AuthResolver) resolveCredentials(ctx context.Context, cfg *domain.AuthConfig) *domain.AuthResult {
	if !cfg.HasCredentials() {
		return &domain.AuthResult{Success: false, Error: "credentials auth requires login URL, username, and password"}
	}

	session, err := r.runtime.NewSession(browser.SessionOptions{})
	if err != nil {
		return &domain.AuthResult{Success: false, Error: err.Error()}
	}
	defer session.Close()

	page := session.Page
	if _, err := page.Goto(cfg.LoginURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		return &domain.AuthResult{Success: false, Error: fmt.Sprintf("navigating to login page: %v", err)}
	}
	page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(10000),
	})

	flow, err := r.resolveSelectors(ctx, page, cfg)
	if err != nil {
		return &domain.AuthResult{Success: false, Error: err.Error()}
	}
	flow.LoginURL = cfg.LoginURL

	r.logger.Info("login selectors resolved",
		zap.String("tier", string(flow.Tier)),
		zap.String("username_selector", flow.UsernameSelector),
		zap.String("submit_selector", flow.SubmitSelector))

	if err := r.fillAndSubmit(page, flow, cfg); err != nil {
		return &domain.AuthResult{Success: false, AuthFlow: flow, Error: err.Error()}
	}

	r.waitPostSubmit(page, cfg.LoginURL)

	if err := r.verifyLogin(page, cfg); err != nil {
		return &domain.AuthResult{Success: false, AuthFlow: flow, Error: err.Error()}
	}

	state, err := session.StorageState()
	if err != nil {
		return &domain.AuthResult{Success: false, AuthFlow: flow,
			Error: fmt.Sprintf("capturing storage state: %v", err)}
	}

	flow.PostLoginURL = page.URL()
	return &domain.AuthResult{
		Success:      true,
		AuthFlow:     flow,
		PostLoginURL: page.URL(),
		StorageState: state,
	}
}

// resolveSelectors walks the three tiers in order.
func (r *AuthResolver) resolveSelectors(ctx context.Context, page playwright.Page, cfg *domain.AuthConfig) (*domain.AuthFlow, error) {
	// Tier 1: explicit selectors.
	if !cfg.AutoDetect || cfg.HasExplicitSelectors() {
		if !cfg.HasExplicitSelectors() {
			return nil, domain.WrapError(nil, domain.ErrCodeAuth,
				"auto-detect disabled but explicit selectors incomplete")
		}
		return &domain.AuthFlow{
			UsernameSelector: cfg.UsernameSelector,
			PasswordSelector: cfg.PasswordSelector,
			SubmitSelector:   cfg.SubmitSelector,
			Tier:             domain.AuthTierExplicit,
		}, nil
	}

	// Tier 2: heuristic form scoring.
	forms, err := r.extractor.ExtractForms(page)
	if err != nil {
		r.logger.Debug("form extraction failed during auth resolution", zap.Error(err))
	}
	if form := SelectLoginForm(forms); form != nil {
		passField := PasswordField(form)
		userField := UsernameField(form)
		if passField != nil && userField != nil {
			return &domain.AuthFlow{
				UsernameSelector: userField.Selector,
				PasswordSelector: passField.Selector,
				SubmitSelector:   form.SubmitSelector,
				Tier:             domain.AuthTierAutoDetect,
			}, nil
		}
	}
	if flow := r.orphanPasswordDetect(page); flow != nil {
		return flow, nil
	}

	// Tier 3: vision LLM.
	if cfg.LLMFallback && r.llm != nil {
		flow, err := r.visionResolve(ctx, page)
		if err == nil {
			return flow, nil
		}
		r.logger.Warn("vision selector resolution failed", zap.Error(err))
	}

	return nil, domain.NewError(domain.ErrCodeAuth, "no tier produced login selectors")
}

// orphanPasswordDetect handles login UIs built without a <form>: a visible
// password input with nearby text inputs and a submit button in the same
// container.
func (r *AuthResolver) orphanPasswordDetect(page playwright.Page) *domain.AuthFlow {
	passInput := page.Locator(`input[type="password"]:visible`).First()
	if count, err := passInput.Count(); err != nil || count == 0 {
		return nil
	}

	passSelector := r.extractor.synthesizeSelector(passInput, "input")

	// The enclosing container is the nearest ancestor that also holds a
	// text-like input.
	container := passInput.Locator(
		`xpath=ancestor::*[.//input[@type="text" or @type="email" or @type="tel"]][1]`)
	if count, err := container.Count(); err != nil || count == 0 {
		return nil
	}

	userInput := container.Locator(`input[type="email"]:visible, input[type="text"]:visible, input[type="tel"]:visible`).First()
	if count, err := userInput.Count(); err != nil || count == 0 {
		return nil
	}
	userSelector := r.extractor.synthesizeSelector(userInput, "input")

	submit := container.Locator(`button[type="submit"], input[type="submit"], button:visible`).First()
	submitSelector := ""
	if count, err := submit.Count(); err == nil && count > 0 {
		submitSelector = r.extractor.synthesizeSelector(submit, "button")
	}
	if submitSelector == "" {
		return nil
	}

	return &domain.AuthFlow{
		UsernameSelector: userSelector,
		PasswordSelector: passSelector,
		SubmitSelector:   submitSelector,
		Tier:             domain.AuthTierAutoDetect,
	}
}

const visionSystemPrompt = `You identify login form selectors on web pages. Given a screenshot and the page HTML, return ONLY a JSON object:
{"username_selector": "...", "password_selector": "...", "submit_selector": "...", "confidence": 0.0-1.0, "reasoning": "..."}
Selectors must be valid CSS. Use empty strings when an element cannot be identified.`

type visionSelectorResponse struct {
	UsernameSelector string  `json:"username_selector"`
	PasswordSelector string  `json:"password_selector"`
	SubmitSelector   string  `json:"submit_selector"`
	Confidence       float64 `json:"confidence"`
	Reasoning        string  `json:"reasoning"`
}

// visionResolve sends a screenshot plus DOM to the LLM (auth tier 3).
func (r *AuthResolver) visionResolve(ctx context.Context, page playwright.Page) (*domain.AuthFlow, error) {
	shot, err := page.Screenshot()
	if err != nil {
		return nil, fmt.Errorf("screenshotting login page: %w", err)
	}

	content, err := page.Content()
	if err != nil {
		content = ""
	}
	if len(content) > 8000 {
		content = content[:8000]
	}

	userPrompt := fmt.Sprintf("Identify the login form selectors on this page.\n\nHTML:\n%s", content)
	raw, err := r.llm.CompleteWithImage(ctx, visionSystemPrompt, userPrompt, shot)
	if err != nil {
		return nil, err
	}

	var resp visionSelectorResponse
	if err := llm.ParseJSON(raw, &resp, "", r.logger); err != nil {
		return nil, domain.WrapError(err, domain.ErrCodeLLMResponse, "vision selector response")
	}

	if resp.Confidence < 0.5 || resp.UsernameSelector == "" ||
		resp.PasswordSelector == "" || resp.SubmitSelector == "" {
		return nil, domain.NewError(domain.ErrCodeAuth,
			fmt.Sprintf("vision resolution below confidence threshold (%.2f): %s", resp.Confidence, resp.Reasoning))
	}

	return &domain.AuthFlow{
		UsernameSelector: resp.UsernameSelector,
		PasswordSelector: resp.PasswordSelector,
		SubmitSelector:   resp.SubmitSelector,
		Tier:             domain.AuthTierLLMFallback,
	}, nil
}

func (r *AuthResolver) fillAndSubmit(page playwright.Page, flow *domain.AuthFlow, cfg *domain.AuthConfig) error {
	if _, err := page.WaitForSelector(flow.UsernameSelector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(10000),
	}); err != nil {
		return fmt.Errorf("waiting for username field: %w", err)
	}

	if err := page.Locator(flow.UsernameSelector).Fill(cfg.Username); err != nil {
		return fmt.Errorf("filling username: %w", err)
	}
	if err := page.Locator(flow.PasswordSelector).Fill(cfg.Password); err != nil {
		return fmt.Errorf("filling password: %w", err)
	}
	if err := page.Locator(flow.SubmitSelector).Click(); err != nil {
		return fmt.Errorf("clicking submit: %w", err)
	}
	return nil
}

// waitPostSubmit waits for the URL to move off the login page, then for the
// network to settle. Both waits are budgets, not requirements.
func (r *AuthResolver) waitPostSubmit(page playwright.Page, loginURL string) {
	normalizedLogin := strings.TrimRight(loginURL, "/")
	deadline := time.Now().Add(urlChangeWait)
	for time.Now().Before(deadline) {
		if strings.TrimRight(page.URL(), "/") != normalizedLogin {
			break
		}
		page.WaitForTimeout(250)
	}

	page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(postSubmitIdleWait.Milliseconds())),
	})
}

// verifyLogin confirms the login took effect: success indicator if given,
// else URL moved off the login path, else no visible password field remains.
func (r *AuthResolver) verifyLogin(page playwright.Page, cfg *domain.AuthConfig) error {
	if cfg.SuccessIndicator != "" {
		if _, err := page.WaitForSelector(cfg.SuccessIndicator, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(float64(successIndicatorWait.Milliseconds())),
		}); err != nil {
			return domain.NewError(domain.ErrCodeAuth,
				fmt.Sprintf("success indicator %q did not appear", cfg.SuccessIndicator))
		}
		return nil
	}

	if strings.TrimRight(page.URL(), "/") != strings.TrimRight(cfg.LoginURL, "/") {
		return nil
	}

	passVisible := page.Locator(`input[type="password"]:visible`)
	if count, err := passVisible.Count(); err == nil && count == 0 {
		return nil
	}

	return domain.NewError(domain.ErrCodeAuth,
		fmt.Sprintf("login not verified: still on %s with a visible password field", page.URL()))
}

// injectAndCapture is shared by the direct-injection auth modes.
func (r *AuthResolver) injectAndCapture(cfg *domain.AuthConfig, inject func(*browser.Session) error) *domain.AuthResult {
	session, err := r.runtime.NewSession(browser.SessionOptions{})
	if err != nil {
		return &domain.AuthResult{Success: false, Error: err.Error()}
	}
	defer session.Close()

	if err := inject(session); err != nil {
		return &domain.AuthResult{Success: false, Error: err.Error()}
	}

	state, err := session.StorageState()
	if err != nil {
		return &domain.AuthResult{Success: false, Error: err.Error()}
	}
	return &domain.AuthResult{Success: true, StorageState: state}
}

// sessionOptionResult validates modes whose state lives in session options
// (headers, basic auth) rather than in captured storage.
func (r *AuthResolver) sessionOptionResult(opts browser.SessionOptions) *domain.AuthResult {
	session, err := r.runtime.NewSession(opts)
	if err != nil {
		return &domain.AuthResult{Success: false, Error: err.Error()}
	}
	defer session.Close()

	state, err := session.StorageState()
	if err != nil {
		return &domain.AuthResult{Success: false, Error: err.Error()}
	}
	return &domain.AuthResult{Success: true, StorageState: state}
}

func injectCookies(browserCtx playwright.BrowserContext, cookies []domain.AuthCookie) error {
	if len(cookies) == 0 {
		return fmt.Errorf("no cookies configured")
	}
	var optional []playwright.OptionalCookie
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		optional = append(optional, playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(path),
			Secure:   playwright.Bool(c.Secure),
			HttpOnly: playwright.Bool(c.HTTPOnly),
		})
	}
	return browserCtx.AddCookies(optional)
}
