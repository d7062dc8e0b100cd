// Package browser owns the playwright lifecycle. One Runtime per process,
// one Session per isolated browser context.
package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 WebProbe/1.0"

// maskAutomation hides the webdriver flag so sites that gate on it behave the
// way they do for a human visitor.
const maskAutomation = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// Runtime wraps a running playwright driver and a launched Chromium instance.
type Runtime struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger
}

// NewRuntime starts playwright and launches Chromium.
func NewRuntime(headless bool, logger *zap.Logger) (*Runtime, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, domain.WrapError(err, domain.ErrCodeBrowser, "starting playwright")
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		pw.Stop()
		return nil, domain.WrapError(err, domain.ErrCodeBrowser, "launching browser")
	}

	return &Runtime{pw: pw, browser: browser, logger: logger}, nil
}

// Close shuts down the browser and the playwright driver.
func (r *Runtime) Close() error {
	if r.browser != nil {
		r.browser.Close()
	}
	if r.pw != nil {
		return r.pw.Stop()
	}
	return nil
}

// SessionOptions configures an isolated browser context.
type SessionOptions struct {
	ViewportWidth  int
	ViewportHeight int

	// StorageState seeds cookies and local storage from a previously captured
	// authenticated session. Nil means a fresh unauthenticated context.
	StorageState []byte

	// RecordVideoDir enables video recording into the given directory.
	RecordVideoDir string

	// ExtraHeaders are sent with every request (header auth mode).
	ExtraHeaders map[string]string

	// BasicAuthUsername/Password enable HTTP basic auth on the context.
	BasicAuthUsername string
	BasicAuthPassword string
}

// ApplyAuth sets the context options for auth modes whose state cannot ride
// in captured storage: headers and basic credentials must be present on every
// session that needs them. Other modes are no-ops here.
func (o *SessionOptions) ApplyAuth(cfg *domain.AuthConfig) {
	if cfg == nil {
		return
	}
	switch cfg.Mode {
	case domain.AuthModeHeader:
		if o.ExtraHeaders == nil {
			o.ExtraHeaders = make(map[string]string, len(cfg.Headers))
		}
		for _, h := range cfg.Headers {
			o.ExtraHeaders[h.Name] = h.Value
		}
	case domain.AuthModeBasic:
		o.BasicAuthUsername = cfg.Username
		o.BasicAuthPassword = cfg.Password
	}
}

// Session is an isolated browser context with a single page.
type Session struct {
	Context playwright.BrowserContext
	Page    playwright.Page

	stateFile string
}

// NewSession creates an isolated context and opens a page in it.
func (r *Runtime) NewSession(opts SessionOptions) (*Session, error) {
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = 1920
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = 1080
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		UserAgent: playwright.String(defaultUserAgent),
	}

	if len(opts.ExtraHeaders) > 0 {
		ctxOpts.ExtraHttpHeaders = opts.ExtraHeaders
	}
	if opts.BasicAuthUsername != "" {
		ctxOpts.HttpCredentials = &playwright.HttpCredentials{
			Username: opts.BasicAuthUsername,
			Password: opts.BasicAuthPassword,
		}
	}
	if opts.RecordVideoDir != "" {
		if err := os.MkdirAll(opts.RecordVideoDir, 0o755); err != nil {
			return nil, domain.WrapError(err, domain.ErrCodeBrowser, "creating video dir")
		}
		ctxOpts.RecordVideo = &playwright.RecordVideo{
			Dir: opts.RecordVideoDir,
			Size: &playwright.Size{
				Width:  opts.ViewportWidth,
				Height: opts.ViewportHeight,
			},
		}
	}

	// playwright-go takes storage state as a file path; stage the captured
	// bytes in a temp file for the context's lifetime.
	var stateFile string
	if len(opts.StorageState) > 0 {
		f, err := os.CreateTemp("", "webprobe-state-*.json")
		if err != nil {
			return nil, domain.WrapError(err, domain.ErrCodeBrowser, "staging storage state")
		}
		if _, err := f.Write(opts.StorageState); err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, domain.WrapError(err, domain.ErrCodeBrowser, "writing storage state")
		}
		f.Close()
		stateFile = f.Name()
		ctxOpts.StorageStatePath = playwright.String(stateFile)
	}

	browserCtx, err := r.browser.NewContext(ctxOpts)
	if err != nil {
		if stateFile != "" {
			os.Remove(stateFile)
		}
		return nil, domain.WrapError(err, domain.ErrCodeBrowser, "creating browser context")
	}

	if err := browserCtx.AddInitScript(playwright.Script{Content: playwright.String(maskAutomation)}); err != nil {
		r.logger.Debug("init script rejected", zap.Error(err))
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		if stateFile != "" {
			os.Remove(stateFile)
		}
		return nil, domain.WrapError(err, domain.ErrCodeBrowser, "creating page")
	}

	return &Session{Context: browserCtx, Page: page, stateFile: stateFile}, nil
}

// StorageState captures the session's cookies and local storage as JSON, for
// seeding later sessions.
func (s *Session) StorageState() ([]byte, error) {
	state, err := s.Context.StorageState()
	if err != nil {
		return nil, fmt.Errorf("capturing storage state: %w", err)
	}
	return json.Marshal(state)
}

// VideoPath returns the recorded video path, available after Close.
func (s *Session) VideoPath() (string, error) {
	video := s.Page.Video()
	if video == nil {
		return "", fmt.Errorf("no video recorded")
	}
	return video.Path()
}

// Close tears down the page and context. Safe to call more than once.
func (s *Session) Close() {
	if s.Page != nil {
		s.Page.Close()
	}
	if s.Context != nil {
		s.Context.Close()
	}
	if s.stateFile != "" {
		os.Remove(s.stateFile)
		s.stateFile = ""
	}
}

// SaveStorageState writes the captured state to path, creating parents.
func (s *Session) SaveStorageState(path string) error {
	data, err := s.StorageState()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
