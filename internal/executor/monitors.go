package executor

import (
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/webprobe/webprobe/internal/domain"
)

// benign console-error fragments that never fail a test
var benignConsolePatterns = []string{
	"favicon.ico",
	"the server responded with a status of 404 (not found)",
	"downloadable font",
	"third-party cookie",
}

// SessionMonitor accumulates console errors and network traffic for one test
// session. Attach immediately after session creation so nothing is missed.
type SessionMonitor struct {
	mu            sync.Mutex
	consoleErrors []string
	network       []domain.NetworkRequest
}

// NewSessionMonitor attaches listeners to the page.
func NewSessionMonitor(page playwright.Page) *SessionMonitor {
	m := &SessionMonitor{}

	page.OnConsole(func(msg playwright.ConsoleMessage) {
		if msg.Type() != "error" {
			return
		}
		text := msg.Text()
		lower := strings.ToLower(text)
		for _, benign := range benignConsolePatterns {
			if strings.Contains(lower, benign) {
				return
			}
		}
		m.mu.Lock()
		m.consoleErrors = append(m.consoleErrors, text)
		m.mu.Unlock()
	})

	page.OnResponse(func(resp playwright.Response) {
		req := resp.Request()
		m.mu.Lock()
		m.network = append(m.network, domain.NetworkRequest{
			Method:       req.Method(),
			URL:          req.URL(),
			ResourceType: req.ResourceType(),
			Status:       resp.Status(),
		})
		m.mu.Unlock()
	})

	return m
}

// ConsoleErrors returns the captured console errors, newest last.
func (m *SessionMonitor) ConsoleErrors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.consoleErrors))
	copy(out, m.consoleErrors)
	return out
}

// LastConsoleErrors returns at most n of the most recent console errors.
func (m *SessionMonitor) LastConsoleErrors(n int) []string {
	errors := m.ConsoleErrors()
	if len(errors) > n {
		errors = errors[len(errors)-n:]
	}
	return errors
}

// Network returns the captured network log.
func (m *SessionMonitor) Network() []domain.NetworkRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.NetworkRequest, len(m.network))
	copy(out, m.network)
	return out
}
