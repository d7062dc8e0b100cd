package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
)

// EvidenceCollector writes per-test artifacts under
// <runDir>/evidence/<test_id>/.
type EvidenceCollector struct {
	runDir string
	logger *zap.Logger
}

func NewEvidenceCollector(runDir string, logger *zap.Logger) *EvidenceCollector {
	return &EvidenceCollector{runDir: runDir, logger: logger}
}

// TestDir returns (creating it) the evidence directory for one test.
func (ec *EvidenceCollector) TestDir(testID string) (string, error) {
	dir := filepath.Join(ec.runDir, "evidence", sanitizeID(testID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating evidence dir: %w", err)
	}
	return dir, nil
}

// Screenshot captures the page into the test's evidence dir and returns the
// path. Failures are logged, not fatal; evidence never fails a test.
func (ec *EvidenceCollector) Screenshot(page playwright.Page, testID, label string) string {
	dir, err := ec.TestDir(testID)
	if err != nil {
		ec.logger.Warn("evidence dir unavailable", zap.Error(err))
		return ""
	}
	path := filepath.Join(dir, sanitizeID(label)+".png")
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path: playwright.String(path),
	}); err != nil {
		ec.logger.Warn("screenshot failed", zap.String("test_id", testID), zap.Error(err))
		return ""
	}
	return path
}

// Finalize writes the console log, network log, and DOM snapshot, and fills
// the Evidence record.
func (ec *EvidenceCollector) Finalize(page playwright.Page, testID string, monitor *SessionMonitor, evidence *domain.Evidence) {
	dir, err := ec.TestDir(testID)
	if err != nil {
		ec.logger.Warn("evidence dir unavailable", zap.Error(err))
		return
	}
	evidence.Dir = dir

	consolePath := filepath.Join(dir, "console.log")
	content := strings.Join(monitor.ConsoleErrors(), "\n")
	if err := os.WriteFile(consolePath, []byte(content), 0o644); err == nil {
		evidence.ConsoleLog = consolePath
	}

	networkPath := filepath.Join(dir, "network.json")
	if data, err := json.MarshalIndent(monitor.Network(), "", "  "); err == nil {
		if err := os.WriteFile(networkPath, data, 0o644); err == nil {
			evidence.NetworkLog = networkPath
		}
	}

	if page != nil {
		if dom, err := page.Content(); err == nil {
			domPath := filepath.Join(dir, "dom.html")
			if err := os.WriteFile(domPath, []byte(dom), 0o644); err == nil {
				evidence.DOMSnapshot = domPath
			}
		}
	}
}

// sanitizeID keeps evidence paths filesystem-safe.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}
