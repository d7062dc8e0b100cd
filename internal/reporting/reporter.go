package reporting

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/webprobe/webprobe/internal/domain"
	"github.com/webprobe/webprobe/internal/regression"
)

// maxEmbeddedScreenshots bounds how many images one test contributes; a long
// test would otherwise balloon the report file.
const maxEmbeddedScreenshots = 4

// Reporter renders run results to HTML and JSON files.
type Reporter struct {
	formats   []string
	outputDir string
	tmpl      *template.Template
	logger    *zap.Logger
}

// New creates a reporter for the configured formats ("html", "json").
func New(formats []string, outputDir string, logger *zap.Logger) (*Reporter, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"percent": func(v float64) string {
			return fmt.Sprintf("%.0f%%", v*100)
		},
		"durationMs": func(d time.Duration) string {
			return d.Round(time.Millisecond).String()
		},
		"statusGlyph": func(s domain.ResultStatus) string {
			switch s {
			case domain.ResultPass:
				return "✓"
			case domain.ResultFail:
				return "✗"
			case domain.ResultError:
				return "⚠"
			default:
				return "–"
			}
		},
	}).Parse(ReportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing report template: %w", err)
	}

	return &Reporter{formats: formats, outputDir: outputDir, tmpl: tmpl, logger: logger}, nil
}

type reportData struct {
	Run          *domain.RunResult
	Registry     *domain.CoverageRegistry
	Regressions  []regression.Transition
	Tests        []testView
	DurationText string
}

type testView struct {
	Name             string
	Result           domain.ResultStatus
	Category         domain.TestCategory
	Priority         int
	Duration         time.Duration
	FailureReason    string
	PotentiallyFlaky bool
	Screenshots      []template.URL
	VideoHref        template.URL
}

// Write renders the run into every configured format and returns the paths
// written. registry and regressions may be nil.
func (r *Reporter) Write(run *domain.RunResult, registry *domain.CoverageRegistry, regressions []regression.Transition) ([]string, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report dir: %w", err)
	}

	var paths []string
	for _, format := range r.formats {
		var (
			path string
			err  error
		)
		switch format {
		case "html":
			path, err = r.writeHTML(run, registry, regressions)
		case "json":
			path, err = r.writeJSON(run, regressions)
		default:
			r.logger.Warn("unknown report format", zap.String("format", format))
			continue
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
		r.logger.Info("report written", zap.String("format", format), zap.String("path", path))
	}
	return paths, nil
}

func (r *Reporter) writeHTML(run *domain.RunResult, registry *domain.CoverageRegistry, regressions []regression.Transition) (string, error) {
	data := reportData{
		Run:          run,
		Registry:     registry,
		Regressions:  regressions,
		DurationText: run.CompletedAt.Sub(run.StartedAt).Round(time.Second).String(),
	}
	for i := range run.TestResults {
		data.Tests = append(data.Tests, r.testView(&run.TestResults[i]))
	}

	path := filepath.Join(r.outputDir, fmt.Sprintf("report_%s.html", run.RunID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating html report: %w", err)
	}
	defer f.Close()

	if err := r.tmpl.Execute(f, data); err != nil {
		return "", fmt.Errorf("rendering html report: %w", err)
	}
	return path, nil
}

func (r *Reporter) writeJSON(run *domain.RunResult, regressions []regression.Transition) (string, error) {
	payload := struct {
		*domain.RunResult
		Regressions []regression.Transition `json:"regressions,omitempty"`
	}{run, regressions}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding json report: %w", err)
	}

	path := filepath.Join(r.outputDir, fmt.Sprintf("report_%s.json", run.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing json report: %w", err)
	}
	return path, nil
}

func (r *Reporter) testView(tr *domain.TestResult) testView {
	view := testView{
		Name:             tr.Name,
		Result:           tr.Result,
		Category:         tr.Category,
		Priority:         tr.Priority,
		Duration:         tr.Duration,
		FailureReason:    tr.FailureReason,
		PotentiallyFlaky: tr.PotentiallyFlaky,
	}

	// Failing tests carry their evidence inline; passing tests stay lean.
	if tr.Result == domain.ResultFail || tr.Result == domain.ResultError {
		for _, sr := range tr.StepResults {
			if sr.ScreenshotPath != "" {
				if uri := r.embedImage(sr.ScreenshotPath); uri != "" {
					view.Screenshots = append(view.Screenshots, uri)
				}
			}
			if len(view.Screenshots) >= maxEmbeddedScreenshots {
				break
			}
		}
	}

	if tr.Evidence.VideoPath != "" {
		if abs, err := filepath.Abs(tr.Evidence.VideoPath); err == nil {
			view.VideoHref = template.URL("file://" + abs)
		}
	}
	return view
}

func (r *Reporter) embedImage(path string) template.URL {
	data, err := os.ReadFile(path)
	if err != nil {
		r.logger.Debug("screenshot unreadable, skipping embed", zap.String("path", path))
		return ""
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(data))
}
