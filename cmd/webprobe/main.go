package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/webprobe/webprobe/internal/config"
	"github.com/webprobe/webprobe/internal/domain"
	"github.com/webprobe/webprobe/internal/llm"
	"github.com/webprobe/webprobe/internal/observability"
	"github.com/webprobe/webprobe/internal/orchestrator"
	"github.com/webprobe/webprobe/internal/repository/postgres"
	"github.com/webprobe/webprobe/internal/storage"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

const usage = `webprobe - autonomous black-box QA for web applications

Usage:
  webprobe crawl              Discover the target's reachable surface
  webprobe plan               Generate a test plan from the site model
  webprobe execute [plan]     Execute the latest (or given) plan
  webprobe run                Full pipeline: crawl, plan, execute, report
  webprobe coverage show      Print the coverage registry summary
  webprobe coverage gaps      Print the gap report
  webprobe coverage reset     Wipe the coverage registry
  webprobe serve              Serve reports and metrics over HTTP

Configuration comes from the environment; a .env file is loaded when present.
WEBPROBE_TARGET_URL is required.
`

func main() {
	godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(2)
	}
	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		red.Printf("✗ configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.GetLogLevel())
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, cleanup, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		red.Printf("✗ startup: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := dispatch(ctx, command, app, cfg, logger); err != nil {
		red.Printf("✗ %s: %v\n", command, err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, command string, app *application, cfg *config.Config, logger *zap.Logger) error {
	switch command {
	case "crawl":
		return runCrawl(ctx, app)
	case "plan":
		return runPlan(ctx, app)
	case "execute":
		planPath := ""
		if len(os.Args) > 2 {
			planPath = os.Args[2]
		}
		return runExecute(ctx, app, planPath)
	case "run":
		return runPipeline(ctx, app)
	case "coverage":
		if len(os.Args) < 3 {
			return fmt.Errorf("coverage needs a subcommand: show, gaps, or reset")
		}
		return runCoverage(app, os.Args[2])
	case "serve":
		return runServe(ctx, app, cfg, logger)
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// application bundles the wired dependencies for one invocation.
type application struct {
	orch    *orchestrator.Orchestrator
	runs    *postgres.RunRepository
	metrics *observability.Metrics
	cfg     *config.Config
}

// bootstrap wires the optional collaborators: LLM client, Redis cache, run
// database, and artifact store. Each one degrades gracefully when absent.
func bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var completer llm.Completer
	if cfg.LLMEnabled() {
		var cache llm.ResponseCache
		if cfg.Redis.Enabled {
			redisCache, err := llm.NewRedisCache(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, logger)
			if err != nil {
				logger.Warn("redis unavailable, using in-memory LLM cache", zap.Error(err))
			} else {
				cache = redisCache
				closers = append(closers, func() { redisCache.Close() })
			}
		}
		client, err := llm.NewClient(llm.Config{
			APIKey:       cfg.Claude.APIKey,
			Model:        cfg.Claude.Model,
			MaxTokens:    cfg.Claude.MaxTokens,
			Timeout:      cfg.Claude.Timeout,
			RateLimitRPM: cfg.Claude.RateLimitRPM,
			CacheTTL:     cfg.Claude.CacheTTL,
		}, cache, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		completer = client
	} else {
		yellow.Println("⚠ no LLM API key configured: planning falls back to deterministic tests")
	}

	var runRepo *postgres.RunRepository
	if cfg.Database.DSN != "" {
		db, err := postgres.NewFromDSN(cfg.Database.DSN)
		if err != nil {
			logger.Warn("run database unavailable, history disabled", zap.Error(err))
		} else {
			runRepo = postgres.NewRunRepository(db.DB)
			closers = append(closers, func() { db.Close() })
		}
	}

	var artifacts *storage.ArtifactStore
	if cfg.Storage.Enabled {
		store, err := storage.New(ctx, storage.Config{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKey,
			SecretAccessKey: cfg.Storage.SecretKey,
			UseSSL:          cfg.Storage.UseSSL,
			BucketName:      cfg.Storage.Bucket,
		}, logger)
		if err != nil {
			logger.Warn("artifact store unavailable, mirroring disabled", zap.Error(err))
		} else {
			artifacts = store
		}
	}

	metrics := observability.NewMetrics("webprobe")
	orch := orchestrator.New(cfg, completer, metrics, runRepo, artifacts, logger)
	return &application{orch: orch, runs: runRepo, metrics: metrics, cfg: cfg}, cleanup, nil
}

func runCrawl(ctx context.Context, app *application) error {
	bold.Printf("Crawling %s\n", app.cfg.TargetURL)
	attachCrawlBar(app)

	site, err := app.orch.Crawl(ctx)
	if err != nil {
		return err
	}
	fmt.Println()

	green.Printf("✓ %d pages discovered\n", len(site.Pages))
	for _, page := range site.Pages {
		dim.Printf("  %-10s %s\n", page.PageType, page.URL)
	}
	return nil
}

func runPlan(ctx context.Context, app *application) error {
	site, err := app.orch.LoadSiteModel()
	if err != nil {
		return err
	}

	bold.Printf("Planning tests for %s (%d pages)\n", site.BaseURL, len(site.Pages))
	plan, err := app.orch.Plan(ctx, site)
	if err != nil {
		return err
	}

	green.Printf("✓ %d test cases (%s)\n", len(plan.TestCases), plan.Source)
	for _, tc := range plan.TestCases {
		dim.Printf("  P%d [%s] %s\n", tc.Priority, tc.Category, tc.Name)
	}
	return nil
}

func runExecute(ctx context.Context, app *application, planPath string) error {
	plan, err := app.orch.LoadPlan(planPath)
	if err != nil {
		return err
	}

	bold.Printf("Executing %d tests against %s\n", len(plan.TestCases), plan.TargetURL)
	run, err := app.orch.Execute(ctx, plan)
	if err != nil {
		return err
	}

	site, err := app.orch.LoadSiteModel()
	if err != nil {
		return err
	}
	if err := app.orch.MergeAndReport(ctx, site, run); err != nil {
		return err
	}

	printRunSummary(run)
	if run.Totals.Failed > 0 || run.Totals.Errors > 0 {
		os.Exit(1)
	}
	return nil
}

func runPipeline(ctx context.Context, app *application) error {
	bold.Printf("Running full pipeline against %s\n", app.cfg.TargetURL)
	attachCrawlBar(app)

	run, err := app.orch.Run(ctx)
	if err != nil {
		return err
	}

	printRunSummary(run)
	if run.Totals.Failed > 0 || run.Totals.Errors > 0 {
		os.Exit(1)
	}
	return nil
}

// attachCrawlBar shows crawl progress against the configured page budget.
func attachCrawlBar(app *application) {
	bar := progressbar.NewOptions(app.cfg.Crawl.MaxPages,
		progressbar.OptionSetDescription("Crawling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	app.orch.SetCrawlProgress(func(done, total int) {
		bar.Set(done)
	})
}

func printRunSummary(run *domain.RunResult) {
	fmt.Println()
	bold.Printf("Run %s\n", run.RunID)
	green.Printf("  passed  %d\n", run.Totals.Passed)
	if run.Totals.Failed > 0 {
		red.Printf("  failed  %d\n", run.Totals.Failed)
	}
	if run.Totals.Errors > 0 {
		yellow.Printf("  errors  %d\n", run.Totals.Errors)
	}
	if run.Totals.Skipped > 0 {
		dim.Printf("  skipped %d\n", run.Totals.Skipped)
	}

	for _, tr := range run.TestResults {
		switch tr.Result {
		case domain.ResultFail, domain.ResultError:
			red.Printf("  ✗ %s", tr.Name)
			if tr.PotentiallyFlaky {
				yellow.Print(" (possibly flaky)")
			}
			fmt.Println()
			dim.Printf("    %s\n", tr.FailureReason)
		}
	}

	if run.AISummary != "" {
		fmt.Println()
		cyan.Println("Summary")
		fmt.Println(run.AISummary)
	}
}

func runCoverage(app *application, sub string) error {
	switch sub {
	case "show":
		registry, err := app.orch.Registry()
		if err != nil {
			return err
		}
		stats := registry.GlobalStats
		bold.Printf("Coverage for %s\n", registry.TargetURL)
		fmt.Printf("  pages tested   %d/%d\n", stats.PagesTested, stats.TotalPages)
		fmt.Printf("  overall score  %.0f%%\n", stats.OverallScore*100)
		for cat, score := range stats.CategoryScores {
			fmt.Printf("  %-14s %.0f%%\n", cat, score*100)
		}
		if stats.RegressionCount > 0 {
			red.Printf("  regressions    %d\n", stats.RegressionCount)
		}
		return nil

	case "gaps":
		report, err := app.orch.Gaps()
		if err != nil {
			return err
		}
		if len(report.Gaps) == 0 {
			green.Println("✓ no coverage gaps")
			return nil
		}
		bold.Printf("%d coverage gaps\n", len(report.Gaps))
		for _, gap := range report.Gaps {
			fmt.Printf("  %-15s %s", gap.Kind, gap.URL)
			if gap.Signature != "" {
				dim.Printf(" (%s)", gap.Signature)
			}
			fmt.Println()
		}
		return nil

	case "reset":
		if err := app.orch.ResetCoverage(); err != nil {
			return err
		}
		green.Println("✓ coverage registry reset")
		return nil

	case "json":
		registry, err := app.orch.Registry()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(registry, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil

	default:
		return fmt.Errorf("unknown coverage subcommand %q", sub)
	}
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if zapLevel == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
