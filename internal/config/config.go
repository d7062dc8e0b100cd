package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/webprobe/webprobe/internal/domain"
)

// Config holds all engine configuration
type Config struct {
	// Environment
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`

	// Target
	TargetURL string `envconfig:"WEBPROBE_TARGET_URL"`

	// State directories
	StateDir string `envconfig:"WEBPROBE_STATE_DIR" default:".webprobe"`
	RunsDir  string `envconfig:"WEBPROBE_RUNS_DIR" default:"runs"`

	Crawl    CrawlConfig
	Auth     AuthConfig
	Planner  PlannerConfig
	Executor ExecutorConfig
	Claude   ClaudeConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Report   ReportConfig
	Server   ServerConfig
}

// CrawlConfig holds crawler settings
type CrawlConfig struct {
	MaxPages        int           `envconfig:"CRAWL_MAX_PAGES" default:"30"`
	MaxDepth        int           `envconfig:"CRAWL_MAX_DEPTH" default:"3"`
	Timeout         time.Duration `envconfig:"CRAWL_TIMEOUT" default:"30s"`
	IncludePatterns []string      `envconfig:"CRAWL_INCLUDE_PATTERNS"`
	ExcludePatterns []string      `envconfig:"CRAWL_EXCLUDE_PATTERNS"`
	LoginPath       string        `envconfig:"CRAWL_LOGIN_PATH" default:"/login"`
	Headless        bool          `envconfig:"CRAWL_HEADLESS" default:"true"`
	ProbeTimeout    time.Duration `envconfig:"CRAWL_PROBE_TIMEOUT" default:"10s"`
}

// AuthConfig holds authentication settings. Password may be written
// "env:NAME" and is resolved from the process environment at load time.
type AuthConfig struct {
	Mode             string `envconfig:"AUTH_MODE" default:"none"`
	LoginURL         string `envconfig:"AUTH_LOGIN_URL"`
	Username         string `envconfig:"AUTH_USERNAME"`
	Password         string `envconfig:"AUTH_PASSWORD"`
	UsernameSelector string `envconfig:"AUTH_USERNAME_SELECTOR"`
	PasswordSelector string `envconfig:"AUTH_PASSWORD_SELECTOR"`
	SubmitSelector   string `envconfig:"AUTH_SUBMIT_SELECTOR"`
	SuccessIndicator string `envconfig:"AUTH_SUCCESS_INDICATOR"`
	AutoDetect       bool   `envconfig:"AUTH_AUTO_DETECT" default:"true"`
	LLMFallback      bool   `envconfig:"AUTH_LLM_FALLBACK" default:"true"`

	// Cookie mode: name=value pairs; the domain defaults to the target host.
	Cookies      []string `envconfig:"AUTH_COOKIES"`
	CookieDomain string   `envconfig:"AUTH_COOKIE_DOMAIN"`
	// Header mode: Name=Value pairs sent with every request.
	Headers []string `envconfig:"AUTH_HEADERS"`
}

// PlannerConfig holds test planning settings
type PlannerConfig struct {
	Categories          []string `envconfig:"PLANNER_CATEGORIES" default:"functional,visual,security"`
	MaxTests            int      `envconfig:"PLANNER_MAX_TESTS" default:"20"`
	VisualDiffTolerance float64  `envconfig:"PLANNER_VISUAL_DIFF_TOLERANCE" default:"0.05"`
	Viewports           []string `envconfig:"PLANNER_VIEWPORTS" default:"1920x1080"`
	Hints               []string `envconfig:"PLANNER_HINTS"`
	StalenessDays       int      `envconfig:"PLANNER_STALENESS_DAYS" default:"7"`
	HistoryRetention    int      `envconfig:"PLANNER_HISTORY_RETENTION" default:"10"`
}

// ExecutorConfig holds test execution settings
type ExecutorConfig struct {
	MaxParallelContexts   int           `envconfig:"EXEC_MAX_PARALLEL_CONTEXTS" default:"2"`
	MaxExecutionTime      time.Duration `envconfig:"EXEC_MAX_EXECUTION_TIME" default:"15m"`
	MaxFallbackCalls      int           `envconfig:"EXEC_AI_MAX_FALLBACK_CALLS_PER_TEST" default:"3"`
	FlakeDetection        bool          `envconfig:"EXEC_FLAKE_DETECTION" default:"false"`
	SmartResolve          bool          `envconfig:"EXEC_SMART_RESOLVE" default:"true"`
	DefaultTimeoutSeconds int           `envconfig:"EXEC_DEFAULT_TIMEOUT_SECONDS" default:"30"`
}

// ClaudeConfig holds LLM settings. An empty API key disables the client;
// planning then uses the deterministic fallback plan.
type ClaudeConfig struct {
	APIKey       string        `envconfig:"ANTHROPIC_API_KEY"`
	Model        string        `envconfig:"CLAUDE_MODEL" default:"claude-sonnet-4-20250514"`
	MaxTokens    int           `envconfig:"CLAUDE_MAX_TOKENS" default:"8192"`
	Timeout      time.Duration `envconfig:"CLAUDE_TIMEOUT" default:"120s"`
	RateLimitRPM int           `envconfig:"CLAUDE_RATE_LIMIT_RPM" default:"50"`
	CacheTTL     time.Duration `envconfig:"CLAUDE_CACHE_TTL" default:"24h"`
}

// RedisConfig holds optional LLM-cache settings
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// Addr returns Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds optional MinIO artifact-mirror settings
type StorageConfig struct {
	Enabled   bool   `envconfig:"STORAGE_ENABLED" default:"false"`
	Endpoint  string `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"STORAGE_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"STORAGE_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"STORAGE_BUCKET" default:"webprobe"`
	UseSSL    bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
}

// DatabaseConfig holds the optional run-history store. An empty DSN disables
// it; the coverage registry on disk remains the source of truth either way.
type DatabaseConfig struct {
	DSN string `envconfig:"DATABASE_DSN" default:""`
}

// ReportConfig holds report emission settings
type ReportConfig struct {
	Formats   []string `envconfig:"REPORT_FORMATS" default:"html,json"`
	OutputDir string   `envconfig:"REPORT_OUTPUT_DIR" default:"reports"`
}

// ServerConfig holds the report/metrics server settings
type ServerConfig struct {
	Host string `envconfig:"SERVER_HOST" default:"127.0.0.1"`
	Port int    `envconfig:"SERVER_PORT" default:"8099"`
}

// Addr returns the server listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load loads configuration from environment variables and resolves env:NAME
// secret indirections.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolveSecrets replaces "env:NAME" values with the named environment
// variable. A missing referenced variable is a fatal configuration error.
func (c *Config) resolveSecrets() error {
	resolved, err := ResolveSecret(c.Auth.Password)
	if err != nil {
		return err
	}
	c.Auth.Password = resolved

	resolved, err = ResolveSecret(c.Claude.APIKey)
	if err != nil {
		return err
	}
	c.Claude.APIKey = resolved

	return nil
}

// ResolveSecret resolves a possibly-indirected secret value. Values of the
// form "env:NAME" read NAME from the environment; anything else passes
// through unchanged.
func ResolveSecret(value string) (string, error) {
	if !strings.HasPrefix(value, "env:") {
		return value, nil
	}
	name := strings.TrimPrefix(value, "env:")
	if name == "" {
		return "", domain.WrapError(nil, domain.ErrCodeConfig, "empty env reference")
	}
	resolved, ok := os.LookupEnv(name)
	if !ok {
		return "", domain.NewError(domain.ErrCodeConfig,
			fmt.Sprintf("referenced environment variable %s is not set", name))
	}
	return resolved, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var problems []string

	if c.TargetURL == "" {
		problems = append(problems, "WEBPROBE_TARGET_URL is required")
	}

	switch c.Auth.Mode {
	case string(domain.AuthModeCredentials):
		if c.Auth.LoginURL == "" {
			problems = append(problems, "AUTH_LOGIN_URL is required for credentials auth")
		}
		if c.Auth.Username == "" || c.Auth.Password == "" {
			problems = append(problems, "AUTH_USERNAME and AUTH_PASSWORD are required for credentials auth")
		}
	case string(domain.AuthModeCookie):
		if len(c.Auth.Cookies) == 0 {
			problems = append(problems, "AUTH_COOKIES is required for cookie auth")
		}
	case string(domain.AuthModeHeader):
		if len(c.Auth.Headers) == 0 {
			problems = append(problems, "AUTH_HEADERS is required for header auth")
		}
	case string(domain.AuthModeBasic):
		if c.Auth.Username == "" || c.Auth.Password == "" {
			problems = append(problems, "AUTH_USERNAME and AUTH_PASSWORD are required for basic auth")
		}
	}

	for _, cat := range c.Planner.Categories {
		if !domain.TestCategory(cat).IsValid() {
			problems = append(problems, fmt.Sprintf("unknown planner category %q", cat))
		}
	}

	if c.Executor.MaxParallelContexts < 1 {
		problems = append(problems, "EXEC_MAX_PARALLEL_CONTEXTS must be >= 1")
	}

	if len(problems) > 0 {
		return domain.NewError(domain.ErrCodeConfig, strings.Join(problems, "; "))
	}
	return nil
}

// AuthDomain converts the flat env config into the domain auth config.
func (c *Config) AuthDomain() *domain.AuthConfig {
	if c.Auth.Mode == "" || c.Auth.Mode == string(domain.AuthModeNone) {
		return nil
	}
	auth := &domain.AuthConfig{
		Mode:             domain.AuthMode(c.Auth.Mode),
		LoginURL:         c.Auth.LoginURL,
		Username:         c.Auth.Username,
		Password:         c.Auth.Password,
		UsernameSelector: c.Auth.UsernameSelector,
		PasswordSelector: c.Auth.PasswordSelector,
		SubmitSelector:   c.Auth.SubmitSelector,
		SuccessIndicator: c.Auth.SuccessIndicator,
		AutoDetect:       c.Auth.AutoDetect,
		LLMFallback:      c.Auth.LLMFallback,
	}

	cookieDomain := c.Auth.CookieDomain
	if cookieDomain == "" {
		if u, err := url.Parse(c.TargetURL); err == nil {
			cookieDomain = u.Hostname()
		}
	}
	for _, pair := range c.Auth.Cookies {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			continue
		}
		auth.Cookies = append(auth.Cookies, domain.AuthCookie{
			Name:   name,
			Value:  value,
			Domain: cookieDomain,
		})
	}
	for _, pair := range c.Auth.Headers {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			continue
		}
		auth.Headers = append(auth.Headers, domain.AuthHeader{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}
	return auth
}

// LLMEnabled reports whether an LLM credential is configured.
func (c *Config) LLMEnabled() bool {
	return c.Claude.APIKey != ""
}

// GetLogLevel returns the effective zap log level name
func (c *Config) GetLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}
