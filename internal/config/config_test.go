package config

import (
	"os"
	"testing"

	"github.com/webprobe/webprobe/internal/domain"
)

func TestResolveSecret_Passthrough(t *testing.T) {
	got, err := ResolveSecret("plain-value")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "plain-value" {
		t.Errorf("ResolveSecret() = %v, want plain-value", got)
	}
}

func TestResolveSecret_EnvReference(t *testing.T) {
	os.Setenv("WEBPROBE_TEST_SECRET", "s3cret")
	defer os.Unsetenv("WEBPROBE_TEST_SECRET")

	got, err := ResolveSecret("env:WEBPROBE_TEST_SECRET")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("ResolveSecret() = %v, want s3cret", got)
	}
}

func TestResolveSecret_MissingEnv(t *testing.T) {
	os.Unsetenv("WEBPROBE_MISSING_SECRET")

	_, err := ResolveSecret("env:WEBPROBE_MISSING_SECRET")
	if err == nil {
		t.Fatal("expected error for missing env reference")
	}
	if !domain.IsCode(err, domain.ErrCodeConfig) {
		t.Errorf("error code = %v, want %v", err, domain.ErrCodeConfig)
	}
}

func TestConfig_Validate_MissingTarget(t *testing.T) {
	cfg := Config{
		Executor: ExecutorConfig{MaxParallelContexts: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing target URL")
	}
}

func TestConfig_Validate_CredentialsAuth(t *testing.T) {
	cfg := Config{
		TargetURL: "https://example.com",
		Auth:      AuthConfig{Mode: "credentials"},
		Executor:  ExecutorConfig{MaxParallelContexts: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("credentials mode without login URL should fail validation")
	}

	cfg.Auth.LoginURL = "https://example.com/login"
	cfg.Auth.Username = "u"
	cfg.Auth.Password = "p"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestConfig_Validate_BadCategory(t *testing.T) {
	cfg := Config{
		TargetURL: "https://example.com",
		Planner:   PlannerConfig{Categories: []string{"functional", "chaos"}},
		Executor:  ExecutorConfig{MaxParallelContexts: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown category should fail validation")
	}
}

func TestConfig_AuthDomain(t *testing.T) {
	cfg := Config{Auth: AuthConfig{Mode: "none"}}
	if cfg.AuthDomain() != nil {
		t.Error("mode none should produce nil auth config")
	}

	cfg.Auth = AuthConfig{
		Mode:       "credentials",
		LoginURL:   "https://example.com/login",
		Username:   "u",
		Password:   "p",
		AutoDetect: true,
	}
	auth := cfg.AuthDomain()
	if auth == nil || !auth.HasCredentials() {
		t.Fatalf("AuthDomain() = %+v, want credentials config", auth)
	}
	if auth.Mode != domain.AuthModeCredentials {
		t.Errorf("Mode = %v", auth.Mode)
	}
}

func TestConfig_AuthDomain_CookieParsing(t *testing.T) {
	cfg := Config{
		TargetURL: "https://shop.example.com/app",
		Auth: AuthConfig{
			Mode:    "cookie",
			Cookies: []string{"sid=abc123", "theme=dark", "malformed", "=orphan"},
		},
	}

	auth := cfg.AuthDomain()
	if auth == nil {
		t.Fatal("AuthDomain() = nil")
	}
	if len(auth.Cookies) != 2 {
		t.Fatalf("cookies = %+v, malformed pairs must be dropped", auth.Cookies)
	}
	if auth.Cookies[0].Name != "sid" || auth.Cookies[0].Value != "abc123" {
		t.Errorf("cookie[0] = %+v", auth.Cookies[0])
	}
	if auth.Cookies[0].Domain != "shop.example.com" {
		t.Errorf("domain = %q, want the target host", auth.Cookies[0].Domain)
	}

	cfg.Auth.CookieDomain = ".example.com"
	auth = cfg.AuthDomain()
	if auth.Cookies[0].Domain != ".example.com" {
		t.Errorf("explicit cookie domain not honored: %q", auth.Cookies[0].Domain)
	}
}

func TestConfig_AuthDomain_HeaderParsing(t *testing.T) {
	cfg := Config{
		TargetURL: "https://example.com",
		Auth: AuthConfig{
			Mode:    "header",
			Headers: []string{"Authorization=Bearer tok-1", " X-Team = qa ", "nopair"},
		},
	}

	auth := cfg.AuthDomain()
	if auth == nil || len(auth.Headers) != 2 {
		t.Fatalf("headers = %+v, want 2 parsed pairs", auth)
	}
	if auth.Headers[0].Name != "Authorization" || auth.Headers[0].Value != "Bearer tok-1" {
		t.Errorf("header[0] = %+v", auth.Headers[0])
	}
	if auth.Headers[1].Name != "X-Team" || auth.Headers[1].Value != "qa" {
		t.Errorf("header[1] = %+v, want trimmed pair", auth.Headers[1])
	}
}

func TestConfig_Validate_CookieHeaderBasicAuth(t *testing.T) {
	cfg := Config{
		TargetURL: "https://example.com",
		Auth:      AuthConfig{Mode: "cookie"},
		Executor:  ExecutorConfig{MaxParallelContexts: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("cookie mode without cookies should fail validation")
	}
	cfg.Auth.Cookies = []string{"sid=abc"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}

	cfg.Auth = AuthConfig{Mode: "header"}
	if err := cfg.Validate(); err == nil {
		t.Error("header mode without headers should fail validation")
	}
	cfg.Auth.Headers = []string{"Authorization=Bearer tok"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}

	cfg.Auth = AuthConfig{Mode: "basic", Username: "u"}
	if err := cfg.Validate(); err == nil {
		t.Error("basic mode without a password should fail validation")
	}
	cfg.Auth.Password = "p"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestConfig_GetLogLevel(t *testing.T) {
	cfg := Config{LogLevel: "warn"}
	if cfg.GetLogLevel() != "warn" {
		t.Errorf("GetLogLevel() = %v", cfg.GetLogLevel())
	}
	cfg.Debug = true
	if cfg.GetLogLevel() != "debug" {
		t.Error("Debug should force debug level")
	}
}
