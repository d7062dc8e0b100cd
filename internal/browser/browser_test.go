package browser

import (
	"testing"

	"github.com/webprobe/webprobe/internal/domain"
)

func TestSessionOptions_ApplyAuth_Header(t *testing.T) {
	opts := SessionOptions{ExtraHeaders: map[string]string{"X-Existing": "kept"}}
	opts.ApplyAuth(&domain.AuthConfig{
		Mode: domain.AuthModeHeader,
		Headers: []domain.AuthHeader{
			{Name: "Authorization", Value: "Bearer tok-1"},
			{Name: "X-Team", Value: "qa"},
		},
	})

	if opts.ExtraHeaders["Authorization"] != "Bearer tok-1" {
		t.Errorf("Authorization = %q", opts.ExtraHeaders["Authorization"])
	}
	if opts.ExtraHeaders["X-Team"] != "qa" {
		t.Errorf("X-Team = %q", opts.ExtraHeaders["X-Team"])
	}
	if opts.ExtraHeaders["X-Existing"] != "kept" {
		t.Error("pre-set headers must survive ApplyAuth")
	}
}

func TestSessionOptions_ApplyAuth_Basic(t *testing.T) {
	var opts SessionOptions
	opts.ApplyAuth(&domain.AuthConfig{
		Mode:     domain.AuthModeBasic,
		Username: "admin",
		Password: "s3cret",
	})

	if opts.BasicAuthUsername != "admin" || opts.BasicAuthPassword != "s3cret" {
		t.Errorf("basic credentials = %q/%q", opts.BasicAuthUsername, opts.BasicAuthPassword)
	}
}

func TestSessionOptions_ApplyAuth_OtherModesUntouched(t *testing.T) {
	var opts SessionOptions
	opts.ApplyAuth(nil)
	opts.ApplyAuth(&domain.AuthConfig{Mode: domain.AuthModeCredentials, Username: "u", Password: "p"})
	opts.ApplyAuth(&domain.AuthConfig{
		Mode:    domain.AuthModeCookie,
		Cookies: []domain.AuthCookie{{Name: "sid", Value: "abc"}},
	})

	if opts.ExtraHeaders != nil || opts.BasicAuthUsername != "" {
		t.Errorf("cookie and credentials modes must not alter session options: %+v", opts)
	}
}
