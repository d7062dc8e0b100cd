package domain

// AuthMode selects how the engine authenticates against the target.
type AuthMode string

const (
	AuthModeNone        AuthMode = "none"
	AuthModeCredentials AuthMode = "credentials"
	AuthModeCookie      AuthMode = "cookie"
	AuthModeHeader      AuthMode = "header"
	AuthModeBasic       AuthMode = "basic"
)

// AuthCookie is a cookie injected for cookie-mode authentication.
type AuthCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"http_only"`
}

// AuthHeader is an extra HTTP header injected for header-mode authentication.
type AuthHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AuthConfig describes how to log in to the target. Smart selector resolution
// applies only to credentials mode; the other modes inject state directly.
type AuthConfig struct {
	Mode     AuthMode `json:"mode"`
	LoginURL string   `json:"login_url,omitempty"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`

	// Explicit selectors. When all three are set (or auto-detect is off)
	// the resolver skips its heuristic and LLM tiers.
	UsernameSelector string `json:"username_selector,omitempty"`
	PasswordSelector string `json:"password_selector,omitempty"`
	SubmitSelector   string `json:"submit_selector,omitempty"`

	// SuccessIndicator is a selector whose appearance confirms login.
	SuccessIndicator string `json:"success_indicator,omitempty"`

	AutoDetect  bool `json:"auto_detect"`
	LLMFallback bool `json:"llm_fallback"`

	Cookies []AuthCookie `json:"cookies,omitempty"`
	Headers []AuthHeader `json:"headers,omitempty"`
}

// Enabled reports whether any authentication is configured.
func (c *AuthConfig) Enabled() bool {
	return c != nil && c.Mode != "" && c.Mode != AuthModeNone
}

// HasCredentials reports whether credentials-mode login is fully configured.
func (c *AuthConfig) HasCredentials() bool {
	return c.Enabled() && c.Mode == AuthModeCredentials &&
		c.LoginURL != "" && c.Username != "" && c.Password != ""
}

// HasExplicitSelectors reports whether all three login selectors were given.
func (c *AuthConfig) HasExplicitSelectors() bool {
	return c != nil && c.UsernameSelector != "" && c.PasswordSelector != "" && c.SubmitSelector != ""
}

// AuthTier records which resolution mechanism produced the login selectors.
type AuthTier string

const (
	AuthTierExplicit    AuthTier = "explicit"
	AuthTierAutoDetect  AuthTier = "auto_detect"
	AuthTierLLMFallback AuthTier = "llm_fallback"
)

// AuthFlow is the resolved login recipe, recorded in the site model so later
// runs and reports can see how authentication was achieved.
type AuthFlow struct {
	LoginURL         string   `json:"login_url"`
	UsernameSelector string   `json:"username_selector"`
	PasswordSelector string   `json:"password_selector"`
	SubmitSelector   string   `json:"submit_selector"`
	Tier             AuthTier `json:"tier"`
	PostLoginURL     string   `json:"post_login_url,omitempty"`
}

// AuthResult is the outcome of a smart-auth attempt. StorageState carries the
// captured cookies+localStorage blob on success.
type AuthResult struct {
	Success      bool      `json:"success"`
	AuthFlow     *AuthFlow `json:"auth_flow,omitempty"`
	PostLoginURL string    `json:"post_login_url,omitempty"`
	Error        string    `json:"error,omitempty"`
	StorageState []byte    `json:"-"`
}
