package settings

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Default values applied before any settings file is read
const (
	DefaultAuthenticationName = "OAuth login"
	DefaultAuthorizeURL       = "https://github.com/login/oauth/authorize"
	DefaultTokenURL           = "https://github.com/login/oauth/access_token"
	DefaultUserinfoURL        = "https://api.github.com/user"
	DefaultUserinfoIDField    = "id"

	// IssuerUserinfoIDField is the subject claim used when endpoints come
	// from OpenID discovery
	IssuerUserinfoIDField = "sub"
)

// domainPattern accepts lowercase DNS names, optionally punycoded, with a single
// leading underscore allowed on a label.
var domainPattern = regexp.MustCompile(`^((xn--|_)?[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)*(xn--)?([a-z0-9][a-z0-9-]{0,60}|[a-z0-9][a-z0-9-]{0,29}\.[a-z]{2,})$`)

// Settings holds the sign-in policy and provider endpoints. Values are immutable
// snapshots; a Provider hands out copies.
type Settings struct {
	AuthenticationName string `yaml:"authenticationName" json:"authenticationName"`

	// IssuerURL enables OpenID discovery for any endpoint left blank.
	IssuerURL     string `yaml:"issuerUrl" json:"issuerUrl"`
	AuthorizeURL  string `yaml:"authorizeUrl" json:"authorizeUrl"`
	TokenURL      string `yaml:"tokenUrl" json:"tokenUrl"`
	UserinfoURL   string `yaml:"userinfoUrl" json:"userinfoUrl"`
	EndSessionURL string `yaml:"endSessionUrl" json:"endSessionUrl"`
	RevocationURL string `yaml:"revocationUrl" json:"revocationUrl"`

	RevokeOnLogout  bool   `yaml:"revokeOnLogout" json:"revokeOnLogout"`
	UserinfoIDField string `yaml:"userinfoIdField" json:"userinfoIdField"`

	ClientID            string `yaml:"clientId" json:"clientId"`
	ClientSecret        string `yaml:"clientSecret" json:"-"`
	Scope               string `yaml:"scope" json:"scope"`
	RedirectURIOverride string `yaml:"redirectUriOverride" json:"redirectUriOverride"`

	AllowSignup          bool   `yaml:"allowSignup" json:"allowSignup"`
	AllowedSignupDomains string `yaml:"allowedSignupDomains" json:"allowedSignupDomains"`

	DisableSuperuser            bool `yaml:"disableSuperuser" json:"disableSuperuser"`
	DisablePasswordConfirmation bool `yaml:"disablePasswordConfirmation" json:"disablePasswordConfirmation"`
	DisableDirectInitiation     bool `yaml:"disableDirectInitiation" json:"disableDirectInitiation"`
	HidePasswordLogin           bool `yaml:"hidePasswordLogin" json:"hidePasswordLogin"`
	BypassTwoFa                 bool `yaml:"bypassTwoFa" json:"bypassTwoFa"`
	AutoLinking                 bool `yaml:"autoLinking" json:"autoLinking"`
}

// Defaults returns the settings used when nothing has been configured
func Defaults() Settings {
	return Settings{
		AuthenticationName:      DefaultAuthenticationName,
		AuthorizeURL:            DefaultAuthorizeURL,
		TokenURL:                DefaultTokenURL,
		UserinfoURL:             DefaultUserinfoURL,
		UserinfoIDField:         DefaultUserinfoIDField,
		DisableDirectInitiation: true,
	}
}

// DefaultsForIssuer returns Defaults with the fixed endpoints removed, so
// every endpoint is discovered from issuer.
func DefaultsForIssuer(issuer string) Settings {
	s := Defaults()
	s.IssuerURL = issuer
	s.AuthorizeURL = ""
	s.TokenURL = ""
	s.UserinfoURL = ""
	s.UserinfoIDField = IssuerUserinfoIDField
	return s
}

// IsConfigured reports whether every value needed to run the authorization
// code flow is present.
func (s Settings) IsConfigured() bool {
	return s.AuthorizeURL != "" &&
		s.TokenURL != "" &&
		s.UserinfoURL != "" &&
		s.ClientID != "" &&
		s.ClientSecret != ""
}

// SubjectField returns the userinfo claim holding the remote user id
func (s Settings) SubjectField() string {
	if s.UserinfoIDField == "" {
		return DefaultUserinfoIDField
	}
	return s.UserinfoIDField
}

// AllowedDomains returns the newline separated signup domain allow-list.
// An empty result means every domain is accepted.
func (s Settings) AllowedDomains() []string {
	var domains []string
	for _, line := range strings.Split(s.AllowedSignupDomains, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			domains = append(domains, line)
		}
	}
	return domains
}

// DomainAllowed reports whether the e-mail's domain (everything after the last
// '@') is on the allow-list. Matching is case-sensitive.
func (s Settings) DomainAllowed(email string) bool {
	domains := s.AllowedDomains()
	if len(domains) == 0 {
		return true
	}
	domain := email[strings.LastIndex(email, "@")+1:]
	for _, d := range domains {
		if d == domain {
			return true
		}
	}
	return false
}

// Validate checks URL fields and the signup domain list
func (s Settings) Validate() error {
	urls := map[string]string{
		"issuerUrl":           s.IssuerURL,
		"authorizeUrl":        s.AuthorizeURL,
		"tokenUrl":            s.TokenURL,
		"userinfoUrl":         s.UserinfoURL,
		"endSessionUrl":       s.EndSessionURL,
		"revocationUrl":       s.RevocationURL,
		"redirectUriOverride": s.RedirectURIOverride,
	}
	for name, raw := range urls {
		if raw == "" {
			continue
		}
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	for _, domain := range s.AllowedDomains() {
		if !domainPattern.MatchString(domain) {
			return fmt.Errorf("allowedSignupDomains: %q is not a valid domain", domain)
		}
	}

	if s.RevokeOnLogout && s.RevocationURL == "" && s.IssuerURL == "" {
		return fmt.Errorf("revokeOnLogout requires revocationUrl or issuerUrl")
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must be absolute")
	}
	return nil
}
