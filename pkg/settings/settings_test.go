package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configured() Settings {
	s := Defaults()
	s.ClientID = "client"
	s.ClientSecret = "secret"
	return s
}

func TestDefaults(t *testing.T) {
	s := Defaults()

	assert.Equal(t, "OAuth login", s.AuthenticationName)
	assert.Equal(t, "id", s.UserinfoIDField)
	assert.True(t, s.DisableDirectInitiation)
	assert.False(t, s.AllowSignup)
	assert.False(t, s.IsConfigured(), "client credentials are not set by default")
}

func TestIsConfigured(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		want   bool
	}{
		{name: "complete", mutate: func(*Settings) {}, want: true},
		{name: "missing authorize url", mutate: func(s *Settings) { s.AuthorizeURL = "" }, want: false},
		{name: "missing token url", mutate: func(s *Settings) { s.TokenURL = "" }, want: false},
		{name: "missing userinfo url", mutate: func(s *Settings) { s.UserinfoURL = "" }, want: false},
		{name: "missing client id", mutate: func(s *Settings) { s.ClientID = "" }, want: false},
		{name: "missing client secret", mutate: func(s *Settings) { s.ClientSecret = "" }, want: false},
		{name: "end session url is optional", mutate: func(s *Settings) { s.EndSessionURL = "" }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := configured()
			tt.mutate(&s)
			assert.Equal(t, tt.want, s.IsConfigured())
		})
	}
}

func TestSubjectField(t *testing.T) {
	s := Settings{}
	assert.Equal(t, "id", s.SubjectField())

	s.UserinfoIDField = "sub"
	assert.Equal(t, "sub", s.SubjectField())
}

func TestAllowedDomains(t *testing.T) {
	s := Settings{AllowedSignupDomains: "example.com\r\n\n  example.org  \n"}
	assert.Equal(t, []string{"example.com", "example.org"}, s.AllowedDomains())

	assert.Empty(t, Settings{}.AllowedDomains())
}

func TestDomainAllowed(t *testing.T) {
	s := Settings{AllowedSignupDomains: "example.com"}

	assert.True(t, s.DomainAllowed("a@example.com"))
	assert.False(t, s.DomainAllowed("a@evil.com"))
	assert.False(t, s.DomainAllowed("a@Example.com"), "matching is case-sensitive")
	assert.False(t, s.DomainAllowed("a@sub.example.com"))
	assert.True(t, s.DomainAllowed("weird@name@example.com"), "domain is taken after the last @")

	assert.True(t, Settings{}.DomainAllowed("a@anything.test"), "empty list allows all")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Settings)
		errorMsg string
	}{
		{name: "defaults", mutate: func(*Settings) {}},
		{name: "valid domains", mutate: func(s *Settings) { s.AllowedSignupDomains = "example.com\nxn--bcher-kva.example\n_dmarc.example.org" }},
		{name: "uppercase domain", mutate: func(s *Settings) { s.AllowedSignupDomains = "Example.com" }, errorMsg: "not a valid domain"},
		{name: "leading hyphen", mutate: func(s *Settings) { s.AllowedSignupDomains = "-bad.com" }, errorMsg: "not a valid domain"},
		{name: "domain with at sign", mutate: func(s *Settings) { s.AllowedSignupDomains = "a@example.com" }, errorMsg: "not a valid domain"},
		{name: "relative token url", mutate: func(s *Settings) { s.TokenURL = "/token" }, errorMsg: "tokenUrl"},
		{name: "ftp end session url", mutate: func(s *Settings) { s.EndSessionURL = "ftp://example.com/logout" }, errorMsg: "endSessionUrl"},
		{name: "revoke without endpoint", mutate: func(s *Settings) { s.RevokeOnLogout = true }, errorMsg: "revokeOnLogout"},
		{name: "revoke with issuer", mutate: func(s *Settings) { s.RevokeOnLogout = true; s.IssuerURL = "https://id.example.com" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			err := s.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestStatic(t *testing.T) {
	s := configured()
	var p Provider = Static(s)
	assert.Equal(t, s, p.Settings())
}

func TestParse(t *testing.T) {
	t.Setenv(ClientSecretEnv, "")

	s, err := Parse([]byte(`
authenticationName: Sign in with Example
clientId: loginoidc
clientSecret: from-file
userinfoIdField: sub
allowSignup: true
disableDirectInitiation: false
allowedSignupDomains: |
  example.com
  example.org
`))
	require.NoError(t, err)

	assert.Equal(t, "Sign in with Example", s.AuthenticationName)
	assert.Equal(t, "loginoidc", s.ClientID)
	assert.Equal(t, "from-file", s.ClientSecret)
	assert.Equal(t, "sub", s.UserinfoIDField)
	assert.True(t, s.AllowSignup)
	assert.False(t, s.DisableDirectInitiation)
	assert.Equal(t, []string{"example.com", "example.org"}, s.AllowedDomains())
	// untouched keys keep their defaults
	assert.Equal(t, DefaultTokenURL, s.TokenURL)
}

func TestParseWithIssuer(t *testing.T) {
	t.Setenv(ClientSecretEnv, "")

	t.Run("endpoints left out are discovered", func(t *testing.T) {
		s, err := Parse([]byte(`
authenticationName: "Sign in with Example"
issuerUrl: https://id.example.com
clientId: loginoidc
allowSignup: true
`))
		require.NoError(t, err)

		assert.Equal(t, "https://id.example.com", s.IssuerURL)
		assert.Empty(t, s.AuthorizeURL)
		assert.Empty(t, s.TokenURL)
		assert.Empty(t, s.UserinfoURL)
		assert.Equal(t, IssuerUserinfoIDField, s.UserinfoIDField)
		assert.Equal(t, DefaultsForIssuer("https://id.example.com").AuthorizeURL, s.AuthorizeURL)
	})

	t.Run("explicit endpoints are kept", func(t *testing.T) {
		s, err := Parse([]byte(`
issuerUrl: https://id.example.com
tokenUrl: https://id.example.com/custom/token
userinfoIdField: id
`))
		require.NoError(t, err)

		assert.Empty(t, s.AuthorizeURL)
		assert.Equal(t, "https://id.example.com/custom/token", s.TokenURL)
		assert.Empty(t, s.UserinfoURL)
		assert.Equal(t, "id", s.UserinfoIDField)
	})
}

func TestParseSecretFromEnv(t *testing.T) {
	t.Setenv(ClientSecretEnv, "from-env")

	s, err := Parse([]byte("clientId: loginoidc\nclientSecret: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.ClientSecret)
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte("allowedSignupDomains: \"not a domain\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid settings")

	_, err = Parse([]byte("clientId: [unterminated\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse settings")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestFileProviderReload(t *testing.T) {
	t.Setenv(ClientSecretEnv, "")
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeFile(t, path, "clientId: first\n")

	p, err := NewFileProvider(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", p.Settings().ClientID)

	writeFile(t, path, "clientId: second\n")
	require.NoError(t, p.Reload())
	assert.Equal(t, "second", p.Settings().ClientID)

	writeFile(t, path, "tokenUrl: not-a-url\n")
	assert.Error(t, p.Reload())
	assert.Equal(t, "second", p.Settings().ClientID, "failed reload keeps the last good snapshot")
}

func TestNewFileProviderMissingFile(t *testing.T) {
	_, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read settings file")
}

func TestFileProviderWatch(t *testing.T) {
	t.Setenv(ClientSecretEnv, "")
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeFile(t, path, "clientId: before\n")

	p, err := NewFileProvider(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx) }()

	// the watcher registers asynchronously; keep rewriting until it picks up a change
	require.Eventually(t, func() bool {
		writeFile(t, path, "clientId: after\n")
		return p.Settings().ClientID == "after"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}
