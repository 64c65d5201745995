package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/loginoidc/pkg/observability"
)

// ClientSecretEnv overrides clientSecret from the settings file when set
const ClientSecretEnv = "LOGINOIDC_CLIENT_SECRET"

// Provider supplies the current settings snapshot
type Provider interface {
	Settings() Settings
}

// Static is a Provider that always returns the same settings
type Static Settings

// Settings returns the wrapped settings
func (s Static) Settings() Settings {
	return Settings(s)
}

// FileProvider reads settings from a YAML file and can keep them current as
// the file changes.
type FileProvider struct {
	path    string
	current atomic.Pointer[Settings]
	logger  *observability.Logger
}

// NewFileProvider loads path over Defaults. The file must exist and validate.
func NewFileProvider(path string, logger *observability.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	p := &FileProvider{
		path:   path,
		logger: logger.WithField("settings_file", path),
	}
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	p.current.Store(&s)
	return p, nil
}

// Settings returns the last successfully loaded snapshot
func (p *FileProvider) Settings() Settings {
	return *p.current.Load()
}

// Load parses a settings file on top of Defaults and validates the result
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}
	return Parse(data)
}

// explicitEndpoints records which endpoint keys a settings file sets
type explicitEndpoints struct {
	AuthorizeURL    *string `yaml:"authorizeUrl"`
	TokenURL        *string `yaml:"tokenUrl"`
	UserinfoURL     *string `yaml:"userinfoUrl"`
	UserinfoIDField *string `yaml:"userinfoIdField"`
}

// Parse decodes YAML settings on top of Defaults and validates the result.
// With an issuerUrl, endpoints the file leaves out are left blank for
// discovery instead of taking the built-in defaults.
func Parse(data []byte) (Settings, error) {
	s := Defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	if s.IssuerURL != "" {
		var set explicitEndpoints
		if err := yaml.Unmarshal(data, &set); err != nil {
			return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
		}
		if set.AuthorizeURL == nil {
			s.AuthorizeURL = ""
		}
		if set.TokenURL == nil {
			s.TokenURL = ""
		}
		if set.UserinfoURL == nil {
			s.UserinfoURL = ""
		}
		if set.UserinfoIDField == nil {
			s.UserinfoIDField = IssuerUserinfoIDField
		}
	}
	if secret := os.Getenv(ClientSecretEnv); secret != "" {
		s.ClientSecret = secret
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// Reload re-reads the file. On failure the previous snapshot stays active.
func (p *FileProvider) Reload() error {
	s, err := Load(p.path)
	if err != nil {
		return err
	}
	p.current.Store(&s)
	return nil
}

// Watch reloads the settings whenever the file is written, created or renamed
// into place. It blocks until ctx is cancelled.
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so atomic renames by editors and config management are seen.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		return fmt.Errorf("failed to watch settings directory: %w", err)
	}
	target := filepath.Clean(p.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := p.Reload(); err != nil {
				p.logger.WithError(err).Error("settings reload failed, keeping previous settings")
				continue
			}
			p.logger.Info("settings reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.WithError(err).Warn("settings watcher error")
		}
	}
}
