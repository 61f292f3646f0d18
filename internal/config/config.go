package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the root configuration for rosterctl, stored in
// ~/.rosterctl/config.yaml and overridable with ROSTERCTL_* variables.
type Config struct {
	API      APIConfig      `koanf:"api"`
	Auth     AuthConfig     `koanf:"auth"`
	Force    ForceConfig    `koanf:"force"`
	Enrich   EnrichConfig   `koanf:"enrich"`
	Autosave AutosaveConfig `koanf:"autosave"`
	Log      LogConfig      `koanf:"log"`
}

// APIConfig locates the roster backend.
type APIConfig struct {
	// BaseURL is the REST root, e.g. "https://roster.example.org/api".
	BaseURL string `koanf:"base_url"`
	// LiveURL is the WebSocket endpoint. Empty = derived from BaseURL + "/ws".
	LiveURL string `koanf:"live_url"`
	// Token is a static bearer token. When set the device code flow is skipped.
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

// AuthConfig holds the OAuth2 device code endpoints.
type AuthConfig struct {
	ClientID      string   `koanf:"client_id"`
	DeviceAuthURL string   `koanf:"device_auth_url"`
	TokenURL      string   `koanf:"token_url"`
	Scopes        []string `koanf:"scopes"`
}

// ForceConfig is read-mostly information about the organisation the
// logged-in user belongs to.
type ForceConfig struct {
	Name string `koanf:"name"`
	// DefaultRank prefixes the placeholder shown when a moderator cannot be
	// resolved.
	DefaultRank string `koanf:"default_rank"`
}

// EnrichConfig bounds moderator lookups.
type EnrichConfig struct {
	Concurrency   int     `koanf:"concurrency"`
	RatePerSecond float64 `koanf:"rate_per_second"`
}

// AutosaveConfig controls patrol auto-save.
type AutosaveConfig struct {
	Delay time.Duration `koanf:"delay"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

const (
	DefaultBaseURL     = "http://localhost:3000/api"
	DefaultDefaultRank = "Agente"
	DefaultClientID    = "rosterctl"
	envPrefix          = "ROSTERCTL_"
)

// Default returns a Config pre-filled with built-in defaults.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			ClientID: DefaultClientID,
			Scopes:   []string{"roster.read", "patrols.write", "offline_access"},
		},
		Force: ForceConfig{
			DefaultRank: DefaultDefaultRank,
		},
		Enrich: EnrichConfig{
			Concurrency:   8,
			RatePerSecond: 20,
		},
		Autosave: AutosaveConfig{
			Delay: 2 * time.Second,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// configTemplate is the annotated config written on first run.
const configTemplate = `# rosterctl configuration - ~/.rosterctl/config.yaml
#
# Every setting can also be given as an environment variable:
# ROSTERCTL_<SECTION>_<KEY>, e.g. ROSTERCTL_API_BASE_URL.

api:
  # REST root of the roster backend.
  base_url: "http://localhost:3000/api"
  # WebSocket endpoint for live updates. Leave empty to use <base_url>/ws.
  live_url: ""
  # Static bearer token. Leave empty to sign in with: rosterctl login
  token: ""
  timeout: 15s

auth:
  client_id: "rosterctl"
  # Leave empty to use <base_url>/oauth/device and <base_url>/oauth/token.
  device_auth_url: ""
  token_url: ""
  scopes: ["roster.read", "patrols.write", "offline_access"]

force:
  name: ""
  # Rank shown in front of "Desconhecido" when a moderator cannot be looked up.
  default_rank: "Agente"

enrich:
  # Parallel moderator lookups and their request rate.
  concurrency: 8
  rate_per_second: 20

autosave:
  # Idle time before a patrol edit is saved.
  delay: 2s

log:
  # trace, debug, info, warn, error, disabled
  level: "warn"
  # console or json
  format: "console"
  # Optional rotated log file.
  file: ""
`

// BaseDir returns the root data directory (~/.rosterctl).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".rosterctl"), nil
}

// FilePath returns the path to ~/.rosterctl/config.yaml.
func FilePath() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the config file at path (the default location when empty),
// applies ROSTERCTL_* overrides and validates the result. The annotated
// template is written when the default file does not exist yet.
func Load(path string) (Config, error) {
	if path == "" {
		p, err := FilePath()
		if err != nil {
			return Default(), err
		}
		path = p
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefault(path); writeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not create config file %s: %v\n", path, writeErr)
			}
		}
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Default(), fmt.Errorf("loading defaults: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Default(), fmt.Errorf("parsing config file %s: %w\nTip: delete the file to regenerate defaults", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Default(), fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Default(), fmt.Errorf("loading environment: %w", err)
	}
	if err := splitList(k, "auth.scopes"); err != nil {
		return Default(), err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Default(), fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// envKey maps ROSTERCTL_API_BASE_URL to api.base_url.
func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return section
	}
	return section + "." + rest
}

// splitList turns a comma-separated env value into a list.
func splitList(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var items []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	if err := k.Set(path, items); err != nil {
		return fmt.Errorf("setting %s: %w", path, err)
	}
	return nil
}

// Validate checks values that would otherwise fail much later.
func (c Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url %q must be an absolute http(s) URL", c.API.BaseURL)
	}
	if c.API.LiveURL != "" {
		lu, err := url.Parse(c.API.LiveURL)
		if err != nil || (lu.Scheme != "ws" && lu.Scheme != "wss") {
			return fmt.Errorf("api.live_url %q must be a ws(s) URL", c.API.LiveURL)
		}
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Enrich.Concurrency < 1 {
		return fmt.Errorf("enrich.concurrency must be at least 1")
	}
	if c.Autosave.Delay <= 0 {
		return fmt.Errorf("autosave.delay must be positive")
	}
	return nil
}

// LiveURL returns the WebSocket endpoint, deriving it from the REST root
// when not configured.
func (c Config) LiveURL() string {
	if c.API.LiveURL != "" {
		return c.API.LiveURL
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}

// DeviceAuthURL returns the device authorization endpoint.
func (c Config) DeviceAuthURL() string {
	if c.Auth.DeviceAuthURL != "" {
		return c.Auth.DeviceAuthURL
	}
	return strings.TrimSuffix(c.API.BaseURL, "/") + "/oauth/device"
}

// TokenURL returns the OAuth2 token endpoint.
func (c Config) TokenURL() string {
	if c.Auth.TokenURL != "" {
		return c.Auth.TokenURL
	}
	return strings.TrimSuffix(c.API.BaseURL, "/") + "/oauth/token"
}

// writeDefault creates the config directory and writes the annotated default
// config template.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
