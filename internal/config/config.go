package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
)

// TokenEnv overrides the configured bearer token when set.
const TokenEnv = "CHATLINE_TOKEN"

// Config represents ~/.chatline/config.toml and the per-profile overlay.
type Config struct {
	DefaultProfile string       `toml:"default_profile"`
	Server         ServerConfig `toml:"server"`
	Auth           AuthConfig   `toml:"auth"`
	HTTP           HTTPConfig   `toml:"http"`
	Log            LogConfig    `toml:"log"`
}

type ServerConfig struct {
	BaseURL string `toml:"base_url"`
	PushURL string `toml:"push_url"`
}

type AuthConfig struct {
	Token     string `toml:"token"`
	TokenFile string `toml:"token_file"`
}

// HTTPConfig controls timeouts, retries and the circuit breaker of the REST client.
type HTTPConfig struct {
	Timeout         Duration `toml:"timeout"`
	RetryMaxElapsed Duration `toml:"retry_max_elapsed"`
	BreakerFailures uint32   `toml:"breaker_failures"`
	BreakerCooldown Duration `toml:"breaker_cooldown"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as a string ("15s") in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Server: ServerConfig{
			BaseURL: "http://localhost:8080",
			PushURL: "ws://localhost:8080/ws",
		},
		HTTP: HTTPConfig{
			Timeout:         Duration{15 * time.Second},
			BreakerFailures: 5,
			BreakerCooldown: Duration{30 * time.Second},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config from the given path on top of the defaults.
// Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLayered decodes every existing file in order on top of the defaults, so later
// files override earlier ones. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := Default()
	for _, p := range paths {
		if _, err := toml.DecodeFile(p, cfg); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate checks the values a client needs before it can talk to the service.
func (c *Config) Validate() error {
	if err := checkURL(c.Server.BaseURL, "http", "https"); err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	if err := checkURL(c.Server.PushURL, "ws", "wss"); err != nil {
		return fmt.Errorf("server.push_url: %w", err)
	}
	if c.HTTP.Timeout.Duration <= 0 {
		return errors.New("http.timeout must be positive")
	}
	if c.HTTP.RetryMaxElapsed.Duration < 0 {
		return errors.New("http.retry_max_elapsed must not be negative")
	}
	if c.HTTP.BreakerFailures == 0 {
		return errors.New("http.breaker_failures must be at least 1")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q must be an absolute %s URL", raw, strings.Join(schemes, "/"))
}

// ResolveToken returns the bearer token using precedence:
// 1. CHATLINE_TOKEN environment variable
// 2. auth.token
// 3. contents of auth.token_file
func (a AuthConfig) ResolveToken() (string, error) {
	if v := strings.TrimSpace(os.Getenv(TokenEnv)); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(a.Token); v != "" {
		return v, nil
	}
	if a.TokenFile != "" {
		data, err := os.ReadFile(a.TokenFile)
		if err != nil {
			return "", fmt.Errorf("read token file: %w", err)
		}
		if v := strings.TrimSpace(string(data)); v != "" {
			return v, nil
		}
	}
	return "", errors.New("no bearer token configured")
}
