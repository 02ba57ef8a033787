package devserver

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	"github.com/matheus3301/chatline/internal/config"
	"github.com/matheus3301/chatline/internal/profile"
)

// Config represents chatd.toml.
type Config struct {
	Listen         string          `toml:"listen"`
	DBPath         string          `toml:"db_path"`
	LogPath        string          `toml:"log_path"`
	LogLevel       string          `toml:"log_level"`
	JWTSecret      string          `toml:"jwt_secret"`
	TokenTTL       config.Duration `toml:"token_ttl"`
	AllowedOrigins []string        `toml:"allowed_origins"`
	RateLimit      float64         `toml:"rate_limit"` // requests per second per user
	RateBurst      int             `toml:"rate_burst"`
	OnlineWindow   config.Duration `toml:"online_window"`
	Users          []SeedUser      `toml:"users"`
}

// SeedUser is an account created at startup.
type SeedUser struct {
	ID        string `toml:"id"`
	FirstName string `toml:"first_name"`
	LastName  string `toml:"last_name"`
	Email     string `toml:"email"`
}

// DefaultConfigPath returns ~/.chatline/chatd/chatd.toml.
func DefaultConfigPath() string {
	return filepath.Join(profile.BaseDir(), "chatd", "chatd.toml")
}

// DefaultConfig returns a local development setup with three users.
func DefaultConfig() *Config {
	dir := filepath.Join(profile.BaseDir(), "chatd")
	return &Config{
		Listen:         "127.0.0.1:8080",
		DBPath:         filepath.Join(dir, "chatd.db"),
		LogPath:        filepath.Join(dir, "chatd.log"),
		LogLevel:       "info",
		JWTSecret:      "chatd-dev-secret",
		TokenTTL:       config.Duration{Duration: 24 * time.Hour},
		AllowedOrigins: []string{"http://localhost:4200"},
		RateLimit:      20,
		RateBurst:      40,
		OnlineWindow:   config.Duration{Duration: 5 * time.Minute},
		Users: []SeedUser{
			{ID: "alice", FirstName: "Alice", LastName: "Smith", Email: "alice@example.com"},
			{ID: "bob", FirstName: "Bob", LastName: "Stone", Email: "bob@example.com"},
			{ID: "carol", FirstName: "Carol", LastName: "White", Email: "carol@example.com"},
		},
	}
}

// LoadConfig reads path on top of the defaults. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	seed := cfg.Users
	// Decoding into the default slice would merge fields into the seeded users.
	cfg.Users = nil
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.Users = seed
			return cfg, nil
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if !md.IsDefined("users") {
		cfg.Users = seed
	}
	return cfg, nil
}

// Validate checks the values the service needs to start.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.TokenTTL.Duration < 0 {
		return errors.New("token_ttl must not be negative")
	}
	if c.RateLimit <= 0 || c.RateBurst < 1 {
		return errors.New("rate_limit must be positive and rate_burst at least 1")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	seen := make(map[string]bool, len(c.Users))
	for _, u := range c.Users {
		if u.ID == "" {
			return errors.New("users: id is required")
		}
		if seen[u.ID] {
			return fmt.Errorf("users: duplicate id %q", u.ID)
		}
		seen[u.ID] = true
	}
	return nil
}
