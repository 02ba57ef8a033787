package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.HTTP.RetryMaxElapsed = Duration{2 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.HTTP.RetryMaxElapsed.Duration != 2*time.Second {
		t.Errorf("RetryMaxElapsed = %v, want 2s", loaded.HTTP.RetryMaxElapsed)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[http]\ntimeout = \"3s\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Timeout.Duration != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", cfg.HTTP.Timeout)
	}
	if cfg.Server.PushURL != "ws://localhost:8080/ws" {
		t.Errorf("PushURL = %q, want default", cfg.Server.PushURL)
	}
	if cfg.HTTP.BreakerFailures != 5 {
		t.Errorf("BreakerFailures = %d, want 5", cfg.HTTP.BreakerFailures)
	}
}

func TestLoadLayered(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "config.toml")
	overlay := filepath.Join(dir, "profile.toml")
	if err := os.WriteFile(global, []byte("[server]\nbase_url = \"http://chat.example:9000\"\n[log]\nlevel = \"debug\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(overlay, []byte("[log]\nlevel = \"warn\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadLayered(global, filepath.Join(dir, "missing.toml"), overlay)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.BaseURL != "http://chat.example:9000" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[http]\ntimeout = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for bad duration")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"https and wss", func(c *Config) {
			c.Server.BaseURL = "https://chat.example"
			c.Server.PushURL = "wss://chat.example/ws"
		}, false},
		{"push over http", func(c *Config) { c.Server.PushURL = "http://localhost:8080/ws" }, true},
		{"relative base", func(c *Config) { c.Server.BaseURL = "/api" }, true},
		{"zero timeout", func(c *Config) { c.HTTP.Timeout = Duration{} }, true},
		{"negative retry", func(c *Config) { c.HTTP.RetryMaxElapsed = Duration{-time.Second} }, true},
		{"no breaker threshold", func(c *Config) { c.HTTP.BreakerFailures = 0 }, true},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveToken(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(tokenFile, []byte("from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Run("env wins", func(t *testing.T) {
		t.Setenv(TokenEnv, "from-env")
		got, err := AuthConfig{Token: "inline", TokenFile: tokenFile}.ResolveToken()
		if err != nil || got != "from-env" {
			t.Errorf("ResolveToken() = %q, %v", got, err)
		}
	})
	t.Run("inline before file", func(t *testing.T) {
		t.Setenv(TokenEnv, "")
		got, err := AuthConfig{Token: "inline", TokenFile: tokenFile}.ResolveToken()
		if err != nil || got != "inline" {
			t.Errorf("ResolveToken() = %q, %v", got, err)
		}
	})
	t.Run("file trimmed", func(t *testing.T) {
		t.Setenv(TokenEnv, "")
		got, err := AuthConfig{TokenFile: tokenFile}.ResolveToken()
		if err != nil || got != "from-file" {
			t.Errorf("ResolveToken() = %q, %v", got, err)
		}
	})
	t.Run("nothing", func(t *testing.T) {
		t.Setenv(TokenEnv, "")
		if _, err := (AuthConfig{}).ResolveToken(); err == nil {
			t.Error("ResolveToken() expected error")
		}
	})
}
