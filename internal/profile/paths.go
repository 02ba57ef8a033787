package profile

import (
	"os"
	"path/filepath"
)

// HomeEnv relocates the base directory, mostly for tests and scripts.
const HomeEnv = "CHATLINE_HOME"

// BaseDir returns ~/.chatline unless CHATLINE_HOME is set.
func BaseDir() string {
	if v := os.Getenv(HomeEnv); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatline")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// ProfileConfigPath returns the per-profile overlay on top of the global config.
func ProfileConfigPath(name string) string {
	return filepath.Join(Dir(name), "config.toml")
}

// TokenPath returns the conventional bearer token file of a profile.
func TokenPath(name string) string {
	return filepath.Join(Dir(name), "token")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the client log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "chatline.log")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
