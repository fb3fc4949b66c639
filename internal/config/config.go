package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the optional rdpc configuration file.
type Config struct {
	Session   SessionConfig   `toml:"session"`
	Transport TransportConfig `toml:"transport"`
	Theme     ThemeConfig     `toml:"theme"`
}

// SessionConfig holds defaults for what the client announces to the server.
// Nil fields are unset and leave the flag default in place.
type SessionConfig struct {
	User           *string `toml:"user"`
	Domain         *string `toml:"domain"`
	ClientName     *string `toml:"client_name"`
	Width          *int    `toml:"width"`
	Height         *int    `toml:"height"`
	Depth          *int    `toml:"depth"`
	KeyboardLayout *int    `toml:"keyboard_layout"`
}

// TransportConfig holds connection defaults.
type TransportConfig struct {
	Port        *int    `toml:"port"`
	Fingerprint *string `toml:"fingerprint"`
	Insecure    *bool   `toml:"insecure"`
	KnownHosts  *string `toml:"known_hosts"`
	Jump        *string `toml:"jump"`
	JumpUser    *string `toml:"jump_user"`
	JumpKey     *string `toml:"jump_key"`
	Timeout     *string `toml:"timeout"`
}

// TimeoutDuration parses Timeout. It returns def when unset.
func (t TransportConfig) TimeoutDuration(def time.Duration) (time.Duration, error) {
	if t.Timeout == nil {
		return def, nil
	}
	d, err := time.ParseDuration(*t.Timeout)
	if err != nil {
		return 0, fmt.Errorf("transport.timeout: %w", err)
	}
	return d, nil
}

// ThemeConfig holds optional color overrides.
type ThemeConfig struct {
	Green  *string `toml:"green"`
	Blue   *string `toml:"blue"`
	Yellow *string `toml:"yellow"`
	Red    *string `toml:"red"`
	Muted  *string `toml:"muted"`
	Bright *string `toml:"bright"`
}

// Dir returns the rdpc config directory.
func Dir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "rdpc")
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file is not an error.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}
