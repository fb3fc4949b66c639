package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/rdpc/internal/config"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "rdpc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rdpc", "config.toml"), []byte(content), 0o644))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Session.User)
	assert.Nil(t, cfg.Transport.Port)
	assert.Nil(t, cfg.Theme.Green)
}

func TestLoad_FullConfig(t *testing.T) {
	writeConfig(t, `
[session]
user = "alice"
domain = "CORP"
width = 1280
height = 800
depth = 16
keyboard_layout = 0x407

[transport]
port = 3390
fingerprint = "SHA256:abc"
insecure = false
jump = "bastion.example.com"
jump_user = "ops"
timeout = "15s"

[theme]
green = "#00ff00"
red = "#ff0000"
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Session.User)
	assert.Equal(t, "alice", *cfg.Session.User)
	require.NotNil(t, cfg.Session.Domain)
	assert.Equal(t, "CORP", *cfg.Session.Domain)
	require.NotNil(t, cfg.Session.Width)
	assert.Equal(t, 1280, *cfg.Session.Width)
	require.NotNil(t, cfg.Session.Depth)
	assert.Equal(t, 16, *cfg.Session.Depth)
	require.NotNil(t, cfg.Session.KeyboardLayout)
	assert.Equal(t, 0x407, *cfg.Session.KeyboardLayout)

	require.NotNil(t, cfg.Transport.Port)
	assert.Equal(t, 3390, *cfg.Transport.Port)
	require.NotNil(t, cfg.Transport.Insecure)
	assert.False(t, *cfg.Transport.Insecure)
	require.NotNil(t, cfg.Transport.Jump)
	assert.Equal(t, "bastion.example.com", *cfg.Transport.Jump)

	timeout, err := cfg.Transport.TimeoutDuration(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, timeout)

	require.NotNil(t, cfg.Theme.Green)
	assert.Equal(t, "#00ff00", *cfg.Theme.Green)

	// Unset fields should remain nil.
	assert.Nil(t, cfg.Session.ClientName)
	assert.Nil(t, cfg.Transport.JumpKey)
	assert.Nil(t, cfg.Theme.Bright)
}

func TestLoad_PartialConfig(t *testing.T) {
	writeConfig(t, `
[theme]
bright = "#ffffff"
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Nil(t, cfg.Session.User)
	assert.Nil(t, cfg.Session.Width)

	timeout, err := cfg.Transport.TimeoutDuration(10 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, timeout)

	require.NotNil(t, cfg.Theme.Bright)
	assert.Equal(t, "#ffffff", *cfg.Theme.Bright)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid toml", content: "invalid [[["},
		{name: "unknown key", content: "[session]\nusr = \"typo\"\n"},
		{name: "wrong type", content: "[session]\nwidth = \"wide\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.content)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestTimeoutDurationInvalid(t *testing.T) {
	t.Parallel()

	bad := "soon"
	_, err := config.TransportConfig{Timeout: &bad}.TimeoutDuration(time.Second)
	assert.ErrorContains(t, err, "transport.timeout")
}

func TestConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/rdpc/config.toml", config.Path())
}
