package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/rdpc/internal/config"
)

// setTestSessionDir overrides the discovery directory for a test and
// restores it after the test completes.
func setTestSessionDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "sessions")
	config.SetSessionDirOverride(dir)
	t.Cleanup(func() { config.SetSessionDirOverride("") })
	return dir
}

func TestSessionDiscoveryLifecycle(t *testing.T) {
	dir := setTestSessionDir(t)

	a := config.SessionDiscovery{
		ID:         "6f9619ff-8b86-d011-b42d-00c04fc964ff",
		Target:     "desktop:3389",
		StatusAddr: "127.0.0.1:9090",
		PID:        4242,
	}
	b := config.SessionDiscovery{ID: "0a4b1c2d-0000-4000-8000-000000000001", Target: "other"}
	require.NoError(t, config.WriteSessionDiscovery(a))
	require.NoError(t, config.WriteSessionDiscovery(b))

	info, err := os.Stat(filepath.Join(dir, a.ID+".toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Garbage files are skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.toml"), []byte("[[["), 0o600))

	sessions, err := config.ListSessions()
	require.NoError(t, err)
	assert.Equal(t, []config.SessionDiscovery{b, a}, sessions)

	config.RemoveSessionDiscovery(a.ID)
	sessions, err = config.ListSessions()
	require.NoError(t, err)
	assert.Equal(t, []config.SessionDiscovery{b}, sessions)
}

func TestWriteSessionDiscoveryRejectsBadID(t *testing.T) {
	setTestSessionDir(t)

	err := config.WriteSessionDiscovery(config.SessionDiscovery{ID: "../escape"})
	assert.Error(t, err)
}

func TestListSessionsMissingDir(t *testing.T) {
	setTestSessionDir(t)

	sessions, err := config.ListSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessionDirFromRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/rdpc/sessions", config.SessionDir())
}
