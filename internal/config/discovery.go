package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// sessionDirOverride allows tests to redirect discovery files.
var sessionDirOverride string //nolint:gochecknoglobals // test hook

// SetSessionDirOverride sets a test override for SessionDir. Pass "" to
// restore the default.
func SetSessionDirOverride(dir string) {
	sessionDirOverride = dir
}

// SessionDiscovery describes a running session that serves a status
// endpoint, so other tools can find it.
type SessionDiscovery struct {
	ID         string `toml:"id"`
	Target     string `toml:"target"`
	StatusAddr string `toml:"status_addr"`
	PID        int    `toml:"pid"`
}

// SessionDir returns the directory holding discovery files:
// $XDG_RUNTIME_DIR/rdpc/sessions, falling back to the temp dir.
func SessionDir() string {
	if sessionDirOverride != "" {
		return sessionDirOverride
	}
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "rdpc", "sessions")
}

func discoveryPath(id string) string {
	return filepath.Join(SessionDir(), id+".toml")
}

// WriteSessionDiscovery writes the discovery file for d, readable only by
// the current user.
func WriteSessionDiscovery(d SessionDiscovery) error {
	if _, err := uuid.Parse(d.ID); err != nil {
		return fmt.Errorf("session id: %w", err)
	}
	if err := os.MkdirAll(SessionDir(), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(d); err != nil {
		return fmt.Errorf("encode session discovery: %w", err)
	}
	return os.WriteFile(discoveryPath(d.ID), buf.Bytes(), 0o600)
}

// ListSessions reads every discovery file, ordered by id. Unreadable files
// are skipped.
func ListSessions() ([]SessionDiscovery, error) {
	entries, err := os.ReadDir(SessionDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []SessionDiscovery
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		var d SessionDiscovery
		if _, err := toml.DecodeFile(filepath.Join(SessionDir(), e.Name()), &d); err != nil {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RemoveSessionDiscovery removes the discovery file for id (best-effort).
func RemoveSessionDiscovery(id string) {
	os.Remove(discoveryPath(id)) //nolint:errcheck // best-effort cleanup on shutdown
}
