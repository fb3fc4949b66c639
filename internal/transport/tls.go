package transport

import (
	"bufio"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrFingerprintMismatch is returned when a server certificate does not
// match the pinned or previously recorded fingerprint.
var ErrFingerprintMismatch = errors.New("TLS fingerprint mismatch")

// Fingerprint returns the SHA256 fingerprint of a DER certificate in the
// format "SHA256:<base64>".
func Fingerprint(der []byte) string {
	h := sha256.Sum256(der)
	return "SHA256:" + base64.StdEncoding.EncodeToString(h[:])
}

// PeerFingerprint extracts the fingerprint of the server's leaf certificate.
func PeerFingerprint(conn *tls.Conn) (string, error) {
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return "", errors.New("no peer certificates")
	}
	return Fingerprint(state.PeerCertificates[0].Raw), nil
}

// ClientTLSConfig returns the TLS config used for the upgrade after X.224
// negotiation. RDP servers almost always present self-signed certificates,
// so chain verification is skipped and the fingerprint is checked after the
// handshake instead.
func ClientTLSConfig(serverName string) *tls.Config {
	return &tls.Config{
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // fingerprint verified after handshake
	}
}

// VerifyFingerprint checks the peer certificate against an expected
// fingerprint.
func VerifyFingerprint(conn *tls.Conn, expected string) error {
	got, err := PeerFingerprint(conn)
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrFingerprintMismatch, expected, got)
	}
	return nil
}

// KnownHosts is a trust-on-first-use store of server certificate
// fingerprints. Format: one "host fingerprint" per line.
type KnownHosts struct {
	entries map[string]string // host → fingerprint
	path    string
	mu      sync.Mutex
}

// DefaultKnownHostsPath returns ~/.config/rdpc/known_hosts.
func DefaultKnownHostsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "rdpc", "known_hosts")
}

// LoadKnownHosts reads the known_hosts file. A missing file yields an empty
// store.
func LoadKnownHosts(path string) (*KnownHosts, error) {
	if path == "" {
		path = DefaultKnownHostsPath()
	}
	kh := &KnownHosts{path: path, entries: make(map[string]string)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return kh, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		host, fp, ok := strings.Cut(line, " ")
		if ok {
			kh.entries[host] = strings.TrimSpace(fp)
		}
	}
	return kh, scanner.Err()
}

// Lookup returns the recorded fingerprint for host.
func (kh *KnownHosts) Lookup(host string) (string, bool) {
	kh.mu.Lock()
	defer kh.mu.Unlock()
	fp, ok := kh.entries[host]
	return fp, ok
}

// Verify accepts a matching fingerprint, records the fingerprint of a new
// host, and rejects a host whose fingerprint changed. The returned bool is
// true when the host was new.
func (kh *KnownHosts) Verify(host, fingerprint string) (bool, error) {
	kh.mu.Lock()
	defer kh.mu.Unlock()

	if existing, ok := kh.entries[host]; ok {
		if existing != fingerprint {
			return false, fmt.Errorf(
				"%w: REMOTE HOST IDENTIFICATION HAS CHANGED for %s\n"+
					"Expected: %s\n"+
					"Got:      %s\n"+
					"Remove the entry from %s to accept the new certificate",
				ErrFingerprintMismatch, host, existing, fingerprint, kh.path,
			)
		}
		return false, nil
	}

	kh.entries[host] = fingerprint
	return true, kh.save()
}

func (kh *KnownHosts) save() error {
	if kh.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(kh.path), 0o700); err != nil {
		return err
	}

	hosts := make([]string, 0, len(kh.entries))
	for host := range kh.entries {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	var b strings.Builder
	for _, host := range hosts {
		fmt.Fprintf(&b, "%s %s\n", host, kh.entries[host])
	}
	return os.WriteFile(kh.path, []byte(b.String()), 0o600)
}
