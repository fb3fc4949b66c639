// Package transport opens the byte stream an RDP session runs over: plain
// TCP, TCP through an SSH jump host, or a websocket gateway. The returned
// Conn upgrades itself to TLS once X.224 negotiation selects it.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Options controls dialing and certificate verification.
type Options struct {
	// Fingerprint pins the server certificate ("SHA256:<base64>").
	Fingerprint string
	// KnownHosts records fingerprints on first use. Ignored when
	// Fingerprint is set.
	KnownHosts *KnownHosts
	// Insecure accepts any certificate.
	Insecure bool

	Jump     *Location
	JumpOpts JumpOpts

	Timeout   time.Duration
	KeepAlive time.Duration
}

// Conn is a connection to an RDP server. Reads and writes go to the TLS
// layer after Upgrade and to the raw stream before it.
type Conn struct {
	conn        net.Conn
	jump        *ssh.Client
	host        string
	key         string
	fingerprint string
	opts        Options
	mu          sync.Mutex
}

// Dial connects to loc.
func Dial(ctx context.Context, loc Location, opts Options) (*Conn, error) {
	var (
		raw  net.Conn
		jump *ssh.Client
		err  error
	)

	switch {
	case loc.IsWebSocket():
		raw, err = dialWebSocket(ctx, loc, opts.Timeout)
	case opts.Jump != nil:
		jump, err = DialJump(ctx, *opts.Jump, opts.JumpOpts)
		if err != nil {
			return nil, err
		}
		raw, err = jump.DialContext(ctx, "tcp", loc.Addr(DefaultRDPPort))
		if err != nil {
			jump.Close()
			err = fmt.Errorf("dial %s via %s: %w", loc.Addr(DefaultRDPPort), opts.Jump, err)
		}
	default:
		d := net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: opts.KeepAlive,
			Control:   socketControl(opts.KeepAlive),
		}
		raw, err = d.DialContext(ctx, "tcp", loc.Addr(DefaultRDPPort))
		if err != nil {
			err = fmt.Errorf("dial %s: %w", loc.Addr(DefaultRDPPort), err)
		}
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("connected", "target", loc.String(), "remote", raw.RemoteAddr())
	c := NewConn(raw, loc.Host, opts)
	c.key = loc.Addr(DefaultRDPPort)
	c.jump = jump
	return c, nil
}

// NewConn wraps an established stream. host is used as the TLS server name
// and, with the default port, as the known_hosts key.
func NewConn(raw net.Conn, host string, opts Options) *Conn {
	return &Conn{
		conn: raw,
		host: host,
		key:  net.JoinHostPort(host, fmt.Sprint(DefaultRDPPort)),
		opts: opts,
	}
}

func (c *Conn) current() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Conn) Read(p []byte) (int, error)  { return c.current().Read(p) }
func (c *Conn) Write(p []byte) (int, error) { return c.current().Write(p) }

// Close closes the stream and any jump host client.
func (c *Conn) Close() error {
	err := c.current().Close()
	if c.jump != nil {
		err = errors.Join(err, c.jump.Close())
	}
	return err
}

// Fingerprint returns the server certificate fingerprint, empty before
// Upgrade.
func (c *Conn) Fingerprint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprint
}

// Upgrade performs the TLS handshake on the raw stream and verifies the
// server certificate. It must not run concurrently with Read.
func (c *Conn) Upgrade(ctx context.Context) error {
	raw := c.current()
	if _, ok := raw.(*tls.Conn); ok {
		return errors.New("connection already upgraded")
	}

	tlsConn := tls.Client(raw, ClientTLSConfig(c.host))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("tls handshake: %w", err)
	}

	fp, err := PeerFingerprint(tlsConn)
	if err != nil {
		return err
	}
	if err := c.verify(tlsConn, fp); err != nil {
		tlsConn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = tlsConn
	c.fingerprint = fp
	c.mu.Unlock()

	slog.Debug("tls established",
		"host", c.host,
		"version", tls.VersionName(tlsConn.ConnectionState().Version),
		"fingerprint", fp)
	return nil
}

func (c *Conn) verify(conn *tls.Conn, fp string) error {
	switch {
	case c.opts.Fingerprint != "":
		return VerifyFingerprint(conn, c.opts.Fingerprint)
	case c.opts.Insecure:
		slog.Warn("accepting server certificate without verification", "host", c.host, "fingerprint", fp)
		return nil
	case c.opts.KnownHosts != nil:
		added, err := c.opts.KnownHosts.Verify(c.key, fp)
		if added {
			slog.Warn("recorded new server certificate", "host", c.key, "fingerprint", fp)
		}
		return err
	}
	return nil
}

var _ io.ReadWriteCloser = (*Conn)(nil)
