package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultRDPPort is the port servers listen on unless configured otherwise.
	DefaultRDPPort = 3389
	// DefaultSSHPort is used for jump hosts without an explicit port.
	DefaultSSHPort = 22
)

// Location is a parsed connection target or jump host.
type Location struct {
	Scheme string // "rdp", "ws" or "wss"
	Host   string
	User   string
	Path   string // websocket gateway path
	Port   int
}

// IsWebSocket reports whether the target is reached through a websocket
// gateway.
func (l Location) IsWebSocket() bool {
	return l.Scheme == "ws" || l.Scheme == "wss"
}

// Addr returns host:port, applying defaultPort when no port was given.
func (l Location) Addr(defaultPort int) string {
	port := l.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(l.Host, strconv.Itoa(port))
}

// URL returns the websocket URL of a gateway location.
func (l Location) URL() string {
	u := url.URL{Scheme: l.Scheme, Host: l.Host, Path: l.Path}
	if l.Port != 0 {
		u.Host = net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
	}
	return u.String()
}

// String returns a human-readable representation.
func (l Location) String() string {
	if l.IsWebSocket() {
		return l.URL()
	}
	host := l.Host
	if strings.ContainsRune(host, ':') {
		host = "[" + host + "]"
	}
	if l.Port != 0 {
		host = fmt.Sprintf("%s:%d", host, l.Port)
	}
	if l.User != "" {
		return l.User + "@" + host
	}
	return host
}

// ParseLocation parses a target argument.
//
// Supported formats:
//   - host                      → rdp, default port
//   - host:port, [v6addr]:port  → rdp
//   - user@host[:port]          → rdp with a user name
//   - rdp://[user@]host[:port]
//   - ws://gateway[:port]/path  → websocket gateway
//   - wss://gateway[:port]/path
func ParseLocation(arg string) (Location, error) {
	if arg == "" {
		return Location{}, fmt.Errorf("empty target")
	}
	if strings.Contains(arg, "://") {
		return parseURL(arg)
	}

	var loc Location
	loc.Scheme = "rdp"
	hostPart := arg
	if at := strings.LastIndexByte(arg, '@'); at >= 0 {
		loc.User = arg[:at]
		hostPart = arg[at+1:]
	}

	host, port, err := splitHostPort(hostPart)
	if err != nil {
		return Location{}, fmt.Errorf("parse target %q: %w", arg, err)
	}
	loc.Host, loc.Port = host, port
	return loc, nil
}

func parseURL(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse target: %w", err)
	}
	switch u.Scheme {
	case "rdp", "ws", "wss":
	default:
		return Location{}, fmt.Errorf("parse target %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Hostname() == "" {
		return Location{}, fmt.Errorf("parse target %q: missing host", raw)
	}

	loc := Location{Scheme: u.Scheme, Host: u.Hostname(), Path: u.Path}
	if p := u.Port(); p != "" {
		loc.Port, err = parsePort(p)
		if err != nil {
			return Location{}, fmt.Errorf("parse target %q: %w", raw, err)
		}
	}
	if u.User != nil {
		loc.User = u.User.Username()
	}
	return loc, nil
}

// splitHostPort accepts a bare host, host:port, a bare IPv6 address or
// [v6]:port.
func splitHostPort(s string) (string, int, error) {
	if s == "" {
		return "", 0, fmt.Errorf("missing host")
	}
	if strings.Count(s, ":") > 1 && !strings.HasPrefix(s, "[") {
		return s, 0, nil
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return s[1 : len(s)-1], 0, nil
	}
	if !strings.Contains(s, ":") {
		return s, 0, nil
	}
	host, p, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	if host == "" {
		return "", 0, fmt.Errorf("missing host")
	}
	port, err := parsePort(p)
	return host, port, err
}

func parsePort(p string) (int, error) {
	port, err := strconv.Atoi(p)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", p)
	}
	return port, nil
}
