package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// JumpOpts configures the SSH jump host used to reach an RDP server that is
// not directly routable.
type JumpOpts struct {
	KeyFile         string // override key file path; empty = try defaults
	Password        string // empty = skip password auth
	HostKeyCallback ssh.HostKeyCallback
	Timeout         time.Duration
}

// DialJump connects to the SSH server at jump and returns a client through
// which TCP connections to the RDP target can be opened.
//
// Auth methods are tried in order:
//  1. SSH agent (if SSH_AUTH_SOCK is set)
//  2. Key files (~/.ssh/id_ed25519, id_ecdsa, id_rsa) or JumpOpts.KeyFile
//  3. Password (if JumpOpts.Password is set)
func DialJump(ctx context.Context, jump Location, opts JumpOpts) (*ssh.Client, error) {
	userName := jump.User
	if userName == "" {
		u, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("determine current user: %w", err)
		}
		userName = u.Username
	}

	authMethods := buildAuthMethods(opts)
	if len(authMethods) == 0 {
		return nil, errors.New("no SSH auth methods available (set SSH_AUTH_SOCK, provide a key, or password)")
	}

	hostKeyCallback := opts.HostKeyCallback
	if hostKeyCallback == nil {
		var err error
		hostKeyCallback, err = defaultHostKeyCallback()
		if err != nil {
			return nil, fmt.Errorf("load ssh known_hosts: %w", err)
		}
	}

	config := &ssh.ClientConfig{
		User:            userName,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.Timeout,
	}

	addr := jump.Addr(DefaultSSHPort)
	d := net.Dialer{Timeout: opts.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	// ssh.NewClientConn has no context; closing the socket unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func buildAuthMethods(opts JumpOpts) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			agentClient := agent.NewClient(conn)
			methods = append(methods, ssh.PublicKeysCallback(agentClient.Signers))
		}
	}

	if opts.KeyFile != "" {
		if m := keyFileAuth(opts.KeyFile); m != nil {
			methods = append(methods, m)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			if m := keyFileAuth(filepath.Join(home, ".ssh", name)); m != nil {
				methods = append(methods, m)
			}
		}
	}

	if opts.Password != "" {
		methods = append(methods, ssh.Password(opts.Password))
	}

	return methods
}

func keyFileAuth(path string) ssh.AuthMethod {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil
	}
	return ssh.PublicKeys(signer)
}

func defaultHostKeyCallback() (ssh.HostKeyCallback, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
}
