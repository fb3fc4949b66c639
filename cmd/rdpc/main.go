package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/rdpc/internal/config"
	"github.com/bamsammich/rdpc/internal/session"
	"github.com/bamsammich/rdpc/internal/transport"
	"github.com/bamsammich/rdpc/internal/ui"
)

var version = "dev"

const (
	defaultTimeout   = 15 * time.Second
	defaultKeepAlive = 30 * time.Second
)

func main() {
	os.Exit(run())
}

// options holds the flags shared by every subcommand.
type options struct {
	user           string
	domain         string
	clientName     string
	password       string
	passwordPrompt bool
	size           sizeFlag
	depth          int
	keyboardLayout uint32

	port        int
	jump        string
	jumpKey     string
	jumpUser    string
	fingerprint string
	insecure    bool
	knownHosts  string
	timeout     time.Duration

	verbose     int
	quiet       bool
	logFile     string
	showVersion bool

	logCloser io.Closer
}

func newOptions() *options {
	return &options{
		size:    sizeFlag{width: 1024, height: 768},
		depth:   16,
		timeout: defaultTimeout,
	}
}

func run() int {
	opts := newOptions()
	defer opts.close()

	root := newRootCmd(opts)
	if err := root.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "rdpc",
		Short:         "Remote desktop protocol client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.showVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "rdpc %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}

	root.Flags().BoolVar(&opts.showVersion, "version", false, "print version and exit")

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.user, "user", "u", "", "user name announced to the server")
	pf.StringVar(&opts.domain, "domain", "", "logon domain")
	pf.StringVar(&opts.clientName, "client-name", "", "client computer name (default: rdpc)")
	pf.BoolVar(&opts.passwordPrompt, "password-prompt", false, "read a password from the terminal")
	pf.Var(&opts.size, "size", "desktop size WxH")
	pf.IntVar(&opts.depth, "depth", opts.depth, "color depth (8, 15, 16 or 24)")
	pf.Uint32Var(&opts.keyboardLayout, "keyboard-layout", 0, "keyboard layout id (default: US 0x409)")

	pf.IntVarP(&opts.port, "port", "p", 0, "server port when HOST has none (default: 3389)")
	pf.StringVarP(&opts.jump, "jump", "J", "", "reach the server through SSH jump host [user@]host[:port]")
	pf.StringVar(&opts.jumpKey, "jump-key", "", "SSH private key for the jump host (default: auto-detect)")
	pf.StringVar(&opts.fingerprint, "fingerprint", "", "expected server certificate fingerprint (SHA256:...)")
	pf.BoolVar(&opts.insecure, "insecure", false, "accept any server certificate")
	pf.StringVar(&opts.knownHosts, "known-hosts", "", "certificate fingerprint store (default: ~/.config/rdpc/known_hosts)")
	pf.DurationVar(&opts.timeout, "timeout", opts.timeout, "connect timeout")

	pf.CountVarP(&opts.verbose, "verbose", "v", "verbose output (-vv for debug)")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress all output except errors")
	pf.StringVar(&opts.logFile, "log", "", "write structured JSON log to FILE")

	root.AddCommand(
		newConnectCmd(opts),
		newScreenshotCmd(opts),
		newReplayCmd(opts),
		newSessionsCmd(),
		newDocsCmd(),
	)
	return root
}

// setup runs before every subcommand: it merges the config file into
// unset flags and installs the logger.
func (o *options) setup(cmd *cobra.Command) error {
	cfg, cfgErr := config.Load()
	if err := applyConfigDefaults(cmd, cfg, o); err != nil {
		return err
	}
	ui.ApplyTheme(cfg.Theme)

	if err := o.setupLogging(); err != nil {
		return err
	}
	if cfgErr != nil {
		slog.Warn("failed to load config", "path", config.Path(), "error", cfgErr)
	}

	if o.passwordPrompt {
		pw, err := ui.ReadPassword(os.Stdin.Fd(), os.Stderr, "Password: ")
		if err != nil {
			return err
		}
		o.password = pw
	}
	return nil
}

func (o *options) setupLogging() error {
	level := slog.LevelWarn
	switch {
	case o.quiet:
		level = slog.LevelError
	case o.verbose >= 2:
		level = slog.LevelDebug
	case o.verbose == 1:
		level = slog.LevelInfo
	}

	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	var handler slog.Handler = textHandler
	if o.logFile != "" {
		lf, err := os.Create(o.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		o.logCloser = lf
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func (o *options) close() {
	if o.logCloser != nil {
		o.logCloser.Close() //nolint:errcheck,gosec // best effort at exit
	}
}

// applyConfigDefaults applies config file values for flags not explicitly
// set on the CLI.
//
//nolint:gocyclo // one branch per config key
func applyConfigDefaults(cmd *cobra.Command, cfg config.Config, o *options) error {
	changed := cmd.Flags().Changed
	s, t := cfg.Session, cfg.Transport

	if !changed("user") && s.User != nil {
		o.user = *s.User
	}
	if !changed("domain") && s.Domain != nil {
		o.domain = *s.Domain
	}
	if !changed("client-name") && s.ClientName != nil {
		o.clientName = *s.ClientName
	}
	if !changed("size") {
		if s.Width != nil {
			o.size.width = *s.Width
		}
		if s.Height != nil {
			o.size.height = *s.Height
		}
		if err := o.size.validate(); err != nil {
			return fmt.Errorf("config session size: %w", err)
		}
	}
	if !changed("depth") && s.Depth != nil {
		o.depth = *s.Depth
	}
	if !changed("keyboard-layout") && s.KeyboardLayout != nil {
		o.keyboardLayout = uint32(*s.KeyboardLayout) //nolint:gosec // G115: layout ids are small positive values
	}

	if !changed("port") && t.Port != nil {
		o.port = *t.Port
	}
	if !changed("fingerprint") && t.Fingerprint != nil {
		o.fingerprint = *t.Fingerprint
	}
	if !changed("insecure") && t.Insecure != nil {
		o.insecure = *t.Insecure
	}
	if !changed("known-hosts") && t.KnownHosts != nil {
		o.knownHosts = *t.KnownHosts
	}
	if !changed("jump") && t.Jump != nil {
		o.jump = *t.Jump
	}
	if t.JumpUser != nil {
		o.jumpUser = *t.JumpUser
	}
	if !changed("jump-key") && t.JumpKey != nil {
		o.jumpKey = *t.JumpKey
	}
	if !changed("timeout") {
		d, err := t.TimeoutDuration(o.timeout)
		if err != nil {
			return err
		}
		o.timeout = d
	}
	return nil
}

// sessionConfig returns what the client announces during the handshake.
func (o *options) sessionConfig() (session.Config, error) {
	switch o.depth {
	case 8, 15, 16, 24:
	default:
		return session.Config{}, fmt.Errorf("unsupported color depth %d (use 8, 15, 16 or 24)", o.depth)
	}
	return session.Config{
		User:           o.user,
		Domain:         o.domain,
		Password:       o.password,
		ClientName:     o.clientName,
		KeyboardLayout: o.keyboardLayout,
		Width:          uint16(o.size.width),  //nolint:gosec // G115: validated by sizeFlag
		Height:         uint16(o.size.height), //nolint:gosec // G115: validated by sizeFlag
		Depth:          uint16(o.depth),       //nolint:gosec // G115: validated above
	}, nil
}

// transportOptions builds dial and certificate verification settings.
func (o *options) transportOptions() (transport.Options, error) {
	topts := transport.Options{
		Fingerprint: o.fingerprint,
		Insecure:    o.insecure,
		Timeout:     o.timeout,
		KeepAlive:   defaultKeepAlive,
	}

	if o.fingerprint == "" && !o.insecure {
		kh, err := transport.LoadKnownHosts(o.knownHosts)
		if err != nil {
			return transport.Options{}, fmt.Errorf("load known hosts: %w", err)
		}
		topts.KnownHosts = kh
	}

	if o.jump != "" {
		jump, err := transport.ParseLocation(o.jump)
		if err != nil {
			return transport.Options{}, fmt.Errorf("invalid --jump: %w", err)
		}
		if jump.IsWebSocket() {
			return transport.Options{}, errors.New("invalid --jump: must be an SSH host")
		}
		if jump.User == "" {
			jump.User = o.jumpUser
		}
		topts.Jump = &jump
		topts.JumpOpts = transport.JumpOpts{KeyFile: o.jumpKey, Timeout: o.timeout}
	}
	return topts, nil
}

// target parses a HOST argument, applying --port and a user given as
// user@host.
func (o *options) target(arg string) (transport.Location, error) {
	loc, err := transport.ParseLocation(arg)
	if err != nil {
		return transport.Location{}, err
	}
	if loc.Port == 0 && o.port != 0 && !loc.IsWebSocket() {
		loc.Port = o.port
	}
	if loc.User != "" && o.user == "" {
		o.user = loc.User
	}
	return loc, nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
