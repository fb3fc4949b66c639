package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bamsammich/rdpc/internal/capture"
	"github.com/bamsammich/rdpc/internal/config"
	"github.com/bamsammich/rdpc/internal/pipeline"
	"github.com/bamsammich/rdpc/internal/status"
	"github.com/bamsammich/rdpc/internal/transport"
)

func newConnectCmd(opts *options) *cobra.Command {
	var (
		typeText   string
		httpAddr   string
		recordFile string
	)

	cmd := &cobra.Command{
		Use:   "connect HOST[:PORT]",
		Short: "Run a session until interrupted",
		Long: `Connect to an RDP server and keep the session open until interrupted.

HOST may be host, host:port, user@host, rdp://host:port or a websocket
gateway URL (ws://gateway/path, wss://gateway/path).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, conn, err := opts.dialSession(ctx, args[0], recordFile)
			if err != nil {
				return err
			}
			defer conn.Close()

			sessCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			var wg sync.WaitGroup
			defer wg.Wait()

			if httpAddr != "" {
				srv, err := status.Listen(httpAddr, status.NewRouter(status.Options{
					Gatherer: s.metrics.Registry(),
					Report:   s.report,
					Screen:   s.fb,
				}))
				if err != nil {
					return err
				}
				wg.Go(func() {
					if err := srv.Serve(sessCtx); err != nil {
						slog.Warn("status server failed", "error", err)
					}
				})
				slog.Info("status endpoint listening", "addr", srv.Addr())

				if err := config.WriteSessionDiscovery(config.SessionDiscovery{
					ID:         s.id,
					Target:     s.target,
					StatusAddr: srv.Addr(),
					PID:        os.Getpid(),
				}); err != nil {
					slog.Warn("failed to write session discovery file", "error", err)
				}
				defer config.RemoveSessionDiscovery(s.id)
			}

			if typeText != "" {
				wg.Go(func() {
					select {
					case <-s.pipe.Active():
					case <-sessCtx.Done():
						return
					}
					if err := s.pipe.TypeText(typeText); err != nil {
						slog.Warn("failed to send text", "error", err)
					}
				})
			}

			err = s.run(sessCtx)
			cancel()
			if err != nil {
				slog.Error("session failed", "error", err)
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&typeText, "type", "", "type TEXT once the session is active")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve status, metrics and screen on ADDR (e.g. 127.0.0.1:8080)")
	cmd.Flags().StringVar(&recordFile, "record", "", "record the session to a capture FILE")
	return cmd
}

// dialSession connects to arg and builds a session over the connection,
// optionally recording it. The returned closer releases the transport and
// finishes the capture.
func (o *options) dialSession(ctx context.Context, arg, recordFile string) (*rdpSession, io.Closer, error) {
	loc, err := o.target(arg)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := o.sessionConfig()
	if err != nil {
		return nil, nil, err
	}
	topts, err := o.transportOptions()
	if err != nil {
		return nil, nil, err
	}

	conn, err := transport.Dial(ctx, loc, topts)
	if err != nil {
		return nil, nil, err
	}

	id := uuid.NewString()
	var t pipeline.Transport = conn
	var closer io.Closer = conn
	if recordFile != "" {
		rec, err := capture.Create(recordFile, conn, capture.Header{
			SessionID: id,
			Target:    loc.String(),
			Width:     cfg.Width,
			Height:    cfg.Height,
			Depth:     cfg.Depth,
		})
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		slog.Info("recording session", "file", recordFile)
		t, closer = rec, rec
	}

	s, err := o.newSession(id, loc.String(), t, cfg)
	if err != nil {
		closer.Close() //nolint:errcheck,gosec // already failing
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	s.fingerprint = conn.Fingerprint
	return s, closer, nil
}
