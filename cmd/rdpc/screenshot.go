package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/rdpc/internal/screen"
	"github.com/bamsammich/rdpc/internal/snapshot"
)

func newScreenshotCmd(opts *options) *cobra.Command {
	var (
		output   string
		digest   bool
		idle     time.Duration
		deadline time.Duration
	)

	cmd := &cobra.Command{
		Use:   "screenshot HOST[:PORT] -o FILE|s3://bucket/key",
		Short: "Capture the remote desktop as a PNG",
		Long: `Connect, wait until the screen stops changing, and write a PNG to a
local file or an S3 object. The session is closed afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" && !digest {
				return errors.New("nothing to do: set -o and/or --digest")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, conn, err := opts.dialSession(ctx, args[0], "")
			if err != nil {
				return err
			}
			defer conn.Close()

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			ended, markEnded := context.WithCancel(ctx)
			defer markEnded()

			errCh := make(chan error, 1)
			go func() {
				errCh <- s.run(runCtx)
				markEnded()
			}()

			waitErr := waitForScreen(ended, s.pipe.Active(), s.fb, idle, deadline)
			cancel()
			runErr := <-errCh

			if s.fb.Draws() == 0 {
				return errors.Join(errors.New("no screen updates received"), waitErr, runErr)
			}
			if waitErr != nil {
				slog.Warn("screen did not settle, capturing anyway", "error", waitErr)
			}

			sum := s.fb.Digest()
			if digest {
				fmt.Fprintln(cmd.OutOrStdout(), sum)
			}
			if output == "" {
				return nil
			}

			var buf bytes.Buffer
			if err := s.fb.EncodePNG(&buf); err != nil {
				return err
			}
			sink, err := snapshot.Open(ctx, output)
			if err != nil {
				return err
			}
			if err := sink.Put(ctx, buf.Bytes(), snapshot.Metadata{
				ContentType: "image/png",
				SessionID:   s.id,
				Target:      s.target,
				Digest:      sum,
			}); err != nil {
				return err
			}
			slog.Info("screenshot written", "dest", sink.String(), "bytes", buf.Len())
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the PNG to FILE or s3://bucket/key")
	cmd.Flags().BoolVar(&digest, "digest", false, "print the BLAKE3 digest of the framebuffer")
	cmd.Flags().DurationVar(&idle, "idle", 2*time.Second, "how long the screen must be unchanged")
	cmd.Flags().DurationVar(&deadline, "wait", 60*time.Second, "give up waiting for the screen after this long")
	return cmd
}

// waitForScreen blocks until the session is active and the framebuffer has
// been quiet for idle, or until limit elapses or ctx ends.
func waitForScreen(ctx context.Context, active <-chan struct{}, fb *screen.Framebuffer, idle, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	select {
	case <-active:
	case <-ctx.Done():
		return fmt.Errorf("waiting for activation: %w", context.Cause(ctx))
	}
	if err := fb.WaitIdle(ctx, idle); err != nil {
		return fmt.Errorf("waiting for idle screen: %w", err)
	}
	return nil
}
