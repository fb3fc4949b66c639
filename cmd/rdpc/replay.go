package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bamsammich/rdpc/internal/capture"
	"github.com/bamsammich/rdpc/internal/config"
	"github.com/bamsammich/rdpc/internal/session"
	"github.com/bamsammich/rdpc/internal/snapshot"
)

func newReplayCmd(opts *options) *cobra.Command {
	var (
		output     string
		bwLimitStr string
		speed      float64
	)

	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Decode a recorded session offline",
		Long: `Feed a capture written by "connect --record" through the full decoding
pipeline without a server, optionally writing the final screen as a PNG.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var popts capture.PlayerOptions
			if bwLimitStr != "" {
				bw, err := config.ParseBandwidth(bwLimitStr)
				if err != nil {
					return fmt.Errorf("invalid --bwlimit: %w", err)
				}
				if bw > 0 {
					popts.Limiter = capture.NewLimiter(bw)
				}
			}
			if speed < 0 {
				return errors.New("--speed must not be negative")
			}
			popts.Speed = speed

			player, err := capture.Open(args[0], popts)
			if err != nil {
				return err
			}
			defer player.Close()

			hdr := player.Header()
			slog.Info("replaying capture",
				"file", args[0],
				"target", hdr.Target,
				"recorded_session", hdr.SessionID,
				"started", time.Unix(0, hdr.Started).UTC())

			cfg, err := opts.sessionConfig()
			if err != nil {
				return err
			}
			cfg = replayConfig(cfg, hdr)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := opts.newSession(uuid.NewString(), hdr.Target, player, cfg)
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			runErr := s.run(ctx)
			if errors.Is(runErr, io.EOF) {
				runErr = nil
			}
			slog.Debug("replay finished", "discarded_bytes", player.Written())

			if output != "" && s.fb.Draws() > 0 {
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
					SessionID:   hdr.SessionID,
					Target:      hdr.Target,
					Digest:      s.fb.Digest(),
				}); err != nil {
					return err
				}
				slog.Info("screen written", "dest", sink.String())
			}

			if runErr != nil {
				slog.Error("replay failed", "error", runErr)
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the final screen to FILE or s3://bucket/key")
	cmd.Flags().StringVar(&bwLimitStr, "bwlimit", "", "limit inbound replay bandwidth (e.g. 512K, 10M)")
	cmd.Flags().Float64Var(&speed, "speed", 0, "replay with recorded timing scaled by this factor (0 = as fast as possible)")
	return cmd
}

// replayConfig announces the geometry the capture was recorded with so
// the decoded screen matches the recorded one.
func replayConfig(cfg session.Config, hdr capture.Header) session.Config {
	if hdr.Width > 0 && hdr.Height > 0 {
		cfg.Width, cfg.Height = hdr.Width, hdr.Height
	}
	if hdr.Depth > 0 {
		cfg.Depth = hdr.Depth
	}
	return cfg
}
