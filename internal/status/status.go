// Package status serves a read-only HTTP view of a running session:
// liveness, prometheus metrics, a JSON report and the current screen.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bamsammich/rdpc/internal/screen"
	"github.com/bamsammich/rdpc/internal/session"
	"github.com/bamsammich/rdpc/internal/stats"
)

// Report is the JSON body of /session.
type Report struct {
	ID          string           `json:"id"`
	Target      string           `json:"target"`
	State       string           `json:"state"`
	Fingerprint string           `json:"fingerprint,omitempty"`
	Protocol    session.Snapshot `json:"protocol"`
	Stats       stats.Snapshot   `json:"stats"`
	Active      bool             `json:"active"`
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	Depth       int              `json:"depth"`
}

// Options configures the router. Nil fields disable their endpoint.
type Options struct {
	Gatherer prometheus.Gatherer
	Report   func() Report
	Screen   *screen.Framebuffer
}

// NewRouter builds the status handler.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	if opts.Report != nil {
		r.Get("/session", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(opts.Report()); err != nil {
				slog.Debug("status: encode session report", "error", err)
			}
		})
	}

	if opts.Screen != nil {
		r.Get("/screen.png", func(w http.ResponseWriter, req *http.Request) {
			etag := `"` + opts.Screen.Digest() + `"`
			if req.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("ETag", etag)
			if err := opts.Screen.EncodePNG(w); err != nil {
				slog.Debug("status: write screen", "error", err)
			}
		})
	}

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("status request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}

// Server serves the status router until its context ends.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr. Use Addr to learn the port when addr ends in ":0".
func Listen(addr string, h http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status listen %s: %w", addr, err)
	}
	return &Server{
		ln:  ln,
		srv: &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second},
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve blocks until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(s.ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
