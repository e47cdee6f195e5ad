// Package ingest is a stand-in for the source map ingestion endpoint, for
// local runs and end-to-end tests.
package ingest

import (
    "context"
    "encoding/json"
    "net/http"
    "time"

    "github.com/ccastromar/sourcemap-uploader/internal/health"
    "github.com/ccastromar/sourcemap-uploader/internal/logx"
    "github.com/ccastromar/sourcemap-uploader/internal/metrics"
)

type Server struct {
    srv *http.Server
}

// NewMux wires the upload handler with health and metrics endpoints.
func NewMux(h *Handler) *http.ServeMux {
    mux := http.NewServeMux()
    RegisterHandlers(mux, h)
    mux.HandleFunc("/health/live", health.LiveHandler)
    mux.HandleFunc("/metrics", metrics.ServeHTTP)
    return mux
}

func NewServer(addr string, h *Handler) *Server {
    return &Server{
        srv: &http.Server{
            Addr:              addr,
            Handler:           secureMiddleware(NewMux(h)),
            ReadHeaderTimeout: 5 * time.Second,
            ReadTimeout:       30 * time.Second,
            IdleTimeout:       60 * time.Second,
            MaxHeaderBytes:    1 << 20, // 1MB
        },
    }
}

func (s *Server) Start(ctx context.Context) error {
    errCh := make(chan error, 1)

    go func() {
        logx.Info("HTTP", "mock ingest listening on %s", s.srv.Addr)
        errCh <- s.srv.ListenAndServe()
    }()

    select {
    case err := <-errCh:
        return err
    case <-ctx.Done():
        logx.Info("HTTP", "shutting down server...")
        shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        return s.srv.Shutdown(shutCtx)
    }
}

// secureMiddleware adds basic hardening to HTTP server:
// - Common security headers
// - Body size limit
// - Block TRACE method
func secureMiddleware(next http.Handler) http.Handler {
    const maxBody = 64 << 20 // source maps of large bundles get big
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        // Block TRACE to avoid request smuggling tricks
        if r.Method == http.MethodTrace {
            w.WriteHeader(http.StatusMethodNotAllowed)
            return
        }

        // Limit body size early
        if r.Body != nil {
            r.Body = http.MaxBytesReader(w, r.Body, maxBody)
        }

        w.Header().Set("X-Content-Type-Options", "nosniff")
        w.Header().Set("X-Frame-Options", "DENY")
        w.Header().Set("Referrer-Policy", "no-referrer")

        next.ServeHTTP(w, r)
    })
}

func writeJSON(w http.ResponseWriter, v any) {
    w.Header().Set("Content-Type", "application/json")
    if err := json.NewEncoder(w).Encode(v); err != nil {
        logx.Error("HTTP", "encoding response: %v", err)
    }
}
