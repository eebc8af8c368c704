// Package missionhttp serves the stateless side of the game over HTTP:
// health, Prometheus metrics, one-shot execution against a fresh copy of
// the seed, and grading.
package missionhttp

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
	"golang.org/x/sync/errgroup"

	"github.com/tuannm99/sqlmission"
	"github.com/tuannm99/sqlmission/internal/catalog"
	"github.com/tuannm99/sqlmission/internal/feedback"
	"github.com/tuannm99/sqlmission/internal/metrics"
)

// maxBody caps request bodies; statements are short.
const maxBody = 64 << 10

type Config struct {
	Addr string

	// Seeds supplies the tables for /v1/exec and /v1/seed; nil uses the
	// built-in dataset.
	Seeds *catalog.SeedSource

	// SessionOptions are applied to the throwaway session of every /v1/exec.
	SessionOptions []sqlmission.Option

	// CompareJoin is the /v1/diff default; a request may override it.
	CompareJoin bool

	// Metrics records /v1/diff verdicts. Exec metrics come from SessionOptions.
	Metrics *metrics.Metrics

	// Gatherer backs /metrics. The route is not mounted when nil.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

type Server struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, log: log}
}

type execRequest struct {
	SQL string `json:"sql"`
}

type diffRequest struct {
	Submitted   string `json:"submitted"`
	Expected    string `json:"expected"`
	CompareJoin *bool  `json:"compare_join,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the router. It is what Serve mounts and what tests drive.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		s.requestLogger,
		middleware.Recoverer,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if s.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/seed", s.handleSeed)
		r.Post("/exec", s.handleExec)
		r.Post("/diff", s.handleDiff)
	})
	return r
}

// Serve runs the HTTP server on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("missionhttp: listening", "addr", ln.Addr().String())

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("missionhttp: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.log.Debug("missionhttp: shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// ListenAndServe listens on the configured address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) seed() *catalog.TableSet {
	if s.cfg.Seeds == nil {
		return catalog.Seed()
	}
	return s.cfg.Seeds.Current()
}

func (s *Server) newSession(r *http.Request) *sqlmission.Session {
	log := s.log.With("request_id", middleware.GetReqID(r.Context()))
	opts := append([]sqlmission.Option{sqlmission.WithLogger(log)}, s.cfg.SessionOptions...)
	return sqlmission.NewSession(s.seed(), opts...)
}

func (s *Server) handleSeed(w http.ResponseWriter, _ *http.Request) {
	seed := s.seed()
	tables := make([]*catalog.Table, 0, len(seed.Names()))
	for _, name := range seed.Names() {
		t, _ := seed.Table(name)
		tables = append(tables, t)
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.newSession(r).Execute(req.SQL)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req diffRequest
	if !decode(w, r, &req) {
		return
	}
	opts := feedback.Options{CompareJoin: s.cfg.CompareJoin}
	if req.CompareJoin != nil {
		opts.CompareJoin = *req.CompareJoin
	}
	rep := feedback.Diff(req.Submitted, req.Expected, opts)
	s.cfg.Metrics.ObserveDiff(rep.IsCorrect)
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("missionhttp: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"took", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
