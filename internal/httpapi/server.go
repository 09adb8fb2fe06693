// Package httpapi is the host's HTTP surface: health, metrics and job control.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"batchsim/internal/job"
	logx "batchsim/pkg/logx"
)

// Job is the control surface the server drives.
type Job interface {
	Start() bool
	Stop() bool
	IsRunning() bool
	State() job.State
}

// RequestObserver records one served request. Route is the registered path.
type RequestObserver interface {
	ObserveRequest(route string, code int)
}

type Config struct {
	// ControlRatePerSec limits POST /job/start and /job/stop together.
	// Zero disables limiting.
	ControlRatePerSec int
	ControlBurst      int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server owns the mux and the control rate limiter.
type Server struct {
	job     Job
	log     logx.Logger
	obs     RequestObserver
	metrics http.Handler
	limiter *rate.Limiter
	cfg     Config
	handler http.Handler
}

// New wires the routes. metrics may be nil, in which case /metrics is 404.
func New(cfg Config, j Job, metrics http.Handler, obs RequestObserver, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{job: j, log: log, obs: obs, metrics: metrics, cfg: cfg}
	s.limiter = rate.NewLimiter(controlLimit(cfg.ControlRatePerSec, cfg.ControlBurst))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.Handle("GET /job", s.instrument("/job", http.HandlerFunc(s.state)))
	mux.Handle("POST /job/start", s.instrument("/job/start", s.limited(s.start)))
	mux.Handle("POST /job/stop", s.instrument("/job/stop", s.limited(s.stop)))
	s.handler = mux
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// SetControlRate replaces the control limit in place. The bucket refills at
// the new rate from its current level. rps <= 0 lifts the limit.
func (s *Server) SetControlRate(rps, burst int) {
	limit, b := controlLimit(rps, burst)
	s.limiter.SetBurst(b)
	s.limiter.SetLimit(limit)
}

func controlLimit(rps, burst int) (rate.Limit, int) {
	if rps <= 0 {
		return rate.Inf, 1
	}
	if burst <= 0 {
		burst = rps
	}
	return rate.Limit(rps), burst
}

// Serve runs the HTTP server on ln until ctx is cancelled. It returns nil
// after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.log.Warn("http shutdown incomplete", logx.Err(err))
		_ = srv.Close()
	}
	<-errCh
	s.log.Info("http stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.job.State())
}

type controlResponse struct {
	Changed bool `json:"changed"`
	Running bool `json:"running"`
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	changed := s.job.Start()
	s.log.Debug("job start requested", logx.String("remote", r.RemoteAddr), logx.Bool("changed", changed))
	writeJSON(w, http.StatusOK, controlResponse{Changed: changed, Running: s.job.IsRunning()})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	changed := s.job.Stop()
	s.log.Debug("job stop requested", logx.String("remote", r.RemoteAddr), logx.Bool("changed", changed))
	writeJSON(w, http.StatusOK, controlResponse{Changed: changed, Running: s.job.IsRunning()})
}

func (s *Server) limited(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			return
		}
		h(w, r)
	})
}

// instrument counts responses per route. /health and /metrics are left out.
func (s *Server) instrument(route string, h http.Handler) http.Handler {
	if s.obs == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h.ServeHTTP(sw, r)
		s.obs.ObserveRequest(route, sw.code)
	})
}

type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
