// Package profiler serves the pprof endpoints of a long running context.
package profiler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/config"
)

const (
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
)

// Server manages the pprof server lifecycle.
type Server struct {
	mu     sync.Mutex
	server *http.Server
	addr   string
}

func NewServer() *Server {
	return &Server{}
}

// StartIfEnabled listens on the configured address when profiling is enabled.
func (s *Server) StartIfEnabled(ctx context.Context, cfg config.ConfigurationProfiler) error {
	if cfg == nil || !cfg.ProfilerEnabled() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil
	}

	listener, err := net.Listen("tcp", cfg.ProfilerPort())
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	s.addr = listener.Addr().String()

	log := util.Log(ctx).WithField("addr", s.addr)
	log.Info("pprof server listening")

	srv := s.server
	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.WithError(serveErr).Error("pprof server failed")
		}
	}()
	return nil
}

// Addr is the address the server listens on, empty when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts down the pprof server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.addr = ""
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		util.Log(ctx).WithError(err).Error("failed to shut down pprof server")
		return err
	}
	return nil
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil
}
