package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/events"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/reconciler"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/security"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/storage"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

// Pipeline is the reconciler surface the API drives
type Pipeline interface {
	RunApply(ctx context.Context) (*reconciler.Result, error)
	GenerateCertificateBundle(ctx context.Context) (*security.Bundle, error)
}

// Reloader signals the broker to re-read its configuration
type Reloader interface {
	Reload() error
}

// SessionSource lists the connected broker clients
type SessionSource interface {
	Sessions() []types.ClientSession
}

// StatsSource returns the latest broker metrics
type StatsSource interface {
	Snapshot() types.BrokerStats
}

// Options wires the server to the rest of the manager
type Options struct {
	Store    storage.Store
	Pipeline Pipeline
	Broker   Reloader
	Sessions SessionSource
	Stats    StatsSource
	Events   *events.Broker

	// LogFile is the broker log served by /api/logs
	LogFile  string
	LogLines int

	// StagingDir bounds certificate uploads and downloads
	StagingDir string

	// Auth enables basic auth against the administrator accounts
	Auth bool

	Version string
}

// Server is the HTTP and WebSocket shell around the manager
type Server struct {
	opts   Options
	mux    *http.ServeMux
	push   *PushHub
	logins *loginLimiter
	server *http.Server
}

// NewServer creates the server and registers every route
func NewServer(opts Options) *Server {
	if opts.LogLines <= 0 {
		opts.LogLines = 2000
	}
	s := &Server{
		opts:   opts,
		mux:    http.NewServeMux(),
		logins: newLoginLimiter(loginRate, loginBurst),
	}
	s.push = NewPushHub(opts.Events, s.primeEvents)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("GET /api/state", s.getState)
	s.handle("POST /api/state", s.postState)
	s.handle("POST /api/apply", s.apply)
	s.handle("POST /api/reload", s.reload)
	s.handle("GET /api/logs", s.logs)
	s.handle("GET /api/clients", s.clients)
	s.handle("GET /api/stats", s.stats)
	s.handle("POST /api/certs/generate", s.generateCerts)
	s.handle("POST /api/certs/upload", s.uploadCert)
	s.handle("GET /api/certs/download", s.downloadCert)
	s.handle("GET /api/backup/export", s.exportBackup)
	s.handle("POST /api/backup/import", s.importBackup)
	s.handle("POST /api/import/conf", s.importConf)
	s.handle("GET /ws", s.push.ServeHTTP)

	s.registerHealthRoutes()
}

// handle registers an authenticated, instrumented route
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.opts.Auth {
		handler = s.authenticate(handler)
	}
	s.mux.Handle(pattern, instrument(pattern, handler))
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve listens on addr until ctx is cancelled, then shuts down
// gracefully
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithComponent("api").Info().Str("address", lis.Addr().String()).Msg("HTTP API listening")
		errCh <- s.server.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

// primeEvents returns the current snapshots a new push client starts from
func (s *Server) primeEvents() []*events.Event {
	var out []*events.Event
	if s.opts.Stats != nil {
		if ev := s.opts.Events.Latest(events.EventStats); ev != nil {
			out = append(out, ev)
		}
	}
	if s.opts.Sessions != nil {
		out = append(out, &events.Event{
			Type:      events.EventClients,
			Timestamp: time.Now(),
			Payload:   s.opts.Sessions.Sessions(),
		})
	}
	return out
}
