package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const exporterShutdownTimeout = 5 * time.Second

// ExporterService serves Telemetry over HTTP for Prometheus to scrape.
type ExporterService struct {
	listen    string
	path      string
	telemetry *Telemetry
	Logger    zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// NewExporterService creates an exporter for telemetry on listen.
func NewExporterService(listen, path string, telemetry *Telemetry, logger zerolog.Logger) *ExporterService {
	return &ExporterService{
		listen:    listen,
		path:      path,
		telemetry: telemetry,
		Logger:    logger,
	}
}

// Start binds the listen address and serves in the background.
func (e *ExporterService) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.server != nil {
		e.Logger.Warn().Msg("ExporterService is already running")
		return errors.New("exporter service is already running")
	}

	ln, err := net.Listen("tcp", e.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", e.listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle(e.path, e.telemetry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	e.listener = ln
	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	server := e.server
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Error().Err(err).Msg("Exporter HTTP server failed")
		}
	}()

	e.Logger.Info().Str("addr", ln.Addr().String()).Str("path", e.path).Msg("ExporterService started successfully")
	return nil
}

// Addr returns the bound address, or "" when not running.
func (e *ExporterService) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Stop shuts the HTTP server down gracefully.
func (e *ExporterService) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.server == nil {
		e.Logger.Warn().Msg("ExporterService is not running")
		return errors.New("exporter service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), exporterShutdownTimeout)
	defer cancel()
	err := e.server.Shutdown(ctx)
	e.wg.Wait()

	e.server = nil
	e.listener = nil
	if err != nil {
		return fmt.Errorf("failed to shut down exporter: %w", err)
	}
	e.Logger.Info().Msg("ExporterService stopped successfully")
	return nil
}
