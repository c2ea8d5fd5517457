// Package api provides the HTTP server for WapiDaktari.
//
// It exposes the USSD gateway callback, the best-time and model endpoints,
// and turn log statistics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BTreeMap/WapiDaktari/internal/predict"
	"github.com/BTreeMap/WapiDaktari/internal/sms"
	"github.com/BTreeMap/WapiDaktari/internal/store"
	"github.com/BTreeMap/WapiDaktari/internal/ussd"
)

// Default server settings
const (
	DefaultAddr           = ":8080"
	DefaultRequestTimeout = 10 * time.Second
	DefaultSMSTimeout     = 15 * time.Second
	DefaultShutdownGrace  = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	RequestTimeout time.Duration
	SMSTimeout     time.Duration
	Sender         sms.Sender
	Location       *time.Location
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithRequestTimeout bounds every request handler.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Opts) { o.RequestTimeout = d }
}

// WithSMSFollowUp enables SMS copies of best-time answers.
func WithSMSFollowUp(sender sms.Sender, timeout time.Duration) Option {
	return func(o *Opts) {
		o.Sender = sender
		o.SMSTimeout = timeout
	}
}

// WithLocation sets the timezone used to parse dates in requests.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// Server wires the USSD menu and the prediction path to HTTP.
type Server struct {
	machine   *ussd.Machine
	predictor ussd.Predictor
	catalog   ussd.Catalog
	artifacts *predict.Artifacts
	st        store.Store

	addr           string
	requestTimeout time.Duration
	smsTimeout     time.Duration
	sender         sms.Sender
	loc            *time.Location

	// followUps tracks in-flight SMS sends so shutdown can wait for them.
	followUps sync.WaitGroup
}

// NewServer creates a server. A nil sender disables SMS follow-up.
func NewServer(machine *ussd.Machine, predictor ussd.Predictor, catalog ussd.Catalog, artifacts *predict.Artifacts, st store.Store, opts ...Option) *Server {
	cfg := Opts{
		Addr:           DefaultAddr,
		RequestTimeout: DefaultRequestTimeout,
		SMSTimeout:     DefaultSMSTimeout,
		Location:       time.UTC,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SMSTimeout <= 0 {
		cfg.SMSTimeout = DefaultSMSTimeout
	}
	slog.Debug("NewServer: configuring API server", "addr", cfg.Addr, "request_timeout", cfg.RequestTimeout, "sms_followup", cfg.Sender != nil)
	return &Server{
		machine:        machine,
		predictor:      predictor,
		catalog:        catalog,
		artifacts:      artifacts,
		st:             st,
		addr:           cfg.Addr,
		requestTimeout: cfg.RequestTimeout,
		smsTimeout:     cfg.SMSTimeout,
		sender:         cfg.Sender,
		loc:            cfg.Location,
	}
}

// Handler returns the routed handler. JSON routes run under
// http.TimeoutHandler; /ussd gets the same budget as a context deadline so an
// overrun still renders a framed END screen.
func (s *Server) Handler() http.Handler {
	jsonRoutes := http.NewServeMux()
	jsonRoutes.HandleFunc("/best_time", s.bestTimeHandler)
	jsonRoutes.HandleFunc("/predict_regression", s.predictRegressionHandler)
	jsonRoutes.HandleFunc("/predict_classification", s.predictClassificationHandler)
	jsonRoutes.HandleFunc("/stats", s.statsHandler)
	jsonRoutes.HandleFunc("/healthz", s.healthHandler)

	root := http.NewServeMux()
	root.HandleFunc("/ussd", s.ussdHandler)
	if s.requestTimeout <= 0 {
		root.Handle("/", jsonRoutes)
		return root
	}
	root.Handle("/", http.TimeoutHandler(jsonRoutes, s.requestTimeout, string(fallbackBody)))
	return root
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// waits for pending SMS follow-ups.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			slog.Error("Server.Run: API server failed", "error", err)
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: shutdown error", "error", err)
		return err
	}
	s.Wait()
	slog.Info("Server.Run: API server stopped")
	return nil
}

// Wait blocks until all SMS follow-ups have finished.
func (s *Server) Wait() {
	s.followUps.Wait()
}
