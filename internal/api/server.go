// Package api is the HTTP front end over the secret broker.
package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/org/secretbroker/internal/broker"
	"github.com/org/secretbroker/internal/registry"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string
	TLSCertFile string
	TLSKeyFile  string
}

// Server is the API server.
type Server struct {
	broker  *broker.Broker
	types   *registry.Registry
	cfg     Config
	httpSrv *http.Server
}

// NewServer creates a Server over the given broker and type registry.
func NewServer(b *broker.Broker, types *registry.Registry, cfg Config) *Server {
	return &Server{broker: b, types: types, cfg: cfg}
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(newRateLimiter(100, 200).middleware)
	r.Use(requestLogMiddleware)

	// Prometheus metrics
	r.Handle("/metrics", MetricsHandler())

	r.Get("/health", s.HealthHandler)

	r.Route("/v1/secrets", func(r chi.Router) {
		r.Post("/create", s.CreateSecretHandler)
		r.Get("/types", s.ListTypesHandler)
		r.Get("/service/{consumer}", s.ConsumerSecretsHandler)
		r.Get("/{type}", s.ListSecretsHandler)
		r.Get("/{type}/{id}", s.GetSecretHandler)
		r.Post("/{type}/{id}/rotate", s.RotateSecretHandler)
		r.Delete("/{type}/{id}", s.DeleteSecretHandler)
	})

	return r
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		tlsCfg := &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		s.httpSrv.TLSConfig = tlsCfg
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
