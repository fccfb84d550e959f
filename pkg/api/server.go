package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/manager"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/objstore"
)

// Server is the HTTP front door: the host-resolved storefront API, the
// payment webhook intake, signed object transfer for local storage, and
// the operator surface.
type Server struct {
	manager *manager.Manager
	logger  zerolog.Logger
	http    *http.Server
	objects *objstore.Local
}

// NewServer builds the server over an initialized manager. The router is
// assembled once up front; Start only binds the listener.
func NewServer(mgr *manager.Manager) *Server {
	s := &Server{
		manager: mgr,
		logger:  log.WithComponent("api"),
	}
	// Only local object storage serves transfers through this process.
	// Remote backends presign their own URLs and bypass the API entirely.
	s.objects, _ = mgr.Objects().(*objstore.Local)

	cfg := mgr.Config()
	s.http = &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      s.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}
	return s
}

// Router assembles the full route tree. Exposed so tests can drive the
// server through httptest without a listener.
func (s *Server) Router() chi.Router {
	cfg := s.manager.Config()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Impersonation-Token", "X-Session-ID"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Idempotency-Replayed"},
		MaxAge:         300,
	}))

	r.Get("/healthz", metrics.HealthHandler())
	r.Get("/readyz", metrics.ReadyHandler())
	r.Get("/livez", metrics.LivenessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if s.objects != nil {
		r.Get("/objects/*", s.handleObjectGet)
		r.Put("/objects/*", s.handleObjectPut)
	}

	// Webhooks resolve their tenant from the payload, not the Host
	// header, so they sit outside the storefront middleware stack.
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(s.maintenance)
		r.Post("/payments", s.handlePaymentWebhook)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.maintenance)
		r.Use(s.withTenant)
		r.Use(s.rateLimit)
		r.Use(s.idempotency)

		s.catalogRoutes(r)
		s.cartRoutes(r)
		s.checkoutRoutes(r)
		s.inventoryRoutes(r)
		s.consignmentRoutes(r)
		s.mediaRoutes(r)
		s.reportingRoutes(r)
	})

	if cfg.Server.AdminToken != "" {
		r.Route("/admin/v1", func(r chi.Router) {
			r.Use(s.requireAdmin)
			s.adminRoutes(r)
		})
	}

	return r
}

// Start begins serving and blocks until Stop is called or the listener
// fails.
func (s *Server) Start() error {
	metrics.RegisterComponent("api", true, "listening on "+s.http.Addr)
	s.logger.Info().Str("listen", s.http.Addr).Msg("api server started")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		metrics.UpdateComponent("api", false, err.Error())
		return err
	}
	return nil
}

// Stop drains in-flight requests within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	metrics.UpdateComponent("api", false, "shutting down")
	s.logger.Info().Msg("api server stopping")
	return s.http.Shutdown(ctx)
}
