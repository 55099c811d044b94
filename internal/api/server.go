package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tariffsheriff/tariffd/internal/catalog"
	"github.com/tariffsheriff/tariffd/internal/domain"
	"github.com/tariffsheriff/tariffd/internal/engine"
	"github.com/tariffsheriff/tariffd/internal/roo"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, resolver *engine.Resolver, comparator *engine.Comparator, rooEngine *roo.Engine, cat *catalog.Cached, version string) *Server {
	handler := NewHandler(repo, cache, bus, resolver, comparator, rooEngine, cat, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Rate resolution and origin comparison
	router.Post("/resolve", handler.Resolve)
	router.Post("/compare", handler.Compare)

	// Saved calculations
	router.Get("/calculations", handler.ListCalculations)
	router.Post("/calculations", handler.CreateCalculation)
	router.Get("/calculations/{id}", handler.GetCalculation)
	router.Delete("/calculations/{id}", handler.DeleteCalculation)

	// Reference data
	router.Get("/countries", handler.ListCountries)
	router.Post("/countries", handler.CreateCountry)
	router.Get("/countries/{iso3}", handler.GetCountry)

	router.Get("/products", handler.ListProducts)
	router.Post("/products", handler.CreateProduct)

	router.Get("/agreements", handler.ListAgreements)
	router.Post("/agreements", handler.CreateAgreement)
	router.Get("/agreements/{id}", handler.GetAgreement)

	router.Post("/roo-rules", handler.CreateRooRule)

	router.Get("/tariff-rates", handler.ListTariffRates)
	router.Post("/tariff-rates", handler.CreateTariffRate)
	router.Get("/tariff-rates/{id}", handler.GetTariffRate)

	router.Get("/tax-rates/{importer}", handler.GetSalesTaxRate)
	router.Put("/tax-rates/{importer}", handler.PutSalesTaxRate)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
