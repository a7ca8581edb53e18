package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/config"
	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/internal/modules/marketdata"
	"github.com/aristath/portfolio-analytics/internal/modules/portfolio"
	"github.com/aristath/portfolio-analytics/internal/modules/risk"
	"github.com/aristath/portfolio-analytics/internal/modules/settings"
	"github.com/aristath/portfolio-analytics/internal/modules/statistics"
	"github.com/aristath/portfolio-analytics/internal/reliability"
	"github.com/aristath/portfolio-analytics/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	AnalyticsDB *database.DB
	ConfigDB    *database.DB
	CacheDB     *database.DB
	History     *marketdata.HistoryStore
	Config      *config.Config
	Port        int
	DevMode     bool
	Scheduler   *scheduler.Scheduler
	Recorder    *scheduler.RunRecorder
	Monitoring  *reliability.MonitoringService
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	analyticsDB    *database.DB
	configDB       *database.DB
	cacheDB        *database.DB
	history        *marketdata.HistoryStore
	cfg            *config.Config
	systemHandlers *SystemHandlers
	scheduler      *scheduler.Scheduler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	systemHandlers := NewSystemHandlers(
		cfg.Log,
		cfg.Config,
		cfg.AnalyticsDB,
		cfg.ConfigDB,
		cfg.CacheDB,
		cfg.History,
		cfg.Scheduler,
		cfg.Recorder,
		cfg.Monitoring,
	)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		analyticsDB:    cfg.AnalyticsDB,
		configDB:       cfg.ConfigDB,
		cacheDB:        cfg.CacheDB,
		history:        cfg.History,
		cfg:            cfg.Config,
		systemHandlers: systemHandlers,
		scheduler:      cfg.Scheduler,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetJobs registers job instances for manual triggering via API.
// Called after jobs are registered in main.go.
func (s *Server) SetJobs(jobs map[string]scheduler.Job) {
	s.systemHandlers.SetJobs(jobs)
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check stays outside /api so load balancers can probe it
	s.router.Get("/health", s.handleHealth)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// System monitoring and operations
		s.setupSystemRoutes(r)

		// Stateless statistics module
		s.setupStatisticsRoutes(r)

		// Stateless risk module
		s.setupRiskRoutes(r)

		// Per-security market data module
		s.setupMarketDataRoutes(r)

		// Portfolio module
		s.setupPortfolioRoutes(r)

		// Settings module
		s.setupSettingsRoutes(r)
	})
}

// setupSystemRoutes configures system monitoring and operations routes
func (s *Server) setupSystemRoutes(r chi.Router) {
	systemHandlers := s.systemHandlers

	r.Route("/system", func(r chi.Router) {
		// Status and monitoring
		r.Get("/status", systemHandlers.HandleSystemStatus)
		r.Get("/jobs", systemHandlers.HandleJobsStatus)
		r.Get("/database/stats", systemHandlers.HandleDatabaseStats)
		r.Get("/disk", systemHandlers.HandleDiskUsage)
		r.Get("/alerts", systemHandlers.HandleAlerts)

		// Manual operation triggers
		r.Post("/jobs/{name}/run", systemHandlers.HandleTriggerJob)
		r.Route("/sync", func(r chi.Router) {
			r.Post("/prices", systemHandlers.HandleSyncPrices)
		})
	})
}

// setupStatisticsRoutes configures statistics module routes
func (s *Server) setupStatisticsRoutes(r chi.Router) {
	service := statistics.NewService(s.log)
	handler := statistics.NewHandler(service, s.log)
	handler.RegisterRoutes(r)
}

// setupRiskRoutes configures risk module routes
func (s *Server) setupRiskRoutes(r chi.Router) {
	service := risk.NewService(s.riskDefaults(), s.log)
	handler := risk.NewHandler(service, s.log)
	handler.RegisterRoutes(r)
}

// setupMarketDataRoutes configures per-security market data routes
func (s *Server) setupMarketDataRoutes(r chi.Router) {
	statisticsService := statistics.NewService(s.log)
	riskService := risk.NewService(s.riskDefaults(), s.log)

	handler := marketdata.NewHandler(s.history, statisticsService, riskService, s.log)
	handler.RegisterRoutes(r)
}

// setupPortfolioRoutes configures portfolio module routes
func (s *Server) setupPortfolioRoutes(r chi.Router) {
	repo := portfolio.NewRepository(s.configDB.Conn(), s.log)
	snapshots := portfolio.NewSnapshotRepository(s.analyticsDB.Conn(), s.log)
	series := portfolio.NewSeriesBuilder(s.history.Conn(), s.log)
	riskService := risk.NewService(s.riskDefaults(), s.log)

	service := portfolio.NewService(repo, snapshots, series, riskService, s.cfg.LookbackDays, s.log)
	handler := portfolio.NewHandler(service, s.log)
	handler.RegisterRoutes(r)
}

// setupSettingsRoutes configures settings module routes
func (s *Server) setupSettingsRoutes(r chi.Router) {
	repo := settings.NewRepository(s.configDB.Conn(), s.log)
	service := settings.NewService(repo, s.log)
	handler := settings.NewHandler(service, s.log)
	handler.RegisterRoutes(r)
}

// riskDefaults maps the loaded configuration onto the risk module's defaults.
func (s *Server) riskDefaults() risk.Defaults {
	return risk.Defaults{
		RiskFreeRate:    s.cfg.AnnualRiskFreeRate,
		PeriodsPerYear:  s.cfg.PeriodsPerYear,
		ConfidenceLevel: s.cfg.ConfidenceLevel,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the configured router, used by tests to drive requests
// through the full middleware stack without binding a socket.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
