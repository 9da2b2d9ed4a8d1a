package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/middleware"
	"github.com/nijaru/reelflow/repository"
	"github.com/nijaru/reelflow/services/settings"
	"github.com/nijaru/reelflow/storage"
	"github.com/nijaru/reelflow/validation"
	"github.com/sirupsen/logrus"
)

type Server struct {
	jobs      *JobHandler
	settings  *SettingsHandler
	channels  *ChannelHandler
	assets    *AssetHandler
	schedule  func() map[string]time.Time
	validator *validation.Validator
	config    *config.Config
	logger    *logrus.Logger
	server    *http.Server
	startTime time.Time
}

type ServerOption func(*Server)

// NewServer creates a new API server with the provided services and options
func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		validator: validation.NewValidator(cfg),
		config:    cfg,
		logger:    logrus.StandardLogger(),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// WithLogger sets a custom logger for the server. It must come before the
// options that build handlers.
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithPipeline wires job submission, listing and video endpoints.
func WithPipeline(pipeline Pipeline, store repository.JobStore) ServerOption {
	return func(s *Server) {
		s.jobs = NewJobHandler(pipeline, store, s.validator, s.logger)
	}
}

// WithSettings wires settings, hook and source account endpoints. Assets
// from a local store are also served over HTTP.
func WithSettings(store settings.Store, assets storage.AssetStore, accounts repository.AccountRepository) ServerOption {
	return func(s *Server) {
		s.settings = NewSettingsHandler(store, assets, accounts, s.validator, s.config, s.logger)
		if _, ok := assets.(*storage.LocalStore); ok {
			s.assets = NewAssetHandler(assets)
		}
	}
}

// WithChannels wires destination channel endpoints.
func WithChannels(channels repository.ChannelRepository, connector ChannelConnector) ServerOption {
	return func(s *Server) {
		s.channels = NewChannelHandler(channels, connector, s.validator, s.config, s.logger)
	}
}

// WithSchedule reports scheduled job times on the health endpoint.
func WithSchedule(nextRuns func() map[string]time.Time) ServerOption {
	return func(s *Server) {
		s.schedule = nextRuns
	}
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	s.logger.WithField("port", s.config.ServerPort).Info("Starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	if s.jobs != nil {
		mux.HandleFunc("POST /api/jobs/scrape", s.jobs.HandleSubmitScrape)
		mux.HandleFunc("GET /api/jobs", s.jobs.HandleListJobs)
		mux.HandleFunc("POST /api/sweep", s.jobs.HandleSweep)
		mux.HandleFunc("POST /api/quota-retry", s.jobs.HandleQuotaRetry)
		mux.HandleFunc("GET /api/pipeline-jobs", s.jobs.HandleListPipelineJobs)
		mux.HandleFunc("GET /api/videos", s.jobs.HandleListVideos)
		mux.HandleFunc("GET /api/videos/stats", s.jobs.HandleVideoStats)
		mux.HandleFunc("GET /api/videos/{id}", s.jobs.HandleGetVideo)
	}

	if s.settings != nil {
		mux.HandleFunc("GET /api/settings", s.settings.HandleGetSettings)
		mux.HandleFunc("POST /api/settings", s.settings.HandleUpdateSettings)
		mux.HandleFunc("GET /api/settings/hooks", s.settings.HandleListHooks)
		mux.HandleFunc("POST /api/settings/hooks", s.settings.HandleUploadHook)
		mux.HandleFunc("DELETE /api/settings/hooks/{name}", s.settings.HandleDeleteHook)
		mux.HandleFunc("GET /api/settings/accounts", s.settings.HandleListAccounts)
		mux.HandleFunc("POST /api/settings/accounts", s.settings.HandleAddAccount)
		mux.HandleFunc("DELETE /api/settings/accounts/{handle}", s.settings.HandleDeleteAccount)
	}

	if s.channels != nil {
		mux.HandleFunc("GET /api/channels", s.channels.HandleListChannels)
		mux.HandleFunc("DELETE /api/channels/{id}", s.channels.HandleDeleteChannel)
		mux.HandleFunc("GET /api/youtube/auth-url", s.channels.HandleAuthURL)
		mux.HandleFunc("POST /api/youtube/callback", s.channels.HandleCallback)
		mux.HandleFunc("GET /api/youtube/status", s.channels.HandleStatus)
		mux.HandleFunc("GET /api/youtube/analytics", s.channels.HandleAnalytics)
	}

	if s.assets != nil {
		mux.HandleFunc("GET /assets/{collection}/{name}", s.assets.HandleGetAsset)
	}

	mux.HandleFunc("GET /health", s.handleHealth)

	return s.middleware(mux)
}

func (s *Server) middleware(handler http.Handler) http.Handler {
	mw := s.config.Middleware

	var middlewares []func(http.Handler) http.Handler
	if mw.EnableRequestID {
		middlewares = append(middlewares, middleware.RequestID())
	}
	if mw.EnableLogger {
		middlewares = append(middlewares, middleware.Logging(s.logger))
	}
	if mw.EnableRecover {
		middlewares = append(middlewares, middleware.Recovery(s.logger))
	}
	if mw.EnableCORS {
		middlewares = append(middlewares, middleware.CORS(s.config.CORS))
	}
	if mw.EnableTimeout && s.config.RequestTimeout > 0 {
		middlewares = append(middlewares, middleware.Timeout(s.config.RequestTimeout, "/api/settings/hooks", "/assets/"))
	}
	if mw.EnableRateLimit && s.config.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(s.config.RateLimit.RequestsPerMinute, s.config.RateLimit.BurstSize)
		middlewares = append(middlewares, limiter.Middleware)
	}

	return middleware.Chain(handler, middlewares...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   s.config.Version,
		"uptime":    time.Since(s.startTime).String(),
	}

	if s.schedule != nil {
		status["schedule"] = s.schedule()
	}

	if s.config.Debug {
		status["debug"] = true
		status["goroutines"] = runtime.NumGoroutine()
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		status["memory"] = map[string]interface{}{
			"allocated": m.Alloc,
			"total":     m.TotalAlloc,
			"system":    m.Sys,
			"gc_cycles": m.NumGC,
		}
	}

	respondJSON(w, r, http.StatusOK, status)
}
