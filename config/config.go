package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server settings
	ServerPort   string        `json:"server_port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Debug        bool          `json:"debug"`

	// Application paths
	LogDir       string `json:"log_dir"`
	StagingDir   string `json:"staging_dir"`
	SettingsPath string `json:"settings_path"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// Middleware settings
	Middleware MiddlewareConfig `json:"middleware"`

	// CORS Configuration
	CORS CORSConfig `json:"cors"`

	// Rate Limiting
	RateLimit RateLimitConfig `json:"rate_limit"`

	// Database settings
	Database DatabaseConfig `json:"database"`

	AI        AIConfig        `json:"ai"`
	Scraper   ScraperConfig   `json:"scraper"`
	Composer  ComposerConfig  `json:"composer"`
	Assets    AssetsConfig    `json:"assets"`
	YouTube   YouTubeConfig   `json:"youtube"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Application version
	Version string `json:"version"`

	// Request and shutdown timeouts
	RequestTimeout  time.Duration `json:"request_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type MiddlewareConfig struct {
	EnableRecover   bool `json:"enable_recover"`
	EnableRequestID bool `json:"enable_request_id"`
	EnableLogger    bool `json:"enable_logger"`
	EnableTimeout   bool `json:"enable_timeout"`
	EnableCORS      bool `json:"enable_cors"`
	EnableRateLimit bool `json:"enable_rate_limit"`
	EnableDebugMode bool `json:"enable_debug_mode"`
}

type DatabaseConfig struct {
	Driver             string        `json:"driver"`
	Path               string        `json:"path"`
	DSN                string        `json:"-"`
	MaxConnections     int           `json:"max_connections"`
	MaxIdleConnections int           `json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
}

type AIConfig struct {
	Provider   string        `json:"provider"`
	APIKey     string        `json:"-"`
	BaseURL    string        `json:"base_url"`
	LargeModel string        `json:"large_model"`
	SmallModel string        `json:"small_model"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	RetryBase  time.Duration `json:"retry_base"`
	RetryMax   time.Duration `json:"retry_max"`
}

type ScraperConfig struct {
	Limit             int           `json:"limit"`
	RequestsPerMinute int           `json:"requests_per_minute"`
	Timeout           time.Duration `json:"timeout"`
	UserAgent         string        `json:"user_agent"`
	AppID             string        `json:"app_id"`
	BaseURL           string        `json:"base_url"`
}

type ComposerConfig struct {
	DownloaderPath  string        `json:"downloader_path"`
	FFmpegPath      string        `json:"ffmpeg_path"`
	FFprobePath     string        `json:"ffprobe_path"`
	DownloadTimeout time.Duration `json:"download_timeout"`
	ComposeTimeout  time.Duration `json:"compose_timeout"`
	HookTextTimeout time.Duration `json:"hook_text_timeout"`
}

type AssetsConfig struct {
	Backend       string `json:"backend"`
	Bucket        string `json:"bucket"`
	Collection    string `json:"collection"`
	Endpoint      string `json:"endpoint"`
	Region        string `json:"region"`
	AccessKey     string `json:"-"`
	SecretKey     string `json:"-"`
	PublicBaseURL string `json:"public_base_url"`
	LocalDir      string `json:"local_dir"`
	MaxUploadSize int64  `json:"max_upload_size"`
}

type YouTubeConfig struct {
	ClientID      string        `json:"-"`
	ClientSecret  string        `json:"-"`
	RedirectURL   string        `json:"redirect_url"`
	CategoryID    string        `json:"category_id"`
	PrivacyStatus string        `json:"privacy_status"`
	ChunkSize     int           `json:"chunk_size"`
	UploadTimeout time.Duration `json:"upload_timeout"`
}

type PipelineConfig struct {
	Workers           int           `json:"workers"`
	QueueSize         int           `json:"queue_size"`
	MaxAttempts       int           `json:"max_attempts"`
	RetryBackoff      time.Duration `json:"retry_backoff"`
	DefaultMinScore   int           `json:"default_min_score"`
	ScrapeLimit       int           `json:"scrape_limit"`
	SweepLimit        int           `json:"sweep_limit"`
	MaxSourceAccounts int           `json:"max_source_accounts"`
	MaxChannels       int           `json:"max_channels"`
	ScrapeTimeout     time.Duration `json:"scrape_timeout"`
	MetadataTimeout   time.Duration `json:"metadata_timeout"`
	HungTaskThreshold time.Duration `json:"hung_task_threshold"`
}

type SchedulerConfig struct {
	Enabled        bool   `json:"enabled"`
	Timezone       string `json:"timezone"`
	SweepSpec      string `json:"sweep_spec"`
	QuotaRetrySpec string `json:"quota_retry_spec"`
}

type CORSConfig struct {
	Enabled          bool     `json:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `json:"enabled"`
	RequestsPerMinute int  `json:"requests_per_minute"`
	BurstSize         int  `json:"burst_size"`
}

// Default configurations
func defaultDevConfig() MiddlewareConfig {
	return MiddlewareConfig{
		EnableRecover:   true,
		EnableRequestID: true,
		EnableLogger:    true,
		EnableTimeout:   false, // Disabled for easier debugging
		EnableCORS:      true,
		EnableRateLimit: false,
		EnableDebugMode: true,
	}
}

func defaultProdConfig() MiddlewareConfig {
	return MiddlewareConfig{
		EnableRecover:   true,
		EnableRequestID: true,
		EnableLogger:    true,
		EnableTimeout:   true,
		EnableCORS:      true,
		EnableRateLimit: true,
		EnableDebugMode: false,
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Server settings
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ReadTimeout:  getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getEnvAsDuration("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:  getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		Debug:        getEnvAsBool("DEBUG", false),

		// Application paths
		LogDir:       getEnv("LOG_DIR", "/var/log/reelflow"),
		StagingDir:   getEnv("STAGING_DIR", "/tmp/reelflow"),
		SettingsPath: getEnv("SETTINGS_PATH", "/var/lib/reelflow/settings.yaml"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		// Application version
		Version: getEnv("VERSION", "1.0.0"),

		// Request and shutdown timeouts
		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		// CORS Configuration
		CORS: CORSConfig{
			Enabled:        getEnvAsBool("CORS_ENABLED", true),
			AllowedOrigins: getEnvAsStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsStringSlice(
				"CORS_ALLOWED_METHODS",
				[]string{"GET", "POST", "DELETE", "OPTIONS"},
			),
			AllowedHeaders:   getEnvAsStringSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "X-Request-ID"}),
			ExposedHeaders:   getEnvAsStringSlice("CORS_EXPOSED_HEADERS", []string{"X-Request-ID"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 86400),
		},

		// Rate Limiting
		RateLimit: RateLimitConfig{
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 60),
			BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 10),
		},

		// Database
		Database: DatabaseConfig{
			Driver:             getEnv("DB_DRIVER", "sqlite3"),
			Path:               getEnv("DB_PATH", "/var/lib/reelflow/reelflow.db"),
			DSN:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},

		AI: AIConfig{
			Provider:   getEnv("AI_PROVIDER", "groq"),
			APIKey:     getEnv("AI_API_KEY", os.Getenv("GROQ_API_KEY")),
			BaseURL:    getEnv("AI_BASE_URL", "https://api.groq.com/openai/v1"),
			LargeModel: getEnv("AI_LARGE_MODEL", "llama-3.3-70b-versatile"),
			SmallModel: getEnv("AI_SMALL_MODEL", "llama-3.1-8b-instant"),
			Timeout:    getEnvAsDuration("AI_TIMEOUT", 30*time.Second),
			MaxRetries: getEnvAsInt("AI_MAX_RETRIES", 3),
			RetryBase:  getEnvAsDuration("AI_RETRY_BASE", 2*time.Second),
			RetryMax:   getEnvAsDuration("AI_RETRY_MAX", 10*time.Second),
		},

		Scraper: ScraperConfig{
			Limit:             getEnvAsInt("SCRAPER_LIMIT", 10),
			RequestsPerMinute: getEnvAsInt("SCRAPER_RPM", 20),
			Timeout:           getEnvAsDuration("SCRAPER_TIMEOUT", 30*time.Second),
			UserAgent: getEnv(
				"SCRAPER_USER_AGENT",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			),
			AppID:   getEnv("SCRAPER_APP_ID", "936619743392459"),
			BaseURL: getEnv("SCRAPER_BASE_URL", "https://i.instagram.com"),
		},

		Composer: ComposerConfig{
			DownloaderPath:  getEnv("YTDLP_PATH", "yt-dlp"),
			FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:     getEnv("FFPROBE_PATH", "ffprobe"),
			DownloadTimeout: getEnvAsDuration("DOWNLOAD_TIMEOUT", 5*time.Minute),
			ComposeTimeout:  getEnvAsDuration("COMPOSE_TIMEOUT", 15*time.Minute),
			HookTextTimeout: getEnvAsDuration("HOOK_TEXT_TIMEOUT", 30*time.Second),
		},

		Assets: AssetsConfig{
			Backend:       getEnv("ASSETS_BACKEND", "local"),
			Bucket:        getEnv("ASSETS_BUCKET", "reelflow"),
			Collection:    getEnv("ASSETS_HOOK_COLLECTION", "hooks"),
			Endpoint:      getEnv("ASSETS_ENDPOINT", ""),
			Region:        getEnv("ASSETS_REGION", "us-east-1"),
			AccessKey:     getEnv("ASSETS_ACCESS_KEY", ""),
			SecretKey:     getEnv("ASSETS_SECRET_KEY", ""),
			PublicBaseURL: getEnv("ASSETS_PUBLIC_BASE_URL", ""),
			LocalDir:      getEnv("ASSETS_LOCAL_DIR", "/var/lib/reelflow/assets"),
			MaxUploadSize: getEnvAsInt64("ASSETS_MAX_UPLOAD_SIZE", 100*1024*1024),
		},

		YouTube: YouTubeConfig{
			ClientID:      getEnv("YOUTUBE_CLIENT_ID", ""),
			ClientSecret:  getEnv("YOUTUBE_CLIENT_SECRET", ""),
			RedirectURL:   getEnv("YOUTUBE_REDIRECT_URL", "http://localhost:3000/api/auth/youtube/callback"),
			CategoryID:    getEnv("YOUTUBE_CATEGORY_ID", "24"),
			PrivacyStatus: getEnv("YOUTUBE_PRIVACY_STATUS", "public"),
			ChunkSize:     getEnvAsInt("YOUTUBE_CHUNK_SIZE", 8*1024*1024),
			UploadTimeout: getEnvAsDuration("YOUTUBE_UPLOAD_TIMEOUT", 30*time.Minute),
		},

		Pipeline: PipelineConfig{
			Workers:           getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:         getEnvAsInt("PIPELINE_QUEUE_SIZE", 100),
			MaxAttempts:       getEnvAsInt("PIPELINE_MAX_ATTEMPTS", 3),
			RetryBackoff:      getEnvAsDuration("PIPELINE_RETRY_BACKOFF", 10*time.Second),
			DefaultMinScore:   getEnvAsInt("PIPELINE_DEFAULT_MIN_SCORE", 70),
			ScrapeLimit:       getEnvAsInt("PIPELINE_SCRAPE_LIMIT", 10),
			SweepLimit:        getEnvAsInt("PIPELINE_SWEEP_LIMIT", 10),
			MaxSourceAccounts: getEnvAsInt("MAX_SOURCE_ACCOUNTS", 5),
			MaxChannels:       getEnvAsInt("MAX_DESTINATION_CHANNELS", 5),
			ScrapeTimeout:     getEnvAsDuration("PIPELINE_SCRAPE_TIMEOUT", 2*time.Minute),
			MetadataTimeout:   getEnvAsDuration("PIPELINE_METADATA_TIMEOUT", 2*time.Minute),
			HungTaskThreshold: getEnvAsDuration("PIPELINE_HUNG_TASK_THRESHOLD", 45*time.Minute),
		},

		Scheduler: SchedulerConfig{
			Enabled:        getEnvAsBool("SCHEDULER_ENABLED", true),
			Timezone:       getEnv("SCHEDULER_TIMEZONE", "America/Los_Angeles"),
			SweepSpec:      getEnv("SCHEDULER_SWEEP_SPEC", "0 6 * * *"),
			QuotaRetrySpec: getEnv("SCHEDULER_QUOTA_RETRY_SPEC", "5 0 * * *"),
		},

		// Middleware
		Middleware: defaultDevConfig(),
	}

	if os.Getenv("ENV") == "production" {
		cfg.Middleware = defaultProdConfig()
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	// Validate paths
	if err := validatePaths(c); err != nil {
		return err
	}

	// Validate timeouts
	if err := validateTimeouts(c); err != nil {
		return err
	}

	// Validate services
	if err := validateServices(c); err != nil {
		return err
	}

	return nil
}

func validatePaths(c *Config) error {
	paths := []struct {
		path string
		name string
	}{
		{c.LogDir, "log directory"},
		{filepath.Join(c.StagingDir, "raw"), "raw staging directory"},
		{filepath.Join(c.StagingDir, "processed"), "processed staging directory"},
		{filepath.Dir(c.SettingsPath), "settings directory"},
	}

	if c.Database.Driver == "sqlite3" {
		paths = append(paths, struct {
			path string
			name string
		}{filepath.Dir(c.Database.Path), "database directory"})
	}

	if c.Assets.Backend == "local" {
		paths = append(paths, struct {
			path string
			name string
		}{filepath.Join(c.Assets.LocalDir, c.Assets.Collection), "asset directory"})
	}

	for _, p := range paths {
		if err := os.MkdirAll(p.path, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p.name, err)
		}
	}

	return nil
}

func validateTimeouts(c *Config) error {
	timeouts := []struct {
		value time.Duration
		name  string
	}{
		{c.ReadTimeout, "read timeout"},
		{c.WriteTimeout, "write timeout"},
		{c.AI.Timeout, "ai timeout"},
		{c.Scraper.Timeout, "scraper timeout"},
		{c.Composer.DownloadTimeout, "download timeout"},
		{c.Composer.ComposeTimeout, "compose timeout"},
		{c.YouTube.UploadTimeout, "upload timeout"},
		{c.Pipeline.ScrapeTimeout, "scrape timeout"},
		{c.Pipeline.MetadataTimeout, "metadata timeout"},
	}

	for _, t := range timeouts {
		if t.value <= 0 {
			return fmt.Errorf("%s must be positive", t.name)
		}
	}
	return nil
}

func validateServices(c *Config) error {
	switch c.Database.Driver {
	case "sqlite3":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.AI.Provider {
	case "groq", "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("unsupported ai provider: %s", c.AI.Provider)
	}

	switch c.Assets.Backend {
	case "local":
	case "s3":
		if c.Assets.Bucket == "" {
			return fmt.Errorf("ASSETS_BUCKET is required for the s3 asset backend")
		}
	default:
		return fmt.Errorf("unsupported asset backend: %s", c.Assets.Backend)
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be positive")
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline max attempts must be positive")
	}
	if c.Pipeline.DefaultMinScore < 0 || c.Pipeline.DefaultMinScore > 100 {
		return fmt.Errorf("default min score must be between 0 and 100")
	}
	if c.Pipeline.ScrapeLimit <= 0 || c.Pipeline.SweepLimit <= 0 {
		return fmt.Errorf("scrape limits must be positive")
	}
	if c.Pipeline.MaxSourceAccounts <= 0 || c.Pipeline.MaxChannels <= 0 {
		return fmt.Errorf("account and channel limits must be positive")
	}
	return nil
}

// Helper functions for reading environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		if value = strings.TrimSpace(value); value != "" {
			return strings.Split(value, ",")
		}
	}
	return defaultValue
}
