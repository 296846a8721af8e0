package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Crypto       CryptoConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Sync         SyncConfig
	TokenRefresh TokenRefreshConfig
	OrderImport  OrderImportConfig
	MercadoLibre MercadoLibreConfig
	ERP          ERPConfig
	Storage      StorageConfig
	Telemetry    TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
	// PublicURL is the externally reachable base URL used for OAuth redirects
	PublicURL string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	MigrationsPath  string
}

// RedisConfig holds Redis connection settings. An empty Host disables Redis.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Enabled reports whether a Redis server is configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// JWTConfig holds the admin API secret and the OAuth state signing secret
type JWTConfig struct {
	Secret          string
	Issuer          string
	StateSecret     string
	StateExpiration time.Duration
}

// CryptoConfig holds token encryption keys. Keys are hex or base64 encoded 32-byte values.
type CryptoConfig struct {
	ActiveKeyID string
	Keys        map[string]string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string

	// Webhook intake is rate limited per client IP
	WebhookRatePerSecond float64
	WebhookRateBurst     int
}

// SyncConfig holds sync queue and worker settings
type SyncConfig struct {
	Enabled           bool
	Workers           int
	BatchSize         int
	PollInterval      time.Duration
	CallTimeout       time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	ProcessingTimeout time.Duration
	RetentionDays     int
	ReaperCron        string
	PurgeCron         string
}

// Retention returns the retention window of terminal queue items
func (s SyncConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// TokenRefreshConfig holds background token refresh settings
type TokenRefreshConfig struct {
	Interval  time.Duration
	Threshold time.Duration
}

// OrderImportConfig holds order polling and webhook dispatch settings
type OrderImportConfig struct {
	PollEnabled       bool
	PollInterval      time.Duration
	Lookback          time.Duration
	DispatcherWorkers int
	DispatcherBuffer  int
	NotificationTTL   time.Duration
	PollConcurrency   int
}

// MercadoLibreConfig holds the marketplace adapter settings
type MercadoLibreConfig struct {
	APIBaseURL     string
	AuthURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	SiteID         string
	RequestTimeout time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	MaxAttempts    int
	RatePerSecond  float64
	RateBurst      int
	// PictureMaxSide bounds the longest picture side before upload
	PictureMaxSide int
}

// ERPConfig holds the ERP collaborator API settings
type ERPConfig struct {
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration
}

// StorageConfig holds the product picture bucket settings. An empty Bucket disables pictures.
type StorageConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	// Database tracing options
	DBTraceEnabled    bool
	DBSlowQueryThresh time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with MSYNC_ prefix (e.g., MSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("MSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return build(v)
}

// build maps viper keys to the config struct, then applies defaults and validation
func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:      v.GetString("app.name"),
			Env:       v.GetString("app.env"),
			Port:      v.GetString("app.port"),
			PublicURL: v.GetString("app.public_url"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			MigrationsPath:  v.GetString("database.migrations_path"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:          v.GetString("jwt.secret"),
			Issuer:          v.GetString("jwt.issuer"),
			StateSecret:     v.GetString("jwt.state_secret"),
			StateExpiration: v.GetDuration("jwt.state_expiration"),
		},
		Crypto: CryptoConfig{
			ActiveKeyID: v.GetString("crypto.active_key_id"),
			Keys:        v.GetStringMapString("crypto.keys"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),

			WebhookRatePerSecond: v.GetFloat64("http.webhook_rate_per_second"),
			WebhookRateBurst:     v.GetInt("http.webhook_rate_burst"),
		},
		Sync: SyncConfig{
			Enabled:           !v.IsSet("sync.enabled") || v.GetBool("sync.enabled"),
			Workers:           v.GetInt("sync.workers"),
			BatchSize:         v.GetInt("sync.batch_size"),
			PollInterval:      v.GetDuration("sync.poll_interval"),
			CallTimeout:       v.GetDuration("sync.call_timeout"),
			MaxRetries:        v.GetInt("sync.max_retries"),
			RetryBaseDelay:    durationOr(v, "sync.retry_base_delay", defaultRetryBaseDelay),
			RetryMaxDelay:     v.GetDuration("sync.retry_max_delay"),
			ProcessingTimeout: v.GetDuration("sync.processing_timeout"),
			RetentionDays:     v.GetInt("sync.retention_days"),
			ReaperCron:        v.GetString("sync.reaper_cron"),
			PurgeCron:         v.GetString("sync.purge_cron"),
		},
		TokenRefresh: TokenRefreshConfig{
			Interval:  v.GetDuration("token_refresh.interval"),
			Threshold: v.GetDuration("token_refresh.threshold"),
		},
		OrderImport: OrderImportConfig{
			PollEnabled:       !v.IsSet("order_import.poll_enabled") || v.GetBool("order_import.poll_enabled"),
			PollInterval:      v.GetDuration("order_import.poll_interval"),
			Lookback:          v.GetDuration("order_import.lookback"),
			DispatcherWorkers: v.GetInt("order_import.dispatcher_workers"),
			DispatcherBuffer:  v.GetInt("order_import.dispatcher_buffer"),
			NotificationTTL:   v.GetDuration("order_import.notification_ttl"),
			PollConcurrency:   v.GetInt("order_import.poll_concurrency"),
		},
		MercadoLibre: MercadoLibreConfig{
			APIBaseURL:     v.GetString("mercadolibre.api_base_url"),
			AuthURL:        v.GetString("mercadolibre.auth_url"),
			TokenURL:       v.GetString("mercadolibre.token_url"),
			ClientID:       v.GetString("mercadolibre.client_id"),
			ClientSecret:   v.GetString("mercadolibre.client_secret"),
			SiteID:         v.GetString("mercadolibre.site_id"),
			RequestTimeout: v.GetDuration("mercadolibre.request_timeout"),
			BackoffInitial: v.GetDuration("mercadolibre.backoff_initial"),
			BackoffMax:     v.GetDuration("mercadolibre.backoff_max"),
			MaxAttempts:    v.GetInt("mercadolibre.max_attempts"),
			RatePerSecond:  v.GetFloat64("mercadolibre.rate_per_second"),
			RateBurst:      v.GetInt("mercadolibre.rate_burst"),
			PictureMaxSide: v.GetInt("mercadolibre.picture_max_side"),
		},
		ERP: ERPConfig{
			BaseURL:      v.GetString("erp.base_url"),
			ServiceToken: v.GetString("erp.service_token"),
			Timeout:      v.GetDuration("erp.timeout"),
		},
		Storage: StorageConfig{
			Bucket:       v.GetString("storage.bucket"),
			Region:       v.GetString("storage.region"),
			Endpoint:     v.GetString("storage.endpoint"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultRetryBaseDelay = 5 * time.Second

// durationOr reads key when it is set. An explicit zero is kept.
func durationOr(v *viper.Viper, key string, def time.Duration) time.Duration {
	if !v.IsSet(key) {
		return def
	}
	return v.GetDuration(key)
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "marketsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "marketsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.MigrationsPath == "" {
		cfg.Database.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host != "" && cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "marketsync"
	}
	if cfg.JWT.StateSecret == "" {
		cfg.JWT.StateSecret = cfg.JWT.Secret
	}
	if cfg.JWT.StateExpiration == 0 {
		cfg.JWT.StateExpiration = 10 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.WebhookRatePerSecond == 0 {
		cfg.HTTP.WebhookRatePerSecond = 50
	}
	if cfg.HTTP.WebhookRateBurst == 0 {
		cfg.HTTP.WebhookRateBurst = 100
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID"}
	}
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 10
	}
	if cfg.Sync.PollInterval == 0 {
		cfg.Sync.PollInterval = 2 * time.Second
	}
	if cfg.Sync.CallTimeout == 0 {
		cfg.Sync.CallTimeout = 30 * time.Second
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 3
	}
	if cfg.Sync.RetryMaxDelay == 0 {
		cfg.Sync.RetryMaxDelay = 5 * time.Minute
	}
	if cfg.Sync.ProcessingTimeout == 0 {
		cfg.Sync.ProcessingTimeout = 10 * time.Minute
	}
	if cfg.Sync.RetentionDays == 0 {
		cfg.Sync.RetentionDays = 30
	}
	if cfg.Sync.ReaperCron == "" {
		cfg.Sync.ReaperCron = "@every 1m"
	}
	if cfg.Sync.PurgeCron == "" {
		cfg.Sync.PurgeCron = "0 3 * * *"
	}
	if cfg.TokenRefresh.Interval == 0 {
		cfg.TokenRefresh.Interval = time.Minute
	}
	if cfg.TokenRefresh.Threshold == 0 {
		cfg.TokenRefresh.Threshold = 5 * time.Minute
	}
	if cfg.OrderImport.PollInterval == 0 {
		cfg.OrderImport.PollInterval = 5 * time.Minute
	}
	if cfg.OrderImport.Lookback == 0 {
		cfg.OrderImport.Lookback = 2 * time.Hour
	}
	if cfg.OrderImport.DispatcherWorkers == 0 {
		cfg.OrderImport.DispatcherWorkers = 4
	}
	if cfg.OrderImport.DispatcherBuffer == 0 {
		cfg.OrderImport.DispatcherBuffer = 256
	}
	if cfg.OrderImport.NotificationTTL == 0 {
		cfg.OrderImport.NotificationTTL = 30 * time.Second
	}
	if cfg.OrderImport.PollConcurrency == 0 {
		cfg.OrderImport.PollConcurrency = 4
	}
	if cfg.MercadoLibre.APIBaseURL == "" {
		cfg.MercadoLibre.APIBaseURL = "https://api.mercadolibre.com"
	}
	if cfg.MercadoLibre.AuthURL == "" {
		cfg.MercadoLibre.AuthURL = "https://auth.mercadolibre.com/authorization"
	}
	if cfg.MercadoLibre.TokenURL == "" {
		cfg.MercadoLibre.TokenURL = cfg.MercadoLibre.APIBaseURL + "/oauth/token"
	}
	if cfg.MercadoLibre.SiteID == "" {
		cfg.MercadoLibre.SiteID = "MLB"
	}
	if cfg.MercadoLibre.RequestTimeout == 0 {
		cfg.MercadoLibre.RequestTimeout = 20 * time.Second
	}
	if cfg.MercadoLibre.BackoffInitial == 0 {
		cfg.MercadoLibre.BackoffInitial = 500 * time.Millisecond
	}
	if cfg.MercadoLibre.BackoffMax == 0 {
		cfg.MercadoLibre.BackoffMax = 10 * time.Second
	}
	if cfg.MercadoLibre.MaxAttempts == 0 {
		cfg.MercadoLibre.MaxAttempts = 3
	}
	if cfg.MercadoLibre.RatePerSecond == 0 {
		cfg.MercadoLibre.RatePerSecond = 5
	}
	if cfg.MercadoLibre.RateBurst == 0 {
		cfg.MercadoLibre.RateBurst = 5
	}
	if cfg.MercadoLibre.PictureMaxSide == 0 {
		cfg.MercadoLibre.PictureMaxSide = 1200
	}
	if cfg.ERP.Timeout == 0 {
		cfg.ERP.Timeout = 10 * time.Second
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "marketsync"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Sync.Workers < 0 || c.Sync.BatchSize < 0 {
		return fmt.Errorf("sync.workers and sync.batch_size cannot be negative")
	}
	if c.Sync.RetryBaseDelay < 0 {
		return fmt.Errorf("sync.retry_base_delay cannot be negative")
	}
	if c.Sync.RetryMaxDelay < c.Sync.RetryBaseDelay {
		return fmt.Errorf("sync.retry_max_delay (%s) cannot be below sync.retry_base_delay (%s)",
			c.Sync.RetryMaxDelay, c.Sync.RetryBaseDelay)
	}
	if c.Crypto.ActiveKeyID != "" {
		if _, ok := c.Crypto.Keys[c.Crypto.ActiveKeyID]; !ok {
			return fmt.Errorf("crypto.active_key_id %q has no entry in crypto.keys", c.Crypto.ActiveKeyID)
		}
	}

	if c.App.Env == "production" {
		if c.Crypto.ActiveKeyID == "" {
			return fmt.Errorf("crypto.active_key_id is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if len(c.JWT.StateSecret) < 32 {
			return fmt.Errorf("jwt.state_secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	return nil
}

// IsProduction reports whether the app runs in production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
