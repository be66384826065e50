package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	HTTP         HTTPConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Log          LogConfig
	Telemetry    TelemetryConfig
	JWT          JWTConfig
	Sync         SyncConfig
	Marketplaces []MarketplaceConfig
	RabbitMQ     RabbitMQConfig
	Storage      StorageConfig
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
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    int // in minutes
	ConnMaxIdleTime    int // in minutes
	LogLevel           string
	SlowQueryThreshold time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// JWTConfig holds settings for the operator bearer tokens
type JWTConfig struct {
	Secret                string
	AccessTokenExpiration time.Duration
	Issuer                string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
	HSTSMaxAge        int // seconds; 0 leaves Strict-Transport-Security off
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces and metrics
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	DBTraceEnabled    bool // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool // Log full SQL statements (dev only)
}

// SyncConfig holds the engine-wide sync settings. Per-marketplace values in
// MarketplaceConfig take precedence.
type SyncConfig struct {
	SchedulerEnabled      bool
	InventoryInterval     time.Duration
	OrdersInterval        time.Duration
	RunTimeout            time.Duration
	MaxTransientRetries   int
	MaxPartialRetries     int
	RetryBaseDelay        time.Duration
	RetryMaxDelay         time.Duration
	CredentialMaxAttempts int
	RefreshMargin         time.Duration
	Direction             string // push or pull
	InitialLookback       time.Duration
	EncryptionKey         string // seals stored marketplace tokens
	StatusMappingsFile    string
}

// MarketplaceConfig configures one marketplace instance
type MarketplaceConfig struct {
	ID           string        `mapstructure:"id"`
	Provider     string        `mapstructure:"provider"`
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Email        string        `mapstructure:"email"`
	Password     string        `mapstructure:"password"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	ShopCodes    []string      `mapstructure:"shop_codes"`
	StatusFilter []string      `mapstructure:"status_filter"`
	Direction    string        `mapstructure:"direction"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Inventory    bool          `mapstructure:"inventory"`
	Orders       bool          `mapstructure:"orders"`
}

// RabbitMQConfig holds the alert publisher settings
type RabbitMQConfig struct {
	Enabled  bool
	URL      string
	Exchange string
	Source   string // CloudEvents source attribute
}

// StorageConfig holds the quarantine payload archive settings
type StorageConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	Prefix          string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SYNC_ prefix (e.g., SYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}
	return load(v)
}

// LoadFile loads configuration from an explicit file, still honoring env overrides
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			HSTSMaxAge:        v.GetInt("http.hsts_max_age"),
		},
		Database: DatabaseConfig{
			Host:               v.GetString("database.host"),
			Port:               v.GetInt("database.port"),
			User:               v.GetString("database.user"),
			Password:           v.GetString("database.password"),
			DBName:             v.GetString("database.dbname"),
			SSLMode:            v.GetString("database.sslmode"),
			MaxOpenConns:       v.GetInt("database.max_open_conns"),
			MaxIdleConns:       v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime:    v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime:    v.GetInt("database.conn_max_idle_time"),
			LogLevel:           v.GetString("database.log_level"),
			SlowQueryThreshold: v.GetDuration("database.slow_query_threshold"),
		},
		Redis: RedisConfig{
			Enabled:   v.GetBool("redis.enabled"),
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
		},
		Sync: SyncConfig{
			SchedulerEnabled:      v.GetBool("sync.scheduler_enabled"),
			InventoryInterval:     v.GetDuration("sync.inventory_interval"),
			OrdersInterval:        v.GetDuration("sync.orders_interval"),
			RunTimeout:            v.GetDuration("sync.run_timeout"),
			MaxTransientRetries:   v.GetInt("sync.max_transient_retries"),
			MaxPartialRetries:     v.GetInt("sync.max_partial_retries"),
			RetryBaseDelay:        v.GetDuration("sync.retry_base_delay"),
			RetryMaxDelay:         v.GetDuration("sync.retry_max_delay"),
			CredentialMaxAttempts: v.GetInt("sync.credential_max_attempts"),
			RefreshMargin:         v.GetDuration("sync.refresh_margin"),
			Direction:             v.GetString("sync.direction"),
			InitialLookback:       v.GetDuration("sync.initial_lookback"),
			EncryptionKey:         v.GetString("sync.encryption_key"),
			StatusMappingsFile:    v.GetString("sync.status_mappings_file"),
		},
		RabbitMQ: RabbitMQConfig{
			Enabled:  v.GetBool("rabbitmq.enabled"),
			URL:      v.GetString("rabbitmq.url"),
			Exchange: v.GetString("rabbitmq.exchange"),
			Source:   v.GetString("rabbitmq.source"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			Prefix:          v.GetString("storage.prefix"),
		},
	}

	if err := v.UnmarshalKey("marketplaces", &cfg.Marketplaces); err != nil {
		return nil, fmt.Errorf("error decoding marketplaces: %w", err)
	}
	expandSecrets(cfg.Marketplaces)

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandSecrets resolves ${VAR} references in marketplace credentials so that
// secrets can live in the environment (or a .env file) instead of config.toml
func expandSecrets(marketplaces []MarketplaceConfig) {
	for i := range marketplaces {
		m := &marketplaces[i]
		m.APIKey = os.ExpandEnv(m.APIKey)
		m.Email = os.ExpandEnv(m.Email)
		m.Password = os.ExpandEnv(m.Password)
		m.ClientID = os.ExpandEnv(m.ClientID)
		m.ClientSecret = os.ExpandEnv(m.ClientSecret)
	}
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
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// An empty origin list means no cross-origin requests are allowed
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
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
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Database.SlowQueryThreshold == 0 {
		cfg.Database.SlowQueryThreshold = 200 * time.Millisecond
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "marketsync:"
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

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}

	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 12 * time.Hour
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "marketsync"
	}

	if cfg.Sync.InventoryInterval == 0 {
		cfg.Sync.InventoryInterval = 10 * time.Minute
	}
	if cfg.Sync.OrdersInterval == 0 {
		cfg.Sync.OrdersInterval = 5 * time.Minute
	}
	if cfg.Sync.RunTimeout == 0 {
		cfg.Sync.RunTimeout = 15 * time.Minute
	}
	if cfg.Sync.MaxTransientRetries == 0 {
		cfg.Sync.MaxTransientRetries = 3
	}
	if cfg.Sync.MaxPartialRetries == 0 {
		cfg.Sync.MaxPartialRetries = 2
	}
	if cfg.Sync.RetryBaseDelay == 0 {
		cfg.Sync.RetryBaseDelay = 30 * time.Second
	}
	if cfg.Sync.RetryMaxDelay == 0 {
		cfg.Sync.RetryMaxDelay = 30 * time.Minute
	}
	if cfg.Sync.CredentialMaxAttempts == 0 {
		cfg.Sync.CredentialMaxAttempts = 3
	}
	if cfg.Sync.RefreshMargin == 0 {
		cfg.Sync.RefreshMargin = 5 * time.Minute
	}
	if cfg.Sync.Direction == "" {
		cfg.Sync.Direction = "push"
	}
	if cfg.Sync.InitialLookback == 0 {
		cfg.Sync.InitialLookback = 7 * 24 * time.Hour
	}
	if cfg.Sync.StatusMappingsFile == "" {
		cfg.Sync.StatusMappingsFile = "config/status_mappings.yaml"
	}

	for i := range cfg.Marketplaces {
		m := &cfg.Marketplaces[i]
		m.Provider = strings.ToLower(strings.TrimSpace(m.Provider))
		if m.Direction == "" {
			m.Direction = cfg.Sync.Direction
		}
		// A marketplace with neither kind listed syncs both
		if !m.Inventory && !m.Orders {
			m.Inventory = true
			m.Orders = true
		}
	}

	if cfg.RabbitMQ.Exchange == "" {
		cfg.RabbitMQ.Exchange = "marketsync.events"
	}
	if cfg.RabbitMQ.Source == "" {
		cfg.RabbitMQ.Source = "/marketsync/" + cfg.App.Env
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "ap-northeast-2"
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

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if !validDirection(c.Sync.Direction) {
		return fmt.Errorf("sync.direction must be push or pull, got %q", c.Sync.Direction)
	}
	if c.Sync.MaxTransientRetries < 0 || c.Sync.MaxPartialRetries < 0 {
		return fmt.Errorf("sync retry bounds cannot be negative")
	}
	if c.Sync.RetryMaxDelay < c.Sync.RetryBaseDelay {
		return fmt.Errorf("sync.retry_max_delay cannot be shorter than sync.retry_base_delay")
	}

	seen := make(map[string]bool, len(c.Marketplaces))
	for i, m := range c.Marketplaces {
		if m.ID == "" {
			return fmt.Errorf("marketplaces[%d].id is required", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("marketplaces[%d].id %q is duplicated", i, m.ID)
		}
		seen[m.ID] = true
		if m.Provider != "playauto" && m.Provider != "naver" {
			return fmt.Errorf("marketplace %s: unknown provider %q", m.ID, m.Provider)
		}
		if !validDirection(m.Direction) {
			return fmt.Errorf("marketplace %s: direction must be push or pull, got %q", m.ID, m.Direction)
		}
	}

	if c.RabbitMQ.Enabled && c.RabbitMQ.URL == "" {
		return fmt.Errorf("rabbitmq.url is required when rabbitmq is enabled")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Sync.EncryptionKey == "" {
			return fmt.Errorf("sync.encryption_key is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	return nil
}

func validDirection(d string) bool {
	return d == "push" || d == "pull"
}

// EnabledMarketplaces returns the marketplaces switched on in configuration
func (c *Config) EnabledMarketplaces() []MarketplaceConfig {
	out := make([]MarketplaceConfig, 0, len(c.Marketplaces))
	for _, m := range c.Marketplaces {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
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
