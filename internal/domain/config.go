package domain

import (
	"time"
)

// Config holds the complete Finch configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Profile determines the deployment footprint
	Profile Profile `json:"profile"`

	// Component configurations
	Transport  TransportConfig  `json:"transport"`
	Dispatch   DispatchConfig   `json:"dispatch"`
	RateLimit  RateLimitConfig  `json:"rateLimit"`
	Registry   RegistryConfig   `json:"registry"`
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// Profile represents the deployment profile.
type Profile string

const (
	// ProfileStandalone runs single-process with SQLite + in-memory LRU +
	// channel bus. No external services required.
	ProfileStandalone Profile = "standalone"

	// ProfileCluster runs with PostgreSQL + Redis + NATS for multi-node
	// deployments sharing one cache and event stream.
	ProfileCluster Profile = "cluster"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// TransportConfig holds retrying-transport settings.
type TransportConfig struct {
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration `json:"timeout"`

	// MaxAttempts bounds attempts on transient failures (default 3).
	MaxAttempts int `json:"maxAttempts"`

	// BaseDelay is multiplied by the attempt number between retries.
	BaseDelay time.Duration `json:"baseDelay"`

	// CacheTTL bounds the life of cached results; zero means entries
	// never expire (staleness is accepted).
	CacheTTL time.Duration `json:"cacheTTL"`

	// Credentials holds optional per-database API keys, injected as a
	// request parameter when present.
	Credentials map[Database]string `json:"credentials,omitempty"`
}

// DispatchConfig holds batch dispatcher settings.
type DispatchConfig struct {
	// MaxWorkers bounds concurrent queries in one batch (default 5).
	MaxWorkers int `json:"maxWorkers"`
}

// RateLimitConfig holds per-database outbound request pacing settings.
type RateLimitConfig struct {
	Enabled bool `json:"enabled"`

	// PerWindow caps requests per database per window; databases not
	// listed use Default.
	PerWindow map[Database]int `json:"perWindow,omitempty"`
	Default   int              `json:"default"`
	Window    time.Duration    `json:"window"`
}

// RegistryConfig holds endpoint/organism registry settings.
type RegistryConfig struct {
	// OverlayPath optionally points at a YAML file extending the built-in
	// endpoints, organisms and credential parameter names.
	OverlayPath string `json:"overlayPath,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// DefaultConfig returns a default configuration for the standalone profile.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  60,
			WriteTimeout: 60,
		},
		Profile: ProfileStandalone,
		Transport: TransportConfig{
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
			BaseDelay:   time.Second,
		},
		Dispatch: DispatchConfig{
			MaxWorkers: 5,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			PerWindow: map[Database]int{
				DatabaseKEGG: 3,
				DatabaseNCBI: 3,
			},
			Default: 10,
			Window:  time.Second,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./finch.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "finch",
		},
	}
}

// ClusterConfig returns a configuration for the cluster profile.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileCluster
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "finch",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
