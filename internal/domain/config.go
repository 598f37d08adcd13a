package domain

import "time"

// Config holds the complete Dipper configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Backend  BackendConfig  `json:"backend"`
	Journal  JournalConfig  `json:"journal"`
	Cache    CacheConfig    `json:"cache"`
	EventBus EventBusConfig `json:"eventBus"`

	// Review workflow settings
	Review ReviewConfig `json:"review"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// BackendConfig holds settings for the billing backend connection.
type BackendConfig struct {
	// BaseURL is the backend API root, e.g. "http://localhost:5000/api".
	BaseURL string `json:"baseUrl"`

	// UseMock serves fixture data instead of calling the backend.
	UseMock bool `json:"useMock"`

	// TimeoutSecs bounds each backend call. A timeout surfaces as a
	// network error rather than an unbounded hang.
	TimeoutSecs int `json:"timeoutSecs"`
}

// ReviewConfig holds the audit workflow settings.
type ReviewConfig struct {
	// Statuses is the closed audit vocabulary presented to reviewers.
	Statuses StatusSet `json:"statuses"`

	// DefaultStatus is preselected when an anomaly is opened.
	DefaultStatus string `json:"defaultStatus"`

	// HistoryTTLSecs bounds how long fetched histories are cached.
	HistoryTTLSecs int `json:"historyTtlSecs"`

	// DeltaThreshold is the display threshold (m3) past which a period
	// delta is flagged in the detail view. Cosmetic only.
	DeltaThreshold int `json:"deltaThreshold"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
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

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Backend: BackendConfig{
			BaseURL:     "http://localhost:5000/api",
			UseMock:     false,
			TimeoutSecs: 15,
		},
		Journal: JournalConfig{
			Driver:     "sqlite",
			SQLitePath: "./dipper.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Review: ReviewConfig{
			Statuses:       DefaultStatusSet(),
			DefaultStatus:  StatusRecheck,
			HistoryTTLSecs: 900,
			DeltaThreshold: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "dipper",
		},
	}
}

// ProConfig returns a configuration for pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Journal = JournalConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "dipper",
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
