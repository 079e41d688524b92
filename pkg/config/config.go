// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	App       AppConfig       `koanf:"app"`
	GRPC      GRPCConfig      `koanf:"grpc"`
	Listeners ListenersConfig `koanf:"listeners"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Tracing   TracingConfig   `koanf:"tracing"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Audit     AuditConfig     `koanf:"audit"`
	Retry     RetryConfig     `koanf:"retry"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Events    EventsConfig    `koanf:"events"`
	Command   CommandConfig   `koanf:"command"`
	Hub       HubConfig       `koanf:"hub"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// GRPCConfig configures the Command API / Subscription Hub gRPC server.
type GRPCConfig struct {
	Port              int             `koanf:"port"`
	MaxRecvMsgSize    int             `koanf:"max_recv_msg_size"` // bytes
	MaxSendMsgSize    int             `koanf:"max_send_msg_size"` // bytes
	MaxConcurrentConn int             `koanf:"max_concurrent_conn"`
	KeepAlive         KeepAliveConfig `koanf:"keepalive"`
	TLS               TLSConfig       `koanf:"tls"`
}

// KeepAliveConfig configures gRPC keepalive.
type KeepAliveConfig struct {
	MaxConnectionIdle     time.Duration `koanf:"max_connection_idle"`
	MaxConnectionAge      time.Duration `koanf:"max_connection_age"`
	MaxConnectionAgeGrace time.Duration `koanf:"max_connection_age_grace"`
	Time                  time.Duration `koanf:"time"`
	Timeout               time.Duration `koanf:"timeout"`
}

// TLSConfig configures transport security.
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
	CAFile   string `koanf:"ca_file"`
}

// ListenersConfig configures the protocol ingestion listeners (C2).
type ListenersConfig struct {
	Suntech SuntechListenerConfig `koanf:"suntech"`
	OsmAnd  OsmAndListenerConfig  `koanf:"osmand"`
}

// SuntechListenerConfig configures the Suntech listener. Suntech devices
// dial in over either transport depending on firmware configuration, so
// the TCP stream and UDP datagram flavors are both exposed, sharing the
// same decoder.
type SuntechListenerConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Port        int           `koanf:"port"`
	IdleTimeout time.Duration `koanf:"idle_timeout"`
	UDPEnabled  bool          `koanf:"udp_enabled"`
	UDPPort     int           `koanf:"udp_port"`
	UDPWorkers  int           `koanf:"udp_workers"`
}

// OsmAndListenerConfig configures the OsmAnd request/response listener.
type OsmAndListenerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`   // log file path
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"` // number of rotated backups
	MaxAge     int    `koanf:"max_age"`     // days
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// DatabaseConfig configures the persistence facade's store.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"` // postgres
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	MigrationsPath  string        `koanf:"migrations_path"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
	RetentionDays   int           `koanf:"retention_days"`
}

// DSN returns the driver connection string.
func (d DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
		)
	default:
		return ""
	}
}

// CacheConfig configures the read-through cache.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // in-memory backend only
}

// Address returns the cache endpoint address.
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig configures rate limiting of the Command API.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Requests        int           `koanf:"requests"`
	Window          time.Duration `koanf:"window"`
	Strategy        string        `koanf:"strategy"`
	Backend         string        `koanf:"backend"`
	BurstSize       int           `koanf:"burst_size"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
}

// AuditConfig configures the audit log.
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Backend         string        `koanf:"backend"`
	FilePath        string        `koanf:"file_path"`
	BufferSize      int           `koanf:"buffer_size"`
	FlushPeriod     time.Duration `koanf:"flush_period"`
	ExcludeMethods  []string      `koanf:"exclude_methods"`
	IncludeRequest  bool          `koanf:"include_request"`
	IncludeResponse bool          `koanf:"include_response"`
}

// RetryConfig configures the exponential backoff retries of the position
// pipeline's persistence step (spec.md §4.4 step 7).
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// PipelineConfig configures the Position Pipeline (C4).
type PipelineConfig struct {
	Partitions      int `koanf:"partitions"` // 0 = runtime.NumCPU() * 2
	PartitionBuffer int `koanf:"partition_buffer"`
	DefaultSpeedKmh int `koanf:"default_speed_limit_kmh"`
}

// EventsConfig configures the Event Engine (C6).
type EventsConfig struct {
	GeofenceDedupWindow time.Duration `koanf:"geofence_dedup_window"`
	OnlineWindow        time.Duration `koanf:"online_window"`
	OfflineWindow       time.Duration `koanf:"offline_window"`
	SweepInterval       time.Duration `koanf:"sweep_interval"`
	DefaultBufferM      float64       `koanf:"default_polyline_buffer_m"`
}

// CommandConfig configures the Command Queue & Dispatcher (C7, C8).
type CommandConfig struct {
	AckTimeout      time.Duration `koanf:"ack_timeout"`
	ExecTimeout     time.Duration `koanf:"exec_timeout"`
	MaxBackoff      time.Duration `koanf:"max_backoff"`
	DispatchBatch   int           `koanf:"dispatch_batch"`
	DispatchTick    time.Duration `koanf:"dispatch_tick"`
	SweepInterval   time.Duration `koanf:"sweep_interval"`
	DefaultMaxRetry int           `koanf:"default_max_retries"`
}

// HubConfig configures the Subscription Hub (C9).
type HubConfig struct {
	OutboundBuffer  int           `koanf:"outbound_buffer"`
	HeartbeatPeriod time.Duration `koanf:"heartbeat_period"`
	IdleReap        time.Duration `koanf:"idle_reap"`
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		errs = append(errs, fmt.Sprintf("grpc.port must be between 1 and 65535, got %d", c.GRPC.Port))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Listeners.Suntech.Enabled && (c.Listeners.Suntech.Port <= 0 || c.Listeners.Suntech.Port > 65535) {
		errs = append(errs, fmt.Sprintf("listeners.suntech.port must be between 1 and 65535, got %d", c.Listeners.Suntech.Port))
	}

	if c.Listeners.Suntech.UDPEnabled && (c.Listeners.Suntech.UDPPort <= 0 || c.Listeners.Suntech.UDPPort > 65535) {
		errs = append(errs, fmt.Sprintf("listeners.suntech.udp_port must be between 1 and 65535, got %d", c.Listeners.Suntech.UDPPort))
	}

	if c.Listeners.OsmAnd.Enabled && (c.Listeners.OsmAnd.Port <= 0 || c.Listeners.OsmAnd.Port > 65535) {
		errs = append(errs, fmt.Sprintf("listeners.osmand.port must be between 1 and 65535, got %d", c.Listeners.OsmAnd.Port))
	}

	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether the configured environment is development.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
