// =============================================================================
// catalogfed configuration loader
// =============================================================================
// YAML file plus environment overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("catalogfed.yaml").
//	    WithEnvPrefix("CATALOGFED").
//	    Load()
//
// Precedence: defaults -> YAML file -> environment
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "CATALOGFED"

// =============================================================================
// Configuration structure
// =============================================================================

// Config is the complete catalogfed configuration.
type Config struct {
	// Federation engine settings
	Federation FederationConfig `yaml:"federation" env:"FEDERATION"`

	// Pool is the shared executor running source tasks
	Pool PoolConfig `yaml:"pool" env:"POOL"`

	// Sources lists the catalog backends. Only the YAML file can set them.
	Sources []SourceConfig `yaml:"sources" env:"-" validate:"dive"`

	// Server configures the HTTP API of the serve command
	Server ServerConfig `yaml:"server" env:"SERVER"`

	Log LogConfig `yaml:"log" env:"LOG"`

	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Cache is the Redis response cache shared by sources with a cache_ttl
	Cache CacheConfig `yaml:"cache" env:"CACHE"`
}

// FederationConfig holds engine-wide settings.
type FederationConfig struct {
	// MaxStartIndex caps the offset forwarded to sources; 0 keeps the engine default.
	MaxStartIndex int `yaml:"max_start_index" env:"MAX_START_INDEX" validate:"gte=0"`
	// DefaultTimeout applies to queries that carry no timeout of their own.
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT" validate:"gte=0"`
	// DefaultPageSize applies to queries that carry no page size.
	DefaultPageSize int `yaml:"default_page_size" env:"DEFAULT_PAGE_SIZE" validate:"gte=0"`
	// MaxPageSize caps the page size of incoming queries; 0 disables the cap.
	MaxPageSize int `yaml:"max_page_size" env:"MAX_PAGE_SIZE" validate:"gte=0"`
	// Executor selects the task executor: pool or group.
	Executor string `yaml:"executor" env:"EXECUTOR" validate:"oneof=pool group"`
	// DeniedSources are never queried.
	DeniedSources []string `yaml:"denied_sources" env:"DENIED_SOURCES"`
	// RedactedAttributes are stripped from every returned result.
	RedactedAttributes []string `yaml:"redacted_attributes" env:"REDACTED_ATTRIBUTES"`
}

// PoolConfig configures the goroutine pool executor.
type PoolConfig struct {
	MaxWorkers  int           `yaml:"max_workers" env:"MAX_WORKERS" validate:"gte=1"`
	QueueSize   int           `yaml:"queue_size" env:"QUEUE_SIZE" validate:"gte=1"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" validate:"gte=0"`
}

// Source types.
const (
	SourceTypeMemory = "memory"
	SourceTypeHTTP   = "http"
	SourceTypeSQL    = "sql"
	SourceTypeRedis  = "redis"
)

// SourceConfig describes one catalog backend. Which fields apply depends on Type.
type SourceConfig struct {
	ID       string        `yaml:"id" validate:"required"`
	Type     string        `yaml:"type" validate:"required,oneof=memory http sql redis"`
	Disabled bool          `yaml:"disabled"`
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
	// CacheTTL caches complete answers of this source when the response
	// cache is enabled; 0 disables caching.
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`

	// http
	URL        string  `yaml:"url" validate:"required_if=Type http"`
	RateLimit  float64 `yaml:"rate_limit" validate:"gte=0"`
	Burst      int     `yaml:"burst" validate:"gte=0"`
	RetryCount int     `yaml:"retry_count" validate:"gte=0,lte=10"`

	// sql
	Driver string `yaml:"driver" validate:"required_if=Type sql"`
	DSN    string `yaml:"dsn" validate:"required_if=Type sql"`
	Table  string `yaml:"table"`
	// Pool limits; zero keeps the default.
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"gte=0"`

	// redis
	Addr     string `yaml:"addr" validate:"required_if=Type redis"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Key      string `yaml:"key"`
	TLS      bool   `yaml:"tls"`

	// memory
	Records []RecordConfig `yaml:"records" validate:"dive"`
}

// RecordConfig is a static catalog entry served by a memory source.
type RecordConfig struct {
	ID        string         `yaml:"id" validate:"required"`
	Title     string         `yaml:"title"`
	Effective time.Time      `yaml:"effective"`
	Score     float64        `yaml:"score"`
	Metadata  map[string]any `yaml:"metadata"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gte=0"`
	// RateLimit is the per-client request rate; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT" validate:"gte=0"`
	Burst     int     `yaml:"burst" env:"BURST" validate:"gte=0"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	// Format: json, console
	Format           string   `yaml:"format" env:"FORMAT" validate:"oneof=json console"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures the OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT" validate:"required_if=Enabled true"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE" validate:"gte=0,lte=1"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE" validate:"required_if=Enabled true"`
	// Addr serves /metrics when set, e.g. ":9091".
	Addr string `yaml:"addr" env:"ADDR"`
}

// CacheConfig configures the Redis response cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	Addr       string        `yaml:"addr" env:"ADDR" validate:"required_if=Enabled true"`
	Password   string        `yaml:"password" env:"PASSWORD"`
	DB         int           `yaml:"db" env:"DB" validate:"gte=0"`
	TLS        bool          `yaml:"tls" env:"TLS"`
	KeyPrefix  string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL" validate:"gte=0"`
}

// EnabledSources returns the sources not marked disabled, in file order.
func (c *Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// =============================================================================
// Loader
// =============================================================================

// Loader loads configuration (builder style).
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the default environment prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validator run after the built-in checks.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// ConfigPath returns the YAML file path, if any.
func (l *Loader) ConfigPath() string {
	return l.configPath
}

// Load builds the configuration.
// Precedence: defaults -> YAML file -> environment
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile reads the YAML file. A missing file keeps the defaults.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks struct fields carrying an env tag.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// comma separated string slices
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// MustLoad loads the configuration and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads defaults plus environment overrides.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}
