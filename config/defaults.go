// =============================================================================
// catalogfed default configuration
// =============================================================================
package config

import "time"

// DefaultConfig returns the default configuration. It carries no sources.
func DefaultConfig() *Config {
	return &Config{
		Federation: DefaultFederationConfig(),
		Pool:       DefaultPoolConfig(),
		Sources:    []SourceConfig{},
		Server:     DefaultServerConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Metrics:    DefaultMetricsConfig(),
		Cache:      DefaultCacheConfig(),
	}
}

// DefaultFederationConfig returns the default engine settings.
func DefaultFederationConfig() FederationConfig {
	return FederationConfig{
		MaxStartIndex:   50000,
		DefaultTimeout:  10 * time.Second,
		DefaultPageSize: 20,
		MaxPageSize:     1000,
		Executor:        "pool",
	}
}

// DefaultPoolConfig returns the default executor settings.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxWorkers:  64,
		QueueSize:   1024,
		IdleTimeout: 60 * time.Second,
	}
}

// DefaultServerConfig returns the default HTTP API settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimit:       0,
		Burst:           20,
	}
}

// DefaultLogConfig returns the default log settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry settings.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "catalogfed",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig returns the default metrics settings.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "catalogfed",
	}
}

// DefaultCacheConfig returns the default response cache settings. The cache
// is off until enabled.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:    false,
		Addr:       "localhost:6379",
		KeyPrefix:  "catalogfed:",
		DefaultTTL: 5 * time.Minute,
	}
}
