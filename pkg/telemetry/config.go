package telemetry

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains the telemetry configuration for macup.
type Config struct {
	// ServiceName is the name of the service for telemetry identification.
	ServiceName string `env:"MACUP_SERVICE_NAME" envDefault:"macup"`

	// ServiceVersion is the version of the service.
	ServiceVersion string `env:"MACUP_SERVICE_VERSION" envDefault:"dev"`

	// Logging contains logging configuration.
	Logging LoggingConfig

	// Tracing contains tracing configuration.
	Tracing TracingConfig

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig

	// Events contains event publishing configuration.
	Events EventsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error, fatal).
	Level string `env:"MACUP_LOG_LEVEL" envDefault:"info"`

	// Format specifies the log format (console, json).
	Format string `env:"MACUP_LOG_FORMAT" envDefault:"console"`

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string `env:"MACUP_LOG_OUTPUT" envDefault:"stderr"`

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool `env:"MACUP_LOG_CALLER"`

	// NoColor disables ANSI colors in console output.
	NoColor bool `env:"NO_COLOR"`

	// TimeFormat specifies the timestamp format (unix, rfc3339, kitchen).
	TimeFormat string `env:"MACUP_LOG_TIME_FORMAT" envDefault:"kitchen"`
}

// TracingConfig configures tracing.
type TracingConfig struct {
	// Exporter specifies the trace exporter (otlp, stdout, none).
	Exporter string `env:"MACUP_TRACE_EXPORTER" envDefault:"none"`

	// Endpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	Endpoint string `env:"MACUP_OTLP_ENDPOINT" envDefault:"localhost:4317"`

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64 `env:"MACUP_TRACE_SAMPLING_RATE" envDefault:"1.0"`

	// ExportTimeout is the timeout for trace export.
	ExportTimeout time.Duration `env:"MACUP_TRACE_EXPORT_TIMEOUT" envDefault:"10s"`

	// Headers are additional headers for the OTLP exporter.
	Headers map[string]string `env:"MACUP_OTLP_HEADERS"`

	// Insecure disables TLS for the exporter connection.
	Insecure bool `env:"MACUP_OTLP_INSECURE" envDefault:"true"`
}

// Enabled returns true if spans are exported anywhere.
func (c TracingConfig) Enabled() bool {
	return c.Exporter != "" && c.Exporter != "none"
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool `env:"MACUP_METRICS_ENABLED" envDefault:"true"`

	// ListenAddress is the address for the metrics HTTP endpoint. Empty
	// disables the server.
	ListenAddress string `env:"MACUP_METRICS_ADDR"`

	// Path is the HTTP path for metrics.
	Path string `env:"MACUP_METRICS_PATH" envDefault:"/metrics"`

	// Namespace is the metrics namespace prefix.
	Namespace string `env:"MACUP_METRICS_NAMESPACE" envDefault:"macup"`

	// TextfilePath is where the registry is written after a run, in the
	// node-exporter textfile format. Empty disables the file.
	TextfilePath string `env:"MACUP_METRICS_FILE"`

	// DefaultHistogramBuckets are the latency buckets in seconds.
	DefaultHistogramBuckets []float64 `env:"MACUP_METRICS_BUCKETS" envSeparator:","`
}

// EventsConfig configures the event publishing system.
type EventsConfig struct {
	// Enabled controls whether event publishing is active.
	Enabled bool `env:"MACUP_EVENTS_ENABLED" envDefault:"true"`

	// BufferSize is the size of the event buffer in async mode.
	BufferSize int `env:"MACUP_EVENTS_BUFFER" envDefault:"256"`

	// EnableAsync delivers events from a background goroutine instead of the
	// publishing goroutine.
	EnableAsync bool `env:"MACUP_EVENTS_ASYNC"`
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "macup",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "kitchen",
		},
		Tracing: TracingConfig{
			Exporter:      "none",
			Endpoint:      "localhost:4317",
			SamplingRate:  1.0,
			ExportTimeout: 10 * time.Second,
			Headers:       make(map[string]string),
			Insecure:      true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "macup",
			DefaultHistogramBuckets: []float64{
				0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
			},
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 256,
		},
	}
}

// LoadConfig reads the telemetry configuration from MACUP_* environment
// variables on top of the defaults.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse telemetry environment: %w", err)
	}
	if len(cfg.Metrics.DefaultHistogramBuckets) == 0 {
		cfg.Metrics.DefaultHistogramBuckets = DefaultConfig().Metrics.DefaultHistogramBuckets
	}
	return cfg, cfg.Validate()
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "disabled": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	validExporters := map[string]bool{
		"otlp": true, "stdout": true, "none": true, "": true,
	}
	if !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	if c.Events.Enabled && c.Events.EnableAsync && c.Events.BufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got: %d", c.Events.BufferSize)
	}

	return nil
}
