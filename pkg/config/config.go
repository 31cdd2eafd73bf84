// Package config loads and validates the mover configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (MOVER_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Environment keys map to config paths with underscores, e.g.
// MOVER_RING_ENTRIES=4096 sets ring.entries and MOVER_SOCKET_PATH sets
// socket.path.
//
// The configuration is validated once at startup and is immutable afterwards;
// any out-of-range value aborts startup before a socket is opened.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete mover configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging"`

	// Socket describes the Unix domain socket the mover listens on.
	Socket SocketConfig `mapstructure:"socket"`

	// Backend selects and configures the content-addressed store consulted
	// by READ and WRITE.
	Backend BackendConfig `mapstructure:"backend"`

	// Ring configures the asynchronous I/O submission ring.
	Ring RingConfig `mapstructure:"ring"`

	// Buffers configures the registered buffer pool.
	Buffers BufferConfig `mapstructure:"buffers"`

	// Batch bounds batched-read execution.
	Batch BatchConfig `mapstructure:"batch"`

	// Server contains connection-handling limits.
	Server ServerConfig `mapstructure:"server"`

	// Features toggles optional I/O paths.
	Features FeatureConfig `mapstructure:"features"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output is where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// SocketConfig describes the listening socket.
type SocketConfig struct {
	// Path is the Unix socket path. Must be absolute.
	Path string `mapstructure:"path" validate:"required,startswith=/"`
}

// BackendConfig selects the content-addressed backend.
//
// Type determines which implementation is used; only the matching
// type-specific section is read.
type BackendConfig struct {
	// Type is the backend implementation: memory, badger, or s3.
	Type string `mapstructure:"type" validate:"required,oneof=memory badger s3"`

	// URL is a backend connection string. For the badger backend it is the
	// database directory when the badger section gives no path; memory
	// ignores it.
	URL string `mapstructure:"url"`

	// Badger contains BadgerDB-specific options (path, in_memory,
	// sync_writes).
	Badger map[string]any `mapstructure:"badger"`

	// S3 contains S3-specific options (region, bucket, key_prefix,
	// endpoint, access_key_id, secret_access_key).
	S3 map[string]any `mapstructure:"s3"`
}

// RingConfig configures the I/O ring.
type RingConfig struct {
	// Entries is the submission queue depth. Must be a power of two in
	// [256, 8192].
	Entries uint32 `mapstructure:"entries"`

	// Flags is either a numeric bitmask ("18") or a comma-separated list
	// of symbolic names ("clamp,sqpoll"). Parsed during validation.
	Flags string `mapstructure:"flags"`

	// FlagBits is the parsed value of Flags, populated by Validate.
	FlagBits uint32 `mapstructure:"-"`
}

// BufferConfig configures the registered buffer pool.
type BufferConfig struct {
	// Count is the number of buffers, in [1, 1024].
	Count int `mapstructure:"count" validate:"min=1,max=1024"`

	// Size is the size of each buffer in bytes. Must be a multiple of the
	// 4096-byte page size.
	Size int `mapstructure:"size" validate:"min=4096"`
}

// BatchConfig bounds batched reads.
type BatchConfig struct {
	// TimeoutMS is the whole-batch timeout in milliseconds, in [1, 1000].
	TimeoutMS uint64 `mapstructure:"timeout_ms" validate:"min=1,max=1000"`
}

// Timeout returns the batch timeout as a duration.
func (c BatchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ServerConfig contains connection-handling limits.
type ServerConfig struct {
	// MaxConnections bounds concurrently served connections.
	MaxConnections int `mapstructure:"max_connections" validate:"min=1"`

	// ShutdownTimeout is the maximum time to wait for in-flight
	// connections during graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`

	// RateLimit is the sustained connection admission rate per second.
	// Zero disables rate limiting.
	RateLimit uint `mapstructure:"rate_limit"`

	// RateBurst is the admission burst capacity. Zero defaults to
	// RateLimit; ignored when RateLimit is zero.
	RateBurst uint `mapstructure:"rate_burst"`
}

// FeatureConfig toggles optional I/O paths.
type FeatureConfig struct {
	// HugePages backs the buffer arena with huge pages where available.
	HugePages bool `mapstructure:"huge_pages"`

	// ZeroCopySend enables the zero-copy network send path.
	ZeroCopySend bool `mapstructure:"zero_copy_send"`
}

// Load reads configuration from file (if present), environment, and
// defaults, then validates it.
//
// An empty configPath skips the file and uses environment plus defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)
	setDefaults(v)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Normalize log level for consistent internal representation.
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variable support and the config file.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("MOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

// readConfigFile reads the configuration file if one was specified and
// exists. A missing file is acceptable: environment and defaults apply.
func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath == "" {
		return nil
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}
