// Package config loads nfsd's static configuration: listener ports,
// the alias path-list file, the mount cache file path, default
// identity, logging, and the metrics toggle. Sources are layered with
// spf13/viper (CLI flags > environment > config file > defaults) and
// validated with go-playground/validator/v10, the way the teacher
// codebase's pkg/config loads its own Config.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is nfsd's complete static configuration.
//
// Configuration sources, in order of precedence:
//  1. CLI flags (highest priority)
//  2. Environment variables (NFSD_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Listen contains the three programs' listener ports.
	Listen ListenConfig `mapstructure:"listen" yaml:"listen"`

	// Identity supplies the uid/gid reported as the owner of every file
	// in NFSv3 attributes.
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`

	// AliasFile is the path-list file read at startup and re-read on
	// every change (spec.md's "Path-list file").
	AliasFile string `mapstructure:"alias_file" validate:"required" yaml:"alias_file"`

	// CacheFile is where the mount cache is saved at shutdown and
	// restored from at startup (spec.md §4.7).
	CacheFile string `mapstructure:"cache_file" validate:"required" yaml:"cache_file"`

	// Metrics contains the Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior, consumed directly by
// internal/logger.Init.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: "text" or "json".
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ListenConfig gives each of the three RPC programs its own port.
// PORTMAP conventionally binds 111, MOUNT an ephemeral-but-fixed port
// registered with PORTMAP, NFS 2049.
type ListenConfig struct {
	Portmap int `mapstructure:"portmap" validate:"required,min=1,max=65535" yaml:"portmap"`
	Mount   int `mapstructure:"mount" validate:"required,min=1,max=65535" yaml:"mount"`
	NFS     int `mapstructure:"nfs" validate:"required,min=1,max=65535" yaml:"nfs"`
}

// IdentityConfig supplies the uid and gid reported as the owner of
// every file; host owners and caller credentials are not consulted.
type IdentityConfig struct {
	DefaultUID uint32 `mapstructure:"default_uid" yaml:"default_uid"`
	DefaultGID uint32 `mapstructure:"default_gid" yaml:"default_gid"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from flags, environment, file, and defaults,
// in that precedence order, and validates the result.
//
// flags may be nil, in which case only environment, file, and defaults
// apply (used by tests that don't parse a command line).
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NFSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", configPath, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults establishes the lowest-precedence layer: every field
// Load reads has a sensible zero-touch value.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("listen.portmap", 111)
	v.SetDefault("listen.mount", 20048)
	v.SetDefault("listen.nfs", 2049)

	v.SetDefault("identity.default_uid", 65534)
	v.SetDefault("identity.default_gid", 65534)

	v.SetDefault("alias_file", "./aliases.conf")
	v.SetDefault("cache_file", "./mount_cache")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}
