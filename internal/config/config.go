// Package config loads CLI configuration for sherpa.
//
// Configuration is resolved with Viper. Priority, highest to lowest:
//
//  1. Command-line flags bound by the CLI
//  2. Environment variables (SHERPA_ prefix, dots become underscores)
//  3. Config file: an explicit --config path, or sherpa.yaml in the
//     working directory, or $XDG_CONFIG_HOME/sherpa/config.yaml
//  4. Defaults
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration for the sherpa CLI.
type Config struct {
	// Flow is the path to the flow definition file.
	Flow string `mapstructure:"flow"`

	Log   LogConfig   `mapstructure:"log"`
	Store StoreConfig `mapstructure:"store"`
	HTTP  HTTPConfig  `mapstructure:"http"`
	MCP   MCPConfig   `mapstructure:"mcp"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// StoreConfig selects and configures the session state store.
type StoreConfig struct {
	// Driver is one of memory, file, redis.
	Driver string `mapstructure:"driver"`

	// Path is the session directory for the file driver.
	Path string `mapstructure:"path"`

	Redis RedisConfig `mapstructure:"redis"`

	// EncryptionKey, when set, encrypts snapshots at rest. Must be a
	// 32-byte value (AES-256).
	EncryptionKey string `mapstructure:"encryption_key"`

	// MaskPatterns are regular expressions matched against context data
	// keys; matching values are masked before persistence.
	MaskPatterns []string `mapstructure:"mask_patterns"`
}

// RedisConfig configures the redis store driver.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// TTLSeconds expires idle sessions. Zero keeps them forever.
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr    string `mapstructure:"addr"`
	Metrics bool   `mapstructure:"metrics"`
}

// MCPConfig configures the mcp command.
type MCPConfig struct {
	// Transport is stdio or sse.
	Transport string `mapstructure:"transport"`
	// Port is used by the sse transport only.
	Port int `mapstructure:"port"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Flow: "flow.yaml",
		Log:  LogConfig{Level: "info"},
		Store: StoreConfig{
			Driver: "file",
			Path:   ".sherpa/sessions",
			Redis:  RedisConfig{Addr: "localhost:6379"},
		},
		HTTP: HTTPConfig{Addr: ":8080", Metrics: true},
		MCP:  MCPConfig{Transport: "stdio", Port: 8080},
	}
}

// NewViper builds a Viper instance with defaults, env binding and config
// file discovery wired in. The CLI binds its flags on top of it.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()

	def := Default()
	v.SetDefault("flow", def.Flow)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("store.driver", def.Store.Driver)
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("store.redis.addr", def.Store.Redis.Addr)
	v.SetDefault("store.redis.db", def.Store.Redis.DB)
	v.SetDefault("store.redis.ttl_seconds", def.Store.Redis.TTLSeconds)
	v.SetDefault("http.addr", def.HTTP.Addr)
	v.SetDefault("http.metrics", def.HTTP.Metrics)
	v.SetDefault("mcp.transport", def.MCP.Transport)
	v.SetDefault("mcp.port", def.MCP.Port)

	v.SetEnvPrefix("SHERPA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("sherpa")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$XDG_CONFIG_HOME/sherpa")
		v.AddConfigPath("$HOME/.config/sherpa")
	}
	return v
}

// Load reads the configuration. A missing config file is fine unless it
// was requested explicitly.
func Load(configFile string) (Config, error) {
	v := NewViper(configFile)
	return Read(v, configFile != "")
}

// Read unmarshals a prepared Viper instance into a Config.
func Read(v *viper.Viper, fileRequired bool) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if fileRequired || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
