// Package config loads the representation engine's configuration from
// file, environment, and defaults via viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// PostgresConfig holds connection settings for the reps/strings backing store.
type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxPoolSize int    `mapstructure:"max_pool_size"`
}

// RedisConfig holds connection settings for the distributed lock and cache.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the host:port address for the Redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EngineConfig tunes the representation engine itself.
type EngineConfig struct {
	// DeltifyWindowSize is loaded from configuration but not read by the
	// engine: the diff producer always uses svndiff.DefaultWindowSize.
	DeltifyWindowSize int64 `mapstructure:"deltify_window_size"`

	// MaxChainLength is loaded from configuration but not read by the
	// engine: delta chain length is not bounded or checked anywhere.
	MaxChainLength int `mapstructure:"max_chain_length"`

	// RangeCacheTTL controls how long reconstructed byte ranges stay cached.
	RangeCacheTTL time.Duration `mapstructure:"range_cache_ttl"`

	// EncryptAtRest wraps the string store in ChaCha20-Poly1305 sealing.
	EncryptAtRest bool `mapstructure:"encrypt_at_rest"`

	// LocalMode uses the SQLite-backed stores instead of Postgres/Redis.
	LocalMode bool `mapstructure:"local_mode"`
	LocalPath string `mapstructure:"local_path"`
}

// Config is the root configuration for a repstore process.
type Config struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Engine   EngineConfig   `mapstructure:"engine"`
	HTTPAddr string         `mapstructure:"http_addr"`
}

// Load reads configuration from the given file path (if non-empty),
// environment variables prefixed REPSTORE_, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REPSTORE")
	v.AutomaticEnv()

	v.SetDefault("postgres.max_pool_size", 10)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("engine.deltify_window_size", 64*1024)
	v.SetDefault("engine.max_chain_length", 32)
	v.SetDefault("engine.range_cache_ttl", 5*time.Minute)
	v.SetDefault("engine.encrypt_at_rest", false)
	v.SetDefault("engine.local_mode", true)
	v.SetDefault("engine.local_path", "./data/repstore.db")
	v.SetDefault("http_addr", ":9190")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
