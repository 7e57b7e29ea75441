// Package config loads process configuration from the environment the way
// the teacher repo's configs package does: viper defaults plus
// AutomaticEnv, no config file required.
package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig
	Server  ServerConfig
	Engine  EngineConfig
	Pool    PoolConfig
	Auth    AuthConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Mode string
}

type ServerConfig struct {
	Port            int
	MetricsPort     int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// EngineConfig configures each spawned UCI subprocess.
type EngineConfig struct {
	BinaryPath string
	Threads    int // 0 means auto-detect, see internal/pool's autoSizeThreads
	HashMB     int // 0 means auto-detect
}

// PoolConfig configures the engine pool's autoscaling policy (spec §3, §4.3).
type PoolConfig struct {
	MinEngines        int
	MaxEngines        int
	ScaleUpThreshold  int
	ScaleDownIdleTime time.Duration
}

// AuthConfig configures the protocol version gate (spec §6).
type AuthConfig struct {
	MinClientVersion string
	DownloadURL      string
	AuthTimeout      time.Duration
}

type RateLimitConfig struct {
	ConnectionsPerMinutePerIP int
}

func Load() *Config {
	viper.SetDefault("APP_MODE", "debug")
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("METRICS_PORT", 8081)
	viper.SetDefault("SERVER_READ_TIMEOUT", "30s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	viper.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "30s")

	viper.SetDefault("ENGINE_BINARY_PATH", "stockfish")
	viper.SetDefault("ENGINE_THREADS", 0)
	viper.SetDefault("ENGINE_HASH_MB", 0)

	viper.SetDefault("MIN_ENGINES", 2)
	viper.SetDefault("MAX_ENGINES", 8)
	viper.SetDefault("SCALE_UP_THRESHOLD", 3)
	viper.SetDefault("SCALE_DOWN_IDLE_MS", 60000)

	viper.SetDefault("MIN_CLIENT_VERSION", "1.0.0")
	viper.SetDefault("DOWNLOAD_URL", "https://example.invalid/download")

	viper.SetDefault("RATE_LIMIT_CONNECTIONS_PER_MINUTE", 120)

	viper.AutomaticEnv()

	readTimeout, _ := time.ParseDuration(viper.GetString("SERVER_READ_TIMEOUT"))
	writeTimeout, _ := time.ParseDuration(viper.GetString("SERVER_WRITE_TIMEOUT"))
	shutdownTimeout, _ := time.ParseDuration(viper.GetString("SERVER_SHUTDOWN_TIMEOUT"))

	return &Config{
		App: AppConfig{
			Mode: viper.GetString("APP_MODE"),
		},
		Server: ServerConfig{
			Port:            viper.GetInt("PORT"),
			MetricsPort:     viper.GetInt("METRICS_PORT"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
		Engine: EngineConfig{
			BinaryPath: viper.GetString("ENGINE_BINARY_PATH"),
			Threads:    viper.GetInt("ENGINE_THREADS"),
			HashMB:     viper.GetInt("ENGINE_HASH_MB"),
		},
		Pool: PoolConfig{
			MinEngines:        viper.GetInt("MIN_ENGINES"),
			MaxEngines:        viper.GetInt("MAX_ENGINES"),
			ScaleUpThreshold:  viper.GetInt("SCALE_UP_THRESHOLD"),
			ScaleDownIdleTime: time.Duration(viper.GetInt("SCALE_DOWN_IDLE_MS")) * time.Millisecond,
		},
		Auth: AuthConfig{
			MinClientVersion: viper.GetString("MIN_CLIENT_VERSION"),
			DownloadURL:      viper.GetString("DOWNLOAD_URL"),
			AuthTimeout:      10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			ConnectionsPerMinutePerIP: viper.GetInt("RATE_LIMIT_CONNECTIONS_PER_MINUTE"),
		},
	}
}
