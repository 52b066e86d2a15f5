package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port      string `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
	DataDir   string `mapstructure:"data_dir"`

	// Telegram session
	APIID       int    `mapstructure:"api_id"`
	APIHash     string `mapstructure:"api_hash"`
	SessionFile string `mapstructure:"session_file"`
	AuthToken   string `mapstructure:"auth_token"`

	// Streaming
	StreamChunkSize int64         `mapstructure:"stream_chunk_size"`
	FetchRetries    int           `mapstructure:"fetch_retries"`
	MetaCacheSize   int           `mapstructure:"meta_cache_size"`
	MetaCacheTTL    time.Duration `mapstructure:"meta_cache_ttl"`
	UpstreamRate    float64       `mapstructure:"upstream_rate"`
	UpstreamBurst   int           `mapstructure:"upstream_burst"`
	ResolveTimeout  time.Duration `mapstructure:"resolve_timeout"`

	// HTTP server
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ServerReadTimeout  time.Duration `mapstructure:"server_read_timeout"`
	ServerWriteTimeout time.Duration `mapstructure:"server_write_timeout"`
	ServerIdleTimeout  time.Duration `mapstructure:"server_idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit          int           `mapstructure:"rate_limit"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`

	// Circuit breaker
	CircuitBreakerMaxRequests    uint32        `mapstructure:"circuit_breaker_max_requests"`
	CircuitBreakerInterval       time.Duration `mapstructure:"circuit_breaker_interval"`
	CircuitBreakerTimeout        time.Duration `mapstructure:"circuit_breaker_timeout"`
	CircuitBreakerMinRequests    uint32        `mapstructure:"circuit_breaker_min_requests"`
	CircuitBreakerErrorThreshold float64       `mapstructure:"circuit_breaker_error_threshold"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("teledrive")
	viper.AutomaticEnv()

	viper.SetDefault("port", "8080")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_pretty", false)
	viper.SetDefault("data_dir", "data")
	viper.SetDefault("session_file", "session.json")
	viper.SetDefault("stream_chunk_size", 512*1024)
	viper.SetDefault("fetch_retries", 3)
	viper.SetDefault("meta_cache_size", 256)
	viper.SetDefault("meta_cache_ttl", "5m")
	viper.SetDefault("upstream_rate", 100)
	viper.SetDefault("upstream_burst", 10)
	viper.SetDefault("resolve_timeout", "15s")
	viper.SetDefault("request_timeout", "60s")
	viper.SetDefault("server_read_timeout", "30s")
	viper.SetDefault("server_write_timeout", "0s") // streaming responses have no write deadline
	viper.SetDefault("server_idle_timeout", "120s")
	viper.SetDefault("shutdown_timeout", "15s")
	viper.SetDefault("rate_limit", 100)
	viper.SetDefault("cors_allowed_origins", []string{"*"})
	viper.SetDefault("circuit_breaker_max_requests", 5)
	viper.SetDefault("circuit_breaker_interval", "1m")
	viper.SetDefault("circuit_breaker_timeout", "30s")
	viper.SetDefault("circuit_breaker_min_requests", 10)
	viper.SetDefault("circuit_breaker_error_threshold", 0.6)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
