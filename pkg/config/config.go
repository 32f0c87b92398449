package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	App    AppConfig    `envPrefix:"APP_"`
	Server ServerConfig `envPrefix:"SERVER_"`
	Stream StreamConfig `envPrefix:"STREAM_"`
	Feed   FeedConfig   `envPrefix:"FEED_"`
	Kafka  KafkaConfig  `envPrefix:"KAFKA_"`
}

// AppConfig represents the application configuration.
type AppConfig struct {
	Name        string `env:"NAME" envDefault:"velox-stream"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// ServerConfig represents the HTTP/WebSocket server configuration.
type ServerConfig struct {
	Host            string `env:"HOST" envDefault:"0.0.0.0"`
	Port            int    `env:"PORT" envDefault:"8081"`
	MaxConnections  int    `env:"MAX_CONNECTIONS" envDefault:"256"`
	ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"30"`
}

// StreamConfig represents the stream registry configuration.
type StreamConfig struct {
	TickBufferSize int `env:"TICK_BUFFER_SIZE" envDefault:"256"`
}

// FeedConfig selects and tunes the tick source feeding the registry.
type FeedConfig struct {
	// Mode is one of "kafka", "generator" or "none".
	Mode                string   `env:"MODE" envDefault:"kafka"`
	GeneratorSymbols    []string `env:"GENERATOR_SYMBOLS" envSeparator:"," envDefault:"NIFTY,BANKNIFTY,RELIANCE"`
	GeneratorIntervalMs int      `env:"GENERATOR_INTERVAL_MS" envDefault:"250"`
}

// KafkaConfig represents the Kafka configuration for the tick feed.
type KafkaConfig struct {
	Brokers       []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic         string   `env:"TOPIC" envDefault:"market-ticks"`
	ConsumerGroup string   `env:"CONSUMER_GROUP" envDefault:"velox-stream"`
	MaxRetries    int      `env:"MAX_RETRIES" envDefault:"3"`
}

// Load loads the configuration from the environment.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}
