package util

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	SchedulerBackendLocal = "local"
	SchedulerBackendRedis = "redis"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Environment          string        `mapstructure:"ENVIRONMENT"`
	AllowedOrigins       []string      `mapstructure:"ALLOWED_ORIGINS"`
	HTTPServerHost       string        `mapstructure:"HTTP_SERVER_HOST"`
	HTTPServerPort       int           `mapstructure:"HTTP_SERVER_PORT"`
	HTTPPortAttempts     int           `mapstructure:"HTTP_PORT_ATTEMPTS"`
	LineServerHost       string        `mapstructure:"LINE_SERVER_HOST"`
	LineServerPort       int           `mapstructure:"LINE_SERVER_PORT"`
	LinePortAttempts     int           `mapstructure:"LINE_PORT_ATTEMPTS"`
	RedisServerAddress   string        `mapstructure:"REDIS_SERVER_ADDRESS"`
	DirectoryBindingName string        `mapstructure:"DIRECTORY_BINDING_NAME"`
	DirectoryTTL         time.Duration `mapstructure:"DIRECTORY_TTL"`
	SchedulerBackend     string        `mapstructure:"SCHEDULER_BACKEND"`
	CatalogPath          string        `mapstructure:"CATALOG_PATH"`
	DeliveryTimeout      time.Duration `mapstructure:"DELIVERY_TIMEOUT"`
	DiscordBotToken      string        `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordChannelID     string        `mapstructure:"DISCORD_CHANNEL_ID"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	setDefaults()

	// Prefer environment variables over config file
	viper.AutomaticEnv()

	// Load config file
	viper.SetConfigFile(path)
	if err = viper.ReadInConfig(); err != nil {
		return
	}

	// Unmarshal config into struct
	err = viper.UnmarshalExact(&config)
	if err != nil {
		return
	}

	// Validate required configuration
	err = validateConfig(config)
	return
}

func setDefaults() {
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	viper.SetDefault("HTTP_SERVER_HOST", "0.0.0.0")
	viper.SetDefault("HTTP_SERVER_PORT", 5099)
	viper.SetDefault("HTTP_PORT_ATTEMPTS", 5)
	viper.SetDefault("LINE_SERVER_HOST", "0.0.0.0")
	viper.SetDefault("LINE_SERVER_PORT", 5000)
	viper.SetDefault("LINE_PORT_ATTEMPTS", 5)
	viper.SetDefault("REDIS_SERVER_ADDRESS", "")
	viper.SetDefault("DIRECTORY_BINDING_NAME", "AuctionService")
	viper.SetDefault("DIRECTORY_TTL", "30s")
	viper.SetDefault("SCHEDULER_BACKEND", SchedulerBackendLocal)
	viper.SetDefault("CATALOG_PATH", "")
	viper.SetDefault("DELIVERY_TIMEOUT", "5s")
	viper.SetDefault("DISCORD_BOT_TOKEN", "")
	viper.SetDefault("DISCORD_CHANNEL_ID", "")
}

func validateConfig(config Config) error {
	if config.HTTPServerPort <= 0 || config.HTTPServerPort > 65535 {
		return fmt.Errorf("HTTP_SERVER_PORT must be between 1 and 65535")
	}
	if config.LineServerPort <= 0 || config.LineServerPort > 65535 {
		return fmt.Errorf("LINE_SERVER_PORT must be between 1 and 65535")
	}
	if config.HTTPPortAttempts <= 0 || config.LinePortAttempts <= 0 {
		return fmt.Errorf("HTTP_PORT_ATTEMPTS and LINE_PORT_ATTEMPTS must be positive")
	}
	if config.DeliveryTimeout <= 0 {
		return fmt.Errorf("DELIVERY_TIMEOUT must be positive")
	}
	if config.DirectoryBindingName == "" {
		return fmt.Errorf("DIRECTORY_BINDING_NAME is required")
	}

	switch config.SchedulerBackend {
	case SchedulerBackendLocal:
	case SchedulerBackendRedis:
		if config.RedisServerAddress == "" {
			return fmt.Errorf("REDIS_SERVER_ADDRESS is required when SCHEDULER_BACKEND is %q", SchedulerBackendRedis)
		}
	default:
		return fmt.Errorf("SCHEDULER_BACKEND must be %q or %q, provided: %q",
			SchedulerBackendLocal, SchedulerBackendRedis, config.SchedulerBackend)
	}

	if (config.DiscordBotToken == "") != (config.DiscordChannelID == "") {
		return fmt.Errorf("DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}

	return nil
}

// IsProduction reports whether the service runs with ENVIRONMENT=production.
func (config Config) IsProduction() bool {
	return config.Environment == "production"
}
