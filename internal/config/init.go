package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Scheduler defaults.
const (
	defaultPoolSize      = 10
	defaultQueueCapacity = 25
)

// InitializeViper initializes Viper configuration from environment variables
// and config files. Must be called before LoadConfig().
func InitializeViper() error {
	loadEnvFile()
	setupViper()
	setDefaults()
	readConfigFile()

	if err := bindEnvironmentVariables(); err != nil {
		return fmt.Errorf("failed to bind environment variables: %w", err)
	}

	setupDevelopmentLogging()
	return nil
}

// loadEnvFile loads .env file (ignores error if file doesn't exist).
func loadEnvFile() {
	_ = godotenv.Load()
}

// setupViper configures Viper for environment variable and config file reading.
func setupViper() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
}

// readConfigFile reads config file (ignores error if file doesn't exist).
func readConfigFile() {
	_ = viper.ReadInConfig()
}

// setDefaults sets default configuration values.
func setDefaults() {
	// App defaults - production safe
	viper.SetDefault("app", map[string]any{
		"name":        "dispatcher",
		"version":     "1.0.0",
		"environment": "production",
		"debug":       false,
	})

	// Logger defaults - production safe
	viper.SetDefault("logger", map[string]any{
		"level":        "info",
		"development":  false,
		"encoding":     "json",
		"output_paths": []string{"stdout"},
	})

	// Server defaults - production safe
	viper.SetDefault("server", map[string]any{
		"address":          ":8080",
		"read_timeout":     "15s",
		"write_timeout":    "15s",
		"idle_timeout":     "60s",
		"shutdown_timeout": "30s",
	})

	viper.SetDefault("database", map[string]any{
		"host":     "localhost",
		"port":     "5432",
		"user":     "dispatcher",
		"password": "",
		"dbname":   "dispatcher",
		"sslmode":  "disable",
	})

	viper.SetDefault("kafka", map[string]any{
		"brokers":            []string{"localhost:9092"},
		"topic":              "user-data",
		"partitions":         3,
		"replication_factor": 1,
		"write_timeout":      "10s",
	})

	viper.SetDefault("scheduler", map[string]any{
		"default_time_zone": "UTC",
		"pool_size":         defaultPoolSize,
		"queue_capacity":    defaultQueueCapacity,
		"fire_timeout":      "5m",
		"drain_timeout":     "30s",
	})
}

// bindEnvironmentVariables binds all environment variables to config keys.
func bindEnvironmentVariables() error {
	if err := bindAppEnvVars(); err != nil {
		return fmt.Errorf("failed to bind app env vars: %w", err)
	}
	if err := bindDatabaseEnvVars(); err != nil {
		return fmt.Errorf("failed to bind database env vars: %w", err)
	}
	if err := bindKafkaEnvVars(); err != nil {
		return fmt.Errorf("failed to bind kafka env vars: %w", err)
	}
	return nil
}

// bindAppEnvVars binds application and logger environment variables to config keys.
func bindAppEnvVars() error {
	if err := viper.BindEnv("app.environment", "APP_ENV"); err != nil {
		return fmt.Errorf("failed to bind APP_ENV: %w", err)
	}
	if err := viper.BindEnv("app.debug", "APP_DEBUG"); err != nil {
		return fmt.Errorf("failed to bind APP_DEBUG: %w", err)
	}
	if err := viper.BindEnv("logger.level", "LOG_LEVEL"); err != nil {
		return fmt.Errorf("failed to bind LOG_LEVEL: %w", err)
	}
	if err := viper.BindEnv("logger.encoding", "LOG_FORMAT"); err != nil {
		return fmt.Errorf("failed to bind LOG_FORMAT: %w", err)
	}
	if err := viper.BindEnv("server.address", "SERVER_ADDRESS"); err != nil {
		return fmt.Errorf("failed to bind SERVER_ADDRESS: %w", err)
	}
	if err := viper.BindEnv("scheduler.default_time_zone", "DEFAULT_TIME_ZONE"); err != nil {
		return fmt.Errorf("failed to bind DEFAULT_TIME_ZONE: %w", err)
	}
	return nil
}

// bindDatabaseEnvVars binds PostgreSQL environment variables to config keys.
func bindDatabaseEnvVars() error {
	if err := viper.BindEnv("database.host", "POSTGRES_HOST", "DB_HOST"); err != nil {
		return fmt.Errorf("failed to bind database host: %w", err)
	}
	if err := viper.BindEnv("database.port", "POSTGRES_PORT", "DB_PORT"); err != nil {
		return fmt.Errorf("failed to bind database port: %w", err)
	}
	if err := viper.BindEnv("database.user", "POSTGRES_USER", "DB_USER"); err != nil {
		return fmt.Errorf("failed to bind database user: %w", err)
	}
	if err := viper.BindEnv("database.password", "POSTGRES_PASSWORD", "DB_PASSWORD"); err != nil {
		return fmt.Errorf("failed to bind database password: %w", err)
	}
	if err := viper.BindEnv("database.dbname", "POSTGRES_DB", "DB_NAME"); err != nil {
		return fmt.Errorf("failed to bind database name: %w", err)
	}
	if err := viper.BindEnv("database.sslmode", "POSTGRES_SSLMODE"); err != nil {
		return fmt.Errorf("failed to bind database sslmode: %w", err)
	}
	return nil
}

// bindKafkaEnvVars binds Kafka environment variables to config keys.
func bindKafkaEnvVars() error {
	if err := viper.BindEnv("kafka.brokers", "KAFKA_BROKERS", "KAFKA_BOOTSTRAP_SERVERS"); err != nil {
		return fmt.Errorf("failed to bind kafka brokers: %w", err)
	}
	if err := viper.BindEnv("kafka.topic", "KAFKA_TOPIC"); err != nil {
		return fmt.Errorf("failed to bind kafka topic: %w", err)
	}
	return nil
}

// setupDevelopmentLogging configures logging settings based on environment
// variables. Debug level is controlled by APP_DEBUG; development formatting
// by APP_ENV.
func setupDevelopmentLogging() {
	if viper.GetBool("app.debug") {
		viper.Set("logger.level", "debug")
	}

	if viper.GetString("app.environment") == "development" {
		viper.Set("logger.development", true)
		viper.Set("logger.encoding", "console")
	}
}
