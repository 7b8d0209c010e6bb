package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Reminder scheduler configuration
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// Prescription parser (LLM) configuration
	Parser ParserConfig `mapstructure:"parser"`

	// Calendar mirror configuration
	Calendar CalendarConfig `mapstructure:"calendar"`

	// Notification delivery configuration
	Notifications NotificationConfig `mapstructure:"notifications"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig holds the cadences of the reminder delivery mechanisms
type SchedulerConfig struct {
	RescanInterval  time.Duration `mapstructure:"rescan_interval"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	Lookahead       time.Duration `mapstructure:"lookahead"`
	ErrorBackoff    time.Duration `mapstructure:"error_backoff"`
	MonitorEnabled  bool          `mapstructure:"monitor_enabled"`
}

// ParserConfig holds prescription parser (LLM collaborator) configuration
type ParserConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CalendarConfig holds CalDAV calendar mirror configuration
type CalendarConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServerURL    string `mapstructure:"server_url"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	CalendarPath string `mapstructure:"calendar_path"`
}

// NotificationConfig holds notification delivery configuration
type NotificationConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	DeepLink   string `mapstructure:"deep_link"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/dosewise")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Override with environment variables
	overrideWithEnv(&config)

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "dosewise")
	viper.SetDefault("database.user", "dosewise")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	// Scheduler defaults: 15m rescan chain, 5m monitor, 30m lookahead
	viper.SetDefault("scheduler.rescan_interval", "15m")
	viper.SetDefault("scheduler.monitor_interval", "5m")
	viper.SetDefault("scheduler.lookahead", "30m")
	viper.SetDefault("scheduler.error_backoff", "1m")
	viper.SetDefault("scheduler.monitor_enabled", true)

	// Parser defaults
	viper.SetDefault("parser.base_url", "https://api.openai.com")
	viper.SetDefault("parser.model", "gpt-4o")
	viper.SetDefault("parser.timeout", "60s")

	// Calendar defaults
	viper.SetDefault("calendar.enabled", false)
	viper.SetDefault("calendar.calendar_path", "")

	// Notification defaults
	viper.SetDefault("notifications.enabled", true)
	viper.SetDefault("notifications.deep_link", "dosewise://medication-confirmation")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
	viper.SetDefault("monitoring.health_path", "/health")

	// Logging defaults
	viper.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if apiKey := os.Getenv("PARSER_API_KEY"); apiKey != "" {
		config.Parser.APIKey = apiKey
	}

	if dbPassword := os.Getenv("DATABASE_PASSWORD"); dbPassword != "" {
		config.Database.Password = dbPassword
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Scheduler.RescanInterval <= 0 {
		return fmt.Errorf("rescan interval must be positive")
	}

	if config.Scheduler.Lookahead <= 0 {
		return fmt.Errorf("scan lookahead must be positive")
	}

	if config.Calendar.Enabled && config.Calendar.ServerURL == "" {
		return fmt.Errorf("calendar server URL is required when calendar sync is enabled")
	}

	return nil
}
