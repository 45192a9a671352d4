package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Importer  ImporterConfig  `mapstructure:"importer"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Report    ReportConfig    `mapstructure:"report"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// ImporterConfig holds export-file import configuration
type ImporterConfig struct {
	InputDir  string `mapstructure:"input_dir"`
	ChunkSize int    `mapstructure:"chunk_size"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	ImportIntervalMinutes int    `mapstructure:"import_interval_minutes"`
	SweepIntervalMinutes  int    `mapstructure:"sweep_interval_minutes"`
	ReportCron            string `mapstructure:"report_cron"`
}

// CacheConfig holds result cache configuration
type CacheConfig struct {
	TTLMinutes int `mapstructure:"ttl_minutes"`
}

// ReportConfig holds weekly report configuration
type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Days      int    `mapstructure:"days"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()

	// Bind environment variables
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.dbname", "discord_data")

	viper.SetDefault("importer.input_dir", "./exports")
	viper.SetDefault("importer.chunk_size", 500)

	viper.SetDefault("scheduler.import_interval_minutes", 60)
	viper.SetDefault("scheduler.sweep_interval_minutes", 15)
	viper.SetDefault("scheduler.report_cron", "0 0 9 * * 0")

	viper.SetDefault("cache.ttl_minutes", 30)

	viper.SetDefault("report.output_dir", "./reports")
	viper.SetDefault("report.days", 7)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	// Importer
	viper.BindEnv("importer.input_dir", "IMPORTER_INPUT_DIR")
	viper.BindEnv("importer.chunk_size", "IMPORTER_CHUNK_SIZE")

	// Scheduler
	viper.BindEnv("scheduler.import_interval_minutes", "SCHEDULER_IMPORT_INTERVAL_MINUTES")
	viper.BindEnv("scheduler.sweep_interval_minutes", "SCHEDULER_SWEEP_INTERVAL_MINUTES")
	viper.BindEnv("scheduler.report_cron", "SCHEDULER_REPORT_CRON")

	// Cache
	viper.BindEnv("cache.ttl_minutes", "CACHE_TTL_MINUTES")

	// Report
	viper.BindEnv("report.output_dir", "REPORT_OUTPUT_DIR")
	viper.BindEnv("report.days", "REPORT_DAYS")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// TTL returns the configured cache TTL as a duration. Zero means no expiry.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if c.Importer.InputDir == "" {
		return fmt.Errorf("importer input directory is required")
	}
	if c.Importer.ChunkSize <= 0 {
		return fmt.Errorf("importer chunk size must be greater than 0")
	}

	if c.Scheduler.ImportIntervalMinutes <= 0 {
		return fmt.Errorf("import interval must be greater than 0")
	}
	if c.Scheduler.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("sweep interval must be greater than 0")
	}

	if c.Cache.TTLMinutes < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}

	return nil
}
