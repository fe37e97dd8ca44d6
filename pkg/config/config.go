package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Session  SessionConfig  `mapstructure:"session"`
	Database DatabaseConfig `mapstructure:"database"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds configuration of the reference backend server
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	RateLimit    int           `mapstructure:"rate_limit"` // requests per minute per client
	UploadDir    string        `mapstructure:"upload_dir"`
	CORS         CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// BackendConfig describes the external API the client talks to
type BackendConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	AISearchURL     string        `mapstructure:"ai_search_url"`
	AISearchTimeout time.Duration `mapstructure:"ai_search_timeout"`
}

// SessionConfig holds client-side session behaviour. Database is where the
// sql store keeps tokens; it is separate from the backend's database.
type SessionConfig struct {
	Store          string         `mapstructure:"store"` // sql, memory
	LoginRoute     string         `mapstructure:"login_route"`
	AuthPrefix     string         `mapstructure:"auth_prefix"`
	ProtectedPaths []string       `mapstructure:"protected_paths"`
	WatchInterval  time.Duration  `mapstructure:"watch_interval"`
	EventRetention int            `mapstructure:"event_retention"` // change events kept for watchers
	Database       DatabaseConfig `mapstructure:"database"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Type         string        `mapstructure:"type"` // postgres, sqlite
	URL          string        `mapstructure:"url"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	Path         string        `mapstructure:"path"`    // For SQLite
	SSLMode      string        `mapstructure:"sslmode"` // For PostgreSQL
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
}

// SyncConfig configures the cross-process storage hub
type SyncConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	HubURL         string        `mapstructure:"hub_url"`
	Room           string        `mapstructure:"room"` // clients only see snapshots of their room
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// SecurityConfig holds token issuing settings of the reference backend
type SecurityConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	AdminEmail      string        `mapstructure:"admin_email"`
	AdminPassword   string        `mapstructure:"admin_password"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoadConfig loads configuration from an optional .env file, the config file
// and environment variables, in increasing order of precedence.
func LoadConfig(configPath string) (*Config, error) {
	// .env is optional; a missing file is not an error
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("MATCH")

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				fmt.Printf("Warning: Config file not found at %s, using defaults\n", configPath)
			} else {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	overrideWithEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.rate_limit", 300)
	v.SetDefault("server.upload_dir", "./uploads")
	v.SetDefault("server.cors.allowed_origins", []string{"http://localhost:3000"})

	// Backend defaults
	v.SetDefault("backend.base_url", "http://127.0.0.1:8000/api/v1")
	v.SetDefault("backend.timeout", "30s")
	v.SetDefault("backend.ai_search_url", "http://127.0.0.1:8000")
	v.SetDefault("backend.ai_search_timeout", "60s")

	// Session defaults
	v.SetDefault("session.store", "sql")
	v.SetDefault("session.login_route", "/auth?type=login")
	v.SetDefault("session.auth_prefix", "/auth")
	v.SetDefault("session.protected_paths", []string{
		"/dashboard", "/candidate-profile", "/jobs", "/recruiter-ai-search", "/recruiter-profile",
	})
	v.SetDefault("session.watch_interval", "1s")
	v.SetDefault("session.event_retention", 1000)
	v.SetDefault("session.database.type", "sqlite")
	v.SetDefault("session.database.path", defaultSessionPath())

	// Database defaults
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./match-connect.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_lifetime", "5m")

	// Sync defaults
	v.SetDefault("sync.enabled", false)
	v.SetDefault("sync.hub_url", "ws://127.0.0.1:8000/ws/storage")
	v.SetDefault("sync.room", "default")
	v.SetDefault("sync.reconnect_delay", "2s")

	// Security defaults
	v.SetDefault("security.access_token_ttl", "15m")
	v.SetDefault("security.refresh_token_ttl", "168h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// defaultSessionPath keeps the session in the user's config directory so
// every matchctl invocation finds it
func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".matchctl-session.db"
	}
	return filepath.Join(dir, "matchctl", "session.db")
}

// overrideWithEnvVars applies well-known unprefixed environment variables
func overrideWithEnvVars(v *viper.Viper) {
	envMappings := map[string]string{
		"BACKEND_API_URL": "backend.base_url",
		"AI_SEARCH_URL":   "backend.ai_search_url",
		"DATABASE_URL":    "database.url",
		"DB_PASSWORD":     "database.password",
		"DB_USER":         "database.user",
		"JWT_SECRET":      "security.jwt_secret",
		"ADMIN_EMAIL":     "security.admin_email",
		"ADMIN_PASSWORD":  "security.admin_password",
		"SYNC_HUB_URL":    "sync.hub_url",
		"LOG_LEVEL":       "logging.level",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Backend.BaseURL == "" {
		return fmt.Errorf("backend base url is required")
	}

	if config.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}

	switch config.Session.Store {
	case "sql":
		if err := validateDatabase(config.Session.Database); err != nil {
			return fmt.Errorf("session database: %w", err)
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported session store: %s", config.Session.Store)
	}

	if config.Session.LoginRoute == "" {
		return fmt.Errorf("session login route is required")
	}

	if err := validateDatabase(config.Database); err != nil {
		return err
	}

	if config.Sync.Enabled && config.Sync.HubURL == "" {
		return fmt.Errorf("sync hub url is required when sync is enabled")
	}

	if config.Security.JWTSecret != "" && len(config.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	return nil
}

func validateDatabase(db DatabaseConfig) error {
	switch db.Type {
	case "postgres":
		if db.URL == "" && (db.Host == "" || db.User == "") {
			return fmt.Errorf("postgres requires url or host and user")
		}
	case "sqlite":
		if db.Path == "" {
			return fmt.Errorf("sqlite requires path")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", db.Type)
	}
	return nil
}

// ValidateServer checks the settings only the reference backend needs
func (c *Config) ValidateServer() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	switch c.Database.Type {
	case "postgres":
		if c.Database.URL != "" {
			return c.Database.URL
		}
		sslMode := c.Database.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Database.Host, c.Database.Port, c.Database.User,
			c.Database.Password, c.Database.DBName, sslMode)
	case "sqlite":
		return c.Database.Path
	default:
		return ""
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Mode == "debug" || c.Server.Mode == "development"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// SanitizeForLogging returns a copy of the config with sensitive data redacted
func (c *Config) SanitizeForLogging() *Config {
	sanitized := *c

	if sanitized.Database.Password != "" {
		sanitized.Database.Password = "[REDACTED]"
	}

	if sanitized.Database.URL != "" {
		sanitized.Database.URL = "[REDACTED]"
	}

	if sanitized.Session.Database.Password != "" {
		sanitized.Session.Database.Password = "[REDACTED]"
	}

	if sanitized.Session.Database.URL != "" {
		sanitized.Session.Database.URL = "[REDACTED]"
	}

	if sanitized.Security.JWTSecret != "" {
		sanitized.Security.JWTSecret = "[REDACTED]"
	}

	if sanitized.Security.AdminPassword != "" {
		sanitized.Security.AdminPassword = "[REDACTED]"
	}

	return &sanitized
}
