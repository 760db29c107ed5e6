package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Database driver names accepted by database.driver
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// envPrefix is stripped from structured environment overrides, e.g.
// APP_REMINDERS__INTERVAL=5m sets reminders.interval.
const envPrefix = "APP_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Admin     AdminConfig     `koanf:"admin"`
	Database  DatabaseConfig  `koanf:"database"`
	Email     EmailConfig     `koanf:"email"`
	Zoom      ZoomConfig      `koanf:"zoom"`
	Reminders RemindersConfig `koanf:"reminders"`
}

type ServerConfig struct {
	Port        string   `koanf:"port"`
	Mode        string   `koanf:"mode"` // gin mode: debug, release or test
	CORSOrigins []string `koanf:"cors_origins"`
}

type AdminConfig struct {
	APIKey      string `koanf:"api_key"`
	JWTSecret   string `koanf:"jwt_secret"`   // Enables admin JWTs from the auth service
	TokenIssuer string `koanf:"token_issuer"` // Expected iss claim; empty skips the check
}

type DatabaseConfig struct {
	Driver     string        `koanf:"driver"`
	URL        string        `koanf:"url"` // Full DSN, takes precedence over the individual fields
	Host       string        `koanf:"host"`
	User       string        `koanf:"user"`
	Password   string        `koanf:"password"`
	Name       string        `koanf:"name"`
	Port       string        `koanf:"port"`
	SSLMode    string        `koanf:"ssl_mode"`
	SQLitePath string        `koanf:"sqlite_path"`
	MaxRetries int           `koanf:"max_retries"`
	RetryDelay time.Duration `koanf:"retry_delay"`
}

type EmailConfig struct {
	APIKey    string `koanf:"api_key"`
	Host      string `koanf:"host"`
	FromEmail string `koanf:"from_email"`
	FromName  string `koanf:"from_name"`
}

type ZoomConfig struct {
	AccountID    string `koanf:"account_id"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	APIBase      string `koanf:"api_base"`
	TokenURL     string `koanf:"token_url"`
}

type RemindersConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Interval    time.Duration `koanf:"interval"`
	SendTimeout time.Duration `koanf:"send_timeout"`
}

// legacyEnv maps the flat environment variables used by existing deployments
// onto config keys.
var legacyEnv = map[string]string{
	"PORT":                              "server.port",
	"GIN_MODE":                          "server.mode",
	"ADMIN_API_KEY":                     "admin.api_key",
	"JWT_SECRET":                        "admin.jwt_secret",
	"DB_DRIVER":                         "database.driver",
	"DATABASE_URL":                      "database.url",
	"DB_HOST":                           "database.host",
	"DB_USER":                           "database.user",
	"DB_PASSWORD":                       "database.password",
	"DB_NAME":                           "database.name",
	"DB_PORT":                           "database.port",
	"DB_SSL_MODE":                       "database.ssl_mode",
	"SENDGRID_API_KEY":                  "email.api_key",
	"SENDGRID_NOTIFICATIONS_FROM_EMAIL": "email.from_email",
	"SENDGRID_FROM_NAME":                "email.from_name",
	"ZOOM_ACCOUNT_ID":                   "zoom.account_id",
	"ZOOM_CLIENT_ID":                    "zoom.client_id",
	"ZOOM_CLIENT_SECRET":                "zoom.client_secret",
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	for name, key := range legacyEnv {
		if value, ok := os.LookupEnv(name); ok && value != "" {
			k.Set(key, value)
		}
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		k.Set("server.cors_origins", splitList(origins))
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// envKey turns APP_DATABASE__SQLITE_PATH into database.sqlite_path.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that the loaded configuration can be used to start the server.
func (c *Config) Validate() error {
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server: unsupported mode %q", c.Server.Mode)
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" && (c.Database.Host == "" || c.Database.User == "" || c.Database.Name == "") {
			return fmt.Errorf("database: either url or host, user and name must be set")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database: sqlite_path must be set")
		}
	default:
		return fmt.Errorf("database: unsupported driver %q", c.Database.Driver)
	}

	if c.Reminders.Interval <= 0 {
		return fmt.Errorf("reminders: interval must be positive, got %s", c.Reminders.Interval)
	}
	if c.Reminders.SendTimeout <= 0 {
		return fmt.Errorf("reminders: send_timeout must be positive, got %s", c.Reminders.SendTimeout)
	}
	if c.Admin.APIKey == "" && c.Admin.JWTSecret == "" {
		return fmt.Errorf("admin: api_key or jwt_secret must be set")
	}

	return nil
}

// IsRelease reports whether the server runs in gin release mode.
func (c *Config) IsRelease() bool {
	return c.Server.Mode == "release"
}

// DSN returns the postgres connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC connect_timeout=10",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}
