package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the full runtime configuration of the service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"db"`
	Todo     TodoConfig     `koanf:"todo"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig selects the backing store and bounds the startup retry.
// URL wins over the individual BLUEPRINT_DB_* parts.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	Host            string        `koanf:"host"`
	Port            string        `koanf:"port"`
	User            string        `koanf:"user"`
	Password        string        `koanf:"password"`
	Name            string        `koanf:"name"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	MaxAttempts     int           `koanf:"max_attempts"`
	InitialBackoff  time.Duration `koanf:"initial_backoff"`
	MaxBackoff      time.Duration `koanf:"max_backoff"`
	PingTimeout     time.Duration `koanf:"ping_timeout"`
	ResetOnStart    bool          `koanf:"reset_on_start"`
}

type TodoConfig struct {
	DefaultPriority int64 `koanf:"default_priority"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// envMappings binds environment variables to koanf paths. Variables not
// listed here are ignored.
var envMappings = map[string]string{
	"PORT":                    "server.port",
	"SERVER_READ_TIMEOUT":     "server.read_timeout",
	"SERVER_WRITE_TIMEOUT":    "server.write_timeout",
	"SERVER_IDLE_TIMEOUT":     "server.idle_timeout",
	"SERVER_SHUTDOWN_TIMEOUT": "server.shutdown_timeout",
	"DATABASE_URL":            "db.url",
	"BLUEPRINT_DB_HOST":       "db.host",
	"BLUEPRINT_DB_PORT":       "db.port",
	"BLUEPRINT_DB_USERNAME":   "db.user",
	"BLUEPRINT_DB_PASSWORD":   "db.password",
	"BLUEPRINT_DB_DATABASE":   "db.name",
	"BLUEPRINT_DB_SSLMODE":    "db.ssl_mode",
	"DB_MAX_OPEN_CONNS":       "db.max_open_conns",
	"DB_MAX_IDLE_CONNS":       "db.max_idle_conns",
	"DB_CONN_MAX_LIFETIME":    "db.conn_max_lifetime",
	"DB_MAX_ATTEMPTS":         "db.max_attempts",
	"DB_INITIAL_BACKOFF":      "db.initial_backoff",
	"DB_MAX_BACKOFF":          "db.max_backoff",
	"DB_PING_TIMEOUT":         "db.ping_timeout",
	"DB_RESET_ON_START":       "db.reset_on_start",
	"TODO_DEFAULT_PRIORITY":   "todo.default_priority",
	"LOG_LEVEL":               "log.level",
	"LOG_JSON":                "log.json",
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3001,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     time.Minute,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            "5432",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			MaxAttempts:     10,
			InitialBackoff:  time.Second,
			MaxBackoff:      10 * time.Second,
			PingTimeout:     3 * time.Second,
			ResetOnStart:    true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads .env files (missing files are fine), then layers environment
// variables over Default.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			path, ok := envMappings[key]
			if !ok || strings.TrimSpace(value) == "" {
				return "", nil
			}
			return path, value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port out of range: %d", c.Server.Port))
	}
	db := c.Database
	if db.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("db max_open_conns must be positive, got %d", db.MaxOpenConns))
	}
	if db.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("db max_attempts must be positive, got %d", db.MaxAttempts))
	}
	if db.InitialBackoff <= 0 || db.MaxBackoff <= 0 {
		errs = append(errs, errors.New("db backoff durations must be positive"))
	} else if db.InitialBackoff > db.MaxBackoff {
		errs = append(errs, fmt.Errorf("db initial_backoff %s exceeds max_backoff %s", db.InitialBackoff, db.MaxBackoff))
	}
	if db.URL == "" && (db.Name == "" || db.User == "") {
		errs = append(errs, errors.New("DATABASE_URL or BLUEPRINT_DB_DATABASE/BLUEPRINT_DB_USERNAME must be set"))
	}
	return errors.Join(errs...)
}

// DSN returns the connection string for the backing store.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(d.SSLMode)
	}
	return u.String()
}

// Redacted returns DSN with the password masked, for logging.
func (d DatabaseConfig) Redacted() string {
	u, err := url.Parse(d.DSN())
	if err != nil {
		return "<unparseable dsn>"
	}
	return u.Redacted()
}
