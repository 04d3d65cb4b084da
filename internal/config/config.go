package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	JWTSecret          string
	AccessTokenMinutes int
	RememberMeDays     int
	EncryptKey         string
	LegacyEncryptKeys  []string

	CORSOrigins     []string
	WSOrigins       []string
	WSAllowNoOrigin bool
	WSSendQueue     int

	RedisURL     string
	RedisChannel string

	NotifyScope      string
	MaxMessageLength int
	LogLevel         string
	Debug            bool
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"host":      "http_host",
	"port":      "http_port",
	"db-driver": "db_driver",
	"log-level": "log_level",
	"redis-url": "redis_url",
}

// Load reads configuration from defaults, an optional YAML file, the
// environment and flags, in increasing priority. flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		AppName: v.GetString("app_name"),
		Env:     v.GetString("app_env"),
		Host:    v.GetString("http_host"),
		Port:    v.GetInt("http_port"),

		DBDriver:    strings.ToLower(v.GetString("db_driver")),
		DatabaseURL: v.GetString("database_url"),
		SQLitePath:  v.GetString("sqlite_path"),

		JWTSecret:          v.GetString("jwt_secret"),
		AccessTokenMinutes: v.GetInt("access_token_expire_minutes"),
		RememberMeDays:     v.GetInt("remember_me_token_expire_days"),
		EncryptKey:         v.GetString("encryption_key"),
		LegacyEncryptKeys:  splitList(v.GetString("legacy_encryption_keys")),

		CORSOrigins:     splitList(v.GetString("cors_origins")),
		WSOrigins:       splitList(v.GetString("ws_allowed_origins")),
		WSAllowNoOrigin: v.GetBool("ws_allow_no_origin"),
		WSSendQueue:     v.GetInt("ws_send_queue"),

		RedisURL:     v.GetString("redis_url"),
		RedisChannel: v.GetString("redis_channel"),

		NotifyScope:      strings.ToLower(v.GetString("notify_scope")),
		MaxMessageLength: v.GetInt("max_message_length"),
		LogLevel:         v.GetString("log_level"),
		Debug:            v.GetBool("debug"),
	}
	if len(cfg.WSOrigins) == 0 {
		cfg.WSOrigins = cfg.CORSOrigins
	}
	if cfg.DBDriver == DriverPostgres && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = postgresURL(v)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "Catering Support Chat")
	v.SetDefault("app_env", "development")
	v.SetDefault("http_host", "0.0.0.0")
	v.SetDefault("http_port", 8000)

	v.SetDefault("db_driver", DriverPostgres)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_user", "postgres")
	v.SetDefault("postgres_password", "postgres")
	v.SetDefault("postgres_db", "catering")
	v.SetDefault("sqlite_path", "caterchat.db")

	v.SetDefault("access_token_expire_minutes", 60*24)
	v.SetDefault("remember_me_token_expire_days", 30)

	v.SetDefault("cors_origins", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("ws_allow_no_origin", true)
	v.SetDefault("ws_send_queue", 64)

	v.SetDefault("redis_channel", "caterchat:broadcast")
	v.SetDefault("notify_scope", "staff")
	v.SetDefault("max_message_length", 5000)
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)
}

func postgresURL(v *viper.Viper) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(v.GetString("postgres_user"), v.GetString("postgres_password")),
		Host:     fmt.Sprintf("%s:%s", v.GetString("postgres_host"), v.GetString("postgres_port")),
		Path:     v.GetString("postgres_db"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.EncryptKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	switch c.DBDriver {
	case DriverPostgres:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	switch c.NotifyScope {
	case "staff", "all":
	default:
		return fmt.Errorf("unknown NOTIFY_SCOPE %q", c.NotifyScope)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid HTTP_PORT %d", c.Port)
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}

func (c *Config) RememberMeTTL() time.Duration {
	return time.Duration(c.RememberMeDays) * 24 * time.Hour
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
