// Package config provides configuration management for the WebSub hub server.
// Settings come from defaults, an optional YAML file named by HUB_CONFIG_FILE
// and HUB_* environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. HUB_SERVER_PORT.
const EnvPrefix = "HUB"

// Run modes of the hub binary.
const (
	ModeAll      = "all"
	ModeAPI      = "api"
	ModeFanOut   = "fanout"
	ModeDelivery = "delivery"
)

// Config holds all configuration for the hub server.
type Config struct {
	Mode     string         `mapstructure:"mode"`
	Server   ServerConfig   `mapstructure:"server"`
	Hub      HubConfig      `mapstructure:"hub"`
	Store    StoreConfig    `mapstructure:"store"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Minio    MinioConfig    `mapstructure:"minio"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HubConfig holds engine settings.
type HubConfig struct {
	URL                 string        `mapstructure:"url"` // advertised in the Link header of callbacks
	CallbackTimeout     time.Duration `mapstructure:"callback_timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	IdleInterval        time.Duration `mapstructure:"idle_interval"`
	FanOutConcurrency   int           `mapstructure:"fanout_concurrency"`
	DeliveryConcurrency int           `mapstructure:"delivery_concurrency"`
}

// StoreConfig selects the subscription store: memory, sql or minio.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// QueueConfig selects the job queues: memory, sql or redis.
type QueueConfig struct {
	Driver            string        `mapstructure:"driver"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // mysql, postgres, sqlite3
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Prefix   string `mapstructure:"prefix"`  // Table prefix (default: "websub_")
	Migrate  bool   `mapstructure:"migrate"` // Apply the embedded schema on start
}

// MinioConfig holds object store configuration.
type MinioConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Namespace string `mapstructure:"namespace"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeAll)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5102)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("hub.url", "https://127.0.0.1:5102/")
	v.SetDefault("hub.callback_timeout", 10*time.Second)
	v.SetDefault("hub.max_retries", 2)
	v.SetDefault("hub.idle_interval", time.Second)
	v.SetDefault("hub.fanout_concurrency", 1)
	v.SetDefault("hub.delivery_concurrency", 4)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.visibility_timeout", 30*time.Second)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "websub")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "websub")
	v.SetDefault("database.prefix", "websub_")
	v.SetDefault("database.migrate", false)

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "subscriptions")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.namespace", "websub")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load loads and validates the configuration.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration. Settings of backends that are not
// selected are ignored.
func (c Config) Validate() error {
	usesSQL := c.Store.Driver == "sql" || c.Queue.Driver == "sql"

	return validation.ValidateStruct(&c,
		validation.Field(&c.Mode, validation.Required, validation.In(ModeAll, ModeAPI, ModeFanOut, ModeDelivery)),
		validation.Field(&c.Server),
		validation.Field(&c.Hub),
		validation.Field(&c.Store),
		validation.Field(&c.Queue),
		validation.Field(&c.Database, validation.When(usesSQL, validation.By(validatable))),
		validation.Field(&c.Minio, validation.When(c.Store.Driver == "minio", validation.By(validatable))),
		validation.Field(&c.Redis, validation.When(c.Queue.Driver == "redis", validation.By(validatable))),
		validation.Field(&c.Log),
	)
}

// validatable checks a backend section. Backend sections carry check
// instead of Validate so they are only checked when selected.
func validatable(value interface{}) error {
	if v, ok := value.(interface{ check() error }); ok {
		return v.check()
	}
	return nil
}

// Validate implements validation.Validatable.
func (c ServerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

// Validate implements validation.Validatable.
func (c HubConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.CallbackTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxRetries, validation.Min(0)),
		validation.Field(&c.IdleInterval, validation.Required),
		validation.Field(&c.FanOutConcurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.DeliveryConcurrency, validation.Required, validation.Min(1)),
	)
}

// Validate implements validation.Validatable.
func (c StoreConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In("memory", "sql", "minio")),
	)
}

// Validate implements validation.Validatable.
func (c QueueConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In("memory", "sql", "redis")),
		validation.Field(&c.VisibilityTimeout, validation.Required, validation.Min(time.Second)),
	)
}

func (c DatabaseConfig) check() error {
	sqlite := c.Driver == "sqlite3"
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In("mysql", "postgres", "sqlite3")),
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Host, validation.When(!sqlite, validation.Required)),
		validation.Field(&c.Password, validation.When(!sqlite, validation.Required)),
	)
}

func (c MinioConfig) check() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.AccessKeyID, validation.Required),
		validation.Field(&c.SecretAccessKey, validation.Required),
		validation.Field(&c.Bucket, validation.Required, validation.Length(3, 63)),
	)
}

func (c RedisConfig) check() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.DB, validation.Min(0)),
	)
}

// Validate implements validation.Validatable.
func (c LogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("trace", "debug", "info", "warn", "error")),
		validation.Field(&c.Format, validation.In("console", "json")),
	)
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Name)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Name)
	case "sqlite3":
		return c.Name // SQLite uses file path as DSN
	default:
		return ""
	}
}
