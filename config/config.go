package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix     = "CANVASYNC"
	envConfigPath = "CANVASYNC_CONFIG"
	defaultPath   = "./config/canvasync.yaml"
)

type Config struct {
	DevMode  bool           `mapstructure:"devMode"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Store    StoreConfig    `mapstructure:"store"`
	Dynamo   DynamoConfig   `mapstructure:"dynamo"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Presence PresenceConfig `mapstructure:"presence"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	SQS      SQSConfig      `mapstructure:"sqs"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Session  SessionConfig  `mapstructure:"session"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type DynamoConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Table    string `mapstructure:"table"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"maxConns"`
}

type PresenceConfig struct {
	Backend    string        `mapstructure:"backend"`
	StaleAfter time.Duration `mapstructure:"staleAfter"`
}

type RedisConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	TLS      bool   `mapstructure:"tls"`
}

type QueueConfig struct {
	Backend string `mapstructure:"backend"`
}

type SQSConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Queue    string `mapstructure:"queue"`
}

type SnapshotConfig struct {
	Width  int           `mapstructure:"width"`
	Height int           `mapstructure:"height"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type SessionConfig struct {
	CursorInterval        time.Duration `mapstructure:"cursorInterval"`
	SendBuffer            int           `mapstructure:"sendBuffer"`
	MessagesPerSecond     float64       `mapstructure:"messagesPerSecond"`
	Burst                 int           `mapstructure:"burst"`
	MaxRooms              int           `mapstructure:"maxRooms"`
	MaxConnectionsPerUser int           `mapstructure:"maxConnectionsPerUser"`
}

type LogConfig struct {
	Backend string `mapstructure:"backend"`
	Level   string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("devMode", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowedOrigins", []string{"*"})
	v.SetDefault("store.backend", "memory")
	v.SetDefault("dynamo.endpoint", "")
	v.SetDefault("dynamo.table", "Canvasync")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxConns", 10)
	v.SetDefault("presence.backend", "memory")
	v.SetDefault("presence.staleAfter", 30*time.Second)
	v.SetDefault("redis.endpoint", "localhost:6379")
	v.SetDefault("redis.tls", false)
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("sqs.endpoint", "")
	v.SetDefault("sqs.queue", "CanvasyncSnapshotQueue")
	v.SetDefault("snapshot.width", 1920)
	v.SetDefault("snapshot.height", 1080)
	v.SetDefault("snapshot.ttl", 30*time.Second)
	v.SetDefault("session.cursorInterval", 100*time.Millisecond)
	v.SetDefault("session.sendBuffer", 256)
	v.SetDefault("session.messagesPerSecond", 60)
	v.SetDefault("session.burst", 120)
	v.SetDefault("session.maxRooms", 8)
	v.SetDefault("session.maxConnectionsPerUser", 5)
	v.SetDefault("log.backend", "zap")
	v.SetDefault("log.level", "info")
}

// Load reads defaults, then the YAML file if there is one, then CANVASYNC_*
// environment variables (http.addr is CANVASYNC_HTTP_ADDR).
func Load() (Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = defaultPath
	}
	return LoadFile(path)
}

func LoadFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		// A missing file just means defaults and env
		if _, statErr := os.Stat(path); statErr == nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func oneOf(key string, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unknown value %q (want one of %s)", key, value, strings.Join(allowed, ", "))
}

func (c Config) Validate() error {
	var errs []error

	errs = append(errs,
		oneOf("store.backend", c.Store.Backend, "memory", "dynamo", "postgres"),
		oneOf("presence.backend", c.Presence.Backend, "memory", "redis", "postgres"),
		oneOf("queue.backend", c.Queue.Backend, "memory", "sqs"),
		oneOf("log.backend", c.Log.Backend, "zap", "text"),
		oneOf("log.level", c.Log.Level, "debug", "info", "warn", "error"),
	)

	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if (c.Store.Backend == "postgres" || c.Presence.Backend == "postgres") && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required for the postgres backend"))
	}
	if c.Store.Backend == "dynamo" && c.Dynamo.Table == "" {
		errs = append(errs, errors.New("dynamo.table is required for the dynamo backend"))
	}
	if c.Queue.Backend == "sqs" && c.SQS.Queue == "" {
		errs = append(errs, errors.New("sqs.queue is required for the sqs backend"))
	}
	if c.Presence.StaleAfter <= 0 {
		errs = append(errs, errors.New("presence.staleAfter must be positive"))
	}
	if c.Session.CursorInterval <= 0 {
		errs = append(errs, errors.New("session.cursorInterval must be positive"))
	}
	if c.Snapshot.TTL <= 0 {
		errs = append(errs, errors.New("snapshot.ttl must be positive"))
	}
	if c.Snapshot.Width <= 0 || c.Snapshot.Height <= 0 {
		errs = append(errs, errors.New("snapshot.width and snapshot.height must be positive"))
	}
	if c.Session.SendBuffer <= 0 || c.Session.MessagesPerSecond <= 0 || c.Session.Burst <= 0 {
		errs = append(errs, errors.New("session.sendBuffer, session.messagesPerSecond and session.burst must be positive"))
	}

	return errors.Join(errs...)
}
