package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MALL"

type Config struct {
	HTTP            HTTPConfig     `mapstructure:"http"`
	GRPC            GRPCConfig     `mapstructure:"grpc"`
	Database        DatabaseConfig `mapstructure:"database"`
	Redis           RedisConfig    `mapstructure:"redis"`
	Auth            AuthConfig     `mapstructure:"auth"`
	Log             LogConfig      `mapstructure:"log"`
	ShutdownTimeout time.Duration  `mapstructure:"shutdown_timeout"`
}

type HTTPConfig struct {
	Addr      string  `mapstructure:"addr"`
	RateLimit float64 `mapstructure:"rate_limit"` // per caller per second, 0 disables
	RateBurst int     `mapstructure:"rate_burst"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig is optional; MALL_REDIS_ADDR="" turns idempotency keys off.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	PoolSize int    `mapstructure:"pool_size"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Format string `mapstructure:"format"` // json or text
	Level  string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_limit", 20)
	v.SetDefault("http.rate_burst", 40)
	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "root:root@tcp(localhost:3306)/mall?parseTime=true")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.level", "info")
	v.SetDefault("shutdown_timeout", 5*time.Second)
}

// Load reads defaults, then the optional YAML file at path, then MALL_*
// environment variables (MALL_DATABASE_DSN overrides database.dsn).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be mysql or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.HTTP.RateLimit < 0 || (c.HTTP.RateLimit > 0 && c.HTTP.RateBurst < 1) {
		errs = append(errs, errors.New("http.rate_limit must be >= 0 with a positive http.rate_burst"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
