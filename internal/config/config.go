package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g. CAREFLOW_DATABASE_HOST
const EnvPrefix = "CAREFLOW"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Security  SecurityConfig  `mapstructure:"security"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" split_words:"true"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	BasePath        string        `mapstructure:"base_path" split_words:"true"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" split_words:"true"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" split_words:"true"`
	Mode            string        `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode" envconfig:"SSLMODE"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
}

// DSN renders the lib/pq connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours" split_words:"true"`
	Issuer      string `mapstructure:"issuer"`
}

func (c JWTConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

type SecurityConfig struct {
	BcryptCost     int      `mapstructure:"bcrypt_cost" split_words:"true"`
	AllowedOrigins []string `mapstructure:"allowed_origins" split_words:"true"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" split_words:"true"`
	Burst             int     `mapstructure:"burst"`
}

type RedisConfig struct {
	URL              string        `mapstructure:"url"`
	Channel          string        `mapstructure:"channel"`
	MaxRetries       int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize         int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns     int           `mapstructure:"min_idle_conns" split_words:"true"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold" split_words:"true"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout" split_words:"true"`
}

type OutboxConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BatchSize    int           `mapstructure:"batch_size" split_words:"true"`
	PollInterval time.Duration `mapstructure:"poll_interval" split_words:"true"`
	MaxAttempts  int           `mapstructure:"max_attempts" split_words:"true"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" split_words:"true"`
	MaxRetryTime time.Duration `mapstructure:"max_retry_time" split_words:"true"`
	StaleAfter   time.Duration `mapstructure:"stale_after" split_words:"true"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Output  string `mapstructure:"output"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "careflow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("jwt.expiry_hours", 168)
	v.SetDefault("jwt.issuer", "careflow")

	v.SetDefault("security.bcrypt_cost", 12)
	v.SetDefault("security.allowed_origins", []string{"*"})

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("redis.channel", "careflow:events")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.breaker_threshold", 5)
	v.SetDefault("redis.breaker_timeout", "5s")

	v.SetDefault("outbox.enabled", true)
	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", "1s")
	v.SetDefault("outbox.max_attempts", 5)
	v.SetDefault("outbox.retry_delay", "200ms")
	v.SetDefault("outbox.max_retry_time", "5s")
	v.SetDefault("outbox.stale_after", "5m")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "no-reply@careflow.local")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.output", "stdout")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads config.yaml (or path when given), then .env and CAREFLOW_* overrides
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.Server.BasePath = "/" + strings.Trim(cfg.Server.BasePath, "/")
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		problems = append(problems, fmt.Sprintf("database.driver %q must be postgres or memory", c.Database.Driver))
	}
	if len(c.JWT.Secret) < 32 {
		problems = append(problems, "jwt.secret must be at least 32 characters")
	}
	if c.JWT.ExpiryHours <= 0 {
		problems = append(problems, "jwt.expiry_hours must be positive")
	}
	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		problems = append(problems, "security.bcrypt_cost must be between 4 and 31")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		problems = append(problems, "rate_limit requires positive requests_per_second and burst")
	}
	if c.Outbox.Enabled {
		if c.Outbox.BatchSize <= 0 {
			problems = append(problems, "outbox.batch_size must be positive")
		}
		if c.Outbox.PollInterval <= 0 {
			problems = append(problems, "outbox.poll_interval must be positive")
		}
		if c.Outbox.MaxAttempts <= 0 {
			problems = append(problems, "outbox.max_attempts must be positive")
		}
		if c.Outbox.RetryDelay <= 0 || c.Outbox.StaleAfter <= 0 {
			problems = append(problems, "outbox.retry_delay and outbox.stale_after must be positive")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
