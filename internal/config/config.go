package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig       `mapstructure:"server"`
	BiddingServer ServerConfig       `mapstructure:"bidding_server"`
	Redis         RedisConfig        `mapstructure:"redis"`
	MySQL         MySQLConfig        `mapstructure:"mysql"`
	Leader        LeaderConfig       `mapstructure:"leader"`
	Instance      InstanceConfig     `mapstructure:"instance"`
	Sweeper       SweeperConfig      `mapstructure:"sweeper"`
	Bidding       BiddingConfig      `mapstructure:"bidding"`
	Notification  NotificationConfig `mapstructure:"notification"`
	SMTP          SMTPConfig         `mapstructure:"smtp"`
	Log           LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`

	// SnapshotTTL bounds how long a cached price snapshot may be served.
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type LeaderConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
	Key string        `mapstructure:"key"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type SweeperConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	MaxFailures int           `mapstructure:"max_failures"`
}

type BiddingConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

type NotificationConfig struct {
	AdminEmail      string        `mapstructure:"admin_email"`
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("bidding_server.port", 8081)
	v.SetDefault("bidding_server.host", "0.0.0.0")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "auction_events")
	v.SetDefault("redis.snapshot_ttl", 10*time.Minute)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.auto_migrate", false)
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("leader.key", "auction_sweeper_leader")
	v.SetDefault("instance.id", "auction-service-1")
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval", 30*time.Second)
	v.SetDefault("sweeper.max_failures", 5)
	v.SetDefault("bidding.max_attempts", 5)
	v.SetDefault("notification.admin_email", "")
	v.SetDefault("notification.workers", 4)
	v.SetDefault("notification.queue_size", 256)
	v.SetDefault("notification.delivery_timeout", 10*time.Second)
	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 25)
	v.SetDefault("smtp.from", "auctions@localhost")
	v.SetDefault("log.level", "info")
}

// env var -> config key
var envBindings = map[string]string{
	"server.port":                   "SERVER_PORT",
	"server.host":                   "SERVER_HOST",
	"bidding_server.port":           "BIDDING_SERVER_PORT",
	"bidding_server.host":           "BIDDING_SERVER_HOST",
	"redis.address":                 "REDIS_ADDRESS",
	"redis.password":                "REDIS_PASSWORD",
	"redis.db":                      "REDIS_DB",
	"redis.channel":                 "REDIS_CHANNEL",
	"redis.snapshot_ttl":            "REDIS_SNAPSHOT_TTL",
	"mysql.dsn":                     "MYSQL_DSN",
	"mysql.max_open_conns":          "MYSQL_MAX_OPEN_CONNS",
	"mysql.max_idle_conns":          "MYSQL_MAX_IDLE_CONNS",
	"mysql.conn_max_lifetime":       "MYSQL_CONN_MAX_LIFETIME",
	"mysql.auto_migrate":            "MYSQL_AUTO_MIGRATE",
	"leader.ttl":                    "LEADER_TTL",
	"leader.key":                    "LEADER_KEY",
	"instance.id":                   "INSTANCE_ID",
	"sweeper.enabled":               "SWEEPER_ENABLED",
	"sweeper.interval":              "SWEEPER_INTERVAL",
	"sweeper.max_failures":          "SWEEPER_MAX_FAILURES",
	"bidding.max_attempts":          "BIDDING_MAX_ATTEMPTS",
	"notification.admin_email":      "NOTIFICATION_ADMIN_EMAIL",
	"notification.workers":          "NOTIFICATION_WORKERS",
	"notification.queue_size":       "NOTIFICATION_QUEUE_SIZE",
	"notification.delivery_timeout": "NOTIFICATION_DELIVERY_TIMEOUT",
	"smtp.enabled":                  "SMTP_ENABLED",
	"smtp.host":                     "SMTP_HOST",
	"smtp.port":                     "SMTP_PORT",
	"smtp.username":                 "SMTP_USERNAME",
	"smtp.password":                 "SMTP_PASSWORD",
	"smtp.from":                     "SMTP_FROM",
	"log.level":                     "LOG_LEVEL",
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return v
}

// Load reads .env (if present), defaults, an optional config.yaml and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/auction-engine/")

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive, got %s", c.Sweeper.Interval)
	}
	if c.Sweeper.MaxFailures < 0 {
		return fmt.Errorf("sweeper.max_failures must not be negative, got %d", c.Sweeper.MaxFailures)
	}
	if c.Bidding.MaxAttempts <= 0 {
		return fmt.Errorf("bidding.max_attempts must be positive, got %d", c.Bidding.MaxAttempts)
	}
	if c.Notification.Workers <= 0 {
		return fmt.Errorf("notification.workers must be positive, got %d", c.Notification.Workers)
	}
	if c.Notification.QueueSize <= 0 {
		return fmt.Errorf("notification.queue_size must be positive, got %d", c.Notification.QueueSize)
	}
	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Bidding: %s:%d, Redis: %s, Instance: %s, Sweeper: %s",
		c.Server.Host,
		c.Server.Port,
		c.BiddingServer.Host,
		c.BiddingServer.Port,
		c.Redis.Address,
		c.Instance.ID,
		c.Sweeper.Interval,
	)
}
