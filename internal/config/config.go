package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App      App
	Database Database
	Redis    Redis
	JWT      JWT
	Sync     Sync
}

type App struct {
	Port string `env:"PORT" env-default:"8080"`
}

type JWT struct {
	Secret string `env:"JWT_SECRET" env-required:"true"`
}

type Redis struct {
	Host string `env:"REDIS_HOST" env-required:"true"`
	Port string `env:"REDIS_PORT" env-required:"true"`
}

func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type Database struct {
	Host     string `env:"POSTGRES_HOST" env-required:"true"`
	Port     string `env:"POSTGRES_PORT" env-required:"true"`
	User     string `env:"POSTGRES_USER" env-required:"true"`
	DBName   string `env:"POSTGRES_DB" env-required:"true"`
	Password string `env:"POSTGRES_PASSWORD" env-required:"true"`
	SSLMode  string `env:"POSTGRES_SSLMODE" env-required:"true"`
}

func (d Database) DSN() string {
	return fmt.Sprintf(
		`host=%s port=%s user=%s password=%s dbname=%s sslmode=%s`,
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Sync carries the client-local timing knobs. The defaults are the only
// time-based state transitions in the engine; network calls carry none.
type Sync struct {
	IdleTimeout       time.Duration `env:"SYNC_IDLE_TIMEOUT" env-default:"30s"`
	IdlePollInterval  time.Duration `env:"SYNC_IDLE_POLL_INTERVAL" env-default:"5s"`
	ActivityThreshold time.Duration `env:"SYNC_ACTIVITY_THRESHOLD" env-default:"5s"`
	ActivityCooldown  time.Duration `env:"SYNC_ACTIVITY_COOLDOWN" env-default:"1s"`
	HeartbeatInterval time.Duration `env:"SYNC_HEARTBEAT_INTERVAL" env-default:"10s"`
	HeartbeatWindow   time.Duration `env:"SYNC_HEARTBEAT_WINDOW" env-default:"30s"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment variables: %w", err)
	}
	return cfg, nil
}
