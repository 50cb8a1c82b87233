package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	appenv "github.com/garrettladley/whoopweb/internal/env"
)

type Config struct {
	Port      string             `env:"PORT" envDefault:"8080"`
	Env       appenv.Environment `env:"ENV" envDefault:"development"`
	BaseURL   string             `env:"BASE_URL,required,notEmpty"`
	Whoop     Whoop              `envPrefix:"WHOOP_"`
	Session   Session            `envPrefix:"SESSION_"`
	RateLimit RateLimit          `envPrefix:"RATE_"`
	Redis     Redis              `envPrefix:"REDIS_"`
	Database  Database           `envPrefix:"DATABASE_"`
	SQLite    SQLite             `envPrefix:"SQLITE_"`
}

type Whoop struct {
	APIHostname   string        `env:"API_HOSTNAME" envDefault:"https://api.prod.whoop.com"`
	ClientID      string        `env:"CLIENT_ID,required,notEmpty"`
	ClientSecret  string        `env:"CLIENT_SECRET,required,notEmpty"`
	CallbackURL   string        `env:"CALLBACK_URL"`
	Scopes        []string      `env:"SCOPES" envSeparator:"," envDefault:"offline,read:recovery,read:cycles,read:sleep,read:body_measurement"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"10s"`
	RefreshMargin time.Duration `env:"REFRESH_MARGIN" envDefault:"30s"`
	StateTTL      time.Duration `env:"STATE_TTL" envDefault:"10m"`
}

type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StoreRedis    StoreKind = "redis"
	StorePostgres StoreKind = "postgres"
	StoreSQLite   StoreKind = "sqlite"
)

type Session struct {
	Store  StoreKind     `env:"STORE" envDefault:"memory"`
	TTL    time.Duration `env:"TTL" envDefault:"720h"`
	Cookie string        `env:"COOKIE" envDefault:"whoop_session"`
}

type RateLimit struct {
	Limit float64 `env:"LIMIT" envDefault:"10"`
	Burst int     `env:"BURST" envDefault:"20"`
}

type Redis struct {
	URL string `env:"URL"`
}

type Database struct {
	URL string `env:"URL"`
}

type SQLite struct {
	Path string `env:"PATH" envDefault:"whoopweb.db"`
}

// RedirectURL is the OAuth callback registered with WHOOP.
func (c Config) RedirectURL() string {
	if c.Whoop.CallbackURL != "" {
		return c.Whoop.CallbackURL
	}
	return c.BaseURL + "/auth/callback"
}

func Read() (Config, error) {
	return env.ParseAs[Config]()
}

// Store is the subset of Config the maintenance CLI needs; it requires no WHOOP credentials.
type Store struct {
	Session  Session  `envPrefix:"SESSION_"`
	Redis    Redis    `envPrefix:"REDIS_"`
	Database Database `envPrefix:"DATABASE_"`
	SQLite   SQLite   `envPrefix:"SQLITE_"`
}

func ReadStore() (Store, error) {
	return env.ParseAs[Store]()
}
