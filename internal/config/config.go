package ledger

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Хранилище
type DB struct {
	Driver     string `env:"LEDGER_DB_DRIVER" envDefault:"postgres"` // postgres | sqlite
	Host       string `env:"LEDGER_DB"`
	Port       string `env:"LEDGER_DB_PORT" envDefault:"5432"`
	User       string `env:"LEDGER_DB_USER"`
	Password   string `env:"LEDGER_DB_PASSWORD"`
	Database   string `env:"LEDGER_DB_BASE"`
	SQLitePath string `env:"LEDGER_SQLITE_PATH" envDefault:"ledger.db"`
	Retries    uint   `env:"LEDGER_TX_RETRIES" envDefault:"5"`
}

func (c DB) Validate() error {
	switch c.Driver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("env LEDGER_SQLITE_PATH is not set")
		}
	case "postgres":
		if c.Host == "" {
			return fmt.Errorf("env LEDGER_DB is not set")
		}
		if c.User == "" {
			return fmt.Errorf("env LEDGER_DB_USER is not set")
		}
		if c.Password == "" {
			return fmt.Errorf("env LEDGER_DB_PASSWORD is not set")
		}
		if c.Database == "" {
			return fmt.Errorf("env LEDGER_DB_BASE is not set")
		}
	default:
		return fmt.Errorf("unknown LEDGER_DB_DRIVER %q", c.Driver)
	}
	return nil
}

func (c DB) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Database
}

// Кэш балансов, пустой адрес - без кэша
type Cache struct {
	Addr     string        `env:"LEDGER_CACHE_URL"`
	User     string        `env:"LEDGER_CACHE_USER"`
	Password string        `env:"LEDGER_CACHE_PWD"`
	TTL      time.Duration `env:"LEDGER_CACHE_TTL" envDefault:"5m"`
}

// Источник кампаний: mongo, если задан адрес, иначе из переменных окружения
type Campaign struct {
	MongoURI      string        `env:"LEDGER_MONGO"`
	MongoDatabase string        `env:"LEDGER_MONGO_BASE" envDefault:"ledgerDB"`
	ID            string        `env:"CAMPAIGN_ID" envDefault:"default"`
	InviterReward int64         `env:"CAMPAIGN_INVITER_REWARD" envDefault:"100"`
	InviteeReward int64         `env:"CAMPAIGN_INVITEE_REWARD" envDefault:"50"`
	RequiredTask  string        `env:"CAMPAIGN_REQUIRED_TASK" envDefault:"first_creation"`
	MaxInvites    int64         `env:"CAMPAIGN_MAX_INVITES" envDefault:"0"`
	RelationTTL   time.Duration `env:"CAMPAIGN_RELATION_TTL" envDefault:"720h"`
}

// Kafka: события выполнения заданий
type Kafka struct {
	Host    string `env:"KAFKA_TASKS_URL"`
	Port    string `env:"KAFKA_TASKS_PORT" envDefault:"9092"`
	Topic   string `env:"KAFKA_TASKS_TOPIC" envDefault:"referral-tasks"`
	GroupID string `env:"KAFKA_TASKS_GROUP" envDefault:"ledger_referrals"`
}

// RabbitMQ: списания за генерацию
type Rabbit struct {
	Host     string `env:"RABBIT_URL"`
	Port     string `env:"RABBIT_PORT" envDefault:"5672"`
	User     string `env:"RABBIT_USER"`
	Password string `env:"RABBIT_PASSWORD"`
	VHost    string `env:"RABBIT_VHOST" envDefault:"ledger"`
}

type Config struct {
	Env          string        `env:"LEDGER_ENV" envDefault:"development"`
	HTTPPort     string        `env:"LEDGER_HTTP_PORT" envDefault:"8080"`
	GRPCPort     string        `env:"LEDGER_GRPC_PORT" envDefault:"9090"`
	OTLPEndpoint string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TimeZone     string        `env:"LEDGER_TIMEZONE" envDefault:"UTC"`
	ExchangeRate int64         `env:"LEDGER_EXCHANGE_RATE" envDefault:"100"`
	ExpireEvery  time.Duration `env:"LEDGER_EXPIRE_EVERY" envDefault:"1h"`
	Workers      int           `env:"LEDGER_WORKERS" envDefault:"5"`

	DB       DB
	Cache    Cache
	Campaign Campaign
	Kafka    Kafka
	Rabbit   Rabbit
}

// Load читает .env (если есть) и переменные окружения
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ExchangeRate <= 0 {
		return Config{}, fmt.Errorf("env LEDGER_EXCHANGE_RATE must be positive")
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("env LEDGER_TIMEZONE: %w", err)
	}
	return loc, nil
}

func (c Config) Production() bool {
	return c.Env == "production"
}
