package config

import (
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}

type Config struct {
	GoEnv           string        `env:"GO_ENV" env-default:"development"`
	Port            int           `env:"PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS" env-default:"http://localhost:3000,http://localhost:3001"`
	CronEnabled     bool          `env:"CRON_ENABLED" env-default:"true"`
	RateLimit       int           `env:"RATE_LIMIT_REQUESTS" env-default:"100"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" env-default:"1m"`

	Database
	JWT
	Redis
	Razorpay
	Kafka
	Spaces
}

type Database struct {
	Host            string        `env:"DB_HOST" env-default:"localhost"`
	Port            string        `env:"DB_PORT" env-default:"5432"`
	User            string        `env:"DB_USER_NAME"`
	Password        string        `env:"DB_PASSWORD"`
	Name            string        `env:"DB_NAME"`
	SSLMode         string        `env:"DB_SSL_MODE" env-default:"disable"`
	ConnectAttempts uint          `env:"DB_CONNECT_ATTEMPTS" env-default:"5"`
	ConnectDelay    time.Duration `env:"DB_CONNECT_DELAY" env-default:"1s"`
	ConnectMaxDelay time.Duration `env:"DB_CONNECT_MAX_DELAY" env-default:"10s"`
}

type JWT struct {
	Secret string        `env:"JWT_SECRET"`
	Issuer string        `env:"JWT_ISSUER" env-default:"course-marketplace-api"`
	Expiry time.Duration `env:"JWT_EXPIRY" env-default:"24h"`
}

type Redis struct {
	URL      string        `env:"REDIS_URL" env-default:"redis://localhost:6379/0"`
	CacheTTL time.Duration `env:"REVENUE_CACHE_TTL" env-default:"60s"`
}

// Razorpay holds the payment gateway credentials. KeySecret signs checkout
// confirmations, WebhookSecret signs gateway callbacks; they are never logged.
type Razorpay struct {
	KeyID         string        `env:"RAZORPAY_KEY_ID"`
	KeySecret     string        `env:"RAZORPAY_KEY_SECRET"`
	WebhookSecret string        `env:"RAZORPAY_WEBHOOK_SECRET"`
	Currency      string        `env:"PAYMENT_CURRENCY" env-default:"INR"`
	Timeout       time.Duration `env:"GATEWAY_TIMEOUT" env-default:"10s"`
}

type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `env:"KAFKA_TOPIC" env-default:"purchase-events"`
	Version string   `env:"KAFKA_VERSION" env-default:"3.6.0"`
}

type Spaces struct {
	AccessKey string `env:"DO_SPACES_ACCESS_KEY"`
	SecretKey string `env:"DO_SPACES_SECRET_KEY"`
	Bucket    string `env:"DO_SPACES_BUCKET"`
	Region    string `env:"DO_SPACES_REGION"`
	Endpoint  string `env:"DO_SPACES_ENDPOINT"`
}

// IsProduction reports whether GO_ENV selects the production profile
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production" || c.GoEnv == "prod"
}

// KafkaEnabled is true when at least one non-empty broker address is configured
func (c *Config) KafkaEnabled() bool {
	for _, b := range c.Kafka.Brokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}

func Get() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
