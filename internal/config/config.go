package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"

	PendingStoreMemory = "memory"
	PendingStoreRedis  = "redis"

	OTPDeliverySMTP     = "smtp"
	OTPDeliveryRabbitMQ = "rabbitmq"

	ImagesBackendLocal = "local"
	ImagesBackendS3    = "s3"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	Auth       `yaml:"auth"`
	Tokens     `yaml:"tokens"`
	Storage    `yaml:"storage"`
	Postgres   `yaml:"postgres"`
	SQLite     `yaml:"sqlite"`
	Redis      `yaml:"redis"`
	RabbitMQ   `yaml:"rabbitmq"`
	SMTP       `yaml:"smtp"`
	Images     `yaml:"images"`
	HTTPServer `yaml:"http_server"`
}

// MailSender is the queue consumer's view of the same config file.
type MailSender struct {
	Env      string `yaml:"env" env:"ENV" env-default:"local"`
	RabbitMQ `yaml:"rabbitmq"`
	SMTP     `yaml:"smtp"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

// Auth tunes the signup/OTP flow. A zero PendingTTL or MaxOTPAttempts disables that limit.
type Auth struct {
	BcryptCost     int           `yaml:"bcrypt_cost" env:"AUTH_BCRYPT_COST" env-default:"10"`
	PendingStore   string        `yaml:"pending_store" env:"AUTH_PENDING_STORE" env-default:"memory"`
	PendingTTL     time.Duration `yaml:"pending_ttl" env:"AUTH_PENDING_TTL" env-default:"0s"`
	MaxOTPAttempts int           `yaml:"max_otp_attempts" env:"AUTH_MAX_OTP_ATTEMPTS" env-default:"0"`
	OTPDelivery    string        `yaml:"otp_delivery" env:"AUTH_OTP_DELIVERY" env-default:"smtp"`
}

type Tokens struct {
	SessionTokenTTL    time.Duration `yaml:"session_token_ttl" env:"SESSION_TOKEN_TTL" env-default:"720h"`
	SessionTokenSecret string        `yaml:"session_token_secret" env:"SESSION_TOKEN_SECRET" env-required:"true"`
}

type Storage struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"postgres"`
	Port     int    `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
}

type SQLite struct {
	Path string `yaml:"path" env:"SQLITE_PATH" env-default:"account_service.db"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env:"RABBITMQ_URL"`
	QueueName string `yaml:"queue_name" env:"RABBITMQ_QUEUE" env-default:"otp_emails"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM"`
}

type Images struct {
	Backend       string `yaml:"backend" env:"IMAGES_BACKEND" env-default:"local"`
	Dir           string `yaml:"dir" env:"IMAGES_DIR" env-default:"./uploads"`
	PublicBaseURL string `yaml:"public_base_url" env:"IMAGES_PUBLIC_BASE_URL" env-default:"http://localhost:8080"`
	S3Bucket      string `yaml:"s3_bucket" env:"IMAGES_S3_BUCKET"`
	S3Region      string `yaml:"s3_region" env:"IMAGES_S3_REGION" env-default:"us-east-1"`
	S3Endpoint    string `yaml:"s3_endpoint" env:"IMAGES_S3_ENDPOINT"`
	S3AccessKey   string `yaml:"s3_access_key" env:"IMAGES_S3_ACCESS_KEY"`
	S3SecretKey   string `yaml:"s3_secret_key" env:"IMAGES_S3_SECRET_KEY"`
}

// FetchConfigPath resolves the config file from the -config flag, then the
// CONFIG_PATH env var, then def.
func FetchConfigPath(def string) string {
	var res string

	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.StringVar(&res, "config", "", "path to config file")
	_ = fs.Parse(os.Args[1:])

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = def
	}

	return res
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}

	return cfg
}

func Load(configPath string) (*Config, error) {
	var cfg Config

	if err := read(configPath, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func MustLoadMailSender(configPath string) *MailSender {
	cfg, err := LoadMailSender(configPath)
	if err != nil {
		panic(err.Error())
	}

	return cfg
}

// LoadMailSender reads only the sections the consumer needs, so API-only
// settings such as the session token secret are not required.
func LoadMailSender(configPath string) (*MailSender, error) {
	var cfg MailSender

	if err := read(configPath, &cfg); err != nil {
		return nil, err
	}

	if cfg.RabbitMQ.URL == "" {
		return nil, errors.New("invalid config: rabbitmq url is required")
	}

	return &cfg, nil
}

func read(configPath string, cfg any) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", configPath)
	}

	if err := cleanenv.ReadConfig(configPath, cfg); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case StorageDriverPostgres:
		if c.Postgres.User == "" || c.Postgres.DBName == "" {
			errs = append(errs, errors.New("postgres user and dbname are required"))
		}
	case StorageDriverSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	switch c.Auth.PendingStore {
	case PendingStoreMemory, PendingStoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown pending store %q", c.Auth.PendingStore))
	}

	switch c.Auth.OTPDelivery {
	case OTPDeliverySMTP:
	case OTPDeliveryRabbitMQ:
		if c.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("rabbitmq url is required for rabbitmq otp delivery"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown otp delivery %q", c.Auth.OTPDelivery))
	}

	switch c.Images.Backend {
	case ImagesBackendLocal:
	case ImagesBackendS3:
		if c.Images.S3Bucket == "" {
			errs = append(errs, errors.New("s3 bucket is required for the s3 images backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown images backend %q", c.Images.Backend))
	}

	if c.Auth.PendingTTL < 0 {
		errs = append(errs, errors.New("auth pending_ttl must not be negative"))
	}

	if c.Auth.MaxOTPAttempts < 0 {
		errs = append(errs, errors.New("auth max_otp_attempts must not be negative"))
	}

	return errors.Join(errs...)
}
