package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds infrastructure addresses and secrets. Empty values select the
// in-memory implementation or disable the integration.
type Env struct {
	ConfigPath    string   `env:"OPSALERT_CONFIG" envDefault:"configs/opsalert.yaml"`
	HTTPAddr      string   `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel      string   `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL   string   `env:"DATABASE_URL"`
	RedisAddr     string   `env:"REDIS_ADDR"`
	RedisPassword string   `env:"REDIS_PASSWORD"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic    string   `env:"KAFKA_TOPIC" envDefault:"administrative-alerts"`
	ResendAPIKey  string   `env:"RESEND_API_KEY"`
	AWSRegion     string   `env:"AWS_REGION"`
	MailFrom      string   `env:"MAIL_FROM"`
}

// LoadEnv reads optional dotenv files and then the process environment.
// Missing dotenv files are ignored; real environment variables win.
func LoadEnv(files ...string) (*Env, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg := &Env{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
