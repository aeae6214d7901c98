package utils

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

var (
	AWS_DEFAULT_REGION = GetEnvOrDefault("AWS_DEFAULT_REGION", "us-east-1")

	S3_BUCKET_NAME = os.Getenv("S3_BUCKET_NAME")
	S3_ENDPOINT    = os.Getenv("S3_ENDPOINT")
)

type Config struct {
	PGDSN            string `env:"PG_DSN" validate:"required"`
	DefaultSchema    string `env:"DEFAULT_SCHEMA" envDefault:"public" validate:"required"`
	HTTPPort         string `env:"HTTP_PORT" envDefault:"8080" validate:"required,numeric"`
	ShutdownSleepSec int    `env:"SHUTDOWN_SLEEP_SEC" envDefault:"0" validate:"gte=0"`
	MaxBatchRows     int    `env:"MAX_BATCH_ROWS" envDefault:"1000" validate:"gte=1"`
	RunMigrations    bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
	LogLevel         string `env:"LOG_LEVEL" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`

	S3BucketName     string `env:"S3_BUCKET_NAME"`
	S3Endpoint       string `env:"S3_ENDPOINT"`
	AWSDefaultRegion string `env:"AWS_DEFAULT_REGION" envDefault:"us-east-1"`
}

// LoadConfig parses the process environment into a validated Config.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error in env.Parse: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
