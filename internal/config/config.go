package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "STOREDASH"

type Config struct {
	API       APIConfig
	Session   SessionConfig
	Media     MediaConfig
	Cache     CacheConfig
	Query     QueryConfig
	Logs      LogsConfig
	Telemetry TelemetryConfig
}

type APIConfig struct {
	BaseURL      string        `envconfig:"API_BASE_URL" validate:"required,url"`
	Timeout      time.Duration `envconfig:"API_TIMEOUT" default:"0s" validate:"gte=0"`
	RetryMax     int           `envconfig:"API_RETRY_MAX" default:"2" validate:"gte=0,lte=10"`
	MaxBodyBytes int64         `envconfig:"API_MAX_BODY_BYTES" default:"16777216" validate:"gt=0"`
	Token        string        `envconfig:"TOKEN"`

	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client `ignored:"true"`
}

type SessionConfig struct {
	Path       string `envconfig:"SESSION_PATH" default:".storedash/session"`
	Passphrase string `envconfig:"SESSION_PASSPHRASE"`
}

type MediaConfig struct {
	AdminKey string `envconfig:"MEDIA_ADMIN_KEY"`
}

type CacheConfig struct {
	Capacity int `envconfig:"CACHE_CAPACITY" default:"256" validate:"gt=0"`
}

type QueryConfig struct {
	Debounce time.Duration `envconfig:"DEBOUNCE" default:"300ms"`
	PerPage  int           `envconfig:"PER_PAGE" default:"50" validate:"oneof=20 50 100 200"`
}

// LogsConfig points the optional append-blob log sink at a storage account.
// Leaving AccountName empty disables the sink.
type LogsConfig struct {
	AccountName string        `envconfig:"LOG_ACCOUNT_NAME"`
	AccountKey  string        `envconfig:"LOG_ACCOUNT_KEY"`
	Container   string        `envconfig:"LOG_CONTAINER" default:"storedash-logs"`
	BlobName    string        `envconfig:"LOG_BLOB"`
	FlushEvery  time.Duration `envconfig:"LOG_FLUSH_EVERY" default:"2s"`
}

func (l LogsConfig) Enabled() bool {
	return strings.TrimSpace(l.AccountName) != ""
}

type TelemetryConfig struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"storedash"`
	// Endpoint mirrors OTEL_EXPORTER_OTLP_ENDPOINT; the exporters read it themselves.
	Endpoint string `ignored:"true"`
}

func (t TelemetryConfig) Enabled() bool {
	return t.Endpoint != ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads an optional .env file, then the environment, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	sections := []any{&cfg.API, &cfg.Session, &cfg.Media, &cfg.Cache, &cfg.Query, &cfg.Logs, &cfg.Telemetry}
	for _, section := range sections {
		if err := envconfig.Process(envPrefix, section); err != nil {
			return nil, fmt.Errorf("process environment: %w", err)
		}
	}
	cfg.Telemetry.Endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
