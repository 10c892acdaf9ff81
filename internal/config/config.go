package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config contains all runtime settings for the preference viewer.
type Config struct {
	BindAddr         string        `env:"APP_BIND_ADDR" envDefault:":8080"`
	ShutdownTimeout  time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsNamespace string        `env:"APP_METRICS_NAMESPACE" envDefault:"prefview"`
	LogLevel         string        `env:"APP_LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"APP_LOG_FORMAT" envDefault:"json"`

	DatasetPath         string        `env:"DATASET_PATH"`
	DatasetURL          string        `env:"DATASET_URL"`
	DatasetCacheDir     string        `env:"DATASET_CACHE_DIR" envDefault:".cache/datasets"`
	DatasetFetchTimeout time.Duration `env:"DATASET_FETCH_TIMEOUT" envDefault:"2m"`
	DatasetFetchRetries int           `env:"DATASET_FETCH_RETRIES" envDefault:"3"`

	// AnnotationBackend is auto, file, postgres or memory.
	AnnotationBackend  string `env:"ANNOTATION_BACKEND" envDefault:"auto"`
	AnnotationPath     string `env:"ANNOTATION_PATH" envDefault:"annotations.json"`
	AnnotationDocument string `env:"ANNOTATION_DOCUMENT" envDefault:"default"`
	DatabaseURL        string `env:"DATABASE_URL"`

	DiffCacheSize    int `env:"DIFF_CACHE_SIZE" envDefault:"512"`
	DiffContextLines int `env:"DIFF_CONTEXT_LINES" envDefault:"3"`

	DefaultUsername string `env:"DEFAULT_USERNAME" envDefault:"anonymous"`
}

// LoadDotEnv loads variables from the given files (default .env) without
// overriding ones already set. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.DatasetPath = strings.TrimSpace(cfg.DatasetPath)
	cfg.DatasetURL = strings.TrimSpace(cfg.DatasetURL)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.AnnotationBackend = strings.ToLower(strings.TrimSpace(cfg.AnnotationBackend))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		return Config{}, fmt.Errorf("APP_LOG_LEVEL parse error: %w", err)
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return Config{}, fmt.Errorf("APP_LOG_FORMAT must be json or console")
	}
	if cfg.DatasetPath == "" && cfg.DatasetURL == "" {
		return Config{}, fmt.Errorf("one of DATASET_PATH or DATASET_URL is required")
	}
	if cfg.DatasetFetchTimeout <= 0 {
		return Config{}, fmt.Errorf("DATASET_FETCH_TIMEOUT must be positive")
	}
	if cfg.DatasetFetchRetries < 0 {
		return Config{}, fmt.Errorf("DATASET_FETCH_RETRIES must be >= 0")
	}
	switch cfg.AnnotationBackend {
	case "auto", "file", "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required for ANNOTATION_BACKEND=postgres")
		}
	default:
		return Config{}, fmt.Errorf("ANNOTATION_BACKEND must be one of auto|file|postgres|memory")
	}
	if cfg.DiffCacheSize < 0 {
		return Config{}, fmt.Errorf("DIFF_CACHE_SIZE must be >= 0")
	}
	if cfg.DiffContextLines < 0 {
		return Config{}, fmt.Errorf("DIFF_CONTEXT_LINES must be >= 0")
	}

	return cfg, nil
}
