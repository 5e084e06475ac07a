package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformerrors "docuvoice-client-go/internal/platform/errors"
)

// Loader reads the YAML configuration with .env and environment overrides.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader using the default search path.
func NewLoader() *Loader {
	return &Loader{useDotEnv: true}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the configuration file path (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

var searchPaths = []string{"config.yaml", "config.yml", ".docuvoice.yaml"}

// Load reads the configuration, falling back to defaults when no file exists.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using system environment")
		}
	}

	cfg := Default()
	path := l.path
	if path == "" {
		for _, candidate := range searchPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "load", "read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "load", "parse config file", err)
		}
	} else {
		path = "defaults"
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

// applyEnvOverrides lets deploy environments point the client elsewhere
// without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCUVOICE_API_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("DOCUVOICE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DOCUVOICE_DATA_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("DOCUVOICE_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backend.RequestTimeout = d
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Backend.BaseURL == "" {
		return platformerrors.New(platformerrors.KindConfig, "validate", "backend base_url is required")
	}
	if cfg.Upload.MaxWidth <= 0 || cfg.Upload.MaxHeight <= 0 {
		return platformerrors.New(platformerrors.KindConfig, "validate", "upload bounds must be positive")
	}
	if cfg.Upload.JPEGQuality <= 0 || cfg.Upload.JPEGQuality > 1 {
		return platformerrors.New(platformerrors.KindConfig, "validate", "jpeg quality must be in (0,1]")
	}
	if cfg.Backend.RequestTimeout <= 0 {
		cfg.Backend.RequestTimeout = 30 * time.Second
	}
	if cfg.Backend.UploadTimeout <= 0 {
		cfg.Backend.UploadTimeout = cfg.Backend.RequestTimeout * 2
	}
	return nil
}
