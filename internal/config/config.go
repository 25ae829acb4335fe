package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Generation parameter bounds accepted by the hosted diffusion models.
const (
	MinDimension = 256
	MaxDimension = 1024
	MinSteps     = 15
	MaxSteps     = 50
	MinGuidance  = 1.0
	MaxGuidance  = 20.0
	MaxVariations = 4
)

type Config struct {
	Port string `env:"PORT"`

	// Hugging Face inference API
	APIKey            string        `env:"HUGGINGFACE_API_KEY"`
	APIBaseURL        string        `env:"HF_API_URL"`
	Model             string        `env:"HF_MODEL"`
	AlternativeModels []string      `env:"HF_ALTERNATIVE_MODELS" envSeparator:";"`
	RequestTimeout    time.Duration `env:"HF_REQUEST_TIMEOUT"`

	// Retry policy for transient "model loading" responses
	MaxAttempts      int           `env:"HF_MAX_ATTEMPTS"`
	BackoffBase      time.Duration `env:"HF_BACKOFF_BASE"`
	MaxSuggestedWait time.Duration `env:"HF_MAX_SUGGESTED_WAIT"`
	VariationPacing  time.Duration `env:"HF_VARIATION_PACING"`

	// Generation defaults applied when a request omits a parameter
	DefaultWidth    int     `env:"DEFAULT_WIDTH"`
	DefaultHeight   int     `env:"DEFAULT_HEIGHT"`
	DefaultSteps    int     `env:"DEFAULT_STEPS"`
	DefaultGuidance float64 `env:"DEFAULT_GUIDANCE"`

	// Local storage
	GalleryDir string `env:"GALLERY_DIR"`
	DBPath     string `env:"DB_PATH"`
}

// Defaults returns the configuration with preset values. They are
// overridden by .env and environment variables.
func Defaults() *Config {
	return &Config{
		Port:             "8000",
		APIBaseURL:       "https://router.huggingface.co/hf-inference/models",
		Model:            "stabilityai/stable-diffusion-2-1",
		AlternativeModels: []string{
			"stabilityai/stable-diffusion-xl-base-1.0",
			"runwayml/stable-diffusion-v1-5",
		},
		RequestTimeout:   120 * time.Second,
		MaxAttempts:      5,
		BackoffBase:      2 * time.Second,
		MaxSuggestedWait: 60 * time.Second,
		VariationPacing:  3 * time.Second,
		DefaultWidth:     512,
		DefaultHeight:    512,
		DefaultSteps:     25,
		DefaultGuidance:  7.5,
		GalleryDir:       "gallery",
		DBPath:           "imageforge.db",
	}
}

// Load builds the configuration from defaults, an optional .env file and
// the environment. A missing API key is not an error here; generation
// requests fail with an authentication error until a key is available.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("HF_MAX_ATTEMPTS must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.BackoffBase <= 0 {
		return nil, fmt.Errorf("HF_BACKOFF_BASE must be positive, got %s", cfg.BackoffBase)
	}

	return cfg, nil
}
