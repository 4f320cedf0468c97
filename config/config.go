package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/raine/image-analysis-app/internal/inference"
	"github.com/raine/image-analysis-app/internal/storage"
)

const (
	AppName     = "image-analysis-app"
	EnvFileName = "config.env"
)

// Caption backends.
const (
	CaptionBackendHuggingFace = "huggingface"
	CaptionBackendGemini      = "gemini"
)

// Config holds all runtime settings. Every value comes from the environment.
type Config struct {
	HFToken          string // Bearer token for the hosted inference API (required)
	HFBaseURL        string
	TextToImageModel string
	CaptionModel     string
	DetectionModel   string
	HTTPTimeout      time.Duration

	CaptionBackend    string
	CaptionAttempts   int
	CaptionRetryDelay time.Duration
	GeminiAPIKey      string
	GeminiModel       string

	ImagePath       string
	ListenAddr      string
	RateLimitPerMin float64 // Pipeline steps per minute per client; 0 disables limiting
	RateLimitBurst  int

	BotToken        string // Enables the Telegram bot when set
	AdminTelegramID int64  // Restricts the bot to one user when non-zero
}

// Dir returns the application's config directory path.
// Creates the directory if it doesn't exist.
func Dir() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	configDir := filepath.Join(configBase, AppName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// FilePath returns the full path to the config file.
func FilePath() (string, error) {
	configDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, EnvFileName), nil
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory and from .env in the working directory. Errors are ignored since
// the files may not exist, and variables already set are not overridden.
func LoadEnvFile() {
	if configPath, err := FilePath(); err == nil {
		_ = godotenv.Load(configPath)
	}
	_ = godotenv.Load()
}

// WriteEnvFile merges values into the config file and returns its path.
func WriteEnvFile(values map[string]string) (string, error) {
	configPath, err := FilePath()
	if err != nil {
		return "", err
	}
	if err := writeEnvFile(configPath, values); err != nil {
		return "", err
	}
	return configPath, nil
}

// writeEnvFile merges values into the file at path, keeping keys it already has.
// Uses restrictive permissions (0600) since the file contains secrets.
func writeEnvFile(path string, values map[string]string) error {
	merged, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		merged = make(map[string]string, len(values))
	}
	for key, val := range values {
		merged[key] = val
	}

	content, err := godotenv.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, []byte(content+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads the configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HFToken:          os.Getenv("HF_TOKEN"),
		HFBaseURL:        getenv("HF_BASE_URL", inference.DefaultBaseURL),
		TextToImageModel: getenv("TEXT_TO_IMAGE_MODEL", inference.DefaultTextToImageModel),
		CaptionModel:     getenv("CAPTION_MODEL", inference.DefaultCaptionModel),
		DetectionModel:   getenv("DETECTION_MODEL", inference.DefaultDetectionModel),
		CaptionBackend:   getenv("CAPTION_BACKEND", CaptionBackendHuggingFace),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getenv("GEMINI_MODEL", inference.DefaultGeminiModel),
		ImagePath:        getenv("IMAGE_PATH", storage.DefaultImagePath),
		ListenAddr:       getenv("LISTEN_ADDR", ":8080"),
		BotToken:         os.Getenv("BOT_TOKEN"),
	}

	var err error
	if cfg.HTTPTimeout, err = durationEnv("HTTP_TIMEOUT", inference.DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.CaptionRetryDelay, err = durationEnv("CAPTION_RETRY_DELAY", inference.DefaultCaptionRetryDelay); err != nil {
		return nil, err
	}
	if cfg.CaptionAttempts, err = intEnv("CAPTION_ATTEMPTS", inference.DefaultCaptionAttempts); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMin, err = floatEnv("RATE_LIMIT_PER_MINUTE", 30); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMin < 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %v", cfg.RateLimitPerMin)
	}
	if cfg.RateLimitPerMin > 0 && cfg.RateLimitBurst < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled, got %d", cfg.RateLimitBurst)
	}
	if cfg.CaptionAttempts < 1 {
		return nil, fmt.Errorf("CAPTION_ATTEMPTS must be at least 1, got %d", cfg.CaptionAttempts)
	}

	if s := os.Getenv("ADMIN_TELEGRAM_ID"); s != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID must be a valid integer: %w", err)
		}
	}

	switch cfg.CaptionBackend {
	case CaptionBackendHuggingFace, CaptionBackendGemini:
	default:
		return nil, fmt.Errorf("unknown CAPTION_BACKEND %q", cfg.CaptionBackend)
	}

	return cfg, nil
}

// CheckRequired returns the names of required variables that are missing.
func (c *Config) CheckRequired() []string {
	var missing []string
	if c.HFToken == "" {
		missing = append(missing, "HF_TOKEN")
	}
	if c.CaptionBackend == CaptionBackendGemini && c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	return missing
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

// durationEnv accepts Go durations ("2s", "1m30s") or a bare number of seconds.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
