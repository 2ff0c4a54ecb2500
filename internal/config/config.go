package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration for the desk.
type Config struct {
	Voice    VoiceConfig
	Bookings BookingsConfig
	Logging  LoggingConfig

	// EnvFile is the dotenv file that was loaded, empty when none was found.
	EnvFile string
}

type VoiceConfig struct {
	PublicKey         string
	AssistantID       string
	APIBaseURL        string
	HandshakeTimeout  time.Duration
	DedupeTranscripts bool
	ErrorSuffix       string
	BookingToolName   string
}

type BookingsConfig struct {
	APIBaseURL  string
	AdminKey    string
	AdminPIN    string
	PageSize    int
	Status      string
	HTTPTimeout time.Duration
}

type LoggingConfig struct {
	Level       string
	Development bool
}

// Load resolves configuration from an optional dotenv file, environment
// variables and defaults. Variables already present in the environment win
// over the file.
func Load() (Config, error) {
	envFile := envOrDefault("NOVA_ENV_FILE", ".env")
	loaded := envFile
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		loaded = ""
	}

	cfg := Config{
		Voice: VoiceConfig{
			PublicKey:         firstNonEmpty(os.Getenv("VAPI_PUBLIC_KEY"), os.Getenv("VITE_VAPI_PUBLIC_KEY")),
			AssistantID:       firstNonEmpty(os.Getenv("VAPI_ASSISTANT_ID"), os.Getenv("VITE_VAPI_ASSISTANT_ID")),
			APIBaseURL:        envOrDefault("VAPI_API_BASE", "https://api.vapi.ai"),
			HandshakeTimeout:  time.Duration(envOrDefaultInt("NOVA_HANDSHAKE_TIMEOUT_MS", 30000)) * time.Millisecond,
			DedupeTranscripts: envOrDefaultBool("NOVA_DEDUPE_TRANSCRIPTS", true),
			ErrorSuffix:       os.Getenv("NOVA_ERROR_SUFFIX"),
			BookingToolName:   envOrDefault("NOVA_BOOKING_TOOL", "create-booking"),
		},
		Bookings: BookingsConfig{
			APIBaseURL:  envOrDefault("RENTACAR_API_BASE", "http://localhost:3000"),
			AdminKey:    firstNonEmpty(os.Getenv("ADMIN_KEY"), os.Getenv("VITE_ADMIN_KEY"), "RENTACAR_ELITE_2026"),
			AdminPIN:    envOrDefault("NOVA_ADMIN_PIN", "123"),
			PageSize:    envOrDefaultInt("NOVA_BOOKINGS_PAGE_SIZE", 10),
			Status:      envOrDefault("NOVA_BOOKINGS_STATUS", "booked"),
			HTTPTimeout: time.Duration(envOrDefaultInt("NOVA_HTTP_TIMEOUT_MS", 10000)) * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:       strings.ToLower(envOrDefault("NOVA_LOG_LEVEL", "info")),
			Development: envOrDefaultBool("NOVA_LOG_DEVELOPMENT", false),
		},
		EnvFile: loaded,
	}

	if cfg.Voice.HandshakeTimeout <= 0 {
		cfg.Voice.HandshakeTimeout = 30 * time.Second
	}
	if cfg.Bookings.PageSize <= 0 {
		cfg.Bookings.PageSize = 10
	}
	if cfg.Bookings.HTTPTimeout <= 0 {
		cfg.Bookings.HTTPTimeout = 10 * time.Second
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
