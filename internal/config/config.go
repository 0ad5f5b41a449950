package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage and task backends.
const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"

	TasksPool = "pool"
	TasksAMQP = "amqp"

	ModeWebhook = "webhook"
	ModePolling = "polling"
)

// DefaultNotificationTypes is used when TELEGRAM_NOTIFICATION_TYPES is not set.
const DefaultNotificationTypes = "mentioned|replied|quoted|private_message|group_mentioned|watching_first_post|posted|linked"

// Config holds the application configuration.
type Config struct {
	AppEnv          string
	Debug           bool
	Version         string
	SentryDSN       string
	HTTPAddr        string
	PublicURL       string
	EnvFile         string
	DefaultLanguage string

	StorageBackend  string
	MongoDBURI      string
	MongoDBDatabase string

	ForumBaseURL     string
	ForumAPIKey      string
	ForumAPIUsername string
	ForumPublicRoot  string
	HostAPIKey       string

	TaskBackend  string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	WorkerCount  int

	MediaTmpDir string
	UpdateMode  string
	DedupTTL    time.Duration

	// Settings is the hot-reloadable part of the configuration.
	Settings Settings
}

// Settings is the snapshot of bridge settings that may change while the process runs.
// Components receive it explicitly instead of reading globals.
type Settings struct {
	Enabled           bool
	BotToken          string
	NotificationTypes []string
	SiteTitle         string
	BaseURL           string
}

// AllowsType reports whether the notification type name is in the allowlist.
func (s *Settings) AllowsType(name string) bool {
	for _, t := range s.NotificationTypes {
		if t == name {
			return true
		}
	}
	return false
}

// LoadConfig loads configuration from environment variables.
// It attempts to load the env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil {
		log.Printf("No %s file found, relying on environment variables", envFile)
	}

	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))

	workers, err := strconv.Atoi(getEnv("WORKER_COUNT", "4"))
	if err != nil || workers < 1 {
		return nil, fmt.Errorf("invalid WORKER_COUNT: %q", os.Getenv("WORKER_COUNT"))
	}

	dedupTTL, err := time.ParseDuration(getEnv("DEDUP_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEDUP_TTL: %w", err)
	}

	settings, err := LoadSettings()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Debug:            debug,
		Version:          getEnv("VERSION", "dev"),
		SentryDSN:        getEnv("SENTRY_DSN", ""),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		PublicURL:        strings.TrimRight(getEnv("PUBLIC_URL", settings.BaseURL), "/"),
		EnvFile:          envFile,
		DefaultLanguage:  getEnv("DEFAULT_LANGUAGE", "en"),
		StorageBackend:   getEnv("STORAGE_BACKEND", StorageMongo),
		MongoDBURI:       getEnv("MONGODB_URI", ""),
		MongoDBDatabase:  getEnv("MONGODB_DATABASE", ""),
		ForumBaseURL:     settings.BaseURL,
		ForumAPIKey:      getEnv("FORUM_API_KEY", ""),
		ForumAPIUsername: getEnv("FORUM_API_USERNAME", "system"),
		ForumPublicRoot:  getEnv("FORUM_PUBLIC_ROOT", "/var/www/discourse/public"),
		HostAPIKey:       getEnv("HOST_API_KEY", ""),
		TaskBackend:      getEnv("TASK_BACKEND", TasksPool),
		AMQPURL:          getEnv("AMQP_URL", ""),
		AMQPExchange:     getEnv("AMQP_EXCHANGE", "forum.tasks"),
		AMQPQueue:        getEnv("AMQP_QUEUE", "telegram-bridge"),
		WorkerCount:      workers,
		MediaTmpDir:      getEnv("MEDIA_TMP_DIR", os.TempDir()),
		UpdateMode:       getEnv("UPDATE_MODE", ModeWebhook),
		DedupTTL:         dedupTTL,
		Settings:         *settings,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}
	if cfg.HostAPIKey == "" {
		log.Println("Warning: HOST_API_KEY is not set. Host endpoints will reject every request.")
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.ForumBaseURL == "" {
		return fmt.Errorf("FORUM_BASE_URL is required")
	}
	if cfg.ForumAPIKey == "" {
		return fmt.Errorf("FORUM_API_KEY is required")
	}
	switch cfg.StorageBackend {
	case StorageMongo:
		if cfg.MongoDBURI == "" {
			return fmt.Errorf("MONGODB_URI is required")
		}
		if cfg.MongoDBDatabase == "" {
			return fmt.Errorf("MONGODB_DATABASE is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	switch cfg.TaskBackend {
	case TasksAMQP:
		if cfg.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when TASK_BACKEND=amqp")
		}
	case TasksPool:
	default:
		return fmt.Errorf("unknown TASK_BACKEND %q", cfg.TaskBackend)
	}
	if cfg.UpdateMode != ModeWebhook && cfg.UpdateMode != ModePolling {
		return fmt.Errorf("unknown UPDATE_MODE %q", cfg.UpdateMode)
	}
	if cfg.Settings.Enabled && cfg.Settings.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when TELEGRAM_ENABLED=true")
	}
	return nil
}

// LoadSettings reads the hot-reloadable settings from the environment.
func LoadSettings() (*Settings, error) {
	enabled, err := strconv.ParseBool(getEnv("TELEGRAM_ENABLED", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ENABLED: %w", err)
	}
	return &Settings{
		Enabled:           enabled,
		BotToken:          getEnv("TELEGRAM_BOT_TOKEN", ""),
		NotificationTypes: splitTypes(getEnv("TELEGRAM_NOTIFICATION_TYPES", DefaultNotificationTypes)),
		SiteTitle:         getEnv("SITE_TITLE", "Forum"),
		BaseURL:           strings.TrimRight(getEnv("FORUM_BASE_URL", ""), "/"),
	}, nil
}

// ReloadSettings re-reads the env file, overriding previously loaded values,
// and returns the new settings snapshot.
func ReloadSettings(envFile string) (*Settings, error) {
	if err := godotenv.Overload(envFile); err != nil {
		return nil, fmt.Errorf("failed to reload %s: %w", envFile, err)
	}
	return LoadSettings()
}

func splitTypes(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, "|") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
