package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds the bot credential, the operator identity and the update mode.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"ADMIN_IDENTITY"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings. URL is derived from Hostname and Path when empty.
type WebhookConfig struct {
	Hostname string `yaml:"hostname" envconfig:"WEBHOOK_HOSTNAME"`
	Path     string `yaml:"path" envconfig:"WEBHOOK_PATH"`
	URL      string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen   string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port     int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// StorageConfig selects the attendee table backend.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	// Path is the spreadsheet file for xlsx and the database file for sqlite.
	Path  string `yaml:"path" envconfig:"STORAGE_PATH"`
	Sheet string `yaml:"sheet" envconfig:"STORAGE_SHEET"`
}

// DatabaseConfig holds postgres connection settings for the postgres storage driver.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// SenderConfig tunes the asynchronous outbound queue used for operator notifications.
type SenderConfig struct {
	Workers      int `yaml:"workers" envconfig:"SENDER_WORKERS"`
	QueueSize    int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	MaxRetries   int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoff int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
}

// BroadcastConfig bounds a single broadcast send.
type BroadcastConfig struct {
	SendTimeoutMS int `yaml:"send_timeout_ms" envconfig:"BROADCAST_SEND_TIMEOUT_MS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// DriverXLSX keeps attendees in a spreadsheet file.
	DriverXLSX = "xlsx"
	// DriverSQLite keeps attendees in an sqlite database file.
	DriverSQLite = "sqlite"
	// DriverPostgres keeps attendees in postgres.
	DriverPostgres = "postgres"
)

const (
	defaultWebhookPath     = "/telegram/webhook"
	defaultStoragePath     = "webinar_registrations.xlsx"
	defaultSQLitePath      = "webinar_registrations.db"
	defaultSheet           = "Registrations"
	defaultSendTimeoutMS   = 5000
	defaultWebhookListen   = "0.0.0.0"
	defaultWebhookPort     = 8080
	defaultPostgresSSLMode = "disable"
)

// Config aggregates the whole service configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Sender    SenderConfig    `yaml:"sender"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load reads configuration from an optional YAML file and environment variables.
// A missing file is not an error: env-only deployments are supported.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := Normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStorage reads the same sources as Load but only validates the storage
// sections. Offline tools use it without bot credentials.
func LoadStorage(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := normalizeStorage(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		}
	}
	unsetBlankEnv(envKeys(reflect.TypeOf(cfg), ""))
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	return &cfg, nil
}

// unsetBlankEnv drops config variables set to an empty string, as a .env file with
// "BOT_TOKEN=" does, so they neither fail number parsing nor hide YAML values.
func unsetBlankEnv(keys []string) {
	for _, key := range keys {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) == "" {
			_ = os.Unsetenv(key)
		}
	}
}

// envKeys lists the names envconfig looks up for t: the envconfig tag and its
// form prefixed by the enclosing struct field, or that prefixed field name alone
// for untagged fields.
func envKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := range t.NumField() {
		field := t.Field(i)
		if field.Type.Kind() == reflect.Struct {
			keys = append(keys, envKeys(field.Type, strings.ToUpper(field.Name))...)
			continue
		}
		tag := field.Tag.Get("envconfig")
		if tag == "" {
			if prefix != "" {
				keys = append(keys, prefix+"_"+strings.ToUpper(field.Name))
			}
			continue
		}
		keys = append(keys, tag)
		if prefix != "" {
			keys = append(keys, prefix+"_"+tag)
		}
	}
	return keys
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.AdminID == 0 {
		return fmt.Errorf("telegram.admin_id is required")
	}

	if err := normalizeRunMode(cfg); err != nil {
		return err
	}
	if err := normalizeStorage(cfg); err != nil {
		return err
	}

	if cfg.Broadcast.SendTimeoutMS <= 0 {
		cfg.Broadcast.SendTimeoutMS = defaultSendTimeoutMS
	}
	return nil
}

func normalizeRunMode(cfg *Config) error {
	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	switch rm {
	case "", "polling":
		rm = RunModeLongpoll
	case "callback":
		rm = RunModeWebhook
	}
	switch rm {
	case RunModeWebhook:
		wh := &cfg.Webhook
		wh.Path = strings.TrimSpace(wh.Path)
		if wh.Path == "" {
			wh.Path = defaultWebhookPath
		}
		if !strings.HasPrefix(wh.Path, "/") {
			wh.Path = "/" + wh.Path
		}
		if strings.TrimSpace(wh.URL) == "" {
			host := strings.TrimSpace(wh.Hostname)
			if host == "" {
				return fmt.Errorf("webhook.hostname or webhook.url is required when telegram.run_mode is 'webhook'")
			}
			host = strings.TrimSuffix(strings.TrimPrefix(host, "https://"), "/")
			wh.URL = "https://" + host + wh.Path
		}
		if strings.TrimSpace(wh.Listen) == "" {
			wh.Listen = defaultWebhookListen
		}
		if wh.Port == 0 {
			wh.Port = defaultWebhookPort
		}
		if wh.Port < 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

func normalizeStorage(cfg *Config) error {
	st := &cfg.Storage
	st.Driver = strings.ToLower(strings.TrimSpace(st.Driver))
	st.Path = strings.TrimSpace(st.Path)
	switch st.Driver {
	case "", DriverXLSX:
		st.Driver = DriverXLSX
		if st.Path == "" {
			st.Path = defaultStoragePath
		}
		if strings.TrimSpace(st.Sheet) == "" {
			st.Sheet = defaultSheet
		}
	case DriverSQLite:
		if st.Path == "" {
			st.Path = defaultSQLitePath
		}
	case DriverPostgres:
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for the postgres storage driver")
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = defaultPostgresSSLMode
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 4
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: xlsx, sqlite, postgres", cfg.Storage.Driver)
	}
	return nil
}
