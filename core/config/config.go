package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// HandleTimeout bounds the processing of a single update.
	HandleTimeout time.Duration `yaml:"handle_timeout" envconfig:"TELEGRAM_HANDLE_TIMEOUT"`
	// AsyncSend routes outbound messages through the sender dispatcher.
	AsyncSend bool `yaml:"async_send" envconfig:"TELEGRAM_ASYNC_SEND"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL         string        `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen      string        `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port        int           `yaml:"port" envconfig:"WEBHOOK_PORT"`
	Path        string        `yaml:"path" envconfig:"WEBHOOK_PATH"`
	SecretToken string        `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
	AckTimeout  time.Duration `yaml:"ack_timeout" envconfig:"WEBHOOK_ACK_TIMEOUT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample" envconfig:"LOG_DEBUG_SAMPLE"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file" envconfig:"LOG_FILE"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	Burst          int      `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// SheetsConfig describes access to the master spreadsheet.
type SheetsConfig struct {
	// CredentialsJSON is the service account key; it must contain client_email and private_key.
	CredentialsJSON     string        `yaml:"credentials_json" envconfig:"GOOGLE_CREDENTIALS"`
	CredentialsFile     string        `yaml:"credentials_file" envconfig:"GOOGLE_CREDENTIALS_FILE"`
	MasterSpreadsheetID string        `yaml:"master_spreadsheet_id" envconfig:"MASTER_SPREADSHEET_ID"`
	MasterSheet         string        `yaml:"master_sheet" envconfig:"MASTER_SHEET_NAME"`
	Timeout             time.Duration `yaml:"timeout" envconfig:"SHEETS_TIMEOUT"`
	VerifyTimeout       time.Duration `yaml:"verify_timeout" envconfig:"SHEETS_VERIFY_TIMEOUT"`

	// ClientEmail is filled by Normalize from the credentials.
	ClientEmail string `yaml:"-" ignored:"true"`
}

// RedisConfig points at the Redis session backend.
type RedisConfig struct {
	URL      string `yaml:"url" envconfig:"REDIS_URL"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
}

// SessionConfig selects and tunes the session backend.
type SessionConfig struct {
	Backend   string        `yaml:"backend" envconfig:"SESSION_BACKEND"`
	TTL       time.Duration `yaml:"ttl" envconfig:"SESSION_TTL"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"SESSION_TIMEOUT"`
	KeyPrefix string        `yaml:"key_prefix" envconfig:"SESSION_KEY_PREFIX"`
	Redis     RedisConfig   `yaml:"redis"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

const (
	// SessionMemory keeps sessions in process memory.
	SessionMemory = "memory"
	// SessionRedis keeps sessions in Redis.
	SessionRedis = "redis"
	// SessionPostgres keeps sessions in Postgres.
	SessionPostgres = "postgres"
)

const (
	defaultWebhookPort    = 8080
	defaultWebhookPath    = "/api/bot"
	defaultAckTimeout     = 8 * time.Second
	defaultHandleTimeout  = 25 * time.Second
	defaultMasterSheet    = "Registrations"
	defaultSheetsTimeout  = 10 * time.Second
	defaultVerifyTimeout  = 5 * time.Second
	defaultSessionTTL     = 30 * 24 * time.Hour
	defaultSessionTimeout = 2 * time.Second
	defaultSessionPrefix  = "sheetbot:session:"
)

// Config aggregates the bot configuration.
type Config struct {
	Env       string          `yaml:"env" envconfig:"APP_ENV"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sheets    SheetsConfig    `yaml:"sheets"`
	Session   SessionConfig   `yaml:"session"`
	Database  DatabaseConfig  `yaml:"database"`
}

// CoreConfig satisfies the cmd runner's ConfigCarrier.
func (c *Config) CoreConfig() *Config { return c }

// Load reads configuration from an optional YAML file and environment variables.
// An empty path loads from the environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.Telegram.HandleTimeout <= 0 {
		cfg.Telegram.HandleTimeout = defaultHandleTimeout
	}

	if err := normalizeRunMode(cfg); err != nil {
		return err
	}
	if err := normalizeRateLimit(&cfg.RateLimit); err != nil {
		return err
	}
	if err := normalizeSheets(&cfg.Sheets); err != nil {
		return err
	}
	if err := normalizeSession(cfg); err != nil {
		return err
	}
	return nil
}

func normalizeRunMode(cfg *Config) error {
	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeWebhook
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if cfg.Webhook.Port == 0 {
			cfg.Webhook.Port = defaultWebhookPort
		}
		if cfg.Webhook.Port < 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
		path := strings.TrimSpace(cfg.Webhook.Path)
		if path == "" {
			path = defaultWebhookPath
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		cfg.Webhook.Path = path
		if cfg.Webhook.AckTimeout <= 0 {
			cfg.Webhook.AckTimeout = defaultAckTimeout
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

func normalizeRateLimit(rl *RateLimitConfig) error {
	if rl.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}
	if rl.Burst <= 0 {
		rl.Burst = 1
	}
	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range rl.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		rl.ExcludeUpdates[i] = key
	}
	return nil
}

// ServiceAccount holds the fields the bot needs from a service account key.
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

func normalizeSheets(sc *SheetsConfig) error {
	if strings.TrimSpace(sc.MasterSpreadsheetID) == "" {
		return fmt.Errorf("sheets.master_spreadsheet_id is required")
	}
	if strings.TrimSpace(sc.MasterSheet) == "" {
		sc.MasterSheet = defaultMasterSheet
	}
	if sc.Timeout <= 0 {
		sc.Timeout = defaultSheetsTimeout
	}
	if sc.VerifyTimeout <= 0 {
		sc.VerifyTimeout = defaultVerifyTimeout
	}

	raw := strings.TrimSpace(sc.CredentialsJSON)
	if raw == "" && strings.TrimSpace(sc.CredentialsFile) != "" {
		data, err := os.ReadFile(sc.CredentialsFile)
		if err != nil {
			return fmt.Errorf("failed to read sheets credentials file: %w", err)
		}
		raw = string(data)
	}
	if raw == "" {
		return fmt.Errorf("sheets credentials are required (GOOGLE_CREDENTIALS or GOOGLE_CREDENTIALS_FILE)")
	}
	normalized, key, err := NormalizeCredentials(raw)
	if err != nil {
		return err
	}
	sc.CredentialsJSON = normalized
	sc.ClientEmail = key.ClientEmail
	return nil
}

// NormalizeCredentials validates a service account JSON blob and unescapes
// literal "\n" sequences in private_key, which is how keys usually arrive via env.
func NormalizeCredentials(raw string) (string, ServiceAccount, error) {
	var key ServiceAccount
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", key, fmt.Errorf("invalid sheets credentials JSON: %w", err)
	}
	email, _ := doc["client_email"].(string)
	pk, _ := doc["private_key"].(string)
	if strings.TrimSpace(email) == "" {
		return "", key, errors.New("sheets credentials: client_email is required")
	}
	if strings.TrimSpace(pk) == "" {
		return "", key, errors.New("sheets credentials: private_key is required")
	}
	if strings.Contains(pk, `\n`) {
		pk = strings.ReplaceAll(pk, `\n`, "\n")
		doc["private_key"] = pk
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return "", key, fmt.Errorf("encode sheets credentials: %w", err)
	}
	key.ClientEmail = email
	key.PrivateKey = pk
	return string(out), key, nil
}

func normalizeSession(cfg *Config) error {
	sc := &cfg.Session
	backend := strings.ToLower(strings.TrimSpace(sc.Backend))
	if backend == "" {
		backend = SessionMemory
		if strings.TrimSpace(sc.Redis.URL) != "" {
			backend = SessionRedis
		}
	}
	switch backend {
	case SessionMemory:
	case SessionRedis:
		if strings.TrimSpace(sc.Redis.URL) == "" {
			return fmt.Errorf("session.redis.url is required when session.backend is 'redis'")
		}
	case SessionPostgres:
		normalizeDatabase(&cfg.Database)
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required when session.backend is 'postgres'")
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, redis, postgres", sc.Backend)
	}
	sc.Backend = backend
	if sc.TTL <= 0 {
		sc.TTL = defaultSessionTTL
	}
	if sc.Timeout <= 0 {
		sc.Timeout = defaultSessionTimeout
	}
	if sc.KeyPrefix == "" {
		sc.KeyPrefix = defaultSessionPrefix
	}
	return nil
}

func normalizeDatabase(db *DatabaseConfig) {
	if db.Port == "" {
		db.Port = "5432"
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}
	if db.MaxConnections <= 0 {
		db.MaxConnections = 5
	}
}
