package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Precedence is env > file >
// struct defaults: a YAML file (if PAYGATE_CONFIG_FILE is set) is parsed
// first to seed values, then environment variables are overlaid on top.
type Config struct {
	// Server
	Host string `yaml:"host" env:"PAYGATE_HOST" envDefault:"0.0.0.0"`
	Port int    `yaml:"port" env:"PAYGATE_PORT" envDefault:"8080"`

	// Logging
	LogLevel  string `yaml:"logLevel" env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `yaml:"logFormat" env:"LOG_FORMAT" envDefault:"json"`

	// Telemetry
	MetricsPath string `yaml:"metricsPath" env:"METRICS_PATH" envDefault:"/metrics"`

	// CORS (mini-app invoice endpoint is called from an embedded webview)
	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins" env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Redis is optional: when set, it backs the token bucket store instead
	// of the in-memory reference implementation. The dispatcher dedup set
	// and the suspicious-IP store stay in-memory either way.
	RedisURL string `yaml:"redisURL" env:"REDIS_URL"`

	// Platform (the messaging platform this gateway integrates with)
	BotToken          string `yaml:"botToken" env:"PLATFORM_BOT_TOKEN"`
	Mode              string `yaml:"mode" env:"PLATFORM_MODE" envDefault:"webhook"` // webhook | long_polling
	WebhookPath       string `yaml:"webhookPath" env:"PLATFORM_WEBHOOK_PATH" envDefault:"/telegram/webhook"`
	WebhookSecretToken string `yaml:"webhookSecretToken" env:"PLATFORM_WEBHOOK_SECRET_TOKEN"`
	AdminToken        string `yaml:"adminToken" env:"ADMIN_TOKEN"`
	PublicBaseURL     string `yaml:"publicBaseURL" env:"PUBLIC_BASE_URL"`

	// Payments
	Currency             string `yaml:"currency" env:"PAYMENTS_CURRENCY" envDefault:"XTR"`
	TitlePrefix          string `yaml:"titlePrefix" env:"PAYMENTS_TITLE_PREFIX"`
	ReceiptEnabled       bool   `yaml:"receiptEnabled" env:"PAYMENTS_RECEIPT_ENABLED" envDefault:"true"`
	BusinessConnectionID string `yaml:"businessConnectionId" env:"PAYMENTS_BUSINESS_CONNECTION_ID"`

	// Antifraud: IP-keyed rate limit
	AntifraudIPEnabled     bool    `yaml:"antifraudIPEnabled" env:"ANTIFRAUD_IP_ENABLED" envDefault:"true"`
	AntifraudIPRPS         float64 `yaml:"antifraudIPRPS" env:"ANTIFRAUD_IP_RPS" envDefault:"2"`
	AntifraudIPCapacity    float64 `yaml:"antifraudIPCapacity" env:"ANTIFRAUD_IP_CAPACITY" envDefault:"10"`
	AntifraudIPTTLSeconds  int64   `yaml:"antifraudIPTTLSeconds" env:"ANTIFRAUD_IP_TTL_SECONDS" envDefault:"3600"`

	// Antifraud: subject-keyed (authenticated user) rate limit
	AntifraudSubjectEnabled    bool    `yaml:"antifraudSubjectEnabled" env:"ANTIFRAUD_SUBJECT_ENABLED" envDefault:"true"`
	AntifraudSubjectRPS        float64 `yaml:"antifraudSubjectRPS" env:"ANTIFRAUD_SUBJECT_RPS" envDefault:"1"`
	AntifraudSubjectCapacity   float64 `yaml:"antifraudSubjectCapacity" env:"ANTIFRAUD_SUBJECT_CAPACITY" envDefault:"5"`
	AntifraudSubjectTTLSeconds int64   `yaml:"antifraudSubjectTTLSeconds" env:"ANTIFRAUD_SUBJECT_TTL_SECONDS" envDefault:"3600"`

	AntifraudTrustProxy           bool     `yaml:"antifraudTrustProxy" env:"ANTIFRAUD_TRUST_PROXY" envDefault:"false"`
	AntifraudIncludePaths         []string `yaml:"antifraudIncludePaths" env:"ANTIFRAUD_INCLUDE_PATHS" envSeparator:","`
	AntifraudExcludePaths         []string `yaml:"antifraudExcludePaths" env:"ANTIFRAUD_EXCLUDE_PATHS" envSeparator:","`
	AntifraudRetryAfterSeconds    int64    `yaml:"antifraudRetryAfterSeconds" env:"ANTIFRAUD_RETRY_AFTER" envDefault:"1"`
	AntifraudBanDefaultTTLSeconds int64    `yaml:"antifraudBanDefaultTTLSeconds" env:"ANTIFRAUD_BAN_DEFAULT_TTL_SECONDS" envDefault:"86400"`

	// RNG / fairness
	FairnessKey string `yaml:"fairnessKey" env:"FAIRNESS_KEY"`
	RNGStorage  string `yaml:"rngStorage" env:"RNG_STORAGE" envDefault:"memory"` // memory | file | db
	RNGDataDir  string `yaml:"rngDataDir" env:"RNG_DATA_DIR" envDefault:"./data/rng"`
	RNGDBURL    string `yaml:"rngDBURL" env:"RNG_DB_URL"`
	RNGDBUser   string `yaml:"rngDBUser" env:"RNG_DB_USER"`
	RNGDBPass   string `yaml:"rngDBPass" env:"RNG_DB_PASSWORD"`

	// Economy: paygate does not own the case catalog (spec treats it as an
	// external collaborator), but needs something to serve out of the box.
	// EconomyCasesFile, when set, points at a small YAML case list; when
	// unset a single built-in placeholder case is used.
	EconomyCasesFile string `yaml:"economyCasesFile" env:"ECONOMY_CASES_FILE"`
}

// Load reads configuration from an optional YAML file and then overlays
// environment variables on top (env wins ties with the file; the file
// wins ties with the struct's zero value, since env.Parse only applies
// envDefault when the field is still at its zero value).
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("PAYGATE_CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file %q: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
