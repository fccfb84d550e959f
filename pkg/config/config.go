package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can say "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full Agora server configuration. Values come from the YAML
// file, then AGORA_* environment overrides, then validation.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Storage       StorageConfig       `yaml:"storage"`
	Redis         RedisConfig         `yaml:"redis"`
	Reporting     ReportingConfig     `yaml:"reporting"`
	Queue         QueueConfig         `yaml:"queue"`
	Retry         RetryConfig         `yaml:"retry"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Cache         CacheConfig         `yaml:"cache"`
	Media         MediaConfig         `yaml:"media"`
	Payments      PaymentsConfig      `yaml:"payments"`
	Idempotency   IdempotencyConfig   `yaml:"idempotency"`
	Impersonation ImpersonationConfig `yaml:"impersonation"`
	Checkout      CheckoutConfig      `yaml:"checkout"`
}

// ServerConfig controls the HTTP listener and host resolution.
type ServerConfig struct {
	Listen          string   `yaml:"listen" validate:"required"`
	BaseDomain      string   `yaml:"base_domain" validate:"required,hostname"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	MaintenanceMode bool     `yaml:"maintenance_mode"`

	// AdminToken authorizes the platform-operator API surface. Empty
	// disables those routes entirely.
	AdminToken string `yaml:"admin_token"`

	// AuthSecret verifies storefront bearer tokens (HMAC). Empty rejects
	// bearer auth; anonymous session traffic is unaffected.
	AuthSecret string `yaml:"auth_secret"`
}

// LogConfig mirrors pkg/log.Config in YAML form.
type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	JSONOutput bool   `yaml:"json_output"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// StorageConfig locates the BoltDB data directory.
type StorageConfig struct {
	DataDir string `yaml:"data_dir" validate:"required"`
}

// RedisConfig selects the optional Redis cache backend. An empty Addr means
// the in-memory cache is used.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ReportingConfig wires the Postgres read model used by reports.
type ReportingConfig struct {
	DSN           string `yaml:"dsn"`
	RefreshCron   string `yaml:"refresh_cron"`
	ExportWorkers int    `yaml:"export_workers" validate:"min=1"`
}

// QueueConfig bounds the job queue and its workers.
type QueueConfig struct {
	Workers      int            `yaml:"workers" validate:"min=1"`
	MaxExecution Duration       `yaml:"max_execution"`
	Bounds       map[string]int `yaml:"bounds"` // per-priority lane capacity
}

// RetryConfig shapes the backoff applied to failed jobs.
type RetryConfig struct {
	MaxAttempts  int      `yaml:"max_attempts" validate:"min=1"`
	InitialDelay Duration `yaml:"initial_delay"`
	Multiplier   float64  `yaml:"multiplier"`
	MaxDelay     Duration `yaml:"max_delay"`
}

// RateLimitConfig is the per-tenant API budget. Window is one minute.
type RateLimitConfig struct {
	RequestsPerMinute int      `yaml:"requests_per_minute" validate:"min=1"`
	IdleEviction      Duration `yaml:"idle_eviction"`
}

// CacheConfig controls the tenant-keyed read cache.
type CacheConfig struct {
	TTL        Duration `yaml:"ttl"`
	HostTTL    Duration `yaml:"host_ttl"`
	MaxEntries int      `yaml:"max_entries"`
}

// MediaConfig bounds uploads and signed downloads.
type MediaConfig struct {
	DefaultQuotaBytes   int64    `yaml:"default_quota_bytes"`
	MaxUploadBytes      int64    `yaml:"max_upload_bytes"`
	PresignTTL          Duration `yaml:"presign_ttl"`
	MaxDownloadAttempts int      `yaml:"max_download_attempts" validate:"min=1"`
	LocalDir            string   `yaml:"local_dir"`
}

// PaymentsConfig points at the external payment provider.
type PaymentsConfig struct {
	BaseURL        string   `yaml:"base_url"`
	Timeout        Duration `yaml:"timeout"`
	RequestsPerSec float64  `yaml:"requests_per_sec"`
	BreakerMaxFail uint32   `yaml:"breaker_max_fail"`
	BreakerCooloff Duration `yaml:"breaker_cooloff"`
	// CredentialPassphrase derives the vault key that seals per-tenant
	// provider credentials at rest. Changing it orphans sealed credentials.
	CredentialPassphrase string `yaml:"credential_passphrase"`
}

// IdempotencyConfig sets how long stored responses replay.
type IdempotencyConfig struct {
	Retention Duration `yaml:"retention"`
}

// ImpersonationConfig bounds operator run-as sessions.
type ImpersonationConfig struct {
	TokenTTL Duration `yaml:"token_ttl"`
}

// CheckoutConfig bounds the checkout saga.
type CheckoutConfig struct {
	StepTimeout    Duration `yaml:"step_timeout"`
	OverallTimeout Duration `yaml:"overall_timeout"`
	ReservationTTL Duration `yaml:"reservation_ttl"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			BaseDomain:      "agora.local",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Log: LogConfig{
			Level:      "info",
			JSONOutput: true,
			MaxSizeMB:  100,
			MaxBackups: 7,
		},
		Storage: StorageConfig{
			DataDir: "/var/lib/agora",
		},
		Reporting: ReportingConfig{
			RefreshCron:   "*/15 * * * *",
			ExportWorkers: 4,
		},
		Queue: QueueConfig{
			Workers:      8,
			MaxExecution: Duration(5 * time.Minute),
			Bounds: map[string]int{
				"CRITICAL": 1000,
				"HIGH":     5000,
				"DEFAULT":  10000,
				"LOW":      10000,
				"BULK":     20000,
			},
		},
		Retry: RetryConfig{
			MaxAttempts:  5,
			InitialDelay: Duration(2 * time.Second),
			Multiplier:   2.0,
			MaxDelay:     Duration(5 * time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
			IdleEviction:      Duration(10 * time.Minute),
		},
		Cache: CacheConfig{
			TTL:        Duration(5 * time.Minute),
			HostTTL:    Duration(2 * time.Minute),
			MaxEntries: 10000,
		},
		Media: MediaConfig{
			DefaultQuotaBytes:   5 << 30, // 5GB
			MaxUploadBytes:      500 << 20,
			PresignTTL:          Duration(24 * time.Hour),
			MaxDownloadAttempts: 5,
			LocalDir:            "/var/lib/agora/media",
		},
		Payments: PaymentsConfig{
			Timeout:        Duration(10 * time.Second),
			RequestsPerSec: 20,
			BreakerMaxFail: 5,
			BreakerCooloff: Duration(30 * time.Second),
		},
		Idempotency: IdempotencyConfig{
			Retention: Duration(30 * time.Minute),
		},
		Impersonation: ImpersonationConfig{
			TokenTTL: Duration(1 * time.Hour),
		},
		Checkout: CheckoutConfig{
			StepTimeout:    Duration(10 * time.Second),
			OverallTimeout: Duration(60 * time.Second),
			ReservationTTL: Duration(30 * time.Minute),
		},
	}
}

// Load reads the YAML file at path (if it exists), applies AGORA_*
// environment overrides, and validates the result. A missing file is not an
// error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and cross-field rules.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Retry.Multiplier < 1 {
		return fmt.Errorf("invalid config: retry multiplier must be >= 1, got %v", cfg.Retry.Multiplier)
	}
	for lane, bound := range cfg.Queue.Bounds {
		if bound < 1 {
			return fmt.Errorf("invalid config: queue bound for %s must be >= 1, got %d", lane, bound)
		}
	}
	return nil
}

// applyEnv overlays AGORA_* environment variables. Only operationally
// sensitive knobs are exposed; everything else stays file-driven.
func applyEnv(cfg *Config) {
	if v := os.Getenv("AGORA_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("AGORA_BASE_DOMAIN"); v != "" {
		cfg.Server.BaseDomain = v
	}
	if v := os.Getenv("AGORA_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("AGORA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AGORA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AGORA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AGORA_REPORTING_DSN"); v != "" {
		cfg.Reporting.DSN = v
	}
	if v := os.Getenv("AGORA_PAYMENTS_URL"); v != "" {
		cfg.Payments.BaseURL = v
	}
	if v := os.Getenv("AGORA_CREDENTIAL_PASSPHRASE"); v != "" {
		cfg.Payments.CredentialPassphrase = v
	}
	if v := os.Getenv("AGORA_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("AGORA_AUTH_SECRET"); v != "" {
		cfg.Server.AuthSecret = v
	}
	if v := os.Getenv("AGORA_MAINTENANCE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.MaintenanceMode = b
		}
	}
	if v := os.Getenv("AGORA_RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.RequestsPerMinute = n
		}
	}
}
