package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string `env:"DB_HOST"`
	Port               string `env:"DB_PORT" envDefault:"5432"`
	User               string `env:"DB_USER"`
	Password           string `env:"DB_PASSWORD"`
	Name               string `env:"DB_NAME"`
	SSLMode            string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns       int    `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns       int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetimeSec int    `env:"DB_CONN_MAX_LIFETIME_SEC" envDefault:"300"`
}

// MinIOConfig holds object storage settings for MinIO.
// Only required when pending registrations are kept in a bucket.
type MinIOConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"outbox-pending"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

// BoardConfig points at the Kaiten board that drives the workflow.
type BoardConfig struct {
	BaseURL            string        `env:"KAITEN_API_URL"`
	Token              string        `env:"KAITEN_API_TOKEN"`
	BoardID            int64         `env:"KAITEN_BOARD_ID"`
	LaneID             int64         `env:"KAITEN_LANE_ID"`
	ColumnToSignID     int64         `env:"KAITEN_COLUMN_TO_SIGN_ID"`
	ColumnOutboxID     int64         `env:"KAITEN_COLUMN_OUTBOX_ID"`
	PropertyOutgoingNo string        `env:"KAITEN_PROPERTY_OUTGOING_NO"`
	PropertyOutgoingDt string        `env:"KAITEN_PROPERTY_OUTGOING_DATE"`
	ExecutorMemberType int           `env:"KAITEN_EXECUTOR_MEMBER_TYPE" envDefault:"2"`
	PageSize           int           `env:"KAITEN_PAGE_SIZE" envDefault:"100"`
	MaxPages           int           `env:"KAITEN_MAX_PAGES" envDefault:"10"`
	PollInterval       time.Duration `env:"KAITEN_POLL_INTERVAL" envDefault:"30s"`
	RequestTimeout     time.Duration `env:"KAITEN_REQUEST_TIMEOUT" envDefault:"15s"`
	RateRPS            float64       `env:"KAITEN_RATE_RPS" envDefault:"5"`
	RateBurst          int           `env:"KAITEN_RATE_BURST" envDefault:"10"`
	CacheTTL           time.Duration `env:"KAITEN_CACHE_TTL" envDefault:"30s"`
	CacheSize          int           `env:"KAITEN_CACHE_SIZE" envDefault:"512"`
}

// NumberingConfig controls the rule table and allocator scope.
type NumberingConfig struct {
	RulesPath string `env:"NUMBERING_RULES_PATH" envDefault:"config/numbering_rules.json"`
	// Scope is "global" (one sequence shared by every executor) or
	// "per_executor" (independent sequences keyed by executor code).
	Scope string `env:"NUMBERING_SCOPE" envDefault:"global"`
}

// RendererConfig drives the headless office converter.
type RendererConfig struct {
	Binary      string        `env:"SOFFICE_PATH" envDefault:"soffice"`
	Timeout     time.Duration `env:"RENDER_TIMEOUT" envDefault:"60s"`
	Concurrency int64         `env:"RENDER_CONCURRENCY" envDefault:"2"`
	WorkDir     string        `env:"RENDER_WORK_DIR"`
}

// SigningConfig selects how detached signatures are produced and checked.
type SigningConfig struct {
	Mode       string        `env:"SIGN_MODE" envDefault:"remote"`
	VerifyMode string        `env:"SIGN_VERIFY_MODE" envDefault:"pkcs7"`
	Binary     string        `env:"CRYPTCP_PATH" envDefault:"cryptcp"`
	Thumbprint string        `env:"SIGN_THUMBPRINT"`
	Timeout    time.Duration `env:"SIGN_TIMEOUT" envDefault:"30s"`
	CertSerial string        `env:"SIGN_CERT_SERIAL"`
	CertOwner  string        `env:"SIGN_CERT_OWNER"`
	CertIssuer string        `env:"SIGN_CERT_ISSUER"`
	ValidFrom  string        `env:"SIGN_CERT_VALID_FROM"`
	ValidTo    string        `env:"SIGN_CERT_VALID_TO"`
	StampImage string        `env:"STAMP_IMAGE_PATH"`
}

// FilesConfig locates templates and the outgoing artifact tree.
type FilesConfig struct {
	OutgoingPath       string `env:"OUTGOING_FILES_PATH" envDefault:"./data/outgoing"`
	TemplatePrefix     string `env:"TEMPLATE_PREFIX" envDefault:"исх_"`
	TemplateMaxBytes   int64  `env:"TEMPLATE_MAX_BYTES" envDefault:"52428800"`
	SynthesizeTemplate bool   `env:"TEMPLATE_SYNTHESIZE" envDefault:"false"`
}

// PendingConfig controls where prepared-but-uncommitted registrations live.
type PendingConfig struct {
	Backend       string        `env:"PENDING_BACKEND" envDefault:"local"`
	Dir           string        `env:"PENDING_DIR" envDefault:"./data/pending"`
	TTL           time.Duration `env:"PENDING_TTL" envDefault:"72h"`
	SweepInterval time.Duration `env:"PENDING_SWEEP_INTERVAL" envDefault:"1h"`
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost   string `env:"APP_HOST" envDefault:"localhost:8080"`
	Port      string `env:"PORT" envDefault:"8080"`
	Timezone  string `env:"APP_TIMEZONE" envDefault:"Europe/Moscow"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	Database  DatabaseConfig
	MinIO     MinIOConfig
	Board     BoardConfig
	Numbering NumberingConfig
	Renderer  RendererConfig
	Signing   SigningConfig
	Files     FilesConfig
	Pending   PendingConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would only fail later at request time.
func (c *AppConfig) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: APP_TIMEZONE %q: %w", c.Timezone, err)
	}
	switch c.Numbering.Scope {
	case "global", "per_executor":
	default:
		return fmt.Errorf("config: NUMBERING_SCOPE must be global or per_executor, got %q", c.Numbering.Scope)
	}
	switch c.Signing.Mode {
	case "local", "remote":
	default:
		return fmt.Errorf("config: SIGN_MODE must be local or remote, got %q", c.Signing.Mode)
	}
	switch c.Signing.VerifyMode {
	case "pkcs7", "cryptcp", "none":
	default:
		return fmt.Errorf("config: SIGN_VERIFY_MODE must be pkcs7, cryptcp or none, got %q", c.Signing.VerifyMode)
	}
	switch c.Pending.Backend {
	case "local":
	case "minio":
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("config: MINIO_ENDPOINT is required when PENDING_BACKEND=minio")
		}
	default:
		return fmt.Errorf("config: PENDING_BACKEND must be local or minio, got %q", c.Pending.Backend)
	}
	if c.Renderer.Concurrency < 1 {
		c.Renderer.Concurrency = 1
	}
	return nil
}

// Location returns the configured business timezone. Validate guarantees it loads.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
