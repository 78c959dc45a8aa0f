// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"supplier_dispute_backend/platform/validator"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// SheetConfig provides settings for the dispute tracking sheet.
type SheetConfig interface {
	GetSheetBaseURL() string
	GetSheetAPIToken() string
	GetSheetID() string
	GetSheetColumns() SheetColumns
}

// ProfileConfig provides settings for the customer profile service.
type ProfileConfig interface {
	GetProfileBaseURL() string
	GetProfileAPIKey() string
}

// WarehouseConfig provides settings for the log warehouse.
type WarehouseConfig interface {
	GetWarehouseDatabaseURL() string
	GetWarehouseQueryFile() string
	GetWarehouseRowCap() int
}

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// AuditConfig provides settings for the audit trail store.
type AuditConfig interface {
	GetAuditDatabaseURL() string
	GetAuditSQLitePath() string
}

// ExportConfig provides settings for per-dispute log exports.
type ExportConfig interface {
	GetExportDir() string
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketDisputeExports() string
	IsMinIOEnabled() bool
}

// HTTPClientConfig provides settings shared by outbound HTTP clients.
type HTTPClientConfig interface {
	GetExternalTimeout() time.Duration
	GetExternalRateLimit() float64
}

// RetryConfig provides the retry budget for external boundaries.
type RetryConfig interface {
	GetRetryMaxAttempts() int
	GetRetryBaseDelay() time.Duration
	GetRetryMaxDelay() time.Duration
}

// RunnerConfig provides settings for the dispute orchestrator.
type RunnerConfig interface {
	RetryConfig
	GetDisputeConcurrency() int
	GetRulesFile() string
}

// SchedulerConfig provides settings for asynq-backed scheduled runs.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetDisputeRunCron() string
	GetRunLockTTL() time.Duration
}

// EmailConfig provides settings for mailing run reports.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetReportRecipients() []string
	IsReportEmailEnabled() bool
}

// SheetColumns names the sheet columns the engine reads and writes.
type SheetColumns struct {
	Notes            string `validate:"required"`
	SupplierComments string `validate:"required"`
	Status           string `validate:"required"`
	Completion       string `validate:"required"`
	ClientReference  string `validate:"required"`
}

// DSN adapts a bare connection string to DatabaseConfig.
type DSN string

func (d DSN) GetDatabaseURL() string { return string(d) }

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env string

	SheetBaseURL  string `validate:"required,url"`
	SheetAPIToken string `validate:"required"`
	SheetID       string `validate:"required"`
	SheetColumns  SheetColumns

	ProfileBaseURL string `validate:"required,url"`
	ProfileAPIKey  string `validate:"required"`

	WarehouseDatabaseURL string `validate:"required"`
	WarehouseQueryFile   string
	WarehouseRowCap      int `validate:"min=1"`

	AuditDatabaseURL string
	AuditSQLitePath  string `validate:"required_without=AuditDatabaseURL"`

	ExportDir string `validate:"required"`

	MinIOEndpoint             string
	MinIOAccessKey            string `validate:"required_with=MinIOEndpoint"`
	MinIOSecretKey            string `validate:"required_with=MinIOEndpoint"`
	MinIOUseSSL               bool
	MinioBucketDisputeExports string

	ExternalTimeout   time.Duration `validate:"gt=0"`
	ExternalRateLimit float64       `validate:"gt=0"`

	RetryMaxAttempts   int           `validate:"min=1,max=10"`
	RetryBaseDelay     time.Duration `validate:"gte=0"`
	RetryMaxDelay      time.Duration `validate:"gte=0"`
	DisputeConcurrency int           `validate:"min=1,max=64"`
	RulesFile          string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int
	DisputeRunCron   string
	RunLockTTL       time.Duration

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string `validate:"omitempty,email"`
	ReportRecipients []string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// SheetConfig
func (c *Config) GetSheetBaseURL() string       { return c.SheetBaseURL }
func (c *Config) GetSheetAPIToken() string      { return c.SheetAPIToken }
func (c *Config) GetSheetID() string            { return c.SheetID }
func (c *Config) GetSheetColumns() SheetColumns { return c.SheetColumns }

// ProfileConfig
func (c *Config) GetProfileBaseURL() string { return c.ProfileBaseURL }
func (c *Config) GetProfileAPIKey() string  { return c.ProfileAPIKey }

// WarehouseConfig
func (c *Config) GetWarehouseDatabaseURL() string { return c.WarehouseDatabaseURL }
func (c *Config) GetWarehouseQueryFile() string   { return c.WarehouseQueryFile }
func (c *Config) GetWarehouseRowCap() int         { return c.WarehouseRowCap }

// AuditConfig
func (c *Config) GetAuditDatabaseURL() string { return c.AuditDatabaseURL }
func (c *Config) GetAuditSQLitePath() string  { return c.AuditSQLitePath }

// ExportConfig
func (c *Config) GetExportDir() string { return c.ExportDir }

// MinIOConfig
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketDisputeExports() string {
	return c.MinioBucketDisputeExports
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// HTTPClientConfig
func (c *Config) GetExternalTimeout() time.Duration { return c.ExternalTimeout }
func (c *Config) GetExternalRateLimit() float64     { return c.ExternalRateLimit }

// RunnerConfig
func (c *Config) GetRetryMaxAttempts() int         { return c.RetryMaxAttempts }
func (c *Config) GetRetryBaseDelay() time.Duration { return c.RetryBaseDelay }
func (c *Config) GetRetryMaxDelay() time.Duration  { return c.RetryMaxDelay }
func (c *Config) GetDisputeConcurrency() int       { return c.DisputeConcurrency }
func (c *Config) GetRulesFile() string             { return c.RulesFile }

// SchedulerConfig
func (c *Config) GetRedisURL() string          { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool    { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string    { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int     { return c.AsynqConcurrency }
func (c *Config) GetDisputeRunCron() string    { return c.DisputeRunCron }
func (c *Config) GetRunLockTTL() time.Duration { return c.RunLockTTL }

// EmailConfig
func (c *Config) GetSMTPHost() string           { return c.SMTPHost }
func (c *Config) GetSMTPPort() int              { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string       { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string       { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string      { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string   { return c.EmailFromAddress }
func (c *Config) GetReportRecipients() []string { return c.ReportRecipients }
func (c *Config) IsReportEmailEnabled() bool {
	return c.SMTPHost != "" && c.EmailFromAddress != "" && len(c.ReportRecipients) > 0
}

// Load reads configuration from the environment (and an optional .env file).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("APP_ENV", "development"),

		SheetBaseURL:  getEnv("SMARTSHEET_BASE_URL", "https://api.smartsheet.com/2.0"),
		SheetAPIToken: getEnv("SMARTSHEET_API_TOKEN", ""),
		SheetID:       getEnv("SMARTSHEET_SHEET_ID", ""),
		SheetColumns: SheetColumns{
			Notes:            getEnv("SHEET_COLUMN_NOTES", "Round 1: Super Additional Notes"),
			SupplierComments: getEnv("SHEET_COLUMN_SUPPLIER_COMMENTS", "Round 1: Supplier comments"),
			Status:           getEnv("SHEET_COLUMN_STATUS", "Round 1: Status"),
			Completion:       getEnv("SHEET_COLUMN_COMPLETION", "Round 1: Completion"),
			ClientReference:  getEnv("SHEET_COLUMN_CLIENT_REFERENCE", "Client Reference Number"),
		},

		ProfileBaseURL: strings.TrimRight(getEnv("PROFILE_API_BASE_URL", ""), "/"),
		ProfileAPIKey:  getEnv("PROFILE_API_KEY", ""),

		WarehouseDatabaseURL: getEnv("WAREHOUSE_DATABASE_URL", ""),
		WarehouseQueryFile:   getEnv("WAREHOUSE_QUERY_FILE", ""),
		WarehouseRowCap:      mustInt(getEnv("WAREHOUSE_ROW_CAP", "1000")),

		AuditDatabaseURL: getEnv("AUDIT_DATABASE_URL", ""),
		AuditSQLitePath:  getEnv("AUDIT_SQLITE_PATH", "audit.db"),

		ExportDir: getEnv("EXPORT_DIR", "logs"),

		MinIOEndpoint:             getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:            getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:            getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:               strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketDisputeExports: getEnv("MINIO_BUCKET_DISPUTE_EXPORTS", "dispute-exports"),

		ExternalTimeout:   mustDuration(getEnv("EXTERNAL_TIMEOUT", "30s")),
		ExternalRateLimit: mustFloat(getEnv("EXTERNAL_RATE_LIMIT", "5")),

		RetryMaxAttempts:   mustInt(getEnv("RETRY_MAX_ATTEMPTS", "3")),
		RetryBaseDelay:     mustDuration(getEnv("RETRY_BASE_DELAY", "1s")),
		RetryMaxDelay:      mustDuration(getEnv("RETRY_MAX_DELAY", "10s")),
		DisputeConcurrency: mustInt(getEnv("DISPUTE_CONCURRENCY", "1")),
		RulesFile:          getEnv("RULES_FILE", ""),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "disputes"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "2")),
		DisputeRunCron:   getEnv("DISPUTE_RUN_CRON", ""),
		RunLockTTL:       mustDuration(getEnv("RUN_LOCK_TTL", "2h")),

		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Dispute Automation"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		ReportRecipients: splitCSV(getEnv("REPORT_EMAIL_TO", "")),
	}

	if err := cfg.Validate(validator.New()); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate(val *validator.Validator) error {
	if err := val.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %s", validator.Describe(err))
	}
	if c.RetryMaxDelay > 0 && c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("RETRY_MAX_DELAY must be >= RETRY_BASE_DELAY")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
