// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // APP_TIMEZONE must resolve in minimal containers

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// MigrationConfig controls whether embedded migrations run at startup.
type MigrationConfig interface {
	GetMigrationsEnabled() bool
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RuntimeConfig describes the deployment the process runs in.
type RuntimeConfig interface {
	GetEnv() string
	IsProduction() bool
	GetVersion() string
	GetOutboundTLSInsecure() bool
	GetWorkerConcurrency() int
}

// AutoAssignConfig provides settings for the lead distributor.
type AutoAssignConfig interface {
	GetAutoAssignInterval() time.Duration
	GetAutoAssignBatchSize() int
	GetAutoAssignTriggerToken() string
	GetHistoryRetentionDays() int
	GetLocation() *time.Location
}

// SchedulerConfig provides settings for background job scheduling.
type SchedulerConfig interface {
	GetSchedulerMode() string
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetReportCron() string
}

// SalesforceConfig provides credentials for the Salesforce lead pull.
type SalesforceConfig interface {
	GetSalesforceDomain() string
	GetSalesforceUsername() string
	GetSalesforcePassword() string
	GetSalesforceSecurityToken() string
	GetSalesforceConsumerKey() string
	GetSalesforceConsumerSecret() string
	GetSalesforceOwnerMapFile() string
	GetSalesforceRateLimit() float64
	IsSalesforceEnabled() bool
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketReports() string
	IsMinIOEnabled() bool
}

// SMTPConfig provides settings for outgoing mail.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSMTPFromEmail() string
	GetSMTPFromName() string
	GetReportRecipients() []string
	IsSMTPEnabled() bool
}

// Scheduler modes.
const (
	SchedulerModeExternal  = "external"
	SchedulerModeInProcess = "inprocess"
	SchedulerModeAsynq     = "asynq"
)

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	Version              string
	HTTPAddr             string
	DatabaseURL          string
	MigrationsEnabled    bool
	JWTAccessSecret      string
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	OutboundTLSInsecure  bool
	WorkerConcurrency    int
	Timezone             string
	location             *time.Location
	AutoAssignInterval   time.Duration
	AutoAssignBatchSize  int
	AutoAssignTrigger    string
	HistoryRetentionDays int
	SchedulerMode        string
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueue           string
	ReportCron           string
	SFDomain             string
	SFUsername           string
	SFPassword           string
	SFSecurityToken      string
	SFConsumerKey        string
	SFConsumerSecret     string
	SFOwnerMapFile       string
	SFRateLimit          float64
	MinIOEndpoint        string
	MinIOAccessKey       string
	MinIOSecretKey       string
	MinIOUseSSL          bool
	MinioBucketReports   string
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	SMTPFromEmail        string
	SMTPFromName         string
	ReportRecipients     []string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetMigrationsEnabled() bool { return c.MigrationsEnabled }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// RuntimeConfig implementation
func (c *Config) GetEnv() string               { return c.Env }
func (c *Config) IsProduction() bool           { return c.Env == "production" }
func (c *Config) GetVersion() string           { return c.Version }
func (c *Config) GetOutboundTLSInsecure() bool { return c.OutboundTLSInsecure }
func (c *Config) GetWorkerConcurrency() int    { return c.WorkerConcurrency }

// AutoAssignConfig implementation
func (c *Config) GetAutoAssignInterval() time.Duration { return c.AutoAssignInterval }
func (c *Config) GetAutoAssignBatchSize() int          { return c.AutoAssignBatchSize }
func (c *Config) GetAutoAssignTriggerToken() string    { return c.AutoAssignTrigger }
func (c *Config) GetHistoryRetentionDays() int         { return c.HistoryRetentionDays }
func (c *Config) GetLocation() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// SchedulerConfig implementation
func (c *Config) GetSchedulerMode() string  { return c.SchedulerMode }
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure || c.OutboundTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueue }
func (c *Config) GetAsynqConcurrency() int  { return c.WorkerConcurrency }
func (c *Config) GetReportCron() string     { return c.ReportCron }

// SalesforceConfig implementation
func (c *Config) GetSalesforceDomain() string         { return c.SFDomain }
func (c *Config) GetSalesforceUsername() string       { return c.SFUsername }
func (c *Config) GetSalesforcePassword() string       { return c.SFPassword }
func (c *Config) GetSalesforceSecurityToken() string  { return c.SFSecurityToken }
func (c *Config) GetSalesforceConsumerKey() string    { return c.SFConsumerKey }
func (c *Config) GetSalesforceConsumerSecret() string { return c.SFConsumerSecret }
func (c *Config) GetSalesforceOwnerMapFile() string   { return c.SFOwnerMapFile }
func (c *Config) GetSalesforceRateLimit() float64     { return c.SFRateLimit }
func (c *Config) IsSalesforceEnabled() bool {
	return c.SFDomain != "" && c.SFUsername != "" && c.SFConsumerKey != ""
}

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string      { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string     { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string     { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool          { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketReports() string { return c.MinioBucketReports }
func (c *Config) IsMinIOEnabled() bool          { return c.MinIOEndpoint != "" }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string           { return c.SMTPHost }
func (c *Config) GetSMTPPort() int              { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string       { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string       { return c.SMTPPassword }
func (c *Config) GetSMTPFromEmail() string      { return c.SMTPFromEmail }
func (c *Config) GetSMTPFromName() string       { return c.SMTPFromName }
func (c *Config) GetReportRecipients() []string { return c.ReportRecipients }
func (c *Config) IsSMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFromEmail != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	env := strings.ToLower(getEnv("APP_ENV", "development"))
	if isTrue(getEnv("PRODUCTION", "")) {
		env = "production"
	}

	redisURL := getEnv("REDIS_URL", "")
	defaultMode := SchedulerModeInProcess
	if redisURL != "" {
		defaultMode = SchedulerModeAsynq
	}

	cfg := &Config{
		Env:                  env,
		Version:              getEnv("APP_VERSION", "dev"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		MigrationsEnabled:    isTrue(getEnv("MIGRATIONS_ENABLED", "true")),
		JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		CORSAllowCreds:       isTrue(getEnv("CORS_ALLOW_CREDENTIALS", "true")),
		OutboundTLSInsecure:  isTrue(getEnv("OUTBOUND_TLS_INSECURE", "false")),
		WorkerConcurrency:    mustInt(getEnv("WORKER_CONCURRENCY", "4")),
		Timezone:             getEnv("APP_TIMEZONE", "Asia/Kolkata"),
		AutoAssignInterval:   mustDuration(getEnv("AUTO_ASSIGN_INTERVAL", "5m")),
		AutoAssignBatchSize:  mustInt(getEnv("AUTO_ASSIGN_BATCH", "100")),
		AutoAssignTrigger:    getEnv("AUTO_ASSIGN_TRIGGER_TOKEN", ""),
		HistoryRetentionDays: mustInt(getEnv("HISTORY_RETENTION_DAYS", "90")),
		SchedulerMode:        strings.ToLower(getEnv("SCHEDULER_MODE", defaultMode)),
		RedisURL:             redisURL,
		RedisTLSInsecure:     isTrue(getEnv("REDIS_TLS_INSECURE", "false")),
		AsynqQueue:           getEnv("ASYNQ_QUEUE", "leadcrm"),
		ReportCron:           getEnv("REPORT_CRON", "0 30 8 * * *"),
		SFDomain:             getEnv("SF_DOMAIN", ""),
		SFUsername:           getEnv("SF_USERNAME", ""),
		SFPassword:           getEnv("SF_PASSWORD", ""),
		SFSecurityToken:      getEnv("SF_SECURITY_TOKEN", ""),
		SFConsumerKey:        getEnv("SF_CONSUMER_KEY", ""),
		SFConsumerSecret:     getEnv("SF_CONSUMER_SECRET", ""),
		SFOwnerMapFile:       getEnv("SF_OWNER_MAP_FILE", "config/salesforce_owners.yaml"),
		SFRateLimit:          mustFloat(getEnv("SF_RATE_LIMIT", "5")),
		MinIOEndpoint:        getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:       getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:          isTrue(getEnv("MINIO_USE_SSL", "false")),
		MinioBucketReports:   getEnv("MINIO_BUCKET_REPORTS", "auto-assign-reports"),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		SMTPFromEmail:        getEnv("SMTP_FROM_EMAIL", ""),
		SMTPFromName:         getEnv("SMTP_FROM_NAME", "Lead CRM"),
		ReportRecipients:     splitCSV(getEnv("REPORT_RECIPIENTS", "")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	return cfg, nil
}

func (c *Config) validate() error {
	if c.AutoAssignInterval <= 0 {
		return fmt.Errorf("AUTO_ASSIGN_INTERVAL must be a positive duration")
	}
	if c.AutoAssignBatchSize <= 0 {
		return fmt.Errorf("AUTO_ASSIGN_BATCH must be positive")
	}
	if c.HistoryRetentionDays <= 0 {
		return fmt.Errorf("HISTORY_RETENTION_DAYS must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	switch c.SchedulerMode {
	case SchedulerModeExternal, SchedulerModeInProcess:
	case SchedulerModeAsynq:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SCHEDULER_MODE is asynq")
		}
	default:
		return fmt.Errorf("SCHEDULER_MODE must be one of external, inprocess, asynq")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func isTrue(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
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

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
