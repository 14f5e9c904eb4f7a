package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Mirror backends accepted by MIRROR_BACKEND.
const (
	MirrorFirebase = "firebase"
	MirrorMongoDB  = "mongodb"
	MirrorMemory   = "memory"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Sales     SalesConfig
	Mirror    MirrorConfig
	Scheduler SchedulerConfig
	Sheets    SheetsConfig
	Archive   ArchiveConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// StoreConfig locates the durable local store.
type StoreConfig struct {
	Path string
}

// SalesConfig holds the business constants used for totals.
type SalesConfig struct {
	CrateCapacity int
	SettleEpsilon float64
}

// MirrorConfig selects the remote mirror implementation. Credentials are
// not read from the environment; they live in the persisted app config.
type MirrorConfig struct {
	Backend string
	Timeout time.Duration
}

// SchedulerConfig holds cron expressions for background jobs. An empty
// schedule disables the job.
type SchedulerConfig struct {
	BackupSchedule string
	ExportSchedule string
	Timezone       string
}

// SheetsConfig contains configuration required to interact with Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether report export is configured.
func (s SheetsConfig) Enabled() bool {
	return s.CredentialsPath != "" && s.SpreadsheetID != ""
}

// ArchiveConfig holds the S3 destination for snapshot archives.
type ArchiveConfig struct {
	Bucket string
	Prefix string
	Region string
}

// Enabled reports whether snapshot archiving is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// LogConfig controls optional file output.
type LogConfig struct {
	File string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the environment.
		_ = godotenv.Load()
	}

	crateCapacity, err := strconv.Atoi(getenvWithDefault("CRATE_CAPACITY", "9"))
	if err != nil {
		return nil, fmt.Errorf("CRATE_CAPACITY: %w", err)
	}
	epsilon, err := strconv.ParseFloat(getenvWithDefault("SETTLE_EPSILON", "0.1"), 64)
	if err != nil {
		return nil, fmt.Errorf("SETTLE_EPSILON: %w", err)
	}
	mirrorTimeout, err := time.ParseDuration(getenvWithDefault("MIRROR_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("MIRROR_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Store: StoreConfig{
			Path: getenvWithDefault("STORE_PATH", "data/avicontrol.db"),
		},
		Sales: SalesConfig{
			CrateCapacity: crateCapacity,
			SettleEpsilon: epsilon,
		},
		Mirror: MirrorConfig{
			Backend: getenvWithDefault("MIRROR_BACKEND", MirrorFirebase),
			Timeout: mirrorTimeout,
		},
		Scheduler: SchedulerConfig{
			BackupSchedule: os.Getenv("BACKUP_CRON_SCHEDULE"),
			ExportSchedule: os.Getenv("EXPORT_CRON_SCHEDULE"),
			Timezone:       getenvWithDefault("TIMEZONE", "America/Lima"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		Archive: ArchiveConfig{
			Bucket: os.Getenv("ARCHIVE_S3_BUCKET"),
			Prefix: getenvWithDefault("ARCHIVE_S3_PREFIX", "avicontrol/"),
			Region: os.Getenv("AWS_REGION"),
		},
		Log: LogConfig{
			File: os.Getenv("LOG_FILE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.Store.Path == "" {
		return errors.New("STORE_PATH must not be empty")
	}

	if c.Sales.CrateCapacity <= 0 {
		return errors.New("CRATE_CAPACITY must be positive")
	}

	if c.Sales.SettleEpsilon < 0 {
		return errors.New("SETTLE_EPSILON must not be negative")
	}

	switch c.Mirror.Backend {
	case MirrorFirebase, MirrorMongoDB, MirrorMemory:
	default:
		return fmt.Errorf("MIRROR_BACKEND %q must be one of firebase, mongodb, memory", c.Mirror.Backend)
	}

	if c.Mirror.Timeout <= 0 {
		return errors.New("MIRROR_TIMEOUT must be positive")
	}

	if c.Scheduler.Timezone == "" {
		return errors.New("TIMEZONE must be provided")
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be provided together")
	}

	if c.Scheduler.ExportSchedule != "" && !c.Sheets.Enabled() {
		return errors.New("EXPORT_CRON_SCHEDULE requires Google Sheets settings")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
