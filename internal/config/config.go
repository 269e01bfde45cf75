package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongoDB  = "mongodb"
)

// Document drivers accepted by DOCUMENT_DRIVER.
const (
	DocumentFS = "fs"
	DocumentS3 = "s3"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Events    EventsConfig
	WhatsApp  WhatsAppConfig
	Sheets    SheetsConfig
	Reporting ReportingConfig
	Documents DocumentsConfig
	LogLevel  string
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// StoreConfig selects and configures the sale store backend.
type StoreConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	MongoURI    string
	MongoDBName string
	CatalogPath string
}

// EventsConfig configures the event bus. An empty NATSURL disables publishing.
type EventsConfig struct {
	NATSURL       string
	SubjectPrefix string
	Timeout       time.Duration
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	BaseURL       string
	APIVersion    string
	Recipients    []string
}

// Enabled reports whether notifications can be sent.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != "" && len(c.Recipients) > 0
}

// SheetsConfig contains configuration required to append the sales ledger to Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	LedgerRange     string
}

// Enabled reports whether the ledger export is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule string
	Timezone     string
}

// DocumentsConfig selects where delivery documents are archived.
type DocumentsConfig struct {
	Driver       string
	Dir          string
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	Prefix       string
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

	shutdown, err := durationFromEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	eventTimeout, err := durationFromEnv("EVENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	pathStyle, err := boolFromEnv("S3_USE_PATH_STYLE", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getenvWithDefault("APP_PORT", "8080"),
			ShutdownTimeout: shutdown,
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(getenvWithDefault("STORE_DRIVER", StoreMemory)),
			SQLitePath:  getenvWithDefault("SQLITE_PATH", "shellsale.db"),
			PostgresDSN: os.Getenv("POSTGRES_DSN"),
			MongoURI:    os.Getenv("MONGODB_URI"),
			MongoDBName: getenvWithDefault("MONGODB_DB_NAME", "shellsale"),
			CatalogPath: os.Getenv("CATALOG_PATH"),
		},
		Events: EventsConfig{
			NATSURL:       os.Getenv("NATS_URL"),
			SubjectPrefix: getenvWithDefault("NATS_SUBJECT_PREFIX", "shellsale"),
			Timeout:       eventTimeout,
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:   os.Getenv("META_VERIFY_TOKEN"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			Recipients:    splitList(os.Getenv("WHATSAPP_RECIPIENTS")),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_LEDGER_ID"),
			LedgerRange:     getenvWithDefault("GOOGLE_SHEET_LEDGER_RANGE", "Sales!A:J"),
		},
		Reporting: ReportingConfig{
			CronSchedule: getenvWithDefault("REPORT_CRON_SCHEDULE", "0 20 * * 5"),
			Timezone:     getenvWithDefault("TIMEZONE", "Europe/Rome"),
		},
		Documents: DocumentsConfig{
			Driver:       strings.ToLower(getenvWithDefault("DOCUMENT_DRIVER", DocumentFS)),
			Dir:          getenvWithDefault("DOCUMENT_DIR", "data"),
			Bucket:       os.Getenv("S3_BUCKET"),
			Region:       getenvWithDefault("S3_REGION", "eu-south-1"),
			Endpoint:     os.Getenv("S3_ENDPOINT"),
			UsePathStyle: pathStyle,
			Prefix:       getenvWithDefault("DOCUMENT_PREFIX", "documents"),
		},
		LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated and that the
// selected drivers have what they need.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("SQLITE_PATH must be provided when STORE_DRIVER=sqlite")
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN must be provided when STORE_DRIVER=postgres")
		}
	case StoreMongoDB:
		if c.Store.MongoURI == "" {
			return errors.New("MONGODB_URI must be provided when STORE_DRIVER=mongodb")
		}
		if c.Store.MongoDBName == "" {
			return errors.New("MONGODB_DB_NAME must not be empty")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Documents.Driver {
	case DocumentFS:
		if c.Documents.Dir == "" {
			return errors.New("DOCUMENT_DIR must be provided when DOCUMENT_DRIVER=fs")
		}
	case DocumentS3:
		if c.Documents.Bucket == "" {
			return errors.New("S3_BUCKET must be provided when DOCUMENT_DRIVER=s3")
		}
	default:
		return fmt.Errorf("unsupported DOCUMENT_DRIVER %q", c.Documents.Driver)
	}

	if c.WhatsApp.BaseURL == "" {
		return errors.New("WHATSAPP_BASE_URL must not be empty")
	}
	if c.WhatsApp.APIVersion == "" {
		return errors.New("WHATSAPP_API_VERSION must not be empty")
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}
	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Reporting.Timezone, err)
	}

	if c.Events.SubjectPrefix == "" {
		return errors.New("NATS_SUBJECT_PREFIX must not be empty")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
