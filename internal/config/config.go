package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Storage layout. Empty sub-directories resolve under StorageRoot.
	StorageRoot   string `mapstructure:"STORAGE_ROOT"`
	UploadDir     string `mapstructure:"UPLOAD_DIR"`
	FormsDir      string `mapstructure:"FORMS_DIR"`
	OutputDir     string `mapstructure:"OUTPUT_DIR"`
	MaxUploadSize string `mapstructure:"MAX_UPLOAD_SIZE"`

	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`
	Timezone      string `mapstructure:"TIMEZONE"`

	WebhookURL     string        `mapstructure:"WEBHOOK_URL"`
	WebhookTimeout time.Duration `mapstructure:"WEBHOOK_TIMEOUT"`

	SMSAPIURL   string        `mapstructure:"SMS_API_URL"`
	SMSUserID   string        `mapstructure:"SMS_USER_ID"`
	SMSAPIKey   string        `mapstructure:"SMS_API_KEY"`
	SMSSender   string        `mapstructure:"SMS_SENDER"`
	SMSTestMode bool          `mapstructure:"SMS_TEST_MODE"`
	SMSTimeout  time.Duration `mapstructure:"SMS_TIMEOUT"`

	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthTokenTTL   time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	AdminUsername  string        `mapstructure:"ADMIN_USERNAME"`
	AdminPassword  string        `mapstructure:"ADMIN_PASSWORD"`

	QuestionnaireSteps int `mapstructure:"QUESTIONNAIRE_STEPS"`

	// Spreadsheet column positions, zero-based. The upstream sheet has no
	// reliable header so positions are the contract.
	SheetColSurgeryDate    int    `mapstructure:"SHEET_COL_SURGERY_DATE"`
	SheetColRegistrationID int    `mapstructure:"SHEET_COL_REGISTRATION_ID"`
	SheetColName           int    `mapstructure:"SHEET_COL_NAME"`
	SheetColGender         int    `mapstructure:"SHEET_COL_GENDER"`
	SheetColAge            int    `mapstructure:"SHEET_COL_AGE"`
	SheetColSurgeryName    int    `mapstructure:"SHEET_COL_SURGERY_NAME"`
	SheetColDoctor         int    `mapstructure:"SHEET_COL_DOCTOR"`
	SheetColPhone          int    `mapstructure:"SHEET_COL_PHONE"`
	SheetColMarker         int    `mapstructure:"SHEET_COL_MARKER"`
	SheetMarkerValue       string `mapstructure:"SHEET_MARKER_VALUE"`
	SheetIDWidth           int    `mapstructure:"SHEET_ID_WIDTH"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"STORAGE_ROOT", "UPLOAD_DIR", "FORMS_DIR", "OUTPUT_DIR", "MAX_UPLOAD_SIZE",
	"PUBLIC_BASE_URL", "TIMEZONE",
	"WEBHOOK_URL", "WEBHOOK_TIMEOUT",
	"SMS_API_URL", "SMS_USER_ID", "SMS_API_KEY", "SMS_SENDER", "SMS_TEST_MODE", "SMS_TIMEOUT",
	"AUTH_SIGNING_KEY", "AUTH_TOKEN_TTL", "ADMIN_USERNAME", "ADMIN_PASSWORD",
	"QUESTIONNAIRE_STEPS",
	"SHEET_COL_SURGERY_DATE", "SHEET_COL_REGISTRATION_ID", "SHEET_COL_NAME",
	"SHEET_COL_GENDER", "SHEET_COL_AGE", "SHEET_COL_SURGERY_NAME", "SHEET_COL_DOCTOR",
	"SHEET_COL_PHONE", "SHEET_COL_MARKER", "SHEET_MARKER_VALUE", "SHEET_ID_WIDTH",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("STORAGE_ROOT", "./instance")
	v.SetDefault("MAX_UPLOAD_SIZE", "20M")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8000")
	v.SetDefault("TIMEZONE", "Asia/Seoul")
	v.SetDefault("WEBHOOK_TIMEOUT", "5s")
	v.SetDefault("SMS_API_URL", "https://apis.aligo.in/send/")
	v.SetDefault("SMS_TIMEOUT", "5s")
	v.SetDefault("AUTH_TOKEN_TTL", "12h")
	v.SetDefault("QUESTIONNAIRE_STEPS", 9)
	v.SetDefault("SHEET_COL_SURGERY_DATE", 5)
	v.SetDefault("SHEET_COL_REGISTRATION_ID", 7)
	v.SetDefault("SHEET_COL_NAME", 8)
	v.SetDefault("SHEET_COL_GENDER", 9)
	v.SetDefault("SHEET_COL_AGE", 10)
	v.SetDefault("SHEET_COL_SURGERY_NAME", 12)
	v.SetDefault("SHEET_COL_DOCTOR", 13)
	v.SetDefault("SHEET_COL_PHONE", 30)
	v.SetDefault("SHEET_COL_MARKER", 14)
	v.SetDefault("SHEET_MARKER_VALUE", "Gen")
	v.SetDefault("SHEET_ID_WIDTH", 8)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.resolveDirs()

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all admin requests are privileged.")
	}

	return cfg, nil
}

func (c *Config) resolveDirs() {
	if c.UploadDir == "" {
		c.UploadDir = filepath.Join(c.StorageRoot, "uploads")
	}
	if c.FormsDir == "" {
		c.FormsDir = filepath.Join(c.StorageRoot, "forms")
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.StorageRoot, "excel_output")
	}
}

// EnsureDirs creates the storage directories if they are missing.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.StorageRoot, c.UploadDir, c.FormsDir, c.OutputDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SMSConfigured reports whether every gateway credential is present.
func (c *Config) SMSConfigured() bool {
	return c.SMSUserID != "" && c.SMSAPIKey != "" && c.SMSSender != ""
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes outside development (ENV=%q)", c.Env)
	}

	// SMS credentials are all-or-nothing; a partial set is almost always a typo.
	set := 0
	for _, s := range []string{c.SMSUserID, c.SMSAPIKey, c.SMSSender} {
		if s != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return fmt.Errorf("SMS_USER_ID, SMS_API_KEY and SMS_SENDER must be set together")
	}

	if c.QuestionnaireSteps < 4 {
		return fmt.Errorf("QUESTIONNAIRE_STEPS must be at least 4, got %d", c.QuestionnaireSteps)
	}

	cols := map[string]int{
		"SHEET_COL_SURGERY_DATE":    c.SheetColSurgeryDate,
		"SHEET_COL_REGISTRATION_ID": c.SheetColRegistrationID,
		"SHEET_COL_NAME":            c.SheetColName,
		"SHEET_COL_GENDER":          c.SheetColGender,
		"SHEET_COL_AGE":             c.SheetColAge,
		"SHEET_COL_SURGERY_NAME":    c.SheetColSurgeryName,
		"SHEET_COL_DOCTOR":          c.SheetColDoctor,
		"SHEET_COL_PHONE":           c.SheetColPhone,
		"SHEET_COL_MARKER":          c.SheetColMarker,
	}
	for name, idx := range cols {
		if idx < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, idx)
		}
	}
	if c.SheetMarkerValue == "" {
		return fmt.Errorf("SHEET_MARKER_VALUE is required")
	}
	if c.SheetIDWidth < 1 {
		return fmt.Errorf("SHEET_ID_WIDTH must be positive, got %d", c.SheetIDWidth)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q is not a valid location: %w", c.Timezone, err)
	}

	return nil
}
