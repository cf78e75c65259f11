package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	WhatsApp  WhatsAppConfig
	Scheduler SchedulerConfig
	Storage   StorageConfig
	Alerts    AlertsConfig
	Catalog   CatalogConfig
	Media     MediaConfig
}

type AppConfig struct {
	Env      string
	Port     int
	LogLevel string

	// PublicBaseURL prefixes album links sent to buyers, e.g. https://memoir.example.
	PublicBaseURL string
	// CORSOrigins restricts the public album endpoint; empty allows any origin.
	CORSOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for a cloud-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// MaxOpenConns caps the pool; 0 keeps the pool default.
	MaxOpenConns int
}

// RedisConfig is optional outside production. Without it, per-trial locks are process-local.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	ServiceTokenTTL time.Duration
}

type WhatsAppConfig struct {
	APIBaseURL    string
	PhoneNumberID string
	// AccessToken empty outside production switches to the dry-run gateway.
	AccessToken string
	AppSecret   string
	VerifyToken string
	// BusinessNumber is the number storytellers message; used in wa.me links.
	BusinessNumber string

	RetryAttempts int
	RetryBackoff  time.Duration
	Timeout       time.Duration
}

type SchedulerConfig struct {
	Enabled       bool
	Interval      time.Duration
	ReminderAfter time.Duration
	// DueRetryDelay reschedules a due question whose send failed.
	DueRetryDelay time.Duration
}

type StorageConfig struct {
	// GCSBucket empty outside production keeps media in memory.
	GCSBucket     string
	PublicBaseURL string
}

type AlertsConfig struct {
	SlackWebhookURL string
	SlackBotToken   string
	SlackChannel    string
}

type CatalogConfig struct {
	// File is an optional YAML album catalog consulted before the database.
	File string
}

type MediaConfig struct {
	FFmpegPath string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("APP_PUBLIC_BASE_URL")), "/")
	c.App.CORSOrigins = splitList(os.Getenv("APP_CORS_ORIGINS"))
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	{
		n, err := optionalInt("DB_MAX_OPEN_CONNS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.MaxOpenConns = n
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n

		db, err := optionalInt("REDIS_DB")
		db, parseErrs = appendParseErr(parseErrs, db, err)
		c.Redis.DB = db
		c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}

	c.Auth = LoadAuth()

	c.WhatsApp.APIBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("WHATSAPP_API_BASE_URL")), "/")
	c.WhatsApp.PhoneNumberID = strings.TrimSpace(os.Getenv("WHATSAPP_PHONE_NUMBER_ID"))
	c.WhatsApp.AccessToken = os.Getenv("WHATSAPP_ACCESS_TOKEN")
	c.WhatsApp.AppSecret = os.Getenv("WHATSAPP_APP_SECRET")
	c.WhatsApp.VerifyToken = os.Getenv("WHATSAPP_VERIFY_TOKEN")
	c.WhatsApp.BusinessNumber = strings.TrimSpace(os.Getenv("WHATSAPP_BUSINESS_NUMBER"))
	{
		n, err := optionalInt("WHATSAPP_RETRY_ATTEMPTS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.WhatsApp.RetryAttempts = n
	}
	c.WhatsApp.RetryBackoff = mustDuration("WHATSAPP_RETRY_BACKOFF")
	c.WhatsApp.Timeout = mustDuration("WHATSAPP_TIMEOUT")

	c.Scheduler.Enabled = os.Getenv("SCHEDULER_ENABLED") != "false"
	c.Scheduler.Interval = mustDuration("SCHEDULER_INTERVAL")
	c.Scheduler.ReminderAfter = mustDuration("SCHEDULER_REMINDER_AFTER")
	c.Scheduler.DueRetryDelay = mustDuration("SCHEDULER_DUE_RETRY_DELAY")

	c.Storage.GCSBucket = strings.TrimSpace(os.Getenv("STORAGE_GCS_BUCKET"))
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_PUBLIC_BASE_URL")), "/")

	c.Alerts.SlackWebhookURL = strings.TrimSpace(os.Getenv("ALERTS_SLACK_WEBHOOK_URL"))
	c.Alerts.SlackBotToken = os.Getenv("ALERTS_SLACK_BOT_TOKEN")
	c.Alerts.SlackChannel = strings.TrimSpace(os.Getenv("ALERTS_SLACK_CHANNEL"))

	c.Catalog.File = strings.TrimSpace(os.Getenv("CATALOG_FILE"))
	c.Media.FFmpegPath = strings.TrimSpace(os.Getenv("MEDIA_FFMPEG_PATH"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadAuth reads only the JWT settings, with TTL defaults applied.
// Used where tokens are minted without the rest of the service config.
func LoadAuth() AuthConfig {
	a := AuthConfig{
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   strings.TrimSpace(os.Getenv("JWT_ISSUER")),
		JWTAudience: strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
		// Duration env vars are optional.
		AccessTokenTTL:  mustDuration("JWT_ACCESS_TTL"),
		ServiceTokenTTL: mustDuration("JWT_SERVICE_TTL"),
	}
	a.withDefaults()
	return a
}

func (a *AuthConfig) withDefaults() {
	if a.AccessTokenTTL <= 0 {
		a.AccessTokenTTL = 15 * time.Minute
	}
	if a.ServiceTokenTTL <= 0 {
		a.ServiceTokenTTL = 30 * 24 * time.Hour
	}
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("APP_PUBLIC_BASE_URL is required in production"))
		} else {
			c.App.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.App.Port)
		}
	} else if !isHTTPURL(c.App.PublicBaseURL) {
		errs = append(errs, fmt.Errorf("APP_PUBLIC_BASE_URL must be an http(s) URL, got %q", c.App.PublicBaseURL))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("REDIS_HOST is required in production"))
		}
	} else if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	c.Auth.withDefaults()
	if c.Auth.ServiceTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_SERVICE_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.WhatsApp.APIBaseURL == "" {
		c.WhatsApp.APIBaseURL = "https://graph.facebook.com/v21.0"
	}
	if c.WhatsApp.RetryAttempts <= 0 {
		c.WhatsApp.RetryAttempts = 3
	}
	if c.WhatsApp.RetryBackoff <= 0 {
		c.WhatsApp.RetryBackoff = time.Second
	}
	if c.WhatsApp.Timeout <= 0 {
		c.WhatsApp.Timeout = 15 * time.Second
	}
	if c.WhatsApp.BusinessNumber == "" {
		errs = append(errs, errors.New("WHATSAPP_BUSINESS_NUMBER is required"))
	}
	if c.IsProduction() {
		if c.WhatsApp.AccessToken == "" {
			errs = append(errs, errors.New("WHATSAPP_ACCESS_TOKEN is required in production"))
		}
		if c.WhatsApp.PhoneNumberID == "" {
			errs = append(errs, errors.New("WHATSAPP_PHONE_NUMBER_ID is required in production"))
		}
		if c.WhatsApp.AppSecret == "" {
			errs = append(errs, errors.New("WHATSAPP_APP_SECRET is required in production"))
		}
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("STORAGE_GCS_BUCKET is required in production"))
		}
	}
	if c.WhatsApp.AccessToken != "" && c.WhatsApp.PhoneNumberID == "" {
		errs = append(errs, errors.New("WHATSAPP_PHONE_NUMBER_ID is required when WHATSAPP_ACCESS_TOKEN is set"))
	}

	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = 10 * time.Second
	}
	if c.Scheduler.ReminderAfter <= 0 {
		c.Scheduler.ReminderAfter = 10 * time.Hour
	}
	if c.Scheduler.DueRetryDelay <= 0 {
		c.Scheduler.DueRetryDelay = time.Hour
	}

	if c.Alerts.SlackBotToken != "" && c.Alerts.SlackChannel == "" {
		errs = append(errs, errors.New("ALERTS_SLACK_CHANNEL is required when ALERTS_SLACK_BOT_TOKEN is set"))
	}
	if c.Media.FFmpegPath == "" {
		c.Media.FFmpegPath = "ffmpeg"
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DryRun reports whether outbound WhatsApp sends are captured instead of sent.
func (c Config) DryRun() bool {
	return !c.IsProduction() && c.WhatsApp.AccessToken == ""
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// AlbumURL is the public album link for a trial.
func (c Config) AlbumURL(trialID string) string {
	return c.App.PublicBaseURL + "/albums/" + trialID
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isHTTPURL(v string) bool {
	u, err := url.Parse(v)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
