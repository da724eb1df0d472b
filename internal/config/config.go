package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// Email queue
	// ----------------------------
	IntervalMs   int           `envconfig:"EMAIL_QUEUE_INTERVAL_MS" default:"900000"`
	MaxAttempts  int           `envconfig:"EMAIL_MAX_ATTEMPTS" default:"3"`
	BatchSize    int           `envconfig:"EMAIL_BATCH_SIZE" default:"50"`
	RetryBackoff time.Duration `envconfig:"EMAIL_RETRY_BACKOFF" default:"0s"`
	SendTimeout  time.Duration `envconfig:"EMAIL_SEND_TIMEOUT" default:"30s"`
	RateLimit    int           `envconfig:"RATE_LIMIT" default:"10"`

	// ----------------------------
	// Transport
	// ----------------------------
	EmailProvider string `envconfig:"EMAIL_PROVIDER" default:"smtp"`
	EmailFrom     string `envconfig:"EMAIL_FROM" default:"careers@skilltude.com"`
	EmailSubject  string `envconfig:"EMAIL_SUBJECT" default:"Thanks for sending us your CV"`
	TemplateDir   string `envconfig:"TEMPLATE_DIR" default:"templates"`
	EmailTemplate string `envconfig:"EMAIL_TEMPLATE" default:"cv_followup.html"`
	TrackingURL   string `envconfig:"TRACKING_BASE_URL" default:""`

	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`

	AWSRegion string `envconfig:"AWS_REGION" default:""`

	// ----------------------------
	// Database
	// ----------------------------
	DBDriver    string `envconfig:"DB_DRIVER" default:"mysql"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// ----------------------------
	// Cycle lock
	// ----------------------------
	RedisURL string        `envconfig:"REDIS_URL" default:""`
	LockKey  string        `envconfig:"LOCK_KEY" default:"email-queue:cycle"`
	LockTTL  time.Duration `envconfig:"LOCK_TTL" default:"10m"`

	// ----------------------------
	// HTTP
	// ----------------------------
	APIPort     string `envconfig:"API_PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Logging
	// ----------------------------
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.IntervalMs <= 0 {
		return fmt.Errorf("EMAIL_QUEUE_INTERVAL_MS must be positive, got %d", c.IntervalMs)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("EMAIL_MAX_ATTEMPTS must be positive, got %d", c.MaxAttempts)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("EMAIL_BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive, got %d", c.RateLimit)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("EMAIL_RETRY_BACKOFF must not be negative")
	}
	if c.EmailFrom == "" {
		return fmt.Errorf("EMAIL_FROM is required")
	}

	if c.RedisURL != "" && c.LockTTL < time.Second {
		return fmt.Errorf("LOCK_TTL must be at least 1s when REDIS_URL is set, got %s", c.LockTTL)
	}

	switch c.DBDriver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	switch c.EmailProvider {
	case "smtp":
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required for the smtp provider")
		}
		if c.SMTPPort < 1 || c.SMTPPort > 65535 {
			return fmt.Errorf("SMTP_PORT must be between 1 and 65535")
		}
		if (c.SMTPUser == "") != (c.SMTPPassword == "") {
			return fmt.Errorf("SMTP_USER and SMTP_PASSWORD must be set together")
		}
	case "ses":
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required for the ses provider")
		}
	default:
		return fmt.Errorf("unsupported EMAIL_PROVIDER %q", c.EmailProvider)
	}

	return nil
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}
