package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig mirrors ServerConfig as environment variables. Variables that are
// not set leave the current value untouched.
type envConfig struct {
	Port        string `env:"PORT" env-description:"HTTP listen port"`
	Environment string `env:"ENVIRONMENT" env-description:"development, production or testing"`

	DatabaseURL string `env:"DATABASE_URL" env-description:"'memory' or a postgres:// connection string"`
	DBSchema    string `env:"DB_SCHEMA" env-description:"Postgres schema used as search_path"`

	StorageURL string `env:"STORAGE_URL" env-description:"memory://, file:///path or s3://bucket?region=&endpoint="`

	S3AccessKeyID     string        `env:"AWS_ACCESS_KEY_ID" env-description:"S3 access key"`
	S3SecretAccessKey string        `env:"AWS_SECRET_ACCESS_KEY" env-description:"S3 secret key"`
	S3Region          string        `env:"AWS_REGION" env-description:"S3 region"`
	S3PresignDuration time.Duration `env:"S3_PRESIGN_DURATION" env-description:"Lifetime of S3 presigned links"`

	PublicBaseURL     string        `env:"PUBLIC_BASE_URL" env-description:"Base URL prepended to signed download links"`
	URLSigningSecret  string        `env:"URL_SIGNING_SECRET" env-description:"HMAC secret for download links"`
	DownloadURLExpiry time.Duration `env:"DOWNLOAD_URL_EXPIRY" env-description:"Lifetime of signed download links"`
	JWTSecret         string        `env:"JWT_SECRET" env-description:"HS256 secret for customer and admin tokens"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" env-description:"Lifetime of issued tokens"`

	ContentValidation string `env:"CONTENT_VALIDATION" env-description:"permissive or strict"`

	StripeAPIBase       string `env:"STRIPE_API_BASE" env-description:"Stripe API base URL, e.g. stripe-mock"`
	StripeAPIKey        string `env:"STRIPE_API_KEY" env-description:"Platform Stripe secret key"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET" env-description:"Platform Stripe webhook signing secret"`
	StripeMode          string `env:"STRIPE_MODE" env-description:"test or live"`

	CORSOrigins        []string `env:"CORS_ORIGINS" env-separator:"," env-description:"Origins allowed to call the public API"`
	APIKeySHA256       string   `env:"API_KEY_SHA256" env-description:"SHA-256 of the platform API key"`
	TrustProxy         bool     `env:"TRUST_PROXY" env-description:"Take client addresses from X-Forwarded-For / X-Real-IP"`
	LoginPerMinute     int      `env:"LOGIN_RATE_PER_MINUTE" env-description:"Login and register attempts per client per minute"`
	EnableEventLogging bool     `env:"EVENT_LOGGING" env-description:"Log service events"`
}

// WithEnv applies environment variable overrides read through cleanenv.
//
// Database:
//
//	DATABASE_URL - "memory" or "postgres://..." / "postgresql://..."
//
// Storage:
//
//	STORAGE_URL - one of:
//	              - "memory://" - In-memory storage (default)
//	              - "file:///path/to/data" - Filesystem storage
//	              - "s3://bucket?region=us-east-1&endpoint=http://localhost:9000" - S3 storage
func WithEnv() Option {
	return func(c *ServerConfig) error {
		env := envConfig{
			Port:                c.Port,
			Environment:         c.Environment,
			DBSchema:            c.DBSchema,
			S3AccessKeyID:       c.S3.AccessKeyID,
			S3SecretAccessKey:   c.S3.SecretAccessKey,
			S3Region:            c.S3.Region,
			S3PresignDuration:   c.S3.PresignDuration,
			PublicBaseURL:       c.PublicBaseURL,
			URLSigningSecret:    c.URLSigningSecret,
			DownloadURLExpiry:   c.DownloadURLExpiry,
			JWTSecret:           c.JWTSecret,
			TokenTTL:            c.TokenTTL,
			ContentValidation:   c.ContentValidation,
			StripeAPIBase:       c.Stripe.APIBase,
			StripeAPIKey:        c.Stripe.APIKey,
			StripeWebhookSecret: c.Stripe.WebhookSecret,
			StripeMode:          c.Stripe.Mode,
			CORSOrigins:         c.CORSOrigins,
			APIKeySHA256:        c.APIKeySHA256,
			TrustProxy:          c.TrustProxy,
			LoginPerMinute:      c.LoginPerMinute,
			EnableEventLogging:  c.EnableEventLogging,
		}
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}

		c.Port = env.Port
		c.Environment = env.Environment
		c.DBSchema = env.DBSchema
		c.S3.AccessKeyID = env.S3AccessKeyID
		c.S3.SecretAccessKey = env.S3SecretAccessKey
		c.S3.Region = env.S3Region
		c.S3.PresignDuration = env.S3PresignDuration
		c.PublicBaseURL = strings.TrimRight(env.PublicBaseURL, "/")
		c.URLSigningSecret = env.URLSigningSecret
		c.DownloadURLExpiry = env.DownloadURLExpiry
		c.JWTSecret = env.JWTSecret
		c.TokenTTL = env.TokenTTL
		c.ContentValidation = env.ContentValidation
		c.Stripe = StripeConfig{
			APIBase:       env.StripeAPIBase,
			APIKey:        env.StripeAPIKey,
			WebhookSecret: env.StripeWebhookSecret,
			Mode:          env.StripeMode,
		}
		c.CORSOrigins = env.CORSOrigins
		c.APIKeySHA256 = env.APIKeySHA256
		c.TrustProxy = env.TrustProxy
		c.LoginPerMinute = env.LoginPerMinute
		c.EnableEventLogging = env.EnableEventLogging

		if env.DatabaseURL != "" {
			if err := applyDatabaseURL(env.DatabaseURL, c); err != nil {
				return err
			}
		}
		if env.StorageURL != "" {
			if err := applyStorageURL(env.StorageURL, c); err != nil {
				return err
			}
		}
		return nil
	}
}

// applyDatabaseURL detects the database type from the URL scheme
func applyDatabaseURL(dbURL string, c *ServerConfig) error {
	switch {
	case dbURL == "memory" || dbURL == "memory://":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
	}
	return nil
}

// applyStorageURL configures private file storage from a URL
func applyStorageURL(storageURL string, c *ServerConfig) error {
	if storageURL == "memory" || storageURL == "memory://" {
		c.StorageType = "memory"
		return nil
	}

	u, err := url.Parse(storageURL)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	switch u.Scheme {
	case "file":
		// file:///abs/path has an empty host; file://rel/path keeps "rel" as host
		path := u.Host + u.Path
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.StorageType = "fs"
		c.StorageDir = path
		return nil

	case "s3":
		if u.Host == "" {
			return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
		}
		c.StorageType = "s3"
		c.S3.Bucket = u.Host
		q := u.Query()
		if v := q.Get("region"); v != "" {
			c.S3.Region = v
		}
		if v := q.Get("endpoint"); v != "" {
			c.S3.Endpoint = v
			// S3-compatible endpoints such as MinIO need path-style addressing
			c.S3.UsePathStyle = true
		}
		for key, target := range map[string]*bool{
			"path_style":    &c.S3.UsePathStyle,
			"ssl":           &c.S3.UseSSL,
			"sse":           &c.S3.EnableSSE,
			"create_bucket": &c.S3.CreateBucketIfNotExist,
		} {
			if raw := q.Get(key); raw != "" {
				parsed, err := strconv.ParseBool(raw)
				if err != nil {
					return fmt.Errorf("invalid boolean for STORAGE_URL %s: %w", key, err)
				}
				*target = parsed
			}
		}
		if c.S3.EnableSSE && c.S3.SSEAlgorithm == "" {
			c.S3.SSEAlgorithm = "AES256"
		}
		return nil
	}

	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
}
