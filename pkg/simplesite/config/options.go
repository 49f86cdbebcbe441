package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tendant/simple-site/pkg/simplesite"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryStorage keeps private files in memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageType = "memory"
		return nil
	}
}

// WithFilesystemStorage stores private files under baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("base directory is required for filesystem storage")
		}
		c.StorageType = "fs"
		c.StorageDir = baseDir
		return nil
	}
}

// WithS3Storage stores private files in an S3 bucket
func WithS3Storage(bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("bucket is required for S3 storage")
		}
		c.StorageType = "s3"
		c.S3.Bucket = bucket
		if region != "" {
			c.S3.Region = region
		}
		return nil
	}
}

// WithS3Credentials sets static S3 credentials
func WithS3Credentials(accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		c.S3.AccessKeyID = accessKeyID
		c.S3.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithS3Endpoint points the S3 client at an S3-compatible service such as MinIO
func WithS3Endpoint(endpoint string, useSSL, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		c.S3.Endpoint = endpoint
		c.S3.UseSSL = useSSL
		c.S3.UsePathStyle = usePathStyle
		return nil
	}
}

// WithPublicBaseURL sets the URL prefix of signed download links
func WithPublicBaseURL(base string) Option {
	return func(c *ServerConfig) error {
		c.PublicBaseURL = strings.TrimRight(base, "/")
		return nil
	}
}

// WithURLSigning sets the download link secret and lifetime
func WithURLSigning(secret string, expiry time.Duration) Option {
	return func(c *ServerConfig) error {
		if secret == "" {
			return fmt.Errorf("url signing secret cannot be empty")
		}
		c.URLSigningSecret = secret
		if expiry > 0 {
			c.DownloadURLExpiry = expiry
		}
		return nil
	}
}

// WithJWT sets the token signing secret and lifetime
func WithJWT(secret string, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if secret == "" {
			return fmt.Errorf("jwt secret cannot be empty")
		}
		c.JWTSecret = secret
		if ttl > 0 {
			c.TokenTTL = ttl
		}
		return nil
	}
}

// WithContentValidation selects the content validation policy
func WithContentValidation(policy simplesite.ValidationPolicy) Option {
	return func(c *ServerConfig) error {
		if _, err := simplesite.ParseValidationPolicy(string(policy)); err != nil {
			return err
		}
		c.ContentValidation = string(policy)
		return nil
	}
}

// WithStripe sets the platform Stripe keys used when an organisation has none
func WithStripe(apiKey, webhookSecret string, mode simplesite.Environment) Option {
	return func(c *ServerConfig) error {
		c.Stripe.APIKey = apiKey
		c.Stripe.WebhookSecret = webhookSecret
		if mode != "" {
			c.Stripe.Mode = string(mode)
		}
		return nil
	}
}

// WithStripeAPIBase points the Stripe client at another host, e.g. stripe-mock
func WithStripeAPIBase(base string) Option {
	return func(c *ServerConfig) error {
		c.Stripe.APIBase = base
		return nil
	}
}

// WithCORSOrigins sets the origins allowed to call the public API
func WithCORSOrigins(origins ...string) Option {
	return func(c *ServerConfig) error {
		c.CORSOrigins = origins
		return nil
	}
}

// WithTrustProxy keys clients by X-Forwarded-For / X-Real-IP instead of the socket address
func WithTrustProxy(trust bool) Option {
	return func(c *ServerConfig) error {
		c.TrustProxy = trust
		return nil
	}
}

// WithLoginRate sets login and register attempts per client per minute; negative disables the limit
func WithLoginRate(perMinute int) Option {
	return func(c *ServerConfig) error {
		c.LoginPerMinute = perMinute
		return nil
	}
}

// WithEventLogging enables or disables event logging
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
