package config

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-site/pkg/simplesite"
	stripeprovider "github.com/tendant/simple-site/pkg/simplesite/payment/stripe"
	"github.com/tendant/simple-site/pkg/simplesite/repo/memory"
	repopg "github.com/tendant/simple-site/pkg/simplesite/repo/postgres"
	"github.com/tendant/simple-site/pkg/simplesite/signedurl"
	fsstorage "github.com/tendant/simple-site/pkg/simplesite/storage/fs"
	memorystorage "github.com/tendant/simple-site/pkg/simplesite/storage/memory"
	s3storage "github.com/tendant/simple-site/pkg/simplesite/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		DBSchema:     "simplesite",
		StorageType:  "memory",
		StorageDir:   "./data/files",
		S3: S3Config{
			Region:          "us-east-1",
			UseSSL:          true,
			PresignDuration: 15 * time.Minute,
		},
		PublicBaseURL:      "http://localhost:8080",
		DownloadURLExpiry:  15 * time.Minute,
		TokenTTL:           24 * time.Hour,
		ContentValidation:  string(simplesite.PolicyPermissive),
		Stripe:             StripeConfig{Mode: string(simplesite.EnvironmentTest)},
		LoginPerMinute:     20,
		EnableEventLogging: true,
	}
}

// ServerConfig represents server configuration for the simple-site service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: simplesite)

	// Private file storage
	StorageType string // "memory", "fs", "s3"
	StorageDir  string
	S3          S3Config

	// Signed URLs and tokens
	PublicBaseURL     string
	URLSigningSecret  string
	DownloadURLExpiry time.Duration
	JWTSecret         string
	TokenTTL          time.Duration

	ContentValidation string // "permissive", "strict"
	Stripe            StripeConfig
	CORSOrigins       []string
	APIKeySHA256      string

	// TrustProxy takes client addresses from proxy headers; only enable behind a proxy that sets them
	TrustProxy     bool
	LoginPerMinute int

	EnableEventLogging bool
}

// S3Config holds settings for the s3 storage type
type S3Config struct {
	Bucket                 string
	Region                 string
	AccessKeyID            string
	SecretAccessKey        string
	Endpoint               string
	UseSSL                 bool
	UsePathStyle           bool
	PresignDuration        time.Duration
	EnableSSE              bool
	SSEAlgorithm           string
	CreateBucketIfNotExist bool
}

// StripeConfig holds platform-wide Stripe settings. Keys here are used only
// for organisations that have not stored their own.
type StripeConfig struct {
	APIBase       string
	APIKey        string
	WebhookSecret string
	Mode          string // "test", "live"
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.StorageType {
	case "memory":
	case "fs":
		if c.StorageDir == "" {
			return errors.New("storage_dir is required for fs storage")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}

	if c.DownloadURLExpiry <= 0 {
		return errors.New("download_url_expiry must be positive")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token_ttl must be positive")
	}
	if _, err := simplesite.ParseValidationPolicy(c.ContentValidation); err != nil {
		return err
	}
	if _, ok := simplesite.ParseEnvironment(c.Stripe.Mode); !ok {
		return fmt.Errorf("stripe mode must be 'test' or 'live', got: %s", c.Stripe.Mode)
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return errors.New("jwt_secret is required in production")
		}
		if c.URLSigningSecret == "" {
			return errors.New("url_signing_secret is required in production")
		}
	}

	return nil
}

// Components are the assembled parts the HTTP layer needs.
type Components struct {
	Service   simplesite.Service
	BlobStore simplesite.BlobStore
	// Signer validates local download links; nil with s3 storage.
	Signer   *signedurl.Signer
	Payments *stripeprovider.Provider

	closers []func()
}

// Close releases database pools and other resources.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context) (simplesite.Service, error) {
	components, err := c.Build(ctx)
	if err != nil {
		return nil, err
	}
	return components.Service, nil
}

// Build assembles repository, blob store, payment provider and service.
func (c *ServerConfig) Build(ctx context.Context) (*Components, error) {
	if err := c.ensureSecrets(); err != nil {
		return nil, err
	}
	components := &Components{}
	var options []simplesite.Option

	// Set up repository
	repo, closeRepo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	if closeRepo != nil {
		components.closers = append(components.closers, closeRepo)
	}
	options = append(options, simplesite.WithRepository(repo))

	// Set up private file storage
	if c.StorageType != "s3" {
		signer, err := c.buildSigner()
		if err != nil {
			components.Close()
			return nil, err
		}
		components.Signer = signer
	}
	store, err := c.buildStorageBackend(ctx, components.Signer)
	if err != nil {
		components.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.StorageType, err)
	}
	components.BlobStore = store
	options = append(options, simplesite.WithBlobStore(store))

	// Set up payments
	components.Payments = stripeprovider.New(
		stripeprovider.WithAPIBase(c.Stripe.APIBase),
		stripeprovider.WithLogger(slog.Default()),
	)
	env, _ := simplesite.ParseEnvironment(c.Stripe.Mode)
	options = append(options,
		simplesite.WithPaymentProvider(components.Payments),
		simplesite.WithPaymentEnvironment(env),
		simplesite.WithDefaultPaymentCredentials(simplesite.PaymentCredentials{
			SecretKey:     c.Stripe.APIKey,
			WebhookSecret: c.Stripe.WebhookSecret,
		}),
	)

	policy, _ := simplesite.ParseValidationPolicy(c.ContentValidation)
	options = append(options, simplesite.WithValidationPolicy(policy))

	// Set up event sink
	if c.EnableEventLogging {
		options = append(options, simplesite.WithEventSink(simplesite.NewLoggingEventSink(slog.Default())))
	}

	svc, err := simplesite.New(options...)
	if err != nil {
		components.Close()
		return nil, err
	}
	components.Service = svc
	return components, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (simplesite.Repository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil, nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, nil, errors.New("database_url is required for postgres")
		}
		pool, err := NewPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		repo := repopg.NewWithPool(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return repo, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// NewPool opens a pgx pool whose sessions use schema as their search_path.
func NewPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres. It fails if the schema
// (when provided) cannot be selected.
func PingPostgres(ctx context.Context, databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := NewPool(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// ensureSecrets fills missing signing secrets with random values outside
// production. Tokens and links then do not survive a restart.
func (c *ServerConfig) ensureSecrets() error {
	for name, secret := range map[string]*string{"JWT_SECRET": &c.JWTSecret, "URL_SIGNING_SECRET": &c.URLSigningSecret} {
		if *secret != "" {
			continue
		}
		if c.Environment == "production" {
			return fmt.Errorf("%s is required in production", name)
		}
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("failed to generate %s: %w", name, err)
		}
		*secret = hex.EncodeToString(buf)
		slog.Warn("Using a random secret; set it to keep tokens and links valid across restarts", "name", name)
	}
	return nil
}

func (c *ServerConfig) buildSigner() (*signedurl.Signer, error) {
	return signedurl.New(
		signedurl.WithSecretKey(c.URLSigningSecret),
		signedurl.WithBaseURL(c.PublicBaseURL),
		signedurl.WithDefaultExpiration(c.DownloadURLExpiry),
	)
}

// buildStorageBackend creates a BlobStore based on the storage type
func (c *ServerConfig) buildStorageBackend(ctx context.Context, signer *signedurl.Signer) (simplesite.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(signer, c.DownloadURLExpiry), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir: c.StorageDir,
			Signer:  signer,
			Expiry:  c.DownloadURLExpiry,
		})

	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UseSSL:                 c.S3.UseSSL,
			UsePathStyle:           c.S3.UsePathStyle,
			PresignDuration:        c.S3.PresignDuration,
			EnableSSE:              c.S3.EnableSSE,
			SSEAlgorithm:           c.S3.SSEAlgorithm,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		})

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}
