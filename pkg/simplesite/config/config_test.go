package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-site/pkg/simplesite"
)

func TestWithPort(t *testing.T) {
	cfg, err := Load(WithPort("9090"))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)

	_, err = Load(WithPort(""))
	assert.Error(t, err)
}

func TestWithDatabase(t *testing.T) {
	tests := []struct {
		name      string
		dbType    string
		url       string
		wantError bool
	}{
		{"memory valid", "memory", "", false},
		{"postgres valid", "postgres", "postgresql://localhost/test", false},
		{"postgres missing url", "postgres", "", true},
		{"invalid type", "mysql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(WithDatabase(tt.dbType, tt.url))
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dbType, cfg.DatabaseType)
			assert.Equal(t, tt.url, cfg.DatabaseURL)
		})
	}
}

func TestStorageOptions(t *testing.T) {
	cfg, err := Load(WithS3Storage("files", "eu-central-1"), WithS3Credentials("id", "secret"), WithS3Endpoint("localhost:9000", false, true))
	require.NoError(t, err)
	assert.Equal(t, "s3", cfg.StorageType)
	assert.Equal(t, "files", cfg.S3.Bucket)
	assert.Equal(t, "eu-central-1", cfg.S3.Region)
	assert.Equal(t, "id", cfg.S3.AccessKeyID)
	assert.True(t, cfg.S3.UsePathStyle)
	assert.False(t, cfg.S3.UseSSL)

	_, err = Load(WithFilesystemStorage(""))
	assert.Error(t, err)
	_, err = Load(WithS3Storage("", ""))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("ProductionRequiresSecrets", func(t *testing.T) {
		_, err := Load(WithEnvironment("production"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt_secret")

		_, err = Load(WithEnvironment("production"), WithJWT("jwt", 0), WithURLSigning("url", 0))
		assert.NoError(t, err)
	})

	t.Run("ContentValidation", func(t *testing.T) {
		cfg, err := Load(WithContentValidation(simplesite.PolicyStrict))
		require.NoError(t, err)
		assert.Equal(t, "strict", cfg.ContentValidation)

		_, err = Load(WithContentValidation("lenient"))
		assert.Error(t, err)
	})

	t.Run("Durations", func(t *testing.T) {
		cfg, err := Load(WithJWT("s", time.Hour), WithURLSigning("u", time.Minute))
		require.NoError(t, err)
		assert.Equal(t, time.Hour, cfg.TokenTTL)
		assert.Equal(t, time.Minute, cfg.DownloadURLExpiry)
	})
}

func TestBuild_Memory(t *testing.T) {
	cfg, err := Load(
		WithURLSigning("signing-secret", time.Minute),
		WithJWT("jwt-secret", time.Hour),
		WithPublicBaseURL("https://cms.test/"),
		WithStripe("sk_test_platform", "whsec_platform", simplesite.EnvironmentTest),
		WithEventLogging(false),
	)
	require.NoError(t, err)

	components, err := cfg.Build(context.Background())
	require.NoError(t, err)
	defer components.Close()

	require.NotNil(t, components.Service)
	require.NotNil(t, components.BlobStore)
	require.NotNil(t, components.Signer)
	require.NotNil(t, components.Payments)

	ctx := context.Background()
	require.NoError(t, components.BlobStore.Upload(ctx, strings.NewReader("x"), simplesite.UploadParams{ObjectKey: "orgs/o/files/f/a.txt"}))
	link, err := components.BlobStore.GetDownloadURL(ctx, "orgs/o/files/f/a.txt", "a.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://cms.test/files/orgs/o/files/f/a.txt?"), link)

	user, org, err := components.Service.RegisterUser(ctx, simplesite.RegisterUserRequest{Name: "Ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, org.OwnerID)
}

func TestBuild_Filesystem(t *testing.T) {
	cfg, err := Load(WithFilesystemStorage(t.TempDir()), WithURLSigning("secret", 0))
	require.NoError(t, err)

	components, err := cfg.Build(context.Background())
	require.NoError(t, err)
	defer components.Close()

	ctx := context.Background()
	require.NoError(t, components.BlobStore.Upload(ctx, strings.NewReader("hello"), simplesite.UploadParams{ObjectKey: "k.txt"}))
	meta, err := components.BlobStore.GetObjectMeta(ctx, "k.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Size)
}

func TestBuild_GeneratesDevelopmentSecrets(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	_, err = cfg.BuildService(context.Background())
	require.NoError(t, err)
	assert.Len(t, cfg.JWTSecret, 64)
	assert.Len(t, cfg.URLSigningSecret, 64)
	assert.NotEqual(t, cfg.JWTSecret, cfg.URLSigningSecret)
}
