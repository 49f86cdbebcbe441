package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-site/pkg/simplesite"
)

func TestS3Backend_Configuration(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(ctx, Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("Defaults", func(t *testing.T) {
		backend, err := New(ctx, Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", backend.config.Region)
		assert.Equal(t, 15*time.Minute, backend.presignDuration)
	})
}

func TestS3Backend_PresignedDownloadURL(t *testing.T) {
	backend, err := New(context.Background(), Config{
		Bucket:          "private-files",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Endpoint:        "localhost:9000",
		UsePathStyle:    true,
		PresignDuration: 5 * time.Minute,
	})
	require.NoError(t, err)

	link, err := backend.GetDownloadURL(context.Background(), "orgs/o/files/f/report.pdf", "report.pdf")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "/private-files/orgs/o/files/f/report.pdf", u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("response-content-disposition"), "report.pdf")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

// TestS3Backend_Integration runs against MinIO when S3_TEST_ENDPOINT is set.
func TestS3Backend_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	endpoint := os.Getenv("S3_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("Skipping integration test: S3_TEST_ENDPOINT not set")
	}
	ctx := context.Background()
	backend, err := New(ctx, Config{
		Bucket:                 "simplesite-test",
		AccessKeyID:            os.Getenv("S3_TEST_ACCESS_KEY_ID"),
		SecretAccessKey:        os.Getenv("S3_TEST_SECRET_ACCESS_KEY"),
		Endpoint:               endpoint,
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)

	key := "orgs/test/files/it.txt"
	require.NoError(t, backend.Upload(ctx, bytes.NewReader([]byte("hello s3")), simplesite.UploadParams{ObjectKey: key, MimeType: "text/plain"}))

	meta, err := backend.GetObjectMeta(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(8), meta.Size)
	assert.Equal(t, "text/plain", meta.ContentType)

	rc, err := backend.Download(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "hello s3", string(data))

	require.NoError(t, backend.Delete(ctx, key))
	_, err = backend.GetObjectMeta(ctx, key)
	assert.ErrorIs(t, err, simplesite.ErrObjectNotFound)
}
