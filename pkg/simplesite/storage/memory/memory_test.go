package memory

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-site/pkg/simplesite"
)

type stubSigner struct{}

func (stubSigner) SignObjectURL(objectKey, downloadFilename string, expiresIn time.Duration) string {
	return "/files/" + objectKey + "?signed=" + expiresIn.String()
}

func TestMemoryBackend(t *testing.T) {
	ctx := context.Background()
	b := New(stubSigner{}, time.Minute)

	require.NoError(t, b.Upload(ctx, strings.NewReader("data"), simplesite.UploadParams{ObjectKey: "a/b"}))

	meta, err := b.GetObjectMeta(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, int64(4), meta.Size)
	assert.Equal(t, "application/octet-stream", meta.ContentType)

	rc, err := b.Download(ctx, "a/b")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "data", string(data))

	link, err := b.GetDownloadURL(ctx, "a/b", "")
	require.NoError(t, err)
	assert.Equal(t, "/files/a/b?signed=1m0s", link)

	require.NoError(t, b.Delete(ctx, "a/b"))
	_, err = b.GetObjectMeta(ctx, "a/b")
	assert.ErrorIs(t, err, simplesite.ErrObjectNotFound)
	assert.ErrorIs(t, b.Delete(ctx, "a/b"), simplesite.ErrNotFound)
}

func TestMemoryBackend_WithoutSigner(t *testing.T) {
	_, err := New(nil, 0).GetDownloadURL(context.Background(), "k", "")
	assert.Error(t, err)
}
