package presets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-site/pkg/simplesite"
)

func ownerScope(t *testing.T, svc simplesite.Service) simplesite.Scope {
	t.Helper()
	ctx := context.Background()
	user, org, err := svc.RegisterUser(ctx, simplesite.RegisterUserRequest{Name: "Dev", Email: "dev@example.com", Password: "password123"})
	require.NoError(t, err)
	scope, err := svc.ResolveScope(ctx, org.ID, user.ID)
	require.NoError(t, err)
	return scope
}

func TestNewDevelopment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dev-data")
	svc, cleanup, err := NewDevelopment(WithDevStorage(dir), WithDevBaseURL("http://localhost:9000"))
	require.NoError(t, err)

	ctx := context.Background()
	scope := ownerScope(t, svc)

	types, err := svc.ListContentBlockTypes(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, types, len(simplesite.StarterContentBlockTypes()))

	f, err := svc.UploadFile(ctx, scope, simplesite.UploadFileRequest{Name: "hello.txt", MimeType: "text/plain", Reader: strings.NewReader("Hello Development!")})
	require.NoError(t, err)

	link, err := svc.GetFileURL(ctx, scope, f.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "http://localhost:9000/"), link)

	_, err = os.Stat(dir)
	require.NoError(t, err)
	cleanup()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "storage directory should be removed after cleanup")
}

func TestNewDevelopment_WithoutStarterTypes(t *testing.T) {
	svc, cleanup, err := NewDevelopment(WithDevStorage(t.TempDir()), WithoutStarterTypes())
	require.NoError(t, err)
	defer cleanup()

	types, err := svc.ListContentBlockTypes(context.Background(), ownerScope(t, svc))
	require.NoError(t, err)
	assert.Empty(t, types)
}

func TestNewDevelopment_InvalidOption(t *testing.T) {
	_, _, err := NewDevelopment(WithDevStorage(t.TempDir()), WithDevServiceOption(simplesite.WithValidationPolicy("loose")))
	assert.Error(t, err)
}

func TestNewTesting(t *testing.T) {
	svc := NewTesting(t, WithTestFixtures(), WithTestServiceOption(simplesite.WithValidationPolicy(simplesite.PolicyStrict)))
	ctx := context.Background()
	scope := ownerScope(t, svc)

	types, err := svc.ListContentBlockTypes(ctx, scope)
	require.NoError(t, err)
	require.NotEmpty(t, types)

	f, err := svc.UploadFile(ctx, scope, simplesite.UploadFileRequest{Name: "a.txt", MimeType: "text/plain", Reader: strings.NewReader("abc")})
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.Size)

	_, err = svc.GetFile(ctx, scope, f.ID)
	require.NoError(t, err)
}
