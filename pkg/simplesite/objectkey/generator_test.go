package objectkey

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTenantGenerator(t *testing.T) {
	orgID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	fileID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	g := NewTenantGenerator()

	assert.Equal(t,
		"orgs/11111111-1111-1111-1111-111111111111/files/22222222-2222-2222-2222-222222222222/report.pdf",
		g.GenerateKey(orgID, fileID, "report.pdf"))
	assert.Equal(t,
		"orgs/11111111-1111-1111-1111-111111111111/files/22222222-2222-2222-2222-222222222222",
		g.GenerateKey(orgID, fileID, ""))
}

func TestShardedGenerator(t *testing.T) {
	fileID := uuid.MustParse("abcdef12-3456-7890-abcd-ef1234567890")
	key := NewShardedGenerator().GenerateKey(uuid.New(), fileID, "photo.png")

	assert.True(t, strings.HasPrefix(key, "files/ab/cdef1234"), key)
	assert.True(t, strings.HasSuffix(key, "_photo.png"), key)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\my file (1).txt`, "my_file_1_.txt"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}
