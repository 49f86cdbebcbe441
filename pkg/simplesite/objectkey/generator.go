package objectkey

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Generator defines the interface for private-file object key strategies
type Generator interface {
	// GenerateKey creates the storage key for a file of an organisation
	GenerateKey(orgID, fileID uuid.UUID, fileName string) string
}

// TenantGenerator groups files under their organisation:
// orgs/{org}/files/{file}/{name}
type TenantGenerator struct{}

func NewTenantGenerator() *TenantGenerator {
	return &TenantGenerator{}
}

func (g *TenantGenerator) GenerateKey(orgID, fileID uuid.UUID, fileName string) string {
	name := SanitizeFilename(fileName)
	if name == "" {
		return fmt.Sprintf("orgs/%s/files/%s", orgID, fileID)
	}
	return fmt.Sprintf("orgs/%s/files/%s/%s", orgID, fileID, name)
}

// ShardedGenerator spreads files over Git-style shard directories:
// files/ab/cd1234ef5678_name
type ShardedGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{ShardLength: 2}
}

func (g *ShardedGenerator) GenerateKey(orgID, fileID uuid.UUID, fileName string) string {
	id := strings.ReplaceAll(fileID.String(), "-", "")
	n := g.ShardLength
	if n <= 0 || n > len(id) {
		n = 2
	}
	rest := id[n:]
	if name := SanitizeFilename(fileName); name != "" {
		rest = rest + "_" + name
	}
	return path.Join("files", id[:n], rest)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename keeps a file name safe for every storage backend.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if len(name) > 128 {
		name = name[len(name)-128:]
	}
	return name
}
