package scan

import (
	"context"

	"github.com/tendant/simple-site/pkg/simplesite"
)

// BlockProcessor processes individual content blocks.
//
// Example implementations:
//   - Drift reporter (compares blocks with their type's current fields)
//   - Exporter (writes blocks to another system)
type BlockProcessor interface {
	// Process is called for each block found during a scan.
	// Return error to mark this block as failed (scan continues with next block).
	Process(ctx context.Context, block *simplesite.ContentBlock) error
}
