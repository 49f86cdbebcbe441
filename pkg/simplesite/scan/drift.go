package scan

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-site/pkg/simplesite"
)

// Drift is a block whose content no longer matches its type's fields.
type Drift struct {
	BlockID uuid.UUID                 `json:"block_id"`
	TypeID  uuid.UUID                 `json:"type_id"`
	Report  *simplesite.ContentReport `json:"report"`
}

// DriftCollector is a BlockProcessor that records drifted blocks.
type DriftCollector struct {
	svc   simplesite.Service
	scope simplesite.Scope

	mu     sync.Mutex
	drifts []Drift
}

// NewDriftCollector creates a collector checking blocks as scope.
func NewDriftCollector(svc simplesite.Service, scope simplesite.Scope) *DriftCollector {
	return &DriftCollector{svc: svc, scope: scope}
}

func (c *DriftCollector) Process(ctx context.Context, block *simplesite.ContentBlock) error {
	report, err := c.svc.CheckContentBlock(ctx, c.scope, block.ID)
	if err != nil {
		return err
	}
	if report.Clean() {
		return nil
	}
	c.mu.Lock()
	c.drifts = append(c.drifts, Drift{BlockID: block.ID, TypeID: block.TypeID, Report: report})
	c.mu.Unlock()
	return nil
}

// Drifts returns the drifted blocks found so far.
func (c *DriftCollector) Drifts() []Drift {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Drift, len(c.drifts))
	copy(out, c.drifts)
	return out
}
