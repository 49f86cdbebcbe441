package scan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/simple-site/pkg/simplesite"
)

// Scanner walks an organisation's content blocks and hands each to a processor.
type Scanner struct {
	svc simplesite.Service
}

// New creates a new Scanner instance.
func New(svc simplesite.Service) *Scanner {
	return &Scanner{svc: svc}
}

// ScanOptions configures the scan operation.
type ScanOptions struct {
	// TypeID restricts the scan to blocks of one type
	TypeID *uuid.UUID

	// Processor defines the processing logic (required unless DryRun is true)
	Processor BlockProcessor

	// DryRun counts the blocks that would be processed without processing them
	DryRun bool

	// OnProgress is called after each block (optional)
	OnProgress func(processed, total int64)
}

// ScanResult contains statistics about the scan operation.
type ScanResult struct {
	TotalFound     int64
	TotalProcessed int64
	TotalFailed    int64
	FailedIDs      []uuid.UUID
}

// Scan lists the blocks visible to scope and processes each one. A failing
// block is recorded and the scan continues.
func (s *Scanner) Scan(ctx context.Context, scope simplesite.Scope, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{}
	if !opts.DryRun && opts.Processor == nil {
		return result, fmt.Errorf("processor is required when DryRun is false")
	}

	blocks, err := s.svc.ListContentBlocks(ctx, scope, opts.TypeID)
	if err != nil {
		return result, fmt.Errorf("failed to list content blocks: %w", err)
	}
	result.TotalFound = int64(len(blocks))

	for _, block := range blocks {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		switch {
		case opts.DryRun:
			result.TotalProcessed++
		default:
			if err := opts.Processor.Process(ctx, block); err != nil {
				slog.Warn("Failed to process content block", "block_id", block.ID, "err", err)
				result.TotalFailed++
				result.FailedIDs = append(result.FailedIDs, block.ID)
			} else {
				result.TotalProcessed++
			}
		}
		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalProcessed+result.TotalFailed, result.TotalFound)
		}
	}
	return result, nil
}

// ForEach processes each block of scope with fn.
func (s *Scanner) ForEach(ctx context.Context, scope simplesite.Scope, fn func(context.Context, *simplesite.ContentBlock) error) (*ScanResult, error) {
	return s.Scan(ctx, scope, ScanOptions{Processor: ProcessorFunc(fn)})
}

// ProcessorFunc adapts a function to the BlockProcessor interface.
type ProcessorFunc func(context.Context, *simplesite.ContentBlock) error

func (f ProcessorFunc) Process(ctx context.Context, block *simplesite.ContentBlock) error {
	return f(ctx, block)
}
