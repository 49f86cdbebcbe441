package simplesite

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful for testing or when event handling is not needed
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) ContentBlockSaved(ctx context.Context, block *ContentBlock) error {
	return nil
}

func (n *NoopEventSink) ContentBlockDeleted(ctx context.Context, blockID uuid.UUID) error {
	return nil
}

func (n *NoopEventSink) PageSaved(ctx context.Context, page *Page) error {
	return nil
}

func (n *NoopEventSink) ProviderConfigured(ctx context.Context, owner Owner, provider string) error {
	return nil
}

func (n *NoopEventSink) ProviderRemoved(ctx context.Context, owner Owner, provider string, removed int64) error {
	return nil
}

func (n *NoopEventSink) CustomerRegistered(ctx context.Context, customer *Customer) error {
	return nil
}

func (n *NoopEventSink) PaymentCompleted(ctx context.Context, payment *Payment) error {
	return nil
}

// LoggingEventSink writes every event as a structured log record.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink backed by logger, or slog.Default when nil.
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) ContentBlockSaved(ctx context.Context, block *ContentBlock) error {
	l.logger.InfoContext(ctx, "content block saved", "block_id", block.ID, "type_id", block.TypeID, "organisation_id", block.OrganisationID)
	return nil
}

func (l *LoggingEventSink) ContentBlockDeleted(ctx context.Context, blockID uuid.UUID) error {
	l.logger.InfoContext(ctx, "content block deleted", "block_id", blockID)
	return nil
}

func (l *LoggingEventSink) PageSaved(ctx context.Context, page *Page) error {
	l.logger.InfoContext(ctx, "page saved", "page_id", page.ID, "slug", page.Slug, "published", page.Published)
	return nil
}

func (l *LoggingEventSink) ProviderConfigured(ctx context.Context, owner Owner, provider string) error {
	l.logger.InfoContext(ctx, "provider configured", "owner_type", owner.Type, "owner_id", owner.ID, "provider", provider)
	return nil
}

func (l *LoggingEventSink) ProviderRemoved(ctx context.Context, owner Owner, provider string, removed int64) error {
	l.logger.InfoContext(ctx, "provider removed", "owner_type", owner.Type, "owner_id", owner.ID, "provider", provider, "values", removed)
	return nil
}

func (l *LoggingEventSink) CustomerRegistered(ctx context.Context, customer *Customer) error {
	l.logger.InfoContext(ctx, "customer registered", "customer_id", customer.ID, "organisation_id", customer.OrganisationID)
	return nil
}

func (l *LoggingEventSink) PaymentCompleted(ctx context.Context, payment *Payment) error {
	l.logger.InfoContext(ctx, "payment completed", "payment_id", payment.ID, "product_id", payment.ProductID, "customer_id", payment.CustomerID)
	return nil
}
