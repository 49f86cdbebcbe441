// Package stripe implements simplesite.PaymentProvider with Stripe Checkout.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/tendant/simple-site/pkg/simplesite"
)

// Provider creates Stripe Checkout sessions and verifies Stripe webhooks.
// Credentials are passed per call because every organisation stores its own keys.
type Provider struct {
	backend stripeapi.Backend
}

type options struct {
	apiBase    string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int64
}

// Option configures the provider
type Option func(*options)

// WithAPIBase points the client at a different API host, e.g. stripe-mock.
func WithAPIBase(base string) Option {
	return func(o *options) {
		o.apiBase = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient sets the HTTP client used for API calls
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithLogger routes stripe-go's own logging to logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMaxNetworkRetries sets how often stripe-go retries failed requests.
func WithMaxNetworkRetries(n int64) Option {
	return func(o *options) {
		o.maxRetries = n
	}
}

// New creates a Stripe provider
func New(opts ...Option) *Provider {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	cfg := &stripeapi.BackendConfig{
		HTTPClient:        o.httpClient,
		LeveledLogger:     &slogLogger{logger: o.logger},
		MaxNetworkRetries: stripeapi.Int64(o.maxRetries),
	}
	if o.apiBase != "" {
		cfg.URL = stripeapi.String(o.apiBase)
	}
	return &Provider{backend: stripeapi.GetBackendWithConfig(stripeapi.APIBackend, cfg)}
}

func (p *Provider) sessions(secretKey string) session.Client {
	return session.Client{B: p.backend, Key: secretKey}
}

// CreateCheckoutSession creates a one-off payment session for a single product.
// The payment id travels as client_reference_id so the webhook can be matched.
func (p *Provider) CreateCheckoutSession(ctx context.Context, creds simplesite.PaymentCredentials, req simplesite.CheckoutRequest) (*simplesite.CheckoutSession, error) {
	if creds.SecretKey == "" {
		return nil, simplesite.ErrProviderNotConfigured
	}

	params := &stripeapi.CheckoutSessionParams{
		Params:            stripeapi.Params{Context: ctx},
		Mode:              stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		ClientReferenceID: stripeapi.String(req.PaymentID.String()),
		SuccessURL:        stripeapi.String(req.SuccessURL),
		CancelURL:         stripeapi.String(req.CancelURL),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripeapi.String(strings.ToLower(req.Currency)),
					UnitAmount: stripeapi.Int64(req.AmountCents),
					ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripeapi.String(req.ProductName),
					},
				},
				Quantity: stripeapi.Int64(1),
			},
		},
		Metadata: map[string]string{"payment_id": req.PaymentID.String()},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripeapi.String(req.CustomerEmail)
	}

	cs, err := p.sessions(creds.SecretKey).New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &simplesite.CheckoutSession{ID: cs.ID, URL: cs.URL}, nil
}

// ParseWebhookEvent verifies the Stripe-Signature header and decodes checkout events.
func (p *Provider) ParseWebhookEvent(payload []byte, signatureHeader string, secret string) (*simplesite.PaymentEvent, error) {
	if secret == "" {
		return nil, simplesite.ErrProviderNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", simplesite.ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}

	result := &simplesite.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(result.Type, "checkout.session.") || event.Data == nil {
		return result, nil
	}

	var cs stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	result.SessionID = cs.ID
	result.ClientReferenceID = cs.ClientReferenceID
	if cs.PaymentIntent != nil {
		result.PaymentIntentID = cs.PaymentIntent.ID
	}
	return result, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// SessionSummary is a trimmed checkout session for diagnostics.
type SessionSummary struct {
	ID                string
	Status            string
	PaymentStatus     string
	AmountTotal       int64
	Currency          string
	ClientReferenceID string
	Created           int64
}

// ListRecentSessions returns up to limit of the account's most recent checkout sessions.
func (p *Provider) ListRecentSessions(ctx context.Context, secretKey string, limit int64) ([]SessionSummary, error) {
	if secretKey == "" {
		return nil, simplesite.ErrProviderNotConfigured
	}
	params := &stripeapi.CheckoutSessionListParams{}
	params.Context = ctx
	params.Limit = stripeapi.Int64(limit)
	params.Single = true

	var result []SessionSummary
	iter := p.sessions(secretKey).List(params)
	for iter.Next() {
		cs := iter.CheckoutSession()
		result = append(result, SessionSummary{
			ID:                cs.ID,
			Status:            string(cs.Status),
			PaymentStatus:     string(cs.PaymentStatus),
			AmountTotal:       cs.AmountTotal,
			Currency:          string(cs.Currency),
			ClientReferenceID: cs.ClientReferenceID,
			Created:           cs.Created,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list checkout sessions: %w", err)
	}
	return result, nil
}

// slogLogger adapts slog to stripe-go's LeveledLoggerInterface.
type slogLogger struct {
	logger *slog.Logger
}

func (l *slogLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *slogLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *slogLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *slogLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "stripe")
}

var _ simplesite.PaymentProvider = (*Provider)(nil)
