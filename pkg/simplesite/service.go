package simplesite

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-site/pkg/simplesite/objectkey"
)

// Service defines the main interface for the simple-site library
type Service interface {
	// Users, organisations and memberships
	RegisterUser(ctx context.Context, req RegisterUserRequest) (*User, *Organisation, error)
	AuthenticateUser(ctx context.Context, email, password string) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	CreateOrganisation(ctx context.Context, userID uuid.UUID, req CreateOrganisationRequest) (*Organisation, error)
	ListOrganisationsForUser(ctx context.Context, userID uuid.UUID) ([]*Organisation, error)
	ResolveScope(ctx context.Context, orgID, userID uuid.UUID) (Scope, error)
	AddMember(ctx context.Context, scope Scope, req AddMemberRequest) (*Membership, error)
	RemoveMember(ctx context.Context, scope Scope, userID uuid.UUID) error
	ListMembers(ctx context.Context, scope Scope) ([]*Membership, error)

	// Content block types
	CreateContentBlockType(ctx context.Context, scope Scope, req SaveContentBlockTypeRequest) (*ContentBlockType, error)
	CreateDefaultContentBlockType(ctx context.Context, req SaveContentBlockTypeRequest) (*ContentBlockType, error)
	UpdateContentBlockType(ctx context.Context, scope Scope, id uuid.UUID, req SaveContentBlockTypeRequest) (*ContentBlockType, error)
	DeleteContentBlockType(ctx context.Context, scope Scope, id uuid.UUID) error
	GetContentBlockType(ctx context.Context, scope Scope, id uuid.UUID) (*ContentBlockType, error)
	ListContentBlockTypes(ctx context.Context, scope Scope) ([]*ContentBlockType, error)

	// Content blocks
	CreateContentBlock(ctx context.Context, scope Scope, req SaveContentBlockRequest) (*ContentBlock, error)
	UpdateContentBlock(ctx context.Context, scope Scope, id uuid.UUID, req SaveContentBlockRequest) (*ContentBlock, error)
	DeleteContentBlock(ctx context.Context, scope Scope, id uuid.UUID) error
	GetContentBlock(ctx context.Context, scope Scope, id uuid.UUID) (*ContentBlock, error)
	ListContentBlocks(ctx context.Context, scope Scope, typeID *uuid.UUID) ([]*ContentBlock, error)
	CheckContentBlock(ctx context.Context, scope Scope, id uuid.UUID) (*ContentReport, error)
	RenderContentBlock(ctx context.Context, block *ContentBlock) (*RenderedBlock, error)

	// Websites and pages
	CreateWebsite(ctx context.Context, scope Scope, req SaveWebsiteRequest) (*Website, error)
	UpdateWebsite(ctx context.Context, scope Scope, id uuid.UUID, req SaveWebsiteRequest) (*Website, error)
	DeleteWebsite(ctx context.Context, scope Scope, id uuid.UUID) error
	GetWebsite(ctx context.Context, scope Scope, id uuid.UUID) (*Website, error)
	ListWebsites(ctx context.Context, scope Scope) ([]*Website, error)
	CreatePage(ctx context.Context, scope Scope, req SavePageRequest) (*Page, error)
	UpdatePage(ctx context.Context, scope Scope, id uuid.UUID, req SavePageRequest) (*Page, error)
	DeletePage(ctx context.Context, scope Scope, id uuid.UUID) error
	GetPage(ctx context.Context, scope Scope, id uuid.UUID) (*Page, error)
	ListPages(ctx context.Context, scope Scope, websiteID *uuid.UUID) ([]*Page, error)
	SetPageBlocks(ctx context.Context, scope Scope, pageID uuid.UUID, blockIDs []uuid.UUID) error
	ListPageBlocks(ctx context.Context, scope Scope, pageID uuid.UUID) ([]*ContentBlock, error)
	AttachGlobalBlock(ctx context.Context, scope Scope, websiteID uuid.UUID, req AttachGlobalBlockRequest) (*GlobalContentBlock, error)
	DetachGlobalBlock(ctx context.Context, scope Scope, websiteID uuid.UUID, key string) error
	ListGlobalBlocks(ctx context.Context, scope Scope, websiteID uuid.UUID) ([]*GlobalContentBlock, error)
	GetPublishedPage(ctx context.Context, domain, slug string) (*RenderedPage, error)

	// Third-party credentials
	SetVariable(ctx context.Context, owner Owner, provider, key, value string) error
	GetVariable(ctx context.Context, owner Owner, provider, key string) (string, bool, error)
	RemoveProvider(ctx context.Context, owner Owner, provider string) (int64, error)
	ConfigureProvider(ctx context.Context, scope Scope, provider string, values map[string]string) error
	ProviderConfiguration(ctx context.Context, scope Scope, provider string) (*ProviderConfiguration, error)
	RemoveProviderConfiguration(ctx context.Context, scope Scope, provider string) error
	ConfiguredProviders(ctx context.Context, scope Scope) ([]string, error)

	// Customers
	RegisterCustomer(ctx context.Context, req RegisterCustomerRequest) (*Customer, error)
	AuthenticateCustomer(ctx context.Context, orgID uuid.UUID, email, password string) (*Customer, error)
	GetCustomer(ctx context.Context, orgID, id uuid.UUID) (*Customer, error)
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)

	// Products and payments
	CreateProduct(ctx context.Context, scope Scope, req SaveProductRequest) (*Product, error)
	UpdateProduct(ctx context.Context, scope Scope, id uuid.UUID, req SaveProductRequest) (*Product, error)
	DeleteProduct(ctx context.Context, scope Scope, id uuid.UUID) error
	GetProduct(ctx context.Context, orgID, id uuid.UUID) (*Product, error)
	ListProducts(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]*Product, error)
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
	CompleteCheckout(ctx context.Context, sessionID, providerPaymentID string) (*Payment, error)
	HandlePaymentWebhook(ctx context.Context, orgID uuid.UUID, payload []byte, signatureHeader string) error
	HasAccess(ctx context.Context, orgID, customerID, productID uuid.UUID) (bool, error)
	ListPayments(ctx context.Context, scope Scope) ([]*Payment, error)

	// Private files
	UploadFile(ctx context.Context, scope Scope, req UploadFileRequest) (*PrivateFile, error)
	GetFile(ctx context.Context, scope Scope, id uuid.UUID) (*PrivateFile, error)
	GetFileURL(ctx context.Context, scope Scope, id uuid.UUID) (string, error)
	ListFiles(ctx context.Context, scope Scope) ([]*PrivateFile, error)
	DeleteFile(ctx context.Context, scope Scope, id uuid.UUID) error
}

// Option configures the service
type Option func(*service)

// WithRepository sets the repository
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob store for private files and file fields
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithPaymentProvider sets the hosted checkout provider
func WithPaymentProvider(provider PaymentProvider) Option {
	return func(s *service) {
		s.payments = provider
	}
}

// WithEventSink sets the event sink
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithValidationPolicy sets how content drift is treated
func WithValidationPolicy(policy ValidationPolicy) Option {
	return func(s *service) {
		s.policy = policy
	}
}

// WithPaymentEnvironment selects which stored Stripe credential set is used
func WithPaymentEnvironment(env Environment) Option {
	return func(s *service) {
		s.paymentEnv = env
	}
}

// WithDefaultPaymentCredentials sets credentials used when an organisation has none stored
func WithDefaultPaymentCredentials(creds PaymentCredentials) Option {
	return func(s *service) {
		s.defaultPaymentCreds = creds
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		policy:     PolicyPermissive,
		paymentEnv: EnvironmentTest,
		now:        time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, errors.New("repository is required")
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.keyGenerator == nil {
		s.keyGenerator = objectkey.NewTenantGenerator()
	}
	if s.policy != PolicyPermissive && s.policy != PolicyStrict {
		return nil, errors.New("invalid validation policy: " + string(s.policy))
	}

	return s, nil
}

type service struct {
	repository          Repository
	blobStore           BlobStore
	payments            PaymentProvider
	eventSink           EventSink
	policy              ValidationPolicy
	paymentEnv          Environment
	defaultPaymentCreds PaymentCredentials
	keyGenerator        objectkey.Generator
	now                 func() time.Time
}

func (s *service) timestamp() time.Time {
	return s.now().UTC()
}
