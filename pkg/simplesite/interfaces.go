package simplesite

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for storage backends
type BlobStore interface {
	// Upload stores the reader's bytes under params.ObjectKey
	Upload(ctx context.Context, reader io.Reader, params UploadParams) error

	// GetDownloadURL returns a signed, time-limited URL for downloading content
	GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error)

	// Download downloads content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete deletes content
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// Repository defines the interface for persistence. Implementations enforce
// the unique constraints (slugs, domains, credential keys, customer emails)
// and report violations as ErrDuplicate.
type Repository interface {
	// Users and organisations
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateOrganisation(ctx context.Context, org *Organisation) error
	GetOrganisation(ctx context.Context, id uuid.UUID) (*Organisation, error)
	ListOrganisationsForUser(ctx context.Context, userID uuid.UUID) ([]*Organisation, error)
	UpsertMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*Membership, error)
	ListMemberships(ctx context.Context, orgID uuid.UUID) ([]*Membership, error)
	DeleteMembership(ctx context.Context, orgID, userID uuid.UUID) error

	// Content block types. A nil orgID addresses the default scope.
	CreateContentBlockType(ctx context.Context, t *ContentBlockType) error
	GetContentBlockType(ctx context.Context, id uuid.UUID) (*ContentBlockType, error)
	GetContentBlockTypeBySlug(ctx context.Context, orgID *uuid.UUID, slug string) (*ContentBlockType, error)
	UpdateContentBlockType(ctx context.Context, t *ContentBlockType) error
	DeleteContentBlockType(ctx context.Context, id uuid.UUID) error
	// ListContentBlockTypes returns the organisation's types and every default type
	ListContentBlockTypes(ctx context.Context, orgID uuid.UUID) ([]*ContentBlockType, error)
	// ContentBlockTypeUsage counts blocks of the type and other types whose array fields reference it
	ContentBlockTypeUsage(ctx context.Context, id uuid.UUID) (blocks int, referencingTypes int, err error)

	// Content blocks
	CreateContentBlock(ctx context.Context, b *ContentBlock) error
	GetContentBlock(ctx context.Context, id uuid.UUID) (*ContentBlock, error)
	UpdateContentBlock(ctx context.Context, b *ContentBlock) error
	DeleteContentBlock(ctx context.Context, id uuid.UUID) error
	ListContentBlocks(ctx context.Context, orgID uuid.UUID, typeID *uuid.UUID) ([]*ContentBlock, error)

	// Websites, pages and their block attachments
	CreateWebsite(ctx context.Context, w *Website) error
	GetWebsite(ctx context.Context, id uuid.UUID) (*Website, error)
	GetWebsiteByDomain(ctx context.Context, domain string) (*Website, error)
	UpdateWebsite(ctx context.Context, w *Website) error
	DeleteWebsite(ctx context.Context, id uuid.UUID) error
	ListWebsites(ctx context.Context, orgID uuid.UUID) ([]*Website, error)
	CreatePage(ctx context.Context, p *Page) error
	GetPage(ctx context.Context, id uuid.UUID) (*Page, error)
	GetPageBySlug(ctx context.Context, orgID uuid.UUID, slug string) (*Page, error)
	UpdatePage(ctx context.Context, p *Page) error
	DeletePage(ctx context.Context, id uuid.UUID) error
	ListPages(ctx context.Context, orgID uuid.UUID, websiteID *uuid.UUID) ([]*Page, error)
	// SetPageBlocks replaces the page's ordered block list
	SetPageBlocks(ctx context.Context, pageID uuid.UUID, blockIDs []uuid.UUID) error
	ListPageBlocks(ctx context.Context, pageID uuid.UUID) ([]*ContentBlock, error)
	UpsertGlobalBlock(ctx context.Context, g *GlobalContentBlock) error
	DeleteGlobalBlock(ctx context.Context, websiteID uuid.UUID, key string) error
	ListGlobalBlocks(ctx context.Context, websiteID uuid.UUID) ([]*GlobalContentBlock, error)

	// Third-party credential values
	UpsertVariableValue(ctx context.Context, v *VariableValue) error
	GetVariableValue(ctx context.Context, owner Owner, provider, key string) (*VariableValue, error)
	// ListVariableValues lists the owner's values; an empty provider lists all providers
	ListVariableValues(ctx context.Context, owner Owner, provider string) ([]*VariableValue, error)
	DeleteProviderValues(ctx context.Context, owner Owner, provider string) (int64, error)

	// Customers and tokens
	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error)
	GetCustomerByEmail(ctx context.Context, orgID uuid.UUID, email string) (*Customer, error)
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)

	// Products, payments and grants
	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ListProducts(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]*Product, error)
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetPaymentBySessionID(ctx context.Context, sessionID string) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error
	// CompletePayment transitions a non-completed payment to completed and
	// reports whether a transition happened
	CompletePayment(ctx context.Context, id uuid.UUID, providerPaymentID string, completedAt time.Time) (bool, error)
	ListPayments(ctx context.Context, orgID uuid.UUID) ([]*Payment, error)
	AttachProduct(ctx context.Context, cp *CustomerProduct) error
	HasProduct(ctx context.Context, customerID, productID uuid.UUID) (bool, error)

	// Private files
	CreatePrivateFile(ctx context.Context, f *PrivateFile) error
	GetPrivateFile(ctx context.Context, id uuid.UUID) (*PrivateFile, error)
	GetPrivateFileByObjectKey(ctx context.Context, objectKey string) (*PrivateFile, error)
	ListPrivateFiles(ctx context.Context, orgID uuid.UUID) ([]*PrivateFile, error)
	DeletePrivateFile(ctx context.Context, id uuid.UUID) error
}

// PaymentCredentials are the provider keys used for one checkout or webhook.
type PaymentCredentials struct {
	SecretKey     string
	WebhookSecret string
}

// CheckoutRequest describes a hosted checkout session to create.
type CheckoutRequest struct {
	PaymentID     uuid.UUID
	CustomerEmail string
	ProductName   string
	AmountCents   int64
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the provider's hosted checkout.
type CheckoutSession struct {
	ID  string
	URL string
}

// EventCheckoutCompleted is the provider event that completes a payment.
const EventCheckoutCompleted = "checkout.session.completed"

// PaymentEvent is a verified webhook event.
type PaymentEvent struct {
	ID                string
	Type              string
	SessionID         string
	PaymentIntentID   string
	ClientReferenceID string
}

// PaymentProvider creates hosted checkouts and verifies webhook payloads.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, creds PaymentCredentials, req CheckoutRequest) (*CheckoutSession, error)
	// ParseWebhookEvent verifies the signature header and decodes the event.
	// Signature failures wrap ErrInvalidSignature.
	ParseWebhookEvent(payload []byte, signatureHeader string, secret string) (*PaymentEvent, error)
}

// EventSink defines the interface for event handling
type EventSink interface {
	ContentBlockSaved(ctx context.Context, block *ContentBlock) error
	ContentBlockDeleted(ctx context.Context, blockID uuid.UUID) error
	PageSaved(ctx context.Context, page *Page) error
	ProviderConfigured(ctx context.Context, owner Owner, provider string) error
	ProviderRemoved(ctx context.Context, owner Owner, provider string, removed int64) error
	CustomerRegistered(ctx context.Context, customer *Customer) error
	PaymentCompleted(ctx context.Context, payment *Payment) error
}
