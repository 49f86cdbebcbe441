package simplesite

import (
	"time"

	"github.com/google/uuid"
)

// Role is a member's role within an organisation.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

func (r Role) rank() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	case RoleOwner:
		return 4
	}
	return 0
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r.rank() > 0
}

// AtLeast reports whether r grants at least the permissions of min.
func (r Role) AtLeast(min Role) bool {
	return r.IsValid() && r.rank() >= min.rank()
}

// User is an admin-surface account. Users reach organisations through memberships.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Organisation is the tenant boundary.
type Organisation struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Personal  bool      `json:"personal"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership links a user to an organisation with a role.
type Membership struct {
	OrganisationID uuid.UUID `json:"organisation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// FieldType is the closed set of field kinds a block type may declare.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldRichText FieldType = "richtext"
	FieldSelect   FieldType = "select"
	FieldFile     FieldType = "file"
	FieldCheckbox FieldType = "checkbox"
	FieldRadio    FieldType = "radio"
	FieldSwitch   FieldType = "switch"
	FieldEmail    FieldType = "email"
	FieldPassword FieldType = "password"
	FieldURL      FieldType = "url"
	FieldPhone    FieldType = "phone"
	FieldDate     FieldType = "date"
	FieldTime     FieldType = "time"
	// FieldArray is a list of nested documents of another block type.
	FieldArray FieldType = "array"
)

// FieldTypes lists every supported field type in display order.
var FieldTypes = []FieldType{
	FieldText, FieldTextarea, FieldRichText, FieldSelect, FieldFile,
	FieldCheckbox, FieldRadio, FieldSwitch, FieldEmail, FieldPassword,
	FieldURL, FieldPhone, FieldDate, FieldTime, FieldArray,
}

// IsValid reports whether t is a known field type.
func (t FieldType) IsValid() bool {
	for _, known := range FieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// HasOptions reports whether values of t are chosen from FieldDefinition.Options.
func (t FieldType) HasOptions() bool {
	return t == FieldSelect || t == FieldRadio
}

// IsBoolean reports whether values of t are booleans.
func (t FieldType) IsBoolean() bool {
	return t == FieldCheckbox || t == FieldSwitch
}

// FieldDefinition is one entry in a block type's ordered field list.
// ItemTypeID is set only for FieldArray and references another block type.
type FieldDefinition struct {
	Label      string     `json:"label"`
	Slug       string     `json:"slug"`
	Type       FieldType  `json:"type"`
	Required   bool       `json:"required"`
	Options    []string   `json:"options,omitempty"`
	ItemTypeID *uuid.UUID `json:"item_type_id,omitempty"`
}

// ContentBlockType is a named schema for content blocks. A nil
// OrganisationID marks a default type visible to every organisation.
type ContentBlockType struct {
	ID             uuid.UUID         `json:"id"`
	OrganisationID *uuid.UUID        `json:"organisation_id,omitempty"`
	Name           string            `json:"name"`
	Slug           string            `json:"slug"`
	Fields         []FieldDefinition `json:"fields"`
	IsDefault      bool              `json:"is_default"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// VisibleTo reports whether organisation orgID may use the type.
func (t *ContentBlockType) VisibleTo(orgID uuid.UUID) bool {
	return t.OrganisationID == nil || *t.OrganisationID == orgID
}

// Field returns the field definition with the given slug.
func (t *ContentBlockType) Field(slug string) (FieldDefinition, bool) {
	for _, f := range t.Fields {
		if f.Slug == slug {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// ContentBlock is an instance of a ContentBlockType. Content maps field slugs
// to values; file fields hold storage object keys, never public URLs.
type ContentBlock struct {
	ID             uuid.UUID      `json:"id"`
	OrganisationID uuid.UUID      `json:"organisation_id"`
	TypeID         uuid.UUID      `json:"type_id"`
	Description    string         `json:"description"`
	Content        map[string]any `json:"content"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Website is a rendering context for pages. Domain is globally unique;
// Slug follows Name.
type Website struct {
	ID             uuid.UUID `json:"id"`
	OrganisationID uuid.UUID `json:"organisation_id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Domain         string    `json:"domain"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Page belongs to a website. Slug is unique per organisation.
type Page struct {
	ID             uuid.UUID `json:"id"`
	OrganisationID uuid.UUID `json:"organisation_id"`
	WebsiteID      uuid.UUID `json:"website_id"`
	Title          string    `json:"title"`
	Slug           string    `json:"slug"`
	Published      bool      `json:"published"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GlobalContentBlock attaches a block to a website under a named slot.
type GlobalContentBlock struct {
	ID        uuid.UUID `json:"id"`
	WebsiteID uuid.UUID `json:"website_id"`
	BlockID   uuid.UUID `json:"block_id"`
	Key       string    `json:"key"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// OwnerType discriminates the kinds of entity that may hold provider credentials.
type OwnerType string

const (
	OwnerOrganisation OwnerType = "organisation"
)

// Owner identifies the holder of third-party credential values.
type Owner struct {
	Type OwnerType `json:"type"`
	ID   uuid.UUID `json:"id"`
}

// OrganisationOwner returns the credential owner for an organisation.
func OrganisationOwner(id uuid.UUID) Owner {
	return Owner{Type: OwnerOrganisation, ID: id}
}

// VariableValue is one stored credential value. At most one exists per
// (Owner, Provider, Key).
type VariableValue struct {
	Owner     Owner     `json:"owner"`
	Provider  string    `json:"provider"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Customer buys products from an organisation. Email is unique per organisation.
type Customer struct {
	ID             uuid.UUID `json:"id"`
	OrganisationID uuid.UUID `json:"organisation_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Product is something an organisation sells.
type Product struct {
	ID             uuid.UUID `json:"id"`
	OrganisationID uuid.UUID `json:"organisation_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	PriceCents     int64     `json:"price_cents"`
	Currency       string    `json:"currency"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment records one checkout attempt.
type Payment struct {
	ID                uuid.UUID     `json:"id"`
	OrganisationID    uuid.UUID     `json:"organisation_id"`
	CustomerID        uuid.UUID     `json:"customer_id"`
	ProductID         uuid.UUID     `json:"product_id"`
	AmountCents       int64         `json:"amount_cents"`
	Currency          string        `json:"currency"`
	Status            PaymentStatus `json:"status"`
	ProviderSessionID string        `json:"provider_session_id,omitempty"`
	ProviderPaymentID string        `json:"provider_payment_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
}

// CustomerProduct grants a customer access to a product.
type CustomerProduct struct {
	CustomerID uuid.UUID `json:"customer_id"`
	ProductID  uuid.UUID `json:"product_id"`
	PaymentID  uuid.UUID `json:"payment_id"`
	GrantedAt  time.Time `json:"granted_at"`
}

// PrivateFile is an uploaded file only reachable through signed URLs.
type PrivateFile struct {
	ID             uuid.UUID `json:"id"`
	OrganisationID uuid.UUID `json:"organisation_id"`
	Name           string    `json:"name"`
	ObjectKey      string    `json:"object_key"`
	MimeType       string    `json:"mime_type"`
	Size           int64     `json:"size"`
	CreatedAt      time.Time `json:"created_at"`
}

// ObjectMeta describes a stored blob.
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}

// UploadParams describes a blob upload.
type UploadParams struct {
	ObjectKey string
	MimeType  string
}
