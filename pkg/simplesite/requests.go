package simplesite

import (
	"io"

	"github.com/google/uuid"
)

// Request/response DTOs used by the Service interface

type RegisterUserRequest struct {
	Name     string
	Email    string
	Password string
}

type CreateOrganisationRequest struct {
	Name string
}

type AddMemberRequest struct {
	Email string
	Role  Role
}

// FieldInput is a field definition as submitted; the slug is derived from Label.
type FieldInput struct {
	Label      string     `json:"label" form:"label"`
	Type       FieldType  `json:"type" form:"type"`
	Required   bool       `json:"required" form:"required"`
	Options    []string   `json:"options,omitempty" form:"options"`
	ItemTypeID *uuid.UUID `json:"item_type_id,omitempty" form:"item_type_id"`
}

type SaveContentBlockTypeRequest struct {
	Name   string
	Fields []FieldInput
}

type SaveContentBlockRequest struct {
	TypeID      uuid.UUID
	Description string
	Content     map[string]any
}

type SaveWebsiteRequest struct {
	Name   string
	Domain string
}

type SavePageRequest struct {
	WebsiteID uuid.UUID
	Title     string
	Published bool
}

type AttachGlobalBlockRequest struct {
	Key      string
	BlockID  uuid.UUID
	Position int
}

type RegisterCustomerRequest struct {
	OrganisationID uuid.UUID
	Name           string
	Email          string
	Password       string
}

type SaveProductRequest struct {
	Name        string
	Description string
	PriceCents  int64
	Currency    string
	Active      bool
}

type PurchaseRequest struct {
	OrganisationID uuid.UUID
	CustomerID     uuid.UUID
	ProductID      uuid.UUID
	SuccessURL     string
	CancelURL      string
}

// PurchaseResult is the pending payment and the hosted checkout to redirect to.
type PurchaseResult struct {
	Payment     *Payment
	CheckoutURL string
}

type UploadFileRequest struct {
	Name     string
	MimeType string
	Reader   io.Reader
}

// ProviderConfiguration is a provider's stored values for display; secrets are masked.
type ProviderConfiguration struct {
	Provider   Provider          `json:"provider"`
	Values     map[string]string `json:"values"`
	Configured bool              `json:"configured"`
}

// RenderedBlock is a content block with file fields resolved to signed URLs.
type RenderedBlock struct {
	ID      uuid.UUID      `json:"id"`
	Type    string         `json:"type"`
	Content map[string]any `json:"content"`
}

// RenderedGlobalBlock is a website-scope block in its named slot.
type RenderedGlobalBlock struct {
	Key      string        `json:"key"`
	Position int           `json:"position"`
	Block    RenderedBlock `json:"block"`
}

// RenderedPage is the public view of a published page.
type RenderedPage struct {
	Website      *Website              `json:"website"`
	Page         *Page                 `json:"page"`
	Blocks       []RenderedBlock       `json:"blocks"`
	GlobalBlocks []RenderedGlobalBlock `json:"global_blocks"`
}
