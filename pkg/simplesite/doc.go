// Package simplesite provides a multi-tenant content and commerce library:
// organisations own websites, pages, reusable content blocks described by
// user-defined block types, third-party provider credentials, products and
// the payments that grant customers access to them.
//
// A single Service interface orchestrates every operation. Persistence is
// pluggable through Repository (memory and Postgres implementations live
// under repo/), file bytes go through a BlobStore (memory, filesystem and S3
// under storage/), and hosted checkout is delegated to a PaymentProvider
// (Stripe under payment/stripe).
//
// Organisation scope
//
// Admin operations take a Scope that carries the current organisation and
// the caller's role within it. The HTTP layer resolves the scope once per
// request and passes it explicitly; the service never reads ambient state.
//
// Content validation
//
// Content documents are checked against their block type's field list.
// Whether missing or unknown keys are rejected is a ValidationPolicy chosen
// at construction time (PolicyPermissive by default).
package simplesite
