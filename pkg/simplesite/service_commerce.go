package simplesite

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var currencyPattern = regexp.MustCompile(`^[a-z]{3}$`)

// Customer operations

func (s *service) RegisterCustomer(ctx context.Context, req RegisterCustomerRequest) (*Customer, error) {
	if _, err := s.repository.GetOrganisation(ctx, req.OrganisationID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	email := NormalizeEmail(req.Email)
	v := &ValidationError{}
	if name == "" {
		v.Add("name", "is required")
	}
	validateEmail(v, email)
	validatePassword(v, req.Password)
	if v.HasErrors() {
		return nil, v
	}

	if _, err := s.repository.GetCustomerByEmail(ctx, req.OrganisationID, email); err == nil {
		return nil, NewValidationError("email", "has already been taken")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	c := &Customer{
		ID:             uuid.New(),
		OrganisationID: req.OrganisationID,
		Name:           name,
		Email:          email,
		PasswordHash:   hash,
		CreatedAt:      s.timestamp(),
	}
	if err := s.repository.CreateCustomer(ctx, c); err != nil {
		return nil, duplicateAs(err, "email", "has already been taken")
	}
	_ = s.eventSink.CustomerRegistered(ctx, c)
	return c, nil
}

func (s *service) AuthenticateCustomer(ctx context.Context, orgID uuid.UUID, email, password string) (*Customer, error) {
	c, err := s.repository.GetCustomerByEmail(ctx, orgID, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !checkPassword(c.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return c, nil
}

func (s *service) GetCustomer(ctx context.Context, orgID, id uuid.UUID) (*Customer, error) {
	c, err := s.repository.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OrganisationID != orgID {
		return nil, ErrCustomerNotFound
	}
	return c, nil
}

func (s *service) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return errors.New("token has no id")
	}
	return s.repository.RevokeToken(ctx, jti, expiresAt)
}

func (s *service) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return s.repository.IsTokenRevoked(ctx, jti)
}

// Product operations

func validateProduct(req SaveProductRequest) (SaveProductRequest, error) {
	v := &ValidationError{}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.Currency = strings.ToLower(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = "usd"
	}
	if req.Name == "" {
		v.Add("name", "is required")
	}
	if req.PriceCents <= 0 {
		v.Add("price_cents", "must be greater than zero")
	}
	if !currencyPattern.MatchString(req.Currency) {
		v.Add("currency", "must be a three-letter ISO currency code")
	}
	return req, v.Err()
}

func (s *service) CreateProduct(ctx context.Context, scope Scope, req SaveProductRequest) (*Product, error) {
	if err := scope.Require("create product", RoleEditor); err != nil {
		return nil, err
	}
	req, err := validateProduct(req)
	if err != nil {
		return nil, err
	}
	now := s.timestamp()
	p := &Product{
		ID:             uuid.New(),
		OrganisationID: scope.OrganisationID(),
		Name:           req.Name,
		Description:    req.Description,
		PriceCents:     req.PriceCents,
		Currency:       req.Currency,
		Active:         req.Active,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repository.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) UpdateProduct(ctx context.Context, scope Scope, id uuid.UUID, req SaveProductRequest) (*Product, error) {
	if err := scope.Require("update product", RoleEditor); err != nil {
		return nil, err
	}
	p, err := s.GetProduct(ctx, scope.OrganisationID(), id)
	if err != nil {
		return nil, err
	}
	req, err = validateProduct(req)
	if err != nil {
		return nil, err
	}
	p.Name = req.Name
	p.Description = req.Description
	p.PriceCents = req.PriceCents
	p.Currency = req.Currency
	p.Active = req.Active
	p.UpdatedAt = s.timestamp()
	if err := s.repository.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) DeleteProduct(ctx context.Context, scope Scope, id uuid.UUID) error {
	if err := scope.Require("delete product", RoleAdmin); err != nil {
		return err
	}
	if _, err := s.GetProduct(ctx, scope.OrganisationID(), id); err != nil {
		return err
	}
	return s.repository.DeleteProduct(ctx, id)
}

func (s *service) GetProduct(ctx context.Context, orgID, id uuid.UUID) (*Product, error) {
	p, err := s.repository.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OrganisationID != orgID {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (s *service) ListProducts(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]*Product, error) {
	return s.repository.ListProducts(ctx, orgID, activeOnly)
}

// Payment operations

// Purchase creates a pending payment and a hosted checkout session for it.
// Ownership is checked before the provider is contacted. A provider failure
// leaves the payment pending and is reported as ErrPaymentProvider only.
func (s *service) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	product, err := s.GetProduct(ctx, req.OrganisationID, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, ErrProductUnavailable
	}
	customer, err := s.GetCustomer(ctx, req.OrganisationID, req.CustomerID)
	if err != nil {
		return nil, err
	}

	owned, err := s.repository.HasProduct(ctx, customer.ID, product.ID)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, ErrAlreadyOwned
	}

	if s.payments == nil {
		return nil, ErrProviderNotConfigured
	}
	creds, err := s.paymentCredentials(ctx, req.OrganisationID)
	if err != nil {
		return nil, err
	}
	if creds.SecretKey == "" {
		return nil, ErrProviderNotConfigured
	}

	now := s.timestamp()
	payment := &Payment{
		ID:             uuid.New(),
		OrganisationID: req.OrganisationID,
		CustomerID:     customer.ID,
		ProductID:      product.ID,
		AmountCents:    product.PriceCents,
		Currency:       product.Currency,
		Status:         PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repository.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	session, err := s.payments.CreateCheckoutSession(ctx, creds, CheckoutRequest{
		PaymentID:     payment.ID,
		CustomerEmail: customer.Email,
		ProductName:   product.Name,
		AmountCents:   product.PriceCents,
		Currency:      product.Currency,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
	})
	if err != nil {
		slog.Error("Failed to create checkout session", "payment_id", payment.ID, "err", err)
		return nil, &PaymentError{PaymentID: payment.ID, Op: "create checkout session", Err: ErrPaymentProvider}
	}

	payment.ProviderSessionID = session.ID
	payment.UpdatedAt = s.timestamp()
	if err := s.repository.UpdatePayment(ctx, payment); err != nil {
		return nil, err
	}

	return &PurchaseResult{Payment: payment, CheckoutURL: session.URL}, nil
}

// CompleteCheckout marks the session's payment completed and grants the
// product. A payment that is already completed is left untouched.
func (s *service) CompleteCheckout(ctx context.Context, sessionID, providerPaymentID string) (*Payment, error) {
	payment, err := s.repository.GetPaymentBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if payment.Status == PaymentCompleted {
		slog.Info("Checkout already completed", "payment_id", payment.ID, "session_id", sessionID)
		return payment, nil
	}

	completedAt := s.timestamp()
	if err := s.repository.AttachProduct(ctx, &CustomerProduct{
		CustomerID: payment.CustomerID,
		ProductID:  payment.ProductID,
		PaymentID:  payment.ID,
		GrantedAt:  completedAt,
	}); err != nil {
		return nil, &PaymentError{PaymentID: payment.ID, Op: "attach product", Err: err}
	}

	changed, err := s.repository.CompletePayment(ctx, payment.ID, providerPaymentID, completedAt)
	if err != nil {
		return nil, &PaymentError{PaymentID: payment.ID, Op: "complete", Err: err}
	}
	if !changed {
		return s.repository.GetPayment(ctx, payment.ID)
	}

	payment.Status = PaymentCompleted
	payment.ProviderPaymentID = providerPaymentID
	payment.CompletedAt = &completedAt
	payment.UpdatedAt = completedAt
	_ = s.eventSink.PaymentCompleted(ctx, payment)
	return payment, nil
}

func (s *service) HandlePaymentWebhook(ctx context.Context, orgID uuid.UUID, payload []byte, signatureHeader string) error {
	if s.payments == nil {
		return ErrProviderNotConfigured
	}
	if _, err := s.repository.GetOrganisation(ctx, orgID); err != nil {
		return err
	}
	creds, err := s.paymentCredentials(ctx, orgID)
	if err != nil {
		return err
	}
	if creds.WebhookSecret == "" {
		return ErrProviderNotConfigured
	}

	event, err := s.payments.ParseWebhookEvent(payload, signatureHeader, creds.WebhookSecret)
	if err != nil {
		return err
	}

	switch event.Type {
	case EventCheckoutCompleted:
		payment, err := s.repository.GetPaymentBySessionID(ctx, event.SessionID)
		if err != nil {
			return err
		}
		if payment.OrganisationID != orgID {
			return ErrPaymentNotFound
		}
		_, err = s.CompleteCheckout(ctx, event.SessionID, event.PaymentIntentID)
		return err
	default:
		slog.Info("Ignoring payment event", "event_id", event.ID, "type", event.Type, "organisation_id", orgID)
		return nil
	}
}

func (s *service) HasAccess(ctx context.Context, orgID, customerID, productID uuid.UUID) (bool, error) {
	if _, err := s.GetProduct(ctx, orgID, productID); err != nil {
		return false, err
	}
	if _, err := s.GetCustomer(ctx, orgID, customerID); err != nil {
		return false, err
	}
	return s.repository.HasProduct(ctx, customerID, productID)
}

func (s *service) ListPayments(ctx context.Context, scope Scope) ([]*Payment, error) {
	if err := scope.Require("list payments", RoleAdmin); err != nil {
		return nil, err
	}
	return s.repository.ListPayments(ctx, scope.OrganisationID())
}
