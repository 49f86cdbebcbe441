package simplesite

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
)

func validateOwner(owner Owner) error {
	if owner.Type != OwnerOrganisation || owner.ID == uuid.Nil {
		return NewValidationError("owner", "is not a supported credential owner")
	}
	return nil
}

func lookupVariable(provider, key string) (Provider, Variable, error) {
	p, ok := LookupProvider(provider)
	if !ok {
		return Provider{}, Variable{}, NewValidationError("provider", "is not a known provider")
	}
	v, ok := p.Variable(key)
	if !ok {
		return Provider{}, Variable{}, NewValidationError("key", "is not a variable of "+p.Name)
	}
	return p, v, nil
}

func (s *service) SetVariable(ctx context.Context, owner Owner, provider, key, value string) error {
	if err := validateOwner(owner); err != nil {
		return err
	}
	p, _, err := lookupVariable(provider, key)
	if err != nil {
		return err
	}
	now := s.timestamp()
	return s.repository.UpsertVariableValue(ctx, &VariableValue{
		Owner:     owner,
		Provider:  p.ID,
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *service) GetVariable(ctx context.Context, owner Owner, provider, key string) (string, bool, error) {
	v, err := s.repository.GetVariableValue(ctx, owner, NormalizeProvider(provider), key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return v.Value, true, nil
}

func (s *service) RemoveProvider(ctx context.Context, owner Owner, provider string) (int64, error) {
	p, ok := LookupProvider(provider)
	if !ok {
		return 0, NewValidationError("provider", "is not a known provider")
	}
	removed, err := s.repository.DeleteProviderValues(ctx, owner, p.ID)
	if err != nil {
		return 0, err
	}
	_ = s.eventSink.ProviderRemoved(ctx, owner, p.ID, removed)
	return removed, nil
}

// ConfigureProvider stores several values at once. An empty value for a
// secret variable keeps the stored secret, so forms need not echo secrets back.
func (s *service) ConfigureProvider(ctx context.Context, scope Scope, provider string, values map[string]string) error {
	if err := scope.Require("configure provider", RoleAdmin); err != nil {
		return err
	}
	p, ok := LookupProvider(provider)
	if !ok {
		return NewValidationError("provider", "is not a known provider")
	}

	verr := &ValidationError{}
	for key := range values {
		if _, ok := p.Variable(key); !ok {
			verr.Add("values."+key, "is not a variable of "+p.Name)
		}
	}
	if err := verr.Err(); err != nil {
		return err
	}

	owner := scope.Owner()
	for _, variable := range p.Variables {
		value, submitted := values[variable.Key]
		if !submitted || (variable.IsSecret && value == "") {
			continue
		}
		if err := s.SetVariable(ctx, owner, p.ID, variable.Key, value); err != nil {
			return err
		}
	}
	_ = s.eventSink.ProviderConfigured(ctx, owner, p.ID)
	return nil
}

func (s *service) ProviderConfiguration(ctx context.Context, scope Scope, provider string) (*ProviderConfiguration, error) {
	if err := scope.Require("view provider configuration", RoleViewer); err != nil {
		return nil, err
	}
	p, ok := LookupProvider(provider)
	if !ok {
		return nil, ErrUnknownProvider
	}
	stored, err := s.repository.ListVariableValues(ctx, scope.Owner(), p.ID)
	if err != nil {
		return nil, err
	}

	cfg := &ProviderConfiguration{Provider: p, Values: make(map[string]string, len(p.Variables)), Configured: len(stored) > 0}
	for _, variable := range p.Variables {
		cfg.Values[variable.Key] = ""
	}
	for _, v := range stored {
		variable, ok := p.Variable(v.Key)
		if !ok {
			continue
		}
		if variable.IsSecret {
			cfg.Values[v.Key] = MaskSecret(v.Value)
		} else {
			cfg.Values[v.Key] = v.Value
		}
	}
	return cfg, nil
}

func (s *service) RemoveProviderConfiguration(ctx context.Context, scope Scope, provider string) error {
	if err := scope.Require("remove provider", RoleAdmin); err != nil {
		return err
	}
	_, err := s.RemoveProvider(ctx, scope.Owner(), provider)
	return err
}

func (s *service) ConfiguredProviders(ctx context.Context, scope Scope) ([]string, error) {
	if err := scope.Require("list providers", RoleViewer); err != nil {
		return nil, err
	}
	values, err := s.repository.ListVariableValues(ctx, scope.Owner(), "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	providers := []string{}
	for _, v := range values {
		if !seen[v.Provider] {
			seen[v.Provider] = true
			providers = append(providers, v.Provider)
		}
	}
	sort.Strings(providers)
	return providers, nil
}

// paymentCredentials reads the organisation's Stripe keys for the configured
// environment, falling back to the service defaults.
func (s *service) paymentCredentials(ctx context.Context, orgID uuid.UUID) (PaymentCredentials, error) {
	secretKey, webhookKey := StripeTestSecretKey, StripeTestWebhookSecret
	if s.paymentEnv == EnvironmentLive {
		secretKey, webhookKey = StripeLiveSecretKey, StripeLiveWebhookSecret
	}

	owner := OrganisationOwner(orgID)
	creds := s.defaultPaymentCreds
	if v, ok, err := s.GetVariable(ctx, owner, ProviderStripe, secretKey); err != nil {
		return PaymentCredentials{}, err
	} else if ok && v != "" {
		creds.SecretKey = v
	}
	if v, ok, err := s.GetVariable(ctx, owner, ProviderStripe, webhookKey); err != nil {
		return PaymentCredentials{}, err
	} else if ok && v != "" {
		creds.WebhookSecret = v
	}
	return creds, nil
}
