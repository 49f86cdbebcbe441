package simplesite

import "strings"

// Environment selects the test or live credential set of a provider.
type Environment string

const (
	EnvironmentTest Environment = "test"
	EnvironmentLive Environment = "live"
)

// ParseEnvironment parses "test" or "live"; empty selects test.
func ParseEnvironment(s string) (Environment, bool) {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case "", EnvironmentTest:
		return EnvironmentTest, true
	case EnvironmentLive:
		return EnvironmentLive, true
	}
	return "", false
}

// Variable is a named credential a provider declares.
type Variable struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	IsSecret bool   `json:"is_secret"`
	IsTest   bool   `json:"is_test"`
}

// Provider is a third-party integration and its declared variables.
type Provider struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Variables []Variable `json:"variables"`
}

// Stripe variable keys.
const (
	ProviderStripe = "stripe"

	StripeTestPublishableKey = "test_publishable_key"
	StripeTestSecretKey      = "test_secret_key"
	StripeTestWebhookSecret  = "test_webhook_secret"
	StripeLivePublishableKey = "live_publishable_key"
	StripeLiveSecretKey      = "live_secret_key"
	StripeLiveWebhookSecret  = "live_webhook_secret"
)

var catalog = []Provider{
	{
		ID:   ProviderStripe,
		Name: "Stripe",
		Variables: []Variable{
			{Key: StripeTestPublishableKey, Label: "Test publishable key", IsTest: true},
			{Key: StripeTestSecretKey, Label: "Test secret key", IsSecret: true, IsTest: true},
			{Key: StripeTestWebhookSecret, Label: "Test webhook signing secret", IsSecret: true, IsTest: true},
			{Key: StripeLivePublishableKey, Label: "Live publishable key"},
			{Key: StripeLiveSecretKey, Label: "Live secret key", IsSecret: true},
			{Key: StripeLiveWebhookSecret, Label: "Live webhook signing secret", IsSecret: true},
		},
	},
	{
		ID:   "mailchimp",
		Name: "Mailchimp",
		Variables: []Variable{
			{Key: "api_key", Label: "API key", IsSecret: true},
			{Key: "server_prefix", Label: "Server prefix"},
			{Key: "audience_id", Label: "Audience ID"},
		},
	},
	{
		ID:   "sendgrid",
		Name: "SendGrid",
		Variables: []Variable{
			{Key: "api_key", Label: "API key", IsSecret: true},
			{Key: "from_email", Label: "From email"},
		},
	},
	{
		ID:   "twilio",
		Name: "Twilio",
		Variables: []Variable{
			{Key: "account_sid", Label: "Account SID"},
			{Key: "auth_token", Label: "Auth token", IsSecret: true},
			{Key: "from_number", Label: "From number"},
			{Key: "test_account_sid", Label: "Test account SID", IsTest: true},
			{Key: "test_auth_token", Label: "Test auth token", IsSecret: true, IsTest: true},
		},
	},
}

// Catalog returns every known provider.
func Catalog() []Provider {
	out := make([]Provider, len(catalog))
	copy(out, catalog)
	return out
}

// LookupProvider finds a provider by id.
func LookupProvider(id string) (Provider, bool) {
	id = NormalizeProvider(id)
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

// Variable finds a declared variable by key.
func (p Provider) Variable(key string) (Variable, bool) {
	for _, v := range p.Variables {
		if v.Key == key {
			return v, true
		}
	}
	return Variable{}, false
}

// VariablesFor returns the variables belonging to env. Providers that do not
// split credentials by environment return their shared variables for both.
func (p Provider) VariablesFor(env Environment) []Variable {
	var out []Variable
	for _, v := range p.Variables {
		if v.IsTest == (env == EnvironmentTest) {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return append(out, p.Variables...)
	}
	return out
}

// MaskSecret hides all but the last four characters of a secret value.
func MaskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("•", len(value))
	}
	return strings.Repeat("•", 8) + value[len(value)-4:]
}
