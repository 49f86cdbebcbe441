package simplesite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupProvider(t *testing.T) {
	p, ok := LookupProvider("STRIPE")
	require.True(t, ok)
	assert.Equal(t, ProviderStripe, p.ID)

	v, ok := p.Variable(StripeLiveSecretKey)
	require.True(t, ok)
	assert.True(t, v.IsSecret)
	assert.False(t, v.IsTest)

	_, ok = p.Variable("unknown")
	assert.False(t, ok)

	_, ok = LookupProvider("paypal")
	assert.False(t, ok)
}

func TestCatalog_IsACopy(t *testing.T) {
	c := Catalog()
	require.NotEmpty(t, c)
	c[0].ID = "changed"
	_, ok := LookupProvider(ProviderStripe)
	assert.True(t, ok)
}

func TestVariablesFor(t *testing.T) {
	stripe, _ := LookupProvider(ProviderStripe)
	for _, v := range stripe.VariablesFor(EnvironmentTest) {
		assert.True(t, v.IsTest, v.Key)
	}
	assert.Len(t, stripe.VariablesFor(EnvironmentLive), 3)

	// providers without a test split share their variables
	sendgrid, _ := LookupProvider("sendgrid")
	assert.Len(t, sendgrid.VariablesFor(EnvironmentTest), len(sendgrid.Variables))
	assert.Len(t, sendgrid.VariablesFor(EnvironmentLive), len(sendgrid.Variables))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "•••", MaskSecret("abc"))
	assert.Equal(t, "••••••••5678", MaskSecret("sk_test_12345678"))
}

func TestParseEnvironment(t *testing.T) {
	env, ok := ParseEnvironment("")
	assert.True(t, ok)
	assert.Equal(t, EnvironmentTest, env)

	env, ok = ParseEnvironment("Live")
	assert.True(t, ok)
	assert.Equal(t, EnvironmentLive, env)

	_, ok = ParseEnvironment("staging")
	assert.False(t, ok)
}
