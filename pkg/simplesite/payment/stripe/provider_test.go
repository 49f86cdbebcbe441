package stripe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/tendant/simple-site/pkg/simplesite"
)

const testWebhookSecret = "whsec_test_secret"

func signedPayload(t *testing.T, payload string, secret string) (string, []byte) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header, signed.Payload
}

func TestCreateCheckoutSession(t *testing.T) {
	paymentID := uuid.New()
	var form map[string]string
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		auth = r.Header.Get("Authorization")
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_test_123","object":"checkout.session","url":"https://checkout.stripe.test/pay/cs_test_123"}`)
	}))
	defer server.Close()

	p := New(WithAPIBase(server.URL), WithHTTPClient(server.Client()))
	cs, err := p.CreateCheckoutSession(context.Background(),
		simplesite.PaymentCredentials{SecretKey: "sk_test_org"},
		simplesite.CheckoutRequest{
			PaymentID:     paymentID,
			CustomerEmail: "buyer@example.com",
			ProductName:   "Course",
			AmountCents:   2500,
			Currency:      "EUR",
			SuccessURL:    "https://shop.test/ok",
			CancelURL:     "https://shop.test/cancel",
		})
	require.NoError(t, err)

	assert.Equal(t, "cs_test_123", cs.ID)
	assert.Equal(t, "https://checkout.stripe.test/pay/cs_test_123", cs.URL)
	assert.Equal(t, "Bearer sk_test_org", auth)
	assert.Equal(t, "payment", form["mode"])
	assert.Equal(t, paymentID.String(), form["client_reference_id"])
	assert.Equal(t, "buyer@example.com", form["customer_email"])
	assert.Equal(t, "2500", form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, "eur", form["line_items[0][price_data][currency]"])
	assert.Equal(t, "Course", form["line_items[0][price_data][product_data][name]"])
	assert.Equal(t, "1", form["line_items[0][quantity]"])
}

func TestCreateCheckoutSession_Errors(t *testing.T) {
	t.Run("MissingKey", func(t *testing.T) {
		_, err := New().CreateCheckoutSession(context.Background(), simplesite.PaymentCredentials{}, simplesite.CheckoutRequest{})
		assert.ErrorIs(t, err, simplesite.ErrProviderNotConfigured)
	})

	t.Run("APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"Invalid currency"}}`)
		}))
		defer server.Close()

		p := New(WithAPIBase(server.URL), WithHTTPClient(server.Client()))
		_, err := p.CreateCheckoutSession(context.Background(),
			simplesite.PaymentCredentials{SecretKey: "sk_test"},
			simplesite.CheckoutRequest{PaymentID: uuid.New(), AmountCents: 1, Currency: "xxx"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid currency")
	})
}

func TestParseWebhookEvent(t *testing.T) {
	p := New()
	paymentID := uuid.New()
	body := fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"api_version": "2020-08-27",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_123",
			"object": "checkout.session",
			"client_reference_id": %q,
			"payment_intent": "pi_123"
		}}
	}`, paymentID)

	t.Run("Completed", func(t *testing.T) {
		header, payload := signedPayload(t, body, testWebhookSecret)
		event, err := p.ParseWebhookEvent(payload, header, testWebhookSecret)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", event.ID)
		assert.Equal(t, simplesite.EventCheckoutCompleted, event.Type)
		assert.Equal(t, "cs_test_123", event.SessionID)
		assert.Equal(t, "pi_123", event.PaymentIntentID)
		assert.Equal(t, paymentID.String(), event.ClientReferenceID)
	})

	t.Run("OtherEventType", func(t *testing.T) {
		header, payload := signedPayload(t, `{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`, testWebhookSecret)
		event, err := p.ParseWebhookEvent(payload, header, testWebhookSecret)
		require.NoError(t, err)
		assert.Equal(t, "customer.created", event.Type)
		assert.Empty(t, event.SessionID)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		header, payload := signedPayload(t, body, "whsec_other")
		_, err := p.ParseWebhookEvent(payload, header, testWebhookSecret)
		assert.ErrorIs(t, err, simplesite.ErrInvalidSignature)
	})

	t.Run("MissingHeader", func(t *testing.T) {
		_, err := p.ParseWebhookEvent([]byte(body), "", testWebhookSecret)
		assert.ErrorIs(t, err, simplesite.ErrInvalidSignature)
	})

	t.Run("TamperedBody", func(t *testing.T) {
		header, _ := signedPayload(t, body, testWebhookSecret)
		_, err := p.ParseWebhookEvent([]byte(body+" "), header, testWebhookSecret)
		assert.ErrorIs(t, err, simplesite.ErrInvalidSignature)
	})

	t.Run("NoSecret", func(t *testing.T) {
		_, err := p.ParseWebhookEvent([]byte(body), "t=1,v1=abc", "")
		assert.ErrorIs(t, err, simplesite.ErrProviderNotConfigured)
	})
}

func TestListRecentSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","url":"/v1/checkout/sessions","has_more":false,"data":[
			{"id":"cs_1","object":"checkout.session","status":"complete","payment_status":"paid","amount_total":500,"currency":"usd"},
			{"id":"cs_2","object":"checkout.session","status":"open","payment_status":"unpaid","amount_total":900,"currency":"usd"}
		]}`)
	}))
	defer server.Close()

	p := New(WithAPIBase(server.URL), WithHTTPClient(server.Client()))
	sessions, err := p.ListRecentSessions(context.Background(), "sk_test", 3)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "cs_1", sessions[0].ID)
	assert.Equal(t, "paid", sessions[0].PaymentStatus)
	assert.Equal(t, int64(900), sessions[1].AmountTotal)
}
