package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

const testWebhookSecret = "whsec_test"

func sign(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func event(eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":"2023-10-16","type":%q,"data":{"object":%s}}`, eventType, object))
}

func newTestGateway(config Config) *Gateway {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return NewGateway(config, logger)
}

func TestParseCheckoutSessionCompleted(t *testing.T) {
	gateway := newTestGateway(Config{WebhookSecret: testWebhookSecret})
	orderID := uuid.New().String()
	payload := event("checkout.session.completed", `{
		"id": "cs_test_1",
		"object": "checkout.session",
		"client_reference_id": "`+orderID+`",
		"customer": "cus_123",
		"payment_intent": "pi_123",
		"customer_details": {"email": "Buyer@Example.com", "name": "Jane Doe", "phone": "+15550100"},
		"shipping_details": {"name": "Jane Doe", "address": {"line1": "1 Main St", "line2": "Apt 2", "city": "Austin", "state": "TX", "postal_code": "78701", "country": "US"}}
	}`)

	parsed, err := gateway.ParseEvent(payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, model.EventCheckoutCompleted, parsed.Type)
	assert.Equal(t, "cs_test_1", parsed.SessionID)
	assert.Equal(t, "pi_123", parsed.PaymentIntentID)
	assert.Equal(t, "cus_123", parsed.ProcessorCustomerID)
	assert.Equal(t, orderID, parsed.OrderReference)
	assert.Equal(t, "Buyer@Example.com", parsed.CustomerEmail)
	assert.Equal(t, "+15550100", parsed.CustomerPhone)
	require.NotNil(t, parsed.Shipping)
	assert.Equal(t, "1 Main St Apt 2", parsed.Shipping.Street)
	assert.Equal(t, "78701", parsed.Shipping.Zip)
}

func TestParsePaymentIntentEvents(t *testing.T) {
	gateway := newTestGateway(Config{WebhookSecret: testWebhookSecret})
	orderID := uuid.New().String()

	succeeded := event("payment_intent.succeeded", `{"id":"pi_123","object":"payment_intent","customer":{"id":"cus_9","object":"customer"},"metadata":{"order_id":"`+orderID+`"}}`)
	parsed, err := gateway.ParseEvent(succeeded, sign(succeeded, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, model.EventPaymentIntentSucceeded, parsed.Type)
	assert.Equal(t, "pi_123", parsed.PaymentIntentID)
	assert.Equal(t, "cus_9", parsed.ProcessorCustomerID)
	assert.Equal(t, orderID, parsed.OrderReference)
	assert.Nil(t, parsed.Shipping)

	failed := event("payment_intent.payment_failed", `{"id":"pi_124","object":"payment_intent","customer":null,"last_payment_error":{"code":"card_declined","message":"Your card was declined."}}`)
	parsed, err = gateway.ParseEvent(failed, sign(failed, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, "Your card was declined.", parsed.FailureReason)
	assert.Empty(t, parsed.ProcessorCustomerID)

}

func TestParseChargeRefunded(t *testing.T) {
	gateway := newTestGateway(Config{WebhookSecret: testWebhookSecret})

	full := event("charge.refunded", `{"id":"ch_1","object":"charge","amount":3000,"amount_refunded":3000,"refunded":true,"payment_intent":"pi_123"}`)
	parsed, err := gateway.ParseEvent(full, sign(full, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, model.EventChargeRefunded, parsed.Type)
	assert.Equal(t, "pi_123", parsed.PaymentIntentID)
	assert.True(t, parsed.FullyRefunded)
	assert.Equal(t, int64(3000), parsed.AmountRefundedCents)

	partial := event("charge.refunded", `{"id":"ch_2","object":"charge","amount":3000,"amount_refunded":500,"refunded":false,"payment_intent":"pi_1"}`)
	parsed, err = gateway.ParseEvent(partial, sign(partial, testWebhookSecret))
	require.NoError(t, err)
	assert.False(t, parsed.FullyRefunded)
	assert.Equal(t, int64(500), parsed.AmountRefundedCents)
	assert.Equal(t, "pi_1", parsed.PaymentIntentID)
}

func TestParseDelayedCheckoutPayment(t *testing.T) {
	gateway := newTestGateway(Config{WebhookSecret: testWebhookSecret})

	completed := event("checkout.session.completed", `{"id":"cs_test_2","object":"checkout.session","payment_status":"unpaid","payment_intent":"pi_7"}`)
	parsed, err := gateway.ParseEvent(completed, sign(completed, testWebhookSecret))
	require.NoError(t, err)
	assert.True(t, parsed.PaymentPending)
	assert.Equal(t, "pi_7", parsed.PaymentIntentID)

	succeeded := event("checkout.session.async_payment_succeeded", `{"id":"cs_test_2","object":"checkout.session","payment_status":"paid"}`)
	parsed, err = gateway.ParseEvent(succeeded, sign(succeeded, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, model.EventCheckoutAsyncSucceeded, parsed.Type)
	assert.Equal(t, "cs_test_2", parsed.SessionID)
	assert.False(t, parsed.PaymentPending)

	failed := event("checkout.session.async_payment_failed", `{"id":"cs_test_2","object":"checkout.session","payment_status":"unpaid"}`)
	parsed, err = gateway.ParseEvent(failed, sign(failed, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, model.EventCheckoutAsyncFailed, parsed.Type)
	assert.Equal(t, "cs_test_2", parsed.SessionID)
}

func TestParseEventRejectsBadSignatures(t *testing.T) {
	payload := event("checkout.session.completed", `{"id":"cs_test_1"}`)

	_, err := newTestGateway(Config{}).ParseEvent(payload, sign(payload, testWebhookSecret))
	assert.ErrorIs(t, err, model.ErrWebhookDisabled)

	gateway := newTestGateway(Config{WebhookSecret: testWebhookSecret})
	_, err = gateway.ParseEvent(payload, sign(payload, "whsec_other"))
	assert.ErrorIs(t, err, model.ErrInvalidSignature)
	_, err = gateway.ParseEvent(payload, "")
	assert.ErrorIs(t, err, model.ErrInvalidSignature)
}

func TestParseEventIgnoresUnknownTypes(t *testing.T) {
	gateway := newTestGateway(Config{WebhookSecret: testWebhookSecret})
	payload := event("customer.created", `{"id":"cus_1","object":"customer"}`)
	parsed, err := gateway.ParseEvent(payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentEventType("customer.created"), parsed.Type)
	assert.Empty(t, parsed.SessionID)
}

func TestCreateSession(t *testing.T) {
	orderID := uuid.New()
	var form map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`)
	}))
	defer server.Close()

	gateway := newTestGateway(Config{
		SecretKey:  "sk_test_123",
		SuccessURL: "https://shop.example.com/success?order={ORDER_ID}",
		CancelURL:  "https://shop.example.com/cancel",
		BackendURL: server.URL,
	})
	session, err := gateway.CreateSession(context.Background(), model.SessionRequest{
		OrderID:         orderID,
		CustomerEmail:   "buyer@example.com",
		LineItems:       []model.SessionLineItem{{PriceID: "price_3m", Name: "IPTV 3 Months", Quantity: 1}},
		CollectShipping: true,
		Metadata:        map[string]string{"is_renewal": "false"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", session.URL)

	get := func(key string) string {
		if values := form[key]; len(values) > 0 {
			return values[0]
		}
		return ""
	}
	assert.Equal(t, "payment", get("mode"))
	assert.Equal(t, orderID.String(), get("client_reference_id"))
	assert.Equal(t, "price_3m", get("line_items[0][price]"))
	assert.Equal(t, "1", get("line_items[0][quantity]"))
	assert.Equal(t, orderID.String(), get("payment_intent_data[metadata][order_id]"))
	assert.Equal(t, "false", get("payment_intent_data[metadata][is_renewal]"))
	assert.Equal(t, "US", get("shipping_address_collection[allowed_countries][0]"))
	assert.Equal(t, "true", get("phone_number_collection[enabled]"))
	assert.Equal(t, "https://shop.example.com/success?order="+orderID.String(), get("success_url"))
}

func TestCreateSessionProcessorFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"No such price"}}`)
	}))
	defer server.Close()

	gateway := newTestGateway(Config{SecretKey: "sk_test_123", BackendURL: server.URL})
	_, err := gateway.CreateSession(context.Background(), model.SessionRequest{
		OrderID:   uuid.New(),
		LineItems: []model.SessionLineItem{{PriceID: "price_missing", Quantity: 1}},
	})
	assert.ErrorIs(t, err, model.ErrPaymentProcessor)

	_, err = newTestGateway(Config{}).CreateSession(context.Background(), model.SessionRequest{OrderID: uuid.New()})
	assert.ErrorIs(t, err, model.ErrPaymentProcessor)
}
