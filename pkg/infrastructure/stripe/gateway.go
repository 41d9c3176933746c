package stripe

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

const orderIDMetadataKey = "order_id"

type Config struct {
	SecretKey         string
	WebhookSecret     string
	SuccessURL        string
	CancelURL         string
	ShippingCountries []string
	// BackendURL overrides the API endpoint; used against test servers.
	BackendURL string
}

var _ model.PaymentGateway = (*Gateway)(nil)

type Gateway struct {
	api    *client.API
	config Config
}

func NewGateway(config Config, logger log.FieldLogger) *Gateway {
	backendConfig := &stripe.BackendConfig{LeveledLogger: logger}
	if config.BackendURL != "" {
		backendConfig.URL = stripe.String(config.BackendURL)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, &stripe.BackendConfig{LeveledLogger: logger}),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, &stripe.BackendConfig{LeveledLogger: logger}),
	}
	api := &client.API{}
	api.Init(config.SecretKey, backends)
	if len(config.ShippingCountries) == 0 {
		config.ShippingCountries = []string{"US"}
	}
	return &Gateway{api: api, config: config}
}

func (g *Gateway) CreateSession(ctx context.Context, req model.SessionRequest) (*model.Session, error) {
	if g.config.SecretKey == "" {
		return nil, errors.Wrap(model.ErrPaymentProcessor, "stripe secret key is not configured")
	}

	orderID := req.OrderID.String()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(expandURL(g.config.SuccessURL, orderID)),
		CancelURL:         stripe.String(expandURL(g.config.CancelURL, orderID)),
		ClientReferenceID: stripe.String(orderID),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{orderIDMetadataKey: orderID},
		},
	}
	params.Context = ctx
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, line := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(line.PriceID),
			Quantity: stripe.Int64(line.Quantity),
		})
	}
	if req.CollectShipping {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(g.config.ShippingCountries),
		}
		params.PhoneNumberCollection = &stripe.CheckoutSessionPhoneNumberCollectionParams{
			Enabled: stripe.Bool(true),
		}
	}
	params.AddMetadata(orderIDMetadataKey, orderID)
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
		params.PaymentIntentData.Metadata[key] = value
	}

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, errors.Wrapf(model.ErrPaymentProcessor, "create checkout session: %v", err)
	}
	return &model.Session{ID: session.ID, URL: session.URL}, nil
}

// expandURL fills the {ORDER_ID} placeholder Stripe leaves untouched, so the
// landing page can look the order up.
func expandURL(raw, orderID string) string {
	return strings.ReplaceAll(raw, "{ORDER_ID}", orderID)
}

func (g *Gateway) ParseEvent(payload []byte, signature string) (*model.PaymentEvent, error) {
	if g.config.WebhookSecret == "" {
		return nil, model.ErrWebhookDisabled
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Wrapf(model.ErrInvalidSignature, "%v", err)
	}
	if event.Data == nil {
		return nil, errors.Errorf("event %s has no data", event.ID)
	}

	result := &model.PaymentEvent{ID: event.ID, Type: model.PaymentEventType(event.Type)}
	switch result.Type {
	case model.EventCheckoutCompleted, model.EventCheckoutAsyncSucceeded, model.EventCheckoutAsyncFailed:
		err = decodeSession(event.Data.Raw, result)
	case model.EventPaymentIntentSucceeded, model.EventPaymentIntentFailed:
		err = decodePaymentIntent(event.Data.Raw, result)
	case model.EventChargeRefunded:
		err = decodeCharge(event.Data.Raw, result)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s payload", event.Type)
	}
	return result, nil
}
