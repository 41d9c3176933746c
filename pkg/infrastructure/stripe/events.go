package stripe

import (
	"encoding/json"
	"strings"

	stripe "github.com/stripe/stripe-go/v76"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

func decodeSession(raw json.RawMessage, event *model.PaymentEvent) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return err
	}
	event.SessionID = session.ID
	if session.PaymentIntent != nil {
		event.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.Customer != nil {
		event.ProcessorCustomerID = session.Customer.ID
	}
	event.OrderReference = session.ClientReferenceID
	if event.OrderReference == "" {
		event.OrderReference = session.Metadata[orderIDMetadataKey]
	}
	event.CustomerEmail = session.CustomerEmail
	if details := session.CustomerDetails; details != nil {
		if details.Email != "" {
			event.CustomerEmail = details.Email
		}
		event.CustomerName = details.Name
		event.CustomerPhone = details.Phone
	}
	event.Shipping = shippingAddress(session.ShippingDetails)
	event.PaymentPending = session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid
	return nil
}

func decodePaymentIntent(raw json.RawMessage, event *model.PaymentEvent) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return err
	}
	event.PaymentIntentID = intent.ID
	if intent.Customer != nil {
		event.ProcessorCustomerID = intent.Customer.ID
	}
	event.OrderReference = intent.Metadata[orderIDMetadataKey]
	event.CustomerEmail = intent.ReceiptEmail
	event.Shipping = shippingAddress(intent.Shipping)
	if failure := intent.LastPaymentError; failure != nil {
		event.FailureReason = failure.Msg
		if event.FailureReason == "" {
			event.FailureReason = string(failure.Code)
		}
	}
	return nil
}

func decodeCharge(raw json.RawMessage, event *model.PaymentEvent) error {
	var charge stripe.Charge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return err
	}
	if charge.PaymentIntent != nil {
		event.PaymentIntentID = charge.PaymentIntent.ID
	}
	event.OrderReference = charge.Metadata[orderIDMetadataKey]
	event.AmountRefundedCents = charge.AmountRefunded
	event.FullyRefunded = charge.Refunded || (charge.Amount > 0 && charge.AmountRefunded >= charge.Amount)
	return nil
}

func shippingAddress(details *stripe.ShippingDetails) *model.ShippingAddress {
	if details == nil {
		return nil
	}
	shipping := &model.ShippingAddress{Name: details.Name, Phone: details.Phone}
	if a := details.Address; a != nil {
		shipping.Street = strings.TrimSpace(strings.Join([]string{a.Line1, a.Line2}, " "))
		shipping.City = a.City
		shipping.State = a.State
		shipping.Zip = a.PostalCode
		shipping.Country = a.Country
	}
	if shipping.Empty() {
		return nil
	}
	return shipping
}
