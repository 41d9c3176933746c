package model

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrWebhookDisabled  = errors.New("webhook signing secret is not configured")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrPaymentProcessor = errors.New("payment processor request failed")
)

type PaymentEventType string

const (
	EventCheckoutCompleted      PaymentEventType = "checkout.session.completed"
	EventCheckoutAsyncSucceeded PaymentEventType = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncFailed    PaymentEventType = "checkout.session.async_payment_failed"
	EventPaymentIntentSucceeded PaymentEventType = "payment_intent.succeeded"
	EventPaymentIntentFailed    PaymentEventType = "payment_intent.payment_failed"
	EventChargeRefunded         PaymentEventType = "charge.refunded"
)

type SessionLineItem struct {
	PriceID  string
	Name     string
	Quantity int64
}

type SessionRequest struct {
	OrderID         uuid.UUID
	CustomerEmail   string
	LineItems       []SessionLineItem
	CollectShipping bool
	Metadata        map[string]string
}

type Session struct {
	ID  string
	URL string
}

// PaymentEvent is a verified processor notification reduced to the fields
// the order workflow reads. OrderReference is our order id echoed back by the
// processor through the session client reference or the intent metadata.
type PaymentEvent struct {
	ID                  string
	Type                PaymentEventType
	SessionID           string
	PaymentIntentID     string
	ProcessorCustomerID string
	OrderReference      string
	CustomerEmail       string
	CustomerName        string
	CustomerPhone       string
	Shipping            *ShippingAddress
	FailureReason       string
	// PaymentPending marks a completed checkout whose funds settle later;
	// the async_payment events decide the outcome.
	PaymentPending bool
	// FullyRefunded is false for partial refunds.
	FullyRefunded       bool
	AmountRefundedCents int64
}

type PaymentGateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	ParseEvent(payload []byte, signature string) (*PaymentEvent, error)
}
