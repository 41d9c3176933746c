package model

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound              = errors.New("order not found")
	ErrInvalidTransition          = errors.New("order status transition is not allowed")
	ErrInvalidFulfillment         = errors.New("fulfillment status transition is not allowed")
	ErrCredentialsSentIrrevocable = errors.New("credentials sent flag cannot be cleared")
)

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderFailed   OrderStatus = "failed"
	OrderRefunded OrderStatus = "refunded"
)

// orderTransitions lists the only valid status edges. failed->paid covers a
// buyer retrying after a declined attempt, or events arriving out of order.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending: {OrderPaid, OrderFailed},
	OrderFailed:  {OrderPaid},
	OrderPaid:    {OrderRefunded},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderFailed, OrderRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether the order may move from s to next.
// Staying in the same state is always allowed and is a no-op for callers.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourcesOf returns every status that may transition into target.
func SourcesOf(target OrderStatus) []OrderStatus {
	var sources []OrderStatus
	for from, targets := range orderTransitions {
		for _, to := range targets {
			if to == target {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

type FulfillmentStatus string

const (
	FulfillmentPending   FulfillmentStatus = "pending"
	FulfillmentOrdered   FulfillmentStatus = "ordered"
	FulfillmentShipped   FulfillmentStatus = "shipped"
	FulfillmentDelivered FulfillmentStatus = "delivered"
)

var fulfillmentRank = map[FulfillmentStatus]int{
	FulfillmentPending:   0,
	FulfillmentOrdered:   1,
	FulfillmentShipped:   2,
	FulfillmentDelivered: 3,
}

func (s FulfillmentStatus) Valid() bool {
	_, ok := fulfillmentRank[s]
	return ok
}

// CanAdvanceTo allows only forward moves along pending→ordered→shipped→delivered.
func (s FulfillmentStatus) CanAdvanceTo(next FulfillmentStatus) bool {
	from, ok := fulfillmentRank[s]
	if !ok {
		from = 0
	}
	to, ok := fulfillmentRank[next]
	return ok && to >= from
}

type ShippingAddress struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

func (a ShippingAddress) Empty() bool {
	return a.Street == "" && a.City == "" && a.State == "" && a.Zip == "" && a.Country == ""
}

type Order struct {
	ID                  uuid.UUID         `json:"id"`
	CustomerEmail       string            `json:"customerEmail"`
	CustomerName        string            `json:"customerName,omitempty"`
	CustomerPhone       string            `json:"customerPhone,omitempty"`
	CheckoutSessionID   string            `json:"checkoutSessionId,omitempty"`
	PaymentIntentID     string            `json:"paymentIntentId,omitempty"`
	ProcessorCustomerID string            `json:"processorCustomerId,omitempty"`
	ProductIDs          []string          `json:"productIds"`
	ProductName         string            `json:"productName"`
	AmountCents         int64             `json:"amount"`
	Currency            string            `json:"currency"`
	Status              OrderStatus       `json:"status"`
	CredentialsSent     bool              `json:"credentialsSent"`
	RequiresShipping    bool              `json:"requiresShipping"`
	Shipping            ShippingAddress   `json:"shipping"`
	FulfillmentStatus   FulfillmentStatus `json:"fulfillmentStatus"`
	FulfillmentOrderRef string            `json:"fulfillmentOrderRef,omitempty"`
	IsRenewal           bool              `json:"isRenewal"`
	ExistingUsername    string            `json:"existingUsername,omitempty"`
	CustomerID          *uuid.UUID        `json:"customerId,omitempty"`
	GeneratedUsername   string            `json:"generatedUsername,omitempty"`
	GeneratedPassword   string            `json:"generatedPassword,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

func (o *Order) HasCredentials() bool {
	return o.GeneratedUsername != "" && o.GeneratedPassword != ""
}

var deviceKeywords = []string{"fire stick", "firestick", "fire tv", "device"}

// IsDeviceOrder reports whether the order contains physical hardware. Rows
// created before RequiresShipping existed are recognised by product name.
func (o *Order) IsDeviceOrder() bool {
	if o.RequiresShipping {
		return true
	}
	name := strings.ToLower(o.ProductName)
	for _, keyword := range deviceKeywords {
		if strings.Contains(name, keyword) {
			return true
		}
	}
	return false
}

// OrderPatch carries a partial update: only non-nil fields are written.
type OrderPatch struct {
	CustomerEmail       *string
	CustomerName        *string
	CustomerPhone       *string
	CheckoutSessionID   *string
	PaymentIntentID     *string
	ProcessorCustomerID *string
	Shipping            *ShippingAddress
	FulfillmentStatus   *FulfillmentStatus
	FulfillmentOrderRef *string
	CustomerID          *uuid.UUID
}

func (p OrderPatch) Empty() bool {
	return p == OrderPatch{}
}

type OrderFilter struct {
	Status          *OrderStatus
	CredentialsSent *bool
	CreatedAfter    *time.Time
	Limit           int
}

type OrderRepository interface {
	NextID() (uuid.UUID, error)
	Create(ctx context.Context, order *Order) error
	Find(ctx context.Context, id uuid.UUID) (*Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (*Order, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Order, error)
	ListByEmail(ctx context.Context, email string) ([]Order, error)
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	Update(ctx context.Context, id uuid.UUID, patch OrderPatch) error
	// TransitionStatus moves the order to `to` only if its current status is
	// one of `from`. It reports whether this call performed the change.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []OrderStatus, to OrderStatus) (bool, error)
	// AssignCredentials stores the account credentials only while the order
	// has none, and reports whether this call stored them.
	AssignCredentials(ctx context.Context, id uuid.UUID, username, password string) (bool, error)
	// MarkCredentialsSent flips CredentialsSent false->true and reports whether
	// this call performed the flip.
	MarkCredentialsSent(ctx context.Context, id uuid.UUID) (bool, error)
}
