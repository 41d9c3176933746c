package model

import "github.com/google/uuid"

type OrderCreated struct {
	OrderID     uuid.UUID
	Email       string
	AmountCents int64
	IsRenewal   bool
}

func (e OrderCreated) Type() string { return "OrderCreated" }

type OrderMarkedPaid struct {
	OrderID     uuid.UUID
	AmountCents int64
	IsRenewal   bool
}

func (e OrderMarkedPaid) Type() string { return "OrderMarkedPaid" }

type OrderPaymentFailed struct {
	OrderID         uuid.UUID
	PaymentIntentID string
	Reason          string
}

func (e OrderPaymentFailed) Type() string { return "OrderPaymentFailed" }

type OrderMarkedRefunded struct {
	OrderID uuid.UUID
}

func (e OrderMarkedRefunded) Type() string { return "OrderMarkedRefunded" }

type CustomerCreated struct {
	CustomerID uuid.UUID
	OrderID    uuid.UUID
	Username   string
}

func (e CustomerCreated) Type() string { return "CustomerCreated" }

type CredentialsDelivered struct {
	OrderID  uuid.UUID
	Username string
}

func (e CredentialsDelivered) Type() string { return "CredentialsDelivered" }

type FulfillmentStatusChanged struct {
	OrderID   uuid.UUID
	OldStatus FulfillmentStatus
	NewStatus FulfillmentStatus
}

func (e FulfillmentStatusChanged) Type() string { return "FulfillmentStatusChanged" }
