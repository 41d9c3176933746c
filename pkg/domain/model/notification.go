package model

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotConfigured = errors.New("email provider is not configured")
	ErrAllProvidersFailed    = errors.New("all email providers failed")
)

type EmailKind string

const (
	EmailOrderConfirmation   EmailKind = "order_confirmation"
	EmailCredentials         EmailKind = "credentials"
	EmailRenewalConfirmation EmailKind = "renewal_confirmation"
	EmailOwnerAlert          EmailKind = "owner_alert"
)

type Email struct {
	To      string
	Subject string
	HTML    string
}

// EmailProvider delivers one message through a single vendor.
type EmailProvider interface {
	Name() string
	Send(ctx context.Context, email Email) error
}

type EmailLogEntry struct {
	ID        uuid.UUID  `json:"id"`
	OrderID   *uuid.UUID `json:"orderId,omitempty"`
	Kind      EmailKind  `json:"kind"`
	Recipient string     `json:"recipient"`
	Provider  string     `json:"provider,omitempty"`
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type EmailLogRepository interface {
	Append(ctx context.Context, entry *EmailLogEntry) error
	RecentFailures(ctx context.Context, limit int) ([]EmailLogEntry, error)
}
