package model

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrUsernameTaken    = errors.New("username is already taken")
)

type CustomerStatus string

const (
	CustomerActive    CustomerStatus = "active"
	CustomerInactive  CustomerStatus = "inactive"
	CustomerSuspended CustomerStatus = "suspended"
)

// Customer is a streaming-service account. Password is kept retrievable
// because it has to be re-sent to the buyer; storage encrypts it at rest.
type Customer struct {
	ID          uuid.UUID      `json:"id"`
	Username    string         `json:"username"`
	Password    string         `json:"-"`
	Email       string         `json:"email"`
	FullName    string         `json:"fullName,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Status      CustomerStatus `json:"status"`
	TotalOrders int            `json:"totalOrders"`
	LastOrderAt *time.Time     `json:"lastOrderAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type CustomerRepository interface {
	NextID() (uuid.UUID, error)
	Create(ctx context.Context, customer *Customer) error
	Find(ctx context.Context, id uuid.UUID) (*Customer, error)
	FindByUsername(ctx context.Context, username string) (*Customer, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	RecordOrder(ctx context.Context, id uuid.UUID, at time.Time) error
}
