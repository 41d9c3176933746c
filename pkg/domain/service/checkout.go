package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

var (
	ErrInvalidCheckout  = errors.New("invalid checkout request")
	ErrUsernameNotFound = errors.New("username not found")
)

const defaultCurrency = "usd"

type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type CheckoutRequest struct {
	Items            []CartItem `json:"items"`
	CustomerEmail    string     `json:"customerEmail"`
	CustomerName     string     `json:"customerName,omitempty"`
	CustomerPhone    string     `json:"customerPhone,omitempty"`
	IsRenewal        bool       `json:"isRenewal,omitempty"`
	ExistingUsername string     `json:"existingUsername,omitempty"`
}

type CheckoutResult struct {
	SessionURL string `json:"sessionUrl"`
	OrderID    string `json:"orderId"`
}

type CheckoutService interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
}

func NewCheckoutService(
	orders model.OrderRepository,
	products model.ProductRepository,
	customers model.CustomerRepository,
	gateway model.PaymentGateway,
	dispatcher EventDispatcher,
	logger log.FieldLogger,
) CheckoutService {
	return &checkoutService{
		orders:     orders,
		products:   products,
		customers:  customers,
		gateway:    gateway,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

type checkoutService struct {
	orders     model.OrderRepository
	products   model.ProductRepository
	customers  model.CustomerRepository
	gateway    model.PaymentGateway
	dispatcher EventDispatcher
	logger     log.FieldLogger
}

type resolvedLine struct {
	product  *model.Product
	quantity int64
}

func (s *checkoutService) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	email, err := validateCheckout(req)
	if err != nil {
		return nil, err
	}

	lines, err := s.resolveLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	existingUsername := strings.TrimSpace(req.ExistingUsername)
	if req.IsRenewal {
		if _, err := s.customers.FindByUsername(ctx, existingUsername); err != nil {
			if errors.Is(err, model.ErrCustomerNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUsernameNotFound, existingUsername)
			}
			return nil, err
		}
	} else {
		existingUsername = ""
	}

	order, err := s.newPendingOrder(req, email, existingUsername, lines)
	if err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateSession(ctx, sessionRequest(order, lines))
	if err != nil {
		s.logger.WithError(err).WithField("orderId", order.ID).Error("failed to open payment session")
		if _, markErr := s.orders.TransitionStatus(ctx, order.ID, []model.OrderStatus{model.OrderPending}, model.OrderFailed); markErr != nil {
			s.logger.WithError(markErr).WithField("orderId", order.ID).Error("failed to mark abandoned order as failed")
		}
		if errors.Is(err, model.ErrPaymentProcessor) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrPaymentProcessor, err)
	}

	if err := s.orders.Update(ctx, order.ID, model.OrderPatch{CheckoutSessionID: &session.ID}); err != nil {
		// The session carries the order id as its client reference, so the
		// webhook can still find this order.
		s.logger.WithError(err).WithFields(log.Fields{"orderId": order.ID, "sessionId": session.ID}).Error("failed to attach payment session to order")
	}

	_ = s.dispatcher.Dispatch(model.OrderCreated{
		OrderID:     order.ID,
		Email:       order.CustomerEmail,
		AmountCents: order.AmountCents,
		IsRenewal:   order.IsRenewal,
	})
	s.logger.WithFields(log.Fields{"orderId": order.ID, "sessionId": session.ID, "amount": order.AmountCents}).Info("checkout session created")

	return &CheckoutResult{SessionURL: session.URL, OrderID: order.ID.String()}, nil
}

func validateCheckout(req CheckoutRequest) (string, error) {
	if len(req.Items) == 0 {
		return "", fmt.Errorf("%w: cart is empty", ErrInvalidCheckout)
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return "", fmt.Errorf("%w: item without product id", ErrInvalidCheckout)
		}
		if item.Quantity < 1 {
			return "", fmt.Errorf("%w: quantity for %s must be at least 1", ErrInvalidCheckout, item.ProductID)
		}
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.CustomerEmail))
	if err != nil {
		return "", fmt.Errorf("%w: a valid email is required", ErrInvalidCheckout)
	}
	if req.IsRenewal && strings.TrimSpace(req.ExistingUsername) == "" {
		return "", fmt.Errorf("%w: renewal requires an existing username", ErrInvalidCheckout)
	}
	return strings.ToLower(addr.Address), nil
}

func (s *checkoutService) resolveLines(ctx context.Context, items []CartItem) ([]resolvedLine, error) {
	lines := make([]resolvedLine, 0, len(items))
	for _, item := range items {
		product, err := s.products.Find(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, model.ErrProductNotFound) {
				return nil, fmt.Errorf("%w: %s", model.ErrProductNotFound, item.ProductID)
			}
			return nil, err
		}
		if !product.Active || product.ProcessorPriceID == "" {
			return nil, fmt.Errorf("%w: %s", model.ErrProductNotPurchasable, item.ProductID)
		}
		lines = append(lines, resolvedLine{product: product, quantity: item.Quantity})
	}
	return lines, nil
}

func (s *checkoutService) newPendingOrder(req CheckoutRequest, email, existingUsername string, lines []resolvedLine) (*model.Order, error) {
	id, err := s.orders.NextID()
	if err != nil {
		return nil, err
	}

	var amount int64
	var shipping bool
	ids := make([]string, 0, len(lines))
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		amount += line.product.PriceCents * line.quantity
		ids = append(ids, line.product.ID)
		names = append(names, line.product.Name)
		if line.product.Shippable() {
			shipping = true
		}
	}

	now := time.Now().UTC()
	return &model.Order{
		ID:                id,
		CustomerEmail:     email,
		CustomerName:      strings.TrimSpace(req.CustomerName),
		CustomerPhone:     strings.TrimSpace(req.CustomerPhone),
		ProductIDs:        ids,
		ProductName:       strings.Join(names, ", "),
		AmountCents:       amount,
		Currency:          defaultCurrency,
		Status:            model.OrderPending,
		RequiresShipping:  shipping,
		FulfillmentStatus: model.FulfillmentPending,
		IsRenewal:         req.IsRenewal,
		ExistingUsername:  existingUsername,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func sessionRequest(order *model.Order, lines []resolvedLine) model.SessionRequest {
	items := make([]model.SessionLineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, model.SessionLineItem{
			PriceID:  line.product.ProcessorPriceID,
			Name:     line.product.Name,
			Quantity: line.quantity,
		})
	}
	metadata := map[string]string{
		"order_id":   order.ID.String(),
		"is_renewal": fmt.Sprintf("%t", order.IsRenewal),
	}
	if order.ExistingUsername != "" {
		metadata["existing_username"] = order.ExistingUsername
	}
	return model.SessionRequest{
		OrderID:         order.ID,
		CustomerEmail:   order.CustomerEmail,
		LineItems:       items,
		CollectShipping: order.RequiresShipping,
		Metadata:        metadata,
	}
}
