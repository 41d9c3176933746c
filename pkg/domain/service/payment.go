package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

// PaymentService drives the order state machine from payment processor
// events. Every entry point is safe to call more than once for the same
// payment.
type PaymentService interface {
	// HandleWebhook verifies and processes one raw delivery. It never fails:
	// the processor must always receive an acknowledgement.
	HandleWebhook(ctx context.Context, payload []byte, signature string)
	HandleEvent(ctx context.Context, event *model.PaymentEvent) error
	// IssueCredentials fills in the order's account credentials if they are
	// missing. The returned warning is non-empty when an operator has to act.
	IssueCredentials(ctx context.Context, order *model.Order) (*model.Order, string, error)
}

func NewPaymentService(
	orders model.OrderRepository,
	customers model.CustomerRepository,
	gateway model.PaymentGateway,
	notifications NotificationService,
	dispatcher EventDispatcher,
	logger log.FieldLogger,
	clock func() time.Time,
) PaymentService {
	if clock == nil {
		clock = time.Now
	}
	return &paymentService{
		orders:        orders,
		customers:     customers,
		gateway:       gateway,
		notifications: notifications,
		dispatcher:    dispatcher,
		logger:        logger,
		clock:         clock,
	}
}

type paymentService struct {
	orders        model.OrderRepository
	customers     model.CustomerRepository
	gateway       model.PaymentGateway
	notifications NotificationService
	dispatcher    EventDispatcher
	logger        log.FieldLogger
	clock         func() time.Time
}

func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) {
	event, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrWebhookDisabled):
			s.logger.Error("webhook signing secret is not configured, event ignored")
		case errors.Is(err, model.ErrInvalidSignature):
			s.logger.WithError(err).WithField("security", true).Warn("rejected webhook with invalid signature")
		default:
			s.logger.WithError(err).Error("failed to parse webhook event")
		}
		return
	}

	if err := s.HandleEvent(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"eventId": event.ID, "eventType": event.Type}).Error("failed to process webhook event")
	}
}

func (s *paymentService) HandleEvent(ctx context.Context, event *model.PaymentEvent) error {
	logger := s.logger.WithFields(log.Fields{"eventId": event.ID, "eventType": event.Type})

	switch event.Type {
	case model.EventCheckoutCompleted, model.EventCheckoutAsyncSucceeded, model.EventPaymentIntentSucceeded:
		order, err := s.findOrder(ctx, event)
		if err != nil {
			return ignoreNotFound(err, logger)
		}
		if event.PaymentPending {
			return s.recordPending(ctx, order, event)
		}
		return s.settle(ctx, order, event)
	case model.EventCheckoutAsyncFailed, model.EventPaymentIntentFailed:
		order, err := s.findOrder(ctx, event)
		if err != nil {
			return ignoreNotFound(err, logger)
		}
		return s.markFailed(ctx, order, event)
	case model.EventChargeRefunded:
		order, err := s.findOrder(ctx, event)
		if err != nil {
			return ignoreNotFound(err, logger)
		}
		if !event.FullyRefunded {
			logger.WithFields(log.Fields{"orderId": order.ID, "amountRefunded": event.AmountRefundedCents}).Info("partial refund recorded, order status unchanged")
			return nil
		}
		return s.markRefunded(ctx, order)
	default:
		logger.Debug("ignoring unhandled event type")
		return nil
	}
}

func ignoreNotFound(err error, logger log.FieldLogger) error {
	if errors.Is(err, model.ErrOrderNotFound) {
		logger.Info("event does not match a known order, ignoring")
		return nil
	}
	return err
}

func (s *paymentService) findOrder(ctx context.Context, event *model.PaymentEvent) (*model.Order, error) {
	if event.SessionID != "" {
		order, err := s.orders.FindBySessionID(ctx, event.SessionID)
		if !errors.Is(err, model.ErrOrderNotFound) {
			return order, err
		}
	}
	if event.PaymentIntentID != "" {
		order, err := s.orders.FindByPaymentIntentID(ctx, event.PaymentIntentID)
		if !errors.Is(err, model.ErrOrderNotFound) {
			return order, err
		}
	}

	id, parseErr := uuid.Parse(event.OrderReference)
	if parseErr != nil {
		return nil, model.ErrOrderNotFound
	}
	return s.orders.Find(ctx, id)
}

// recordPending keeps the order pending while a delayed payment method
// clears, capturing the processor references for the later async event.
func (s *paymentService) recordPending(ctx context.Context, order *model.Order, event *model.PaymentEvent) error {
	if patch := capturePatch(order, event); !patch.Empty() {
		if err := s.orders.Update(ctx, order.ID, patch); err != nil {
			return err
		}
	}
	s.logger.WithFields(log.Fields{"orderId": order.ID, "sessionId": event.SessionID}).Info("checkout completed with payment still processing")
	return nil
}

// settle is the single procedure both success events funnel into. Only the
// call that moves the order to paid issues credentials and sends the
// one-off emails; the credentials email is guarded by CredentialsSent.
func (s *paymentService) settle(ctx context.Context, order *model.Order, event *model.PaymentEvent) error {
	logger := s.logger.WithFields(log.Fields{"orderId": order.ID, "eventType": event.Type})

	won := false
	if order.Status != model.OrderPaid {
		if !order.Status.CanTransitionTo(model.OrderPaid) {
			logger.WithField("status", order.Status).Warn("payment event for order that cannot become paid, ignoring")
			return nil
		}
		var err error
		won, err = s.orders.TransitionStatus(ctx, order.ID, model.SourcesOf(model.OrderPaid), model.OrderPaid)
		if err != nil {
			return err
		}
	}

	if patch := capturePatch(order, event); !patch.Empty() {
		if err := s.orders.Update(ctx, order.ID, patch); err != nil {
			return err
		}
	}

	order, err := s.orders.Find(ctx, order.ID)
	if err != nil {
		return err
	}

	warning := ""
	if won {
		logger.WithField("amount", order.AmountCents).Info("order marked as paid")
		if !order.HasCredentials() {
			order, warning, err = s.IssueCredentials(ctx, order)
			if err != nil {
				logger.WithError(err).Error("failed to issue credentials")
				warning = "credentials could not be issued automatically, resend them from the admin panel"
			}
		}
		_ = s.dispatcher.Dispatch(model.OrderMarkedPaid{OrderID: order.ID, AmountCents: order.AmountCents, IsRenewal: order.IsRenewal})
	}

	if order.CustomerEmail == "" {
		logger.Error("paid order has no buyer email, customer notifications skipped")
		if won {
			s.notifications.SendOwnerAlert(ctx, order, joinWarnings(warning, "order has no buyer email, contact the buyer manually"))
		}
		return nil
	}

	s.notifyBuyer(ctx, order, won, logger)

	if won {
		s.notifications.SendOwnerAlert(ctx, order, warning)
	}
	return nil
}

func (s *paymentService) notifyBuyer(ctx context.Context, order *model.Order, won bool, logger log.FieldLogger) {
	if order.IsRenewal {
		if order.CredentialsSent || !order.HasCredentials() {
			return
		}
		if result := s.notifications.SendRenewalConfirmation(ctx, order); result.Success {
			s.markCredentialsSent(ctx, order, logger)
		}
		return
	}

	if won {
		s.notifications.SendOrderConfirmation(ctx, order)
	}
	if order.CredentialsSent || !order.HasCredentials() {
		return
	}
	if result := s.notifications.SendCredentials(ctx, order); result.Success {
		s.markCredentialsSent(ctx, order, logger)
	}
}

func (s *paymentService) markCredentialsSent(ctx context.Context, order *model.Order, logger log.FieldLogger) {
	flipped, err := s.orders.MarkCredentialsSent(ctx, order.ID)
	if err != nil {
		logger.WithError(err).Error("failed to mark credentials as sent")
		return
	}
	order.CredentialsSent = true
	if flipped {
		_ = s.dispatcher.Dispatch(model.CredentialsDelivered{OrderID: order.ID, Username: order.GeneratedUsername})
	}
}

func (s *paymentService) IssueCredentials(ctx context.Context, order *model.Order) (*model.Order, string, error) {
	if order.HasCredentials() {
		return order, "", nil
	}
	logger := s.logger.WithField("orderId", order.ID)
	now := s.clock().UTC()

	if order.IsRenewal {
		customer, err := s.customers.FindByUsername(ctx, order.ExistingUsername)
		if err != nil {
			if errors.Is(err, model.ErrCustomerNotFound) {
				logger.WithField("username", order.ExistingUsername).Error("renewal customer not found, manual resolution required")
				return order, fmt.Sprintf("renewal account %q was not found, extend the subscription manually", order.ExistingUsername), nil
			}
			return order, "", err
		}
		assigned, err := s.orders.AssignCredentials(ctx, order.ID, customer.Username, customer.Password)
		if err != nil {
			return order, "", err
		}
		if !assigned {
			return s.storedCredentials(ctx, order, logger)
		}
		if err := s.linkCustomer(ctx, order.ID, customer.ID, now, logger); err != nil {
			return order, "", err
		}
		return withCredentials(order, customer), "", nil
	}

	creds, err := GenerateUniqueCredentials(ctx, order.ID.String(), nameHint(order), s.customers.UsernameExists, s.clock)
	if err != nil {
		return order, "", err
	}
	// Claim the order row before creating the account.
	assigned, err := s.orders.AssignCredentials(ctx, order.ID, creds.Username, creds.Password)
	if err != nil {
		return order, "", err
	}
	if !assigned {
		return s.storedCredentials(ctx, order, logger)
	}

	id, err := s.customers.NextID()
	if err != nil {
		return order, "", err
	}
	customer := &model.Customer{
		ID:        id,
		Username:  creds.Username,
		Password:  creds.Password,
		Email:     order.CustomerEmail,
		FullName:  order.CustomerName,
		Phone:     order.CustomerPhone,
		Status:    model.CustomerActive,
		CreatedAt: now,
	}
	if err := s.customers.Create(ctx, customer); err != nil {
		logger.WithError(err).WithField("username", creds.Username).Error("credentials assigned but customer account was not created")
		return order, "", err
	}
	_ = s.dispatcher.Dispatch(model.CustomerCreated{CustomerID: customer.ID, OrderID: order.ID, Username: customer.Username})
	logger.WithField("username", customer.Username).Info("customer account created")

	if err := s.linkCustomer(ctx, order.ID, customer.ID, now, logger); err != nil {
		return order, "", err
	}
	return withCredentials(order, customer), "", nil
}

// storedCredentials reloads an order whose credentials another caller
// assigned first.
func (s *paymentService) storedCredentials(ctx context.Context, order *model.Order, logger log.FieldLogger) (*model.Order, string, error) {
	logger.Info("credentials already assigned by a concurrent caller")
	stored, err := s.orders.Find(ctx, order.ID)
	if err != nil {
		return order, "", err
	}
	return stored, "", nil
}

func (s *paymentService) linkCustomer(ctx context.Context, orderID, customerID uuid.UUID, at time.Time, logger log.FieldLogger) error {
	if err := s.orders.Update(ctx, orderID, model.OrderPatch{CustomerID: &customerID}); err != nil {
		return err
	}
	if err := s.customers.RecordOrder(ctx, customerID, at); err != nil {
		logger.WithError(err).Warn("failed to update customer order counter")
	}
	return nil
}

func withCredentials(order *model.Order, customer *model.Customer) *model.Order {
	updated := *order
	customerID := customer.ID
	updated.CustomerID = &customerID
	updated.GeneratedUsername = customer.Username
	updated.GeneratedPassword = customer.Password
	return &updated
}

func (s *paymentService) markFailed(ctx context.Context, order *model.Order, event *model.PaymentEvent) error {
	if order.Status != model.OrderPending {
		s.logger.WithFields(log.Fields{"orderId": order.ID, "status": order.Status}).Info("payment failure for order that is not pending, ignoring")
		return nil
	}
	moved, err := s.orders.TransitionStatus(ctx, order.ID, []model.OrderStatus{model.OrderPending}, model.OrderFailed)
	if err != nil {
		return err
	}
	if patch := capturePatch(order, event); !patch.Empty() {
		if err := s.orders.Update(ctx, order.ID, patch); err != nil {
			return err
		}
	}
	if moved {
		s.logger.WithFields(log.Fields{"orderId": order.ID, "reason": event.FailureReason}).Info("order payment failed")
		_ = s.dispatcher.Dispatch(model.OrderPaymentFailed{OrderID: order.ID, PaymentIntentID: event.PaymentIntentID, Reason: event.FailureReason})
	}
	return nil
}

func (s *paymentService) markRefunded(ctx context.Context, order *model.Order) error {
	moved, err := s.orders.TransitionStatus(ctx, order.ID, []model.OrderStatus{model.OrderPaid}, model.OrderRefunded)
	if err != nil {
		return err
	}
	if moved {
		s.logger.WithField("orderId", order.ID).Info("order refunded")
		_ = s.dispatcher.Dispatch(model.OrderMarkedRefunded{OrderID: order.ID})
	}
	return nil
}

// capturePatch copies processor data onto fields the order does not have yet.
func capturePatch(order *model.Order, event *model.PaymentEvent) model.OrderPatch {
	var patch model.OrderPatch
	setIfEmpty := func(current, incoming string, target **string) {
		if current == "" && incoming != "" {
			value := incoming
			*target = &value
		}
	}
	setIfEmpty(order.CheckoutSessionID, event.SessionID, &patch.CheckoutSessionID)
	setIfEmpty(order.PaymentIntentID, event.PaymentIntentID, &patch.PaymentIntentID)
	setIfEmpty(order.ProcessorCustomerID, event.ProcessorCustomerID, &patch.ProcessorCustomerID)
	setIfEmpty(order.CustomerEmail, strings.ToLower(strings.TrimSpace(event.CustomerEmail)), &patch.CustomerEmail)
	setIfEmpty(order.CustomerName, event.CustomerName, &patch.CustomerName)

	phone := event.CustomerPhone
	if phone == "" && event.Shipping != nil {
		phone = event.Shipping.Phone
	}
	setIfEmpty(order.CustomerPhone, phone, &patch.CustomerPhone)

	if event.Shipping != nil && !event.Shipping.Empty() && order.Shipping.Empty() {
		shipping := *event.Shipping
		patch.Shipping = &shipping
	}
	return patch
}

func nameHint(order *model.Order) string {
	if strings.TrimSpace(order.CustomerName) != "" {
		return order.CustomerName
	}
	local, _, _ := strings.Cut(order.CustomerEmail, "@")
	return local
}

func joinWarnings(warnings ...string) string {
	var parts []string
	for _, w := range warnings {
		if w != "" {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, "; ")
}
