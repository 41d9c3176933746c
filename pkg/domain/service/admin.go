package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

var (
	ErrOrderNotPaid           = errors.New("order is not paid")
	ErrMissingBuyerEmail      = errors.New("order has no buyer email")
	ErrCredentialsUnavailable = errors.New("order has no credentials to send")
	ErrDeliveryFailed         = errors.New("email delivery failed")
)

const recentFailuresLimit = 20

type Bucket struct {
	Orders       int   `json:"orders"`
	PaidOrders   int   `json:"paidOrders"`
	RevenueCents int64 `json:"revenue"`
}

type OrderStats struct {
	Today    Bucket                    `json:"today"`
	Week     Bucket                    `json:"week"`
	Month    Bucket                    `json:"month"`
	AllTime  Bucket                    `json:"allTime"`
	ByStatus map[model.OrderStatus]int `json:"byStatus"`
}

type PaymentHealth struct {
	ByStatus       map[model.OrderStatus]int `json:"byStatus"`
	NeedsAttention []model.Order             `json:"needsAttention"`
	RecentFailures []model.EmailLogEntry     `json:"recentEmailFailures"`
}

type AdminOverride struct {
	Status          *model.OrderStatus `json:"status,omitempty"`
	CredentialsSent *bool              `json:"credentialsSent,omitempty"`
}

type ResendOutcome struct {
	OrderID  uuid.UUID `json:"orderId"`
	Success  bool      `json:"success"`
	Provider string    `json:"provider,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type AdminService interface {
	OrdersByEmail(ctx context.Context, email string) ([]model.Order, error)
	Stats(ctx context.Context) (*OrderStats, error)
	PaymentStatus(ctx context.Context) (*PaymentHealth, error)
	OverrideOrder(ctx context.Context, orderID uuid.UUID, override AdminOverride) (*model.Order, error)
	ResendCredentials(ctx context.Context, orderID uuid.UUID) (*ResendOutcome, error)
	ResendAllPendingCredentials(ctx context.Context) ([]ResendOutcome, error)
}

func NewAdminService(
	orders model.OrderRepository,
	emailLog model.EmailLogRepository,
	payments PaymentService,
	notifications NotificationService,
	concurrency int,
	logger log.FieldLogger,
	clock func() time.Time,
) AdminService {
	if concurrency < 1 {
		concurrency = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &adminService{
		orders:        orders,
		emailLog:      emailLog,
		payments:      payments,
		notifications: notifications,
		concurrency:   concurrency,
		logger:        logger,
		clock:         clock,
	}
}

type adminService struct {
	orders        model.OrderRepository
	emailLog      model.EmailLogRepository
	payments      PaymentService
	notifications NotificationService
	concurrency   int
	logger        log.FieldLogger
	clock         func() time.Time
}

func (s *adminService) OrdersByEmail(ctx context.Context, email string) ([]model.Order, error) {
	return s.orders.ListByEmail(ctx, email)
}

func (s *adminService) Stats(ctx context.Context) (*OrderStats, error) {
	orders, err := s.orders.List(ctx, model.OrderFilter{})
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := now.AddDate(0, 0, -7)
	monthAgo := now.AddDate(0, 0, -30)

	stats := &OrderStats{ByStatus: map[model.OrderStatus]int{}}
	for _, order := range orders {
		stats.ByStatus[order.Status]++
		stats.AllTime.add(order)
		created := order.CreatedAt.UTC()
		if !created.Before(startOfDay) {
			stats.Today.add(order)
		}
		if !created.Before(weekAgo) {
			stats.Week.add(order)
		}
		if !created.Before(monthAgo) {
			stats.Month.add(order)
		}
	}
	return stats, nil
}

func (b *Bucket) add(order model.Order) {
	b.Orders++
	if order.Status == model.OrderPaid {
		b.PaidOrders++
		b.RevenueCents += order.AmountCents
	}
}

func (s *adminService) PaymentStatus(ctx context.Context) (*PaymentHealth, error) {
	orders, err := s.orders.List(ctx, model.OrderFilter{})
	if err != nil {
		return nil, err
	}
	health := &PaymentHealth{ByStatus: map[model.OrderStatus]int{}, NeedsAttention: []model.Order{}}
	for _, order := range orders {
		health.ByStatus[order.Status]++
		if order.Status == model.OrderPaid && !order.CredentialsSent {
			health.NeedsAttention = append(health.NeedsAttention, order)
		}
	}

	health.RecentFailures = []model.EmailLogEntry{}
	if s.emailLog != nil {
		failures, err := s.emailLog.RecentFailures(ctx, recentFailuresLimit)
		if err != nil {
			s.logger.WithError(err).Warn("failed to load recent email failures")
		} else {
			health.RecentFailures = failures
		}
	}
	return health, nil
}

func (s *adminService) OverrideOrder(ctx context.Context, orderID uuid.UUID, override AdminOverride) (*model.Order, error) {
	order, err := s.orders.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if override.Status != nil && *override.Status != order.Status {
		next := *override.Status
		if !next.Valid() || !order.Status.CanTransitionTo(next) {
			return nil, model.ErrInvalidTransition
		}
		moved, err := s.orders.TransitionStatus(ctx, orderID, []model.OrderStatus{order.Status}, next)
		if err != nil {
			return nil, err
		}
		if !moved {
			return nil, model.ErrInvalidTransition
		}
		s.logger.WithFields(log.Fields{"orderId": orderID, "from": order.Status, "to": next}).Info("order status overridden by operator")
	}

	if override.CredentialsSent != nil {
		if !*override.CredentialsSent && order.CredentialsSent {
			return nil, model.ErrCredentialsSentIrrevocable
		}
		if *override.CredentialsSent {
			if _, err := s.orders.MarkCredentialsSent(ctx, orderID); err != nil {
				return nil, err
			}
		}
	}

	return s.orders.Find(ctx, orderID)
}

func (s *adminService) ResendCredentials(ctx context.Context, orderID uuid.UUID) (*ResendOutcome, error) {
	order, err := s.orders.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderPaid {
		return nil, ErrOrderNotPaid
	}
	if order.CustomerEmail == "" {
		return nil, ErrMissingBuyerEmail
	}

	if !order.HasCredentials() {
		var warning string
		order, warning, err = s.payments.IssueCredentials(ctx, order)
		if err != nil {
			return nil, err
		}
		if warning != "" {
			s.logger.WithField("orderId", orderID).Warn(warning)
		}
		if !order.HasCredentials() {
			return nil, ErrCredentialsUnavailable
		}
	}

	result := s.notifications.SendCredentials(ctx, order)
	outcome := &ResendOutcome{OrderID: orderID, Success: result.Success, Provider: result.Provider}
	if !result.Success {
		if result.Err != nil {
			outcome.Error = result.Err.Error()
		}
		return outcome, ErrDeliveryFailed
	}
	if _, err := s.orders.MarkCredentialsSent(ctx, orderID); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (s *adminService) ResendAllPendingCredentials(ctx context.Context) ([]ResendOutcome, error) {
	paid := model.OrderPaid
	notSent := false
	pending, err := s.orders.List(ctx, model.OrderFilter{Status: &paid, CredentialsSent: &notSent})
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	outcomes := make([]ResendOutcome, 0, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, order := range pending {
		orderID := order.ID
		g.Go(func() error {
			outcome, err := s.ResendCredentials(gctx, orderID)
			if outcome == nil {
				outcome = &ResendOutcome{OrderID: orderID}
			}
			if err != nil {
				outcome.Success = false
				outcome.Error = err.Error()
				s.logger.WithError(err).WithField("orderId", orderID).Warn("credentials resend failed")
			}
			mu.Lock()
			outcomes = append(outcomes, *outcome)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}

	s.logger.WithField("orders", len(outcomes)).Info("bulk credentials resend finished")
	return outcomes, nil
}
