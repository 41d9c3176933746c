package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

var ErrNotDeviceOrder = errors.New("order does not contain a physical device")

type FulfillmentUpdate struct {
	Status           *model.FulfillmentStatus `json:"fulfillmentStatus,omitempty"`
	ExternalOrderRef *string                  `json:"externalOrderRef,omitempty"`
}

// FulfillmentService tracks shipping for hardware orders. Status changes are
// always operator initiated.
type FulfillmentService interface {
	ListDeviceOrders(ctx context.Context) ([]model.Order, error)
	UpdateFulfillment(ctx context.Context, orderID uuid.UUID, update FulfillmentUpdate) (*model.Order, error)
}

func NewFulfillmentService(orders model.OrderRepository, dispatcher EventDispatcher, logger log.FieldLogger) FulfillmentService {
	return &fulfillmentService{orders: orders, dispatcher: dispatcher, logger: logger}
}

type fulfillmentService struct {
	orders     model.OrderRepository
	dispatcher EventDispatcher
	logger     log.FieldLogger
}

func (s *fulfillmentService) ListDeviceOrders(ctx context.Context) ([]model.Order, error) {
	paid := model.OrderPaid
	orders, err := s.orders.List(ctx, model.OrderFilter{Status: &paid})
	if err != nil {
		return nil, err
	}
	devices := make([]model.Order, 0, len(orders))
	for _, order := range orders {
		if order.IsDeviceOrder() {
			devices = append(devices, order)
		}
	}
	return devices, nil
}

func (s *fulfillmentService) UpdateFulfillment(ctx context.Context, orderID uuid.UUID, update FulfillmentUpdate) (*model.Order, error) {
	order, err := s.orders.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsDeviceOrder() {
		return nil, ErrNotDeviceOrder
	}
	if order.Status != model.OrderPaid {
		return nil, model.ErrInvalidFulfillment
	}

	oldStatus := order.FulfillmentStatus
	var patch model.OrderPatch
	if update.Status != nil {
		if !update.Status.Valid() || !oldStatus.CanAdvanceTo(*update.Status) {
			return nil, model.ErrInvalidFulfillment
		}
		if *update.Status != oldStatus {
			patch.FulfillmentStatus = update.Status
		}
	}
	if update.ExternalOrderRef != nil {
		patch.FulfillmentOrderRef = update.ExternalOrderRef
	}
	if patch.Empty() {
		return order, nil
	}

	if err := s.orders.Update(ctx, orderID, patch); err != nil {
		return nil, err
	}

	if patch.FulfillmentStatus != nil {
		_ = s.dispatcher.Dispatch(model.FulfillmentStatusChanged{OrderID: orderID, OldStatus: oldStatus, NewStatus: *patch.FulfillmentStatus})
		s.logger.WithFields(log.Fields{"orderId": orderID, "from": oldStatus, "to": *patch.FulfillmentStatus}).Info("fulfillment status changed")
	}
	return s.orders.Find(ctx, orderID)
}
