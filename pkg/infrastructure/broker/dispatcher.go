package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/service"
)

const (
	DefaultExchange = "storefront.events"
	publishTimeout  = 5 * time.Second
)

// Publisher is the part of *amqp.Channel the dispatcher needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type envelope struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	OccurredAt time.Time     `json:"occurredAt"`
	Payload    service.Event `json:"payload"`
}

// AMQPDispatcher publishes domain events as JSON to a topic exchange, routed
// by event type.
type AMQPDispatcher struct {
	mu        sync.Mutex
	publisher Publisher
	exchange  string
	logger    log.FieldLogger
	closers   []func() error
}

func NewAMQPDispatcher(publisher Publisher, exchange string, logger log.FieldLogger) *AMQPDispatcher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQPDispatcher{publisher: publisher, exchange: exchange, logger: logger}
}

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange string, logger log.FieldLogger) (*AMQPDispatcher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connect to amqp broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open amqp channel")
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}

	d := NewAMQPDispatcher(ch, exchange, logger)
	d.closers = []func() error{ch.Close, conn.Close}
	return d, nil
}

func (d *AMQPDispatcher) Dispatch(event service.Event) error {
	id, err := uuid.NewRandom()
	if err != nil {
		return errors.Wrap(err, "generate event id")
	}
	body, err := json.Marshal(envelope{ID: id.String(), Type: event.Type(), OccurredAt: time.Now().UTC(), Payload: event})
	if err != nil {
		return errors.Wrapf(err, "encode %s", event.Type())
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	d.mu.Lock()
	err = d.publisher.PublishWithContext(ctx, d.exchange, event.Type(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id.String(),
		Timestamp:    time.Now().UTC(),
		Type:         event.Type(),
		Body:         body,
	})
	d.mu.Unlock()
	if err != nil {
		d.logger.WithError(err).WithField("eventType", event.Type()).Error("failed to publish event")
		return errors.Wrapf(err, "publish %s", event.Type())
	}
	return nil
}

func (d *AMQPDispatcher) Close() error {
	var first error
	for _, closeFn := range d.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogDispatcher records events in the application log when no broker is
// configured.
type LogDispatcher struct {
	logger log.FieldLogger
}

func NewLogDispatcher(logger log.FieldLogger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(event service.Event) error {
	d.logger.WithFields(log.Fields{"eventType": event.Type(), "event": event}).Info("domain event")
	return nil
}
