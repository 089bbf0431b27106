package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	amqp "github.com/rabbitmq/amqp091-go"
	"media-orchestrator/constant"
	"media-orchestrator/pkg/metrics"
	"sync"
)

var (
	// ErrPublishIO marks transient broker failures: closed connections,
	// timeouts, broker nacks. Retrying may succeed.
	ErrPublishIO = errors.New("rabbitmq: publish i/o failure")
	// ErrPublishConfig marks failures retrying cannot fix: missing queues,
	// access refused, unencodable payloads.
	ErrPublishConfig = errors.New("rabbitmq: publish misconfigured")
)

type Message struct {
	Body        []byte
	ContentType string
	Headers     amqp.Table
}

func NewJSONMessage(v any, headers amqp.Table) (Message, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("%w: encode message: %w", ErrPublishConfig, err)
	}
	return Message{Body: body, ContentType: constant.ContentTypeJSON, Headers: headers}, nil
}

// FromDelivery copies the payload of msg so it can be republished unchanged.
func FromDelivery(msg amqp.Delivery, headers amqp.Table) Message {
	contentType := msg.ContentType
	if contentType == "" {
		contentType = constant.ContentTypeJSON
	}
	return Message{Body: msg.Body, ContentType: contentType, Headers: headers}
}

type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
}

type publisher struct {
	conn    *amqp.Connection
	mu      sync.Mutex
	ch      *amqp.Channel
	returns chan amqp.Return
}

// Publish sends msg to queue through the default exchange and waits for the
// broker to confirm it. Errors wrap ErrPublishIO or ErrPublishConfig.
func (p *publisher) Publish(ctx context.Context, queue string, msg Message) (err error) {
	defer func() { metrics.Published(queue, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return ClassifyPublishError(err)
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, true, false, amqp.Publishing{
		ContentType:  msg.ContentType,
		DeliveryMode: amqp.Persistent,
		Headers:      msg.Headers,
		Body:         msg.Body,
	})
	if err != nil {
		p.reset()
		return ClassifyPublishError(err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		p.reset()
		return ClassifyPublishError(err)
	}

	if err := returned(p.returns); err != nil {
		return err
	}

	if !acked {
		return fmt.Errorf("%w: broker nacked message to %s", ErrPublishIO, queue)
	}
	return nil
}

// returned reports a mandatory message the broker could not route. The broker
// sends basic.return before the confirm, so it is already buffered here. A
// closed channel means the AMQP channel shut down, not that a message bounced.
func returned(returns <-chan amqp.Return) error {
	select {
	case ret, ok := <-returns:
		if ok {
			return fmt.Errorf("%w: message to %s returned: %d %s", ErrPublishConfig, ret.RoutingKey, ret.ReplyCode, ret.ReplyText)
		}
	default:
	}
	return nil
}

func (p *publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		return nil, amqp.ErrClosed
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.returns = ch.NotifyReturn(make(chan amqp.Return, 16))
	p.ch = ch
	return ch, nil
}

func (p *publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	p.ch = nil
}

func NewPublisher(conn *amqp.Connection) Publisher {
	return &publisher{conn: conn}
}

// ClassifyPublishError wraps err with ErrPublishConfig when the broker
// rejected the operation for a reason retrying cannot fix, and with
// ErrPublishIO otherwise.
func ClassifyPublishError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPublishIO) || errors.Is(err, ErrPublishConfig) {
		return err
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr != amqp.ErrClosed && !amqpErr.Recover {
		switch amqpErr.Code {
		case amqp.NotFound, amqp.AccessRefused, amqp.PreconditionFailed,
			amqp.NotAllowed, amqp.CommandInvalid, amqp.SyntaxError, amqp.NotImplemented:
			return fmt.Errorf("%w: %w", ErrPublishConfig, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrPublishIO, err)
}
