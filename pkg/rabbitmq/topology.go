package rabbitmq

import (
	"fmt"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueSpec describes a durable queue. When DeadLetter is set, messages the
// broker rejects or expires are routed there through the default exchange.
type QueueSpec struct {
	Name       string
	DeadLetter string
}

func (q QueueSpec) args() amqp.Table {
	if q.DeadLetter == "" {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": q.DeadLetter,
	}
}

type channelDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

func DeclareQueue(ch channelDeclarer, spec QueueSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("rabbitmq: queue name is required")
	}
	if _, err := ch.QueueDeclare(spec.Name, true, false, false, false, spec.args()); err != nil {
		return fmt.Errorf("rabbitmq: declare queue %s: %w", spec.Name, err)
	}
	return nil
}

// DeclareTopology declares dead-letter targets before the queues that point
// at them.
func DeclareTopology(conn *amqp.Connection, specs ...QueueSpec) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	for _, spec := range orderForDeclaration(specs) {
		if err := DeclareQueue(ch, spec); err != nil {
			return err
		}
	}
	return nil
}

func orderForDeclaration(specs []QueueSpec) []QueueSpec {
	ordered := make([]QueueSpec, 0, len(specs))
	for _, spec := range specs {
		if spec.DeadLetter == "" {
			ordered = append(ordered, spec)
		}
	}
	for _, spec := range specs {
		if spec.DeadLetter != "" {
			ordered = append(ordered, spec)
		}
	}
	return ordered
}
