package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"recording-pipeline/config"
	"recording-pipeline/constant"
)

// Publisher sends job messages to the queue registered for each job type.
type Publisher struct {
	conn   *amqp.Connection
	routes map[constant.JobType]QueueSpec
}

// NewPublisher declares the topology of every route so messages published
// before a consumer starts are not dropped.
func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ, routes map[constant.JobType]QueueSpec) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	for jobType, spec := range routes {
		if err := declare(ch, cfg.Kind, spec); err != nil {
			return nil, fmt.Errorf("declare %s: %w", jobType, err)
		}
	}
	return &Publisher{conn: conn, routes: routes}, nil
}

func (p *Publisher) Dispatch(ctx context.Context, jobType constant.JobType, message any) error {
	spec, ok := p.routes[jobType]
	if !ok {
		return fmt.Errorf("no queue for job type %s", jobType)
	}

	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.PublishWithContext(ctx, spec.Exchange, spec.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
}
