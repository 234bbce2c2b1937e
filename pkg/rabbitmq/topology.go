package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueSpec names one work queue and its dead-letter companion.
type QueueSpec struct {
	Exchange   string
	Queue      string
	RoutingKey string
	// MaxTries bounds in-process retries of a delivery before it is dead-lettered.
	MaxTries uint
}

func (s QueueSpec) dlx() string {
	return s.Exchange + "_dlx"
}

func (s QueueSpec) dlq() string {
	return s.Queue + "_dlq"
}

func (s QueueSpec) dlqRoutingKey() string {
	return "dlq." + s.RoutingKey
}

func declare(ch *amqp.Channel, kind string, spec QueueSpec) error {
	if err := ch.ExchangeDeclare(spec.Exchange, kind, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(spec.dlx(), kind, true, false, false, false, nil); err != nil {
		return err
	}

	dlq, err := ch.QueueDeclare(spec.dlq(), true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(dlq.Name, spec.dlqRoutingKey(), spec.dlx(), false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    spec.dlx(),
		"x-dead-letter-routing-key": spec.dlqRoutingKey(),
	}
	q, err := ch.QueueDeclare(spec.Queue, true, false, false, false, args)
	if err != nil {
		return err
	}
	return ch.QueueBind(q.Name, spec.RoutingKey, spec.Exchange, false, nil)
}
