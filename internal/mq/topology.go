package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTriggers Exchange = "conveyor.triggers"
	ExchangeRuns     Exchange = "conveyor.runs"
	ExchangeDLQ      Exchange = "conveyor.dlq"
)

// Queues — имена очередей.
const (
	QueueTriggersPending Queue = "triggers.pending"
	QueueDLQTriggers     Queue = "dlq.triggers"
)

// Routing keys.
const (
	RoutingKeyPending     RoutingKey = "pending"
	RoutingKeyRunStarted  RoutingKey = "run.started"
	RoutingKeyRunFinished RoutingKey = "run.finished"
	RoutingKeyDLQTriggers RoutingKey = "triggers"
)

// declarer — часть amqp.Channel, нужная для объявления топологии.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// SetupTopology объявляет exchanges, queues и bindings.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return declareTopology(ch)
	})
}

func declareTopology(ch declarer) error {
	if err := declareExchanges(ch); err != nil {
		return err
	}
	if err := declareQueues(ch); err != nil {
		return err
	}
	return bindQueues(ch)
}

// declareExchanges создаёт обменники.
func declareExchanges(ch declarer) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeTriggers, "direct"},
		{ExchangeRuns, "topic"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch declarer) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQTriggers),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// triggers.pending — невалидные triggers уходят в DLQ
		{QueueTriggersPending, dlqArgs},

		// dlq.triggers — разбирается вручную
		{QueueDLQTriggers, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch declarer) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueTriggersPending, RoutingKeyPending, ExchangeTriggers},
		{QueueDLQTriggers, RoutingKeyDLQTriggers, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Conveyor RabbitMQ Topology:

    conveyor.triggers (direct)
    └── triggers.pending [routing: pending]
            Consumer: conveyor serve
            DLQ: dlq.triggers

    conveyor.runs (topic)
    ├── run.started
    └── run.finished
            Subscribers bind their own queues

    conveyor.dlq (direct)
    └── dlq.triggers [routing: triggers]
            Manual processing
  `
}
