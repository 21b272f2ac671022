package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Conveyor/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTriggerPending MessageType = "trigger.pending"
	MessageTypeRunStarted     MessageType = "run.started"
	MessageTypeRunFinished    MessageType = "run.finished"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TriggerPayload — payload запроса на запуск pipeline.
type TriggerPayload struct {
	BuildID  string               `json:"build_id"`
	Source   domain.TriggerSource `json:"source,omitempty"`
	Revision string               `json:"revision,omitempty"`
}

// Trigger превращает payload в Trigger. Source по умолчанию — scm.
func (p TriggerPayload) Trigger(receivedAt time.Time) domain.Trigger {
	source := p.Source
	if source == "" {
		source = domain.TriggerSourceSCM
	}
	return domain.Trigger{
		BuildID:     p.BuildID,
		Source:      source,
		Revision:    p.Revision,
		RequestedAt: receivedAt,
	}
}

// RunEventPayload — payload событий run.started и run.finished.
type RunEventPayload struct {
	RunID    uuid.UUID        `json:"run_id"`
	Pipeline string           `json:"pipeline"`
	BuildID  string           `json:"build_id"`
	ImageTag string           `json:"image_tag"`
	Status   domain.RunStatus `json:"status"`
	Outcome  *domain.Outcome  `json:"outcome,omitempty"`
}

// sendFunc отправляет сообщение в канал.
type sendFunc func(ctx context.Context, exchange, key string, msg amqp.Publishing) error

// Publisher публикует сообщения в RabbitMQ.
//
// Реализует pipeline.EventPublisher.
type Publisher struct {
	send   sendFunc
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	send := func(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
		return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
			return ch.PublishWithContext(ctx, exchange, key, false, false, msg)
		})
	}
	return &Publisher{send: send, logger: logger}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.send(ctx, string(exchange), string(routingKey), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)
	return nil
}

// PublishTrigger ставит trigger в очередь triggers.pending.
func (p *Publisher) PublishTrigger(ctx context.Context, payload TriggerPayload) error {
	return p.Publish(ctx, ExchangeTriggers, RoutingKeyPending, newMessage(MessageTypeTriggerPending, payload))
}

// PublishRunStarted публикует событие о начале run.
func (p *Publisher) PublishRunStarted(ctx context.Context, run *domain.Run) error {
	payload := runEvent(run)
	return p.Publish(ctx, ExchangeRuns, RoutingKeyRunStarted, newMessage(MessageTypeRunStarted, payload))
}

// PublishRunFinished публикует финальный Outcome run.
func (p *Publisher) PublishRunFinished(ctx context.Context, run *domain.Run, outcome domain.Outcome) error {
	payload := runEvent(run)
	payload.Outcome = &outcome
	return p.Publish(ctx, ExchangeRuns, RoutingKeyRunFinished, newMessage(MessageTypeRunFinished, payload))
}

func newMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

func runEvent(run *domain.Run) RunEventPayload {
	return RunEventPayload{
		RunID:    run.ID,
		Pipeline: run.Pipeline,
		BuildID:  run.BuildID,
		ImageTag: run.ImageTag,
		Status:   run.Status,
	}
}
