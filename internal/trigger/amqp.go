package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shaiso/Conveyor/internal/mq"
)

// AMQPHandler возвращает обработчик очереди triggers.pending.
//
// Невалидный trigger уходит в DLQ, переполнение сервиса возвращает
// сообщение в очередь.
func AMQPHandler(s *Service) mq.Handler {
	return func(ctx context.Context, d *mq.Delivery) error {
		if d.Message.Type != mq.MessageTypeTriggerPending {
			return fmt.Errorf("%w: unexpected type %q", mq.ErrInvalidMessage, d.Message.Type)
		}

		payload, err := mq.ParsePayload[mq.TriggerPayload](&d.Message)
		if err != nil {
			return err
		}
		if strings.TrimSpace(payload.BuildID) == "" {
			return fmt.Errorf("%w: build_id is required", mq.ErrInvalidMessage)
		}

		receivedAt := d.Message.Timestamp
		if receivedAt.IsZero() {
			receivedAt = time.Now()
		}

		run, err := s.Submit(ctx, payload.Trigger(receivedAt))
		if errors.Is(err, ErrInvalidTrigger) {
			return fmt.Errorf("%w: %v", mq.ErrInvalidMessage, err)
		}
		if err != nil {
			return err
		}

		s.logger.Info("trigger accepted from queue", "run_id", run.ID, "message_id", d.Message.ID)
		return nil
	}
}
