package mq

import "errors"

// Ошибки очереди.
var (
	// ErrNoChannel — соединение не установлено.
	ErrNoChannel = errors.New("no channel available")

	// ErrInvalidMessage — сообщение не может быть обработано никогда.
	// Такие сообщения уходят в DLQ без повторной доставки.
	ErrInvalidMessage = errors.New("invalid message")
)
