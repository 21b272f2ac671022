// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация triggers и событий runs
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - trigger.pending — запрос на запуск pipeline
//   - run.started     — run перешёл в RUNNING
//   - run.finished    — run получил финальный Outcome
//
// Exchanges:
//   - conveyor.triggers — входящие triggers
//   - conveyor.runs     — события runs (topic, подписчики создают свои очереди)
//   - conveyor.dlq      — dead letter queue
package mq
