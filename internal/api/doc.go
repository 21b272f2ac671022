// Package api содержит HTTP API сервера conveyor.
//
// Структура:
//   - handler.go     — Handler с DI (trigger service, история runs, logger)
//   - routes.go      — регистрация маршрутов
//   - middleware.go  — middleware (request id, logging, recovery, счётчик запросов)
//   - response.go    — унифицированные JSON-ответы и обработка ошибок
//   - dto.go         — Data Transfer Objects (request/response)
//   - run_handler.go — обработчики для /triggers и /runs
//
// API принимает triggers (ручной запуск и SCM webhook), отдаёт состояние
// runs и позволяет отменить выполняющийся run.
package api
