// Package cli реализует удалённые команды Conveyor.
//
// # Обзор
//
// Команды работают с сервером Conveyor (conveyor serve) через HTTP
// и не импортируют внутренние пакеты системы: типы ответов дублируются
// из api/dto.go.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент (resty) для Conveyor API. Разбирает обёртки ответов
// (data, list, error) и превращает ошибки API в error вида
// "CODE: message".
//
//	client := cli.NewClient("http://localhost:8080")
//	run, err := client.Trigger(ctx, cli.TriggerRequest{BuildID: "42"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: conveyor runs list --json | jq .
//
// ## Commands
//
//   - trigger BUILD_ID: запуск pipeline на сервере
//   - runs: list, show, log, cancel
//
// Каждая группа создаётся через фабричную функцию (NewRunsCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
