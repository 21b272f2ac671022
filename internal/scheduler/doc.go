// Package scheduler запускает pipeline по cron-расписанию.
//
// Scheduler хранит для каждого выражения время следующего срабатывания
// и на каждом тике отправляет Trigger с Source=schedule для наступивших.
//
// Структура:
//   - scheduler.go — Scheduler (Tick, Run)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedules: spec.Schedule,
//	    Submitter: service,
//	    Logger:    logger,
//	})
//
//	// Блокируется до отмены ctx, тикает раз в секунду
//	sched.Run(ctx)
//
// При нескольких процессах conveyor serve срабатывание выполняет только
// лидер (Config.Leader, например repo.AdvisoryLock на PostgreSQL).
//
// Пропущенные срабатывания (процесс был остановлен) не догоняются:
// после старта отсчёт идёт от текущего времени.
package scheduler
