// Package trigger принимает triggers и выполняет по ним pipeline.
//
// Service строит свежий Pipeline на каждый trigger и запускает его
// в отдельной горутине. Triggers приходят из HTTP API, из очереди
// RabbitMQ (AMQPHandler) и от scheduler.
//
//	svc := trigger.NewService(trigger.Config{
//	    Loader:        &config.FileLoader{Path: "conveyor.yaml"},
//	    Runner:        runner,
//	    MaxConcurrent: 2,
//	})
//	run, err := svc.Submit(ctx, domain.Trigger{BuildID: "42", Source: domain.TriggerSourceSCM})
//	...
//	svc.Cancel(run.ID) // run завершится как Aborted(ExternalAbort)
package trigger
