package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"leadcrm_backend/internal/bootstrap"
	"leadcrm_backend/internal/scheduler"
	"leadcrm_backend/platform/config"
	"leadcrm_backend/platform/logger"
)

func main() {
	enqueue := flag.String("enqueue", "", "enqueue one job by task name and exit (e.g. autoassign.run)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *enqueue != "" {
		enqueueOnce(ctx, cfg, log, *enqueue)
		return
	}

	infra, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		log.Error("failed to initialize infrastructure", "error", err)
		panic("failed to initialize infrastructure: " + err.Error())
	}
	defer infra.Close()

	worker, err := scheduler.NewWorker(cfg, cfg.GetLocation(), infra.Jobs(), infra.Tracker, infra.Metrics, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	if err := worker.Run(ctx); err != nil {
		log.Error("scheduler worker stopped with error", "error", err)
		panic("scheduler worker: " + err.Error())
	}
}

func enqueueOnce(ctx context.Context, cfg *config.Config, log *logger.Logger, name string) {
	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	id, err := client.Enqueue(ctx, name)
	if err != nil {
		log.Error("failed to enqueue job", "job", name, "error", err)
		os.Exit(1)
	}
	log.Info("job enqueued", "job", name, "taskId", id)
}
