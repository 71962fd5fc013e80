package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadcrm_backend/internal/autoassign"
	"leadcrm_backend/platform/config"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"

	"github.com/hibiken/asynq"
	"github.com/rotisserie/eris"
)

// Worker processes job tasks and, through an asynq periodic scheduler,
// enqueues them on their schedules. Several workers may share one Redis;
// unique task options keep a period from being enqueued twice.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	jobs      []Job
	queue     string
	tracker   *autoassign.Tracker
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewWorker wires jobs into an asynq server and scheduler. tracker may be
// nil.
func NewWorker(cfg config.SchedulerConfig, loc *time.Location, jobs []Job, tracker *autoassign.Tracker, m *metrics.Metrics, log *logger.Logger) (*Worker, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := queueName(cfg)
	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	w := &Worker{
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{queue: 1},
		}),
		scheduler: asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: loc}),
		mux:       asynq.NewServeMux(),
		jobs:      jobs,
		queue:     queue,
		tracker:   tracker,
		metrics:   m,
		log:       log,
	}

	for _, j := range jobs {
		w.mux.HandleFunc(j.Name, w.handle(j))

		task, err := NewJobTask(j.Name, autoassign.TriggerAsynq)
		if err != nil {
			return nil, err
		}
		spec, err := asynqSpec(j.Spec)
		if err != nil {
			return nil, eris.Wrapf(err, "schedule %s", j.Name)
		}
		if _, err := w.scheduler.Register(spec, task, w.taskOptions(j)...); err != nil {
			return nil, eris.Wrapf(err, "register %s", j.Name)
		}
	}
	return w, nil
}

func (w *Worker) taskOptions(j Job) []asynq.Option {
	opts := []asynq.Option{asynq.Queue(w.queue), asynq.MaxRetry(2)}
	if j.Timeout > 0 {
		opts = append(opts, asynq.Timeout(j.Timeout), asynq.Unique(j.Timeout))
	}
	return opts
}

func (w *Worker) handle(j Job) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		payload, err := ParseJobPayload(task)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		trigger := payload.Trigger
		if trigger == "" {
			trigger = autoassign.TriggerAsynq
		}
		return execute(ctx, j, trigger, w.metrics, w.log)
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.tracker != nil {
		if err := w.tracker.MarkStarted(ctx, config.SchedulerModeAsynq); err != nil {
			w.log.Warn("mark distributor started failed", "error", err)
		}
	}
	if err := w.scheduler.Start(); err != nil {
		return eris.Wrap(err, "start asynq scheduler")
	}
	if err := w.server.Start(w.mux); err != nil {
		w.scheduler.Shutdown()
		return eris.Wrap(err, "start asynq server")
	}
	w.log.Info("scheduler worker started", "queue", w.queue, "jobs", len(w.jobs))

	<-ctx.Done()

	w.scheduler.Shutdown()
	w.server.Shutdown()
	if w.tracker != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.tracker.MarkStopped(stopCtx); err != nil {
			w.log.Warn("mark distributor stopped failed", "error", err)
		}
	}
	w.log.Info("scheduler worker stopped")
	return nil
}

// asynqSpec drops a leading seconds field; asynq's scheduler parses
// five-field specs.
func asynqSpec(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", eris.New("empty cron spec")
	}
	if strings.HasPrefix(spec, "@") {
		return spec, nil
	}
	fields := strings.Fields(spec)
	switch len(fields) {
	case 5:
		return spec, nil
	case 6:
		if fields[0] != "0" {
			return "", eris.Errorf("cron spec %q needs second 0 under asynq", spec)
		}
		return strings.Join(fields[1:], " "), nil
	default:
		return "", eris.Errorf("cron spec %q: want 5 or 6 fields", spec)
	}
}
