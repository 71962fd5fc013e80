package scheduler

import (
	"context"
	"sync"
	"time"

	"leadcrm_backend/internal/autoassign"
	"leadcrm_backend/platform/config"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronRunner runs jobs inside the API process. Overlapping runs of the
// same job are skipped.
type CronRunner struct {
	cron    *cron.Cron
	jobs    []Job
	ids     map[cron.EntryID]string
	tracker *autoassign.Tracker
	metrics *metrics.Metrics
	log     *logger.Logger

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewCronRunner schedules jobs in loc. tracker may be nil.
func NewCronRunner(loc *time.Location, jobs []Job, tracker *autoassign.Tracker, m *metrics.Metrics, log *logger.Logger) (*CronRunner, error) {
	if loc == nil {
		loc = time.UTC
	}
	r := &CronRunner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(cronParser),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		jobs:    jobs,
		ids:     make(map[cron.EntryID]string, len(jobs)),
		tracker: tracker,
		metrics: m,
		log:     log,
	}
	for _, j := range jobs {
		job := j
		id, err := r.cron.AddFunc(job.Spec, func() { r.runScheduled(job) })
		if err != nil {
			return nil, eris.Wrapf(err, "schedule %s", job.Name)
		}
		r.ids[id] = job.Name
	}
	return r, nil
}

func (r *CronRunner) runScheduled(j Job) {
	r.mu.Lock()
	ctx := r.baseCtx
	r.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	_ = execute(ctx, j, autoassign.TriggerCron, r.metrics, r.log)
}

// Start begins scheduling. Jobs see a context cancelled by Stop.
func (r *CronRunner) Start(ctx context.Context) {
	r.mu.Lock()
	r.baseCtx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Unlock()

	if r.tracker != nil {
		if err := r.tracker.MarkStarted(ctx, config.SchedulerModeInProcess); err != nil {
			r.log.Warn("mark distributor started failed", "error", err)
		}
	}
	r.cron.Start()
	r.log.Info("in-process scheduler started", "jobs", len(r.jobs))
}

// Stop halts scheduling, cancels running jobs and waits for them.
func (r *CronRunner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	select {
	case <-done.Done():
	case <-ctx.Done():
		r.log.Warn("in-process scheduler stop timed out")
	}
	if r.tracker != nil {
		if err := r.tracker.MarkStopped(ctx); err != nil {
			r.log.Warn("mark distributor stopped failed", "error", err)
		}
	}
	r.log.Info("in-process scheduler stopped")
}

// RunNow executes the named job immediately.
func (r *CronRunner) RunNow(ctx context.Context, name string) error {
	j, ok := findJob(r.jobs, name)
	if !ok {
		return eris.Errorf("unknown job %q", name)
	}
	return execute(ctx, j, autoassign.TriggerCron, r.metrics, r.log)
}

// Entries reports the next run of each job, for status output.
func (r *CronRunner) Entries() map[string]time.Time {
	out := make(map[string]time.Time, len(r.jobs))
	for _, e := range r.cron.Entries() {
		out[r.ids[e.ID]] = e.Next
	}
	return out
}
