// Package scheduler runs the periodic background jobs, either in process
// on a cron or through an asynq worker fed by an asynq periodic scheduler.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadcrm_backend/internal/autoassign"
	"leadcrm_backend/internal/exports"
	"leadcrm_backend/internal/salesforce"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"

	"github.com/rotisserie/eris"
)

// Task names. They double as asynq task types.
const (
	TaskAutoAssign     = "autoassign.run"
	TaskHistoryPurge   = "history.purge"
	TaskSalesforceSync = "salesforce.sync"
	TaskDailyReport    = "reports.daily"
)

const (
	historyPurgeSpec   = "0 15 3 * * *"
	salesforceSyncSpec = "@every 1h"
)

// Job is one periodic job.
type Job struct {
	Name string
	// Spec is a cron spec; a leading seconds field is optional.
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context, trigger string) error
}

// Deps are the services jobs call into. Nil services drop their job.
type Deps struct {
	AutoAssign *autoassign.Service
	Salesforce *salesforce.Syncer
	Reports    *exports.Service
}

// Schedule holds the configurable job timings.
type Schedule struct {
	AutoAssignInterval time.Duration
	ReportCron         string
}

// BuildJobs assembles the job table.
func BuildJobs(d Deps, s Schedule) []Job {
	var jobs []Job
	if d.AutoAssign != nil {
		interval := s.AutoAssignInterval
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		svc := d.AutoAssign
		jobs = append(jobs,
			Job{
				Name:    TaskAutoAssign,
				Spec:    fmt.Sprintf("@every %s", interval),
				Timeout: interval,
				Run: func(ctx context.Context, trigger string) error {
					res, err := svc.RunPass(ctx, trigger, "")
					if err != nil {
						return err
					}
					if !res.Success {
						return eris.New("auto-assign pass had failing sources")
					}
					return nil
				},
			},
			Job{
				Name:    TaskHistoryPurge,
				Spec:    historyPurgeSpec,
				Timeout: 10 * time.Minute,
				Run: func(ctx context.Context, _ string) error {
					_, err := svc.PurgeHistory(ctx)
					return err
				},
			},
		)
	}
	if d.Salesforce != nil {
		syncer := d.Salesforce
		jobs = append(jobs, Job{
			Name:    TaskSalesforceSync,
			Spec:    salesforceSyncSpec,
			Timeout: 15 * time.Minute,
			Run: func(ctx context.Context, _ string) error {
				_, err := syncer.Run(ctx, salesforce.DefaultWindow)
				return err
			},
		})
	}
	if d.Reports != nil && s.ReportCron != "" {
		reports := d.Reports
		jobs = append(jobs, Job{
			Name:    TaskDailyReport,
			Spec:    s.ReportCron,
			Timeout: 10 * time.Minute,
			Run: func(ctx context.Context, _ string) error {
				_, err := reports.RunDaily(ctx)
				return err
			},
		})
	}
	return jobs
}

// execute runs j under its timeout and records the outcome.
func execute(ctx context.Context, j Job, trigger string, m *metrics.Metrics, log *logger.Logger) error {
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := j.Run(ctx, trigger)
	if m != nil {
		m.ObserveJob(j.Name, err)
	}
	log.WithContext(ctx).JobRun(j.Name, time.Since(start), err)
	return err
}

func findJob(jobs []Job, name string) (Job, bool) {
	for _, j := range jobs {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}
