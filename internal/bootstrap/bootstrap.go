// Package bootstrap wires the infrastructure and services shared by the
// API, scheduler and sync binaries.
package bootstrap

import (
	"context"
	"errors"
	"time"

	"leadcrm_backend/internal/adapters/storage"
	"leadcrm_backend/internal/autoassign"
	"leadcrm_backend/internal/email"
	"leadcrm_backend/internal/events"
	"leadcrm_backend/internal/exports"
	"leadcrm_backend/internal/notification"
	"leadcrm_backend/internal/salesforce"
	"leadcrm_backend/internal/scheduler"
	"leadcrm_backend/migrations"
	"leadcrm_backend/platform/cache"
	"leadcrm_backend/platform/config"
	"leadcrm_backend/platform/db"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

const (
	retryAttempts  = 5
	retryBaseDelay = 2 * time.Second
)

// Options select the optional boot steps.
type Options struct {
	// Migrate applies pending migrations after connecting.
	Migrate bool
}

// Infra is everything a binary needs after boot.
type Infra struct {
	Config  *config.Config
	Log     *logger.Logger
	Pool    *pgxpool.Pool
	Cache   *cache.Client
	Bus     *events.InMemoryBus
	Metrics *metrics.Metrics
	Tracker *autoassign.Tracker

	AutoAssign *autoassign.Service
	Exports    *exports.Service
	// Salesforce is nil when the integration is not configured or the
	// login failed.
	Salesforce *salesforce.Syncer
}

// Open connects to the database (and Redis when configured) and builds the
// domain services.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Infra, error) {
	in := &Infra{Config: cfg, Log: log}

	if err := WithRetry(ctx, log, "database connection", retryAttempts, retryBaseDelay, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		in.Pool = p
		return nil
	}); err != nil {
		return nil, eris.Wrap(err, "connect database")
	}
	log.Info("database connection established")

	if opts.Migrate && cfg.GetMigrationsEnabled() {
		if err := db.RunMigrations(ctx, in.Pool, migrations.FS, log); err != nil {
			in.Close()
			return nil, eris.Wrap(err, "run migrations")
		}
		log.Info("database migrations complete")
	}

	statusStore, err := in.statusStore(ctx)
	if err != nil {
		in.Close()
		return nil, err
	}

	in.Bus = events.NewInMemoryBus(log)
	in.Metrics = metrics.NewDefault()
	in.Tracker = autoassign.NewTracker(statusStore, cfg.GetAutoAssignInterval())

	mailer := in.mailer()
	notification.New(mailer, log).RegisterHandlers(in.Bus)

	in.AutoAssign = autoassign.NewService(
		autoassign.NewRepository(in.Pool),
		in.Tracker,
		in.Bus,
		in.Metrics,
		log,
		autoassign.Options{
			BatchSize:     cfg.GetAutoAssignBatchSize(),
			RetentionDays: cfg.GetHistoryRetentionDays(),
			Location:      cfg.GetLocation(),
		},
	)

	store, err := in.objectStore(ctx)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.Exports = exports.NewService(
		exports.NewBuilder(in.AutoAssign, cfg.GetLocation()),
		store,
		mailer,
		in.Metrics,
		log,
		exports.DailyOptions{
			Bucket:     cfg.GetMinioBucketReports(),
			Recipients: cfg.GetReportRecipients(),
		},
	)

	syncer, err := in.salesforceSyncer()
	if err != nil {
		in.Close()
		return nil, err
	}
	in.Salesforce = syncer

	return in, nil
}

// Jobs returns the periodic job table over the built services.
func (in *Infra) Jobs() []scheduler.Job {
	return scheduler.BuildJobs(
		scheduler.Deps{
			AutoAssign: in.AutoAssign,
			Salesforce: in.Salesforce,
			Reports:    in.Exports,
		},
		scheduler.Schedule{
			AutoAssignInterval: in.Config.GetAutoAssignInterval(),
			ReportCron:         in.Config.GetReportCron(),
		},
	)
}

// Close waits for in-flight event handlers and releases connections.
func (in *Infra) Close() {
	if in.Bus != nil {
		in.Bus.Wait()
	}
	if in.Cache != nil {
		_ = in.Cache.Close()
	}
	if in.Pool != nil {
		in.Pool.Close()
	}
}

// statusStore keeps distributor status in Redis when it is configured so
// the API and the asynq worker see the same state.
func (in *Infra) statusStore(ctx context.Context) (autoassign.StatusStore, error) {
	if in.Config.GetRedisURL() == "" {
		in.Log.Warn("REDIS_URL not configured; distributor status is process-local")
		return autoassign.NewMemoryStatusStore(), nil
	}
	client, err := cache.NewClient(ctx, in.Config.GetRedisURL(), in.Config.GetRedisTLSInsecure())
	if err != nil {
		return nil, eris.Wrap(err, "connect redis")
	}
	in.Cache = client
	return autoassign.NewRedisStatusStore(client), nil
}

func (in *Infra) mailer() email.Sender {
	if !in.Config.IsSMTPEnabled() {
		in.Log.Warn("SMTP not configured; assignment and report mails disabled")
		return nil
	}
	return email.NewSMTPSender(in.Config, in.Config.GetOutboundTLSInsecure())
}

func (in *Infra) objectStore(ctx context.Context) (storage.ObjectStore, error) {
	if !in.Config.IsMinIOEnabled() {
		in.Log.Warn("MINIO_ENDPOINT not configured; daily reports are not archived")
		return nil, nil
	}
	svc, err := storage.NewMinIOService(in.Config, in.Config.GetOutboundTLSInsecure())
	if err != nil {
		return nil, eris.Wrap(err, "init storage")
	}
	bucket := in.Config.GetMinioBucketReports()
	if err := WithRetry(ctx, in.Log, "ensure reports bucket", retryAttempts, retryBaseDelay, func() error {
		return svc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		return nil, eris.Wrap(err, "ensure storage bucket")
	}
	in.Log.Info("storage service initialized", "reportsBucket", bucket)
	return svc, nil
}

func (in *Infra) salesforceSyncer() (*salesforce.Syncer, error) {
	if !in.Config.IsSalesforceEnabled() {
		in.Log.Warn("Salesforce not configured; lead sync disabled")
		return nil, nil
	}
	owners, err := salesforce.LoadOwnerMap(in.Config.GetSalesforceOwnerMapFile())
	if err != nil {
		return nil, eris.Wrap(err, "load salesforce owner map")
	}
	client, err := salesforce.Connect(in.Config)
	if err != nil {
		in.Log.Error("salesforce login failed; lead sync disabled", "error", err)
		return nil, nil
	}
	return salesforce.NewSyncer(client, salesforce.NewRepository(in.Pool), owners, in.Metrics, in.Log), nil
}

// WithRetry runs fn up to attempts times with quadratic backoff.
func WithRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
