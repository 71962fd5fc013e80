package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadcrm_backend/internal/approval"
	"leadcrm_backend/internal/autoassign"
	"leadcrm_backend/internal/bootstrap"
	"leadcrm_backend/internal/calls"
	"leadcrm_backend/internal/exports"
	apphttp "leadcrm_backend/internal/http"
	"leadcrm_backend/internal/http/router"
	"leadcrm_backend/internal/salesforce"
	"leadcrm_backend/internal/scheduler"
	"leadcrm_backend/platform/config"
	"leadcrm_backend/platform/db"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/validator"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "schedulerMode", cfg.GetSchedulerMode())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	infra, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{Migrate: true})
	if err != nil {
		log.Error("failed to initialize infrastructure", "error", err)
		panic("failed to initialize infrastructure: " + err.Error())
	}
	defer infra.Close()

	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	autoAssignModule := autoassign.NewModule(infra.AutoAssign, val, cfg.GetAutoAssignTriggerToken(), log)
	approvalModule := approval.NewModule(approval.NewService(approval.NewRepository(infra.Pool), infra.Bus, infra.Metrics, log), val)
	callsModule := calls.NewModule(calls.NewService(calls.NewRepository(infra.Pool)), val)
	exportsModule := exports.NewModule(infra.Exports)
	salesforceModule := salesforce.NewModule(infra.Salesforce)

	stopJobs := startJobs(ctx, cfg, infra, log)
	defer stopJobs()

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(infra.Pool),
		EventBus: infra.Bus,
		Metrics:  infra.Metrics,
		Status:   autoAssignModule,
		Modules: []apphttp.Module{
			autoAssignModule,
			approvalModule,
			callsModule,
			exportsModule,
			salesforceModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// startJobs runs the periodic jobs in this process when the scheduler mode
// asks for it. The returned func stops them.
func startJobs(ctx context.Context, cfg *config.Config, infra *bootstrap.Infra, log *logger.Logger) func() {
	switch cfg.GetSchedulerMode() {
	case config.SchedulerModeInProcess:
		runner, err := scheduler.NewCronRunner(cfg.GetLocation(), infra.Jobs(), infra.Tracker, infra.Metrics, log)
		if err != nil {
			log.Error("failed to initialize cron runner", "error", err)
			panic("failed to initialize cron runner: " + err.Error())
		}
		runner.Start(ctx)
		return func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			runner.Stop(stopCtx)
		}
	case config.SchedulerModeExternal:
		if err := infra.Tracker.MarkStarted(ctx, config.SchedulerModeExternal); err != nil {
			log.Warn("failed to mark distributor started", "error", err)
		}
		return func() {
			_ = infra.Tracker.MarkStopped(context.Background())
		}
	default:
		log.Info("periodic jobs run in the scheduler process")
		return func() {}
	}
}
