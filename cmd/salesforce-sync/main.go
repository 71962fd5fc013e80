// Command salesforce-sync pulls recent leads from Salesforce once and exits.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadcrm_backend/internal/bootstrap"
	"leadcrm_backend/platform/config"
	"leadcrm_backend/platform/logger"
)

func main() {
	hours := flag.Int("hours", 24, "look-back window in hours (max 720)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.IsSalesforceEnabled() {
		log.Error("Salesforce credentials are not configured")
		os.Exit(2)
	}
	if *hours < 1 || *hours > 720 {
		log.Error("hours must be between 1 and 720", "hours", *hours)
		os.Exit(2)
	}

	infra, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		log.Error("failed to initialize infrastructure", "error", err)
		panic("failed to initialize infrastructure: " + err.Error())
	}
	defer infra.Close()

	if infra.Salesforce == nil {
		panic("salesforce sync unavailable")
	}

	res, err := infra.Salesforce.Run(ctx, time.Duration(*hours)*time.Hour)
	if err != nil {
		log.Error("salesforce sync failed", "error", err)
		panic("salesforce sync failed: " + err.Error())
	}
	log.Info("salesforce sync finished",
		"fetched", res.Fetched,
		"inserted", res.Inserted,
		"updated", res.Updated,
		"duplicates", res.Duplicates,
		"unassigned", res.Unassigned,
		"psAssigned", res.PSAssigned,
		"skipped", res.Skipped,
	)
}
