// Package bootstrap initializes and wires application dependencies.
package bootstrap

import (
	"context"
	"fmt"

	"postqueue/internal/cache"
	"postqueue/internal/clients/drive"
	"postqueue/internal/clients/gcal"
	"postqueue/internal/clients/remote"
	"postqueue/internal/config"
	"postqueue/internal/integrations"
	"postqueue/internal/observability"
	"postqueue/internal/store"

	batchHandler "postqueue/internal/batch/handler"
	batchProcessor "postqueue/internal/batch/processor"
	campaignHandler "postqueue/internal/campaign/handler"
	campaignProcessor "postqueue/internal/campaign/processor"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store  *store.Store
	Cache  *cache.Cache
	Logger *observability.Logger

	// Handlers
	CampaignHandler     *campaignHandler.Handler
	BatchHandler        *batchHandler.Handler
	IntegrationsHandler *integrations.Handler

	// Background workers
	Sweeper *store.Sweeper
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{Logger: logger}

	fallbackCache, err := cache.New(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fallback cache: %w", err)
	}
	deps.Cache = fallbackCache

	remoteClient := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, logger)

	deps.Store = store.New(remoteClient, fallbackCache, logger, store.Config{
		PageLimit: cfg.Remote.PageLimit,
	})
	deps.Sweeper = store.NewSweeper(deps.Store, logger, cfg.Sweep.Interval)

	// Drive and Calendar are optional; without credentials the batch
	// workflow skips asset upload and Google Calendar mirroring.
	var driveClient integrations.DriveUploader
	var calendarClient integrations.CalendarWriter
	if cfg.Google.CredentialsFile != "" {
		dc, err := drive.NewClient(ctx, cfg.Google.CredentialsFile, cfg.Google.DriveFolderID, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize drive client: %w", err)
		}
		driveClient = dc

		cc, err := gcal.NewClient(ctx, cfg.Google.CredentialsFile, cfg.Google.CalendarID, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize calendar client: %w", err)
		}
		calendarClient = cc
	} else {
		logger.Info(ctx, "google credentials not configured, drive and calendar integrations disabled")
	}

	integrationsService := integrations.NewService(remoteClient, driveClient, calendarClient, logger)
	deps.IntegrationsHandler = integrations.NewHandler(integrationsService, logger)

	cProcessor := campaignProcessor.NewProcessor(deps.Store, logger)
	deps.CampaignHandler = campaignHandler.New(cProcessor, logger)

	bProcessor := batchProcessor.NewProcessor(deps.Store, remoteClient, integrationsService, logger)
	deps.BatchHandler = batchHandler.New(bProcessor, logger)

	return deps, nil
}

// Cleanup releases resources held by the dependencies
func (d *Dependencies) Cleanup() {
	if d.Cache != nil {
		if err := d.Cache.Close(); err != nil {
			d.Logger.Error(context.Background(), "failed to close fallback cache", err)
		}
	}
}
