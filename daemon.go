package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockvault/backup/backup"
	"github.com/stockvault/backup/config"
	"github.com/stockvault/backup/database"
	"github.com/stockvault/backup/fileutils"
	"github.com/stockvault/backup/retention"
	"github.com/stockvault/backup/scheduler"
)

func daemonCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Daemon.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	cfg, err := config.LoadFromFile(args.Daemon.Config)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	store, err := openStore(ctx, args.Daemon.Database, cfg, logger, args.Daemon.DryRun)
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler(scheduler.SchedulerParams{
		Logger: logger,
	})

	if err := addBackupJobFromConfig(ctx, sched, cfg, store, logger, args.Daemon.DryRun); err != nil {
		return fmt.Errorf("could not add backup job: %w", err)
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	startConfigFileWatcher(ctx, args.Daemon.Config, logger, ticker, func(cfg *config.Config) {
		if err := store.SaveSettings(ctx, cfg.ToSettings()); err != nil {
			logger.Error().Err(err).Msg("could not sync backup settings")
			return
		}
		sched.RemoveJobs()
		if err := addBackupJobFromConfig(ctx, sched, cfg, store, logger, args.Daemon.DryRun); err != nil {
			logger.Error().Err(err).Msg("failed to add backup job")
		}
	})

	sched.Start()
	defer sched.Stop()

	<-ctx.Done()

	return nil
}

func addBackupJobFromConfig(
	ctx context.Context,
	sched *scheduler.Scheduler,
	cfg *config.Config,
	store *database.Store,
	logger zerolog.Logger,
	dryRun bool,
) error {
	if !cfg.Enable {
		logger.Info().Msg("automatic backups disabled")
		return nil
	}

	settings := cfg.ToSettings()
	spec, err := scheduler.DailySpec(settings.DailyAt)
	if err != nil {
		return err
	}

	job := &autoBackupJob{
		ctx:      ctx,
		store:    store,
		pipeline: newBackupPipeline(store, cfg, logger, dryRun),
		formats:  settings.Formats(),
		include:  database.Inclusions{AuditLogs: settings.IncludeAuditLogs},
		logger:   logger,
	}

	if err := sched.AddBackupJob(ctx, spec, job); err != nil {
		return err
	}

	logger.Info().
		Object("config", *cfg).
		Str("cron", spec).
		Msg("added automatic backup job")
	return nil
}

func startConfigFileWatcher(ctx context.Context, cfgPath string, logger zerolog.Logger, ticker *time.Ticker, onChanged func(cfg *config.Config)) {
	logger.Info().Str("path", cfgPath).Msg("watching config file for changes")
	watcher, err := fileutils.WatchFile(ctx, cfgPath, when(ticker.C), func(err error) {
		logger.Error().Err(err).Msg("could not watch config file")
	})
	if err != nil {
		logger.Error().Err(err).Msg("could not watch config file")
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-watcher:
				logger.Info().Str("path", cfgPath).Msg("config file changed, reloading")

				cfg, err := config.LoadFromFile(cfgPath)
				if err != nil {
					logger.Error().Err(err).Msg("could not load config")
					break
				}

				onChanged(cfg)
			}
		}
	}()
}

func when[T any](ch <-chan T) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		for range ch {
			out <- struct{}{}
		}
	}()
	return out
}

type autoBackupJob struct {
	ctx      context.Context
	store    *database.Store
	pipeline *backup.Pipeline
	formats  []database.BackupFormat
	include  database.Inclusions
	logger   zerolog.Logger
}

func (j *autoBackupJob) Run() {
	// Automatic backups are encrypted whenever a master password is present
	// in the environment.
	password := config.MasterPassword()

	for _, format := range j.formats {
		_, err := j.pipeline.Create(j.ctx, backup.Params{
			Name:      "auto",
			Format:    format,
			Type:      database.TypeAutomatic,
			Include:   j.include,
			Encrypt:   password != "",
			Password:  password,
			CreatedBy: "scheduler",
		})
		if err != nil {
			j.logger.Error().Err(err).Str("format", string(format)).Msg("automatic backup failed")
		}
	}

	if err := retention.Apply(j.ctx, j.store, j.logger); err != nil {
		j.logger.Error().Err(err).Msg("retention cleanup failed")
	}
}
