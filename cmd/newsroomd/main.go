package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"newsroom/internal/config"
	"newsroom/internal/media"
	"newsroom/internal/publish"
	"newsroom/internal/runtime/supervisor"
	"newsroom/internal/scheduler"
	"newsroom/internal/store"
	logx "newsroom/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./newsroom.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logConfig(cfg.Logging))
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	st, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeoutDuration(),
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.EnsureCategories(ctx, cfg.Categories); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}

	stager, err := media.New(media.Config{
		StagingDir: cfg.Media.StagingDir,
		MediaDir:   cfg.Media.MediaDir,
		BaseURL:    cfg.Media.BaseURL,
	}, log.With(logx.String("comp", "media")))
	if err != nil {
		return err
	}

	engine := publish.New(publish.Config{
		MaxPerSecond: cfg.Scheduler.MaxPerSecond,
		VideoHosts:   cfg.Scheduler.VideoHosts,
	}, st, stager, log.With(logx.String("comp", "publish")))

	svc := scheduler.New(schedulerConfig(cfg.Scheduler), st, stager, engine,
		log.With(logx.String("comp", "scheduler")))
	if err := svc.Start(ctx); err != nil {
		return err
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(log))
	sup.Go("config-watch", mgr.Watch)

	updates := mgr.Subscribe(1)
	defer mgr.Unsubscribe(updates)
	sup.Go("config-apply", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case next, ok := <-updates:
				if !ok || next == nil {
					return nil
				}
				logSvc.Apply(logConfig(next.Logging))
				if err := svc.Apply(ctx, schedulerConfig(next.Scheduler)); err != nil {
					log.Error("scheduler config not applied", logx.Err(err))
				}
			}
		}
	})

	log.Info("newsroomd started", logx.String("config", cfgPath), logx.String("db", cfg.Storage.Path))
	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := svc.Stop(stopCtx); err != nil {
		log.Warn("scheduler did not stop cleanly", logx.Err(err))
	}
	_ = sup.Stop(stopCtx)
	log.Info("newsroomd stopped")
	return nil
}

func logConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
	}
}

func schedulerConfig(c config.SchedulerConfig) scheduler.Config {
	return scheduler.Config{
		TickSpec:         c.Tick,
		SweepSpec:        c.Sweep,
		MinLead:          c.MinLeadDuration(scheduler.DefaultMinLead),
		MaxHorizon:       c.MaxHorizonDuration(scheduler.DefaultMaxHorizon),
		StagingRetention: c.StagingRetentionDuration(scheduler.DefaultStagingRetention),
	}
}
