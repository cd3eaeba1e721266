package main

import (
	"context"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tabaret/core"
	"pkt.systems/tabaret/internal/appconfig"
	"pkt.systems/tabaret/internal/discovery"
	"pkt.systems/tabaret/internal/eventbus"
	"pkt.systems/tabaret/internal/store"
	"pkt.systems/tabaret/internal/usage"
	"pkt.systems/tabaret/schema"
	"pkt.systems/tabaret/tui"
)

func runDashboard(ctx context.Context, cfgPath string) error {
	log := pslog.Ctx(ctx)
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return err
	}

	bus := eventbus.New(log)
	events, cancelEvents := bus.Subscribe()
	defer cancelEvents()

	manager := core.NewManager(schema.ManagerConfig{
		ScrollbackLines: cfg.Terminal.ScrollbackLines,
		KillGraceMillis: cfg.Terminal.KillGraceMillis,
	}, core.ManagerDeps{
		Sink:   bus,
		Logger: log,
	})
	defer manager.Shutdown()

	scanner := discovery.NewScanner(cfg.ClaudeDir, cfg.Agent.Binary,
		time.Duration(cfg.Discovery.HungAfterMinutes)*time.Minute, nil)

	// History is best-effort; the dashboard runs without it.
	var db *store.Store
	if cfg.Store.Path != "" {
		db, err = store.Open(ctx, cfg.Store.Path)
		if err != nil {
			log.Warn("history store unavailable", "path", cfg.Store.Path, "err", err)
			db = nil
		} else {
			defer db.Close()
		}
	}

	reader := usage.NewCached(usage.NewFetcher(cfg.ClaudeDir),
		time.Duration(cfg.Usage.TTLSeconds)*time.Second)

	app := tui.NewApp(cfg, tui.AppDeps{
		Manager: manager,
		Events:  events,
		Scanner: scanner,
		DB:      db,
		Usage:   reader,
	})
	return app.Run(ctx)
}
