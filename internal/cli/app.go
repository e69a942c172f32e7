package cli

import (
	"fmt"
	"time"

	"github.com/tidemark/cadence/internal/config"
	"github.com/tidemark/cadence/internal/engine"
	"github.com/tidemark/cadence/internal/notify"
	"github.com/tidemark/cadence/internal/store"
)

// app bundles the wired components shared by serve, sync, and export.
type app struct {
	cfg config.Config
	db  *store.DB
	eng *engine.Engine
	loc *time.Location
}

func openApp() (*app, error) {
	path := flagConfig
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sched := notify.NewScheduler(
		db,
		notify.NewConsole(),
		time.Duration(cfg.Notify.LeadMinutes)*time.Minute,
		time.Duration(cfg.Notify.HorizonDays)*24*time.Hour,
		loc,
	)
	eng := engine.New(db, sched, loc, cfg.Recur.HorizonDays)

	return &app{cfg: cfg, db: db, eng: eng, loc: loc}, nil
}

func (a *app) Close() {
	a.db.Close()
}
