package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/blackwell-systems/commitmux/internal/config"
	"github.com/blackwell-systems/commitmux/internal/logging"
	"github.com/blackwell-systems/commitmux/internal/query"
	"github.com/blackwell-systems/commitmux/internal/store"
)

var (
	appOnce   sync.Once
	appCfg    *config.Config
	appLogger *logging.Logger
	appDB     *store.DB
	appErr    error
)

// getApp lazily loads the process config and opens the on-disk store,
// shared across whichever subcommand is running.
func getApp() (*config.Config, *logging.Logger, *store.DB, error) {
	appOnce.Do(func() {
		cfg, err := config.Load("")
		if err != nil {
			appErr = fmt.Errorf("load config: %w", err)
			return
		}
		if err := cfg.EnsureDataDir(); err != nil {
			appErr = fmt.Errorf("prepare data directory: %w", err)
			return
		}
		logger := cfg.NewLogger()
		db, err := store.Open(cfg.DBPath(), logger)
		if err != nil {
			appErr = fmt.Errorf("open store: %w", err)
			return
		}
		appCfg, appLogger, appDB = cfg, logger, db
	})
	return appCfg, appLogger, appDB, appErr
}

func mustGetApp() (*config.Config, *logging.Logger, *store.DB) {
	cfg, logger, db, err := getApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "commitmux: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, db
}

func mustGetSurface() *query.Surface {
	_, _, db := mustGetApp()
	return query.New(db)
}
