package main

import (
	"fmt"

	"github.com/ethpandaops/specsync/pkg/config"
	"github.com/ethpandaops/specsync/pkg/store"
	"github.com/sirupsen/logrus"
)

// newStore builds the store for the configured database driver.
func newStore(log logrus.FieldLogger, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return store.NewSQLiteStore(log, cfg.Database.SQLite.Path), nil
	case "postgres":
		return store.NewPostgresStore(log, cfg.GetDSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}
