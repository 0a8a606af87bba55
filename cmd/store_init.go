package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/meridian-steel/registry-cli/internal/match"
	"github.com/meridian-steel/registry-cli/internal/registry"
	"github.com/meridian-steel/registry-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "registry.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: int32(cfg.Store.MaxConns),
			MinConns: int32(cfg.Store.MinConns),
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initService(st store.Store) *registry.Service {
	m := match.New(st, match.WithMinNameLength(cfg.Match.MinNameLength))
	return registry.NewService(st, m)
}
