package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/metro-datahub/catalog-cli/internal/pregen"
	"github.com/metro-datahub/catalog-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "catalog.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore initializes the store and runs migrations, the common preamble
// for every data command.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func newResolver() *pregen.DirResolver {
	opts := []pregen.Option{pregen.WithDelimiter(cfg.DelimiterRune())}
	if cfg.Pregen.Charset != "" {
		opts = append(opts, pregen.WithCharset(cfg.Pregen.Charset))
	}
	return pregen.NewDirResolver(cfg.Pregen.Dir, opts...)
}
