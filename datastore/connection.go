// Package datastore opens the postgres database that keeps translation
// history when a history database is configured.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pitabwire/util"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// pgDuplicateTable is raised when two processes create the same table.
const pgDuplicateTable = "42P07"

// Open connects gorm to postgres through a pgx pool. dsn is a postgres url
// or a key=value connection string.
func Open(ctx context.Context, dsn string, opts ...Option) (*gorm.DB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	poolCfg, err := pgxpool.ParseConfig(strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("history database: %w", err)
	}
	if o.maxConns > 0 {
		poolCfg.MaxConns = o.maxConns
	}
	if o.maxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = o.maxConnLifetime
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("history database: %w", err)
	}
	if err = otelpgx.RecordStats(pool); err != nil {
		util.Log(ctx).WithError(err).Warn("could not record history database pool stats")
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.pingTimeout)
	defer cancel()
	if err = pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history database %s unreachable: %w", poolCfg.ConnConfig.Host, err)
	}

	db, err := gorm.Open(
		postgres.New(postgres.Config{
			Conn:                 stdlib.OpenDBFromPool(pool),
			PreferSimpleProtocol: o.simpleProtocol,
		}),
		&gorm.Config{
			Logger:                 newQueryLogger(ctx, o),
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		pool.Close()
		return nil, err
	}

	util.Log(ctx).
		WithField("host", poolCfg.ConnConfig.Host).
		WithField("database", poolCfg.ConnConfig.Database).
		Debug("history database connected")
	return db, nil
}

// Close releases the connections held by db.
func Close(ctx context.Context, db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err = sqlDB.Close(); err != nil {
		util.Log(ctx).WithError(err).Warn("could not close history database")
	}
}

// Migrate creates or updates the tables of models. Losing a creation race
// to another process is not an error.
func Migrate(ctx context.Context, db *gorm.DB, models ...any) error {
	if db == nil {
		return errors.New("migrate: no history database configured")
	}

	err := db.WithContext(ctx).Migrator().AutoMigrate(models...)
	switch {
	case err == nil:
		return nil
	case createdConcurrently(err):
		util.Log(ctx).WithError(err).Debug("table created by another process")
		return nil
	default:
		return fmt.Errorf("migrate: %w", err)
	}
}

func createdConcurrently(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgDuplicateTable
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}
