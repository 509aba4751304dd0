// Package pg bootstraps the PostgreSQL connection pool and applies schema
// migrations.
//
// Connect builds a bounded pgxpool from environment configuration and
// retries with a growing backoff so the service survives a database that
// comes up a few seconds later. Migrate runs embedded goose migrations
// against the same pool, bridging pgx to database/sql only for the length
// of the migration run.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil { … }
//	defer pool.Close()
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil { … }
//
// The error helpers (IsNotFoundError, IsDuplicateKeyError,
// IsForeignKeyViolationError) keep SQLSTATE knowledge out of the storage
// layer's callers.
package pg
