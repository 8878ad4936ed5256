// Package pg bootstraps the PostgreSQL layer of subledger on top of
// github.com/jackc/pgx/v5: a retrying pool constructor (Connect), goose
// migrations run through the same pool (Migrate), a health probe
// (Healthcheck), a transaction helper (RunInTx) and helpers that classify
// pgx errors (IsNotFoundError, IsDuplicateKeyError).
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
//		return err
//	}
//
// Configuration comes from PG_* environment variables, see Config.
package pg
