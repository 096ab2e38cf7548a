package cdr

import (
	"context"
	"database/sql"

	"softswitch/pkg/utils"
)

// PostgresRepo persists pickup records via database/sql (pgx stdlib
// driver).
//
// Expected schema:
//
//	CREATE TABLE pickup_records (
//	    id             TEXT PRIMARY KEY,
//	    requester_id   TEXT NOT NULL,
//	    requester_name TEXT NOT NULL,
//	    target_id      TEXT NOT NULL DEFAULT '',
//	    target_name    TEXT NOT NULL DEFAULT '',
//	    target_exten   TEXT NOT NULL DEFAULT '',
//	    dial_context   TEXT NOT NULL DEFAULT '',
//	    spec           TEXT NOT NULL DEFAULT '',
//	    outcome        TEXT NOT NULL,
//	    failed_step    TEXT NOT NULL DEFAULT '',
//	    created_at     TIMESTAMPTZ NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, rec Record) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pickup_records
				(id, requester_id, requester_name, target_id, target_name,
				 target_exten, dial_context, spec, outcome, failed_step, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			rec.ID, rec.RequesterID, rec.RequesterName, rec.TargetID, rec.TargetName,
			rec.TargetExten, rec.DialContext, rec.Spec, string(rec.Outcome), rec.FailedStep,
			rec.CreatedAt,
		)
		return err
	})
}
