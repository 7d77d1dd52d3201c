// Package postgres implements the stage ledger on PostgreSQL. A single
// stage_records table keyed by (event, condition, value, stage) holds the
// latest state of every pipeline step; upserts keep one row per stage.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"sourceboot/domain/core"
	"sourceboot/domain/stage"
	"sourceboot/ports"
)

// Schema is the DDL for the ledger table. Applied at startup when the
// database is configured.
const Schema = `
CREATE TABLE IF NOT EXISTS stage_records (
	event        TEXT        NOT NULL,
	condition    TEXT        NOT NULL,
	value        TEXT        NOT NULL,
	stage        TEXT        NOT NULL,
	status       TEXT        NOT NULL,
	fingerprint  TEXT        NOT NULL DEFAULT '',
	batches_done INTEGER     NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (event, condition, value, stage)
)`

// LedgerImpl implements StageLedger for PostgreSQL
type LedgerImpl struct {
	db *sqlx.DB
}

// NewLedger creates a new PostgreSQL stage ledger and ensures the schema
func NewLedger(db *sqlx.DB) (ports.StageLedger, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}
	return &LedgerImpl{db: db}, nil
}

// GetStage retrieves the record for one stage of one analysis cell. A stage
// never written returns an unstarted record.
func (l *LedgerImpl) GetStage(ctx context.Context, key core.AnalysisKey, s stage.Stage) (stage.Record, error) {
	var row struct {
		Status      string    `db:"status"`
		Fingerprint string    `db:"fingerprint"`
		BatchesDone int       `db:"batches_done"`
		UpdatedAt   time.Time `db:"updated_at"`
	}
	err := l.db.GetContext(ctx, &row, `
		SELECT status, fingerprint, batches_done, updated_at
		FROM stage_records
		WHERE event = $1 AND condition = $2 AND value = $3 AND stage = $4
	`, key.Event, key.Condition, key.Value, s)

	if errors.Is(err, sql.ErrNoRows) {
		return stage.Record{Key: key, Stage: s, Status: stage.StatusUnstarted}, nil
	}
	if err != nil {
		return stage.Record{}, err
	}
	return stage.Record{
		Key:         key,
		Stage:       s,
		Status:      stage.Status(row.Status),
		Fingerprint: core.Hash(row.Fingerprint),
		BatchesDone: row.BatchesDone,
		UpdatedAt:   core.NewTimestamp(row.UpdatedAt),
	}, nil
}

// PutStage upserts one stage record
func (l *LedgerImpl) PutStage(ctx context.Context, rec stage.Record) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO stage_records (event, condition, value, stage, status, fingerprint, batches_done, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event, condition, value, stage)
		DO UPDATE SET status = $5, fingerprint = $6, batches_done = $7, updated_at = $8
	`, rec.Key.Event, rec.Key.Condition, rec.Key.Value, rec.Stage,
		rec.Status, rec.Fingerprint, rec.BatchesDone, rec.UpdatedAt.Time())
	return err
}

// ListStages returns every recorded stage for an event, newest first
func (l *LedgerImpl) ListStages(ctx context.Context, event core.EventKey) ([]stage.Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event, condition, value, stage, status, fingerprint, batches_done, updated_at
		FROM stage_records
		WHERE event = $1
		ORDER BY updated_at DESC
	`, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []stage.Record
	for rows.Next() {
		var (
			rec stage.Record
			fp  string
			ts  time.Time
		)
		err := rows.Scan(
			&rec.Key.Event,
			&rec.Key.Condition,
			&rec.Key.Value,
			&rec.Stage,
			&rec.Status,
			&fp,
			&rec.BatchesDone,
			&ts,
		)
		if err != nil {
			return nil, err
		}
		rec.Fingerprint = core.Hash(fp)
		rec.UpdatedAt = core.NewTimestamp(ts)
		records = append(records, rec)
	}
	return records, rows.Err()
}
