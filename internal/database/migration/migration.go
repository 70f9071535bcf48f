package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_outbox_journal",
		SQL: `CREATE TABLE IF NOT EXISTS outbox_journal (
  id                  BIGSERIAL   PRIMARY KEY,
  sequence_number     INTEGER     NOT NULL CHECK (sequence_number > 0),
  formatted_number    TEXT        NOT NULL,
  issue_date          DATE        NOT NULL,
  recipient           TEXT        NOT NULL DEFAULT '',
  executor            TEXT        NOT NULL DEFAULT '',
  executor_code       TEXT        NOT NULL DEFAULT '',
  content_summary     TEXT        NOT NULL DEFAULT '',
  source_reference    TEXT        NOT NULL DEFAULT '',
  folder_path         TEXT        NOT NULL DEFAULT '',
  scope_year          INTEGER     NOT NULL DEFAULT 0,
  scope_executor      TEXT        NOT NULL DEFAULT '',
  artifact_name       TEXT        NOT NULL DEFAULT '',
  signed_artifact     BYTEA,
  signature_blob      BYTEA,
  attachments_archive BYTEA,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT outbox_journal_formatted_number_key UNIQUE (formatted_number),
  CONSTRAINT outbox_journal_scope_sequence_key UNIQUE (scope_year, scope_executor, sequence_number)
);`,
	},
	{
		Name: "create_index_outbox_journal_issue_date",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_outbox_journal_issue_date ON outbox_journal (issue_date DESC, id DESC);`,
	},
	{
		Name: "create_index_outbox_journal_scope_executor",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_outbox_journal_scope_executor ON outbox_journal (scope_executor, sequence_number);`,
	},
}

const createLedger = `CREATE TABLE IF NOT EXISTS schema_migrations (
  name       TEXT        PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// EnsureMigrated applies every step not yet recorded in schema_migrations.
// Each step runs in its own transaction together with its ledger row.
func EnsureMigrated(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	start := time.Now()
	log = log.With().Str("component", "database").Logger()
	log.Info().Str("event", "db_migration_check").Str("status", "starting").Msg("checking schema")

	if _, err := db.ExecContext(ctx, createLedger); err != nil {
		log.Error().Err(err).Str("event", "db_migration_failed").Str("status", "error").Msg("cannot create migration ledger")
		return fmt.Errorf("create migration ledger: %w", err)
	}

	applied, err := appliedSteps(ctx, db)
	if err != nil {
		return err
	}

	ran := 0
	for _, step := range steps {
		if applied[step.Name] {
			continue
		}
		stepStart := time.Now()
		if err := apply(ctx, db, step); err != nil {
			log.Error().Err(err).
				Str("event", "db_migration_failed").
				Str("status", "error").
				Str("migration_step", step.Name).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Msg("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		ran++
		log.Info().
			Str("event", "db_migration_step").
			Str("status", "success").
			Str("migration_step", step.Name).
			Int64("step_duration_ms", time.Since(stepStart).Milliseconds()).
			Msg("migration step applied")
	}

	log.Info().
		Str("event", "db_migration_success").
		Str("status", "success").
		Int("steps_applied", ran).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("schema up to date")
	return nil
}

func appliedSteps(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, step migrationStep) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, step.Name); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
