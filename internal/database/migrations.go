package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// DataMigration is an ordered, idempotent data change that the schema
// migration files cannot express (backfills, invariant repairs). Once added,
// entries must never be removed or reordered.
//
// Bodies must be safe to re-invoke: the ledger write and the migration's
// effect are not atomic across a crash, so every body checks state before
// acting in addition to the ledger skip.
type DataMigration struct {
	ID          string
	Description string
	Apply       func(tx *sqlx.Tx) error
}

// dataMigrations is the ordered migration sequence.
var dataMigrations = []DataMigration{
	{
		ID:          "001_flatten_recurrence_chains",
		Description: "Point generated recurring instances at the chain root",
		Apply:       flattenRecurrenceChains,
	},
	{
		ID:          "002_backfill_completed_at",
		Description: "Backfill completed_at for done tasks missing a timestamp",
		Apply:       backfillCompletedAt,
	},
	{
		ID:          "003_normalize_context",
		Description: "Replace NULL or empty task context with an empty JSON object",
		Apply:       normalizeContext,
	},
}

// RunDataMigrations applies all pending data migrations in order, each in
// its own transaction scope, and records them in the ledger. Any failure
// aborts startup.
func RunDataMigrations(db *sqlx.DB) error {
	if err := ensureLedger(db); err != nil {
		return err
	}

	for _, m := range dataMigrations {
		applied, err := isApplied(db, m.ID)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		slog.Info("Running data migration", "id", m.ID, "description", m.Description)

		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.ID, err)
		}

		if err := m.Apply(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("data migration %s failed: %w", m.ID, err)
		}

		_, err = tx.Exec(
			"INSERT INTO data_migrations (id, description, applied_at) VALUES (?, ?, ?)",
			m.ID, m.Description, time.Now().UTC())
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record data migration %s: %w", m.ID, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit data migration %s: %w", m.ID, err)
		}
	}

	return nil
}

// AppliedDataMigrations returns the ledger contents in application order.
func AppliedDataMigrations(db *sqlx.DB) ([]MigrationRecord, error) {
	if err := ensureLedger(db); err != nil {
		return nil, err
	}
	var records []MigrationRecord
	err := db.Select(&records,
		"SELECT id, description, applied_at FROM data_migrations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration ledger: %w", err)
	}
	return records, nil
}

func ensureLedger(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS data_migrations (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create migration ledger: %w", err)
	}
	return nil
}

func isApplied(db *sqlx.DB, id string) (bool, error) {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM data_migrations WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("failed to check migration %s: %w", id, err)
	}
	return count > 0, nil
}

// flattenRecurrenceChains rewrites recurrence_source_id so every generated
// instance points directly at the original recurring template. Runs the
// one-hop rewrite until a fixed point so arbitrarily deep legacy chains
// collapse.
func flattenRecurrenceChains(tx *sqlx.Tx) error {
	for {
		res, err := tx.Exec(`
			UPDATE tasks SET recurrence_source_id = (
				SELECT p.recurrence_source_id FROM tasks p
				WHERE p.id = tasks.recurrence_source_id
			)
			WHERE recurrence_source_id IN (
				SELECT id FROM tasks WHERE recurrence_source_id IS NOT NULL
			)`)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
	}
}

func backfillCompletedAt(tx *sqlx.Tx) error {
	_, err := tx.Exec(
		"UPDATE tasks SET completed_at = updated_at WHERE status = ? AND completed_at IS NULL",
		StatusDone)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		"UPDATE tasks SET completed_at = NULL WHERE status != ? AND completed_at IS NOT NULL",
		StatusDone)
	return err
}

func normalizeContext(tx *sqlx.Tx) error {
	_, err := tx.Exec("UPDATE tasks SET context = '{}' WHERE context IS NULL OR context = ''")
	return err
}
