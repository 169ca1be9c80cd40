package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/api"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	res := &DB{pool: pool}
	return res, nil
}

// InsertBatch inserts batch into DB
func (db *DB) InsertBatch(ctx context.Context, batch *persistence.Batch) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO batches(id, name, email, file_count, file_names, created)
	VALUES($1, $2, $3, $4, $5, $6)`, batch.ID, batch.Name, batch.Email, batch.FileCount,
		batch.FileNames,
		batch.Created,
	)
	if err != nil {
		return fmt.Errorf("can't insert batch: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadBatch loads batch from DB
func (db *DB) LoadBatch(ctx context.Context, id string) (*persistence.Batch, error) {
	var res persistence.Batch
	err := db.pool.QueryRow(ctx, `SELECT id, name, email, file_count, file_names, created FROM batches
		WHERE id = $1`, id).Scan(&res.ID, &res.Name, &res.Email, &res.FileCount, &res.FileNames, &res.Created)
	if err != nil {
		return nil, fmt.Errorf("can't load batch: %w", err)
	}
	return &res, nil
}

// LoadRun loads remote run info from DB, nil if none started yet
func (db *DB) LoadRun(ctx context.Context, id string) (*persistence.RunData, error) {
	var res persistence.RunData
	err := db.pool.QueryRow(ctx, `SELECT id, run_id, created FROM runs
		WHERE id = $1`, id).Scan(&res.ID, &res.RunID, &res.Created)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load run: %w", err)
	}
	return &res, nil
}

// InsertRun inserts remote run info into DB
func (db *DB) InsertRun(ctx context.Context, data *persistence.RunData) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO runs(id, run_id, created)
	VALUES($1, $2, $3)`, data.ID, data.RunID, data.Created)
	if err != nil {
		return fmt.Errorf("can't insert run: %w", err)
	}
	defer rows.Close()
	return nil
}

// InsertStatus inserts status into DB
func (db *DB) InsertStatus(ctx context.Context, item *persistence.Status) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO status(id, status, created)
	VALUES($1, $2, $3)`, item.ID, item.Status, item.Created)
	if err != nil {
		return fmt.Errorf("can't insert status: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadStatus loads status from DB, nil if no record
func (db *DB) LoadStatus(ctx context.Context, id string) (*persistence.Status, error) {
	var res persistence.Status
	err := db.pool.QueryRow(ctx, `SELECT id, status, error_code, error,
    invoices, failed_checks, version FROM status
		WHERE id = $1`, id).Scan(&res.ID, &res.Status, &res.ErrorCode,
		&res.Error, &res.Invoices, &res.FailedChecks, &res.Version)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load status: %w", err)
	}
	return &res, nil
}

// UpdateStatus updates status into DB. Fails if the record changed since load
func (db *DB) UpdateStatus(ctx context.Context, item *persistence.Status) error {
	rows, err := db.pool.Exec(ctx, `UPDATE status SET
	status = $3,
	invoices = $4,
	failed_checks = $5,
	error = $6,
	error_code = $7,
	updated = $8,
	version = $2 + 1
	WHERE id = $1 and version = $2`, item.ID, item.Version, item.Status,
		item.Invoices, item.FailedChecks, item.Error, item.ErrorCode, time.Now())
	if err != nil {
		return fmt.Errorf("can't update status: %w", err)
	}
	if rows.RowsAffected() != 1 {
		return fmt.Errorf("can't update status, no records found")
	}
	return nil
}

// AcquireLease takes the single processing slot for the batch.
// Returns api.ErrBatchInProgress if another batch holds it
func (db *DB) AcquireLease(ctx context.Context, id string) error {
	cmd, err := db.pool.Exec(ctx, `INSERT INTO batch_lease(slot, id, created)
	VALUES(1, $1, $2) ON CONFLICT (slot) DO NOTHING`, id, time.Now())
	if err != nil {
		return fmt.Errorf("can't acquire lease: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		var holder string
		if err := db.pool.QueryRow(ctx, `SELECT id FROM batch_lease WHERE slot = 1`).Scan(&holder); err == nil && holder == id {
			return nil
		}
		return api.ErrBatchInProgress
	}
	return nil
}

// ReleaseLease frees the processing slot held by the batch. No error if not held
func (db *DB) ReleaseLease(ctx context.Context, id string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM batch_lease WHERE slot = 1 AND id = $1`, id)
	if err != nil {
		return fmt.Errorf("can't release lease: %w", err)
	}
	return nil
}

// LockEmailTable marks email sending as started for the batch
func (db *DB) LockEmailTable(ctx context.Context, id string, msgType string) error {
	cmd, err := db.pool.Exec(ctx, `INSERT INTO email_lock(id, msg_type, status, created)
	VALUES($1, $2, 1, $3) ON CONFLICT (id, msg_type) DO NOTHING`, id, msgType, time.Now())
	if err != nil {
		return fmt.Errorf("can't lock email table: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("can't lock email table, already locked")
	}
	return nil
}

// UnLockEmailTable sets the final email sending state for the batch
func (db *DB) UnLockEmailTable(ctx context.Context, id string, msgType string, value *int) error {
	_, err := db.pool.Exec(ctx, `UPDATE email_lock SET status = $3 WHERE id = $1 AND msg_type = $2`,
		id, msgType, value)
	if err != nil {
		return fmt.Errorf("can't unlock email table: %w", err)
	}
	return nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}
