package postgres

import (
	"context"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
)

// batch rows must go last, the other tables reference the ID
var cleanTables = []string{"status", "runs", "email_lock", "batches"}

// Cleaner removes bookkeeping records of a batch ID
type Cleaner struct {
	pool *pgxpool.Pool
}

// NewCleaner creates Cleaner instance
func NewCleaner(pool *pgxpool.Pool) (*Cleaner, error) {
	return &Cleaner{pool: pool}, nil
}

// Clean removes the batch records from all bookkeeping tables
func (db *Cleaner) Clean(ctx context.Context, id string) error {
	total := int64(0)
	for _, table := range cleanTables {
		cmd, err := db.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("can't delete %s(%s): %w", id, table, err)
		}
		total += cmd.RowsAffected()
	}
	goapp.Log.Info().Str("ID", id).Int64("rows", total).Msg("bookkeeping cleaned")
	return nil
}
