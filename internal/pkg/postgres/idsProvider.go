package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBIdsProvider selects expired batch IDs for the clean timer
type DBIdsProvider struct {
	pool         *pgxpool.Pool
	expiresAfter time.Duration
}

// NewDBIdsProvider creates DBIdsProvider instance
func NewDBIdsProvider(pool *pgxpool.Pool, expiresAfter time.Duration) (*DBIdsProvider, error) {
	if expiresAfter <= 0 {
		return nil, fmt.Errorf("wrong expire duration %v", expiresAfter)
	}
	return &DBIdsProvider{pool: pool, expiresAfter: expiresAfter}, nil
}

// GetExpired returns IDs of batches created before the expiration window
func (db *DBIdsProvider) GetExpired(ctx context.Context) ([]string, error) {
	exp := time.Now().Add(-db.expiresAfter)
	rows, err := db.pool.Query(ctx, `SELECT id FROM batches WHERE created < $1`, exp)
	if err != nil {
		return nil, fmt.Errorf("can't select IDs: %w", err)
	}
	res, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("can't retrieve IDs: %w", err)
	}
	goapp.Log.Info().Time("older", exp).Int("count", len(res)).Msg("expired batches")
	return res, nil
}
