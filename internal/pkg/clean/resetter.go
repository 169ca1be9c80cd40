package clean

import (
	"context"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/pkg/errors"

	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/batch"
	dapi "github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks/api"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/utils"
)

var errWrongName = errors.New("wrong batch name")

// Warehouse runs statements on the remote SQL warehouse
type Warehouse interface {
	Execute(ctx context.Context, statement string) (*dapi.Rows, error)
}

// Store deletes remote file prefixes
type Store interface {
	Delete(ctx context.Context, path string, recursive bool) error
}

// WorkspaceResetter re-runs the reset step: truncates working tables and
// drops the working file prefix. Every step tolerates already-clean state,
// so the call may be repeated after a partial failure
type WorkspaceResetter struct {
	warehouse   Warehouse
	store       Store
	queries     *batch.Queries
	workingRoot string
}

// NewWorkspaceResetter creates the reset runner
func NewWorkspaceResetter(warehouse Warehouse, store Store, queries *batch.Queries, workingRoot string) (*WorkspaceResetter, error) {
	if warehouse == nil {
		return nil, fmt.Errorf("no warehouse")
	}
	if store == nil {
		return nil, fmt.Errorf("no store")
	}
	if queries == nil {
		return nil, fmt.Errorf("no queries")
	}
	if workingRoot == "" {
		return nil, fmt.Errorf("no working root")
	}
	return &WorkspaceResetter{warehouse: warehouse, store: store, queries: queries, workingRoot: workingRoot}, nil
}

// Reset truncates working tables and deletes the working prefix of the batch
func (r *WorkspaceResetter) Reset(ctx context.Context, batchName string) error {
	if !utils.ValidBatchName(batchName) {
		return errWrongName
	}
	goapp.Log.Info().Str("batch", batchName).Msg("reset")
	for _, stmt := range r.queries.Truncates() {
		if _, err := r.warehouse.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("can't truncate: %w", err)
		}
	}
	if err := r.store.Delete(ctx, utils.MakeFileName(r.workingRoot, batchName), true); err != nil {
		return fmt.Errorf("can't clean working files: %w", err)
	}
	goapp.Log.Info().Str("batch", batchName).Msg("reset done")
	return nil
}
