package mocks

import (
	"context"
	"io"

	"github.com/airenas/async-api/pkg/messages"
	"github.com/stretchr/testify/mock"

	dapi "github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks/api"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/persistence"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader) error {
	args := m.Called(ctx, name, r)
	return args.Error(0)
}

// LoadFile func mock
func (m *Filer) LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error) {
	args := m.Called(ctx, fileName)
	return To[io.ReadSeekCloser](args.Get(0)), args.Error(1)
}

// FileSaver is staging store mock
type FileSaver struct{ mock.Mock }

func (m *FileSaver) SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error {
	args := m.Called(ctx, name, r, fileSize)
	return args.Error(0)
}

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) InsertBatch(ctx context.Context, batch *persistence.Batch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *DB) InsertStatus(ctx context.Context, item *persistence.Status) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *DB) LoadBatch(ctx context.Context, id string) (*persistence.Batch, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Batch](args.Get(0)), args.Error(1)
}

func (m *DB) LoadStatus(ctx context.Context, id string) (*persistence.Status, error) {
	args := m.Called(ctx, id)
	return To[*persistence.Status](args.Get(0)), args.Error(1)
}

func (m *DB) LoadRun(ctx context.Context, id string) (*persistence.RunData, error) {
	args := m.Called(ctx, id)
	return To[*persistence.RunData](args.Get(0)), args.Error(1)
}

func (m *DB) InsertRun(ctx context.Context, data *persistence.RunData) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

func (m *DB) UpdateStatus(ctx context.Context, data *persistence.Status) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

func (m *DB) AcquireLease(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DB) ReleaseLease(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DB) Live(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *DB) LockEmailTable(ctx context.Context, id string, msgType string) error {
	args := m.Called(ctx, id, msgType)
	return args.Error(0)
}

func (m *DB) UnLockEmailTable(ctx context.Context, id string, msgType string, value *int) error {
	args := m.Called(ctx, id, msgType, value)
	return args.Error(0)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

// Store is remote workspace files mock
type Store struct{ mock.Mock }

func (m *Store) Put(ctx context.Context, path string, r io.Reader, size int64) error {
	args := m.Called(ctx, path, r, size)
	return args.Error(0)
}

func (m *Store) Get(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	return To[[]byte](args.Get(0)), args.Error(1)
}

func (m *Store) Delete(ctx context.Context, path string, recursive bool) error {
	args := m.Called(ctx, path, recursive)
	return args.Error(0)
}

// Jobs is remote job trigger mock
type Jobs struct{ mock.Mock }

func (m *Jobs) RunNow(ctx context.Context, batchName string) (int64, error) {
	args := m.Called(ctx, batchName)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Jobs) WaitFor(ctx context.Context, runID int64) (*dapi.RunState, error) {
	args := m.Called(ctx, runID)
	return To[*dapi.RunState](args.Get(0)), args.Error(1)
}

// Warehouse is remote SQL mock
type Warehouse struct{ mock.Mock }

func (m *Warehouse) Execute(ctx context.Context, statement string) (*dapi.Rows, error) {
	args := m.Called(ctx, statement)
	return To[*dapi.Rows](args.Get(0)), args.Error(1)
}

// To casts a mock arg allowing nil values
func To[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
