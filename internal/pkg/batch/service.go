package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"

	dapi "github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks/api"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/export"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/messages"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/persistence"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/status"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/utils"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/utils/handler"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// DB provides persistence functionality
type DB interface {
	LoadBatch(ctx context.Context, id string) (*persistence.Batch, error)
	LoadStatus(ctx context.Context, id string) (*persistence.Status, error)
	UpdateStatus(context.Context, *persistence.Status) error
	LoadRun(ctx context.Context, id string) (*persistence.RunData, error)
	InsertRun(context.Context, *persistence.RunData) error
	ReleaseLease(ctx context.Context, id string) error
}

// Filer works with staged and exported files
type Filer interface {
	LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error)
	SaveFile(ctx context.Context, name string, r io.Reader) error
}

// Store writes and removes files on the remote workspace
type Store interface {
	Put(ctx context.Context, path string, r io.Reader, size int64) error
	Delete(ctx context.Context, path string, recursive bool) error
}

// Jobs triggers and awaits the remote parse job
type Jobs interface {
	RunNow(ctx context.Context, batchName string) (int64, error)
	WaitFor(ctx context.Context, runID int64) (*dapi.RunState, error)
}

// Warehouse runs statements on the remote SQL warehouse
type Warehouse interface {
	Execute(ctx context.Context, statement string) (*dapi.Rows, error)
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	MsgSender   MsgSender
	DB          DB
	Filer       Filer
	Store       Store
	Jobs        Jobs
	Warehouse   Warehouse
	Queries     *Queries
	WorkingRoot string
	ArchiveRoot string
	Testing     bool
}

const runSuccess = "SUCCESS"

// StartWorkerService starts the event queue listener service to listen for batch events
// returns channel for tracking if all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	failMsg := func(m *messages.BatchMessage, err error) amessages.Message {
		res := messages.NewMessageFrom(m)
		res.Error = err.Error()
		return res
	}
	batchPool, err := newPool(data, messages.Batch, gue.WorkMap{
		messages.Batch: handler.Create(data, handleBatch, handler.DefaultOpts[messages.BatchMessage]().
			WithFailure(handler.SendToQueueOnFailure(data.MsgSender, failMsg, messages.Fail, 3)).
			WithTimeout(time.Minute*150).WithBackoff(handler.DefaultBackoffOrTest(data.Testing)))})
	if err != nil {
		return nil, err
	}
	failPool, err := newPool(data, messages.Fail, gue.WorkMap{
		messages.Fail: handler.Create(data, handleFailure, handler.DefaultOpts[messages.BatchMessage]().
			WithBackoff(handler.DefaultBackoffOrTest(data.Testing)))})
	if err != nil {
		return nil, err
	}

	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		run := func(pool *gue.WorkerPool, name string) chan struct{} {
			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := pool.Run(ctx); err != nil {
					goapp.Log.Error().Err(err).Str("pool", name).Msg("pool error")
				}
			}()
			return done
		}
		bDone, fDone := run(batchPool, "batch"), run(failPool, "fail")
		<-bDone
		<-fDone
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

func newPool(data *ServiceData, queue string, wm gue.WorkMap) (*gue.WorkerPool, error) {
	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(queue),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("batch-worker-"+queue),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	return pool, nil
}

func handleBatch(ctx context.Context, m *messages.BatchMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("name", m.Name).Msg("handling batch")
	err := data.MsgSender.SendMessage(ctx, &amessages.InformMessage{
		QueueMessage: *amessages.NewQueueMessageFromM(&m.QueueMessage),
		Type:         amessages.InformTypeStarted, At: time.Now()}, messages.Inform)
	if err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	batch, err := data.DB.LoadBatch(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load batch: %w", err)
	}
	run, err := data.DB.LoadRun(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load run: %w", err)
	}
	if run == nil {
		if err := updateStatus(ctx, data, m.ID, status.FilesAccepted, nil); err != nil {
			return err
		}
		if err := uploadFiles(ctx, batch, data); err != nil {
			return fmt.Errorf("can't upload: %w", err)
		}
		if err := updateStatus(ctx, data, m.ID, status.Uploaded, nil); err != nil {
			return err
		}
		runID, err := data.Jobs.RunNow(ctx, batch.Name)
		if err != nil {
			return fmt.Errorf("can't trigger job: %w", err)
		}
		run = &persistence.RunData{ID: m.ID, RunID: runID, Created: time.Now()}
		if err := data.DB.InsertRun(ctx, run); err != nil {
			return fmt.Errorf("can't save run: %w", err)
		}
		if err := updateStatus(ctx, data, m.ID, status.JobRunning, nil); err != nil {
			return err
		}
	} else {
		goapp.Log.Info().Str("ID", m.ID).Int64("runID", run.RunID).Msg("run exists")
	}

	state, err := data.Jobs.WaitFor(ctx, run.RunID)
	if err != nil {
		return fmt.Errorf("can't wait for job: %w", err)
	}
	if state.ResultState != runSuccess {
		return fmt.Errorf("job failed: %s %s", state.ResultState, state.StateMessage)
	}
	if err := updateStatus(ctx, data, m.ID, status.JobDone, nil); err != nil {
		return err
	}

	summary, err := data.Warehouse.Execute(ctx, data.Queries.Summary())
	if err != nil {
		return fmt.Errorf("can't fetch summary: %w", err)
	}
	failed, err := data.Warehouse.Execute(ctx, data.Queries.FailedChecks())
	if err != nil {
		return fmt.Errorf("can't fetch failed checks: %w", err)
	}
	counts := &counts{invoices: int32(len(summary.Data)), failedChecks: int32(len(failed.Data))}
	if err := updateStatus(ctx, data, m.ID, status.ResultsFetched, counts); err != nil {
		return err
	}

	if err := saveExports(ctx, m.ID, batch.Name, summary, failed, data); err != nil {
		return fmt.Errorf("can't save exports: %w", err)
	}
	if err := updateStatus(ctx, data, m.ID, status.Exported, counts); err != nil {
		return err
	}

	// archive inserts must complete before any truncate
	stmts, err := data.Queries.ArchiveInserts(batch.Name)
	if err != nil {
		return fmt.Errorf("can't prepare archive statements: %w", err)
	}
	for _, s := range stmts {
		if _, err := data.Warehouse.Execute(ctx, s); err != nil {
			return fmt.Errorf("can't archive: %w", err)
		}
	}
	if err := updateStatus(ctx, data, m.ID, status.Archived, counts); err != nil {
		return err
	}

	for _, s := range data.Queries.Truncates() {
		if _, err := data.Warehouse.Execute(ctx, s); err != nil {
			return fmt.Errorf("can't truncate: %w", err)
		}
	}
	if err := data.Store.Delete(ctx, utils.MakeFileName(data.WorkingRoot, batch.Name), true); err != nil {
		return fmt.Errorf("can't clean working files: %w", err)
	}
	if err := data.DB.ReleaseLease(ctx, m.ID); err != nil {
		return fmt.Errorf("can't release lease: %w", err)
	}
	if err := updateStatus(ctx, data, m.ID, status.Reset, counts); err != nil {
		return err
	}
	err = data.MsgSender.SendMessage(ctx, &amessages.InformMessage{
		QueueMessage: *amessages.NewQueueMessageFromM(&m.QueueMessage),
		Type:         amessages.InformTypeFinished, At: time.Now()}, messages.Inform)
	if err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Msg("Batch completed")
	return nil
}

// uploadFiles copies staged files to the remote store, archive prefix first.
// A working copy without an archive copy must never exist
func uploadFiles(ctx context.Context, batch *persistence.Batch, data *ServiceData) error {
	for _, f := range batch.FileNames {
		file, err := data.Filer.LoadFile(ctx, utils.MakeFileName(batch.ID, f))
		if err != nil {
			return fmt.Errorf("can't load file: %w", err)
		}
		err = func() error {
			defer file.Close()
			size, err := file.Seek(0, io.SeekEnd)
			if err != nil {
				return fmt.Errorf("can't get size: %w", err)
			}
			for _, root := range []string{data.ArchiveRoot, data.WorkingRoot} {
				if _, err := file.Seek(0, io.SeekStart); err != nil {
					return fmt.Errorf("can't rewind: %w", err)
				}
				path := utils.MakeFileName(utils.MakeFileName(root, batch.Name), f)
				if err := data.Store.Put(ctx, path, file, size); err != nil {
					return fmt.Errorf("can't put %s: %w", path, err)
				}
			}
			return nil
		}()
		if err != nil {
			return err
		}
		goapp.Log.Info().Str("ID", batch.ID).Str("file", f).Msg("uploaded")
	}
	return nil
}

func saveExports(ctx context.Context, id, name string, summary, failed *dapi.Rows, data *ServiceData) error {
	save := func(fileName string, write func(w io.Writer) error) error {
		b := &bytes.Buffer{}
		if err := write(b); err != nil {
			return err
		}
		return data.Filer.SaveFile(ctx, utils.MakeFileName(id, fileName), b)
	}
	if err := save(export.InvoicesCSVName(name), func(w io.Writer) error {
		return export.WriteCSV(w, summary)
	}); err != nil {
		return err
	}
	if err := save(export.ChecksCSVName(name), func(w io.Writer) error {
		return export.WriteCSV(w, failed)
	}); err != nil {
		return err
	}
	return save(export.ResultsXLSXName(name), func(w io.Writer) error {
		return export.WriteXLSX(w, summary, failed)
	})
}

type counts struct {
	invoices, failedChecks int32
}

func updateStatus(ctx context.Context, data *ServiceData, id string, to status.Status, c *counts) error {
	statusRec, err := data.DB.LoadStatus(ctx, id)
	if err != nil {
		return fmt.Errorf("can't load status: %w", err)
	}
	if statusRec == nil {
		return fmt.Errorf("no status record for %s", id)
	}
	statusRec.Status = to.String()
	if c != nil {
		statusRec.Invoices = utils.ToSQLInt32(c.invoices)
		statusRec.FailedChecks = utils.ToSQLInt32(c.failedChecks)
	}
	if err := data.DB.UpdateStatus(ctx, statusRec); err != nil {
		return fmt.Errorf("can't save status: %w", err)
	}
	err = data.MsgSender.SendMessage(ctx, &messages.BatchMessage{
		QueueMessage: amessages.QueueMessage{ID: id}}, messages.StatusChange)
	if err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	return nil
}

func handleFailure(ctx context.Context, m *messages.BatchMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Msg("handling failure")
	statusRec, err := data.DB.LoadStatus(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load status: %w", err)
	}
	if statusRec == nil {
		return fmt.Errorf("no status record for %s", m.ID)
	}
	if statusRec.Error.String != "" {
		goapp.Log.Info().Str("ID", m.ID).Msg("error set - ignore")
	}
	statusRec.Status = status.Aborted.String()
	statusRec.Error = utils.ToSQLStr(m.Error)
	statusRec.ErrorCode = utils.ToSQLStr(errCode(m.Error).String())
	if err := data.DB.UpdateStatus(ctx, statusRec); err != nil {
		return fmt.Errorf("can't save status: %w", err)
	}
	if err := data.DB.ReleaseLease(ctx, m.ID); err != nil {
		return fmt.Errorf("can't release lease: %w", err)
	}
	err = data.MsgSender.SendMessage(ctx, &messages.BatchMessage{
		QueueMessage: amessages.QueueMessage{ID: m.ID}}, messages.StatusChange)
	if err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	err = data.MsgSender.SendMessage(ctx, &amessages.InformMessage{
		QueueMessage: *amessages.NewQueueMessageFromM(&m.QueueMessage),
		Type:         amessages.InformTypeFailed, At: time.Now()}, messages.Inform)
	if err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	return nil
}

// errCode maps the failure message text, the original error does not survive the queue
func errCode(errStr string) status.ErrCode {
	if strings.Contains(errStr, "timeout waiting for") {
		return status.ECTimeout
	}
	if strings.Contains(errStr, "can't upload") || strings.Contains(errStr, "can't put") {
		return status.ECUploadError
	}
	if strings.Contains(errStr, "can't trigger job") {
		return status.ECJobTriggerError
	}
	if strings.Contains(errStr, "can't fetch") || strings.Contains(errStr, "can't archive") ||
		strings.Contains(errStr, "can't truncate") {
		return status.ECQueryError
	}
	if strings.Contains(errStr, "can't clean working files") {
		return status.ECStoreError
	}
	return status.ECServiceError
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Filer == nil {
		return fmt.Errorf("no Filer")
	}
	if data.Store == nil {
		return fmt.Errorf("no Store")
	}
	if data.Jobs == nil {
		return fmt.Errorf("no Jobs")
	}
	if data.Warehouse == nil {
		return fmt.Errorf("no Warehouse")
	}
	if data.Queries == nil {
		return fmt.Errorf("no Queries")
	}
	if !strings.HasPrefix(data.WorkingRoot, "/") || !strings.HasPrefix(data.ArchiveRoot, "/") {
		return fmt.Errorf("wrong store roots '%s', '%s'", data.WorkingRoot, data.ArchiveRoot)
	}
	return nil
}
