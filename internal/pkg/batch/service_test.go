package batch

import (
	"fmt"
	"io"
	"strings"
	"testing"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vgarvardt/gue/v5"

	dapi "github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks/api"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/messages"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/persistence"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/status"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/test"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/test/mocks"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/utils"
)

var (
	filerMock     *mocks.Filer
	dbMock        *mocks.DB
	senderMock    *mocks.Sender
	storeMock     *mocks.Store
	jobsMock      *mocks.Jobs
	warehouseMock *mocks.Warehouse
	srvData       *ServiceData
)

type testFile struct{ *strings.Reader }

func (f *testFile) Close() error { return nil }

func newTestFile(data string) io.ReadSeekCloser {
	return &testFile{Reader: strings.NewReader(data)}
}

func initTest(t *testing.T) {
	t.Helper()
	filerMock = &mocks.Filer{}
	dbMock = &mocks.DB{}
	senderMock = &mocks.Sender{}
	storeMock = &mocks.Store{}
	jobsMock = &mocks.Jobs{}
	warehouseMock = &mocks.Warehouse{}
	q, err := NewQueries("cat.sch")
	require.Nil(t, err)
	srvData = &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 1, MsgSender: senderMock,
		Filer: filerMock, Store: storeMock, Jobs: jobsMock, Warehouse: warehouseMock, Queries: q,
		WorkingRoot: "/vol/working", ArchiveRoot: "/vol/archive", Testing: true}

	dbMock.On("LoadBatch", mock.Anything, mock.Anything).Return(&persistence.Batch{ID: "1", Name: "b1",
		FileCount: 1, FileNames: []string{"inv.pdf"}}, nil)
	dbMock.On("LoadStatus", mock.Anything, mock.Anything).Return(&persistence.Status{ID: "1",
		Status: status.Created.String()}, nil)
	dbMock.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil)
	dbMock.On("LoadRun", mock.Anything, mock.Anything).Return(nil, nil)
	dbMock.On("InsertRun", mock.Anything, mock.Anything).Return(nil)
	dbMock.On("ReleaseLease", mock.Anything, mock.Anything).Return(nil)
	filerMock.On("LoadFile", mock.Anything, mock.Anything).Return(newTestFile("pdf data"), nil)
	filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	storeMock.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	storeMock.On("Delete", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	jobsMock.On("RunNow", mock.Anything, mock.Anything).Return(int64(101), nil)
	jobsMock.On("WaitFor", mock.Anything, mock.Anything).Return(&dapi.RunState{LifeCycleState: "TERMINATED",
		ResultState: "SUCCESS"}, nil)
	warehouseMock.On("Execute", mock.Anything, mock.Anything).Return(&dapi.Rows{Columns: []string{"path"},
		Data: [][]string{{"/vol/working/b1/inv.pdf"}}}, nil)
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

func Test_handleBatch(t *testing.T) {
	initTest(t)
	err := handleBatch(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "1"}, Name: "b1"}, srvData)
	assert.Nil(t, err)
	jobsMock.AssertCalled(t, "RunNow", mock.Anything, "b1")
	dbMock.AssertCalled(t, "ReleaseLease", mock.Anything, "1")
}

func Test_handleBatch_statusSequence(t *testing.T) {
	initTest(t)
	sts := []string{}
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadBatch", mock.Anything, mock.Anything).Return(&persistence.Batch{ID: "1", Name: "b1",
		FileCount: 1, FileNames: []string{"inv.pdf"}}, nil)
	dbMock.On("LoadStatus", mock.Anything, mock.Anything).Return(&persistence.Status{ID: "1",
		Status: status.Created.String()}, nil)
	dbMock.On("UpdateStatus", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sts = append(sts, args[1].(*persistence.Status).Status)
	}).Return(nil)
	dbMock.On("LoadRun", mock.Anything, mock.Anything).Return(nil, nil)
	dbMock.On("InsertRun", mock.Anything, mock.Anything).Return(nil)
	dbMock.On("ReleaseLease", mock.Anything, mock.Anything).Return(nil)
	err := handleBatch(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "1"}, Name: "b1"}, srvData)
	assert.Nil(t, err)
	assert.Equal(t, []string{"FILES_ACCEPTED", "UPLOADED", "JOB_RUNNING", "JOB_DONE",
		"RESULTS_FETCHED", "EXPORTED", "ARCHIVED", "RESET"}, sts)
}

func Test_handleBatch_uploadsArchiveFirst(t *testing.T) {
	initTest(t)
	err := handleBatch(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "1"}, Name: "b1"}, srvData)
	assert.Nil(t, err)
	puts := []string{}
	for _, c := range storeMock.Calls {
		if c.Method == "Put" {
			puts = append(puts, c.Arguments[1].(string))
		}
	}
	require.Equal(t, []string{"/vol/archive/b1/inv.pdf", "/vol/working/b1/inv.pdf"}, puts)
}

func Test_handleBatch_archiveBeforeTruncate(t *testing.T) {
	initTest(t)
	err := handleBatch(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "1"}, Name: "b1"}, srvData)
	assert.Nil(t, err)
	firstTruncate, lastInsert := -1, -1
	for i, c := range warehouseMock.Calls {
		s := c.Arguments[1].(string)
		if strings.HasPrefix(s, "TRUNCATE") && firstTruncate == -1 {
			firstTruncate = i
		}
		if strings.HasPrefix(s, "INSERT") {
			lastInsert = i
		}
	}
	require.NotEqual(t, -1, firstTruncate)
	require.NotEqual(t, -1, lastInsert)
	assert.Less(t, lastInsert, firstTruncate)
}

func Test_handleBatch_cleansWorkingPrefix(t *testing.T) {
	initTest(t)
	err := handleBatch(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "1"}, Name: "b1"}, srvData)
	assert.Nil(t, err)
	storeMock.AssertCalled(t, "Delete", mock.Anything, "/vol/working/b1", true)
}

func Test_handleBatch_savesExports(t *testing.T) {
	initTest(t)
	err := handleBatch(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "1"}, Name: "b1"}, srvData)
	assert.Nil(t, err)
	saved := []string{}
	for _, c := range filerMock.Calls {
		if c.Method == "SaveFile" {
			saved = append(saved, c.Arguments[1].(string))
		}
	}
	assert.Equal(t, []string{"1/invoices_b1.csv", "1/checks_b1.csv", "1/vat_compliance_results_b1.xlsx"}, saved)
}

func Test_handleBatch_skipUploadOnExistingRun(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadBatch", mock.Anything, mock.Anything).Return(&persistence.Batch{ID: "1", Name: "b1",
		FileCount: 1, FileNames: []string{"inv.pdf"}}, nil)
	dbMock.On("LoadStatus", mock.Anything, mock.Anything).Return(&persistence.Status{ID: "1",
		Status: status.JobRunning.String()}, nil)
	dbMock.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil)
	dbMock.On("LoadRun", mock.Anything, mock.Anything).Return(&persistence.RunData{ID: "1", RunID: 101}, nil)
	dbMock.On("ReleaseLease", mock.Anything, mock.Anything).Return(nil)
	err := handleBatch(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "1"}, Name: "b1"}, srvData)
	assert.Nil(t, err)
	require.Equal(t, 0, len(storeMock.Calls)-countCalls(storeMock.Calls, "Delete"))
	jobsMock.AssertNotCalled(t, "RunNow", mock.Anything, mock.Anything)
	jobsMock.AssertCalled(t, "WaitFor", mock.Anything, int64(101))
}

func countCalls(calls []mock.Call, method string) int {
	res := 0
	for _, c := range calls {
		if c.Method == method {
			res++
		}
	}
	return res
}

func Test_handleBatch_failJob(t *testing.T) {
	initTest(t)
	jobsMock.ExpectedCalls = nil
	jobsMock.On("RunNow", mock.Anything, mock.Anything).Return(int64(101), nil)
	jobsMock.On("WaitFor", mock.Anything, mock.Anything).Return(&dapi.RunState{LifeCycleState: "TERMINATED",
		ResultState: "FAILED", StateMessage: "notebook err"}, nil)
	err := handleBatch(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "1"}, Name: "b1"}, srvData)
	assert.NotNil(t, err)
	warehouseMock.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func Test_handleBatch_failQuery(t *testing.T) {
	initTest(t)
	warehouseMock.ExpectedCalls = nil
	warehouseMock.On("Execute", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia err"))
	err := handleBatch(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "1"}, Name: "b1"}, srvData)
	assert.NotNil(t, err)
	storeMock.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func Test_handleBatch_failUpload(t *testing.T) {
	initTest(t)
	storeMock.ExpectedCalls = nil
	storeMock.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(fmt.Errorf("olia err"))
	err := handleBatch(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "1"}, Name: "b1"}, srvData)
	assert.NotNil(t, err)
	jobsMock.AssertNotCalled(t, "RunNow", mock.Anything, mock.Anything)
}

func Test_handleFailure(t *testing.T) {
	initTest(t)
	err := handleFailure(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "1",
		Error: "can't trigger job: olia"}, Name: "b1"}, srvData)
	assert.Nil(t, err)
	dbMock.AssertCalled(t, "ReleaseLease", mock.Anything, "1")
	require.Equal(t, 1, countCalls(dbMock.Calls, "UpdateStatus"))
	for _, c := range dbMock.Calls {
		if c.Method == "UpdateStatus" {
			st := c.Arguments[1].(*persistence.Status)
			assert.Equal(t, status.Aborted.String(), st.Status)
			assert.Equal(t, utils.ToSQLStr(status.ECJobTriggerError.String()), st.ErrorCode)
		}
	}
}

func Test_handleFailure_sendsInform(t *testing.T) {
	initTest(t)
	err := handleFailure(test.Ctx(t), &messages.BatchMessage{QueueMessage: amessages.QueueMessage{ID: "1",
		Error: "olia"}, Name: "b1"}, srvData)
	assert.Nil(t, err)
	queues := []string{}
	for _, c := range senderMock.Calls {
		queues = append(queues, c.Arguments[2].(string))
	}
	assert.Equal(t, []string{messages.StatusChange, messages.Inform}, queues)
}

func Test_errCode(t *testing.T) {
	tests := []struct {
		name string
		args string
		want status.ErrCode
	}{
		{name: "timeout", args: "can't wait for job: timeout waiting for run 101 after 2h0m0s", want: status.ECTimeout},
		{name: "upload", args: "can't upload: can't put /vol/x: 500", want: status.ECUploadError},
		{name: "trigger", args: "can't trigger job: 400", want: status.ECJobTriggerError},
		{name: "query", args: "can't fetch summary: statement FAILED: syntax", want: status.ECQueryError},
		{name: "archive", args: "can't archive: olia", want: status.ECQueryError},
		{name: "store", args: "can't clean working files: olia", want: status.ECStoreError},
		{name: "other", args: "olia", want: status.ECServiceError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errCode(tt.args))
		})
	}
}

func Test_validate(t *testing.T) {
	initTest(t)
	q := srvData.Queries
	tests := []struct {
		name    string
		data    *ServiceData
		wantErr bool
	}{
		{name: "OK", data: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 1, MsgSender: senderMock,
			Filer: filerMock, Store: storeMock, Jobs: jobsMock, Warehouse: warehouseMock, Queries: q,
			WorkingRoot: "/w", ArchiveRoot: "/a"}, wantErr: false},
		{name: "Fail no db", data: &ServiceData{GueClient: &gue.Client{}, WorkerCount: 1, MsgSender: senderMock,
			Filer: filerMock, Store: storeMock, Jobs: jobsMock, Warehouse: warehouseMock, Queries: q,
			WorkingRoot: "/w", ArchiveRoot: "/a"}, wantErr: true},
		{name: "Fail no gue", data: &ServiceData{DB: dbMock, WorkerCount: 1, MsgSender: senderMock,
			Filer: filerMock, Store: storeMock, Jobs: jobsMock, Warehouse: warehouseMock, Queries: q,
			WorkingRoot: "/w", ArchiveRoot: "/a"}, wantErr: true},
		{name: "Fail no workers", data: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, MsgSender: senderMock,
			Filer: filerMock, Store: storeMock, Jobs: jobsMock, Warehouse: warehouseMock, Queries: q,
			WorkingRoot: "/w", ArchiveRoot: "/a"}, wantErr: true},
		{name: "Fail no sender", data: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 1,
			Filer: filerMock, Store: storeMock, Jobs: jobsMock, Warehouse: warehouseMock, Queries: q,
			WorkingRoot: "/w", ArchiveRoot: "/a"}, wantErr: true},
		{name: "Fail no store", data: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 1, MsgSender: senderMock,
			Filer: filerMock, Jobs: jobsMock, Warehouse: warehouseMock, Queries: q,
			WorkingRoot: "/w", ArchiveRoot: "/a"}, wantErr: true},
		{name: "Fail no jobs", data: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 1, MsgSender: senderMock,
			Filer: filerMock, Store: storeMock, Warehouse: warehouseMock, Queries: q,
			WorkingRoot: "/w", ArchiveRoot: "/a"}, wantErr: true},
		{name: "Fail no warehouse", data: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 1, MsgSender: senderMock,
			Filer: filerMock, Store: storeMock, Jobs: jobsMock, Queries: q,
			WorkingRoot: "/w", ArchiveRoot: "/a"}, wantErr: true},
		{name: "Fail no queries", data: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 1, MsgSender: senderMock,
			Filer: filerMock, Store: storeMock, Jobs: jobsMock, Warehouse: warehouseMock,
			WorkingRoot: "/w", ArchiveRoot: "/a"}, wantErr: true},
		{name: "Fail relative roots", data: &ServiceData{DB: dbMock, GueClient: &gue.Client{}, WorkerCount: 1, MsgSender: senderMock,
			Filer: filerMock, Store: storeMock, Jobs: jobsMock, Warehouse: warehouseMock, Queries: q,
			WorkingRoot: "w", ArchiveRoot: "/a"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.data); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
