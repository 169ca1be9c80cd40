package databricks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/test"
)

type testResp struct {
	code    int
	resp    string
	headers map[string]string
}

type testReq struct {
	method string
	body   string
	URL    string
	auth   string
}

func newTestR(code int, resp string) testResp {
	return testResp{code: code, resp: resp}
}

func newTestReq(req *http.Request) testReq {
	b, _ := io.ReadAll(req.Body)
	return testReq{method: req.Method, URL: req.URL.String(), body: string(b),
		auth: req.Header.Get("Authorization")}
}

func initTestServer(t *testing.T, rData map[string]testResp) (*Client, *[]testReq) {
	t.Helper()
	resRequest := make([]testReq, 0)
	rLock := &sync.Mutex{}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rLock.Lock()
		defer rLock.Unlock()
		resRequest = append(resRequest, newTestReq(req))
		resp, f := rData[req.Method+" "+req.URL.String()]
		if f {
			for k, v := range resp.headers {
				rw.Header().Set(k, v)
			}
			rw.WriteHeader(resp.code)
			_, _ = rw.Write([]byte(resp.resp))
		} else {
			rw.WriteHeader(http.StatusNotFound)
		}
	}))
	c := Client{}
	c.httpclient = server.Client()
	c.baseURL = server.URL
	c.token = "secret"
	c.jobID = 77
	c.warehouseID = "wh1"
	c.timeout = time.Second
	c.jobPollInterval = time.Millisecond * 5
	c.jobPollTimeout = time.Millisecond * 300
	c.sqlPollInterval = time.Millisecond * 5
	c.sqlPollTimeout = time.Millisecond * 300
	c.backoff = func() backoff.BackOff {
		return &backoff.StopBackOff{}
	}
	t.Cleanup(func() { server.Close() })
	return &c, &resRequest
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://srv", "token", 1, "wh")
	require.Nil(t, err)
	assert.NotNil(t, c)
}

func TestNewClient_Fail(t *testing.T) {
	tests := []struct {
		name                      string
		url, token, warehouse     string
		jobID                     int64
	}{
		{name: "no url", url: "", token: "t", jobID: 1, warehouse: "wh"},
		{name: "no token", url: "http://srv", token: "", jobID: 1, warehouse: "wh"},
		{name: "no job", url: "http://srv", token: "t", jobID: 0, warehouse: "wh"},
		{name: "no warehouse", url: "http://srv", token: "t", jobID: 1, warehouse: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.url, tt.token, tt.jobID, tt.warehouse)
			assert.NotNil(t, err)
		})
	}
}

func TestPut(t *testing.T) {
	c, tReq := initTestServer(t, map[string]testResp{
		"PUT /api/2.0/fs/files/work/b1/inv.pdf": newTestR(http.StatusNoContent, "")})
	err := c.Put(test.Ctx(t), "/work/b1/inv.pdf", strings.NewReader("data"), 4)
	require.Nil(t, err)
	require.Equal(t, 1, len(*tReq))
	assert.Equal(t, "data", (*tReq)[0].body)
	assert.Equal(t, "Bearer secret", (*tReq)[0].auth)
}

func TestPut_Fail(t *testing.T) {
	c, _ := initTestServer(t, map[string]testResp{
		"PUT /api/2.0/fs/files/work/b1/inv.pdf": newTestR(http.StatusInternalServerError, "")})
	err := c.Put(test.Ctx(t), "/work/b1/inv.pdf", strings.NewReader("data"), 4)
	assert.NotNil(t, err)
}

func TestGet(t *testing.T) {
	c, _ := initTestServer(t, map[string]testResp{
		"GET /api/2.0/fs/files/arch/b1/inv.pdf": newTestR(http.StatusOK, "data")})
	b, err := c.Get(test.Ctx(t), "/arch/b1/inv.pdf")
	require.Nil(t, err)
	assert.Equal(t, []byte("data"), b)
}

func TestList(t *testing.T) {
	c, _ := initTestServer(t, map[string]testResp{
		"GET /api/2.0/fs/files/work/b1?recursive=true": newTestR(http.StatusOK,
			`{"files":[{"name":"inv.pdf","path":"/work/b1/inv.pdf"}]}`)})
	files, err := c.List(test.Ctx(t), "/work/b1", true)
	require.Nil(t, err)
	require.Equal(t, 1, len(files))
	assert.Equal(t, "/work/b1/inv.pdf", files[0].Path)
}

func TestList_NotFoundIsEmpty(t *testing.T) {
	c, _ := initTestServer(t, map[string]testResp{})
	files, err := c.List(test.Ctx(t), "/work/none", true)
	require.Nil(t, err)
	assert.Empty(t, files)
}

func TestDelete(t *testing.T) {
	c, tReq := initTestServer(t, map[string]testResp{
		"DELETE /api/2.0/fs/files/work/b1?recursive=true": newTestR(http.StatusOK, "")})
	err := c.Delete(test.Ctx(t), "/work/b1", true)
	require.Nil(t, err)
	require.Equal(t, 1, len(*tReq))
}

func TestDelete_NotFoundIsOK(t *testing.T) {
	c, _ := initTestServer(t, map[string]testResp{})
	err := c.Delete(test.Ctx(t), "/work/none", true)
	assert.Nil(t, err)
}

func TestDelete_Fail(t *testing.T) {
	c, _ := initTestServer(t, map[string]testResp{
		"DELETE /api/2.0/fs/files/work/b1?recursive=true": newTestR(http.StatusForbidden, "")})
	err := c.Delete(test.Ctx(t), "/work/b1", true)
	assert.NotNil(t, err)
}

func TestRunNow(t *testing.T) {
	c, tReq := initTestServer(t, map[string]testResp{
		"POST /api/2.1/jobs/run-now": newTestR(http.StatusOK, `{"run_id": 101}`)})
	runID, err := c.RunNow(test.Ctx(t), "b1")
	require.Nil(t, err)
	assert.Equal(t, int64(101), runID)
	require.Equal(t, 1, len(*tReq))
	assert.Contains(t, (*tReq)[0].body, `"job_id":77`)
	assert.Contains(t, (*tReq)[0].body, `"batch_name":"b1"`)
}

func TestRunNow_Fail(t *testing.T) {
	c, _ := initTestServer(t, map[string]testResp{
		"POST /api/2.1/jobs/run-now": newTestR(http.StatusBadRequest, "")})
	_, err := c.RunNow(test.Ctx(t), "b1")
	assert.NotNil(t, err)
}

func TestRunNow_FailNoRunID(t *testing.T) {
	c, _ := initTestServer(t, map[string]testResp{
		"POST /api/2.1/jobs/run-now": newTestR(http.StatusOK, `{}`)})
	_, err := c.RunNow(test.Ctx(t), "b1")
	assert.NotNil(t, err)
}

func TestWaitFor(t *testing.T) {
	c, _ := initTestServer(t, map[string]testResp{
		"GET /api/2.1/jobs/runs/get?run_id=101": newTestR(http.StatusOK,
			`{"state":{"life_cycle_state":"TERMINATED","result_state":"SUCCESS"}}`)})
	st, err := c.WaitFor(test.Ctx(t), 101)
	require.Nil(t, err)
	assert.Equal(t, "SUCCESS", st.ResultState)
}

func TestWaitFor_Timeout(t *testing.T) {
	c, tReq := initTestServer(t, map[string]testResp{
		"GET /api/2.1/jobs/runs/get?run_id=101": newTestR(http.StatusOK,
			`{"state":{"life_cycle_state":"RUNNING"}}`)})
	_, err := c.WaitFor(test.Ctx(t), 101)
	require.NotNil(t, err)
	var errTimeout *ErrTimeout
	assert.ErrorAs(t, err, &errTimeout)
	assert.Greater(t, len(*tReq), 1)
}

func TestWaitFor_Canceled(t *testing.T) {
	c, _ := initTestServer(t, map[string]testResp{
		"GET /api/2.1/jobs/runs/get?run_id=101": newTestR(http.StatusOK,
			`{"state":{"life_cycle_state":"RUNNING"}}`)})
	ctx, cf := context.WithCancel(context.Background())
	cf()
	_, err := c.WaitFor(ctx, 101)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute(t *testing.T) {
	c, tReq := initTestServer(t, map[string]testResp{
		"POST /api/2.0/sql/statements/": newTestR(http.StatusOK, `{
			"statement_id": "s1",
			"status": {"state": "SUCCEEDED"},
			"manifest": {"schema": {"columns": [{"name": "path"}, {"name": "final_decision"}]}},
			"result": {"data_array": [["/work/b1/inv.pdf", "pass"], [{"value": "/work/b1/i2.pdf"}, "fail"]]}}`)})
	rows, err := c.Execute(test.Ctx(t), "SELECT 1")
	require.Nil(t, err)
	assert.Equal(t, []string{"path", "final_decision"}, rows.Columns)
	require.Equal(t, 2, len(rows.Data))
	assert.Equal(t, []string{"/work/b1/inv.pdf", "pass"}, rows.Data[0])
	assert.Equal(t, []string{"/work/b1/i2.pdf", "fail"}, rows.Data[1])
	assert.Contains(t, (*tReq)[0].body, `"warehouse_id":"wh1"`)
}

func TestExecute_Polls(t *testing.T) {
	c, tReq := initTestServer(t, map[string]testResp{
		"POST /api/2.0/sql/statements/": newTestR(http.StatusOK,
			`{"statement_id": "s1", "status": {"state": "PENDING"}}`),
		"GET /api/2.0/sql/statements/s1": newTestR(http.StatusOK,
			`{"statement_id": "s1", "status": {"state": "SUCCEEDED"},
			"manifest": {"schema": {"columns": [{"name": "c"}]}},
			"result": {"data_array": [["1"]]}}`)})
	rows, err := c.Execute(test.Ctx(t), "SELECT 1")
	require.Nil(t, err)
	assert.Equal(t, [][]string{{"1"}}, rows.Data)
	assert.GreaterOrEqual(t, len(*tReq), 2)
}

func TestExecute_FailedIsError(t *testing.T) {
	c, _ := initTestServer(t, map[string]testResp{
		"POST /api/2.0/sql/statements/": newTestR(http.StatusOK,
			`{"statement_id": "s1", "status": {"state": "FAILED", "error": {"message": "syntax"}}}`)})
	rows, err := c.Execute(test.Ctx(t), "SELECT oops")
	require.NotNil(t, err)
	assert.Nil(t, rows)
	var errStatement *ErrStatementFailed
	require.ErrorAs(t, err, &errStatement)
	assert.Equal(t, "FAILED", errStatement.State)
	assert.Equal(t, "syntax", errStatement.Message)
}

func TestExecute_Timeout(t *testing.T) {
	c, _ := initTestServer(t, map[string]testResp{
		"POST /api/2.0/sql/statements/": newTestR(http.StatusOK,
			`{"statement_id": "s1", "status": {"state": "PENDING"}}`),
		"GET /api/2.0/sql/statements/s1": newTestR(http.StatusOK,
			`{"statement_id": "s1", "status": {"state": "RUNNING"}}`)})
	_, err := c.Execute(test.Ctx(t), "SELECT 1")
	require.NotNil(t, err)
	var errTimeout *ErrTimeout
	assert.ErrorAs(t, err, &errTimeout)
}

func Test_asString(t *testing.T) {
	tests := []struct {
		name string
		args interface{}
		want string
	}{
		{name: "nil", args: nil, want: ""},
		{name: "string", args: "olia", want: "olia"},
		{name: "wrapped", args: map[string]interface{}{"value": "olia"}, want: "olia"},
		{name: "number", args: float64(21), want: "21"},
		{name: "fraction", args: float64(2.5), want: "2.5"},
		{name: "bool", args: true, want: "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, asString(tt.args))
		})
	}
}
