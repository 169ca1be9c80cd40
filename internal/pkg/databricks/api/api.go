package api

// Run life cycle states
const (
	// RunTerminated - run reached a terminal state, success or not
	RunTerminated = "TERMINATED"
)

// Statement execution states
const (
	StatementSucceeded = "SUCCEEDED"
	StatementFailed    = "FAILED"
	StatementCanceled  = "CANCELED"
)

// RunNowRequest is /jobs/run-now body
type RunNowRequest struct {
	JobID          int64             `json:"job_id"`
	NotebookParams map[string]string `json:"notebook_params,omitempty"`
}

// RunNowResponse is /jobs/run-now response
type RunNowResponse struct {
	RunID int64 `json:"run_id"`
}

// RunStatusResponse is /jobs/runs/get response, trimmed to the used part
type RunStatusResponse struct {
	State RunState `json:"state"`
}

// RunState keeps run life cycle info
type RunState struct {
	LifeCycleState string `json:"life_cycle_state"`
	ResultState    string `json:"result_state,omitempty"`
	StateMessage   string `json:"state_message,omitempty"`
}

// StatementRequest is /sql/statements body
type StatementRequest struct {
	Statement   string `json:"statement"`
	WarehouseID string `json:"warehouse_id"`
	WaitTimeout string `json:"wait_timeout,omitempty"`
}

// StatementResponse is the submit/poll response of /sql/statements
type StatementResponse struct {
	StatementID string           `json:"statement_id"`
	Status      StatementStatus  `json:"status"`
	Manifest    *ResultManifest  `json:"manifest,omitempty"`
	Result      *StatementResult `json:"result,omitempty"`
}

// StatementStatus keeps statement execution state
type StatementStatus struct {
	State string          `json:"state"`
	Error *StatementError `json:"error,omitempty"`
}

// StatementError is remote failure info
type StatementError struct {
	Message string `json:"message,omitempty"`
}

// ResultManifest describes result schema
type ResultManifest struct {
	Schema ResultSchema `json:"schema"`
}

// ResultSchema keeps column list
type ResultSchema struct {
	Columns []Column `json:"columns"`
}

// Column is one result column descriptor
type Column struct {
	Name string `json:"name"`
}

// StatementResult carries result tuples
type StatementResult struct {
	DataArray [][]interface{} `json:"data_array"`
}

// Rows is a mapped tabular result set
type Rows struct {
	Columns []string
	Data    [][]string
}

// Empty returns true if no data rows present
func (r *Rows) Empty() bool {
	return r == nil || len(r.Data) == 0
}

// Column returns the index of the named column or -1
func (r *Rows) Column(name string) int {
	for i, c := range r.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// FileInfo is one entry of the files list response
type FileInfo struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path"`
}

// FileListResponse is /fs/files list response
type FileListResponse struct {
	Files []FileInfo `json:"files"`
}
