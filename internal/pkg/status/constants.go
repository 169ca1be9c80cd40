package status

// Status represents batch lifecycle state
type Status int

const (
	// Created - batch record saved by the portal
	Created Status = iota + 1
	// FilesAccepted - staged file set confirmed, pipeline started
	FilesAccepted
	// Uploaded - all files copied to the remote working and archive prefixes
	Uploaded
	// JobRunning - remote job triggered
	JobRunning
	// JobDone - remote run reached the terminal state
	JobDone
	// ResultsFetched - summary and failed-check rows retrieved
	ResultsFetched
	// Exported - result sets ready for download
	Exported
	// Archived - working tables copied into the archive tables
	Archived
	// Reset - final step, working tables and storage cleared
	Reset
	// Aborted - batch stopped by a fatal step error
	Aborted
)

var (
	statusName = map[Status]string{Created: "CREATED", FilesAccepted: "FILES_ACCEPTED",
		Uploaded: "UPLOADED", JobRunning: "JOB_RUNNING",
		JobDone: "JOB_DONE", ResultsFetched: "RESULTS_FETCHED", Exported: "EXPORTED",
		Archived: "ARCHIVED", Reset: "RESET", Aborted: "ABORTED"}
	nameStatus = map[string]Status{"CREATED": Created, "FILES_ACCEPTED": FilesAccepted,
		"UPLOADED": Uploaded, "JOB_RUNNING": JobRunning,
		"JOB_DONE": JobDone, "RESULTS_FETCHED": ResultsFetched, "EXPORTED": Exported,
		"ARCHIVED": Archived, "RESET": Reset, "ABORTED": Aborted}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}

// IsTerminal returns true for states from which no further transition occurs
func IsTerminal(st Status) bool {
	return st == Reset || st == Aborted
}

// ErrCode represents failure reason codes saved with the status record
type ErrCode int

const (
	// ECServiceError - generic internal failure
	ECServiceError ErrCode = iota + 1
	// ECUploadError - remote store write rejected
	ECUploadError
	// ECJobTriggerError - job start rejected
	ECJobTriggerError
	// ECQueryError - statement submission or execution failed
	ECQueryError
	// ECStoreError - store list/delete failed
	ECStoreError
	// ECTimeout - a poll loop exceeded its deadline
	ECTimeout
	// ECNotFound code
	ECNotFound
)

var (
	ecName = map[ErrCode]string{ECServiceError: "SERVICE_ERROR", ECUploadError: "UPLOAD_ERROR",
		ECJobTriggerError: "JOB_TRIGGER_ERROR", ECQueryError: "QUERY_ERROR",
		ECStoreError: "STORE_ERROR", ECTimeout: "TIMEOUT", ECNotFound: "NOT_FOUND"}
)

func (ec ErrCode) String() string {
	return ecName[ec]
}
