package api

import "fmt"

const (
	// PrmFile is name of the first file form param, others go as file2, file3 ...
	PrmFile = "file"
	// PrmName is form param for an optional batch name
	PrmName = "name"
	// PrmEmail is form param for an optional notification email
	PrmEmail = "email"
)

// ErrBatchInProgress indicates that another batch holds the working tables/storage.
// The working area fits one batch at a time, a new submission must wait for the reset step
var ErrBatchInProgress = fmt.Errorf("batch in progress")

// ErrTooManyFiles rejects the whole submission when the file cap is exceeded
type ErrTooManyFiles struct {
	Max, Got int
}

func (e *ErrTooManyFiles) Error() string {
	return fmt.Sprintf("too many files: %d, max allowed %d", e.Got, e.Max)
}

// RejectedFile describes one skipped upload
type RejectedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}
