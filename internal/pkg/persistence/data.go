package persistence

import (
	"database/sql"
	"time"
)

type (

	// Batch table
	Batch struct {
		ID        string
		Name      string
		FileCount int
		FileNames []string
		Created   time.Time
		Email     sql.NullString
	}

	// Status information table
	Status struct {
		ID           string
		Status       string
		Error        sql.NullString
		ErrorCode    sql.NullString
		Invoices     sql.NullInt32
		FailedChecks sql.NullInt32
		Created      time.Time
		Updated      time.Time
		Version      int32
	}

	// RunData keeps the remote run assignment of a batch,
	// present only after the job was triggered
	RunData struct {
		ID      string
		RunID   int64
		Created time.Time
	}
)
