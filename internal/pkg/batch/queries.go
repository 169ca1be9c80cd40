package batch

import (
	"fmt"
	"strings"

	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/utils"
)

const (
	invoicesTable = "invoices_head"
	checksTable   = "checks_flat"
	parsedTable   = "invoice_check_parsed"
	archiveSuffix = "_archive"
)

// Queries builds statements for the remote SQL warehouse.
// Batch names are embedded as literals, callers pass normalized names only
type Queries struct {
	schema string
}

// NewQueries creates Queries instance for the catalog.schema prefix
func NewQueries(schema string) (*Queries, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return nil, fmt.Errorf("no schema")
	}
	return &Queries{schema: schema}, nil
}

func (q *Queries) table(name string) string {
	return q.schema + "." + name
}

// Summary returns the batch summary select
func (q *Queries) Summary() string {
	return fmt.Sprintf(`SELECT path, invoice_number, issue_date, final_decision
FROM %s
ORDER BY path`, q.table(invoicesTable))
}

// FailedChecks returns the failed check details select
func (q *Queries) FailedChecks() string {
	return fmt.Sprintf(`SELECT h.path, h.invoice_number, h.issue_date, h.final_decision,
	c.id AS failed_rule_id, c.name AS failed_rule_name, c.reason AS failed_reason
FROM %s h
JOIN %s c ON h.path = c.path
WHERE c.result = 'fail'
ORDER BY h.path, c.id`, q.table(invoicesTable), q.table(checksTable))
}

// ArchiveInserts returns the statements copying working tables into the archive,
// tagged with the batch name
func (q *Queries) ArchiveInserts(batchName string) ([]string, error) {
	if !utils.ValidBatchName(batchName) {
		return nil, fmt.Errorf("wrong batch name '%s'", batchName)
	}
	res := []string{}
	for _, t := range []string{invoicesTable, checksTable} {
		res = append(res, fmt.Sprintf(`INSERT INTO %s
SELECT *, '%s' AS batch_name
FROM %s`, q.table(t+archiveSuffix), batchName, q.table(t)))
	}
	return res, nil
}

// Truncates returns the statements emptying the working tables
func (q *Queries) Truncates() []string {
	res := []string{}
	for _, t := range []string{invoicesTable, checksTable, parsedTable} {
		res = append(res, fmt.Sprintf("TRUNCATE TABLE %s", q.table(t)))
	}
	return res
}

// ArchivedBatches returns the select listing archived batch names, newest first
func (q *Queries) ArchivedBatches() string {
	return fmt.Sprintf("SELECT DISTINCT batch_name FROM %s ORDER BY batch_name DESC",
		q.table(invoicesTable+archiveSuffix))
}

// ArchivedInvoices returns the select for archived invoices of the batch
func (q *Queries) ArchivedInvoices(batchName string) (string, error) {
	return q.archived(invoicesTable, batchName)
}

// ArchivedChecks returns the select for archived checks of the batch
func (q *Queries) ArchivedChecks(batchName string) (string, error) {
	return q.archived(checksTable, batchName)
}

func (q *Queries) archived(table, batchName string) (string, error) {
	if !utils.ValidBatchName(batchName) {
		return "", fmt.Errorf("wrong batch name '%s'", batchName)
	}
	return fmt.Sprintf(`SELECT * FROM %s
WHERE batch_name = '%s'
ORDER BY path`, q.table(table+archiveSuffix), batchName), nil
}
