package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueries(t *testing.T) *Queries {
	t.Helper()
	q, err := NewQueries("dev_uc_catalog.default")
	require.Nil(t, err)
	return q
}

func TestNewQueries_Fail(t *testing.T) {
	_, err := NewQueries(" ")
	assert.NotNil(t, err)
}

func TestSummary(t *testing.T) {
	q := newTestQueries(t)
	s := q.Summary()
	assert.Contains(t, s, "FROM dev_uc_catalog.default.invoices_head")
	assert.Contains(t, s, "ORDER BY path")
}

func TestFailedChecks(t *testing.T) {
	q := newTestQueries(t)
	s := q.FailedChecks()
	assert.Contains(t, s, "JOIN dev_uc_catalog.default.checks_flat c ON h.path = c.path")
	assert.Contains(t, s, "WHERE c.result = 'fail'")
	assert.Contains(t, s, "ORDER BY h.path, c.id")
}

func TestArchiveInserts(t *testing.T) {
	q := newTestQueries(t)
	s, err := q.ArchiveInserts("b1")
	require.Nil(t, err)
	require.Equal(t, 2, len(s))
	assert.Contains(t, s[0], "INSERT INTO dev_uc_catalog.default.invoices_head_archive")
	assert.Contains(t, s[0], "'b1' AS batch_name")
	assert.Contains(t, s[1], "INSERT INTO dev_uc_catalog.default.checks_flat_archive")
}

func TestArchiveInserts_FailName(t *testing.T) {
	q := newTestQueries(t)
	_, err := q.ArchiveInserts("b1'; DROP TABLE x")
	assert.NotNil(t, err)
}

func TestTruncates(t *testing.T) {
	q := newTestQueries(t)
	s := q.Truncates()
	assert.Equal(t, []string{
		"TRUNCATE TABLE dev_uc_catalog.default.invoices_head",
		"TRUNCATE TABLE dev_uc_catalog.default.checks_flat",
		"TRUNCATE TABLE dev_uc_catalog.default.invoice_check_parsed"}, s)
}

func TestArchivedBatches(t *testing.T) {
	q := newTestQueries(t)
	assert.Equal(t,
		"SELECT DISTINCT batch_name FROM dev_uc_catalog.default.invoices_head_archive ORDER BY batch_name DESC",
		q.ArchivedBatches())
}

func TestArchived(t *testing.T) {
	q := newTestQueries(t)
	s, err := q.ArchivedInvoices("b1")
	require.Nil(t, err)
	assert.Contains(t, s, "FROM dev_uc_catalog.default.invoices_head_archive")
	assert.Contains(t, s, "WHERE batch_name = 'b1'")
	s, err = q.ArchivedChecks("b1")
	require.Nil(t, err)
	assert.Contains(t, s, "FROM dev_uc_catalog.default.checks_flat_archive")
	_, err = q.ArchivedInvoices("b1' OR '1'='1")
	assert.NotNil(t, err)
}
