package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks/api"
)

// WriteCSV writes rows as csv with a header line
func WriteCSV(w io.Writer, rows *api.Rows) error {
	if rows == nil {
		return fmt.Errorf("no rows")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(rows.Columns); err != nil {
		return fmt.Errorf("can't write header: %w", err)
	}
	for _, r := range rows.Data {
		if err := cw.Write(r); err != nil {
			return fmt.Errorf("can't write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("can't flush csv: %w", err)
	}
	return nil
}

// InvoicesCSVName returns the export file name for batch invoices
func InvoicesCSVName(batch string) string {
	return fmt.Sprintf("invoices_%s.csv", batch)
}

// ChecksCSVName returns the export file name for batch checks
func ChecksCSVName(batch string) string {
	return fmt.Sprintf("checks_%s.csv", batch)
}

// ResultsXLSXName returns the export file name for the batch results workbook
func ResultsXLSXName(batch string) string {
	return fmt.Sprintf("vat_compliance_results_%s.xlsx", batch)
}
