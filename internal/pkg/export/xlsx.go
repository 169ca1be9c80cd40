package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks/api"
)

const (
	summarySheet = "Summary"
	failedSheet  = "Failed Checks"
)

// WriteXLSX writes the results workbook with summary and failed checks sheets
func WriteXLSX(w io.Writer, summary, failed *api.Rows) error {
	if summary == nil || failed == nil {
		return fmt.Errorf("no rows")
	}
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("can't rename sheet: %w", err)
	}
	if _, err := f.NewSheet(failedSheet); err != nil {
		return fmt.Errorf("can't add sheet: %w", err)
	}
	if err := writeSheet(f, summarySheet, summary); err != nil {
		return err
	}
	if err := writeSheet(f, failedSheet, failed); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("can't write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows *api.Rows) error {
	if err := setRow(f, sheet, 1, rows.Columns); err != nil {
		return err
	}
	for i, r := range rows.Data {
		if err := setRow(f, sheet, i+2, r); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("can't make cell name: %w", err)
	}
	data := make([]interface{}, len(values))
	for i, v := range values {
		data[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &data); err != nil {
		return fmt.Errorf("can't set row: %w", err)
	}
	return nil
}
