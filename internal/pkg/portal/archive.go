package portal

import (
	"bytes"
	"net/http"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/labstack/echo/v4"

	dapi "github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks/api"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/export"
)

type archivedKind int

const (
	tableInvoices archivedKind = iota
	tableChecks
)

func archivedBatches(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("archivedBatches method")()
		rows, err := data.Warehouse.Execute(c.Request().Context(), data.Queries.ArchivedBatches())
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "can't load batches")
		}
		res := []string{}
		for _, r := range rows.Data {
			if len(r) > 0 {
				res = append(res, r[0])
			}
		}
		return c.JSON(http.StatusOK, res)
	}
}

type tableResult struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func archivedTable(data *Data, kind archivedKind, asCSV bool) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("archivedTable method")()
		batchName := c.Param("batch")
		if batchName == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No batch")
		}
		var stmt, fileName string
		var err error
		switch kind {
		case tableInvoices:
			stmt, err = data.Queries.ArchivedInvoices(batchName)
			fileName = export.InvoicesCSVName(batchName)
		case tableChecks:
			stmt, err = data.Queries.ArchivedChecks(batchName)
			fileName = export.ChecksCSVName(batchName)
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		rows, err := data.Warehouse.Execute(c.Request().Context(), stmt)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "can't load archive")
		}
		if asCSV {
			return serveCSV(c, fileName, rows)
		}
		return c.JSON(http.StatusOK, tableResult{Columns: rows.Columns, Rows: rows.Data})
	}
}

func archivedXLSX(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("archivedXLSX method")()
		batchName := c.Param("batch")
		if batchName == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No batch")
		}
		invStmt, err := data.Queries.ArchivedInvoices(batchName)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		chStmt, err := data.Queries.ArchivedChecks(batchName)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		invoices, err := data.Warehouse.Execute(c.Request().Context(), invStmt)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "can't load archive")
		}
		checks, err := data.Warehouse.Execute(c.Request().Context(), chStmt)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "can't load archive")
		}
		b := &bytes.Buffer{}
		if err := export.WriteXLSX(b, invoices, checks); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "can't write xlsx")
		}
		c.Response().Header().Set("Content-Disposition", "attachment; filename="+export.ResultsXLSXName(batchName))
		return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", b.Bytes())
	}
}

func serveCSV(c echo.Context, fileName string, rows *dapi.Rows) error {
	b := &bytes.Buffer{}
	if err := export.WriteCSV(b, rows); err != nil {
		goapp.Log.Error().Err(err).Send()
		return echo.NewHTTPError(http.StatusInternalServerError, "can't write csv")
	}
	c.Response().Header().Set("Content-Disposition", "attachment; filename="+fileName)
	return c.Blob(http.StatusOK, "text/csv", b.Bytes())
}
