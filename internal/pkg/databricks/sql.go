package databricks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks/api"
)

// Execute submits a statement and waits for the terminal state.
// A failed or canceled statement is an explicit error,
// callers can always tell "no rows" from "query failed"
func (c *Client) Execute(ctx context.Context, statement string) (*api.Rows, error) {
	body, err := json.Marshal(api.StatementRequest{Statement: statement,
		WarehouseID: c.warehouseID, WaitTimeout: "30s"})
	if err != nil {
		return nil, fmt.Errorf("can't marshal request: %w", err)
	}
	submitURL := fmt.Sprintf("%s/api/2.0/sql/statements/", c.baseURL)
	var res api.StatementResponse
	if _, err := c.callJSON(ctx, http.MethodPost, submitURL, body, &res); err != nil {
		return nil, err
	}
	if res.StatementID == "" {
		return nil, fmt.Errorf("can't get statement_id from response")
	}
	deadline := time.After(c.sqlPollTimeout)
	for !isStatementTerminal(res.Status.State) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, &ErrTimeout{Op: fmt.Sprintf("statement %s", res.StatementID), After: c.sqlPollTimeout}
		case <-time.After(c.sqlPollInterval):
		}
		r, err := getJSON[api.StatementResponse](ctx, c, submitURL+res.StatementID)
		if err != nil {
			return nil, fmt.Errorf("can't get statement status: %w", err)
		}
		res = *r
		goapp.Log.Debug().Str("statementID", res.StatementID).Str("state", res.Status.State).Msg("statement status")
	}
	if res.Status.State != api.StatementSucceeded {
		msg := ""
		if res.Status.Error != nil {
			msg = res.Status.Error.Message
		}
		return nil, &ErrStatementFailed{State: res.Status.State, Message: msg}
	}
	return mapRows(&res)
}

func isStatementTerminal(state string) bool {
	return state == api.StatementSucceeded || state == api.StatementFailed || state == api.StatementCanceled
}

// mapRows positions tuples by the schema column list,
// values may arrive as scalars or as {"value": ...} wrappers
func mapRows(res *api.StatementResponse) (*api.Rows, error) {
	rows := &api.Rows{}
	if res.Manifest != nil {
		for _, col := range res.Manifest.Schema.Columns {
			rows.Columns = append(rows.Columns, col.Name)
		}
	}
	if res.Result == nil {
		return rows, nil
	}
	for _, tuple := range res.Result.DataArray {
		if len(rows.Columns) > 0 && len(tuple) != len(rows.Columns) {
			return nil, fmt.Errorf("row has %d values, schema has %d columns", len(tuple), len(rows.Columns))
		}
		row := make([]string, 0, len(tuple))
		for _, v := range tuple {
			row = append(row, asString(v))
		}
		rows.Data = append(rows.Data, row)
	}
	return rows, nil
}

func asString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]interface{}:
		return asString(val["value"])
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
