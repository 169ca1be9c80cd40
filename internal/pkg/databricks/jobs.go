package databricks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks/api"
)

// RunNow triggers the configured job passing the batch name,
// so the job tags its own outputs. Single attempt - the trigger is not idempotent
func (c *Client) RunNow(ctx context.Context, batchName string) (int64, error) {
	body, err := json.Marshal(api.RunNowRequest{JobID: c.jobID,
		NotebookParams: map[string]string{"batch_name": batchName}})
	if err != nil {
		return 0, fmt.Errorf("can't marshal request: %w", err)
	}
	var res api.RunNowResponse
	urlStr := fmt.Sprintf("%s/api/2.1/jobs/run-now", c.baseURL)
	if _, err := c.callJSON(ctx, http.MethodPost, urlStr, body, &res); err != nil {
		return 0, err
	}
	if res.RunID == 0 {
		return 0, fmt.Errorf("can't get run_id from response")
	}
	goapp.Log.Info().Int64("runID", res.RunID).Str("batch", batchName).Msg("job triggered")
	return res.RunID, nil
}

// WaitFor polls run status until the terminal life cycle state.
// Returns ErrTimeout when the deadline is hit - a stuck remote run must not stall the batch forever
func (c *Client) WaitFor(ctx context.Context, runID int64) (*api.RunState, error) {
	urlStr := fmt.Sprintf("%s/api/2.1/jobs/runs/get?run_id=%d", c.baseURL, runID)
	deadline := time.After(c.jobPollTimeout)
	for {
		res, err := getJSON[api.RunStatusResponse](ctx, c, urlStr)
		if err != nil {
			return nil, fmt.Errorf("can't get run status: %w", err)
		}
		goapp.Log.Debug().Int64("runID", runID).Str("state", res.State.LifeCycleState).Msg("run status")
		if res.State.LifeCycleState == api.RunTerminated {
			return &res.State, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, &ErrTimeout{Op: fmt.Sprintf("run %d", runID), After: c.jobPollTimeout}
		case <-time.After(c.jobPollInterval):
		}
	}
}
