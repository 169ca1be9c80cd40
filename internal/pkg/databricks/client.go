package databricks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

// Client communicates with a remote workspace: file volumes, jobs, SQL warehouse
type Client struct {
	httpclient  *http.Client
	baseURL     string
	token       string
	jobID       int64
	warehouseID string
	timeout     time.Duration

	jobPollInterval time.Duration
	jobPollTimeout  time.Duration
	sqlPollInterval time.Duration
	sqlPollTimeout  time.Duration

	backoff func() backoff.BackOff
}

// NewClient creates a workspace client
func NewClient(baseURL, token string, jobID int64, warehouseID string) (*Client, error) {
	res := Client{}
	if baseURL == "" {
		return nil, fmt.Errorf("no baseURL")
	}
	if token == "" {
		return nil, fmt.Errorf("no token")
	}
	if jobID <= 0 {
		return nil, fmt.Errorf("no jobID")
	}
	if warehouseID == "" {
		return nil, fmt.Errorf("no warehouseID")
	}
	res.baseURL = baseURL
	res.token = token
	res.jobID = jobID
	res.warehouseID = warehouseID
	res.timeout = time.Second * 50
	res.jobPollInterval = time.Second * 5
	res.jobPollTimeout = time.Hour * 2
	res.sqlPollInterval = time.Second * 2
	res.sqlPollTimeout = time.Minute * 10
	res.httpclient = wsHTTPClient()
	res.backoff = newSimpleBackoff
	return &res, nil
}

// ErrTimeout indicates a poll loop exceeded its deadline
type ErrTimeout struct {
	Op    string
	After time.Duration
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("timeout waiting for %s after %v", e.Op, e.After)
}

// ErrStatementFailed indicates the remote statement reached a non success terminal state
type ErrStatementFailed struct {
	State   string
	Message string
}

func (e *ErrStatementFailed) Error() string {
	return fmt.Sprintf("statement %s: %s", e.State, e.Message)
}

func (c *Client) newRequest(ctx context.Context, method, urlStr string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, urlStr, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req.WithContext(ctx), nil
}

// callJSON makes one request, returns (retryable, error), decodes JSON into res if provided
func (c *Client) callJSON(ctx context.Context, method, urlStr string, body []byte, res interface{}) (bool, error) {
	ctx, cancelF := context.WithTimeout(ctx, c.timeout)
	defer cancelF()
	var br io.Reader
	if body != nil {
		br = bytes.NewReader(body)
	}
	req, err := c.newRequest(ctx, method, urlStr, br)
	if err != nil {
		return false, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	goapp.Log.Debug().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
	resp, err := c.httpclient.Do(req)
	if err != nil {
		return goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
		return goapp.IsRetryableCode(resp.StatusCode), err
	}
	if res != nil {
		if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
			return goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
		}
	}
	return false, nil
}

// getJSON is callJSON with retries, for read-only invocations
func getJSON[T any](ctx context.Context, c *Client, urlStr string) (*T, error) {
	return goapp.InvokeWithBackoff(ctx, func() (*T, bool, error) {
		res := new(T)
		retry, err := c.callJSON(ctx, http.MethodGet, urlStr, nil, res)
		if err != nil {
			return nil, retry, err
		}
		return res, false, nil
	}, c.backoff())
}

func decodeJSON(r io.Reader, res interface{}) error {
	if err := json.NewDecoder(r).Decode(res); err != nil {
		return fmt.Errorf("can't unmarshal: %w", err)
	}
	return nil
}

func wsHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	// default roundripper is not well suited for our case
	// it has just 2 idle connections per host, so try to tune a bit
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
