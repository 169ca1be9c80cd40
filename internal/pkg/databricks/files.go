package databricks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/YB1425/Invoice-VAT-compliance-checker/internal/pkg/databricks/api"
)

// Put writes bytes to a volume path, overwriting existing content silently.
// No retry here - a repeated PUT after a half written body may hide a real failure,
// the enclosing batch step treats the first error as fatal
func (c *Client) Put(ctx context.Context, path string, r io.Reader, size int64) error {
	ctx, cancelF := context.WithTimeout(ctx, c.timeout)
	defer cancelF()
	req, err := c.newRequest(ctx, http.MethodPut, c.filesURL(path, false), r)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	goapp.Log.Info().Str("url", req.URL.String()).Int64("size", size).Msg("put file")
	resp, err := c.httpclient.Do(req)
	if err != nil {
		return fmt.Errorf("can't call: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		return fmt.Errorf("can't put '%s': %w", path, err)
	}
	return nil
}

// Get returns content of a volume file
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return goapp.InvokeWithBackoff(ctx, func() ([]byte, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, c.timeout)
		defer cancelF()
		req, err := c.newRequest(ctx, http.MethodGet, c.filesURL(path, false), nil)
		if err != nil {
			return nil, false, err
		}
		resp, err := c.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't get '%s': %w", path, err)
			return nil, goapp.IsRetryableCode(resp.StatusCode), err
		}
		br, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't read body: %w", err)
		}
		return br, false, nil
	}, c.backoff())
}

// List returns entries under a prefix, a missing prefix is an empty result, not an error
func (c *Client) List(ctx context.Context, path string, recursive bool) ([]api.FileInfo, error) {
	return goapp.InvokeWithBackoff(ctx, func() ([]api.FileInfo, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, c.timeout)
		defer cancelF()
		urlStr := c.filesURL(path, recursive)
		req, err := c.newRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, false, err
		}
		resp, err := c.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if resp.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't list '%s': %w", path, err)
			return nil, goapp.IsRetryableCode(resp.StatusCode), err
		}
		var res api.FileListResponse
		if err := decodeJSON(resp.Body, &res); err != nil {
			return nil, false, err
		}
		return res.Files, false, nil
	}, c.backoff())
}

// Delete removes an entry or, if recursive, an entire prefix.
// A missing target is success - keeps the reset step idempotent
func (c *Client) Delete(ctx context.Context, path string, recursive bool) error {
	_, err := goapp.InvokeWithBackoff(ctx, func() (interface{}, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, c.timeout)
		defer cancelF()
		req, err := c.newRequest(ctx, http.MethodDelete, c.filesURL(path, recursive), nil)
		if err != nil {
			return nil, false, err
		}
		goapp.Log.Info().Str("url", req.URL.String()).Msg("delete")
		resp, err := c.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if resp.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't delete '%s': %w", path, err)
			return nil, goapp.IsRetryableCode(resp.StatusCode), err
		}
		return nil, false, nil
	}, c.backoff())
	return err
}

func (c *Client) filesURL(path string, recursive bool) string {
	res := fmt.Sprintf("%s/api/2.0/fs/files%s", c.baseURL, path)
	if recursive {
		res += "?recursive=true"
	}
	return res
}
