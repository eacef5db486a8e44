package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds a single vendor round-trip when no timeout is configured
const DefaultHTTPTimeout = 60 * time.Second

// maxResponseBytes caps how much of a vendor response is read into memory
const maxResponseBytes = 32 << 20

// Request describes a single vendor HTTP call
type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        io.Reader
	ContentType string
}

// Response is a fully-read vendor HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the response body into out
func (r *Response) Decode(out interface{}) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// NewHTTPClient returns the client used by hand-rolled vendor backends
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Send executes req once. There is no retry: a failed vendor call is surfaced
// to the caller immediately.
func Send(ctx context.Context, client *http.Client, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}

// SendJSON marshals in (when non-nil) as the request body and executes the call
func SendJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, in interface{}) (*Response, error) {
	req := Request{
		Method:  method,
		URL:     url,
		Headers: headers,
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		req.Body = bytes.NewReader(body)
		req.ContentType = "application/json"
	}
	return Send(ctx, client, req)
}
