package masking

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"snowflake-mask-report/pkg/types"
)

// Client handles communication with the masking service API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	bufferPool *sync.Pool
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new masking service client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 60 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 4096))
			},
		},
	}

	for _, opt := range opts {
		opt(client)
	}
	return client
}

// HTTPError represents a non-2xx answer from the service
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Submit sends entries to the async mask endpoint and returns the tracking id
func (c *Client) Submit(ctx context.Context, entries []types.MaskEntry) (string, error) {
	var resp submitResponse
	if err := c.put(ctx, "/mask/async", submitRequest{Mask: entries}, &resp); err != nil {
		return "", types.NewError(types.KindSubmission, "submit", fmt.Errorf("error in async mask api: %w", err))
	}

	if !resp.Success {
		return "", types.Errorf(types.KindSubmission, "submit", "error in async mask api: %s", resp.Error.message())
	}
	if len(resp.Data) == 0 {
		return "", types.Errorf(types.KindSubmission, "submit", "invalid or empty 'data' in API response")
	}

	trackingID := strings.TrimSpace(resp.Data[0].TrackingID)
	if trackingID == "" {
		return "", types.Errorf(types.KindSubmission, "submit", "missing or empty 'tracking_id' in API response")
	}
	return trackingID, nil
}

// Status performs a single status check for trackingID
func (c *Client) Status(ctx context.Context, trackingID string) (types.JobStatus, error) {
	trackingID = strings.TrimSpace(trackingID)
	req := statusRequest{Status: []statusQuery{{TrackingID: trackingID}}}

	var resp statusResponse
	if err := c.put(ctx, "/async-status", req, &resp); err != nil {
		return types.JobStatus{}, types.NewError(types.KindPoll, "status", fmt.Errorf("error checking status: %w", err))
	}

	if !resp.Success {
		return types.JobStatus{}, types.Errorf(types.KindPoll, "status", "error checking status: %s", resp.Error.message())
	}
	if len(resp.Data) == 0 {
		return types.JobStatus{}, types.Errorf(types.KindPoll, "status", "invalid status response for tracking ID %s", trackingID)
	}

	item := resp.Data[0]
	status := types.JobStatus{
		State:   types.ParseJobState(item.Status),
		Raw:     item.Status,
		Message: item.Error.message(),
	}
	if status.State == types.JobSuccess {
		status.Results = item.results()
	}
	return status, nil
}

// put sends payload as JSON with bearer auth and decodes the JSON answer into out
func (c *Client) put(ctx context.Context, path string, payload, out interface{}) error {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	// The service reports failures in the body too; prefer its message when present.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if msg := errorMessage(body); msg != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Error == nil {
		return ""
	}
	return envelope.Error.Message
}
