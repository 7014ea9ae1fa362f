package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/types"
)

// upstreamRetryMaxElapsed bounds how long a single upstream call may
// spend retrying transient failures before giving up (grounded on the
// teacher's server-mode retry budget for its storage driver).
const upstreamRetryMaxElapsed = 30 * time.Second

// HTTPClient is the production Fetcher/Mutator: a thin REST client for
// the remote record-management API. Its wire format, pagination cursor
// convention, and auth scheme are external-collaborator concerns (spec
// §1 "out of scope... the remote HTTP API client"); this type exists so
// the bridge can actually run end to end, not to specify that API.
type HTTPClient struct {
	BaseURL    string
	APIToken   string
	HTTPClient *http.Client
}

// NewHTTPClient builds an HTTPClient with a bounded request timeout.
func NewHTTPClient(baseURL, apiToken string) *HTTPClient {
	return &HTTPClient{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = upstreamRetryMaxElapsed
	return bo
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("upstream base URL not configured")
	}

	var respBody []byte
	bo := newRetryBackoff()

	err := backoff.Retry(func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err // network errors are retryable
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read response: %w", err))
		}

		if isRetryableStatus(resp.StatusCode) {
			return fmt.Errorf("upstream %s %s: status %d", method, path, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("upstream %s %s: status %d: %s", method, path, resp.StatusCode, data))
		}

		respBody = data
		return nil
	}, backoff.WithContext(bo, ctx))

	return respBody, err
}

// FetchTableRecords implements Fetcher.
func (c *HTTPClient) FetchTableRecords(ctx context.Context, tableID, cursor string) (RecordsPage, error) {
	path := fmt.Sprintf("/tables/%s/records", tableID)
	if cursor != "" {
		path += "?cursor=" + cursor
	}
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return RecordsPage{}, err
	}

	var page struct {
		Items      []types.Record `json:"items"`
		NextCursor string         `json:"next_cursor"`
		HasMore    bool           `json:"has_more"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return RecordsPage{}, fmt.Errorf("decode records page: %w", err)
	}
	return RecordsPage{Records: page.Items, NextCursor: page.NextCursor, HasMore: page.HasMore}, nil
}

// FetchEntity implements Fetcher.
func (c *HTTPClient) FetchEntity(ctx context.Context, kind types.EntityKind, id string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/%ss/%s", kind, id), nil)
}

// FetchList implements Fetcher.
func (c *HTTPClient) FetchList(ctx context.Context, kind types.EntityKind, parentID string) ([][]byte, error) {
	path := fmt.Sprintf("/%ss", kind)
	if parentID != "" {
		path += "?parent_id=" + parentID
	}
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode %s list: %w", kind, err)
	}
	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out, nil
}

// UpdateRecord implements Mutator.
func (c *HTTPClient) UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]interface{}) (types.Record, error) {
	payload, err := json.Marshal(map[string]interface{}{"fields": fields})
	if err != nil {
		return types.Record{}, fmt.Errorf("encode update: %w", err)
	}
	body, err := c.doRequest(ctx, http.MethodPatch, fmt.Sprintf("/tables/%s/records/%s", tableID, recordID), payload)
	if err != nil {
		return types.Record{}, err
	}
	var rec types.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return types.Record{}, fmt.Errorf("decode updated record: %w", err)
	}
	return rec, nil
}

// CreateRecord implements Mutator.
func (c *HTTPClient) CreateRecord(ctx context.Context, tableID string, fields map[string]interface{}) (types.Record, error) {
	payload, err := json.Marshal(map[string]interface{}{"fields": fields})
	if err != nil {
		return types.Record{}, fmt.Errorf("encode create: %w", err)
	}
	body, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/tables/%s/records", tableID), payload)
	if err != nil {
		return types.Record{}, err
	}
	var rec types.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return types.Record{}, fmt.Errorf("decode created record: %w", err)
	}
	return rec, nil
}

// DeleteRecord implements Mutator.
func (c *HTTPClient) DeleteRecord(ctx context.Context, tableID, recordID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/tables/%s/records/%s", tableID, recordID), nil)
	return err
}
